package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var _ Store = (*MongoStore)(nil)

// MongoStore maps each Path onto the collection users.<owner>.<kind> inside
// one database per application namespace.
type MongoStore struct {
	Client   *mongo.Client
	database string
	// notifier is nil when change streams drive subscriptions
	notifier Notifier
	logger   *zap.Logger
}

// MongoOptions configures NewMongoStore.
type MongoOptions struct {
	URI      string
	Database string
	// Notifier replaces change streams when set. Standalone servers have no
	// change streams, so a Redis or local feed is used there.
	Notifier Notifier
}

func NewMongoStore(ctx context.Context, opts MongoOptions, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOptions := options.Client().ApplyURI(opts.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{Client: client, database: opts.Database, notifier: opts.Notifier, logger: logger}, nil
}

// CollectionName is the mongo collection holding p.
func CollectionName(p Path) string {
	return "users." + p.Owner + "." + string(p.Kind)
}

func (s *MongoStore) collection(p Path) (*mongo.Collection, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	database := s.database
	if database == "" {
		database = "artifacts_" + p.Namespace
	}
	return s.Client.Database(database).Collection(CollectionName(p)), nil
}

func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

func rawIDString(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return v.String()
}

// splitID separates the _id of a stored document from the rest of its body.
func splitID(raw bson.Raw) (string, bson.Raw, error) {
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return "", nil, err
	}
	body := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != "_id" {
			body = append(body, e)
		}
	}
	out, err := bson.Marshal(body)
	if err != nil {
		return "", nil, err
	}
	return rawIDString(raw.Lookup("_id")), out, nil
}

func (s *MongoStore) notify(ctx context.Context, p Path) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, p)
}

func (s *MongoStore) Insert(ctx context.Context, p Path, body any, opts ...WriteOption) (string, error) {
	coll, err := s.collection(p)
	if err != nil {
		return "", err
	}
	raw, err := encodeBody(body, timeNow(), opts)
	if err != nil {
		return "", err
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	doc = append(bson.D{{Key: "_id", Value: primitive.NewObjectID()}}, doc...)
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", p.Kind, err)
	}
	return idString(res.InsertedID), s.notify(ctx, p)
}

func (s *MongoStore) Update(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	coll, err := s.collection(p)
	if err != nil {
		return err
	}
	raw, err := encodeBody(body, timeNow(), opts)
	if err != nil {
		return err
	}
	res, err := coll.ReplaceOne(ctx, idFilter(id), raw)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", p.Kind, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return s.notify(ctx, p)
}

func (s *MongoStore) Put(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	coll, err := s.collection(p)
	if err != nil {
		return err
	}
	raw, err := encodeBody(body, timeNow(), opts)
	if err != nil {
		return err
	}
	if _, err := coll.ReplaceOne(ctx, idFilter(id), raw, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("put %s/%s: %w", p.Kind, id, err)
	}
	return s.notify(ctx, p)
}

func (s *MongoStore) Delete(ctx context.Context, p Path, id string) error {
	coll, err := s.collection(p)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, idFilter(id)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.Kind, id, err)
	}
	return s.notify(ctx, p)
}

func (s *MongoStore) List(ctx context.Context, p Path) ([]Document, error) {
	coll, err := s.collection(p)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.Kind, err)
	}
	defer cursor.Close(ctx)

	docs := []Document{}
	for cursor.Next(ctx) {
		id, body, err := splitID(cursor.Current)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.Kind, err)
		}
		docs = append(docs, Document{ID: id, Body: body})
	}
	return docs, cursor.Err()
}

func (s *MongoStore) Subscribe(ctx context.Context, p Path, fn func(Snapshot)) (Subscription, error) {
	list := func(ctx context.Context) ([]Document, error) { return s.List(ctx, p) }
	if s.notifier != nil {
		return subscribeVia(ctx, s.notifier, p, list, fn, s.logger)
	}

	coll, err := s.collection(p)
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := coll.Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", p.Kind, err)
	}

	signals := make(chan struct{}, 1)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		defer close(signals)
		for stream.Next(streamCtx) {
			select {
			case signals <- struct{}{}:
			default:
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) && streamCtx.Err() == nil {
			s.logger.Warn("change stream ended", zap.String("path", p.String()), zap.Error(err))
		}
	}()

	stop := func() {
		cancel()
		_ = stream.Close(context.Background())
		<-streamDone
	}
	return startWatch(ctx, p, list, signals, stop, fn, s.logger), nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
