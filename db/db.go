// Package db is the remote collection store: owner-scoped document
// collections with live full-snapshot subscriptions.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"coffeefarm/models"
	"coffeefarm/utils"
)

var (
	// ErrNotFound is returned by Update when the id does not exist.
	ErrNotFound = errors.New("db: document not found")
	// ErrNoOwner is returned for paths without an owner.
	ErrNoOwner = errors.New("db: path has no owner")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("db: store closed")
)

var timeNow = time.Now

// Path addresses one owner's collection of one kind.
type Path struct {
	Namespace string
	Owner     string
	Kind      models.Kind
}

// NewPath builds a path; appID is made safe for use as a path segment.
func NewPath(appID, owner string, kind models.Kind) Path {
	return Path{Namespace: utils.SafeKey(appID), Owner: owner, Kind: kind}
}

// String renders artifacts/<namespace>/users/<owner>/<kind>.
func (p Path) String() string {
	return "artifacts/" + p.Namespace + "/users/" + p.Owner + "/" + string(p.Kind)
}

func (p Path) Validate() error {
	if p.Owner == "" {
		return ErrNoOwner
	}
	if p.Namespace == "" || p.Kind == "" {
		return fmt.Errorf("db: incomplete path %q", p.String())
	}
	return nil
}

// Document is one stored document. Body never carries the id.
type Document struct {
	ID   string
	Body bson.Raw
}

// Snapshot is the full current content of a collection.
type Snapshot struct {
	Path   Path
	Docs   []Document
	ReadAt time.Time
}

// Subscription stops deliveries when closed. Close must not be called from
// inside the delivery callback.
type Subscription interface {
	Close()
}

// Store is the document database contract shared by every backend.
type Store interface {
	// Insert stores body under a new server-assigned id.
	Insert(ctx context.Context, p Path, body any, opts ...WriteOption) (string, error)
	// Update overwrites an existing document; ErrNotFound if absent.
	Update(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error
	// Put creates or overwrites the document with the given id.
	Put(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error
	// Delete removes the document; deleting a missing id is not an error.
	Delete(ctx context.Context, p Path, id string) error
	// List returns the current documents in backend order.
	List(ctx context.Context, p Path) ([]Document, error)
	// Subscribe delivers the current snapshot immediately and a fresh full
	// snapshot after every change, until the subscription or ctx ends.
	Subscribe(ctx context.Context, p Path, fn func(Snapshot)) (Subscription, error)
	Close(ctx context.Context) error
}

type writeOptions struct {
	timestampFields []string
}

// WriteOption tunes a single write.
type WriteOption func(*writeOptions)

// WithServerTimestamp sets field to the store's clock at write time.
func WithServerTimestamp(field string) WriteOption {
	return func(o *writeOptions) {
		o.timestampFields = append(o.timestampFields, field)
	}
}

// encodeBody marshals body to BSON, drops any _id and applies write options.
func encodeBody(body any, now time.Time, opts []WriteOption) (bson.Raw, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := bson.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	out := make(bson.D, 0, len(d)+len(o.timestampFields))
	for _, e := range d {
		if e.Key == "_id" {
			continue
		}
		out = append(out, e)
	}
	// BSON datetimes hold milliseconds
	stamp := now.UTC().Truncate(time.Millisecond)
	for _, field := range o.timestampFields {
		out = setField(out, field, stamp)
	}

	raw, err = bson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

func setField(d bson.D, key string, value any) bson.D {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: value})
}

// Decode unmarshals a document into T and sets its id.
func Decode[T any, PT interface {
	*T
	SetID(string)
}](doc Document) (T, error) {
	var v T
	if err := bson.Unmarshal(doc.Body, &v); err != nil {
		return v, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	PT(&v).SetID(doc.ID)
	return v, nil
}

// DecodeAll decodes every document, reporting failures to onErr and skipping
// them.
func DecodeAll[T any, PT interface {
	*T
	SetID(string)
}](docs []Document, onErr func(Document, error)) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T, PT](doc)
		if err != nil {
			if onErr != nil {
				onErr(doc, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out
}
