package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Compile-time contract assertion.
var _ Store = (*MemoryStore)(nil)

type memCollection struct {
	order []string
	docs  map[string]bson.Raw
}

// MemoryStore keeps documents in process memory. Used by tests and
// ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	notifier    Notifier
	logger      *zap.Logger
	closed      bool

	// Now is the server clock used for timestamps.
	Now func() time.Time
	// NewID generates document ids.
	NewID func() string
}

// NewMemoryStore returns an empty store. A nil notifier means a private
// LocalNotifier.
func NewMemoryStore(notifier Notifier, logger *zap.Logger) *MemoryStore {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		notifier:    notifier,
		logger:      logger,
		Now:         time.Now,
		NewID:       func() string { return uuid.New().String() },
	}
}

func (s *MemoryStore) collection(p Path) *memCollection {
	key := p.String()
	c, ok := s.collections[key]
	if !ok {
		c = &memCollection{docs: make(map[string]bson.Raw)}
		s.collections[key] = c
	}
	return c
}

func (s *MemoryStore) write(ctx context.Context, p Path, fn func(c *memCollection) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	err := fn(s.collection(p))
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, p)
}

func (s *MemoryStore) Insert(ctx context.Context, p Path, body any, opts ...WriteOption) (string, error) {
	raw, err := encodeBody(body, s.Now(), opts)
	if err != nil {
		return "", err
	}
	id := s.NewID()
	err = s.write(ctx, p, func(c *memCollection) error {
		c.order = append(c.order, id)
		c.docs[id] = raw
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	raw, err := encodeBody(body, s.Now(), opts)
	if err != nil {
		return err
	}
	return s.write(ctx, p, func(c *memCollection) error {
		if _, ok := c.docs[id]; !ok {
			return ErrNotFound
		}
		c.docs[id] = raw
		return nil
	})
}

func (s *MemoryStore) Put(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	raw, err := encodeBody(body, s.Now(), opts)
	if err != nil {
		return err
	}
	return s.write(ctx, p, func(c *memCollection) error {
		if _, ok := c.docs[id]; !ok {
			c.order = append(c.order, id)
		}
		c.docs[id] = raw
		return nil
	})
}

func (s *MemoryStore) Delete(ctx context.Context, p Path, id string) error {
	return s.write(ctx, p, func(c *memCollection) error {
		if _, ok := c.docs[id]; !ok {
			return nil
		}
		delete(c.docs, id)
		for i, existing := range c.order {
			if existing == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

func (s *MemoryStore) List(ctx context.Context, p Path) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.collections[p.String()]
	if !ok {
		return []Document{}, nil
	}
	out := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Document{ID: id, Body: c.docs[id]})
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, p Path, fn func(Snapshot)) (Subscription, error) {
	return subscribeVia(ctx, s.notifier, p, func(ctx context.Context) ([]Document, error) {
		return s.List(ctx, p)
	}, fn, s.logger)
}

func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
