// Package appstate holds the live, owner-scoped copy of the six farm
// collections and shares it between requests and websocket clients.
package appstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"coffeefarm/db"
	"coffeefarm/metrics"
	"coffeefarm/models"
)

// ErrNoOwner is returned when a state is requested without an owner.
var ErrNoOwner = errors.New("appstate: no authenticated owner")

// Snapshot is a consistent copy of all six collections.
type Snapshot struct {
	Plots      []models.Plot          `json:"plots"`
	Activities []models.Activity      `json:"activities"`
	Recipes    []models.Recipe        `json:"recipes"`
	Purchases  []models.Purchase      `json:"purchases"`
	Employees  []models.Employee      `json:"employees"`
	Harvests   []models.HarvestRecord `json:"harvests"`
}

// Options carries optional collaborators for Open.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// State mirrors one owner's collections. Every delivery replaces a kind
// wholesale; readers always get copies.
type State struct {
	owner     string
	namespace string
	store     db.Store
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	snap   Snapshot
	loaded map[models.Kind]bool
	ready  chan struct{}
	closed bool
	done   chan struct{}

	lmu       sync.Mutex
	listeners map[int]func(models.Kind)
	nextID    int

	subs      []db.Subscription
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Open subscribes to every kind for owner. The subscriptions outlive ctx and
// end on Close.
func Open(ctx context.Context, store db.Store, namespace, owner string, opts Options) (*State, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &State{
		owner:     owner,
		namespace: namespace,
		store:     store,
		logger:    logger.With(zap.String("owner", owner)),
		metrics:   opts.Metrics,
		loaded:    make(map[models.Kind]bool, len(models.Kinds)),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		listeners: make(map[int]func(models.Kind)),
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, kind := range models.Kinds {
		sub, err := store.Subscribe(subCtx, s.Path(kind), func(snap db.Snapshot) {
			s.apply(kind, snap.Docs)
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", kind, err)
		}
		s.subs = append(s.subs, sub)
	}
	return s, nil
}

func (s *State) Owner() string     { return s.owner }
func (s *State) Namespace() string { return s.namespace }
func (s *State) Store() db.Store   { return s.store }

// Path is the storage path of kind for this owner.
func (s *State) Path(kind models.Kind) db.Path {
	return db.Path{Namespace: s.namespace, Owner: s.owner, Kind: kind}
}

func decodeKind[T any, PT interface {
	*T
	SetID(string)
}](s *State, kind models.Kind, docs []db.Document) []T {
	return db.DecodeAll[T, PT](docs, func(doc db.Document, err error) {
		s.logger.Warn("skipping undecodable document",
			zap.String("kind", string(kind)), zap.String("id", doc.ID), zap.Error(err))
		s.metrics.DecodeError(string(kind))
	})
}

func (s *State) apply(kind models.Kind, docs []db.Document) {
	var set func(*Snapshot)
	switch kind {
	case models.KindPlots:
		v := decodeKind[models.Plot](s, kind, docs)
		set = func(sn *Snapshot) { sn.Plots = v }
	case models.KindActivities:
		v := decodeKind[models.Activity](s, kind, docs)
		set = func(sn *Snapshot) { sn.Activities = v }
	case models.KindRecipes:
		v := decodeKind[models.Recipe](s, kind, docs)
		set = func(sn *Snapshot) { sn.Recipes = v }
	case models.KindPurchases:
		v := decodeKind[models.Purchase](s, kind, docs)
		set = func(sn *Snapshot) { sn.Purchases = v }
	case models.KindEmployees:
		v := decodeKind[models.Employee](s, kind, docs)
		set = func(sn *Snapshot) { sn.Employees = v }
	case models.KindHarvests:
		v := decodeKind[models.HarvestRecord](s, kind, docs)
		set = func(sn *Snapshot) { sn.Harvests = v }
	default:
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	set(&s.snap)
	if !s.loaded[kind] {
		s.loaded[kind] = true
		if len(s.loaded) == len(models.Kinds) {
			close(s.ready)
		}
	}
	s.mu.Unlock()

	s.metrics.Snapshot(string(kind))
	s.notify(kind)
}

func (s *State) notify(kind models.Kind) {
	s.lmu.Lock()
	fns := make([]func(models.Kind), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(kind)
	}
}

// OnChange registers fn to run after a kind was replaced. fn must read state
// through the accessors. The returned func removes the listener.
func (s *State) OnChange(fn func(models.Kind)) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Ready blocks until every kind received its first snapshot.
func (s *State) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loaded reports whether kind received its first snapshot.
func (s *State) Loaded(kind models.Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[kind]
}

// Done is closed when the state is closed; holders must stop using it.
func (s *State) Done() <-chan struct{} { return s.done }

func (s *State) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close ends all subscriptions. Safe to call more than once; must not be
// called from an OnChange listener.
func (s *State) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.cancel()
		for _, sub := range s.subs {
			sub.Close()
		}
	})
}

func (s *State) Plots() []models.Plot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Plots)
}

func (s *State) Activities() []models.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Activities)
}

func (s *State) Recipes() []models.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Recipes)
}

func (s *State) Purchases() []models.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Purchases)
}

func (s *State) Employees() []models.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Employees)
}

func (s *State) Harvests() []models.HarvestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Harvests)
}

// Snapshot copies all six kinds under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Plots:      nonNil(slices.Clone(s.snap.Plots)),
		Activities: nonNil(slices.Clone(s.snap.Activities)),
		Recipes:    nonNil(slices.Clone(s.snap.Recipes)),
		Purchases:  nonNil(slices.Clone(s.snap.Purchases)),
		Employees:  nonNil(slices.Clone(s.snap.Employees)),
		Harvests:   nonNil(slices.Clone(s.snap.Harvests)),
	}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func find[T interface{ Key() string }](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.Key() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (s *State) FindPlot(id string) (models.Plot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Plots, id)
}

func (s *State) FindActivity(id string) (models.Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Activities, id)
}

func (s *State) FindRecipe(id string) (models.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Recipes, id)
}

func (s *State) FindPurchase(id string) (models.Purchase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Purchases, id)
}

func (s *State) FindEmployee(id string) (models.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Employees, id)
}

func (s *State) FindHarvest(id string) (models.HarvestRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.snap.Harvests, id)
}
