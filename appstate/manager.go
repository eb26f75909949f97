package appstate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"coffeefarm/db"
	"coffeefarm/metrics"
)

type entry struct {
	state *State
	refs  int
	timer *time.Timer
}

// Manager shares one State per active owner. A state with no holders is
// closed once it has been idle for the configured timeout.
type Manager struct {
	store     db.Store
	namespace string
	idle      time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(store db.Store, namespace string, idle time.Duration, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		namespace: namespace,
		idle:      idle,
		logger:    logger,
		metrics:   m,
		entries:   make(map[string]*entry),
	}
}

func (m *Manager) Namespace() string { return m.namespace }
func (m *Manager) Store() db.Store   { return m.store }

// Acquire returns the owner's state, opening it if needed, and a release func
// that must be called once the caller is done with it.
func (m *Manager) Acquire(ctx context.Context, owner string) (*State, func(), error) {
	if owner == "" {
		return nil, nil, ErrNoOwner
	}
	m.mu.Lock()
	e, ok := m.entries[owner]
	if ok {
		e.refs++
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	} else {
		state, err := Open(ctx, m.store, m.namespace, owner, Options{Logger: m.logger, Metrics: m.metrics})
		if err != nil {
			m.mu.Unlock()
			return nil, nil, err
		}
		e = &entry{state: state, refs: 1}
		m.entries[owner] = e
		m.metrics.StateOpened()
		m.logger.Debug("owner state opened", zap.String("owner", owner))
	}
	m.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(owner, e) })
	}
	return e.state, release, nil
}

func (m *Manager) release(owner string, e *entry) {
	m.mu.Lock()
	if m.entries[owner] != e {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	if m.idle > 0 {
		e.timer = time.AfterFunc(m.idle, func() { m.expire(owner, e) })
		m.mu.Unlock()
		return
	}
	delete(m.entries, owner)
	m.mu.Unlock()
	m.closeEntry(owner, e)
}

func (m *Manager) expire(owner string, e *entry) {
	m.mu.Lock()
	if m.entries[owner] != e || e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.entries, owner)
	m.mu.Unlock()
	m.closeEntry(owner, e)
}

func (m *Manager) closeEntry(owner string, e *entry) {
	e.state.Close()
	m.metrics.StateClosed()
	m.logger.Debug("owner state closed", zap.String("owner", owner))
}

// Drop closes the owner's state immediately, e.g. after logout.
func (m *Manager) Drop(owner string) {
	m.mu.Lock()
	e, ok := m.entries[owner]
	if ok {
		delete(m.entries, owner)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.mu.Unlock()
	if ok {
		m.closeEntry(owner, e)
	}
}

// Active reports how many owner states are open.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close closes every state.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	for owner, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		m.closeEntry(owner, e)
	}
}
