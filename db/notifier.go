package db

import (
	"context"
	"sync"
)

// Notifier carries "collection changed" signals from writers to watchers.
// Signals are coalesced: a watcher that is busy sees one pending signal, not
// a backlog.
type Notifier interface {
	Notify(ctx context.Context, p Path) error
	Listen(ctx context.Context, p Path) (<-chan struct{}, func(), error)
}

// LocalNotifier fans signals out inside one process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, p Path) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[p.String()] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Listen(_ context.Context, p Path) (<-chan struct{}, func(), error) {
	key := p.String()
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.listeners[key] == nil {
		n.listeners[key] = make(map[chan struct{}]struct{})
	}
	n.listeners[key][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners[key], ch)
			if len(n.listeners[key]) == 0 {
				delete(n.listeners, key)
			}
			close(ch)
		})
	}
	return ch, stop, nil
}

// Listeners reports how many watchers are registered for p.
func (n *LocalNotifier) Listeners(p Path) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[p.String()])
}
