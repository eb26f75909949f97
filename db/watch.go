package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type lister func(ctx context.Context) ([]Document, error)

// watcher re-reads a collection on every signal and hands the full snapshot
// to the subscriber, one delivery at a time.
type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *watcher) Close() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

func startWatch(parent context.Context, p Path, list lister, signals <-chan struct{}, stop func(), fn func(Snapshot), logger *zap.Logger) *watcher {
	ctx, cancel := context.WithCancel(parent)
	w := &watcher{cancel: cancel, done: make(chan struct{})}

	deliver := func() {
		docs, err := list(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("snapshot read failed", zap.String("path", p.String()), zap.Error(err))
			}
			return
		}
		fn(Snapshot{Path: p, Docs: docs, ReadAt: time.Now()})
	}

	go func() {
		defer close(w.done)
		defer stop()

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()
	return w
}

// subscribeVia wires a notifier-backed subscription for stores that do not
// have a native change stream.
func subscribeVia(ctx context.Context, n Notifier, p Path, list lister, fn func(Snapshot), logger *zap.Logger) (Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	signals, stop, err := n.Listen(ctx, p)
	if err != nil {
		return nil, err
	}
	return startWatch(ctx, p, list, signals, stop, fn, logger), nil
}
