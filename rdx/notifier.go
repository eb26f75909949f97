package rdx

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coffeefarm/db"
)

var _ db.Notifier = (*Notifier)(nil)

// Notifier publishes collection-changed events on Redis so every instance
// re-reads the collection, not only the one that wrote.
type Notifier struct {
	Conn   *redis.Client
	Logger *zap.Logger
}

func NewNotifier(conn *redis.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{Conn: conn, Logger: logger}
}

// Channel is the pub/sub channel for p.
func Channel(p db.Path) string {
	return "collection:" + p.String()
}

func (n *Notifier) Notify(ctx context.Context, p db.Path) error {
	return n.Conn.Publish(ctx, Channel(p), p.String()).Err()
}

func (n *Notifier) Listen(ctx context.Context, p db.Path) (<-chan struct{}, func(), error) {
	sub := n.Conn.Subscribe(ctx, Channel(p))
	// wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(signals)
		for range sub.Channel() {
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				n.Logger.Debug("redis unsubscribe", zap.String("path", p.String()), zap.Error(err))
			}
			<-done
		})
	}
	return signals, stop, nil
}
