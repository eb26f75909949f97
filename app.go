package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coffeefarm/appstate"
	"coffeefarm/auth"
	"coffeefarm/config"
	"coffeefarm/db"
	"coffeefarm/logging"
	"coffeefarm/metrics"
	"coffeefarm/rdx"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	redis   *redis.Client
	store   db.Store
	states  *appstate.Manager
	auth    *auth.Service
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	if cfg.Redis.Addr != "" {
		a.redis, err = rdx.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	a.store, err = a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.states = appstate.NewManager(a.store, cfg.Namespace(), cfg.GetIdleTimeout(), logger, a.metrics)

	a.auth, err = a.newAuth(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) notifier() db.Notifier {
	switch a.cfg.Store.ChangeFeed {
	case "redis":
		return rdx.NewNotifier(a.redis, a.logger)
	case "changestream":
		return nil
	default:
		return db.NewLocalNotifier()
	}
}

func (a *app) openStore(ctx context.Context) (db.Store, error) {
	sc := a.cfg.Store
	a.logger.Info("opening store", zap.String("backend", sc.Backend), zap.String("change_feed", sc.ChangeFeed))
	switch sc.Backend {
	case "sqlite":
		return db.NewSQLiteStore(sc.SQLitePath, a.notifier(), a.logger)
	case "mongo":
		return db.NewMongoStore(ctx, db.MongoOptions{
			URI:      sc.MongoURI,
			Database: sc.MongoDatabase,
			Notifier: a.notifier(),
		}, a.logger)
	case "memory":
		return db.NewMemoryStore(a.notifier(), a.logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func (a *app) newAuth(ctx context.Context) (*auth.Service, error) {
	ac := a.cfg.Auth
	var verifiers []auth.TokenVerifier
	if ac.CustomTokenSecret != "" {
		verifiers = append(verifiers, auth.CustomTokenVerifier{Secret: []byte(ac.CustomTokenSecret)})
	}
	if ac.FirebaseCredentials != "" {
		fv, err := auth.NewFirebaseVerifier(ctx, ac.FirebaseCredentials)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, fv)
	}

	var sessions auth.SessionRegistry
	if a.redis != nil {
		sessions = &rdx.Sessions{Conn: a.redis}
	} else {
		sessions = auth.NewMemorySessions()
	}

	return auth.NewService(auth.Options{
		Secret:       []byte(ac.JWTSecret),
		TTL:          a.cfg.GetSessionTTL(),
		Sessions:     sessions,
		Verifiers:    verifiers,
		InitialToken: ac.InitialToken,
		OnLogout:     a.states.Drop,
		Logger:       a.logger,
	}), nil
}

// owner picks the --owner flag, falling back to the initial auth token.
func (a *app) owner(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	owner, err := a.auth.Resolve(ctx, "")
	if err != nil {
		return "", fmt.Errorf("no owner: pass --owner or set INITIAL_AUTH_TOKEN: %w", err)
	}
	return owner, nil
}

func (a *app) Close(ctx context.Context) {
	if a.states != nil {
		a.states.Close()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}
