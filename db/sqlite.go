package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps every collection in a single documents table, bodies as
// BSON blobs, ordered by insertion sequence.
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewSQLiteStore opens (or creates) the database file at path.
func NewSQLiteStore(path string, notifier Notifier, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "coffeefarm.db"
	}
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps SQLITE_BUSY out of the picture
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		id   TEXT NOT NULL,
		body BLOB NOT NULL,
		UNIQUE(path, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &SQLiteStore{db: db, notifier: notifier, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStore) exec(ctx context.Context, p Path, query string, args ...any) (sql.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, p Path, body any, opts ...WriteOption) (string, error) {
	raw, err := encodeBody(body, s.now(), opts)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if _, err := s.exec(ctx, p, `INSERT INTO documents (path, id, body) VALUES (?, ?, ?)`, p.String(), id, []byte(raw)); err != nil {
		return "", fmt.Errorf("insert %s: %w", p.Kind, err)
	}
	return id, s.notifier.Notify(ctx, p)
}

func (s *SQLiteStore) Update(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	raw, err := encodeBody(body, s.now(), opts)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, p, `UPDATE documents SET body = ? WHERE path = ? AND id = ?`, []byte(raw), p.String(), id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", p.Kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return s.notifier.Notify(ctx, p)
}

func (s *SQLiteStore) Put(ctx context.Context, p Path, id string, body any, opts ...WriteOption) error {
	raw, err := encodeBody(body, s.now(), opts)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, p, `INSERT INTO documents (path, id, body) VALUES (?, ?, ?)
		ON CONFLICT(path, id) DO UPDATE SET body = excluded.body`, p.String(), id, []byte(raw)); err != nil {
		return fmt.Errorf("put %s/%s: %w", p.Kind, id, err)
	}
	return s.notifier.Notify(ctx, p)
}

func (s *SQLiteStore) Delete(ctx context.Context, p Path, id string) error {
	if _, err := s.exec(ctx, p, `DELETE FROM documents WHERE path = ? AND id = ?`, p.String(), id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.Kind, id, err)
	}
	return s.notifier.Notify(ctx, p)
}

func (s *SQLiteStore) List(ctx context.Context, p Path) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM documents WHERE path = ? ORDER BY seq`, p.String())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.Kind, err)
	}
	defer func() { _ = rows.Close() }()

	docs := []Document{}
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		docs = append(docs, Document{ID: id, Body: body})
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Subscribe(ctx context.Context, p Path, fn func(Snapshot)) (Subscription, error) {
	return subscribeVia(ctx, s.notifier, p, func(ctx context.Context) ([]Document, error) {
		return s.List(ctx, p)
	}, fn, s.logger)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
