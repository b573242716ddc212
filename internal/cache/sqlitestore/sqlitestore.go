// Package sqlitestore is the on-disk cache store driver. Entries survive
// restarts the way browser cache storage survives a reload.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache/codec"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

func init() {
	cache.Register("sqlite", func(cfg config.Config, logger *slog.Logger) (cache.Store, error) {
		cd, err := codec.ByName(cfg.EntryCodec)
		if err != nil {
			return nil, err
		}
		return Open(cfg.SQLitePath, cd, logger)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS namespaces (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	namespace TEXT NOT NULL,
	url       TEXT NOT NULL,
	record    BLOB NOT NULL,
	PRIMARY KEY (namespace, url)
);`

type Store struct {
	db     *sql.DB
	codec  codec.Codec
	logger *slog.Logger
}

var _ cache.Store = (*Store)(nil)

// Open creates or opens the database at path (":memory:" works for tests).
func Open(path string, cd codec.Codec, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cd == nil {
		cd = codec.Msgpack{}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, codec: cd, logger: logger}, nil
}

func (s *Store) Open(ctx context.Context, name string) (cache.Namespace, error) {
	if err := ensureNamespace(ctx, s.db, name); err != nil {
		return nil, fmt.Errorf("open namespace %q: %w", name, err)
	}
	return &namespace{store: s, name: name}, nil
}

func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM namespaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	var existed bool
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE namespace = ?`, name); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE name = ?`, name)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		existed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete namespace %q: %w", name, err)
	}
	return existed, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite close: %w", err)
	}
	return nil
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureNamespace(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)`,
		name, time.Now().Unix())
	return err
}

type namespace struct {
	store *Store
	name  string
}

func (n *namespace) Name() string { return n.name }

func (n *namespace) Get(ctx context.Context, url string) (*cache.Response, bool, error) {
	var b []byte
	err := n.store.db.QueryRowContext(ctx,
		`SELECT record FROM entries WHERE namespace = ? AND url = ?`, n.name, url).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", url, err)
	}
	resp, err := n.store.codec.Decode(b)
	if errors.Is(err, codec.ErrCorrupt) {
		n.store.logger.Warn("dropping corrupt cache entry", "namespace", n.name, "url", url, "err", err)
		_, _ = n.store.db.ExecContext(ctx,
			`DELETE FROM entries WHERE namespace = ? AND url = ?`, n.name, url)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", url, err)
	}
	return resp, true, nil
}

func (n *namespace) Put(ctx context.Context, url string, resp *cache.Response) error {
	return n.PutAll(ctx, []cache.Entry{{URL: url, Response: resp}})
}

func (n *namespace) PutAll(ctx context.Context, entries []cache.Entry) error {
	recs := make([][]byte, len(entries))
	for i, e := range entries {
		if err := cache.CheckCacheable(e.Response); err != nil {
			return err
		}
		b, err := n.store.codec.Encode(e.Response)
		if err != nil {
			return fmt.Errorf("encode %q: %w", e.URL, err)
		}
		recs[i] = b
	}
	err := n.store.tx(ctx, func(tx *sql.Tx) error {
		if err := ensureNamespace(ctx, tx, n.name); err != nil {
			return err
		}
		for i, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO entries (namespace, url, record) VALUES (?, ?, ?)`,
				n.name, e.URL, recs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %d entries into %q: %w", len(entries), n.name, err)
	}
	return nil
}
