// Package sqlstore keeps the cache container in a SQL table, either a local
// sqlite file or a shared postgres database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/medium"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
)

type dialect struct {
	driver string
	// rowLock serializes Update through a per-key row in boundary_kv_lock,
	// which exists even before the key's first write.
	rowLock bool
}

var dialects = map[string]dialect{
	// sqlite serializes writers with BEGIN IMMEDIATE instead
	"sqlite":   {driver: "sqlite3"},
	"postgres": {driver: "postgres", rowLock: true},
}

const schema = `CREATE TABLE IF NOT EXISTS boundary_kv (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
)`

const lockSchema = `CREATE TABLE IF NOT EXISTS boundary_kv_lock (
	k TEXT PRIMARY KEY
)`

const (
	seedLock = `INSERT INTO boundary_kv_lock (k) VALUES ($1) ON CONFLICT (k) DO NOTHING`
	takeLock = `SELECT k FROM boundary_kv_lock WHERE k = $1 FOR UPDATE`
)

const upsert = `INSERT INTO boundary_kv (k, v) VALUES ($1, $2)
	ON CONFLICT (k) DO UPDATE SET v = excluded.v`

type Store struct {
	db *sql.DB
	d  dialect
}

var _ medium.Medium = (*Store)(nil)

// Open connects and creates the table. name is "sqlite" or "postgres".
func Open(ctx context.Context, name, dsn string) (*Store, error) {
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unknown dialect %q", name)
	}
	if d.driver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore open %s: %w", name, err)
	}
	if d.driver == "sqlite3" {
		// one connection serializes writers, so read-modify-write never sees SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{schema, lockSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore create table: %w", err)
		}
	}
	return &Store{db: db, d: d}, nil
}

// sqliteDSN makes every transaction take the write lock up front and wait for
// it, so two processes sharing the file cannot interleave read-modify-writes.
func sqliteDSN(dsn string) string {
	var add []string
	if !strings.Contains(dsn, "_txlock=") {
		add = append(add, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		add = append(add, "_busy_timeout=5000")
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM boundary_kv WHERE k = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return "", medium.ErrNotFound
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("sqlstore get %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, val string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, upsert, key, val)
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("sqlstore set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM boundary_kv WHERE k = $1`, key)
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("sqlstore del %q: %w", key, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, fn medium.UpdateFunc) (err error) {
	start := time.Now()
	defer func() { observability.ObserveCacheOp("update", err, time.Since(start).Seconds()) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.d.rowLock {
		if _, err = tx.ExecContext(ctx, seedLock, key); err != nil {
			return fmt.Errorf("sqlstore seed lock %q: %w", key, err)
		}
		var k string
		if err = tx.QueryRowContext(ctx, takeLock, key).Scan(&k); err != nil {
			return fmt.Errorf("sqlstore lock %q: %w", key, err)
		}
	}

	var cur string
	found := true
	err = tx.QueryRowContext(ctx, `SELECT v FROM boundary_kv WHERE k = $1`, key).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		found, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("sqlstore select %q: %w", key, err)
	}

	next, err := fn(cur, found)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsert, key, next); err != nil {
		return fmt.Errorf("sqlstore upsert %q: %w", key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore commit: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlstore close: %w", err)
	}
	return nil
}
