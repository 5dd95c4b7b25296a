package tempstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteFactory persists every collection in a single SQLite table.
type SQLiteFactory struct {
	db   *sql.DB
	opts options
}

// OpenSQLite creates or opens the database at path and applies the schema.
//
// The database runs in WAL mode with a single writer connection, so writes to
// one key never interleave.
func OpenSQLite(path string, opts ...Option) (*SQLiteFactory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteFactory{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database connection.
func (f *SQLiteFactory) Close() error {
	if f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Get returns the store for collection.
func (f *SQLiteFactory) Get(collection string) Store {
	return &sqliteStore{factory: f, collection: collection}
}

// Purge deletes expired entries across all collections and returns how many
// were removed.
func (f *SQLiteFactory) Purge(ctx context.Context) (int64, error) {
	res, err := f.db.ExecContext(ctx, `DELETE FROM tempstore WHERE expire <= ?`, f.opts.now().UnixNano())
	if err != nil {
		return 0, wzerrors.NewStoreError("purge", "*", err)
	}
	return res.RowsAffected()
}

type sqliteStore struct {
	factory    *SQLiteFactory
	collection string
}

func (s *sqliteStore) Get(ctx context.Context, key string) (map[string]any, error) {
	var raw string
	err := s.factory.db.QueryRowContext(ctx, `
		SELECT value FROM tempstore
		WHERE collection = ? AND name = ? AND expire > ?
	`, s.collection, key, s.factory.opts.now().UnixNano()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wzerrors.NewStoreError("get", key, err)
	}
	value, err := decodeValue([]byte(raw))
	if err != nil {
		return nil, wzerrors.NewStoreError("get", key, err)
	}
	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, value map[string]any) error {
	data, err := encodeValue(value)
	if err != nil {
		return wzerrors.NewStoreError("set", key, err)
	}
	now := s.factory.opts.now()
	_, err = s.factory.db.ExecContext(ctx, `
		INSERT INTO tempstore (collection, name, owner, value, updated, expire)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, name) DO UPDATE SET
			owner = excluded.owner,
			value = excluded.value,
			updated = excluded.updated,
			expire = excluded.expire
	`,
		s.collection,
		key,
		s.factory.opts.ownerFrom(ctx),
		string(data),
		now.UnixNano(),
		now.Add(s.factory.opts.expire).UnixNano(),
	)
	if err != nil {
		return wzerrors.NewStoreError("set", key, err)
	}
	return nil
}

func (s *sqliteStore) SetIfNotExists(ctx context.Context, key string, value map[string]any) (bool, error) {
	data, err := encodeValue(value)
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	now := s.factory.opts.now()

	tx, err := s.factory.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	defer tx.Rollback() // No-op if committed

	// An expired row must not block a fresh seed.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tempstore WHERE collection = ? AND name = ? AND expire <= ?
	`, s.collection, key, now.UnixNano()); err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tempstore (collection, name, owner, value, updated, expire)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, name) DO NOTHING
	`,
		s.collection,
		key,
		s.factory.opts.ownerFrom(ctx),
		string(data),
		now.UnixNano(),
		now.Add(s.factory.opts.expire).UnixNano(),
	)
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	if err := tx.Commit(); err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	return n == 1, nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.factory.db.ExecContext(ctx, `
		DELETE FROM tempstore WHERE collection = ? AND name = ?
	`, s.collection, key)
	if err != nil {
		return wzerrors.NewStoreError("delete", key, err)
	}
	return nil
}

func (s *sqliteStore) Metadata(ctx context.Context, key string) (*Metadata, error) {
	var (
		owner   string
		updated int64
	)
	err := s.factory.db.QueryRowContext(ctx, `
		SELECT owner, updated FROM tempstore
		WHERE collection = ? AND name = ? AND expire > ?
	`, s.collection, key, s.factory.opts.now().UnixNano()).Scan(&owner, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wzerrors.NewStoreError("metadata", key, err)
	}
	return &Metadata{Owner: owner, Updated: time.Unix(0, updated)}, nil
}
