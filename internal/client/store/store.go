// Package store is the client's local database: encrypted items plus a
// plaintext key-value table, behind a single writer.
//
// All writes go through Write, which serializes callers with a mutex and runs
// inside one SQL transaction. Nothing must call Store methods from inside a
// Write or View callback; use the Tx handed to the callback instead.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/client/migrations"
	"github.com/dmitrijs2005/gophnotes/internal/client/repositories/items"
	"github.com/dmitrijs2005/gophnotes/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/dbx"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// writeAttempts is one try plus one retry.
const writeAttempts = 2

type Store struct {
	db     *sql.DB
	crypto *cryptox.Provider
	logger logging.Logger

	mu sync.Mutex // single writer

	keyMu sync.RWMutex
	key   []byte
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the sqlite database at dsn and migrates it.
func Open(ctx context.Context, dsn string, p *cryptox.Provider, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one logical connection: sqlite has a single writer anyway and an
	// in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return New(db, p, logger), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, p *cryptox.Provider, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Store{db: db, crypto: p, logger: logger.With("module", "store")}
}

func (s *Store) Close() error { return s.db.Close() }

// Unlock installs the database key used to encrypt item payloads at rest.
func (s *Store) Unlock(key []byte) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	s.key = append([]byte(nil), key...)
}

// Lock forgets the database key.
func (s *Store) Lock() {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	common.WipeByteArray(s.key)
	s.key = nil
}

func (s *Store) currentKey() []byte {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.key
}

// repoError marks failures coming from the database itself; only those are
// worth retrying.
type repoError struct{ err error }

func (e *repoError) Error() string { return e.err.Error() }
func (e *repoError) Unwrap() error { return e.err }

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return &repoError{err: err}
}

// Write runs fn in a transaction while holding the writer lock. A failed
// transaction is retried once and then reported as
// common.ErrStorageTransactionFailed. Errors fn returns on its own behalf are
// passed through unchanged and never retried.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.currentKey()
	err := dbx.WithTxRetry(ctx, s.db, writeAttempts, func(ctx context.Context, db dbx.DBTX) error {
		err := fn(ctx, s.newTx(db, key))
		var re *repoError
		if err != nil && !errors.As(err, &re) {
			return &dbx.Permanent{Err: err}
		}
		return err
	})
	if err == nil {
		return nil
	}

	var p *dbx.Permanent
	if errors.As(err, &p) {
		return p.Err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error(ctx, "write transaction failed", "error", err)
	return fmt.Errorf("%w: %v", common.ErrStorageTransactionFailed, err)
}

// View runs fn against the database without a transaction. Reads wait for
// an in-flight Write since there is only one connection.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return fn(ctx, s.newTx(s.db, s.currentKey()))
}

func (s *Store) newTx(db dbx.DBTX, key []byte) *Tx {
	return &Tx{
		items:  items.NewSQLiteRepository(db),
		meta:   metadata.NewSQLiteRepository(db),
		crypto: s.crypto,
		key:    key,
	}
}

// Reset wipes every item and every metadata key. Used on logout.
func (s *Store) Reset(ctx context.Context) error {
	return s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.items.Clear(ctx); err != nil {
			return storageErr(err)
		}
		return storageErr(tx.meta.Clear(ctx))
	})
}
