package repositories

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the database, checks the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite позволяет только одного писателя
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates missing tables. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	name := "schema/sqlite.sql"
	if driver == "postgres" {
		name = "schema/postgres.sql"
	}
	ddl, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Store groups the repositories over one connection or transaction.
type Store struct {
	db *sql.DB

	Users             *UserRepository
	Sessions          *SessionRepository
	VerificationCodes *VerificationCodeRepository
	LoginAttempts     *LoginAttemptRepository
}

func NewStore(db *sql.DB) *Store {
	s := newStore(db)
	s.db = db
	return s
}

func newStore(q DBTX) *Store {
	return &Store{
		Users:             NewUserRepository(q),
		Sessions:          NewSessionRepository(q),
		VerificationCodes: NewVerificationCodeRepository(q),
		LoginAttempts:     NewLoginAttemptRepository(q),
	}
}

// DB returns the underlying pool. It is nil for a transaction-bound store.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("store is bound to a transaction")
	}
	return s.db.PingContext(ctx)
}

// WithinTx runs fn against a store bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
// Inside fn only the passed store may be used.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newStore(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteUser removes the user together with its sessions, codes and login attempts.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.WithinTx(ctx, func(tx *Store) error {
		if err := tx.Sessions.DeleteByUser(ctx, id); err != nil {
			return err
		}
		if err := tx.VerificationCodes.DeleteByUser(ctx, id); err != nil {
			return err
		}
		if err := tx.LoginAttempts.DeleteByUser(ctx, id); err != nil {
			return err
		}
		return tx.Users.Delete(ctx, id)
	})
}

func newID() string { return uuid.NewString() }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %s", ErrConflict, liteErr.Error())
	}
	return err
}
