// Package database provides the Postgres access layer: pooled connections,
// schema migration, and explicit transaction control for the contact store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/logging"
)

// DB is the query surface repositories depend on. Both *sqlx.DB and *sqlx.Tx
// satisfy it, so a repository bound to a transaction is indistinguishable
// from one bound to the pool.
type DB interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Config holds connection and migration settings.
type Config struct {
	Driver                string
	Host                  string
	Port                  string
	UserName              string
	Password              string
	Name                  string
	SSLMode               string
	ReconnectRetryCount   int
	MaxOpenConns          int
	MaxIdleConns          int
	ConnMaxLifetime       time.Duration
	MigrationFolderPath   string
	MigrationVersion      int
	MigrationForce        int
	MigrationAutoRollback bool
}

// DSN builds the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.UserName, c.Password, c.Name, c.SSLMode)
}

// Connect opens the connection pool, retrying a bounded number of times so
// the service survives the database coming up after it.
func Connect(cfg Config, logger logging.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	attempts := cfg.ReconnectRetryCount
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		db, err = sqlx.Connect(cfg.Driver, cfg.DSN())
		if err == nil {
			break
		}
		logger.WithError(err).WithFields(map[string]any{"attempt": i + 1}).Warn("Database connection failed, retrying")
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate applies schema migrations from the configured folder.
func Migrate(db *sqlx.DB, cfg Config, logger logging.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationFolderPath, cfg.Name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if cfg.MigrationForce > 0 {
		if err := m.Force(cfg.MigrationForce); err != nil {
			return fmt.Errorf("failed to force migration version %d: %w", cfg.MigrationForce, err)
		}
	}

	if cfg.MigrationVersion > 0 {
		err = m.Migrate(uint(cfg.MigrationVersion))
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if cfg.MigrationAutoRollback {
			logger.WithError(err).Warn("Migration failed, rolling back")
			if downErr := m.Down(); downErr != nil && !errors.Is(downErr, migrate.ErrNoChange) {
				logger.WithError(downErr).Error("Migration rollback failed")
			}
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.WithFields(map[string]any{"version": version, "dirty": dirty}).Info("Database migrations applied")
	return nil
}

// WithinTx runs fn inside a SERIALIZABLE transaction. The transaction is
// rolled back in full on error or panic; partial writes are never visible.
// Serialization conflicts are returned to the caller for retry, since the
// work inside fn is a pure function of committed store state.
func WithinTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Postgres SQLSTATE codes reported when concurrent transactions cannot be
// serialized. Both are safe to retry.
const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

// IsSerializationFailure reports whether err is a retryable write conflict.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == serializationFailureCode || code == deadlockDetectedCode
	}
	return false
}
