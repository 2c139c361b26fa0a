// Package database opens the SQLite database shared by the user and file
// repositories and keeps its schema migrated.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteConfig holds configuration for the SQLite database.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file
	Path string `env:"PATH" envDefault:"var/storage/filevault.db"`

	// BusyTimeout is how long, in milliseconds, a connection waits for a lock
	BusyTimeout int64 `env:"BUSY_TIMEOUT" envDefault:"5000"`
}

// DB is a SQLite handle with a process wide write lock.
// modernc sqlite allows a single writer; concurrent writers would fail with
// SQLITE_BUSY once the busy timeout runs out.
type DB struct {
	*sqlx.DB

	writeLock *sync.Mutex
	log       logging.Logger
}

// Open opens (creating if needed) the database at cfg.Path, enables foreign
// keys and applies all pending migrations.
func Open(ctx context.Context, cfg SQLiteConfig) (_ *DB, err error) {
	log := logging.GetLogger("infra.database.sqlite").With(
		logging.Group("db", "path", cfg.Path),
	)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "open db failed", "error", err)
		} else {
			log.DebugContext(ctx, "db opened")
		}
	}()

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir all: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrateUp(db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &DB{
		DB:        db,
		writeLock: new(sync.Mutex),
		log:       log,
	}, nil
}

// LockWrite acquires the write lock and returns its release function.
func (db *DB) LockWrite() func() {
	db.writeLock.Lock()

	return db.writeLock.Unlock
}

// Close closes the database.
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func dsn(cfg SQLiteConfig) string {
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout("+strconv.FormatInt(cfg.BusyTimeout, 10)+")")
	query.Add("_pragma", "journal_mode(WAL)")
	query.Set("_txlock", "immediate")

	return "file:" + cfg.Path + "?" + query.Encode()
}

func migrateUp(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer src.Close()

	//nolint:exhaustruct
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	// The migrate instance is not closed: closing it would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("up: %w", err)
	}

	return nil
}
