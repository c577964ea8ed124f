// Package store persists raw vibration samples, vibration results, raw GPS
// fixes, and derived GPS fixes. Each family lives in its own table keyed by
// epoch seconds, and every write is an insert-or-replace of the whole row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	_ "github.com/couchcryptid/vibration-severity-etl/internal/store/drivers"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

const defaultBatchSize = 500

// Options selects and tunes the backing database.
type Options struct {
	Driver    string
	Path      string // sqlite and duckdb file
	DSN       string // pgx connection string
	BatchSize int    // rows per write transaction

	// RequireRawParent rejects results whose raw record is absent.
	RequireRawParent bool
}

// Store is a database/sql backed record store.
type Store struct {
	db            *sql.DB
	driver        string
	batchSize     int
	requireParent bool
	logger        *slog.Logger
}

// Open connects to the configured database, tunes the pool for the driver,
// and creates any missing tables. Failures wrap domain.ErrStoreUnavailable.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	var dsn string
	switch driver {
	case DriverSQLite, DriverDuckDB:
		dsn = opts.Path
		if dsn == "" {
			return nil, fmt.Errorf("%w: %s needs a database path", domain.ErrStoreUnavailable, driver)
		}
	case DriverPostgres:
		dsn = opts.DSN
		if dsn == "" {
			return nil, fmt.Errorf("%w: pgx needs a DSN", domain.ErrStoreUnavailable)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrStoreUnavailable, opts.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStoreUnavailable, driver, err)
	}

	switch driver {
	case DriverSQLite, DriverDuckDB:
		// Single writer: one physical connection for the life of the process.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case DriverPostgres:
		db.SetMaxOpenConns(4)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: connect %s: %w", domain.ErrStoreUnavailable, driver, err)
	}

	if driver == DriverSQLite {
		if err := tuneSQLite(pingCtx, db); err != nil {
			logger.Warn("sqlite tuning skipped", "error", err)
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	s := &Store{
		db:            db,
		driver:        driver,
		batchSize:     batchSize,
		requireParent: opts.RequireRawParent,
		logger:        logger,
	}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("store opened", "driver", driver, "batch_size", batchSize)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func tuneSQLite(ctx context.Context, db *sql.DB) error {
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("journal_mode: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inBatches runs fn inside one transaction per chunk of at most batchSize
// rows. A failing chunk is rolled back; earlier chunks stay committed.
func (s *Store) inBatches(ctx context.Context, n int, fn func(tx *sql.Tx, lo, hi int) error) error {
	for lo := 0; lo < n; lo += s.batchSize {
		hi := min(lo+s.batchSize, n)
		if err := s.withTx(ctx, func(tx *sql.Tx) error { return fn(tx, lo, hi) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
