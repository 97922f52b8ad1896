package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax differences between backends.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
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

func (d Dialect) serialKey() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// SQLStoreConfig configures a database/sql backed store.
type SQLStoreConfig struct {
	Dialect Dialect
	// Path is the SQLite database file.
	Path string
	// DSN is the Postgres connection string; PG* environment variables fill
	// an empty one.
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore owns a database handle shared by the SQL repositories and event store.
type SQLStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect Dialect
	closed  bool
}

// OpenSQLStore opens and pings the database and creates the schema.
func OpenSQLStore(ctx context.Context, config SQLStoreConfig) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch config.Dialect {
	case DialectSQLite:
		path := config.Path
		if path == "" {
			path = ".data/claims.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create directory: %v", ErrStoreInit, err)
		}
		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInit, err)
		}
		// A single writer connection avoids SQLITE_BUSY between our own goroutines.
		db.SetMaxOpenConns(1)
	case DialectPostgres:
		dsn := config.DSN
		if dsn == "" {
			dsn = postgresDSNFromEnv()
		}
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInit, err)
		}
		maxOpen := config.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		lifetime := config.ConnMaxLifetime
		if lifetime <= 0 {
			lifetime = time.Hour
		}
		db.SetConnMaxLifetime(lifetime)
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrStoreInit, config.Dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrStoreInit, err)
	}

	store := &SQLStore{db: db, dialect: config.Dialect}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func postgresDSNFromEnv() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	dbname := getEnvOrDefault("PGDATABASE", "claimflow")
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, getEnvOrDefault("PGSSLMODE", "disable"))
	if pw := os.Getenv("PGPASSWORD"); pw != "" {
		dsn += " password=" + pw
	}
	return dsn
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			issue_id TEXT NOT NULL,
			claimant_id TEXT NOT NULL,
			status TEXT NOT NULL,
			is_open INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			stealable INTEGER NOT NULL,
			claimed_at BIGINT NOT NULL,
			last_activity_at BIGINT NOT NULL,
			version INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_open_issue ON claims(issue_id) WHERE is_open = 1`,
		`CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_activity ON claims(last_activity_at)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS claimants (
			id TEXT PRIMARY KEY,
			workload INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS claim_events (
			seq ` + s.dialect.serialKey() + `,
			id TEXT NOT NULL UNIQUE,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			issue_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			version INTEGER NOT NULL,
			payload TEXT NOT NULL,
			metadata TEXT,
			correlation_id TEXT,
			causation_id TEXT,
			source TEXT,
			timestamp BIGINT NOT NULL,
			UNIQUE(aggregate_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_events_issue ON claim_events(issue_id)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_events_type ON claim_events(event_type)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInit, err)
		}
	}
	return nil
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database. Closing twice is a no-op.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Claims returns a claim repository over this store.
func (s *SQLStore) Claims() *SQLClaimRepository {
	return &SQLClaimRepository{store: s}
}

// Issues returns an issue repository over this store.
func (s *SQLStore) Issues() *SQLIssueRepository {
	return &SQLIssueRepository{store: s}
}

// Claimants returns a claimant repository over this store.
func (s *SQLStore) Claimants() *SQLClaimantRepository {
	return &SQLClaimantRepository{store: s}
}

// Events returns an event store over this store.
func (s *SQLStore) Events() *SQLEventStore {
	return &SQLEventStore{store: s}
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// isUniqueViolation recognizes unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
