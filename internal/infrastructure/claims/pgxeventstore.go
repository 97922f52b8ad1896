package claims

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// PgxEventStore implements EventStore on a native pgx connection pool.
type PgxEventStore struct {
	pool *pgxpool.Pool
}

// NewPgxEventStore connects to Postgres, pings it and creates the event table.
func NewPgxEventStore(ctx context.Context, databaseURL string) (*PgxEventStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %v", ErrStoreInit, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrStoreInit, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreInit, err)
	}

	store := &PgxEventStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PgxEventStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS claim_events (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			issue_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			version INTEGER NOT NULL,
			payload JSONB NOT NULL,
			metadata JSONB,
			correlation_id TEXT,
			causation_id TEXT,
			source TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			UNIQUE(aggregate_id, version)
		)`)
	if err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInit, err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_claim_events_issue ON claim_events(issue_id)`)
	if err != nil {
		return fmt.Errorf("%w: failed to create index: %v", ErrStoreInit, err)
	}
	return nil
}

// Append writes events in one transaction.
func (s *PgxEventStore) Append(ctx context.Context, events ...*domainClaims.ClaimEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPgErr(err)
	}
	defer tx.Rollback(ctx)

	assigned := make([]int, len(events))
	for i, event := range events {
		var current int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM claim_events WHERE aggregate_id = $1`,
			event.AggregateID,
		).Scan(&current); err != nil {
			return mapPgErr(err)
		}

		assigned[i] = current + 1
		var metadata map[string]interface{}
		if len(event.Metadata) > 0 {
			metadata = event.Metadata
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO claim_events (id, aggregate_id, aggregate_type, issue_id, event_type, version, payload, metadata, correlation_id, causation_id, source, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			event.ID, event.AggregateID, event.AggregateType, event.IssueID, string(event.Type),
			assigned[i], event.Payload, metadata, event.CorrelationID, event.CausationID, event.Source,
			event.Timestamp,
		)
		if err != nil {
			return mapPgErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgErr(err)
	}
	for i, event := range events {
		event.Version = assigned[i]
	}
	return nil
}

// GetEvents returns all events for an aggregate.
func (s *PgxEventStore) GetEvents(ctx context.Context, aggregateID string) ([]*domainClaims.ClaimEvent, error) {
	return s.queryEvents(ctx, `WHERE aggregate_id = $1 ORDER BY version`, aggregateID)
}

// Query returns events matching the filter.
func (s *PgxEventStore) Query(ctx context.Context, filter domainClaims.EventFilter) ([]*domainClaims.ClaimEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.AggregateID != "" {
		where = append(where, "aggregate_id = "+arg(filter.AggregateID))
	}
	if filter.IssueID != "" {
		where = append(where, "issue_id = "+arg(filter.IssueID))
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		where = append(where, "event_type = ANY("+arg(types)+")")
	}
	if filter.FromTimestamp != nil {
		where = append(where, "timestamp >= "+arg(*filter.FromTimestamp))
	}
	if filter.ToTimestamp != nil {
		where = append(where, "timestamp <= "+arg(*filter.ToTimestamp))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	events, err := s.queryEvents(ctx, clause+" ORDER BY seq", args...)
	if err != nil {
		return nil, err
	}
	return applyLimit(events, filter.Limit), nil
}

// Count returns the number of stored events.
func (s *PgxEventStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM claim_events`).Scan(&n); err != nil {
		return 0, mapPgErr(err)
	}
	return n, nil
}

// Close closes the pool.
func (s *PgxEventStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxEventStore) queryEvents(ctx context.Context, clause string, args ...interface{}) ([]*domainClaims.ClaimEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, issue_id, event_type, version, payload, metadata,
		       COALESCE(correlation_id, ''), COALESCE(causation_id, ''), COALESCE(source, ''), timestamp
		FROM claim_events `+clause, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domainClaims.ClaimEvent, error) {
		var (
			e         domainClaims.ClaimEvent
			eventType string
		)
		err := row.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.IssueID, &eventType, &e.Version,
			&e.Payload, &e.Metadata, &e.CorrelationID, &e.CausationID, &e.Source, &e.Timestamp)
		e.Type = domainClaims.ClaimEventType(eventType)
		e.ClaimID = e.AggregateID
		return &e, err
	})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return events, nil
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrVersionConflict, pgErr.Message)
		}
	}
	return err
}
