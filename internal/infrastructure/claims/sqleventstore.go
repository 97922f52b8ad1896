package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// SQLEventStore implements EventStore on a SQLStore.
type SQLEventStore struct {
	store *SQLStore
}

// Append writes events in one transaction.
func (s *SQLEventStore) Append(ctx context.Context, events ...*domainClaims.ClaimEvent) error {
	if s.store.isClosed() {
		return ErrStoreClosed
	}
	if len(events) == 0 {
		return nil
	}

	d := s.store.dialect
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, d.rebind(`
		INSERT INTO claim_events (id, aggregate_id, aggregate_type, issue_id, event_type, version, payload, metadata, correlation_id, causation_id, source, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	assigned := make([]int, len(events))
	for i, event := range events {
		var current int
		err := tx.QueryRowContext(ctx, d.rebind(`
			SELECT COALESCE(MAX(version), 0) FROM claim_events WHERE aggregate_id = ?
		`), event.AggregateID).Scan(&current)
		if err != nil {
			return fmt.Errorf("failed to read aggregate version: %w", err)
		}

		payload, metadata, err := encodeEvent(event)
		if err != nil {
			return err
		}

		assigned[i] = current + 1
		_, err = stmt.ExecContext(ctx,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.IssueID,
			string(event.Type),
			assigned[i],
			payload,
			metadata,
			event.CorrelationID,
			event.CausationID,
			event.Source,
			event.Timestamp.UnixMilli(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: event %s", ErrVersionConflict, event.ID)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	for i, event := range events {
		event.Version = assigned[i]
	}
	return nil
}

// GetEvents returns all events for an aggregate.
func (s *SQLEventStore) GetEvents(ctx context.Context, aggregateID string) ([]*domainClaims.ClaimEvent, error) {
	return s.queryEvents(ctx, `WHERE aggregate_id = ? ORDER BY version`, aggregateID)
}

// Query returns events matching the filter.
func (s *SQLEventStore) Query(ctx context.Context, filter domainClaims.EventFilter) ([]*domainClaims.ClaimEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AggregateID != "" {
		where = append(where, "aggregate_id = ?")
		args = append(args, filter.AggregateID)
	}
	if filter.IssueID != "" {
		where = append(where, "issue_id = ?")
		args = append(args, filter.IssueID)
	}
	if len(filter.EventTypes) > 0 {
		marks := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.FromTimestamp != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.FromTimestamp.UnixMilli())
	}
	if filter.ToTimestamp != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.ToTimestamp.UnixMilli())
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
func (s *SQLEventStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.store.queryRow(ctx, `SELECT COUNT(*) FROM claim_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the underlying store.
func (s *SQLEventStore) Close() error {
	return s.store.Close()
}

func (s *SQLEventStore) queryEvents(ctx context.Context, clause string, args ...interface{}) ([]*domainClaims.ClaimEvent, error) {
	if s.store.isClosed() {
		return nil, ErrStoreClosed
	}
	rows, err := s.store.query(ctx, `
		SELECT id, aggregate_id, aggregate_type, issue_id, event_type, version, payload, metadata, correlation_id, causation_id, source, timestamp
		FROM claim_events `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result := make([]*domainClaims.ClaimEvent, 0)
	for rows.Next() {
		var (
			e                                    domainClaims.ClaimEvent
			eventType, payload                   string
			metadata, correlation, cause, source sql.NullString
			ts                                   int64
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.IssueID, &eventType, &e.Version,
			&payload, &metadata, &correlation, &cause, &source, &ts); err != nil {
			return nil, err
		}
		e.Type = domainClaims.ClaimEventType(eventType)
		e.ClaimID = e.AggregateID
		e.CorrelationID = correlation.String
		e.CausationID = cause.String
		e.Source = source.String
		e.Timestamp = time.UnixMilli(ts)
		if err := decodeEvent(&e, payload, metadata.String); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func encodeEvent(event *domainClaims.ClaimEvent) (string, interface{}, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var metadata interface{}
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(b)
	}
	return string(payload), metadata, nil
}

func decodeEvent(e *domainClaims.ClaimEvent, payload, metadata string) error {
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return nil
}
