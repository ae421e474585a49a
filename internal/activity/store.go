package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/types"
)

// Store is the interface for reading and writing contact history.
type Store interface {
	// WriteEntries writes activity entries. Re-writing an entry with the same
	// customer and event ID is a no-op.
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByCustomer returns a customer's history, newest first.
	QueryByCustomer(ctx context.Context, customerID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)
}

// SQLStore implements Store on the contact_activity table.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// WriteEntries inserts activity entries in one statement.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO contact_activity (
		event_id, event_type, occurred_ms, customer_id, channel, source_refs, summary, payload
	) VALUES `)

	args := make([]any, 0, len(entries)*8)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")

		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		args = append(args,
			e.EventID, e.EventType, e.OccurredAt.UnixMilli(), e.CustomerID, string(e.Channel),
			string(refsJSON), e.Summary, payload,
		)
	}

	b.WriteString(" ON CONFLICT DO NOTHING")
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(b.String()), args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByCustomer returns a customer's history with filtering and pagination.
func (s *SQLStore) QueryByCustomer(ctx context.Context, customerID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := opts.limit()

	conditions := []string{"customer_id = ?"}
	args := []any{customerID}

	if opts.Since != nil {
		conditions = append(conditions, "occurred_ms >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Until != nil {
		conditions = append(conditions, "occurred_ms <= ?")
		args = append(args, opts.Until.UnixMilli())
	}
	if len(opts.Channels) > 0 {
		placeholders := make([]string, len(opts.Channels))
		for i, ch := range opts.Channels {
			placeholders[i] = "?"
			args = append(args, string(ch))
		}
		conditions = append(conditions, fmt.Sprintf("channel IN (%s)", strings.Join(placeholders, ", ")))
	}
	where := strings.Join(conditions, " AND ")

	// Total count ignores the cursor so every page reports the same total.
	countArgs := append([]any(nil), args...)
	var totalCount int
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		"SELECT COUNT(*) FROM contact_activity WHERE "+where), countArgs...).Scan(&totalCount); err != nil {
		return nil, "", 0, fmt.Errorf("counting activity entries: %w", err)
	}

	if c, ok := opts.cursor(); ok {
		where += " AND (occurred_ms < ? OR (occurred_ms = ? AND event_id > ?))"
		args = append(args, c.ms, c.ms, c.eventID)
	}
	query := fmt.Sprintf(
		`SELECT event_id, event_type, occurred_ms, customer_id, channel, source_refs, summary, payload
		FROM contact_activity
		WHERE %s
		ORDER BY occurred_ms DESC, event_id ASC
		LIMIT ?`, where)
	args = append(args, limit+1) // fetch one extra for cursor

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, "", 0, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		var ms int64
		var channel, refsJSON string
		var payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.EventType, &ms, &e.CustomerID, &channel, &refsJSON, &e.Summary, &payload); err != nil {
			return nil, "", 0, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = time.UnixMilli(ms).UTC()
		e.Channel = types.Channel(channel)
		if refsJSON != "" {
			if err := json.Unmarshal([]byte(refsJSON), &e.SourceRefs); err != nil {
				return nil, "", 0, fmt.Errorf("decoding source refs of %s: %w", e.EventID, err)
			}
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", 0, fmt.Errorf("reading activity entries: %w", err)
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = cursorAfter(entries[len(entries)-1])
	}
	return entries, nextCursor, totalCount, nil
}
