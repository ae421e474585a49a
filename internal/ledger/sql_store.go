package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/types"
)

// SQLStore implements Store on the customers and touchpoints tables.
// Contact times are stored as Unix milliseconds.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) exists(ctx context.Context, customerID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT 1 FROM customers WHERE id = ?`), customerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying customer %s: %w", customerID, err)
	}
	return nil
}

func (s *SQLStore) Contact(ctx context.Context, customerID string, channel types.Channel) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT last_contacted_ms FROM touchpoints WHERE customer_id = ? AND channel = ?`),
		customerID, string(channel)).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.exists(ctx, customerID); err != nil {
			return time.Time{}, false, err
		}
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying touchpoint: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *SQLStore) PutContact(ctx context.Context, customerID string, channel types.Channel, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	nowMs := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO customers (id, created_ms, updated_ms) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		customerID, nowMs, nowMs); err != nil {
		return fmt.Errorf("creating customer %s: %w", customerID, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO touchpoints (customer_id, channel, last_contacted_ms)
		VALUES (?, ?, ?)
		ON CONFLICT (customer_id, channel) DO UPDATE SET
			last_contacted_ms = excluded.last_contacted_ms
		WHERE excluded.last_contacted_ms > touchpoints.last_contacted_ms`),
		customerID, string(channel), at.UnixMilli()); err != nil {
		return fmt.Errorf("recording contact: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Assignment(ctx context.Context, customerID string) (int, bool, error) {
	var tierID sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT tier_id FROM customers WHERE id = ?`), customerID).Scan(&tierID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, apperr.ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying assignment: %w", err)
	}
	if !tierID.Valid {
		return 0, false, nil
	}
	return int(tierID.Int64), true, nil
}

func (s *SQLStore) SetAssignment(ctx context.Context, customerID string, tierID *int) error {
	var arg any
	if tierID != nil {
		arg = *tierID
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE customers SET tier_id = ?, updated_ms = ? WHERE id = ?`), arg, time.Now().UnixMilli(), customerID)
	if err != nil {
		return fmt.Errorf("assigning tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assigning tier: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Customer(ctx context.Context, customerID string) (types.Customer, error) {
	var c types.Customer
	var tierID sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, display_name, tier_id FROM customers WHERE id = ?`), customerID).
		Scan(&c.ID, &c.DisplayName, &tierID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Customer{}, apperr.ErrNotFound
	}
	if err != nil {
		return types.Customer{}, fmt.Errorf("querying customer: %w", err)
	}
	if tierID.Valid {
		id := int(tierID.Int64)
		c.TierID = &id
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT channel, last_contacted_ms FROM touchpoints WHERE customer_id = ?`), customerID)
	if err != nil {
		return types.Customer{}, fmt.Errorf("querying touchpoints: %w", err)
	}
	defer rows.Close()

	c.Touchpoints = make(map[types.Channel]types.TouchpointRecord)
	for rows.Next() {
		var ch string
		var ms int64
		if err := rows.Scan(&ch, &ms); err != nil {
			return types.Customer{}, fmt.Errorf("scanning touchpoint: %w", err)
		}
		at := time.UnixMilli(ms).UTC()
		c.Touchpoints[types.Channel(ch)] = types.TouchpointRecord{
			CustomerID: customerID, Channel: types.Channel(ch), LastContactedAt: &at,
		}
	}
	return c, rows.Err()
}

func (s *SQLStore) PutCustomer(ctx context.Context, customerID, displayName string) error {
	nowMs := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO customers (id, display_name, created_ms, updated_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_ms = excluded.updated_ms`),
		customerID, displayName, nowMs, nowMs)
	if err != nil {
		return fmt.Errorf("upserting customer %s: %w", customerID, err)
	}
	return nil
}

func (s *SQLStore) CustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM customers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning customer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) CountByTier(ctx context.Context, tierID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COUNT(*) FROM customers WHERE tier_id = ?`), tierID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting tier %d references: %w", tierID, err)
	}
	return n, nil
}
