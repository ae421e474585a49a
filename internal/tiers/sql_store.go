package tiers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/types"
)

// SQLStore implements Store on the tiers table. Cadence and qualification are
// kept as JSON text so the same schema works on SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Get(ctx context.Context, id int) (types.Tier, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, name, description, cadence, qualification FROM tiers WHERE id = ?`), id)
	t, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Tier{}, apperr.ErrNotFound
	}
	if err != nil {
		return types.Tier{}, fmt.Errorf("querying tier %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) List(ctx context.Context) ([]types.Tier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, cadence, qualification FROM tiers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying tiers: %w", err)
	}
	defer rows.Close()

	var out []types.Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Put(ctx context.Context, t types.Tier) error {
	cadenceJSON, err := json.Marshal(t.Cadence)
	if err != nil {
		return fmt.Errorf("encoding cadence: %w", err)
	}
	qualJSON, err := json.Marshal(t.Qualification)
	if err != nil {
		return fmt.Errorf("encoding qualification: %w", err)
	}
	nowMs := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO tiers (id, name, description, cadence, qualification, created_ms, updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			cadence = excluded.cadence,
			qualification = excluded.qualification,
			updated_ms = excluded.updated_ms`),
		t.ID, t.Name, t.Description, string(cadenceJSON), string(qualJSON), nowMs, nowMs)
	if err != nil {
		return fmt.Errorf("upserting tier %d: %w", t.ID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM tiers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting tier %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting tier %d: %w", id, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(r rowScanner) (types.Tier, error) {
	var t types.Tier
	var cadenceJSON, qualJSON string
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &cadenceJSON, &qualJSON); err != nil {
		return types.Tier{}, err
	}
	if err := json.Unmarshal([]byte(cadenceJSON), &t.Cadence); err != nil {
		return types.Tier{}, fmt.Errorf("decoding cadence: %w", err)
	}
	if t.Cadence == nil {
		t.Cadence = map[types.Channel]types.ChannelRule{}
	}
	if err := json.Unmarshal([]byte(qualJSON), &t.Qualification); err != nil {
		return types.Tier{}, fmt.Errorf("decoding qualification: %w", err)
	}
	return t, nil
}
