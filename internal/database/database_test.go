package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	assert.Equal(t, Postgres, DialectFor("postgres://u:p@localhost/db"))
	assert.Equal(t, Postgres, DialectFor("postgresql://localhost/db"))
	assert.Equal(t, SQLite, DialectFor("file:followup.db"))
	assert.Equal(t, SQLite, DialectFor(":memory:"))
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", Postgres.Rebind(q))
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, d, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, SQLite, d)

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiers").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestCheckDrift(t *testing.T) {
	ctx := context.Background()
	db, d, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	cols, err := Columns(ctx, db, d, "touchpoints")
	require.NoError(t, err)
	assert.Equal(t, []string{"channel", "customer_id", "last_contacted_ms"}, cols)

	drift, err := CheckDrift(ctx, db, d, map[string][]string{
		"touchpoints": {"customer_id", "channel", "last_contacted_ms"},
	})
	require.NoError(t, err)
	assert.Empty(t, drift)

	drift, err = CheckDrift(ctx, db, d, map[string][]string{
		"touchpoints": {"customer_id", "channel", "last_contacted_ms", "note"},
		"widgets":     {"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"touchpoints.note: missing from database",
		"widgets: table missing",
	}, drift)

	drift, err = CheckDrift(ctx, db, d, map[string][]string{
		"customers": {"id", "display_name", "tier_id", "created_ms"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers.updated_ms: not in schema"}, drift)
}
