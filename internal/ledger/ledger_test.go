package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	db, d, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    NewSQLStore(db, d),
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, l *Ledger)) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, New(s, clock.NewFixed(now)))
		})
	}
}

func TestRecordContact_CreatesCustomerLazily(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		at := now.Add(-48 * time.Hour)
		require.NoError(t, l.RecordContact(ctx, "acme", types.ChannelVisit, at))

		got, ok, err := l.GetLastContact(ctx, "acme", types.ChannelVisit)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, at.Equal(got))

		_, ok, err = l.GetLastContact(ctx, "acme", types.ChannelEmail)
		require.NoError(t, err)
		assert.False(t, ok, "other channels stay never-contacted")

		_, assigned, err := l.GetTierAssignment(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, assigned)
	})
}

func TestRecordContact_KeepsLatestOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		newer := now.Add(-time.Hour)
		older := now.Add(-72 * time.Hour)
		require.NoError(t, l.RecordContact(ctx, "acme", types.ChannelPhone, newer))
		require.NoError(t, l.RecordContact(ctx, "acme", types.ChannelPhone, older))

		got, _, err := l.GetLastContact(ctx, "acme", types.ChannelPhone)
		require.NoError(t, err)
		assert.True(t, newer.Equal(got))
	})
}

func TestRecordContact_RejectsFuture(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		err := l.RecordContact(ctx, "acme", types.ChannelEmail, now.Add(time.Second))
		var ite *apperr.InvalidTimeError
		require.ErrorAs(t, err, &ite)

		_, _, err = l.GetLastContact(ctx, "acme", types.ChannelEmail)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "rejected write must not create the customer")

		assert.NoError(t, l.RecordContact(ctx, "acme", types.ChannelEmail, now), "now itself is not in the future")
	})
}

func TestRecordContact_RejectsUnknownChannel(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		err := l.RecordContact(context.Background(), "acme", "fax", now)
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestRecordContact_RejectsZeroTime(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		err := l.RecordContact(ctx, "acme", types.ChannelVisit, time.Time{})
		assert.True(t, apperr.IsValidation(err))

		_, _, err = l.GetLastContact(ctx, "acme", types.ChannelVisit)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "rejected write must not create the customer")

		require.NoError(t, l.UpsertCustomer(ctx, "acme", "Acme"))
		require.Error(t, l.RecordContact(ctx, "acme", types.ChannelVisit, time.Time{}))
		_, ok, err := l.GetLastContact(ctx, "acme", types.ChannelVisit)
		require.NoError(t, err)
		assert.False(t, ok, "channel stays never contacted")
	})
}

func TestGetLastContact_UnknownCustomer(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		_, _, err := l.GetLastContact(context.Background(), "ghost", types.ChannelVisit)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestAssignTier_AndCount(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.UpsertCustomer(ctx, "a", "Acme"))
		require.NoError(t, l.UpsertCustomer(ctx, "b", "Bolt"))
		require.NoError(t, l.UpsertCustomer(ctx, "c", "Crux"))

		three := 3
		require.NoError(t, l.AssignTier(ctx, "a", &three))
		require.NoError(t, l.AssignTier(ctx, "b", &three))

		id, ok, err := l.GetTierAssignment(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, id)

		n, err := l.CountByTier(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, l.AssignTier(ctx, "b", nil))
		n, err = l.CountByTier(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.ErrorIs(t, l.AssignTier(ctx, "ghost", &three), apperr.ErrNotFound)

		ids, err := l.ListCustomerIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})
}

func TestGetCustomer_Snapshot(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.UpsertCustomer(ctx, "a", "Acme"))
		two := 2
		require.NoError(t, l.AssignTier(ctx, "a", &two))
		at := now.Add(-24 * time.Hour)
		require.NoError(t, l.RecordContact(ctx, "a", types.ChannelMessage, at))

		c, err := l.GetCustomer(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Acme", c.DisplayName)
		require.NotNil(t, c.TierID)
		assert.Equal(t, 2, *c.TierID)
		require.Contains(t, c.Touchpoints, types.ChannelMessage)
		assert.True(t, at.Equal(*c.Touchpoints[types.ChannelMessage].LastContactedAt))

		_, err = l.GetCustomer(ctx, "ghost")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
