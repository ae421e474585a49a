package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/types"
)

func TestSeedTiers_FillsEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	reg := tiers.NewRegistry(tiers.NewMemoryStore(), nil, nil)

	n, err := SeedTiers(ctx, reg, tiers.DefaultCatalog, "catalog.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	list, err := reg.ListTiers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	n, err = SeedTiers(ctx, reg, tiers.DefaultCatalog, "catalog.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSeedTiers_SkipsPopulatedRegistry(t *testing.T) {
	ctx := context.Background()
	reg := tiers.NewRegistry(tiers.NewMemoryStore(), nil, nil)
	custom := types.Tier{
		ID:      3,
		Name:    "Custom",
		Cadence: map[types.Channel]types.ChannelRule{types.ChannelEmail: {FrequencyDays: 7}},
	}
	require.NoError(t, reg.UpsertTier(ctx, custom))

	n, err := SeedTiers(ctx, reg, tiers.DefaultCatalog, "catalog.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := reg.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Custom", list[0].Name)
}

func TestSeedTiers_DeletedTierStaysDeleted(t *testing.T) {
	ctx := context.Background()
	reg := tiers.NewRegistry(tiers.NewMemoryStore(), nil, nil)
	_, err := SeedTiers(ctx, reg, tiers.DefaultCatalog, "catalog.cue", nil)
	require.NoError(t, err)
	require.NoError(t, reg.DeleteTier(ctx, 2))

	n, err := SeedTiers(ctx, reg, tiers.DefaultCatalog, "catalog.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = reg.GetTier(ctx, 2)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSeedTiers_BadCatalog(t *testing.T) {
	reg := tiers.NewRegistry(tiers.NewMemoryStore(), nil, nil)
	_, err := SeedTiers(context.Background(), reg, []byte(`tiers: [{id: "x"`), "bad.cue", nil)
	assert.Error(t, err)
}
