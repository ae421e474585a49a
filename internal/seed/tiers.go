// Package seed loads the tier catalog into an empty registry on startup.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/types"
)

// TierRegistry is the part of tiers.Registry the seeder needs.
type TierRegistry interface {
	ListTiers(ctx context.Context) ([]types.Tier, error)
	UpsertTier(ctx context.Context, t types.Tier) error
}

// SeedTiers compiles catalog and writes its tiers into an empty registry. A
// registry that already holds any tier is left untouched, so operator edits
// and deletions survive restarts. It returns the number of tiers written.
func SeedTiers(ctx context.Context, reg TierRegistry, catalog []byte, filename string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	list, err := tiers.LoadCatalog(catalog, filename)
	if err != nil {
		return 0, err
	}

	existing, err := reg.ListTiers(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking tiers: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("tiers already seeded, skipping", zap.Int("count", len(existing)))
		return 0, nil
	}

	for i, t := range list {
		if err := reg.UpsertTier(ctx, t); err != nil {
			return i, fmt.Errorf("seeding tier %d: %w", t.ID, err)
		}
	}
	logger.Info("tiers seeded", zap.Int("created", len(list)), zap.String("catalog", filename))
	return len(list), nil
}
