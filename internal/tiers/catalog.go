package tiers

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/followup/internal/types"
)

// DefaultCatalog is the built-in five-tier catalog.
//
//go:embed catalog.cue
var DefaultCatalog []byte

type catalogRule struct {
	FrequencyDays int  `json:"frequency_days"`
	LeadDays      *int `json:"lead_days,omitempty"`
}

type catalogTier struct {
	ID            int                    `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Cadence       map[string]catalogRule `json:"cadence"`
	Qualification struct {
		MinAnnualValueCents int64  `json:"min_annual_value_cents"`
		MinAnnualOrders     int    `json:"min_annual_orders"`
		Expression          string `json:"expression,omitempty"`
	} `json:"qualification"`
}

// LoadCatalog compiles a CUE tier catalog and returns its tiers in declaration
// order. The source must define a concrete top-level "tiers" list. Every tier
// is also checked with Validate, so a catalog that passes here will be
// accepted by UpsertTier.
func LoadCatalog(src []byte, filename string) ([]types.Tier, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}

	list := v.LookupPath(cue.ParsePath("tiers"))
	if !list.Exists() {
		return nil, fmt.Errorf("%s: no top-level tiers field", filename)
	}
	if err := list.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	var raw []catalogTier
	if err := list.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}

	seen := make(map[int]bool, len(raw))
	out := make([]types.Tier, 0, len(raw))
	for _, rt := range raw {
		if seen[rt.ID] {
			return nil, fmt.Errorf("%s: duplicate tier id %d", filename, rt.ID)
		}
		seen[rt.ID] = true

		t := types.Tier{
			ID:          rt.ID,
			Name:        rt.Name,
			Description: rt.Description,
			Cadence:     make(map[types.Channel]types.ChannelRule, len(rt.Cadence)),
			Qualification: types.Qualification{
				MinAnnualValue:  types.Money{AmountCents: rt.Qualification.MinAnnualValueCents, Currency: "USD"},
				MinAnnualOrders: rt.Qualification.MinAnnualOrders,
				Expression:      rt.Qualification.Expression,
			},
		}
		for ch, r := range rt.Cadence {
			t.Cadence[types.Channel(ch)] = types.ChannelRule{FrequencyDays: r.FrequencyDays, LeadDays: r.LeadDays}
		}
		if err := Validate(t); err != nil {
			return nil, fmt.Errorf("%s: tier %d: %w", filename, t.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}
