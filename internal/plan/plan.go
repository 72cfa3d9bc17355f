// Package plan maps subscription tiers to decryption quotas and default
// liveness timers. Billing lives elsewhere; this is a read-only catalog.
package plan

import (
	"fmt"
	"sort"

	"keepsake/internal/platform/config"
	dErrors "keepsake/pkg/domain-errors"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierPremium  Tier = "premium"
	TierLifetime Tier = "lifetime"
)

type Limits struct {
	DecryptionLimit        int
	BonusDecryptions       int
	HeartbeatFrequencyDays int
	GracePeriodDays        int
}

type Catalog struct {
	tiers map[Tier]Limits
}

func NewCatalog(plans map[string]config.PlanConfig) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	tiers := make(map[Tier]Limits, len(plans))
	for name, p := range plans {
		tiers[Tier(name)] = Limits{
			DecryptionLimit:        p.DecryptionLimit,
			BonusDecryptions:       p.BonusDecryptions,
			HeartbeatFrequencyDays: p.HeartbeatFrequencyDays,
			GracePeriodDays:        p.GracePeriodDays,
		}
	}
	return &Catalog{tiers: tiers}, nil
}

// DefaultCatalog is the built-in tier table from config.Default.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(config.Default().Plans)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the limits for tier. An empty tier means free.
func (c *Catalog) Lookup(tier Tier) (Limits, error) {
	if tier == "" {
		tier = TierFree
	}
	l, ok := c.tiers[tier]
	if !ok {
		return Limits{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown plan %q", tier))
	}
	return l, nil
}

func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
