package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake/internal/platform/config"
	dErrors "keepsake/pkg/domain-errors"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, []Tier{TierFree, TierLifetime, TierPremium}, c.Tiers())

	free, err := c.Lookup(TierFree)
	require.NoError(t, err)
	assert.Equal(t, Limits{DecryptionLimit: 1, HeartbeatFrequencyDays: 90, GracePeriodDays: 7}, free)

	empty, err := c.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, free, empty)
}

func TestLookup_UnknownTier(t *testing.T) {
	_, err := DefaultCatalog().Lookup("platinum")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(map[string]config.PlanConfig{
		"free": {DecryptionLimit: 2, BonusDecryptions: 1, HeartbeatFrequencyDays: 30, GracePeriodDays: 3},
	})
	require.NoError(t, err)
	l, err := c.Lookup(TierFree)
	require.NoError(t, err)
	assert.Equal(t, 2, l.DecryptionLimit)
	assert.Equal(t, 1, l.BonusDecryptions)

	_, err = NewCatalog(nil)
	assert.Error(t, err)
}
