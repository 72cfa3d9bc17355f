//go:build integration

package anomaly_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake/internal/release/anomaly"
	"keepsake/pkg/testutil/containers"
)

func TestRedisCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	r := containers.NewRedisContainer(t)
	c := anomaly.NewRedisCounter(r.Client)

	for i := int64(1); i <= 3; i++ {
		n, err := c.Incr(ctx, "203.0.113.9", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	ttl, err := r.Client.TTL(ctx, "keepsake:decrypt_failures:203.0.113.9").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second, "later increments do not extend the window")
	assert.LessOrEqual(t, ttl, time.Minute)

	tr := anomaly.New(c, 4, time.Minute)
	res, err := tr.RecordFailure(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.Crossed)
}
