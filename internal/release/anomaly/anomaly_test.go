package anomaly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake/pkg/platform/circuit"
	"keepsake/pkg/testutil"
)

type failingCounter struct {
	calls int
	err   error
}

func (f *failingCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	f.calls++
	return 0, f.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTracker_CrossesThresholdOncePerWindow(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	tr := New(nil, 3, 15*time.Minute, WithClock(clock.Now), WithLogger(quiet()))

	var crossed []int64
	for range 5 {
		r, err := tr.RecordFailure(ctx, "203.0.113.9")
		require.NoError(t, err)
		if r.Crossed {
			crossed = append(crossed, r.Count)
		}
	}
	assert.Equal(t, []int64{3}, crossed)

	clock.Advance(15 * time.Minute)
	r, err := tr.RecordFailure(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Count, "window restarts")

	other, err := tr.RecordFailure(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Count, "clients are counted separately")
}

func TestTracker_FallsBackWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	primary := &failingCounter{err: errors.New("connection refused")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2))
	tr := New(primary, 10, time.Minute, WithBreaker(breaker), WithLogger(quiet()))

	for i := 1; i <= 3; i++ {
		r, err := tr.RecordFailure(ctx, "203.0.113.9")
		require.NoError(t, err)
		assert.Equal(t, int64(i), r.Count)
	}
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, 3, primary.calls, "primary keeps being probed")
}

func TestTracker_IgnoresUnknownClient(t *testing.T) {
	tr := New(nil, 1, time.Minute)
	r, err := tr.RecordFailure(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, r.Crossed)
}

func TestMemoryCounter_PrunesExpiredKeys(t *testing.T) {
	clock := testutil.FixedClock()
	c := NewMemoryCounter(clock.Now)
	for i := range maxMemoryKeys {
		_, err := c.Incr(context.Background(), string(rune(i)), time.Second)
		require.NoError(t, err)
	}
	clock.Advance(time.Second)
	_, err := c.Incr(context.Background(), "fresh", time.Second)
	require.NoError(t, err)
	assert.Len(t, c.windows, 1)
}
