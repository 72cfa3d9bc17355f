// Package anomaly counts failed decryptions per client IP in a time window and
// reports when a client crosses the alert threshold. Counts live in Redis when
// it is configured, with an in-process fallback while Redis is unhealthy.
package anomaly

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"keepsake/pkg/platform/circuit"
)

const keyPrefix = "keepsake:decrypt_failures:"

// Counter increments a windowed counter. The window starts at the first
// increment of a key.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr runs INCR and EXPIRE NX in one transaction so a key never outlives
// its window.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := keyPrefix + key
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// maxMemoryKeys bounds the fallback map; expired keys are pruned past it.
const maxMemoryKeys = 10_000

type window struct {
	count   int64
	expires time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: make(map[string]*window), now: now}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, d time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	w, ok := c.windows[key]
	if !ok || !now.Before(w.expires) {
		if len(c.windows) >= maxMemoryKeys {
			c.prune(now)
		}
		w = &window{expires: now.Add(d)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (c *MemoryCounter) prune(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.expires) {
			delete(c.windows, k)
		}
	}
}

// Result is the failure count for a client within the current window.
// Crossed is true exactly once per window, on the failure that reaches the
// threshold.
type Result struct {
	Count   int64
	Crossed bool
}

type Tracker struct {
	primary   Counter
	fallback  *MemoryCounter
	breaker   *circuit.Breaker
	threshold int64
	window    time.Duration
	logger    *slog.Logger
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.fallback = NewMemoryCounter(now) }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(t *Tracker) { t.breaker = b }
}

// New builds a tracker. primary may be nil, in which case only the in-process
// counter is used.
func New(primary Counter, threshold int, window time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		primary:   primary,
		fallback:  NewMemoryCounter(nil),
		breaker:   circuit.New("anomaly-redis"),
		threshold: int64(threshold),
		window:    window,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordFailure counts one failed attempt from ip.
func (t *Tracker) RecordFailure(ctx context.Context, ip string) (Result, error) {
	if ip == "" || t.threshold <= 0 {
		return Result{}, nil
	}
	n, err := t.incr(ctx, ip)
	if err != nil {
		return Result{}, err
	}
	return Result{Count: n, Crossed: n == t.threshold}, nil
}

func (t *Tracker) incr(ctx context.Context, key string) (int64, error) {
	if t.primary == nil {
		return t.fallback.Incr(ctx, key, t.window)
	}

	n, err := t.primary.Incr(ctx, key, t.window)
	if err != nil {
		if _, change := t.breaker.RecordFailure(); change.Opened {
			t.logger.WarnContext(ctx, "anomaly counter degraded to memory",
				"breaker", t.breaker.Name(),
				"error", err,
			)
		}
		return t.fallback.Incr(ctx, key, t.window)
	}

	usePrimary, change := t.breaker.RecordSuccess()
	if change.Closed {
		t.logger.InfoContext(ctx, "anomaly counter recovered", "breaker", t.breaker.Name())
	}
	if !usePrimary {
		return t.fallback.Incr(ctx, key, t.window)
	}
	return n, nil
}
