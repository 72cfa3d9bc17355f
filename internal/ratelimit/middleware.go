package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"keepsake/pkg/platform/httputil"
	"keepsake/pkg/requestcontext"
)

type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

// New returns a limiter allowing limit requests per client IP in any window.
// A non-positive limit disables it.
func New(store Store, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerIP rejects a client once it exceeds the limit. It must run after the
// client metadata middleware. Store failures let the request through. A nil
// Middleware passes everything.
func (m *Middleware) PerIP(next http.Handler) http.Handler {
	if m == nil || m.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			next.ServeHTTP(w, r)
			return
		}

		res, err := m.store.Allow(ctx, ip, m.limit, m.window)
		if err != nil {
			m.logger.WarnContext(ctx, "rate limit check failed", "ip", ip, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			h.Set("Retry-After", strconv.Itoa(res.RetryAfter(m.now())))
			m.logger.InfoContext(ctx, "public request rate limited",
				"ip", ip,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests; try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
