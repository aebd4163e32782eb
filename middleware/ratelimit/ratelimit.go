// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit limits how fast each client may send requests.
//
// Every key (the client IP by default) gets its own token bucket from
// golang.org/x/time/rate, refilled at the configured rate and holding at
// most the burst size. A request that finds the bucket empty fails with a
// 429 exception carrying Retry-After, so application exception handlers
// can render it. Buckets unused for the idle TTL are dropped.
//
//	a := app.MustNew(app.WithMiddleware(ratelimit.New(
//	    ratelimit.WithRequestsPerSecond(50),
//	    ratelimit.WithBurst(10),
//	)))
package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

// KeyFunc derives the bucket key of a request.
type KeyFunc func(req *connection.Request) string

// Option configures the middleware.
type Option func(*config)

type config struct {
	rps     float64
	burst   int
	key     KeyFunc
	skip    map[string]bool
	idleTTL time.Duration
	headers bool
	logger  *slog.Logger
	now     func() time.Time
}

// WithRequestsPerSecond sets the refill rate. Default: 100.
func WithRequestsPerSecond(rps float64) Option {
	return func(cfg *config) { cfg.rps = rps }
}

// WithBurst sets the bucket size. Default: 20.
func WithBurst(burst int) Option {
	return func(cfg *config) { cfg.burst = burst }
}

// WithKeyFunc replaces the per-IP key.
//
// Example:
//
//	ratelimit.WithKeyFunc(func(req *connection.Request) string {
//	    return req.Header().Get("X-API-Key")
//	})
func WithKeyFunc(fn KeyFunc) Option {
	return func(cfg *config) { cfg.key = fn }
}

// WithSkipPaths exempts exact request paths, such as health checks.
func WithSkipPaths(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			cfg.skip[p] = true
		}
	}
}

// WithIdleTTL sets how long an unused bucket is kept. Default: 5m.
func WithIdleTTL(ttl time.Duration) Option {
	return func(cfg *config) { cfg.idleTTL = ttl }
}

// WithoutHeaders stops the RateLimit-Limit and RateLimit-Remaining headers.
func WithoutHeaders() Option {
	return func(cfg *config) { cfg.headers = false }
}

// WithLogger logs rejected requests at warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = logger }
}

// ClientIP is the default key: the host part of the remote address.
func ClientIP(req *connection.Request) string {
	addr := req.HTTP().RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type store struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

// take consumes one token for key and returns whether it was available and
// the tokens left afterwards.
func (s *store) take(key string, now time.Time) (bool, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.ttl {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) >= s.ttl {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	return allowed, b.limiter.TokensAt(now)
}

// retryAfter returns the whole seconds until one token is available.
func (s *store) retryAfter(tokens float64) int {
	if s.limit <= 0 {
		return 1
	}
	wait := (1 - tokens) / float64(s.limit)
	return max(1, int(math.Ceil(wait)))
}

// New returns the rate limiting middleware.
func New(opts ...Option) router.Middleware {
	cfg := &config{
		rps:     100,
		burst:   20,
		key:     ClientIP,
		skip:    map[string]bool{},
		idleTTL: 5 * time.Minute,
		headers: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st := &store{
		buckets:   map[string]*bucket{},
		limit:     rate.Limit(cfg.rps),
		burst:     cfg.burst,
		ttl:       cfg.idleTTL,
		lastSweep: cfg.now(),
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) error {
			if cfg.skip[req.Path()] {
				return next(w, req)
			}
			key := cfg.key(req)
			allowed, tokens := st.take(key, cfg.now())
			if cfg.headers {
				w.Header().Set("RateLimit-Limit", strconv.Itoa(cfg.burst))
				w.Header().Set("RateLimit-Remaining", strconv.Itoa(max(0, int(tokens))))
			}
			if allowed {
				return next(w, req)
			}

			retry := st.retryAfter(tokens)
			if cfg.logger != nil {
				cfg.logger.WarnContext(req.Context(), "rate limit exceeded",
					"key", key, "method", req.Method(), "path", req.Path(), "retry_after", retry)
			}
			exc := kerrors.NewHTTPException(http.StatusTooManyRequests, "")
			exc.Headers = http.Header{"Retry-After": []string{strconv.Itoa(retry)}}
			return exc
		}
	}
}
