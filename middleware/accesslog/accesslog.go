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

// Package accesslog writes one structured record per request.
//
// Records carry the method, path, matched route template, status, duration
// and size. Failed requests (4xx at warn, 5xx at error) and slow requests
// are always logged; other requests can be sampled deterministically by
// request id, so every replica makes the same decision for one request.
//
// An error returned by the handler is rendered outside the middleware
// chain; its record uses the status the error declares.
package accesslog

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/middleware/requestid"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
)

// Option configures the middleware.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	excludePaths    map[string]bool
	excludePrefixes []string
	slowThreshold   time.Duration
	errorsOnly      bool
	sampleRate      float64
}

// WithLogger sets the destination logger. Without one nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = logger }
}

// WithExcludePaths skips exact paths.
func WithExcludePaths(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			cfg.excludePaths[p] = true
		}
	}
}

// WithExcludePrefixes skips every path under the given prefixes.
func WithExcludePrefixes(prefixes ...string) Option {
	return func(cfg *config) { cfg.excludePrefixes = append(cfg.excludePrefixes, prefixes...) }
}

// WithSlowThreshold logs requests taking at least d at warn level, marked
// slow, regardless of sampling.
func WithSlowThreshold(d time.Duration) Option {
	return func(cfg *config) { cfg.slowThreshold = d }
}

// WithErrorsOnly logs only failed or slow requests.
func WithErrorsOnly() Option {
	return func(cfg *config) { cfg.errorsOnly = true }
}

// WithSampleRate keeps the given fraction of successful requests (0 to 1).
func WithSampleRate(rate float64) Option {
	return func(cfg *config) { cfg.sampleRate = min(max(rate, 0), 1) }
}

// New returns the access log middleware.
//
// Example:
//
//	app.WithMiddleware(accesslog.New(
//	    accesslog.WithLogger(logger.Logger()),
//	    accesslog.WithExcludePaths("/metrics"),
//	    accesslog.WithSlowThreshold(500*time.Millisecond),
//	))
func New(opts ...Option) router.Middleware {
	cfg := &config{excludePaths: map[string]bool{}, sampleRate: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		if cfg.logger == nil {
			return next
		}
		return func(w http.ResponseWriter, req *connection.Request) error {
			if cfg.skip(req.Path()) {
				return next(w, req)
			}
			rw := response.NewWriter(w)
			start := time.Now()
			err := next(rw, req)
			duration := time.Since(start)

			status := rw.Status()
			if !rw.Written() && err != nil {
				status = kerrors.StatusOf(err)
			}
			slow := cfg.slowThreshold > 0 && duration >= cfg.slowThreshold
			if status < http.StatusBadRequest && !slow && !cfg.keep(requestid.Get(req.Context())) {
				return err
			}

			attrs := []any{
				"method", req.Method(),
				"path", req.Path(),
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"bytes_sent", rw.Size(),
				"client_ip", clientIP(req.HTTP()),
				"user_agent", req.HTTP().UserAgent(),
			}
			if req.RoutePath != "" {
				attrs = append(attrs, "route", req.RoutePath)
			}
			if id := requestid.Get(req.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if slow {
				attrs = append(attrs, "slow", true)
			}

			ctx := req.Context()
			switch {
			case status >= http.StatusInternalServerError:
				cfg.logger.ErrorContext(ctx, "access", attrs...)
			case status >= http.StatusBadRequest, slow:
				cfg.logger.WarnContext(ctx, "access", attrs...)
			default:
				cfg.logger.InfoContext(ctx, "access", attrs...)
			}
			return err
		}
	}
}

func (cfg *config) skip(path string) bool {
	if cfg.excludePaths[path] {
		return true
	}
	for _, p := range cfg.excludePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// keep decides whether a successful request is logged.
func (cfg *config) keep(id string) bool {
	switch {
	case cfg.errorsOnly:
		return false
	case cfg.sampleRate >= 1, id == "":
		return true
	case cfg.sampleRate <= 0:
		return false
	}
	h := sha256.Sum256([]byte(id))
	return binary.BigEndian.Uint64(h[:8]) <= uint64(cfg.sampleRate*float64(^uint64(0)))
}

func clientIP(r *http.Request) string {
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i > 0 {
		return strings.Trim(r.RemoteAddr[:i], "[]")
	}
	return r.RemoteAddr
}
