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

// Package cors provides cross-origin resource sharing middleware.
//
// Preflight requests (OPTIONS with Origin and Access-Control-Request-Method)
// are answered directly; other requests from an allowed origin get the
// Access-Control-Allow-* response headers.
//
//	cors.New(
//	    cors.WithAllowedOrigins("https://app.example.com"),
//	    cors.WithAllowCredentials(true),
//	)
package cors

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

// Option defines functional options for CORS middleware configuration.
type Option func(*config)

type config struct {
	allowedOrigins   []string
	allowAllOrigins  bool
	allowedMethods   []string
	allowedHeaders   []string
	exposedHeaders   []string
	allowCredentials bool
	maxAge           int
	allowOriginFunc  func(origin string) bool
}

func defaultConfig() *config {
	return &config{
		allowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		allowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		maxAge:         600,
	}
}

// WithAllowedOrigins sets the list of allowed origins. "*" allows every
// origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *config) {
		cfg.allowedOrigins = nil
		cfg.allowAllOrigins = false
		for _, o := range origins {
			if o == "*" {
				cfg.allowAllOrigins = true
				continue
			}
			cfg.allowedOrigins = append(cfg.allowedOrigins, o)
		}
	}
}

// WithAllowAllOrigins allows all origins.
func WithAllowAllOrigins(allow bool) Option {
	return func(cfg *config) {
		cfg.allowAllOrigins = allow
	}
}

// WithAllowedMethods sets the list of allowed HTTP methods.
func WithAllowedMethods(methods ...string) Option {
	return func(cfg *config) {
		cfg.allowedMethods = methods
	}
}

// WithAllowedHeaders sets the list of allowed request headers. "*" allows
// whatever the preflight asks for.
func WithAllowedHeaders(headers ...string) Option {
	return func(cfg *config) {
		cfg.allowedHeaders = headers
	}
}

// WithExposedHeaders sets the list of headers exposed to the client.
func WithExposedHeaders(headers ...string) Option {
	return func(cfg *config) {
		cfg.exposedHeaders = headers
	}
}

// WithAllowCredentials enables credentials. The allowed origin is then
// echoed instead of "*".
func WithAllowCredentials(allow bool) Option {
	return func(cfg *config) {
		cfg.allowCredentials = allow
	}
}

// WithMaxAge sets the preflight cache duration in seconds.
// Default: 600
func WithMaxAge(seconds int) Option {
	return func(cfg *config) {
		cfg.maxAge = seconds
	}
}

// WithAllowOriginFunc validates origins dynamically. It is consulted when
// the origin is not in the allowed list.
func WithAllowOriginFunc(fn func(origin string) bool) Option {
	return func(cfg *config) {
		cfg.allowOriginFunc = fn
	}
}

// FromSettings converts a settings CORS configuration into options.
func FromSettings(c *settings.CORSConfig) []Option {
	opts := []Option{
		WithAllowedOrigins(c.AllowOrigins...),
		WithAllowCredentials(c.AllowCredentials),
	}
	if len(c.AllowMethods) > 0 {
		opts = append(opts, WithAllowedMethods(c.AllowMethods...))
	}
	if len(c.AllowHeaders) > 0 {
		opts = append(opts, WithAllowedHeaders(c.AllowHeaders...))
	}
	if len(c.ExposeHeaders) > 0 {
		opts = append(opts, WithExposedHeaders(c.ExposeHeaders...))
	}
	if c.MaxAge > 0 {
		opts = append(opts, WithMaxAge(int(c.MaxAge.Seconds())))
	}
	return opts
}

// New returns the CORS middleware.
func New(opts ...Option) router.Middleware {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	methods := strings.Join(cfg.allowedMethods, ", ")
	headers := strings.Join(cfg.allowedHeaders, ", ")
	exposed := strings.Join(cfg.exposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.maxAge)
	anyHeader := slices.Contains(cfg.allowedHeaders, "*")

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) error {
			origin := req.Header().Get("Origin")
			if origin == "" {
				return next(w, req)
			}
			allowed := cfg.originAllowed(origin)
			h := w.Header()
			h.Add("Vary", "Origin")

			preflight := req.Method() == http.MethodOptions && req.Header().Get("Access-Control-Request-Method") != ""
			if preflight {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				method := req.Header().Get("Access-Control-Request-Method")
				if !allowed || !slices.Contains(cfg.allowedMethods, method) {
					http.Error(w, "Disallowed CORS request", http.StatusBadRequest)
					return nil
				}
				cfg.setOrigin(h, origin)
				h.Set("Access-Control-Allow-Methods", methods)
				if requested := req.Header().Get("Access-Control-Request-Headers"); anyHeader && requested != "" {
					h.Set("Access-Control-Allow-Headers", requested)
				} else if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				if cfg.maxAge > 0 {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusOK)
				return nil
			}

			if allowed {
				cfg.setOrigin(h, origin)
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			}
			return next(w, req)
		}
	}
}

func (cfg *config) originAllowed(origin string) bool {
	if cfg.allowAllOrigins || slices.Contains(cfg.allowedOrigins, origin) {
		return true
	}
	return cfg.allowOriginFunc != nil && cfg.allowOriginFunc(origin)
}

func (cfg *config) setOrigin(h http.Header, origin string) {
	if cfg.allowAllOrigins && !cfg.allowCredentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	if cfg.allowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
