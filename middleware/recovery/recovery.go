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

// Package recovery provides middleware that turns handler panics into
// internal server errors.
//
// The panic is logged with a stack trace and returned to the caller as an
// [errors.InternalServerError], so the application's exception handlers
// render the response and the request's teardown still runs.
//
//	recovery.New(recovery.WithLogger(logger))
package recovery

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"

	"golang.org/x/term"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

// Option defines functional options for recovery middleware configuration.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	stackTrace  bool
	stackSize   int
	prettyStack *bool
	stderr      *os.File
	handler     func(req *connection.Request, recovered any) error
}

func defaultConfig() *config {
	return &config{
		logger:     slog.Default(),
		stackTrace: true,
		stackSize:  4 << 10,
		stderr:     os.Stderr,
	}
}

// WithoutLogging disables panic logging.
func WithoutLogging() Option {
	return func(cfg *config) {
		cfg.logger = nil
	}
}

// WithLogger sets the logger used for panic records.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithHandler replaces the error returned for a recovered panic.
func WithHandler(handler func(req *connection.Request, recovered any) error) Option {
	return func(cfg *config) {
		cfg.handler = handler
	}
}

// WithStackTrace enables or disables stack trace capture.
// Default: true
func WithStackTrace(enabled bool) Option {
	return func(cfg *config) {
		cfg.stackTrace = enabled
	}
}

// WithStackSize sets the maximum size of the logged stack trace in bytes.
// Default: 4KB
func WithStackSize(size int) Option {
	return func(cfg *config) {
		cfg.stackSize = size
	}
}

// WithPrettyStack forces the stack trace to be printed to stderr (true) or
// never printed there (false). By default it is printed when stderr is a
// terminal.
func WithPrettyStack(enabled bool) Option {
	return func(cfg *config) {
		cfg.prettyStack = &enabled
	}
}

// New returns a middleware that recovers from panics in downstream handlers.
func New(opts ...Option) router.Middleware {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	pretty := cfg.prettyStack != nil && *cfg.prettyStack
	if cfg.prettyStack == nil && cfg.stderr != nil {
		pretty = term.IsTerminal(int(cfg.stderr.Fd()))
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) (err error) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				// http.ErrAbortHandler asks the server to drop the connection.
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				cfg.log(req, recovered, pretty)
				if cfg.handler != nil {
					err = cfg.handler(req, recovered)
					return
				}
				cause, ok := recovered.(error)
				if !ok {
					cause = fmt.Errorf("%v", recovered)
				}
				err = kerrors.NewInternalServerError(fmt.Errorf("panic: %w", cause))
			}()
			return next(w, req)
		}
	}
}

func (cfg *config) log(req *connection.Request, recovered any, pretty bool) {
	var stack []byte
	if cfg.stackTrace {
		stack = debug.Stack()
		if pretty && cfg.stderr != nil {
			fmt.Fprintf(cfg.stderr, "panic: %v\n\n%s\n", recovered, stack)
		}
		if cfg.stackSize > 0 && len(stack) > cfg.stackSize {
			stack = stack[:cfg.stackSize]
		}
	}
	if cfg.logger == nil {
		return
	}
	attrs := []any{
		"panic", fmt.Sprint(recovered),
		"method", req.Method(),
		"path", req.Path(),
	}
	if req.RoutePath != "" {
		attrs = append(attrs, "route", req.RoutePath)
	}
	if stack != nil {
		attrs = append(attrs, "stack", string(stack))
	}
	cfg.logger.ErrorContext(req.Context(), "panic recovered", attrs...)
}
