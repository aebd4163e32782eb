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

package app

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rivaas.dev/keel/binding"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/logging"
	"rivaas.dev/keel/middleware/accesslog"
	"rivaas.dev/keel/middleware/compression"
	"rivaas.dev/keel/middleware/metrics"
	"rivaas.dev/keel/middleware/ratelimit"
	"rivaas.dev/keel/middleware/requestid"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

// Option configures an [App] during [New].
type Option func(*config)

type config struct {
	settings settings.Settings

	routes            []router.Node
	middleware        []router.Middleware
	dependencies      map[string]*inject.Dependency
	exceptionHandlers router.ExceptionHandlers

	logger      *logging.Logger
	formatter   kerrors.Formatter
	templates   response.TemplateEngine
	transformer []binding.Option
	upgrader    *websocket.Upgrader
	maxBodySize int64

	requestID   []requestid.Option
	useRequest  bool
	compression []compression.Option
	compress    bool
	rateLimit   []ratelimit.Option
	limit       bool
	accessLog   []accesslog.Option
	logAccess   bool
	metrics     *metrics.Recorder
	metricsPath string

	server       serverConfig
	bannerOutput io.Writer
	quiet        bool
}

type serverConfig struct {
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
}

func defaultConfig() *config {
	return &config{
		settings:    settings.Defaults(),
		maxBodySize: 32 << 20,
		server: serverConfig{
			readHeaderTimeout: 10 * time.Second,
			idleTimeout:       60 * time.Second,
			shutdownTimeout:   30 * time.Second,
		},
	}
}

func (c *config) validate() *ValidationError {
	ve := &ValidationError{}
	ve.AddError("settings", c.settings.Validate())
	if c.maxBodySize < 0 {
		ve.Add(newFieldError("max_body_size", c.maxBodySize, "must not be negative", "min: 0"))
	}
	if c.server.shutdownTimeout <= 0 {
		ve.Add(newFieldError("server.shutdown_timeout", c.server.shutdownTimeout, "must be positive", "min: 1ns"))
	}
	for name, d := range c.dependencies {
		if d == nil {
			ve.Add(newInvalidValueError("dependencies", name, "dependency is nil"))
		}
	}
	if c.metrics != nil && c.metricsPath != "" && c.metricsPath[0] != '/' {
		ve.Add(newInvalidValueError("metrics_path", c.metricsPath, `must start with "/"`))
	}
	return ve
}

// WithSettings replaces the defaults with s, typically the result of
// [settings.Load].
//
// Example:
//
//	s, err := settings.Load("keel.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := app.New(app.WithSettings(*s))
func WithSettings(s settings.Settings) Option {
	return func(c *config) {
		c.settings = s
	}
}

// WithRoutes appends nodes to the top level of the route tree.
func WithRoutes(nodes ...router.Node) Option {
	return func(c *config) {
		c.routes = append(c.routes, nodes...)
	}
}

// WithMount mounts an opaque handler under path. It is matched for HTTP and
// websocket requests and never appears in the OpenAPI document.
//
// Example:
//
//	app.New(app.WithMount("/metrics", rec.Handler()))
func WithMount(path string, h http.Handler, opts ...router.Option) Option {
	return func(c *config) {
		c.routes = append(c.routes, router.Mount(path, h, opts...))
	}
}

// WithMiddleware appends app-level middleware after the middleware of the
// settings. App-level middleware runs before routing.
func WithMiddleware(mw ...router.Middleware) Option {
	return func(c *config) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithDependency registers a dependency on the root layer, visible to every
// route.
func WithDependency(name string, d *inject.Dependency) Option {
	return func(c *config) {
		if c.dependencies == nil {
			c.dependencies = map[string]*inject.Dependency{}
		}
		c.dependencies[name] = d
	}
}

// WithExceptionHandler registers an application-level exception handler. It
// is consulted after the handlers of the route tree.
//
// Example:
//
//	app.WithExceptionHandler(router.ForError[*store.ConflictError](),
//	    func(req *connection.Request, err error) (*response.Response, error) {
//	        body := map[string]string{"detail": err.Error()}
//	        return response.JSON{Content: body}.Build(nil, http.StatusConflict)
//	    })
func WithExceptionHandler(key router.ExceptionKey, h router.ExceptionHandler) Option {
	return func(c *config) {
		if c.exceptionHandlers == nil {
			c.exceptionHandlers = router.ExceptionHandlers{}
		}
		c.exceptionHandlers[key] = h
	}
}

// WithLogger sets the application logger. Without it, a JSON logger writing
// to stderr is built from the settings.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithFormatter sets the formatter of errors no exception handler took.
// The default is [kerrors.NewSimple] in the settings' debug mode.
func WithFormatter(f kerrors.Formatter) Option {
	return func(c *config) {
		c.formatter = f
	}
}

// WithTemplates sets the engine rendering [response.Template] results.
// It takes precedence over the template_config settings.
func WithTemplates(engine response.TemplateEngine) Option {
	return func(c *config) {
		c.templates = engine
	}
}

// WithTransformerOptions configures parameter binding.
func WithTransformerOptions(opts ...binding.Option) Option {
	return func(c *config) {
		c.transformer = append(c.transformer, opts...)
	}
}

// WithUpgrader sets the websocket upgrader used for every websocket route.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(c *config) {
		c.upgrader = u
	}
}

// WithMaxBodySize limits request bodies read by binding. Zero disables the
// limit. The default is 32 MiB.
func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		c.maxBodySize = n
	}
}

// WithRequestID adds the request id middleware right after panic recovery.
func WithRequestID(opts ...requestid.Option) Option {
	return func(c *config) {
		c.useRequest = true
		c.requestID = opts
	}
}

// WithAccessLog logs every request through the application logger, after
// the request id is assigned.
func WithAccessLog(opts ...accesslog.Option) Option {
	return func(c *config) {
		c.logAccess = true
		c.accessLog = opts
	}
}

// WithRateLimit limits the request rate of each client. Rejected requests
// fail with 429 before routing, so app-level exception handlers see them.
//
// Example:
//
//	app.WithRateLimit(ratelimit.WithRequestsPerSecond(20), ratelimit.WithSkipPaths("/health"))
func WithRateLimit(opts ...ratelimit.Option) Option {
	return func(c *config) {
		c.limit = true
		c.rateLimit = opts
	}
}

// WithCompression adds response compression to the app-level middleware.
func WithCompression(opts ...compression.Option) Option {
	return func(c *config) {
		c.compress = true
		c.compression = opts
	}
}

// WithMetrics records request metrics with rec. A non-empty path mounts the
// Prometheus scrape handler there.
//
// Example:
//
//	app.New(app.WithMetrics(metrics.New(), "/metrics"))
func WithMetrics(rec *metrics.Recorder, path string) Option {
	return func(c *config) {
		c.metrics = rec
		c.metricsPath = path
	}
}

// WithBannerOutput sets where [App.Start] prints the startup banner.
// The default is stdout.
func WithBannerOutput(w io.Writer) Option {
	return func(c *config) {
		c.bannerOutput = w
	}
}

// WithoutBanner disables the startup banner.
func WithoutBanner() Option {
	return func(c *config) {
		c.quiet = true
	}
}

// ServerOption configures the server run by [App.Start].
type ServerOption func(*serverConfig)

// WithServerConfig applies server options.
//
// Example:
//
//	app.New(
//	    app.WithServerConfig(
//	        app.WithReadTimeout(10*time.Second),
//	        app.WithShutdownTimeout(5*time.Second),
//	    ),
//	)
func WithServerConfig(opts ...ServerOption) Option {
	return func(c *config) {
		for _, opt := range opts {
			opt(&c.server)
		}
	}
}

// WithReadTimeout sets how long the server waits to read an entire request.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(sc *serverConfig) {
		sc.readTimeout = d
	}
}

// WithReadHeaderTimeout sets how long the server waits to read request headers.
func WithReadHeaderTimeout(d time.Duration) ServerOption {
	return func(sc *serverConfig) {
		sc.readHeaderTimeout = d
	}
}

// WithWriteTimeout sets how long the server waits to write a response.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(sc *serverConfig) {
		sc.writeTimeout = d
	}
}

// WithIdleTimeout sets how long keep-alive connections wait for the next request.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(sc *serverConfig) {
		sc.idleTimeout = d
	}
}

// WithShutdownTimeout bounds graceful shutdown, including shutdown hooks.
// The default is 30 seconds.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(sc *serverConfig) {
		sc.shutdownTimeout = d
	}
}
