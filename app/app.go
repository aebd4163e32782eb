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
	"context"
	"io"
	"maps"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"rivaas.dev/keel/binding"
	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/logging"
	"rivaas.dev/keel/middleware/accesslog"
	"rivaas.dev/keel/middleware/compression"
	"rivaas.dev/keel/middleware/cors"
	"rivaas.dev/keel/middleware/metrics"
	"rivaas.dev/keel/middleware/ratelimit"
	"rivaas.dev/keel/middleware/recovery"
	"rivaas.dev/keel/middleware/requestid"
	"rivaas.dev/keel/middleware/trustedhost"
	"rivaas.dev/keel/openapi"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

// App is an assembled application. It implements [http.Handler] and is safe
// for concurrent use.
type App struct {
	settings settings.Settings
	logger   *logging.Logger

	router      *router.Router
	transformer *binding.Transformer
	shaper      *response.Shaper
	formatter   kerrors.Formatter
	handlers    router.ExceptionHandlers
	upgrader    *websocket.Upgrader
	maxBody     int64
	blocking    *semaphore.Weighted

	// system serves exact paths outside the route table (the OpenAPI
	// document and its docs page).
	system map[string]http.Handler
	spec   *openapi.SpecHandler

	mu         sync.Mutex
	middleware []router.Middleware
	chain      atomic.Pointer[router.HandlerFunc]
	endpoints  sync.Map

	lifecycle lifecycle
	server    serverConfig
	banner    io.Writer
	quiet     bool
	metrics   *metrics.Recorder
}

// New assembles an application. Every configuration problem is collected;
// the returned error is a [*ValidationError] listing all of them.
func New(opts ...Option) (*App, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	ve := cfg.validate()
	s := cfg.settings

	logger := cfg.logger
	if logger == nil {
		l, err := logging.New(
			logging.WithJSONHandler(),
			logging.WithAppName(s.AppName),
			logging.WithAppVersion(s.Version),
			logging.WithDebugMode(s.Debug),
			logging.WithSecretValues(s.SecretKey),
		)
		if err != nil {
			ve.AddError("logger", err)
			l = logging.Nop()
		}
		logger = l
	}

	templates := cfg.templates
	if tc := s.TemplateConfig; templates == nil && tc != nil && tc.Directory != "" {
		engine, err := response.NewHTMLEngine(tc.Directory, nil, tc.Extensions...)
		if err != nil {
			ve.Add(&ConfigError{Field: "template_config.directory", Value: tc.Directory, Message: err.Error(), err: err})
		} else {
			templates = engine
		}
	}

	formatter := cfg.formatter
	if formatter == nil {
		formatter = kerrors.NewSimple(s.Debug)
	}

	limit := s.SyncHandlerLimit
	if limit <= 0 {
		limit = settings.Defaults().SyncHandlerLimit
	}

	a := &App{
		settings:    s,
		logger:      logger,
		transformer: binding.New(cfg.transformer...),
		shaper:      response.NewShaper(templates),
		formatter:   formatter,
		handlers:    exceptionHandlers(s.ExceptionHandlers, cfg.exceptionHandlers),
		upgrader:    cfg.upgrader,
		maxBody:     cfg.maxBodySize,
		blocking:    semaphore.NewWeighted(limit),
		system:      map[string]http.Handler{},
		server:      cfg.server,
		banner:      cfg.bannerOutput,
		quiet:       cfg.quiet,
		metrics:     cfg.metrics,
	}
	if a.banner == nil {
		a.banner = os.Stdout
	}
	a.lifecycle = lifecycle{
		startup:  s.OnStartup,
		shutdown: s.OnShutdown,
		lifespan: s.Lifespan,
	}

	a.router = router.New(a.nodes(cfg), rootOptions(s, cfg.dependencies)...)
	err := a.router.Build(router.BuildOptions{
		RedirectSlashes: s.RedirectSlashes,
		AllowBlocking:   s.EnableSyncHandlers,
	})
	ve.AddError("routes", err)

	if s.EnableOpenAPI {
		a.mountOpenAPI()
	}
	if err := ve.ToError(); err != nil {
		return nil, err
	}

	a.middleware = a.appMiddleware(cfg)
	a.rebuildChain()
	return a, nil
}

// MustNew is like [New] but panics on error.
func MustNew(opts ...Option) *App {
	a, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return a
}

func exceptionHandlers(layers ...router.ExceptionHandlers) router.ExceptionHandlers {
	merged := router.ExceptionHandlers{}
	for _, hs := range layers {
		maps.Copy(merged, hs)
	}
	return merged
}

// rootOptions turns the application-wide settings into options of the root
// layer, so they merge with the route tree like any other layer.
func rootOptions(s settings.Settings, deps map[string]*inject.Dependency) []router.Option {
	all := maps.Clone(s.Dependencies)
	if all == nil {
		all = map[string]*inject.Dependency{}
	}
	maps.Copy(all, deps)

	opts := []router.Option{
		router.WithDependencies(all),
		router.IncludeInSchema(s.IncludeInSchema),
	}
	if len(s.Interceptors) > 0 {
		opts = append(opts, router.WithInterceptors(s.Interceptors...))
	}
	if len(s.Permissions) > 0 {
		opts = append(opts, router.WithPermissions(s.Permissions...))
	}
	if s.ResponseClass != nil {
		opts = append(opts, router.WithResponseClass(s.ResponseClass))
	}
	if len(s.ResponseCookies) > 0 {
		opts = append(opts, router.WithResponseCookies(s.ResponseCookies...))
	}
	if len(s.ResponseHeaders) > 0 {
		opts = append(opts, router.WithResponseHeaders(s.ResponseHeaders))
	}
	if len(s.Tags) > 0 {
		opts = append(opts, router.WithTags(s.Tags...))
	}
	return opts
}

// nodes returns the user routes followed by the mounts the configuration asks for.
func (a *App) nodes(cfg *config) []router.Node {
	nodes := append([]router.Node(nil), cfg.routes...)
	if sf := a.settings.StaticFilesConfig; sf != nil && sf.Path != "" && sf.Directory != "" {
		nodes = append(nodes, staticFiles(sf))
	}
	if cfg.metrics != nil && cfg.metricsPath != "" {
		nodes = append(nodes, router.Mount(cfg.metricsPath, cfg.metrics.Handler(), router.WithName("metrics")))
	}
	return nodes
}

// appMiddleware returns the middleware wrapping routing, outermost first.
func (a *App) appMiddleware(cfg *config) []router.Middleware {
	s := a.settings
	mws := []router.Middleware{
		recovery.New(recovery.WithLogger(a.logger.Logger()), recovery.WithPrettyStack(s.Debug)),
	}
	if cfg.useRequest {
		mws = append(mws, requestid.New(cfg.requestID...))
	}
	if cfg.logAccess {
		mws = append(mws, accesslog.New(append([]accesslog.Option{accesslog.WithLogger(a.logger.Logger())}, cfg.accessLog...)...))
	}
	if cfg.metrics != nil {
		mws = append(mws, cfg.metrics.Middleware())
	}
	if len(s.AllowedHosts) > 0 {
		mws = append(mws, trustedhost.New(s.AllowedHosts...))
	}
	if c := s.CORS(); c != nil {
		mws = append(mws, cors.New(cors.FromSettings(c)...))
	}
	if cfg.limit {
		mws = append(mws, ratelimit.New(append([]ratelimit.Option{ratelimit.WithLogger(a.logger.Logger())}, cfg.rateLimit...)...))
	}
	if cfg.compress {
		mws = append(mws, compression.New(cfg.compression...))
	}
	mws = append(mws, s.Middleware...)
	return append(mws, cfg.middleware...)
}

func (a *App) rebuildChain() {
	h := chain(a.middleware, a.route)
	a.chain.Store(&h)
}

// chain wraps h so that mws[0] is outermost.
func chain(mws []router.Middleware, h router.HandlerFunc) router.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Use appends app-level middleware. It fails with [router.ErrFrozen] once
// the application has started.
func (a *App) Use(mw ...router.Middleware) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.router.Frozen() {
		return router.ErrFrozen
	}
	a.middleware = append(a.middleware, mw...)
	a.rebuildChain()
	return nil
}

// AddRoute adds node to the running application. The whole tree is
// validated again; on failure nothing changes.
func (a *App) AddRoute(node router.Node) error {
	if err := a.router.AddRoute(node); err != nil {
		return err
	}
	a.endpoints.Clear()
	if a.spec != nil {
		a.spec.Invalidate()
	}
	return nil
}

// Router returns the route table.
func (a *App) Router() *router.Router {
	return a.router
}

// Settings returns a copy of the application settings.
func (a *App) Settings() settings.Settings {
	return a.settings
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger {
	return a.logger
}

// URLPathFor builds the path of the route called name.
//
// Example:
//
//	path, err := a.URLPathFor("items:detail", map[string]any{"id": 42})
func (a *App) URLPathFor(name string, params map[string]any) (string, error) {
	return a.router.URLPathFor(name, params)
}

type ctxKey int

const (
	appKey ctxKey = iota
	matchKey
)

// matched records the route a request was routed to, for error dispatch.
type matched struct {
	route *router.Route
	rest  string
}

// FromContext returns the application serving the request of ctx.
func FromContext(ctx context.Context) (*App, bool) {
	a, ok := ctx.Value(appKey).(*App)
	return a, ok
}

// RouteFromContext returns the route matched for the request of ctx.
func RouteFromContext(ctx context.Context) (*router.Route, bool) {
	m, ok := ctx.Value(matchKey).(*matched)
	if !ok || m.route == nil {
		return nil, false
	}
	return m.route, true
}

// ServeHTTP implements [http.Handler].
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := response.NewWriter(w)
	req := connection.NewRequest(r, a.maxBody)
	ctx := context.WithValue(r.Context(), appKey, a)
	ctx = context.WithValue(ctx, matchKey, &matched{})
	req.WithContext(ctx)
	defer func() {
		if err := req.Close(); err != nil {
			a.logger.LogError(ctx, err, "request cleanup failed", "path", r.URL.Path)
		}
	}()

	h := *a.chain.Load()
	if err := h(rw, req); err != nil {
		a.handleError(rw, req, err)
	}
}

// route matches the request and runs the route's endpoint.
func (a *App) route(w http.ResponseWriter, req *connection.Request) error {
	if h, ok := a.system[req.Path()]; ok && (req.Method() == http.MethodGet || req.Method() == http.MethodHead) {
		h.ServeHTTP(w, req.HTTP())
		return nil
	}

	var (
		m   *router.Match
		err error
	)
	if websocket.IsWebSocketUpgrade(req.HTTP()) {
		m, err = a.router.MatchWebSocket(req.Path())
	} else {
		m, err = a.router.Match(req.Method(), req.Path())
	}
	if err != nil {
		return err
	}
	if m.RedirectTo != "" {
		redirect(w, req, m.RedirectTo)
		return nil
	}

	rt := m.Route
	req.PathParams = m.Params
	req.RoutePath = rt.Path.Template
	req.RouteName = rt.Name
	if state, ok := req.Context().Value(matchKey).(*matched); ok {
		state.route = rt
		state.rest = m.Rest
	}
	return a.endpoint(rt)(w, req)
}

func redirect(w http.ResponseWriter, req *connection.Request, path string) {
	target := path
	if q := req.URL().RawQuery; q != "" {
		target += "?" + q
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// endpoint returns the route's handler wrapped in its node middleware.
// Endpoints are built once per route and cached until the table changes.
func (a *App) endpoint(rt *router.Route) router.HandlerFunc {
	if h, ok := a.endpoints.Load(rt); ok {
		return h.(router.HandlerFunc)
	}
	var inner router.HandlerFunc
	switch rt.Kind {
	case router.KindMount:
		inner = a.mountEndpoint(rt)
	case router.KindWebSocket:
		inner = a.websocketEndpoint(rt)
	default:
		inner = a.httpEndpoint(rt)
	}
	h := chain(rt.Effective.Middleware, inner)
	actual, _ := a.endpoints.LoadOrStore(rt, h)
	return actual.(router.HandlerFunc)
}

// mountEndpoint serves a mounted handler with the mount prefix removed from
// the request path.
func (a *App) mountEndpoint(rt *router.Route) router.HandlerFunc {
	return func(w http.ResponseWriter, req *connection.Request) error {
		rest := "/"
		if state, ok := req.Context().Value(matchKey).(*matched); ok && state.rest != "" {
			rest = state.rest
		}
		r := req.HTTP()
		sub := new(http.Request)
		*sub = *r
		u := *r.URL
		u.Path = rest
		u.RawPath = ""
		sub.URL = &u
		if prefix := strings.TrimSuffix(r.URL.Path, rest); prefix != "" {
			sub.Header = r.Header.Clone()
			sub.Header.Set("X-Forwarded-Prefix", prefix)
		}
		rt.Mounted.ServeHTTP(w, sub)
		return nil
	}
}
