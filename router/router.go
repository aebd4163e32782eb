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

package router

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router/compiler"
	"rivaas.dev/keel/signature"
)

// ErrFrozen is returned when the route tree is changed after [Router.Freeze]
// by any means other than [Router.AddRoute].
var ErrFrozen = errors.New("router: route tree is frozen")

// ErrNoRoute is returned by [Router.URLPathFor] for an unknown route name.
var ErrNoRoute = errors.New("router: no route with that name")

// BuildOptions control [Router.Build].
type BuildOptions struct {
	// RedirectSlashes answers a miss with a 307 to the path with the trailing
	// slash toggled when that path would match.
	RedirectSlashes bool

	// AllowBlocking permits handlers declared with [Blocking].
	AllowBlocking bool
}

// Match is the outcome of a successful lookup.
type Match struct {
	Route  *Route
	Params map[string]any

	// Rest is the path below a mount prefix.
	Rest string

	// RedirectTo is set when the request should be redirected instead of served.
	RedirectTo string
}

// table is an immutable snapshot of the flattened routes.
type table struct {
	routes  []*Route
	static  map[string][]*Route
	dynamic []*Route
	names   map[string]*Route
}

// Router owns the route tree and the table built from it.
//
// Lookups read an atomically published table and take no locks.
type Router struct {
	mu     sync.Mutex
	root   nodeBase
	nodes  []Node
	opts   BuildOptions
	frozen atomic.Bool
	table  atomic.Pointer[table]
}

// New returns a router for routes. Options configure the root layer shared by every route.
func New(routes []Node, opts ...Option) *Router {
	return &Router{
		root:  newBase("router", "", opts),
		nodes: slices.Clone(routes),
	}
}

// Root returns the root layer.
func (r *Router) Root() *Layer {
	return &r.root.layer
}

// Add appends nodes to the tree. It fails once the router is frozen.
func (r *Router) Add(nodes ...Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	r.nodes = append(r.nodes, nodes...)
	return nil
}

// Build flattens the tree and validates it. Every problem found is reported;
// the returned error unwraps to the individual [kerrors.ImproperlyConfigured] errors.
func (r *Router) Build(opts BuildOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	t, err := r.build(r.nodes, opts)
	if err != nil {
		return err
	}
	r.opts = opts
	r.table.Store(t)
	return nil
}

// Freeze rejects further changes except [Router.AddRoute].
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether [Router.Freeze] was called.
func (r *Router) Frozen() bool {
	return r.frozen.Load()
}

// AddRoute adds node to a built router, re-validating the whole tree.
// On failure the router is left unchanged.
func (r *Router) AddRoute(node Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes := append(slices.Clone(r.nodes), node)
	t, err := r.build(nodes, r.opts)
	if err != nil {
		return err
	}
	r.nodes = nodes
	r.table.Store(t)
	return nil
}

// Routes returns the built routes in match order.
func (r *Router) Routes() []*Route {
	t := r.table.Load()
	if t == nil {
		return nil
	}
	return slices.Clone(t.routes)
}

// URLPathFor reverses the route called name.
func (r *Router) URLPathFor(name string, params map[string]any) (string, error) {
	t := r.table.Load()
	if t == nil {
		return "", ErrNoRoute
	}
	rt, ok := t.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoRoute, name)
	}
	return rt.Path.Format(params)
}

// Match finds the HTTP route for method and path. It returns
// [kerrors.NotFound], [kerrors.MethodNotAllowed] listing the methods of the
// matched path, or the [kerrors.ValidationError] of a rejected path parameter.
func (r *Router) Match(method, path string) (*Match, error) {
	return r.match(method, path, false)
}

// MatchWebSocket finds the websocket route for path.
func (r *Router) MatchWebSocket(path string) (*Match, error) {
	return r.match("", path, true)
}

func (r *Router) match(method, path string, websocket bool) (*Match, error) {
	t := r.table.Load()
	if t == nil {
		return nil, kerrors.NewNotFound("")
	}

	var allowed []string
	try := func(rt *Route) (*Match, error) {
		if !rt.accepts(websocket) {
			return nil, nil
		}
		res, ok, err := rt.Path.Match(path)
		if !ok {
			return nil, nil
		}
		if rt.Kind == KindHTTP && !rt.Allows(method) {
			allowed = append(allowed, rt.Methods...)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &Match{Route: rt, Params: res.Params, Rest: res.Rest}, nil
	}

	for _, rt := range t.static[path] {
		if m, err := try(rt); m != nil || err != nil {
			return m, err
		}
	}
	for _, rt := range t.dynamic {
		if m, err := try(rt); m != nil || err != nil {
			return m, err
		}
	}

	if len(allowed) > 0 {
		slices.Sort(allowed)
		return nil, kerrors.NewMethodNotAllowed(slices.Compact(allowed))
	}

	if r.opts.RedirectSlashes && path != "/" {
		alt := path + "/"
		if strings.HasSuffix(path, "/") {
			alt = strings.TrimRight(path, "/")
		}
		if alt != "" && t.matches(alt, websocket) {
			return &Match{RedirectTo: alt}, nil
		}
	}
	return nil, kerrors.NewNotFound("")
}

func (rt *Route) accepts(websocket bool) bool {
	switch rt.Kind {
	case KindMount:
		return true
	case KindWebSocket:
		return websocket
	default:
		return !websocket
	}
}

func (t *table) matches(path string, websocket bool) bool {
	for _, rt := range t.routes {
		if !rt.accepts(websocket) {
			continue
		}
		if _, ok, _ := rt.Path.Match(path); ok {
			return true
		}
	}
	return false
}

// frame is a node being flattened with everything above it.
type frame struct {
	path   string
	layers []*Layer
	names  []string
}

func (f frame) enter(b *nodeBase, name string) frame {
	next := frame{
		path:   f.path + b.path,
		layers: append(slices.Clone(f.layers), &b.layer),
		names:  slices.Clone(f.names),
	}
	if name != "" {
		next.names = append(next.names, name)
	}
	return next
}

type builder struct {
	opts   BuildOptions
	routes []*Route
	errs   []error
}

func (b *builder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (b *builder) failf(format string, args ...any) {
	b.fail(kerrors.NewImproperlyConfigured(format, args...))
}

func (r *Router) build(nodes []Node, opts BuildOptions) (*table, error) {
	b := &builder{opts: opts}
	b.errs = append(b.errs, r.root.errs...)

	top := frame{layers: []*Layer{&r.root.layer}}
	for _, n := range nodes {
		b.walk(top, n)
	}

	t := b.index()
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return t, nil
}

func (b *builder) walk(f frame, n Node) {
	if n == nil {
		b.failf("nil route node under %q", f.path)
		return
	}
	base := n.base()
	b.errs = append(b.errs, base.errs...)

	switch n := n.(type) {
	case *Include:
		inner := f.enter(base, base.layer.Name)
		for _, child := range n.children {
			b.walk(inner, child)
		}
	case *Gateway:
		if n.handler == nil {
			b.failf("gateway %q has no handler", base.path)
			return
		}
		b.errs = append(b.errs, n.handler.errs...)
		inner := f.enter(base, "")
		inner.path += n.handler.config.Path
		inner.layers = append(inner.layers, &n.handler.layer)
		b.addHTTP(inner, base, n.handler)
	case *WebSocketGateway:
		if n.handler == nil {
			b.failf("websocket gateway %q has no handler", base.path)
			return
		}
		b.errs = append(b.errs, n.handler.errs...)
		inner := f.enter(base, "")
		inner.path += n.handler.path
		inner.layers = append(inner.layers, &n.handler.layer)
		b.addWebSocket(inner, base, n.handler)
	case *Mounted:
		if n.handler == nil {
			b.failf("mount %q has no handler", base.path)
			return
		}
		inner := f.enter(base, "")
		path, err := compiler.Compile(inner.path, true)
		if err != nil {
			b.fail(err)
			return
		}
		b.routes = append(b.routes, &Route{
			Kind:      KindMount,
			Name:      qualify(inner.names, base.layer.Name),
			Path:      path,
			Mounted:   n.handler,
			Effective: merge(inner.layers),
		})
	default:
		b.failf("unsupported route node %T", n)
	}
}

// leafName picks the first non-empty name from the handler and its gateway.
func leafName(names ...string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}

func qualify(namespace []string, name string) string {
	if name == "" {
		return ""
	}
	return strings.Join(append(slices.Clone(namespace), name), ":")
}

func (b *builder) prepare(f frame, blocking, websocket bool, methods []string, fn any) (*compiler.Path, *Effective, *signature.Model, *inject.Graph, bool) {
	path, err := compiler.Compile(f.path, false)
	if err != nil {
		b.fail(err)
		return nil, nil, nil, nil, false
	}
	eff := merge(f.layers)

	visible := make(map[string]bool, len(eff.Dependencies))
	for name := range eff.Dependencies {
		visible[name] = true
	}
	model, err := signature.Build(fn, signature.Options{
		PathParams:   path.ParamNames(),
		Dependencies: visible,
		Methods:      methods,
		WebSocket:    websocket,
		Blocking:     blocking,
	})
	if err != nil {
		b.fail(fmt.Errorf("route %s: %w", path.Pattern, err))
		return nil, nil, nil, nil, false
	}

	graph, err := inject.NewGraph(eff.Dependencies, path.ParamNames())
	if err != nil {
		b.fail(fmt.Errorf("route %s: %w", path.Pattern, err))
		return nil, nil, nil, nil, false
	}
	if err := graph.Requires(model); err != nil {
		b.fail(fmt.Errorf("route %s: %w", path.Pattern, err))
		return nil, nil, nil, nil, false
	}
	return path, eff, model, graph, true
}

func (b *builder) addHTTP(f frame, gw *nodeBase, h *Handler) {
	cfg := h.config
	cfg.Methods = slices.Clone(cfg.Methods)
	path, eff, model, graph, ok := b.prepare(f, cfg.Blocking, false, cfg.Methods, h.fn)
	if !ok {
		return
	}
	if cfg.Blocking && !b.opts.AllowBlocking {
		b.failf("route %s: blocking handler %s while blocking handlers are disabled", path.Pattern, model.Name)
	}

	rt := &Route{
		Kind:      KindHTTP,
		Name:      qualify(f.names, leafName(h.layer.Name, gw.layer.Name, model.Name)),
		Path:      path,
		Methods:   cfg.Methods,
		Handler:   h,
		Config:    cfg,
		Model:     model,
		Graph:     graph,
		Effective: eff,
	}
	rt.OperationIDs = operationIDs(rt)

	for _, m := range rt.Methods {
		status := rt.Status(m)
		if !response.BodyAllowed(status) && concreteResult(model) {
			b.failf("route %s %s: status %d does not allow a body but %s returns %s",
				m, path.Pattern, status, model.Name, model.ResultType)
		}
	}
	if cfg.StatusCode != 0 && model.ResultType == redirectType && !response.IsRedirectStatus(cfg.StatusCode) {
		b.failf("route %s: status %d is not a redirect status", path.Pattern, cfg.StatusCode)
	}

	b.routes = append(b.routes, rt)
}

func (b *builder) addWebSocket(f frame, gw *nodeBase, h *WebSocketHandler) {
	path, eff, model, graph, ok := b.prepare(f, false, true, nil, h.fn)
	if !ok {
		return
	}
	b.routes = append(b.routes, &Route{
		Kind:      KindWebSocket,
		Name:      qualify(f.names, leafName(h.layer.Name, gw.layer.Name, model.Name)),
		Path:      path,
		WebSocket: h,
		Model:     model,
		Graph:     graph,
		Effective: eff,
	})
}

// index sorts the routes, checks uniqueness and builds the lookup table.
func (b *builder) index() *table {
	routes := b.routes
	sort.SliceStable(routes, func(i, j int) bool {
		pi, pj := routes[i].Path, routes[j].Path
		if mi, mj := routes[i].Kind == KindMount, routes[j].Kind == KindMount; mi != mj {
			return mj
		}
		if pi.IsLiteral() != pj.IsLiteral() {
			return pi.IsLiteral()
		}
		return len(pi.LiteralPrefix()) > len(pj.LiteralPrefix())
	})

	t := &table{
		routes: routes,
		static: make(map[string][]*Route),
		names:  make(map[string]*Route),
	}
	seen := make(map[string]*Route)
	ops := make(map[string]*Route)

	for _, rt := range routes {
		key := rt.Path.Shape()
		switch rt.Kind {
		case KindHTTP:
			for _, m := range rt.Methods {
				k := m + " " + key
				if prev, ok := seen[k]; ok && prev != rt {
					b.failf("duplicate route %s %s", m, rt.Path.Pattern)
				}
				seen[k] = rt
			}
			if rt.Effective.IncludeInSchema {
				for _, m := range slices.Sorted(maps.Keys(rt.OperationIDs)) {
					id := rt.OperationIDs[m]
					if prev, ok := ops[id]; ok && prev != rt {
						b.failf("duplicate operation id %q: %s and %s", id, prev.Path.Pattern, rt.Path.Pattern)
					}
					ops[id] = rt
				}
			}
		default:
			k := rt.Kind.String() + " " + key
			if _, ok := seen[k]; ok {
				b.failf("duplicate %s route %s", rt.Kind, rt.Path.Pattern)
			}
			seen[k] = rt
		}

		if rt.Name != "" {
			if _, ok := t.names[rt.Name]; !ok {
				t.names[rt.Name] = rt
			}
		}

		if rt.Path.IsLiteral() && rt.Kind != KindMount {
			t.static[rt.Path.Pattern] = append(t.static[rt.Path.Pattern], rt)
		} else {
			t.dynamic = append(t.dynamic, rt)
		}
	}
	return t
}
