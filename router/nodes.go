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
	"net/http"
)

const (
	kindInclude          = "include"
	kindGateway          = "gateway"
	kindWebSocketGateway = "websocket gateway"
	kindMount            = "mount"
	kindHandler          = "handler"
	kindWebSocketHandler = "websocket handler"
)

// Node is a node of the route tree: [*Include], [*Gateway],
// [*WebSocketGateway] or [*Mounted].
type Node interface {
	base() *nodeBase
}

type nodeBase struct {
	kind  string
	path  string
	layer Layer
	errs  []error
}

func (b *nodeBase) base() *nodeBase {
	return b
}

// Path returns the path fragment of the node.
func (b *nodeBase) Path() string {
	return b.path
}

// Layer returns the configuration contributed by the node.
func (b *nodeBase) Layer() *Layer {
	return &b.layer
}

func newBase(kind, path string, opts []Option) nodeBase {
	b := nodeBase{kind: kind, path: path}
	b.errs = applyOptions(&target{kind: kind + " " + path, layer: &b.layer}, opts)
	return b
}

// Include mounts a subtree at a path prefix and contributes configuration
// to every route below it.
type Include struct {
	nodeBase
	children []Node
}

// NewInclude returns an include of routes at path.
func NewInclude(path string, routes []Node, opts ...Option) *Include {
	return &Include{nodeBase: newBase(kindInclude, path, opts), children: routes}
}

// Children returns the nodes below the include.
func (n *Include) Children() []Node {
	return n.children
}

// Gateway binds a path to one HTTP handler.
type Gateway struct {
	nodeBase
	handler *Handler
}

// NewGateway returns a gateway serving h at path.
func NewGateway(path string, h *Handler, opts ...Option) *Gateway {
	return &Gateway{nodeBase: newBase(kindGateway, path, opts), handler: h}
}

// Handler returns the gateway handler.
func (n *Gateway) Handler() *Handler {
	return n.handler
}

// WebSocketGateway binds a path to one websocket handler.
type WebSocketGateway struct {
	nodeBase
	handler *WebSocketHandler
}

// NewWebSocketGateway returns a gateway serving the websocket handler h at path.
func NewWebSocketGateway(path string, h *WebSocketHandler, opts ...Option) *WebSocketGateway {
	return &WebSocketGateway{nodeBase: newBase(kindWebSocketGateway, path, opts), handler: h}
}

// Handler returns the gateway handler.
func (n *WebSocketGateway) Handler() *WebSocketHandler {
	return n.handler
}

// Mounted delegates every request below a path prefix to an opaque handler,
// such as another application. The handler sees the path with the prefix removed.
type Mounted struct {
	nodeBase
	handler http.Handler
}

// Mount returns a node delegating requests below path to h.
func Mount(path string, h http.Handler, opts ...Option) *Mounted {
	return &Mounted{nodeBase: newBase(kindMount, path, opts), handler: h}
}

// Handler returns the mounted handler.
func (n *Mounted) Handler() http.Handler {
	return n.handler
}

// Handler is an HTTP handler function with its static metadata.
type Handler struct {
	fn     any
	layer  Layer
	config HandlerConfig
	errs   []error
}

// Handle returns a handler for fn. Without a Methods option it serves GET.
func Handle(fn any, opts ...Option) *Handler {
	h := &Handler{fn: fn}
	h.errs = applyOptions(&target{kind: kindHandler, layer: &h.layer, handler: &h.config}, opts)
	if len(h.config.Methods) == 0 {
		h.config.Methods = []string{http.MethodGet}
	}
	return h
}

func withMethod(method string, fn any, opts []Option) *Handler {
	return Handle(fn, append([]Option{Methods(method)}, opts...)...)
}

// Get returns a GET handler.
func Get(fn any, opts ...Option) *Handler { return withMethod(http.MethodGet, fn, opts) }

// Post returns a POST handler.
func Post(fn any, opts ...Option) *Handler { return withMethod(http.MethodPost, fn, opts) }

// Put returns a PUT handler.
func Put(fn any, opts ...Option) *Handler { return withMethod(http.MethodPut, fn, opts) }

// Patch returns a PATCH handler.
func Patch(fn any, opts ...Option) *Handler { return withMethod(http.MethodPatch, fn, opts) }

// Delete returns a DELETE handler.
func Delete(fn any, opts ...Option) *Handler { return withMethod(http.MethodDelete, fn, opts) }

// Head returns a HEAD handler.
func Head(fn any, opts ...Option) *Handler { return withMethod(http.MethodHead, fn, opts) }

// Options returns an OPTIONS handler.
func Options(fn any, opts ...Option) *Handler { return withMethod(http.MethodOptions, fn, opts) }

// Trace returns a TRACE handler.
func Trace(fn any, opts ...Option) *Handler { return withMethod(http.MethodTrace, fn, opts) }

// Func returns the handler function.
func (h *Handler) Func() any {
	return h.fn
}

// Config returns the handler metadata as declared.
func (h *Handler) Config() HandlerConfig {
	return h.config
}

// WebSocketHandler is a websocket handler function.
type WebSocketHandler struct {
	fn    any
	layer Layer
	path  string
	errs  []error
}

// WebSocket returns a websocket handler for fn.
func WebSocket(fn any, opts ...Option) *WebSocketHandler {
	h := &WebSocketHandler{fn: fn}
	h.errs = applyOptions(&target{kind: kindWebSocketHandler, layer: &h.layer, wsPath: &h.path}, opts)
	return h
}

// Func returns the handler function.
func (h *WebSocketHandler) Func() any {
	return h.fn
}
