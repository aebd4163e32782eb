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
	"maps"
	"net/http"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router/compiler"
	"rivaas.dev/keel/security"
	"rivaas.dev/keel/signature"
)

// Kind is the kind of a flattened route.
type Kind int

const (
	KindHTTP Kind = iota
	KindWebSocket
	KindMount
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWebSocket:
		return "websocket"
	case KindMount:
		return "mount"
	default:
		return "unknown"
	}
}

// Route is a leaf of the route tree with the configuration of every
// enclosing node merged into it. Routes are immutable once built.
type Route struct {
	Kind Kind

	// Name is the namespaced route name ("users:detail").
	Name string

	Path *compiler.Path

	// Methods are the declared methods of an HTTP route.
	Methods []string

	Handler   *Handler
	WebSocket *WebSocketHandler
	Mounted   http.Handler

	// Config is the handler metadata of an HTTP route.
	Config HandlerConfig

	// Model is nil for mounts.
	Model *signature.Model
	Graph *inject.Graph

	Effective *Effective

	// OperationIDs maps each method to its OpenAPI operation id.
	OperationIDs map[string]string
}

// Status returns the status sent for method when the handler does not choose one.
func (r *Route) Status(method string) int {
	if r.Config.StatusCode != 0 {
		return r.Config.StatusCode
	}
	switch method {
	case http.MethodPost:
		return http.StatusCreated
	case http.MethodDelete:
		if r.Model != nil && (r.Model.Result == signature.ResultNone || r.Model.Result == signature.ResultError) {
			return http.StatusNoContent
		}
	}
	return http.StatusOK
}

// MediaType returns the media type of the default response.
func (r *Route) MediaType() string {
	if r.Config.MediaType != "" {
		return r.Config.MediaType
	}
	if r.Effective != nil && r.Effective.ResponseClass != nil {
		return r.Effective.ResponseClass.MediaType()
	}
	return response.MediaTypeJSON
}

// Meta returns the response shaping metadata for method.
func (r *Route) Meta(method string) response.Meta {
	return response.Meta{
		Status:    r.Status(method),
		Class:     r.Effective.ResponseClass,
		MediaType: r.Config.MediaType,
		Headers:   r.Effective.ResponseHeaders,
		Cookies:   r.Effective.ResponseCookies,
	}
}

// Allows reports whether the route serves method. GET routes also serve HEAD.
func (r *Route) Allows(method string) bool {
	if slices.Contains(r.Methods, method) {
		return true
	}
	return method == http.MethodHead && slices.Contains(r.Methods, http.MethodGet)
}

// Effective is the configuration of a route merged from the root to the leaf.
type Effective struct {
	Dependencies map[string]*inject.Dependency

	// Middleware is ordered root to leaf; the first entry is outermost.
	Middleware []Middleware

	Interceptors []Interceptor
	Permissions  []Permission

	ResponseClass   response.Class
	ResponseCookies []*http.Cookie
	ResponseHeaders http.Header

	Tags     []string
	Security []security.Requirement

	IncludeInSchema bool
	Deprecated      bool

	// ExceptionHandlers lists the handler maps of every layer, nearest first.
	ExceptionHandlers []ExceptionHandlers
}

// merge combines layers ordered root to leaf. Inner layers win on conflicts.
func merge(layers []*Layer) *Effective {
	eff := &Effective{
		Dependencies:    make(map[string]*inject.Dependency),
		ResponseHeaders: http.Header{},
		IncludeInSchema: true,
	}
	cookies := make(map[string]int)

	for _, l := range layers {
		maps.Copy(eff.Dependencies, l.Dependencies)
		eff.Middleware = append(eff.Middleware, l.Middleware...)
		eff.Interceptors = append(eff.Interceptors, l.Interceptors...)
		eff.Permissions = append(eff.Permissions, l.Permissions...)
		if l.ResponseClass != nil {
			eff.ResponseClass = l.ResponseClass
		}
		for _, c := range l.ResponseCookies {
			if i, ok := cookies[c.Name]; ok {
				eff.ResponseCookies[i] = c
				continue
			}
			cookies[c.Name] = len(eff.ResponseCookies)
			eff.ResponseCookies = append(eff.ResponseCookies, c)
		}
		for k, vs := range l.ResponseHeaders {
			eff.ResponseHeaders[k] = slices.Clone(vs)
		}
		for _, tag := range l.Tags {
			if !slices.Contains(eff.Tags, tag) {
				eff.Tags = append(eff.Tags, tag)
			}
		}
		eff.Security = append(eff.Security, l.Security...)
		if l.IncludeInSchema != nil {
			eff.IncludeInSchema = *l.IncludeInSchema
		}
		if l.Deprecated != nil {
			eff.Deprecated = *l.Deprecated
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		if len(layers[i].ExceptionHandlers) > 0 {
			eff.ExceptionHandlers = append(eff.ExceptionHandlers, layers[i].ExceptionHandlers)
		}
	}
	return eff
}

var nonWord = regexp.MustCompile(`\W`)

// operationIDs derives one operation id per method. Explicit ids get a
// method suffix when the handler serves several methods.
func operationIDs(rt *Route) map[string]string {
	ids := make(map[string]string, len(rt.Methods))
	for _, m := range rt.Methods {
		lower := strings.ToLower(m)
		switch {
		case rt.Config.OperationID != "" && len(rt.Methods) == 1:
			ids[m] = rt.Config.OperationID
		case rt.Config.OperationID != "":
			ids[m] = rt.Config.OperationID + "_" + lower
		default:
			name := signature.SnakeCase(rt.Model.Name)
			ids[m] = nonWord.ReplaceAllString(name+rt.Path.Template, "_") + "_" + lower
		}
	}
	return ids
}

var (
	responseType  = reflect.TypeFor[*response.Response]()
	containerType = reflect.TypeFor[response.Container]()
	redirectType  = reflect.TypeFor[response.Redirect]()
)

// concreteResult reports whether the handler result is a serialized value
// rather than a response it builds itself.
func concreteResult(m *signature.Model) bool {
	t := m.ResultType
	if t == nil || t.Kind() == reflect.Interface {
		return false
	}
	return t != responseType && !t.Implements(containerType)
}
