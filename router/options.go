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
	"fmt"
	"net/http"
	"slices"
	"strings"

	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/security"
)

// Layer is the configuration a node contributes to the routes below it.
type Layer struct {
	Name              string
	Dependencies      map[string]*inject.Dependency
	ExceptionHandlers ExceptionHandlers
	Middleware        []Middleware
	Interceptors      []Interceptor
	Permissions       []Permission
	ResponseClass     response.Class
	ResponseCookies   []*http.Cookie
	ResponseHeaders   http.Header
	Tags              []string
	Security          []security.Requirement

	// IncludeInSchema and Deprecated are unset (nil) unless the layer decides them.
	IncludeInSchema *bool
	Deprecated      *bool
}

// target is what options are applied to.
type target struct {
	kind    string
	layer   *Layer
	handler *HandlerConfig
	wsPath  *string
	errs    []error
}

func (t *target) fail(format string, args ...any) {
	t.errs = append(t.errs, kerrors.NewImproperlyConfigured("%s: %s", t.kind, fmt.Sprintf(format, args...)))
}

func (t *target) handlerOnly(option string) bool {
	if t.handler == nil {
		t.fail("%s applies to HTTP handlers only", option)
		return false
	}
	return true
}

func applyOptions(t *target, opts []Option) []error {
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t.errs
}

// Option configures a route node.
type Option func(*target)

// WithName names the node. Handler names are used for URL reversal; include
// names prefix the names of their routes ("users:detail").
func WithName(name string) Option {
	return func(t *target) {
		t.layer.Name = name
	}
}

// WithDependency registers a dependency under name.
func WithDependency(name string, d *inject.Dependency) Option {
	return func(t *target) {
		if name == "" || d == nil {
			t.fail("dependency needs a name and a value")
			return
		}
		if t.layer.Dependencies == nil {
			t.layer.Dependencies = make(map[string]*inject.Dependency)
		}
		t.layer.Dependencies[name] = d
	}
}

// WithDependencies registers several dependencies.
func WithDependencies(deps map[string]*inject.Dependency) Option {
	return func(t *target) {
		for name, d := range deps {
			WithDependency(name, d)(t)
		}
	}
}

// WithExceptionHandler registers h for the errors selected by key.
func WithExceptionHandler(key ExceptionKey, h ExceptionHandler) Option {
	return func(t *target) {
		if h == nil {
			t.fail("nil exception handler for %s", key)
			return
		}
		if t.layer.ExceptionHandlers == nil {
			t.layer.ExceptionHandlers = make(ExceptionHandlers)
		}
		t.layer.ExceptionHandlers[key] = h
	}
}

// WithMiddleware appends middleware. Middleware of outer layers wraps the
// middleware of inner layers.
func WithMiddleware(mw ...Middleware) Option {
	return func(t *target) {
		t.layer.Middleware = append(t.layer.Middleware, mw...)
	}
}

// WithInterceptors appends interceptors.
func WithInterceptors(in ...Interceptor) Option {
	return func(t *target) {
		t.layer.Interceptors = append(t.layer.Interceptors, in...)
	}
}

// WithPermissions appends permissions.
func WithPermissions(p ...Permission) Option {
	return func(t *target) {
		t.layer.Permissions = append(t.layer.Permissions, p...)
	}
}

// WithResponseClass sets the class serializing raw handler results.
func WithResponseClass(c response.Class) Option {
	return func(t *target) {
		t.layer.ResponseClass = c
	}
}

// WithResponseCookies adds cookies to every response below the node.
func WithResponseCookies(cookies ...*http.Cookie) Option {
	return func(t *target) {
		t.layer.ResponseCookies = append(t.layer.ResponseCookies, cookies...)
	}
}

// WithResponseHeaders adds headers to every response below the node.
func WithResponseHeaders(h http.Header) Option {
	return func(t *target) {
		if t.layer.ResponseHeaders == nil {
			t.layer.ResponseHeaders = http.Header{}
		}
		for k, vs := range h {
			t.layer.ResponseHeaders[http.CanonicalHeaderKey(k)] = slices.Clone(vs)
		}
	}
}

// WithTags appends OpenAPI tags.
func WithTags(tags ...string) Option {
	return func(t *target) {
		t.layer.Tags = append(t.layer.Tags, tags...)
	}
}

// IncludeInSchema controls whether routes below the node appear in the OpenAPI document.
func IncludeInSchema(include bool) Option {
	return func(t *target) {
		t.layer.IncludeInSchema = &include
	}
}

// Deprecated marks routes below the node as deprecated.
func Deprecated() Option {
	return func(t *target) {
		deprecated := true
		t.layer.Deprecated = &deprecated
	}
}

// WithSecurity appends security requirements.
func WithSecurity(reqs ...security.Requirement) Option {
	return func(t *target) {
		t.layer.Security = append(t.layer.Security, reqs...)
	}
}

// ResponseSpec documents an additional response of a handler.
type ResponseSpec struct {
	// Model is a value of the response body type. Nil documents no body.
	Model       any
	Description string
	MediaType   string
}

// HandlerConfig is the static metadata of an HTTP handler.
type HandlerConfig struct {
	Methods             []string
	StatusCode          int
	MediaType           string
	Summary             string
	Description         string
	ResponseDescription string
	Responses           map[int]ResponseSpec
	OperationID         string
	BodyMediaType       string
	Raises              []error
	Blocking            bool

	// Path is appended to the enclosing gateway path.
	Path string
}

// Methods sets the HTTP methods of a handler.
func Methods(methods ...string) Option {
	return func(t *target) {
		if !t.handlerOnly("Methods") {
			return
		}
		t.handler.Methods = t.handler.Methods[:0]
		for _, m := range methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if !slices.Contains(t.handler.Methods, m) {
				t.handler.Methods = append(t.handler.Methods, m)
			}
		}
	}
}

// StatusCode sets the declared status of a handler.
func StatusCode(code int) Option {
	return func(t *target) {
		if !t.handlerOnly("StatusCode") {
			return
		}
		if code < 100 || code > 599 {
			t.fail("invalid status code %d", code)
			return
		}
		t.handler.StatusCode = code
	}
}

// MediaType sets the response media type of a handler.
func MediaType(mediaType string) Option {
	return func(t *target) {
		if t.handlerOnly("MediaType") {
			t.handler.MediaType = mediaType
		}
	}
}

// Summary sets the OpenAPI summary.
func Summary(summary string) Option {
	return func(t *target) {
		if t.handlerOnly("Summary") {
			t.handler.Summary = summary
		}
	}
}

// Description sets the OpenAPI description.
func Description(description string) Option {
	return func(t *target) {
		if t.handlerOnly("Description") {
			t.handler.Description = description
		}
	}
}

// ResponseDescription sets the description of the default response.
func ResponseDescription(description string) Option {
	return func(t *target) {
		if t.handlerOnly("ResponseDescription") {
			t.handler.ResponseDescription = description
		}
	}
}

// WithResponse documents an additional response.
func WithResponse(status int, spec ResponseSpec) Option {
	return func(t *target) {
		if !t.handlerOnly("WithResponse") {
			return
		}
		if t.handler.Responses == nil {
			t.handler.Responses = make(map[int]ResponseSpec)
		}
		t.handler.Responses[status] = spec
	}
}

// OperationID sets the OpenAPI operation id.
func OperationID(id string) Option {
	return func(t *target) {
		if t.handlerOnly("OperationID") {
			t.handler.OperationID = id
		}
	}
}

// BodyMediaType sets the documented request body media type.
func BodyMediaType(mediaType string) Option {
	return func(t *target) {
		if t.handlerOnly("BodyMediaType") {
			t.handler.BodyMediaType = mediaType
		}
	}
}

// Raises documents the errors a handler may return. Each must report an
// HTTP status through HTTPStatus.
func Raises(errs ...error) Option {
	return func(t *target) {
		if t.handlerOnly("Raises") {
			t.handler.Raises = append(t.handler.Raises, errs...)
		}
	}
}

// Blocking runs the handler on the blocking pool instead of the request goroutine.
func Blocking() Option {
	return func(t *target) {
		if t.handlerOnly("Blocking") {
			t.handler.Blocking = true
		}
	}
}

// HandlerPath appends path to the gateway path of the handler.
func HandlerPath(path string) Option {
	return func(t *target) {
		switch {
		case t.handler != nil:
			t.handler.Path = path
		case t.wsPath != nil:
			*t.wsPath = path
		default:
			t.fail("HandlerPath applies to handlers only")
		}
	}
}
