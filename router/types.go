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
	"context"
	"errors"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/response"
)

// HandlerFunc serves a routed request. An error is dispatched to the
// exception handlers of the layers that wrap it.
type HandlerFunc func(w http.ResponseWriter, req *connection.Request) error

// Middleware wraps the downstream handler of a route. It may short-circuit
// by writing a response or returning an error instead of calling next.
type Middleware func(next HandlerFunc) HandlerFunc

// HTTPMiddleware adapts a standard net/http middleware. A request replaced by
// mw (for example with a derived context) is adopted by the routed request.
func HTTPMiddleware(mw func(http.Handler) http.Handler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) error {
			var err error
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r != req.HTTP() {
					req.WithContext(r.Context())
				}
				err = next(w, req)
			}))
			h.ServeHTTP(w, req.HTTP())
			return err
		}
	}
}

// Interceptor runs after routing and before permissions. It may read and
// change request state; it rejects a request by returning an error.
type Interceptor interface {
	Intercept(ctx context.Context, req *connection.Request) error
}

// InterceptorFunc adapts a function to [Interceptor].
type InterceptorFunc func(ctx context.Context, req *connection.Request) error

// Intercept implements [Interceptor].
func (f InterceptorFunc) Intercept(ctx context.Context, req *connection.Request) error {
	return f(ctx, req)
}

// Permission decides whether a request may reach its handler.
type Permission interface {
	HasPermission(ctx context.Context, req *connection.Request) (bool, error)
}

// PermissionFunc adapts a function to [Permission].
type PermissionFunc func(ctx context.Context, req *connection.Request) (bool, error)

// HasPermission implements [Permission].
func (f PermissionFunc) HasPermission(ctx context.Context, req *connection.Request) (bool, error) {
	return f(ctx, req)
}

// DeniedError is implemented by permissions that raise their own error on
// denial instead of [kerrors.NotAuthorized].
type DeniedError interface {
	DeniedError() error
}

// ExceptionHandler turns an error into a response. Returning an error
// re-raises it to the next outer layer.
type ExceptionHandler func(req *connection.Request, err error) (*response.Response, error)

// ExceptionKey selects the errors an [ExceptionHandler] handles: an error
// type (or interface) or an HTTP status code.
type ExceptionKey struct {
	typ    reflect.Type
	status int
}

// ForError keys a handler by error type. E may be a concrete type such as
// *errors.NotFound or an interface implemented by the errors to handle.
func ForError[E error]() ExceptionKey {
	return ExceptionKey{typ: reflect.TypeFor[E]()}
}

// ForStatus keys a handler by the HTTP status of the error.
func ForStatus(code int) ExceptionKey {
	return ExceptionKey{status: code}
}

// String returns the type name or status of the key.
func (k ExceptionKey) String() string {
	if k.typ != nil {
		return k.typ.String()
	}
	return http.StatusText(k.status)
}

// ExceptionHandlers maps keys to handlers for one layer.
type ExceptionHandlers map[ExceptionKey]ExceptionHandler

// Lookup finds the handler for err. The unwrap chain is walked from the
// outermost error, so the most specific registered type wins. Interface keys
// are tried in type name order. Status keys are tried afterwards against the
// first status in the chain.
func (hs ExceptionHandlers) Lookup(err error) (ExceptionHandler, bool) {
	if len(hs) == 0 || err == nil {
		return nil, false
	}
	ifaces := hs.interfaceKeys()
	var found ExceptionHandler
	walk(err, func(e error) bool {
		t := reflect.TypeOf(e)
		if h, ok := hs[ExceptionKey{typ: t}]; ok {
			found = h
			return true
		}
		for _, key := range ifaces {
			if t.Implements(key.typ) {
				found = hs[key]
				return true
			}
		}
		return false
	})
	if found != nil {
		return found, true
	}
	if status := kerrors.StatusOf(err); status != 0 {
		h, ok := hs[ExceptionKey{status: status}]
		return h, ok
	}
	return nil, false
}

// interfaceKeys returns the interface-typed keys ordered by type name.
func (hs ExceptionHandlers) interfaceKeys() []ExceptionKey {
	var keys []ExceptionKey
	for key := range hs {
		if key.typ != nil && key.typ.Kind() == reflect.Interface {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b ExceptionKey) int {
		return strings.Compare(a.typ.String(), b.typ.String())
	})
	return keys
}

// walk visits err and its wrapped errors depth first until visit returns true.
func walk(err error, visit func(error) bool) bool {
	for err != nil {
		if visit(err) {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if walk(inner, visit) {
					return true
				}
			}
			return false
		default:
			err = errors.Unwrap(err)
		}
	}
	return false
}
