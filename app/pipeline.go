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
	"errors"
	"net/http"
	"reflect"

	"github.com/gorilla/websocket"

	"rivaas.dev/keel/binding"
	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/signature"
)

// httpEndpoint runs the inner frame of an HTTP route.
func (a *App) httpEndpoint(rt *router.Route) router.HandlerFunc {
	return func(w http.ResponseWriter, req *connection.Request) error {
		ctx := req.Context()
		scope := inject.NewScope(a.logger.Logger())
		defer a.teardown(ctx, rt, scope)

		if err := guard(ctx, rt, req); err != nil {
			return err
		}
		input, err := a.transformer.Bind(ctx, rt.Model, binding.Input{
			Request:      req,
			Dependencies: inject.NewResolver(rt.Graph, scope, a.transformer, req, nil),
		})
		if err != nil {
			return err
		}
		outcome, err := a.invoke(ctx, rt, req, nil, input)
		if err != nil {
			return err
		}

		resp, err := a.shaper.Shape(outcome.Value, rt.Meta(req.Method()))
		if err != nil {
			return err
		}
		if err := resp.Write(w, req.HTTP()); err != nil {
			return err
		}
		if resp.Background != nil {
			a.background(ctx, w, rt, resp.Background)
		}
		return nil
	}
}

// websocketEndpoint runs the inner frame of a websocket route. Errors raised
// before the handshake is accepted become HTTP responses; after it they
// close the connection.
func (a *App) websocketEndpoint(rt *router.Route) router.HandlerFunc {
	return func(w http.ResponseWriter, req *connection.Request) (err error) {
		ctx := req.Context()
		scope := inject.NewScope(a.logger.Logger())
		defer a.teardown(ctx, rt, scope)

		socket := connection.NewWebSocket(w, req, a.upgrader)
		defer func() {
			if !socket.Accepted() {
				return
			}
			code, reason := websocket.CloseNormalClosure, ""
			if err != nil && !connection.IsDisconnect(err) {
				code, reason = closeCode(err), http.StatusText(kerrors.StatusOf(err))
				a.logger.LogError(ctx, err, "websocket handler failed", "route", rt.Path.Template)
			}
			if cerr := socket.Close(code, reason); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
				a.logger.Debug("websocket close failed", "route", rt.Path.Template, "error", cerr)
			}
			err = nil
		}()

		if err := guard(ctx, rt, req); err != nil {
			return err
		}
		input, err := a.transformer.Bind(ctx, rt.Model, binding.Input{
			Request:      req,
			Socket:       socket,
			Dependencies: inject.NewResolver(rt.Graph, scope, a.transformer, req, socket),
		})
		if err != nil {
			return err
		}
		_, err = a.invoke(ctx, rt, req, socket, input)
		return err
	}
}

// closeCode maps a handler error to a websocket close code.
func closeCode(err error) int {
	switch kerrors.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return websocket.ClosePolicyViolation
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return websocket.CloseUnsupportedData
	}
	return websocket.CloseInternalServerErr
}

// guard runs the interceptors and then the permissions of rt.
func guard(ctx context.Context, rt *router.Route, req *connection.Request) error {
	for _, in := range rt.Effective.Interceptors {
		if err := in.Intercept(ctx, req); err != nil {
			return err
		}
	}
	for _, p := range rt.Effective.Permissions {
		ok, err := p.HasPermission(ctx, req)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if d, isDenier := p.(router.DeniedError); isDenier {
			return d.DeniedError()
		}
		return kerrors.NewNotAuthorized("")
	}
	return nil
}

// invoke calls the handler. Blocking handlers first take a slot of the
// sync handler pool; waiting ends early when the request is cancelled.
func (a *App) invoke(ctx context.Context, rt *router.Route, req *connection.Request, socket *connection.WebSocket, input reflect.Value) (signature.Outcome, error) {
	if rt.Model.IsBlocking {
		if err := a.blocking.Acquire(ctx, 1); err != nil {
			return signature.Outcome{}, kerrors.Wrap(err, http.StatusServiceUnavailable, "")
		}
		defer a.blocking.Release(1)
	}
	return rt.Model.Call(ctx, req, socket, input)
}

// teardown closes the dependency scope of one request. The request context
// may already be cancelled; teardown still runs to completion.
func (a *App) teardown(ctx context.Context, rt *router.Route, scope *inject.Scope) {
	if err := scope.Close(context.WithoutCancel(ctx)); err != nil {
		a.logger.LogError(ctx, err, "dependency teardown failed", "route", rt.Path.Template)
	}
}

// background runs a response's task after the response has been flushed.
func (a *App) background(ctx context.Context, w http.ResponseWriter, rt *router.Route, task func(context.Context) error) {
	_ = http.NewResponseController(w).Flush()
	if err := task(context.WithoutCancel(ctx)); err != nil {
		a.logger.LogError(ctx, err, "background task failed", "route", rt.Path.Template)
	}
}
