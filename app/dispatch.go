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
	"slices"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
)

// handleError dispatches err to the first exception handler that takes it.
// Layers are tried from the matched route outwards, then the application
// handlers; a handler that returns an error re-raises to the next layer.
// An error without a status is also offered to each layer as an
// [kerrors.InternalServerError] after its own type misses.
// Errors nobody handles are rendered by the formatter.
func (a *App) handleError(w *response.Writer, req *connection.Request, err error) {
	ctx := req.Context()
	if w.Written() {
		a.logger.LogError(ctx, err, "error after response started", "path", req.Path())
		return
	}

	for _, hs := range a.layers(req) {
		h, matched := lookup(hs, err)
		if h == nil {
			continue
		}
		resp, herr := h(req, matched)
		if herr != nil {
			err = herr
			continue
		}
		if resp == nil {
			resp = response.NoContent()
		}
		if werr := resp.Write(w, req.HTTP()); werr != nil {
			a.logger.Debug("failed to write error response", "path", req.Path(), "error", werr)
		}
		return
	}
	a.writeDefault(w, req, err)
}

// lookup finds the handler for err in hs and the error to pass to it.
func lookup(hs router.ExceptionHandlers, err error) (router.ExceptionHandler, error) {
	if h, ok := hs.Lookup(err); ok {
		return h, err
	}
	var typed kerrors.ErrorType
	if errors.As(err, &typed) {
		return nil, err
	}
	normalized := kerrors.Normalize(err)
	if h, ok := hs.Lookup(normalized); ok {
		return h, normalized
	}
	return nil, err
}

// layers returns the exception handlers to try for req, nearest first.
func (a *App) layers(req *connection.Request) []router.ExceptionHandlers {
	var layers []router.ExceptionHandlers
	if rt, ok := RouteFromContext(req.Context()); ok && rt.Effective != nil {
		layers = append(layers, rt.Effective.ExceptionHandlers...)
	}
	return append(layers, a.handlers)
}

// writeDefault renders err with the formatter.
func (a *App) writeDefault(w *response.Writer, req *connection.Request, err error) {
	ctx := req.Context()
	err = kerrors.Normalize(err)
	status := kerrors.StatusOf(err)
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		a.logger.Debug("request cancelled", "path", req.Path())
	case status >= http.StatusInternalServerError:
		a.logger.LogError(ctx, err, "unhandled error", "method", req.Method(), "path", req.Path(), "route", req.RoutePath)
	}

	res := a.formatter.Format(req.HTTP(), err)
	for _, h := range []http.Header{kerrors.HeadersOf(err), res.Headers} {
		for k, vs := range h {
			w.Header()[k] = slices.Clone(vs)
		}
	}

	if res.Body == nil || !response.BodyAllowed(res.Status) {
		w.WriteHeader(res.Status)
		return
	}
	body, encErr := response.ClassJSON.Encode(res.Body)
	if encErr != nil {
		a.logger.LogError(ctx, encErr, "failed to encode error response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := response.New(res.Status, res.ContentType, body)
	if werr := resp.Write(w, req.HTTP()); werr != nil {
		a.logger.Debug("failed to write error response", "path", req.Path(), "error", werr)
	}
}
