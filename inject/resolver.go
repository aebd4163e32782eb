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

package inject

import (
	"context"

	"rivaas.dev/keel/binding"
	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/errors"
)

// Resolver resolves the dependencies of one request. It implements
// [binding.DependencyResolver], so factories binding their own input resolve
// their sub-dependencies through the same resolver and scope.
type Resolver struct {
	graph       *Graph
	scope       *Scope
	transformer *binding.Transformer
	request     *connection.Request
	socket      *connection.WebSocket
}

// NewResolver returns a resolver over graph for one connection. socket is
// nil for HTTP requests.
func NewResolver(graph *Graph, scope *Scope, t *binding.Transformer, req *connection.Request, socket *connection.WebSocket) *Resolver {
	return &Resolver{
		graph:       graph,
		scope:       scope,
		transformer: t,
		request:     req,
		socket:      socket,
	}
}

// Scope returns the request scope.
func (r *Resolver) Scope() *Scope {
	return r.scope
}

// ResolveDependency implements [binding.DependencyResolver].
func (r *Resolver) ResolveDependency(ctx context.Context, name string) (any, error) {
	return r.Resolve(ctx, name)
}

// Resolve returns the value of the dependency registered under name.
//
// Cached values are reused within the scope. A factory's own parameters are
// bound first, then the factory is called; a scoped factory's release
// function is pushed on the scope's teardown stack. Re-entering a dependency
// that is being resolved is an [errors.ImproperlyConfigured].
func (r *Resolver) Resolve(ctx context.Context, name string) (any, error) {
	d, ok := r.graph.Dependency(name)
	if !ok {
		return nil, errors.NewImproperlyConfigured("unknown dependency %q", name)
	}
	if d.isValue {
		return d.value, nil
	}
	if d.useCache {
		if v, ok := r.scope.cached(d.id); ok {
			return v, nil
		}
	}

	if !r.scope.enter(d.id) {
		return nil, errors.NewImproperlyConfigured("dependency cycle detected at %q", name)
	}
	defer r.scope.leave(d.id)

	m := r.graph.Model(name)
	input, err := r.transformer.Bind(ctx, m, binding.Input{
		Request:      r.request,
		Socket:       r.socket,
		Dependencies: r,
	})
	if err != nil {
		return nil, err
	}

	out, err := m.Call(ctx, r.request, r.socket, input)
	if out.Cleanup != nil {
		if pushErr := r.scope.Push(out.Cleanup); pushErr != nil && err == nil {
			err = pushErr
		}
	}
	if err != nil {
		return nil, err
	}

	if d.useCache {
		r.scope.store(d.id, out.Value)
	}
	return out.Value, nil
}
