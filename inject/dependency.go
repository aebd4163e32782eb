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
	"sync/atomic"

	"rivaas.dev/keel/errors"
	"rivaas.dev/keel/signature"
)

var lastID atomic.Uint64

// Dependency is a named provider of a value. Identity is stable: the same
// Dependency registered under several names shares one cache entry.
type Dependency struct {
	id       uint64
	factory  any
	value    any
	isValue  bool
	useCache bool
	meta     any
}

// Option configures a [Dependency].
type Option func(*Dependency)

// WithoutCache resolves the dependency again each time it is requested.
func WithoutCache() Option {
	return func(d *Dependency) {
		d.useCache = false
	}
}

// WithMeta attaches documentation metadata, such as the security scheme a
// credential-extracting factory implements.
func WithMeta(meta any) Option {
	return func(d *Dependency) {
		d.meta = meta
	}
}

// Inject wraps a factory function. The factory follows the handler
// signature rules and must return a value.
func Inject(factory any, opts ...Option) *Dependency {
	d := &Dependency{
		id:       lastID.Add(1),
		factory:  factory,
		useCache: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Value wraps a constant.
func Value(v any) *Dependency {
	return &Dependency{
		id:       lastID.Add(1),
		value:    v,
		isValue:  true,
		useCache: true,
	}
}

// ID returns the identity used as cache key.
func (d *Dependency) ID() uint64 {
	return d.id
}

// UseCache reports whether resolved values are cached per request.
func (d *Dependency) UseCache() bool {
	return d.useCache
}

// IsValue reports whether d wraps a constant.
func (d *Dependency) IsValue() bool {
	return d.isValue
}

// Factory returns the wrapped factory, nil for values.
func (d *Dependency) Factory() any {
	return d.factory
}

// Meta returns the metadata attached with [WithMeta].
func (d *Dependency) Meta() any {
	return d.meta
}

// model analyzes the factory in the context of one route.
func (d *Dependency) model(name string, pathParams []string, visible map[string]bool) (*signature.Model, error) {
	if d.isValue {
		return nil, nil
	}
	if d.factory == nil {
		return nil, errors.NewImproperlyConfigured("dependency %q has no factory", name)
	}
	m, err := signature.Build(d.factory, signature.Options{
		Name:         name,
		PathParams:   pathParams,
		Dependencies: visible,
		Factory:      true,
	})
	if err != nil {
		return nil, errors.NewImproperlyConfigured("dependency %q: %v", name, err)
	}
	return m, nil
}
