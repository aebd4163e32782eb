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
	"maps"
	"slices"
	"strings"

	"rivaas.dev/keel/errors"
	"rivaas.dev/keel/signature"
)

// Graph is the frozen set of dependencies visible to one route, with the
// signature model of every factory analyzed against the route path.
type Graph struct {
	deps   map[string]*Dependency
	models map[string]*signature.Model
}

// NewGraph analyzes every factory in deps and rejects cycles and references
// to unknown dependencies.
func NewGraph(deps map[string]*Dependency, pathParams []string) (*Graph, error) {
	g := &Graph{
		deps:   make(map[string]*Dependency, len(deps)),
		models: make(map[string]*signature.Model, len(deps)),
	}
	visible := make(map[string]bool, len(deps))
	for name := range deps {
		visible[name] = true
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(deps)) {
		d := deps[name]
		if d == nil {
			errs = append(errs, errors.NewImproperlyConfigured("dependency %q is nil", name))
			continue
		}
		m, err := d.model(name, pathParams, visible)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		g.deps[name] = d
		if m != nil {
			g.models[name] = m
		}
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if err := CheckCycles(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Names returns the dependency names in sorted order.
func (g *Graph) Names() []string {
	return slices.Sorted(maps.Keys(g.deps))
}

// Dependency returns the dependency registered under name.
func (g *Graph) Dependency(name string) (*Dependency, bool) {
	d, ok := g.deps[name]
	return d, ok
}

// Model returns the factory model of name, nil for values.
func (g *Graph) Model(name string) *signature.Model {
	return g.models[name]
}

// Has reports whether name is a known dependency.
func (g *Graph) Has(name string) bool {
	_, ok := g.deps[name]
	return ok
}

// Requires checks that every dependency parameter of m is in the graph.
func (g *Graph) Requires(m *signature.Model) error {
	for _, name := range m.DependencyNames() {
		if !g.Has(name) {
			return errors.NewImproperlyConfigured("%s requires unknown dependency %q", m.Name, name)
		}
	}
	return nil
}

// CheckCycles walks the graph depth first and fails on the first cycle or
// unknown dependency reference.
func CheckCycles(g *Graph) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.deps))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return errors.NewImproperlyConfigured("dependency cycle: %s", strings.Join(cycle, " -> "))
		case done:
			return nil
		}
		state[name] = visiting
		path = append(path, name)

		if m := g.models[name]; m != nil {
			if err := g.Requires(m); err != nil {
				return err
			}
			for _, next := range m.DependencyNames() {
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, name := range g.Names() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
