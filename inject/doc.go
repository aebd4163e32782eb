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

// Package inject resolves handler dependencies for one request.
//
// A [Dependency] wraps a factory function analyzed like a handler: its input
// struct may itself ask for path, query, header or body values and for other
// dependencies by name. A [Graph] is the frozen set of dependencies visible
// to one route; it is checked for cycles when the route is built. At request
// time a [Resolver] walks the graph on demand, caching values per [Scope] and
// pushing the release functions of scoped resources on the scope's teardown
// stack, which [Scope.Close] drains in LIFO order.
//
// A factory returning (T, func(), error) or (T, func() error, error) is a
// scoped resource:
//
//	func openSession(ctx context.Context, in struct{ DB *sql.DB `dep:"db"` }) (*Session, func() error, error) {
//		s, err := begin(ctx, in.DB)
//		if err != nil {
//			return nil, nil, err
//		}
//		return s, s.Close, nil
//	}
//
//	router.WithDependency("session", inject.Inject(openSession))
package inject
