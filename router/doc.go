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

// Package router holds the route tree: includes, gateways, websocket
// gateways and mounts, each contributing a [Layer] of configuration to the
// routes below it.
//
// # Building
//
// [Router.Build] flattens the tree into [Route] values. Each route carries
// its compiled path, the analyzed signature of its handler, the dependency
// graph visible to it and an [Effective] snapshot merged from the root to the
// leaf. Every configuration problem found is reported at once.
//
// # Matching
//
// Literal paths are looked up in a map; parameterized paths are tried in
// order, literal routes first and longer literal prefixes before shorter ones.
// A path that matches with the wrong method yields MethodNotAllowed listing
// the methods of that path. GET routes also serve HEAD.
//
// # Quick Start
//
//	r := router.New([]router.Node{
//		router.NewInclude("/items", []router.Node{
//			router.NewGateway("/{id:int}", router.Get(getItem)),
//			router.NewGateway("", router.Post(createItem)),
//		}, router.WithName("items"), router.WithTags("items")),
//	})
//	if err := r.Build(router.BuildOptions{}); err != nil {
//		log.Fatal(err)
//	}
//
// The tree is frozen with [Router.Freeze] when the application starts
// serving; [Router.AddRoute] remains available and re-validates the tree.
package router
