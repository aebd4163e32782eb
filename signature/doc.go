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

// Package signature introspects handler and dependency functions once, at
// route registration, and produces a [Model]: the typed parameter
// descriptors the binder fills and a pre-indexed invoker.
//
// A function may accept, in any order and at most once each, a
// context.Context, a *connection.Request, a *connection.WebSocket and one
// input struct (or pointer to struct). The exported fields of the input
// struct are the parameters:
//
//	type GetItem struct {
//		ID    int     `path:"id"`
//		Q     *string `query:"q" validate:"min=3"`
//		Token string  `header:"x-token"`
//		User  *User   `dep:"current_user"`
//	}
//
//	func getItem(ctx context.Context, in GetItem) (*Item, error)
//
// Fields without a location tag are placed by name and type: reserved names
// (request, socket, headers, query, cookies, state, data, payload), then
// dependency names, then path parameter names, then query for scalars and
// body for structured types.
package signature
