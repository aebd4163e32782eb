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

// Package openapi generates OpenAPI 3.1 documents from built routes.
//
// [Generate] walks the routes once. Every HTTP method of a route included in
// the schema becomes an operation carrying its operation id, tags, summary,
// parameters, request body and responses. Operations that take any input
// also document the 422 validation error response.
//
// Named struct types become component schemas referenced by name. Names are
// the Go type names; when two packages declare the same name, every
// colliding type is qualified with its package.
//
// Documents encode deterministically as JSON ([Document.JSON]) or YAML
// ([Document.YAML]). [SpecHandler] serves them with ETag caching and
// [DocsHandler] serves a Swagger UI page.
package openapi
