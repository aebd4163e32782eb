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

// Package response shapes handler results into HTTP responses.
//
// A handler may return a fully built [*Response], a container ([JSON],
// [OrJSON], [UJSON], [Redirect], [Template], [File], [Stream]) or a raw value
// serialized by the route's [Class]. [Shape] applies the route's declared
// status, inherited headers and cookies, and drops the body of body-less
// statuses (1xx, 204, 304).
//
// [Writer] wraps an http.ResponseWriter to record the status and size
// written, keeping Flush and Hijack available to streaming responses and
// websocket upgrades.
package response
