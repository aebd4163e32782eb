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

// Package compiler compiles route path patterns such as "/users/{id:int}" into
// matchers that extract typed parameters, and reverses them back into URLs.
//
// Parameters use the form {name} (a "str" parameter) or {name:convertor}.
// Built-in convertors are str, int, float, uuid, path and slug; more can be
// added with [Register].
//
// Example:
//
//	p, err := compiler.Compile("/items/{id:int}", false)
//	res, ok, err := p.Match("/items/42") // res.Params["id"] == int64(42)
//	url, err := p.Format(map[string]any{"id": 42}) // "/items/42"
package compiler
