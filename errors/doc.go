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

// Package errors defines the error kinds raised inside the request pipeline
// and the formatters that turn them into HTTP responses.
//
// Every kind embeds [HTTPException] and unwraps to it, so a handler registered
// for a kind also sees every error that wraps that kind, and a handler keyed by
// status code matches any kind carrying that status.
//
// Example:
//
//	return nil, errors.NewNotFound("item not found")
//
//	exc := errors.NewHTTPException(http.StatusTeapot, "short and stout")
//	exc.Headers = http.Header{"X-Pot": {"tea"}}
//	return nil, exc
//
// Errors that do not carry a status are reported as [InternalServerError].
package errors
