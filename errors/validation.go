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

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorDetail describes one failed input.
type ErrorDetail struct {
	// Loc is the location of the input: a source ("path", "query", "header",
	// "cookie", "body") followed by field names and sequence indexes.
	Loc []any `json:"loc"`

	// Msg is the human readable message.
	Msg string `json:"msg"`

	// Type is a machine readable error type such as "missing" or "int_parsing".
	Type string `json:"type"`

	// Input is the rejected raw value, when one was provided.
	Input any `json:"input,omitempty"`

	// Ctx carries constraint parameters (limits, patterns, allowed values).
	Ctx map[string]any `json:"ctx,omitempty"`
}

// Loc builds an error location.
func Loc(parts ...any) []any {
	return parts
}

// String renders the detail as "query.q: msg".
func (d ErrorDetail) String() string {
	parts := make([]string, len(d.Loc))
	for i, p := range d.Loc {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".") + ": " + d.Msg
}

// ValidationError collects every input that failed binding (422).
type ValidationError struct {
	HTTPException

	Errors []ErrorDetail
}

// NewValidationError creates a 422 error holding details.
func NewValidationError(details ...ErrorDetail) *ValidationError {
	return &ValidationError{
		HTTPException: HTTPException{
			StatusCode: http.StatusUnprocessableEntity,
			Detail:     http.StatusText(http.StatusUnprocessableEntity),
		},
		Errors: details,
	}
}

// Add appends details.
func (e *ValidationError) Add(details ...ErrorDetail) {
	e.Errors = append(e.Errors, details...)
}

// HasErrors reports whether any detail was collected.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns e when it holds details and nil otherwise.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation error: " + e.Errors[0].String()
	}
	msgs := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		msgs[i] = d.String()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Details implements [ErrorDetails].
func (e *ValidationError) Details() any {
	return e.Errors
}

// Code implements [ErrorCode].
func (e *ValidationError) Code() string {
	return "validation_error"
}

func (e *ValidationError) Unwrap() error { return &e.HTTPException }
