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
	"errors"
	"net/http"
)

// Simple renders errors as {"detail": ...}.
// Validation errors render their list of [ErrorDetail] as the detail.
// Server errors never expose their cause unless Debug is set, in which case
// the error text and captured stack are added.
type Simple struct {
	// Debug adds "error" and "traceback" members to 5xx responses.
	Debug bool

	// StatusResolver determines the status from err.
	// If nil, [StatusOf] is used.
	StatusResolver func(err error) int
}

// NewSimple creates a Simple formatter.
func NewSimple(debug bool) *Simple {
	return &Simple{Debug: debug}
}

// Format implements [Formatter].
func (f *Simple) Format(_ *http.Request, err error) Response {
	status := f.determineStatus(err)
	body := map[string]any{}

	var (
		detailed ErrorDetails
		exc      *HTTPException
	)
	switch {
	case errors.As(err, &detailed):
		body["detail"] = detailed.Details()
	case status >= http.StatusInternalServerError && !isUserException(err):
		body["detail"] = http.StatusText(http.StatusInternalServerError)
		if f.Debug {
			body["error"] = err.Error()
			var ise *InternalServerError
			if errors.As(err, &ise) && len(ise.Stack) > 0 {
				body["traceback"] = string(ise.Stack)
			}
		}
	case errors.As(err, &exc):
		body["detail"] = exc.Detail
	default:
		body["detail"] = err.Error()
	}

	if errors.As(err, &exc) {
		for k, v := range exc.Extra {
			if k != "detail" {
				body[k] = v
			}
		}
	}

	return Response{
		Status:      status,
		ContentType: "application/json",
		Body:        body,
		Headers:     HeadersOf(err),
	}
}

func (f *Simple) determineStatus(err error) int {
	if f.StatusResolver != nil {
		return f.StatusResolver(err)
	}
	return StatusOf(err)
}

// isUserException reports whether the status was raised deliberately through
// an HTTPException other than the normalized InternalServerError.
func isUserException(err error) bool {
	var ise *InternalServerError
	if errors.As(err, &ise) {
		return false
	}
	var exc *HTTPException
	return errors.As(err, &exc)
}
