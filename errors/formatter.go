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

// Formatter renders an error as HTTP response components.
//
// Example:
//
//	res := errors.NewSimple(false).Format(req, err)
//	w.Header().Set("Content-Type", res.ContentType)
//	w.WriteHeader(res.Status)
//	json.NewEncoder(w).Encode(res.Body)
type Formatter interface {
	Format(req *http.Request, err error) Response
}

// Response represents a formatted error response.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body is marshaled as JSON. A nil body writes no content.
	Body any

	// Headers are added to the response.
	Headers http.Header
}

// ErrorType allows errors to declare their own HTTP status code.
type ErrorType interface {
	error
	HTTPStatus() int
}

// ErrorDetails allows errors to provide structured information.
type ErrorDetails interface {
	error
	Details() any
}

// ErrorCode allows errors to provide a machine-readable code.
type ErrorCode interface {
	error
	Code() string
}

// WithStatus wraps err with an explicit HTTP status code.
// A nil err uses the status text as message.
//
// Example:
//
//	return errors.WithStatus(err, http.StatusConflict)
func WithStatus(err error, status int) error {
	return &statusError{err: err, status: status}
}

type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string {
	if e.err == nil {
		return http.StatusText(e.status)
	}
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

func (e *statusError) HTTPStatus() int {
	return e.status
}

// StatusOf returns the status declared by the first [ErrorType] in err's chain,
// or 500.
func StatusOf(err error) int {
	var typed ErrorType
	if errors.As(err, &typed) {
		return typed.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// HeadersOf returns the headers of the first [HTTPException] in err's chain.
func HeadersOf(err error) http.Header {
	var exc *HTTPException
	if errors.As(err, &exc) {
		return exc.Headers
	}
	return nil
}

// Normalize returns err unchanged when it declares a status and wraps it in
// [InternalServerError] otherwise.
func Normalize(err error) error {
	var typed ErrorType
	if errors.As(err, &typed) {
		return err
	}
	return NewInternalServerError(err)
}
