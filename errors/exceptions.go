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

// HTTPException is an error carrying an HTTP status code and a client-facing detail.
// It is the base of every error kind in this package.
type HTTPException struct {
	// StatusCode is the HTTP status sent to the client.
	StatusCode int

	// Detail is the human readable message rendered in the response body.
	Detail string

	// Headers are added to the error response.
	Headers http.Header

	// Extra holds additional members rendered next to the detail.
	Extra map[string]any

	cause error
}

// NewHTTPException creates an exception for status. An empty detail falls back
// to the status text.
func NewHTTPException(status int, detail string) *HTTPException {
	return &HTTPException{StatusCode: status, Detail: detailOr(status, detail)}
}

// Wrap creates an exception for status that keeps err reachable through [errors.Unwrap].
func Wrap(err error, status int, detail string) *HTTPException {
	e := NewHTTPException(status, detail)
	e.cause = err
	return e
}

// Error implements the error interface.
func (e *HTTPException) Error() string {
	return e.Detail
}

// HTTPStatus implements [ErrorType].
func (e *HTTPException) HTTPStatus() int {
	return e.StatusCode
}

// Unwrap returns the wrapped cause, if any.
func (e *HTTPException) Unwrap() error {
	return e.cause
}

func detailOr(status int, detail string) string {
	if detail != "" {
		return detail
	}
	return http.StatusText(status)
}

// BadRequest is raised for malformed requests (400).
type BadRequest struct{ HTTPException }

// NewBadRequest creates a 400 error.
func NewBadRequest(detail string) *BadRequest {
	return &BadRequest{HTTPException{StatusCode: http.StatusBadRequest, Detail: detailOr(http.StatusBadRequest, detail)}}
}

func (e *BadRequest) Unwrap() error { return &e.HTTPException }

// NotAuthorized is raised when a permission or credential check fails (401).
type NotAuthorized struct{ HTTPException }

// NewNotAuthorized creates a 401 error.
func NewNotAuthorized(detail string) *NotAuthorized {
	return &NotAuthorized{HTTPException{StatusCode: http.StatusUnauthorized, Detail: detailOr(http.StatusUnauthorized, detail)}}
}

func (e *NotAuthorized) Unwrap() error { return &e.HTTPException }

// PermissionDenied is raised when an authenticated caller may not perform an action (403).
type PermissionDenied struct{ HTTPException }

// NewPermissionDenied creates a 403 error.
func NewPermissionDenied(detail string) *PermissionDenied {
	return &PermissionDenied{HTTPException{StatusCode: http.StatusForbidden, Detail: detailOr(http.StatusForbidden, detail)}}
}

func (e *PermissionDenied) Unwrap() error { return &e.HTTPException }

// NotFound is raised when no route or resource matches (404).
type NotFound struct{ HTTPException }

// NewNotFound creates a 404 error.
func NewNotFound(detail string) *NotFound {
	return &NotFound{HTTPException{StatusCode: http.StatusNotFound, Detail: detailOr(http.StatusNotFound, detail)}}
}

func (e *NotFound) Unwrap() error { return &e.HTTPException }

// MethodNotAllowed is raised when a path matches but the method does not (405).
// The Allow header lists the methods registered for the path.
type MethodNotAllowed struct {
	HTTPException

	// Allowed lists the methods the matched path accepts.
	Allowed []string
}

// NewMethodNotAllowed creates a 405 error advertising allowed.
func NewMethodNotAllowed(allowed []string) *MethodNotAllowed {
	e := &MethodNotAllowed{
		HTTPException: HTTPException{
			StatusCode: http.StatusMethodNotAllowed,
			Detail:     http.StatusText(http.StatusMethodNotAllowed),
			Headers:    http.Header{},
		},
		Allowed: allowed,
	}
	e.Headers.Set("Allow", strings.Join(allowed, ", "))
	return e
}

func (e *MethodNotAllowed) Unwrap() error { return &e.HTTPException }

// UnsupportedMediaType is raised when a request body cannot be decoded (415).
type UnsupportedMediaType struct {
	HTTPException

	// MediaType is the rejected media type.
	MediaType string
}

// NewUnsupportedMediaType creates a 415 error for mediaType.
func NewUnsupportedMediaType(mediaType string) *UnsupportedMediaType {
	return &UnsupportedMediaType{
		HTTPException: HTTPException{
			StatusCode: http.StatusUnsupportedMediaType,
			Detail:     fmt.Sprintf("Unsupported media type %q", mediaType),
		},
		MediaType: mediaType,
	}
}

func (e *UnsupportedMediaType) Unwrap() error { return &e.HTTPException }

// ServiceUnavailable is raised when a dependency of the handler is down (503).
type ServiceUnavailable struct{ HTTPException }

// NewServiceUnavailable creates a 503 error.
func NewServiceUnavailable(detail string) *ServiceUnavailable {
	return &ServiceUnavailable{HTTPException{StatusCode: http.StatusServiceUnavailable, Detail: detailOr(http.StatusServiceUnavailable, detail)}}
}

func (e *ServiceUnavailable) Unwrap() error { return &e.HTTPException }

// InternalServerError is the normalized form of any error that carries no status (500).
// The client-facing detail never includes the cause.
type InternalServerError struct {
	HTTPException

	// Stack is the goroutine stack captured where the error was recovered, if any.
	Stack []byte
}

// NewInternalServerError wraps cause as a 500 error.
func NewInternalServerError(cause error) *InternalServerError {
	return &InternalServerError{HTTPException: HTTPException{
		StatusCode: http.StatusInternalServerError,
		Detail:     http.StatusText(http.StatusInternalServerError),
		cause:      cause,
	}}
}

// Error includes the cause so logs stay useful.
func (e *InternalServerError) Error() string {
	if e.cause != nil {
		return e.Detail + ": " + e.cause.Error()
	}
	return e.Detail
}

func (e *InternalServerError) Unwrap() error { return &e.HTTPException }

// ImproperlyConfigured reports a configuration error. Raised while building an
// application it aborts startup; raised while serving it renders as a 500.
type ImproperlyConfigured struct {
	Message string
}

// NewImproperlyConfigured formats a configuration error.
func NewImproperlyConfigured(format string, args ...any) *ImproperlyConfigured {
	return &ImproperlyConfigured{Message: fmt.Sprintf(format, args...)}
}

func (e *ImproperlyConfigured) Error() string {
	return "improperly configured: " + e.Message
}

// HTTPStatus implements [ErrorType].
func (e *ImproperlyConfigured) HTTPStatus() int {
	return http.StatusInternalServerError
}
