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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// RFC9457 renders errors as RFC 9457 problem details
// (Content-Type "application/problem+json").
//
// Example:
//
//	app.New(app.WithErrorFormatter(errors.NewRFC9457("https://api.example.com/problems")))
type RFC9457 struct {
	// BaseURL is prepended to error codes to build the problem type URI.
	BaseURL string

	// TypeResolver maps an error to a problem type URI.
	// If nil, the [ErrorCode] of the error is used, or "about:blank".
	TypeResolver func(err error) string

	// StatusResolver determines the status from err.
	// If nil, [StatusOf] is used.
	StatusResolver func(err error) int

	// ErrorIDGenerator generates the "error_id" extension.
	// If nil, a random UUID is used.
	ErrorIDGenerator func() string

	// DisableErrorID omits the "error_id" extension.
	DisableErrorID bool
}

// NewRFC9457 creates an RFC9457 formatter.
func NewRFC9457(baseURL string) *RFC9457 {
	return &RFC9457{BaseURL: baseURL}
}

// ProblemDetail is an RFC 9457 problem details object.
type ProblemDetail struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	Extensions map[string]any `json:"-"`
}

// MarshalJSON inlines the extensions. Extensions never override the standard members.
func (p ProblemDetail) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		m["detail"] = p.Detail
	}
	if p.Instance != "" {
		m["instance"] = p.Instance
	}
	for k, v := range p.Extensions {
		switch k {
		case "type", "title", "status", "detail", "instance":
		default:
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Format implements [Formatter].
func (f *RFC9457) Format(req *http.Request, err error) Response {
	status := StatusOf(err)
	if f.StatusResolver != nil {
		status = f.StatusResolver(err)
	}

	p := ProblemDetail{
		Type:       f.determineType(err),
		Title:      http.StatusText(status),
		Status:     status,
		Extensions: map[string]any{},
	}
	if req != nil {
		p.Instance = req.URL.Path
	}

	var exc *HTTPException
	switch {
	case status >= http.StatusInternalServerError && !isUserException(err):
		// The cause stays in the server log.
	case errors.As(err, &exc):
		p.Detail = exc.Detail
		for k, v := range exc.Extra {
			p.Extensions[k] = v
		}
	default:
		p.Detail = err.Error()
	}

	if !f.DisableErrorID {
		if f.ErrorIDGenerator != nil {
			p.Extensions["error_id"] = f.ErrorIDGenerator()
		} else {
			p.Extensions["error_id"] = "err-" + uuid.NewString()
		}
	}

	var detailed ErrorDetails
	if errors.As(err, &detailed) {
		p.Extensions["errors"] = detailed.Details()
	}

	var coded ErrorCode
	if errors.As(err, &coded) {
		p.Extensions["code"] = coded.Code()
	}

	return Response{
		Status:      status,
		ContentType: "application/problem+json",
		Body:        p,
		Headers:     HeadersOf(err),
	}
}

func (f *RFC9457) determineType(err error) string {
	if f.TypeResolver != nil {
		return f.TypeResolver(err)
	}
	var coded ErrorCode
	if errors.As(err, &coded) {
		if f.BaseURL != "" {
			return f.BaseURL + "/" + coded.Code()
		}
		return coded.Code()
	}
	return "about:blank"
}
