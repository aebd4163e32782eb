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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds_UnwrapToHTTPException(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad request", NewBadRequest(""), http.StatusBadRequest},
		{"not authorized", NewNotAuthorized(""), http.StatusUnauthorized},
		{"permission denied", NewPermissionDenied(""), http.StatusForbidden},
		{"not found", NewNotFound(""), http.StatusNotFound},
		{"method not allowed", NewMethodNotAllowed([]string{"GET"}), http.StatusMethodNotAllowed},
		{"unsupported media type", NewUnsupportedMediaType("text/csv"), http.StatusUnsupportedMediaType},
		{"validation", NewValidationError(), http.StatusUnprocessableEntity},
		{"service unavailable", NewServiceUnavailable("db down"), http.StatusServiceUnavailable},
		{"internal", NewInternalServerError(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var exc *HTTPException
			require.ErrorAs(t, tt.err, &exc)
			assert.Equal(t, tt.wantStatus, exc.StatusCode)
			assert.Equal(t, tt.wantStatus, StatusOf(tt.err))
			assert.NotEmpty(t, exc.Detail)
		})
	}
}

func TestKinds_WrappedKeepsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("loading item: %w", NewNotFound("no such item"))

	var nf *NotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "no such item", nf.Detail)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestMethodNotAllowed_AllowHeader(t *testing.T) {
	t.Parallel()

	err := NewMethodNotAllowed([]string{"GET", "HEAD"})
	assert.Equal(t, "GET, HEAD", err.Headers.Get("Allow"))
	assert.Equal(t, "GET, HEAD", HeadersOf(err).Get("Allow"))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	normalized := Normalize(plain)

	var ise *InternalServerError
	require.ErrorAs(t, normalized, &ise)
	assert.ErrorIs(t, normalized, plain)

	nf := NewNotFound("")
	assert.Same(t, nf, Normalize(nf))
}

func TestValidationError_Collects(t *testing.T) {
	t.Parallel()

	verr := NewValidationError()
	require.NoError(t, verr.Err())

	verr.Add(ErrorDetail{Loc: Loc("query", "q"), Msg: "Input should be a valid integer", Type: "int_parsing"})
	verr.Add(ErrorDetail{Loc: Loc("body", "items", 2), Msg: "Field required", Type: "missing"})

	require.Error(t, verr.Err())
	assert.Contains(t, verr.Error(), "2 validation errors")
	assert.Contains(t, verr.Error(), "body.items.2: Field required")
	assert.Equal(t, "validation_error", verr.Code())
}

func TestImproperlyConfigured(t *testing.T) {
	t.Parallel()

	err := NewImproperlyConfigured("unknown convertor %q", "hex")
	assert.Equal(t, `improperly configured: unknown convertor "hex"`, err.Error())
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestWithStatus(t *testing.T) {
	t.Parallel()

	base := errors.New("conflict")
	err := WithStatus(base, http.StatusConflict)
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	require.ErrorIs(t, err, base)

	assert.Equal(t, "No Content", WithStatus(nil, http.StatusNoContent).Error())
}

func TestSimple_Format(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		formatter  *Simple
		err        error
		wantStatus int
		wantDetail any
	}{
		{
			name:       "plain error hides cause",
			formatter:  NewSimple(false),
			err:        errors.New("db password is hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal Server Error",
		},
		{
			name:       "http exception",
			formatter:  NewSimple(false),
			err:        NewHTTPException(http.StatusTeapot, "short and stout"),
			wantStatus: http.StatusTeapot,
			wantDetail: "short and stout",
		},
		{
			name:       "user raised 503 keeps detail",
			formatter:  NewSimple(false),
			err:        NewServiceUnavailable("maintenance"),
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "maintenance",
		},
		{
			name:       "status error",
			formatter:  NewSimple(false),
			err:        WithStatus(errors.New("gone"), http.StatusGone),
			wantStatus: http.StatusGone,
			wantDetail: "gone",
		},
		{
			name: "custom status resolver",
			formatter: &Simple{StatusResolver: func(error) int {
				return http.StatusTeapot
			}},
			err:        NewNotFound("missing"),
			wantStatus: http.StatusTeapot,
			wantDetail: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			res := tt.formatter.Format(req, tt.err)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, "application/json", res.ContentType)

			body, ok := res.Body.(map[string]any)
			require.True(t, ok, "Body is not map[string]any, got %T", res.Body)
			assert.Equal(t, tt.wantDetail, body["detail"])
			assert.NotContains(t, body, "traceback")
		})
	}
}

func TestSimple_ValidationBody(t *testing.T) {
	t.Parallel()

	err := NewValidationError(ErrorDetail{Loc: Loc("query", "q"), Msg: "Input should be a valid integer", Type: "int_parsing", Input: "abc"})
	res := NewSimple(false).Format(httptest.NewRequest(http.MethodGet, "/items?q=abc", nil), err)

	data, marshalErr := json.Marshal(res.Body)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"detail":[{"loc":["query","q"],"msg":"Input should be a valid integer","type":"int_parsing","input":"abc"}]}`, string(data))
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
}

func TestSimple_DebugTraceback(t *testing.T) {
	t.Parallel()

	ise := NewInternalServerError(errors.New("boom"))
	ise.Stack = []byte("goroutine 1 [running]:")

	res := NewSimple(true).Format(httptest.NewRequest(http.MethodGet, "/", nil), ise)
	body, ok := res.Body.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "Internal Server Error", body["detail"])
	assert.Equal(t, "Internal Server Error: boom", body["error"])
	assert.Equal(t, "goroutine 1 [running]:", body["traceback"])
}

func TestSimple_HeadersAndExtra(t *testing.T) {
	t.Parallel()

	exc := NewHTTPException(http.StatusTooManyRequests, "slow down")
	exc.Headers = http.Header{"Retry-After": {"30"}}
	exc.Extra = map[string]any{"limit": 10}

	res := NewSimple(false).Format(httptest.NewRequest(http.MethodGet, "/", nil), exc)
	body := res.Body.(map[string]any)

	assert.Equal(t, "30", res.Headers.Get("Retry-After"))
	assert.Equal(t, 10, body["limit"])
	assert.Equal(t, "slow down", body["detail"])
}

func TestRFC9457_Format(t *testing.T) {
	t.Parallel()

	f := NewRFC9457("https://api.example.com/problems")
	f.ErrorIDGenerator = func() string { return "err-fixed" }

	err := NewValidationError(ErrorDetail{Loc: Loc("body", "name"), Msg: "Field required", Type: "missing"})
	res := f.Format(httptest.NewRequest(http.MethodPost, "/users", nil), err)

	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Equal(t, "application/problem+json", res.ContentType)

	data, marshalErr := json.Marshal(res.Body)
	require.NoError(t, marshalErr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "https://api.example.com/problems/validation_error", got["type"])
	assert.Equal(t, "Unprocessable Entity", got["title"])
	assert.InDelta(t, 422, got["status"], 0)
	assert.Equal(t, "/users", got["instance"])
	assert.Equal(t, "err-fixed", got["error_id"])
	assert.Len(t, got["errors"], 1)
}

func TestRFC9457_HidesInternalCause(t *testing.T) {
	t.Parallel()

	f := &RFC9457{DisableErrorID: true}
	res := f.Format(httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret"))

	p, ok := res.Body.(ProblemDetail)
	require.True(t, ok)
	assert.Empty(t, p.Detail)
	assert.Equal(t, "about:blank", p.Type)
	assert.NotContains(t, p.Extensions, "error_id")
}

func TestProblemDetail_ReservedExtensions(t *testing.T) {
	t.Parallel()

	p := ProblemDetail{
		Type:       "about:blank",
		Title:      "Bad Request",
		Status:     http.StatusBadRequest,
		Extensions: map[string]any{"status": 999, "trace": "abc"},
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"about:blank","title":"Bad Request","status":400,"trace":"abc"}`, string(data))
}
