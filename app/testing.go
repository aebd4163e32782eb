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

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"
)

// TestOption configures [App.Test].
type TestOption func(*testConfig)

type testConfig struct {
	timeout time.Duration
	ctx     context.Context //nolint:containedctx // test configuration
	header  http.Header
}

// WithTimeout bounds how long [App.Test] waits for the handler. Zero or a
// negative value waits forever. The default is one second.
//
// Example:
//
//	resp, err := a.Test(req, app.WithTimeout(5*time.Second))
func WithTimeout(d time.Duration) TestOption {
	return func(cfg *testConfig) { cfg.timeout = d }
}

// WithContext runs the test request under ctx, for example to observe
// teardown after cancellation.
func WithContext(ctx context.Context) TestOption {
	return func(cfg *testConfig) { cfg.ctx = ctx }
}

// WithTestHeader sets a request header before the request is served.
func WithTestHeader(key, value string) TestOption {
	return func(cfg *testConfig) { cfg.header.Set(key, value) }
}

// Test serves req in process and returns the recorded response. Startup
// hooks are not run; use [App.TestLifespan] for that.
//
// The handler runs on its own goroutine. When the timeout expires first, Test
// returns an error and the handler is left to observe the cancelled context.
// A handler panic that escapes the recovery middleware is returned as an
// error.
//
// Example:
//
//	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
//	resp, err := a.Test(req)
//	require.NoError(t, err)
//	assert.Equal(t, http.StatusOK, resp.StatusCode)
func (a *App) Test(req *http.Request, opts ...TestOption) (*http.Response, error) {
	cfg := &testConfig{
		timeout: time.Second,
		ctx:     context.Background(),
		header:  http.Header{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := cfg.ctx
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	req = req.WithContext(ctx)
	for k, vs := range cfg.header {
		req.Header[k] = vs
	}

	rec := httptest.NewRecorder()
	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		a.ServeHTTP(rec, req)
	}()

	select {
	case p := <-done:
		if p != nil {
			return nil, fmt.Errorf("handler panicked: %v", p)
		}
		return rec.Result(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request timeout: %w", ctx.Err())
	}
}

// TestJSON sends body encoded as JSON to path. A nil body sends an empty
// request body.
//
// Example:
//
//	resp, err := a.TestJSON(http.MethodPost, "/items", map[string]any{"name": "Foo"})
func (a *App) TestJSON(method, path string, body any, opts ...TestOption) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return a.Test(req, opts...)
}

// TestLifespan runs the startup phase, then fn, then the shutdown phase,
// the way a server would around the requests fn sends. A startup failure is
// returned without calling fn.
//
// Example:
//
//	err := a.TestLifespan(t.Context(), func() error {
//	    resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
//	    ...
//	})
func (a *App) TestLifespan(ctx context.Context, fn func() error) error {
	if err := a.Startup(ctx); err != nil {
		return err
	}
	defer a.Shutdown(context.WithoutCancel(ctx))
	return fn()
}

// ExpectJSON checks the status and JSON content type of resp and decodes
// its body into out. Any "+json" media type is accepted.
//
// Example:
//
//	var item Item
//	app.ExpectJSON(t, resp, http.StatusOK, &item)
func ExpectJSON(t testingT, resp *http.Response, status int, out any) {
	defer resp.Body.Close()
	if resp.StatusCode != status {
		t.Errorf("expected status %d, got %d", status, resp.StatusCode)
		return
	}
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
		t.Errorf("expected a JSON content type, got %q", resp.Header.Get("Content-Type"))
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Errorf("decode JSON: %v\nbody: %s", err, body)
	}
}

// ExpectDetail checks that resp is an error response with status and
// returns the "detail" member of its body: a string for HTTP exceptions, a
// list of error objects for validation failures.
//
// Example:
//
//	detail := app.ExpectDetail(t, resp, http.StatusNotFound)
//	assert.Equal(t, "Not Found", detail)
func ExpectDetail(t testingT, resp *http.Response, status int) any {
	var body struct {
		Detail any `json:"detail"`
	}
	ExpectJSON(t, resp, status, &body)
	return body.Detail
}

// testingT is the part of testing.T the expectations use.
type testingT interface {
	Errorf(format string, args ...any)
}
