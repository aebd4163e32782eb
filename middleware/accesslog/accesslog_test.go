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

package accesslog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func run(mw router.Middleware, h router.HandlerFunc, path string) error {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	req := connection.NewRequest(r, 0)
	req.RoutePath = "/items/{id}"
	return mw(h)(httptest.NewRecorder(), req)
}

func TestAccessLog(t *testing.T) {
	t.Parallel()

	okHandler := func(w http.ResponseWriter, _ *connection.Request) error {
		_, err := w.Write([]byte("hello"))
		return err
	}
	failing := func(http.ResponseWriter, *connection.Request) error {
		return kerrors.NewNotFound("")
	}
	broken := func(http.ResponseWriter, *connection.Request) error {
		return assert.AnError
	}

	tests := []struct {
		name      string
		opts      []Option
		handler   router.HandlerFunc
		path      string
		wantLevel string
		wantCode  float64
	}{
		{name: "success", handler: okHandler, path: "/items/1", wantLevel: "INFO", wantCode: 200},
		{name: "declared error", handler: failing, path: "/items/1", wantLevel: "WARN", wantCode: 404},
		{name: "plain error", handler: broken, path: "/items/1", wantLevel: "ERROR", wantCode: 500},
		{name: "excluded path", opts: []Option{WithExcludePaths("/health")}, handler: okHandler, path: "/health"},
		{name: "excluded prefix", opts: []Option{WithExcludePrefixes("/static/")}, handler: okHandler, path: "/static/app.js"},
		{name: "errors only skips success", opts: []Option{WithErrorsOnly()}, handler: okHandler, path: "/items/1"},
		{name: "errors only keeps errors", opts: []Option{WithErrorsOnly()}, handler: failing, path: "/items/1", wantLevel: "WARN", wantCode: 404},
		{name: "zero sample rate keeps requests without id", opts: []Option{WithSampleRate(0)}, handler: okHandler, path: "/items/1", wantLevel: "INFO", wantCode: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			_ = run(New(append(tt.opts, WithLogger(logger))...), tt.handler, tt.path)

			recs := records(t, &buf)
			if tt.wantLevel == "" {
				assert.Empty(t, recs)
				return
			}
			require.Len(t, recs, 1)
			assert.Equal(t, "access", recs[0]["msg"])
			assert.Equal(t, tt.wantLevel, recs[0]["level"])
			assert.Equal(t, tt.wantCode, recs[0]["status"])
			assert.Equal(t, "/items/{id}", recs[0]["route"])
		})
	}
}

func TestAccessLog_Slow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := New(WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))), WithErrorsOnly(), WithSlowThreshold(time.Millisecond))
	err := run(mw, func(http.ResponseWriter, *connection.Request) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, "/items/1")
	require.NoError(t, err)

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, true, recs[0]["slow"])
}

func TestAccessLog_NoLogger(t *testing.T) {
	t.Parallel()

	called := false
	err := run(New(), func(http.ResponseWriter, *connection.Request) error {
		called = true
		return nil
	}, "/")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestKeep_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := &config{sampleRate: 0.5}
	for _, id := range []string{"a", "b", "01HZX", "req-42"} {
		assert.Equal(t, cfg.keep(id), cfg.keep(id))
	}
	assert.True(t, (&config{sampleRate: 1}).keep("x"))
	assert.False(t, (&config{sampleRate: 0}).keep("x"))
}
