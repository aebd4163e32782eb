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

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func withClock(c *fakeClock) Option {
	return func(cfg *config) { cfg.now = c.Now }
}

func serve(t *testing.T, h func(http.ResponseWriter, *connection.Request) error, remote, path string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	return w, h(w, connection.NewRequest(r, 0))
}

func ok(http.ResponseWriter, *connection.Request) error { return nil }

func TestRateLimit_Burst(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	h := New(WithRequestsPerSecond(1), WithBurst(2), withClock(clock))(ok)

	w, err := serve(t, h, "10.0.0.1:1234", "/items")
	require.NoError(t, err)
	assert.Equal(t, "2", w.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("RateLimit-Remaining"))

	_, err = serve(t, h, "10.0.0.1:1234", "/items")
	require.NoError(t, err)

	w, err = serve(t, h, "10.0.0.1:1234", "/items")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, kerrors.StatusOf(err))
	assert.Equal(t, "1", kerrors.HeadersOf(err).Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	// Another client has its own bucket.
	_, err = serve(t, h, "10.0.0.2:1234", "/items")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = serve(t, h, "10.0.0.1:1234", "/items")
	assert.NoError(t, err)
}

func TestRateLimit_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []Option
		remotes  []string
		path     string
		wantErrs int
	}{
		{
			name:     "skip path",
			opts:     []Option{WithBurst(1), WithSkipPaths("/health")},
			remotes:  []string{"a:1", "a:1", "a:1"},
			path:     "/health",
			wantErrs: 0,
		},
		{
			name: "custom key shares a bucket across clients",
			opts: []Option{WithBurst(1), WithKeyFunc(func(*connection.Request) string {
				return "global"
			})},
			remotes:  []string{"a:1", "b:1", "c:1"},
			path:     "/",
			wantErrs: 2,
		},
		{
			name:     "per ip",
			opts:     []Option{WithBurst(1)},
			remotes:  []string{"a:1", "b:1", "c:1"},
			path:     "/",
			wantErrs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
			h := New(append(tt.opts, WithRequestsPerSecond(0.001), withClock(clock))...)(ok)
			errs := 0
			for _, remote := range tt.remotes {
				if _, err := serve(t, h, remote, tt.path); err != nil {
					errs++
				}
			}
			assert.Equal(t, tt.wantErrs, errs)
		})
	}
}

func TestRateLimit_IdleBucketsAreDropped(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	st := &store{
		buckets:   map[string]*bucket{},
		limit:     1,
		burst:     1,
		ttl:       time.Minute,
		lastSweep: clock.Now(),
	}
	st.take("a", clock.Now())
	clock.Advance(30 * time.Second)
	st.take("b", clock.Now())
	clock.Advance(45 * time.Second)
	st.take("b", clock.Now())

	assert.Len(t, st.buckets, 1)
	assert.Contains(t, st.buckets, "b")
}

func TestRateLimit_WithoutHeaders(t *testing.T) {
	t.Parallel()

	w, err := serve(t, New(WithoutHeaders())(ok), "a:1", "/")
	require.NoError(t, err)
	assert.Empty(t, w.Header().Get("RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::1]:8000"
	assert.Equal(t, "::1", ClientIP(connection.NewRequest(r, 0)))
	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(connection.NewRequest(r, 0)))
}
