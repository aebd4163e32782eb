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
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/logging"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

func recordHook(log *[]string, name string, err error) settings.Hook {
	return func(context.Context) error {
		*log = append(*log, name)
		return err
	}
}

func TestLifecycle_HooksRunInOrder(t *testing.T) {
	t.Parallel()

	var log []string
	s := settings.Defaults()
	s.OnStartup = []settings.Hook{recordHook(&log, "start-1", nil), recordHook(&log, "start-2", nil)}
	s.OnShutdown = []settings.Hook{
		recordHook(&log, "stop-1", errors.New("ignored")),
		recordHook(&log, "stop-2", nil),
	}
	a := newTestApp(t, WithSettings(s))
	require.NoError(t, a.OnShutdown(recordHook(&log, "stop-3", nil)))

	ctx := context.Background()
	require.NoError(t, a.Startup(ctx))
	assert.True(t, a.Started())
	assert.ErrorIs(t, a.Startup(ctx), ErrAlreadyStarted)
	assert.ErrorIs(t, a.OnStartup(recordHook(&log, "late", nil)), ErrAlreadyStarted)

	a.Shutdown(ctx)
	a.Shutdown(ctx)
	assert.False(t, a.Started())
	assert.Equal(t, []string{"start-1", "start-2", "stop-1", "stop-2", "stop-3"}, log)
}

func TestLifecycle_StartupFailureAborts(t *testing.T) {
	t.Parallel()

	var log []string
	boom := errors.New("database unreachable")
	s := settings.Defaults()
	s.OnStartup = []settings.Hook{
		recordHook(&log, "first", nil),
		recordHook(&log, "second", boom),
		recordHook(&log, "third", nil),
	}
	s.OnShutdown = []settings.Hook{recordHook(&log, "stop", nil)}
	a := newTestApp(t, WithSettings(s))

	err := a.Startup(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, a.Started())

	a.Shutdown(context.Background())
	assert.Equal(t, []string{"first", "second"}, log)
}

func TestLifecycle_Lifespan(t *testing.T) {
	t.Parallel()

	var log []string
	s := settings.Defaults()
	s.Lifespan = func(context.Context) (settings.Hook, error) {
		log = append(log, "setup")
		return recordHook(&log, "teardown", nil), nil
	}
	a := newTestApp(t, WithSettings(s))
	assert.ErrorIs(t, a.OnStartup(recordHook(&log, "hook", nil)), ErrLifespanConflict)

	require.NoError(t, a.Startup(context.Background()))
	a.Shutdown(context.Background())
	assert.Equal(t, []string{"setup", "teardown"}, log)
}

func TestLifecycle_LifespanExcludesHooks(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.Lifespan = func(context.Context) (settings.Hook, error) { return nil, nil }
	s.OnStartup = []settings.Hook{func(context.Context) error { return nil }}

	_, err := New(WithLogger(logging.Nop()), WithSettings(s))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lifespan")
}

func TestLifecycle_HookPanicIsAnError(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.OnStartup = []settings.Hook{func(context.Context) error { panic("nope") }}
	a := newTestApp(t, WithSettings(s))

	err := a.Startup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook panic: nope")
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	var log []string
	s := settings.Defaults()
	s.OnStartup = []settings.Hook{recordHook(&log, "start", nil)}
	s.OnShutdown = []settings.Hook{recordHook(&log, "stop", nil)}

	var banner bytes.Buffer
	a, err := New(
		WithLogger(logging.Nop()),
		WithSettings(s),
		WithBannerOutput(&banner),
		WithServerConfig(WithShutdownTimeout(2*time.Second)),
		WithRoutes(router.NewGateway("/ping", router.Get(func() string { return "pong" }))),
	)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx, ln) }()

	require.Eventually(t, a.Started, time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"pong"`, string(body))

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{"start", "stop"}, log)
	assert.Contains(t, banner.String(), ln.Addr().String())
	assert.Contains(t, banner.String(), "/ping")
}

func TestServe_StartupFailureClosesListener(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.OnStartup = []settings.Hook{func(context.Context) error { return errors.New("no config") }}
	a := newTestApp(t, WithSettings(s))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = a.Serve(context.Background(), ln)
	require.Error(t, err)
	_, err = ln.Accept()
	assert.True(t, err != nil && strings.Contains(err.Error(), "closed"))
}
