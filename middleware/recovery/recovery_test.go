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

package recovery

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

func serve(mw router.Middleware, h router.HandlerFunc) error {
	req := connection.NewRequest(httptest.NewRequest(http.MethodGet, "/boom", nil), 0)
	return mw(h)(httptest.NewRecorder(), req)
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mw := New(WithLogger(logger), WithPrettyStack(false))

	err := serve(mw, func(http.ResponseWriter, *connection.Request) error {
		panic("something broke")
	})

	var ise *kerrors.InternalServerError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, http.StatusInternalServerError, kerrors.StatusOf(err))
	assert.Contains(t, err.Error(), "something broke")
	assert.Contains(t, buf.String(), `"msg":"panic recovered"`)
	assert.Contains(t, buf.String(), `"path":"/boom"`)
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestRecovery_ErrorPanicIsWrapped(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("db gone")
	err := serve(New(WithoutLogging(), WithPrettyStack(false)), func(http.ResponseWriter, *connection.Request) error {
		panic(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestRecovery_PassesThrough(t *testing.T) {
	t.Parallel()

	want := kerrors.NewNotFound("")
	err := serve(New(WithoutLogging()), func(http.ResponseWriter, *connection.Request) error {
		return want
	})
	assert.Same(t, want, err)
}

func TestRecovery_CustomHandler(t *testing.T) {
	t.Parallel()

	mw := New(WithoutLogging(), WithPrettyStack(false), WithHandler(func(_ *connection.Request, recovered any) error {
		return kerrors.NewServiceUnavailable("try again")
	}))
	err := serve(mw, func(http.ResponseWriter, *connection.Request) error {
		panic(42)
	})
	assert.Equal(t, http.StatusServiceUnavailable, kerrors.StatusOf(err))
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		_ = serve(New(WithoutLogging()), func(http.ResponseWriter, *connection.Request) error {
			panic(http.ErrAbortHandler)
		})
	})
}
