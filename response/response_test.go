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

package response

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "rivaas.dev/keel/errors"
)

type user struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type dumped struct {
	secret string
}

func (d dumped) ModelDump() any {
	return map[string]any{"visible": true}
}

func write(t *testing.T, r *Response, method string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, r.Write(rec, httptest.NewRequest(method, "/", nil)))
	return rec
}

func TestShape_RawValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    any
		meta     Meta
		wantCode int
		wantBody string
		wantType string
	}{
		{name: "struct json", value: user{Name: "ann"}, wantCode: 200, wantBody: `{"name":"ann"}`, wantType: MediaTypeJSON},
		{name: "nil json", value: nil, wantCode: 200, wantBody: `null`, wantType: MediaTypeJSON},
		{name: "html not escaped", value: map[string]string{"a": "<b>"}, wantCode: 200, wantBody: `{"a":"<b>"}`, wantType: MediaTypeJSON},
		{name: "declared status", value: user{Name: "ann"}, meta: Meta{Status: 201}, wantCode: 201, wantBody: `{"name":"ann"}`, wantType: MediaTypeJSON},
		{name: "orjson", value: user{Name: "ann"}, meta: Meta{Class: ClassOrJSON}, wantCode: 200, wantBody: `{"name":"ann"}`, wantType: MediaTypeJSON},
		{name: "ujson", value: user{Name: "ann"}, meta: Meta{Class: ClassUJSON}, wantCode: 200, wantBody: `{"name":"ann"}`, wantType: MediaTypeJSON},
		{name: "plain", value: 42, meta: Meta{MediaType: "text/plain"}, wantCode: 200, wantBody: "42", wantType: "text/plain"},
		{name: "html", value: "<p>hi</p>", meta: Meta{Class: ClassHTML}, wantCode: 200, wantBody: "<p>hi</p>", wantType: MediaTypeHTML},
		{name: "model dump", value: dumped{secret: "x"}, wantCode: 200, wantBody: `{"visible":true}`, wantType: MediaTypeJSON},
		{name: "no content", value: user{Name: "ann"}, meta: Meta{Status: 204}, wantCode: 204, wantBody: "", wantType: ""},
	}

	shaper := NewShaper(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := shaper.Shape(tt.value, tt.meta)
			require.NoError(t, err)
			rec := write(t, r, http.MethodGet)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
		})
	}
}

func TestShape_InheritsHeadersAndCookies(t *testing.T) {
	t.Parallel()

	own := New(http.StatusAccepted, MediaTypeJSON, []byte(`{}`))
	own.Header().Set("X-Layer", "handler")
	own.SetCookie(&http.Cookie{Name: "session", Value: "own"})

	meta := Meta{
		Headers: http.Header{"X-Layer": {"app"}, "X-App": {"keel"}},
		Cookies: []*http.Cookie{{Name: "session", Value: "app"}, {Name: "theme", Value: "dark"}},
	}
	r, err := NewShaper(nil).Shape(own, meta)
	require.NoError(t, err)
	rec := write(t, r, http.MethodGet)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "handler", rec.Header().Get("X-Layer"))
	assert.Equal(t, "keel", rec.Header().Get("X-App"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	values := map[string]string{}
	for _, c := range cookies {
		values[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"session": "own", "theme": "dark"}, values)
}

func TestShape_LeavesSharedResponseUntouched(t *testing.T) {
	t.Parallel()

	shared := &Response{Body: []byte("pong")}
	shaper := NewShaper(nil)
	meta := Meta{
		Status:  http.StatusCreated,
		Headers: http.Header{"X-App": {"keel"}},
		Cookies: []*http.Cookie{{Name: "theme", Value: "dark"}},
	}

	for range 2 {
		r, err := shaper.Shape(shared, meta)
		require.NoError(t, err)
		assert.NotSame(t, shared, r)
		assert.Equal(t, http.StatusCreated, r.Status)
		assert.Equal(t, "keel", r.Header().Get("X-App"))
		assert.Len(t, r.Cookies, 1)
	}
	assert.Zero(t, shared.Status)
	assert.Empty(t, shared.Headers)
	assert.Empty(t, shared.Cookies)
}

func TestResponse_StatusDefaults(t *testing.T) {
	t.Parallel()

	r, err := NewShaper(nil).Shape(&Response{Body: []byte("x")}, Meta{Status: http.StatusCreated})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, r.Status)

	rec := write(t, NoContent(), http.MethodGet)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResponse_HeadOmitsBody(t *testing.T) {
	t.Parallel()

	rec := write(t, New(200, MediaTypeText, []byte("hello")), http.MethodHead)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
}

func TestRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		redirect Redirect
		wantCode int
		wantErr  bool
	}{
		{name: "default", redirect: Redirect{URL: "/new"}, wantCode: http.StatusTemporaryRedirect},
		{name: "permanent", redirect: Redirect{URL: "/new", Status: 301}, wantCode: 301},
		{name: "see other", redirect: Redirect{URL: "/new", Status: 303}, wantCode: 303},
		{name: "invalid", redirect: Redirect{URL: "/new", Status: 200}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewShaper(nil).Shape(tt.redirect, Meta{})
			if tt.wantErr {
				var cfg *kerrors.ImproperlyConfigured
				require.ErrorAs(t, err, &cfg)
				return
			}
			require.NoError(t, err)
			rec := write(t, r, http.MethodGet)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "/new", rec.Header().Get("Location"))
		})
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly numbers"), 0o600))

	r, err := NewShaper(nil).Shape(File{Path: path, Filename: "q1.txt"}, Meta{})
	require.NoError(t, err)
	rec := write(t, r, http.MethodGet)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quarterly numbers", rec.Body.String())
	assert.Equal(t, `attachment; filename=q1.txt`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	_, err = NewShaper(nil).Shape(File{Path: filepath.Join(dir, "missing.txt")}, Meta{})
	assert.Equal(t, http.StatusNotFound, kerrors.StatusOf(err))
}

func TestStream(t *testing.T) {
	t.Parallel()

	r, err := NewShaper(nil).Shape(Stream{Reader: strings.NewReader("a,b,c"), MediaType: "text/csv"}, Meta{Status: 202})
	require.NoError(t, err)
	assert.True(t, r.IsStreaming())

	rec := write(t, r, http.MethodGet)
	assert.Equal(t, 202, rec.Code)
	assert.Equal(t, "a,b,c", rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)
}

func TestTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "hello.html"), []byte(`<h1>Hello {{ .Name }}</h1>`), 0o600))

	engine, err := NewHTMLEngine(dir, nil)
	require.NoError(t, err)

	r, err := NewShaper(engine).Shape(Template{Name: "pages/hello.html", Context: user{Name: "<ann>"}}, Meta{})
	require.NoError(t, err)
	rec := write(t, r, http.MethodGet)
	assert.Equal(t, "<h1>Hello &lt;ann&gt;</h1>", rec.Body.String())
	assert.Equal(t, MediaTypeHTML, rec.Header().Get("Content-Type"))

	_, err = NewShaper(nil).Shape(Template{Name: "pages/hello.html"}, Meta{})
	var cfg *kerrors.ImproperlyConfigured
	require.ErrorAs(t, err, &cfg)
}

func TestBackground(t *testing.T) {
	t.Parallel()

	ran := false
	r := New(200, MediaTypeText, nil).WithBackground(func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, r.Background(context.Background()))
	assert.True(t, ran)
}

func TestWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	assert.Same(t, w, NewWriter(w))
	assert.False(t, w.Written())
	assert.Equal(t, http.StatusOK, w.Status())

	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusInternalServerError)
	n, err := w.Write([]byte("tea"))
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, http.StatusTeapot, w.Status())
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, int64(3), w.Size())
	assert.True(t, w.Written())

	_, _, err = w.Hijack()
	assert.True(t, errors.Is(err, ErrNotHijacker))
	assert.Same(t, http.ResponseWriter(rec), w.Unwrap())
}
