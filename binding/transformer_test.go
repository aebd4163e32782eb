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

package binding

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/signature"
)

type itemQuery struct {
	ItemID int64    `path:"item_id"`
	Q      *string  `validate:"omitempty,min=3"`
	Limit  int      `default:"10" validate:"lte=100"`
	Tags   []string `query:"tag"`
	Sort   string   `enum:"asc,desc" default:"asc"`
	Token  string   `header:"x-token,optional"`
	Theme  string   `cookie:"theme,optional"`
}

type item struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gt=0"`
}

type createInput struct {
	Item item
}

type embeddedInput struct {
	Item  item   `body:"item,embed"`
	Owner string `body:"owner"`
}

type uploadInput struct {
	Title string                   `form:"title"`
	File  *connection.UploadFile   `file:"file"`
	Extra []*connection.UploadFile `file:"extra,optional"`
}

type depInput struct {
	User    string            `dep:"user"`
	Headers map[string]string ``
	Req     *connection.Request
}

type staticResolver map[string]any

func (r staticResolver) ResolveDependency(_ context.Context, name string) (any, error) {
	v, ok := r[name]
	if !ok {
		return nil, errors.New("unknown dependency " + name)
	}
	return v, nil
}

func build(t *testing.T, fn any, opts signature.Options) *signature.Model {
	t.Helper()
	m, err := signature.Build(fn, opts)
	require.NoError(t, err)
	return m
}

func newRequest(r *http.Request, params map[string]any) *connection.Request {
	req := connection.NewRequest(r, 0)
	for k, v := range params {
		req.PathParams[k] = v
	}
	return req
}

func validationErrors(t *testing.T, err error) []kerrors.ErrorDetail {
	t.Helper()
	var verr *kerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Errors
}

func TestBind_PathQueryHeaderCookie(t *testing.T) {
	t.Parallel()

	m := build(t, func(in itemQuery) {}, signature.Options{PathParams: []string{"item_id"}, Methods: []string{"GET"}})

	r := httptest.NewRequest(http.MethodGet, "/items/42?q=phone&tag=a&tag=b&sort=desc", nil)
	r.Header.Set("X-Token", "secret")
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, map[string]any{"item_id": int64(42)})})
	require.NoError(t, err)

	in := v.Interface().(*itemQuery)
	assert.Equal(t, int64(42), in.ItemID)
	require.NotNil(t, in.Q)
	assert.Equal(t, "phone", *in.Q)
	assert.Equal(t, 10, in.Limit)
	assert.Equal(t, []string{"a", "b"}, in.Tags)
	assert.Equal(t, "desc", in.Sort)
	assert.Equal(t, "secret", in.Token)
	assert.Equal(t, "dark", in.Theme)
}

func TestBind_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	m := build(t, func(in itemQuery) {}, signature.Options{PathParams: []string{"item_id"}, Methods: []string{"GET"}})

	r := httptest.NewRequest(http.MethodGet, "/items/x?q=ab&limit=500&tag=a&sort=up", nil)
	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, map[string]any{"item_id": "x"})})

	details := validationErrors(t, err)
	require.Len(t, details, 4)
	assert.Equal(t, kerrors.Loc("path", "item_id"), details[0].Loc)
	assert.Equal(t, "int_parsing", details[0].Type)
	assert.Equal(t, "x", details[0].Input)
	assert.Equal(t, kerrors.Loc("query", "q"), details[1].Loc)
	assert.Equal(t, kerrors.Loc("query", "limit"), details[2].Loc)
	assert.Equal(t, "less_than_equal", details[2].Type)
	assert.Equal(t, kerrors.Loc("query", "sort"), details[3].Loc)
	assert.Equal(t, "enum", details[3].Type)
}

func TestBind_MissingRequired(t *testing.T) {
	t.Parallel()

	type input struct {
		Page int  `query:"page"`
		Flag bool `header:"x-flag"`
	}
	m := build(t, func(in input) {}, signature.Options{Methods: []string{"GET"}})

	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(httptest.NewRequest(http.MethodGet, "/", nil), nil)})
	details := validationErrors(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "missing", details[0].Type)
	assert.Equal(t, "Field required", details[0].Msg)
	assert.Equal(t, kerrors.Loc("query", "page"), details[0].Loc)
	assert.Equal(t, kerrors.Loc("header", "x-flag"), details[1].Loc)
}

func TestBind_SequenceErrorIndex(t *testing.T) {
	t.Parallel()

	type input struct {
		IDs []int `query:"id"`
	}
	m := build(t, func(in input) {}, signature.Options{Methods: []string{"GET"}})

	r := httptest.NewRequest(http.MethodGet, "/?id=1&id=two", nil)
	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	details := validationErrors(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, kerrors.Loc("query", "id", 1), details[0].Loc)
	assert.Equal(t, "int_parsing", details[0].Type)
}

func TestBind_SliceCSV(t *testing.T) {
	t.Parallel()

	type input struct {
		IDs []int `query:"id"`
	}
	m := build(t, func(in input) {}, signature.Options{Methods: []string{"GET"}})

	r := httptest.NewRequest(http.MethodGet, "/?id=1,2&id=3", nil)
	v, err := New(WithSliceMode(SliceCSV)).Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v.Interface().(*input).IDs)
}

func TestBind_JSONBody(t *testing.T) {
	t.Parallel()

	m := build(t, func(in createInput) {}, signature.Options{Methods: []string{"POST"}})

	tests := []struct {
		name     string
		body     string
		wantErr  bool
		wantType string
		wantLoc  []any
	}{
		{name: "valid", body: `{"name":"pen","price":1.5}`},
		{name: "truncated", body: `{"name":`, wantErr: true, wantType: "json_invalid", wantLoc: kerrors.Loc("body")},
		{name: "syntax error", body: `{"name":}`, wantErr: true, wantType: "json_invalid"},
		{name: "type error", body: `{"name":"pen","price":"x"}`, wantErr: true, wantType: "float_type", wantLoc: kerrors.Loc("body", "price")},
		{name: "constraint", body: `{"price":2}`, wantErr: true, wantType: "missing", wantLoc: kerrors.Loc("body", "name")},
		{name: "empty body", body: ``, wantErr: true, wantType: "missing", wantLoc: kerrors.Loc("body")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, item{Name: "pen", Price: 1.5}, v.Interface().(*createInput).Item)
				return
			}
			details := validationErrors(t, err)
			require.NotEmpty(t, details)
			assert.Equal(t, tt.wantType, details[0].Type)
			if tt.wantLoc != nil {
				assert.Equal(t, tt.wantLoc, details[0].Loc)
			}
		})
	}
}

func TestBind_EmbeddedBodies(t *testing.T) {
	t.Parallel()

	m := build(t, func(in embeddedInput) {}, signature.Options{Methods: []string{"POST"}})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item":{"name":"pen","price":2},"owner":"ann"}`))
	r.Header.Set("Content-Type", "application/json")
	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	require.NoError(t, err)

	in := v.Interface().(*embeddedInput)
	assert.Equal(t, "pen", in.Item.Name)
	assert.Equal(t, "ann", in.Owner)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item":{"name":"pen","price":2}}`))
	r.Header.Set("Content-Type", "application/json")
	_, err = New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	details := validationErrors(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, kerrors.Loc("body", "owner"), details[0].Loc)
}

func TestBind_MsgPackBody(t *testing.T) {
	t.Parallel()

	m := build(t, func(in createInput) {}, signature.Options{Methods: []string{"POST"}})

	data, err := msgpack.Marshal(map[string]any{"name": "cup", "price": 3.0})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/msgpack")
	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	require.NoError(t, err)
	assert.Equal(t, "cup", v.Interface().(*createInput).Item.Name)
}

func TestBind_UnsupportedMediaType(t *testing.T) {
	t.Parallel()

	m := build(t, func(in createInput) {}, signature.Options{Methods: []string{"POST"}})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("<item/>"))
	r.Header.Set("Content-Type", "application/xml")
	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})

	var exc *kerrors.UnsupportedMediaType
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, http.StatusUnsupportedMediaType, kerrors.StatusOf(err))
}

func TestBind_BodyTooLarge(t *testing.T) {
	t.Parallel()

	m := build(t, func(in createInput) {}, signature.Options{Methods: []string{"POST"}})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"pen","price":1.5}`))
	r.Header.Set("Content-Type", "application/json")
	_, err := New().Bind(context.Background(), m, Input{Request: connection.NewRequest(r, 4)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, kerrors.StatusOf(err))
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile(name, name+".txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestBind_Multipart(t *testing.T) {
	t.Parallel()

	m := build(t, func(in uploadInput) {}, signature.Options{Methods: []string{"POST"}})

	body, contentType := multipartBody(t, map[string]string{"title": "report"}, map[string]string{"file": "hello"})
	r := httptest.NewRequest(http.MethodPost, "/upload", body)
	r.Header.Set("Content-Type", contentType)
	req := newRequest(r, nil)

	v, err := New(WithSpoolMemory(2)).Bind(context.Background(), m, Input{Request: req})
	require.NoError(t, err)

	in := v.Interface().(*uploadInput)
	assert.Equal(t, "report", in.Title)
	require.NotNil(t, in.File)
	assert.Equal(t, "file.txt", in.File.Filename)
	assert.True(t, in.File.RolledOver())
	data, err := in.File.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Empty(t, in.Extra)

	require.NoError(t, req.Close())
}

func TestBind_MultipartLimits(t *testing.T) {
	t.Parallel()

	m := build(t, func(in uploadInput) {}, signature.Options{Methods: []string{"POST"}})

	body, contentType := multipartBody(t, map[string]string{"title": "x"}, map[string]string{"file": "0123456789"})
	r := httptest.NewRequest(http.MethodPost, "/upload", body)
	r.Header.Set("Content-Type", contentType)

	_, err := New(WithMaxFileSize(4)).Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, kerrors.StatusOf(err))
}

func TestBind_MultipartMissingFile(t *testing.T) {
	t.Parallel()

	m := build(t, func(in uploadInput) {}, signature.Options{Methods: []string{"POST"}})

	body, contentType := multipartBody(t, map[string]string{"title": "x"}, nil)
	r := httptest.NewRequest(http.MethodPost, "/upload", body)
	r.Header.Set("Content-Type", contentType)

	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	details := validationErrors(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, kerrors.Loc("body", "file"), details[0].Loc)
	assert.Equal(t, "missing", details[0].Type)
}

func TestBind_URLEncodedStruct(t *testing.T) {
	t.Parallel()

	m := build(t, func(in createInput) {}, signature.Options{Methods: []string{"POST"}})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=pen&price=abc"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	details := validationErrors(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, kerrors.Loc("body", "price"), details[0].Loc)
	assert.Equal(t, "float_parsing", details[0].Type)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=pen&price=4"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	require.NoError(t, err)
	assert.Equal(t, item{Name: "pen", Price: 4}, v.Interface().(*createInput).Item)
}

func TestBind_TextBody(t *testing.T) {
	t.Parallel()

	type input struct {
		Data string
	}
	m := build(t, func(in input) {}, signature.Options{Methods: []string{"POST"}})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("plain words"))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(r, nil)})
	require.NoError(t, err)
	assert.Equal(t, "plain words", v.Interface().(*input).Data)
}

func TestBind_DependenciesAndReserved(t *testing.T) {
	t.Parallel()

	m := build(t, func(in depInput) {}, signature.Options{Methods: []string{"GET"}, Dependencies: map[string]bool{"user": true}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Trace", "abc")
	req := newRequest(r, nil)

	v, err := New().Bind(context.Background(), m, Input{Request: req, Dependencies: staticResolver{"user": "ann"}})
	require.NoError(t, err)

	in := v.Interface().(*depInput)
	assert.Equal(t, "ann", in.User)
	assert.Equal(t, "abc", in.Headers["x-trace"])
	assert.Same(t, req, in.Req)

	_, err = New().Bind(context.Background(), m, Input{Request: req, Dependencies: staticResolver{}})
	require.Error(t, err)
}

func TestBind_SkipsDependenciesOnValidationError(t *testing.T) {
	t.Parallel()

	type input struct {
		Page int    `query:"page"`
		User string `dep:"user"`
	}
	m := build(t, func(in input) {}, signature.Options{Methods: []string{"GET"}, Dependencies: map[string]bool{"user": true}})

	calls := 0
	resolver := resolverFunc(func(context.Context, string) (any, error) {
		calls++
		return "ann", nil
	})
	_, err := New().Bind(context.Background(), m, Input{Request: newRequest(httptest.NewRequest(http.MethodGet, "/?page=x", nil), nil), Dependencies: resolver})
	require.Error(t, err)
	assert.Zero(t, calls)
}

type resolverFunc func(ctx context.Context, name string) (any, error)

func (f resolverFunc) ResolveDependency(ctx context.Context, name string) (any, error) {
	return f(ctx, name)
}

func TestBind_NoInput(t *testing.T) {
	t.Parallel()

	m := build(t, func() {}, signature.Options{})
	v, err := New().Bind(context.Background(), m, Input{Request: newRequest(httptest.NewRequest(http.MethodGet, "/", nil), nil)})
	require.NoError(t, err)
	assert.False(t, v.IsValid())
}
