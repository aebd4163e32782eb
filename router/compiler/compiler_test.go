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

package compiler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/errors"
)

func TestCompile_Match(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("8c1d2c9e-51b5-4a6e-9b0a-4a9c2f5d7e11")

	tests := []struct {
		name       string
		pattern    string
		path       string
		wantMatch  bool
		wantParams map[string]any
	}{
		{"literal", "/health", "/health", true, map[string]any{}},
		{"literal miss", "/health", "/healthz", false, nil},
		{"default str", "/users/{name}", "/users/ada", true, map[string]any{"name": "ada"}},
		{"str stops at slash", "/users/{name}", "/users/ada/posts", false, nil},
		{"int", "/items/{id:int}", "/items/42", true, map[string]any{"id": int64(42)}},
		{"negative int", "/items/{id:int}", "/items/-7", true, map[string]any{"id": int64(-7)}},
		{"int rejects text", "/items/{id:int}", "/items/abc", false, nil},
		{"float", "/price/{p:float}", "/price/9.5", true, map[string]any{"p": 9.5}},
		{"uuid", "/obj/{id:uuid}", "/obj/" + id.String(), true, map[string]any{"id": id}},
		{"uuid rejects uppercase", "/obj/{id:uuid}", "/obj/9B2F3C1A-1111-4222-8333-ABCDEFABCDEF", false, nil},
		{"slug", "/posts/{s:slug}", "/posts/hello-world_2", true, map[string]any{"s": "hello-world_2"}},
		{"slug rejects dot", "/posts/{s:slug}", "/posts/a.b", false, nil},
		{"greedy path", "/files/{rest:path}", "/files/a/b/c.txt", true, map[string]any{"rest": "a/b/c.txt"}},
		{"two params", "/u/{uid:int}/p/{pid}", "/u/1/p/x", true, map[string]any{"uid": int64(1), "pid": "x"}},
		{"root", "/", "/", true, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Compile(tt.pattern, false)
			require.NoError(t, err)

			res, ok, err := p.Match(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantParams, res.Params)
			}
		})
	}
}

func TestCompile_Mount(t *testing.T) {
	t.Parallel()

	p, err := Compile("/api/{version}", true)
	require.NoError(t, err)
	assert.True(t, p.IsMount())

	res, ok, err := p.Match("/api/v1/users/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/users/1", res.Rest)
	assert.Equal(t, "v1", res.Params["version"])

	res, ok, err = p.Match("/api/v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/", res.Rest)

	_, ok, err = p.Match("/apix/v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_RootMount(t *testing.T) {
	t.Parallel()

	p, err := Compile("/", true)
	require.NoError(t, err)
	assert.Empty(t, p.Pattern)

	res, ok, err := p.Match("/anything/here")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/anything/here", res.Rest)
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
	}{
		{"unknown convertor", "/items/{id:hex}"},
		{"duplicated param", "/a/{id}/b/{id:int}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Compile(tt.pattern, false)
			var cfgErr *errors.ImproperlyConfigured
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMatch_Overflow(t *testing.T) {
	t.Parallel()

	p := MustCompile("/items/{id:int}", false)
	_, ok, err := p.Match("/items/99999999999999999999")
	require.True(t, ok)

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, []any{"path", "id"}, verr.Errors[0].Loc)
	assert.Equal(t, "int_parsing", verr.Errors[0].Type)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/users", Normalize("users/", false))
	assert.Equal(t, "/", Normalize("", false))
	assert.Empty(t, Normalize("/", true))
	assert.Equal(t, "/a/b", Normalize("/a/b//", true))
}

func TestPath_Metadata(t *testing.T) {
	t.Parallel()

	p := MustCompile("/users/{uid:int}/posts/{slug:slug}", false)
	assert.Equal(t, "/users/{uid}/posts/{slug}", p.Template)
	assert.Equal(t, "/users/{:int}/posts/{:slug}", p.Shape())
	assert.Equal(t, []string{"uid", "slug"}, p.ParamNames())
	assert.Equal(t, "/users/", p.LiteralPrefix())
	assert.False(t, p.IsLiteral())

	lit := MustCompile("/users/me", false)
	assert.True(t, lit.IsLiteral())
	assert.Equal(t, "/users/me", lit.LiteralPrefix())
}

// Formatting the parameters extracted from a path reproduces the path.
func TestFormat_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
	}{
		{"/items/{id:int}", "/items/42"},
		{"/items/{id:int}", "/items/-3"},
		{"/price/{p:float}", "/price/10.25"},
		{"/obj/{id:uuid}", "/obj/8c1d2c9e-51b5-4a6e-9b0a-4a9c2f5d7e11"},
		{"/obj/{id:uuid}/{n}", "/obj/9b2f3c1a-1111-4222-8333-abcdefabcdef/ABC"},
		{"/u/{name}/p/{s:slug}", "/u/ada%20l/p/first-post"},
		{"/static", "/static"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			p := MustCompile(tt.pattern, false)
			res, ok, err := p.Match(tt.path)
			require.NoError(t, err)
			require.True(t, ok)

			got, err := p.Format(res.Params)
			require.NoError(t, err)
			assert.Equal(t, tt.path, got)
		})
	}
}

func TestFormat_Errors(t *testing.T) {
	t.Parallel()

	p := MustCompile("/items/{id:int}", false)

	_, err := p.Format(map[string]any{})
	require.Error(t, err)

	_, err = p.Format(map[string]any{"id": "abc"})
	require.Error(t, err)

	got, err := p.Format(map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, "/items/7", got)
}

type hexConvertor struct{}

func (hexConvertor) Regex() string                    { return `[0-9a-f]+` }
func (hexConvertor) FromString(s string) (any, error) { return s, nil }
func (hexConvertor) ToString(v any) (string, error)   { return v.(string), nil }
func (hexConvertor) ErrorType() string                { return "hex_parsing" }
func (hexConvertor) Schema() (string, string)         { return "string", "hex" }

func TestRegister(t *testing.T) {
	t.Parallel()

	Register("hex6", hexConvertor{})

	p, err := Compile("/colors/{c:hex6}", false)
	require.NoError(t, err)

	res, ok, err := p.Match("/colors/ff00aa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ff00aa", res.Params["c"])

	c, ok := Lookup("hex6")
	require.True(t, ok)
	typ, format := c.Schema()
	assert.Equal(t, "string", typ)
	assert.Equal(t, "hex", format)
}
