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

package signature

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
)

type user struct {
	Name string `json:"name"`
}

type item struct {
	Title string `json:"title"`
}

type getItemInput struct {
	ID        int64             `doc:"Item identifier"`
	Q         *string           `validate:"min=3"`
	Tags      []string          `query:"tag"`
	UserAgent string            `header:""`
	Session   string            `cookie:"session,optional"`
	Color     string            `enum:"red,green" default:"red"`
	User      *user             `dep:"current_user"`
	Headers   http.Header       ``
	State     *connection.State ``
	Ref       uuid.UUID         `path:"ref"`
}

func getItem(ctx context.Context, in getItemInput) (*item, error) {
	return &item{Title: in.User.Name}, nil
}

func TestBuild_Locations(t *testing.T) {
	t.Parallel()

	m, err := Build(getItem, Options{PathParams: []string{"id", "ref"}, Methods: []string{"GET"}})
	require.NoError(t, err)

	assert.Equal(t, "getItem", m.Name)
	assert.Equal(t, ResultValueError, m.Result)

	want := map[string]struct {
		loc      Location
		alias    string
		required bool
	}{
		"id":         {LocationPath, "id", true},
		"q":          {LocationQuery, "q", false},
		"tags":       {LocationQuery, "tag", true},
		"user_agent": {LocationHeader, "user-agent", true},
		"session":    {LocationCookie, "session", false},
		"color":      {LocationQuery, "color", false},
		"user":       {LocationDependency, "current_user", false},
		"headers":    {LocationReserved, "headers", false},
		"state":      {LocationReserved, "state", false},
		"ref":        {LocationPath, "ref", true},
	}
	require.Len(t, m.Params, len(want))
	for _, p := range m.Params {
		w, ok := want[p.Name]
		require.True(t, ok, "unexpected param %q", p.Name)
		assert.Equal(t, w.loc, p.Location, p.Name)
		assert.Equal(t, w.alias, p.Alias, p.Name)
		assert.Equal(t, w.required, p.Required, p.Name)
	}

	tags, _ := m.Param("tags")
	assert.True(t, tags.Multi)

	id, _ := m.Param("id")
	assert.Equal(t, "Item identifier", id.Description)

	color, _ := m.Param("color")
	assert.Equal(t, []string{"red", "green"}, color.Constraints.Enum)
	assert.Equal(t, "red", color.Default)

	assert.Equal(t, []string{"current_user"}, m.DependencyNames())
	assert.False(t, m.HasBody())
}

type implicitInput struct {
	CurrentUser *user
	ItemID      int
	Limit       int
	Data        item
}

func TestBuild_ImplicitPrecedence(t *testing.T) {
	t.Parallel()

	m, err := Build(func(in implicitInput) {}, Options{
		PathParams:   []string{"item_id", "limit"},
		Dependencies: map[string]bool{"current_user": true, "limit": true},
		Methods:      []string{"POST"},
	})
	require.NoError(t, err)

	cu, _ := m.Param("current_user")
	assert.Equal(t, LocationDependency, cu.Location)

	id, _ := m.Param("item_id")
	assert.Equal(t, LocationPath, id.Location)

	// a dependency name takes precedence over a path parameter name
	limit, _ := m.Param("limit")
	assert.Equal(t, LocationDependency, limit.Location)

	data, _ := m.Param("data")
	assert.Equal(t, LocationBody, data.Location)
	assert.Equal(t, ReservedData, data.Reserved)
	assert.True(t, m.HasBody())
}

type fileInput struct {
	Avatar *connection.UploadFile
	Extra  []*connection.UploadFile `file:"extra,optional"`
	Note   string                   `form:"note"`
}

func TestBuild_Files(t *testing.T) {
	t.Parallel()

	m, err := Build(func(in *fileInput) error { return nil }, Options{Methods: []string{"POST"}})
	require.NoError(t, err)
	assert.True(t, m.InputPointer)
	assert.Equal(t, ResultError, m.Result)

	avatar, _ := m.Param("avatar")
	assert.Equal(t, LocationFile, avatar.Location)
	assert.True(t, avatar.Required)

	extra, _ := m.Param("extra")
	assert.False(t, extra.Required)

	note, _ := m.Param("note")
	assert.Equal(t, LocationForm, note.Location)
}

type Pagination struct {
	Page int `default:"1"`
	Size int `default:"20"`
}

type listInput struct {
	Pagination
	Sort string `query:"sort,optional"`
}

func TestBuild_EmbeddedStructsAreFlattened(t *testing.T) {
	t.Parallel()

	m, err := Build(func(in listInput) []item { return nil }, Options{})
	require.NoError(t, err)
	require.Len(t, m.Params, 3)

	page, _ := m.Param("page")
	assert.Equal(t, []int{0, 0}, page.Index())
	assert.False(t, page.Required)
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	type bodyInput struct {
		Data item
	}
	type twice struct {
		A string `query:"x"`
		B string `query:"x"`
	}
	type badPath struct {
		ID int `path:"id"`
	}
	type mapQuery struct {
		Filter map[string]string `query:"filter"`
	}
	type socketInput struct {
		Socket *connection.WebSocket
	}

	tests := []struct {
		name string
		fn   any
		opts Options
	}{
		{"not a function", 42, Options{}},
		{"body on GET", func(bodyInput) {}, Options{Methods: []string{"GET"}}},
		{"duplicated alias", func(twice) {}, Options{}},
		{"undeclared path param", func(badPath) {}, Options{}},
		{"map query", func(mapQuery) {}, Options{}},
		{"unsupported argument", func(int) {}, Options{}},
		{"two contexts", func(context.Context, context.Context) {}, Options{}},
		{"too many results", func() (int, int, error) { return 0, 0, nil }, Options{}},
		{"websocket with request", func(*connection.Request, *connection.WebSocket) {}, Options{WebSocket: true}},
		{"websocket without socket", func(context.Context) {}, Options{WebSocket: true}},
		{"websocket with body", func(*connection.WebSocket, bodyInput) {}, Options{WebSocket: true}},
		{"http with socket", func(socketInput) {}, Options{}},
		{"factory without value", func() error { return nil }, Options{Factory: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(tt.fn, tt.opts)
			var cfgErr *kerrors.ImproperlyConfigured
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestBuild_WebSocket(t *testing.T) {
	t.Parallel()

	type wsInput struct {
		Socket *connection.WebSocket
		Room   string `query:"room"`
	}
	m, err := Build(func(ctx context.Context, in wsInput) error { return nil }, Options{WebSocket: true})
	require.NoError(t, err)
	assert.True(t, m.IsWebSocket)

	sock, _ := m.Param("socket")
	assert.Equal(t, LocationConnection, sock.Location)
}

func TestCall(t *testing.T) {
	t.Parallel()

	type in struct {
		N int
	}
	m, err := Build(func(ctx context.Context, i *in) (int, error) {
		if i.N < 0 {
			return 0, errors.New("negative")
		}
		return i.N * 2, nil
	}, Options{})
	require.NoError(t, err)

	input := m.NewInput()
	input.Elem().Field(0).SetInt(21)
	out, err := m.Call(context.Background(), nil, nil, input)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)

	input.Elem().Field(0).SetInt(-1)
	_, err = m.Call(context.Background(), nil, nil, input)
	require.EqualError(t, err, "negative")
}

func TestCall_Scoped(t *testing.T) {
	t.Parallel()

	closed := 0
	m, err := Build(func() (*user, func() error, error) {
		return &user{Name: "ada"}, func() error { closed++; return nil }, nil
	}, Options{Factory: true})
	require.NoError(t, err)
	assert.Equal(t, ResultScoped, m.Result)

	out, err := m.Call(context.Background(), nil, nil, m.NewInput())
	require.NoError(t, err)
	assert.Equal(t, "ada", out.Value.(*user).Name)
	require.NotNil(t, out.Cleanup)

	require.NoError(t, out.Cleanup())
	assert.Equal(t, 1, closed)
}

func TestNaming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user_id", SnakeCase("UserID"))
	assert.Equal(t, "http_server", SnakeCase("HTTPServer"))
	assert.Equal(t, "items_v2", SnakeCase("ItemsV2"))
	assert.Equal(t, "Get Item", TitleCase("getItem"))
	assert.Equal(t, "List Users", TitleCase("ListUsers"))
}

type store struct{}

func (store) Lookup() {}

func TestFuncName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "getItem", FuncName(getItem))
	assert.Equal(t, "Lookup", FuncName(store{}.Lookup))
}
