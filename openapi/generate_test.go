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

package openapi

import (
	"encoding/json"
	"log"
	"log/slog"
	"reflect"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/keel/router"
	"rivaas.dev/keel/security"
)

type User struct {
	Name string `json:"name" validate:"required"`
}

type Item struct {
	ID    int64    `json:"id"`
	Title string   `json:"title" validate:"required,min=1,max=80" doc:"Display title"`
	Price float64  `json:"price" validate:"gte=0"`
	Tags  []string `json:"tags,omitempty"`
	Owner *User    `json:"owner,omitempty"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type listInput struct {
	Limit int `default:"10" validate:"gte=1,lte=100"`
	Q     *string
	Sort  string `enum:"asc,desc" default:"asc"`
}

type itemPath struct {
	ID int64
}

type createInput struct {
	Item Item
}

type securedInput struct {
	Creds *security.Credentials
}

func listItems(listInput) ([]Item, error) { return nil, nil }
func getItem(itemPath) (*Item, error) { return nil, nil }
func createItem(in createInput) (Item, error) { return in.Item, nil }
func deleteItem(itemPath) error { return nil }
func health() string { return "ok" }
func pageItems() Page[Item] { return Page[Item]{} }
func stdLogger() *log.Logger { return nil }
func structuredLogger() *slog.Logger { return nil }
func whoAmI(in securedInput) string { return in.Creds.Credentials }

func routes(t *testing.T, nodes ...router.Node) []*router.Route {
	t.Helper()
	r := router.New(nodes)
	require.NoError(t, r.Build(router.BuildOptions{}))
	return r.Routes()
}

func shopRoutes(t *testing.T) []*router.Route {
	t.Helper()
	return routes(t, shopNodes(false)...)
}

// shopNodes returns the shop gateways, optionally mounted in reverse order.
func shopNodes(reversed bool) []router.Node {
	items := []router.Node{
		router.NewGateway("", router.Get(listItems)),
		router.NewGateway("", router.Post(createItem)),
		router.NewGateway("/{id:int}", router.Get(getItem)),
		router.NewGateway("/{id:int}", router.Delete(deleteItem)),
	}
	if reversed {
		slices.Reverse(items)
	}
	nodes := []router.Node{
		router.NewInclude("/items", items, router.WithTags("items")),
		router.NewGateway("/health", router.Get(health)),
		router.NewGateway("/hidden", router.Get(health, router.OperationID("hidden")), router.IncludeInSchema(false)),
	}
	if reversed {
		slices.Reverse(nodes)
	}
	return nodes
}

func TestGenerate_Operations(t *testing.T) {
	t.Parallel()

	doc, err := Generate(shopRoutes(t), Config{Title: "Shop", Version: "1.0.0"})
	require.NoError(t, err)

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Equal(t, "Shop", doc.Info.Title)
	require.Len(t, doc.Paths, 3)
	assert.NotContains(t, doc.Paths, "/hidden")

	list := doc.Paths["/items"].Get
	require.NotNil(t, list)
	assert.Equal(t, "list_items_items_get", list.OperationID)
	assert.Equal(t, "List Items", list.Summary)
	assert.Equal(t, []string{"items"}, list.Tags)
	require.Len(t, list.Parameters, 3)

	limit := list.Parameters[0]
	assert.Equal(t, "limit", limit.Name)
	assert.Equal(t, "query", limit.In)
	assert.False(t, limit.Required)
	assert.Equal(t, "integer", limit.Schema.Type)
	assert.Equal(t, int64(10), limit.Schema.Default)
	require.NotNil(t, limit.Schema.Minimum)
	assert.InDelta(t, 1, *limit.Schema.Minimum, 0)
	assert.InDelta(t, 100, *limit.Schema.Maximum, 0)

	assert.Equal(t, []any{"string", "null"}, list.Parameters[1].Schema.Type)
	assert.Equal(t, []any{"asc", "desc"}, list.Parameters[2].Schema.Enum)

	ok := list.Responses["200"]
	require.NotNil(t, ok)
	assert.Equal(t, "Successful Response", ok.Description)
	listSchema := ok.Content["application/json"].Schema
	assert.Equal(t, "array", listSchema.Type)
	assert.Equal(t, "#/components/schemas/Item", listSchema.Items.Ref)
	assert.Equal(t, "#/components/schemas/HTTPValidationError", list.Responses["422"].Content["application/json"].Schema.Ref)

	get := doc.Paths["/items/{id}"].Get
	require.NotNil(t, get)
	assert.Equal(t, "get_item_items__id__get", get.OperationID)
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, "path", get.Parameters[0].In)
	assert.True(t, get.Parameters[0].Required)
	assert.Equal(t, "#/components/schemas/Item", get.Responses["200"].Content["application/json"].Schema.Ref)

	create := doc.Paths["/items"].Post
	require.NotNil(t, create)
	require.NotNil(t, create.RequestBody)
	assert.True(t, create.RequestBody.Required)
	assert.Equal(t, "#/components/schemas/Item", create.RequestBody.Content["application/json"].Schema.Ref)
	assert.Contains(t, create.Responses, "201")

	del := doc.Paths["/items/{id}"].Delete
	require.NotNil(t, del)
	require.Contains(t, del.Responses, "204")
	assert.Empty(t, del.Responses["204"].Content)

	h := doc.Paths["/health"].Get
	require.NotNil(t, h)
	assert.NotContains(t, h.Responses, "422")
	assert.Equal(t, "string", h.Responses["200"].Content["application/json"].Schema.Type)
}

func TestGenerate_Components(t *testing.T) {
	t.Parallel()

	doc, err := Generate(shopRoutes(t), Config{})
	require.NoError(t, err)
	require.NotNil(t, doc.Components)
	schemas := doc.Components.Schemas

	assert.ElementsMatch(t, []string{"Item", "User", "ValidationError", "HTTPValidationError"}, keys(schemas))

	item := schemas["Item"]
	assert.Equal(t, "object", item.Type)
	assert.Equal(t, []string{"title"}, item.Required)
	assert.ElementsMatch(t, []string{"id", "title", "price", "tags", "owner"}, keys(item.Properties))

	title := item.Properties["title"]
	assert.Equal(t, "Display title", title.Description)
	assert.Equal(t, 1, *title.MinLength)
	assert.Equal(t, 80, *title.MaxLength)
	assert.InDelta(t, 0, *item.Properties["price"].Minimum, 0)

	owner := item.Properties["owner"]
	require.Len(t, owner.AnyOf, 2)
	assert.Equal(t, "#/components/schemas/User", owner.AnyOf[0].Ref)
	assert.Equal(t, "null", owner.AnyOf[1].Type)

	assert.Equal(t, []string{"loc", "msg", "type"}, schemas["ValidationError"].Required)
	assert.Equal(t, "#/components/schemas/ValidationError", schemas["HTTPValidationError"].Properties["detail"].Items.Ref)
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()

	first, err := Generate(shopRoutes(t), Config{Title: "Shop", Version: "1"})
	require.NoError(t, err)
	second, err := Generate(shopRoutes(t), Config{Title: "Shop", Version: "1"})
	require.NoError(t, err)

	a, err := first.JSON()
	require.NoError(t, err)
	b, err := second.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	reversed, err := Generate(routes(t, shopNodes(true)...), Config{Title: "Shop", Version: "1"})
	require.NoError(t, err)
	want, err := json.Marshal(first.Components)
	require.NoError(t, err)
	got, err := json.Marshal(reversed.Components)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	y, err := first.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(y), "openapi: 3.1.0\n")
	assert.Contains(t, string(y), "operationId: list_items_items_get\n")
}

func TestGenerate_NameCollisions(t *testing.T) {
	t.Parallel()

	forward := routes(t,
		router.NewGateway("/a", router.Get(stdLogger)),
		router.NewGateway("/b", router.Get(structuredLogger)),
	)
	backward := []*router.Route{forward[1], forward[0]}

	docA, err := Generate(forward, Config{})
	require.NoError(t, err)
	docB, err := Generate(backward, Config{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"log__Logger", "slog__Logger"}, keys(docA.Components.Schemas))
	assert.Equal(t, keys(docA.Components.Schemas), keys(docB.Components.Schemas))
	assert.Equal(t, "#/components/schemas/log__Logger", docA.Paths["/a"].Get.Responses["200"].Content["application/json"].Schema.Ref)
}

func TestGenerate_GenericNames(t *testing.T) {
	t.Parallel()

	doc, err := Generate(routes(t, router.NewGateway("/page", router.Get(pageItems))), Config{})
	require.NoError(t, err)
	assert.Contains(t, doc.Components.Schemas, "Page_Item")
	assert.Contains(t, doc.Components.Schemas, "Item")
}

func TestGenerate_Security(t *testing.T) {
	t.Parallel()

	bearer := &security.HTTPBearer{}
	key := &security.APIKey{Key: "X-Key", In: security.InHeader}
	doc, err := Generate(routes(t,
		router.NewGateway("/me", router.Get(whoAmI),
			router.WithDependency("creds", bearer.Dependency()),
			router.WithSecurity(security.Require(key)),
		),
	), Config{})
	require.NoError(t, err)

	op := doc.Paths["/me"].Get
	assert.Equal(t, []map[string][]string{{key.Name(): {}}, {"HTTPBearer": {}}}, op.Security)
	require.NotNil(t, doc.Components)
	assert.Equal(t, "http", doc.Components.SecuritySchemes["HTTPBearer"].Type)
	assert.Equal(t, "apiKey", doc.Components.SecuritySchemes[key.Name()].Type)
}

func TestGenerate_SecurityListedOnce(t *testing.T) {
	t.Parallel()

	bearer := &security.HTTPBearer{}
	doc, err := Generate(routes(t,
		router.NewGateway("/me", router.Get(whoAmI),
			router.WithDependency("creds", bearer.Dependency()),
			router.WithSecurity(security.Require(bearer, "read")),
		),
	), Config{})
	require.NoError(t, err)

	assert.Equal(t, []map[string][]string{{"HTTPBearer": {"read"}}}, doc.Paths["/me"].Get.Security)
}

func TestGenerate_DuplicateOperationID(t *testing.T) {
	t.Parallel()

	rs := shopRoutes(t)
	_, err := Generate(append(rs, rs[0]), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate operation id")
}

func TestApplyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tag   string
		typ   reflect.Type
		check func(t *testing.T, s *Schema)
	}{
		{
			name: "string length",
			tag:  "min=2,max=5",
			typ:  reflect.TypeFor[string](),
			check: func(t *testing.T, s *Schema) {
				assert.Equal(t, 2, *s.MinLength)
				assert.Equal(t, 5, *s.MaxLength)
			},
		},
		{
			name: "exclusive numbers",
			tag:  "gt=0,lt=10",
			typ:  reflect.TypeFor[float64](),
			check: func(t *testing.T, s *Schema) {
				assert.InDelta(t, 0, *s.ExclusiveMinimum, 0)
				assert.InDelta(t, 10, *s.ExclusiveMaximum, 0)
			},
		},
		{
			name: "slice items",
			tag:  "min=1",
			typ:  reflect.TypeFor[[]int](),
			check: func(t *testing.T, s *Schema) {
				assert.Equal(t, 1, *s.MinItems)
			},
		},
		{
			name: "oneof",
			tag:  "oneof=1 2 3",
			typ:  reflect.TypeFor[int](),
			check: func(t *testing.T, s *Schema) {
				assert.Equal(t, []any{int64(1), int64(2), int64(3)}, s.Enum)
			},
		},
		{
			name: "formats",
			tag:  "required,email",
			typ:  reflect.TypeFor[string](),
			check: func(t *testing.T, s *Schema) {
				assert.Equal(t, "email", s.Format)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewGenerator().Schema(tt.typ)
			ApplyValidate(s, tt.tag, tt.typ)
			tt.check(t, s)
		})
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
