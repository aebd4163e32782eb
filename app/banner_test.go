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
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

func TestPrintRoutes(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, WithRoutes(
		router.NewGateway("/items/{id:int}", router.Handle(func(in itemPath) item { return item{} },
			router.Methods(http.MethodGet, http.MethodPut)), router.WithName("item")),
		router.NewWebSocketGateway("/ws", router.WebSocket(func(*connection.WebSocket) error { return nil })),
		router.Mount("/legacy", http.NotFoundHandler()),
	))

	var buf bytes.Buffer
	a.PrintRoutes(&buf)
	out := buf.String()

	for _, want := range []string{"Method", "/items/{id:int}", "GET", "PUT", "WEBSOCKET", "/ws", "MOUNT", "/legacy", "item"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "colors are stripped when the output is not a terminal")
}

func TestPrintRoutes_Empty(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.EnableOpenAPI = false
	a := newTestApp(t, WithSettings(s))

	var buf bytes.Buffer
	a.PrintRoutes(&buf)
	assert.Equal(t, "No routes registered", strings.TrimSpace(buf.String()))
}

func TestStartupBanner(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.Title = "Inventory"
	s.Version = "2.3.4"
	var buf bytes.Buffer
	a := newTestApp(t, WithSettings(s), WithBannerOutput(&buf))

	a.printStartupBanner(":8080", "h2c")
	out := buf.String()
	assert.Contains(t, out, "Inventory")
	assert.Contains(t, out, "2.3.4")
	assert.Contains(t, out, "http://0.0.0.0:8080")
	assert.Contains(t, out, "http://0.0.0.0:8080/openapi.json")
	assert.Contains(t, out, "h2c")
}
