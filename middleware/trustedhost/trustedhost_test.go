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

package trustedhost

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
)

func TestTrustedHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		host    string
		wantErr bool
	}{
		{name: "no restriction", host: "anything.test"},
		{name: "wildcard", allowed: []string{"*"}, host: "anything.test"},
		{name: "exact", allowed: []string{"example.com"}, host: "example.com"},
		{name: "exact with port", allowed: []string{"example.com"}, host: "example.com:8443"},
		{name: "case insensitive", allowed: []string{"Example.com"}, host: "EXAMPLE.COM"},
		{name: "subdomain", allowed: []string{"*.example.com"}, host: "api.example.com"},
		{name: "subdomain pattern excludes apex", allowed: []string{"*.example.com"}, host: "example.com", wantErr: true},
		{name: "other host", allowed: []string{"example.com"}, host: "evil.test", wantErr: true},
		{name: "ipv6", allowed: []string{"::1"}, host: "[::1]:8000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			called := false
			err := New(tt.allowed...)(func(http.ResponseWriter, *connection.Request) error {
				called = true
				return nil
			})(httptest.NewRecorder(), connection.NewRequest(r, 0))

			if tt.wantErr {
				assert.False(t, called)
				assert.Equal(t, http.StatusBadRequest, kerrors.StatusOf(err))
				return
			}
			assert.NoError(t, err)
			assert.True(t, called)
		})
	}
}
