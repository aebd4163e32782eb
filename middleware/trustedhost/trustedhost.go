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

// Package trustedhost rejects requests whose Host header is not in the
// allowed list.
//
// Patterns are exact host names, "*.example.com" for any subdomain of
// example.com, or "*" for every host. The port is ignored.
package trustedhost

import (
	"net"
	"net/http"
	"strings"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

// New returns a middleware that allows only the given hosts. With no hosts,
// or with "*", every request passes.
func New(hosts ...string) router.Middleware {
	allowAll := len(hosts) == 0
	exact := make(map[string]struct{}, len(hosts))
	var suffixes []string
	for _, h := range hosts {
		h = strings.ToLower(h)
		switch {
		case h == "*":
			allowAll = true
		case strings.HasPrefix(h, "*."):
			suffixes = append(suffixes, h[1:])
		default:
			exact[h] = struct{}{}
		}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		if allowAll {
			return next
		}
		return func(w http.ResponseWriter, req *connection.Request) error {
			host := strings.ToLower(hostname(req.HTTP().Host))
			if _, ok := exact[host]; ok {
				return next(w, req)
			}
			for _, s := range suffixes {
				if strings.HasSuffix(host, s) {
					return next(w, req)
				}
			}
			return kerrors.NewBadRequest("Invalid host header")
		}
	}
}

func hostname(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(host, "[]")
	}
	return hostport
}
