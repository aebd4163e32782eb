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
	"net/http"
	"net/url"
	"strings"
)

// ValueGetter reads raw string values from one request source.
type ValueGetter interface {
	// Get returns the first value for key.
	Get(key string) string

	// GetAll returns every value for key.
	GetAll(key string) []string

	// Has reports whether key is present.
	Has(key string) bool
}

// GetterFunc adapts a lookup function to [ValueGetter].
type GetterFunc func(key string) (values []string, has bool)

// Get implements [ValueGetter].
func (f GetterFunc) Get(key string) string {
	values, has := f(key)
	if has && len(values) > 0 {
		return values[0]
	}
	return ""
}

// GetAll implements [ValueGetter].
func (f GetterFunc) GetAll(key string) []string {
	values, _ := f(key)
	return values
}

// Has implements [ValueGetter].
func (f GetterFunc) Has(key string) bool {
	_, has := f(key)
	return has
}

// valuesGetter reads url.Values, accepting the "key[]" spelling for repeated values.
type valuesGetter struct {
	values url.Values
}

// NewQueryGetter reads query parameters.
func NewQueryGetter(v url.Values) ValueGetter {
	return &valuesGetter{values: v}
}

// NewFormGetter reads form fields.
func NewFormGetter(v url.Values) ValueGetter {
	return &valuesGetter{values: v}
}

func (g *valuesGetter) Get(key string) string {
	if vals := g.GetAll(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (g *valuesGetter) GetAll(key string) []string {
	if vals := g.values[key]; len(vals) > 0 {
		return vals
	}
	return g.values[key+"[]"]
}

func (g *valuesGetter) Has(key string) bool {
	return g.values.Has(key) || g.values.Has(key+"[]")
}

// NewHeaderGetter reads headers case-insensitively. GetAll splits comma
// separated values; Get returns the first header line unchanged.
func NewHeaderGetter(h http.Header) ValueGetter {
	return headerGetter(h)
}

type headerGetter http.Header

func (g headerGetter) Get(key string) string {
	return http.Header(g).Get(key)
}

func (g headerGetter) GetAll(key string) []string {
	var out []string
	for _, v := range http.Header(g).Values(key) {
		for part := range strings.SplitSeq(v, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func (g headerGetter) Has(key string) bool {
	return len(http.Header(g).Values(key)) > 0
}

// NewCookieGetter reads cookies.
func NewCookieGetter(cookies map[string]string) ValueGetter {
	return GetterFunc(func(key string) ([]string, bool) {
		v, ok := cookies[key]
		if !ok {
			return nil, false
		}
		return []string{v}, true
	})
}
