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
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Convertor converts one path segment between its string form and a typed value.
type Convertor interface {
	// Regex is the pattern a raw value must match, without anchors or groups.
	Regex() string

	// FromString converts a matched raw value.
	FromString(s string) (any, error)

	// ToString renders v for URL reversal.
	ToString(v any) (string, error)

	// ErrorType names the validation error reported when FromString fails.
	ErrorType() string

	// Schema returns the OpenAPI type and format of the converted value.
	Schema() (typ, format string)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Convertor{
		"str":   stringConvertor{regex: `[^/]+`},
		"path":  stringConvertor{regex: `.*`},
		"slug":  stringConvertor{regex: `[-a-zA-Z0-9_]+`},
		"int":   intConvertor{},
		"float": floatConvertor{},
		"uuid":  uuidConvertor{},
	}
)

// Register adds or replaces the convertor available as {param:name}.
// Paths compiled earlier keep the convertor they were compiled with.
func Register(name string, c Convertor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Lookup returns the convertor registered under name.
func Lookup(name string) (Convertor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

type stringConvertor struct {
	regex string
}

func (c stringConvertor) Regex() string { return c.regex }

func (stringConvertor) FromString(s string) (any, error) { return s, nil }

func (stringConvertor) ToString(v any) (string, error) { return cast.ToStringE(v) }

func (stringConvertor) ErrorType() string { return "string_type" }

func (stringConvertor) Schema() (string, string) { return "string", "" }

type intConvertor struct{}

func (intConvertor) Regex() string { return `-?[0-9]+` }

func (intConvertor) FromString(s string) (any, error) {
	return strconv.ParseInt(s, 10, 64)
}

func (intConvertor) ToString(v any) (string, error) {
	n, err := cast.ToInt64E(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

func (intConvertor) ErrorType() string { return "int_parsing" }

func (intConvertor) Schema() (string, string) { return "integer", "int64" }

type floatConvertor struct{}

func (floatConvertor) Regex() string { return `-?[0-9]+(?:\.[0-9]+)?` }

func (floatConvertor) FromString(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsInf(f, 0) {
		return nil, fmt.Errorf("float %q out of range", s)
	}
	return f, nil
}

func (floatConvertor) ToString(v any) (string, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return "", err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("float %v cannot appear in a path", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func (floatConvertor) ErrorType() string { return "float_parsing" }

func (floatConvertor) Schema() (string, string) { return "number", "double" }

type uuidConvertor struct{}

func (uuidConvertor) Regex() string {
	return `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`
}

func (uuidConvertor) FromString(s string) (any, error) {
	return uuid.Parse(s)
}

func (uuidConvertor) ToString(v any) (string, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u.String(), nil
	case string:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return "", err
		}
		return parsed.String(), nil
	default:
		return "", fmt.Errorf("cannot render %T as uuid", v)
	}
}

func (uuidConvertor) ErrorType() string { return "uuid_parsing" }

func (uuidConvertor) Schema() (string, string) { return "string", "uuid" }
