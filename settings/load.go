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

package settings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cast"
)

// Format names a settings file syntax.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// DefaultEnvPrefix prefixes the environment variables read by [Load].
const DefaultEnvPrefix = "KEEL"

// Option configures [Load].
type Option func(*loader)

type loader struct {
	content   []byte
	format    Format
	prefix    string
	environ   func() []string
	overrides []*Settings
}

// WithContent loads settings from data instead of a file.
func WithContent(data []byte, format Format) Option {
	return func(l *loader) {
		l.content = data
		l.format = format
	}
}

// WithEnvPrefix changes the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.prefix = prefix
	}
}

// WithEnviron replaces os.Environ as the source of environment variables.
func WithEnviron(env []string) Option {
	return func(l *loader) {
		l.environ = func() []string { return env }
	}
}

// WithOverrides overlays s on the loaded settings. Non-zero fields of s win;
// zero fields never replace a loaded value.
func WithOverrides(s *Settings) Option {
	return func(l *loader) {
		l.overrides = append(l.overrides, s)
	}
}

// Load builds settings from [Defaults], the file at path (skipped when path
// is empty), KEEL_* environment variables and the code overrides, in that
// order, and validates the result.
//
// Errors:
//   - the file cannot be read or has an unknown extension
//   - the content cannot be decoded
//   - a value has the wrong type for its option
//   - [Settings.Validate] fails
func Load(path string, opts ...Option) (*Settings, error) {
	l := &loader{prefix: DefaultEnvPrefix, environ: os.Environ}
	for _, opt := range opts {
		opt(l)
	}

	values, err := l.read(path)
	if err != nil {
		return nil, err
	}
	if l.prefix != "" {
		env := envValues(l.environ(), l.prefix)
		if err = mergo.Map(&values, env, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("settings: merge environment: %w", err)
		}
	}

	s := Defaults()
	if err = decode(values, &s); err != nil {
		return nil, err
	}
	for _, o := range l.overrides {
		if o == nil {
			continue
		}
		if err = mergo.Merge(&s, *o, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("settings: apply overrides: %w", err)
		}
	}
	if err = s.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return &s, nil
}

func (l *loader) read(path string) (map[string]any, error) {
	data, format := l.content, l.format
	if data == nil && path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("settings: read %s: %w", path, err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			format = FormatYAML
		case ".toml":
			format = FormatTOML
		case ".json":
			format = FormatJSON
		default:
			return nil, fmt.Errorf("settings: unsupported file extension %q", ext)
		}
	}

	values := make(map[string]any)
	if len(data) == 0 {
		return values, nil
	}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &values)
	case FormatTOML:
		err = toml.Unmarshal(data, &values)
	case FormatJSON:
		err = json.Unmarshal(data, &values)
	default:
		return nil, fmt.Errorf("settings: unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", format, err)
	}
	return normalizeKeys(values), nil
}

// normalizeKeys lowercases option names. Header names are left untouched.
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := strings.ToLower(k)
		if nested, ok := v.(map[string]any); ok && key != "response_headers" {
			v = normalizeKeys(nested)
		}
		out[key] = v
	}
	return out
}

// envValues turns PREFIX_SOME_OPTION__NESTED=value into a nested map. A
// single underscore stays part of the option name.
func envValues(environ []string, prefix string) map[string]any {
	prefix = strings.ToUpper(prefix) + "_"
	conf := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(strings.ToUpper(key), prefix) {
			continue
		}
		var parts []string
		for _, part := range strings.Split(strings.ToLower(key[len(prefix):]), "__") {
			if part = strings.Trim(part, "_"); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}
		current := conf
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = strings.TrimSpace(value)
	}
	return conf
}

var durationType = reflect.TypeFor[time.Duration]()

// castHook converts string input with spf13/cast so values such as "1",
// "on" or "90s" reach bool, numeric and duration options.
func castHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to == durationType {
		return cast.ToDurationE(data)
	}
	switch to.Kind() {
	case reflect.Bool:
		s := strings.ToLower(strings.TrimSpace(data.(string)))
		switch s {
		case "on", "yes", "y":
			return true, nil
		case "off", "no", "n", "":
			return false, nil
		}
		return cast.ToBoolE(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cast.ToInt64E(data)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cast.ToUint64E(data)
	case reflect.Float32, reflect.Float64:
		return cast.ToFloat64E(data)
	}
	return data, nil
}

func decode(values map[string]any, s *Settings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			castHook,
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result: s,
	})
	if err != nil {
		return fmt.Errorf("settings: create decoder: %w", err)
	}
	if err = decoder.Decode(values); err != nil {
		return fmt.Errorf("settings: decode: %w", err)
	}
	if len(s.ResponseHeaders) > 0 {
		h := make(http.Header, len(s.ResponseHeaders))
		for k, vs := range s.ResponseHeaders {
			for _, v := range vs {
				h.Add(k, v)
			}
		}
		s.ResponseHeaders = h
	}
	return nil
}
