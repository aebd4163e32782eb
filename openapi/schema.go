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
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"rivaas.dev/keel/connection"
)

const componentPrefix = "#/components/schemas/"

var (
	timeType       = reflect.TypeFor[time.Time]()
	durationType   = reflect.TypeFor[time.Duration]()
	uuidType       = reflect.TypeFor[uuid.UUID]()
	uploadType     = reflect.TypeFor[*connection.UploadFile]()
	rawMessageType = reflect.TypeFor[json.RawMessage]()
)

// Generator builds JSON Schemas from Go types and collects the component
// schemas of named struct types.
//
// Component names are assigned from every type passed to [Generator.Collect]
// before the first schema is built, so a name collision qualifies every
// colliding type with its package regardless of the order types were seen.
type Generator struct {
	collected map[reflect.Type]bool
	names     map[reflect.Type]string
	taken     map[string]reflect.Type
	schemas   map[string]*Schema
}

// NewGenerator returns an empty generator.
func NewGenerator() *Generator {
	return &Generator{
		collected: make(map[reflect.Type]bool),
		names:     make(map[reflect.Type]string),
		taken:     make(map[string]reflect.Type),
		schemas:   make(map[string]*Schema),
	}
}

// Collect records the named struct types reachable from t.
func (g *Generator) Collect(t reflect.Type) {
	g.collect(t, make(map[reflect.Type]bool))
}

func (g *Generator) collect(t reflect.Type, visiting map[reflect.Type]bool) {
	if t == nil || visiting[t] || special(t) {
		return
	}
	visiting[t] = true
	defer delete(visiting, t)

	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		g.collect(t.Elem(), visiting)
	case reflect.Map:
		g.collect(t.Elem(), visiting)
	case reflect.Struct:
		if t.Name() != "" {
			g.collected[t] = true
		}
		walkFields(t, func(f reflect.StructField, _ string) {
			g.collect(f.Type, visiting)
		})
	}
}

// assignNames names every collected type that has no name yet.
func (g *Generator) assignNames() {
	groups := make(map[string][]reflect.Type)
	for t := range g.collected {
		if _, ok := g.names[t]; ok {
			continue
		}
		base := baseName(t)
		groups[base] = append(groups[base], t)
	}

	for _, base := range slices.Sorted(maps.Keys(groups)) {
		types := groups[base]
		slices.SortFunc(types, func(a, b reflect.Type) int {
			return strings.Compare(a.PkgPath(), b.PkgPath())
		})
		if prev, ok := g.taken[base]; len(types) == 1 && (!ok || prev == types[0]) {
			g.name(types[0], base)
			continue
		}
		short := make(map[string]int, len(types))
		for _, t := range types {
			short[packageQualified(t, base)]++
		}
		for _, t := range types {
			name := packageQualified(t, base)
			if short[name] > 1 {
				name = sanitize(t.PkgPath()) + "__" + base
			}
			g.name(t, g.free(name))
		}
	}
}

// free returns name, suffixed when another type already holds it.
func (g *Generator) free(name string) string {
	if _, ok := g.taken[name]; !ok {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if _, ok := g.taken[candidate]; !ok {
			return candidate
		}
	}
}

func packageQualified(t reflect.Type, base string) string {
	pkg := t.PkgPath()
	return sanitize(pkg[strings.LastIndex(pkg, "/")+1:]) + "__" + base
}

func (g *Generator) name(t reflect.Type, name string) {
	g.names[t] = name
	g.taken[name] = t
}

var (
	typeQualifier = regexp.MustCompile(`[\w./-]*\.`)
	nonIdent      = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// baseName is the type name with generic arguments flattened ("Page[app.Item]" → "Page_Item").
func baseName(t reflect.Type) string {
	return sanitize(typeQualifier.ReplaceAllString(t.Name(), ""))
}

func sanitize(s string) string {
	return strings.Trim(nonIdent.ReplaceAllString(s, "_"), "_")
}

// Name returns the component name of t, or "" when t is not a named struct.
func (g *Generator) Name(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" || special(t) {
		return ""
	}
	if name, ok := g.names[t]; ok {
		return name
	}
	g.Collect(t)
	g.assignNames()
	return g.names[t]
}

// Ref returns a reference to the component name.
func Ref(name string) *Schema {
	return &Schema{Ref: componentPrefix + name}
}

// Components returns the component schemas built so far.
func (g *Generator) Components() map[string]*Schema {
	return g.schemas
}

// Schema returns the schema of t. Named structs are emitted as components
// and referenced.
func (g *Generator) Schema(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{}
	}
	switch t {
	case timeType:
		return &Schema{Type: "string", Format: "date-time"}
	case uuidType:
		return &Schema{Type: "string", Format: "uuid"}
	case uploadType:
		return &Schema{Type: "string", Format: "binary"}
	case rawMessageType:
		return &Schema{}
	}

	switch t.Kind() {
	case reflect.Pointer:
		return nullable(g.Schema(t.Elem()))
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return &Schema{Type: "integer", Format: "int32"}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer", Format: "int64"}
	case reflect.Float32:
		return &Schema{Type: "number", Format: "float"}
	case reflect.Float64:
		return &Schema{Type: "number", Format: "double"}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string", ContentEncoding: "base64"}
		}
		return &Schema{Type: "array", Items: g.Schema(t.Elem())}
	case reflect.Map:
		s := &Schema{Type: "object"}
		if t.Key().Kind() == reflect.String {
			s.AdditionalProperties = g.Schema(t.Elem())
		}
		return s
	case reflect.Struct:
		name := g.Name(t)
		if name == "" {
			return g.structSchema(t)
		}
		if _, ok := g.schemas[name]; !ok {
			// Reserve the slot first so recursive types terminate.
			g.schemas[name] = &Schema{}
			s := g.structSchema(t)
			s.Title = name
			g.schemas[name] = s
		}
		return Ref(name)
	default:
		return &Schema{}
	}
}

func (g *Generator) structSchema(t reflect.Type) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	walkFields(t, func(f reflect.StructField, name string) {
		fs := g.Schema(f.Type)
		ApplyTags(fs, f)
		s.Properties[name] = fs
		if fieldRequired(f) {
			s.Required = append(s.Required, name)
		}
	})
	return s
}

// nullable allows null in addition to the values of s.
func nullable(s *Schema) *Schema {
	switch typ := s.Type.(type) {
	case string:
		s.Type = []any{typ, "null"}
		return s
	case nil:
		if s.Ref != "" {
			return &Schema{AnyOf: []*Schema{s, {Type: "null"}}}
		}
	}
	return s
}

func special(t reflect.Type) bool {
	return t == timeType || t == uuidType || t == uploadType || t == rawMessageType
}

// walkFields visits the JSON-visible fields of t with their JSON names.
// Embedded structs without a JSON name are flattened.
func walkFields(t reflect.Type, fn func(reflect.StructField, string)) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if f.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			walkFields(ft, fn)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fn(f, name)
	}
}

func fieldRequired(f reflect.StructField) bool {
	if f.Type.Kind() == reflect.Pointer || strings.Contains(f.Tag.Get("json"), "omitempty") {
		return false
	}
	return slices.Contains(strings.Split(f.Tag.Get("validate"), ","), "required")
}

// ApplyTags copies the documentation and constraint tags of f onto s.
func ApplyTags(s *Schema, f reflect.StructField) {
	elem := f.Type
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if doc := f.Tag.Get("doc"); doc != "" {
		s.Description = doc
	}
	if ex, ok := f.Tag.Lookup("example"); ok {
		s.Examples = []any{parseValue(ex, elem)}
	}
	if def, ok := f.Tag.Lookup("default"); ok {
		s.Default = parseValue(def, elem)
	}
	if f.Tag.Get("deprecated") == "true" {
		s.Deprecated = true
	}
	if pattern := f.Tag.Get("pattern"); pattern != "" {
		s.Pattern = pattern
	}
	if enum := f.Tag.Get("enum"); enum != "" {
		s.Enum = enumValues(strings.Split(enum, ","), elem)
	}
	ApplyValidate(s, f.Tag.Get("validate"), elem)
}

// ApplyValidate translates a go-playground/validator tag into schema keywords.
// Sizes apply to string length, item counts or numeric bounds depending on t.
func ApplyValidate(s *Schema, tag string, t reflect.Type) {
	if tag == "" {
		return
	}
	if t.Kind() == reflect.Slice && s.Items != nil && strings.Contains(tag, "dive") {
		before, after, _ := strings.Cut(tag, "dive")
		ApplyValidate(s, strings.Trim(before, ","), t)
		ApplyValidate(s.Items, strings.Trim(after, ","), t.Elem())
		return
	}

	for part := range strings.SplitSeq(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "email":
			s.Format = "email"
		case "url", "uri", "http_url":
			s.Format = "uri"
		case "uuid", "uuid4":
			s.Format = "uuid"
		case "ip":
			s.Format = "ipv4"
		case "ipv6":
			s.Format = "ipv6"
		case "hostname":
			s.Format = "hostname"
		case "datetime":
			s.Format = "date-time"
		case "alphanum":
			s.Pattern = "^[a-zA-Z0-9]+$"
		case "alpha":
			s.Pattern = "^[a-zA-Z]+$"
		case "numeric":
			s.Pattern = "^[-+]?[0-9]+(?:\\.[0-9]+)?$"
		case "oneof":
			s.Enum = enumValues(strings.Fields(value), t)
		case "min", "gte":
			setBound(s, t, value, true, false)
		case "max", "lte":
			setBound(s, t, value, false, false)
		case "gt":
			setBound(s, t, value, true, true)
		case "lt":
			setBound(s, t, value, false, true)
		case "len":
			setBound(s, t, value, true, false)
			setBound(s, t, value, false, false)
		}
	}
}

func setBound(s *Schema, t reflect.Type, value string, lower, exclusive bool) {
	switch t.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if exclusive {
			if lower {
				n++
			} else {
				n--
			}
		}
		if t.Kind() == reflect.String {
			if lower {
				s.MinLength = &n
			} else {
				s.MaxLength = &n
			}
			return
		}
		if lower {
			s.MinItems = &n
		} else {
			s.MaxItems = &n
		}
	default:
		x, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		switch {
		case lower && exclusive:
			s.ExclusiveMinimum = &x
		case lower:
			s.Minimum = &x
		case exclusive:
			s.ExclusiveMaximum = &x
		default:
			s.Maximum = &x
		}
	}
}

func enumValues(values []string, t reflect.Type) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, parseValue(strings.TrimSpace(v), t))
	}
	return out
}

// parseValue converts a tag value to the JSON value of t.
func parseValue(s string, t reflect.Type) any {
	if t.Kind() == reflect.Slice && t != rawMessageType && t.Elem().Kind() != reflect.Uint8 {
		parts := strings.Split(s, ",")
		return enumValues(parts, t.Elem())
	}
	if t == durationType {
		return s
	}
	var (
		v   any
		err error
	)
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err = cast.ToInt64E(s)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err = cast.ToUint64E(s)
	case reflect.Float32, reflect.Float64:
		v, err = cast.ToFloat64E(s)
	case reflect.Bool:
		v, err = cast.ToBoolE(s)
	default:
		return s
	}
	if err != nil {
		return s
	}
	return v
}
