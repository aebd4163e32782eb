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
	"encoding"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/errors"
	"rivaas.dev/keel/validation"
)

// Location is where a parameter value comes from.
type Location int

const (
	LocationPath Location = iota + 1
	LocationQuery
	LocationHeader
	LocationCookie
	LocationBody
	LocationForm
	LocationFile
	LocationDependency
	LocationConnection
	LocationReserved
)

var locationNames = map[Location]string{
	LocationPath:       "path",
	LocationQuery:      "query",
	LocationHeader:     "header",
	LocationCookie:     "cookie",
	LocationBody:       "body",
	LocationForm:       "form",
	LocationFile:       "file",
	LocationDependency: "dependency",
	LocationConnection: "connection",
	LocationReserved:   "reserved",
}

func (l Location) String() string {
	return locationNames[l]
}

// tagLocations lists the explicit location tags in lookup order.
var tagLocations = []struct {
	tag string
	loc Location
}{
	{"path", LocationPath},
	{"query", LocationQuery},
	{"header", LocationHeader},
	{"cookie", LocationCookie},
	{"body", LocationBody},
	{"form", LocationForm},
	{"file", LocationFile},
	{"dep", LocationDependency},
}

// Reserved parameter names.
const (
	ReservedRequest = "request"
	ReservedSocket  = "socket"
	ReservedHeaders = "headers"
	ReservedQuery   = "query"
	ReservedCookies = "cookies"
	ReservedState   = "state"
	ReservedData    = "data"
	ReservedPayload = "payload"
)

var (
	contextType    = reflect.TypeFor[context.Context]()
	requestType    = reflect.TypeFor[*connection.Request]()
	socketType     = reflect.TypeFor[*connection.WebSocket]()
	stateType      = reflect.TypeFor[*connection.State]()
	uploadType     = reflect.TypeFor[*connection.UploadFile]()
	uploadsType    = reflect.TypeFor[[]*connection.UploadFile]()
	headerType     = reflect.TypeFor[http.Header]()
	valuesType     = reflect.TypeFor[url.Values]()
	stringMapType  = reflect.TypeFor[map[string]string]()
	uuidType       = reflect.TypeFor[uuid.UUID]()
	timeType       = reflect.TypeFor[time.Time]()
	durationType   = reflect.TypeFor[time.Duration]()
	unmarshalerPtr = reflect.TypeFor[encoding.TextUnmarshaler]()
	errorType      = reflect.TypeFor[error]()
)

// Param describes one handler or dependency parameter.
type Param struct {
	// Name is the parameter name: the snake_case field name.
	Name string

	// Alias is the name on the wire (query key, header name, form field,
	// dependency name). It defaults to Name; header aliases default to Name
	// with "_" replaced by "-".
	Alias string

	// Field is the input struct field receiving the value.
	Field reflect.StructField

	// Type is the field type.
	Type reflect.Type

	Location Location

	// Reserved is the reserved name this parameter was placed by, if any.
	Reserved string

	Required   bool
	Default    string
	HasDefault bool

	// Multi is set for sequences of scalars read from repeated values.
	Multi bool

	// Embed places a body parameter under its alias instead of using the whole body.
	Embed bool

	Constraints validation.Constraints

	// OpenAPI metadata.
	Description     string
	Example         string
	Deprecated      bool
	IncludeInSchema bool
}

// Index returns the field index path inside the input struct.
func (p *Param) Index() []int {
	return p.Field.Index
}

// ElemType returns the type with pointers removed, and the element type for sequences.
func (p *Param) ElemType() reflect.Type {
	t := deref(p.Type)
	if p.Multi && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		return deref(t.Elem())
	}
	return t
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// IsScalar reports whether values of t are read from a single string.
func IsScalar(t reflect.Type) bool {
	t = deref(t)
	switch t {
	case uuidType, timeType, durationType:
		return true
	}
	if reflect.PointerTo(t).Implements(unmarshalerPtr) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// IsScalarSequence reports whether t is a slice of scalars.
func IsScalarSequence(t reflect.Type) bool {
	t = deref(t)
	return t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 && IsScalar(t.Elem())
}

type fieldSpec struct {
	opts    Options
	pathSet map[string]bool
}

func (s fieldSpec) analyze(field reflect.StructField) (*Param, error) {
	p := &Param{
		Name:            SnakeCase(field.Name),
		Field:           field,
		Type:            field.Type,
		IncludeInSchema: field.Tag.Get("schema") != "-",
		Description:     field.Tag.Get("doc"),
		Example:         field.Tag.Get("example"),
		Deprecated:      field.Tag.Get("deprecated") == "true",
	}
	p.Default, p.HasDefault = field.Tag.Lookup("default")

	optional := false
	for _, tl := range tagLocations {
		value, ok := field.Tag.Lookup(tl.tag)
		if !ok {
			continue
		}
		alias, flags, _ := strings.Cut(value, ",")
		p.Location = tl.loc
		p.Alias = alias
		for _, flag := range strings.Split(flags, ",") {
			switch flag {
			case "optional":
				optional = true
			case "embed":
				p.Embed = true
			}
		}
		break
	}

	if p.Location == 0 {
		s.place(p)
	}
	if p.Alias == "" {
		p.Alias = p.Name
		if p.Location == LocationHeader {
			p.Alias = strings.ReplaceAll(p.Name, "_", "-")
		}
	}

	if err := s.check(p); err != nil {
		return nil, err
	}

	switch p.Location {
	case LocationQuery, LocationHeader, LocationForm:
		p.Multi = IsScalarSequence(p.Type)
	}

	switch p.Location {
	case LocationPath:
		p.Required = true
	case LocationDependency, LocationConnection, LocationReserved:
		p.Required = false
	case LocationFile:
		p.Required = !optional && !p.HasDefault
	default:
		p.Required = !optional && !p.HasDefault && field.Type.Kind() != reflect.Pointer
	}

	c, err := constraintsOf(field)
	if err != nil {
		return nil, err
	}
	p.Constraints = c

	return p, nil
}

// place applies the implicit location rules.
func (s fieldSpec) place(p *Param) {
	t := p.Type
	switch {
	case t == contextType:
		p.Location = LocationConnection
		return
	case t == requestType:
		p.Location, p.Reserved = LocationConnection, ReservedRequest
		return
	case t == socketType:
		p.Location, p.Reserved = LocationConnection, ReservedSocket
		return
	case t == stateType:
		p.Location, p.Reserved = LocationReserved, ReservedState
		return
	}

	switch p.Name {
	case ReservedRequest, ReservedSocket:
		p.Location, p.Reserved = LocationConnection, p.Name
		return
	case ReservedHeaders, ReservedQuery, ReservedCookies, ReservedState:
		p.Location, p.Reserved = LocationReserved, p.Name
		return
	case ReservedData, ReservedPayload:
		p.Location, p.Reserved = LocationBody, p.Name
		return
	}

	if s.opts.Dependencies[p.Name] {
		p.Location = LocationDependency
		return
	}
	if s.pathSet[p.Name] {
		p.Location = LocationPath
		return
	}

	switch {
	case t == uploadType || t == uploadsType:
		p.Location = LocationFile
	case IsScalar(t) || IsScalarSequence(t):
		p.Location = LocationQuery
	default:
		p.Location = LocationBody
	}
}

func (s fieldSpec) check(p *Param) error {
	switch p.Location {
	case LocationPath:
		if !s.pathSet[p.Alias] && !s.pathSet[p.Name] {
			return errors.NewImproperlyConfigured("path parameter %q is not declared in the route path", p.Alias)
		}
		if !IsScalar(p.Type) {
			return errors.NewImproperlyConfigured("path parameter %q must be a scalar, got %s", p.Name, p.Type)
		}
	case LocationQuery, LocationHeader, LocationForm:
		if !IsScalar(p.Type) && !IsScalarSequence(p.Type) {
			return errors.NewImproperlyConfigured("%s parameter %q must be a scalar or a slice of scalars, got %s", p.Location, p.Name, p.Type)
		}
	case LocationCookie:
		if !IsScalar(p.Type) {
			return errors.NewImproperlyConfigured("cookie parameter %q must be a scalar, got %s", p.Name, p.Type)
		}
	case LocationFile:
		if p.Type != uploadType && p.Type != uploadsType {
			return errors.NewImproperlyConfigured("file parameter %q must be *connection.UploadFile or []*connection.UploadFile", p.Name)
		}
	case LocationConnection:
		switch p.Reserved {
		case ReservedRequest:
			if p.Type != requestType {
				return errors.NewImproperlyConfigured("parameter %q must be *connection.Request", p.Name)
			}
		case ReservedSocket:
			if p.Type != socketType {
				return errors.NewImproperlyConfigured("parameter %q must be *connection.WebSocket", p.Name)
			}
		}
	case LocationReserved:
		var ok bool
		switch p.Reserved {
		case ReservedHeaders:
			ok = p.Type == headerType || p.Type == stringMapType
		case ReservedQuery:
			ok = p.Type == valuesType || p.Type == stringMapType
		case ReservedCookies:
			ok = p.Type == stringMapType
		case ReservedState:
			ok = p.Type == stateType
		}
		if !ok {
			return errors.NewImproperlyConfigured("reserved parameter %q has unsupported type %s", p.Name, p.Type)
		}
	}
	return nil
}

func constraintsOf(field reflect.StructField) (validation.Constraints, error) {
	c := validation.Constraints{Tag: field.Tag.Get("validate")}
	if pattern := field.Tag.Get("pattern"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return c, errors.NewImproperlyConfigured("field %s: invalid pattern %q: %v", field.Name, pattern, err)
		}
		c.Pattern = re
	}
	if enum := field.Tag.Get("enum"); enum != "" {
		for _, v := range strings.Split(enum, ",") {
			c.Enum = append(c.Enum, strings.TrimSpace(v))
		}
	}
	return c, nil
}
