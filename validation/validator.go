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

package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"rivaas.dev/keel/errors"
)

// Constraints are the declared rules of one parameter.
type Constraints struct {
	// Tag is a go-playground/validator tag such as "gte=1,lte=100".
	Tag string

	// Pattern restricts string values.
	Pattern *regexp.Regexp

	// Enum lists the allowed values in their string form.
	Enum []string
}

// IsZero reports whether no constraint is declared.
func (c Constraints) IsZero() bool {
	return c.Tag == "" && c.Pattern == nil && len(c.Enum) == 0
}

// JSONSchemaProvider is implemented by body types that carry a JSON Schema.
// The id must be stable; compiled schemas are cached by id.
type JSONSchemaProvider interface {
	JSONSchema() (id, schema string)
}

// Validator validates parameters and bodies. It is safe for concurrent use.
type Validator struct {
	tags    *validator.Validate
	schemas sync.Map
}

// New creates a Validator. Struct fields are reported by their JSON names.
func New() *Validator {
	tags := validator.New(validator.WithRequiredStructEnabled())
	tags.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{tags: tags}
}

// Engine exposes the tag validator for registering custom validations.
func (v *Validator) Engine() *validator.Validate {
	return v.tags
}

// Param checks value against c. loc locates the parameter.
func (v *Validator) Param(loc []any, value any, c Constraints) []errors.ErrorDetail {
	var out []errors.ErrorDetail

	if len(c.Enum) > 0 {
		s := fmt.Sprint(value)
		if !slices.Contains(c.Enum, s) {
			out = append(out, errors.ErrorDetail{
				Loc:   loc,
				Msg:   "Input should be " + quoteList(c.Enum),
				Type:  "enum",
				Input: value,
				Ctx:   map[string]any{"expected": strings.Join(c.Enum, ", ")},
			})
		}
	}

	if c.Pattern != nil {
		if s, ok := value.(string); ok && !c.Pattern.MatchString(s) {
			out = append(out, errors.ErrorDetail{
				Loc:   loc,
				Msg:   fmt.Sprintf("String should match pattern '%s'", c.Pattern.String()),
				Type:  "string_pattern_mismatch",
				Input: value,
				Ctx:   map[string]any{"pattern": c.Pattern.String()},
			})
		}
	}

	if c.Tag != "" {
		if err := v.tags.Var(value, c.Tag); err != nil {
			out = append(out, v.convert(loc, err, false)...)
		}
	}

	return out
}

// Body validates a decoded body: struct tags on structs (and sequences of
// structs), then the JSON Schema when the value provides one.
func (v *Validator) Body(loc []any, value any) []errors.ErrorDetail {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	var out []errors.ErrorDetail
	switch rv.Kind() {
	case reflect.Struct:
		if err := v.tags.Struct(rv.Interface()); err != nil {
			out = append(out, v.convert(loc, err, true)...)
		}
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			out = append(out, v.Body(appendLoc(loc, i), rv.Index(i).Interface())...)
		}
	}

	if provider, ok := value.(JSONSchemaProvider); ok {
		out = append(out, v.schema(loc, provider, value)...)
	}
	return out
}

func (v *Validator) convert(loc []any, err error, structured bool) []errors.ErrorDetail {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []errors.ErrorDetail{{Loc: loc, Msg: err.Error(), Type: "value_error"}}
	}

	out := make([]errors.ErrorDetail, 0, len(verrs))
	for _, e := range verrs {
		fieldLoc := loc
		if structured {
			fieldLoc = appendLoc(loc, namespacePath(e.Namespace())...)
		}
		d := errors.ErrorDetail{
			Loc:  fieldLoc,
			Msg:  tagMessage(e),
			Type: tagErrorType(e),
		}
		if e.Tag() != "required" {
			d.Input = e.Value()
		}
		if e.Param() != "" {
			d.Ctx = map[string]any{"limit": e.Param()}
		}
		out = append(out, d)
	}
	return out
}

// namespacePath turns "Item.tags[2].name" into ["tags", 2, "name"], dropping the root type.
func namespacePath(ns string) []any {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	var out []any
	for _, part := range parts {
		name, rest, hasIndex := strings.Cut(part, "[")
		out = append(out, name)
		for hasIndex {
			var idx string
			idx, rest, _ = strings.Cut(rest, "]")
			if n, err := strconv.Atoi(idx); err == nil {
				out = append(out, n)
			} else {
				out = append(out, idx)
			}
			_, rest, hasIndex = strings.Cut(rest, "[")
		}
	}
	return out
}

func (v *Validator) schema(loc []any, provider JSONSchemaProvider, value any) []errors.ErrorDetail {
	id, doc := provider.JSONSchema()
	if doc == "" {
		return nil
	}

	compiled, err := v.compiled(id, doc)
	if err != nil {
		return []errors.ErrorDetail{{Loc: loc, Msg: err.Error(), Type: "schema_error"}}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return []errors.ErrorDetail{{Loc: loc, Msg: err.Error(), Type: "value_error"}}
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return []errors.ErrorDetail{{Loc: loc, Msg: err.Error(), Type: "json_invalid"}}
	}

	err = compiled.Validate(inst)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []errors.ErrorDetail{{Loc: loc, Msg: err.Error(), Type: "value_error"}}
	}

	var out []errors.ErrorDetail
	collectSchemaErrors(loc, verr, &out)
	return out
}

func (v *Validator) compiled(id, doc string) (*jsonschema.Schema, error) {
	if id == "" {
		id = "schema.json"
	}
	if cached, ok := v.schemas.Load(id); ok {
		return cached.(*jsonschema.Schema), nil
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(id, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	actual, _ := v.schemas.LoadOrStore(id, compiled)
	return actual.(*jsonschema.Schema), nil
}

func collectSchemaErrors(loc []any, verr *jsonschema.ValidationError, out *[]errors.ErrorDetail) {
	if len(verr.Causes) == 0 {
		fieldLoc := loc
		for _, part := range verr.InstanceLocation {
			if n, err := strconv.Atoi(part); err == nil {
				fieldLoc = appendLoc(fieldLoc, n)
			} else {
				fieldLoc = appendLoc(fieldLoc, part)
			}
		}
		typ := "schema_violation"
		if kw := verr.ErrorKind.KeywordPath(); len(kw) > 0 {
			typ = "schema_" + kw[len(kw)-1]
		}
		*out = append(*out, errors.ErrorDetail{
			Loc:  fieldLoc,
			Msg:  fmt.Sprintf("%v", verr.ErrorKind),
			Type: typ,
		})
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaErrors(loc, cause, out)
	}
}

func appendLoc(loc []any, parts ...any) []any {
	out := make([]any, 0, len(loc)+len(parts))
	out = append(out, loc...)
	return append(out, parts...)
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
