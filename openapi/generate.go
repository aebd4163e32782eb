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
	"net/http"
	"reflect"
	"strconv"
	"strings"

	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/security"
	"rivaas.dev/keel/signature"
	"rivaas.dev/keel/validation"
)

// Config carries the document-level metadata.
type Config struct {
	Title          string
	Version        string
	Summary        string
	Description    string
	TermsOfService string
	Contact        *Contact
	License        *License
	Servers        []Server
	Tags           []Tag
}

const (
	validationErrorName     = "ValidationError"
	httpValidationErrorName = "HTTPValidationError"
	httpErrorName           = "HTTPError"
)

var (
	responseType  = reflect.TypeFor[*response.Response]()
	containerType = reflect.TypeFor[response.Container]()
	providerType  = reflect.TypeFor[validation.JSONSchemaProvider]()
)

// Generate builds the document for the HTTP routes included in the schema.
// It fails when two operations share an operation id.
func Generate(routes []*router.Route, cfg Config) (*Document, error) {
	b := &docBuilder{
		gen:     NewGenerator(),
		schemes: make(map[string]security.SchemeObject),
		ops:     make(map[string]string),
	}

	var visible []*router.Route
	for _, rt := range routes {
		if rt.Kind != router.KindHTTP || rt.Model == nil || !rt.Effective.IncludeInSchema {
			continue
		}
		visible = append(visible, rt)
		b.collect(rt)
	}
	b.gen.assignNames()

	doc := &Document{
		OpenAPI: Version,
		Info: Info{
			Title:          cfg.Title,
			Summary:        cfg.Summary,
			Description:    cfg.Description,
			TermsOfService: cfg.TermsOfService,
			Version:        cfg.Version,
			Contact:        cfg.Contact,
			License:        cfg.License,
		},
		Servers: cfg.Servers,
		Paths:   make(map[string]*PathItem),
		Tags:    cfg.Tags,
	}
	if doc.Info.Title == "" {
		doc.Info.Title = "API"
	}
	if doc.Info.Version == "" {
		doc.Info.Version = "0.1.0"
	}

	for _, rt := range visible {
		item, ok := doc.Paths[rt.Path.Template]
		if !ok {
			item = &PathItem{}
			doc.Paths[rt.Path.Template] = item
		}
		for _, method := range rt.Methods {
			slot := item.slot(method)
			if slot == nil {
				continue
			}
			op, err := b.operation(rt, method)
			if err != nil {
				return nil, err
			}
			*slot = op
		}
	}

	schemas := b.gen.Components()
	if b.needValidation {
		schemas[validationErrorName] = validationErrorSchema()
		schemas[httpValidationErrorName] = httpValidationErrorSchema()
	}
	if b.needHTTPError {
		schemas[httpErrorName] = httpErrorSchema()
	}
	if len(schemas) > 0 || len(b.schemes) > 0 {
		doc.Components = &Components{Schemas: schemas}
		if len(b.schemes) > 0 {
			doc.Components.SecuritySchemes = b.schemes
		}
	}
	return doc, nil
}

type docBuilder struct {
	gen            *Generator
	schemes        map[string]security.SchemeObject
	ops            map[string]string
	needValidation bool
	needHTTPError  bool
}

// collect registers every type the route documents.
func (b *docBuilder) collect(rt *router.Route) {
	for _, p := range allParams(rt) {
		b.gen.Collect(p.Type)
	}
	if rt.Model.ResultType != nil {
		b.gen.Collect(rt.Model.ResultType)
	}
	for _, spec := range rt.Config.Responses {
		if spec.Model != nil {
			b.gen.Collect(reflect.TypeOf(spec.Model))
		}
	}
}

// allParams returns the parameters of the handler followed by those of the
// dependencies it uses, each dependency visited once.
func allParams(rt *router.Route) []*signature.Param {
	var (
		out  []*signature.Param
		seen = make(map[string]bool)
	)
	var visit func(m *signature.Model)
	visit = func(m *signature.Model) {
		out = append(out, m.Params...)
		for _, name := range m.DependencyNames() {
			if seen[name] || rt.Graph == nil {
				continue
			}
			seen[name] = true
			if dm := rt.Graph.Model(name); dm != nil {
				visit(dm)
			}
		}
	}
	visit(rt.Model)
	return out
}

// usedSchemes returns the security schemes of the dependencies the route uses.
func usedSchemes(rt *router.Route) []security.Scheme {
	var (
		out  []security.Scheme
		seen = make(map[string]bool)
	)
	var visit func(m *signature.Model)
	visit = func(m *signature.Model) {
		for _, name := range m.DependencyNames() {
			if seen[name] || rt.Graph == nil {
				continue
			}
			seen[name] = true
			d, ok := rt.Graph.Dependency(name)
			if !ok {
				continue
			}
			if s, ok := d.Meta().(security.Scheme); ok {
				out = append(out, s)
			}
			if dm := rt.Graph.Model(name); dm != nil {
				visit(dm)
			}
		}
	}
	visit(rt.Model)
	return out
}

func (b *docBuilder) operation(rt *router.Route, method string) (*Operation, error) {
	id := rt.OperationIDs[method]
	if prev, ok := b.ops[id]; ok {
		return nil, kerrors.NewImproperlyConfigured("duplicate operation id %q: %s and %s %s", id, prev, method, rt.Path.Template)
	}
	b.ops[id] = method + " " + rt.Path.Template

	op := &Operation{
		Tags:        rt.Effective.Tags,
		Summary:     rt.Config.Summary,
		Description: rt.Config.Description,
		OperationID: id,
		Deprecated:  rt.Effective.Deprecated,
		Responses:   make(map[string]*Response),
	}
	if op.Summary == "" {
		op.Summary = signature.TitleCase(rt.Model.Name)
	}

	params := allParams(rt)
	seen := make(map[string]bool)
	var bodies, forms []*signature.Param
	for _, p := range params {
		if !p.IncludeInSchema {
			continue
		}
		switch p.Location {
		case signature.LocationPath, signature.LocationQuery, signature.LocationHeader, signature.LocationCookie:
			key := p.Location.String() + ":" + p.Alias
			if seen[key] {
				continue
			}
			seen[key] = true
			op.Parameters = append(op.Parameters, b.parameter(p))
		case signature.LocationBody:
			bodies = append(bodies, p)
		case signature.LocationForm, signature.LocationFile:
			forms = append(forms, p)
		}
	}
	op.RequestBody = b.requestBody(rt, id, bodies, forms)

	b.responses(op, rt, method)
	if len(op.Parameters) > 0 || op.RequestBody != nil {
		b.needValidation = true
		op.Responses["422"] = &Response{
			Description: "Validation Error",
			Content: map[string]*MediaType{
				response.MediaTypeJSON: {Schema: Ref(httpValidationErrorName)},
			},
		}
	}

	seen := make(map[string]bool)
	for _, req := range rt.Effective.Security {
		if !seen[req.Scheme.Name()] {
			seen[req.Scheme.Name()] = true
			op.Security = append(op.Security, b.requirement(req.Scheme, req.Scopes))
		}
	}
	for _, s := range usedSchemes(rt) {
		if !seen[s.Name()] {
			seen[s.Name()] = true
			op.Security = append(op.Security, b.requirement(s, nil))
		}
	}
	return op, nil
}

func (b *docBuilder) requirement(s security.Scheme, scopes []string) map[string][]string {
	b.schemes[s.Name()] = s.Object()
	if scopes == nil {
		scopes = []string{}
	}
	return map[string][]string{s.Name(): scopes}
}

func (b *docBuilder) parameter(p *signature.Param) *Parameter {
	var s *Schema
	if elem := p.ElemType(); elem == durationType {
		s = &Schema{Type: "string", Format: "duration"}
		if p.Multi {
			s = &Schema{Type: "array", Items: s}
		}
	} else {
		s = b.gen.Schema(p.Type)
	}
	ApplyTags(s, p.Field)
	if s.Title == "" && s.Ref == "" {
		s.Title = signature.TitleCase(p.Field.Name)
	}
	return &Parameter{
		Name:        p.Alias,
		In:          p.Location.String(),
		Description: p.Description,
		Required:    p.Required,
		Deprecated:  p.Deprecated,
		Schema:      s,
	}
}

func (b *docBuilder) requestBody(rt *router.Route, id string, bodies, forms []*signature.Param) *RequestBody {
	switch {
	case len(bodies) == 1 && !bodies[0].Embed:
		p := bodies[0]
		mediaType := rt.Config.BodyMediaType
		if mediaType == "" {
			mediaType = response.MediaTypeJSON
		}
		return &RequestBody{
			Required: p.Required,
			Content:  map[string]*MediaType{mediaType: {Schema: b.bodySchema(p.Type)}},
		}
	case len(bodies) > 0:
		mediaType := rt.Config.BodyMediaType
		if mediaType == "" {
			mediaType = response.MediaTypeJSON
		}
		return b.combinedBody(id, mediaType, bodies)
	case len(forms) > 0:
		mediaType := rt.Config.BodyMediaType
		if mediaType == "" {
			mediaType = "application/x-www-form-urlencoded"
			for _, p := range forms {
				if p.Location == signature.LocationFile {
					mediaType = "multipart/form-data"
				}
			}
		}
		return b.combinedBody(id, mediaType, forms)
	}
	return nil
}

// bodySchema uses the JSON Schema a body type carries, if any.
func (b *docBuilder) bodySchema(t reflect.Type) *Schema {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if reflect.PointerTo(base).Implements(providerType) {
		provider := reflect.New(base).Interface().(validation.JSONSchemaProvider)
		_, doc := provider.JSONSchema()
		var s Schema
		if err := json.Unmarshal([]byte(doc), &s); err == nil {
			if name := b.gen.Name(base); name != "" {
				s.Title = name
				b.gen.schemas[name] = &s
				return Ref(name)
			}
			return &s
		}
	}
	return b.gen.Schema(base)
}

// combinedBody documents several body or form parameters as one object
// component named after the operation.
func (b *docBuilder) combinedBody(id, mediaType string, params []*signature.Param) *RequestBody {
	name := "Body_" + id
	s := &Schema{Type: "object", Title: name, Properties: make(map[string]*Schema)}
	required := false
	for _, p := range params {
		ps := b.gen.Schema(p.Type)
		ApplyTags(ps, p.Field)
		s.Properties[p.Alias] = ps
		if p.Required {
			s.Required = append(s.Required, p.Alias)
			required = true
		}
	}
	b.gen.schemas[name] = s
	return &RequestBody{
		Required: required,
		Content:  map[string]*MediaType{mediaType: {Schema: Ref(name)}},
	}
}

func (b *docBuilder) responses(op *Operation, rt *router.Route, method string) {
	status := rt.Status(method)
	desc := rt.Config.ResponseDescription
	if desc == "" {
		desc = "Successful Response"
	}
	res := &Response{Description: desc}
	if response.BodyAllowed(status) && (rt.Model.Result == signature.ResultValue || rt.Model.Result == signature.ResultValueError) {
		mediaType := rt.MediaType()
		res.Content = map[string]*MediaType{mediaType: {Schema: b.resultSchema(rt.Model.ResultType, mediaType)}}
	}
	op.Responses[strconv.Itoa(status)] = res

	for code, spec := range rt.Config.Responses {
		key := strconv.Itoa(code)
		r, ok := op.Responses[key]
		if !ok {
			r = &Response{Description: http.StatusText(code)}
			op.Responses[key] = r
		}
		if spec.Description != "" {
			r.Description = spec.Description
		}
		if spec.Model != nil {
			mediaType := spec.MediaType
			if mediaType == "" {
				mediaType = response.MediaTypeJSON
			}
			r.Content = map[string]*MediaType{mediaType: {Schema: b.gen.Schema(reflect.TypeOf(spec.Model))}}
		}
	}

	for _, err := range rt.Config.Raises {
		code := kerrors.StatusOf(err)
		key := strconv.Itoa(code)
		if _, ok := op.Responses[key]; ok {
			continue
		}
		b.needHTTPError = true
		op.Responses[key] = &Response{
			Description: http.StatusText(code),
			Content: map[string]*MediaType{
				response.MediaTypeJSON: {Schema: Ref(httpErrorName)},
			},
		}
	}
}

func (b *docBuilder) resultSchema(t reflect.Type, mediaType string) *Schema {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return &Schema{Type: "string"}
	case t == nil || t.Kind() == reflect.Interface || t == responseType || t.Implements(containerType):
		return &Schema{}
	default:
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		return b.gen.Schema(t)
	}
}

func validationErrorSchema() *Schema {
	return &Schema{
		Type:  "object",
		Title: validationErrorName,
		Properties: map[string]*Schema{
			"loc": {
				Type:  "array",
				Title: "Location",
				Items: &Schema{AnyOf: []*Schema{{Type: "string"}, {Type: "integer"}}},
			},
			"msg":  {Type: "string", Title: "Message"},
			"type": {Type: "string", Title: "Error Type"},
		},
		Required: []string{"loc", "msg", "type"},
	}
}

func httpValidationErrorSchema() *Schema {
	return &Schema{
		Type:  "object",
		Title: httpValidationErrorName,
		Properties: map[string]*Schema{
			"detail": {Type: "array", Title: "Detail", Items: Ref(validationErrorName)},
		},
	}
}

func httpErrorSchema() *Schema {
	return &Schema{
		Type:  "object",
		Title: httpErrorName,
		Properties: map[string]*Schema{
			"detail": {Type: "string", Title: "Detail"},
		},
		Required: []string{"detail"},
	}
}
