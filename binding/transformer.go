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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/signature"
	"rivaas.dev/keel/validation"
)

// Limits applied to binding.
const (
	// DefaultMaxFileSize is the default maximum size of one uploaded file (32 MiB).
	DefaultMaxFileSize = 32 << 20

	// DefaultMaxParts is the default maximum number of multipart parts.
	DefaultMaxParts = 1000

	// DefaultMaxSliceLen is the default maximum number of repeated values per parameter.
	DefaultMaxSliceLen = 10_000
)

// SliceParseMode defines how sequence parameters are read from query and form data.
type SliceParseMode int

const (
	SliceRepeat SliceParseMode = iota // ?tags=a&tags=b (default)
	SliceCSV                          // ?tags=a,b also accepted
)

// DependencyResolver resolves named dependencies for the current request.
type DependencyResolver interface {
	ResolveDependency(ctx context.Context, name string) (any, error)
}

// Input is everything a function can receive for one connection.
type Input struct {
	Request *connection.Request

	// Socket is set for websocket connections.
	Socket *connection.WebSocket

	// Dependencies resolves dependency parameters. It may be nil when the
	// model declares none.
	Dependencies DependencyResolver
}

// Transformer binds connection data into the input struct of a [signature.Model].
// A Transformer is safe for concurrent use.
type Transformer struct {
	validator   *validation.Validator
	decoders    map[string]Decoder
	limits      FormLimits
	sliceMode   SliceParseMode
	maxSliceLen int
}

// Option configures a [Transformer].
type Option func(*Transformer)

// WithValidator sets the validator used for parameter constraints and bodies.
func WithValidator(v *validation.Validator) Option {
	return func(t *Transformer) {
		t.validator = v
	}
}

// WithDecoder registers a body decoder for a media type, replacing any existing one.
func WithDecoder(mediaType string, d Decoder) Option {
	return func(t *Transformer) {
		t.decoders[strings.ToLower(mediaType)] = d
	}
}

// WithMaxFileSize sets the largest accepted uploaded file in bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(t *Transformer) {
		t.limits.MaxFileSize = n
	}
}

// WithSpoolMemory sets how much of an uploaded file is kept in memory before spilling to disk.
func WithSpoolMemory(n int64) Option {
	return func(t *Transformer) {
		t.limits.SpoolMemory = n
	}
}

// WithMaxParts sets the maximum number of multipart parts.
func WithMaxParts(n int) Option {
	return func(t *Transformer) {
		t.limits.MaxParts = n
	}
}

// WithSliceMode sets how sequence parameters are parsed.
func WithSliceMode(mode SliceParseMode) Option {
	return func(t *Transformer) {
		t.sliceMode = mode
	}
}

// WithMaxSliceLen caps the number of repeated values per parameter.
func WithMaxSliceLen(n int) Option {
	return func(t *Transformer) {
		t.maxSliceLen = n
	}
}

// New returns a Transformer with the default decoders.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		decoders: defaultDecoders(),
		limits: FormLimits{
			MaxFileSize: DefaultMaxFileSize,
			SpoolMemory: connection.DefaultSpoolMemory,
			MaxParts:    DefaultMaxParts,
		},
		maxSliceLen: DefaultMaxSliceLen,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.validator == nil {
		t.validator = validation.New()
	}
	return t
}

// Validator returns the validator in use.
func (t *Transformer) Validator() *validation.Validator {
	return t.validator
}

// Bind builds the input struct of m from in. The returned value is a pointer
// to the input struct, or the zero Value when m takes no input.
//
// Parameters are bound in order: path, query, header and cookie, body, then
// dependencies and reserved names. Every conversion and validation failure
// is collected into one [kerrors.ValidationError]; dependencies are not
// resolved once such failures exist. Other failures (unsupported media type,
// oversized body, dependency errors) are returned as they are.
func (t *Transformer) Bind(ctx context.Context, m *signature.Model, in Input) (reflect.Value, error) {
	input := m.NewInput()
	if !input.IsValid() {
		return input, nil
	}
	elem := input.Elem()
	req := in.Request
	verr := kerrors.NewValidationError()

	for _, p := range m.ParamsIn(signature.LocationPath) {
		t.bindPath(req, p, elem.FieldByIndex(p.Index()), verr)
	}

	for _, p := range m.ParamsIn(signature.LocationQuery) {
		t.bindValues("query", NewQueryGetter(req.Query()), p, elem.FieldByIndex(p.Index()), verr)
	}
	for _, p := range m.ParamsIn(signature.LocationHeader) {
		t.bindValues("header", NewHeaderGetter(req.Header()), p, elem.FieldByIndex(p.Index()), verr)
	}
	if cookies := m.ParamsIn(signature.LocationCookie); len(cookies) > 0 {
		getter := NewCookieGetter(req.Cookies())
		for _, p := range cookies {
			t.bindValues("cookie", getter, p, elem.FieldByIndex(p.Index()), verr)
		}
	}

	if err := t.bindBody(m, req, elem, verr); err != nil {
		return reflect.Value{}, err
	}
	if verr.HasErrors() {
		return reflect.Value{}, verr
	}

	for _, p := range m.ParamsIn(signature.LocationDependency) {
		if in.Dependencies == nil {
			return reflect.Value{}, kerrors.NewImproperlyConfigured("no dependency resolver for %q", p.Alias)
		}
		v, err := in.Dependencies.ResolveDependency(ctx, p.Alias)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := assign(elem.FieldByIndex(p.Index()), v); err != nil {
			return reflect.Value{}, kerrors.NewImproperlyConfigured("dependency %q: %v", p.Alias, err)
		}
	}

	for _, p := range m.ParamsIn(signature.LocationConnection, signature.LocationReserved) {
		if err := bindReserved(ctx, in, p, elem.FieldByIndex(p.Index())); err != nil {
			return reflect.Value{}, err
		}
	}

	return input, nil
}

func (t *Transformer) bindPath(req *connection.Request, p *signature.Param, field reflect.Value, verr *kerrors.ValidationError) {
	loc := kerrors.Loc("path", p.Alias)
	v, ok := req.PathParam(p.Alias)
	if !ok {
		verr.Add(missing(loc))
		return
	}
	if s, isString := v.(string); isString && field.Kind() != reflect.String {
		if err := setField(field, s); err != nil {
			verr.Add(conversionDetail(loc, s, err))
			return
		}
	} else if err := assign(field, v); err != nil {
		verr.Add(kerrors.ErrorDetail{Loc: loc, Msg: err.Error(), Type: "value_error", Input: v})
		return
	}
	t.checkConstraints(loc, p, field, verr)
}

// bindValues binds a query, header, cookie or form parameter.
func (t *Transformer) bindValues(source string, getter ValueGetter, p *signature.Param, field reflect.Value, verr *kerrors.ValidationError) {
	loc := kerrors.Loc(source, p.Alias)

	if !getter.Has(p.Alias) {
		switch {
		case p.HasDefault:
			t.setDefault(loc, p, field, verr)
		case p.Required:
			verr.Add(missing(loc))
		}
		return
	}

	if p.Multi {
		raws := t.splitValues(getter.GetAll(p.Alias))
		if t.maxSliceLen > 0 && len(raws) > t.maxSliceLen {
			verr.Add(kerrors.ErrorDetail{
				Loc:  loc,
				Msg:  fmt.Sprintf("List should have at most %d items", t.maxSliceLen),
				Type: "too_long",
				Ctx:  map[string]any{"max_length": t.maxSliceLen},
			})
			return
		}
		if i, err := setSlice(field, raws); err != nil {
			verr.Add(conversionDetail(kerrors.Loc(source, p.Alias, i), raws[i], err))
			return
		}
	} else {
		raw := getter.Get(p.Alias)
		if err := setField(field, raw); err != nil {
			verr.Add(conversionDetail(loc, raw, err))
			return
		}
	}
	t.checkConstraints(loc, p, field, verr)
}

func (t *Transformer) splitValues(raws []string) []string {
	if t.sliceMode != SliceCSV {
		return raws
	}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		for part := range strings.SplitSeq(raw, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

// setDefault parses the declared default. Sequence defaults are comma separated.
func (t *Transformer) setDefault(loc []any, p *signature.Param, field reflect.Value, verr *kerrors.ValidationError) {
	var err error
	if p.Multi {
		var raws []string
		if p.Default != "" {
			raws = strings.Split(p.Default, ",")
		}
		_, err = setSlice(field, raws)
	} else {
		err = setField(field, p.Default)
	}
	if err != nil {
		verr.Add(conversionDetail(loc, p.Default, err))
	}
}

func (t *Transformer) checkConstraints(loc []any, p *signature.Param, field reflect.Value, verr *kerrors.ValidationError) {
	c := p.Constraints
	if c.IsZero() {
		return
	}
	v := field
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if p.Multi && (len(c.Enum) > 0 || c.Pattern != nil) {
		each := validation.Constraints{Enum: c.Enum, Pattern: c.Pattern}
		for i := range v.Len() {
			verr.Add(t.validator.Param(appendLoc(loc, i), v.Index(i).Interface(), each)...)
		}
		c = validation.Constraints{Tag: c.Tag}
	}
	verr.Add(t.validator.Param(loc, v.Interface(), c)...)
}

func (t *Transformer) bindBody(m *signature.Model, req *connection.Request, elem reflect.Value, verr *kerrors.ValidationError) error {
	bodies := m.ParamsIn(signature.LocationBody)
	fields := m.ParamsIn(signature.LocationForm)
	files := m.ParamsIn(signature.LocationFile)
	if len(bodies) == 0 && len(fields) == 0 && len(files) == 0 {
		return nil
	}

	mt := mediaType(req.ContentType())
	if mt == MediaTypeForm || mt == MediaTypeMultipart {
		form, err := formOf(req, mt, t.limits)
		if err != nil {
			return err
		}
		t.bindForm(form, bodies, fields, files, elem, verr)
		return nil
	}

	t.missingForm(fields, files, verr)
	if len(bodies) == 0 {
		return nil
	}
	data, err := req.Body()
	if err != nil {
		return bodyReadError(err)
	}
	if len(data) == 0 {
		for _, p := range bodies {
			if p.Required {
				verr.Add(missing(bodyLoc(p, len(bodies))))
			}
		}
		return nil
	}

	if mt == MediaTypeText {
		return bindText(data, bodies, elem)
	}
	decoder, err := t.decoder(mt)
	if err != nil {
		return err
	}

	if len(bodies) == 1 && !bodies[0].Embed {
		p := bodies[0]
		field := elem.FieldByIndex(p.Index())
		loc := kerrors.Loc("body")
		if err := decoder.Decode(data, field.Addr().Interface()); err != nil {
			verr.Add(decodeErrorDetails(loc, err)...)
			return nil
		}
		verr.Add(t.validator.Body(loc, field.Interface())...)
		return nil
	}

	// Embedded bodies: each parameter reads the member named by its alias.
	var members map[string]any
	if err := decoder.Decode(data, &members); err != nil {
		verr.Add(decodeErrorDetails(kerrors.Loc("body"), err)...)
		return nil
	}
	for _, p := range bodies {
		loc := kerrors.Loc("body", p.Alias)
		raw, ok := members[p.Alias]
		if !ok {
			if p.Required {
				verr.Add(missing(loc))
			}
			continue
		}
		field := elem.FieldByIndex(p.Index())
		if err := redecode(raw, field); err != nil {
			verr.Add(decodeErrorDetails(loc, err)...)
			continue
		}
		verr.Add(t.validator.Body(loc, field.Interface())...)
	}
	return nil
}

// redecode moves a generically decoded member into field through JSON.
func redecode(raw any, field reflect.Value) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return decodeJSON(data, field.Addr().Interface())
}

func (t *Transformer) decoder(mt string) (Decoder, error) {
	if mt == "" {
		mt = MediaTypeJSON
	}
	if d, ok := t.decoders[mt]; ok {
		return d, nil
	}
	if strings.HasSuffix(mt, "+json") {
		return t.decoders[MediaTypeJSON], nil
	}
	return nil, kerrors.NewUnsupportedMediaType(mt)
}

func bindText(data []byte, bodies []*signature.Param, elem reflect.Value) error {
	if len(bodies) != 1 || bodies[0].Embed {
		return kerrors.NewUnsupportedMediaType(MediaTypeText)
	}
	field := elem.FieldByIndex(bodies[0].Index())
	target := field
	if target.Kind() == reflect.Pointer {
		target = reflect.New(field.Type().Elem()).Elem()
	}
	switch {
	case target.Kind() == reflect.String:
		target.SetString(string(data))
	case target.Type() == reflect.TypeFor[[]byte]():
		target.SetBytes(data)
	case target.Kind() == reflect.Interface && target.NumMethod() == 0:
		target.Set(reflect.ValueOf(string(data)))
	default:
		return kerrors.NewUnsupportedMediaType(MediaTypeText)
	}
	if field.Kind() == reflect.Pointer {
		field.Set(target.Addr())
	}
	return nil
}

func (t *Transformer) missingForm(fields, files []*signature.Param, verr *kerrors.ValidationError) {
	for _, p := range fields {
		if p.Required && !p.HasDefault {
			verr.Add(missing(kerrors.Loc("body", p.Alias)))
		}
	}
	for _, p := range files {
		if p.Required {
			verr.Add(missing(kerrors.Loc("body", p.Alias)))
		}
	}
}

func (t *Transformer) bindForm(form *Form, bodies, fields, files []*signature.Param, elem reflect.Value, verr *kerrors.ValidationError) {
	getter := NewFormGetter(form.Values)
	for _, p := range fields {
		t.bindValues("body", getter, p, elem.FieldByIndex(p.Index()), verr)
	}

	for _, p := range files {
		loc := kerrors.Loc("body", p.Alias)
		uploads := form.Files[p.Alias]
		if len(uploads) == 0 {
			if p.Required {
				verr.Add(missing(loc))
			}
			continue
		}
		field := elem.FieldByIndex(p.Index())
		if field.Kind() == reflect.Slice {
			field.Set(reflect.ValueOf(uploads))
		} else {
			field.Set(reflect.ValueOf(uploads[0]))
		}
	}

	for _, p := range bodies {
		field := elem.FieldByIndex(p.Index())
		loc := kerrors.Loc("body")
		values := form.Values
		if p.Embed || len(bodies) > 1 {
			loc = kerrors.Loc("body", p.Alias)
			values = prefixed(form.Values, p.Alias)
		}
		t.decodeFormStruct(loc, values, field, verr)
	}
}

// prefixed returns the values under "alias." or "alias[...]" with the prefix removed.
func prefixed(values url.Values, alias string) url.Values {
	out := url.Values{}
	for key, vs := range values {
		switch {
		case strings.HasPrefix(key, alias+"."):
			out[strings.TrimPrefix(key, alias+".")] = vs
		case strings.HasPrefix(key, alias+"[") && strings.HasSuffix(key, "]"):
			out[key[len(alias)+1:len(key)-1]] = vs
		}
	}
	return out
}

// decodeFormStruct fills the exported fields of a struct body from form values.
// Fields are matched by their json name, or their snake_case name.
func (t *Transformer) decodeFormStruct(loc []any, values url.Values, field reflect.Value, verr *kerrors.ValidationError) {
	target := field
	if target.Kind() == reflect.Pointer {
		target = reflect.New(field.Type().Elem())
		field.Set(target)
		target = target.Elem()
	}
	switch target.Kind() {
	case reflect.Struct:
	case reflect.Map:
		if target.Type().Key().Kind() == reflect.String {
			m := reflect.MakeMapWithSize(target.Type(), len(values))
			for key := range values {
				ev := reflect.New(target.Type().Elem()).Elem()
				if err := setField(ev, values.Get(key)); err != nil {
					verr.Add(conversionDetail(appendLoc(loc, key), values.Get(key), err))
					continue
				}
				m.SetMapIndex(reflect.ValueOf(key).Convert(target.Type().Key()), ev)
			}
			target.Set(m)
		}
		return
	default:
		return
	}

	getter := NewFormGetter(values)
	typ := target.Type()
	before := len(verr.Errors)
	for i := range typ.NumField() {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := formFieldName(sf)
		if name == "-" || !getter.Has(name) {
			continue
		}
		fv := target.Field(i)
		if signature.IsScalarSequence(sf.Type) {
			raws := t.splitValues(getter.GetAll(name))
			if idx, err := setSlice(fv, raws); err != nil {
				verr.Add(conversionDetail(appendLoc(loc, name, idx), raws[idx], err))
			}
			continue
		}
		if err := setField(fv, getter.Get(name)); err != nil {
			verr.Add(conversionDetail(appendLoc(loc, name), getter.Get(name), err))
		}
	}
	if len(verr.Errors) == before {
		verr.Add(t.validator.Body(loc, target.Interface())...)
	}
}

func formFieldName(sf reflect.StructField) string {
	for _, tag := range []string{"form", "json"} {
		if v, ok := sf.Tag.Lookup(tag); ok {
			if name, _, _ := strings.Cut(v, ","); name != "" {
				return name
			}
		}
	}
	return signature.SnakeCase(sf.Name)
}

func bindReserved(ctx context.Context, in Input, p *signature.Param, field reflect.Value) error {
	req := in.Request
	var v any
	switch {
	case p.Type == reflect.TypeFor[context.Context]():
		v = ctx
	case p.Type == reflect.TypeFor[*connection.Request]():
		v = req
	case p.Type == reflect.TypeFor[*connection.WebSocket]():
		if in.Socket == nil {
			return kerrors.NewImproperlyConfigured("parameter %q needs a websocket connection", p.Name)
		}
		v = in.Socket
	case p.Type == reflect.TypeFor[*connection.State]():
		v = req.State()
	case p.Reserved == signature.ReservedHeaders:
		v = headersAs(req.Header(), p.Type)
	case p.Reserved == signature.ReservedQuery:
		v = valuesAs(req.Query(), p.Type)
	case p.Reserved == signature.ReservedCookies:
		v = req.Cookies()
	case p.Reserved == signature.ReservedState:
		v = req.State().All()
	default:
		return kerrors.NewImproperlyConfigured("unsupported reserved parameter %q of type %s", p.Name, p.Type)
	}
	if err := assign(field, v); err != nil {
		return kerrors.NewImproperlyConfigured("parameter %q: %v", p.Name, err)
	}
	return nil
}

func headersAs(h http.Header, t reflect.Type) any {
	if t == reflect.TypeFor[map[string]string]() {
		out := make(map[string]string, len(h))
		for k := range h {
			out[strings.ToLower(k)] = h.Get(k)
		}
		return out
	}
	return h
}

func valuesAs(q url.Values, t reflect.Type) any {
	if t == reflect.TypeFor[map[string]string]() {
		out := make(map[string]string, len(q))
		for k := range q {
			out[k] = q.Get(k)
		}
		return out
	}
	return q
}

func bodyLoc(p *signature.Param, count int) []any {
	if p.Embed || count > 1 {
		return kerrors.Loc("body", p.Alias)
	}
	return kerrors.Loc("body")
}

func missing(loc []any) kerrors.ErrorDetail {
	return kerrors.ErrorDetail{Loc: loc, Msg: "Field required", Type: "missing"}
}

func conversionDetail(loc []any, raw string, err error) kerrors.ErrorDetail {
	var cerr *conversionError
	if errors.As(err, &cerr) {
		return kerrors.ErrorDetail{Loc: loc, Msg: cerr.msg, Type: cerr.typ, Input: raw}
	}
	return kerrors.ErrorDetail{Loc: loc, Msg: err.Error(), Type: "value_error", Input: raw}
}
