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
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/errors"
)

type argKind int

const (
	argContext argKind = iota
	argRequest
	argSocket
	argInput
)

// ResultKind is the shape of a function's results.
type ResultKind int

const (
	// ResultNone is a function without results.
	ResultNone ResultKind = iota
	// ResultError is func(...) error.
	ResultError
	// ResultValue is func(...) T.
	ResultValue
	// ResultValueError is func(...) (T, error).
	ResultValueError
	// ResultScoped is func(...) (T, func(), error) or func(...) (T, func() error, error).
	ResultScoped
)

// Options control how a function is analyzed.
type Options struct {
	// Name overrides the name derived from the function.
	Name string

	// PathParams are the parameter names of the enclosing route path.
	PathParams []string

	// Dependencies are the dependency names visible to the function.
	Dependencies map[string]bool

	// Methods are the HTTP methods of the handler; GET and HEAD handlers may not declare a body.
	Methods []string

	// WebSocket marks a websocket handler.
	WebSocket bool

	// Blocking marks a handler that must not run on the request goroutine.
	Blocking bool

	// Factory marks a dependency factory: a result is required and scoped results are allowed.
	Factory bool
}

// Model is the analyzed form of a handler or dependency function.
type Model struct {
	// Name is the function name, used for operation ids and summaries.
	Name string

	// Params lists the input struct parameters in field order.
	Params []*Param

	// Input is the input struct type, nil when the function takes none.
	Input reflect.Type

	// InputPointer is set when the function takes *Input.
	InputPointer bool

	Result ResultKind

	// ResultType is the declared value result type, nil without one.
	ResultType reflect.Type

	IsBlocking  bool
	IsWebSocket bool

	fn         reflect.Value
	args       []argKind
	cleanupErr bool
}

// Outcome is the result of a call.
type Outcome struct {
	Value any

	// Cleanup releases a scoped resource. Nil unless Result is ResultScoped.
	Cleanup func() error
}

// Build analyzes fn. It returns [errors.ImproperlyConfigured] when the
// function shape or a parameter declaration is invalid.
func Build(fn any, opts Options) (*Model, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, errors.NewImproperlyConfigured("expected a function, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, errors.NewImproperlyConfigured("function %s must not be variadic", FuncName(fn))
	}

	m := &Model{
		Name:        opts.Name,
		fn:          v,
		IsBlocking:  opts.Blocking,
		IsWebSocket: opts.WebSocket,
	}
	if m.Name == "" {
		m.Name = FuncName(fn)
	}

	if err := m.analyzeArgs(t); err != nil {
		return nil, err
	}
	if err := m.analyzeResults(t, opts.Factory); err != nil {
		return nil, err
	}

	if m.Input != nil {
		spec := fieldSpec{opts: opts, pathSet: make(map[string]bool, len(opts.PathParams))}
		for _, name := range opts.PathParams {
			spec.pathSet[name] = true
		}
		if err := m.analyzeFields(spec, m.Input, nil); err != nil {
			return nil, err
		}
	}

	if err := m.validate(opts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) analyzeArgs(t reflect.Type) error {
	seen := make(map[argKind]bool)
	for i := range t.NumIn() {
		in := t.In(i)
		var kind argKind
		switch {
		case in == contextType:
			kind = argContext
		case in == requestType:
			kind = argRequest
		case in == socketType:
			kind = argSocket
		case in.Kind() == reflect.Struct:
			kind = argInput
			m.Input = in
		case in.Kind() == reflect.Pointer && in.Elem().Kind() == reflect.Struct:
			kind = argInput
			m.Input, m.InputPointer = in.Elem(), true
		default:
			return errors.NewImproperlyConfigured("function %s: unsupported argument %d of type %s", m.Name, i, in)
		}
		if seen[kind] {
			return errors.NewImproperlyConfigured("function %s: argument of type %s declared twice", m.Name, in)
		}
		seen[kind] = true
		m.args = append(m.args, kind)
	}
	return nil
}

func (m *Model) analyzeResults(t reflect.Type, factory bool) error {
	n := t.NumOut()
	last := func() reflect.Type { return t.Out(n - 1) }

	switch {
	case n == 0:
		m.Result = ResultNone
	case n == 1 && last() == errorType:
		m.Result = ResultError
	case n == 1:
		m.Result, m.ResultType = ResultValue, t.Out(0)
	case n == 2 && last() == errorType:
		m.Result, m.ResultType = ResultValueError, t.Out(0)
	case n == 3 && factory && last() == errorType && isCleanup(t.Out(1)):
		m.Result, m.ResultType = ResultScoped, t.Out(0)
		m.cleanupErr = t.Out(1).NumOut() == 1
	default:
		return errors.NewImproperlyConfigured("function %s: unsupported results %s", m.Name, t)
	}

	if factory && m.ResultType == nil {
		return errors.NewImproperlyConfigured("dependency %s must return a value", m.Name)
	}
	return nil
}

func isCleanup(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 0 {
		return false
	}
	return t.NumOut() == 0 || (t.NumOut() == 1 && t.Out(0) == errorType)
}

func (m *Model) analyzeFields(spec fieldSpec, t reflect.Type, index []int) error {
	for i := range t.NumField() {
		field := t.Field(i)
		field.Index = append(slices.Clone(index), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct && !hasLocationTag(field) {
			if err := m.analyzeFields(spec, field.Type, field.Index); err != nil {
				return err
			}
			continue
		}
		if !field.IsExported() {
			continue
		}

		p, err := spec.analyze(field)
		if err != nil {
			return fmt.Errorf("function %s: %w", m.Name, err)
		}
		m.Params = append(m.Params, p)
	}
	return nil
}

func hasLocationTag(field reflect.StructField) bool {
	for _, tl := range tagLocations {
		if _, ok := field.Tag.Lookup(tl.tag); ok {
			return true
		}
	}
	return false
}

func (m *Model) validate(opts Options) error {
	names := make(map[string]bool, len(m.Params))
	aliases := make(map[string]bool, len(m.Params))
	for _, p := range m.Params {
		if names[p.Name] {
			return errors.NewImproperlyConfigured("function %s: duplicated parameter %q", m.Name, p.Name)
		}
		names[p.Name] = true

		if p.Location != LocationConnection && p.Location != LocationReserved && p.Location != LocationDependency {
			key := p.Location.String() + ":" + strings.ToLower(p.Alias)
			if aliases[key] {
				return errors.NewImproperlyConfigured("function %s: %s parameter %q declared twice", m.Name, p.Location, p.Alias)
			}
			aliases[key] = true
		}
	}

	hasBody := m.HasBody()
	if hasBody && !opts.WebSocket {
		for _, method := range opts.Methods {
			if method == "GET" || method == "HEAD" {
				return errors.NewImproperlyConfigured("handler %s declares a body but accepts %s", m.Name, method)
			}
		}
	}

	sockets := 0
	requests := 0
	for _, a := range m.args {
		switch a {
		case argSocket:
			sockets++
		case argRequest:
			requests++
		}
	}
	for _, p := range m.Params {
		switch p.Reserved {
		case ReservedSocket:
			sockets++
		case ReservedRequest:
			requests++
		}
	}

	if opts.WebSocket {
		if requests > 0 {
			return errors.NewImproperlyConfigured("websocket handler %s cannot declare request", m.Name)
		}
		if sockets != 1 {
			return errors.NewImproperlyConfigured("websocket handler %s must declare socket exactly once, found %d", m.Name, sockets)
		}
		if hasBody {
			return errors.NewImproperlyConfigured("websocket handler %s cannot declare a body", m.Name)
		}
	} else if sockets > 0 && !opts.Factory {
		return errors.NewImproperlyConfigured("http handler %s cannot declare socket", m.Name)
	}
	return nil
}

// HasBody reports whether any parameter is read from the body.
func (m *Model) HasBody() bool {
	return len(m.ParamsIn(LocationBody, LocationForm, LocationFile)) > 0
}

// ParamsIn returns the parameters in any of locs, in declaration order.
func (m *Model) ParamsIn(locs ...Location) []*Param {
	var out []*Param
	for _, p := range m.Params {
		if slices.Contains(locs, p.Location) {
			out = append(out, p)
		}
	}
	return out
}

// Param returns the parameter called name.
func (m *Model) Param(name string) (*Param, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// DependencyNames returns the dependency names the function requests.
func (m *Model) DependencyNames() []string {
	var out []string
	for _, p := range m.ParamsIn(LocationDependency) {
		out = append(out, p.Alias)
	}
	return out
}

// NewInput allocates a zero input struct and returns a pointer to it.
// It returns the zero Value when the function takes no input.
func (m *Model) NewInput() reflect.Value {
	if m.Input == nil {
		return reflect.Value{}
	}
	return reflect.New(m.Input)
}

// Call invokes the function with the pre-indexed argument vector.
// input must come from [Model.NewInput].
func (m *Model) Call(ctx context.Context, req *connection.Request, socket *connection.WebSocket, input reflect.Value) (Outcome, error) {
	args := make([]reflect.Value, len(m.args))
	for i, kind := range m.args {
		switch kind {
		case argContext:
			if ctx == nil {
				ctx = context.Background()
			}
			args[i] = reflect.ValueOf(&ctx).Elem()
		case argRequest:
			args[i] = reflect.ValueOf(req)
		case argSocket:
			args[i] = reflect.ValueOf(socket)
		case argInput:
			if m.InputPointer {
				args[i] = input
			} else {
				args[i] = input.Elem()
			}
		}
	}

	out := m.fn.Call(args)

	var res Outcome
	switch m.Result {
	case ResultNone:
		return res, nil
	case ResultError:
		return res, asError(out[0])
	case ResultValue:
		res.Value = out[0].Interface()
		return res, nil
	case ResultValueError:
		if err := asError(out[1]); err != nil {
			return res, err
		}
		res.Value = out[0].Interface()
		return res, nil
	case ResultScoped:
		if err := asError(out[2]); err != nil {
			return res, err
		}
		res.Value = out[0].Interface()
		res.Cleanup = cleanupFunc(out[1], m.cleanupErr)
		return res, nil
	}
	return res, nil
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func cleanupFunc(v reflect.Value, returnsErr bool) func() error {
	if v.IsNil() {
		return nil
	}
	return func() error {
		out := v.Call(nil)
		if returnsErr {
			return asError(out[0])
		}
		return nil
	}
}

// FuncName returns the short name of fn ("getItem" for "main.getItem",
// "Get" for a method value "pkg.(*Store).Get-fm").
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "handler"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
