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
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	uuidType            = reflect.TypeFor[uuid.UUID]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// timeLayouts are tried in order for time.Time values.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// conversionError reports a raw value that cannot be converted to the target type.
type conversionError struct {
	typ string
	msg string
}

func (e *conversionError) Error() string {
	return e.msg
}

func conversionFailed(typ, msg string) error {
	return &conversionError{typ: typ, msg: msg}
}

// setField converts raw into field. Pointer fields are allocated.
func setField(field reflect.Value, raw string) error {
	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldValue(ptr.Elem(), raw); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	return setFieldValue(field, raw)
}

func setFieldValue(field reflect.Value, raw string) error {
	switch field.Type() {
	case timeType:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				field.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return conversionFailed("datetime_parsing", "Input should be a valid datetime")
	case durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return conversionFailed("duration_parsing", "Input should be a valid duration")
		}
		field.SetInt(int64(d))
		return nil
	case uuidType:
		u, err := uuid.Parse(raw)
		if err != nil {
			return conversionFailed("uuid_parsing", "Input should be a valid UUID")
		}
		field.Set(reflect.ValueOf(u))
		return nil
	}

	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		u := field.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(raw)); err != nil {
			return conversionFailed("value_error", err.Error())
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, field.Type().Bits())
		if err != nil {
			return conversionFailed("int_parsing", "Input should be a valid integer, unable to parse string as an integer")
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, field.Type().Bits())
		if err != nil {
			return conversionFailed("int_parsing", "Input should be a valid non-negative integer")
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), field.Type().Bits())
		if err != nil {
			return conversionFailed("float_parsing", "Input should be a valid number, unable to parse string as a number")
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, ok := parseBool(raw)
		if !ok {
			return conversionFailed("bool_parsing", "Input should be a valid boolean, unable to interpret input")
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	}
	return false, false
}

// setSlice converts each raw value into a new slice element.
// The first conversion failure is returned with its index.
func setSlice(field reflect.Value, raws []string) (int, error) {
	t := field.Type()
	ptr := t.Kind() == reflect.Pointer
	if ptr {
		t = t.Elem()
	}
	slice := reflect.MakeSlice(t, len(raws), len(raws))
	for i, raw := range raws {
		if err := setField(slice.Index(i), raw); err != nil {
			return i, err
		}
	}
	if ptr {
		p := reflect.New(t)
		p.Elem().Set(slice)
		field.Set(p)
	} else {
		field.Set(slice)
	}
	return -1, nil
}

// assign stores an already typed value (a converted path parameter or a
// resolved dependency) into field, converting between numeric kinds when the
// value fits.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	target := field.Type()

	if rv.Type().AssignableTo(target) {
		field.Set(rv)
		return nil
	}
	if target.Kind() == reflect.Pointer && rv.Type().AssignableTo(target.Elem()) {
		p := reflect.New(target.Elem())
		p.Elem().Set(rv)
		field.Set(p)
		return nil
	}

	base := target
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if kindClass(rv.Kind()) == 0 || kindClass(rv.Kind()) != kindClass(base.Kind()) || !rv.CanConvert(base) {
		return fmt.Errorf("cannot assign %s to %s", rv.Type(), target)
	}
	converted := rv.Convert(base)
	if overflows(rv, converted) {
		return conversionFailed("int_parsing", "Input is out of range for "+base.String())
	}
	if target.Kind() == reflect.Pointer {
		p := reflect.New(base)
		p.Elem().Set(converted)
		field.Set(p)
	} else {
		field.Set(converted)
	}
	return nil
}

func overflows(src, dst reflect.Value) bool {
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return dst.Int() != src.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return src.Int() < 0 || dst.Uint() != uint64(src.Int())
		}
	}
	return false
}

// kindClass groups kinds that convert into each other without changing meaning.
func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 1
	case reflect.Float32, reflect.Float64:
		return 2
	case reflect.String:
		return 3
	default:
		return 0
	}
}
