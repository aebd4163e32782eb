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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"

	kerrors "rivaas.dev/keel/errors"
)

// Media types understood by the default decoders.
const (
	MediaTypeJSON      = "application/json"
	MediaTypeForm      = "application/x-www-form-urlencoded"
	MediaTypeMultipart = "multipart/form-data"
	MediaTypeText      = "text/plain"
	MediaTypeMsgPack   = "application/msgpack"
	MediaTypeYAML      = "application/yaml"
	MediaTypeTOML      = "application/toml"
	MediaTypeProtobuf  = "application/x-protobuf"
)

// Decoder decodes a request body into v, a non-nil pointer.
type Decoder interface {
	Decode(data []byte, v any) error
}

// DecoderFunc adapts a function to [Decoder].
type DecoderFunc func(data []byte, v any) error

// Decode implements [Decoder].
func (f DecoderFunc) Decode(data []byte, v any) error {
	return f(data, v)
}

var protoMessageType = reflect.TypeFor[proto.Message]()

func defaultDecoders() map[string]Decoder {
	jsonDecoder := DecoderFunc(decodeJSON)
	msgpackDecoder := DecoderFunc(decodeMsgPack)
	yamlDecoder := DecoderFunc(yaml.Unmarshal)
	protoDecoder := DecoderFunc(decodeProto)

	return map[string]Decoder{
		MediaTypeJSON:                     jsonDecoder,
		MediaTypeMsgPack:                  msgpackDecoder,
		"application/x-msgpack":           msgpackDecoder,
		MediaTypeYAML:                     yamlDecoder,
		"application/x-yaml":              yamlDecoder,
		"text/yaml":                       yamlDecoder,
		MediaTypeTOML:                     DecoderFunc(toml.Unmarshal),
		MediaTypeProtobuf:                 protoDecoder,
		"application/protobuf":            protoDecoder,
		"application/vnd.google.protobuf": protoDecoder,
	}
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return nil
}

// decodeMsgPack decodes msgpack, matching struct fields by their json names.
func decodeMsgPack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// decodeProto decodes into v, a pointer to a proto.Message field.
func decodeProto(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || !rv.Elem().Type().Implements(protoMessageType) {
		return fmt.Errorf("protobuf body requires a proto.Message, got %T", v)
	}
	field := rv.Elem()
	if field.Kind() == reflect.Pointer && field.IsNil() {
		field.Set(reflect.New(field.Type().Elem()))
	}
	return proto.Unmarshal(data, field.Interface().(proto.Message))
}

// mediaType returns the lowercase media type of a Content-Type header.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}

// decodeErrorDetails converts a decoder error into validation details under loc.
func decodeErrorDetails(loc []any, err error) []kerrors.ErrorDetail {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return []kerrors.ErrorDetail{{
			Loc:  appendLoc(loc, int(syntaxErr.Offset)),
			Msg:  "JSON decode error",
			Type: "json_invalid",
			Ctx:  map[string]any{"error": syntaxErr.Error()},
		}}
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return []kerrors.ErrorDetail{{
			Loc:  loc,
			Msg:  "JSON decode error",
			Type: "json_invalid",
			Ctx:  map[string]any{"error": "unexpected end of input"},
		}}
	case errors.As(err, &typeErr):
		fieldLoc := loc
		if typeErr.Field != "" {
			for part := range strings.SplitSeq(typeErr.Field, ".") {
				fieldLoc = appendLoc(fieldLoc, part)
			}
		}
		kind := jsonKind(typeErr.Type)
		return []kerrors.ErrorDetail{{
			Loc:   fieldLoc,
			Msg:   "Input should be a valid " + kind,
			Type:  kind + "_type",
			Input: typeErr.Value,
		}}
	default:
		return []kerrors.ErrorDetail{{
			Loc:  loc,
			Msg:  "Body could not be decoded: " + err.Error(),
			Type: "value_error",
		}}
	}
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "dict"
	default:
		return "value"
	}
}

func appendLoc(loc []any, parts ...any) []any {
	out := make([]any, 0, len(loc)+len(parts))
	out = append(out, loc...)
	return append(out, parts...)
}
