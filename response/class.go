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

package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"

	gojson "github.com/goccy/go-json"
	jsoniter "github.com/json-iterator/go"
)

// Media types.
const (
	MediaTypeJSON = "application/json"
	MediaTypeText = "text/plain; charset=utf-8"
	MediaTypeHTML = "text/html; charset=utf-8"
)

// ModelDumper is implemented by values that convert themselves into a plain
// structure before serialization.
type ModelDumper interface {
	ModelDump() any
}

// Class serializes raw handler results.
type Class interface {
	MediaType() string
	Encode(v any) ([]byte, error)
}

var (
	// ClassJSON encodes with encoding/json.
	ClassJSON Class = jsonClass{}

	// ClassOrJSON encodes with github.com/goccy/go-json.
	ClassOrJSON Class = orJSONClass{}

	// ClassUJSON encodes with github.com/json-iterator/go.
	ClassUJSON Class = ujsonClass{}

	// ClassPlain writes the text form of the value.
	ClassPlain Class = textClass{mediaType: MediaTypeText}

	// ClassHTML writes the text form of the value as HTML.
	ClassHTML Class = textClass{mediaType: MediaTypeHTML}
)

var ujson = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonClass struct{}

func (jsonClass) MediaType() string { return MediaTypeJSON }

func (jsonClass) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(dump(v)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type orJSONClass struct{}

func (orJSONClass) MediaType() string { return MediaTypeJSON }

func (orJSONClass) Encode(v any) ([]byte, error) {
	return gojson.MarshalNoEscape(dump(v))
}

type ujsonClass struct{}

func (ujsonClass) MediaType() string { return MediaTypeJSON }

func (ujsonClass) Encode(v any) ([]byte, error) {
	return ujson.Marshal(dump(v))
}

type textClass struct {
	mediaType string
}

func (c textClass) MediaType() string { return c.mediaType }

func (c textClass) Encode(v any) ([]byte, error) {
	v = dump(v)
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case fmt.Stringer:
		return []byte(x.String()), nil
	case error:
		if c.mediaType == MediaTypeHTML {
			return []byte(html.EscapeString(x.Error())), nil
		}
		return []byte(x.Error()), nil
	default:
		return []byte(fmt.Sprint(x)), nil
	}
}

// ClassFor returns the class producing mediaType, defaulting to JSON.
func ClassFor(mediaType string) Class {
	switch mediaType {
	case "text/plain", MediaTypeText:
		return ClassPlain
	case "text/html", MediaTypeHTML:
		return ClassHTML
	default:
		return ClassJSON
	}
}

func dump(v any) any {
	if d, ok := v.(ModelDumper); ok {
		return d.ModelDump()
	}
	return v
}
