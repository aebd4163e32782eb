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
	"net/http"
)

// Meta is the static response configuration of a route.
type Meta struct {
	// Status is the declared status code. Zero means 200.
	Status int

	// Class serializes raw values. Nil selects a class from MediaType.
	Class Class

	// MediaType overrides the class media type.
	MediaType string

	// Headers and Cookies are inherited from the route's ancestors,
	// already merged with the innermost value winning.
	Headers http.Header
	Cookies []*http.Cookie
}

// Shaper turns handler results into responses.
type Shaper struct {
	ctx *Context
}

// NewShaper returns a Shaper. templates may be nil when no route renders templates.
func NewShaper(templates TemplateEngine) *Shaper {
	return &Shaper{ctx: &Context{Templates: templates}}
}

// Shape converts v into a response according to meta.
//
// A *Response is used as it is (on a copy), a [Container] builds its own response, any
// other value is encoded by the route's class. Inherited headers and cookies
// are added when the response does not set them itself.
func (s *Shaper) Shape(v any, meta Meta) (*Response, error) {
	status := meta.Status
	if status == 0 {
		status = http.StatusOK
	}

	var (
		r   *Response
		err error
	)
	switch x := v.(type) {
	case *Response:
		if x == nil {
			r, err = s.encode(nil, status, meta)
			break
		}
		r = x.clone()
		if r.Status == 0 {
			r.Status = status
		}
	case Container:
		r, err = x.Build(s.ctx, status)
	default:
		r, err = s.encode(v, status, meta)
	}
	if err != nil {
		return nil, err
	}

	r.inherit(meta.Headers, meta.Cookies)
	return r, nil
}

func (s *Shaper) encode(v any, status int, meta Meta) (*Response, error) {
	if !BodyAllowed(status) {
		return &Response{Status: status}, nil
	}
	class := meta.Class
	if class == nil {
		class = ClassFor(meta.MediaType)
	}
	mediaType := meta.MediaType
	if mediaType == "" {
		mediaType = class.MediaType()
	}
	return encodeAs(class, v, status, mediaType)
}

func encodeAs(class Class, v any, status int, mediaType string) (*Response, error) {
	r, err := encode(class, v, status, nil)
	if err != nil {
		return nil, err
	}
	r.MediaType = mediaType
	return r, nil
}
