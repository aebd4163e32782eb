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
	"context"
	"net/http"
	"slices"
	"strconv"
)

// Response is a fully built response.
type Response struct {
	// Status is the status code. Zero means the route's declared status.
	Status int

	Headers http.Header
	Cookies []*http.Cookie

	// MediaType is written as Content-Type unless Headers already carry one.
	MediaType string

	Body []byte

	// Background runs after the response has been written.
	Background func(ctx context.Context) error

	// stream writes the status and body directly, replacing Body.
	stream func(w http.ResponseWriter, r *http.Request, status int) error
}

// New returns a response with a body.
func New(status int, mediaType string, body []byte) *Response {
	return &Response{Status: status, MediaType: mediaType, Body: body}
}

// NoContent returns an empty 204 response.
func NoContent() *Response {
	return &Response{Status: http.StatusNoContent}
}

// Header returns the response headers, allocating them when needed.
func (r *Response) Header() http.Header {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	return r.Headers
}

// SetCookie adds or replaces a cookie by name.
func (r *Response) SetCookie(c *http.Cookie) {
	r.Cookies = slices.DeleteFunc(r.Cookies, func(existing *http.Cookie) bool {
		return existing.Name == c.Name
	})
	r.Cookies = append(r.Cookies, c)
}

// WithBackground sets the background task and returns r.
func (r *Response) WithBackground(task func(ctx context.Context) error) *Response {
	r.Background = task
	return r
}

// IsStreaming reports whether the body is written by a stream function.
func (r *Response) IsStreaming() bool {
	return r.stream != nil
}

// inherit adds inherited headers and cookies that r does not set itself.
// clone copies r with its own header map and cookie slice.
func (r *Response) clone() *Response {
	c := *r
	c.Headers = r.Headers.Clone()
	c.Cookies = slices.Clone(r.Cookies)
	return &c
}

func (r *Response) inherit(headers http.Header, cookies []*http.Cookie) {
	for k, vs := range headers {
		if _, ok := r.Header()[k]; !ok {
			r.Headers[k] = slices.Clone(vs)
		}
	}
	for _, c := range cookies {
		if !slices.ContainsFunc(r.Cookies, func(own *http.Cookie) bool { return own.Name == c.Name }) {
			r.Cookies = append(r.Cookies, c)
		}
	}
}

// Write sends r. Body-less statuses are written without a body.
func (r *Response) Write(w http.ResponseWriter, req *http.Request) error {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	h := w.Header()
	for k, vs := range r.Headers {
		h[k] = slices.Clone(vs)
	}
	for _, c := range r.Cookies {
		http.SetCookie(w, c)
	}

	if !BodyAllowed(status) {
		h.Del("Content-Type")
		h.Del("Content-Length")
		w.WriteHeader(status)
		return nil
	}

	if r.MediaType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", r.MediaType)
	}
	if r.stream != nil {
		return r.stream(w, req, status)
	}

	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(status)
	if req != nil && req.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

// BodyAllowed reports whether status may carry a body.
func BodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
