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

package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// ErrBodyTooLarge is returned by [Request.Body] when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Request is the HTTP connection seen by the pipeline.
// It is created once per request and shared by middleware, interceptors,
// permissions, dependencies and the handler.
type Request struct {
	http *http.Request

	// PathParams holds converted path parameters of the matched route.
	PathParams map[string]any

	// RoutePath is the template of the matched route ("/items/{id}").
	// It is empty until routing succeeds.
	RoutePath string

	// RouteName is the name of the matched handler.
	RouteName string

	state *State

	mu        sync.Mutex
	query     url.Values
	body      []byte
	bodyRead  bool
	bodyErr   error
	parsed    any
	hasParsed bool
	maxBody   int64
	cleanups  []func() error
}

// NewRequest wraps r. maxBody limits [Request.Body]; zero means no limit.
func NewRequest(r *http.Request, maxBody int64) *Request {
	return &Request{
		http:       r,
		PathParams: map[string]any{},
		state:      NewState(),
		maxBody:    maxBody,
	}
}

// HTTP returns the underlying request.
func (r *Request) HTTP() *http.Request {
	return r.http
}

// WithContext replaces the context of the underlying request.
func (r *Request) WithContext(ctx context.Context) {
	r.http = r.http.WithContext(ctx)
}

// Context returns the request context. It is canceled when the client disconnects.
func (r *Request) Context() context.Context {
	return r.http.Context()
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.http.Method
}

// Path returns the URL path.
func (r *Request) Path() string {
	return r.http.URL.Path
}

// URL returns the request URL.
func (r *Request) URL() *url.URL {
	return r.http.URL
}

// Header returns the request headers.
func (r *Request) Header() http.Header {
	return r.http.Header
}

// Query returns the parsed query string.
func (r *Request) Query() url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.query == nil {
		r.query = r.http.URL.Query()
	}
	return r.query
}

// Cookies returns request cookies by name. The first cookie wins on duplicates.
func (r *Request) Cookies() map[string]string {
	out := make(map[string]string)
	for _, c := range r.http.Cookies() {
		if _, ok := out[c.Name]; !ok {
			out[c.Name] = c.Value
		}
	}
	return out
}

// PathParam returns a converted path parameter.
func (r *Request) PathParam(name string) (any, bool) {
	v, ok := r.PathParams[name]
	return v, ok
}

// State returns the per-request state.
func (r *Request) State() *State {
	return r.state
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.http.Header.Get("Content-Type")
}

// Body reads and caches the request body.
func (r *Request) Body() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodyRead {
		return r.body, r.bodyErr
	}
	r.bodyRead = true

	if r.http.Body == nil || r.http.Body == http.NoBody {
		return nil, nil
	}

	reader := io.Reader(r.http.Body)
	if r.maxBody > 0 {
		reader = io.LimitReader(r.http.Body, r.maxBody+1)
	}
	r.body, r.bodyErr = io.ReadAll(reader)
	if r.bodyErr == nil && r.maxBody > 0 && int64(len(r.body)) > r.maxBody {
		r.body, r.bodyErr = nil, ErrBodyTooLarge
	}
	return r.body, r.bodyErr
}

// Stream returns the unread body for streaming consumers such as multipart parsing.
// It fails once the body has been buffered by [Request.Body].
func (r *Request) Stream() (io.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodyRead {
		return nil, errors.New("request body already consumed")
	}
	r.bodyRead = true
	r.bodyErr = errors.New("request body consumed as stream")
	return r.http.Body, nil
}

// ParsedBody returns the decoded body stored by [Request.SetParsedBody].
func (r *Request) ParsedBody() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parsed, r.hasParsed
}

// SetParsedBody stores the decoded body so later consumers do not decode it again.
func (r *Request) SetParsedBody(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsed, r.hasParsed = v, true
}

// AddCleanup registers fn to run when the request is closed.
func (r *Request) AddCleanup(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Close runs the registered cleanups in reverse order and returns their errors joined.
func (r *Request) Close() error {
	r.mu.Lock()
	cleanups := r.cleanups
	r.cleanups = nil
	r.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
