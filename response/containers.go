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
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"

	kerrors "rivaas.dev/keel/errors"
)

// Container is a typed handler result that builds its own response.
type Container interface {
	// Build returns the response. status is the route's declared status.
	Build(ctx *Context, status int) (*Response, error)
}

// Context carries what containers need beyond their own fields.
type Context struct {
	Templates TemplateEngine
}

func pick(own, declared int) int {
	if own != 0 {
		return own
	}
	return declared
}

func withHeaders(r *Response, headers http.Header) *Response {
	for k, vs := range headers {
		r.Header()[http.CanonicalHeaderKey(k)] = slices.Clone(vs)
	}
	return r
}

// JSON encodes Content with encoding/json.
type JSON struct {
	Content any
	Status  int
	Headers http.Header
}

// Build implements [Container].
func (c JSON) Build(_ *Context, status int) (*Response, error) {
	return encode(ClassJSON, c.Content, pick(c.Status, status), c.Headers)
}

// OrJSON encodes Content with github.com/goccy/go-json.
type OrJSON struct {
	Content any
	Status  int
	Headers http.Header
}

// Build implements [Container].
func (c OrJSON) Build(_ *Context, status int) (*Response, error) {
	return encode(ClassOrJSON, c.Content, pick(c.Status, status), c.Headers)
}

// UJSON encodes Content with github.com/json-iterator/go.
type UJSON struct {
	Content any
	Status  int
	Headers http.Header
}

// Build implements [Container].
func (c UJSON) Build(_ *Context, status int) (*Response, error) {
	return encode(ClassUJSON, c.Content, pick(c.Status, status), c.Headers)
}

func encode(class Class, content any, status int, headers http.Header) (*Response, error) {
	body, err := class.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return withHeaders(New(status, class.MediaType(), body), headers), nil
}

// Redirect points the client at URL.
type Redirect struct {
	URL string

	// Status must be one of 301, 302, 303, 307 or 308. Zero means 307.
	Status  int
	Headers http.Header
}

// Build implements [Container].
func (c Redirect) Build(_ *Context, _ int) (*Response, error) {
	status := c.Status
	if status == 0 {
		status = http.StatusTemporaryRedirect
	}
	if !IsRedirectStatus(status) {
		return nil, kerrors.NewImproperlyConfigured("redirect status %d is not one of 301, 302, 303, 307, 308", status)
	}
	r := withHeaders(&Response{Status: status}, c.Headers)
	r.Header().Set("Location", c.URL)
	return r, nil
}

// IsRedirectStatus reports whether status is a redirect status accepted by [Redirect].
func IsRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Template renders Name with Context through the application's template engine.
type Template struct {
	Name    string
	Context any

	Status    int
	MediaType string
	Headers   http.Header
}

// Build implements [Container].
func (c Template) Build(ctx *Context, status int) (*Response, error) {
	if ctx == nil || ctx.Templates == nil {
		return nil, kerrors.NewImproperlyConfigured("template %q rendered without a template engine", c.Name)
	}
	var buf bytes.Buffer
	if err := ctx.Templates.Render(&buf, c.Name, c.Context); err != nil {
		return nil, fmt.Errorf("render template %q: %w", c.Name, err)
	}
	mediaType := c.MediaType
	if mediaType == "" {
		mediaType = MediaTypeHTML
	}
	return withHeaders(New(pick(c.Status, status), mediaType, buf.Bytes()), c.Headers), nil
}

// File sends the file at Path. Range and conditional requests are served by
// http.ServeContent when the status is 200.
type File struct {
	Path string

	// Filename sets Content-Disposition: attachment. Empty keeps the file inline.
	Filename string

	MediaType string
	Status    int
	Headers   http.Header
}

// Build implements [Container].
func (c File) Build(_ *Context, status int) (*Response, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, kerrors.NewNotFound("File not found")
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, kerrors.NewImproperlyConfigured("%s is a directory", c.Path)
	}

	mediaType := c.MediaType
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(c.Path))
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	r := withHeaders(&Response{Status: pick(c.Status, status), MediaType: mediaType}, c.Headers)
	if c.Filename != "" {
		r.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": c.Filename}))
	}
	path, modTime := c.Path, info.ModTime()
	r.stream = func(w http.ResponseWriter, req *http.Request, status int) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if status == http.StatusOK && req != nil {
			http.ServeContent(w, req, filepath.Base(path), modTime, f)
			return nil
		}
		w.WriteHeader(status)
		_, err = io.Copy(w, f)
		return err
	}
	return r, nil
}

// Stream copies Reader to the client, flushing after every chunk.
type Stream struct {
	Reader    io.Reader
	MediaType string
	Status    int
	Headers   http.Header
}

// Build implements [Container].
func (c Stream) Build(_ *Context, status int) (*Response, error) {
	mediaType := c.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	r := withHeaders(&Response{Status: pick(c.Status, status), MediaType: mediaType}, c.Headers)
	src := c.Reader
	r.stream = func(w http.ResponseWriter, req *http.Request, status int) error {
		if closer, ok := src.(io.Closer); ok {
			defer closer.Close()
		}
		w.WriteHeader(status)
		if req != nil && req.Method == http.MethodHead {
			return nil
		}
		flusher, _ := w.(http.Flusher)
		buf := make([]byte, 32<<10)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return werr
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
	return r, nil
}
