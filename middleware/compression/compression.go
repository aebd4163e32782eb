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

// Package compression compresses responses with brotli or gzip according
// to the client's Accept-Encoding header.
//
// Only text-like content types are compressed (text/*, JSON, JavaScript,
// XML, YAML); responses that already carry a Content-Encoding, body-less
// statuses and HEAD requests pass through untouched. The decision is taken
// when the status is written, so streaming responses stay streaming.
package compression

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/router"
)

// Option defines functional options for compression middleware configuration.
type Option func(*config)

type config struct {
	gzipLevel    int
	brotliLevel  int
	enableGzip   bool
	enableBrotli bool
	excludePaths map[string]bool
	contentTypes []string
}

func defaultConfig() *config {
	return &config{
		gzipLevel:    gzip.DefaultCompression,
		brotliLevel:  4,
		enableGzip:   true,
		enableBrotli: true,
		excludePaths: map[string]bool{},
		contentTypes: []string{
			"text/",
			"application/json",
			"application/problem+json",
			"application/javascript",
			"application/xml",
			"application/xhtml+xml",
			"application/yaml",
		},
	}
}

// WithGzipLevel sets the gzip compression level.
func WithGzipLevel(level int) Option {
	return func(cfg *config) {
		cfg.gzipLevel = level
	}
}

// WithBrotliLevel sets the brotli compression level, clamped to [0, 11].
// Default: 4
func WithBrotliLevel(level int) Option {
	return func(cfg *config) {
		cfg.brotliLevel = max(0, min(level, 11))
	}
}

// WithBrotliDisabled disables brotli compression (gzip only).
func WithBrotliDisabled() Option {
	return func(cfg *config) {
		cfg.enableBrotli = false
	}
}

// WithGzipDisabled disables gzip compression (brotli only).
func WithGzipDisabled() Option {
	return func(cfg *config) {
		cfg.enableGzip = false
	}
}

// WithExcludePaths sets paths that are never compressed.
func WithExcludePaths(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			cfg.excludePaths[p] = true
		}
	}
}

// WithContentTypes replaces the compressible content type prefixes.
func WithContentTypes(prefixes ...string) Option {
	return func(cfg *config) {
		cfg.contentTypes = prefixes
	}
}

// New returns the compression middleware.
func New(opts ...Option) router.Middleware {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) error {
			if req.Method() == http.MethodHead || req.Header().Get("Upgrade") != "" || cfg.excludePaths[req.Path()] {
				return next(w, req)
			}
			encoding := cfg.negotiate(req.Header().Get("Accept-Encoding"))
			if encoding == "" {
				return next(w, req)
			}
			cw := &compressWriter{ResponseWriter: w, cfg: cfg, encoding: encoding}
			defer cw.close()
			return next(cw, req)
		}
	}
}

// negotiate picks brotli over gzip among the encodings the client accepts
// with a non-zero quality.
func (cfg *config) negotiate(header string) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		if q > 0 {
			accepted[strings.ToLower(name)] = true
		}
	}
	switch {
	case cfg.enableBrotli && (accepted["br"] || accepted["*"]):
		return "br"
	case cfg.enableGzip && (accepted["gzip"] || accepted["*"]):
		return "gzip"
	}
	return ""
}

func (cfg *config) compressible(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, prefix := range cfg.contentTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

type compressWriter struct {
	http.ResponseWriter
	cfg         *config
	encoding    string
	wroteHeader bool
	enc         io.WriteCloser
}

func (w *compressWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	bodyless := status < 200 || status == http.StatusNoContent || status == http.StatusNotModified
	if !bodyless && h.Get("Content-Encoding") == "" && w.cfg.compressible(h.Get("Content-Type")) {
		h.Set("Content-Encoding", w.encoding)
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")
		switch w.encoding {
		case "br":
			w.enc = brotli.NewWriterLevel(w.ResponseWriter, w.cfg.brotliLevel)
		default:
			gz, err := gzip.NewWriterLevel(w.ResponseWriter, w.cfg.gzipLevel)
			if err != nil {
				gz = gzip.NewWriter(w.ResponseWriter)
			}
			w.enc = gz
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.enc != nil {
		return w.enc.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

// Flush writes buffered compressed data to the client.
func (w *compressWriter) Flush() {
	if f, ok := w.enc.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *compressWriter) close() {
	if w.enc != nil {
		_ = w.enc.Close()
	}
}
