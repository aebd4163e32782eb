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

package openapi

import (
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"net/http"
	"strings"
	"sync"
)

// SpecHandler serves a document built on first use. It answers with YAML
// when the request path ends in ".yaml" or ".yml", and honours If-None-Match.
type SpecHandler struct {
	build func() (*Document, error)

	mu       sync.Mutex
	built    bool
	jsonBody []byte
	yamlBody []byte
	etag     string
	err      error
}

// NewSpecHandler returns a handler serving the document returned by build.
func NewSpecHandler(build func() (*Document, error)) *SpecHandler {
	return &SpecHandler{build: build}
}

// Invalidate drops the cached document so the next request rebuilds it.
func (h *SpecHandler) Invalidate() {
	h.mu.Lock()
	h.built = false
	h.mu.Unlock()
}

func (h *SpecHandler) load() ([]byte, []byte, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.built {
		return h.jsonBody, h.yamlBody, h.etag, h.err
	}
	h.built = true
	h.jsonBody, h.yamlBody, h.etag, h.err = nil, nil, "", nil

	doc, err := h.build()
	if err != nil {
		h.err = err
		return nil, nil, "", err
	}
	if h.jsonBody, h.err = doc.JSON(); h.err != nil {
		return nil, nil, "", h.err
	}
	if h.yamlBody, h.err = doc.YAML(); h.err != nil {
		return nil, nil, "", h.err
	}
	sum := sha256.Sum256(h.jsonBody)
	h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	return h.jsonBody, h.yamlBody, h.etag, nil
}

func (h *SpecHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jsonBody, yamlBody, etag, err := h.load()
	if err != nil {
		http.Error(w, "failed to generate OpenAPI document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, contentType := jsonBody, "application/json"
	if strings.HasSuffix(r.URL.Path, ".yaml") || strings.HasSuffix(r.URL.Path, ".yml") {
		body, contentType = yamlBody, "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}</title>
	<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.30.2/swagger-ui.css" />
</head>
<body>
	<div id="swagger-ui"></div>
	<script src="https://unpkg.com/swagger-ui-dist@5.30.2/swagger-ui-bundle.js" crossorigin></script>
	<script>
		window.onload = () => {
			window.ui = SwaggerUIBundle({url: {{.SpecURL}}, dom_id: "#swagger-ui", deepLinking: true});
		};
	</script>
</body>
</html>
`))

// DocsHandler serves a Swagger UI page loading the document from specURL.
func DocsHandler(title, specURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = docsPage.Execute(w, struct{ Title, SpecURL string }{title + " - Docs", specURL})
	})
}
