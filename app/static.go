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

package app

import (
	"net/http"
	"strings"

	"rivaas.dev/keel/openapi"
	"rivaas.dev/keel/router"
	"rivaas.dev/keel/settings"
)

// staticFiles mounts the directory of sf. Without sf.HTML, directory
// requests are answered with 404 instead of index.html.
func staticFiles(sf *settings.StaticFilesConfig) router.Node {
	fs := http.FileServer(http.Dir(sf.Directory))
	h := fs
	if !sf.HTML {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			fs.ServeHTTP(w, r)
		})
	}
	name := sf.Name
	if name == "" {
		name = "static"
	}
	return router.Mount(sf.Path, h, router.WithName(name))
}

// mountOpenAPI serves the document at openapi_config.path, its YAML form
// next to it and the docs page at openapi_config.docs_path.
func (a *App) mountOpenAPI() {
	oc := a.settings.OpenAPIConfig
	a.spec = openapi.NewSpecHandler(a.OpenAPI)
	a.system[oc.Path] = a.spec
	a.system[yamlPath(oc.Path)] = a.spec
	if oc.DocsPath != "" {
		a.system[oc.DocsPath] = openapi.DocsHandler(a.settings.Title, oc.Path)
	}
}

func yamlPath(p string) string {
	return strings.TrimSuffix(p, ".json") + ".yaml"
}

// OpenAPI generates the document describing the current route table.
func (a *App) OpenAPI() (*openapi.Document, error) {
	return openapi.Generate(a.router.Routes(), openAPIConfig(a.settings))
}

func openAPIConfig(s settings.Settings) openapi.Config {
	oc := s.OpenAPIConfig
	cfg := openapi.Config{
		Title:          s.Title,
		Version:        s.Version,
		Summary:        oc.Summary,
		Description:    s.Description,
		TermsOfService: oc.TermsOfService,
	}
	if oc.ContactName != "" || oc.ContactURL != "" || oc.ContactEmail != "" {
		cfg.Contact = &openapi.Contact{Name: oc.ContactName, URL: oc.ContactURL, Email: oc.ContactEmail}
	}
	if oc.LicenseName != "" {
		cfg.License = &openapi.License{Name: oc.LicenseName, URL: oc.LicenseURL}
	}
	for _, url := range oc.Servers {
		cfg.Servers = append(cfg.Servers, openapi.Server{URL: url})
	}
	return cfg
}
