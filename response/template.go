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
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// TemplateEngine renders named templates.
type TemplateEngine interface {
	Render(w io.Writer, name string, data any) error
}

// HTMLEngine renders html/template templates loaded from a directory tree.
// Templates are named by their slash separated path relative to the root.
type HTMLEngine struct {
	tmpl *template.Template
}

// NewHTMLEngine parses every file under dir whose extension is in exts
// (".html" and ".tmpl" when empty).
func NewHTMLEngine(dir string, funcs template.FuncMap, exts ...string) (*HTMLEngine, error) {
	if len(exts) == 0 {
		exts = []string{".html", ".tmpl"}
	}
	root := template.New("").Funcs(funcs)
	fsys := os.DirFS(dir)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			return err
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if _, err := root.New(path).Parse(string(data)); err != nil {
			return fmt.Errorf("parse template %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &HTMLEngine{tmpl: root}, nil
}

// Render implements [TemplateEngine].
func (e *HTMLEngine) Render(w io.Writer, name string, data any) error {
	return e.tmpl.ExecuteTemplate(w, name, data)
}
