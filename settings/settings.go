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

package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rivaas.dev/keel/inject"
	"rivaas.dev/keel/response"
	"rivaas.dev/keel/router"
)

// Hook runs once during startup or shutdown.
type Hook func(ctx context.Context) error

// Lifespan runs the startup phase and returns the function that runs the
// shutdown phase. A nil shutdown function is allowed.
type Lifespan func(ctx context.Context) (shutdown Hook, err error)

// Settings is the complete application configuration.
type Settings struct {
	Debug       bool   `mapstructure:"debug"`
	AppName     string `mapstructure:"app_name"`
	Title       string `mapstructure:"title"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`

	// AllowedHosts enables the trusted host check when not empty. A leading
	// "*." matches any subdomain; "*" matches everything.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	// AllowOrigins enables CORS with the default [CORSConfig] when
	// CORSConfig is nil.
	AllowOrigins []string `mapstructure:"allow_origins"`

	EnableOpenAPI      bool `mapstructure:"enable_openapi"`
	EnableSyncHandlers bool `mapstructure:"enable_sync_handlers"`
	// SyncHandlerLimit bounds the blocking handlers running at once.
	SyncHandlerLimit int64 `mapstructure:"sync_handler_limit"`

	RedirectSlashes bool   `mapstructure:"redirect_slashes"`
	EnableH2C       bool   `mapstructure:"enable_h2c"`
	SecretKey       string `mapstructure:"secret_key"`

	Tags            []string `mapstructure:"tags"`
	IncludeInSchema bool     `mapstructure:"include_in_schema"`

	OnStartup  []Hook   `mapstructure:"on_startup"`
	OnShutdown []Hook   `mapstructure:"on_shutdown"`
	Lifespan   Lifespan `mapstructure:"lifespan"`

	Middleware        []router.Middleware           `mapstructure:"middleware"`
	Interceptors      []router.Interceptor          `mapstructure:"interceptors"`
	Permissions       []router.Permission           `mapstructure:"permissions"`
	Dependencies      map[string]*inject.Dependency `mapstructure:"dependencies"`
	ExceptionHandlers router.ExceptionHandlers      `mapstructure:"exception_handlers"`
	ResponseClass     response.Class                `mapstructure:"response_class"`
	ResponseCookies   []*http.Cookie                `mapstructure:"response_cookies"`
	ResponseHeaders   http.Header                   `mapstructure:"response_headers"`

	CSRFConfig        *CSRFConfig        `mapstructure:"csrf_config"`
	CORSConfig        *CORSConfig        `mapstructure:"cors_config"`
	SessionConfig     *SessionConfig     `mapstructure:"session_config"`
	StaticFilesConfig *StaticFilesConfig `mapstructure:"static_files_config"`
	TemplateConfig    *TemplateConfig    `mapstructure:"template_config"`
	OpenAPIConfig     OpenAPIConfig      `mapstructure:"openapi_config"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// CSRFConfig is carried for user supplied CSRF middleware.
type CSRFConfig struct {
	Secret      string   `mapstructure:"secret"`
	CookieName  string   `mapstructure:"cookie_name"`
	HeaderName  string   `mapstructure:"header_name"`
	SafeMethods []string `mapstructure:"safe_methods"`
}

// SessionConfig is carried for user supplied session middleware.
type SessionConfig struct {
	SecretKey  string        `mapstructure:"secret_key"`
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	HTTPSOnly  bool          `mapstructure:"https_only"`
	SameSite   string        `mapstructure:"same_site"`
}

// StaticFilesConfig serves a directory under a URL prefix.
type StaticFilesConfig struct {
	Path      string `mapstructure:"path"`
	Directory string `mapstructure:"directory"`
	// HTML serves index.html for directory requests.
	HTML bool   `mapstructure:"html"`
	Name string `mapstructure:"name"`
}

// TemplateConfig locates the templates rendered by response.Template.
type TemplateConfig struct {
	Directory string `mapstructure:"directory"`
	// Extensions selects the files to parse inside Directory
	// (".html" and ".tmpl" when empty).
	Extensions []string `mapstructure:"extensions"`
}

// OpenAPIConfig controls the generated document and where it is served.
type OpenAPIConfig struct {
	Path           string   `mapstructure:"path"`
	DocsPath       string   `mapstructure:"docs_path"`
	Summary        string   `mapstructure:"summary"`
	TermsOfService string   `mapstructure:"terms_of_service"`
	ContactName    string   `mapstructure:"contact_name"`
	ContactURL     string   `mapstructure:"contact_url"`
	ContactEmail   string   `mapstructure:"contact_email"`
	LicenseName    string   `mapstructure:"license_name"`
	LicenseURL     string   `mapstructure:"license_url"`
	Servers        []string `mapstructure:"servers"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Settings {
	return Settings{
		AppName:          "keel",
		Title:            "Keel",
		Version:          "0.1.0",
		EnableOpenAPI:    true,
		SyncHandlerLimit: 40,
		RedirectSlashes:  true,
		IncludeInSchema:  true,
		OpenAPIConfig: OpenAPIConfig{
			Path:     "/openapi.json",
			DocsPath: "/docs",
		},
	}
}

// Validate reports every inconsistent option.
func (s *Settings) Validate() error {
	var errs []error
	if s.Lifespan != nil && (len(s.OnStartup) > 0 || len(s.OnShutdown) > 0) {
		errs = append(errs, errors.New("lifespan cannot be combined with on_startup or on_shutdown"))
	}
	if s.EnableOpenAPI {
		if !strings.HasPrefix(s.OpenAPIConfig.Path, "/") {
			errs = append(errs, fmt.Errorf("openapi_config.path %q must start with /", s.OpenAPIConfig.Path))
		}
		if p := s.OpenAPIConfig.DocsPath; p != "" && !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("openapi_config.docs_path %q must start with /", p))
		}
	}
	if s.EnableSyncHandlers && s.SyncHandlerLimit <= 0 {
		errs = append(errs, fmt.Errorf("sync_handler_limit must be positive, got %d", s.SyncHandlerLimit))
	}
	if sf := s.StaticFilesConfig; sf != nil {
		if !strings.HasPrefix(sf.Path, "/") {
			errs = append(errs, fmt.Errorf("static_files_config.path %q must start with /", sf.Path))
		}
		if sf.Directory == "" {
			errs = append(errs, errors.New("static_files_config.directory is required"))
		}
	}
	if tc := s.TemplateConfig; tc != nil && tc.Directory == "" {
		errs = append(errs, errors.New("template_config.directory is required"))
	}
	for i, h := range s.OnStartup {
		if h == nil {
			errs = append(errs, fmt.Errorf("on_startup[%d] is nil", i))
		}
	}
	for i, h := range s.OnShutdown {
		if h == nil {
			errs = append(errs, fmt.Errorf("on_shutdown[%d] is nil", i))
		}
	}
	return errors.Join(errs...)
}

// CORS returns the effective CORS configuration, or nil when CORS is off.
func (s *Settings) CORS() *CORSConfig {
	if s.CORSConfig != nil {
		return s.CORSConfig
	}
	if len(s.AllowOrigins) == 0 {
		return nil
	}
	return &CORSConfig{
		AllowOrigins: s.AllowOrigins,
		AllowMethods: []string{http.MethodGet},
	}
}
