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

package security

import (
	"encoding/base64"
	"net/http"
	"strings"

	"rivaas.dev/keel/connection"
	"rivaas.dev/keel/errors"
	"rivaas.dev/keel/inject"
)

// Credentials are the scheme and token of an Authorization header.
type Credentials struct {
	Scheme      string
	Credentials string
}

// BasicCredentials are decoded HTTP Basic credentials.
type BasicCredentials struct {
	Username string
	Password string
}

func notAuthenticated(challenge string) error {
	exc := errors.NewNotAuthorized("Not authenticated")
	if challenge != "" {
		exc.Headers = http.Header{"Www-Authenticate": {challenge}}
	}
	return exc
}

func authorization(req *connection.Request) (scheme, param string, ok bool) {
	value := req.Header().Get("Authorization")
	scheme, param, ok = strings.Cut(value, " ")
	return scheme, strings.TrimSpace(param), ok && param != ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// HTTPBearer reads "Authorization: Bearer <token>".
type HTTPBearer struct {
	SchemeName   string
	BearerFormat string
	Description  string

	// Optional resolves to nil instead of raising 401 when credentials are missing.
	Optional bool
}

// Name implements [Scheme].
func (s *HTTPBearer) Name() string { return orDefault(s.SchemeName, "HTTPBearer") }

// Object implements [Scheme].
func (s *HTTPBearer) Object() SchemeObject {
	return SchemeObject{Type: "http", Scheme: "bearer", BearerFormat: s.BearerFormat, Description: s.Description}
}

// Extract returns the bearer credentials of req.
func (s *HTTPBearer) Extract(req *connection.Request) (*Credentials, error) {
	scheme, token, ok := authorization(req)
	if !ok || !strings.EqualFold(scheme, "bearer") {
		if s.Optional {
			return nil, nil
		}
		return nil, notAuthenticated("Bearer")
	}
	return &Credentials{Scheme: scheme, Credentials: token}, nil
}

// Dependency returns a dependency resolving to *Credentials.
func (s *HTTPBearer) Dependency() *inject.Dependency {
	return inject.Inject(s.Extract, inject.WithMeta(s))
}

// HTTPBasic reads "Authorization: Basic <base64(user:password)>".
type HTTPBasic struct {
	SchemeName  string
	Realm       string
	Description string
	Optional    bool
}

// Name implements [Scheme].
func (s *HTTPBasic) Name() string { return orDefault(s.SchemeName, "HTTPBasic") }

// Object implements [Scheme].
func (s *HTTPBasic) Object() SchemeObject {
	return SchemeObject{Type: "http", Scheme: "basic", Description: s.Description}
}

// Extract returns the decoded basic credentials of req.
func (s *HTTPBasic) Extract(req *connection.Request) (*BasicCredentials, error) {
	challenge := "Basic"
	if s.Realm != "" {
		challenge += ` realm="` + s.Realm + `"`
	}
	scheme, param, ok := authorization(req)
	if !ok || !strings.EqualFold(scheme, "basic") {
		if s.Optional {
			return nil, nil
		}
		return nil, notAuthenticated(challenge)
	}
	raw, err := base64.StdEncoding.DecodeString(param)
	if err != nil {
		return nil, notAuthenticated(challenge)
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, notAuthenticated(challenge)
	}
	return &BasicCredentials{Username: user, Password: password}, nil
}

// Dependency returns a dependency resolving to *BasicCredentials.
func (s *HTTPBasic) Dependency() *inject.Dependency {
	return inject.Inject(s.Extract, inject.WithMeta(s))
}

// KeyLocation is where an API key is read from.
type KeyLocation string

const (
	InHeader KeyLocation = "header"
	InQuery  KeyLocation = "query"
	InCookie KeyLocation = "cookie"
)

// APIKey reads an API key from a header, query parameter or cookie.
type APIKey struct {
	SchemeName  string
	Description string

	// Key is the header, query parameter or cookie name.
	Key string
	In  KeyLocation

	Optional bool
}

// APIKeyHeader returns an API key read from header.
func APIKeyHeader(header string) *APIKey {
	return &APIKey{Key: header, In: InHeader}
}

// APIKeyQuery returns an API key read from a query parameter.
func APIKeyQuery(param string) *APIKey {
	return &APIKey{Key: param, In: InQuery}
}

// APIKeyCookie returns an API key read from a cookie.
func APIKeyCookie(cookie string) *APIKey {
	return &APIKey{Key: cookie, In: InCookie}
}

// Name implements [Scheme].
func (s *APIKey) Name() string {
	if s.SchemeName != "" {
		return s.SchemeName
	}
	switch s.In {
	case InQuery:
		return "APIKeyQuery"
	case InCookie:
		return "APIKeyCookie"
	default:
		return "APIKeyHeader"
	}
}

// Object implements [Scheme].
func (s *APIKey) Object() SchemeObject {
	return SchemeObject{Type: "apiKey", Name: s.Key, In: string(s.In), Description: s.Description}
}

// Extract returns the key value of req.
func (s *APIKey) Extract(req *connection.Request) (string, error) {
	var key string
	switch s.In {
	case InQuery:
		key = req.Query().Get(s.Key)
	case InCookie:
		key = req.Cookies()[s.Key]
	default:
		key = req.Header().Get(s.Key)
	}
	if key == "" && !s.Optional {
		return "", notAuthenticated("APIKey")
	}
	return key, nil
}

// Dependency returns a dependency resolving to the key string.
func (s *APIKey) Dependency() *inject.Dependency {
	return inject.Inject(s.Extract, inject.WithMeta(s))
}

// OAuth2PasswordBearer reads a bearer token issued by the password flow at TokenURL.
type OAuth2PasswordBearer struct {
	SchemeName  string
	TokenURL    string
	Scopes      map[string]string
	Description string
	Optional    bool
}

// Name implements [Scheme].
func (s *OAuth2PasswordBearer) Name() string { return orDefault(s.SchemeName, "OAuth2PasswordBearer") }

// Object implements [Scheme].
func (s *OAuth2PasswordBearer) Object() SchemeObject {
	scopes := s.Scopes
	if scopes == nil {
		scopes = map[string]string{}
	}
	return SchemeObject{
		Type:        "oauth2",
		Description: s.Description,
		Flows:       &OAuthFlows{Password: &OAuthFlow{TokenURL: s.TokenURL, Scopes: scopes}},
	}
}

// Extract returns the bearer token of req.
func (s *OAuth2PasswordBearer) Extract(req *connection.Request) (string, error) {
	scheme, token, ok := authorization(req)
	if !ok || !strings.EqualFold(scheme, "bearer") {
		if s.Optional {
			return "", nil
		}
		return "", notAuthenticated("Bearer")
	}
	return token, nil
}

// Dependency returns a dependency resolving to the token string.
func (s *OAuth2PasswordBearer) Dependency() *inject.Dependency {
	return inject.Inject(s.Extract, inject.WithMeta(s))
}

// OpenIDConnect passes the raw Authorization header through.
type OpenIDConnect struct {
	SchemeName  string
	URL         string
	Description string
	Optional    bool
}

// Name implements [Scheme].
func (s *OpenIDConnect) Name() string { return orDefault(s.SchemeName, "OpenIdConnect") }

// Object implements [Scheme].
func (s *OpenIDConnect) Object() SchemeObject {
	return SchemeObject{Type: "openIdConnect", OpenIDConnectURL: s.URL, Description: s.Description}
}

// Extract returns the Authorization header of req.
func (s *OpenIDConnect) Extract(req *connection.Request) (string, error) {
	value := req.Header().Get("Authorization")
	if value == "" && !s.Optional {
		return "", notAuthenticated("")
	}
	return value, nil
}

// Dependency returns a dependency resolving to the header value.
func (s *OpenIDConnect) Dependency() *inject.Dependency {
	return inject.Inject(s.Extract, inject.WithMeta(s))
}
