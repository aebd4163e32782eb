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

// Package security provides authentication schemes usable as dependencies.
//
// Each scheme extracts credentials from the request and doubles as an
// OpenAPI security scheme definition. Register the scheme's dependency on a
// route layer and reference it in the route's security requirements:
//
//	bearer := &security.HTTPBearer{SchemeName: "bearer", BearerFormat: "JWT"}
//
//	router.NewInclude("/api", routes,
//		router.WithDependency("token", bearer.Dependency()),
//		router.WithSecurity(security.Require(bearer)),
//	)
//
// A scheme marked Optional resolves to a zero value instead of raising
// [errors.NotAuthorized] when the request carries no credentials.
package security
