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

// Package app assembles the router, the request pipeline and the application
// lifecycle into an [http.Handler].
//
// A request passes through the app-level middleware (recovery, trusted
// hosts, CORS and user middleware) before it is routed. The matched route
// then runs its own middleware, from the root of the route tree down to the
// handler, around the inner frame:
//
//  1. interceptors
//  2. permissions
//  3. binding of parameters and dependencies
//  4. the handler, bounded by a semaphore when declared blocking
//  5. response shaping and writing
//  6. the background task of the response
//
// Scoped dependency teardown runs last, in reverse order of creation, on
// every path out of the frame.
//
// Errors are dispatched once, after all middleware has returned: the
// exception handlers of the route's layers are tried nearest first, then
// those of the application, then the configured [errors.Formatter].
//
// Example:
//
//	type itemPath struct {
//	    ID int64 `path:"id"`
//	}
//
//	a, err := app.New(
//	    app.WithRoutes(
//	        router.NewGateway("/items/{id:int}", router.Get(func(in itemPath) (Item, error) {
//	            return store.Get(in.ID)
//	        })),
//	    ),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := a.Start(ctx, ":8080"); err != nil {
//	    log.Fatal(err)
//	}
package app
