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

// Package binding turns connection data into handler input structs.
//
// A [Transformer] reads path, query, header and cookie values, decodes the
// request body with a decoder chosen by media type, parses urlencoded and
// multipart forms (spooling uploads to disk past a memory threshold),
// resolves dependencies and fills reserved parameters. Conversion and
// validation failures are collected into a single
// [rivaas.dev/keel/errors.ValidationError] with one located detail per
// failure.
//
// Default decoders:
//
//	application/json        encoding/json
//	application/msgpack     github.com/vmihailenco/msgpack/v5
//	application/yaml        gopkg.in/yaml.v3
//	application/toml        github.com/BurntSushi/toml
//	application/x-protobuf  google.golang.org/protobuf
//
// Further media types are added with [WithDecoder].
package binding
