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

package validation

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

func isSized(e validator.FieldError) bool {
	switch e.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return true
	default:
		return false
	}
}

func tagErrorType(e validator.FieldError) string {
	sized := isSized(e)
	switch e.Tag() {
	case "required":
		return "missing"
	case "min", "gte":
		if sized {
			return "too_short"
		}
		return "greater_than_equal"
	case "gt":
		if sized {
			return "too_short"
		}
		return "greater_than"
	case "max", "lte":
		if sized {
			return "too_long"
		}
		return "less_than_equal"
	case "lt":
		if sized {
			return "too_long"
		}
		return "less_than"
	case "len":
		return "length"
	case "oneof":
		return "enum"
	case "uuid", "uuid4":
		return "uuid_parsing"
	case "url", "uri":
		return "url_parsing"
	default:
		return "value_error"
	}
}

func tagMessage(e validator.FieldError) string {
	sized := isSized(e)
	switch e.Tag() {
	case "required":
		return "Field required"
	case "email":
		return "value is not a valid email address"
	case "url", "uri":
		return "Input should be a valid URL"
	case "min", "gte":
		if sized {
			return fmt.Sprintf("Should have at least %s items or characters", e.Param())
		}
		return fmt.Sprintf("Input should be greater than or equal to %s", e.Param())
	case "gt":
		if sized {
			return fmt.Sprintf("Should have more than %s items or characters", e.Param())
		}
		return fmt.Sprintf("Input should be greater than %s", e.Param())
	case "max", "lte":
		if sized {
			return fmt.Sprintf("Should have at most %s items or characters", e.Param())
		}
		return fmt.Sprintf("Input should be less than or equal to %s", e.Param())
	case "lt":
		if sized {
			return fmt.Sprintf("Should have fewer than %s items or characters", e.Param())
		}
		return fmt.Sprintf("Input should be less than %s", e.Param())
	case "len":
		return fmt.Sprintf("Should have exactly %s items or characters", e.Param())
	case "oneof":
		return fmt.Sprintf("Input should be one of [%s]", e.Param())
	default:
		return fmt.Sprintf("Value failed validation (%s)", e.Tag())
	}
}
