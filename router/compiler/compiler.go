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

package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"rivaas.dev/keel/errors"
)

var paramPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)(?::([a-zA-Z_][a-zA-Z0-9_]*))?\}`)

// Param is one parameter declared in a pattern.
type Param struct {
	Name          string
	ConvertorName string
	Convertor     Convertor
}

// Path is a compiled path pattern.
type Path struct {
	// Pattern is the normalized source pattern.
	Pattern string

	// Template is the pattern with convertor names removed ("/items/{id}"),
	// used for URL reversal and OpenAPI paths.
	Template string

	// Params lists the parameters in declaration order.
	Params []Param

	mount         bool
	regex         *regexp.Regexp
	literalPrefix string
	shape         string
}

// Result is the outcome of a successful match.
type Result struct {
	// Params maps parameter names to converted values.
	Params map[string]any

	// Rest is the unmatched remainder of a mount pattern, always starting with "/".
	Rest string
}

// Normalize returns pattern with a leading slash and without a trailing one.
// The root is "/" for routes and "" for mounts.
func Normalize(pattern string, mount bool) string {
	pattern = strings.TrimSpace(pattern)
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	pattern = strings.TrimRight(pattern, "/")
	if pattern == "" && !mount {
		return "/"
	}
	return pattern
}

// Compile compiles pattern. A mount pattern is anchored at the start only and
// leaves the remainder of the path in [Result.Rest].
//
// Compile returns [errors.ImproperlyConfigured] for unknown convertors and
// duplicated parameter names.
func Compile(pattern string, mount bool) (*Path, error) {
	pattern = Normalize(pattern, mount)

	p := &Path{Pattern: pattern, mount: mount}
	seen := make(map[string]bool)

	var (
		expr     strings.Builder
		template strings.Builder
		shape    strings.Builder
		idx      int
	)
	expr.WriteString("^")

	for _, loc := range paramPattern.FindAllStringSubmatchIndex(pattern, -1) {
		literal := pattern[idx:loc[0]]
		expr.WriteString(regexp.QuoteMeta(literal))
		template.WriteString(literal)
		shape.WriteString(literal)
		if len(p.Params) == 0 {
			p.literalPrefix = pattern[:loc[0]]
		}

		name := pattern[loc[2]:loc[3]]
		convName := "str"
		if loc[4] >= 0 {
			convName = pattern[loc[4]:loc[5]]
		}

		conv, ok := Lookup(convName)
		if !ok {
			return nil, errors.NewImproperlyConfigured("unknown path convertor %q in %q", convName, pattern)
		}
		if seen[name] {
			return nil, errors.NewImproperlyConfigured("duplicated path parameter %q in %q", name, pattern)
		}
		seen[name] = true

		fmt.Fprintf(&expr, "(?P<p%d>%s)", len(p.Params), conv.Regex())
		template.WriteString("{" + name + "}")
		shape.WriteString("{:" + convName + "}")
		p.Params = append(p.Params, Param{Name: name, ConvertorName: convName, Convertor: conv})
		idx = loc[1]
	}

	tail := pattern[idx:]
	expr.WriteString(regexp.QuoteMeta(tail))
	template.WriteString(tail)
	shape.WriteString(tail)
	if len(p.Params) == 0 {
		p.literalPrefix = pattern
	}

	if mount {
		expr.WriteString("(?P<rest>/.*)?$")
	} else {
		expr.WriteString("$")
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, errors.NewImproperlyConfigured("invalid path %q: %v", pattern, err)
	}
	p.regex = re
	p.Template = template.String()
	p.shape = shape.String()

	return p, nil
}

// MustCompile is like [Compile] but panics on error.
func MustCompile(pattern string, mount bool) *Path {
	p, err := Compile(pattern, mount)
	if err != nil {
		panic(err)
	}
	return p
}

// IsLiteral reports whether the pattern declares no parameters.
func (p *Path) IsLiteral() bool {
	return len(p.Params) == 0
}

// IsMount reports whether the pattern was compiled as a mount.
func (p *Path) IsMount() bool {
	return p.mount
}

// LiteralPrefix returns the text before the first parameter.
func (p *Path) LiteralPrefix() string {
	return p.literalPrefix
}

// Shape returns the pattern with parameter names erased ("/items/{:int}").
// Two paths with the same shape match exactly the same requests.
func (p *Path) Shape() string {
	return p.shape
}

// ParamNames returns the parameter names in declaration order.
func (p *Path) ParamNames() []string {
	names := make([]string, len(p.Params))
	for i, param := range p.Params {
		names[i] = param.Name
	}
	return names
}

// Param returns the declared parameter called name.
func (p *Path) Param(name string) (Param, bool) {
	for _, param := range p.Params {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}

// Regexp returns the compiled matcher.
func (p *Path) Regexp() *regexp.Regexp {
	return p.regex
}

// Match matches path. When the regex matches but a convertor rejects a value,
// Match returns true together with a [errors.ValidationError] located at
// ["path", name].
func (p *Path) Match(path string) (Result, bool, error) {
	groups := p.regex.FindStringSubmatch(path)
	if groups == nil {
		return Result{}, false, nil
	}

	res := Result{Params: make(map[string]any, len(p.Params))}
	verr := errors.NewValidationError()
	for i, param := range p.Params {
		raw := groups[p.regex.SubexpIndex(fmt.Sprintf("p%d", i))]
		v, err := param.Convertor.FromString(raw)
		if err != nil {
			verr.Add(errors.ErrorDetail{
				Loc:   errors.Loc("path", param.Name),
				Msg:   convertorMessage(param.Convertor),
				Type:  param.Convertor.ErrorType(),
				Input: raw,
			})
			continue
		}
		res.Params[param.Name] = v
	}
	if verr.HasErrors() {
		return Result{}, true, verr
	}

	if p.mount {
		res.Rest = groups[p.regex.SubexpIndex("rest")]
		if res.Rest == "" {
			res.Rest = "/"
		}
	}

	return res, true, nil
}

// Format builds a path from params. Every declared parameter must be present.
func (p *Path) Format(params map[string]any) (string, error) {
	var (
		b   strings.Builder
		idx int
	)
	for _, loc := range paramPattern.FindAllStringSubmatchIndex(p.Pattern, -1) {
		b.WriteString(p.Pattern[idx:loc[0]])
		name := p.Pattern[loc[2]:loc[3]]
		param, _ := p.Param(name)

		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("missing path parameter %q for %q", name, p.Pattern)
		}
		s, err := param.Convertor.ToString(v)
		if err != nil {
			return "", fmt.Errorf("path parameter %q: %w", name, err)
		}
		if !regexp.MustCompile("^(?:" + param.Convertor.Regex() + ")$").MatchString(s) {
			return "", fmt.Errorf("path parameter %q: value %q does not match convertor %q", name, s, param.ConvertorName)
		}
		b.WriteString(s)
		idx = loc[1]
	}
	b.WriteString(p.Pattern[idx:])

	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

func convertorMessage(c Convertor) string {
	switch c.ErrorType() {
	case "int_parsing":
		return "Input should be a valid integer"
	case "float_parsing":
		return "Input should be a valid number"
	case "uuid_parsing":
		return "Input should be a valid UUID"
	default:
		return "Input is not a valid path value"
	}
}
