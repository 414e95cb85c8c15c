// Package template resolves {{...}} placeholders in action parameters
// against the execution context.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/casaflow/casaflow/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// RenderWithContext substitutes placeholders in input using the
// execution context's flattened data map.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) string {
	return Render(input, executionCtx.TemplateData())
}

// Render replaces every {{path}} placeholder with the value found at
// the dotted path in data. Unresolved placeholders render as an empty
// string rather than failing the action.
func Render(input string, data map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]

		value, found := Lookup(data, path)
		if !found || value == nil {
			return ""
		}

		return stringify(value)
	})
}

// RenderParameters deep-renders every string value in an action's
// parameter map, descending into nested maps and slices.
func RenderParameters(params map[string]any, executionCtx *models.ExecutionContext) map[string]any {
	data := executionCtx.TemplateData()
	out := make(map[string]any, len(params))

	for key, value := range params {
		out[key] = renderValue(value, data)
	}

	return out
}

func renderValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Render(v, data)
	case map[string]any:
		nested := make(map[string]any, len(v))
		for k, inner := range v {
			nested[k] = renderValue(inner, data)
		}

		return nested
	case []any:
		nested := make([]any, len(v))
		for i, inner := range v {
			nested[i] = renderValue(inner, data)
		}

		return nested
	default:
		return value
	}
}

// Lookup walks a dotted path through nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = data

	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// Render whole numbers without a trailing ".0".
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
