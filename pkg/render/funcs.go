package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GetTemplateFuncs returns the functions available to layouts, partials,
// template components and inline expressions.
func GetTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Text
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			if length <= 3 {
				return s[:length]
			}
			return s[:length-3] + "..."
		},
		"default": func(def, val any) any {
			if val == nil {
				return def
			}
			if v, ok := val.(string); ok && v == "" {
				return def
			}
			return val
		},
		"gt": func(a, b any) bool { return compareNumbers(a, b) > 0 },
		"lt": func(a, b any) bool { return compareNumbers(a, b) < 0 },

		// String helpers
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": cases.Title(language.English).String,
		"trim":  strings.TrimSpace,
		"join":  strings.Join,
	}
}

// compareNumbers compares two numeric-ish values returning -1 / 0 / 1.
func compareNumbers(a, b any) int {
	av, _ := parseFloatLoose(a)
	bv, _ := parseFloatLoose(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// parseFloatLoose reads a number from any numeric type or a numeric string.
// TOML integers arrive as int64, JSON-ish data as float64.
func parseFloatLoose(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case string:
		s := strings.TrimSpace(val)
		if f, err := json.Number(s).Float64(); err == nil {
			return f, nil
		}
		var f float64
		_, err := fmt.Sscanf(s, "%f", &f)
		return f, err
	default:
		return 0, fmt.Errorf("not numeric")
	}
}
