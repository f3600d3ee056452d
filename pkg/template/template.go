// Package template resolves {{dotted.path}} placeholders against an execution context.
package template

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/spf13/cast"
)

var (
	placeholder      = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	wholePlaceholder = regexp.MustCompile(`^\s*\{\{\s*([^{}]*?)\s*\}\}\s*$`)
)

// HasPlaceholder reports whether s contains at least one {{...}} token.
func HasPlaceholder(s string) bool {
	return placeholder.MatchString(s)
}

// Resolve replaces every placeholder in s with the stringified value found at
// its path. Missing paths become the empty string. Resolve never fails.
func Resolve(s string, ctx models.ExecutionContext) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	return placeholder.ReplaceAllStringFunc(s, func(token string) string {
		match := placeholder.FindStringSubmatch(token)

		value, ok := ctx.Lookup(match[1])
		if !ok {
			return ""
		}

		return Stringify(value)
	})
}

// ResolveValue resolves placeholders recursively through maps and slices.
// A string made of exactly one placeholder keeps the type of the value it
// points at, so "{{lead.score}}" resolves to a number.
func ResolveValue(v any, ctx models.ExecutionContext) any {
	switch value := v.(type) {
	case string:
		if match := wholePlaceholder.FindStringSubmatch(value); match != nil {
			found, ok := ctx.Lookup(match[1])
			if !ok || found == nil {
				return ""
			}

			return found
		}

		return Resolve(value, ctx)
	case map[string]any:
		resolved := make(map[string]any, len(value))
		for key, item := range value {
			resolved[key] = ResolveValue(item, ctx)
		}

		return resolved
	case []any:
		resolved := make([]any, len(value))
		for i, item := range value {
			resolved[i] = ResolveValue(item, ctx)
		}

		return resolved
	case []map[string]any:
		resolved := make([]any, len(value))
		for i, item := range value {
			resolved[i] = ResolveValue(item, ctx)
		}

		return resolved
	default:
		return v
	}
}

// IsMappingKey reports whether a config key holds {key, value} pairs that
// collapse into an object.
func IsMappingKey(key string) bool {
	return key == "headers" || strings.HasSuffix(key, "_mappings")
}

// ResolveConfig resolves every value of a node configuration map. Mapping
// arrays are collapsed into objects.
func ResolveConfig(config map[string]any, ctx models.ExecutionContext) map[string]any {
	resolved := make(map[string]any, len(config))

	for key, value := range config {
		if IsMappingKey(key) {
			if _, isList := value.([]any); isList {
				resolved[key] = ResolveMappings(value, ctx)

				continue
			}
		}

		resolved[key] = ResolveValue(value, ctx)
	}

	return resolved
}

// NormalizeConfig collapses mapping arrays into objects without resolving
// placeholders. It is used to validate a stored configuration.
func NormalizeConfig(config map[string]any) map[string]any {
	normalized := make(map[string]any, len(config))

	for key, value := range config {
		if IsMappingKey(key) {
			if _, isList := value.([]any); isList {
				normalized[key] = collectPairs(value, func(v any) any { return v })

				continue
			}
		}

		normalized[key] = value
	}

	return normalized
}

// ResolveMappings turns an array of {key, value} pairs into a single object,
// resolving each value. Pairs may use "field" instead of "key". Empty keys are
// skipped and a later pair with the same key wins.
func ResolveMappings(pairs any, ctx models.ExecutionContext) map[string]any {
	return collectPairs(pairs, func(v any) any { return ResolveValue(v, ctx) })
}

func collectPairs(pairs any, value func(any) any) map[string]any {
	result := make(map[string]any)

	var items []any

	switch list := pairs.(type) {
	case []any:
		items = list
	case []map[string]any:
		for _, item := range list {
			items = append(items, item)
		}
	default:
		return result
	}

	for _, item := range items {
		pair, ok := item.(map[string]any)
		if !ok {
			continue
		}

		key := cast.ToString(pair["key"])
		if key == "" {
			key = cast.ToString(pair["field"])
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		result[key] = value(pair["value"])
	}

	return result
}

// Stringify formats a context value for insertion into a string.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case map[string]any, []any, models.ExecutionContext, []map[string]any:
		data, err := json.Marshal(value)
		if err != nil {
			return ""
		}

		return string(data)
	default:
		s, err := cast.ToStringE(value)
		if err != nil {
			data, err := json.Marshal(value)
			if err != nil {
				return ""
			}

			return string(data)
		}

		return s
	}
}
