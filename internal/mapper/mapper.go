// Package mapper converts records between the application's camelCase field
// names and the snake_case names used by every persistence backend.
//
// Conversions are recursive over map[string]any and []any, never mutate their
// input, and pass leaf values (strings, numbers, bools, times, nil) through
// unchanged.
//
// Application keys spell acronyms in lower case after the first letter
// ("supplierId", not "supplierID"). SnakeCase accepts either form, but
// CamelCase always produces the lower-case one, so only that form survives a
// round trip through storage.
package mapper

import (
	"strings"
	"unicode"
)

// ToPersisted renames every key from camelCase to snake_case.
func ToPersisted(v any) any {
	return walk(v, SnakeCase)
}

// ToApplication renames every key from snake_case to camelCase.
func ToApplication(v any) any {
	return walk(v, CamelCase)
}

// RecordToPersisted is ToPersisted for a single record.
func RecordToPersisted(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	return ToPersisted(rec).(map[string]any)
}

// RecordToApplication is ToApplication for a single record.
func RecordToApplication(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	return ToApplication(rec).(map[string]any)
}

func walk(v any, rename func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[rename(k)] = walk(val, rename)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = walk(val, rename)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = walk(val, rename)
		}
		return out
	default:
		return v
	}
}

// SnakeCase converts "currentStock" to "current_stock". Keys that are already
// snake_case come back unchanged. Runs of capitals are kept together, so
// "billOfLadingID" becomes "bill_of_lading_id".
func SnakeCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelCase converts "current_stock" to "currentStock". Keys without
// underscores come back unchanged. A leading underscore (e.g. Mongo's "_id")
// is preserved.
func CamelCase(s string) string {
	if !strings.Contains(strings.TrimLeft(s, "_"), "_") {
		return s
	}
	lead := len(s) - len(strings.TrimLeft(s, "_"))
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:lead])
	upper := false
	for _, r := range s[lead:] {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
