package mapper

import (
	"time"
)

// DateLayout is the date-only representation used for business dates.
const DateLayout = "2006-01-02"

// NormalizeDates returns a copy of rec where each named field holding a full
// timestamp is reduced to its YYYY-MM-DD portion. Strings that already hold a
// bare date, empty values and unknown fields are left alone.
func NormalizeDates(rec map[string]any, fields ...string) map[string]any {
	if rec == nil {
		return nil
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range fields {
		v, ok := out[f]
		if !ok || v == nil {
			continue
		}
		out[f] = normalizeDate(v)
	}
	return out
}

func normalizeDate(v any) any {
	switch t := v.(type) {
	case string:
		if len(t) > len(DateLayout) {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return ts.Format(DateLayout)
			}
			if _, err := time.Parse(DateLayout, t[:len(DateLayout)]); err == nil {
				return t[:len(DateLayout)]
			}
		}
		return t
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	case interface{ Time() time.Time }:
		return t.Time().UTC().Format(DateLayout)
	default:
		return v
	}
}

// ParseDate converts a date-like value into a time.Time, accepting bare dates,
// RFC 3339 timestamps and time values. ok is false when v is not date-like.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(DateLayout, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// DateFields lists, per collection, the persisted names of business-date fields.
// Backends with a native temporal type store these as timestamps; the
// application sees YYYY-MM-DD strings.
var DateFields = map[string][]string{
	"invoices":  {"issue_date", "due_date"},
	"shipments": {"departure_date", "arrival_date"},
}
