package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse failures carry a typed reason so callers can decide per field
// whether to substitute a default or drop the record.
var (
	ErrMissing      = errors.New("value missing")
	ErrNotNumeric   = errors.New("value not numeric")
	ErrBadTimestamp = errors.New("timestamp not parseable")
)

// timestampLayouts are tried in order for string-typed timestamps.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Float coerces a raw value to float64.
func Float(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, ErrMissing
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, ErrNotNumeric
		}
		return f, nil
	case string:
		if val == "" {
			return 0, ErrMissing
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, ErrNotNumeric
		}
		return f, nil
	default:
		return 0, ErrNotNumeric
	}
}

// Int coerces a raw value to int64. Float inputs are truncated, matching
// the behavior of numeric coercion on JSON-decoded batches where every
// number arrives as float64.
func Int(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, ErrMissing
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0, ErrNotNumeric
			}
			return int64(f), nil
		}
		return i, nil
	case string:
		if val == "" {
			return 0, ErrMissing
		}
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if ferr != nil {
				return 0, ErrNotNumeric
			}
			return int64(f), nil
		}
		return i, nil
	default:
		return 0, ErrNotNumeric
	}
}

// InstallCount parses free-text install counts like "10,000+".
// Separators are stripped before the integer parse; anything unparsable
// defaults to 0.
func InstallCount(v any) int64 {
	s, err := String(v)
	if err != nil {
		n, nerr := Int(v)
		if nerr != nil {
			return 0
		}
		return n
	}

	cleaned := strings.NewReplacer("+", "", ",", "").Replace(s)
	cleaned = strings.TrimSpace(cleaned)
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Price parses a price that may carry currency symbols ("$1.99").
// All characters except digits and dots are stripped; unparsable or
// literal zero yields 0.0.
func Price(v any) float64 {
	if f, err := Float(v); err == nil {
		if f < 0 {
			return 0
		}
		return f
	}

	s, err := String(v)
	if err != nil {
		return 0
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// String coerces a raw value to a plain string.
func String(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", ErrMissing
	case string:
		if val == "" {
			return "", ErrMissing
		}
		return val, nil
	default:
		return "", fmt.Errorf("not a string: %T", v)
	}
}

// Stringify renders any raw value as a string. Non-string shapes (lists,
// nested objects) are serialized rather than rejected.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Timestamp parses a review timestamp. Accepted shapes: a plain date/time
// string in one of timestampLayouts, an epoch-milliseconds wrapper object
// ({"$date": 1700000000000} or {"epoch_millis": ...}), or a bare
// epoch-milliseconds number.
func Timestamp(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, ErrBadTimestamp
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, ErrBadTimestamp
	case float64:
		return time.UnixMilli(int64(val)).UTC(), nil
	case int64:
		return time.UnixMilli(val).UTC(), nil
	case map[string]any:
		for _, key := range []string{"$date", "epoch_millis"} {
			if raw, ok := val[key]; ok {
				ms, err := Int(raw)
				if err != nil {
					return time.Time{}, ErrBadTimestamp
				}
				return time.UnixMilli(ms).UTC(), nil
			}
		}
		return time.Time{}, ErrBadTimestamp
	default:
		return time.Time{}, ErrBadTimestamp
	}
}
