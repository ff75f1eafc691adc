package docstore

import (
	"fmt"
	"time"

	"memorabilia-service/internal/timeutil"

	"github.com/shopspring/decimal"
)

// Fields reads typed values out of a document's data. The getters accept every
// shape the backends hand back for the same logical value.
type Fields map[string]any

// String returns the field as a string, or "" when absent
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Decimal returns a money field stored as string or number
func (f Fields) Decimal(key string) (decimal.Decimal, error) {
	switch v := f[key].(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %s: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("field %s: unsupported money type %T", key, v)
	}
}

// Time normalizes a timestamp field
func (f Fields) Time(key string) (time.Time, error) {
	t, err := timeutil.Normalize(f[key])
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t, nil
}

// OptionalTime is Time for fields that may be absent
func (f Fields) OptionalTime(key string) (*time.Time, error) {
	if v, ok := f[key]; !ok || v == nil {
		return nil, nil
	}
	t, err := f.Time(key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns a nested array of documents
func (f Fields) List(key string) ([]Fields, error) {
	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		out := make([]Fields, len(v))
		for i, m := range v {
			out[i] = Fields(m)
		}
		return out, nil
	case []any:
		out := make([]Fields, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %s[%d]: unexpected %T", key, i, item)
			}
			out = append(out, Fields(m))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %s: unexpected %T", key, v)
	}
}
