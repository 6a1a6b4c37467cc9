package orm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/desertthunder/makin/internal/shared"
)

// coerce converts an incoming value (decoded JSON or a query string) into the Go value stored for f.
func coerce(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	invalid := func() error {
		return fmt.Errorf("%w: field %q expects %s, got %T", shared.ErrValidation, f.Name, f.Type, v)
	}

	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, invalid()
		}
		return s, nil
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, invalid()
			}
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, invalid()
			}
			return i, nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, invalid()
			}
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, invalid()
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, invalid()
			}
			return f, nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, invalid()
			}
			return parsed, nil
		}
	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, invalid()
			}
			return parsed.UTC(), nil
		}
	case TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, invalid()
		}
		return string(data), nil
	}

	return nil, invalid()
}

// normalize converts a scanned column value back into the API representation for f.
func normalize(t FieldType, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch t {
	case TypeBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case string:
			parsed, err := strconv.ParseBool(b)
			if err == nil {
				return parsed
			}
		}
	case TypeInt:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case TypeFloat:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case TypeTime:
		if s, ok := v.(string); ok {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
				if parsed, err := time.Parse(layout, s); err == nil {
					return parsed.UTC()
				}
			}
		}
		if tt, ok := v.(time.Time); ok {
			return tt.UTC()
		}
	case TypeJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return v
}
