package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/conduit-lang/japi/pkg/japi/request"
)

// compare orders two attribute values. Values of different kinds compare
// by their string form.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb)
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// matches reports whether value satisfies filter f.
func matches(value any, f request.Filter) bool {
	switch f.Op {
	case "eq":
		return compare(value, f.Value) == 0
	case "ne":
		return compare(value, f.Value) != 0
	case "lt":
		return compare(value, f.Value) < 0
	case "lte":
		return compare(value, f.Value) <= 0
	case "gt":
		return compare(value, f.Value) > 0
	case "gte":
		return compare(value, f.Value) >= 0
	case "in", "nin":
		list, _ := f.Value.([]any)
		found := false
		for _, item := range list {
			if compare(value, item) == 0 {
				found = true
				break
			}
		}
		return found == (f.Op == "in")
	case "contains":
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(f.Value))
	case "startswith":
		return strings.HasPrefix(fmt.Sprint(value), fmt.Sprint(f.Value))
	case "endswith":
		return strings.HasSuffix(fmt.Sprint(value), fmt.Sprint(f.Value))
	}
	return false
}
