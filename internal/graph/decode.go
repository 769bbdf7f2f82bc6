// ABOUTME: Value decoding helpers for properties read off the graph driver.
// ABOUTME: Numbers arrive in whatever width they were written with; normalize here.
package graph

import "fmt"

// AsInt64 normalizes a numeric value coming off the driver into a plain
// int64. Depending on how a property was written, numbers arrive as int64,
// float64, or smaller integer widths; callers should never have to care.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("graph: value %v (%T) is not numeric", v, v)
	}
}
