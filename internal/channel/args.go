package channel

import (
	"encoding/json"
	"math"
)

// Argument keys used by the method channel.
const (
	KeyAddress = "address"
	KeyData    = "data"
	KeyDevice  = "device"
)

// Args wraps the decoded argument value of a call. It may be nil, a map or any other JSON value.
type Args struct {
	raw any
}

// NewArgs wraps a decoded argument value.
func NewArgs(v any) Args {
	return Args{raw: v}
}

// IsNil reports whether the call carried no arguments.
func (a Args) IsNil() bool {
	return a.raw == nil
}

// Map returns the arguments as a map when they are one.
func (a Args) Map() (map[string]any, bool) {
	m, ok := a.raw.(map[string]any)
	return m, ok
}

// Value returns the value stored under key.
func (a Args) Value(key string) (any, bool) {
	m, ok := a.Map()
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// String returns the string stored under key. Non-string values do not match.
func (a Args) String(key string) (string, bool) {
	v, ok := a.Value(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bytes returns the payload stored under key. A string is taken as raw bytes; a list
// contributes each integer element masked to its low byte and skips everything else.
func (a Args) Bytes(key string) ([]byte, bool) {
	v, ok := a.Value(key)
	if !ok {
		return nil, false
	}
	switch data := v.(type) {
	case string:
		return []byte(data), true
	case []byte:
		return data, true
	case []any:
		out := make([]byte, 0, len(data))
		for _, elem := range data {
			if n, ok := toInt(elem); ok {
				out = append(out, byte(n&0xFF))
			}
		}
		return out, true
	case []int:
		out := make([]byte, len(data))
		for i, n := range data {
			out[i] = byte(n & 0xFF)
		}
		return out, true
	default:
		return nil, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// IntList converts bytes to the integer list form used for binary results.
func IntList(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}
