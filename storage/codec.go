package storage

import (
	"encoding/json"
	"fmt"
)

// Encode serializes v as JSON. Values JSON cannot represent are stored as
// their plain text form instead of failing.
func Encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return string(data)
}

// Decode parses s as JSON. Malformed input is returned unchanged.
func Decode(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Truthy mirrors how a flag read back from storage is interpreted:
// null, false, 0 and "" are unset, everything else is set.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
