package model

// String returns the value under key as a string, or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns the value under key as an int64, or 0. JSON numbers decode
// as float64, so both representations are accepted.
func (m Metadata) Int64(key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
