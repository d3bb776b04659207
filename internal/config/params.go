package config

// Params is the opaque bag of worker-specific parameters attached to a task.
// The engine passes it through untouched; worker factories pull what they
// need with the typed accessors below. Numeric values may arrive as int,
// int64 or float64 depending on the source format, so the accessors coerce.
type Params map[string]any

// String returns the string under key, or def when absent.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// RequireString returns the string under key or a config error naming the
// task that is missing it.
func (p Params) RequireString(task, key string) (string, error) {
	v, ok := p[key].(string)
	if !ok {
		return "", Errorf(task, "missing required string parameter %q", key)
	}
	return v, nil
}

// Int returns the integer under key, or def when absent or non-numeric.
func (p Params) Int(key string, def int) int {
	if v, ok := coerceInt(p[key]); ok {
		return v
	}
	return def
}

// RequireInt returns the integer under key or a config error.
func (p Params) RequireInt(task, key string) (int, error) {
	v, ok := coerceInt(p[key])
	if !ok {
		return 0, Errorf(task, "missing required integer parameter %q", key)
	}
	return v, nil
}

// Float returns the float under key, or def when absent or non-numeric.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Bool returns the boolean under key, or def when absent.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Strings returns the list of strings under key. A scalar string is treated
// as a one-element list, matching how task authors commonly write it.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// RequireStrings returns the string list under key or a config error when it
// is absent or empty.
func (p Params) RequireStrings(task, key string) ([]string, error) {
	v := p.Strings(key)
	if len(v) == 0 {
		return nil, Errorf(task, "missing required list parameter %q", key)
	}
	return v, nil
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
