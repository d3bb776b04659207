package motion

import "fmt"

// asMatrix accepts a numeric matrix either typed ([][]float64) or as nested
// []any from config-driven fixtures. nil passes through: frames without
// tracked points are valid input.
func asMatrix(v any, key string) ([][]float64, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case [][]float64:
		return m, nil
	case []any:
		out := make([][]float64, 0, len(m))
		for _, rowAny := range m {
			row, ok := rowAny.([]any)
			if !ok {
				return nil, fmt.Errorf("%s: row is %T, want a list of numbers", key, rowAny)
			}
			cols := make([]float64, 0, len(row))
			for _, cell := range row {
				f, ok := toFloat(cell)
				if !ok {
					return nil, fmt.Errorf("%s: cell is %T, want a number", key, cell)
				}
				cols = append(cols, f)
			}
			out = append(out, cols)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
