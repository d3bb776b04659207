package framestats

import "fmt"

// asBoxes accepts the box matrix either as typed [][]float64 (produced by Go
// stages) or as []any of []any (produced by config-driven test fixtures).
func asBoxes(v any) ([][]float64, error) {
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
				return nil, fmt.Errorf("boxes: row is %T, want a list of numbers", rowAny)
			}
			cols := make([]float64, 0, len(row))
			for _, cell := range row {
				f, ok := toFloat(cell)
				if !ok {
					return nil, fmt.Errorf("boxes: cell is %T, want a number", cell)
				}
				cols = append(cols, f)
			}
			out = append(out, cols)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("boxes: unsupported type %T", v)
	}
}

func asStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("object_classes: element is %T, want string", e)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("object_classes: unsupported type %T", v)
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
