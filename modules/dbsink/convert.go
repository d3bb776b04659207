package dbsink

import "fmt"

type vidInfo struct {
	id       string
	fileName string
}

// videoInfo pulls the video identity most items carry; absent fields become
// empty strings rather than failing the whole batch.
func videoInfo(item map[string]any) vidInfo {
	info, _ := item["video_info"].(map[string]any)
	id, _ := info["id"].(string)
	fileName, _ := info["file_name"].(string)
	return vidInfo{id: id, fileName: fileName}
}

// asMatrix accepts a numeric matrix either typed or as nested []any. nil is
// an empty matrix: frames without data for a key contribute no rows.
func asMatrix(v any) ([][]float64, error) {
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
				return nil, fmt.Errorf("row is %T, want a list of numbers", rowAny)
			}
			cols := make([]float64, 0, len(row))
			for _, cell := range row {
				f, ok := toFloat(cell)
				if !ok {
					return nil, fmt.Errorf("cell is %T, want a number", cell)
				}
				cols = append(cols, f)
			}
			out = append(out, cols)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported matrix type %T", v)
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

func stringsOf(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
