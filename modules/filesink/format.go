package filesink

import (
	"fmt"
	"strconv"
)

// rowsOf normalizes an item value into printable CSV rows. A matrix yields
// one row per matrix row; a flat list yields a single row; a scalar yields a
// single one-column row; nil yields nothing.
func rowsOf(v any) [][]string {
	switch val := v.(type) {
	case nil:
		return nil
	case [][]float64:
		out := make([][]string, 0, len(val))
		for _, row := range val {
			cells := make([]string, len(row))
			for i, f := range row {
				cells[i] = formatFloat(f)
			}
			out = append(out, cells)
		}
		return out
	case []float64:
		cells := make([]string, len(val))
		for i, f := range val {
			cells[i] = formatFloat(f)
		}
		return [][]string{cells}
	case []string:
		return [][]string{val}
	case []any:
		cells := make([]string, len(val))
		for i, e := range val {
			cells[i] = formatValue(e)
		}
		return [][]string{cells}
	default:
		return [][]string{{formatValue(v)}}
	}
}

func stringsOf(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, formatValue(e))
		}
		return out
	}
	return nil
}

func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return formatFloat(n)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
