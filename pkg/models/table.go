package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns a table holding at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n], DisplayNames: t.DisplayNames}
}

// Records returns the rows as column-name keyed objects.
func (t *Table) Records() []map[string]any {
	records := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		records[i] = rec
	}
	return records
}

// ColumnIsNumeric reports whether every non-null value of column i is a number.
// A column with only nulls is not numeric.
func (t *Table) ColumnIsNumeric(i int) bool {
	seen := false
	for _, row := range t.Rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		if !isNumber(row[i]) {
			return false
		}
		seen = true
	}
	return seen
}

// Markdown renders the table as a pipe table. Numeric columns are right
// aligned, everything else left aligned.
func (t *Table) Markdown() string {
	headers := t.Columns
	if len(t.DisplayNames) == len(t.Columns) {
		headers = t.DisplayNames
	}

	cells := make([][]string, len(t.Rows))
	widths := make([]int, len(headers))
	for j, h := range headers {
		widths[j] = len(h)
	}
	for i, row := range t.Rows {
		cells[i] = make([]string, len(headers))
		for j := range headers {
			if j < len(row) {
				cells[i][j] = FormatValue(row[j])
			}
			if len(cells[i][j]) > widths[j] {
				widths[j] = len(cells[i][j])
			}
		}
	}

	right := make([]bool, len(headers))
	for j := range headers {
		right[j] = t.ColumnIsNumeric(j)
	}

	var b strings.Builder
	writeLine := func(values []string) {
		b.WriteString("|")
		for j, v := range values {
			pad := strings.Repeat(" ", widths[j]-len(v))
			if right[j] {
				b.WriteString(" " + pad + v + " |")
			} else {
				b.WriteString(" " + v + pad + " |")
			}
		}
		b.WriteString("\n")
	}

	writeLine(headers)
	b.WriteString("|")
	for j, w := range widths {
		if right[j] {
			b.WriteString(strings.Repeat("-", w+1) + ":|")
		} else {
			b.WriteString(":" + strings.Repeat("-", w+1) + "|")
		}
	}
	b.WriteString("\n")
	for _, row := range cells {
		writeLine(row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatValue renders a scalar cell for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return "nan"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
