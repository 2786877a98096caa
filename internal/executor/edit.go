package executor

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/sheet"
)

// editCell writes v.Values. A 1x1 matrix on a multi-cell target fills the
// whole target; any other matrix is written at the target's top-left cell
// with the matrix's own shape.
func (b *batchRun) editCell(v action.EditCell, r sheet.Range) (string, error) {
	values := cellValues(v.Values, v.IsFormula)
	if len(values) == 0 || len(values[0]) == 0 {
		return "skipped: no values given", nil
	}

	if len(values) == 1 && len(values[0]) == 1 && !r.Single() {
		fill := make([][]interface{}, r.Rows())
		for i := range fill {
			row := make([]interface{}, r.Cols())
			for j := range row {
				row[j] = values[0][0]
			}
			fill[i] = row
		}
		if err := b.host.SetValues(r, fill); err != nil {
			return "", err
		}
		return fmt.Sprintf("filled %d cells", r.Rows()*r.Cols()), nil
	}

	dst := r.Resize(len(values), len(values[0]))
	if err := b.host.SetValues(dst, values); err != nil {
		return "", err
	}
	return "wrote " + dst.Ref(), nil
}

// cellValues converts decoded JSON values to host values. Strings starting
// with '=' become formulas, as do all strings when forced.
func cellValues(in [][]interface{}, forceFormula bool) [][]interface{} {
	out := make([][]interface{}, len(in))
	for i, row := range in {
		out[i] = make([]interface{}, len(row))
		for j, v := range row {
			out[i][j] = cellValue(v, forceFormula)
		}
	}
	return out
}

func cellValue(v interface{}, forceFormula bool) interface{} {
	switch x := v.(type) {
	case nil, bool, float64, int, int64:
		return x
	case string:
		if forceFormula || (len(x) > 1 && x[0] == '=') {
			return sheet.Formula(strings.TrimPrefix(x, "="))
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}

// trimWhitespace trims string cells only. Unchanged cells are not rewritten.
func (b *batchRun) trimWhitespace(r sheet.Range) (string, error) {
	values, err := b.host.Values(r)
	if err != nil {
		return "", err
	}
	changed := 0
	for i, row := range values {
		for j, v := range row {
			s, ok := v.(string)
			if !ok {
				continue
			}
			trimmed := strings.TrimSpace(s)
			if trimmed == s {
				continue
			}
			cell := r.Row(i).Offset(0, j).TopLeft()
			if err := b.host.SetValues(cell, [][]interface{}{{trimmed}}); err != nil {
				return "", err
			}
			changed++
		}
	}
	return fmt.Sprintf("trimmed %d cells", changed), nil
}

// sortRange sorts the rows of r by one key column. Blank keys stay last in
// either direction. Rows move as values; formulas are carried verbatim.
func (b *batchRun) sortRange(v action.SortRange, r sheet.Range) (string, error) {
	if v.Column < 0 || v.Column >= r.Cols() {
		return "", fmt.Errorf("sort column %d is outside %s (%d columns)", v.Column, r.Ref(), r.Cols())
	}
	body := r
	if v.HasHeaders {
		if r.Rows() < 2 {
			return "skipped: nothing below the header", nil
		}
		body = sheet.Range{Sheet: r.Sheet, StartCol: r.StartCol, StartRow: r.StartRow + 1, EndCol: r.EndCol, EndRow: r.EndRow}
	}
	rows, err := b.host.Values(body)
	if err != nil {
		return "", err
	}

	col := v.Column
	sort.SliceStable(rows, func(i, j int) bool {
		a, c := rows[i][col], rows[j][col]
		if a == nil || c == nil {
			return a != nil && c == nil
		}
		if v.Ascending {
			return compareCells(a, c) < 0
		}
		return compareCells(a, c) > 0
	})

	if err := b.host.SetValues(body, rows); err != nil {
		return "", err
	}
	order := "ascending"
	if !v.Ascending {
		order = "descending"
	}
	return fmt.Sprintf("sorted %d rows by column %d, %s", len(rows), col, order), nil
}

// compareCells orders numbers before text before booleans. Text compares
// case-insensitively.
func compareCells(a, b interface{}) int {
	ra, rb := cellRank(a), cellRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToLower(cellText(a)), strings.ToLower(cellText(b)))
}

func cellRank(v interface{}) int {
	switch v.(type) {
	case float64:
		return 0
	case bool:
		return 2
	default:
		return 1
	}
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case sheet.Formula:
		return "=" + string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// removeDuplicates keeps the first row for each key and packs the survivors
// at the top of the range. Column names are matched against the first row of
// the target.
func (b *batchRun) removeDuplicates(v action.RemoveDuplicates, r sheet.Range) (string, error) {
	values, err := b.host.Values(r)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "skipped: empty range", nil
	}

	var notes []string
	keys, err := b.keyColumns(v.Columns, values[0], r, &notes)
	if err != nil {
		return "", err
	}

	start := 0
	if v.IncludesHeader {
		start = 1
	}
	if start >= len(values) {
		return "skipped: nothing below the header", nil
	}
	body := values[start:]

	seen := make(map[string]bool, len(body))
	unique := make([][]interface{}, 0, len(body))
	for _, row := range body {
		k := rowKey(row, keys)
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, row)
	}
	removed := len(body) - len(unique)
	if removed == 0 {
		notes = append(notes, "no duplicate rows")
		return strings.Join(notes, "; "), nil
	}

	out := make([][]interface{}, len(body))
	copy(out, unique)
	for i := len(unique); i < len(out); i++ {
		out[i] = make([]interface{}, r.Cols())
	}
	bodyRange := sheet.Range{Sheet: r.Sheet, StartCol: r.StartCol, StartRow: r.StartRow + start, EndCol: r.EndCol, EndRow: r.EndRow}
	if err := b.host.SetValues(bodyRange, out); err != nil {
		return "", err
	}
	notes = append(notes, fmt.Sprintf("removed %d duplicate rows", removed))
	return strings.Join(notes, "; "), nil
}

// keyColumns turns column references into offsets. An empty list keys on
// every column; an unknown header name falls back to column 0.
func (b *batchRun) keyColumns(refs []action.ColumnRef, header []interface{}, r sheet.Range, notes *[]string) ([]int, error) {
	if len(refs) == 0 {
		all := make([]int, r.Cols())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	keys := make([]int, 0, len(refs))
	for _, ref := range refs {
		if ref.Name == "" {
			if ref.Index < 0 || ref.Index >= r.Cols() {
				return nil, fmt.Errorf("column %d is outside %s (%d columns)", ref.Index, r.Ref(), r.Cols())
			}
			keys = append(keys, ref.Index)
			continue
		}
		idx := headerIndex(header, ref.Name)
		if idx < 0 {
			b.e.logger.Warn("column name not found in header row, using column 0",
				zap.String("column", ref.Name),
				zap.String("range", r.Address()))
			*notes = append(*notes, fmt.Sprintf("column %q not found, used column 0", ref.Name))
			idx = 0
		}
		keys = append(keys, idx)
	}
	return keys, nil
}

func headerIndex(header []interface{}, name string) int {
	want := strings.TrimSpace(name)
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(cellText(h)), want) {
			return i
		}
	}
	return -1
}

func rowKey(row []interface{}, keys []int) string {
	var sb strings.Builder
	for _, k := range keys {
		var v interface{}
		if k < len(row) {
			v = row[k]
		}
		switch x := v.(type) {
		case string:
			sb.WriteString("s:" + strings.ToLower(x))
		case nil:
			sb.WriteString("n:")
		default:
			fmt.Fprintf(&sb, "%T:%v", x, x)
		}
		sb.WriteByte(0)
	}
	return sb.String()
}

// mergeCells merges the target, or each of its rows.
func (b *batchRun) mergeCells(v action.MergeCells, r sheet.Range) (string, error) {
	if r.Single() {
		return "skipped: single cell", nil
	}
	if !v.Across {
		return "merged " + r.Ref(), b.host.Merge(r)
	}
	for i := 0; i < r.Rows(); i++ {
		if err := b.host.Merge(r.Row(i)); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("merged %d rows", r.Rows()), nil
}
