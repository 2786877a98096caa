package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Range is a rectangular block of cells on one sheet. Coordinates are 1-based
// and inclusive.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// Rows returns the number of rows spanned.
func (r Range) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the number of columns spanned.
func (r Range) Cols() int { return r.EndCol - r.StartCol + 1 }

// Single reports whether the range is one cell.
func (r Range) Single() bool { return r.Rows() == 1 && r.Cols() == 1 }

// TopLeft returns the first cell of the range as a 1x1 range.
func (r Range) TopLeft() Range {
	return Range{Sheet: r.Sheet, StartCol: r.StartCol, StartRow: r.StartRow, EndCol: r.StartCol, EndRow: r.StartRow}
}

// Resize returns a range anchored at r's top-left cell with the given shape.
func (r Range) Resize(rows, cols int) Range {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return Range{
		Sheet:    r.Sheet,
		StartCol: r.StartCol,
		StartRow: r.StartRow,
		EndCol:   r.StartCol + cols - 1,
		EndRow:   r.StartRow + rows - 1,
	}
}

// Offset shifts the range by the given number of rows and columns.
func (r Range) Offset(rows, cols int) Range {
	return Range{
		Sheet:    r.Sheet,
		StartCol: r.StartCol + cols,
		StartRow: r.StartRow + rows,
		EndCol:   r.EndCol + cols,
		EndRow:   r.EndRow + rows,
	}
}

// Row returns the i-th row (0-based) of the range.
func (r Range) Row(i int) Range {
	return Range{Sheet: r.Sheet, StartCol: r.StartCol, StartRow: r.StartRow + i, EndCol: r.EndCol, EndRow: r.StartRow + i}
}

// Cell returns the A1 name of the cell at the 0-based offset within the range.
func (r Range) Cell(row, col int) string {
	name, _ := excelize.CoordinatesToCellName(r.StartCol+col, r.StartRow+row)
	return name
}

// TopLeftCell returns the A1 name of the first cell.
func (r Range) TopLeftCell() string { return r.Cell(0, 0) }

// BottomRightCell returns the A1 name of the last cell.
func (r Range) BottomRightCell() string { return r.Cell(r.Rows()-1, r.Cols()-1) }

// Ref returns the sheet-less reference, "B2" or "B2:D9".
func (r Range) Ref() string {
	if r.Single() {
		return r.TopLeftCell()
	}
	return r.TopLeftCell() + ":" + r.BottomRightCell()
}

// Address returns the sheet-qualified reference, quoting the sheet name when
// needed: 'My Data'!B2:D9.
func (r Range) Address() string {
	if r.Sheet == "" {
		return r.Ref()
	}
	return QuoteSheet(r.Sheet) + "!" + r.Ref()
}

// AbsRef returns the sheet-less reference with absolute markers, "$B$2:$D$9".
func (r Range) AbsRef() string {
	tl, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow, true)
	if r.Single() {
		return tl
	}
	br, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow, true)
	return tl + ":" + br
}

// Contains reports whether the cell at (col, row) lies in the range.
func (r Range) Contains(col, row int) bool {
	return col >= r.StartCol && col <= r.EndCol && row >= r.StartRow && row <= r.EndRow
}

func (r Range) String() string { return r.Address() }

// QuoteSheet quotes a sheet name for use in a reference when it contains
// anything other than letters, digits, '_' or '.'.
func QuoteSheet(name string) string {
	plain := name != ""
	for _, c := range name {
		if !(c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			plain = false
			break
		}
	}
	if plain && !(name[0] >= '0' && name[0] <= '9') {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ParseAddress parses an A1-style reference. Accepted forms include "B2",
// "b2:d9", "$B$2:$D$9", "Sheet1!B2", "'My Data'!B2:D9", whole columns "A:C"
// and whole rows "2:5". Whole-column and whole-row references span to the
// sheet limits; callers clamp them to the used area. A reference without a
// sheet takes defaultSheet.
func ParseAddress(addr, defaultSheet string) (Range, error) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return Range{}, fmt.Errorf("empty address")
	}
	sheetName := defaultSheet
	if i := strings.LastIndex(s, "!"); i >= 0 {
		sheetName = unquoteSheet(s[:i])
		s = s[i+1:]
		if sheetName == "" {
			return Range{}, fmt.Errorf("invalid address %q: empty sheet name", addr)
		}
	}
	s = strings.ToUpper(strings.ReplaceAll(s, "$", ""))
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return Range{}, fmt.Errorf("invalid address %q", addr)
	}
	if len(parts) == 1 {
		col, row, err := excelize.CellNameToCoordinates(parts[0])
		if err != nil {
			return Range{}, fmt.Errorf("invalid address %q: %w", addr, err)
		}
		return Range{Sheet: sheetName, StartCol: col, StartRow: row, EndCol: col, EndRow: row}, nil
	}

	c1, r1, err := parseEndpoint(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	c2, r2, err := parseEndpoint(parts[1])
	if err != nil {
		return Range{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	// Whole columns leave rows unset; whole rows leave columns unset.
	if (r1 == 0) != (r2 == 0) || (c1 == 0) != (c2 == 0) {
		return Range{}, fmt.Errorf("invalid address %q: mixed reference styles", addr)
	}
	if r1 == 0 {
		r1, r2 = 1, excelize.TotalRows
	}
	if c1 == 0 {
		c1, c2 = 1, excelize.MaxColumns
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	return Range{Sheet: sheetName, StartCol: c1, StartRow: r1, EndCol: c2, EndRow: r2}, nil
}

// parseEndpoint parses "B2", "B" or "2". Missing parts come back as 0.
func parseEndpoint(s string) (col, row int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty reference")
	}
	if n, convErr := strconv.Atoi(s); convErr == nil {
		if n < 1 || n > excelize.TotalRows {
			return 0, 0, fmt.Errorf("row %d out of range", n)
		}
		return 0, n, nil
	}
	isLetters := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			isLetters = false
			break
		}
	}
	if isLetters {
		col, err = excelize.ColumnNameToNumber(s)
		return col, 0, err
	}
	return excelize.CellNameToCoordinates(s)
}

func unquoteSheet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
