package sheet

import (
	"fmt"
	"strings"
)

// SheetData is a rendered copy of one worksheet.
type SheetData struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Snapshot renders every sheet, or only the named ones, as displayed text.
func (w *Workbook) Snapshot(names ...string) ([]SheetData, error) {
	if len(names) == 0 {
		names = w.f.GetSheetList()
	}
	out := make([]SheetData, 0, len(names))
	for _, name := range names {
		if err := w.ensureSheet(name); err != nil {
			return nil, err
		}
		rows, err := w.f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}
		out = append(out, SheetData{Name: name, Rows: rows})
	}
	return out, nil
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// ToCSV renders the sheet as CSV text.
func (s SheetData) ToCSV() string {
	var sb strings.Builder
	for _, row := range s.Rows {
		for j, cell := range row {
			if j > 0 {
				sb.WriteByte(',')
			}
			if strings.ContainsAny(cell, ",\"\n\r") {
				sb.WriteString(`"` + strings.ReplaceAll(cell, `"`, `""`) + `"`)
			} else {
				sb.WriteString(cell)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RowCount returns the number of rows with at least one non-empty cell.
func (s SheetData) RowCount() int {
	count := 0
	for _, row := range s.Rows {
		for _, cell := range row {
			if cell != "" {
				count++
				break
			}
		}
	}
	return count
}
