package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Workbook is a Host backed by an excelize file. Mutations stay in memory
// until Sync, which saves to the bound path.
type Workbook struct {
	f         *excelize.File
	path      string
	selection *Range
	syncs     int
}

var _ Host = (*Workbook)(nil)

// Open loads an existing .xlsx file.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s — is this a valid .xlsx file? %w", path, err)
	}
	return &Workbook{f: f, path: path}, nil
}

// OpenReader loads a workbook from r. Sync does not persist it; use WriteTo.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not read Excel data: %w", err)
	}
	return &Workbook{f: f}, nil
}

// New returns an empty in-memory workbook with one sheet named "Sheet1".
func New() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

// Create returns an empty workbook that Sync saves to path.
func Create(path string) *Workbook {
	return &Workbook{f: excelize.NewFile(), path: path}
}

// Path returns the file Sync writes to, or "" for in-memory workbooks.
func (w *Workbook) Path() string { return w.path }

// File exposes the underlying excelize file.
func (w *Workbook) File() *excelize.File { return w.f }

// Syncs returns how many times Sync has run.
func (w *Workbook) Syncs() int { return w.syncs }

// Close releases the workbook's temporary files.
func (w *Workbook) Close() error { return w.f.Close() }

// WriteTo writes the workbook in .xlsx form.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.f.WriteTo(out)
}

// Bytes returns the workbook in .xlsx form.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// SetActiveSheet makes name the sheet unqualified addresses refer to.
func (w *Workbook) SetActiveSheet(name string) error {
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx == -1 {
		return fmt.Errorf("sheet %q not found — available sheets: %v", name, w.f.GetSheetList())
	}
	w.f.SetActiveSheet(idx)
	return nil
}

// SetSelection records the user's selection. An address with a sheet also
// activates that sheet.
func (w *Workbook) SetSelection(address string) error {
	active, err := w.ActiveSheet()
	if err != nil {
		return err
	}
	r, err := ParseAddress(address, active)
	if err != nil {
		return err
	}
	if r.Sheet != active {
		if err := w.SetActiveSheet(r.Sheet); err != nil {
			return err
		}
	}
	w.selection = &r
	return nil
}

// ActiveSheet returns the name of the active sheet.
func (w *Workbook) ActiveSheet() (string, error) {
	name := w.f.GetSheetName(w.f.GetActiveSheetIndex())
	if name == "" {
		return "", errors.New("workbook has no active sheet")
	}
	return name, nil
}

// Selection returns the recorded selection, falling back to the selection
// saved in the active sheet's view.
func (w *Workbook) Selection() (Range, error) {
	if w.selection != nil {
		return *w.selection, nil
	}
	active, err := w.ActiveSheet()
	if err != nil {
		return Range{}, err
	}
	panes, err := w.f.GetPanes(active)
	if err != nil {
		return Range{}, err
	}
	for _, s := range panes.Selection {
		fields := strings.Fields(s.SQRef)
		if len(fields) == 0 {
			continue
		}
		if r, err := ParseAddress(fields[0], active); err == nil {
			return r, nil
		}
	}
	return Range{}, ErrNoSelection
}

// SelectionAddress returns the selection as a sheet-qualified address.
func (w *Workbook) SelectionAddress() (string, error) {
	r, err := w.Selection()
	if err != nil {
		return "", err
	}
	return r.Address(), nil
}

// Resolve parses address against the active sheet.
func (w *Workbook) Resolve(address string) (Range, error) {
	active, err := w.ActiveSheet()
	if err != nil {
		return Range{}, err
	}
	r, err := ParseAddress(address, active)
	if err != nil {
		return Range{}, err
	}
	if err := w.ensureSheet(r.Sheet); err != nil {
		return Range{}, err
	}
	if r.EndRow == excelize.TotalRows || r.EndCol == excelize.MaxColumns {
		rows, err := w.f.GetRows(r.Sheet)
		if err != nil {
			return Range{}, err
		}
		if r.EndRow == excelize.TotalRows {
			r.EndRow = max(len(rows), r.StartRow)
		}
		if r.EndCol == excelize.MaxColumns {
			width := 1
			for _, row := range rows {
				width = max(width, len(row))
			}
			r.EndCol = max(width, r.StartCol)
		}
	}
	return r, nil
}

func (w *Workbook) ensureSheet(name string) error {
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx == -1 {
		return fmt.Errorf("sheet %q not found — available sheets: %v", name, w.f.GetSheetList())
	}
	return nil
}

// Values reads the range cell by cell.
func (w *Workbook) Values(r Range) ([][]interface{}, error) {
	out := make([][]interface{}, r.Rows())
	for i := range out {
		row := make([]interface{}, r.Cols())
		for j := range row {
			v, err := w.cellValue(r.Sheet, r.Cell(i, j))
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

func (w *Workbook) cellValue(sheetName, cell string) (interface{}, error) {
	formula, err := w.f.GetCellFormula(sheetName, cell)
	if err != nil {
		return nil, err
	}
	if formula != "" {
		return Formula(formula), nil
	}
	typ, err := w.f.GetCellType(sheetName, cell)
	if err != nil {
		return nil, err
	}
	raw, err := w.f.GetCellValue(sheetName, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if raw == "" {
			return nil, nil
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n, nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// SetValues writes values cell by cell. Formula values become formulas;
// everything else replaces any existing formula.
func (w *Workbook) SetValues(r Range, values [][]interface{}) error {
	if len(values) != r.Rows() {
		return fmt.Errorf("value matrix has %d rows, range %s has %d", len(values), r.Ref(), r.Rows())
	}
	for i, row := range values {
		if len(row) != r.Cols() {
			return fmt.Errorf("value row %d has %d columns, range %s has %d", i, len(row), r.Ref(), r.Cols())
		}
		for j, v := range row {
			if err := w.setCell(r.Sheet, r.Cell(i, j), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workbook) setCell(sheetName, cell string, v interface{}) error {
	if f, ok := v.(Formula); ok {
		if err := w.f.SetCellFormula(sheetName, cell, strings.TrimPrefix(string(f), "=")); err != nil {
			return fmt.Errorf("could not set formula in %s: %w", cell, err)
		}
		return nil
	}
	if err := w.dropFormula(sheetName, cell); err != nil {
		return err
	}
	if err := w.f.SetCellValue(sheetName, cell, v); err != nil {
		return fmt.Errorf("could not set cell %s: %w", cell, err)
	}
	return nil
}

func (w *Workbook) dropFormula(sheetName, cell string) error {
	existing, err := w.f.GetCellFormula(sheetName, cell)
	if err != nil || existing == "" {
		return err
	}
	return w.f.SetCellFormula(sheetName, cell, "")
}

// Clear removes values and formulas, leaving styles in place.
func (w *Workbook) Clear(r Range) error {
	for i := 0; i < r.Rows(); i++ {
		for j := 0; j < r.Cols(); j++ {
			if err := w.setCell(r.Sheet, r.Cell(i, j), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyStyle merges p into every cell's current style. Cells sharing a style
// share the derived style too.
func (w *Workbook) ApplyStyle(r Range, p StylePatch) error {
	if p.Empty() {
		return nil
	}
	derived := map[int]int{}
	for i := 0; i < r.Rows(); i++ {
		for j := 0; j < r.Cols(); j++ {
			cell := r.Cell(i, j)
			current, err := w.f.GetCellStyle(r.Sheet, cell)
			if err != nil {
				return err
			}
			id, ok := derived[current]
			if !ok {
				st, err := w.f.GetStyle(current)
				if err != nil {
					return err
				}
				if err := patchStyle(st, p); err != nil {
					return err
				}
				if id, err = w.f.NewStyle(st); err != nil {
					return fmt.Errorf("could not create style: %w", err)
				}
				derived[current] = id
			}
			if err := w.f.SetCellStyle(r.Sheet, cell, cell, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetColumnWidth sets every column the range touches to width.
func (w *Workbook) SetColumnWidth(r Range, width float64) error {
	start, _ := excelize.ColumnNumberToName(r.StartCol)
	end, _ := excelize.ColumnNumberToName(r.EndCol)
	return w.f.SetColWidth(r.Sheet, start, end, width)
}

// AutoFitColumns sizes each column the range touches to its longest
// rendered value across the whole column.
func (w *Workbook) AutoFitColumns(r Range) error {
	rows, err := w.f.GetRows(r.Sheet)
	if err != nil {
		return err
	}
	for col := r.StartCol; col <= r.EndCol; col++ {
		longest := 0
		for _, row := range rows {
			if col-1 < len(row) {
				longest = max(longest, utf8.RuneCountInString(row[col-1]))
			}
		}
		width := float64(longest)*1.1 + 2
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if width > excelize.MaxColumnWidth {
			width = excelize.MaxColumnWidth
		}
		name, _ := excelize.ColumnNumberToName(col)
		if err := w.f.SetColWidth(r.Sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

const minColumnWidth = 8.43

// Merge merges the range into one cell. A single cell is a no-op.
func (w *Workbook) Merge(r Range) error {
	if r.Single() {
		return nil
	}
	return w.f.MergeCell(r.Sheet, r.TopLeftCell(), r.BottomRightCell())
}

// AddTable promotes r to a structured table.
func (w *Workbook) AddTable(r Range, spec TableSpec) error {
	style := spec.Style
	if style == "" {
		style = "TableStyleMedium2"
	}
	t := &excelize.Table{
		Range:     r.Ref(),
		Name:      tableName(spec.Name),
		StyleName: style,
	}
	if !spec.HasHeaders {
		// Headerless data gets a generated header row inserted above it.
		if err := w.f.InsertRows(r.Sheet, r.StartRow, 1); err != nil {
			return err
		}
		header := make([]interface{}, r.Cols())
		for i := range header {
			header[i] = "Column" + strconv.Itoa(i+1)
		}
		if err := w.SetValues(r.Row(0), [][]interface{}{header}); err != nil {
			return err
		}
		r.EndRow++
		t.Range = r.Ref()
	}
	if err := w.f.AddTable(r.Sheet, t); err != nil {
		return fmt.Errorf("could not create table on %s: %w", r.Address(), err)
	}
	return nil
}

// tableName turns a free-form name into a valid defined name.
func tableName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var sb strings.Builder
	for i, c := range name {
		switch {
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			sb.WriteRune(c)
		case c >= '0' && c <= '9' || c == '.':
			if i == 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(c)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// AddChart builds series from data and places the chart beside it.
func (w *Workbook) AddChart(data Range, spec ChartSpec) error {
	chart := &excelize.Chart{
		Type:   chartType(spec.Kind),
		Series: chartSeries(data, spec.SeriesByRows),
		Legend: excelize.ChartLegend{Position: "bottom"},
	}
	if spec.Title != "" {
		chart.Title = []excelize.RichTextRun{{Text: spec.Title}}
	}
	anchor := spec.Anchor
	if anchor == "" {
		anchor, _ = excelize.CoordinatesToCellName(data.EndCol+2, data.StartRow)
	}
	if err := w.f.AddChart(data.Sheet, anchor, chart); err != nil {
		return fmt.Errorf("could not add chart at %s: %w", anchor, err)
	}
	return nil
}

func chartType(k ChartKind) excelize.ChartType {
	switch k {
	case ChartLine:
		return excelize.Line
	case ChartPie:
		return excelize.Pie
	case ChartBarClustered:
		return excelize.Bar
	default:
		return excelize.Col
	}
}

// chartSeries splits data into series. With a header row and a label column
// present, the first row and column name the series and categories.
func chartSeries(data Range, byRows bool) []excelize.ChartSeries {
	ref := func(r Range) string { return QuoteSheet(data.Sheet) + "!" + r.AbsRef() }
	if data.Rows() < 2 || data.Cols() < 2 {
		return []excelize.ChartSeries{{Values: ref(data)}}
	}
	body := Range{Sheet: data.Sheet, StartCol: data.StartCol + 1, StartRow: data.StartRow + 1, EndCol: data.EndCol, EndRow: data.EndRow}
	var series []excelize.ChartSeries
	if byRows {
		cats := Range{Sheet: data.Sheet, StartCol: body.StartCol, StartRow: data.StartRow, EndCol: body.EndCol, EndRow: data.StartRow}
		for row := body.StartRow; row <= body.EndRow; row++ {
			name := Range{Sheet: data.Sheet, StartCol: data.StartCol, StartRow: row, EndCol: data.StartCol, EndRow: row}
			vals := Range{Sheet: data.Sheet, StartCol: body.StartCol, StartRow: row, EndCol: body.EndCol, EndRow: row}
			series = append(series, excelize.ChartSeries{Name: ref(name), Categories: ref(cats), Values: ref(vals)})
		}
		return series
	}
	cats := Range{Sheet: data.Sheet, StartCol: data.StartCol, StartRow: body.StartRow, EndCol: data.StartCol, EndRow: body.EndRow}
	for col := body.StartCol; col <= body.EndCol; col++ {
		name := Range{Sheet: data.Sheet, StartCol: col, StartRow: data.StartRow, EndCol: col, EndRow: data.StartRow}
		vals := Range{Sheet: data.Sheet, StartCol: col, StartRow: body.StartRow, EndCol: col, EndRow: body.EndRow}
		series = append(series, excelize.ChartSeries{Name: ref(name), Categories: ref(cats), Values: ref(vals)})
	}
	return series
}

// AddWorksheet appends a sheet without activating it.
func (w *Workbook) AddWorksheet(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = w.nextSheetName("Sheet")
	}
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return "", err
	}
	if idx != -1 {
		return "", fmt.Errorf("sheet %q already exists", name)
	}
	if _, err := w.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("could not create sheet %q: %w", name, err)
	}
	return name, nil
}

func (w *Workbook) nextSheetName(prefix string) string {
	taken := map[string]bool{}
	for _, s := range w.f.GetSheetList() {
		taken[strings.ToLower(s)] = true
	}
	for n := 1; ; n++ {
		name := prefix + strconv.Itoa(n)
		if !taken[strings.ToLower(name)] {
			return name
		}
	}
}

// Freeze freezes rows and cols leading rows and columns of sheetName.
func (w *Workbook) Freeze(sheetName string, rows, cols int) error {
	if rows < 0 || cols < 0 {
		return fmt.Errorf("cannot freeze a negative number of rows or columns")
	}
	if err := w.ensureSheet(sheetName); err != nil {
		return err
	}
	if rows == 0 && cols == 0 {
		return w.f.SetPanes(sheetName, &excelize.Panes{})
	}
	pane := "bottomRight"
	switch {
	case cols == 0:
		pane = "bottomLeft"
	case rows == 0:
		pane = "topRight"
	}
	topLeft, err := excelize.CoordinatesToCellName(cols+1, rows+1)
	if err != nil {
		return err
	}
	return w.f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      cols,
		YSplit:      rows,
		TopLeftCell: topLeft,
		ActivePane:  pane,
		Selection:   []excelize.Selection{{SQRef: topLeft, ActiveCell: topLeft, Pane: pane}},
	})
}

// Sync saves the workbook to its path. In-memory workbooks only count the call.
func (w *Workbook) Sync() error {
	w.syncs++
	if w.path == "" {
		return nil
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("could not save %s: %w", w.path, err)
	}
	return nil
}
