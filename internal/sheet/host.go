// Package sheet is the spreadsheet host the executor drives: range
// addressing, a capability interface, and an excelize-backed workbook.
package sheet

import "errors"

// ErrNoSelection is returned by Host.Selection when no selection is known.
var ErrNoSelection = errors.New("no selection available")

// Formula marks a cell value that is written as a formula. The text excludes
// the leading '='.
type Formula string

// Host is the capability set the executor needs from a live workbook.
// Mutations may be buffered until Sync.
type Host interface {
	// ActiveSheet returns the name of the sheet unqualified addresses refer to.
	ActiveSheet() (string, error)
	// Selection returns the user's current selection.
	Selection() (Range, error)
	// Resolve parses an address against the active sheet and checks that the
	// sheet exists. Whole-row and whole-column references are clamped to the
	// used area.
	Resolve(address string) (Range, error)

	// Values reads the range as strings, float64s, bools, Formulas or nil.
	Values(r Range) ([][]interface{}, error)
	// SetValues writes a matrix whose shape matches r.
	SetValues(r Range, values [][]interface{}) error
	// Clear removes values and formulas.
	Clear(r Range) error

	// ApplyStyle merges the patch into each cell's existing style.
	ApplyStyle(r Range, p StylePatch) error
	SetColumnWidth(r Range, width float64) error
	AutoFitColumns(r Range) error
	Merge(r Range) error

	AddTable(r Range, spec TableSpec) error
	AddChart(data Range, spec ChartSpec) error
	// AddWorksheet appends a sheet and returns its name. An empty name picks
	// the next free "SheetN".
	AddWorksheet(name string) (string, error)
	// Freeze freezes the given number of leading rows and columns.
	Freeze(sheet string, rows, cols int) error
	AddPivotTable(spec PivotSpec) error
	AddConditionalFormat(r Range, rule Rule) error

	// Sync flushes buffered mutations. It is the batch's single commit point.
	Sync() error
}

// StylePatch lists style properties to change. Zero values are left untouched.
type StylePatch struct {
	Fill         string
	FontColor    string
	Bold         *bool
	Italic       *bool
	FontSize     float64
	NumberFormat string
	Horizontal   string
	WrapText     *bool
	// Border draws a thin outline around every cell.
	Border bool
}

// Empty reports whether the patch changes nothing.
func (p StylePatch) Empty() bool {
	return p == StylePatch{}
}

// TableSpec configures a structured table.
type TableSpec struct {
	Name       string
	HasHeaders bool
	Style      string
}

// ChartKind is a host chart type.
type ChartKind int

const (
	ChartColumnClustered ChartKind = iota
	ChartLine
	ChartPie
	ChartBarClustered
)

func (k ChartKind) String() string {
	switch k {
	case ChartLine:
		return "Line"
	case ChartPie:
		return "Pie"
	case ChartBarClustered:
		return "BarClustered"
	default:
		return "ColumnClustered"
	}
}

// ChartSpec configures a chart. Series are taken from the first row or
// column of the data range as names and the remainder as values.
type ChartSpec struct {
	Kind         ChartKind
	Title        string
	SeriesByRows bool
	// Anchor is the top-left cell for the chart. Empty places it two columns
	// to the right of the data.
	Anchor string
}

// PivotSpec configures a pivot table. Field names are matched against the
// source header row case-insensitively.
type PivotSpec struct {
	Source Range
	// Destination is the top-left output cell. A zero Sheet creates a new sheet.
	Destination Range
	Name        string
	Rows        []string
	Columns     []string
	Values      []string
	// Summary is the aggregate for value fields: Sum, Count, Average, Max or Min.
	Summary string
}

// RuleType is a conditional-format rule family.
type RuleType int

const (
	RuleBlanks RuleType = iota
	RuleErrors
	RuleCell
	RuleColorScale2
	RuleColorScale3
)

// Rule is one conditional-format rule.
type Rule struct {
	Type RuleType
	// Operator and Value apply to RuleCell: "<", ">", "==" with a literal
	// operand. Text operands must be quoted by the caller.
	Operator string
	Value    string
	// MinColor, MidColor and MaxColor apply to color scales.
	MinColor string
	MidColor string
	MaxColor string
	// Style is the differential format applied when the rule matches.
	Style StylePatch
}
