// Package action defines the closed set of spreadsheet operations the planner
// may emit and decodes them from loosely-typed model output.
package action

import (
	"encoding/json"
	"strings"
)

// Kind names one spreadsheet operation.
type Kind string

const (
	KindEditCell              Kind = "editCell"
	KindFormatRange           Kind = "formatRange"
	KindCreateTable           Kind = "createTable"
	KindCreateChart           Kind = "createChart"
	KindAddWorksheet          Kind = "addWorksheet"
	KindFreezePanes           Kind = "freezePanes"
	KindCreatePivotTable      Kind = "createPivotTable"
	KindSortRange             Kind = "sortRange"
	KindRemoveDuplicates      Kind = "removeDuplicates"
	KindTrimWhitespace        Kind = "trimWhitespace"
	KindHighlightCells        Kind = "highlightCells"
	KindConditionalFormatting Kind = "conditionalFormatting"
	KindGenerateReport        Kind = "generateReport"
	KindClearRange            Kind = "clearRange"
	KindMergeCells            Kind = "mergeCells"
)

// Kinds lists every supported kind in schema order.
var Kinds = []Kind{
	KindEditCell, KindFormatRange, KindCreateTable, KindCreateChart,
	KindAddWorksheet, KindFreezePanes, KindCreatePivotTable, KindSortRange,
	KindRemoveDuplicates, KindTrimWhitespace, KindHighlightCells,
	KindConditionalFormatting, KindGenerateReport, KindClearRange, KindMergeCells,
}

var kindIndex = func() map[string]Kind {
	m := make(map[string]Kind, len(Kinds))
	for _, k := range Kinds {
		m[foldKind(string(k))] = k
	}
	return m
}()

func foldKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}

// ParseKind resolves a kind name case-insensitively, ignoring '_' and '-',
// so "highlight_cells" and "HighlightCells" both map to KindHighlightCells.
func ParseKind(s string) (Kind, bool) {
	k, ok := kindIndex[foldKind(s)]
	return k, ok
}

// Action is one typed spreadsheet mutation. The set of implementations is
// closed: only the variants in this package satisfy it.
type Action interface {
	// Kind returns the discriminator. Unknown and Invalid report the name
	// the model used.
	Kind() Kind
	// Target returns the explicit address, or "" to use the selection.
	Target() string
	isAction()
}

// Batch is the ordered output of one planning round.
type Batch struct {
	Actions []Action
	Message string
}

// MarshalJSON encodes the batch in the planner's wire shape.
func (b Batch) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(b.Actions))
	for _, a := range b.Actions {
		data, err := Marshal(a)
		if err != nil {
			return nil, err
		}
		raws = append(raws, data)
	}
	return json.Marshal(struct {
		Actions []json.RawMessage `json:"actions"`
		Message string            `json:"message,omitempty"`
	}{raws, b.Message})
}

// UnmarshalJSON decodes a batch; individual actions never fail the batch.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var wire struct {
		Actions []json.RawMessage `json:"actions"`
		Message string            `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Actions = DecodeAll(wire.Actions)
	b.Message = wire.Message
	return nil
}

// Marshal encodes a single action with its "kind" discriminator.
func Marshal(a Action) ([]byte, error) {
	switch v := a.(type) {
	case Unknown:
		return v.Raw, nil
	case Invalid:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(a.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// Kinds of the given actions, in order. Used for logs and audit entries.
func KindNames(actions []Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a.Kind())
	}
	return names
}

// Anchor carries the optional explicit address shared by every variant.
type Anchor struct {
	Address string `json:"address,omitempty"`
}

func (b Anchor) Target() string { return b.Address }
func (Anchor) isAction()        {}

// EditCell writes a scalar or matrix of values.
type EditCell struct {
	Anchor
	Values    [][]interface{} `json:"values,omitempty"`
	IsFormula bool            `json:"isFormula,omitempty"`
}

// FormatRange applies independently optional formatting.
type FormatRange struct {
	Anchor
	Format Format `json:"format"`
}

// Format holds formatting sub-properties. Zero values mean "leave untouched".
type Format struct {
	Fill                string       `json:"fill,omitempty"`
	FontColor           string       `json:"fontColor,omitempty"`
	Bold                *bool        `json:"bold,omitempty"`
	Italic              *bool        `json:"italic,omitempty"`
	FontSize            float64      `json:"fontSize,omitempty"`
	NumberFormat        string       `json:"numberFormat,omitempty"`
	HorizontalAlignment string       `json:"horizontalAlignment,omitempty"`
	ColumnWidth         *ColumnWidth `json:"columnWidth,omitempty"`
	WrapText            *bool        `json:"wrapText,omitempty"`
	Borders             *bool        `json:"borders,omitempty"`
}

// CreateTable promotes a range to a structured table.
type CreateTable struct {
	Anchor
	HasHeaders bool   `json:"hasHeaders"`
	Name       string `json:"name,omitempty"`
}

// CreateChart adds a chart over a data range.
type CreateChart struct {
	Anchor
	DataRange string `json:"dataRange,omitempty"`
	ChartType string `json:"chartType,omitempty"`
	Title     string `json:"title,omitempty"`
	SeriesBy  string `json:"seriesBy,omitempty"`
}

// AddWorksheet appends a sheet.
type AddWorksheet struct {
	Anchor
	Name string `json:"name,omitempty"`
}

// FreezePanes freezes leading rows or columns.
type FreezePanes struct {
	Anchor
	Orientation string `json:"orientation"`
	Count       int    `json:"count"`
}

// Columns reports whether columns, rather than rows, are frozen.
func (f FreezePanes) Columns() bool {
	return strings.EqualFold(f.Orientation, "column") || strings.EqualFold(f.Orientation, "columns")
}

// CreatePivotTable builds a pivot from the target (source) range.
type CreatePivotTable struct {
	Anchor
	Destination string   `json:"destination,omitempty"`
	Name        string   `json:"name,omitempty"`
	Rows        []string `json:"rows,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Values      []string `json:"values,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// SortRange sorts rows by a single key column.
type SortRange struct {
	Anchor
	Column     int  `json:"column"`
	Ascending  bool `json:"ascending"`
	HasHeaders bool `json:"hasHeaders,omitempty"`
}

// RemoveDuplicates dedupes rows on a set of key columns.
type RemoveDuplicates struct {
	Anchor
	Columns        []ColumnRef `json:"columns,omitempty"`
	IncludesHeader bool        `json:"includesHeader"`
}

// TrimWhitespace trims string cells in place.
type TrimWhitespace struct {
	Anchor
}

// HighlightCells installs a condition-keyed highlight rule.
type HighlightCells struct {
	Anchor
	Condition string `json:"condition"`
	Color     string `json:"color,omitempty"`
}

// ConditionalFormatting installs a color scale, threshold or text rule.
type ConditionalFormatting struct {
	Anchor
	Rule   string `json:"rule"`
	Points int    `json:"points,omitempty"`
	Value  string `json:"value,omitempty"`
	Color  string `json:"color,omitempty"`
}

// GenerateReport stamps a monthly report template at the target's top-left cell.
type GenerateReport struct {
	Anchor
	Title    string   `json:"title,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Months   []string `json:"months,omitempty"`
	Items    []string `json:"items,omitempty"`
	Payments int      `json:"payments,omitempty"`
}

// ClearRange clears values and formulas.
type ClearRange struct {
	Anchor
}

// MergeCells merges the target, or each of its rows when Across is set.
type MergeCells struct {
	Anchor
	Across bool `json:"across,omitempty"`
}

// Unknown is an action whose kind is not in the supported set.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (u Unknown) Kind() Kind     { return Kind(u.Name) }
func (u Unknown) Target() string { return "" }
func (Unknown) isAction()        {}

// Invalid is a known kind whose payload could not be decoded.
type Invalid struct {
	Of  Kind
	Err error
	Raw json.RawMessage
}

func (i Invalid) Kind() Kind     { return i.Of }
func (i Invalid) Target() string { return "" }
func (Invalid) isAction()        {}

func (EditCell) Kind() Kind              { return KindEditCell }
func (FormatRange) Kind() Kind           { return KindFormatRange }
func (CreateTable) Kind() Kind           { return KindCreateTable }
func (CreateChart) Kind() Kind           { return KindCreateChart }
func (AddWorksheet) Kind() Kind          { return KindAddWorksheet }
func (FreezePanes) Kind() Kind           { return KindFreezePanes }
func (CreatePivotTable) Kind() Kind      { return KindCreatePivotTable }
func (SortRange) Kind() Kind             { return KindSortRange }
func (RemoveDuplicates) Kind() Kind      { return KindRemoveDuplicates }
func (TrimWhitespace) Kind() Kind        { return KindTrimWhitespace }
func (HighlightCells) Kind() Kind        { return KindHighlightCells }
func (ConditionalFormatting) Kind() Kind { return KindConditionalFormatting }
func (GenerateReport) Kind() Kind        { return KindGenerateReport }
func (ClearRange) Kind() Kind            { return KindClearRange }
func (MergeCells) Kind() Kind            { return KindMergeCells }
