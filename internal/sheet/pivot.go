package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var pivotSummaries = map[string]string{
	"sum":     "Sum",
	"count":   "Count",
	"average": "Average",
	"avg":     "Average",
	"mean":    "Average",
	"max":     "Max",
	"min":     "Min",
	"product": "Product",
}

// AddPivotTable builds a pivot table. Without a destination sheet the pivot
// goes to a new sheet at A3.
func (w *Workbook) AddPivotTable(spec PivotSpec) error {
	src := spec.Source
	if src.Rows() < 2 {
		return fmt.Errorf("pivot source %s needs a header row and at least one data row", src.Address())
	}
	if len(spec.Rows)+len(spec.Columns)+len(spec.Values) == 0 {
		return fmt.Errorf("pivot table needs at least one row, column or value field")
	}
	fields, err := w.headerFields(src)
	if err != nil {
		return err
	}

	summary := "Sum"
	if spec.Summary != "" {
		s, ok := pivotSummaries[strings.ToLower(strings.TrimSpace(spec.Summary))]
		if !ok {
			return fmt.Errorf("unsupported pivot summary %q", spec.Summary)
		}
		summary = s
	}

	opts := &excelize.PivotTableOptions{
		DataRange:      src.Sheet + "!" + src.AbsRef(),
		Name:           tableName(spec.Name),
		RowGrandTotals: true,
		ColGrandTotals: true,
		ShowDrill:      true,
		ShowRowHeaders: true,
		ShowColHeaders: true,
		ShowLastColumn: true,
	}
	for _, name := range spec.Rows {
		f, err := lookupField(fields, name)
		if err != nil {
			return err
		}
		opts.Rows = append(opts.Rows, excelize.PivotTableField{Data: f, DefaultSubtotal: true})
	}
	for _, name := range spec.Columns {
		f, err := lookupField(fields, name)
		if err != nil {
			return err
		}
		opts.Columns = append(opts.Columns, excelize.PivotTableField{Data: f, DefaultSubtotal: true})
	}
	for _, name := range spec.Values {
		f, err := lookupField(fields, name)
		if err != nil {
			return err
		}
		opts.Data = append(opts.Data, excelize.PivotTableField{Data: f, Name: summary + " of " + f, Subtotal: summary})
	}

	dest := spec.Destination
	if dest.Sheet == "" {
		name, err := w.AddWorksheet(w.nextSheetName("Pivot"))
		if err != nil {
			return err
		}
		dest = Range{Sheet: name, StartCol: 1, StartRow: 3, EndCol: 1, EndRow: 3}
	} else if err := w.ensureSheet(dest.Sheet); err != nil {
		return err
	}
	width := max(2, len(opts.Rows)+max(1, len(opts.Data))*max(1, len(opts.Columns)))
	height := max(2, src.Rows()+2)
	out := dest.TopLeft().Resize(height, width)
	opts.PivotTableRange = out.Sheet + "!" + out.AbsRef()

	if err := w.f.AddPivotTable(opts); err != nil {
		return fmt.Errorf("could not create pivot table: %w", err)
	}
	return nil
}

// headerFields reads the first row of r as field names.
func (w *Workbook) headerFields(r Range) ([]string, error) {
	header, err := w.Values(r.Row(0))
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, r.Cols())
	for i, v := range header[0] {
		s := strings.TrimSpace(fmt.Sprint(valueOrEmpty(v)))
		if s == "" {
			return nil, fmt.Errorf("pivot source header %s is empty", r.Cell(0, i))
		}
		fields = append(fields, s)
	}
	return fields, nil
}

func lookupField(fields []string, name string) (string, error) {
	want := strings.TrimSpace(name)
	for _, f := range fields {
		if strings.EqualFold(f, want) {
			return f, nil
		}
	}
	return "", fmt.Errorf("pivot field %q not found — available fields: %v", name, fields)
}

func valueOrEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}

// AddConditionalFormat installs rule on r.
func (w *Workbook) AddConditionalFormat(r Range, rule Rule) error {
	var opt excelize.ConditionalFormatOptions
	switch rule.Type {
	case RuleBlanks:
		opt.Type = "blanks"
	case RuleErrors:
		opt.Type = "errors"
	case RuleCell:
		if rule.Operator == "" || rule.Value == "" {
			return fmt.Errorf("cell rule needs an operator and a value")
		}
		opt.Type, opt.Criteria, opt.Value = "cell", rule.Operator, rule.Value
	case RuleColorScale2:
		opt = excelize.ConditionalFormatOptions{
			Type: "2_color_scale", Criteria: "=",
			MinType: "min", MaxType: "max",
			MinColor: rule.MinColor, MaxColor: rule.MaxColor,
		}
	case RuleColorScale3:
		opt = excelize.ConditionalFormatOptions{
			Type: "3_color_scale", Criteria: "=",
			MinType: "min", MidType: "percentile", MaxType: "max",
			MidValue: "50",
			MinColor: rule.MinColor, MidColor: rule.MidColor, MaxColor: rule.MaxColor,
		}
	default:
		return fmt.Errorf("unsupported conditional rule type %d", rule.Type)
	}
	if rule.Type != RuleColorScale2 && rule.Type != RuleColorScale3 {
		format, err := w.conditionalStyle(rule.Style)
		if err != nil {
			return err
		}
		opt.Format = format
	}
	if err := w.f.SetConditionalFormat(r.Sheet, r.Ref(), []excelize.ConditionalFormatOptions{opt}); err != nil {
		return fmt.Errorf("could not add conditional format to %s: %w", r.Address(), err)
	}
	return nil
}
