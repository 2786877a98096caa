package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/sheet"
)

// layoutCell is one cell of a stamped template. Row and Col are offsets
// within its section. Formula may reference named cells as {name}.
type layoutCell struct {
	Row, Col int
	Span     int
	Name     string
	Value    interface{}
	Formula  string
	Style    sheet.StylePatch
}

// section is a block of rows. Sections stack vertically.
type section struct {
	Height int
	Cells  []layoutCell
}

// layout is a declarative template: sections stacked from one anchor with a
// fixed gap between them.
type layout struct {
	Gap      int
	Sections []section
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// placed is a layout cell with its offset from the anchor.
type placed struct {
	layoutCell
	absRow int
}

// place computes every cell's offset from the anchor and the table of named
// cells.
func (l layout) place() ([]placed, map[string][2]int, int, error) {
	var cells []placed
	names := make(map[string][2]int)
	row := 0
	for i, s := range l.Sections {
		if i > 0 {
			row += l.Gap
		}
		for _, c := range s.Cells {
			if c.Row >= s.Height {
				return nil, nil, 0, fmt.Errorf("cell %q at row %d overflows section of height %d", c.Name, c.Row, s.Height)
			}
			p := placed{layoutCell: c, absRow: row + c.Row}
			if c.Name != "" {
				if _, dup := names[c.Name]; dup {
					return nil, nil, 0, fmt.Errorf("duplicate layout cell name %q", c.Name)
				}
				names[c.Name] = [2]int{p.absRow, c.Col}
			}
			cells = append(cells, p)
		}
		row += s.Height
	}
	return cells, names, row, nil
}

// Stamp writes the layout with its top-left at anchor. Placeholders are
// checked before anything is written.
func (l layout) Stamp(host sheet.Host, anchor sheet.Range) (sheet.Range, error) {
	cells, names, height, err := l.place()
	if err != nil {
		return sheet.Range{}, err
	}

	width := 1
	formulas := make([]string, len(cells))
	for i, c := range cells {
		span := max(c.Span, 1)
		width = max(width, c.Col+span)
		if c.Formula == "" {
			continue
		}
		var missing []string
		formulas[i] = placeholder.ReplaceAllStringFunc(c.Formula, func(m string) string {
			name := m[1 : len(m)-1]
			pos, ok := names[name]
			if !ok {
				missing = append(missing, name)
				return m
			}
			return anchor.Cell(pos[0], pos[1])
		})
		if len(missing) > 0 {
			return sheet.Range{}, fmt.Errorf("formula %q references unknown cells: %s", c.Formula, strings.Join(missing, ", "))
		}
	}

	for i, c := range cells {
		at := anchor.TopLeft().Offset(c.absRow, c.Col)
		var v interface{} = c.Value
		if formulas[i] != "" {
			v = sheet.Formula(formulas[i])
		}
		if v != nil {
			if err := host.SetValues(at, [][]interface{}{{v}}); err != nil {
				return sheet.Range{}, err
			}
		}
		target := at
		if c.Span > 1 {
			target = at.Resize(1, c.Span)
			if err := host.Merge(target); err != nil {
				return sheet.Range{}, err
			}
		}
		if !c.Style.Empty() {
			if err := host.ApplyStyle(target, c.Style); err != nil {
				return sheet.Range{}, err
			}
		}
	}
	return anchor.TopLeft().Resize(height, width), nil
}

var defaultMonths = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var defaultReportFields = []string{"Prepared By", "Period", "Department"}

const amountFormat = "#,##0.00"

func boolPtr(b bool) *bool { return &b }

// reportLayout builds the monthly report template: a merged title, labelled
// input fields, one item grid per month with its own subtotal, a payments
// block, and grand total and balance formulas over the emitted subtotals.
func (b *batchRun) reportLayout(v action.GenerateReport) (layout, error) {
	title := strings.TrimSpace(v.Title)
	if title == "" {
		title = "Monthly Report"
	}
	fields := v.Fields
	if len(fields) == 0 {
		fields = defaultReportFields
	}
	months := v.Months
	if len(months) == 0 {
		months = defaultMonths
	}
	items := v.Items
	if len(items) == 0 {
		items = []string{"Item 1", "Item 2", "Item 3", "Item 4", "Item 5"}
	}
	payments := v.Payments
	if payments <= 0 {
		payments = 3
	}

	headerFill, err := b.color("header")
	if err != nil {
		return layout{}, err
	}
	white, err := b.color("white")
	if err != nil {
		return layout{}, err
	}
	subFill, err := b.color("lightgray")
	if err != nil {
		return layout{}, err
	}
	bold := sheet.StylePatch{Bold: boolPtr(true)}
	banner := sheet.StylePatch{Bold: boolPtr(true), Fill: headerFill, FontColor: white, Horizontal: "center"}
	amount := sheet.StylePatch{NumberFormat: amountFormat, Border: true}
	total := sheet.StylePatch{Bold: boolPtr(true), Fill: subFill, NumberFormat: amountFormat, Border: true}

	l := layout{Gap: 1}
	l.Sections = append(l.Sections, section{Height: 1, Cells: []layoutCell{{
		Span: 4, Value: title,
		Style: sheet.StylePatch{Bold: boolPtr(true), FontSize: 14, Horizontal: "center"},
	}}})

	fs := section{Height: len(fields)}
	for i, f := range fields {
		fs.Cells = append(fs.Cells,
			layoutCell{Row: i, Value: f + ":", Style: bold},
			layoutCell{Row: i, Col: 1, Span: 3, Style: sheet.StylePatch{Border: true}},
		)
	}
	l.Sections = append(l.Sections, fs)

	subtotals := make([]string, 0, len(months))
	for m, month := range months {
		s := section{Height: len(items) + 3}
		s.Cells = append(s.Cells,
			layoutCell{Span: 2, Value: month, Style: banner},
			layoutCell{Row: 1, Value: "Item", Style: bold},
			layoutCell{Row: 1, Col: 1, Value: "Amount", Style: bold},
		)
		first := fmt.Sprintf("m%d.first", m)
		last := fmt.Sprintf("m%d.last", m)
		for i, item := range items {
			c := layoutCell{Row: 2 + i, Col: 1, Style: amount}
			switch {
			case i == 0:
				c.Name = first
			case i == len(items)-1:
				c.Name = last
			}
			s.Cells = append(s.Cells, layoutCell{Row: 2 + i, Value: item}, c)
		}
		span := "{" + first + "}"
		if len(items) > 1 {
			span += ":{" + last + "}"
		}
		sub := fmt.Sprintf("m%d.subtotal", m)
		s.Cells = append(s.Cells,
			layoutCell{Row: len(items) + 2, Value: "Subtotal", Style: bold},
			layoutCell{Row: len(items) + 2, Col: 1, Name: sub, Formula: "SUM(" + span + ")", Style: total},
		)
		subtotals = append(subtotals, "{"+sub+"}")
		l.Sections = append(l.Sections, s)
	}

	ps := section{Height: payments + 2}
	ps.Cells = append(ps.Cells, layoutCell{Span: 2, Value: "Payments", Style: banner})
	for i := 0; i < payments; i++ {
		c := layoutCell{Row: 1 + i, Col: 1, Style: amount}
		if i == 0 {
			c.Name = "pay.first"
		}
		if i > 0 && i == payments-1 {
			c.Name = "pay.last"
		}
		ps.Cells = append(ps.Cells, layoutCell{Row: 1 + i, Value: fmt.Sprintf("Payment %d", i+1)}, c)
	}
	payRange := "{pay.first}"
	if payments > 1 {
		payRange = "{pay.first}:{pay.last}"
	}
	ps.Cells = append(ps.Cells,
		layoutCell{Row: payments + 1, Value: "Total Payments", Style: bold},
		layoutCell{Row: payments + 1, Col: 1, Name: "pay.total", Formula: "SUM(" + payRange + ")", Style: total},
	)
	l.Sections = append(l.Sections, ps)

	l.Sections = append(l.Sections, section{Height: 2, Cells: []layoutCell{
		{Value: "Grand Total", Style: bold},
		{Col: 1, Name: "grand", Formula: strings.Join(subtotals, "+"), Style: total},
		{Row: 1, Value: "Balance", Style: bold},
		{Row: 1, Col: 1, Formula: "{grand}-{pay.total}", Style: total},
	}})
	return l, nil
}

func (b *batchRun) generateReport(v action.GenerateReport, r sheet.Range) (string, error) {
	l, err := b.reportLayout(v)
	if err != nil {
		return "", err
	}
	out, err := l.Stamp(b.host, r)
	if err != nil {
		return "", err
	}
	return "report stamped at " + out.Ref(), nil
}
