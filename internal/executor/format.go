package executor

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/sheet"
)

// Fixed palettes for color scales, low to high.
const (
	scaleLow  = "#F8696B"
	scaleMid  = "#FFEB84"
	scaleHigh = "#63BE7B"
)

func (b *batchRun) formatRange(v action.FormatRange, r sheet.Range) (string, error) {
	f := v.Format
	patch := sheet.StylePatch{
		Bold:         f.Bold,
		Italic:       f.Italic,
		FontSize:     f.FontSize,
		NumberFormat: f.NumberFormat,
		Horizontal:   f.HorizontalAlignment,
		WrapText:     f.WrapText,
		Border:       f.Borders != nil && *f.Borders,
	}
	var err error
	if f.Fill != "" {
		if patch.Fill, err = b.color(f.Fill); err != nil {
			return "", fmt.Errorf("fill: %w", err)
		}
	}
	if f.FontColor != "" {
		if patch.FontColor, err = b.color(f.FontColor); err != nil {
			return "", fmt.Errorf("font color: %w", err)
		}
	}

	var applied []string
	if !patch.Empty() {
		if err := b.host.ApplyStyle(r, patch); err != nil {
			return "", err
		}
		applied = append(applied, "style")
	}
	if cw := f.ColumnWidth; cw != nil {
		switch {
		case cw.Auto:
			if err := b.host.AutoFitColumns(r); err != nil {
				return "", err
			}
			applied = append(applied, "auto-fit columns")
		case cw.Width > 0:
			if err := b.host.SetColumnWidth(r, cw.Width); err != nil {
				return "", err
			}
			applied = append(applied, "column width")
		}
	}
	if len(applied) == 0 {
		return "skipped: no formatting given", nil
	}
	return "applied " + strings.Join(applied, ", "), nil
}

func chartKind(name string) sheet.ChartKind {
	switch strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)) {
	case "line", "linechart":
		return sheet.ChartLine
	case "pie", "piechart":
		return sheet.ChartPie
	case "bar", "barclustered", "clusteredbar", "barchart":
		return sheet.ChartBarClustered
	default:
		return sheet.ChartColumnClustered
	}
}

func (b *batchRun) createChart(v action.CreateChart, r sheet.Range) (string, error) {
	data := r
	if v.DataRange != "" {
		dr, err := b.host.Resolve(v.DataRange)
		if err != nil {
			b.e.logger.Warn("chart data range did not resolve, using target",
				zap.String("dataRange", v.DataRange),
				zap.Error(err))
		} else {
			data = dr
		}
	}
	spec := sheet.ChartSpec{
		Kind:         chartKind(v.ChartType),
		Title:        v.Title,
		SeriesByRows: strings.EqualFold(strings.TrimSpace(v.SeriesBy), "rows"),
	}
	if err := b.host.AddChart(data, spec); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s chart over %s", spec.Kind, data.Ref()), nil
}

func (b *batchRun) freezePanes(v action.FreezePanes, r sheet.Range) (string, error) {
	n := v.Count
	if n <= 0 {
		n = 1
	}
	if v.Columns() {
		if err := b.host.Freeze(r.Sheet, 0, n); err != nil {
			return "", err
		}
		return fmt.Sprintf("froze %d columns", n), nil
	}
	if err := b.host.Freeze(r.Sheet, n, 0); err != nil {
		return "", err
	}
	return fmt.Sprintf("froze %d rows", n), nil
}

func (b *batchRun) createPivotTable(v action.CreatePivotTable, r sheet.Range) (string, error) {
	spec := sheet.PivotSpec{
		Source:  r,
		Name:    v.Name,
		Rows:    v.Rows,
		Columns: v.Columns,
		Values:  v.Values,
		Summary: v.Summary,
	}
	where := "a new sheet"
	if d := strings.TrimSpace(v.Destination); d != "" {
		dst, err := b.host.Resolve(d)
		if err != nil {
			return "", fmt.Errorf("invalid pivot destination %q: %w", d, err)
		}
		spec.Destination = dst.TopLeft()
		where = spec.Destination.Address()
	}
	if err := b.host.AddPivotTable(spec); err != nil {
		return "", err
	}
	return "pivot table in " + where, nil
}

func ruleKey(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
}

// highlightCells installs a fill rule for blank or error cells. The
// non-empty condition is accepted but changes nothing.
func (b *batchRun) highlightCells(v action.HighlightCells, r sheet.Range) (string, error) {
	var rule sheet.Rule
	switch ruleKey(v.Condition) {
	case "empty", "blank", "blanks", "isempty":
		rule.Type = sheet.RuleBlanks
	case "error", "errors", "iserror":
		rule.Type = sheet.RuleErrors
	case "nonempty", "notempty", "noblanks", "notblank":
		b.e.logger.Warn("non-empty highlight condition is not supported",
			zap.String("range", r.Address()))
		return "non-empty is not supported; nothing changed", nil
	default:
		return "", fmt.Errorf("unsupported highlight condition %q", v.Condition)
	}

	name := v.Color
	if name == "" {
		name = "yellow"
	}
	fill, err := b.color(name)
	if err != nil {
		return "", err
	}
	rule.Style.Fill = fill
	if err := b.host.AddConditionalFormat(r, rule); err != nil {
		return "", err
	}
	return "highlight rule " + fill, nil
}

func (b *batchRun) conditionalFormatting(v action.ConditionalFormatting, r sheet.Range) (string, error) {
	key := ruleKey(v.Rule)
	switch {
	case strings.Contains(key, "colorscale") || key == "scale":
		rule := sheet.Rule{Type: sheet.RuleColorScale3, MinColor: scaleLow, MidColor: scaleMid, MaxColor: scaleHigh}
		if v.Points == 2 || strings.HasPrefix(key, "2") || strings.HasPrefix(key, "two") {
			rule = sheet.Rule{Type: sheet.RuleColorScale2, MinColor: scaleLow, MaxColor: scaleHigh}
		}
		if err := b.host.AddConditionalFormat(r, rule); err != nil {
			return "", err
		}
		if rule.Type == sheet.RuleColorScale2 {
			return "2-color scale", nil
		}
		return "3-color scale", nil

	case key == "lessthan" || key == "<" || key == "below" || key == "less",
		key == "greaterthan" || key == ">" || key == "above" || key == "greater":
		op, color := "<", "red"
		if key == "greaterthan" || key == ">" || key == "above" || key == "greater" {
			op, color = ">", "darkgreen"
		}
		value := strings.TrimSpace(v.Value)
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "", fmt.Errorf("threshold %q is not a number", v.Value)
		}
		if v.Color != "" {
			color = v.Color
		}
		font, err := b.color(color)
		if err != nil {
			return "", err
		}
		rule := sheet.Rule{Type: sheet.RuleCell, Operator: op, Value: value, Style: sheet.StylePatch{FontColor: font}}
		if err := b.host.AddConditionalFormat(r, rule); err != nil {
			return "", err
		}
		return fmt.Sprintf("font %s when %s %s", font, op, value), nil

	case key == "textequals" || key == "equals" || key == "text" || key == "equalto" || key == "==":
		if v.Value == "" {
			return "", fmt.Errorf("text rule needs a value")
		}
		color := "red"
		if v.Color != "" {
			color = v.Color
		}
		font, err := b.color(color)
		if err != nil {
			return "", err
		}
		operand := v.Value
		if _, err := strconv.ParseFloat(strings.TrimSpace(operand), 64); err != nil {
			operand = `"` + strings.ReplaceAll(operand, `"`, `""`) + `"`
		}
		bold := true
		rule := sheet.Rule{Type: sheet.RuleCell, Operator: "==", Value: operand, Style: sheet.StylePatch{Bold: &bold, FontColor: font}}
		if err := b.host.AddConditionalFormat(r, rule); err != nil {
			return "", err
		}
		return fmt.Sprintf("bold %s when equal to %s", font, operand), nil
	}
	return "", fmt.Errorf("unsupported conditional formatting rule %q", v.Rule)
}
