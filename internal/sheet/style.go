package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// numberFormats maps friendly names to format codes. Anything else is used
// as a custom format code.
var numberFormats = map[string]string{
	"currency":   "$#,##0.00",
	"usd":        "$#,##0.00",
	"accounting": `_($* #,##0.00_);_($* (#,##0.00);_($* "-"??_);_(@_)`,
	"percent":    "0.00%",
	"percentage": "0.00%",
	"number":     "#,##0.00",
	"integer":    "0",
	"date":       "yyyy-mm-dd",
	"shortdate":  "m/d/yyyy",
	"time":       "h:mm:ss",
	"text":       "@",
}

var horizontalAlignments = map[string]string{
	"general":               "general",
	"left":                  "left",
	"center":                "center",
	"centre":                "center",
	"right":                 "right",
	"fill":                  "fill",
	"justify":               "justify",
	"distributed":           "distributed",
	"centeracrossselection": "centerContinuous",
	"centercontinuous":      "centerContinuous",
}

// NumberFormatCode returns the format code for a friendly name or code.
func NumberFormatCode(name string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	if code, ok := numberFormats[key]; ok {
		return code
	}
	return strings.TrimSpace(name)
}

func patchStyle(st *excelize.Style, p StylePatch) error {
	if p.Fill != "" {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{p.Fill}}
	}
	if p.FontColor != "" || p.Bold != nil || p.Italic != nil || p.FontSize > 0 {
		if st.Font == nil {
			st.Font = &excelize.Font{}
		}
		if p.FontColor != "" {
			st.Font.Color = p.FontColor
			st.Font.ColorTheme = nil
			st.Font.ColorIndexed = 0
		}
		if p.Bold != nil {
			st.Font.Bold = *p.Bold
		}
		if p.Italic != nil {
			st.Font.Italic = *p.Italic
		}
		if p.FontSize > 0 {
			if p.FontSize < excelize.MinFontSize || p.FontSize > excelize.MaxFontSize {
				return fmt.Errorf("font size %g out of range", p.FontSize)
			}
			st.Font.Size = p.FontSize
		}
	}
	if p.NumberFormat != "" {
		if strings.EqualFold(strings.TrimSpace(p.NumberFormat), "general") {
			st.NumFmt, st.CustomNumFmt = 0, nil
		} else {
			code := NumberFormatCode(p.NumberFormat)
			st.CustomNumFmt = &code
		}
	}
	if p.Horizontal != "" || p.WrapText != nil {
		if st.Alignment == nil {
			st.Alignment = &excelize.Alignment{}
		}
		if p.Horizontal != "" {
			h, ok := horizontalAlignments[strings.ToLower(strings.TrimSpace(p.Horizontal))]
			if !ok {
				return fmt.Errorf("unsupported horizontal alignment %q", p.Horizontal)
			}
			st.Alignment.Horizontal = h
		}
		if p.WrapText != nil {
			st.Alignment.WrapText = *p.WrapText
		}
	}
	if p.Border {
		st.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return nil
}

// conditionalStyle builds the differential format for a conditional rule.
func (w *Workbook) conditionalStyle(p StylePatch) (*int, error) {
	if p.Empty() {
		return nil, nil
	}
	st := &excelize.Style{}
	if err := patchStyle(st, p); err != nil {
		return nil, err
	}
	id, err := w.f.NewConditionalStyle(st)
	if err != nil {
		return nil, fmt.Errorf("could not create conditional style: %w", err)
	}
	return &id, nil
}
