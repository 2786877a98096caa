package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Discriminator fields, in precedence order. "type" only counts when it names
// a known kind, since charts and freezes reuse it for their own sub-type.
var discriminators = []string{"kind", "action", "type"}

// DecodeAll decodes each raw action. It never fails: unrecognised kinds
// become Unknown and undecodable payloads become Invalid.
func DecodeAll(raws []json.RawMessage) []Action {
	out := make([]Action, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Decode(raw))
	}
	return out
}

// Decode turns one loosely-typed action object into a typed Action.
func Decode(raw json.RawMessage) Action {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Unknown{Name: "", Raw: raw}
	}
	kind, name := discriminate(fields)
	if kind == "" {
		return Unknown{Name: name, Raw: raw}
	}
	a, err := decodeKind(kind, raw, fields)
	if err != nil {
		return Invalid{Of: kind, Err: err, Raw: raw}
	}
	return a
}

func discriminate(fields map[string]json.RawMessage) (Kind, string) {
	first := ""
	for _, key := range discriminators {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) != nil || s == "" {
			continue
		}
		if k, ok := ParseKind(s); ok {
			return k, s
		}
		if first == "" && key != "type" {
			first = s
		}
	}
	if first == "" {
		if v, ok := fields["type"]; ok {
			_ = json.Unmarshal(v, &first)
		}
	}
	return "", first
}

func decodeKind(kind Kind, raw json.RawMessage, fields map[string]json.RawMessage) (Action, error) {
	var b Anchor
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.Address == "" {
		b.Address = firstString(fields, "range", "target", "cell")
	}

	switch kind {
	case KindEditCell:
		var w struct {
			Values    interface{} `json:"values"`
			Value     interface{} `json:"value"`
			IsFormula bool        `json:"isFormula"`
			Formula   interface{} `json:"formula"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		v := w.Values
		if v == nil {
			v = w.Value
		}
		if v == nil && w.Formula != nil {
			v = w.Formula
			w.IsFormula = true
		}
		return EditCell{Anchor: b, Values: Matrix(v), IsFormula: w.IsFormula}, nil

	case KindFormatRange:
		src := raw
		if f, ok := fields["format"]; ok && !isNull(f) {
			src = f
		}
		var f Format
		if err := json.Unmarshal(src, &f); err != nil {
			return nil, err
		}
		return FormatRange{Anchor: b, Format: f}, nil

	case KindCreateTable:
		var w struct {
			HasHeaders *bool  `json:"hasHeaders"`
			Name       string `json:"name"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return CreateTable{Anchor: b, HasHeaders: boolOr(w.HasHeaders, true), Name: w.Name}, nil

	case KindCreateChart:
		var w struct {
			DataRange string `json:"dataRange"`
			ChartType string `json:"chartType"`
			Type      string `json:"type"`
			Title     string `json:"title"`
			SeriesBy  string `json:"seriesBy"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		ct := w.ChartType
		if ct == "" {
			if _, isKind := ParseKind(w.Type); !isKind {
				ct = w.Type
			}
		}
		return CreateChart{Anchor: b, DataRange: w.DataRange, ChartType: ct, Title: w.Title, SeriesBy: w.SeriesBy}, nil

	case KindAddWorksheet:
		var w struct {
			Name      string `json:"name"`
			SheetName string `json:"sheetName"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if w.Name == "" {
			w.Name = w.SheetName
		}
		return AddWorksheet{Anchor: b, Name: w.Name}, nil

	case KindFreezePanes:
		var w struct {
			Orientation string      `json:"orientation"`
			Type        string      `json:"type"`
			Count       interface{} `json:"count"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		o := w.Orientation
		if o == "" {
			if _, isKind := ParseKind(w.Type); !isKind {
				o = w.Type
			}
		}
		if o == "" {
			o = "Row"
		}
		n, err := intOr(w.Count, 1)
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		return FreezePanes{Anchor: b, Orientation: o, Count: n}, nil

	case KindCreatePivotTable:
		var w struct {
			Destination string      `json:"destination"`
			Name        string      `json:"name"`
			Rows        interface{} `json:"rows"`
			Columns     interface{} `json:"columns"`
			Values      interface{} `json:"values"`
			Summary     string      `json:"summary"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if b.Address == "" {
			b.Address = firstString(fields, "source", "sourceRange")
		}
		return CreatePivotTable{
			Anchor:      b,
			Destination: w.Destination,
			Name:        w.Name,
			Rows:        stringList(w.Rows),
			Columns:     stringList(w.Columns),
			Values:      stringList(w.Values),
			Summary:     w.Summary,
		}, nil

	case KindSortRange:
		var w struct {
			Column     interface{} `json:"column"`
			Key        interface{} `json:"key"`
			Ascending  *bool       `json:"ascending"`
			Order      string      `json:"order"`
			HasHeaders bool        `json:"hasHeaders"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		c := w.Column
		if c == nil {
			c = w.Key
		}
		col, err := intOr(c, 0)
		if err != nil {
			return nil, fmt.Errorf("column: %w", err)
		}
		asc := boolOr(w.Ascending, true)
		if w.Ascending == nil && strings.HasPrefix(strings.ToLower(w.Order), "desc") {
			asc = false
		}
		return SortRange{Anchor: b, Column: col, Ascending: asc, HasHeaders: w.HasHeaders}, nil

	case KindRemoveDuplicates:
		var w struct {
			Columns        []ColumnRef `json:"columns"`
			IncludesHeader *bool       `json:"includesHeader"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return RemoveDuplicates{Anchor: b, Columns: w.Columns, IncludesHeader: boolOr(w.IncludesHeader, true)}, nil

	case KindTrimWhitespace:
		return TrimWhitespace{Anchor: b}, nil

	case KindHighlightCells:
		var w struct {
			Condition string `json:"condition"`
			Color     string `json:"color"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return HighlightCells{Anchor: b, Condition: w.Condition, Color: w.Color}, nil

	case KindConditionalFormatting:
		var w struct {
			Rule      string      `json:"rule"`
			Condition string      `json:"condition"`
			Type      string      `json:"type"`
			Points    interface{} `json:"points"`
			Value     interface{} `json:"value"`
			Threshold interface{} `json:"threshold"`
			Text      interface{} `json:"text"`
			Color     string      `json:"color"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		rule := w.Rule
		if rule == "" {
			rule = w.Condition
		}
		if rule == "" {
			if _, isKind := ParseKind(w.Type); !isKind {
				rule = w.Type
			}
		}
		points, err := intOr(w.Points, 0)
		if err != nil {
			return nil, fmt.Errorf("points: %w", err)
		}
		value := scalarString(w.Value)
		if value == "" {
			value = scalarString(w.Threshold)
		}
		if value == "" {
			value = scalarString(w.Text)
		}
		return ConditionalFormatting{Anchor: b, Rule: rule, Points: points, Value: value, Color: w.Color}, nil

	case KindGenerateReport:
		var w struct {
			Title    string      `json:"title"`
			Fields   interface{} `json:"fields"`
			Months   interface{} `json:"months"`
			Items    interface{} `json:"items"`
			Payments interface{} `json:"payments"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		payments, err := intOr(w.Payments, 0)
		if err != nil {
			return nil, fmt.Errorf("payments: %w", err)
		}
		return GenerateReport{
			Anchor:   b,
			Title:    w.Title,
			Fields:   stringList(w.Fields),
			Months:   stringList(w.Months),
			Items:    stringList(w.Items),
			Payments: payments,
		}, nil

	case KindClearRange:
		return ClearRange{Anchor: b}, nil

	case KindMergeCells:
		var w struct {
			Across bool `json:"across"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return MergeCells{Anchor: b, Across: w.Across}, nil
	}
	return nil, fmt.Errorf("no decoder for %s", kind)
}

// Matrix normalises a value payload to a rectangular 2D array. A scalar
// becomes a 1x1 matrix, a flat list becomes a single row, and ragged rows are
// padded with nil. A nil payload yields nil.
func Matrix(v interface{}) [][]interface{} {
	if v == nil {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return [][]interface{}{{v}}
	}
	if len(list) == 0 {
		return nil
	}
	nested := false
	for _, item := range list {
		if _, ok := item.([]interface{}); ok {
			nested = true
			break
		}
	}
	if !nested {
		row := make([]interface{}, len(list))
		copy(row, list)
		return [][]interface{}{row}
	}

	rows := make([][]interface{}, 0, len(list))
	width := 0
	for _, item := range list {
		row, ok := item.([]interface{})
		if !ok {
			row = []interface{}{item}
		}
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	}
	for i, row := range rows {
		if len(row) < width {
			padded := make([]interface{}, width)
			copy(padded, row)
			rows[i] = padded
		}
	}
	return rows
}

// ColumnWidth is either an explicit width or auto-fit.
type ColumnWidth struct {
	Auto  bool
	Width float64
}

func (c ColumnWidth) MarshalJSON() ([]byte, error) {
	if c.Auto {
		return []byte(`"AutoFit"`), nil
	}
	return json.Marshal(c.Width)
}

func (c *ColumnWidth) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Width = n
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("column width must be a number or \"AutoFit\"")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "autofit", "auto", "auto-fit", "fit":
		c.Auto = true
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("column width %q is not a number", s)
	}
	c.Width = n
	return nil
}

// ColumnRef picks a key column by zero-based offset or by header name.
type ColumnRef struct {
	Index int
	Name  string
}

func (c ColumnRef) MarshalJSON() ([]byte, error) {
	if c.Name != "" {
		return json.Marshal(c.Name)
	}
	return json.Marshal(c.Index)
}

func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Index = int(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("column must be an index or a header name")
	}
	if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		c.Index = i
		return nil
	}
	c.Name = s
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(v interface{}, def int) (int, error) {
	switch n := v.(type) {
	case nil:
		return def, nil
	case float64:
		return int(n), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{scalarString(v)}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
