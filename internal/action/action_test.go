package action

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"editCell", KindEditCell, true},
		{"EditCell", KindEditCell, true},
		{"highlight_cells", KindHighlightCells, true},
		{"create-pivot-table", KindCreatePivotTable, true},
		{"  sortRange ", KindSortRange, true},
		{"deleteEverything", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKind(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecodeDiscriminatorPrecedence(t *testing.T) {
	a := Decode(json.RawMessage(`{"kind":"editCell","action":"sortRange","address":"B2","values":5}`))
	if a.Kind() != KindEditCell {
		t.Fatalf("expected kind to win over action, got %q", a.Kind())
	}

	a = Decode(json.RawMessage(`{"action":"highlight_cells","condition":"empty","color":"red"}`))
	want := HighlightCells{Condition: "empty", Color: "red"}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("highlight mismatch (-want +got):\n%s", diff)
	}

	a = Decode(json.RawMessage(`{"type":"createTable","address":"A1:C4"}`))
	table, ok := a.(CreateTable)
	if !ok {
		t.Fatalf("expected CreateTable, got %T", a)
	}
	if !table.HasHeaders {
		t.Error("hasHeaders should default to true")
	}
	if table.Target() != "A1:C4" {
		t.Errorf("expected target A1:C4, got %q", table.Target())
	}
}

func TestDecodeChartTypeFallback(t *testing.T) {
	a := Decode(json.RawMessage(`{"action":"createChart","type":"line","dataRange":"A1:B5","title":"Sales"}`))
	want := CreateChart{DataRange: "A1:B5", ChartType: "line", Title: "Sales"}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("chart mismatch (-want +got):\n%s", diff)
	}

	a = Decode(json.RawMessage(`{"type":"createChart","chartType":"pie"}`))
	if c := a.(CreateChart); c.ChartType != "pie" {
		t.Errorf("expected pie, got %q", c.ChartType)
	}
}

func TestDecodeFreezePanes(t *testing.T) {
	a := Decode(json.RawMessage(`{"action":"freezePanes","type":"Column"}`))
	f := a.(FreezePanes)
	if !f.Columns() || f.Count != 1 {
		t.Errorf("expected 1 frozen column, got %+v", f)
	}

	a = Decode(json.RawMessage(`{"action":"freezePanes","count":"2"}`))
	f = a.(FreezePanes)
	if f.Columns() || f.Count != 2 {
		t.Errorf("expected 2 frozen rows, got %+v", f)
	}
}

func TestDecodeUnknownAndInvalid(t *testing.T) {
	a := Decode(json.RawMessage(`{"action":"teleport","address":"A1"}`))
	u, ok := a.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", a)
	}
	if u.Name != "teleport" {
		t.Errorf("expected name teleport, got %q", u.Name)
	}

	a = Decode(json.RawMessage(`{"action":"sortRange","column":"third"}`))
	inv, ok := a.(Invalid)
	if !ok {
		t.Fatalf("expected Invalid, got %T", a)
	}
	if inv.Kind() != KindSortRange {
		t.Errorf("expected invalid sortRange, got %q", inv.Kind())
	}
	if !strings.Contains(inv.Err.Error(), "column") {
		t.Errorf("error should name the field: %v", inv.Err)
	}

	a = Decode(json.RawMessage(`[1,2]`))
	if _, ok := a.(Unknown); !ok {
		t.Errorf("non-object action should be Unknown, got %T", a)
	}
}

func TestDecodeFormatRange(t *testing.T) {
	a := Decode(json.RawMessage(`{"action":"formatRange","address":"A1:D1","format":{"bold":true,"fill":"yellow","columnWidth":"AutoFit"}}`))
	f := a.(FormatRange)
	if f.Format.Bold == nil || !*f.Format.Bold {
		t.Error("expected bold")
	}
	if f.Format.Fill != "yellow" {
		t.Errorf("expected fill yellow, got %q", f.Format.Fill)
	}
	if f.Format.ColumnWidth == nil || !f.Format.ColumnWidth.Auto {
		t.Errorf("expected autofit column width, got %+v", f.Format.ColumnWidth)
	}
	if f.Format.Italic != nil {
		t.Error("italic was not requested")
	}

	// Flat properties are accepted when "format" is absent.
	a = Decode(json.RawMessage(`{"action":"formatRange","fontColor":"#ff0000","columnWidth":18}`))
	f = a.(FormatRange)
	if f.Format.FontColor != "#ff0000" || f.Format.ColumnWidth.Width != 18 {
		t.Errorf("flat format not decoded: %+v", f.Format)
	}
}

func TestDecodeRemoveDuplicatesColumns(t *testing.T) {
	a := Decode(json.RawMessage(`{"action":"removeDuplicates","columns":[0,"Email","2"]}`))
	rd := a.(RemoveDuplicates)
	want := []ColumnRef{{Index: 0}, {Name: "Email"}, {Index: 2}}
	if diff := cmp.Diff(want, rd.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if !rd.IncludesHeader {
		t.Error("includesHeader should default to true")
	}
}

func TestMatrix(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want [][]interface{}
	}{
		{"nil", nil, nil},
		{"scalar", "hello", [][]interface{}{{"hello"}}},
		{"number", 42.0, [][]interface{}{{42.0}}},
		{"flat list", []interface{}{"a", "b"}, [][]interface{}{{"a", "b"}}},
		{
			"ragged rows padded",
			[]interface{}{[]interface{}{"a", "b", "c"}, []interface{}{"d"}},
			[][]interface{}{{"a", "b", "c"}, {"d", nil, nil}},
		},
		{
			"mixed scalar row",
			[]interface{}{[]interface{}{"a", "b"}, "c"},
			[][]interface{}{{"a", "b"}, {"c", nil}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Matrix(tt.in)); diff != "" {
				t.Errorf("Matrix mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBatchJSON(t *testing.T) {
	var b Batch
	raw := `{"actions":[{"action":"editCell","address":"A1","values":[["x"]]},{"action":"warp"}],"message":"ok"}`
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(b.Actions) != 2 || b.Message != "ok" {
		t.Fatalf("unexpected batch: %+v", b)
	}
	if got := KindNames(b.Actions); !cmp.Equal(got, []string{"editCell", "warp"}) {
		t.Errorf("unexpected kinds %v", got)
	}

	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"kind":"editCell"`) {
		t.Errorf("encoded batch missing kind: %s", out)
	}
	if !strings.Contains(string(out), `"action":"warp"`) {
		t.Errorf("unknown action should round-trip verbatim: %s", out)
	}
}
