package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/fault"
	"github.com/klytics/sheetsense/internal/sheet"
)

func decodeBatch(t *testing.T, src string) action.Batch {
	t.Helper()
	var b action.Batch
	if err := json.Unmarshal([]byte(src), &b); err != nil {
		t.Fatalf("could not decode batch: %v", err)
	}
	return b
}

func values(t *testing.T, w *sheet.Workbook, addr string) [][]interface{} {
	t.Helper()
	r, err := w.Resolve(addr)
	if err != nil {
		t.Fatalf("Resolve(%q) failed: %v", addr, err)
	}
	got, err := w.Values(r)
	if err != nil {
		t.Fatalf("Values(%q) failed: %v", addr, err)
	}
	return got
}

func put(t *testing.T, w *sheet.Workbook, addr string, data [][]interface{}) {
	t.Helper()
	r, err := w.Resolve(addr)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetValues(r, data); err != nil {
		t.Fatalf("SetValues(%q) failed: %v", addr, err)
	}
}

func run(t *testing.T, w *sheet.Workbook, src string) (*Result, error) {
	t.Helper()
	return New(nil, nil).Execute(context.Background(), w, decodeBatch(t, src))
}

func TestEditCellScalar(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[{"kind":"editCell","address":"A1","values":"Hello"}]}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Outcomes) != 1 || !res.Outcomes[0].OK() {
		t.Fatalf("unexpected outcomes: %+v", res.Outcomes)
	}
	if got := values(t, w, "A1")[0][0]; got != "Hello" {
		t.Errorf("A1 = %#v, want Hello", got)
	}
}

func TestEditCellBroadcast(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	if _, err := run(t, w, `{"actions":[{"kind":"editCell","address":"B2:C4","values":[[7]]}]}`); err != nil {
		t.Fatal(err)
	}
	want := [][]interface{}{{7.0, 7.0}, {7.0, 7.0}, {7.0, 7.0}}
	if diff := cmp.Diff(want, values(t, w, "B2:C4")); diff != "" {
		t.Errorf("broadcast mismatch (-want +got):\n%s", diff)
	}
}

func TestEditCellResizesToMatrix(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[{"kind":"editCell","address":"A1:D10","values":[[1,2],[3,4],[5,6]]}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "wrote A1:B3" {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	want := [][]interface{}{
		{1.0, 2.0, nil},
		{3.0, 4.0, nil},
		{5.0, 6.0, nil},
		{nil, nil, nil},
	}
	if diff := cmp.Diff(want, values(t, w, "A1:C4")); diff != "" {
		t.Errorf("resize mismatch (-want +got):\n%s", diff)
	}
}

func TestEditCellFormulas(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	_, err := run(t, w, `{"actions":[
		{"kind":"editCell","address":"A1:B1","values":[[2,"=A1*2"]]},
		{"kind":"editCell","address":"C1","formula":"SUM(A1:B1)"}
	]}`)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]interface{}{{2.0, sheet.Formula("A1*2"), sheet.Formula("SUM(A1:B1)")}}
	if diff := cmp.Diff(want, values(t, w, "A1:C1")); diff != "" {
		t.Errorf("formula mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownKindDoesNotStopBatch(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[
		{"kind":"explode","address":"A1"},
		{"kind":"editCell","address":"A2","values":"after"}
	]}`)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	var batchErr *fault.BatchError
	if !errors.As(err, &batchErr) || len(batchErr.Failures) != 1 {
		t.Fatalf("expected one batch failure, got %v", err)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(res.Outcomes))
	}
	if got, _ := fault.KindOf(res.Outcomes[0].Err); got != fault.KindUnsupportedAction {
		t.Errorf("first outcome kind = %v", got)
	}
	if !strings.Contains(res.Outcomes[0].Message(), "explode") {
		t.Errorf("message should name the kind: %q", res.Outcomes[0].Message())
	}
	if !res.Outcomes[1].OK() {
		t.Errorf("second action failed: %v", res.Outcomes[1].Err)
	}
	if got := values(t, w, "A2")[0][0]; got != "after" {
		t.Errorf("A2 = %#v", got)
	}
	if w.Syncs() != 1 {
		t.Errorf("expected one sync, got %d", w.Syncs())
	}
	if !res.Failed() || res.Succeeded() != 1 {
		t.Errorf("Failed=%v Succeeded=%d", res.Failed(), res.Succeeded())
	}
}

func TestEveryActionGetsOneOutcome(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, _ := run(t, w, `{"actions":[
		{"kind":"editCell","address":"A1","values":"x"},
		"not an object",
		{"kind":"sortRange","address":"A1","column":9},
		{"kind":"addWorksheet","name":"Extra"},
		{"kind":"formatRange","address":"A1","format":{"fill":"not-a-color"}}
	]}`)
	if len(res.Outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(res.Outcomes))
	}
	for i, o := range res.Outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if !o.OK() && o.Message() == "" {
			t.Errorf("outcome %d failed with an empty message", i)
		}
	}
	if res.Succeeded() != 2 {
		t.Errorf("expected 2 successes, got %d", res.Succeeded())
	}
}

func TestEmptyBatchDoesNotSync(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[],"message":"Nothing to do."}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced || w.Syncs() != 0 {
		t.Errorf("empty batch should not sync")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	e := New(nil, nil)
	e.SetDryRun(true)
	res, err := e.Execute(context.Background(), w, decodeBatch(t, `{"actions":[{"kind":"editCell","address":"A1","values":"x"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Target != "Sheet1!A1" {
		t.Errorf("target = %q", res.Outcomes[0].Target)
	}
	if got := values(t, w, "A1")[0][0]; got != nil {
		t.Errorf("dry run wrote %#v", got)
	}
	if w.Syncs() != 0 {
		t.Error("dry run should not sync")
	}
}

func TestCancelledContextFailsRemainingActions(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(nil, nil).Execute(ctx, w, decodeBatch(t, `{"actions":[{"kind":"editCell","address":"A1","values":"x"}]}`))
	if err == nil || !errors.Is(res.Outcomes[0].Err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestInvalidAddressFallsBackToSelection(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	if err := w.SetSelection("C3"); err != nil {
		t.Fatal(err)
	}

	res, err := run(t, w, `{"actions":[{"kind":"editCell","address":"not a range!!","values":"here"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Target != "Sheet1!C3" {
		t.Errorf("target = %q", res.Outcomes[0].Target)
	}
	if got := values(t, w, "C3")[0][0]; got != "here" {
		t.Errorf("C3 = %#v", got)
	}
}

func TestTrimWhitespaceIdempotent(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:A3", [][]interface{}{{"  padded  "}, {"clean"}, {5.0}})

	batch := `{"actions":[{"kind":"trimWhitespace","address":"A1:A3"}]}`
	res, err := run(t, w, batch)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "trimmed 1 cells" {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	first := values(t, w, "A1:A3")
	want := [][]interface{}{{"padded"}, {"clean"}, {5.0}}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("trim mismatch (-want +got):\n%s", diff)
	}

	res, err = run(t, w, batch)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "trimmed 0 cells" {
		t.Errorf("second run note = %q", res.Outcomes[0].Note)
	}
	if diff := cmp.Diff(first, values(t, w, "A1:A3")); diff != "" {
		t.Errorf("second trim changed values (-first +second):\n%s", diff)
	}
}

func TestRemoveDuplicatesByHeaderName(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:C5", [][]interface{}{
		{"ID", "City", "Name"},
		{1.0, "Oslo", "Ann"},
		{2.0, "Rome", "Bob"},
		{3.0, "Lima", "ann"},
		{4.0, "Kyiv", "Cy"},
	})

	res, err := run(t, w, `{"actions":[{"kind":"removeDuplicates","address":"A1:C5","columns":["Name"]}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "removed 1 duplicate rows" {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	want := [][]interface{}{
		{"ID", "City", "Name"},
		{1.0, "Oslo", "Ann"},
		{2.0, "Rome", "Bob"},
		{4.0, "Kyiv", "Cy"},
		{nil, nil, nil},
	}
	if diff := cmp.Diff(want, values(t, w, "A1:C5")); diff != "" {
		t.Errorf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveDuplicatesUnknownNameUsesFirstColumn(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:B4", [][]interface{}{
		{"Key", "Other"},
		{"a", 1.0},
		{"a", 2.0},
		{"b", 3.0},
	})

	res, err := run(t, w, `{"actions":[{"kind":"removeDuplicates","address":"A1:B4","columns":["Missing"]}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Outcomes[0].Note, `column "Missing" not found`) {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	if got := values(t, w, "A3:B3"); got[0][0] != "b" {
		t.Errorf("row 3 = %#v", got)
	}
}

func TestSortRange(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:B5", [][]interface{}{
		{"Name", "Score"},
		{"b", 3.0},
		{"A", nil},
		{"c", 10.0},
		{"d", 1.0},
	})

	if _, err := run(t, w, `{"actions":[{"kind":"sortRange","address":"A1:B5","column":1,"ascending":false,"hasHeaders":true}]}`); err != nil {
		t.Fatal(err)
	}
	want := [][]interface{}{
		{"Name", "Score"},
		{"c", 10.0},
		{"b", 3.0},
		{"d", 1.0},
		{"A", nil},
	}
	if diff := cmp.Diff(want, values(t, w, "A1:B5")); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareCells(t *testing.T) {
	tests := []struct {
		a, b interface{}
		want int
	}{
		{1.0, 2.0, -1},
		{"apple", "Banana", -1},
		{"B", "b", 0},
		{5.0, "a", -1},
		{"z", true, -1},
	}
	for _, tt := range tests {
		got := compareCells(tt.a, tt.b)
		if (got < 0) != (tt.want < 0) || (got == 0) != (tt.want == 0) {
			t.Errorf("compareCells(%v, %v) = %d, want sign of %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHighlightEmptyCellsRed(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[{"kind":"highlightCells","address":"B2:B10","condition":"empty","color":"red"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "highlight rule #FF0000" {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	formats, err := w.File().GetConditionalFormats("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	rules := formats["B2:B10"]
	if len(rules) != 1 || rules[0].Type != "blanks" || rules[0].Format == nil {
		t.Fatalf("unexpected rules: %+v", formats)
	}
	style, err := w.File().GetConditionalStyle(*rules[0].Format)
	if err != nil {
		t.Fatal(err)
	}
	if len(style.Fill.Color) == 0 || !strings.HasSuffix(strings.ToUpper(style.Fill.Color[0]), "FF0000") {
		t.Errorf("fill = %+v, want red", style.Fill)
	}
}

func TestHighlightNonEmptyIsNoOp(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[{"kind":"highlight_cells","address":"A1:A5","condition":"non-empty"}]}`)
	if err != nil {
		t.Fatalf("non-empty should not fail: %v", err)
	}
	if !strings.Contains(res.Outcomes[0].Note, "not supported") {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	formats, _ := w.File().GetConditionalFormats("Sheet1")
	if len(formats) != 0 {
		t.Errorf("expected no rules, got %+v", formats)
	}
}

func TestConditionalFormattingRules(t *testing.T) {
	tests := []struct {
		payload string
		typ     string
		wantErr bool
	}{
		{`{"rule":"3-color scale"}`, "3_color_scale", false},
		{`{"rule":"colorScale","points":2}`, "2_color_scale", false},
		{`{"rule":"lessThan","value":"50"}`, "cell", false},
		{`{"rule":"greater than","value":"100","color":"blue"}`, "cell", false},
		{`{"rule":"textEquals","value":"Overdue"}`, "cell", false},
		{`{"rule":"lessThan","value":"lots"}`, "", true},
		{`{"rule":"sparkle"}`, "", true},
	}
	for _, tt := range tests {
		w := sheet.New()
		src := `{"actions":[` + strings.Replace(tt.payload, "{", `{"kind":"conditionalFormatting","address":"C1:C9",`, 1) + `]}`
		_, err := run(t, w, src)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.payload, err, tt.wantErr)
			w.Close()
			continue
		}
		if !tt.wantErr {
			formats, _ := w.File().GetConditionalFormats("Sheet1")
			rules := formats["C1:C9"]
			if len(rules) != 1 || rules[0].Type != tt.typ {
				t.Errorf("%s: rules = %+v, want type %s", tt.payload, rules, tt.typ)
			}
		}
		w.Close()
	}
}

func TestFormatRange(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:B1", [][]interface{}{{"a fairly long header value", "x"}})

	res, err := run(t, w, `{"actions":[{"kind":"formatRange","address":"A1:B1",
		"format":{"fill":"lightblue","bold":true,"numberFormat":"currency","columnWidth":"AutoFit"}}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Note != "applied style, auto-fit columns" {
		t.Errorf("note = %q", res.Outcomes[0].Note)
	}
	f := w.File()
	id, _ := f.GetCellStyle("Sheet1", "A1")
	st, err := f.GetStyle(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Font == nil || !st.Font.Bold {
		t.Error("expected bold font")
	}
	if len(st.Fill.Color) == 0 || !strings.HasSuffix(strings.ToUpper(st.Fill.Color[0]), "BDD7EE") {
		t.Errorf("fill = %+v", st.Fill)
	}
	width, _ := f.GetColWidth("Sheet1", "A")
	if width < 20 {
		t.Errorf("column A width = %v, expected auto-fit", width)
	}
}

func TestFormatRangeBadColorFails(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	res, err := run(t, w, `{"actions":[{"kind":"formatRange","address":"A1","format":{"fontColor":"sparkly"}}]}`)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, _ := fault.KindOf(res.Outcomes[0].Err); kind != fault.KindActionExecution {
		t.Errorf("kind = %v", kind)
	}
}

func TestTableChartAndPanes(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:B4", [][]interface{}{
		{"Month", "Sales"},
		{"Jan", 10.0},
		{"Feb", 12.0},
		{"Mar", 9.0},
	})

	res, err := run(t, w, `{"actions":[
		{"kind":"createTable","address":"A1:B4","name":"Sales"},
		{"kind":"createChart","address":"A1:B4","type":"line","title":"Sales"},
		{"kind":"freezePanes","type":"Row"},
		{"kind":"addWorksheet","name":"Summary"},
		{"kind":"mergeCells","address":"D1:F1"}
	]}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcomes[1].Note != "Line chart over A1:B4" {
		t.Errorf("chart note = %q", res.Outcomes[1].Note)
	}
	tables, _ := w.File().GetTables("Sheet1")
	if len(tables) != 1 || tables[0].Name != "Sales" {
		t.Errorf("tables = %+v", tables)
	}
	panes, _ := w.File().GetPanes("Sheet1")
	if !panes.Freeze || panes.YSplit != 1 {
		t.Errorf("panes = %+v", panes)
	}
	if got := w.Sheets(); len(got) != 2 || got[1] != "Summary" {
		t.Errorf("sheets = %v", got)
	}
	merged, _ := w.File().GetMergeCells("Sheet1")
	if len(merged) != 1 || merged[0].GetStartAxis() != "D1" || merged[0].GetEndAxis() != "F1" {
		t.Errorf("merged = %+v", merged)
	}
}

func TestPivotDestinationMustResolve(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	put(t, w, "A1:B3", [][]interface{}{{"Region", "Sales"}, {"East", 1.0}, {"West", 2.0}})

	_, err := run(t, w, `{"actions":[{"kind":"createPivotTable","address":"A1:B3","destination":"Nowhere!A1","rows":["Region"],"values":["Sales"]}]}`)
	if err == nil || !strings.Contains(err.Error(), "invalid pivot destination") {
		t.Errorf("expected destination error, got %v", err)
	}
}

func TestChartKind(t *testing.T) {
	tests := map[string]sheet.ChartKind{
		"line":          sheet.ChartLine,
		"Pie":           sheet.ChartPie,
		"clustered bar": sheet.ChartBarClustered,
		"BarClustered":  sheet.ChartBarClustered,
		"column":        sheet.ChartColumnClustered,
		"radar":         sheet.ChartColumnClustered,
		"":              sheet.ChartColumnClustered,
	}
	for in, want := range tests {
		if got := chartKind(in); got != want {
			t.Errorf("chartKind(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAllowListBlocksOtherKinds(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	e := New(nil, nil)
	e.SetAllowed([]string{"editCell", "teleport"})
	res, err := e.Execute(context.Background(), w, decodeBatch(t,
		`{"actions":[{"kind":"addWorksheet","name":"Blocked"},{"kind":"editCell","address":"A1","values":"ok"}]}`))
	if err == nil {
		t.Fatal("expected the blocked action to fail")
	}
	if res.Outcomes[0].OK() || !strings.Contains(res.Outcomes[0].Message(), "not allowed") {
		t.Errorf("first outcome = %+v", res.Outcomes[0])
	}
	if k, _ := fault.KindOf(res.Outcomes[0].Err); k != fault.KindUnsupportedAction {
		t.Errorf("blocked kind = %v, want %v", k, fault.KindUnsupportedAction)
	}
	if !res.Outcomes[1].OK() {
		t.Errorf("editCell should run: %v", res.Outcomes[1].Err)
	}
	if len(w.Sheets()) != 1 {
		t.Errorf("blocked addWorksheet changed the workbook: %v", w.Sheets())
	}
}

func TestAllowListOfUnknownNamesBlocksEverything(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	e := New(nil, nil)
	e.SetAllowed([]string{"edit_cel"})
	res, err := e.Execute(context.Background(), w, decodeBatch(t,
		`{"actions":[{"kind":"addWorksheet","name":"Blocked"}]}`))
	if err == nil {
		t.Fatal("expected addWorksheet to be blocked")
	}
	if res.Outcomes[0].OK() {
		t.Errorf("outcome = %+v", res.Outcomes[0])
	}
	if len(w.Sheets()) != 1 {
		t.Errorf("blocked addWorksheet changed the workbook: %v", w.Sheets())
	}
}

func TestEmptyAllowListAllowsEverything(t *testing.T) {
	w := sheet.New()
	defer w.Close()

	e := New(nil, nil)
	e.SetAllowed([]string{"editCell"})
	e.SetAllowed(nil)
	if _, err := e.Execute(context.Background(), w, decodeBatch(t,
		`{"actions":[{"kind":"addWorksheet","name":"Open"}]}`)); err != nil {
		t.Fatalf("empty allow list should not block: %v", err)
	}
	if len(w.Sheets()) != 2 {
		t.Errorf("sheets = %v", w.Sheets())
	}
}
