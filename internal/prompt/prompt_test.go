package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/sheet"
	"github.com/klytics/sheetsense/internal/tasklib"
)

type brokenSource struct{}

func (brokenSource) ActiveSheet() (string, error)      { return "", errors.New("host unavailable") }
func (brokenSource) SelectionAddress() (string, error) { return "", errors.New("host unavailable") }

func TestComposeWithoutMatchUsesGenericHint(t *testing.T) {
	c, err := tasklib.Default()
	if err != nil {
		t.Fatal(err)
	}
	cmd := "highlight empty cells in B2:B10 in red"
	proc, ok := tasklib.SubstringMatcher{}.Match(cmd, c)
	if ok {
		t.Fatalf("unexpected match %q", proc.Name)
	}

	p := (&Composer{}).Compose(context.Background(), nil, cmd, nil)
	if !strings.Contains(p.System, genericHint) {
		t.Error("generic hint missing")
	}
	if strings.Contains(p.System, "RECOMMENDED PROCEDURE") {
		t.Error("no procedure block expected")
	}
	want := "Context: No selection info.\nUser Request: " + cmd
	if p.User != want {
		t.Errorf("user message = %q, want %q", p.User, want)
	}
}

func TestComposeWithProcedure(t *testing.T) {
	c, _ := tasklib.Default()
	proc := c.Find("Monthly Sales Report")
	if proc == nil {
		t.Fatal("procedure missing")
	}
	p := NewComposer(nil).Compose(context.Background(), nil, "monthly sales report please", proc)
	if !strings.Contains(p.System, `RECOMMENDED PROCEDURE: "Monthly Sales Report"`) {
		t.Errorf("procedure block missing:\n%s", p.System)
	}
	if !strings.Contains(p.System, "not mandatory") {
		t.Error("procedure should be marked as a recommendation")
	}
	if strings.Contains(p.System, genericHint) {
		t.Error("generic hint should be replaced by the procedure")
	}
}

func TestComposeReadsWorkbookContext(t *testing.T) {
	w := sheet.New()
	defer w.Close()
	if err := w.SetSelection("B2:D9"); err != nil {
		t.Fatal(err)
	}
	p := (&Composer{}).Compose(context.Background(), w, "sum these", nil)
	want := `Context: Current Sheet: "Sheet1". Selected Range: "Sheet1!B2:D9"`
	if !strings.HasPrefix(p.User, want) {
		t.Errorf("user message = %q", p.User)
	}
}

func TestComposeHostFailureDoesNotBlock(t *testing.T) {
	p := (&Composer{}).Compose(context.Background(), brokenSource{}, "bold the header", nil)
	if !strings.HasPrefix(p.User, "Context: "+NoSelection) {
		t.Errorf("expected placeholder context, got %q", p.User)
	}
}

func TestSchemaListsEveryKind(t *testing.T) {
	for _, k := range action.Kinds {
		if !strings.Contains(Schema, string(k)+" (") {
			t.Errorf("schema does not describe %s", k)
		}
	}
}
