package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestNewWithEnvDisable(t *testing.T) {
	t.Setenv("SHEETSENSE_NO_PROGRESS", "1")
	if New("test", 10).Enabled {
		t.Error("expected bar to be disabled with SHEETSENSE_NO_PROGRESS=1")
	}
	if NewSpinner("test").Enabled {
		t.Error("expected spinner to be disabled")
	}
}

func TestNewWithJSONDisable(t *testing.T) {
	t.Setenv("SHEETSENSE_JSON", "true")
	if New("test", 10).Enabled {
		t.Error("expected bar to be disabled with SHEETSENSE_JSON=true")
	}
}

func TestBarIncrementCaps(t *testing.T) {
	bar := &Bar{Total: 3, Width: 30}
	for i := 0; i < 5; i++ {
		bar.Increment("step")
	}
	if bar.Current != 3 {
		t.Errorf("expected current capped at 3, got %d", bar.Current)
	}
	if bar.Pct() != 100 {
		t.Errorf("expected 100%%, got %.1f", bar.Pct())
	}
}

func TestBarPctZeroTotal(t *testing.T) {
	bar := &Bar{Total: 0, Width: 30}
	if pct := bar.Pct(); pct != 0 {
		t.Errorf("expected 0%% for zero total, got %.1f%%", pct)
	}
}

func TestBarRender(t *testing.T) {
	var buf bytes.Buffer
	bar := &Bar{Total: 4, Width: 8, Label: "commands", Enabled: true, Out: &buf}
	bar.Increment("bold headers")
	if !strings.Contains(buf.String(), "commands [==      ] 1/4  bold headers") {
		t.Errorf("unexpected render %q", buf.String())
	}
	bar.Finish("4 commands")
	if !strings.HasSuffix(buf.String(), "✓ 4 commands\n") {
		t.Errorf("unexpected finish %q", buf.String())
	}
}

func TestDisabledBarDoesNotWrite(t *testing.T) {
	var buf bytes.Buffer
	bar := &Bar{Total: 10, Width: 30, Out: &buf}
	bar.Increment("test")
	bar.Finish("done")
	if buf.Len() > 0 {
		t.Errorf("disabled bar should not write, wrote %q", buf.String())
	}
}

func TestSpinnerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	s := &Spinner{Label: "planning", Enabled: true, Out: &buf}
	s.Start()
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Update("applying")
	s.Stop("done")
	s.Stop("again")

	out := buf.String()
	if !strings.Contains(out, "planning") {
		t.Errorf("expected spinner frames, got %q", out)
	}
	if !strings.HasSuffix(out, "✓ done\n") || strings.Contains(out, "again") {
		t.Errorf("unexpected stop output %q", out)
	}
}

func TestSpinnerDisabled(t *testing.T) {
	var buf bytes.Buffer
	s := &Spinner{Label: "test", Out: &buf}
	s.Start()
	s.Stop("done")
	if buf.Len() > 0 {
		t.Errorf("disabled spinner wrote %q", buf.String())
	}
}
