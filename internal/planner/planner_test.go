package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/ai"
	"github.com/klytics/sheetsense/internal/fault"
	"github.com/klytics/sheetsense/internal/prompt"
)

type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
	system  string
	user    string
	opts    ai.InferOptions
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Infer(ctx context.Context, system string, msgs []ai.Message, opts ai.InferOptions) (*ai.InferResult, error) {
	i := f.calls
	f.calls++
	f.system, f.opts = system, opts
	if len(msgs) > 0 {
		f.user = msgs[0].Content
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return &ai.InferResult{Content: reply, Model: "fake-1"}, nil
}

func quick() Options {
	return Options{Retries: 3, Backoff: time.Millisecond, Timeout: time.Second}
}

func TestPlanSendsPromptInJSONMode(t *testing.T) {
	fp := &fakeProvider{replies: []string{`{"actions":[{"kind":"editCell","address":"A1","values":[["x"]]}],"message":"Wrote x."}`}}
	batch, err := New(fp, quick(), nil).Plan(context.Background(), prompt.Prompt{System: "sys", User: "Context: c\nUser Request: r"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if fp.system != "sys" || fp.user != "Context: c\nUser Request: r" {
		t.Errorf("prompt not forwarded: %q / %q", fp.system, fp.user)
	}
	if !fp.opts.JSON || fp.opts.Temperature == nil || *fp.opts.Temperature != 0.1 {
		t.Errorf("options = %+v", fp.opts)
	}
	if batch.Message != "Wrote x." {
		t.Errorf("message = %q", batch.Message)
	}
	if diff := cmp.Diff([]string{"editCell"}, action.KindNames(batch.Actions)); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanRetriesTransientFailures(t *testing.T) {
	fp := &fakeProvider{
		errs:    []error{&ai.StatusError{Provider: "fake", Code: 503}, &ai.StatusError{Provider: "fake", Code: 429}},
		replies: []string{"", "", `{"actions":[]}`},
	}
	batch, err := New(fp, quick(), nil).Plan(context.Background(), prompt.Prompt{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if fp.calls != 3 {
		t.Errorf("calls = %d, want 3", fp.calls)
	}
	if len(batch.Actions) != 0 || batch.Message != "Executed 0 action(s)." {
		t.Errorf("batch = %+v", batch)
	}
}

func TestPlanSendsZeroTemperature(t *testing.T) {
	fp := &fakeProvider{replies: []string{`{"actions":[]}`}}
	opts := quick()
	opts.Temperature = ai.Float(0)
	if _, err := New(fp, opts, nil).Plan(context.Background(), prompt.Prompt{}); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if fp.opts.Temperature == nil || *fp.opts.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", fp.opts.Temperature)
	}
}

func TestPlanSingleAttemptDisablesRetry(t *testing.T) {
	fp := &fakeProvider{errs: []error{&ai.StatusError{Provider: "fake", Code: 503}}}
	opts := quick()
	opts.Retries = 1
	_, err := New(fp, opts, nil).Plan(context.Background(), prompt.Prompt{})
	if kind, _ := fault.KindOf(err); kind != fault.KindPlanningRequest {
		t.Fatalf("expected planning request error, got %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("calls = %d, want 1", fp.calls)
	}
}

func TestPlanRequestError(t *testing.T) {
	fp := &fakeProvider{errs: []error{&ai.StatusError{Provider: "fake", Code: 401, Body: "bad key"}}}
	_, err := New(fp, quick(), nil).Plan(context.Background(), prompt.Prompt{})
	if kind, _ := fault.KindOf(err); kind != fault.KindPlanningRequest {
		t.Fatalf("expected planning request error, got %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("client errors should not be retried, got %d calls", fp.calls)
	}
	var se *ai.StatusError
	if !errors.As(err, &se) || se.Code != 401 {
		t.Errorf("status error not preserved: %v", err)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		kinds   []string
		message string
	}{
		{"plain", `{"actions":[{"kind":"trimWhitespace"}],"message":"Trimmed."}`, []string{"trimWhitespace"}, "Trimmed."},
		{"fenced", "```json\n{\"actions\":[{\"kind\":\"clearRange\"}]}\n```", []string{"clearRange"}, "Executed 1 action(s)."},
		{"bare fence", "```\n{\"actions\":[]}\n```", []string{}, "Executed 0 action(s)."},
		{"prose around", "Sure! {\"actions\":[{\"kind\":\"addWorksheet\",\"name\":\"Q3\"}]} Enjoy.", []string{"addWorksheet"}, "Executed 1 action(s)."},
		{"unknown kind kept", `{"actions":[{"kind":"teleport"},{"kind":"mergeCells"}]}`, []string{"teleport", "mergeCells"}, "Executed 2 action(s)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := ParseReply(tt.reply)
			if err != nil {
				t.Fatalf("ParseReply failed: %v", err)
			}
			if diff := cmp.Diff(tt.kinds, action.KindNames(batch.Actions)); diff != "" {
				t.Errorf("kinds mismatch (-want +got):\n%s", diff)
			}
			if batch.Message != tt.message {
				t.Errorf("message = %q, want %q", batch.Message, tt.message)
			}
		})
	}
}

func TestParseReplyErrors(t *testing.T) {
	for _, reply := range []string{
		"I cannot do that.",
		`{"message":"no actions here"}`,
		`{"actions":"editCell"}`,
		`{"actions":null}`,
		`{"actions":[`,
	} {
		_, err := ParseReply(reply)
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindPlanningParse {
			t.Errorf("ParseReply(%q): expected parse error, got %v", reply, err)
			continue
		}
		if fe.Raw != reply {
			t.Errorf("raw = %q, want %q", fe.Raw, reply)
		}
	}
}

func TestStripFences(t *testing.T) {
	if got := StripFences("  {\"a\":1}  "); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
	if got := StripFences("```json {\"a\":1}```"); !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
		t.Errorf("single-line fence: got %q", got)
	}
}
