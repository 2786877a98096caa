package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/audit"
	"github.com/klytics/sheetsense/internal/fault"
	"github.com/klytics/sheetsense/internal/history"
	"github.com/klytics/sheetsense/internal/planner"
	"github.com/klytics/sheetsense/internal/prompt"
	"github.com/klytics/sheetsense/internal/sheet"
	"github.com/klytics/sheetsense/internal/speech"
)

// keepOpen lets a test inspect the workbook after the assistant closes it.
type keepOpen struct{ *sheet.Workbook }

func (keepOpen) Close() error { return nil }

type replyPlanner struct {
	reply  string
	calls  atomic.Int32
	prompt prompt.Prompt
}

func (p *replyPlanner) Plan(_ context.Context, pr prompt.Prompt) (action.Batch, error) {
	p.calls.Add(1)
	p.prompt = pr
	return planner.ParseReply(p.reply)
}

type fixedTranscriber struct {
	text string
	err  error
}

func (f fixedTranscriber) Transcribe(context.Context, speech.Clip) (string, error) {
	return f.text, f.err
}

type fixture struct {
	wb      *sheet.Workbook
	history *history.Store
	audit   string
}

func newAssistant(t *testing.T, p Planner, tr speech.Transcriber) (*Assistant, *fixture) {
	t.Helper()
	dir := t.TempDir()
	store, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	wb := sheet.New()
	t.Cleanup(func() { wb.Close() })

	fx := &fixture{wb: wb, history: store, audit: filepath.Join(dir, "audit.log")}
	a, err := New(Options{
		Planner:     p,
		Open:        func(string) (Workbook, error) { return keepOpen{wb}, nil },
		Transcriber: tr,
		History:     store,
		Audit:       audit.NewLogger(fx.audit, true),
	})
	require.NoError(t, err)
	return a, fx
}

func cellValue(t *testing.T, wb *sheet.Workbook, addr string) interface{} {
	t.Helper()
	r, err := wb.Resolve(addr)
	require.NoError(t, err)
	v, err := wb.Values(r)
	require.NoError(t, err)
	return v[0][0]
}

func TestNewRequiresPlannerAndOpener(t *testing.T) {
	_, err := New(Options{Open: func(string) (Workbook, error) { return nil, nil }})
	assert.Error(t, err)
	_, err = New(Options{Planner: &replyPlanner{}})
	assert.Error(t, err)
}

func TestHandleTextExecutesAndRecords(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[{"kind":"editCell","address":"A1","values":"Hello"}],"message":"Wrote Hello."}`}
	a, fx := newAssistant(t, p, nil)

	reply := a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "book.xlsx", Command: "put Hello in A1"})
	require.NoError(t, reply.Err)
	assert.Equal(t, "Wrote Hello.", reply.Text)
	assert.Equal(t, "Hello", cellValue(t, fx.wb, "A1"))
	assert.Equal(t, 1, fx.wb.Syncs())
	assert.Contains(t, p.prompt.User, "User Request: put Hello in A1")

	msgs, err := fx.history.Messages(context.Background(), reply.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "put Hello in A1", msgs[0].Text)
	assert.Equal(t, "Wrote Hello.", msgs[1].Text)

	entries, err := audit.ReadEntries(fx.audit)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeOK, entries[0].Outcome)
	assert.Equal(t, "text", entries[0].Source)
	require.Len(t, entries[0].Actions, 1)
	assert.Equal(t, "editCell", entries[0].Actions[0].Kind)
}

func TestHandleTextContinuesConversation(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[]}`}
	a, fx := newAssistant(t, p, nil)
	ctx := context.Background()

	first := a.HandleText(ctx, Request{UserID: "u1", Workbook: "b.xlsx", Command: "what can you do"})
	second := a.HandleText(ctx, Request{UserID: "u1", Workbook: "b.xlsx", ConversationID: first.ConversationID, Command: "thanks"})
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, "Executed 0 action(s).", second.Text)

	msgs, err := fx.history.Messages(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestMalformedReplyMutatesNothing(t *testing.T) {
	p := &replyPlanner{reply: "Sorry, I can't help with that."}
	a, fx := newAssistant(t, p, nil)

	reply := a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx", Command: "do magic"})
	require.Error(t, reply.Err)
	kind, _ := fault.KindOf(reply.Err)
	assert.Equal(t, fault.KindPlanningParse, kind)
	assert.True(t, strings.HasPrefix(reply.Text, "Error: "), reply.Text)
	assert.Contains(t, reply.Text, "Sorry, I can't help with that.")
	assert.Zero(t, fx.wb.Syncs())
	assert.Nil(t, reply.Result)

	entries, _ := audit.ReadEntries(fx.audit)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomePlanFailed, entries[0].Outcome)
}

func TestExecutionFailureKeepsMessage(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[{"kind":"teleport"},{"kind":"editCell","address":"B2","values":7}],"message":"Moved things."}`}
	a, fx := newAssistant(t, p, nil)

	reply := a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx", Command: "teleport the data"})
	require.Error(t, reply.Err)
	assert.True(t, strings.HasPrefix(reply.Text, "Moved things.\n\nError: "), reply.Text)
	assert.Contains(t, reply.Text, "teleport")
	assert.Equal(t, float64(7), cellValue(t, fx.wb, "B2"))
	require.NotNil(t, reply.Result)
	assert.Len(t, reply.Result.Outcomes, 2)

	entries, _ := audit.ReadEntries(fx.audit)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomePartial, entries[0].Outcome)
}

func TestOpenFailureIsReported(t *testing.T) {
	a, err := New(Options{
		Planner: &replyPlanner{reply: `{"actions":[]}`},
		Open:    func(path string) (Workbook, error) { return nil, errors.New("file not found: " + path) },
	})
	require.NoError(t, err)

	reply := a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "missing.xlsx", Command: "sort"})
	assert.Equal(t, "Error: file not found: missing.xlsx", reply.Text)
}

func TestMatchedProcedureReachesPrompt(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[]}`}
	a, _ := newAssistant(t, p, nil)

	reply := a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx", Command: "please clean up this data"})
	assert.Equal(t, "Clean Up Data", reply.Procedure)
	assert.Contains(t, p.prompt.System, "RECOMMENDED PROCEDURE")
}

func TestHandleVoiceEmptyTranscription(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[]}`}
	a, fx := newAssistant(t, p, fixedTranscriber{text: "   "})

	reply := a.HandleVoice(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx"}, speech.Clip{Data: []byte("x")})
	assert.Equal(t, NoCommand, reply.Text)
	assert.Zero(t, p.calls.Load())

	conv, err := fx.history.Conversation(context.Background(), reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, history.NewChatTitle, conv.Title)
}

func TestHandleVoiceRunsTranscript(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[{"kind":"addWorksheet","name":"Q3"}],"message":""}`}
	a, fx := newAssistant(t, p, fixedTranscriber{text: " add a sheet called Q3 "})

	reply := a.HandleVoice(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx"}, speech.Clip{Data: []byte("x")})
	require.NoError(t, reply.Err)
	assert.Equal(t, "add a sheet called Q3", reply.Transcript)
	assert.Equal(t, "Executed 1 action(s).", reply.Text)
	assert.Contains(t, fx.wb.Sheets(), "Q3")
}

func TestHandleVoiceTranscriptionError(t *testing.T) {
	p := &replyPlanner{reply: `{"actions":[]}`}
	a, _ := newAssistant(t, p, fixedTranscriber{err: fault.Newf(fault.KindTranscription, "transcription failed: 401 bad key")})

	reply := a.HandleVoice(context.Background(), Request{UserID: "u1", Workbook: "b.xlsx"}, speech.Clip{Data: []byte("x")})
	assert.Equal(t, "Error: TranscriptionError: transcription failed: 401 bad key", reply.Text)
	assert.Zero(t, p.calls.Load())
}

// gatePlanner blocks every call until released and tracks overlap.
type gatePlanner struct {
	gate    chan struct{}
	entered chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (g *gatePlanner) Plan(ctx context.Context, _ prompt.Prompt) (action.Batch, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	g.entered <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return action.Batch{}, ctx.Err()
	}
	return action.Batch{Message: "ok"}, nil
}

func newGateAssistant(t *testing.T) (*Assistant, *gatePlanner) {
	t.Helper()
	g := &gatePlanner{gate: make(chan struct{}), entered: make(chan struct{}, 8)}
	a, err := New(Options{
		Planner: g,
		Open:    func(string) (Workbook, error) { return sheet.New(), nil },
	})
	require.NoError(t, err)
	return a, g
}

func TestSameSessionIsSerialized(t *testing.T) {
	defer goleak.VerifyNone(t)
	a, g := newGateAssistant(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "same.xlsx", Command: "x"})
		}()
	}
	for i := 0; i < 3; i++ {
		<-g.entered
		g.gate <- struct{}{}
	}
	wg.Wait()
	assert.Equal(t, int32(1), g.maxSeen.Load())
}

func TestDifferentSessionsRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)
	a, g := newGateAssistant(t)

	var wg sync.WaitGroup
	for _, book := range []string{"a.xlsx", "b.xlsx"} {
		wg.Add(1)
		go func(book string) {
			defer wg.Done()
			a.HandleText(context.Background(), Request{UserID: "u1", Workbook: book, Command: "x"})
		}(book)
	}
	<-g.entered
	<-g.entered
	assert.Equal(t, int32(2), g.maxSeen.Load())
	close(g.gate)
	wg.Wait()
}

func TestCancelledWhileWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)
	a, g := newGateAssistant(t)

	done := make(chan Reply)
	go func() {
		done <- a.HandleText(context.Background(), Request{UserID: "u1", Workbook: "same.xlsx", Command: "first"})
	}()
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	reply := a.HandleText(ctx, Request{UserID: "u1", Workbook: "same.xlsx", Command: "second"})
	require.Error(t, reply.Err)
	assert.True(t, errors.Is(reply.Err, context.DeadlineExceeded))
	assert.True(t, strings.HasPrefix(reply.Text, "Error: command cancelled"), reply.Text)

	g.gate <- struct{}{}
	first := <-done
	assert.Equal(t, "ok", first.Text)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, SessionKey("u1", "book.xlsx"), SessionKey("u1", "./book.xlsx"))
	assert.NotEqual(t, SessionKey("u1", "book.xlsx"), SessionKey("u2", "book.xlsx"))
}
