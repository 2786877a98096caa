// Package assistant runs one utterance through the whole pipeline: transcribe,
// match a procedure, plan, execute, and record the exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/audit"
	"github.com/klytics/sheetsense/internal/executor"
	"github.com/klytics/sheetsense/internal/history"
	"github.com/klytics/sheetsense/internal/prompt"
	"github.com/klytics/sheetsense/internal/sheet"
	"github.com/klytics/sheetsense/internal/speech"
	"github.com/klytics/sheetsense/internal/tasklib"
)

// Fixed replies.
const (
	Greeting      = "HEY, how can i help you?"
	NoCommand     = "I couldn't hear any command."
	DefaultReply  = "Done."
	VoiceFallback = "Processed voice command."
)

// Planner produces an action batch from a composed prompt.
type Planner interface {
	Plan(ctx context.Context, p prompt.Prompt) (action.Batch, error)
}

// Workbook is an open spreadsheet the pipeline reads context from and writes to.
type Workbook interface {
	sheet.Host
	SelectionAddress() (string, error)
	Close() error
}

// Opener opens the workbook at path for one utterance.
type Opener func(path string) (Workbook, error)

// Request is one utterance.
type Request struct {
	UserID string
	// ConversationID continues an existing conversation; empty starts one.
	ConversationID string
	// Workbook is the path of the target workbook. Together with UserID it
	// keys the session utterances are serialized on.
	Workbook string
	Command  string
}

// Reply is what the user sees. Text is never empty.
type Reply struct {
	Text           string           `json:"text"`
	Transcript     string           `json:"transcript,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	Procedure      string           `json:"procedure,omitempty"`
	Batch          *action.Batch    `json:"batch,omitempty"`
	Result         *executor.Result `json:"result,omitempty"`
	Err            error            `json:"-"`
}

// Options wires the pipeline stages. Planner and Open are required.
type Options struct {
	Planner     Planner
	Open        Opener
	Executor    *executor.Executor
	Catalog     *tasklib.Catalog
	Matcher     tasklib.Matcher
	Composer    *prompt.Composer
	Transcriber speech.Transcriber
	History     *history.Store
	Audit       *audit.Logger
	Logger      *zap.Logger
}

// Assistant is the conversation orchestrator. It is safe for concurrent use;
// utterances against the same user and workbook run one at a time.
type Assistant struct {
	planner     Planner
	open        Opener
	executor    *executor.Executor
	catalog     *tasklib.Catalog
	matcher     tasklib.Matcher
	composer    *prompt.Composer
	transcriber speech.Transcriber
	history     *history.Store
	audit       *audit.Logger
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*semaphore.Weighted
}

// New creates an assistant.
func New(opts Options) (*Assistant, error) {
	if opts.Planner == nil {
		return nil, errors.New("assistant needs a planner")
	}
	if opts.Open == nil {
		return nil, errors.New("assistant needs a workbook opener")
	}
	a := &Assistant{
		planner:     opts.Planner,
		open:        opts.Open,
		executor:    opts.Executor,
		catalog:     opts.Catalog,
		matcher:     opts.Matcher,
		composer:    opts.Composer,
		transcriber: opts.Transcriber,
		history:     opts.History,
		audit:       opts.Audit,
		logger:      opts.Logger,
		sessions:    make(map[string]*semaphore.Weighted),
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.executor == nil {
		a.executor = executor.New(a.logger, nil)
	}
	if a.catalog == nil {
		c, err := tasklib.Default()
		if err != nil {
			return nil, err
		}
		a.catalog = c
	}
	if a.matcher == nil {
		a.matcher = tasklib.SubstringMatcher{}
	}
	if a.composer == nil {
		a.composer = prompt.NewComposer(a.logger)
	}
	return a, nil
}

// HandleText runs a typed command.
func (a *Assistant) HandleText(ctx context.Context, req Request) Reply {
	return a.handle(ctx, req, "text", DefaultReply)
}

// HandleVoice transcribes clip and runs the recognized command. An empty
// transcription is answered with NoCommand and nothing is planned.
func (a *Assistant) HandleVoice(ctx context.Context, req Request, clip speech.Clip) Reply {
	if a.transcriber == nil {
		return a.fail(ctx, req, "voice", errors.New("voice commands are not configured"))
	}
	text, err := a.transcriber.Transcribe(ctx, clip)
	if err != nil {
		return a.fail(ctx, req, "voice", err)
	}
	req.Command = strings.TrimSpace(text)
	if req.Command == "" {
		reply := Reply{Text: NoCommand}
		reply.ConversationID = a.record(ctx, req.UserID, req.ConversationID, history.SenderBot, reply.Text)
		a.log(ctx, req, "voice", time.Now(), reply, audit.OutcomeNoCommand, nil)
		return reply
	}
	reply := a.handle(ctx, req, "voice", VoiceFallback)
	reply.Transcript = req.Command
	return reply
}

func (a *Assistant) handle(ctx context.Context, req Request, source, fallback string) Reply {
	start := time.Now()

	release, err := a.acquire(ctx, req)
	if err != nil {
		return a.fail(ctx, req, source, err)
	}
	defer release()

	reply := Reply{}
	reply.ConversationID = a.record(ctx, req.UserID, req.ConversationID, history.SenderUser, req.Command)
	if reply.ConversationID != "" {
		req.ConversationID = reply.ConversationID
	}

	wb, err := a.open(req.Workbook)
	if err != nil {
		return a.finish(ctx, req, source, start, reply, audit.OutcomeFailed, err)
	}
	defer wb.Close()

	proc, matched := a.matcher.Match(req.Command, a.catalog)
	if matched {
		reply.Procedure = proc.Name
		a.logger.Debug("procedure matched", zap.String("procedure", proc.Name))
	} else {
		proc = nil
	}

	p := a.composer.Compose(ctx, wb, req.Command, proc)
	batch, err := a.planner.Plan(ctx, p)
	if err != nil {
		return a.finish(ctx, req, source, start, reply, audit.OutcomePlanFailed, err)
	}
	reply.Batch = &batch

	res, err := a.executor.Execute(ctx, wb, batch)
	reply.Result = res
	reply.Text = batch.Message
	if reply.Text == "" {
		reply.Text = fallback
	}

	outcome := audit.OutcomeOK
	if err != nil {
		outcome = audit.OutcomeFailed
		if res != nil && res.Succeeded() > 0 {
			outcome = audit.OutcomePartial
		}
		reply.Text += "\n\nError: " + err.Error()
		reply.Err = err
	}
	reply.ConversationID = a.recordReply(ctx, req, reply)
	a.log(ctx, req, source, start, reply, outcome, err)
	return reply
}

// finish turns a pipeline failure into an "Error: ..." reply.
func (a *Assistant) finish(ctx context.Context, req Request, source string, start time.Time, reply Reply, outcome string, err error) Reply {
	a.logger.Warn("command failed", zap.String("source", source), zap.String("command", req.Command), zap.Error(err))
	reply.Text = "Error: " + err.Error()
	reply.Err = err
	reply.ConversationID = a.recordReply(ctx, req, reply)
	a.log(ctx, req, source, start, reply, outcome, err)
	return reply
}

// fail reports an error that happened before the utterance was accepted.
func (a *Assistant) fail(ctx context.Context, req Request, source string, err error) Reply {
	return a.finish(ctx, req, source, time.Now(), Reply{ConversationID: req.ConversationID}, audit.OutcomeFailed, err)
}

func (a *Assistant) recordReply(ctx context.Context, req Request, reply Reply) string {
	id := reply.ConversationID
	if id == "" {
		id = req.ConversationID
	}
	return a.record(ctx, req.UserID, id, history.SenderBot, reply.Text)
}

// record appends to the history store. Store failures are logged; they never
// change the reply.
func (a *Assistant) record(ctx context.Context, userID, conversationID string, sender history.Sender, text string) string {
	if a.history == nil {
		return conversationID
	}
	// Record even when the utterance itself was cancelled.
	id, err := a.history.Append(context.WithoutCancel(ctx), userID, conversationID, sender, text)
	if err != nil {
		a.logger.Warn("could not save message", zap.String("conversation", conversationID), zap.Error(err))
		return conversationID
	}
	return id
}

func (a *Assistant) log(ctx context.Context, req Request, source string, start time.Time, reply Reply, outcome string, err error) {
	if a.audit == nil {
		return
	}
	entry := audit.Entry{
		UserID:     req.UserID,
		Source:     source,
		Command:    req.Command,
		Workbook:   req.Workbook,
		Procedure:  reply.Procedure,
		Outcome:    outcome,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if reply.Result != nil {
		for _, o := range reply.Result.Outcomes {
			entry.Actions = append(entry.Actions, audit.ActionRecord{
				Kind:   string(o.Kind),
				Target: o.Target,
				OK:     o.OK(),
				Error:  o.Message(),
			})
		}
	}
	_ = a.audit.Log(ctx, entry)
}

// acquire waits for the session's turn. The returned func releases it.
func (a *Assistant) acquire(ctx context.Context, req Request) (func(), error) {
	key := SessionKey(req.UserID, req.Workbook)
	a.mu.Lock()
	sem, ok := a.sessions[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		a.sessions[key] = sem
	}
	a.mu.Unlock()

	if !sem.TryAcquire(1) {
		a.logger.Debug("waiting for session", zap.String("session", key))
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("command cancelled while waiting for the previous one: %w", err)
		}
	}
	return func() { sem.Release(1) }, nil
}

// SessionKey identifies the queue an utterance waits in.
func SessionKey(userID, workbook string) string {
	if abs, err := filepath.Abs(workbook); err == nil && workbook != "" {
		workbook = abs
	}
	return userID + "\x00" + workbook
}
