// Package planner turns a composed prompt into an action batch through one
// model round-trip.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/ai"
	"github.com/klytics/sheetsense/internal/fault"
	"github.com/klytics/sheetsense/internal/prompt"
)

// Options tunes the planning call.
type Options struct {
	Model string
	// Temperature is sent as is, zero included. Nil uses the default.
	Temperature *float64
	// Timeout bounds the whole call, retries included.
	Timeout time.Duration
	// Retries is the number of attempts on rate limits, server errors and
	// network failures. One disables retrying; below one uses the default.
	Retries int
	Backoff time.Duration
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{Temperature: ai.Float(0.1), Timeout: 60 * time.Second, Retries: 3, Backoff: time.Second}
}

// Planner requests action batches from a model.
type Planner struct {
	provider ai.Provider
	opts     Options
	logger   *zap.Logger
}

// New creates a planner. Nil or non-positive option fields take their
// defaults.
func New(provider ai.Provider, opts Options, logger *zap.Logger) *Planner {
	def := DefaultOptions()
	if opts.Temperature == nil {
		opts.Temperature = def.Temperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Retries <= 0 {
		opts.Retries = def.Retries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{provider: provider, opts: opts, logger: logger}
}

// Plan sends p in JSON mode and parses the reply. Request failures are
// PlanningRequest errors; unusable replies are PlanningParse errors carrying
// the raw text.
func (pl *Planner) Plan(ctx context.Context, p prompt.Prompt) (action.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, pl.opts.Timeout)
	defer cancel()

	start := time.Now()
	var res *ai.InferResult
	err := ai.Retry(ctx, pl.opts.Retries, pl.opts.Backoff, func(ctx context.Context) error {
		var err error
		res, err = pl.provider.Infer(ctx, p.System, []ai.Message{{Role: "user", Content: p.User}}, ai.InferOptions{
			Model:       pl.opts.Model,
			Temperature: pl.opts.Temperature,
			JSON:        true,
		})
		if err != nil && ai.IsRetryable(err) {
			pl.logger.Warn("planning request failed, retrying", zap.String("provider", pl.provider.Name()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return action.Batch{}, fault.New(fault.KindPlanningRequest, err)
	}

	pl.logger.Info("plan received",
		zap.String("provider", pl.provider.Name()),
		zap.String("model", res.Model),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", res.OutputTokens),
		zap.Duration("duration", time.Since(start)))
	pl.logger.Debug("raw plan", zap.String("reply", res.Content))

	return ParseReply(res.Content)
}

// ParseReply parses a model reply of the form {"actions": [...], "message": "..."}.
// Markdown code fences are stripped first. An empty actions array is valid.
func ParseReply(text string) (action.Batch, error) {
	body := StripFences(text)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		obj, ok := outerObject(body)
		if !ok {
			return action.Batch{}, &fault.Error{Kind: fault.KindPlanningParse, Raw: text, Err: fmt.Errorf("reply is not a JSON object: %w", err)}
		}
		fields = nil
		if err := json.Unmarshal([]byte(obj), &fields); err != nil {
			return action.Batch{}, &fault.Error{Kind: fault.KindPlanningParse, Raw: text, Err: fmt.Errorf("reply is not a JSON object: %w", err)}
		}
	}

	raw, ok := fields["actions"]
	if !ok {
		return action.Batch{}, &fault.Error{Kind: fault.KindPlanningParse, Raw: text, Err: fmt.Errorf("reply has no actions array")}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return action.Batch{}, &fault.Error{Kind: fault.KindPlanningParse, Raw: text, Err: fmt.Errorf("actions is not an array")}
	}

	batch := action.Batch{Actions: action.DecodeAll(items)}
	if m, ok := fields["message"]; ok {
		_ = json.Unmarshal(m, &batch.Message)
	}
	if strings.TrimSpace(batch.Message) == "" {
		batch.Message = Summary(len(batch.Actions))
	}
	return batch, nil
}

// Summary is the message used when the model gives none.
func Summary(n int) string {
	return fmt.Sprintf("Executed %d action(s).", n)
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// outerObject returns the text between the first '{' and the last '}'.
func outerObject(s string) (string, bool) {
	i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if i < 0 || j <= i {
		return "", false
	}
	return s[i : j+1], true
}
