// Package executor applies planned action batches to a spreadsheet host.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/colors"
	"github.com/klytics/sheetsense/internal/fault"
	"github.com/klytics/sheetsense/internal/sheet"
)

// Outcome is the result of one action.
type Outcome struct {
	Index  int         `json:"index"`
	Kind   action.Kind `json:"kind"`
	Target string      `json:"target,omitempty"`
	Note   string      `json:"note,omitempty"`
	Err    error       `json:"-"`
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Message returns the failure message without its classification, or "".
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	var fe *fault.Error
	if errors.As(o.Err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	return o.Err.Error()
}

// Result is the aggregate outcome of one batch. It holds exactly one Outcome
// per input action, in order.
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
	Synced   bool      `json:"synced"`
	DryRun   bool      `json:"dry_run,omitempty"`
	syncErr  error
}

// Failed reports whether any action, or the final sync, failed.
func (r *Result) Failed() bool {
	return r.Err() != nil
}

// Succeeded counts successful actions.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Err aggregates every failure into a *fault.BatchError, or returns nil.
func (r *Result) Err() error {
	var failures []*fault.Error
	for _, o := range r.Outcomes {
		if o.Err == nil {
			continue
		}
		var fe *fault.Error
		if !errors.As(o.Err, &fe) {
			fe = &fault.Error{Kind: fault.KindActionExecution, Action: string(o.Kind), Err: o.Err}
		}
		failures = append(failures, fe)
	}
	if r.syncErr != nil {
		failures = append(failures, &fault.Error{Kind: fault.KindActionExecution, Action: "sync", Err: r.syncErr})
	}
	if len(failures) == 0 {
		return nil
	}
	return &fault.BatchError{Failures: failures}
}

// Executor runs action batches against a host, one action at a time.
type Executor struct {
	colors  *colors.Resolver
	logger  *zap.Logger
	dryRun  bool
	allowed map[action.Kind]bool
}

// New creates an executor. A nil resolver uses the built-in palette and a nil
// logger discards output.
func New(logger *zap.Logger, resolver *colors.Resolver) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = colors.NewResolver(nil)
	}
	return &Executor{colors: resolver, logger: logger}
}

// SetDryRun enables dry-run mode. Targets are resolved and reported but
// nothing is written and the host is not synced.
func (e *Executor) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// SetAllowed restricts the executor to the given action kinds. Other kinds
// fail without touching the host. An empty list allows every kind; a list
// of only unknown names allows none.
func (e *Executor) SetAllowed(kinds []string) {
	e.allowed = nil
	if len(kinds) == 0 {
		return
	}
	e.allowed = make(map[action.Kind]bool, len(kinds))
	for _, name := range kinds {
		k, ok := action.ParseKind(name)
		if !ok {
			e.logger.Warn("ignoring unknown kind in allow list", zap.String("kind", name))
			continue
		}
		e.allowed[k] = true
	}
}

// Execute applies every action in order. A failing action never stops the
// batch. After all actions have been attempted the host is synced once. The
// returned error is the aggregate *fault.BatchError, if any.
func (e *Executor) Execute(ctx context.Context, host sheet.Host, batch action.Batch) (*Result, error) {
	res := &Result{Outcomes: make([]Outcome, 0, len(batch.Actions)), DryRun: e.dryRun}
	start := time.Now()

	run := &batchRun{e: e, host: host}
	run.selection, run.selectionErr = e.defaultTarget(host)

	for i, a := range batch.Actions {
		out := Outcome{Index: i, Kind: a.Kind()}
		if err := ctx.Err(); err != nil {
			out.Err = &fault.Error{Kind: fault.KindActionExecution, Action: string(a.Kind()), Err: err}
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		out.Target, out.Note, out.Err = run.apply(a)
		if out.Err != nil {
			e.logger.Warn("action failed",
				zap.Int("index", i),
				zap.String("kind", string(a.Kind())),
				zap.String("target", out.Target),
				zap.Error(out.Err))
		} else {
			e.logger.Debug("action applied",
				zap.Int("index", i),
				zap.String("kind", string(a.Kind())),
				zap.String("target", out.Target),
				zap.String("note", out.Note))
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	if !e.dryRun && len(batch.Actions) > 0 {
		if err := host.Sync(); err != nil {
			res.syncErr = err
			e.logger.Error("sync failed", zap.Error(err))
		} else {
			res.Synced = true
		}
	}

	e.logger.Info("batch executed",
		zap.Int("actions", len(batch.Actions)),
		zap.Int("succeeded", res.Succeeded()),
		zap.Bool("synced", res.Synced),
		zap.Duration("duration", time.Since(start)))

	if err := res.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// defaultTarget is the range actions fall back to: the user's selection, or
// A1 of the active sheet when the host cannot report one.
func (e *Executor) defaultTarget(host sheet.Host) (sheet.Range, error) {
	sel, err := host.Selection()
	if err == nil {
		return sel, nil
	}
	e.logger.Debug("selection unavailable, using A1", zap.Error(err))
	r, rerr := host.Resolve("A1")
	if rerr != nil {
		return sheet.Range{}, fmt.Errorf("no selection and no active sheet: %w", rerr)
	}
	return r, nil
}

// batchRun carries per-batch state shared by the action handlers.
type batchRun struct {
	e            *Executor
	host         sheet.Host
	selection    sheet.Range
	selectionErr error
}

// apply runs one action, converting failures and panics into classified errors.
func (b *batchRun) apply(a action.Action) (target, note string, err error) {
	kind := string(a.Kind())
	defer func() {
		if p := recover(); p != nil {
			err = &fault.Error{Kind: fault.KindActionExecution, Action: kind, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	switch v := a.(type) {
	case action.Unknown:
		msg := fmt.Errorf("unsupported action %q", v.Name)
		if v.Name == "" {
			msg = errors.New("action has no kind")
			kind = "unknown"
		}
		return "", "", &fault.Error{Kind: fault.KindUnsupportedAction, Action: kind, Err: msg}
	case action.Invalid:
		return "", "", &fault.Error{Kind: fault.KindActionExecution, Action: kind, Err: fmt.Errorf("invalid payload: %w", v.Err)}
	}

	if b.e.allowed != nil && !b.e.allowed[a.Kind()] {
		return "", "", &fault.Error{Kind: fault.KindUnsupportedAction, Action: kind, Err: errors.New("action is not allowed by policy")}
	}

	var r sheet.Range
	if a.Kind() != action.KindAddWorksheet {
		r, err = b.target(a)
		if err != nil {
			return "", "", &fault.Error{Kind: fault.KindActionExecution, Action: kind, Err: err}
		}
		target = r.Address()
	}
	if b.e.dryRun {
		return target, "dry run: not applied", nil
	}

	note, err = b.dispatch(a, r)
	if err != nil {
		return target, note, &fault.Error{Kind: fault.KindActionExecution, Action: kind, Err: err}
	}
	return target, note, nil
}

// target resolves the action's explicit address, falling back to the
// selection when it is missing or does not resolve.
func (b *batchRun) target(a action.Action) (sheet.Range, error) {
	if addr := strings.TrimSpace(a.Target()); addr != "" {
		r, err := b.host.Resolve(addr)
		if err == nil {
			return r, nil
		}
		b.e.logger.Warn("address did not resolve, using selection",
			zap.String("kind", string(a.Kind())),
			zap.String("address", addr),
			zap.Error(err))
	}
	if b.selectionErr != nil {
		return sheet.Range{}, b.selectionErr
	}
	return b.selection, nil
}

func (b *batchRun) dispatch(a action.Action, r sheet.Range) (string, error) {
	switch v := a.(type) {
	case action.EditCell:
		return b.editCell(v, r)
	case action.FormatRange:
		return b.formatRange(v, r)
	case action.CreateTable:
		return "", b.host.AddTable(r, sheet.TableSpec{Name: v.Name, HasHeaders: v.HasHeaders})
	case action.CreateChart:
		return b.createChart(v, r)
	case action.AddWorksheet:
		name, err := b.host.AddWorksheet(v.Name)
		if err != nil {
			return "", err
		}
		return "added sheet " + name, nil
	case action.FreezePanes:
		return b.freezePanes(v, r)
	case action.CreatePivotTable:
		return b.createPivotTable(v, r)
	case action.SortRange:
		return b.sortRange(v, r)
	case action.RemoveDuplicates:
		return b.removeDuplicates(v, r)
	case action.TrimWhitespace:
		return b.trimWhitespace(r)
	case action.HighlightCells:
		return b.highlightCells(v, r)
	case action.ConditionalFormatting:
		return b.conditionalFormatting(v, r)
	case action.GenerateReport:
		return b.generateReport(v, r)
	case action.ClearRange:
		return "", b.host.Clear(r)
	case action.MergeCells:
		return b.mergeCells(v, r)
	}
	return "", fmt.Errorf("no handler for %s", a.Kind())
}

func (b *batchRun) color(name string) (string, error) {
	return b.e.colors.Hex(name)
}
