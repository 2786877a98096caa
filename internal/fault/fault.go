// Package fault defines the error taxonomy shared by the command pipeline.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindTranscription is a network or HTTP failure from the speech endpoint.
	KindTranscription Kind = iota + 1
	// KindPlanningRequest is a network or HTTP failure from the LLM endpoint.
	KindPlanningRequest
	// KindPlanningParse is a malformed or schema-violating model reply.
	KindPlanningParse
	// KindActionExecution is a failure while applying one action.
	KindActionExecution
	// KindUnsupportedAction is an action whose kind is not in the known set.
	KindUnsupportedAction
)

func (k Kind) String() string {
	switch k {
	case KindTranscription:
		return "TranscriptionError"
	case KindPlanningRequest:
		return "PlanningRequestError"
	case KindPlanningParse:
		return "PlanningParseError"
	case KindActionExecution:
		return "ActionExecutionError"
	case KindUnsupportedAction:
		return "UnsupportedActionError"
	default:
		return "UnknownError"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	// Action is the action kind for execution errors.
	Action string
	// Raw holds the offending model text for parse errors.
	Raw string
	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Action != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Action)
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Raw != "" {
		sb.WriteString(" — raw reply: ")
		sb.WriteString(e.Raw)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. A batch failure is always KindActionExecution.
func KindOf(err error) (Kind, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return KindActionExecution, true
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// BatchError aggregates every per-action failure of one batch.
type BatchError struct {
	Failures []*Error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		if f.Action != "" && f.Err != nil {
			msgs[i] = f.Action + ": " + f.Err.Error()
		} else {
			msgs[i] = f.Error()
		}
	}
	return "errors during execution: " + strings.Join(msgs, ", ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
