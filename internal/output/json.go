package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klytics/sheetsense/cmd/version"
	"github.com/klytics/sheetsense/internal/fault"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, missing workbook, unusable reply, failed action
	ExitSystemError = 2 // transcription or model request failure, IO error
)

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool        `json:"ok"`
	Command string      `json:"command"`
	Version string      `json:"version"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	kind, ok := fault.KindOf(err)
	if !ok {
		var exit *ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		return ExitUserError
	}
	switch kind {
	case fault.KindTranscription, fault.KindPlanningRequest:
		return ExitSystemError
	}
	return ExitUserError
}

// ExitError carries an explicit exit code through cobra.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// PrintJSON writes a standard success JSON result to w.
func PrintJSON(w io.Writer, cmd string, data interface{}) error {
	return encode(w, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes a standard error JSON result to w. data may carry
// whatever partial result the command produced.
func PrintJSONError(w io.Writer, cmd string, err error, data interface{}) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Data:    data,
		Error:   err.Error(),
		Code:    ExitCode(err),
	}
	if kind, ok := fault.KindOf(err); ok {
		result.Kind = kind.String()
	}
	if encErr := encode(w, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

func encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
