package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/sheetsense/internal/executor"
	"github.com/klytics/sheetsense/internal/fault"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitSystemError, ExitCode(fault.New(fault.KindPlanningRequest, errors.New("503"))))
	assert.Equal(t, ExitSystemError, ExitCode(fault.New(fault.KindTranscription, errors.New("timeout"))))
	assert.Equal(t, ExitUserError, ExitCode(fault.New(fault.KindPlanningParse, errors.New("bad json"))))
	assert.Equal(t, ExitUserError, ExitCode(errors.New("plain")))
	assert.Equal(t, 7, ExitCode(&ExitError{Code: 7, Err: errors.New("custom")}))
}

func TestPrintJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := fault.New(fault.KindPlanningParse, errors.New("reply is not a JSON object"))
	require.NoError(t, PrintJSONError(&buf, "run", err, map[string]string{"text": "Error"}))

	var got JSONResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.False(t, got.OK)
	assert.Equal(t, "run", got.Command)
	assert.Equal(t, "PlanningParseError", got.Kind)
	assert.Equal(t, ExitUserError, got.Code)
	assert.Contains(t, got.Error, "reply is not a JSON object")
}

func TestWriterResult(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatJSON)
	require.NoError(t, w.Result("tasks", []string{"a"}, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	w = NewWriter(&buf, FormatText)
	require.NoError(t, w.Result("tasks", nil, func(out io.Writer) { out.Write([]byte("plain\n")) }))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutcomes(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatText)
	w.Outcomes(&executor.Result{Outcomes: []executor.Outcome{
		{Kind: "editCell", Target: "Sheet1!A1"},
		{Kind: "mergeCells", Target: "Sheet1!A1:B1", Err: fault.New(fault.KindActionExecution, errors.New("overlaps a merged range"))},
	}})
	out := buf.String()
	assert.Contains(t, out, "✓ editCell Sheet1!A1")
	assert.Contains(t, out, "✗ mergeCells Sheet1!A1:B1: overlaps a merged range")
}
