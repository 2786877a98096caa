// Package output renders command results for the terminal and for scripts.
package output

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	"github.com/klytics/sheetsense/internal/executor"
)

// Format represents an output format.
type Format int

const (
	// FormatText is human-readable terminal output.
	FormatText Format = iota
	// FormatJSON wraps results in the JSONResult envelope.
	FormatJSON
)

var (
	botLabel  = color.New(color.FgCyan, color.Bold)
	userLabel = color.New(color.FgYellow, color.Bold)
	okMark    = color.New(color.FgGreen)
	failMark  = color.New(color.FgRed)
	dim       = color.New(color.Faint)
)

// Writer handles formatted output to a destination.
type Writer struct {
	dest   io.Writer
	format Format
}

// NewWriter creates a writer. A nil dest writes to stdout.
func NewWriter(dest io.Writer, format Format) *Writer {
	if dest == nil {
		dest = os.Stdout
	}
	return &Writer{dest: dest, format: format}
}

// JSON reports whether the writer emits the JSON envelope.
func (w *Writer) JSON() bool { return w.format == FormatJSON }

// Result writes data for a successful command.
func (w *Writer) Result(cmd string, data interface{}, text func(io.Writer)) error {
	if w.JSON() {
		return PrintJSON(w.dest, cmd, data)
	}
	text(w.dest)
	return nil
}

// Failure writes err. In text mode it is left to the caller's error path.
func (w *Writer) Failure(cmd string, err error, data interface{}) error {
	if w.JSON() {
		return PrintJSONError(w.dest, cmd, err, data)
	}
	return nil
}

// Bot writes an assistant message.
func (w *Writer) Bot(text string) {
	botLabel.Fprint(w.dest, "bot: ")
	fmt.Fprintln(w.dest, text)
}

// User writes a user message.
func (w *Writer) User(text string) {
	userLabel.Fprint(w.dest, "you: ")
	fmt.Fprintln(w.dest, text)
}

// Outcomes writes one line per executed action.
func (w *Writer) Outcomes(res *executor.Result) {
	if res == nil {
		return
	}
	for _, o := range res.Outcomes {
		target := ""
		if o.Target != "" {
			target = " " + o.Target
		}
		if o.OK() {
			okMark.Fprint(w.dest, "  ✓ ")
			fmt.Fprintf(w.dest, "%s%s", o.Kind, target)
			if o.Note != "" {
				dim.Fprintf(w.dest, " (%s)", o.Note)
			}
			fmt.Fprintln(w.dest)
			continue
		}
		failMark.Fprint(w.dest, "  ✗ ")
		fmt.Fprintf(w.dest, "%s%s: %s\n", o.Kind, target, o.Message())
	}
	if res.DryRun {
		dim.Fprintln(w.dest, "  dry run: workbook not modified")
	}
}

// WriteText writes plain text.
func (w *Writer) WriteText(s string) error {
	_, err := fmt.Fprint(w.dest, s)
	return err
}

// WriteLn writes a line of text.
func (w *Writer) WriteLn(s string) error {
	_, err := fmt.Fprintln(w.dest, s)
	return err
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// ShouldPage returns true if output should be piped through a pager.
// This checks if stdout is a terminal and the content exceeds terminal height.
func ShouldPage(content string, termHeight int) bool {
	if !isTerminal() {
		return false
	}
	return strings.Count(content, "\n") > termHeight
}

// Page pipes content through the user's preferred pager (PAGER env, or "less").
func Page(content string) error {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	cmd := exec.Command(pager)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
