// Package shell provides the interactive chat REPL: each line typed is one
// utterance against the session's workbook.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/klytics/sheetsense/internal/assistant"
	"github.com/klytics/sheetsense/internal/output"
)

// Assistant handles one typed utterance.
type Assistant interface {
	HandleText(ctx context.Context, req assistant.Request) assistant.Reply
}

// ErrExit is returned by Eval when the user asks to leave.
var ErrExit = errors.New("exit")

// Session manages an interactive chat session.
type Session struct {
	UserID         string
	Workbook       string
	ConversationID string
	CommandHistory []string
	HistoryFile    string
	StartTime      time.Time
	// Procedures lists the task library names shown by /tasks.
	Procedures []string
	// KnownCommands is the list of slash commands for completion.
	KnownCommands []string

	assistant Assistant
	out       io.Writer
	w         *output.Writer
}

// NewSession creates a new chat session for userID against workbook.
func NewSession(a Assistant, userID, workbook string, out io.Writer) (*Session, error) {
	if a == nil {
		return nil, errors.New("chat needs an assistant")
	}
	if out == nil {
		out = os.Stdout
	}
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".sheetsense", "chat_history")
	os.MkdirAll(filepath.Dir(histFile), 0o700)

	return &Session{
		UserID:      userID,
		Workbook:    workbook,
		HistoryFile: histFile,
		StartTime:   time.Now(),
		KnownCommands: []string{
			"/help", "/exit", "/quit", "/history", "/new", "/use", "/tasks",
		},
		assistant: a,
		out:       out,
		w:         output.NewWriter(out, output.FormatText),
	}, nil
}

// Run starts the REPL loop. Blocks until /exit or Ctrl+D.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sheetsense> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(s.buildCompleter()...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.out,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	s.w.Bot(assistant.Greeting)
	fmt.Fprintf(s.out, "Workbook: %s\n", s.Workbook)
	fmt.Fprintln(s.out, "Type /help for commands, /exit to quit.")
	fmt.Fprintln(s.out)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if err := s.Eval(ctx, line); errors.Is(err, ErrExit) {
			break
		} else if err != nil {
			fmt.Fprintf(s.out, "Error: %s\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintf(s.out, "\nSession ended. %d commands in %s.\n", len(s.CommandHistory), formatDuration(time.Since(s.StartTime)))
	return nil
}

// Eval handles one input line: a slash command or an utterance.
func (s *Session) Eval(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if line == "exit" || line == "quit" {
		return ErrExit
	}
	if !strings.HasPrefix(line, "/") {
		return s.say(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/exit", "/quit":
		return ErrExit
	case "/help":
		s.printHelp()
	case "/history":
		for i, cmd := range s.CommandHistory {
			fmt.Fprintf(s.out, "  %d  %s\n", i+1, cmd)
		}
	case "/new":
		s.ConversationID = ""
		fmt.Fprintln(s.out, "Started a new conversation.")
	case "/use":
		if arg == "" {
			return errors.New("usage: /use <workbook.xlsx>")
		}
		if _, err := os.Stat(arg); err != nil {
			return fmt.Errorf("cannot use %s: %w", arg, err)
		}
		s.Workbook = arg
		fmt.Fprintf(s.out, "Workbook: %s\n", arg)
	case "/tasks":
		for _, p := range s.Procedures {
			fmt.Fprintf(s.out, "  %s\n", p)
		}
	default:
		return fmt.Errorf("unknown command %s, type /help", name)
	}
	return nil
}

func (s *Session) say(ctx context.Context, line string) error {
	s.CommandHistory = append(s.CommandHistory, line)
	reply := s.assistant.HandleText(ctx, assistant.Request{
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Workbook:       s.Workbook,
		Command:        line,
	})
	if reply.ConversationID != "" {
		s.ConversationID = reply.ConversationID
	}
	if reply.Procedure != "" {
		fmt.Fprintf(s.out, "  procedure: %s\n", reply.Procedure)
	}
	s.w.Outcomes(reply.Result)
	s.w.Bot(reply.Text)
	return nil
}

// Complete returns tab-completion candidates for the given input.
func (s *Session) Complete(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return s.KnownCommands
	}
	if !strings.HasPrefix(input, "/") || strings.Contains(input, " ") {
		return nil
	}
	var matches []string
	for _, cmd := range s.KnownCommands {
		if strings.HasPrefix(cmd, input) {
			matches = append(matches, cmd)
		}
	}
	sort.Strings(matches)
	return matches
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.out, "Type what you want done to the workbook, for example:")
	fmt.Fprintln(s.out, "  make the header row bold and blue")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /history         show what you typed this session")
	fmt.Fprintln(s.out, "  /new             start a new conversation")
	fmt.Fprintln(s.out, "  /use <workbook>  switch workbook")
	fmt.Fprintln(s.out, "  /tasks           list recommended procedures")
	fmt.Fprintln(s.out, "  /exit            leave the chat")
}

func (s *Session) buildCompleter() []readline.PrefixCompleterInterface {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range s.KnownCommands {
		items = append(items, readline.PcItem(cmd))
	}
	return items
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, sec)
}
