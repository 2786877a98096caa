// Package run provides the commands that turn an utterance into workbook
// changes: run, voice, plan and apply.
package run

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/assistant"
	"github.com/klytics/sheetsense/internal/progress"
)

// target holds the flags that pick the workbook and its context.
type target struct {
	workbook     string
	sheet        string
	selection    string
	conversation string
	dryRun       bool
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.workbook, "workbook", "w", "", "Workbook to modify (.xlsx)")
	cmd.Flags().StringVar(&t.sheet, "sheet", "", "Active sheet (default: the workbook's active sheet)")
	cmd.Flags().StringVar(&t.selection, "selection", "", "Current selection, e.g. B2:D20 (default: the saved selection)")
	cmd.Flags().StringVar(&t.conversation, "conversation", "", "Continue an existing conversation")
	cmd.Flags().BoolVar(&t.dryRun, "dry-run", false, "Plan and resolve targets without modifying the workbook")
	_ = cmd.MarkFlagRequired("workbook")
}

func (t *target) assistant(a *app.App, voice bool) (*assistant.Assistant, error) {
	a.Executor.SetDryRun(t.dryRun)
	return a.Assistant(app.AssistantOptions{
		Sheet:     t.sheet,
		Selection: t.selection,
		Voice:     voice,
		History:   !t.dryRun,
	})
}

func (t *target) request(a *app.App, command string) assistant.Request {
	return assistant.Request{
		UserID:         a.Config.UserID,
		ConversationID: t.conversation,
		Workbook:       t.workbook,
		Command:        command,
	}
}

// NewCommand returns the run command.
func NewCommand() *cobra.Command {
	var (
		t    target
		file string
	)

	cmd := &cobra.Command{
		Use:   "run [command]",
		Short: "Apply a natural-language command to a workbook",
		Long: `Plans the command with the configured model and applies the resulting
actions to the workbook, saving it once at the end.

  sheetsense run "make the header row bold and blue" -w sales.xlsx
  sheetsense run "sort by date" -w sales.xlsx --selection A1:D40
  sheetsense run --file commands.txt -w sales.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return fmt.Errorf("nothing to run — pass a command or --file")
			}
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			asst, err := t.assistant(a, false)
			if err != nil {
				return err
			}

			if file == "" {
				spin := progress.NewSpinner("Planning...")
				spin.Start()
				reply := asst.HandleText(cmd.Context(), t.request(a, args[0]))
				spin.Stop("")
				return a.Render("run", reply)
			}

			commands, err := readCommands(file)
			if err != nil {
				return err
			}
			bar := progress.New("commands", len(commands))
			var failed error
			for _, c := range commands {
				bar.Increment(c)
				reply := asst.HandleText(cmd.Context(), t.request(a, c))
				if reply.ConversationID != "" {
					t.conversation = reply.ConversationID
				}
				if err := a.Render("run", reply); err != nil && failed == nil {
					failed = err
				}
			}
			bar.Finish(fmt.Sprintf("%d commands", len(commands)))
			return failed
		},
	}

	t.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Run one command per line from a file (# starts a comment)")
	return cmd
}

// readCommands returns the non-empty, non-comment lines of path.
func readCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open command file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no commands", path)
	}
	return out, nil
}
