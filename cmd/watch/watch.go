// Package watch provides the "sheetsense watch" commands: an inbox directory
// whose text files and audio clips are run as commands against a workbook.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/assistant"
	"github.com/klytics/sheetsense/internal/config"
	"github.com/klytics/sheetsense/internal/speech"
	w "github.com/klytics/sheetsense/internal/watch"
)

// NewCommand creates the "watch" command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run commands dropped into an inbox directory",
		Long: `Watch a directory for command files and apply them to a workbook.

A .txt file holds one typed command; an audio clip (wav, webm, ogg, mp3,
m4a, flac) is transcribed first. The reply is written next to the file as
<name>.reply.

Example:
  sheetsense watch start ./inbox -w budget.xlsx
  echo "make the header row bold" > inbox/bold.txt
  sheetsense watch status
  sheetsense watch stop`,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		workbook  string
		sheetName string
		recursive bool
		debounce  int
	)

	cmd := &cobra.Command{
		Use:   "start <directory> [directory...]",
		Short: "Start watching inbox directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			// Voice is optional here; text files work without a Groq key.
			asst, err := a.Assistant(app.AssistantOptions{Sheet: sheetName, Voice: true, History: true})
			if err != nil {
				a.Logger.Warn("voice commands disabled", zap.Error(err))
				asst, err = a.Assistant(app.AssistantOptions{Sheet: sheetName, History: true})
				if err != nil {
					return err
				}
			}

			cfg := w.Config{Directories: args, Workbook: workbook, Recursive: recursive, Debounce: debounce}
			watcher, err := w.New(cfg)
			if err != nil {
				return err
			}
			watcher.Logger = a.Logger
			watcher.Handler = Handler(asst, a.Config.UserID, workbook, cmd.OutOrStdout())

			dir := config.Dir()
			if err := w.WritePIDFile(dir); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not write PID file: %v\n", err)
			}
			defer w.RemovePIDFile(dir)
			if err := w.SaveConfig(dir, cfg); err != nil {
				a.Logger.Warn("could not save watch config", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for commands on %s\n", strings.Join(args, ", "), workbook)
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watcher.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&workbook, "workbook", "w", "", "Workbook the commands apply to (.xlsx)")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Active sheet")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch directories recursively")
	cmd.Flags().IntVar(&debounce, "debounce", 500, "Debounce interval in milliseconds")
	_ = cmd.MarkFlagRequired("workbook")
	return cmd
}

// Assistant is the part of the orchestrator the inbox uses.
type Assistant interface {
	HandleText(ctx context.Context, req assistant.Request) assistant.Reply
	HandleVoice(ctx context.Context, req assistant.Request, clip speech.Clip) assistant.Reply
}

// Handler runs each inbox item through asst and writes the reply file.
func Handler(asst Assistant, userID, workbook string, log io.Writer) w.Handler {
	return func(ctx context.Context, item w.Item) error {
		req := assistant.Request{UserID: userID, Workbook: workbook}
		var reply assistant.Reply
		switch item.Kind {
		case w.KindAudio:
			clip, err := speech.ReadClip(item.Path)
			if err != nil {
				return err
			}
			reply = asst.HandleVoice(ctx, req, clip)
		default:
			text, err := w.ReadCommand(item.Path)
			if err != nil {
				return err
			}
			if text == "" {
				return nil
			}
			req.Command = text
			reply = asst.HandleText(ctx, req)
		}
		fmt.Fprintf(log, "%s → %s\n", item.Path, firstLine(reply.Text))
		if err := w.WriteReply(item.Path, reply.Text); err != nil {
			return fmt.Errorf("could not write reply: %w", err)
		}
		return reply.Err
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Dir()
			pid, err := w.ReadPIDFile(dir)
			if err != nil {
				return fmt.Errorf("no watcher running (PID file not found)")
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("could not find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				w.RemovePIDFile(dir)
				return fmt.Errorf("could not stop watcher (PID %d): %w", pid, err)
			}
			w.RemovePIDFile(dir)

			return result(cmd, "watch stop", map[string]any{"stopped": true, "pid": pid}, func(out io.Writer) {
				fmt.Fprintf(out, "Stopped watcher (PID %d)\n", pid)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current watcher status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Dir()
			pid, err := w.ReadPIDFile(dir)
			running := err == nil

			// Signal 0 checks that the process still exists.
			if running {
				process, err := os.FindProcess(pid)
				if err != nil || process.Signal(syscall.Signal(0)) != nil {
					running = false
					w.RemovePIDFile(dir)
				}
			}
			if !running {
				return result(cmd, "watch status", w.Status{Running: false}, func(out io.Writer) {
					fmt.Fprintln(out, "Watcher is not running")
				})
			}

			status := w.Status{Running: true}
			if cfg, _ := w.LoadConfig(dir); cfg != nil {
				status.Directories = cfg.Directories
				status.Workbook = cfg.Workbook
			}
			return result(cmd, "watch status", map[string]any{"status": status, "pid": pid}, func(out io.Writer) {
				fmt.Fprintf(out, "Watcher is running (PID %d)\n", pid)
				fmt.Fprintf(out, "  Directories: %s\n", strings.Join(status.Directories, ", "))
				fmt.Fprintf(out, "  Workbook:    %s\n", status.Workbook)
			})
		},
	}
}

func result(cmd *cobra.Command, name string, data any, text func(io.Writer)) error {
	a, err := app.Load(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Out.Result(name, data, text)
}
