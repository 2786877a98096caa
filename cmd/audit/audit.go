// Package audit provides the "sheetsense audit" CLI commands for viewing the
// record of executed commands.
package audit

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	auditpkg "github.com/klytics/sheetsense/internal/audit"
)

// NewCommand creates the "audit" command. Without a subcommand it shows the log.
func NewCommand() *cobra.Command {
	cmd := newLogCmd()
	cmd.Use = "audit"
	cmd.Short = "View and manage the audit log"
	cmd.Long = "Every command run against a workbook is recorded with the actions it applied and their outcome."

	log := newLogCmd()
	cmd.AddCommand(log)
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newLogCmd() *cobra.Command {
	var (
		last     int
		command  string
		since    string
		userID   string
		workbook string
		failed   bool
		detail   bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.Audit.FilePath
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			f := auditpkg.Filter{Command: command, UserID: userID, Workbook: workbook, Failed: failed}
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
				f.Since = t
			}
			filtered := auditpkg.FilterEntries(entries, f)
			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			return a.Out.Result("audit", filtered, func(w io.Writer) {
				if len(filtered) == 0 {
					fmt.Fprintln(w, "No audit log entries found.")
					return
				}
				fmt.Fprintf(w, "Audit Log — %d Entries\n", len(filtered))
				fmt.Fprintf(w, "File: %s\n\n", path)
				writeEntries(w, filtered, detail)
			})
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&command, "command", "", "Filter by text in the command")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&userID, "user", "", "Filter by user id")
	cmd.Flags().StringVar(&workbook, "workbook", "", "Filter by workbook path")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only show commands that did not fully succeed")
	cmd.Flags().BoolVar(&detail, "actions", false, "List each entry's actions")
	return cmd
}

func writeEntries(w io.Writer, entries []auditpkg.Entry, detail bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIMESTAMP\tUSER\tSOURCE\tCOMMAND\tACTIONS\tOUTCOME\tDURATION\n")
	for _, e := range entries {
		user := e.UserID
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), user, e.Source, truncate(e.Command, 40),
			len(e.Actions), e.Outcome, formatDuration(e.DurationMs))
		if !detail {
			continue
		}
		for _, act := range e.Actions {
			mark := "✓"
			if !act.OK {
				mark = "✗ " + act.Error
			}
			fmt.Fprintf(tw, "\t\t\t  %s %s\t\t%s\t\n", act.Kind, act.Target, mark)
		}
	}
	tw.Flush()
}

func formatDuration(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Config.AuditLocked {
				return fmt.Errorf("the audit log is locked by the machine policy")
			}
			path := a.Audit.FilePath
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			return a.Out.Result("audit clear", map[string]string{"cleared": path}, func(w io.Writer) {
				fmt.Fprintf(w, "Audit log cleared: %s\n", path)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show audit log path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.Audit.FilePath
			size := auditpkg.LogSize(path)
			entries, _ := auditpkg.ReadEntries(path)
			status := map[string]interface{}{
				"path":    path,
				"enabled": a.Audit.Enabled,
				"size":    size,
				"entries": len(entries),
			}
			return a.Out.Result("audit status", status, func(w io.Writer) {
				fmt.Fprintf(w, "Audit log: %s\n", path)
				fmt.Fprintf(w, "Enabled:   %v\n", a.Audit.Enabled)
				if size == 0 {
					fmt.Fprintln(w, "Size:      empty (no entries)")
				} else {
					fmt.Fprintf(w, "Size:      %s\n", formatSize(size))
				}
				fmt.Fprintf(w, "Entries:   %d\n", len(entries))
			})
		},
	}
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
