// Package doctor provides the "sheetsense doctor" command for checking that
// the pipeline is ready to run.
package doctor

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/config"
	"github.com/klytics/sheetsense/internal/history"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, keys and local stores",
		Long:  "Run diagnostic checks to verify sheetsense is properly configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			checks := runChecks(a.Config)
			errCount := 0
			for _, c := range checks {
				if c.Status == "error" {
					errCount++
				}
			}
			if err := a.Out.Result("doctor", checks, func(w io.Writer) { printChecks(w, checks) }); err != nil {
				return err
			}
			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func printChecks(w io.Writer, checks []Check) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "sheetsense doctor")
	fmt.Fprintln(w, "=================")
	fmt.Fprintln(w)

	okCount, warnCount, errCount := 0, 0, 0
	for _, c := range checks {
		var icon string
		switch c.Status {
		case "ok":
			icon = green("✓")
			okCount++
		case "warning":
			icon = yellow("!")
			warnCount++
		case "error":
			icon = red("✗")
			errCount++
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.Name, c.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)
}

func runChecks(cfg *config.Config) []Check {
	checks := []Check{{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	if _, err := os.Stat(config.ConfigPath()); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: config.ConfigPath()})
	} else {
		checks = append(checks, Check{Name: "Config File", Status: "warning", Message: "Not found — run 'sheetsense config init'"})
	}

	if _, err := config.GetAPIKey(cfg.Provider); err != nil {
		checks = append(checks, Check{Name: "AI Provider (" + cfg.Provider + ")", Status: "error", Message: err.Error()})
	} else {
		checks = append(checks, Check{Name: "AI Provider (" + cfg.Provider + ")", Status: "ok", Message: "credentials found"})
	}

	if _, err := config.GetAPIKey("groq"); err != nil {
		checks = append(checks, Check{Name: "Voice", Status: "warning", Message: "GROQ_API_KEY not set — voice commands will not work"})
	} else {
		checks = append(checks, Check{Name: "Voice", Status: "ok", Message: cfg.Transcription.Model})
	}

	checks = append(checks, historyCheck(config.ExpandHome(cfg.History.Path)))

	if p, err := config.LoadPolicy(); err != nil {
		checks = append(checks, Check{Name: "Machine Policy", Status: "error", Message: err.Error()})
	} else if p == nil {
		checks = append(checks, Check{Name: "Machine Policy", Status: "ok", Message: "none"})
	} else if issues := config.ValidatePolicy(p); len(issues) > 0 {
		checks = append(checks, Check{Name: "Machine Policy", Status: "error", Message: issues[0]})
	} else {
		checks = append(checks, Check{Name: "Machine Policy", Status: "ok", Message: config.PolicyPath()})
	}

	if cfg.Audit.Enabled {
		checks = append(checks, Check{Name: "Audit Log", Status: "ok", Message: config.ExpandHome(cfg.Audit.Path)})
	} else {
		checks = append(checks, Check{Name: "Audit Log", Status: "warning", Message: "disabled"})
	}
	return checks
}

func historyCheck(path string) Check {
	store, err := history.Open(path)
	if err != nil {
		return Check{Name: "Chat History", Status: "warning", Message: err.Error()}
	}
	store.Close()
	return Check{Name: "Chat History", Status: "ok", Message: path}
}
