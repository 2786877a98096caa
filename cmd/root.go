// Package cmd contains all CLI commands for the sheetsense binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdaudit "github.com/klytics/sheetsense/cmd/audit"
	"github.com/klytics/sheetsense/cmd/chat"
	"github.com/klytics/sheetsense/cmd/completion"
	cmdconfig "github.com/klytics/sheetsense/cmd/config"
	"github.com/klytics/sheetsense/cmd/doctor"
	"github.com/klytics/sheetsense/cmd/run"
	"github.com/klytics/sheetsense/cmd/tasks"
	"github.com/klytics/sheetsense/cmd/version"
	cmdwatch "github.com/klytics/sheetsense/cmd/watch"
	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	modelName  string
	provider   string
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sheetsense",
		Short: "Talk to your spreadsheets",
		Long: `sheetsense turns typed or spoken requests into spreadsheet edits.

A request such as "make the header row bold and blue" is planned by a
language model into structured actions, which are applied to an .xlsx
workbook and saved once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "AI model name override")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider: groq | openai | anthropic | ollama")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	// Register subcommands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(run.NewVoiceCommand())
	rootCmd.AddCommand(run.NewPlanCommand())
	rootCmd.AddCommand(run.NewApplyCommand())
	rootCmd.AddCommand(tasks.NewCommand())
	rootCmd.AddCommand(chat.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if !app.IsShown(err) {
		if jsonOutput {
			_ = output.PrintJSONError(os.Stdout, rootCmd.Name(), err, nil)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	os.Exit(output.ExitCode(err))
}
