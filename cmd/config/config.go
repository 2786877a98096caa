// Package config provides CLI commands for configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/config"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sheetsense configuration",
		Long:  "Interactive setup, view, and modify sheetsense settings and the machine policy.",
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newResetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newPolicyCommand())
	return cmd
}

func jsonOut(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			return config.Wizard(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if flag, _ := cmd.Flags().GetBool("json"); flag {
				masked := *cfg
				masked.APIKeys.Groq = config.Mask(cfg.APIKeys.Groq)
				masked.APIKeys.OpenAI = config.Mask(cfg.APIKeys.OpenAI)
				masked.APIKeys.Anthropic = config.Mask(cfg.APIKeys.Anthropic)
				return jsonOut(cmd, masked)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.ShowConfig())
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			val := config.Get(args[0])
			if val == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (not set)\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], val)
			}
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ResetConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset to defaults")
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config and policy file paths",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
			fmt.Fprintf(cmd.OutOrStdout(), "policy: %s\n", config.PolicyPath())
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			issues := config.Validate()
			if flag, _ := cmd.Flags().GetBool("json"); flag {
				return jsonOut(cmd, issues)
			}

			out := cmd.OutOrStdout()
			errs, warnings := 0, 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errs++
				case "warning":
					warnings++
				}
			}
			if errs == 0 && warnings == 0 {
				color.New(color.FgGreen).Fprintln(out, "Configuration is valid")
				return nil
			}

			fmt.Fprintf(out, "Config validation: %d errors, %d warnings\n\n", errs, warnings)
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					color.New(color.FgRed).Fprintf(out, "  %s\n", issue.Message)
				case "warning":
					color.New(color.FgYellow).Fprintf(out, "  %s\n", issue.Message)
				default:
					color.New(color.FgGreen).Fprintf(out, "  %s\n", issue.Message)
				}
				if issue.Fix != "" {
					fmt.Fprintf(out, "   Fix: %s\n", issue.Fix)
				}
			}
			if errs > 0 {
				return fmt.Errorf("%d configuration error(s)", errs)
			}
			return nil
		},
	}
}

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or create the machine policy",
		Long: `The machine policy is a YAML file an administrator places at
/etc/sheetsense/policy.yaml (or %ProgramData%\SheetSense\policy.yaml, or the
path in SHEETSENSE_POLICY). It can lock the AI provider, force audit logging
and restrict which actions may run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.LoadPolicy()
			if err != nil {
				return err
			}
			if flag, _ := cmd.Flags().GetBool("json"); flag {
				return jsonOut(cmd, p)
			}
			out := cmd.OutOrStdout()
			if p == nil {
				fmt.Fprintf(out, "No policy at %s\n", config.PolicyPath())
				return nil
			}
			fmt.Fprintf(out, "Policy: %s\n", config.PolicyPath())
			fmt.Fprintf(out, "  Org:             %s\n", p.Org)
			fmt.Fprintf(out, "  Provider:        %s (locked: %v)\n", p.AI.Provider, p.Locked.AIProvider)
			fmt.Fprintf(out, "  Audit locked:    %v\n", p.Locked.Audit)
			if len(p.AllowedActions) == 0 {
				fmt.Fprintln(out, "  Allowed actions: all")
			} else {
				fmt.Fprintf(out, "  Allowed actions: %v\n", p.AllowedActions)
			}
			for _, issue := range config.ValidatePolicy(p) {
				color.New(color.FgYellow).Fprintf(out, "  ! %s\n", issue)
			}
			return nil
		},
	}

	var org, outPath string
	template := &cobra.Command{
		Use:   "template",
		Short: "Print a policy template",
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := config.GeneratePolicyTemplate(org)
			if outPath == "" {
				fmt.Fprint(cmd.OutOrStdout(), tmpl)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(tmpl), 0o644); err != nil {
				return fmt.Errorf("could not write policy: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy template written to %s\n", outPath)
			return nil
		},
	}
	template.Flags().StringVar(&org, "org", "My Organization", "Organization name")
	template.Flags().StringVarP(&outPath, "output", "o", "", "Write to a file instead of stdout")
	cmd.AddCommand(template)
	return cmd
}
