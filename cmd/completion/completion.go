// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for sheetsense.

Install instructions:
  Bash:       sheetsense completion bash > /etc/bash_completion.d/sheetsense
              echo 'source <(sheetsense completion bash)' >> ~/.bashrc
  Zsh:        sheetsense completion zsh > ~/.zsh/completions/_sheetsense
  Fish:       sheetsense completion fish > ~/.config/fish/completions/sheetsense.fish
  PowerShell: sheetsense completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# sheetsense bash completion")
				fmt.Fprintln(out, "# Install: sheetsense completion bash > /etc/bash_completion.d/sheetsense")
				fmt.Fprintln(out, "# Or:      echo 'source <(sheetsense completion bash)' >> ~/.bashrc")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# sheetsense zsh completion")
				fmt.Fprintln(out, "# Install: sheetsense completion zsh > ~/.zsh/completions/_sheetsense")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# sheetsense fish completion")
				fmt.Fprintln(out, "# Install: sheetsense completion fish > ~/.config/fish/completions/sheetsense.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# sheetsense PowerShell completion")
				fmt.Fprintln(out, "# Install: sheetsense completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
