// Package version provides the version command for the sheetsense CLI.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewCommand returns the version subcommand.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sheetsense version",
		Run: func(cmd *cobra.Command, args []string) {
			if flag, _ := cmd.Flags().GetBool("json"); flag {
				fmt.Fprintf(cmd.OutOrStdout(), "{\"version\": %q, \"go\": %q}\n", Version, runtime.Version())
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sheetsense %s\n", Version)
		},
	}
}
