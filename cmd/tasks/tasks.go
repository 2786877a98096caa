// Package tasks provides the "sheetsense tasks" commands for browsing the
// task library.
package tasks

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/tasklib"
)

// NewCommand creates the "tasks" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Browse the library of recommended procedures",
		Long: `The task library holds pre-vetted procedures for common requests. When a
command names one, its template actions are recommended to the model.

Built-in procedures can be extended or replaced in ~/.sheetsense/tasks.yaml.`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newMatchCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List procedures",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			procs := filter(a.Catalog, category)
			return a.Out.Result("tasks list", procs, func(w io.Writer) {
				if len(procs) == 0 {
					fmt.Fprintln(w, "No procedures found.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "NAME\tCATEGORY\tEXAMPLE\n")
				for _, p := range procs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Category, p.Example)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list procedures in this category")
	return cmd
}

func filter(c *tasklib.Catalog, category string) []tasklib.Procedure {
	if category == "" {
		return c.Procedures
	}
	var out []tasklib.Procedure
	for _, p := range c.Procedures {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a procedure's template actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.Catalog.Find(args[0])
			if p == nil {
				return fmt.Errorf("procedure %q not found — run 'sheetsense tasks list'", args[0])
			}
			return a.Out.Result("tasks show", p, func(w io.Writer) {
				printProcedure(w, p)
			})
		},
	}
}

func printProcedure(w io.Writer, p *tasklib.Procedure) {
	fmt.Fprintf(w, "%s (%s)\n", p.Name, p.Category)
	if p.Example != "" {
		fmt.Fprintf(w, "Example: %q\n", p.Example)
	}
	body, err := p.TemplateJSON()
	if err != nil {
		fmt.Fprintf(w, "Error: %s\n", err)
		return
	}
	fmt.Fprintf(w, "\n%s\n", body)
}

// matchResult is the data of a match command.
type matchResult struct {
	Command   string             `json:"command"`
	Matched   bool               `json:"matched"`
	Procedure *tasklib.Procedure `json:"procedure,omitempty"`
}

func newMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <command>",
		Short: "Show which procedure, if any, a command would be given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, ok := tasklib.SubstringMatcher{}.Match(args[0], a.Catalog)
			res := matchResult{Command: args[0], Matched: ok}
			if ok {
				res.Procedure = p
			}
			return a.Out.Result("tasks match", res, func(w io.Writer) {
				if !ok {
					fmt.Fprintln(w, "No procedure matches; the model plans without a recommendation.")
					return
				}
				printProcedure(w, p)
			})
		},
	}
}
