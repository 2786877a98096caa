package run

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/progress"
	"github.com/klytics/sheetsense/internal/prompt"
	"github.com/klytics/sheetsense/internal/tasklib"
)

// detached stands in for a workbook when planning without one.
type detached struct{}

var errDetached = errors.New("no workbook")

func (detached) ActiveSheet() (string, error)      { return "", errDetached }
func (detached) SelectionAddress() (string, error) { return "", errDetached }

// planResult is the data of a plan command.
type planResult struct {
	Procedure string        `json:"procedure,omitempty"`
	Prompt    *prompt.Prompt `json:"prompt,omitempty"`
	Batch     action.Batch  `json:"batch"`
}

// NewPlanCommand returns the plan command.
func NewPlanCommand() *cobra.Command {
	var (
		workbook   string
		sheetName  string
		selection  string
		showPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "plan <command>",
		Short: "Show the actions a command would produce without applying them",
		Long: `Composes the prompt and asks the model for an action batch, then prints
it. Nothing is executed. With --workbook the live sheet and selection are
included in the prompt. Save the batch with --json and run it later with
"sheetsense apply".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pl, err := a.Planner()
			if err != nil {
				return err
			}

			var src prompt.ContextSource = detached{}
			if workbook != "" {
				wb, err := app.Opener(sheetName, selection)(workbook)
				if err != nil {
					return err
				}
				defer wb.Close()
				src = wb
			}

			res := planResult{}
			proc, ok := tasklib.SubstringMatcher{}.Match(args[0], a.Catalog)
			if ok {
				res.Procedure = proc.Name
			}
			p := prompt.NewComposer(a.Logger).Compose(cmd.Context(), src, args[0], proc)
			if showPrompt {
				res.Prompt = &p
			}

			spin := progress.NewSpinner("Planning...")
			spin.Start()
			batch, err := pl.Plan(cmd.Context(), p)
			spin.Stop("")
			if err != nil {
				if a.Out.JSON() {
					if werr := a.Out.Failure("plan", err, nil); werr != nil {
						return werr
					}
					return app.Shown(err)
				}
				return err
			}
			res.Batch = batch

			return a.Out.Result("plan", res, func(w io.Writer) {
				if res.Prompt != nil {
					fmt.Fprintf(w, "--- system ---\n%s\n--- user ---\n%s\n\n", p.System, p.User)
				}
				if res.Procedure != "" {
					fmt.Fprintf(w, "procedure: %s\n", res.Procedure)
				}
				fmt.Fprintf(w, "message: %s\n", batch.Message)
				for i, act := range batch.Actions {
					fmt.Fprintf(w, "  %d. %s\n", i+1, describe(act))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&workbook, "workbook", "w", "", "Workbook to read context from")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Active sheet")
	cmd.Flags().StringVar(&selection, "selection", "", "Current selection, e.g. B2:D20")
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Include the composed prompt")
	return cmd
}

// describe renders one action on a line.
func describe(a action.Action) string {
	switch v := a.(type) {
	case action.Unknown:
		return fmt.Sprintf("%s (unsupported)", v.Name)
	case action.Invalid:
		return fmt.Sprintf("%s (invalid: %v)", v.Of, v.Err)
	}
	if t := a.Target(); t != "" {
		return fmt.Sprintf("%s %s", a.Kind(), t)
	}
	return string(a.Kind())
}
