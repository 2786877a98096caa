package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/audit"
	"github.com/klytics/sheetsense/internal/executor"
	"github.com/klytics/sheetsense/internal/planner"
)

// NewApplyCommand returns the apply command.
func NewApplyCommand() *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "apply <batch.json>",
		Short: "Apply a saved action batch to a workbook without calling the model",
		Long: `Executes an action batch, either a bare {"actions": [...], "message": "..."}
object or the output of "sheetsense plan --json". Use - to read stdin.

  sheetsense plan "add a total row" -w q3.xlsx --json > total.json
  sheetsense apply total.json -w q3.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			batch, err := planner.ParseReply(string(data))
			if err != nil {
				return err
			}

			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Executor.SetDryRun(t.dryRun)

			start := time.Now()
			wb, err := app.Opener(t.sheet, t.selection)(t.workbook)
			if err != nil {
				return err
			}
			defer wb.Close()

			res, execErr := a.Executor.Execute(cmd.Context(), wb, batch)
			logApply(a, t.workbook, args[0], start, res, execErr)

			if execErr != nil && a.Out.JSON() {
				if err := a.Out.Failure("apply", execErr, res); err != nil {
					return err
				}
				return app.Shown(execErr)
			}
			if err := a.Out.Result("apply", res, func(w io.Writer) {
				a.Out.Outcomes(res)
				a.Out.Bot(batch.Message)
			}); err != nil {
				return err
			}
			if execErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", execErr)
				return app.Shown(execErr)
			}
			return nil
		},
	}

	t.register(cmd)
	return cmd
}

// readBatchFile reads a batch, unwrapping a plan command's JSON envelope.
func readBatchFile(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read batch: %w", err)
	}
	var env struct {
		Data struct {
			Batch json.RawMessage `json:"batch"`
		} `json:"data"`
	}
	if json.Unmarshal(data, &env) == nil && len(env.Data.Batch) > 0 {
		return env.Data.Batch, nil
	}
	return data, nil
}

func logApply(a *app.App, workbook, source string, start time.Time, res *executor.Result, err error) {
	entry := audit.Entry{
		UserID:     a.Config.UserID,
		Source:     "apply",
		Command:    source,
		Workbook:   workbook,
		Outcome:    audit.OutcomeOK,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Outcome = audit.OutcomeFailed
		if res != nil && res.Succeeded() > 0 {
			entry.Outcome = audit.OutcomePartial
		}
	}
	if res != nil {
		for _, o := range res.Outcomes {
			entry.Actions = append(entry.Actions, audit.ActionRecord{
				Kind: string(o.Kind), Target: o.Target, OK: o.OK(), Error: o.Message(),
			})
		}
	}
	_ = a.Audit.Log(context.Background(), entry)
}
