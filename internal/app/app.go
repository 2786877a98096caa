// Package app assembles the pipeline from configuration and the global CLI
// flags. Every command that touches a workbook goes through it.
package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/ai"
	"github.com/klytics/sheetsense/internal/assistant"
	"github.com/klytics/sheetsense/internal/audit"
	"github.com/klytics/sheetsense/internal/config"
	"github.com/klytics/sheetsense/internal/executor"
	"github.com/klytics/sheetsense/internal/history"
	"github.com/klytics/sheetsense/internal/logging"
	"github.com/klytics/sheetsense/internal/output"
	"github.com/klytics/sheetsense/internal/planner"
	"github.com/klytics/sheetsense/internal/sheet"
	"github.com/klytics/sheetsense/internal/speech"
	"github.com/klytics/sheetsense/internal/tasklib"
)

// App holds the services shared by the commands of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Catalog  *tasklib.Catalog
	Executor *executor.Executor
	Audit    *audit.Logger
	Out      *output.Writer

	history *history.Store
}

// Flags are the global persistent flags.
type Flags struct {
	JSON     bool
	Verbose  bool
	Provider string
	Model    string
	NoColor  bool
}

// FlagsFrom reads the global flags registered on the root command.
func FlagsFrom(cmd *cobra.Command) Flags {
	var f Flags
	f.JSON, _ = cmd.Flags().GetBool("json")
	f.Verbose, _ = cmd.Flags().GetBool("verbose")
	f.Provider, _ = cmd.Flags().GetString("provider")
	f.Model, _ = cmd.Flags().GetString("model")
	f.NoColor, _ = cmd.Flags().GetBool("no-color")
	return f
}

// Load reads configuration and builds the services that need no network.
func Load(cmd *cobra.Command) (*App, error) {
	flags := FlagsFrom(cmd)
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	if flags.Provider != "" && !policyLocksProvider() {
		cfg.Provider = flags.Provider
	}
	if flags.Model != "" && !policyLocksProvider() {
		cfg.Model = flags.Model
	}
	if flags.NoColor || !cfg.Output.Color {
		color.NoColor = true
	}

	level := cfg.Log.Level
	if flags.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	catalog, err := tasklib.Load(config.ExpandHome(cfg.Tasks.Catalog))
	if err != nil {
		return nil, err
	}

	exec := executor.New(logger, nil)
	exec.SetAllowed(cfg.AllowedActions)

	format := output.FormatText
	if flags.JSON {
		format = output.FormatJSON
		os.Setenv("SHEETSENSE_JSON", "true")
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Catalog:  catalog,
		Executor: exec,
		Audit:    audit.NewLogger(config.ExpandHome(cfg.Audit.Path), cfg.Audit.Enabled),
		Out:      output.NewWriter(cmd.OutOrStdout(), format),
	}, nil
}

func policyLocksProvider() bool {
	p, err := config.LoadPolicy()
	return err == nil && p != nil && p.Locked.AIProvider
}

// Close releases the history store and flushes the logger.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// Provider builds the configured LLM provider.
func (a *App) Provider() (ai.Provider, error) {
	key, err := config.GetAPIKey(a.Config.Provider)
	if err != nil {
		return nil, err
	}
	baseURL := a.Config.BaseURL
	if a.Config.Provider == "ollama" && baseURL == "" {
		baseURL = a.Config.Ollama.Host
	}
	return ai.NewProvider(ai.Options{
		Provider: a.Config.Provider,
		Model:    a.Config.Model,
		APIKey:   key,
		BaseURL:  baseURL,
		Timeout:  a.Config.Planner.Timeout,
	})
}

// Planner builds the action planner over the configured provider.
func (a *App) Planner() (*planner.Planner, error) {
	provider, err := a.Provider()
	if err != nil {
		return nil, err
	}
	return planner.New(provider, planner.Options{
		Model:       a.Config.Model,
		Temperature: ai.Float(a.Config.Planner.Temperature),
		Timeout:     a.Config.Planner.Timeout,
		Retries:     a.Config.Planner.Retries,
	}, a.Logger), nil
}

// Transcriber builds the speech client. It needs a Groq key unless a custom
// transcription endpoint is configured. Requests share planner.timeout.
func (a *App) Transcriber() (speech.Transcriber, error) {
	key, err := config.GetAPIKey("groq")
	if err != nil && a.Config.Transcription.BaseURL == speech.DefaultBaseURL {
		return nil, err
	}
	client := speech.NewClient(a.Config.Transcription.BaseURL, key, a.Config.Transcription.Model, a.Logger)
	client.SetTimeout(a.Config.Planner.Timeout)
	return client, nil
}

// History opens the chat-history store once per process.
func (a *App) History() (*history.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	store, err := history.Open(config.ExpandHome(a.Config.History.Path))
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

// Opener returns a workbook opener that also selects sheetName and
// selection when given.
func Opener(sheetName, selection string) assistant.Opener {
	return func(path string) (assistant.Workbook, error) {
		if path == "" {
			return nil, fmt.Errorf("no workbook given — pass --workbook <file.xlsx>")
		}
		wb, err := sheet.Open(path)
		if err != nil {
			return nil, err
		}
		if sheetName != "" {
			if err := wb.SetActiveSheet(sheetName); err != nil {
				wb.Close()
				return nil, err
			}
		}
		if selection != "" {
			if err := wb.SetSelection(selection); err != nil {
				wb.Close()
				return nil, err
			}
		}
		return wb, nil
	}
}

// AssistantOptions selects the optional stages of the assistant.
type AssistantOptions struct {
	Sheet     string
	Selection string
	// Voice wires the transcriber; a missing key is an error.
	Voice bool
	// History records the exchange in the chat-history store.
	History bool
}

// Assistant builds the conversation orchestrator.
func (a *App) Assistant(opts AssistantOptions) (*assistant.Assistant, error) {
	pl, err := a.Planner()
	if err != nil {
		return nil, err
	}
	o := assistant.Options{
		Planner:  pl,
		Open:     Opener(opts.Sheet, opts.Selection),
		Executor: a.Executor,
		Catalog:  a.Catalog,
		Audit:    a.Audit,
		Logger:   a.Logger,
	}
	if opts.Voice {
		t, err := a.Transcriber()
		if err != nil {
			return nil, err
		}
		o.Transcriber = t
	}
	if opts.History {
		store, err := a.History()
		if err != nil {
			// History is best-effort; the command still runs.
			a.Logger.Warn("chat history unavailable", zap.Error(err))
		} else {
			o.History = store
		}
	}
	return assistant.New(o)
}

// Render writes a reply in the chosen format. A failed reply is returned
// as an error already shown to the user, carrying the exit code.
func (a *App) Render(cmdName string, reply assistant.Reply) error {
	if a.Out.JSON() {
		if reply.Err != nil {
			if err := a.Out.Failure(cmdName, reply.Err, reply); err != nil {
				return err
			}
			return Shown(reply.Err)
		}
		return a.Out.Result(cmdName, reply, nil)
	}
	if reply.Transcript != "" {
		a.Out.User(reply.Transcript)
	}
	if reply.Procedure != "" {
		a.Out.WriteLn("  procedure: " + reply.Procedure)
	}
	a.Out.Outcomes(reply.Result)
	a.Out.Bot(reply.Text)
	if reply.Err != nil {
		return Shown(reply.Err)
	}
	return nil
}

// shownError is an error the command has already written to the output.
type shownError struct{ err error }

func (e *shownError) Error() string { return e.err.Error() }
func (e *shownError) Unwrap() error { return e.err }

// Shown marks err as already reported so the root command only sets the
// exit code.
func Shown(err error) error {
	return &output.ExitError{Code: output.ExitCode(err), Err: &shownError{err: err}}
}

// IsShown reports whether err was already written to the output.
func IsShown(err error) bool {
	var se *shownError
	return errors.As(err, &se)
}
