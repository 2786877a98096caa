package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/klytics/sheetsense/internal/tasklib"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix"`
}

// keyEnv maps providers to the environment variable holding their API key.
var keyEnv = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// GetAPIKey retrieves the API key for the given provider, checking environment
// variables first and falling back to the config file. Ollama needs no key.
func GetAPIKey(provider string) (string, error) {
	provider = strings.ToLower(provider)
	if provider == "ollama" {
		return "", nil
	}
	env, ok := keyEnv[provider]
	if !ok {
		return "", fmt.Errorf("no API key management for provider %q", provider)
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	if key := viper.GetString("api_keys." + provider); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s not found — set it via environment variable or in ~/.sheetsense/config.yaml", env)
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	provider := strings.ToLower(viper.GetString("provider"))
	switch {
	case !knownProvider(provider):
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("unknown provider %q", provider),
			Fix:      "sheetsense config set provider groq",
		})
	case provider == "ollama":
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  "Ollama configured (no API key needed)",
		})
	default:
		if _, err := GetAPIKey(provider); err != nil {
			issues = append(issues, ConfigIssue{
				Key:      "api_keys." + provider,
				Severity: "error",
				Message:  fmt.Sprintf("provider is %q but %s is not set", provider, keyEnv[provider]),
				Fix:      fmt.Sprintf("export %s=...\nOr: sheetsense config set api_keys.%s ...", keyEnv[provider], provider),
			})
		} else {
			issues = append(issues, ConfigIssue{
				Key:      "api_keys." + provider,
				Severity: "info",
				Message:  fmt.Sprintf("%s API key configured", provider),
			})
		}
	}

	// Voice commands always go through the Groq transcription endpoint unless
	// another base URL is configured.
	if strings.Contains(viper.GetString("transcription.base_url"), "groq.com") {
		if _, err := GetAPIKey("groq"); err != nil {
			issues = append(issues, ConfigIssue{
				Key:      "transcription.base_url",
				Severity: "warning",
				Message:  "GROQ_API_KEY is not set — voice commands will not work",
				Fix:      "export GROQ_API_KEY=gsk_...",
			})
		}
	}

	if t := viper.GetFloat64("planner.temperature"); t < 0 || t > 2 {
		issues = append(issues, ConfigIssue{
			Key:      "planner.temperature",
			Severity: "error",
			Message:  fmt.Sprintf("planner.temperature must be between 0 and 2, got %g", t),
			Fix:      "sheetsense config set planner.temperature 0.1",
		})
	}
	if viper.GetDuration("planner.timeout") <= 0 {
		issues = append(issues, ConfigIssue{
			Key:      "planner.timeout",
			Severity: "error",
			Message:  "planner.timeout must be a positive duration",
			Fix:      "sheetsense config set planner.timeout 60s",
		})
	}
	if viper.GetInt("planner.retries") < 1 {
		issues = append(issues, ConfigIssue{
			Key:      "planner.retries",
			Severity: "warning",
			Message:  "planner.retries counts attempts and is below 1; the default of 3 attempts will be used (set 1 to disable retrying)",
		})
	}

	switch lvl := strings.ToLower(viper.GetString("log.level")); lvl {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, ConfigIssue{
			Key:      "log.level",
			Severity: "error",
			Message:  fmt.Sprintf("log.level must be debug, info, warn or error, got %q", lvl),
			Fix:      "sheetsense config set log.level warn",
		})
	}

	if path := ExpandHome(viper.GetString("tasks.catalog")); path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := tasklib.Load(path); err != nil {
				issues = append(issues, ConfigIssue{
					Key:      "tasks.catalog",
					Severity: "error",
					Message:  err.Error(),
					Fix:      "fix or remove " + path,
				})
			}
		}
	}

	if p, err := LoadPolicy(); err != nil {
		issues = append(issues, ConfigIssue{Key: "policy", Severity: "error", Message: err.Error()})
	} else if p != nil {
		for _, msg := range ValidatePolicy(p) {
			issues = append(issues, ConfigIssue{Key: "policy", Severity: "error", Message: msg, Fix: "edit " + PolicyPath()})
		}
	}

	return issues
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig deletes the config file and restores the defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	for _, key := range viper.AllKeys() {
		viper.Set(key, nil)
	}
	setDefaults()
	return nil
}

// SaveConfig writes the current config to ~/.sheetsense/config.yaml.
func SaveConfig() error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// Set secure permissions
	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// ShowConfig returns a formatted string of the current configuration with
// API keys masked.
func ShowConfig() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	sb.WriteString("AI\n")
	sb.WriteString(fmt.Sprintf("  provider:  %s\n", viper.GetString("provider")))
	sb.WriteString(fmt.Sprintf("  model:     %s\n", viper.GetString("model")))
	for _, p := range []string{"groq", "openai", "anthropic"} {
		if k := viper.GetString("api_keys." + p); k != "" {
			sb.WriteString(fmt.Sprintf("  %-10s %s\n", p+":", Mask(k)))
		}
	}
	if h := viper.GetString("ollama.host"); h != "" {
		sb.WriteString(fmt.Sprintf("  ollama:    %s\n", h))
	}
	sb.WriteString("\n")

	sb.WriteString("Planner\n")
	sb.WriteString(fmt.Sprintf("  temperature: %g\n", viper.GetFloat64("planner.temperature")))
	sb.WriteString(fmt.Sprintf("  timeout:     %s\n", viper.GetDuration("planner.timeout")))
	sb.WriteString(fmt.Sprintf("  retries:     %d\n", viper.GetInt("planner.retries")))
	sb.WriteString("\n")

	sb.WriteString("Voice\n")
	sb.WriteString(fmt.Sprintf("  base_url:  %s\n", viper.GetString("transcription.base_url")))
	sb.WriteString(fmt.Sprintf("  model:     %s\n", viper.GetString("transcription.model")))
	sb.WriteString("\n")

	sb.WriteString("Storage\n")
	sb.WriteString(fmt.Sprintf("  history:   %s\n", viper.GetString("history.path")))
	sb.WriteString(fmt.Sprintf("  audit:     %s (enabled: %t)\n", viper.GetString("audit.path"), viper.GetBool("audit.enabled")))
	sb.WriteString(fmt.Sprintf("  tasks:     %s\n", viper.GetString("tasks.catalog")))
	sb.WriteString(fmt.Sprintf("  user:      %s\n", viper.GetString("user_id")))

	return sb.String()
}

// Mask hides all but the first six characters of a key.
func Mask(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:6] + "****"
}

// Wizard runs the interactive setup. If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader, out io.Writer) error {
	if reader == nil {
		reader = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "SheetSense Setup")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 1/2: AI Provider")
	fmt.Fprintln(out, "  [1] Groq (recommended, also used for voice)")
	fmt.Fprintln(out, "  [2] OpenAI")
	fmt.Fprintln(out, "  [3] Anthropic")
	fmt.Fprintln(out, "  [4] Ollama (local, free)")
	fmt.Fprintln(out, "  [5] Skip for now")

	switch ask("  Choice: ") {
	case "1":
		viper.Set("provider", "groq")
		if key := ask("  Paste your Groq API key (gsk_...): "); key != "" {
			viper.Set("api_keys.groq", key)
		}
	case "2":
		viper.Set("provider", "openai")
		if key := ask("  Paste your OpenAI API key (sk-...): "); key != "" {
			viper.Set("api_keys.openai", key)
		}
	case "3":
		viper.Set("provider", "anthropic")
		if key := ask("  Paste your Anthropic API key (sk-ant-...): "); key != "" {
			viper.Set("api_keys.anthropic", key)
		}
	case "4":
		viper.Set("provider", "ollama")
		host := ask("  Ollama host (default: http://localhost:11434): ")
		if host == "" {
			host = "http://localhost:11434"
		}
		viper.Set("ollama.host", host)
	default:
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 2/2: Identity")
	if user := ask(fmt.Sprintf("  Chat history user id (default: %s): ", defaultUser())); user != "" {
		viper.Set("user_id", user)
	}

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config file: %s\n", ConfigPath())
	fmt.Fprintln(out, "Try: sheetsense run \"bold the header row\" --workbook sales.xlsx")
	return nil
}
