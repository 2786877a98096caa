// Package config manages application configuration from files and environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	UserID   string `mapstructure:"user_id"`
	APIKeys  struct {
		Groq      string `mapstructure:"groq"`
		OpenAI    string `mapstructure:"openai"`
		Anthropic string `mapstructure:"anthropic"`
	} `mapstructure:"api_keys"`
	Ollama struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`
	Transcription struct {
		BaseURL string `mapstructure:"base_url"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"transcription"`
	Planner struct {
		Temperature float64       `mapstructure:"temperature"`
		Timeout     time.Duration `mapstructure:"timeout"`
		Retries     int           `mapstructure:"retries"`
	} `mapstructure:"planner"`
	History struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"history"`
	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"audit"`
	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
	Tasks struct {
		Catalog string `mapstructure:"catalog"`
	} `mapstructure:"tasks"`
	Output struct {
		Color bool `mapstructure:"color"`
	} `mapstructure:"output"`

	// AllowedActions and AuditLocked come from the machine policy only.
	AllowedActions []string `mapstructure:"-"`
	AuditLocked    bool     `mapstructure:"-"`
}

// Load reads the configuration from ~/.sheetsense/config.yaml and
// SHEETSENSE_* environment variables, then applies the machine policy.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())

	setDefaults()

	// Environment variable overrides: SHEETSENSE_PLANNER_TIMEOUT -> planner.timeout
	viper.SetEnvPrefix("SHEETSENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (non-fatal if missing)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	policy, err := LoadPolicy()
	if err != nil {
		return nil, err
	}
	policy.Apply(&cfg)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", "groq")
	viper.SetDefault("model", "")
	viper.SetDefault("base_url", "")
	viper.SetDefault("user_id", defaultUser())
	viper.SetDefault("transcription.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("transcription.model", "distil-whisper-large-v3-en")
	viper.SetDefault("planner.temperature", 0.1)
	viper.SetDefault("planner.timeout", 60*time.Second)
	viper.SetDefault("planner.retries", 3)
	viper.SetDefault("history.path", filepath.Join(configDir(), "history.db"))
	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.path", filepath.Join(configDir(), "audit.log"))
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.file", "")
	viper.SetDefault("tasks.catalog", filepath.Join(configDir(), "tasks.yaml"))
	viper.SetDefault("output.color", true)
}

func defaultUser() string {
	for _, k := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(k); u != "" {
			return u
		}
	}
	return "local"
}

// Dir returns the directory holding config, history and audit files.
func Dir() string {
	return configDir()
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sheetsense"
	}
	return filepath.Join(home, ".sheetsense")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
