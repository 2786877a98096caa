package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/ai"
)

// Policy is the machine-wide layer set by an administrator. It is read from
// /etc/sheetsense/policy.yaml (macOS/Linux) or
// C:\ProgramData\SheetSense\policy.yaml (Windows), or SHEETSENSE_POLICY.
type Policy struct {
	Org string `yaml:"org" json:"org"`

	AI struct {
		Provider string `yaml:"provider" json:"provider"`
		Model    string `yaml:"model" json:"model"`
	} `yaml:"ai" json:"ai"`

	// AllowedActions limits the action kinds the executor may apply.
	// Empty means every kind is allowed.
	AllowedActions []string `yaml:"allowed_actions" json:"allowed_actions"`

	Locked struct {
		AIProvider bool `yaml:"ai_provider" json:"ai_provider"`
		Audit      bool `yaml:"audit" json:"audit"`
	} `yaml:"locked" json:"locked"`

	Audit struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"audit" json:"audit"`
}

// PolicyPath returns the platform-specific policy location.
func PolicyPath() string {
	if p := os.Getenv("SHEETSENSE_POLICY"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramData"), "SheetSense", "policy.yaml")
	}
	return "/etc/sheetsense/policy.yaml"
}

// LoadPolicy reads the policy file. Returns nil (not error) if it does not exist.
func LoadPolicy() (*Policy, error) {
	return LoadPolicyFrom(PolicyPath())
}

// LoadPolicyFrom reads a policy from a specific path.
func LoadPolicyFrom(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read policy at %s: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid policy at %s: %w", path, err)
	}
	return &p, nil
}

// Apply overlays locked settings onto cfg. A nil policy changes nothing.
func (p *Policy) Apply(cfg *Config) {
	if p == nil {
		return
	}
	if p.Locked.AIProvider && p.AI.Provider != "" {
		cfg.Provider = p.AI.Provider
		cfg.Model = p.AI.Model
	}
	if p.Locked.Audit {
		cfg.AuditLocked = true
		cfg.Audit.Enabled = true
		if p.Audit.Path != "" {
			cfg.Audit.Path = ExpandHome(p.Audit.Path)
		}
	}
	cfg.AllowedActions = append([]string(nil), p.AllowedActions...)
}

// ValidatePolicy checks that a policy is usable.
func ValidatePolicy(p *Policy) []string {
	var issues []string
	if p.AI.Provider != "" && !knownProvider(p.AI.Provider) {
		issues = append(issues, fmt.Sprintf("ai.provider must be one of %s, got %q", strings.Join(ai.Providers, ", "), p.AI.Provider))
	}
	if p.Locked.AIProvider && p.AI.Provider == "" {
		issues = append(issues, "locked.ai_provider is set but ai.provider is empty")
	}
	for _, k := range p.AllowedActions {
		if _, ok := action.ParseKind(k); !ok {
			issues = append(issues, fmt.Sprintf("allowed_actions: unknown action kind %q", k))
		}
	}
	return issues
}

func knownProvider(name string) bool {
	for _, p := range ai.Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// GeneratePolicyTemplate returns a YAML template for a machine policy.
func GeneratePolicyTemplate(org string) string {
	return fmt.Sprintf(`# SheetSense machine policy
# Deploy to: %s
# Permissions: readable by all users, writable only by root/Administrators

org: %q

ai:
  provider: groq
  model: llama-3.3-70b-versatile

# allowed_actions: []  # empty = every action kind

locked:
  ai_provider: false
  audit: false

audit:
  path: "~/.sheetsense/audit.log"
`, PolicyPath(), org)
}
