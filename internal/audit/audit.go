// Package audit records every executed command batch for later review.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Outcome values recorded on an entry.
const (
	OutcomeOK         = "ok"
	OutcomePartial    = "partial"
	OutcomeFailed     = "failed"
	OutcomePlanFailed = "plan_failed"
	OutcomeNoCommand  = "no_command"
)

// ActionRecord is the result of one action in a batch.
type ActionRecord struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Entry represents a single audit log entry: one utterance and what it did.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"user_id,omitempty"`
	Machine    string         `json:"machine"`
	Source     string         `json:"source"` // "text", "voice" or "apply"
	Command    string         `json:"command"`
	Workbook   string         `json:"workbook,omitempty"`
	Procedure  string         `json:"procedure,omitempty"`
	Actions    []ActionRecord `json:"actions,omitempty"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Logger appends audit entries to a JSON-lines file.
type Logger struct {
	FilePath string
	Enabled  bool

	mu sync.Mutex
}

// NewLogger creates a Logger. A disabled logger or empty path writes nothing.
func NewLogger(filePath string, enabled bool) *Logger {
	return &Logger{FilePath: filePath, Enabled: enabled}
}

// Log writes a single audit entry. Best-effort: failures never block commands.
func (l *Logger) Log(_ context.Context, entry Entry) error {
	if l == nil || !l.Enabled || l.FilePath == "" {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Machine == "" {
		entry.Machine, _ = os.Hostname()
	}
	entry.Command = RedactText(entry.Command)

	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0o700); err != nil {
		return nil // best-effort; never blocks commands
	}
	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, _ = f.Write(data)
	return nil
}

// ReadEntries reads all audit entries from the log file.
func ReadEntries(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Command  string // case-insensitive substring of the utterance
	UserID   string
	Workbook string // substring of the workbook path
	Failed   bool   // only entries whose outcome is not ok
}

// FilterEntries returns entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var result []Entry
	cmd := strings.ToLower(f.Command)
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if cmd != "" && !strings.Contains(strings.ToLower(e.Command), cmd) {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Workbook != "" && !strings.Contains(e.Workbook, f.Workbook) {
			continue
		}
		if f.Failed && e.Outcome == OutcomeOK {
			continue
		}
		result = append(result, e)
	}
	return result
}

// LogSize returns the size of the audit log in bytes, or 0 if not found.
func LogSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the audit log file.
func Clear(filePath string) error {
	return os.Truncate(filePath, 0)
}

// sensitiveFlags are flags whose following value should be redacted.
var sensitiveFlags = map[string]bool{
	"--key": true, "--token": true, "--password": true,
	"--secret": true, "--api-key": true, "--apikey": true,
}

// sensitivePatterns are value prefixes that indicate secrets.
var sensitivePatterns = []string{"sk-ant-", "sk-", "gsk_", "Bearer "}

// secretToken matches key-shaped words inside free text.
var secretToken = regexp.MustCompile(`\b(?:sk-ant-|sk-|gsk_)[A-Za-z0-9_\-]{8,}`)

// Redact sanitizes args to remove secrets.
func Redact(args []string) []string {
	result := make([]string, len(args))
	redactNext := false
	for i, arg := range args {
		if redactNext {
			result[i] = "[REDACTED]"
			redactNext = false
			continue
		}
		if sensitiveFlags[arg] {
			result[i] = arg
			redactNext = true
			continue
		}
		redacted := false
		for _, pat := range sensitivePatterns {
			if strings.HasPrefix(arg, pat) {
				result[i] = "[REDACTED]"
				redacted = true
				break
			}
		}
		if !redacted {
			result[i] = arg
		}
	}
	return result
}

// RedactText masks API keys pasted into a command.
func RedactText(s string) string {
	return secretToken.ReplaceAllString(s, "[REDACTED]")
}
