// Package watch turns directories into command inboxes: every text file or
// audio clip dropped into them is handed to a handler as one command.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Kind says how a dropped file is read.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// ReplySuffix is appended to a command file's path for its reply.
const ReplySuffix = ".reply"

// textExtensions and audioExtensions are the files the inbox picks up.
var (
	textExtensions  = map[string]bool{".txt": true, ".cmd": true}
	audioExtensions = map[string]bool{
		".wav": true, ".webm": true, ".ogg": true, ".mp3": true,
		".m4a": true, ".flac": true, ".mp4": true,
	}
)

// Item is one command file.
type Item struct {
	Path string
	Kind Kind
}

// Config holds the inbox configuration.
type Config struct {
	Directories []string `json:"directories"`
	Workbook    string   `json:"workbook"`
	Recursive   bool     `json:"recursive"`
	Debounce    int      `json:"debounceMs"` // Milliseconds to wait before processing
}

// Event represents a file that was detected and processed.
type Event struct {
	Time   time.Time `json:"time"`
	Path   string    `json:"path"`
	Kind   Kind      `json:"kind"`
	Status string    `json:"status"` // "processed" or "error"
	Error  string    `json:"error,omitempty"`
}

// Handler is called once per command file.
type Handler func(ctx context.Context, item Item) error

// Watcher monitors inbox directories and dispatches command files.
type Watcher struct {
	Config  Config
	Handler Handler
	Logger  *zap.Logger

	mu       sync.Mutex
	events   []Event
	watcher  *fsnotify.Watcher
	debounce map[string]*pending
	inflight sync.WaitGroup
	started  time.Time
}

// Status represents the current watcher status.
type Status struct {
	Running     bool     `json:"running"`
	Directories []string `json:"directories"`
	Workbook    string   `json:"workbook"`
	EventCount  int      `json:"eventCount"`
	StartedAt   string   `json:"startedAt,omitempty"`
}

// New creates a new Watcher with the given configuration.
func New(config Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if config.Debounce <= 0 {
		config.Debounce = 500
	}
	return &Watcher{
		Config:   config,
		Logger:   zap.NewNop(),
		watcher:  fsw,
		debounce: make(map[string]*pending),
	}, nil
}

// Classify reports whether path is a command file and how to read it.
func Classify(path string) (Kind, bool) {
	base := filepath.Base(path)
	// Skip temp and hidden files
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case textExtensions[ext]:
		return KindText, true
	case audioExtensions[ext]:
		return KindAudio, true
	}
	return "", false
}

// Start begins watching the configured directories. It blocks until the
// context is cancelled, then waits for running handlers to finish.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.Config.Directories {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("could not resolve %s: %w", dir, err)
		}
		if w.Config.Recursive {
			err = w.addRecursive(absDir)
		} else {
			err = w.watcher.Add(absDir)
		}
		if err != nil {
			w.watcher.Close()
			return fmt.Errorf("could not watch %s: %w", absDir, err)
		}
	}

	w.mu.Lock()
	w.started = time.Now()
	w.mu.Unlock()
	w.Logger.Info("watching inbox", zap.Strings("directories", w.Config.Directories), zap.String("workbook", w.Config.Workbook))

	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("stopping watcher")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", zap.Error(err))
		}
	}
}

// shutdown cancels pending debounces and waits for running handlers.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	for path, p := range w.debounce {
		if p.timer.Stop() {
			w.inflight.Done()
		}
		delete(w.debounce, path)
	}
	w.started = time.Time{}
	w.mu.Unlock()
	w.inflight.Wait()
	w.watcher.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// Only process create and write events
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	kind, ok := Classify(path)
	if !ok {
		return
	}

	// Debounce: a file is handled once its writes have settled
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.debounce[path]; ok && prev.timer.Stop() {
		w.inflight.Done()
	}
	w.inflight.Add(1)
	p := &pending{}
	p.timer = time.AfterFunc(time.Duration(w.Config.Debounce)*time.Millisecond, func() {
		defer w.inflight.Done()
		if w.settle(path, p) {
			w.process(ctx, Item{Path: path, Kind: kind})
		}
	})
	w.debounce[path] = p
}

// pending is one scheduled debounce for a path.
type pending struct {
	timer *time.Timer
}

// settle removes p from the debounce table and reports whether it was still
// the latest entry for path. A timer that fired after being replaced
// returns false and leaves the newer entry in place.
func (w *Watcher) settle(path string, p *pending) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce[path] != p {
		return false
	}
	delete(w.debounce, path)
	return true
}

func (w *Watcher) process(ctx context.Context, item Item) {
	if ctx.Err() != nil {
		return
	}
	evt := Event{Time: time.Now(), Path: item.Path, Kind: item.Kind, Status: "processed"}
	if w.Handler != nil {
		if err := w.Handler(ctx, item); err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			w.Logger.Warn("command file failed", zap.String("path", item.Path), zap.Error(err))
		} else {
			w.Logger.Info("command file processed", zap.String("path", item.Path), zap.String("kind", string(item.Kind)))
		}
	}
	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		Running:     !w.started.IsZero(),
		Directories: w.Config.Directories,
		Workbook:    w.Config.Workbook,
		EventCount:  len(w.events),
	}
	if st.Running {
		st.StartedAt = w.started.Format(time.RFC3339)
	}
	return st
}

// GetEvents returns all recorded events.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}

// ReadCommand returns the trimmed contents of a text command file.
func ReadCommand(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read command file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteReply stores the reply to a command file next to it.
func WriteReply(path, reply string) error {
	return os.WriteFile(path+ReplySuffix, []byte(reply+"\n"), 0o644)
}

const pidFile = ".sheetsense-watch.pid"

// WritePIDFile writes the current process ID to the PID file in the given directory.
func WritePIDFile(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pidFile), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
}

// ReadPIDFile reads the PID from the PID file.
func ReadPIDFile(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(dir string) error {
	return os.Remove(filepath.Join(dir, pidFile))
}

// SaveConfig writes the watcher config to a JSON file.
func SaveConfig(dir string, config Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "watch-config.json"), data, 0o644)
}

// LoadConfig reads the watcher config from a JSON file.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, "watch-config.json"))
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid watch config: %w", err)
	}
	return &config, nil
}
