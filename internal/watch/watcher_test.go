package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		kind Kind
		ok   bool
	}{
		{"/inbox/make it bold.txt", KindText, true},
		{"/inbox/command.CMD", KindText, true},
		{"/inbox/clip.webm", KindAudio, true},
		{"/inbox/clip.WAV", KindAudio, true},
		{"/inbox/report.xlsx", "", false},
		{"/inbox/command.txt.reply", "", false},
		{"/inbox/.hidden.txt", "", false},
		{"/inbox/~$lock.txt", "", false},
	}
	for _, tt := range tests {
		kind, ok := Classify(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.kind, kind, tt.path)
	}
}

func TestNewDefaultsDebounce(t *testing.T) {
	w, err := New(Config{Directories: []string{t.TempDir()}})
	require.NoError(t, err)
	defer w.watcher.Close()
	assert.Equal(t, 500, w.Config.Debounce)
	assert.False(t, w.GetStatus().Running)
}

func startWatcher(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	require.Eventually(t, func() bool { return w.GetStatus().Running }, 2*time.Second, 10*time.Millisecond)
	return cancel, done
}

func TestWatcherDispatchesCommandFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(Config{Directories: []string{dir}, Workbook: "book.xlsx", Debounce: 100})
	require.NoError(t, err)

	items := make(chan Item, 4)
	w.Handler = func(_ context.Context, item Item) error {
		items <- item
		return nil
	}
	cancel, done := startWatcher(t, w)

	path := filepath.Join(dir, "bold headers.txt")
	require.NoError(t, os.WriteFile(path, []byte("make the headers bold\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.xlsx"), []byte("x"), 0o644))

	select {
	case item := <-items:
		assert.Equal(t, path, item.Path)
		assert.Equal(t, KindText, item.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("command file was not dispatched")
	}

	cancel()
	require.NoError(t, <-done)
	assert.False(t, w.GetStatus().Running)

	events := w.GetEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, "processed", events[0].Status)
}

func TestWatcherRecordsHandlerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(Config{Directories: []string{dir}, Debounce: 100})
	require.NoError(t, err)

	handled := make(chan struct{}, 8)
	w.Handler = func(context.Context, Item) error {
		defer func() { handled <- struct{}{} }()
		return assert.AnError
	}
	cancel, done := startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.wav"), []byte("RIFF"), 0o644))
	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("clip was not dispatched")
	}
	require.Eventually(t, func() bool { return len(w.GetEvents()) > 0 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	evt := w.GetEvents()[0]
	assert.Equal(t, "error", evt.Status)
	assert.Equal(t, KindAudio, evt.Kind)
	assert.Equal(t, assert.AnError.Error(), evt.Error)
}

func TestReplacedDebounceKeepsNewerEntry(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(Config{Directories: []string{dir}, Debounce: 60000})
	require.NoError(t, err)
	defer w.watcher.Close()

	path := filepath.Join(dir, "sum column b.txt")
	write := fsnotify.Event{Name: path, Op: fsnotify.Write}
	w.handleEvent(context.Background(), write)
	w.mu.Lock()
	first := w.debounce[path]
	w.mu.Unlock()
	require.NotNil(t, first)

	w.handleEvent(context.Background(), write)
	w.mu.Lock()
	second := w.debounce[path]
	w.mu.Unlock()
	require.NotSame(t, first, second)

	// The first timer firing late must not drop the second one.
	assert.False(t, w.settle(path, first))
	w.mu.Lock()
	assert.Same(t, second, w.debounce[path])
	w.mu.Unlock()

	assert.True(t, w.settle(path, second))
	w.mu.Lock()
	assert.Empty(t, w.debounce)
	w.mu.Unlock()

	if second.timer.Stop() {
		w.inflight.Done()
	}
	w.inflight.Wait()
}

func TestBurstOfWritesDispatchesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(Config{Directories: []string{dir}, Debounce: 50})
	require.NoError(t, err)
	defer w.watcher.Close()

	var mu sync.Mutex
	calls := 0
	w.Handler = func(context.Context, Item) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	path := filepath.Join(dir, "bold headers.txt")
	for i := 0; i < 5; i++ {
		w.handleEvent(context.Background(), fsnotify.Event{Name: path, Op: fsnotify.Write})
	}
	require.Eventually(t, func() bool { return len(w.GetEvents()) > 0 }, 3*time.Second, 10*time.Millisecond)
	w.inflight.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestStartFailsOnMissingDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(Config{Directories: []string{filepath.Join(t.TempDir(), "missing")}})
	require.NoError(t, err)
	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not watch")
}

func TestReadCommandAndWriteReply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.txt")
	require.NoError(t, os.WriteFile(path, []byte("  sort by date \n"), 0o644))

	cmd, err := ReadCommand(path)
	require.NoError(t, err)
	assert.Equal(t, "sort by date", cmd)

	require.NoError(t, WriteReply(path, "Sorted."))
	data, err := os.ReadFile(path + ReplySuffix)
	require.NoError(t, err)
	assert.Equal(t, "Sorted.\n", string(data))
}

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WritePIDFile(dir))

	pid, err := ReadPIDFile(dir)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, RemovePIDFile(dir))
	_, err = ReadPIDFile(dir)
	assert.Error(t, err)
}

func TestSaveLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Directories: []string{"/inbox"}, Workbook: "/books/sales.xlsx", Recursive: true, Debounce: 250}
	require.NoError(t, SaveConfig(dir, cfg))

	loaded, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}
