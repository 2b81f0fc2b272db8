package logs

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SessionWatcher watches the projects directory for JSONL changes and
// turns them into live events: new projects, new sessions, appended
// messages. fsnotify is not recursive, so each project directory gets
// its own watch and new directories are added as they appear.
type SessionWatcher struct {
	projectsDir string
	store       *Store
	manager     *ConnectionManager
	debounce    time.Duration
	logger      *slog.Logger

	watcher *fsnotify.Watcher

	mu         sync.Mutex
	running    bool
	offsets    map[string]int64
	knownFiles map[string]struct{}
	knownDirs  map[string]struct{}
	timers     map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

func NewSessionWatcher(projectsDir string, store *Store, manager *ConnectionManager, debounceMS int, logger *slog.Logger) *SessionWatcher {
	if debounceMS <= 0 {
		debounceMS = 500
	}
	return &SessionWatcher{
		projectsDir: projectsDir,
		store:       store,
		manager:     manager,
		debounce:    time.Duration(debounceMS) * time.Millisecond,
		logger:      logger,
		offsets:     make(map[string]int64),
		knownFiles:  make(map[string]struct{}),
		knownDirs:   make(map[string]struct{}),
		timers:      make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

func (w *SessionWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.projectsDir); err != nil {
		watcher.Close()
		return err
	}
	w.initKnownState()

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("file watcher started", "dir", w.projectsDir)
	return nil
}

func (w *SessionWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
}

func (w *SessionWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// initKnownState snapshots existing directories and files so startup
// contents are not re-announced, and records current file sizes so only
// appended bytes are read later.
func (w *SessionWatcher) initKnownState() {
	entries, err := os.ReadDir(w.projectsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(w.projectsDir, entry.Name())
		w.knownDirs[dirPath] = struct{}{}
		if err := w.watcher.Add(dirPath); err != nil {
			w.logger.Warn("cannot watch project dir", "dir", dirPath, "error", err)
		}

		files, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.Type().IsRegular() || !IsValidSessionFile(f.Name()) {
				continue
			}
			path := filepath.Join(dirPath, f.Name())
			w.knownFiles[path] = struct{}{}
			if info, err := f.Info(); err == nil {
				w.offsets[path] = info.Size()
			} else {
				w.offsets[path] = 0
			}
		}
	}
}

func (w *SessionWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
			w.manager.Broadcast(NewEvent(EventError, map[string]any{
				"code":    "WATCH_ERROR",
				"message": err.Error(),
			}))
		case <-w.done:
			return
		}
	}
}

func (w *SessionWatcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if filepath.Dir(path) == w.projectsDir {
				w.handleNewDir(path)
			}
			return
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		delete(w.knownFiles, path)
		delete(w.offsets, path)
		delete(w.knownDirs, path)
		if t, ok := w.timers[path]; ok {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
		return
	}

	if !IsValidSessionFile(filepath.Base(path)) {
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		w.scheduleProcess(path)
	}
}

// scheduleProcess coalesces bursts of writes to the same file into a
// single processing pass after the debounce window.
func (w *SessionWatcher) scheduleProcess(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if !w.running {
			w.mu.Unlock()
			return
		}
		_, known := w.knownFiles[path]
		w.mu.Unlock()

		if known {
			w.handleSessionUpdate(path)
		} else {
			w.handleNewSession(path)
		}
	})
}

func (w *SessionWatcher) handleNewDir(path string) {
	w.mu.Lock()
	if _, known := w.knownDirs[path]; known {
		w.mu.Unlock()
		return
	}
	w.knownDirs[path] = struct{}{}
	w.mu.Unlock()

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("cannot watch new project dir", "dir", path, "error", err)
	}

	projectID := filepath.Base(path)
	decoded := DecodeProjectPath(projectID)
	w.manager.Broadcast(NewEvent(EventNewProject, map[string]any{
		"id":            projectID,
		"display_name":  decoded,
		"short_name":    ShortName(decoded),
		"session_count": 0,
	}))

	// Files may land in the directory before the watch attaches.
	files, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.Type().IsRegular() && IsValidSessionFile(f.Name()) {
			w.scheduleProcess(filepath.Join(path, f.Name()))
		}
	}
}

func (w *SessionWatcher) handleNewSession(path string) {
	w.mu.Lock()
	w.knownFiles[path] = struct{}{}
	w.mu.Unlock()

	projectID := filepath.Base(filepath.Dir(path))
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	w.store.RegisterSession(sessionID, projectID, path)
	w.store.IncrementProjectSessions(projectID, 1)

	meta := ExtractSessionMetadata(path, projectID, w.logger)
	if meta != nil {
		w.store.UpdateSessionMeta(sessionID, meta)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	w.mu.Lock()
	w.offsets[path] = size
	w.mu.Unlock()

	firstMessage := ""
	var startTime, model, version any
	if meta != nil {
		firstMessage = meta.FirstMessage
		if meta.StartTime != nil {
			startTime = meta.StartTime.Format(time.RFC3339)
		}
		if meta.Model != nil {
			model = *meta.Model
		}
		if meta.Version != nil {
			version = *meta.Version
		}
	}
	w.manager.Broadcast(NewEvent(EventNewSession, map[string]any{
		"session_id":    sessionID,
		"project_id":    projectID,
		"project_name":  ShortName(DecodeProjectPath(projectID)),
		"first_message": firstMessage,
		"start_time":    startTime,
		"model":         model,
		"version":       version,
	}))
	w.logger.Info("new session detected", "session", sessionID, "project", projectID)
}

func (w *SessionWatcher) handleSessionUpdate(path string) {
	w.mu.Lock()
	last := w.offsets[path]
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	size := info.Size()
	if size <= last {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	if _, err := f.Seek(last, io.SeekStart); err != nil {
		f.Close()
		return
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return
	}

	w.mu.Lock()
	w.offsets[path] = last + int64(len(raw))
	w.mu.Unlock()

	newMessages := parseAppendedMessages(raw)

	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	projectID := filepath.Base(filepath.Dir(path))

	for _, msg := range newMessages {
		w.manager.Broadcast(NewEvent(EventNewMessage, map[string]any{
			"session_id": sessionID,
			"project_id": projectID,
			"message":    msg,
		}))
	}

	var endTime any
	if len(newMessages) > 0 {
		endTime = newMessages[len(newMessages)-1]["timestamp"]
	}
	w.manager.Broadcast(NewEvent(EventSessionUpdated, map[string]any{
		"session_id":        sessionID,
		"project_id":        projectID,
		"new_message_count": len(newMessages),
		"end_time":          endTime,
		"file_size_bytes":   size,
	}))

	w.store.InvalidateCache(sessionID)
}

// parseAppendedMessages turns freshly appended JSONL bytes into the
// lightweight message payloads carried by new_message events. Timestamps
// pass through as the raw strings from the file.
func parseAppendedMessages(raw []byte) []map[string]any {
	var messages []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		typ := stringField(obj, "type")
		if typ != MessageTypeUser && typ != MessageTypeAssistant {
			continue
		}
		msgData, _ := obj["message"].(map[string]any)
		content := msgData["content"]

		role := stringField(msgData, "role")
		if role == "" {
			role = typ
		}

		var toolName any
		if blocks, ok := content.([]any); ok {
			for _, b := range blocks {
				if block, ok := b.(map[string]any); ok && stringField(block, "type") == "tool_use" {
					toolName = block["name"]
					break
				}
			}
		}

		messages = append(messages, map[string]any{
			"uuid":         stringField(obj, "uuid"),
			"type":         typ,
			"role":         role,
			"content_text": extractTextPreview(content, previewMaxLen),
			"tool_name":    toolName,
			"timestamp":    obj["timestamp"],
		})
	}
	return messages
}
