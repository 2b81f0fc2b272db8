package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/victorarias/cclog/internal/logging"
)

func waitForEvent(t *testing.T, ch <-chan Event, eventType string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan Event, eventType string) {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type == eventType {
			t.Fatalf("unexpected %s event: %+v", eventType, ev.Data)
		}
	default:
	}
}

func startWatcher(t *testing.T, dir string, store *Store, manager *ConnectionManager) *SessionWatcher {
	t.Helper()
	w := NewSessionWatcher(dir, store, manager, 30, logging.Nop())
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherNewSession(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "-cclog-watch-alpha")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir, 10, logging.Nop())
	store.BuildIndex(DiscoverSessions(dir, logging.Nop()))
	manager := NewConnectionManager(logging.Nop())
	w := startWatcher(t, dir, store, manager)

	if !w.Active() {
		t.Fatal("watcher should be active after Start")
	}

	id, ch := manager.Subscribe(Subscription{IncludeMessages: true})
	defer manager.Unsubscribe(id)

	writeFile(t, filepath.Join(projectDir, "live-1.jsonl"),
		`{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","version":"1.0.30","message":{"role":"user","content":"watch me"}}`+"\n")

	ev := waitForEvent(t, ch, EventNewSession)
	if ev.Data["session_id"] != "live-1" {
		t.Errorf("session_id = %v", ev.Data["session_id"])
	}
	if ev.Data["project_id"] != "-cclog-watch-alpha" {
		t.Errorf("project_id = %v", ev.Data["project_id"])
	}
	if ev.Data["first_message"] != "watch me" {
		t.Errorf("first_message = %v", ev.Data["first_message"])
	}
	if ev.Data["version"] != "1.0.30" {
		t.Errorf("version = %v", ev.Data["version"])
	}

	if got := store.SessionCount(); got != 1 {
		t.Errorf("SessionCount() = %d, want 1", got)
	}
	p, err := store.GetProject("-cclog-watch-alpha")
	if err != nil {
		t.Fatal(err)
	}
	if p.SessionCount != 1 {
		t.Errorf("project SessionCount = %d, want 1", p.SessionCount)
	}
	if meta := store.SessionMeta("live-1"); meta == nil || meta.FirstMessage != "watch me" {
		t.Errorf("session meta = %+v", meta)
	}
}

func TestWatcherSessionUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "-cclog-watch-alpha", "live-2.jsonl")
	writeFile(t, path,
		`{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"start"}}`+"\n")

	store := NewStore(dir, 10, logging.Nop())
	store.BuildIndex(DiscoverSessions(dir, logging.Nop()))
	manager := NewConnectionManager(logging.Nop())
	startWatcher(t, dir, store, manager)

	id, ch := manager.Subscribe(Subscription{IncludeMessages: true})
	defer manager.Unsubscribe(id)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	appended := `{"type":"user","uuid":"u2","timestamp":"2025-06-01T10:05:00Z","message":{"role":"user","content":"run the tests"}}` + "\n" +
		`{"type":"assistant","uuid":"a1","timestamp":"2025-06-01T10:05:30Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"go test"}}]}}` + "\n"
	if _, err := f.WriteString(appended); err != nil {
		t.Fatal(err)
	}
	f.Close()

	first := waitForEvent(t, ch, EventNewMessage)
	msg, ok := first.Data["message"].(map[string]any)
	if !ok {
		t.Fatalf("message payload = %T", first.Data["message"])
	}
	if msg["uuid"] != "u2" || msg["role"] != "user" {
		t.Errorf("first message = %+v", msg)
	}
	if msg["content_text"] != "run the tests" {
		t.Errorf("content_text = %v", msg["content_text"])
	}
	if msg["timestamp"] != "2025-06-01T10:05:00Z" {
		t.Errorf("timestamp passthrough = %v", msg["timestamp"])
	}

	second := waitForEvent(t, ch, EventNewMessage)
	msg = second.Data["message"].(map[string]any)
	if msg["tool_name"] != "Bash" {
		t.Errorf("tool_name = %v", msg["tool_name"])
	}
	if msg["content_text"] != "" {
		t.Errorf("assistant content_text = %v", msg["content_text"])
	}

	updated := waitForEvent(t, ch, EventSessionUpdated)
	if updated.Data["new_message_count"] != 2 {
		t.Errorf("new_message_count = %v", updated.Data["new_message_count"])
	}
	if updated.Data["end_time"] != "2025-06-01T10:05:30Z" {
		t.Errorf("end_time = %v", updated.Data["end_time"])
	}
	if size, ok := updated.Data["file_size_bytes"].(int64); !ok || size == 0 {
		t.Errorf("file_size_bytes = %v", updated.Data["file_size_bytes"])
	}
}

func TestWatcherNewProject(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir, 10, logging.Nop())
	store.BuildIndex(DiscoverSessions(dir, logging.Nop()))
	manager := NewConnectionManager(logging.Nop())
	startWatcher(t, dir, store, manager)

	id, ch := manager.Subscribe(Subscription{IncludeMessages: true})
	defer manager.Unsubscribe(id)

	projectDir := filepath.Join(dir, "-cclog-watch-fresh")
	if err := os.Mkdir(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}

	ev := waitForEvent(t, ch, EventNewProject)
	if ev.Data["id"] != "-cclog-watch-fresh" {
		t.Errorf("id = %v", ev.Data["id"])
	}
	if ev.Data["short_name"] != "cclog-watch-fresh" {
		t.Errorf("short_name = %v", ev.Data["short_name"])
	}
	if ev.Data["session_count"] != 0 {
		t.Errorf("session_count = %v", ev.Data["session_count"])
	}

	// Projects announced live are not registered; they appear in the
	// project list only after the next full index build.
	if _, err := store.GetProject("-cclog-watch-fresh"); err != ErrProjectNotFound {
		t.Errorf("GetProject err = %v, want ErrProjectNotFound", err)
	}

	writeFile(t, filepath.Join(projectDir, "live-3.jsonl"),
		`{"type":"user","uuid":"u1","timestamp":"2025-06-01T11:00:00Z","message":{"role":"user","content":"brand new"}}`+"\n")

	sess := waitForEvent(t, ch, EventNewSession)
	if sess.Data["session_id"] != "live-3" {
		t.Errorf("session_id = %v", sess.Data["session_id"])
	}
	if got := store.SessionCount(); got != 1 {
		t.Errorf("SessionCount() = %d, want 1", got)
	}
}

func TestWatcherIgnoresInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "-cclog-watch-alpha")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir, 10, logging.Nop())
	store.BuildIndex(DiscoverSessions(dir, logging.Nop()))
	manager := NewConnectionManager(logging.Nop())
	startWatcher(t, dir, store, manager)

	id, ch := manager.Subscribe(Subscription{IncludeMessages: true})
	defer manager.Unsubscribe(id)

	writeFile(t, filepath.Join(projectDir, "._resource.jsonl"), "junk")
	writeFile(t, filepath.Join(projectDir, "notes.txt"), "not a session")
	writeFile(t, filepath.Join(projectDir, "valid.jsonl"),
		`{"type":"user","uuid":"u1","timestamp":"2025-06-01T12:00:00Z","message":{"role":"user","content":"real"}}`+"\n")

	ev := waitForEvent(t, ch, EventNewSession)
	if ev.Data["session_id"] != "valid" {
		t.Errorf("session_id = %v", ev.Data["session_id"])
	}
	expectNoEvent(t, ch, EventNewSession)
	if got := store.SessionCount(); got != 1 {
		t.Errorf("SessionCount() = %d, want 1", got)
	}
}

func TestWatcherDeleteAndRecreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "-cclog-watch-alpha", "cycle.jsonl")
	writeFile(t, path,
		`{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"first life"}}`+"\n")

	store := NewStore(dir, 10, logging.Nop())
	store.BuildIndex(DiscoverSessions(dir, logging.Nop()))
	manager := NewConnectionManager(logging.Nop())
	startWatcher(t, dir, store, manager)

	id, ch := manager.Subscribe(Subscription{IncludeMessages: true})
	defer manager.Unsubscribe(id)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	// Give the remove event time to clear the tracked state.
	time.Sleep(200 * time.Millisecond)

	writeFile(t, path,
		`{"type":"user","uuid":"u2","timestamp":"2025-06-01T13:00:00Z","message":{"role":"user","content":"second life"}}`+"\n")

	ev := waitForEvent(t, ch, EventNewSession)
	if ev.Data["session_id"] != "cycle" {
		t.Errorf("session_id = %v", ev.Data["session_id"])
	}
	if ev.Data["first_message"] != "second life" {
		t.Errorf("first_message = %v", ev.Data["first_message"])
	}
}
