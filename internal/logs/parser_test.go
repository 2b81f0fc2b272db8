package logs

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/victorarias/cclog/internal/logging"
)

func parseFixture(t *testing.T, lines ...string) []Message {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.jsonl")
	writeFile(t, path, strings.Join(lines, "\n")+"\n")
	return ParseSession(path, logging.Nop())
}

func TestParseSessionBasicConversation(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"user","uuid":"u1","timestamp":"2025-01-09T10:00:00Z","message":{"role":"user","content":"hello there"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","durationMs":1200,"timestamp":"2025-01-09T10:00:05Z","message":{"role":"assistant","model":"claude-sonnet-4-20250514","stop_reason":"end_turn","content":[{"type":"text","text":"hi!"}]}}`,
	)

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	u := msgs[0]
	if u.Type != MessageTypeUser || u.Role != "user" {
		t.Errorf("user type/role = %s/%s", u.Type, u.Role)
	}
	if u.ContentText != "hello there" {
		t.Errorf("content_text = %q", u.ContentText)
	}
	if len(u.Content) != 1 {
		t.Fatalf("content blocks = %d", len(u.Content))
	}
	if tb, ok := u.Content[0].(TextBlock); !ok || tb.Text != "hello there" {
		t.Errorf("block = %#v", u.Content[0])
	}
	if u.ParentUUID != nil {
		t.Errorf("parent_uuid = %v", u.ParentUUID)
	}

	a := msgs[1]
	if a.Type != MessageTypeAssistant || a.Role != "assistant" {
		t.Errorf("assistant type/role = %s/%s", a.Type, a.Role)
	}
	if a.Model == nil || *a.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %v", a.Model)
	}
	if a.ParentUUID == nil || *a.ParentUUID != "u1" {
		t.Errorf("parent_uuid = %v", a.ParentUUID)
	}
	if a.DurationMS == nil || *a.DurationMS != 1200 {
		t.Errorf("duration_ms = %v", a.DurationMS)
	}
	if a.StopReason == nil || *a.StopReason != "end_turn" {
		t.Errorf("stop_reason = %v", a.StopReason)
	}
	if a.Timestamp == nil {
		t.Error("timestamp missing")
	}
}

func TestParseSessionSkipsNoise(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"progress","uuid":"p1"}`,
		`{"type":"file-history-snapshot","messageId":"x"}`,
		`{"type":"queue-operation","op":"enqueue"}`,
		`{"type":"summary","summary":"compacted","leafUuid":"l1"}`,
		`not valid json at all`,
		``,
		"\ufeff"+`{"type":"user","uuid":"u1","message":{"content":"after the BOM"}}`,
		`{"type":"assistant","uuid":"a0"}`,
	)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ContentText != "after the BOM" {
		t.Errorf("content_text = %q", msgs[0].ContentText)
	}
}

func TestParseSessionToolPairing(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"assistant","uuid":"a1","message":{"model":"m","content":[{"type":"tool_use","id":"tool1","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"tool1","content":"file1\nfile2","is_error":false}]}}`,
	)

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	a := msgs[0]
	if a.ToolName == nil || *a.ToolName != "Bash" {
		t.Errorf("tool_name = %v", a.ToolName)
	}
	if a.ToolInput["command"] != "ls" {
		t.Errorf("tool_input = %v", a.ToolInput)
	}
	if a.ToolResult == nil {
		t.Fatal("tool result was not paired onto the assistant message")
	}
	if a.ToolResult.Content == nil || *a.ToolResult.Content != "file1\nfile2" {
		t.Errorf("paired content = %v", a.ToolResult.Content)
	}
	if a.ToolResult.IsError {
		t.Error("is_error should be false")
	}
	if a.ContentText != "[Tool: Bash]" {
		t.Errorf("content_text = %q", a.ContentText)
	}

	u := msgs[1]
	if u.Type != MessageTypeToolResult {
		t.Errorf("result carrier type = %s, want tool_result", u.Type)
	}
}

func TestParseSessionOrphanToolResult(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"ghost","content":"orphan"}]}}`,
	)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != MessageTypeToolResult {
		t.Errorf("type = %s", msgs[0].Type)
	}
}

func TestParseSessionThinking(t *testing.T) {
	long := strings.Repeat("t", 600)
	msgs := parseFixture(t,
		`{"type":"assistant","uuid":"a1","message":{"model":"m","content":[{"type":"thinking","thinking":"`+long+`"},{"type":"text","text":"answer"}]}}`,
	)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	a := msgs[0]
	if !a.IsThinking {
		t.Error("is_thinking should be true")
	}
	if len(a.Content) != 2 {
		t.Fatalf("blocks = %d", len(a.Content))
	}
	tb, ok := a.Content[0].(ThinkingBlock)
	if !ok || len(tb.Text) != 600 {
		t.Errorf("thinking block = %#v", a.Content[0])
	}
	// content_text truncates thinking to 500 chars.
	want := strings.Repeat("t", 500) + " answer"
	if a.ContentText != want {
		t.Errorf("content_text length = %d", len(a.ContentText))
	}
}

func TestParseSessionThinkingTextFallback(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"assistant","uuid":"a1","message":{"model":"m","content":[{"type":"thinking","text":"from text field"}]}}`,
	)
	if len(msgs) != 1 {
		t.Fatal("expected 1 message")
	}
	tb, ok := msgs[0].Content[0].(ThinkingBlock)
	if !ok || tb.Text != "from text field" {
		t.Errorf("block = %#v", msgs[0].Content[0])
	}
}

func TestParseSessionSystemSubtype(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"system","uuid":"s1","subtype":"compact_boundary","content":"conversation compacted"}`,
		`{"type":"system","uuid":"s2","content":"plain notice"}`,
	)

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ContentText != "[compact_boundary] conversation compacted" {
		t.Errorf("content_text = %q", msgs[0].ContentText)
	}
	if msgs[1].ContentText != "plain notice" {
		t.Errorf("content_text = %q", msgs[1].ContentText)
	}
	if msgs[0].Role != "system" || msgs[0].Type != MessageTypeSystem {
		t.Errorf("type/role = %s/%s", msgs[0].Type, msgs[0].Role)
	}
}

func TestParseSessionSidechainAndMetaFlags(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"user","uuid":"u1","isSidechain":true,"isMeta":true,"isCompactSummary":true,"message":{"content":"flagged"}}`,
	)
	if len(msgs) != 1 {
		t.Fatal("expected 1 message")
	}
	m := msgs[0]
	if !m.IsSidechain || !m.IsMeta || !m.IsCompactSummary {
		t.Errorf("flags = sidechain:%v meta:%v compact:%v", m.IsSidechain, m.IsMeta, m.IsCompactSummary)
	}
}

func TestParseSessionImageBlocksDropped(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"image","source":{"data":"base64junk"}},{"type":"text","text":"see image"}]}}`,
	)
	if len(msgs) != 1 {
		t.Fatal("expected 1 message")
	}
	if len(msgs[0].Content) != 1 {
		t.Fatalf("blocks = %d, image should be dropped", len(msgs[0].Content))
	}
	if msgs[0].ContentText != "see image" {
		t.Errorf("content_text = %q", msgs[0].ContentText)
	}
}

func TestParseSessionNestedToolResultContent(t *testing.T) {
	msgs := parseFixture(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}]}}`,
	)
	if len(msgs) != 1 {
		t.Fatal("expected 1 message")
	}
	tr, ok := msgs[0].Content[0].(ToolResultBlock)
	if !ok {
		t.Fatalf("block = %#v", msgs[0].Content[0])
	}
	if tr.Content != "part one part two" {
		t.Errorf("content = %q", tr.Content)
	}
}

func TestParseToolUseResultShapes(t *testing.T) {
	t.Run("string means error", func(t *testing.T) {
		r := parseToolUseResult("command not found")
		if r == nil || !r.IsError {
			t.Fatalf("r = %+v", r)
		}
		if r.Content == nil || *r.Content != "command not found" {
			t.Errorf("content = %v", r.Content)
		}
	})

	t.Run("stdout shape", func(t *testing.T) {
		r := parseToolUseResult(map[string]any{
			"stdout": "ok\n", "stderr": "", "isImage": false, "interrupted": true,
		})
		if r == nil {
			t.Fatal("nil result")
		}
		if r.Stdout == nil || *r.Stdout != "ok\n" {
			t.Errorf("stdout = %v", r.Stdout)
		}
		if r.IsError {
			t.Error("empty stderr should not flag an error")
		}
		if !r.Interrupted {
			t.Error("interrupted lost")
		}
	})

	t.Run("stderr flags error", func(t *testing.T) {
		r := parseToolUseResult(map[string]any{"stdout": "", "stderr": "boom"})
		if r == nil || !r.IsError {
			t.Fatalf("r = %+v", r)
		}
	})

	t.Run("content shape", func(t *testing.T) {
		r := parseToolUseResult(map[string]any{"content": "file text", "filePath": "/tmp/a.go"})
		if r == nil {
			t.Fatal("nil result")
		}
		if r.Content == nil || *r.Content != "file text" {
			t.Errorf("content = %v", r.Content)
		}
		if r.FilePath == nil || *r.FilePath != "/tmp/a.go" {
			t.Errorf("file_path = %v", r.FilePath)
		}
	})

	t.Run("unknown shape stringified", func(t *testing.T) {
		r := parseToolUseResult(map[string]any{"oldStructure": true})
		if r == nil || r.Content == nil || *r.Content == "" {
			t.Fatalf("r = %+v", r)
		}
	})

	t.Run("empty values", func(t *testing.T) {
		if parseToolUseResult(nil) != nil {
			t.Error("nil input")
		}
		if parseToolUseResult("") != nil {
			t.Error("empty string")
		}
		if parseToolUseResult(map[string]any{}) != nil {
			t.Error("empty map")
		}
	})
}

func TestParseSessionMissingFile(t *testing.T) {
	msgs := ParseSession(filepath.Join(t.TempDir(), "nope.jsonl"), logging.Nop())
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}
