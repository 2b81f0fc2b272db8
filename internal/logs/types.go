package logs

import (
	"fmt"
	"time"
)

// Message types as they appear on the wire.
const (
	MessageTypeUser       = "user"
	MessageTypeAssistant  = "assistant"
	MessageTypeSystem     = "system"
	MessageTypeToolResult = "tool_result"
)

// Block is one entry in a message's content list. The concrete types form a
// closed set so callers can type switch without a default branch surprise.
type Block interface {
	isBlock()
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ThinkingBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolUseBlock struct {
	Type      string         `json:"type"`
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type ToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

func (TextBlock) isBlock()       {}
func (ThinkingBlock) isBlock()   {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

func newTextBlock(text string) TextBlock {
	return TextBlock{Type: "text", Text: text}
}

func newThinkingBlock(text string) ThinkingBlock {
	return ThinkingBlock{Type: "thinking", Text: text}
}

// ToolResultData is the normalized result attached to the assistant message
// that issued the tool call.
type ToolResultData struct {
	Stdout      *string `json:"stdout"`
	Stderr      *string `json:"stderr"`
	IsError     bool    `json:"is_error"`
	IsImage     bool    `json:"is_image"`
	FilePath    *string `json:"file_path"`
	Content     *string `json:"content"`
	Interrupted bool    `json:"interrupted"`
}

type Message struct {
	UUID             string          `json:"uuid"`
	ParentUUID       *string         `json:"parent_uuid"`
	Type             string          `json:"type"`
	Role             string          `json:"role"`
	Content          []Block         `json:"content"`
	ContentText      string          `json:"content_text"`
	Timestamp        *time.Time      `json:"timestamp"`
	ToolName         *string         `json:"tool_name"`
	ToolInput        map[string]any  `json:"tool_input"`
	ToolResult       *ToolResultData `json:"tool_result"`
	IsThinking       bool            `json:"is_thinking"`
	IsSidechain      bool            `json:"is_sidechain"`
	IsMeta           bool            `json:"is_meta"`
	IsCompactSummary bool            `json:"is_compact_summary"`
	Model            *string         `json:"model"`
	DurationMS       *int64          `json:"duration_ms"`
	StopReason       *string         `json:"stop_reason"`
}

type Project struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	ShortName      string     `json:"short_name"`
	Path           string     `json:"path"`
	SessionCount   int        `json:"session_count"`
	LastActive     *time.Time `json:"last_active"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
}

type SessionSummary struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	FirstMessage    string     `json:"first_message"`
	MessageCount    int        `json:"message_count"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
	DurationDisplay string     `json:"duration_display"`
	Model           *string    `json:"model"`
	Version         *string    `json:"version"`
	Cwd             *string    `json:"cwd"`
	GitBranch       *string    `json:"git_branch"`
	FileSizeBytes   int64      `json:"file_size_bytes"`
	Slug            *string    `json:"slug"`
}

type Conversation struct {
	SessionID string          `json:"session_id"`
	ProjectID string          `json:"project_id"`
	Messages  []Message       `json:"messages"`
	Metadata  *SessionSummary `json:"metadata"`
}

type SearchResult struct {
	SessionID   string     `json:"session_id"`
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	MessageUUID string     `json:"message_uuid"`
	Role        string     `json:"role"`
	Snippet     string     `json:"snippet"`
	Timestamp   *time.Time `json:"timestamp"`
	MatchCount  int        `json:"match_count"`
}

type Stats struct {
	TotalProjects          int        `json:"total_projects"`
	TotalSessions          int        `json:"total_sessions"`
	TotalMessagesEstimated int        `json:"total_messages_estimated"`
	TotalSizeBytes         int64      `json:"total_size_bytes"`
	OldestSession          *time.Time `json:"oldest_session"`
	NewestSession          *time.Time `json:"newest_session"`
}

// FormatDuration renders a duration in seconds as "1h 2m", "3m 4s" or "5s".
// Zero and negative values render as an empty string.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	mins, secs := seconds/60, seconds%60
	hours, mins := mins/60, mins%60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func strPtr(s string) *string { return &s }
