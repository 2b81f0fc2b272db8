// Package export renders parsed conversations into portable formats:
// markdown transcripts, standalone HTML pages, JSON dumps and zip
// archives of any of those.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/victorarias/cclog/internal/logs"
)

const (
	dateFormat = "2006-01-02 15:04:05"
	timeFormat = "15:04:05"
)

// Markdown renders a conversation as a readable transcript. Tool inputs
// get fenced code blocks, thinking goes into collapsible sections, and
// tool-result carrier messages are folded into the assistant turn that
// produced them.
func Markdown(conv *logs.Conversation) string {
	meta := exportMeta(conv)
	var lines []string

	lines = append(lines, fmt.Sprintf("# Session: %s", conv.SessionID))
	if meta.Slug != nil && *meta.Slug != "" {
		lines = append(lines, fmt.Sprintf("**Slug**: %s", *meta.Slug))
	}
	lines = append(lines, fmt.Sprintf("**Project**: %s", logs.ShortName(logs.DecodeProjectPath(meta.ProjectID))))

	startStr := "N/A"
	if meta.StartTime != nil {
		startStr = meta.StartTime.Format(dateFormat)
	}
	endStr := "N/A"
	if meta.EndTime != nil {
		endStr = meta.EndTime.Format(dateFormat)
	}
	lines = append(lines, fmt.Sprintf("**Date**: %s ~ %s (%s)", startStr, endStr, meta.DurationDisplay))

	if meta.Model != nil && *meta.Model != "" {
		lines = append(lines, fmt.Sprintf("**Model**: %s", *meta.Model))
	}
	if meta.Version != nil && *meta.Version != "" {
		lines = append(lines, fmt.Sprintf("**Version**: %s", *meta.Version))
	}
	if meta.Cwd != nil && *meta.Cwd != "" {
		lines = append(lines, fmt.Sprintf("**Working Directory**: %s", *meta.Cwd))
	}
	if meta.GitBranch != nil && *meta.GitBranch != "" {
		lines = append(lines, fmt.Sprintf("**Git Branch**: %s", *meta.GitBranch))
	}

	lines = append(lines, "", "---", "")

	for _, msg := range conv.Messages {
		tsStr := ""
		if msg.Timestamp != nil {
			tsStr = msg.Timestamp.Format(timeFormat)
		}

		switch {
		case msg.Type == logs.MessageTypeUser && !msg.IsMeta:
			lines = append(lines, fmt.Sprintf("## User %s", tsStr), "")
			for _, block := range msg.Content {
				switch b := block.(type) {
				case logs.TextBlock:
					lines = append(lines, b.Text)
				case logs.ToolResultBlock:
					lines = append(lines, fmt.Sprintf("### Tool Result (`%s...`)", truncate(b.ToolUseID, 12)))
					if b.IsError {
						lines = append(lines, "**Error:**")
					}
					lines = append(lines, "```", truncate(b.Content, 5000), "```")
				}
			}
			lines = append(lines, "")

		case msg.Type == logs.MessageTypeAssistant:
			modelTag := ""
			if msg.Model != nil && *msg.Model != "" && *msg.Model != "<synthetic>" {
				modelTag = fmt.Sprintf(" [%s]", *msg.Model)
			}
			lines = append(lines, fmt.Sprintf("## Assistant%s %s", modelTag, tsStr), "")
			for _, block := range msg.Content {
				switch b := block.(type) {
				case logs.TextBlock:
					lines = append(lines, b.Text)
				case logs.ThinkingBlock:
					lines = append(lines, "<details><summary>Thinking</summary>", "", truncate(b.Text, 3000), "", "</details>")
				case logs.ToolUseBlock:
					lines = append(lines, fmt.Sprintf("### Tool: %s", b.Name))
					lines = append(lines, fmt.Sprintf("```%s", toolLang(b.Name)))
					lines = append(lines, formatToolInput(b.Name, b.Input), "```")
				}
			}
			if msg.ToolResult != nil {
				lines = append(lines, "### Result", "```")
				resultText := strVal(msg.ToolResult.Stdout)
				if resultText == "" {
					resultText = strVal(msg.ToolResult.Content)
				}
				lines = append(lines, truncate(resultText, 5000))
				if stderr := strVal(msg.ToolResult.Stderr); stderr != "" {
					lines = append(lines, fmt.Sprintf("\nSTDERR: %s", truncate(stderr, 1000)))
				}
				lines = append(lines, "```")
			}
			lines = append(lines, "")

		case msg.Type == logs.MessageTypeToolResult:
			// Rendered inline with the assistant turn that issued the tool.
			continue

		case msg.Type == logs.MessageTypeSystem:
			lines = append(lines, fmt.Sprintf("> **System** %s: %s", tsStr, msg.ContentText), "")
		}

		lines = append(lines, "---", "")
	}

	return strings.Join(lines, "\n")
}

func toolLang(toolName string) string {
	switch toolName {
	case "Bash":
		return "bash"
	case "Read", "Write", "Edit", "Glob", "Grep":
		return ""
	}
	return "json"
}

func formatToolInput(toolName string, input map[string]any) string {
	switch toolName {
	case "Bash":
		cmd := stringVal(input, "command")
		if desc := stringVal(input, "description"); desc != "" {
			return fmt.Sprintf("# %s\n%s", desc, cmd)
		}
		return cmd
	case "Read":
		fp := stringVal(input, "file_path")
		extra := ""
		if offset, ok := truthyVal(input, "offset"); ok {
			extra = fmt.Sprintf(" (offset=%v", offset)
			if limit, ok := truthyVal(input, "limit"); ok {
				extra += fmt.Sprintf(", limit=%v", limit)
			}
			extra += ")"
		}
		return fp + extra
	case "Write":
		return fmt.Sprintf("# Write to: %s\n%s", stringVal(input, "file_path"), truncate(stringVal(input, "content"), 2000))
	case "Edit":
		return fmt.Sprintf("# Edit: %s\n- old: %s\n+ new: %s",
			stringVal(input, "file_path"),
			truncate(stringVal(input, "old_string"), 500),
			truncate(stringVal(input, "new_string"), 500))
	case "Glob":
		if pattern, ok := input["pattern"].(string); ok {
			return pattern
		}
		return fmt.Sprintf("%v", input)
	case "Grep":
		parts := []string{fmt.Sprintf("pattern: %s", stringVal(input, "pattern"))}
		if path := stringVal(input, "path"); path != "" {
			parts = append(parts, fmt.Sprintf("path: %s", path))
		}
		if glob := stringVal(input, "glob"); glob != "" {
			parts = append(parts, fmt.Sprintf("glob: %s", glob))
		}
		return strings.Join(parts, "\n")
	}

	raw, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return truncate(string(raw), 3000)
}

func exportMeta(conv *logs.Conversation) *logs.SessionSummary {
	if conv.Metadata != nil {
		return conv.Metadata
	}
	return &logs.SessionSummary{ID: conv.SessionID, ProjectID: conv.ProjectID}
}

func stringVal(input map[string]any, key string) string {
	if s, ok := input[key].(string); ok {
		return s
	}
	return ""
}

// truthyVal reports a key whose value is present and non-zero in the
// loose sense JSON payloads use: non-empty string, non-zero number, true.
func truthyVal(input map[string]any, key string) (any, bool) {
	v, ok := input[key]
	if !ok || v == nil {
		return nil, false
	}
	switch t := v.(type) {
	case string:
		return v, t != ""
	case float64:
		return v, t != 0
	case bool:
		return v, t
	}
	return v, true
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
