package logs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ParseSession reads a complete JSONL session file into messages. Malformed
// lines are skipped, tool results are paired back onto the assistant message
// that issued the call. A missing or partially readable file yields whatever
// could be parsed.
func ParseSession(path string, logger *slog.Logger) []Message {
	messages := make([]Message, 0)
	// tool_use_id -> index of the assistant message awaiting its result
	pending := make(map[string]int)

	f, err := os.Open(path)
	if err != nil {
		logger.Error("error parsing session", "path", path, "error", err)
		return messages
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		trimmed = bytes.TrimPrefix(trimmed, []byte("\ufeff"))
		if len(trimmed) > 0 {
			var obj map[string]any
			if json.Unmarshal(trimmed, &obj) == nil {
				lineType, _ := obj["type"].(string)
				timestamp := parseTimestamp(obj["timestamp"])

				switch lineType {
				case "progress", "file-history-snapshot", "queue-operation", "summary":
					// Bookkeeping records, not conversation messages.
				case "user":
					msgData, _ := obj["message"].(map[string]any)
					messages = append(messages, parseUserMessage(obj, msgData, timestamp))
					pairToolResults(messages, pending)
				case "assistant":
					msgData, _ := obj["message"].(map[string]any)
					if len(msgData) > 0 {
						messages = append(messages, parseAssistantMessage(obj, msgData, timestamp))
						trackToolUses(messages, pending)
					}
				case "system":
					messages = append(messages, parseSystemMessage(obj, timestamp))
				}
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Error("error parsing session", "path", path, "error", readErr)
			}
			break
		}
	}
	return messages
}

func parseUserMessage(obj, msgData map[string]any, timestamp *time.Time) Message {
	blocks := normalizeContent(msgData["content"])
	contentText := blocksToText(blocks)

	toolResult := parseToolUseResult(obj["toolUseResult"])

	msgType := MessageTypeUser
	if toolResult != nil {
		msgType = MessageTypeToolResult
	} else {
		for _, b := range blocks {
			if _, ok := b.(ToolResultBlock); ok {
				msgType = MessageTypeToolResult
				break
			}
		}
	}

	return Message{
		UUID:             stringField(obj, "uuid"),
		ParentUUID:       strPtrField(obj, "parentUuid"),
		Type:             msgType,
		Role:             "user",
		Content:          blocks,
		ContentText:      contentText,
		Timestamp:        timestamp,
		ToolResult:       toolResult,
		IsSidechain:      boolField(obj, "isSidechain"),
		IsMeta:           boolField(obj, "isMeta"),
		IsCompactSummary: boolField(obj, "isCompactSummary"),
	}
}

func parseAssistantMessage(obj, msgData map[string]any, timestamp *time.Time) Message {
	blocks := normalizeContent(msgData["content"])
	contentText := blocksToText(blocks)

	var toolName *string
	var toolInput map[string]any
	for _, b := range blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			name := tu.Name
			toolName = &name
			toolInput = tu.Input
			break
		}
	}

	isThinking := false
	for _, b := range blocks {
		if _, ok := b.(ThinkingBlock); ok {
			isThinking = true
			break
		}
	}

	return Message{
		UUID:             stringField(obj, "uuid"),
		ParentUUID:       strPtrField(obj, "parentUuid"),
		Type:             MessageTypeAssistant,
		Role:             "assistant",
		Content:          blocks,
		ContentText:      contentText,
		Timestamp:        timestamp,
		ToolName:         toolName,
		ToolInput:        toolInput,
		IsThinking:       isThinking,
		IsSidechain:      boolField(obj, "isSidechain"),
		IsMeta:           boolField(obj, "isMeta"),
		IsCompactSummary: boolField(obj, "isCompactSummary"),
		Model:            strPtrField(msgData, "model"),
		DurationMS:       int64PtrField(obj, "durationMs"),
		StopReason:       strPtrField(msgData, "stop_reason"),
	}
}

func parseSystemMessage(obj map[string]any, timestamp *time.Time) Message {
	contentStr := stringField(obj, "content")
	subtype := stringField(obj, "subtype")

	displayText := contentStr
	if subtype != "" {
		displayText = fmt.Sprintf("[%s] %s", subtype, contentStr)
	}

	blocks := []Block{}
	if displayText != "" {
		blocks = []Block{newTextBlock(displayText)}
	}

	return Message{
		UUID:             stringField(obj, "uuid"),
		ParentUUID:       strPtrField(obj, "parentUuid"),
		Type:             MessageTypeSystem,
		Role:             "system",
		Content:          blocks,
		ContentText:      displayText,
		Timestamp:        timestamp,
		IsCompactSummary: boolField(obj, "isCompactSummary"),
	}
}

// pairToolResults matches tool_result blocks on the newest user message with
// the assistant message that issued the tool call.
func pairToolResults(messages []Message, pending map[string]int) {
	userMsg := messages[len(messages)-1]
	for _, block := range userMsg.Content {
		tr, ok := block.(ToolResultBlock)
		if !ok {
			continue
		}
		idx, exists := pending[tr.ToolUseID]
		if !exists {
			continue
		}
		delete(pending, tr.ToolUseID)
		content := truncateRunes(tr.Content, 2000)
		messages[idx].ToolResult = &ToolResultData{
			Content: &content,
			IsError: tr.IsError,
		}
	}
}

// trackToolUses records tool_use blocks on the newest assistant message for
// future pairing.
func trackToolUses(messages []Message, pending map[string]int) {
	idx := len(messages) - 1
	for _, block := range messages[idx].Content {
		if tu, ok := block.(ToolUseBlock); ok {
			pending[tu.ToolUseID] = idx
		}
	}
}

// normalizeContent turns the raw content field (string, list of blocks, or
// anything else) into typed blocks. Image and unknown block types are
// dropped; base64 payloads are too large to ship in API responses.
func normalizeContent(content any) []Block {
	switch c := content.(type) {
	case string:
		if c == "" {
			return []Block{}
		}
		return []Block{newTextBlock(c)}
	case []any:
		blocks := make([]Block, 0, len(c))
		for _, item := range c {
			switch block := item.(type) {
			case string:
				blocks = append(blocks, newTextBlock(block))
			case map[string]any:
				switch block["type"] {
				case "text":
					blocks = append(blocks, newTextBlock(stringField(block, "text")))
				case "thinking":
					text, ok := block["thinking"].(string)
					if !ok {
						text = stringField(block, "text")
					}
					blocks = append(blocks, newThinkingBlock(text))
				case "tool_use":
					input, _ := block["input"].(map[string]any)
					if input == nil {
						input = map[string]any{}
					}
					blocks = append(blocks, ToolUseBlock{
						Type:      "tool_use",
						ToolUseID: stringField(block, "id"),
						Name:      stringField(block, "name"),
						Input:     input,
					})
				case "tool_result":
					blocks = append(blocks, ToolResultBlock{
						Type:      "tool_result",
						ToolUseID: stringField(block, "tool_use_id"),
						Content:   flattenResultContent(block["content"]),
						IsError:   boolField(block, "is_error"),
					})
				}
			}
		}
		return blocks
	default:
		if content == nil {
			return []Block{}
		}
		return []Block{newTextBlock(stringifyAny(content))}
	}
}

// flattenResultContent joins the text of nested result blocks into one string.
func flattenResultContent(content any) string {
	list, ok := content.([]any)
	if !ok {
		return stringifyAny(content)
	}
	var parts []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := m["text"].(string); ok {
			parts = append(parts, text)
		} else {
			parts = append(parts, fmt.Sprintf("%v", m))
		}
	}
	return strings.Join(parts, " ")
}

func blocksToText(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case TextBlock:
			parts = append(parts, b.Text)
		case ThinkingBlock:
			parts = append(parts, truncateRunes(b.Text, 500))
		case ToolUseBlock:
			parts = append(parts, fmt.Sprintf("[Tool: %s]", b.Name))
		case ToolResultBlock:
			parts = append(parts, truncateRunes(b.Content, 200))
		}
	}
	return strings.Join(parts, " ")
}

// parseToolUseResult normalizes the toolUseResult field found on user lines.
// A bare string is an error payload. Shell-style results carry stdout/stderr,
// file-style results carry content plus an optional path.
func parseToolUseResult(raw any) *ToolResultData {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		content := truncateRunes(v, 2000)
		return &ToolResultData{Content: &content, IsError: true}
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		if _, ok := v["stdout"]; ok {
			stderr := stringField(v, "stderr")
			return &ToolResultData{
				Stdout:      strPtrField(v, "stdout"),
				Stderr:      strPtrField(v, "stderr"),
				IsError:     stderr != "",
				IsImage:     boolField(v, "isImage"),
				Interrupted: boolField(v, "interrupted"),
			}
		}
		if _, ok := v["content"]; ok {
			content := truncateRunes(stringifyAny(v["content"]), 2000)
			var filePath *string
			if s, ok := v["filePath"].(string); ok && s != "" {
				filePath = &s
			} else if s, ok := v["file"].(string); ok {
				filePath = &s
			}
			return &ToolResultData{
				Content:  &content,
				FilePath: filePath,
				IsError:  boolField(v, "is_error"),
			}
		}
		content := truncateRunes(fmt.Sprintf("%v", v), 500)
		return &ToolResultData{Content: &content}
	}
	return nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func boolField(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

func strPtrField(obj map[string]any, key string) *string {
	if s, ok := obj[key].(string); ok {
		return &s
	}
	return nil
}

func int64PtrField(obj map[string]any, key string) *int64 {
	if f, ok := obj[key].(float64); ok {
		v := int64(f)
		return &v
	}
	return nil
}
