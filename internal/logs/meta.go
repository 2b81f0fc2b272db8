package logs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// Metadata comes from the head of the file only; anything past this many
	// lines would be a full parse.
	metadataHeadLines = 20
	// Tail window scanned backwards for the closing timestamp.
	metadataTailBytes = 8192
	// Rough average bytes per JSONL record, used to estimate message counts
	// without reading whole files.
	estimatedBytesPerMessage = 500

	previewMaxLen = 200

	noUserMessage = "(no user message)"
)

var (
	commandMessageRe = regexp.MustCompile(`(?s)<command-message>.*?</command-message>`)
	commandNameRe    = regexp.MustCompile(`(?s)<command-name>.*?</command-name>`)
	commandArgsRe    = regexp.MustCompile(`</?command-args>`)
)

// ExtractSessionMetadata builds a SessionSummary from the head and tail of a
// session file without parsing it in full. Returns nil for empty or
// unreadable files.
func ExtractSessionMetadata(path, projectID string, logger *slog.Logger) *SessionSummary {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("cannot read session file", "path", path, "error", err)
		return nil
	}
	fileSize := info.Size()
	if fileSize == 0 {
		return nil
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	var (
		firstUserMsg   string
		firstTimestamp *time.Time
		model          string
		version        string
		cwd            string
		gitBranch      string
		slug           string
	)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("cannot read session file", "path", path, "error", err)
		return nil
	}
	reader := bufio.NewReader(f)
	for i := 0; i <= metadataHeadLines; i++ {
		line, readErr := reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var obj map[string]any
			if json.Unmarshal(trimmed, &obj) == nil {
				lineType, _ := obj["type"].(string)
				if lineType != "file-history-snapshot" {
					if firstTimestamp == nil {
						firstTimestamp = parseTimestamp(obj["timestamp"])
					}
					if version == "" {
						version, _ = obj["version"].(string)
					}
					if cwd == "" {
						cwd, _ = obj["cwd"].(string)
					}
					if gitBranch == "" {
						gitBranch, _ = obj["gitBranch"].(string)
					}
					if slug == "" {
						slug, _ = obj["slug"].(string)
					}
					if lineType == "user" && firstUserMsg == "" {
						if msg, ok := obj["message"].(map[string]any); ok {
							firstUserMsg = extractTextPreview(msg["content"], previewMaxLen)
						}
					}
					if lineType == "assistant" && model == "" {
						if msg, ok := obj["message"].(map[string]any); ok {
							if m, ok := msg["model"].(string); ok && m != "<synthetic>" {
								model = m
							}
						}
					}
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	f.Close()

	lastTimestamp := readLastTimestamp(path)

	estimated := fileSize / estimatedBytesPerMessage
	if estimated < 1 {
		estimated = 1
	}

	var duration *int64
	if firstTimestamp != nil && lastTimestamp != nil {
		if delta := int64(lastTimestamp.Sub(*firstTimestamp).Seconds()); delta > 0 {
			duration = &delta
		}
	}

	firstMessage := firstUserMsg
	if firstMessage == "" {
		firstMessage = noUserMessage
	}

	summary := &SessionSummary{
		ID:              sessionID,
		ProjectID:       projectID,
		FirstMessage:    firstMessage,
		MessageCount:    int(estimated),
		StartTime:       firstTimestamp,
		EndTime:         lastTimestamp,
		DurationSeconds: duration,
		Model:           optStr(model),
		Version:         optStr(version),
		Cwd:             optStr(cwd),
		GitBranch:       optStr(gitBranch),
		FileSizeBytes:   fileSize,
		Slug:            optStr(slug),
	}
	if duration != nil {
		summary.DurationDisplay = FormatDuration(*duration)
	}
	return summary
}

// readLastTimestamp seeks to the end of the file and scans the final lines
// backwards for a parseable timestamp.
func readLastTimestamp(path string) *time.Time {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	readSize := min(int64(metadataTailBytes), info.Size())
	if readSize == 0 {
		return nil
	}
	if _, err := f.Seek(-readSize, io.SeekEnd); err != nil {
		return nil
	}
	tail := make([]byte, readSize)
	if _, err := io.ReadFull(f, tail); err != nil {
		return nil
	}

	lines := strings.Split(strings.TrimSpace(string(tail)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		var obj map[string]any
		if json.Unmarshal([]byte(lines[i]), &obj) != nil {
			continue
		}
		if ts := parseTimestamp(obj["timestamp"]); ts != nil {
			return ts
		}
	}
	return nil
}

// parseTimestamp handles the timestamp shapes seen in session files:
// RFC 3339 strings (with or without fractional seconds) and positive epoch
// seconds. Anything else yields nil.
func parseTimestamp(v any) *time.Time {
	switch ts := v.(type) {
	case string:
		if ts == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				t = t.UTC()
				return &t
			}
		}
	case float64:
		if ts > 0 {
			sec := int64(ts)
			nsec := int64((ts - float64(sec)) * 1e9)
			t := time.Unix(sec, nsec).UTC()
			return &t
		}
	}
	return nil
}

// extractTextPreview flattens message content into a short single string.
// Command XML tags that slash commands wrap around their payloads are
// stripped out.
func extractTextPreview(content any, maxLen int) string {
	var text string
	switch c := content.(type) {
	case string:
		text = c
	case []any:
		var parts []string
		for _, item := range c {
			switch block := item.(type) {
			case map[string]any:
				switch block["type"] {
				case "text":
					t, _ := block["text"].(string)
					parts = append(parts, t)
				case "tool_result":
					snippet := truncateRunes(stringifyAny(block["content"]), 50)
					parts = append(parts, fmt.Sprintf("[Tool Result: %s]", snippet))
				}
			case string:
				parts = append(parts, block)
			}
		}
		text = strings.Join(parts, " ")
	default:
		return truncateRunes(stringifyAny(content), maxLen)
	}

	text = commandMessageRe.ReplaceAllString(text, "")
	text = commandNameRe.ReplaceAllString(text, "")
	text = commandArgsRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len([]rune(text)) > maxLen {
		return truncateRunes(text, maxLen) + "..."
	}
	return text
}

func stringifyAny(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
