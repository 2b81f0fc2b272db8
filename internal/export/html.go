package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/victorarias/cclog/internal/logs"
)

const pageStyle = `* { margin: 0; padding: 0; box-sizing: border-box; }
body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, monospace;
  background: #0d1117; color: #c9d1d9; line-height: 1.6; padding: 20px;
  max-width: 960px; margin: 0 auto;
}
h1 { color: #58a6ff; font-size: 1.4em; margin-bottom: 8px; }
.meta { color: #8b949e; font-size: 0.85em; margin-bottom: 20px; padding-bottom: 16px; border-bottom: 1px solid #21262d; }
.meta span { margin-right: 16px; }
.msg { margin-bottom: 16px; border: 1px solid #21262d; border-radius: 8px; overflow: hidden; }
.msg-header {
  padding: 8px 16px; background: #161b22; display: flex; align-items: center; gap: 8px;
  font-size: 0.85em; border-bottom: 1px solid #21262d;
}
.msg-body { padding: 12px 16px; white-space: pre-wrap; word-break: break-word; font-size: 0.9em; }
.role { font-weight: 600; padding: 2px 8px; border-radius: 4px; font-size: 0.8em; }
.role-user { background: #1f6feb33; color: #58a6ff; }
.role-assistant { background: #23863633; color: #3fb950; }
.role-system { background: #58585833; color: #8b949e; }
.model { color: #8b949e; font-size: 0.8em; }
.ts { margin-left: auto; color: #484f58; font-size: 0.8em; }
.thinking {
  background: #161b22; border-left: 3px solid #8957e5; padding: 8px 12px;
  margin: 8px 0; border-radius: 4px; color: #8b949e; font-size: 0.85em;
}
.thinking summary { cursor: pointer; color: #8957e5; font-weight: 500; }
.tool-use {
  background: #161b22; border-left: 3px solid #d29922; padding: 8px 12px;
  margin: 8px 0; border-radius: 4px;
}
.tool-use summary { cursor: pointer; color: #d29922; font-weight: 500; font-size: 0.85em; }
.tool-result {
  background: #0d1117; border: 1px solid #21262d; padding: 8px 12px;
  margin: 4px 0; border-radius: 4px; font-size: 0.85em;
}
.tool-result.error { border-color: #f85149; }
pre { background: #0d1117; padding: 12px; border-radius: 6px; overflow-x: auto; font-size: 0.85em; border: 1px solid #21262d; }
code { font-family: 'SF Mono', 'Fira Code', monospace; }
a { color: #58a6ff; }
.footer { margin-top: 32px; padding-top: 16px; border-top: 1px solid #21262d; color: #484f58; font-size: 0.8em; text-align: center; }
@media (max-width: 640px) {
  body { padding: 12px; }
  .msg-body { padding: 8px 12px; }
}`

// ShareHTML renders a conversation as a self-contained dark-themed page
// suitable for sharing as a single file.
func ShareHTML(conv *logs.Conversation) string {
	meta := exportMeta(conv)
	projectName := logs.ShortName(logs.DecodeProjectPath(meta.ProjectID))

	slug := truncate(meta.ID, 8)
	if meta.Slug != nil && *meta.Slug != "" {
		slug = *meta.Slug
	}
	title := fmt.Sprintf("CC LOG - %s - %s", projectName, slug)

	startStr := "N/A"
	if meta.StartTime != nil {
		startStr = meta.StartTime.Format(dateFormat)
	}
	endStr := "N/A"
	if meta.EndTime != nil {
		endStr = meta.EndTime.Format(dateFormat)
	}

	var messages []string
	for _, msg := range conv.Messages {
		if msg.IsSidechain {
			continue
		}
		ts := ""
		if msg.Timestamp != nil {
			ts = msg.Timestamp.Format(timeFormat)
		}

		switch {
		case msg.Type == logs.MessageTypeUser && !msg.IsMeta:
			messages = append(messages, fmt.Sprintf(`
<div class="msg msg-user">
  <div class="msg-header"><span class="role role-user">User</span><span class="ts">%s</span></div>
  <div class="msg-body">%s</div>
</div>`, ts, contentToHTML(msg)))

		case msg.Type == logs.MessageTypeAssistant:
			modelTag := ""
			if msg.Model != nil && *msg.Model != "" && *msg.Model != "<synthetic>" {
				modelTag = fmt.Sprintf(` <span class="model">%s</span>`, esc(*msg.Model))
			}
			messages = append(messages, fmt.Sprintf(`
<div class="msg msg-assistant">
  <div class="msg-header"><span class="role role-assistant">Assistant</span>%s<span class="ts">%s</span></div>
  <div class="msg-body">%s</div>
</div>`, modelTag, ts, contentToHTML(msg)))

		case msg.Type == logs.MessageTypeSystem:
			messages = append(messages, fmt.Sprintf(`
<div class="msg msg-system">
  <div class="msg-header"><span class="role role-system">System</span><span class="ts">%s</span></div>
  <div class="msg-body"><em>%s</em></div>
</div>`, ts, esc(msg.ContentText)))
		}
	}

	var metaSpans strings.Builder
	fmt.Fprintf(&metaSpans, "<span>Project: %s</span>\n", esc(projectName))
	fmt.Fprintf(&metaSpans, "  <span>Time: %s ~ %s (%s)</span>\n", startStr, endStr, meta.DurationDisplay)
	if meta.Model != nil && *meta.Model != "" {
		fmt.Fprintf(&metaSpans, "  <span>Model: %s</span>\n", esc(*meta.Model))
	}
	if meta.GitBranch != nil && *meta.GitBranch != "" {
		fmt.Fprintf(&metaSpans, "  <span>Branch: %s</span>\n", esc(*meta.GitBranch))
	}
	fmt.Fprintf(&metaSpans, "  <span>Messages: %d</span>", len(conv.Messages))

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>
%s
</style>
</head>
<body>
<h1>%s</h1>
<div class="meta">
  %s
</div>

%s

<div class="footer">
  Generated by CC LOG | Session %s
</div>
</body>
</html>`, esc(title), pageStyle, esc(title), metaSpans.String(), strings.Join(messages, "\n"), esc(conv.SessionID))
}

func contentToHTML(msg logs.Message) string {
	var parts []string
	for _, block := range msg.Content {
		switch b := block.(type) {
		case logs.TextBlock:
			parts = append(parts, fmt.Sprintf("<div>%s</div>", esc(b.Text)))
		case logs.ThinkingBlock:
			parts = append(parts, fmt.Sprintf(
				`<details class="thinking"><summary>Thinking</summary><pre>%s</pre></details>`,
				esc(truncate(b.Text, 3000))))
		case logs.ToolUseBlock:
			parts = append(parts, fmt.Sprintf(
				`<details class="tool-use"><summary>Tool: %s</summary><pre><code>%s</code></pre></details>`,
				esc(b.Name), esc(formatToolInput(b.Name, b.Input))))
		case logs.ToolResultBlock:
			errClass := ""
			if b.IsError {
				errClass = " error"
			}
			parts = append(parts, fmt.Sprintf(
				`<div class="tool-result%s"><pre>%s</pre></div>`,
				errClass, esc(truncate(b.Content, 5000))))
		}
	}

	if msg.ToolResult != nil {
		result := msg.ToolResult
		content := strVal(result.Stdout)
		if content == "" {
			content = strVal(result.Content)
		}
		errClass := ""
		if result.IsError {
			errClass = " error"
		}
		parts = append(parts, fmt.Sprintf(
			`<div class="tool-result%s"><pre>%s</pre></div>`,
			errClass, esc(truncate(content, 5000))))
		if stderr := strVal(result.Stderr); stderr != "" {
			parts = append(parts, fmt.Sprintf(
				`<div class="tool-result error"><pre>STDERR: %s</pre></div>`,
				esc(truncate(stderr, 1000))))
		}
	}

	return strings.Join(parts, "\n")
}

func esc(s string) string {
	return html.EscapeString(s)
}
