package export

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"

	"github.com/victorarias/cclog/internal/logs"
)

// Format selects an export renderer.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatMarkdown, FormatJSON, FormatHTML:
		return Format(s), true
	}
	return "", false
}

func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	}
	return "md"
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

func (f Format) Render(conv *logs.Conversation) (string, error) {
	switch f {
	case FormatJSON:
		return JSON(conv)
	case FormatHTML:
		return ShareHTML(conv), nil
	}
	return Markdown(conv), nil
}

// Filename builds the download name for a single-session export.
func (f Format) Filename(conv *logs.Conversation) string {
	return fmt.Sprintf("cclog-%s.%s", exportSlug(conv), f.Ext())
}

// FetchFunc resolves a session id to its conversation.
type FetchFunc func(sessionID string) (*logs.Conversation, error)

// WriteBatchZip renders each requested session and writes it as one entry
// in a zip archive. Sessions that cannot be fetched or rendered are
// skipped; the archive still contains everything that worked. Entry names
// carry a session id prefix so two sessions with the same slug cannot
// collide.
func WriteBatchZip(w io.Writer, sessionIDs []string, format Format, fetch FetchFunc, logger *slog.Logger) error {
	zw := zip.NewWriter(w)
	for _, sid := range sessionIDs {
		conv, err := fetch(sid)
		if err != nil {
			continue
		}
		content, err := format.Render(conv)
		if err != nil {
			logger.Warn("cannot export session", "session", sid, "error", err)
			continue
		}
		name := fmt.Sprintf("cclog-%s-%s.%s", exportSlug(conv), truncate(sid, 8), format.Ext())
		entry, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			return err
		}
	}
	return zw.Close()
}

func exportSlug(conv *logs.Conversation) string {
	meta := exportMeta(conv)
	if meta.Slug != nil && *meta.Slug != "" {
		return *meta.Slug
	}
	return truncate(conv.SessionID, 8)
}
