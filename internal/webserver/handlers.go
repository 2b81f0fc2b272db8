package webserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/victorarias/cclog/internal/export"
	"github.com/victorarias/cclog/internal/logs"
)

const maxBatchExportSessions = 100

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sortBy, sortOrder := querySortPair(r, "last_active", "last_active", "name", "session_count")
	projects := s.store.ListProjects(sortBy, sortOrder)

	s.writeJSON(w, http.StatusOK, ProjectListResponse{
		Projects:   projects,
		TotalCount: len(projects),
	})
}

func (s *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.getProject(w, parts[0])
	case len(parts) == 2 && parts[1] == "sessions":
		s.listProjectSessions(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) getProject(w http.ResponseWriter, projectID string) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "project_not_found", fmt.Sprintf("Project %s not found", projectID))
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) listProjectSessions(w http.ResponseWriter, r *http.Request, projectID string) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "project_not_found", fmt.Sprintf("Project %s not found", projectID))
		return
	}

	sortBy, sortOrder := querySortPair(r, "start_time", "start_time", "duration", "message_count", "file_size")
	limit := queryInt(r, "limit", 100, 1, 500)
	offset := queryInt(r, "offset", 0, 0, 0)

	sessions := s.store.ListSessions(projectID, sortBy, sortOrder, limit, offset)
	s.writeJSON(w, http.StatusOK, SessionListResponse{
		Sessions:   sessions,
		Project:    project,
		TotalCount: project.SessionCount,
	})
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.getSession(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "messages":
		s.getSessionMessages(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "export":
		s.exportSession(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "share":
		s.shareSession(w, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) fetchConversation(w http.ResponseWriter, sessionID string, opts logs.ConversationOptions) (*logs.Conversation, bool) {
	conv, err := s.store.Conversation(sessionID, opts)
	if err != nil {
		if errors.Is(err, logs.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("Session %s not found", sessionID))
		} else {
			s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to load session")
		}
		return nil, false
	}
	return conv, true
}

func defaultConversationOptions() logs.ConversationOptions {
	return logs.ConversationOptions{IncludeThinking: true, IncludeToolResults: true}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	opts := logs.ConversationOptions{
		IncludeThinking:    queryBool(r, "include_thinking", true),
		IncludeToolResults: queryBool(r, "include_tool_results", true),
		IncludeSidechain:   queryBool(r, "include_sidechain", false),
	}

	conv, ok := s.fetchConversation(w, sessionID, opts)
	if !ok {
		return
	}

	// Fetching a session is a good moment to make it searchable.
	if !s.search.IsSessionIndexed(sessionID) {
		projectName := logs.ShortName(logs.DecodeProjectPath(conv.ProjectID))
		s.search.AddSessionMessages(sessionID, conv.ProjectID, projectName, conv.Messages)
	}

	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) getSessionMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	offset := queryInt(r, "offset", 0, 0, 0)
	limit := queryInt(r, "limit", 100, 1, 1000)

	conv, ok := s.fetchConversation(w, sessionID, defaultConversationOptions())
	if !ok {
		return
	}

	total := len(conv.Messages)
	messages := []logs.Message{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		messages = conv.Messages[offset:end]
	}

	s.writeJSON(w, http.StatusOK, MessagesResponse{
		Messages: messages,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
	})
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	format, ok := export.ParseFormat(queryString(r, "format", string(export.FormatMarkdown)))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown export format")
		return
	}

	conv, fetched := s.fetchConversation(w, sessionID, defaultConversationOptions())
	if !fetched {
		return
	}

	content, err := format.Render(conv)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to render export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(conv)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func (s *Server) shareSession(w http.ResponseWriter, sessionID string) {
	conv, ok := s.fetchConversation(w, sessionID, defaultConversationOptions())
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.ShareHTML(conv)))
}

func (s *Server) handleBatchExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BatchExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if len(req.SessionIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "No session IDs provided")
		return
	}
	if len(req.SessionIDs) > maxBatchExportSessions {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Maximum %d sessions per batch", maxBatchExportSessions))
		return
	}

	format := export.FormatMarkdown
	if req.Format != "" {
		parsed, ok := export.ParseFormat(req.Format)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown export format")
			return
		}
		format = parsed
	}

	fetch := func(sessionID string) (*logs.Conversation, error) {
		return s.store.Conversation(sessionID, defaultConversationOptions())
	}

	var buf bytes.Buffer
	if err := export.WriteBatchZip(&buf, req.SessionIDs, format, fetch, s.logger); err != nil {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="cclog-export.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

const maxSearchQueryLen = 200

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Query parameter 'q' is required")
		return
	}
	if len([]rune(query)) > maxSearchQueryLen {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Query longer than %d characters", maxSearchQueryLen))
		return
	}

	role := queryString(r, "role", "")
	if role != "" && role != "user" && role != "assistant" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Role must be 'user' or 'assistant'")
		return
	}

	projectID := queryString(r, "project_id", "")
	limit := queryInt(r, "limit", 50, 1, 200)

	start := time.Now()
	results := s.search.Search(query, projectID, role, limit)
	elapsed := math.Round(float64(time.Since(start).Microseconds())/10) / 100

	s.writeJSON(w, http.StatusOK, SearchResponse{
		Query:        query,
		TotalResults: len(results),
		Results:      results,
		SearchTimeMS: elapsed,
	})
}
