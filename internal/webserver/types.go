package webserver

import "github.com/victorarias/cclog/internal/logs"

type ProjectListResponse struct {
	Projects   []logs.Project `json:"projects"`
	TotalCount int            `json:"total_count"`
}

type SessionListResponse struct {
	Sessions   []logs.SessionSummary `json:"sessions"`
	Project    logs.Project          `json:"project"`
	TotalCount int                   `json:"total_count"`
}

type MessagesResponse struct {
	Messages []logs.Message `json:"messages"`
	Total    int            `json:"total"`
	Offset   int            `json:"offset"`
	Limit    int            `json:"limit"`
}

type SearchResponse struct {
	Query        string              `json:"query"`
	TotalResults int                 `json:"total_results"`
	Results      []logs.SearchResult `json:"results"`
	SearchTimeMS float64             `json:"search_time_ms"`
}

type BatchExportRequest struct {
	SessionIDs []string `json:"session_ids"`
	Format     string   `json:"format"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
