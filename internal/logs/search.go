package logs

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultSnippetChars = 120

type searchEntry struct {
	sessionID    string
	projectID    string
	projectName  string
	messageUUID  string
	role         string
	textLower    string
	textOriginal string
	timestamp    *time.Time
}

// SearchIndex is an in-memory full-text index over message content. It is
// append-only: once a session's messages are added they are never re-indexed.
type SearchIndex struct {
	mu              sync.RWMutex
	entries         []searchEntry
	snippetChars    int
	indexedSessions map[string]struct{}
}

func NewSearchIndex(snippetChars int) *SearchIndex {
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	return &SearchIndex{
		snippetChars:    snippetChars,
		indexedSessions: make(map[string]struct{}),
	}
}

// AddSessionMessages indexes every message with non-blank content text.
// Calling it again for the same session is a no-op.
func (s *SearchIndex) AddSessionMessages(sessionID, projectID, projectName string, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.indexedSessions[sessionID]; done {
		return
	}
	for i := range messages {
		msg := &messages[i]
		if strings.TrimSpace(msg.ContentText) == "" {
			continue
		}
		role := msg.Role
		if role == "" {
			role = msg.Type
		}
		s.entries = append(s.entries, searchEntry{
			sessionID:    sessionID,
			projectID:    projectID,
			projectName:  projectName,
			messageUUID:  msg.UUID,
			role:         role,
			textLower:    strings.ToLower(msg.ContentText),
			textOriginal: msg.ContentText,
			timestamp:    msg.Timestamp,
		})
	}
	s.indexedSessions[sessionID] = struct{}{}
}

// AddEntry appends a single entry without marking the session as fully
// indexed, so a later AddSessionMessages still ingests the whole file.
func (s *SearchIndex) AddEntry(sessionID, projectID, projectName, messageUUID, role, text string, timestamp *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, searchEntry{
		sessionID:    sessionID,
		projectID:    projectID,
		projectName:  projectName,
		messageUUID:  messageUUID,
		role:         role,
		textLower:    strings.ToLower(text),
		textOriginal: text,
		timestamp:    timestamp,
	})
}

func (s *SearchIndex) IsSessionIndexed(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexedSessions[sessionID]
	return ok
}

func (s *SearchIndex) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *SearchIndex) IndexedSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexedSessions)
}

// Search runs a conjunctive match: every quoted phrase and every bare word
// must appear in a message for it to hit. The scan stops collecting after
// limit hits, then orders by match count and recency. Empty projectID or
// role means no filtering on that field.
func (s *SearchIndex) Search(query, projectID, role string, limit int) []SearchResult {
	results := make([]SearchResult, 0)
	if limit <= 0 {
		return results
	}
	phrases, words := parseQuery(query)
	if len(phrases) == 0 && len(words) == 0 {
		return results
	}

	s.mu.RLock()
	for i := range s.entries {
		entry := &s.entries[i]
		if projectID != "" && entry.projectID != projectID {
			continue
		}
		if role != "" && entry.role != role {
			continue
		}

		text := entry.textLower
		if !containsAll(text, phrases) || !containsAll(text, words) {
			continue
		}

		matchCount := 0
		for _, w := range words {
			matchCount += strings.Count(text, w)
		}
		for _, p := range phrases {
			matchCount += strings.Count(text, p)
		}
		if matchCount < 1 {
			matchCount = 1
		}

		results = append(results, SearchResult{
			SessionID:   entry.sessionID,
			ProjectID:   entry.projectID,
			ProjectName: entry.projectName,
			MessageUUID: entry.messageUUID,
			Role:        entry.role,
			Snippet:     s.generateSnippet(entry.textOriginal, phrases, words),
			Timestamp:   entry.timestamp,
			MatchCount:  matchCount,
		})
		if len(results) >= limit {
			break
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MatchCount != results[j].MatchCount {
			return results[i].MatchCount > results[j].MatchCount
		}
		return timestampValue(results[i].Timestamp) > timestampValue(results[j].Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

var quotedPhraseRe = regexp.MustCompile(`"([^"]+)"`)

// parseQuery splits a query into quoted phrases and bare words, all
// lowercased.
func parseQuery(query string) (phrases, words []string) {
	remaining := query
	for _, m := range quotedPhraseRe.FindAllStringSubmatch(query, -1) {
		phrases = append(phrases, strings.ToLower(m[1]))
		remaining = strings.ReplaceAll(remaining, m[0], " ")
	}
	for _, w := range strings.Fields(remaining) {
		words = append(words, strings.ToLower(w))
	}
	return phrases, words
}

// generateSnippet centers a window on the earliest matching term and wraps
// every term occurrence in <<hl>> markers.
func (s *SearchIndex) generateSnippet(original string, phrases, words []string) string {
	textLower := strings.ToLower(original)
	halfCtx := s.snippetChars / 2
	terms := make([]string, 0, len(phrases)+len(words))
	terms = append(terms, phrases...)
	terms = append(terms, words...)

	firstPos := len(textLower)
	matchedTerm := ""
	for _, term := range terms {
		if pos := strings.Index(textLower, term); pos != -1 && pos < firstPos {
			firstPos = pos
			matchedTerm = term
		}
	}

	if firstPos >= len(textLower) {
		return truncateRunes(original, s.snippetChars)
	}

	start := max(0, firstPos-halfCtx)
	end := min(len(original), firstPos+len(matchedTerm)+halfCtx)
	snippet := original[start:end]

	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(original) {
		snippet = snippet + "..."
	}

	for _, term := range terms {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
		snippet = re.ReplaceAllStringFunc(snippet, func(m string) string {
			return "<<hl>>" + m + "<</hl>>"
		})
	}
	return snippet
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func timestampValue(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
