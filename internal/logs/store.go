package logs

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrSessionNotFound = errors.New("session not found")
)

type sessionRef struct {
	projectID string
	path      string
}

// Store holds the in-memory project and session indexes plus the parsed
// conversation cache. Everything is rebuilt from disk at startup; the
// watcher keeps it current afterwards.
type Store struct {
	mu          sync.RWMutex
	projectsDir string
	logger      *slog.Logger

	projects     map[string]*Project
	sessionIndex map[string]sessionRef
	sessionMeta  map[string]*SessionSummary

	cache *SessionCache
}

func NewStore(projectsDir string, maxCacheSize int, logger *slog.Logger) *Store {
	return &Store{
		projectsDir:  projectsDir,
		logger:       logger,
		projects:     make(map[string]*Project),
		sessionIndex: make(map[string]sessionRef),
		sessionMeta:  make(map[string]*SessionSummary),
		cache:        NewSessionCache(maxCacheSize),
	}
}

// BuildIndex populates the project and session indexes from a discovery
// pass. Project directories without sessions are still listed; their
// counts are just zero.
func (s *Store) BuildIndex(sessionsMap map[string][]string) {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		s.logger.Error("cannot scan projects", "dir", s.projectsDir, "error", err)
		return
	}

	s.mu.Lock()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := entry.Name()
		decodedPath := DecodeProjectPath(projectID)

		sessionPaths := sessionsMap[projectID]
		var totalSize int64
		var lastActive *time.Time
		for _, p := range sessionPaths {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			totalSize += info.Size()
			mtime := info.ModTime().UTC()
			if lastActive == nil || mtime.After(*lastActive) {
				lastActive = &mtime
			}
		}

		s.projects[projectID] = &Project{
			ID:             projectID,
			DisplayName:    decodedPath,
			ShortName:      ShortName(decodedPath),
			Path:           decodedPath,
			SessionCount:   len(sessionPaths),
			LastActive:     lastActive,
			TotalSizeBytes: totalSize,
		}
	}
	s.mu.Unlock()

	for projectID, paths := range sessionsMap {
		for _, path := range paths {
			sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
			s.RegisterSession(sessionID, projectID, path)
			if meta := ExtractSessionMetadata(path, projectID, s.logger); meta != nil {
				s.mu.Lock()
				s.sessionMeta[sessionID] = meta
				s.mu.Unlock()
			}
		}
	}
}

func (s *Store) ProjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessionIndex)
}

func (s *Store) GetProject(projectID string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return *p, nil
}

// ListProjects returns all projects sorted by last_active, name or
// session_count.
func (s *Store) ListProjects(sortBy, sortOrder string) []Project {
	s.mu.RLock()
	projects := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, *p)
	}
	s.mu.RUnlock()

	desc := sortOrder == "desc"
	sort.SliceStable(projects, func(i, j int) bool {
		c := compareProjects(&projects[i], &projects[j], sortBy)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return projects
}

func compareProjects(a, b *Project, sortBy string) int {
	switch sortBy {
	case "name":
		return strings.Compare(strings.ToLower(a.ShortName), strings.ToLower(b.ShortName))
	case "session_count":
		return cmpInt(a.SessionCount, b.SessionCount)
	default:
		return cmpTime(timeOrZero(a.LastActive), timeOrZero(b.LastActive))
	}
}

func (s *Store) RegisterSession(sessionID, projectID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionIndex[sessionID] = sessionRef{projectID: projectID, path: path}
}

// FindSession resolves a session id to its project and file path.
func (s *Store) FindSession(sessionID string) (projectID, path string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.sessionIndex[sessionID]
	if !ok {
		return "", "", ErrSessionNotFound
	}
	return ref.projectID, ref.path, nil
}

func (s *Store) SessionMeta(sessionID string) *SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionMeta[sessionID]
}

func (s *Store) UpdateSessionMeta(sessionID string, meta *SessionSummary) {
	s.mu.Lock()
	s.sessionMeta[sessionID] = meta
	s.mu.Unlock()
	s.cache.Invalidate(sessionID)
}

// IncrementProjectSessions adjusts a known project's session count. Unknown
// projects are ignored; they get picked up on the next full index build.
func (s *Store) IncrementProjectSessions(projectID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[projectID]; ok {
		p.SessionCount += delta
	}
}

func (s *Store) InvalidateCache(sessionID string) {
	s.cache.Invalidate(sessionID)
}

func (s *Store) CachedSessions() int {
	return s.cache.Len()
}

// ListSessions returns one page of session summaries for a project, sorted
// by start_time, duration, message_count or file_size.
func (s *Store) ListSessions(projectID, sortBy, sortOrder string, limit, offset int) []SessionSummary {
	s.mu.RLock()
	sessions := make([]SessionSummary, 0)
	for _, meta := range s.sessionMeta {
		if meta.ProjectID == projectID {
			sessions = append(sessions, *meta)
		}
	}
	s.mu.RUnlock()

	desc := sortOrder == "desc"
	sort.SliceStable(sessions, func(i, j int) bool {
		c := compareSessions(&sessions[i], &sessions[j], sortBy)
		if desc {
			return c > 0
		}
		return c < 0
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(sessions) {
		return []SessionSummary{}
	}
	end := min(offset+limit, len(sessions))
	return sessions[offset:end]
}

func compareSessions(a, b *SessionSummary, sortBy string) int {
	switch sortBy {
	case "duration":
		return cmpInt64(int64OrZero(a.DurationSeconds), int64OrZero(b.DurationSeconds))
	case "message_count":
		return cmpInt(a.MessageCount, b.MessageCount)
	case "file_size":
		return cmpInt64(a.FileSizeBytes, b.FileSizeBytes)
	default:
		return cmpTime(timeOrZero(a.StartTime), timeOrZero(b.StartTime))
	}
}

// ConversationOptions control which messages survive filtering.
type ConversationOptions struct {
	IncludeThinking    bool
	IncludeToolResults bool
	IncludeSidechain   bool
}

// Conversation returns the fully parsed session with filters applied.
// Parsed messages are cached; the cache entry is keyed to the file's mtime
// so appends force a reparse.
func (s *Store) Conversation(sessionID string, opts ConversationOptions) (*Conversation, error) {
	projectID, path, err := s.FindSession(sessionID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	mtime := info.ModTime()

	var messages []Message
	if cached := s.cache.Get(sessionID, mtime); cached != nil {
		messages = cached.Messages
	} else {
		messages = ParseSession(path, s.logger)

		meta := s.SessionMeta(sessionID)
		if meta == nil {
			meta = ExtractSessionMetadata(path, projectID, s.logger)
			if meta != nil {
				s.mu.Lock()
				s.sessionMeta[sessionID] = meta
				s.mu.Unlock()
			}
		}
		if meta == nil {
			meta = &SessionSummary{ID: sessionID, ProjectID: projectID, MessageCount: len(messages)}
		}
		s.cache.Put(sessionID, mtime, &Conversation{
			SessionID: sessionID,
			ProjectID: projectID,
			Messages:  messages,
			Metadata:  meta,
		})
	}

	filtered := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if !opts.IncludeSidechain && msg.IsSidechain {
			continue
		}
		if !opts.IncludeThinking {
			blocks := make([]Block, 0, len(msg.Content))
			for _, b := range msg.Content {
				if _, ok := b.(ThinkingBlock); !ok {
					blocks = append(blocks, b)
				}
			}
			msg.Content = blocks
		}
		if !opts.IncludeToolResults && msg.Type == MessageTypeToolResult {
			continue
		}
		filtered = append(filtered, msg)
	}

	meta := s.SessionMeta(sessionID)
	if meta == nil {
		meta = &SessionSummary{ID: sessionID, ProjectID: projectID, MessageCount: len(filtered)}
	}

	return &Conversation{
		SessionID: sessionID,
		ProjectID: projectID,
		Messages:  filtered,
		Metadata:  meta,
	}, nil
}

// PopulateSearchIndex seeds the index with each session's first message so
// search works before the background indexer gets to the full content.
func (s *Store) PopulateSearchIndex(idx *SearchIndex) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sessionID, meta := range s.sessionMeta {
		if meta.FirstMessage != "" && meta.FirstMessage != noUserMessage {
			projectName := ShortName(DecodeProjectPath(meta.ProjectID))
			idx.AddEntry(sessionID, meta.ProjectID, projectName, "first", "user", meta.FirstMessage, meta.StartTime)
		}
	}
}

type sessionFile struct {
	sessionID string
	projectID string
	path      string
}

// sessionFilesBySizeDesc lists all known session files, largest first, so
// background indexing hits content-rich sessions before trivial ones.
func (s *Store) sessionFilesBySizeDesc() []sessionFile {
	s.mu.RLock()
	type sized struct {
		file sessionFile
		size int64
	}
	files := make([]sized, 0, len(s.sessionIndex))
	for id, ref := range s.sessionIndex {
		var size int64
		if info, err := os.Stat(ref.path); err == nil {
			size = info.Size()
		}
		files = append(files, sized{
			file: sessionFile{sessionID: id, projectID: ref.projectID, path: ref.path},
			size: size,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].size > files[j].size
	})

	out := make([]sessionFile, len(files))
	for i, f := range files {
		out[i] = f.file
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totalSize int64
	for _, p := range s.projects {
		totalSize += p.TotalSizeBytes
	}

	totalMsgs := 0
	var oldest, newest *time.Time
	for _, m := range s.sessionMeta {
		totalMsgs += m.MessageCount
		if m.StartTime != nil {
			if oldest == nil || m.StartTime.Before(*oldest) {
				oldest = m.StartTime
			}
			if newest == nil || m.StartTime.After(*newest) {
				newest = m.StartTime
			}
		}
	}

	return Stats{
		TotalProjects:          len(s.projects),
		TotalSessions:          len(s.sessionIndex),
		TotalMessagesEstimated: totalMsgs,
		TotalSizeBytes:         totalSize,
		OldestSession:          oldest,
		NewestSession:          newest,
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func int64OrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
