package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/victorarias/cclog/internal/logs"
)

const keepaliveInterval = 30 * time.Second

// handleEvents streams live events over server-sent events. Filters come
// in as query parameters: sessions and projects take comma-separated id
// lists, messages=false mutes per-message events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "server_error", "Streaming not supported")
		return
	}

	sub := logs.Subscription{
		SessionIDs:      idSet(r.URL.Query().Get("sessions")),
		ProjectIDs:      idSet(r.URL.Query().Get("projects")),
		IncludeMessages: queryBool(r, "messages", true),
	}

	id, events := s.manager.Subscribe(sub)
	defer s.manager.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				// The manager dropped us as a slow subscriber.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func idSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
