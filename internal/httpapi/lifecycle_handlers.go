package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/sidecar/internal/lifecycle"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Queue.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queueLength": status.QueueLength,
		"working":     status.Working,
		"waiting":     status.Waiting,
		"uptime":      time.Since(s.deps.StartedAt).Seconds(),
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload any `json:"payload"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	position := s.deps.Queue.Enqueue(lifecycle.Item{ID: uuid.NewString(), Payload: body.Payload})
	writeJSON(w, http.StatusOK, map[string]any{"queued": true, "position": position})
}

// handleNext long-polls up to lifecycle.LongPollTimeout; 204 on timeout, per
// §4.8's "200 item / 204 timeout" contract.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	item, ok := s.deps.Queue.Next(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": item.ID, "payload": item.Payload})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	remaining := s.deps.Queue.Complete()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "remaining": remaining})
}

// handleShutdown answers 200 before triggering termination: the caller must
// see {ok: true} even though the process exits shortly after.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	go s.deps.Shutdown.Trigger()
}
