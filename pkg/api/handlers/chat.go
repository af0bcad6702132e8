package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/models"
	"chatrelay/pkg/security"
	"chatrelay/pkg/session"
	"chatrelay/pkg/threads"
	"chatrelay/pkg/utils"
)

// Deps are the collaborators handlers need; the app wires them once at
// startup and threads them through registration.
type Deps struct {
	Registry *session.Registry
	Sync     *threads.Synchronizer
	Store    threads.API
	// MaxUpload bounds document upload request bodies, in bytes.
	MaxUpload int64
}

// RegisterChat registers the send endpoint onto the provided router.
func RegisterChat(r *mux.Router, d Deps) {
	r.HandleFunc("/chat/send", d.sendMessage).Methods(http.MethodPost)
}

type sendRequest struct {
	ThreadID string              `json:"thread_id"`
	Message  string              `json:"message"`
	Features models.FeatureFlags `json:"features"`
}

// sendMessage handles POST /v1/chat/send. Streamed gateway replies are
// relayed chunk-by-chunk as plain text (the concatenation is the full
// reply); single-shot replies come back as one JSON object. New-thread
// sends expose the adopted id in the X-Thread-ID header before any body
// bytes, so the UI can navigate.
func (d Deps) sendMessage(w http.ResponseWriter, r *http.Request) {
	owner := security.OwnerFromContext(r.Context())
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "caller identity required")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	c := d.Registry.For(owner)
	if req.ThreadID != c.ActiveThread() {
		if err := c.SwitchThread(r.Context(), req.ThreadID); err != nil {
			utils.JSONError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	sink := &streamSink{w: w}
	outcome, err := c.Send(r.Context(), req.Message, req.Features, sink)
	if err != nil {
		if sink.started {
			// headers and part of the body are already out; the client
			// sees the truncated stream end
			return
		}
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, models.ErrEmptyMessage):
			status = http.StatusBadRequest
		case errors.Is(err, models.ErrSendInFlight):
			status = http.StatusConflict
		}
		// restore_input lets the composer put the typed text back
		_ = utils.JSONWrite(w, status, map[string]string{
			"error":         err.Error(),
			"restore_input": req.Message,
		})
		return
	}
	if outcome.Streamed {
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"reply":          outcome.Reply,
		"thread_id":      outcome.ThreadID,
		"thread_created": outcome.ThreadCreated,
	})
}

// streamSink relays applied chunks to the HTTP response, flushing after
// each so the browser renders incrementally.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *streamSink) Start(threadID string, threadCreated bool) error {
	s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	s.w.Header().Set("X-Thread-ID", threadID)
	if threadCreated {
		s.w.Header().Set("X-Thread-Created", "true")
	}
	s.w.WriteHeader(http.StatusOK)
	s.flusher, _ = s.w.(http.Flusher)
	s.started = true
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *streamSink) Chunk(delta string) error {
	if _, err := io.WriteString(s.w, delta); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
