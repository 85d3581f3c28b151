package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/cuerposonoro/internal/store"
)

// SessionsHandler serves recorded sessions and their note streams.
// Routes: GET /api/sessions, GET /api/sessions/{id}, GET /api/sessions/{id}/notes.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a new SessionsHandler with the given store.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

type sessionResponse struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Frames    int64  `json:"frames"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type noteEventResponse struct {
	Kind       string `json:"kind"`
	Voice      int    `json:"voice"`
	Pitch      int    `json:"pitch"`
	Velocity   int    `json:"velocity"`
	OccurredAt string `json:"occurred_at"`
}

type listNoteEventsResponse struct {
	SessionID string              `json:"session_id"`
	Notes     []noteEventResponse `json:"notes"`
}

func toSessionResponse(rec *store.SessionRecord) sessionResponse {
	resp := sessionResponse{
		ID:        rec.ID,
		StartedAt: rec.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		Frames:    rec.Frames,
	}
	if rec.EndedAt.Valid {
		resp.EndedAt = rec.EndedAt.Time.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// ServeHTTP implements the http.Handler interface.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/notes"); ok {
		h.notes(w, r, id)
		return
	}

	h.get(w, r, path)
}

// list handles GET /api/sessions.
func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, rec := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(rec))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(rec))
}

// notes handles GET /api/sessions/{id}/notes.
func (h *SessionsHandler) notes(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	events, err := h.store.Sessions().NoteEvents(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list note events")
		return
	}

	response := listNoteEventsResponse{
		SessionID: id,
		Notes:     make([]noteEventResponse, 0, len(events)),
	}
	for _, ev := range events {
		response.Notes = append(response.Notes, noteEventResponse{
			Kind:       string(ev.Kind),
			Voice:      ev.Voice,
			Pitch:      ev.Pitch,
			Velocity:   ev.Velocity,
			OccurredAt: ev.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
