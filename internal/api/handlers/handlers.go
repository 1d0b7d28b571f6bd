package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bank-assistant/internal/api/middleware"
	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxChatBody caps the size of a chat request body.
const maxChatBody = 64 << 10

// Responder answers one query within a session.
type Responder interface {
	Respond(ctx context.Context, query, userID string, sess *session.Session) string
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query               string        `json:"query"`
	UserID              string        `json:"user_id,omitempty"`
	ConversationHistory []domain.Turn `json:"conversation_history,omitempty"`
	SessionID           string        `json:"session_id,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	assistant Responder
	sessions  *session.Manager
	log       zerolog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(assistant Responder, sessions *session.Manager, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		sessions:  sessions,
		log:       log,
	}
}

// Chat handles POST /chat.
//
// A request carrying conversation_history is answered statelessly from that
// history. Otherwise the exchange joins the server-side session named by
// session_id, or a new one.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		middleware.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}

	for i, t := range req.ConversationHistory {
		if _, err := domain.ParseRole(string(t.Role)); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "conversation_history["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
	}

	ctx := r.Context()
	var resp ChatResponse

	if len(req.ConversationHistory) > 0 {
		id := req.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		sess := session.FromHistory(id, req.ConversationHistory)
		resp = ChatResponse{
			Response:  h.assistant.Respond(ctx, query, req.UserID, sess),
			SessionID: id,
		}
	} else {
		sess := h.sessions.WithSession(req.SessionID, func(s *session.Session) {
			resp.Response = h.assistant.Respond(ctx, query, req.UserID, s)
		})
		resp.SessionID = sess.ID()
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// SessionsHandler serves conversation transcripts.
type SessionsHandler struct {
	sessions *session.Manager
	archive  archive.Reader
	log      zerolog.Logger
}

// NewSessionsHandler creates a sessions handler. archive may be nil.
func NewSessionsHandler(sessions *session.Manager, reader archive.Reader, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		archive:  reader,
		log:      log,
	}
}

// GetSession handles GET /api/sessions/{id}. Live sessions are served from
// memory; expired ones from the archive when one is configured.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	turns, err := h.sessions.Transcript(sessionID)
	if err == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"source":     "live",
			"turns":      turns,
			"count":      len(turns),
		})
		return
	}
	if !errors.Is(err, session.ErrSessionNotFound) || h.archive == nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	rows, err := h.archive.ListTurns(r.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to read archived session")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read session")
		return
	}
	if len(rows) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	turns = make([]domain.Turn, len(rows))
	for i, row := range rows {
		turns[i] = row.Turn()
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"source":     "archive",
		"turns":      turns,
		"count":      len(turns),
	})
}

// EndSession handles DELETE /api/sessions/{id}.
func (h *SessionsHandler) EndSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.sessions.End(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		SessionID: query.Get("session_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health.
func Health(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"sessions": sessions.Stats(),
		})
	}
}
