// Package api exposes the assistant over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/dvloznov/bank-assistant/internal/api/handlers"
	"github.com/dvloznov/bank-assistant/internal/api/middleware"
	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
)

// Deps are the collaborators served by the router. Archive may be nil.
type Deps struct {
	Assistant handlers.Responder
	Sessions  *session.Manager
	Jobs      jobs.JobStore
	Archive   archive.Reader
	Logger    zerolog.Logger
}

// NewRouter builds the HTTP handler with the standard middleware applied.
func NewRouter(d Deps) http.Handler {
	chat := handlers.NewChatHandler(d.Assistant, d.Sessions, d.Logger)
	sessions := handlers.NewSessionsHandler(d.Sessions, d.Archive, d.Logger)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		chat.Chat(w, r)
	})

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Session ID is required")
			return
		}
		switch r.Method {
		case http.MethodGet:
			sessions.GetSession(w, r, id)
		case http.MethodDelete:
			sessions.EndSession(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobsHandler.ListJobs(w, r)
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, id)
	})

	mux.HandleFunc("/health", handlers.Health(d.Sessions))

	return middleware.Chain(d.Logger, mux)
}
