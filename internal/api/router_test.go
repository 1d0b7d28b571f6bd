package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/bank-assistant/internal/assistant"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store, inmemory.WithWorkers(1))
	require.NoError(t, queue.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
	t.Cleanup(func() { _ = queue.Close() })

	h := NewRouter(Deps{
		Assistant: assistant.New(assistant.Config{Archiver: queue, Logger: zerolog.Nop()}),
		Sessions:  session.NewManager(time.Minute),
		Jobs:      store,
		Logger:    zerolog.Nop(),
	})
	return h, store
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_MethodsAndPaths(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/chat", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/jobs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/jobs/", http.StatusBadRequest},
		{http.MethodGet, "/api/jobs/missing", http.StatusNotFound},
		{http.MethodGet, "/api/sessions/", http.StatusBadRequest},
		{http.MethodGet, "/api/sessions/missing", http.StatusNotFound},
		{http.MethodPut, "/api/sessions/x", http.StatusMethodNotAllowed},
		{http.MethodOptions, "/chat", http.StatusNoContent},
		{http.MethodGet, "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(h, tt.method, tt.path, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_ChatRoundTrip(t *testing.T) {
	h, store := newTestRouter(t)

	rec := do(h, http.MethodPost, "/chat", `{"query":"show my cards","user_id":"user_001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var chat struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Contains(t, chat.Response, "Card")
	require.NotEmpty(t, chat.SessionID)

	rec = do(h, http.MethodGet, "/api/sessions/"+chat.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
	assert.Contains(t, rec.Body.String(), `"source":"live"`)

	require.Eventually(t, func() bool {
		list, err := store.ListJobs(context.Background(), jobs.JobFilter{SessionID: chat.SessionID})
		return err == nil && len(list) == 1
	}, time.Second, 5*time.Millisecond)

	rec = do(h, http.MethodGet, "/api/jobs?session_id="+chat.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(h, http.MethodDelete, "/api/sessions/"+chat.SessionID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(h, http.MethodGet, "/api/sessions/"+chat.SessionID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
