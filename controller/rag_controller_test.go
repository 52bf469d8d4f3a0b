package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/services"
)

type fakeRAGService struct {
	ack       *models.UpsertAck
	ingestErr error
	lastNote  models.IngestDataRequest

	answer   *models.QueryRAGResponse
	queryErr error

	notes    *models.GetAllNotesResponse
	notesErr error

	deadline bool
}

func (f *fakeRAGService) IngestNote(ctx context.Context, req models.IngestDataRequest) (*models.UpsertAck, error) {
	f.lastNote = req
	_, f.deadline = ctx.Deadline()
	return f.ack, f.ingestErr
}

func (f *fakeRAGService) QueryRAG(ctx context.Context, req models.QueryTextRequest) (*models.QueryRAGResponse, error) {
	_, f.deadline = ctx.Deadline()
	return f.answer, f.queryErr
}

func (f *fakeRAGService) GetAllNotes(ctx context.Context) (*models.GetAllNotesResponse, error) {
	return f.notes, f.notesErr
}

func newTestRouter(svc services.RAGService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewRAGController(svc), time.Minute)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngestNote(t *testing.T) {
	svc := &fakeRAGService{ack: &models.UpsertAck{ID: "abc", Namespace: "notes", UpsertedCount: 1}}
	router := newTestRouter(svc)

	for _, path := range []string{"/api/v1/notes", "/api/pc"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, router, http.MethodPost, path, `{"text":"pick up the dry cleaning"}`)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"id":"abc","namespace":"notes","upsertedCount":1}`, w.Body.String())
			assert.Equal(t, "pick up the dry cleaning", svc.lastNote.Text)
			assert.True(t, svc.deadline)
		})
	}
}

func TestIngestNoteIgnoresImporterFields(t *testing.T) {
	svc := &fakeRAGService{ack: &models.UpsertAck{ID: "abc", Namespace: "notes", UpsertedCount: 1}}
	router := newTestRouter(svc)

	w := do(t, router, http.MethodPost, "/api/v1/notes", `{"text":"hi","Source":"/etc/passwd","SourceHash":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.lastNote.Source)
	assert.Empty(t, svc.lastNote.SourceHash)
}

func TestIngestNoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		code    int
		message string
	}{
		{name: "malformed json", body: `{"text":`, code: http.StatusBadRequest},
		{name: "missing text", body: `{}`, code: http.StatusBadRequest},
		{name: "blank text", body: `{"text":"  "}`, err: fmt.Errorf("%w: text is required", services.ErrValidation), code: http.StatusBadRequest},
		{name: "store down", body: `{"text":"hello"}`, err: errors.New("upsert failed"), code: http.StatusInternalServerError, message: "Failed to ingest note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeRAGService{ingestErr: tt.err})
			w := do(t, router, http.MethodPost, "/api/v1/notes", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
			if tt.message != "" {
				assert.JSONEq(t, `{"error":"`+tt.message+`"}`, w.Body.String())
			}
		})
	}
}

func TestQueryRAG(t *testing.T) {
	svc := &fakeRAGService{answer: &models.QueryRAGResponse{
		Response: "You need milk.",
		Sources:  []models.Source{{Content: "buy milk", Score: 0.9}},
	}}
	router := newTestRouter(svc)

	for _, path := range []string{"/api/v1/query", "/api/chat"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, router, http.MethodPost, path, `{"query":"what do I need?"}`)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"response":"You need milk.","sources":[{"content":"buy milk","score":0.9}]}`, w.Body.String())
			assert.True(t, svc.deadline)
		})
	}
}

func TestQueryRAGFailureReturnsFallback(t *testing.T) {
	const fallback = `{"response":"Sorry, there was an error processing your request.","sources":[]}`

	t.Run("service fallback", func(t *testing.T) {
		router := newTestRouter(&fakeRAGService{
			answer:   models.NewFallbackResponse(),
			queryErr: &services.FlowError{Step: services.StepGenerate, Err: services.ErrGeneration},
		})
		w := do(t, router, http.MethodPost, "/api/v1/query", `{"query":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, fallback, w.Body.String())
	})

	t.Run("nil response", func(t *testing.T) {
		router := newTestRouter(&fakeRAGService{queryErr: errors.New("boom")})
		w := do(t, router, http.MethodPost, "/api/chat", `{"query":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, fallback, w.Body.String())
	})
}

func TestQueryRAGValidation(t *testing.T) {
	router := newTestRouter(&fakeRAGService{queryErr: fmt.Errorf("%w: query is required", services.ErrValidation)})

	w := do(t, router, http.MethodPost, "/api/v1/query", `{"question":"wrong field"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/query", `{"query":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "query is required")
}

func TestGetAllNotes(t *testing.T) {
	svc := &fakeRAGService{notes: &models.GetAllNotesResponse{
		Success: true,
		Data: []models.Match{
			{ID: "1", Metadata: models.NoteMetadata{Text: "first", CreatedAt: "2025-03-01T09:30:00Z"}},
		},
	}}
	router := newTestRouter(svc)

	w := do(t, router, http.MethodGet, "/api/v1/notes", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[{"id":"1","score":0,"metadata":{"text":"first","createdAt":"2025-03-01T09:30:00Z"}}]}`, w.Body.String())
}

func TestGetAllNotesLegacyShape(t *testing.T) {
	svc := &fakeRAGService{notes: &models.GetAllNotesResponse{
		Success: true,
		Data: []models.Match{
			{ID: "1", Metadata: models.NoteMetadata{Text: "first", CreatedAt: "2025-03-01T09:30:00Z"}},
			{ID: "2", Metadata: models.NoteMetadata{Text: "second", Source: "notes/a.md"}},
		},
	}}
	router := newTestRouter(svc)

	w := do(t, router, http.MethodGet, "/api/get-notes", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"id":"1","score":0,"metadata":{"content":"first","createdAt":"2025-03-01T09:30:00Z"}},
		{"id":"2","score":0,"metadata":{"content":"second"}}
	]}`, w.Body.String())

	empty := newTestRouter(&fakeRAGService{notes: &models.GetAllNotesResponse{Success: true, Data: []models.Match{}}})
	w = do(t, empty, http.MethodGet, "/api/get-notes", "")
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestGetAllNotesFailure(t *testing.T) {
	router := newTestRouter(&fakeRAGService{notesErr: errors.New("store unavailable")})

	w := do(t, router, http.MethodGet, "/api/get-notes", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to fetch notes"}`, w.Body.String())
}

func TestHealthAndCORS(t *testing.T) {
	router := newTestRouter(&fakeRAGService{})

	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, router, http.MethodOptions, "/api/v1/notes", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
