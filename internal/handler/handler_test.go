package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/catalog"
	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/httputil"
)

type fakeGoalService struct {
	created  map[string]*services.SaveGoalRequest
	updated  map[string]*services.SaveGoalRequest
	deleted  []string
	cleared  []string
	history  []goal.HistoryItem
	failWith error
}

func newFakeGoalService() *fakeGoalService {
	return &fakeGoalService{
		created: map[string]*services.SaveGoalRequest{},
		updated: map[string]*services.SaveGoalRequest{},
	}
}

func (f *fakeGoalService) CreateGoal(ctx context.Context, userID string, req *services.SaveGoalRequest) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.created[userID] = req
	return "goal-1", nil
}

func (f *fakeGoalService) UpdateGoal(ctx context.Context, goalID string, req *services.SaveGoalRequest) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.updated[goalID] = req
	return nil
}

func (f *fakeGoalService) History(ctx context.Context, userID string) ([]goal.HistoryItem, error) {
	return f.history, f.failWith
}

func (f *fakeGoalService) DeleteGoal(ctx context.Context, goalID string) error {
	f.deleted = append(f.deleted, goalID)
	return f.failWith
}

func (f *fakeGoalService) ClearHistory(ctx context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return f.failWith
}

// ownerOnly lets a caller touch only their own user and goal-1
type ownerOnly struct{ owner string }

func (a ownerOnly) CanAccessUser(ctx context.Context, callerID, userID string) error {
	if callerID == "" || callerID == userID {
		return nil
	}
	return &domain.ForbiddenError{Message: "access denied"}
}

func (a ownerOnly) CanAccessGoal(ctx context.Context, callerID, goalID string) error {
	if callerID == "" || callerID == a.owner {
		return nil
	}
	return &domain.ForbiddenError{Message: "access denied"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGoalMux(svc services.GoalService) *http.ServeMux {
	h := NewGoalHandler(svc, ownerOnly{owner: "alice"}, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/goals/{userId}", h.CreateGoal)
	mux.HandleFunc("PUT /api/v1/goals/{id}", h.UpdateGoal)
	mux.HandleFunc("DELETE /api/v1/goals/{id}", h.DeleteGoal)
	mux.HandleFunc("GET /api/v1/history/{userId}", h.History)
	mux.HandleFunc("DELETE /api/v1/history/{userId}", h.ClearHistory)
	return mux
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestCreateGoal(t *testing.T) {
	svc := newFakeGoalService()
	mux := newGoalMux(svc)

	body := `{"title":"Open a bakery","chat_history":[],"preview":[]}`
	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/api/v1/goals/alice", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "goal-1", resp["id"])
	require.Contains(t, svc.created, "alice")
	assert.Equal(t, "Open a bakery", svc.created["alice"].Title)
	assert.True(t, svc.created["alice"].Preview.Present)
}

func TestCreateGoalRejectsBadBody(t *testing.T) {
	mux := newGoalMux(newFakeGoalService())
	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/api/v1/goals/alice", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCreateGoalValidationError(t *testing.T) {
	svc := newFakeGoalService()
	svc.failWith = &domain.ValidationError{Message: "title: cannot be blank"}
	mux := newGoalMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/api/v1/goals/alice", strings.NewReader(`{"title":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title: cannot be blank")
}

func TestUpdateGoalWithoutPreview(t *testing.T) {
	svc := newFakeGoalService()
	mux := newGoalMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodPut, "/api/v1/goals/goal-1", strings.NewReader(`{"title":"t","chat_history":[]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, svc.updated, "goal-1")
	assert.False(t, svc.updated["goal-1"].Preview.Present)
}

func TestUpdateGoalNotFound(t *testing.T) {
	svc := newFakeGoalService()
	svc.failWith = &domain.NotFoundError{Message: "goal not found"}
	mux := newGoalMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodPut, "/api/v1/goals/missing", strings.NewReader(`{"title":"t","chat_history":[]}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	svc := newFakeGoalService()
	svc.history = []goal.HistoryItem{{ID: "goal-1", Goal: "Open a bakery"}}
	mux := newGoalMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/v1/history/alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []goal.HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "goal-1", items[0].ID)
}

func TestDeleteAndClear(t *testing.T) {
	svc := newFakeGoalService()
	mux := newGoalMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodDelete, "/api/v1/goals/goal-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"goal-1"}, svc.deleted)

	rec = serve(mux, httptest.NewRequest(http.MethodDelete, "/api/v1/history/alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, svc.cleared)
}

func TestCallerCannotTouchOtherUsers(t *testing.T) {
	svc := newFakeGoalService()
	mux := newGoalMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/bob", nil)
	rec := serve(mux, httputil.WithUserID(req, "alice"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/goals/goal-1", nil)
	rec = serve(mux, httputil.WithUserID(req, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, svc.deleted)
}

func TestListModels(t *testing.T) {
	registry, err := catalog.NewRegistry()
	require.NoError(t, err)
	h := NewModelsHandler(registry, testLogger())

	rec := serve(http.HandlerFunc(h.ListModels), httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var models []goal.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Equal(t, registry.Models(), models)
}

func TestHealthCheck(t *testing.T) {
	rec := serve(http.HandlerFunc(HealthCheck), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

type fakeStreamService struct {
	chunks []string
	err    error
	got    *goal.StreamRequest
}

func (f *fakeStreamService) StreamGoal(ctx context.Context, req *goal.StreamRequest, emit func(string) error) error {
	f.got = req
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return f.err
}

func TestStreamGoalWritesPlainText(t *testing.T) {
	svc := &fakeStreamService{chunks: []string{"<think>hm</think>", "Hello", " world"}}
	h := NewStreamHandler(svc, testLogger())

	body := `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream-goal", strings.NewReader(body))
	rec := serve(http.HandlerFunc(h.StreamGoal), httputil.WithUserID(req, "alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "<think>hm</think>Hello world", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.Equal(t, "alice", svc.got.UserID)
}

func TestStreamGoalValidationBeforeOutput(t *testing.T) {
	svc := &fakeStreamService{err: &domain.ValidationError{Message: "model is required"}}
	h := NewStreamHandler(svc, testLogger())

	rec := serve(http.HandlerFunc(h.StreamGoal), httptest.NewRequest(http.MethodPost, "/api/v1/stream-goal", strings.NewReader(`{"messages":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestStreamGoalAbortsInterruptedStream(t *testing.T) {
	svc := &fakeStreamService{chunks: []string{"partial"}, err: services.ErrStreamInterrupted}
	h := NewStreamHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream-goal", strings.NewReader(`{"model":"m1"}`))
	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.StreamGoal(rec, req)
	})
	assert.Equal(t, "partial", rec.Body.String())
}
