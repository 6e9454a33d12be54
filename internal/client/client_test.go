package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1/", Options{Token: "secret"})
}

func TestModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"m1","name":"Model One","provider":"Acme","context_length":32000}]`))
	})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []goal.ModelInfo{{ID: "m1", Name: "Model One", Provider: "Acme", ContextLength: 32000}}, models)
}

func TestStreamGoal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream-goal", r.URL.Path)
		var req goal.StreamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m1", req.Model)
		assert.Equal(t, "u1", req.UserID)
		require.Len(t, req.Messages, 1)

		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("<think>hm</think>"))
		w.(http.Flusher).Flush()
		w.Write([]byte(`{"message":"ok"}`))
	})

	body, err := c.StreamGoal(context.Background(), goal.StreamRequest{
		Messages: []goal.ChatMessage{{Role: "user", Content: "goal"}},
		Model:    "m1",
		UserID:   "u1",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `<think>hm</think>{"message":"ok"}`, string(data))
}

func TestStreamGoalNonOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.StreamGoal(context.Background(), goal.StreamRequest{Model: "m1"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestCreateAndUpdateGoal(t *testing.T) {
	var updated goal.SavePayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/goals/user 1":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"g-1","message":"Goal saved"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/goals/g-1":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			w.Write([]byte(`{"message":"Goal updated"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.EscapedPath())
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	id, err := c.CreateGoal(ctx, "user 1", goal.SavePayload{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "g-1", id)

	require.NoError(t, c.UpdateGoal(ctx, "g-1", goal.SavePayload{Title: "t2", Preview: []goal.Step{{Step: "a"}}}))
	assert.Equal(t, "t2", updated.Title)
	assert.Equal(t, "a", updated.Preview[0].Step)
}

func TestProblemDetailsMapToDomainErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type":"about:blank","title":"Not Found","status":404,"detail":"goal not found"}`))
	})

	err := c.UpdateGoal(context.Background(), "missing", goal.SavePayload{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "goal not found")
}

func TestHistoryAndDeletes(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.Write([]byte(`[{"id":"g-1","goal":"Bake","model":"Multi-Agent","date":"2025-01-02T03:04:05Z","preview":[],"chat_history":[]}]`))
			return
		}
		w.Write([]byte(`{"message":"ok"}`))
	})
	ctx := context.Background()

	items, err := c.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bake", items[0].Goal)

	require.NoError(t, c.DeleteGoal(ctx, "g-1"))
	require.NoError(t, c.ClearHistory(ctx, "u1"))
	assert.Equal(t, []string{
		"GET /api/v1/history/u1",
		"DELETE /api/v1/goals/g-1",
		"DELETE /api/v1/history/u1",
	}, calls)
}

func TestStatusErrorIs(t *testing.T) {
	assert.True(t, errors.Is(&StatusError{StatusCode: 422}, domain.ErrValidation))
	assert.True(t, errors.Is(&StatusError{StatusCode: 401}, domain.ErrUnauthorized))
	assert.False(t, errors.Is(&StatusError{StatusCode: 500}, domain.ErrNotFound))
}
