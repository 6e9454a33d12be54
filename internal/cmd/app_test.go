package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/config"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/service/goal/navigation"
)

const planAnswer = "<think>considering</think>\n```json\n" +
	`{"message":"Here is a plan","steps":[{"step":"Find a location","description":"Busy street","complexity":3},{"step":"Hire staff","complexity":"2"}]}` +
	"\n```"

// fakeBackend records saves and answers every stream with planAnswer
type fakeBackend struct {
	mu      sync.Mutex
	creates []goal.SavePayload
	updates []string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stream-goal", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, planAnswer)
	})
	mux.HandleFunc("POST /api/v1/goals/{userId}", func(w http.ResponseWriter, r *http.Request) {
		var p goal.SavePayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		b.mu.Lock()
		b.creates = append(b.creates, p)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "g-1"})
	})
	mux.HandleFunc("PUT /api/v1/goals/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.updates = append(b.updates, r.PathValue("id"))
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Goal updated"})
	})
	mux.HandleFunc("GET /api/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]goal.ModelInfo{{ID: "m1", Name: "Model One", Provider: "test"}})
	})
	return mux
}

func (b *fakeBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.creates), len(b.updates)
}

func testConfig(t *testing.T, apiURL string) *config.ClientConfig {
	t.Helper()
	return &config.ClientConfig{
		APIURL:       apiURL + "/api/v1",
		UserID:       "user-1",
		CachePath:    filepath.Join(t.TempDir(), "cache.db"),
		SaveDebounce: time.Hour,
		FallbackPool: []string{"p1"},
	}
}

func TestAskStreamsPrintsAndSaves(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()
	var out, errOut bytes.Buffer

	a, err := newApp(ctx, cfg, &out, &errOut, false)
	require.NoError(t, err)

	a.watch()
	turn, err := a.engine.StartTurn("Open a bakery", []string{"m1"})
	require.NoError(t, err)
	require.NoError(t, a.finish(ctx, turn.ID))
	require.NoError(t, a.close())

	assert.Contains(t, out.String(), "Here is a plan")
	assert.Contains(t, out.String(), "1. Find a location  (complexity 3)")
	assert.Contains(t, out.String(), "Busy street")
	assert.Contains(t, out.String(), "2. Hire staff  (complexity 2)")
	assert.Contains(t, out.String(), string(goal.StatusComplete))

	creates, _ := backend.counts()
	require.Equal(t, 1, creates)
	assert.Equal(t, "Open a bakery", backend.creates[0].Title)

	// a second invocation picks the conversation up from the cache
	out.Reset()
	a, err = newApp(ctx, cfg, &out, &errOut, false)
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, 1, a.engine.Store().Len())
	assert.Equal(t, "g-1", a.engine.RemoteID())

	parent, err := a.resolveTurn("last")
	require.NoError(t, err)
	agent, ok := planningAgent(parent, "")
	require.True(t, ok)
	step := agent.Steps()[0]

	child, err := a.engine.DrillDown(parent.ID, navigation.StepLabel(parent.StepNumber(), 0), step.Step, agent.ModelID, step.Description)
	require.NoError(t, err)
	require.NoError(t, a.finish(ctx, child.ID))
	require.NoError(t, a.engine.Flush(ctx))

	_, updates := backend.counts()
	assert.GreaterOrEqual(t, updates, 1, "the restored conversation is updated, not created again")
	creates, _ = backend.counts()
	assert.Equal(t, 1, creates)

	var tree bytes.Buffer
	printTree(&tree, a.engine.Tree(""), 0)
	assert.Contains(t, tree.String(), "Step 1 Find a location")
	assert.Contains(t, tree.String(), "- Step 2 Hire staff")
}

func TestResolveTurn(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	a, err := newApp(context.Background(), testConfig(t, srv.URL), io.Discard, io.Discard, false)
	require.NoError(t, err)
	defer a.close()

	_, err = a.resolveTurn("last")
	assert.Error(t, err, "empty conversation")

	first, err := a.engine.Store().CreateTurn("one", []string{"m1"}, nil)
	require.NoError(t, err)
	a.engine.Store().StopTurn(first.ID)

	got, err := a.resolveTurn(first.ID[:6])
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = a.resolveTurn("")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = a.resolveTurn("zzzz-nope")
	assert.Error(t, err)
}

func TestPlanningAgent(t *testing.T) {
	now := time.Now()
	empty := goal.NewAgentState("m1", goal.StatusError, now)
	planned := goal.NewAgentState("m2", goal.StatusComplete, now)
	planned.Result = &goal.PlanResult{Message: "ok", Steps: []goal.Step{{Step: "a"}}}
	turn := goal.Turn{ID: "t", Agents: goal.NewAgentSet(empty, planned)}

	a, ok := planningAgent(turn, "")
	require.True(t, ok)
	assert.Equal(t, "m2", a.ModelID)

	a, ok = planningAgent(turn, "m1")
	require.True(t, ok, "a model without steps falls back to one with a plan")
	assert.Equal(t, "m2", a.ModelID)

	_, ok = planningAgent(goal.Turn{Agents: goal.NewAgentSet(empty)}, "")
	assert.False(t, ok)
}

func TestPrinters(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "No saved goals\n", buf.String())

	buf.Reset()
	printCrumbs(&buf, []navigation.Crumb{{Label: "Goal", Title: "Open a bakery"}, {Label: "Step 1", Title: "Find a location"}})
	assert.Equal(t, "Goal: Open a bakery > Step 1: Find a location\n", buf.String())

	buf.Reset()
	printModels(&buf, []goal.ModelInfo{{ID: "m1", Name: "Model One", Provider: "test"}})
	assert.Contains(t, buf.String(), "Model One")

	assert.Equal(t, "abcdefgh", shortID("abcdefghijkl"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestStreamNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := newStreamNotifier(&buf)
	n.Warn("m1 failed, trying p1")
	n.Error("all models failed")
	assert.Equal(t, "warning: m1 failed, trying p1\nerror: all models failed\n", buf.String())
}
