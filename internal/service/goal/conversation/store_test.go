package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return NewStore(
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("turn-%d", n)
		}),
	)
}

func strPtr(s string) *string { return &s }

func TestCreateTurn(t *testing.T) {
	s := newTestStore(t)

	turn, err := s.CreateTurn("Launch a startup", []string{"M1"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "turn-1", turn.ID)
	require.Len(t, turn.Versions, 1)
	assert.Equal(t, "turn-1-v1", turn.Versions[0].ID)
	assert.Equal(t, 0, turn.CurrentVersionIndex)
	require.Len(t, turn.Agents, 1)
	assert.Equal(t, goal.StatusReasoning, turn.Agents[0].Status)
	assert.Equal(t, "M1", turn.Agents[0].ModelID)
	assert.Nil(t, turn.Agents[0].Metrics.EndTime)
	assert.True(t, s.IsProcessing())
}

func TestCreateTurnValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateTurn("  ", []string{"M1"}, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = s.CreateTurn("goal", nil, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	turn, err := s.CreateTurn("goal", []string{"M1", "M1", "M2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M2"}, turn.Agents.ModelIDs())
}

func TestApplyChunk(t *testing.T) {
	s := newTestStore(t)
	turn, err := s.CreateTurn("goal", []string{"M1", "M2"}, nil)
	require.NoError(t, err)

	ok := s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{
		Status:    goal.StatusSynthesizing,
		RawOutput: strPtr("{"),
	})
	require.True(t, ok)

	got, _ := s.Turn(turn.ID)
	a, _ := got.Agents.Get("M1")
	assert.Equal(t, goal.StatusSynthesizing, a.Status)
	assert.Equal(t, "{", a.RawOutput)

	other, _ := got.Agents.Get("M2")
	assert.Equal(t, goal.StatusReasoning, other.Status, "sibling agents are untouched")

	// the original snapshot is not mutated
	orig, _ := turn.Agents.Get("M1")
	assert.Equal(t, goal.StatusReasoning, orig.Status)
}

func TestApplyChunkIgnoresUnknownTargets(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)

	assert.False(t, s.ApplyChunk("nope", "M1", 0, goal.AgentUpdate{Status: goal.StatusSynthesizing}))
	assert.False(t, s.ApplyChunk(turn.ID, "M9", 0, goal.AgentUpdate{Status: goal.StatusSynthesizing}))
	assert.False(t, s.ApplyChunk(turn.ID, "M1", 3, goal.AgentUpdate{Status: goal.StatusSynthesizing}))
}

func TestApplyChunkCompletionGuard(t *testing.T) {
	tests := []struct {
		name    string
		from    goal.AgentStatus
		update  goal.AgentStatus
		applied bool
	}{
		{"complete ignores synthesizing", goal.StatusComplete, goal.StatusSynthesizing, false},
		{"complete ignores reasoning", goal.StatusComplete, goal.StatusReasoning, false},
		{"complete ignores error", goal.StatusComplete, goal.StatusError, false},
		{"complete ignores unchanged status", goal.StatusComplete, "", false},
		{"complete accepts complete", goal.StatusComplete, goal.StatusComplete, true},
		{"complete accepts stopped", goal.StatusComplete, goal.StatusStopped, true},
		{"stopped ignores reasoning", goal.StatusStopped, goal.StatusReasoning, false},
		{"error ignores synthesizing", goal.StatusError, goal.StatusSynthesizing, false},
		{"reasoning accepts synthesizing", goal.StatusReasoning, goal.StatusSynthesizing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)
			require.True(t, s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: tt.from, RawOutput: strPtr("final")}) ||
				tt.from == goal.StatusReasoning)

			applied := s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: tt.update, RawOutput: strPtr("late")})
			assert.Equal(t, tt.applied, applied)

			a, _ := s.Agent(turn.ID, "M1", 0)
			if tt.applied {
				assert.Equal(t, "late", a.RawOutput)
			} else {
				assert.Equal(t, "final", a.RawOutput)
				assert.Equal(t, tt.from, a.Status)
			}
		})
	}
}

func TestApplyChunkStampsEndTimeOnce(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)

	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete, Ended: true})
	a, _ := s.Agent(turn.ID, "M1", 0)
	require.NotNil(t, a.Metrics.EndTime)
	first := *a.Metrics.EndTime

	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete, Ended: true})
	a, _ = s.Agent(turn.ID, "M1", 0)
	assert.Equal(t, first, *a.Metrics.EndTime)
}

func TestApplyChunkOnHiddenVersionKeepsProjection(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)
	_, _, err := s.EditMessage(turn.ID, "goal v2", nil)
	require.NoError(t, err)

	require.True(t, s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{RawOutput: strPtr("old version text")}))

	got, _ := s.Turn(turn.ID)
	assert.Equal(t, 1, got.CurrentVersionIndex)
	assert.Equal(t, "", got.Agents[0].RawOutput)
	assert.Equal(t, "old version text", got.Versions[0].Agents[0].RawOutput)
}

func TestStopAgent(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)
	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Thinking: strPtr("pondering")})

	require.True(t, s.StopAgent(turn.ID, "M1", 0))

	a, _ := s.Agent(turn.ID, "M1", 0)
	assert.Equal(t, goal.StatusStopped, a.Status)
	assert.Equal(t, "pondering"+InterruptedMarker, a.Thinking)
	assert.NotNil(t, a.Metrics.EndTime)

	assert.False(t, s.StopAgent(turn.ID, "M1", 0), "stopping twice is a no-op")
	assert.False(t, s.IsProcessing())
}

func TestStopAgentLeavesFinishedAgents(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1"}, nil)
	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete})

	assert.False(t, s.StopAgent(turn.ID, "M1", 0))
	a, _ := s.Agent(turn.ID, "M1", 0)
	assert.Equal(t, goal.StatusComplete, a.Status)
}

func TestStopTurnIsOneMutation(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1", "M2", "M3"}, nil)
	s.ApplyChunk(turn.ID, "M2", 0, goal.AgentUpdate{Status: goal.StatusSynthesizing})
	s.ApplyChunk(turn.ID, "M3", 0, goal.AgentUpdate{Status: goal.StatusComplete})

	var changes int
	s.OnChange(func() { changes++ })

	stopped := s.StopTurn(turn.ID)
	assert.ElementsMatch(t, []string{"M1", "M2"}, stopped)
	assert.Equal(t, 1, changes)

	got, _ := s.Turn(turn.ID)
	for _, id := range []string{"M1", "M2"} {
		a, _ := got.Agents.Get(id)
		assert.Equal(t, goal.StatusStopped, a.Status)
		assert.True(t, strings.HasSuffix(a.Thinking, StoppedMarker))
		assert.NotNil(t, a.Metrics.EndTime)
	}
	done, _ := got.Agents.Get("M3")
	assert.Equal(t, goal.StatusComplete, done.Status)

	assert.Nil(t, s.StopTurn(turn.ID))
	assert.Equal(t, 1, changes)
}

func TestReplaceAgentKeepsPosition(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1", "M2", "M3"}, nil)

	ok := s.ReplaceAgent(turn.ID, 0, "M2", goal.NewAgentState("B1", goal.StatusRetrying, time.Now()))
	require.True(t, ok)

	got, _ := s.Turn(turn.ID)
	assert.Equal(t, []string{"M1", "B1", "M3"}, got.Agents.ModelIDs())
	assert.False(t, s.ReplaceAgent(turn.ID, 0, "M2", goal.NewAgentState("B2", goal.StatusRetrying, time.Now())))
}

func TestIsProcessingLooksAtLastTurnOnly(t *testing.T) {
	s := newTestStore(t)
	first, _ := s.CreateTurn("one", []string{"M1"}, nil)
	second, _ := s.CreateTurn("two", []string{"M1"}, nil)

	s.ApplyChunk(second.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete})
	assert.False(t, s.IsProcessing(), "first turn is still reasoning but is not last")

	s.ApplyChunk(first.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete})
	assert.False(t, s.IsProcessing())
}

func TestLoadRepairsTurns(t *testing.T) {
	s := newTestStore(t)
	s.Load([]goal.Turn{
		{ID: "a", UserMessage: "legacy", Agents: goal.NewAgentSet(goal.NewAgentState("M1", goal.StatusComplete, time.Now()))},
		{ID: "b", UserMessage: "x", Versions: []goal.TurnVersion{{ID: "b-v1", UserMessage: "x"}}, CurrentVersionIndex: 7},
	})

	a, _ := s.Turn("a")
	require.Len(t, a.Versions, 1)
	assert.Equal(t, "legacy", a.Versions[0].UserMessage)
	b, _ := s.Turn("b")
	assert.Equal(t, 0, b.CurrentVersionIndex)
}

func TestMessages(t *testing.T) {
	s := newTestStore(t)
	first, _ := s.CreateTurn("first goal", []string{"M1", "M2"}, nil)
	s.ApplyChunk(first.ID, "M2", 0, goal.AgentUpdate{Status: goal.StatusComplete, RawOutput: strPtr("answer two")})
	second, _ := s.CreateTurn("follow up", []string{"M1"}, nil)

	msgs, err := s.Messages(second.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []goal.ChatMessage{
		{Role: "user", Content: "first goal"},
		{Role: "assistant", Content: "answer two"},
		{Role: "user", Content: "follow up"},
	}, msgs)

	_, err = s.Messages("missing", 0)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestConcurrentChunksDoNotCorruptAgents(t *testing.T) {
	s := newTestStore(t)
	models := []string{"M1", "M2", "M3", "M4"}
	turn, _ := s.CreateTurn("goal", models, nil)

	var wg sync.WaitGroup
	for _, m := range models {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			acc := ""
			for i := 0; i < 200; i++ {
				acc += "x"
				text := acc
				s.ApplyChunk(turn.ID, model, 0, goal.AgentUpdate{RawOutput: &text})
			}
		}(m)
	}
	wg.Wait()

	got, _ := s.Turn(turn.ID)
	require.Equal(t, models, got.Agents.ModelIDs())
	for _, a := range got.Agents {
		assert.Len(t, a.RawOutput, 200)
	}
}
