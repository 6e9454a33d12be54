package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

func TestEditMessage(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("old text", []string{"M1", "M2"}, nil)
	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete, RawOutput: strPtr("done")})
	later, _ := s.CreateTurn("later", []string{"M1"}, nil)

	vi, models, err := s.EditMessage(turn.ID, "new text", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, vi)
	assert.Equal(t, []string{"M1", "M2"}, models)

	got, _ := s.Turn(turn.ID)
	require.Len(t, got.Versions, 2)
	assert.Equal(t, 1, got.CurrentVersionIndex)
	assert.Equal(t, "new text", got.UserMessage)
	assert.Equal(t, "turn-1-v2", got.Versions[1].ID)
	for _, a := range got.Agents {
		assert.Equal(t, goal.StatusReasoning, a.Status)
		assert.Empty(t, a.RawOutput)
	}

	old := got.Versions[0]
	assert.Equal(t, "old text", old.UserMessage)
	a, _ := old.Agents.Get("M1")
	assert.Equal(t, "done", a.RawOutput, "previous version is preserved")

	_, ok := s.Turn(later.ID)
	assert.True(t, ok, "later turns are kept")
}

func TestEditMessageWithNewModels(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("text", []string{"M1"}, nil)

	_, models, err := s.EditMessage(turn.ID, "text again", []string{"M3", "M4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"M3", "M4"}, models)
}

func TestEditMessageErrors(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("text", []string{"M1"}, nil)

	_, _, err := s.EditMessage("missing", "x", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, _, err = s.EditMessage(turn.ID, "   ", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestNavigateBranch(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("v1", []string{"M1"}, nil)
	s.EditMessage(turn.ID, "v2", nil)
	s.EditMessage(turn.ID, "v3", nil)

	idx, moved := s.NavigateBranch(turn.ID, Next)
	assert.False(t, moved, "next at the last version is a no-op")
	assert.Equal(t, 2, idx)

	idx, moved = s.NavigateBranch(turn.ID, Prev)
	assert.True(t, moved)
	assert.Equal(t, 1, idx)
	got, _ := s.Turn(turn.ID)
	assert.Equal(t, "v2", got.UserMessage)
	assert.Equal(t, got.Versions[1].Agents, got.Agents)

	s.NavigateBranch(turn.ID, Prev)
	idx, moved = s.NavigateBranch(turn.ID, Prev)
	assert.False(t, moved, "prev at index 0 is a no-op")
	assert.Equal(t, 0, idx)

	got, _ = s.Turn(turn.ID)
	assert.Equal(t, "v1", got.UserMessage)
}

func TestNavigateBranchDoesNotTouchAgents(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("v1", []string{"M1"}, nil)
	s.EditMessage(turn.ID, "v2", nil)
	before, _ := s.Turn(turn.ID)

	s.NavigateBranch(turn.ID, Prev)
	after, _ := s.Turn(turn.ID)

	assert.Equal(t, before.Versions, after.Versions)
}

func TestForkAgent(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1", "M2"}, nil)
	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{Status: goal.StatusComplete, RawOutput: strPtr("kept")})

	vi, err := s.ForkAgent(turn.ID, "M2", "M9")
	require.NoError(t, err)
	assert.Equal(t, 1, vi)

	got, _ := s.Turn(turn.ID)
	assert.Equal(t, []string{"M1", "M9"}, got.Agents.ModelIDs())
	kept, _ := got.Agents.Get("M1")
	assert.Equal(t, "kept", kept.RawOutput)
	fresh, _ := got.Agents.Get("M9")
	assert.Equal(t, goal.StatusReasoning, fresh.Status)

	_, err = s.ForkAgent(turn.ID, "nope", "M3")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestForkAgentResetsRunningAgents(t *testing.T) {
	s := newTestStore(t)
	turn, _ := s.CreateTurn("goal", []string{"M1", "M2"}, nil)
	s.ApplyChunk(turn.ID, "M1", 0, goal.AgentUpdate{
		Status:    goal.StatusSynthesizing,
		RawOutput: strPtr(`<think>old</think>{"message":"old plan","steps":[]}`),
		Thinking:  strPtr("old"),
		Result:    &goal.PlanResult{Message: "old plan", Steps: []goal.Step{}},
	})
	before, _ := s.Turn(turn.ID)
	oldRun, _ := before.Agents.Get("M1")

	_, err := s.ForkAgent(turn.ID, "M2", "M3")
	require.NoError(t, err)

	got, _ := s.Turn(turn.ID)
	m1, _ := got.Agents.Get("M1")
	assert.Equal(t, goal.StatusReasoning, m1.Status)
	assert.Empty(t, m1.RawOutput)
	assert.Empty(t, m1.Thinking)
	assert.Nil(t, m1.Result)
	assert.Nil(t, m1.Metrics.EndTime)

	prev, _ := got.Versions[0].Agents.Get("M1")
	assert.Equal(t, oldRun, prev, "the superseded run stays on its version")
	assert.Equal(t, "old plan", prev.Result.Message)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("NEXT")
	require.NoError(t, err)
	assert.Equal(t, Next, d)

	_, err = ParseDirection("sideways")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
