package seed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/service/goal/navigation"
)

type recordingGoals struct {
	services.GoalService
	userID string
	req    *services.SaveGoalRequest
}

func (r *recordingGoals) CreateGoal(ctx context.Context, userID string, req *services.SaveGoalRequest) (string, error) {
	r.userID, r.req = userID, req
	return "goal-1", nil
}

func TestSeedSampleGoal(t *testing.T) {
	goals := &recordingGoals{}
	s := NewGoalSeeder(goals, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := s.SeedSampleGoal(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "goal-1", id)
	assert.Equal(t, "user-1", goals.userID)
	assert.Equal(t, "Open a neighborhood bakery", goals.req.Title)

	var turns []goal.Turn
	require.NoError(t, json.Unmarshal(goals.req.ChatHistory, &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, turns[0].ID, turns[1].ParentID())

	// preview is the plan of the last turn
	var preview []goal.Step
	require.NoError(t, json.Unmarshal(goals.req.Preview.Value, &preview))
	assert.Equal(t, "Negotiate the lease", preview[len(preview)-1].Step)
}

func TestSampleConversationFormsATree(t *testing.T) {
	nodes := navigation.BuildHybridTree(SampleConversation(time.Now()), "")
	require.Len(t, nodes, 1)

	steps := nodes[0].Children
	require.Len(t, steps, 4)
	assert.False(t, steps[0].IsVirtual(), "step 1 was drilled into")
	assert.True(t, steps[1].IsVirtual())
	assert.Len(t, steps[0].Children, 3)
}
