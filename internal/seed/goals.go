// Package seed fills a development database with sample conversations.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/httputil"
	"goalbreaker/internal/service/goal/persistence"
)

// SampleModel is the model credited with the seeded answers
const SampleModel = "lorem-fast"

// GoalSeeder creates sample goals through the goal service, so seeded rows
// pass the same validation as real saves
type GoalSeeder struct {
	goals  services.GoalService
	logger *slog.Logger
	now    func() time.Time
}

// NewGoalSeeder creates a new goal seeder
func NewGoalSeeder(goals services.GoalService, logger *slog.Logger) *GoalSeeder {
	return &GoalSeeder{
		goals:  goals,
		logger: logger,
		now:    time.Now,
	}
}

// SeedSampleGoal stores a root goal with one drilled-down step and returns its id
func (s *GoalSeeder) SeedSampleGoal(ctx context.Context, userID string) (string, error) {
	turns := SampleConversation(s.now())

	req, err := SaveRequest(persistence.BuildPayload(turns))
	if err != nil {
		return "", err
	}

	id, err := s.goals.CreateGoal(ctx, userID, req)
	if err != nil {
		return "", fmt.Errorf("create sample goal: %w", err)
	}
	s.logger.Info("sample goal seeded", "goal_id", id, "user_id", userID, "turns", len(turns))
	return id, nil
}

// SaveRequest encodes a client payload the way the HTTP API receives it
func SaveRequest(p goal.SavePayload) (*services.SaveGoalRequest, error) {
	history, err := json.Marshal(p.ChatHistory)
	if err != nil {
		return nil, fmt.Errorf("encode chat history: %w", err)
	}
	preview, err := json.Marshal(p.Preview)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return &services.SaveGoalRequest{
		Title:       p.Title,
		ChatHistory: history,
		Preview:     httputil.OptionalJSON{Present: true, Value: preview},
	}, nil
}

// SampleConversation is a bakery plan whose first step was drilled into
func SampleConversation(now time.Time) []goal.Turn {
	root := answeredTurn("11111111-1111-7111-8111-111111111111", "Open a neighborhood bakery", nil, now.Add(-time.Hour),
		&goal.PlanResult{
			Title:   "Open a neighborhood bakery",
			Message: "A bakery needs a location, a menu and people before it needs customers.",
			Steps: []goal.Step{
				{Step: "Find a location", Description: "Foot traffic, rent and kitchen space", Complexity: 6},
				{Step: "Design the menu", Description: "A short list done well", Complexity: 4},
				{Step: "Hire and train staff", Complexity: 5},
				{Step: "Plan the opening week", Complexity: 3},
			},
		})

	drill := answeredTurn("22222222-2222-7222-8222-222222222222",
		`Break down Step 1: "Find a location"`+"\nContext for this step: Foot traffic, rent and kitchen space",
		&goal.TurnMetadata{ParentTurnID: root.ID, ParentStepNumber: "1", ParentStepTitle: "Find a location"},
		now.Add(-30*time.Minute),
		&goal.PlanResult{
			Message: "Shortlist, visit, then negotiate.",
			Steps: []goal.Step{
				{Step: "Shortlist three neighborhoods", Complexity: 2},
				{Step: "Visit at morning rush", Complexity: 2},
				{Step: "Negotiate the lease", Complexity: 5},
			},
		})

	return []goal.Turn{root, drill}
}

func answeredTurn(id, message string, metadata *goal.TurnMetadata, started time.Time, result *goal.PlanResult) goal.Turn {
	ended := started.Add(12 * time.Second)
	agent := goal.NewAgentState(SampleModel, goal.StatusComplete, started)
	agent.Result = result
	agent.Metrics.EndTime = &ended

	raw, _ := json.Marshal(result)
	agent.RawOutput = string(raw)

	t := goal.Turn{
		ID: id,
		Versions: []goal.TurnVersion{{
			ID:          id + "-v0",
			UserMessage: message,
			Agents:      goal.NewAgentSet(agent),
			CreatedAt:   started,
		}},
		Metadata: metadata,
	}
	t.Project()
	return t
}
