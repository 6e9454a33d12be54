package services

import (
	"context"
	"encoding/json"
	"errors"

	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/httputil"
)

// SaveGoalRequest is the body of POST /goals/{userId} and PUT /goals/{id}
type SaveGoalRequest struct {
	Title       string          `json:"title"`
	ChatHistory json.RawMessage `json:"chat_history"`
	// Preview is optional; an update without it keeps the stored breakdown
	Preview httputil.OptionalJSON `json:"preview"`
}

// GoalService defines business logic for the saved-goal history
type GoalService interface {
	// CreateGoal stores a new conversation for userID and returns its ID
	CreateGoal(ctx context.Context, userID string, req *SaveGoalRequest) (string, error)

	// UpdateGoal overwrites a stored conversation
	UpdateGoal(ctx context.Context, goalID string, req *SaveGoalRequest) error

	// History lists a user's conversations, newest first
	History(ctx context.Context, userID string) ([]goal.HistoryItem, error)

	// DeleteGoal removes one conversation
	DeleteGoal(ctx context.Context, goalID string) error

	// ClearHistory removes every conversation of a user
	ClearHistory(ctx context.Context, userID string) error
}

// StreamGoalService runs one /stream-goal completion
type StreamGoalService interface {
	// StreamGoal validates req and writes the answer as plain-text increments
	// through emit. Thinking is wrapped in <think></think>.
	StreamGoal(ctx context.Context, req *goal.StreamRequest, emit func(text string) error) error
}

// ErrStreamInterrupted is returned by StreamGoal when the provider failed
// after part of the answer was already written
var ErrStreamInterrupted = errors.New("stream interrupted")
