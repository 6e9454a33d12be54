package repositories

import (
	"context"

	"goalbreaker/internal/domain/models/goal"
)

// GoalRepository defines data access operations for saved goals
type GoalRepository interface {
	// EnsureSchema creates the goals table when it does not exist yet
	EnsureSchema(ctx context.Context) error

	// Create inserts a goal and fills in its generated ID and timestamps
	Create(ctx context.Context, g *goal.Goal) error

	// GetByID retrieves a goal by ID
	GetByID(ctx context.Context, id string) (*goal.Goal, error)

	// ListByUser retrieves all goals of a user, ordered by updated_at DESC
	ListByUser(ctx context.Context, userID string) ([]goal.Goal, error)

	// Update overwrites title, history and (when non-nil) preview.
	// Returns ErrNotFound when the goal does not exist.
	Update(ctx context.Context, g *goal.Goal) error

	// Delete removes one goal. Deleting a missing goal is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every goal of a user and returns how many were removed
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
