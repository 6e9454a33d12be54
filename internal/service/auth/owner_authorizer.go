// Package auth implements ownership checks for saved goals.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/repositories"
	"goalbreaker/internal/domain/services"
)

// OwnerBasedAuthorizer implements ResourceAuthorizer: a caller can only read
// and modify the goals stored under their own user ID.
type OwnerBasedAuthorizer struct {
	goalRepo repositories.GoalRepository
}

// NewOwnerBasedAuthorizer creates a new ownership-based authorizer
func NewOwnerBasedAuthorizer(goalRepo repositories.GoalRepository) services.ResourceAuthorizer {
	return &OwnerBasedAuthorizer{goalRepo: goalRepo}
}

// CanAccessUser checks that the caller is the user in the path
func (a *OwnerBasedAuthorizer) CanAccessUser(ctx context.Context, callerID, userID string) error {
	if callerID == "" || callerID == userID {
		return nil
	}
	return &domain.ForbiddenError{Message: "cannot access another user's history"}
}

// CanAccessGoal checks that the caller owns the goal.
// Unknown goals pass; the operation itself reports them.
func (a *OwnerBasedAuthorizer) CanAccessGoal(ctx context.Context, callerID, goalID string) error {
	if _, err := uuid.Parse(goalID); callerID == "" || err != nil {
		return nil
	}

	g, err := a.goalRepo.GetByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if g.UserID != callerID {
		return &domain.ForbiddenError{Message: "goal belongs to another user"}
	}
	return nil
}
