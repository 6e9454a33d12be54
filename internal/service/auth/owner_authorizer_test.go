package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

type stubGoals struct {
	goals map[string]goal.Goal
}

func (s *stubGoals) EnsureSchema(ctx context.Context) error      { return nil }
func (s *stubGoals) Create(ctx context.Context, g *goal.Goal) error { return nil }
func (s *stubGoals) ListByUser(ctx context.Context, userID string) ([]goal.Goal, error) {
	return nil, nil
}
func (s *stubGoals) Update(ctx context.Context, g *goal.Goal) error { return nil }
func (s *stubGoals) Delete(ctx context.Context, id string) error    { return nil }
func (s *stubGoals) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (s *stubGoals) GetByID(ctx context.Context, id string) (*goal.Goal, error) {
	g, ok := s.goals[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "Goal not found"}
	}
	return &g, nil
}

func TestCanAccessUser(t *testing.T) {
	a := NewOwnerBasedAuthorizer(&stubGoals{})
	ctx := context.Background()

	assert.NoError(t, a.CanAccessUser(ctx, "", "anyone"), "auth disabled")
	assert.NoError(t, a.CanAccessUser(ctx, "u1", "u1"))
	assert.ErrorIs(t, a.CanAccessUser(ctx, "u1", "u2"), domain.ErrForbidden)
}

func TestCanAccessGoal(t *testing.T) {
	mine, theirs := uuid.NewString(), uuid.NewString()
	a := NewOwnerBasedAuthorizer(&stubGoals{goals: map[string]goal.Goal{
		mine:   {ID: mine, UserID: "u1"},
		theirs: {ID: theirs, UserID: "u2"},
	}})
	ctx := context.Background()

	assert.NoError(t, a.CanAccessGoal(ctx, "u1", mine))
	assert.ErrorIs(t, a.CanAccessGoal(ctx, "u1", theirs), domain.ErrForbidden)
	assert.NoError(t, a.CanAccessGoal(ctx, "", theirs))
	assert.NoError(t, a.CanAccessGoal(ctx, "u1", uuid.NewString()), "unknown goals are left to the operation")
	assert.NoError(t, a.CanAccessGoal(ctx, "u1", "42"))
}
