package services

import "context"

// ResourceAuthorizer checks whether the authenticated caller may touch a
// user's history. An empty callerID means authentication is disabled and
// every request is allowed.
type ResourceAuthorizer interface {
	// CanAccessUser checks that the caller is the user named in the path
	CanAccessUser(ctx context.Context, callerID, userID string) error

	// CanAccessGoal checks that the caller owns the goal
	CanAccessGoal(ctx context.Context, callerID, goalID string) error
}
