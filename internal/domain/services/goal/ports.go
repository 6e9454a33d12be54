// Package goal declares the boundaries the conversation engine depends on.
// Implementations live in internal/client (HTTP backend), internal/cache
// (local durable cache) and the CLI (notifications).
package goal

import (
	"context"
	"io"

	"goalbreaker/internal/domain/models/goal"
)

// Backend is the goals API consumed by the engine
type Backend interface {
	// CreateGoal stores a brand-new conversation and returns its remote id.
	CreateGoal(ctx context.Context, userID string, payload goal.SavePayload) (string, error)

	// UpdateGoal overwrites a stored conversation. Repeating it is harmless.
	UpdateGoal(ctx context.Context, goalID string, payload goal.SavePayload) error

	History(ctx context.Context, userID string) ([]goal.HistoryItem, error)
	DeleteGoal(ctx context.Context, goalID string) error
	ClearHistory(ctx context.Context, userID string) error
	Models(ctx context.Context) ([]goal.ModelInfo, error)
}

// Streamer opens one plain-text answer stream.
// Non-OK responses are returned as errors; the body is the raw text increments.
// Cancelling ctx must unblock pending reads on the returned body.
type Streamer interface {
	StreamGoal(ctx context.Context, req goal.StreamRequest) (io.ReadCloser, error)
}

// LocalCache keeps the active conversation across restarts
type LocalCache interface {
	SaveHistory(ctx context.Context, turns []goal.Turn) error
	// LoadHistory returns nil and no error when nothing is cached.
	LoadHistory(ctx context.Context) ([]goal.Turn, error)
	SaveChatID(ctx context.Context, chatID string) error
	ChatID(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Notifier surfaces user-visible messages. Implementations must not block.
type Notifier interface {
	Warn(message string)
	Error(message string)
}
