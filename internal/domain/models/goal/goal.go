package goal

import (
	"encoding/json"
	"time"
)

// Goal is a persisted conversation as the goals backend stores it
type Goal struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Title           string          `json:"original_goal" db:"original_goal"`
	ChatHistory     json.RawMessage `json:"chat_history" db:"chat_history"`
	Preview         json.RawMessage `json:"breakdown" db:"breakdown"`
	ModelUsed       *string         `json:"model_used,omitempty" db:"model_used"`
	ThinkingProcess *string         `json:"thinking_process,omitempty" db:"thinking_process"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// HistoryItem is one row of a user's history listing
type HistoryItem struct {
	ID          string          `json:"id"`
	Goal        string          `json:"goal"`
	Model       string          `json:"model"`
	Date        time.Time       `json:"date"`
	Preview     json.RawMessage `json:"preview"`
	Thinking    *string         `json:"thinking,omitempty"`
	ChatHistory json.RawMessage `json:"chat_history"`
}

// Turns decodes the stored history; a missing or empty blob yields no turns.
func (h HistoryItem) Turns() ([]Turn, error) {
	if len(h.ChatHistory) == 0 || string(h.ChatHistory) == "null" {
		return []Turn{}, nil
	}
	var turns []Turn
	if err := json.Unmarshal(h.ChatHistory, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// SavePayload is the body of both create and update goal requests
type SavePayload struct {
	Title       string `json:"title"`
	ChatHistory []Turn `json:"chat_history"`
	Preview     []Step `json:"preview"`
}

// CreatedGoal is the create response
type CreatedGoal struct {
	ID string `json:"id"`
}

// ModelInfo is one entry of the model catalog
type ModelInfo struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Provider      string `json:"provider" yaml:"provider"`
	ContextLength int    `json:"context_length" yaml:"context_length"`
}

// ChatMessage is one role-tagged message sent to /stream-goal
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the /stream-goal body
type StreamRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model"`
	UserID   string        `json:"user_id,omitempty"`
}
