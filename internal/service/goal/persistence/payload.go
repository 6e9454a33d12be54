package persistence

import (
	"goalbreaker/internal/domain/models/goal"
)

const (
	// DefaultTitle names a conversation whose first message is unknown.
	DefaultTitle = "New Goal"

	titleMaxRunes = 60
)

// BuildPayload derives the save body from a history snapshot: the title is
// the first message cut to 60 characters and the preview is the plan of the
// last turn's first agent.
func BuildPayload(turns []goal.Turn) goal.SavePayload {
	payload := goal.SavePayload{
		Title:       DefaultTitle,
		ChatHistory: turns,
		Preview:     []goal.Step{},
	}
	if len(turns) == 0 {
		payload.ChatHistory = []goal.Turn{}
		return payload
	}

	if title := truncate(turns[0].UserMessage, titleMaxRunes); title != "" {
		payload.Title = title
	}
	if agent, ok := turns[len(turns)-1].Agents.First(); ok {
		if steps := agent.Steps(); steps != nil {
			payload.Preview = steps
		}
	}
	return payload
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
