package conversation

import (
	"goalbreaker/internal/domain/models/goal"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Messages builds the conversation sent to /stream-goal for one version of a turn:
// every earlier turn as a user/assistant pair, then the version's own user message.
// The assistant side is the raw output of the first complete or stopped agent, or empty.
func (s *Store) Messages(turnID string, versionIndex int) ([]goal.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(turnID)
	if idx < 0 {
		return nil, notFound(turnID)
	}
	turn := s.turns[idx]
	if versionIndex < 0 || versionIndex >= len(turn.Versions) {
		return nil, notFound(turnID)
	}

	messages := make([]goal.ChatMessage, 0, idx*2+1)
	for _, prior := range s.turns[:idx] {
		messages = append(messages,
			goal.ChatMessage{Role: roleUser, Content: prior.UserMessage},
			goal.ChatMessage{Role: roleAssistant, Content: bestAnswer(prior.Agents)},
		)
	}
	messages = append(messages, goal.ChatMessage{Role: roleUser, Content: turn.Versions[versionIndex].UserMessage})
	return messages, nil
}

func bestAnswer(agents goal.AgentSet) string {
	for _, a := range agents {
		if a.Status == goal.StatusComplete || a.Status == goal.StatusStopped {
			return a.RawOutput
		}
	}
	return ""
}
