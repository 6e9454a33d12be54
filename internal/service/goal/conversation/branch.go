package conversation

import (
	"strings"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

// Direction moves between versions of a turn
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

// ParseDirection accepts "prev" or "next".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Prev, Next:
		return d, nil
	}
	return "", &domain.ValidationError{Message: "direction must be prev or next"}
}

// EditMessage appends a new version with fresh reasoning agents and makes it current.
// Without modelIDs the models of the currently displayed version are reused.
// Later turns in the history are left untouched.
func (s *Store) EditMessage(turnID, text string, modelIDs []string) (int, []string, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil, &domain.ValidationError{Message: "message cannot be empty"}
	}

	current, ok := s.Turn(turnID)
	if !ok {
		return 0, nil, notFound(turnID)
	}
	if len(modelIDs) == 0 {
		modelIDs = current.Agents.ModelIDs()
	}

	agents, err := s.freshAgents(modelIDs)
	if err != nil {
		return 0, nil, err
	}

	vi, err := s.appendVersion(turnID, text, agents)
	if err != nil {
		return 0, nil, err
	}
	return vi, agents.ModelIDs(), nil
}

// ForkAgent appends a version identical to the current one except that
// oldModelID is replaced, at the same position, by a fresh agent for newModelID.
func (s *Store) ForkAgent(turnID, oldModelID, newModelID string) (int, error) {
	if strings.TrimSpace(newModelID) == "" {
		return 0, &domain.ValidationError{Message: "model is required"}
	}

	current, ok := s.Turn(turnID)
	if !ok {
		return 0, notFound(turnID)
	}
	if current.Agents.Index(oldModelID) < 0 {
		return 0, &domain.NotFoundError{Message: "agent " + oldModelID + " not found in turn " + turnID}
	}

	now := s.now()
	agents := current.Agents.Replace(oldModelID, goal.NewAgentState(newModelID, goal.StatusReasoning, now))
	// running agents are restarted on the new version from scratch
	for i, a := range agents {
		if a.ModelID != newModelID && a.Status.IsActive() {
			agents[i] = goal.NewAgentState(a.ModelID, goal.StatusReasoning, now)
		}
	}

	return s.appendVersion(turnID, current.UserMessage, agents)
}

func (s *Store) appendVersion(turnID, text string, agents goal.AgentSet) (int, error) {
	s.mu.Lock()
	idx := s.indexOf(turnID)
	if idx < 0 {
		s.mu.Unlock()
		return 0, notFound(turnID)
	}

	turn := s.turns[idx].Clone()
	turn.Versions = append(turn.Versions, goal.TurnVersion{
		ID:          versionID(turn.ID, len(turn.Versions)+1),
		UserMessage: text,
		Agents:      agents,
		CreatedAt:   s.now(),
	})
	turn.CurrentVersionIndex = len(turn.Versions) - 1
	turn.Project()
	s.replaceTurnLocked(idx, turn)
	vi := turn.CurrentVersionIndex
	s.mu.Unlock()

	s.notify()
	return vi, nil
}

// NavigateBranch moves the displayed version one step; moving past either end does nothing.
// It returns the resulting index and whether anything changed.
func (s *Store) NavigateBranch(turnID string, dir Direction) (int, bool) {
	s.mu.Lock()
	idx := s.indexOf(turnID)
	if idx < 0 {
		s.mu.Unlock()
		return 0, false
	}

	turn := s.turns[idx]
	target := turn.CurrentVersionIndex
	switch dir {
	case Prev:
		target--
	case Next:
		target++
	}
	if target < 0 || target >= len(turn.Versions) || target == turn.CurrentVersionIndex {
		s.mu.Unlock()
		return turn.CurrentVersionIndex, false
	}

	turn.CurrentVersionIndex = target
	turn.Project()
	s.replaceTurnLocked(idx, turn)
	s.mu.Unlock()

	s.notify()
	return target, true
}
