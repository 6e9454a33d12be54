// Package conversation holds the in-memory turn history of one chat.
//
// Every mutation replaces the affected turn, version and agent set instead of
// editing them in place, so snapshots handed out by Turns stay valid forever.
package conversation

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

const (
	// InterruptedMarker is appended to thinking when a single stream is cancelled.
	InterruptedMarker = "\n[Interrupted]"
	// StoppedMarker is appended to thinking when the user stops the whole turn.
	StoppedMarker = "\n[Stopped]"
)

// Store is the single mutable resource of a chat session
type Store struct {
	mu        sync.RWMutex
	turns     []goal.Turn
	listeners []func()

	now   func() time.Time
	newID func() string
}

type Option func(*Store)

// WithClock overrides the time source used for createdAt, startTime and endTime.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides turn id allocation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		turns: []goal.Turn{},
		now:   time.Now,
		newID: newTurnID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTurnID returns a time-ordered id so turns sort by creation.
func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func versionID(turnID string, n int) string {
	return fmt.Sprintf("%s-v%d", turnID, n)
}

// OnChange registers fn to run after every effective mutation.
// Listeners run outside the lock and must not block.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// Turns returns a snapshot of the history in order.
func (s *Store) Turns() []goal.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Store) Turn(turnID string) (goal.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(turnID); i >= 0 {
		return s.turns[i], true
	}
	return goal.Turn{}, false
}

func (s *Store) LastTurn() (goal.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return goal.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Agent returns one agent of one version.
func (s *Store) Agent(turnID, modelID string, versionIndex int) (goal.AgentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(turnID)
	if i < 0 || versionIndex < 0 || versionIndex >= len(s.turns[i].Versions) {
		return goal.AgentState{}, false
	}
	return s.turns[i].Versions[versionIndex].Agents.Get(modelID)
}

// IsProcessing reports whether the last turn still has an agent streaming or pending.
func (s *Store) IsProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return false
	}
	return s.turns[len(s.turns)-1].Agents.AnyActive()
}

// Load replaces the history, repairing turns whose versions are missing or out of range.
func (s *Store) Load(turns []goal.Turn) {
	loaded := make([]goal.Turn, 0, len(turns))
	for _, t := range turns {
		t = t.Clone()
		if len(t.Versions) == 0 {
			t.Versions = []goal.TurnVersion{{
				ID:          versionID(t.ID, 1),
				UserMessage: t.UserMessage,
				Agents:      t.Agents.Clone(),
				CreatedAt:   s.now(),
			}}
		}
		if t.CurrentVersionIndex < 0 || t.CurrentVersionIndex >= len(t.Versions) {
			t.CurrentVersionIndex = len(t.Versions) - 1
		}
		t.Project()
		loaded = append(loaded, t)
	}

	s.mu.Lock()
	s.turns = loaded
	s.mu.Unlock()
	s.notify()
}

// Clear drops the whole local history.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = []goal.Turn{}
	s.mu.Unlock()
	s.notify()
}

// CreateTurn appends a new turn with one reasoning agent per model as version 0.
func (s *Store) CreateTurn(userMessage string, modelIDs []string, metadata *goal.TurnMetadata) (goal.Turn, error) {
	agents, err := s.freshAgents(modelIDs)
	if err != nil {
		return goal.Turn{}, err
	}
	if strings.TrimSpace(userMessage) == "" {
		return goal.Turn{}, &domain.ValidationError{Message: "message cannot be empty"}
	}

	now := s.now()
	id := s.newID()
	turn := goal.Turn{
		ID:          id,
		UserMessage: userMessage,
		Agents:      agents,
		Versions: []goal.TurnVersion{{
			ID:          versionID(id, 1),
			UserMessage: userMessage,
			Agents:      agents,
			CreatedAt:   now,
		}},
		CurrentVersionIndex: 0,
	}
	if metadata != nil {
		md := *metadata
		turn.Metadata = &md
	}

	s.mu.Lock()
	turns := make([]goal.Turn, len(s.turns), len(s.turns)+1)
	copy(turns, s.turns)
	s.turns = append(turns, turn)
	s.mu.Unlock()

	s.notify()
	return turn, nil
}

func (s *Store) freshAgents(modelIDs []string) (goal.AgentSet, error) {
	now := s.now()
	agents := make([]goal.AgentState, 0, len(modelIDs))
	for _, id := range modelIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		agents = append(agents, goal.NewAgentState(id, goal.StatusReasoning, now))
	}
	set := goal.NewAgentSet(agents...)
	if len(set) == 0 {
		return nil, &domain.ValidationError{Message: "at least one model is required"}
	}
	return set, nil
}

// ApplyChunk merges a parser update into one agent of one version.
// Updates that would move a finished agent backwards are discarded.
func (s *Store) ApplyChunk(turnID, modelID string, versionIndex int, update goal.AgentUpdate) bool {
	return s.updateAgents(turnID, versionIndex, func(agents goal.AgentSet) (goal.AgentSet, bool) {
		current, ok := agents.Get(modelID)
		if !ok {
			return agents, false
		}
		if update.Status != "" && !current.Status.CanTransition(update.Status) {
			return agents, false
		}
		if update.Status == "" && current.Status.IsTerminal() {
			return agents, false
		}
		return agents.With(update.Merge(current, s.now())), true
	})
}

// StopAgent marks one still-running agent as stopped.
func (s *Store) StopAgent(turnID, modelID string, versionIndex int) bool {
	return s.updateAgents(turnID, versionIndex, func(agents goal.AgentSet) (goal.AgentSet, bool) {
		current, ok := agents.Get(modelID)
		if !ok || !current.Status.IsActive() {
			return agents, false
		}
		return agents.With(s.stopped(current, InterruptedMarker)), true
	})
}

// StopTurn stops every running agent of every version of a turn in a single mutation.
// It returns the model ids that were flipped.
func (s *Store) StopTurn(turnID string) []string {
	var stopped []string

	s.mu.Lock()
	idx := s.indexOf(turnID)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	turn := s.turns[idx].Clone()
	for vi := range turn.Versions {
		agents := turn.Versions[vi].Agents
		for ai, a := range agents {
			if !a.Status.IsActive() {
				continue
			}
			agents[ai] = s.stopped(a, StoppedMarker)
			stopped = append(stopped, a.ModelID)
		}
	}
	if len(stopped) == 0 {
		s.mu.Unlock()
		return nil
	}
	turn.Project()
	s.replaceTurnLocked(idx, turn)
	s.mu.Unlock()

	s.notify()
	return stopped
}

func (s *Store) stopped(a goal.AgentState, marker string) goal.AgentState {
	a.Status = goal.StatusStopped
	a.Thinking += marker
	if a.Metrics.EndTime == nil {
		end := s.now()
		a.Metrics.EndTime = &end
	}
	return a
}

// ReplaceAgent swaps the entry for oldModelID with agent at the same position.
func (s *Store) ReplaceAgent(turnID string, versionIndex int, oldModelID string, agent goal.AgentState) bool {
	return s.updateAgents(turnID, versionIndex, func(agents goal.AgentSet) (goal.AgentSet, bool) {
		if agents.Index(oldModelID) < 0 {
			return agents, false
		}
		return agents.Replace(oldModelID, agent), true
	})
}

// updateAgents runs fn on one version's agents and publishes the result copy-on-write.
func (s *Store) updateAgents(turnID string, versionIndex int, fn func(goal.AgentSet) (goal.AgentSet, bool)) bool {
	s.mu.Lock()
	idx := s.indexOf(turnID)
	if idx < 0 || versionIndex < 0 || versionIndex >= len(s.turns[idx].Versions) {
		s.mu.Unlock()
		return false
	}

	turn := s.turns[idx]
	agents, changed := fn(turn.Versions[versionIndex].Agents)
	if !changed {
		s.mu.Unlock()
		return false
	}

	versions := slices.Clone(turn.Versions)
	versions[versionIndex].Agents = agents
	turn.Versions = versions
	if turn.CurrentVersionIndex == versionIndex {
		turn.Agents = agents
	}
	s.replaceTurnLocked(idx, turn)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) replaceTurnLocked(idx int, turn goal.Turn) {
	turns := slices.Clone(s.turns)
	turns[idx] = turn
	s.turns = turns
}

func (s *Store) indexOf(turnID string) int {
	for i := range s.turns {
		if s.turns[i].ID == turnID {
			return i
		}
	}
	return -1
}

func notFound(turnID string) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("turn %s not found", turnID)}
}
