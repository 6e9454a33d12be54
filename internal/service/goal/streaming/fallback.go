package streaming

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goalbreaker/internal/domain/models/goal"
	goalSvc "goalbreaker/internal/domain/services/goal"
	"goalbreaker/internal/metrics"
	"goalbreaker/internal/service/goal/conversation"
)

// FallbackExhaustedMessage is shown to the user when no backup model is left.
const FallbackExhaustedMessage = "All fallback models failed"

// Failure describes one agent stream that ended without an answer.
// Reason is the raw cause and never shown to the user as-is.
type Failure struct {
	TurnID       string
	VersionIndex int
	ModelID      string
	Reason       string
}

// Decision tells the orchestrator what to do after a failure.
type Decision struct {
	Retry   bool
	ModelID string
}

type fallbackKey struct {
	turnID       string
	versionIndex int
}

type fallbackState struct {
	attempts  int
	exhausted bool
}

// Fallback replaces failed agents with models from a fixed, ordered pool.
//
// State is kept per (turn, version). The attempt counter only grows, and a
// key that has been exhausted is never retried again, so every version reaches
// a terminal state within len(pool)+2 failures.
type Fallback struct {
	pool     []string
	notifier goalSvc.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	states map[fallbackKey]*fallbackState
}

func NewFallback(pool []string, notifier goalSvc.Notifier, logger *slog.Logger) *Fallback {
	return &Fallback{
		pool:     append([]string(nil), pool...),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		states:   make(map[fallbackKey]*fallbackState),
	}
}

// Pool returns the backup models in order.
func (f *Fallback) Pool() []string {
	return append([]string(nil), f.pool...)
}

// Attempts returns how many pool slots a version has consumed.
func (f *Fallback) Attempts(turnID string, versionIndex int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[fallbackKey{turnID, versionIndex}]; ok {
		return st.attempts
	}
	return 0
}

// Exhausted reports whether a version has given up on backups.
func (f *Fallback) Exhausted(turnID string, versionIndex int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[fallbackKey{turnID, versionIndex}]
	return ok && st.exhausted
}

// Forget drops the counters of discarded turns. Turns still held in memory
// keep theirs, so a counter never goes down while its turn can fail again.
func (f *Fallback) Forget(turnIDs ...string) {
	drop := make(map[string]bool, len(turnIDs))
	for _, id := range turnIDs {
		drop[id] = true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.states {
		if drop[k.turnID] {
			delete(f.states, k)
		}
	}
}

// Trigger handles one failure against the store holding the failed agent.
// Failures for agents that are no longer running (stopped by the user,
// already replaced) are ignored.
func (f *Fallback) Trigger(store *conversation.Store, failure Failure) Decision {
	agent, ok := store.Agent(failure.TurnID, failure.ModelID, failure.VersionIndex)
	if !ok || !agent.Status.IsActive() {
		return Decision{}
	}

	taken := map[string]bool{}
	if turn, ok := store.Turn(failure.TurnID); ok && failure.VersionIndex < len(turn.Versions) {
		for _, id := range turn.Versions[failure.VersionIndex].Agents.ModelIDs() {
			taken[id] = true
		}
	}

	key := fallbackKey{failure.TurnID, failure.VersionIndex}

	f.mu.Lock()
	st, ok := f.states[key]
	if !ok {
		st = &fallbackState{}
		f.states[key] = st
	}
	if st.exhausted {
		f.mu.Unlock()
		return Decision{}
	}

	slot := st.attempts
	for slot < len(f.pool) && (f.pool[slot] == failure.ModelID || taken[f.pool[slot]]) {
		slot++
	}
	if slot >= len(f.pool) {
		st.attempts = slot
		st.exhausted = true
		f.mu.Unlock()
		f.exhaust(store, failure, agent)
		return Decision{}
	}
	candidate := f.pool[slot]
	st.attempts = slot + 1
	attempts := st.attempts
	f.mu.Unlock()

	replacement := goal.NewAgentState(candidate, goal.StatusRetrying, f.now())
	replacement.Thinking = fmt.Sprintf("%s failed: %s\nHanding over to %s...", failure.ModelID, failure.Reason, candidate)
	if !store.ReplaceAgent(failure.TurnID, failure.VersionIndex, failure.ModelID, replacement) {
		return Decision{}
	}

	metrics.RecordFallbackAttempt()
	f.logger.Warn("agent failed, switching to fallback model",
		"turn_id", failure.TurnID,
		"version", failure.VersionIndex,
		"failed_model", failure.ModelID,
		"fallback_model", candidate,
		"attempt", attempts,
		"reason", failure.Reason,
	)
	f.notifier.Warn(fmt.Sprintf("%s did not answer, trying %s instead", failure.ModelID, candidate))

	return Decision{Retry: true, ModelID: candidate}
}

func (f *Fallback) exhaust(store *conversation.Store, failure Failure, agent goal.AgentState) {
	end := f.now()
	agent.Status = goal.StatusError
	agent.Thinking = fmt.Sprintf("%s. Last error: %s", FallbackExhaustedMessage, failure.Reason)
	if agent.Metrics.EndTime == nil {
		agent.Metrics.EndTime = &end
	}
	store.ReplaceAgent(failure.TurnID, failure.VersionIndex, failure.ModelID, agent)

	metrics.RecordFallbackExhausted()
	f.logger.Error("fallback pool exhausted",
		"turn_id", failure.TurnID,
		"version", failure.VersionIndex,
		"model", failure.ModelID,
		"reason", failure.Reason,
	)
	f.notifier.Error(FallbackExhaustedMessage)
}
