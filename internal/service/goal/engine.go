// Package goal is the conversation engine: it owns the chat sessions, starts
// and stops agent streams, and keeps every session synchronized with the
// goals backend.
package goal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	goalSvc "goalbreaker/internal/domain/services/goal"
	"goalbreaker/internal/service/goal/conversation"
	"goalbreaker/internal/service/goal/navigation"
	"goalbreaker/internal/service/goal/streaming"
)

// Config holds the engine settings
type Config struct {
	UserID       string
	Debounce     time.Duration
	FallbackPool []string
}

// Engine hosts every open conversation. Exactly one is active; the others
// keep streaming in the background until they finish or are stopped.
type Engine struct {
	backend goalSvc.Backend
	cache   goalSvc.LocalCache
	orch    *streaming.Orchestrator
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	active   *session
}

func NewEngine(
	backend goalSvc.Backend,
	streamer goalSvc.Streamer,
	cache goalSvc.LocalCache,
	notifier goalSvc.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	fallback := streaming.NewFallback(cfg.FallbackPool, notifier, logger)
	e := &Engine{
		backend:  backend,
		cache:    cache,
		orch:     streaming.NewOrchestrator(streamer, fallback, cfg.UserID, logger),
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	e.active = e.newSession(newChatKey(), "")
	return e
}

// Store returns the history of the active conversation.
func (e *Engine) Store() *conversation.Store {
	return e.current().store
}

// ChatKey identifies the active conversation locally.
func (e *Engine) ChatKey() string {
	return e.current().key
}

// RemoteID is the backend id of the active conversation, "" until first saved.
func (e *Engine) RemoteID() string {
	return e.current().sync.RemoteID()
}

// Fallback exposes the fallback controller shared by all conversations.
func (e *Engine) Fallback() *streaming.Fallback {
	return e.orch.Fallback()
}

// IsProcessing reports whether the active conversation is still answering.
func (e *Engine) IsProcessing() bool {
	return e.current().store.IsProcessing()
}

// StartTurn asks a new root question to every selected model.
func (e *Engine) StartTurn(text string, modelIDs []string) (goal.Turn, error) {
	s := e.current()
	e.orch.StopOthers(s.key)

	turn, err := s.store.CreateTurn(text, modelIDs, nil)
	if err != nil {
		return goal.Turn{}, err
	}
	e.logger.Info("turn started", "chat", s.key, "turn_id", turn.ID, "models", turn.Agents.ModelIDs())
	e.orch.StartTurn(s.chat, turn.ID, 0)
	return turn, nil
}

// DrillDown opens a sub-conversation for one planned step of parentTurnID.
func (e *Engine) DrillDown(parentTurnID, stepNumber, stepTitle, modelID, description string) (goal.Turn, error) {
	s := e.current()
	if _, ok := s.store.Turn(parentTurnID); !ok {
		return goal.Turn{}, &domain.NotFoundError{Message: fmt.Sprintf("turn %s not found", parentTurnID)}
	}
	if strings.TrimSpace(stepNumber) == "" {
		return goal.Turn{}, &domain.ValidationError{Message: "step number is required"}
	}
	e.orch.StopOthers(s.key)

	metadata := &goal.TurnMetadata{
		ParentTurnID:     parentTurnID,
		ParentStepNumber: stepNumber,
		ParentStepTitle:  stepTitle,
	}
	message := navigation.DrillDownMessage(stepNumber, stepTitle, description)

	turn, err := s.store.CreateTurn(message, []string{modelID}, metadata)
	if err != nil {
		return goal.Turn{}, err
	}
	e.logger.Info("drill down started", "chat", s.key, "turn_id", turn.ID, "parent", parentTurnID, "step", stepNumber)
	e.orch.StartTurn(s.chat, turn.ID, 0)
	return turn, nil
}

// EditMessage re-asks a turn with new text as a new version.
func (e *Engine) EditMessage(turnID, text string, modelIDs []string) (int, error) {
	s := e.current()
	e.orch.StopOthers(s.key)

	if turn, ok := s.store.Turn(turnID); ok {
		for _, id := range turn.Agents.ModelIDs() {
			e.orch.StopStream(s.key, turnID, id)
		}
	}

	vi, models, err := s.store.EditMessage(turnID, text, modelIDs)
	if err != nil {
		return 0, err
	}
	e.logger.Info("message edited", "chat", s.key, "turn_id", turnID, "version", vi, "models", models)
	e.orch.StartTurn(s.chat, turnID, vi)
	return vi, nil
}

// NavigateBranch shows the previous or next version of a turn.
func (e *Engine) NavigateBranch(turnID string, dir conversation.Direction) (int, bool) {
	s := e.current()
	e.orch.StopOthers(s.key)
	return s.store.NavigateBranch(turnID, dir)
}

// SwitchAgent re-runs a turn with one model swapped for another, as a new version.
func (e *Engine) SwitchAgent(turnID, oldModelID, newModelID string) (int, error) {
	s := e.current()
	e.orch.StopOthers(s.key)
	e.orch.StopStream(s.key, turnID, oldModelID)

	vi, err := s.store.ForkAgent(turnID, oldModelID, newModelID)
	if err != nil {
		return 0, err
	}
	e.logger.Info("agent switched", "chat", s.key, "turn_id", turnID, "from", oldModelID, "to", newModelID, "version", vi)
	// agents copied while still running are restarted on the new version
	e.orch.StartTurn(s.chat, turnID, vi)
	return vi, nil
}

// Stop cancels every stream of the active conversation.
func (e *Engine) Stop() []string {
	s := e.current()
	stopped := e.orch.Stop(s.chat)
	if len(stopped) > 0 {
		e.logger.Info("streams stopped", "chat", s.key, "models", stopped)
	}
	return stopped
}

// LoadChat activates a stored conversation. An in-memory copy wins over turns
// because it may still be receiving answers. The previous conversation keeps
// streaming in the background.
func (e *Engine) LoadChat(ctx context.Context, remoteID string, turns []goal.Turn) error {
	if strings.TrimSpace(remoteID) == "" {
		return &domain.ValidationError{Message: "conversation id is required"}
	}

	e.mu.Lock()
	s := e.findLocked(remoteID)
	if s == nil {
		s = e.newSessionLocked(remoteID, remoteID)
		s.store.Load(turns)
	}
	e.active = s
	e.mu.Unlock()

	e.logger.Info("conversation loaded", "chat", s.key, "remote_id", remoteID, "turns", s.store.Len())
	e.mirror(ctx, s)
	return nil
}

// OpenGoal loads a conversation from a history entry.
func (e *Engine) OpenGoal(ctx context.Context, item goal.HistoryItem) error {
	turns, err := item.Turns()
	if err != nil {
		return fmt.Errorf("decode history %s: %w", item.ID, err)
	}
	return e.LoadChat(ctx, item.ID, turns)
}

// NewChat stops everything, forgets the cached conversation and starts empty.
func (e *Engine) NewChat(ctx context.Context) {
	e.orch.StopAll()

	if e.cache != nil {
		if err := e.cache.Clear(ctx); err != nil {
			e.logger.Warn("failed to clear local cache", "error", err)
		}
	}

	e.mu.Lock()
	for k, s := range e.sessions {
		if s.store.Len() == 0 {
			s.close()
			delete(e.sessions, k)
		}
	}
	e.active = e.newSessionLocked(newChatKey(), "")
	key := e.active.key
	e.mu.Unlock()

	e.logger.Info("new conversation", "chat", key)
}

// Restore reactivates the conversation left in the local cache.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	if e.cache == nil {
		return false, nil
	}
	turns, err := e.cache.LoadHistory(ctx)
	if err != nil {
		return false, fmt.Errorf("load cached history: %w", err)
	}
	if len(turns) == 0 {
		return false, nil
	}
	remoteID, err := e.cache.ChatID(ctx)
	if err != nil {
		return false, fmt.Errorf("load cached conversation id: %w", err)
	}

	e.mu.Lock()
	key := remoteID
	if key == "" {
		key = newChatKey()
	}
	s := e.newSessionLocked(key, remoteID)
	s.store.Load(turns)
	e.active = s
	e.mu.Unlock()

	e.logger.Info("conversation restored", "chat", key, "remote_id", remoteID, "turns", len(turns))
	return true, nil
}

// History lists the user's saved conversations, newest first.
func (e *Engine) History(ctx context.Context) ([]goal.HistoryItem, error) {
	if err := e.requireUser(); err != nil {
		return nil, err
	}
	return e.backend.History(ctx, e.cfg.UserID)
}

// DeleteGoal removes one saved conversation. Deleting the active one starts a new chat.
func (e *Engine) DeleteGoal(ctx context.Context, goalID string) error {
	if err := e.backend.DeleteGoal(ctx, goalID); err != nil {
		return fmt.Errorf("delete goal %s: %w", goalID, err)
	}

	e.mu.Lock()
	s := e.findLocked(goalID)
	if s != nil {
		delete(e.sessions, s.key)
	}
	wasActive := s != nil && s == e.active
	e.mu.Unlock()

	if s != nil {
		e.discard(s)
	}
	if wasActive {
		e.NewChat(ctx)
	}
	return nil
}

// ClearHistory deletes every saved conversation of the user and starts a new chat.
func (e *Engine) ClearHistory(ctx context.Context) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	if err := e.backend.ClearHistory(ctx, e.cfg.UserID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	e.mu.Lock()
	discarded := make([]*session, 0, len(e.sessions))
	for key, s := range e.sessions {
		discarded = append(discarded, s)
		delete(e.sessions, key)
	}
	e.mu.Unlock()

	for _, s := range discarded {
		e.discard(s)
	}
	e.NewChat(ctx)
	return nil
}

// Models returns the selectable models.
func (e *Engine) Models(ctx context.Context) ([]goal.ModelInfo, error) {
	return e.backend.Models(ctx)
}

// Tree returns the navigation nodes of the active conversation below parentID.
func (e *Engine) Tree(parentID string) []*goal.TreeNode {
	return navigation.BuildHybridTree(e.Store().Turns(), parentID)
}

// Breadcrumbs returns the path from the root goal down to turnID.
func (e *Engine) Breadcrumbs(turnID string) []navigation.Crumb {
	return navigation.Breadcrumbs(e.Store().Turns(), turnID)
}

// Wait blocks until every stream has finished.
func (e *Engine) Wait() {
	e.orch.Wait()
}

// Flush saves every conversation now instead of waiting for the debounce.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.sync.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush %d conversation(s): %w", len(errs), errs[0])
	}
	return nil
}

// Close stops every stream and timer. Call Flush first to keep pending changes.
func (e *Engine) Close() {
	e.orch.StopAll()
	e.orch.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		s.close()
	}
}

func (e *Engine) requireUser() error {
	if e.cfg.UserID == "" {
		return &domain.UnauthorizedError{Message: "no user configured"}
	}
	return nil
}

func (e *Engine) mirror(ctx context.Context, s *session) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SaveHistory(ctx, s.store.Turns()); err != nil {
		e.logger.Warn("failed to cache conversation", "chat", s.key, "error", err)
	}
	if id := s.sync.RemoteID(); id != "" {
		if err := e.cache.SaveChatID(ctx, id); err != nil {
			e.logger.Warn("failed to cache conversation id", "chat", s.key, "error", err)
		}
	}
}
