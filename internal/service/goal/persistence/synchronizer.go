// Package persistence mirrors a conversation to the goals backend and the
// local cache after it settles.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"goalbreaker/internal/domain/models/goal"
	goalSvc "goalbreaker/internal/domain/services/goal"
	"goalbreaker/internal/metrics"
	"goalbreaker/internal/service/goal/conversation"
)

const (
	// DefaultDebounce is how long the history must stay unchanged before it is saved.
	DefaultDebounce = 2 * time.Second

	saveTimeout = 30 * time.Second
)

// Options configures a Synchronizer. Zero values fall back to defaults.
type Options struct {
	UserID   string
	Debounce time.Duration
	// RemoteID is set when the conversation already exists on the backend.
	RemoteID string
	// IsActive reports whether this conversation is the one shown to the user;
	// only the active conversation is mirrored into the local cache.
	IsActive func() bool
	// OnCreated runs once the backend assigned an id to a new conversation.
	OnCreated func(remoteID string)
	Logger    *slog.Logger
}

// Synchronizer saves one conversation after every burst of changes.
//
// A change resets the debounce timer. When it fires, the history is mirrored
// to the local cache and sent to the backend: created once, updated by id
// afterwards. Failures are logged and retried on the next change; the
// in-memory history is never rolled back.
type Synchronizer struct {
	store   *conversation.Store
	backend goalSvc.Backend
	cache   goalSvc.LocalCache
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	remoteID string
	closed   bool

	// creationLock is held by the only save allowed to create the remote goal
	creationLock atomic.Bool
	// updates are serialized so an older payload never lands after a newer one
	updateMu sync.Mutex
}

// New wires a synchronizer to store. cache may be nil.
func New(store *conversation.Store, backend goalSvc.Backend, cache goalSvc.LocalCache, opts Options) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.IsActive == nil {
		opts.IsActive = func() bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Synchronizer{
		store:    store,
		backend:  backend,
		cache:    cache,
		opts:     opts,
		logger:   opts.Logger,
		remoteID: opts.RemoteID,
	}
	store.OnChange(s.Schedule)
	return s
}

// RemoteID returns the backend id, or "" before the first successful create.
func (s *Synchronizer) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Schedule restarts the debounce timer.
func (s *Synchronizer) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Debounce, s.fire)
}

func (s *Synchronizer) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Save(ctx); err != nil {
		s.logger.Error("failed to save conversation",
			"remote_id", s.RemoteID(),
			"turns", s.store.Len(),
			"error", err,
		)
	}
}

// Flush cancels the pending timer and saves immediately.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Save(ctx)
}

// Close stops the timer without saving. Pending changes are dropped.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Save writes the current history once. An empty history is never saved.
func (s *Synchronizer) Save(ctx context.Context) error {
	turns := s.store.Turns()
	if len(turns) == 0 {
		return nil
	}

	s.mirror(ctx, turns)

	if s.opts.UserID == "" {
		return nil
	}

	payload := BuildPayload(turns)
	if id := s.RemoteID(); id != "" {
		return s.update(ctx, id, payload)
	}
	return s.create(ctx, payload)
}

func (s *Synchronizer) update(ctx context.Context, id string, payload goal.SavePayload) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	err := s.backend.UpdateGoal(ctx, id, payload)
	metrics.RecordSave("update", err)
	if err != nil {
		return fmt.Errorf("update goal %s: %w", id, err)
	}
	s.logger.Debug("conversation saved", "remote_id", id, "turns", len(payload.ChatHistory))
	return nil
}

func (s *Synchronizer) create(ctx context.Context, payload goal.SavePayload) error {
	if !s.creationLock.CompareAndSwap(false, true) {
		// another save is creating the goal; this change is picked up afterwards
		s.Schedule()
		return nil
	}

	// a create may have finished between the caller's id check and the lock
	if id := s.RemoteID(); id != "" {
		s.creationLock.Store(false)
		return s.update(ctx, id, payload)
	}
	defer s.creationLock.Store(false)

	id, err := s.backend.CreateGoal(ctx, s.opts.UserID, payload)
	metrics.RecordSave("create", err)
	if err != nil {
		return fmt.Errorf("create goal: %w", err)
	}

	s.mu.Lock()
	s.remoteID = id
	s.mu.Unlock()

	s.logger.Info("conversation created", "remote_id", id, "title", payload.Title)
	if s.opts.OnCreated != nil {
		s.opts.OnCreated(id)
	}
	if s.cache != nil && s.opts.IsActive() {
		if err := s.cache.SaveChatID(ctx, id); err != nil {
			s.logger.Warn("failed to cache conversation id", "remote_id", id, "error", err)
		}
	}
	return nil
}

// mirror copies the active conversation into the local cache
func (s *Synchronizer) mirror(ctx context.Context, turns []goal.Turn) {
	if s.cache == nil || !s.opts.IsActive() {
		return
	}
	if err := s.cache.SaveHistory(ctx, turns); err != nil {
		s.logger.Warn("failed to cache conversation", "error", err)
		return
	}
	if id := s.RemoteID(); id != "" {
		if err := s.cache.SaveChatID(ctx, id); err != nil {
			s.logger.Warn("failed to cache conversation id", "remote_id", id, "error", err)
		}
	}
}
