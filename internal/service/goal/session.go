package goal

import (
	"github.com/google/uuid"

	"goalbreaker/internal/service/goal/conversation"
	"goalbreaker/internal/service/goal/persistence"
	"goalbreaker/internal/service/goal/streaming"
)

// session is one conversation held in memory
type session struct {
	key   string
	store *conversation.Store
	chat  streaming.Chat
	sync  *persistence.Synchronizer
}

func (s *session) close() {
	s.sync.Close()
}

// discard drops a session that was removed from the engine: nothing of it is
// saved, streamed or retried afterwards.
func (e *Engine) discard(s *session) {
	s.close()
	e.orch.StopChat(s.key)

	turns := s.store.Turns()
	ids := make([]string, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
	}
	e.orch.Fallback().Forget(ids...)
}

func newChatKey() string {
	return "local-" + uuid.NewString()
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) isActive(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active == s
}

func (e *Engine) newSession(key, remoteID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newSessionLocked(key, remoteID)
}

func (e *Engine) newSessionLocked(key, remoteID string) *session {
	store := conversation.NewStore()
	s := &session{
		key:   key,
		store: store,
		chat:  streaming.Chat{Key: key, Store: store},
	}
	s.sync = persistence.New(store, e.backend, e.cache, persistence.Options{
		UserID:   e.cfg.UserID,
		Debounce: e.cfg.Debounce,
		RemoteID: remoteID,
		IsActive: func() bool { return e.isActive(s) },
		OnCreated: func(id string) {
			e.logger.Debug("conversation received remote id", "chat", key, "remote_id", id)
		},
		Logger: e.logger.With("chat", key),
	})
	e.sessions[key] = s
	return s
}

// findLocked returns the session whose key or backend id is id.
func (e *Engine) findLocked(id string) *session {
	if s, ok := e.sessions[id]; ok {
		return s
	}
	for _, s := range e.sessions {
		if s.sync.RemoteID() == id {
			return s
		}
	}
	return nil
}
