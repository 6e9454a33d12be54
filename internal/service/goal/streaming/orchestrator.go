// Package streaming runs one cancellable answer stream per agent and feeds
// every text increment through the parser into the conversation store.
package streaming

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"goalbreaker/internal/domain/models/goal"
	goalSvc "goalbreaker/internal/domain/services/goal"
	"goalbreaker/internal/metrics"
	"goalbreaker/internal/service/goal/conversation"
	"goalbreaker/internal/service/goal/parser"
)

const readBufferSize = 4096

var (
	// ErrStopped is the cancellation cause when the user stops streaming.
	ErrStopped = errors.New("stopped by user")
	// ErrSuperseded is the cancellation cause when another stream takes over the same key.
	ErrSuperseded = errors.New("superseded by a newer stream")
	// ErrChatSwitched is the cancellation cause when another conversation becomes active.
	ErrChatSwitched = errors.New("conversation switched")

	errEmptyResponse = errors.New("empty response")
)

// Chat is a conversation the orchestrator streams into.
// Key identifies the conversation locally, even before it has a remote id.
type Chat struct {
	Key   string
	Store *conversation.Store
}

type streamKey struct {
	chatKey string
	turnID  string
	modelID string
}

type stream struct {
	cancel context.CancelCauseFunc
}

// Orchestrator owns the cancellation tokens of every running agent stream.
type Orchestrator struct {
	streamer goalSvc.Streamer
	fallback *Fallback
	userID   string
	logger   *slog.Logger

	mu      sync.Mutex
	streams map[streamKey]*stream
	wg      sync.WaitGroup
}

func NewOrchestrator(streamer goalSvc.Streamer, fallback *Fallback, userID string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		streamer: streamer,
		fallback: fallback,
		userID:   userID,
		logger:   logger,
		streams:  make(map[streamKey]*stream),
	}
}

// Fallback exposes the controller that handles failed streams.
func (o *Orchestrator) Fallback() *Fallback {
	return o.fallback
}

// StartTurn streams every agent of one version of a turn.
func (o *Orchestrator) StartTurn(chat Chat, turnID string, versionIndex int) {
	turn, ok := chat.Store.Turn(turnID)
	if !ok || versionIndex < 0 || versionIndex >= len(turn.Versions) {
		return
	}
	for _, modelID := range turn.Versions[versionIndex].Agents.ModelIDs() {
		o.Start(chat, turnID, versionIndex, modelID)
	}
}

// Start opens the stream for one agent. A stream already running under the
// same (chat, turn, model) key is cancelled first.
func (o *Orchestrator) Start(chat Chat, turnID string, versionIndex int, modelID string) {
	key := streamKey{chatKey: chat.Key, turnID: turnID, modelID: modelID}
	ctx, cancel := context.WithCancelCause(context.Background())
	s := &stream{cancel: cancel}

	o.mu.Lock()
	if old, ok := o.streams[key]; ok {
		old.cancel(ErrSuperseded)
	}
	o.streams[key] = s
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer o.release(key, s)
		o.run(ctx, chat, turnID, versionIndex, modelID)
	}()
}

func (o *Orchestrator) release(key streamKey, s *stream) {
	o.mu.Lock()
	if o.streams[key] == s {
		delete(o.streams, key)
	}
	o.mu.Unlock()
	s.cancel(nil)
}

// Stop flips all running agents of chat's last turn to stopped in a single
// store mutation, then cancels every stream of chat. It returns the stopped model ids.
func (o *Orchestrator) Stop(chat Chat) []string {
	// flip the statuses first so the cancelled goroutines find nothing left to stop
	var stopped []string
	if last, ok := chat.Store.LastTurn(); ok {
		stopped = chat.Store.StopTurn(last.ID)
	}
	o.cancelWhere(func(k streamKey) bool { return k.chatKey == chat.Key }, ErrStopped)
	return stopped
}

// StopChat cancels every stream of one conversation without touching its store.
func (o *Orchestrator) StopChat(chatKey string) {
	o.cancelWhere(func(k streamKey) bool { return k.chatKey == chatKey }, ErrStopped)
}

// StopStream cancels a single agent stream.
func (o *Orchestrator) StopStream(chatKey, turnID, modelID string) {
	key := streamKey{chatKey: chatKey, turnID: turnID, modelID: modelID}
	o.cancelWhere(func(k streamKey) bool { return k == key }, ErrStopped)
}

// StopOthers cancels every stream that does not belong to the active chat.
func (o *Orchestrator) StopOthers(activeKey string) {
	o.cancelWhere(func(k streamKey) bool { return k.chatKey != activeKey }, ErrChatSwitched)
}

// StopAll cancels every stream.
func (o *Orchestrator) StopAll() {
	o.cancelWhere(func(streamKey) bool { return true }, ErrStopped)
}

func (o *Orchestrator) cancelWhere(match func(streamKey) bool, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, s := range o.streams {
		if match(k) {
			s.cancel(cause)
			delete(o.streams, k)
		}
	}
}

// Running returns how many streams belong to chatKey.
func (o *Orchestrator) Running(chatKey string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for k := range o.streams {
		if k.chatKey == chatKey {
			n++
		}
	}
	return n
}

// Wait blocks until every stream, including fallback restarts, has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, chat Chat, turnID string, versionIndex int, modelID string) {
	if agent, ok := chat.Store.Agent(turnID, modelID, versionIndex); !ok || !agent.Status.IsActive() {
		return
	}

	messages, err := chat.Store.Messages(turnID, versionIndex)
	if err != nil {
		o.logger.Error("failed to build stream context", "turn_id", turnID, "error", err)
		return
	}

	metrics.RecordStreamStarted()
	logger := o.logger.With("chat", chat.Key, "turn_id", turnID, "version", versionIndex, "model", modelID)
	logger.Debug("agent stream started")

	body, err := o.streamer.StreamGoal(ctx, goal.StreamRequest{
		Messages: messages,
		Model:    modelID,
		UserID:   o.userID,
	})
	if err != nil {
		o.finishWithError(ctx, chat, turnID, versionIndex, modelID, err)
		return
	}
	defer body.Close()

	var acc strings.Builder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 && ctx.Err() == nil {
			acc.Write(buf[:n])
			o.apply(chat.Store, turnID, versionIndex, modelID, acc.String(), parser.Parse)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			o.finishWithError(ctx, chat, turnID, versionIndex, modelID, readErr)
			return
		}
		if ctx.Err() != nil {
			o.cancelled(ctx, chat, turnID, versionIndex, modelID)
			return
		}
	}

	if ctx.Err() != nil {
		o.cancelled(ctx, chat, turnID, versionIndex, modelID)
		return
	}

	text := acc.String()
	if reason, ok := parser.ErrorReason(text); ok {
		o.fail(ctx, chat, Failure{TurnID: turnID, VersionIndex: versionIndex, ModelID: modelID, Reason: reason})
		return
	}
	if strings.TrimSpace(text) == "" {
		o.fail(ctx, chat, Failure{TurnID: turnID, VersionIndex: versionIndex, ModelID: modelID, Reason: errEmptyResponse.Error()})
		return
	}

	o.apply(chat.Store, turnID, versionIndex, modelID, text, parser.Finalize)
	metrics.RecordStreamFinished(metrics.OutcomeComplete)
	logger.Debug("agent stream complete", "bytes", len(text))
}

// apply parses the text so far against the latest agent state. Error markers
// are left to the failure path so fallback can take over.
func (o *Orchestrator) apply(store *conversation.Store, turnID string, versionIndex int, modelID, text string, parse func(string, goal.AgentState) goal.AgentUpdate) {
	if _, isErr := parser.ErrorReason(text); isErr {
		return
	}
	agent, ok := store.Agent(turnID, modelID, versionIndex)
	if !ok {
		return
	}
	store.ApplyChunk(turnID, modelID, versionIndex, parse(text, agent))
}

func (o *Orchestrator) finishWithError(ctx context.Context, chat Chat, turnID string, versionIndex int, modelID string, err error) {
	if ctx.Err() != nil {
		o.cancelled(ctx, chat, turnID, versionIndex, modelID)
		return
	}
	o.fail(ctx, chat, Failure{TurnID: turnID, VersionIndex: versionIndex, ModelID: modelID, Reason: err.Error()})
}

func (o *Orchestrator) cancelled(ctx context.Context, chat Chat, turnID string, versionIndex int, modelID string) {
	metrics.RecordStreamFinished(metrics.OutcomeCancelled)
	chat.Store.StopAgent(turnID, modelID, versionIndex)
	o.logger.Debug("agent stream cancelled",
		"chat", chat.Key,
		"turn_id", turnID,
		"model", modelID,
		"cause", context.Cause(ctx),
	)
}

func (o *Orchestrator) fail(ctx context.Context, chat Chat, failure Failure) {
	if ctx.Err() != nil {
		o.cancelled(ctx, chat, failure.TurnID, failure.VersionIndex, failure.ModelID)
		return
	}
	metrics.RecordStreamFinished(metrics.OutcomeFailed)
	o.logger.Warn("agent stream failed",
		"chat", chat.Key,
		"turn_id", failure.TurnID,
		"model", failure.ModelID,
		"reason", failure.Reason,
	)

	decision := o.fallback.Trigger(chat.Store, failure)
	if !decision.Retry {
		return
	}
	if ctx.Err() != nil {
		// cancelled while handing over: the replacement must not stay pending
		chat.Store.StopAgent(failure.TurnID, decision.ModelID, failure.VersionIndex)
		return
	}
	o.Start(chat, failure.TurnID, failure.VersionIndex, decision.ModelID)
}
