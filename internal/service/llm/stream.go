// Package llm implements the /stream-goal completion service on top of
// meridian-llm-go providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"goalbreaker/internal/config"
	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/metrics"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
	errorLead  = "Error: "

	// loremFallbackModel serves catalog models when the lorem provider is the default
	loremFallbackModel = "lorem-fast"

	defaultMaxTokens   = 4096
	defaultTemperature = 0.6
)

// User-facing failure texts written after the error marker
const (
	msgUnavailable      = "Service Unavailable."
	msgConnectionFailed = "Connection failed."
)

// StreamService implements StreamGoalService
type StreamService struct {
	registry *ProviderRegistry
	system   string
	logger   *slog.Logger
}

// NewStreamService creates the /stream-goal service
func NewStreamService(registry *ProviderRegistry, logger *slog.Logger) *StreamService {
	return &StreamService{
		registry: registry,
		system:   SystemPrompt,
		logger:   logger,
	}
}

var _ services.StreamGoalService = (*StreamService)(nil)

// StreamGoal writes one completion as plain text.
//
// Thinking deltas are wrapped in <think></think>. A provider failure before
// any output is reported in-band as "Error: ..." and StreamGoal returns nil;
// after output it returns ErrStreamInterrupted so the caller can abort the
// response.
func (s *StreamService) StreamGoal(ctx context.Context, req *goal.StreamRequest, emit func(text string) error) error {
	if err := validateStreamRequest(req); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}

	messages := cleanMessages(req.Messages)
	if len(messages) == 0 {
		return &domain.ValidationError{Message: "messages: at least one non-empty message is required"}
	}

	logger := s.logger.With("model", req.Model, "user_id", req.UserID)

	provider, err := s.registry.ForModel(req.Model)
	if err != nil {
		logger.Error("no provider for model", "error", err)
		metrics.RecordProviderStream("unavailable")
		return emit(errorLead + msgUnavailable)
	}

	model := req.Model
	if provider.Name() == "lorem" && !provider.SupportsModel(model) {
		model = loremFallbackModel
	}

	events, err := provider.Stream(ctx, &Request{
		Model:       model,
		System:      s.system,
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		logger.Warn("provider stream failed to start", "provider", provider.Name(), "error", err)
		metrics.RecordProviderStream("unavailable")
		return emit(errorLead + msgUnavailable)
	}

	w := &thinkWriter{emit: emit}
	for {
		select {
		case <-ctx.Done():
			metrics.RecordProviderStream("cancelled")
			return ctx.Err()

		case event, ok := <-events:
			if !ok || event.Done {
				metrics.RecordProviderStream("ok")
				return w.finish()
			}

			if event.Err != nil {
				metrics.RecordProviderStream("error")
				logger.Warn("provider stream failed", "provider", provider.Name(), "wrote", w.wrote, "error", event.Err)
				if !w.wrote {
					return emit(errorLead + msgConnectionFailed)
				}
				return fmt.Errorf("%w: %v", services.ErrStreamInterrupted, event.Err)
			}

			if err := w.write(event); err != nil {
				return err
			}
		}
	}
}

// thinkWriter wraps runs of thinking deltas in think tags
type thinkWriter struct {
	emit     func(string) error
	thinking bool
	wrote    bool
}

func (w *thinkWriter) write(event Event) error {
	if event.Text == "" {
		return nil
	}

	var b strings.Builder
	switch {
	case event.Kind == DeltaThinking && !w.thinking:
		b.WriteString(thinkOpen)
		w.thinking = true
	case event.Kind != DeltaThinking && w.thinking:
		b.WriteString(thinkClose)
		w.thinking = false
	}
	b.WriteString(event.Text)

	w.wrote = true
	return w.emit(b.String())
}

func (w *thinkWriter) finish() error {
	if !w.thinking {
		return nil
	}
	w.thinking = false
	return w.emit(thinkClose)
}

// cleanMessages drops blank messages and keeps the most recent ones
func cleanMessages(in []goal.ChatMessage) []goal.ChatMessage {
	out := make([]goal.ChatMessage, 0, len(in))
	for _, m := range in {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) > config.MaxStreamMessages {
		out = out[len(out)-config.MaxStreamMessages:]
	}
	return out
}

func validateStreamRequest(req *goal.StreamRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Model,
			validation.Required,
			validation.Length(1, config.MaxModelIDLength),
		),
		validation.Field(&req.Messages,
			validation.Required,
			validation.Each(validation.By(validMessage)),
		),
	)
}

func validMessage(value interface{}) error {
	m, ok := value.(goal.ChatMessage)
	if !ok {
		return errors.New("invalid message")
	}
	switch m.Role {
	case "user", "assistant":
	default:
		return fmt.Errorf("unsupported role %q", m.Role)
	}
	if len(m.Content) > config.MaxMessageLength {
		return fmt.Errorf("content exceeds %d characters", config.MaxMessageLength)
	}
	return nil
}
