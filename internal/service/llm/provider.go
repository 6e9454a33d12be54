package llm

import (
	"context"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"goalbreaker/internal/domain/models/goal"
)

// Delta kinds carried by Event.Kind
const (
	DeltaText     = "text_delta"
	DeltaThinking = "thinking_delta"
)

// Request is one completion request in the backend's terms
type Request struct {
	Model       string
	System      string
	Messages    []goal.ChatMessage
	MaxTokens   int
	Temperature float64
}

// Event is one streamed increment. Exactly one of Text, Done or Err is meaningful.
type Event struct {
	Kind string
	Text string
	Done bool
	Err  error
}

// Provider streams completions for the models it supports
type Provider interface {
	Name() string
	SupportsModel(model string) bool
	// Stream returns a channel closed after the final event.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// libraryAdapter exposes a meridian-llm-go provider as a Provider
type libraryAdapter struct {
	provider llmprovider.Provider
}

// NewLibraryAdapter wraps a library provider
func NewLibraryAdapter(provider llmprovider.Provider) Provider {
	return &libraryAdapter{provider: provider}
}

func (a *libraryAdapter) Name() string {
	return a.provider.Name().String()
}

func (a *libraryAdapter) SupportsModel(model string) bool {
	return a.provider.SupportsModel(model)
}

// Stream converts the request, starts the library stream and converts its events
func (a *libraryAdapter) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	libEvents, err := a.provider.StreamResponse(ctx, toLibraryRequest(req))
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		// the library closes libEvents once ctx is done; keep draining until then
		for libEvent := range libEvents {
			event, ok := fromLibraryEvent(libEvent)
			if !ok {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// toLibraryRequest builds a content-only library request with one text block per message
func toLibraryRequest(req *Request) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		text := msg.Content
		messages = append(messages, llmprovider.Message{
			Role: msg.Role,
			Blocks: []*llmprovider.Block{
				{BlockType: "text", TextContent: &text},
			},
		})
	}

	maxTokens := req.MaxTokens
	temperature := req.Temperature
	system := req.System

	return &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    req.Model,
		Params: &llmprovider.RequestParams{
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			System:      &system,
		},
	}
}

// fromLibraryEvent keeps text deltas, the final metadata and errors; everything else is dropped
func fromLibraryEvent(event llmprovider.StreamEvent) (Event, bool) {
	switch {
	case event.Error != nil:
		return Event{Err: event.Error}, true
	case event.Delta != nil && event.Delta.TextDelta != nil:
		kind := DeltaText
		if event.Delta.DeltaType == DeltaThinking {
			kind = DeltaThinking
		}
		return Event{Kind: kind, Text: *event.Delta.TextDelta}, true
	case event.Metadata != nil:
		return Event{Done: true}, true
	default:
		return Event{}, false
	}
}
