package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
)

type fakeProvider struct {
	name     string
	supports func(string) bool
	events   []Event
	startErr error
	got      *Request
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) SupportsModel(model string) bool {
	if p.supports == nil {
		return true
	}
	return p.supports(model)
}

func (p *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	p.got = req
	if p.startErr != nil {
		return nil, p.startErr
	}
	ch := make(chan Event, len(p.events))
	for _, e := range p.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func newStreamService(p *fakeProvider) *StreamService {
	registry := NewProviderRegistry(nil, p.name)
	registry.Register(p.name, p)
	return NewStreamService(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func collect(t *testing.T, svc *StreamService, req *goal.StreamRequest) (string, error) {
	t.Helper()
	var out strings.Builder
	err := svc.StreamGoal(context.Background(), req, func(text string) error {
		out.WriteString(text)
		return nil
	})
	return out.String(), err
}

func userRequest(content string) *goal.StreamRequest {
	return &goal.StreamRequest{
		Model:    "vendor/model:free",
		Messages: []goal.ChatMessage{{Role: "user", Content: content}},
	}
}

func TestStreamWrapsThinking(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{
		{Kind: DeltaThinking, Text: "let me "},
		{Kind: DeltaThinking, Text: "think"},
		{Kind: DeltaText, Text: `{"message":"ok",`},
		{Kind: DeltaText, Text: `"steps":[]}`},
		{Done: true},
	}}

	out, err := collect(t, newStreamService(p), userRequest("Open a bakery"))
	require.NoError(t, err)
	assert.Equal(t, `<think>let me think</think>{"message":"ok","steps":[]}`, out)

	require.NotNil(t, p.got)
	assert.Equal(t, SystemPrompt, p.got.System)
	assert.Equal(t, "vendor/model:free", p.got.Model)
}

func TestStreamClosesDanglingThink(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{{Kind: DeltaThinking, Text: "hmm"}}}

	out, err := collect(t, newStreamService(p), userRequest("goal"))
	require.NoError(t, err)
	assert.Equal(t, "<think>hmm</think>", out)
}

func TestStreamDropsBlankMessages(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{{Done: true}}}
	req := &goal.StreamRequest{
		Model: "m",
		Messages: []goal.ChatMessage{
			{Role: "user", Content: "Plan a trip"},
			{Role: "assistant", Content: "   "},
			{Role: "user", Content: "Break down Step 1"},
		},
	}

	_, err := collect(t, newStreamService(p), req)
	require.NoError(t, err)
	require.Len(t, p.got.Messages, 2)
	assert.Equal(t, "Break down Step 1", p.got.Messages[1].Content)
}

func TestStreamValidation(t *testing.T) {
	svc := newStreamService(&fakeProvider{name: "openrouter"})

	tests := []struct {
		name string
		req  *goal.StreamRequest
	}{
		{name: "missing model", req: &goal.StreamRequest{Messages: []goal.ChatMessage{{Role: "user", Content: "x"}}}},
		{name: "no messages", req: &goal.StreamRequest{Model: "m"}},
		{name: "only blank messages", req: &goal.StreamRequest{Model: "m", Messages: []goal.ChatMessage{{Role: "user", Content: " "}}}},
		{name: "system role", req: &goal.StreamRequest{Model: "m", Messages: []goal.ChatMessage{{Role: "system", Content: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := collect(t, svc, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, out)
		})
	}
}

func TestStreamStartFailureIsInBand(t *testing.T) {
	p := &fakeProvider{name: "openrouter", startErr: errors.New("401 from upstream")}

	out, err := collect(t, newStreamService(p), userRequest("goal"))
	require.NoError(t, err)
	assert.Equal(t, "Error: Service Unavailable.", out)
}

func TestStreamErrorBeforeOutput(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{{Err: errors.New("reset by peer")}}}

	out, err := collect(t, newStreamService(p), userRequest("goal"))
	require.NoError(t, err)
	assert.Equal(t, "Error: Connection failed.", out)
}

func TestStreamErrorAfterOutputInterrupts(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{
		{Kind: DeltaText, Text: `{"message":`},
		{Err: errors.New("reset by peer")},
	}}

	out, err := collect(t, newStreamService(p), userRequest("goal"))
	assert.ErrorIs(t, err, services.ErrStreamInterrupted)
	assert.Equal(t, `{"message":`, out)
}

func TestStreamLoremServesCatalogModels(t *testing.T) {
	p := &fakeProvider{
		name:     "lorem",
		supports: func(m string) bool { return strings.HasPrefix(m, "lorem-") },
		events:   []Event{{Done: true}},
	}

	_, err := collect(t, newStreamService(p), userRequest("goal"))
	require.NoError(t, err)
	assert.Equal(t, loremFallbackModel, p.got.Model)
}

func TestStreamStopsWhenEmitFails(t *testing.T) {
	p := &fakeProvider{name: "openrouter", events: []Event{{Kind: DeltaText, Text: "a"}, {Kind: DeltaText, Text: "b"}}}
	gone := errors.New("client went away")

	calls := 0
	err := newStreamService(p).StreamGoal(context.Background(), userRequest("goal"), func(string) error {
		calls++
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
}

func TestRegistryRoutesLoremModels(t *testing.T) {
	lorem := &fakeProvider{name: "lorem"}
	router := &fakeProvider{name: "openrouter"}
	registry := NewProviderRegistry(nil, "openrouter")
	registry.Register("lorem", lorem)
	registry.Register("openrouter", router)

	p, err := registry.ForModel("lorem-fast")
	require.NoError(t, err)
	assert.Same(t, lorem, p)

	p, err = registry.ForModel("deepseek/deepseek-r1:free")
	require.NoError(t, err)
	assert.Same(t, router, p)

	_, err = registry.GetProvider("anthropic")
	assert.Error(t, err, "unknown providers fail without a factory")
}
