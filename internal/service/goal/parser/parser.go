// Package parser turns the accumulated text of one agent stream into structured agent fields.
//
// A stream looks like:
//
//	<think>internal monologue</think>
//	```json
//	{"title": "...", "message": "...", "steps": [{"step": "...", "complexity": 3}]}
//	```
//
// or starts with "Error:" when the backend could not produce an answer.
// Everything here is pure: the same text and previous state always give the same update.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"goalbreaker/internal/domain/models/goal"
)

const (
	ErrorPrefix = "Error:"
	ThinkOpen   = "<think>"
	ThinkClose  = "</think>"

	fenceJSON = "```json"
	fence     = "```"

	// chattyThreshold is how much plain text a finished stream needs before
	// it is accepted as a message-only answer.
	chattyThreshold = 100
)

// Parse resolves as much structure as the text so far allows.
func Parse(acc string, prev goal.AgentState) goal.AgentUpdate {
	raw := acc
	update := goal.AgentUpdate{RawOutput: &raw}

	if reason, ok := ErrorReason(acc); ok {
		update.Status = goal.StatusError
		update.Thinking = &reason
		update.Ended = true
		return update
	}

	status := prev.Status

	if thinking, closed, found := extractThinking(acc); found {
		update.Thinking = &thinking
		if !closed {
			status = goal.StatusReasoning
		}
	}

	content := Content(acc)
	start := strings.Index(content, "{")
	switch {
	case start >= 0:
		status = goal.StatusSynthesizing
		if end := strings.LastIndex(content, "}"); end > start {
			if result, ok := decodeResult(content[start : end+1]); ok {
				update.Result = result
			}
		}
	case status == goal.StatusWaiting || status == goal.StatusRetrying:
		if strings.TrimSpace(acc) != "" {
			status = goal.StatusReasoning
		}
	}

	if status != prev.Status {
		update.Status = status
	}
	return update
}

// Finalize is Parse at end of stream: the agent becomes complete, and plain
// text without any JSON is wrapped as a message so chatty models still answer.
func Finalize(acc string, prev goal.AgentState) goal.AgentUpdate {
	update := Parse(acc, prev)
	if update.Status == goal.StatusError {
		return update
	}

	update.Status = goal.StatusComplete
	update.Ended = true

	if update.Result == nil && prev.Result == nil {
		content := Content(acc)
		if !strings.Contains(content, "{") && utf8.RuneCountInString(content) > chattyThreshold {
			update.Result = &goal.PlanResult{Message: content, Steps: []goal.Step{}}
		}
	}
	return update
}

// ErrorReason reports whether the text is a backend error marker and returns the reason behind it.
func ErrorReason(acc string) (string, bool) {
	if !strings.HasPrefix(acc, ErrorPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(acc, ErrorPrefix)), true
}

// Content returns the text outside the thinking span with code fences removed.
func Content(acc string) string {
	content := acc
	for {
		open := strings.Index(content, ThinkOpen)
		if open < 0 {
			break
		}
		rest := content[open+len(ThinkOpen):]
		end := strings.Index(rest, ThinkClose)
		if end < 0 {
			// still thinking, drop everything after the open tag
			content = content[:open]
			break
		}
		content = content[:open] + rest[end+len(ThinkClose):]
	}
	return stripFence(strings.TrimSpace(content))
}

func extractThinking(acc string) (thinking string, closed bool, found bool) {
	open := strings.Index(acc, ThinkOpen)
	if open < 0 {
		return "", false, false
	}
	rest := acc[open+len(ThinkOpen):]
	if end := strings.Index(rest, ThinkClose); end >= 0 {
		return strings.TrimSpace(rest[:end]), true, true
	}
	return strings.TrimSpace(rest), false, true
}

func stripFence(s string) string {
	switch {
	case strings.HasPrefix(s, fenceJSON):
		s = s[len(fenceJSON):]
	case strings.HasPrefix(s, fence):
		s = s[len(fence):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), fence)
	return strings.TrimSpace(s)
}

// decodeResult accepts an object with a non-empty message or an array of steps.
func decodeResult(candidate string) (*goal.PlanResult, bool) {
	var raw struct {
		Title   json.RawMessage `json:"title"`
		Message json.RawMessage `json:"message"`
		Steps   json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}

	result := &goal.PlanResult{Steps: []goal.Step{}}
	_ = json.Unmarshal(raw.Title, &result.Title)
	_ = json.Unmarshal(raw.Message, &result.Message)

	steps := bytes.TrimSpace(raw.Steps)
	hasSteps := len(steps) > 0 && steps[0] == '['
	if !hasSteps && result.Message == "" {
		return nil, false
	}

	if hasSteps {
		var elems []json.RawMessage
		if err := json.Unmarshal(steps, &elems); err != nil {
			return nil, false
		}
		for _, elem := range elems {
			var step goal.Step
			if err := json.Unmarshal(elem, &step); err != nil {
				// one malformed step must not cost the whole answer
				continue
			}
			result.Steps = append(result.Steps, step)
		}
	}
	return result, true
}
