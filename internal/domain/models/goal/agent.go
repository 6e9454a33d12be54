package goal

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// AgentStatus is the lifecycle state of one model's answer inside a turn version
type AgentStatus string

const (
	StatusWaiting      AgentStatus = "waiting"
	StatusReasoning    AgentStatus = "reasoning"
	StatusSynthesizing AgentStatus = "synthesizing"
	StatusComplete     AgentStatus = "complete"
	StatusError        AgentStatus = "error"
	StatusStopped      AgentStatus = "stopped"
	StatusRetrying     AgentStatus = "retrying"
)

// IsActive reports whether the agent still has an open (or pending) stream.
func (s AgentStatus) IsActive() bool {
	switch s {
	case StatusWaiting, StatusReasoning, StatusSynthesizing, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether the status is one of complete, error or stopped.
func (s AgentStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusStopped:
		return true
	}
	return false
}

// CanTransition decides whether an incoming status may overwrite the current one.
//
// Active states move freely between each other. A complete answer only yields
// to a repeated completion or a user stop; error and stopped are final.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	switch s {
	case StatusComplete:
		return next == StatusComplete || next == StatusStopped
	case StatusError, StatusStopped:
		return next == s
	}
	return true
}

// Metrics holds wall-clock timestamps for one agent run
type Metrics struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Elapsed returns the run duration, measured up to now while the agent is still running.
func (m Metrics) Elapsed(now time.Time) time.Duration {
	if m.EndTime != nil {
		return m.EndTime.Sub(m.StartTime)
	}
	return now.Sub(m.StartTime)
}

// Step is one element of a plan
type Step struct {
	Step        string  `json:"step"`
	Description string  `json:"description,omitempty"`
	Complexity  float64 `json:"complexity"`
}

// UnmarshalJSON accepts a bare string as a step title, a numeric step field,
// and complexity as a number or a numeric string; models are sloppy about all three.
func (s *Step) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		*s = Step{Step: title}
		return nil
	}

	var raw struct {
		Step        json.RawMessage `json:"step"`
		Description string          `json:"description"`
		Complexity  json.RawMessage `json:"complexity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Step = looseString(raw.Step)
	s.Description = raw.Description
	s.Complexity = 0

	c := strings.Trim(strings.TrimSpace(string(raw.Complexity)), `"`)
	if c != "" && c != "null" {
		v, err := strconv.ParseFloat(c, 64)
		if err == nil {
			s.Complexity = v
		}
	}
	return nil
}

// looseString renders a JSON string or number as text; anything else is empty.
func looseString(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

// PlanResult is the structured payload an agent eventually produces
type PlanResult struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Steps   []Step `json:"steps"`
}

// AgentState is one model's contribution to one turn version
type AgentState struct {
	ModelID   string      `json:"modelId"`
	Status    AgentStatus `json:"status"`
	RawOutput string      `json:"rawOutput"`
	Thinking  string      `json:"thinking"`
	Result    *PlanResult `json:"result"`
	Metrics   Metrics     `json:"metrics"`
}

// NewAgentState returns a fresh agent that is about to stream.
func NewAgentState(modelID string, status AgentStatus, now time.Time) AgentState {
	return AgentState{
		ModelID: modelID,
		Status:  status,
		Metrics: Metrics{StartTime: now},
	}
}

// Steps returns the planned steps, or nil when the agent has no result yet.
func (a AgentState) Steps() []Step {
	if a.Result == nil {
		return nil
	}
	return a.Result.Steps
}
