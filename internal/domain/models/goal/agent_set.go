package goal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AgentSet is an insertion-ordered collection of agents keyed by model id.
// It serializes as a JSON object so stored histories stay keyed by model.
//
// Methods never mutate the receiver; every change returns a new set.
type AgentSet []AgentState

// NewAgentSet builds a set from agents, dropping later duplicates of a model id.
func NewAgentSet(agents ...AgentState) AgentSet {
	set := make(AgentSet, 0, len(agents))
	for _, a := range agents {
		if set.Index(a.ModelID) >= 0 {
			continue
		}
		set = append(set, a)
	}
	return set
}

// Index returns the position of modelID, or -1.
func (s AgentSet) Index(modelID string) int {
	for i := range s {
		if s[i].ModelID == modelID {
			return i
		}
	}
	return -1
}

func (s AgentSet) Get(modelID string) (AgentState, bool) {
	if i := s.Index(modelID); i >= 0 {
		return s[i], true
	}
	return AgentState{}, false
}

// First returns the agent that was added first; tree building and previews read from it.
func (s AgentSet) First() (AgentState, bool) {
	if len(s) == 0 {
		return AgentState{}, false
	}
	return s[0], true
}

func (s AgentSet) Clone() AgentSet {
	if s == nil {
		return nil
	}
	out := make(AgentSet, len(s))
	copy(out, s)
	return out
}

// With returns a copy where the agent with the same model id is overwritten, or appended if absent.
func (s AgentSet) With(agent AgentState) AgentSet {
	out := s.Clone()
	if i := out.Index(agent.ModelID); i >= 0 {
		out[i] = agent
		return out
	}
	return append(out, agent)
}

// Replace swaps the entry for oldModelID with agent, keeping its position.
// Any other entry already using agent's model id is removed so keys stay unique.
func (s AgentSet) Replace(oldModelID string, agent AgentState) AgentSet {
	pos := s.Index(oldModelID)
	if pos < 0 {
		return s.With(agent)
	}

	out := make(AgentSet, 0, len(s))
	for i, a := range s {
		switch {
		case i == pos:
			out = append(out, agent)
		case a.ModelID == agent.ModelID:
			// duplicate key, drop
		default:
			out = append(out, a)
		}
	}
	return out
}

func (s AgentSet) ModelIDs() []string {
	ids := make([]string, len(s))
	for i, a := range s {
		ids[i] = a.ModelID
	}
	return ids
}

// AnyActive reports whether at least one agent is still streaming or pending.
func (s AgentSet) AnyActive() bool {
	for _, a := range s {
		if a.Status.IsActive() {
			return true
		}
	}
	return false
}

// MarshalJSON writes the set as an object, preserving insertion order.
func (s AgentSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.ModelID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal agent %s: %w", a.ModelID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keyed by model id, keeping the document order.
func (s *AgentSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("agents: expected object, got %v", tok)
	}

	set := AgentSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("agents: expected key, got %v", tok)
		}

		var agent AgentState
		if err := dec.Decode(&agent); err != nil {
			return fmt.Errorf("agents[%s]: %w", key, err)
		}
		if agent.ModelID == "" {
			agent.ModelID = key
		}
		set = set.With(agent)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = set
	return nil
}
