package goal

import "time"

// TurnVersion is one edit of a turn's user message together with the answers it produced
type TurnVersion struct {
	ID          string   `json:"id"`
	UserMessage string   `json:"userMessage"`
	Agents      AgentSet `json:"agents"`
	// DownstreamHistory is reserved for per-version follow-on threads.
	// Nothing in the engine populates it; it is carried through storage untouched.
	DownstreamHistory []Turn    `json:"downstreamHistory,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TurnMetadata links a drill-down turn to the parent step that spawned it
type TurnMetadata struct {
	ParentTurnID     string `json:"parentTurnId,omitempty"`
	ParentStepNumber string `json:"parentStepNumber,omitempty"` // dotted label, e.g. "1.3"
	ParentStepTitle  string `json:"parentStepTitle,omitempty"`
}

// Turn is one user prompt and its versions.
// Agents and UserMessage mirror Versions[CurrentVersionIndex].
type Turn struct {
	ID                  string        `json:"id"`
	UserMessage         string        `json:"userMessage"`
	Agents              AgentSet      `json:"agents"`
	Versions            []TurnVersion `json:"versions"`
	CurrentVersionIndex int           `json:"currentVersionIndex"`
	Metadata            *TurnMetadata `json:"metadata,omitempty"`
}

// ParentID returns the parent turn id, or "" for a root goal.
func (t Turn) ParentID() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata.ParentTurnID
}

// StepNumber returns the dotted step label this turn was drilled from, or "".
func (t Turn) StepNumber() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata.ParentStepNumber
}

// CurrentVersion returns the displayed version.
func (t Turn) CurrentVersion() TurnVersion {
	return t.Versions[t.CurrentVersionIndex]
}

// Clone copies the turn deeply enough that slices can be replaced without aliasing.
func (t Turn) Clone() Turn {
	out := t
	out.Agents = t.Agents.Clone()
	out.Versions = make([]TurnVersion, len(t.Versions))
	for i, v := range t.Versions {
		v.Agents = v.Agents.Clone()
		out.Versions[i] = v
	}
	if t.Metadata != nil {
		md := *t.Metadata
		out.Metadata = &md
	}
	return out
}

// Project resynchronizes the visible fields with the current version.
func (t *Turn) Project() {
	v := t.Versions[t.CurrentVersionIndex]
	t.UserMessage = v.UserMessage
	t.Agents = v.Agents
}

// Valid reports whether the version index points inside Versions.
func (t Turn) Valid() bool {
	return len(t.Versions) > 0 && t.CurrentVersionIndex >= 0 && t.CurrentVersionIndex < len(t.Versions)
}
