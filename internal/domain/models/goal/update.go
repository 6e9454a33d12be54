package goal

import "time"

// AgentUpdate is a partial change to an AgentState produced from stream text.
// Zero/nil fields leave the current value untouched.
type AgentUpdate struct {
	Status    AgentStatus
	RawOutput *string
	Thinking  *string
	Result    *PlanResult
	// Ended asks the merge to stamp endTime if it is still unset.
	Ended bool
}

// Merge returns a copy of agent with the update applied. The result is never cleared.
func (u AgentUpdate) Merge(agent AgentState, now time.Time) AgentState {
	if u.Status != "" {
		agent.Status = u.Status
	}
	if u.RawOutput != nil {
		agent.RawOutput = *u.RawOutput
	}
	if u.Thinking != nil {
		agent.Thinking = *u.Thinking
	}
	if u.Result != nil {
		agent.Result = u.Result
	}
	if u.Ended && agent.Metrics.EndTime == nil {
		end := now
		agent.Metrics.EndTime = &end
	}
	return agent
}
