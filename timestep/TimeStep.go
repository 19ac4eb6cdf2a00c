// Package timestep implements timesteps of the agent-environment interaction
package timestep

import "fmt"

// StepType denotes the type of step that a TimeStep can be, either a first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment. The
// Observation is the flattened multi-agent volumetric observation,
// laid out as (agents, depth, height, width, channel) in row-major
// order, and Reward holds one reward per agent.
type TimeStep struct {
	stepType    StepType
	Reward      []float64
	Observation []float64
	Number      int
}

func New(t StepType, r []float64, o []float64, n int) TimeStep {
	return TimeStep{t, r, o, n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Number)
}

// Terminals returns the per-agent termination mask of the TimeStep:
// every agent terminates exactly when the episode ends.
func (t *TimeStep) Terminals(agents int) []bool {
	done := make([]bool, agents)
	if t.Last() {
		for i := range done {
			done[i] = true
		}
	}
	return done
}
