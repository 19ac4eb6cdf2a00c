// Package replay implements experience replay buffers for storing and
// sampling environment transitions.
package replay

import "fmt"

// Transition represents a single environment transition. State and
// NextState are flattened volumetric observations for all agents,
// Action is the flattened joint action, and Reward and Done hold one
// value per agent.
type Transition struct {
	State     []float64
	Action    []float64
	NextState []float64
	Reward    []float64
	Done      []bool
}

// Buffer implements an experience replay buffer. Sampled batches are
// returned as flat []float64 with transitions laid out contiguously,
// ready to be fed to network input tensors. The reward and notDone
// batches hold one value per (transition, agent) pair, agent varying
// fastest; notDone holds 1 for agents still acting and 0 for
// terminated ones, so it can be used directly as a bootstrapping
// mask.
type Buffer interface {
	// Add adds a transition to the buffer
	Add(t Transition) error

	// Sample samples a batch of transitions uniformly randomly,
	// returning the state, action, nextState, reward, and notDone
	// batches
	Sample(batchSize int) ([]float64, []float64, []float64, []float64,
		[]float64, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in the
	// buffer before the buffer can be sampled
	MinCapacity() int
}

// Config implements a specific configuration of a Buffer
type Config struct {
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the Buffer described by the Config.
// The featureSize and actionSize parameters define the lengths of the
// flattened state and action vectors of stored transitions, and
// agents the number of per-agent reward and termination entries.
func (c Config) Create(featureSize, actionSize, agents int,
	seed uint64) (Buffer, error) {
	return New(c.MinReplayCapacity, c.MaxReplayCapacity, featureSize,
		actionSize, agents, seed)
}

// New returns a new Buffer which removes transitions first-in
// first-out once maxCapacity is reached and samples uniformly
// randomly.
func New(minCapacity, maxCapacity, featureSize, actionSize, agents int,
	seed uint64) (Buffer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: cannot have minCapacity(%v) > max "+
			"buffer capacity (%v)", minCapacity, maxCapacity)
	}
	if featureSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: feature and action sizes must be "+
			"positive \n\thave(%v, %v)", featureSize, actionSize)
	}
	if agents <= 0 {
		return nil, fmt.Errorf("new: agents must be positive \n\thave(%v)",
			agents)
	}

	return newFifoBuffer(minCapacity, maxCapacity, featureSize, actionSize,
		agents, seed), nil
}
