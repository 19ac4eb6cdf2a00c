// Package td3 implements the Twin Delayed Deep Deterministic Policy
// Gradient algorithm for continuous control from volumetric
// observations, extended to multiple agents sharing a convolutional
// backbone.
package td3

import (
	"fmt"

	"sfneuman.com/voxrl/initwfn"
	"sfneuman.com/voxrl/solver"
)

// Default hyperparameters, matching the values the algorithm was
// introduced with.
const (
	DefaultHiddenSize  = 256
	DefaultDiscount    = 0.99
	DefaultTau         = 0.005
	DefaultPolicyNoise = 0.2
	DefaultNoiseClip   = 0.5
	DefaultPolicyFreq  = 2
	DefaultBatchSize   = 256
)

// Config implements a configuration for a TD3 agent
type Config struct {
	// Observation geometry. Each agent observes a volume of spatial
	// size StateDims with Channels values per voxel.
	StateDims [3]int
	Channels  int
	Agents    int

	// Action geometry. Every action dimension is bounded to
	// [-MaxAction, MaxAction].
	ActionDim int
	MaxAction float64

	// Network architecture
	HiddenSize int
	InitWFn    *initwfn.InitWFn

	// Optimizers for the critic and actor networks
	CriticSolver *solver.Solver
	ActorSolver  *solver.Solver

	// Update rule hyperparameters
	BatchSize   int
	Discount    float64
	Tau         float64
	PolicyNoise float64
	NoiseClip   float64
	PolicyFreq  int

	// Seed for the target policy smoothing noise
	Seed uint64
}

// NewDefaultConfig returns a Config for the given observation and
// action geometry with all hyperparameters at their default values.
// Optimizers and the weight initializer are left nil and must be set
// before the Config is used.
func NewDefaultConfig(stateDims [3]int, channels, agents, actionDim int,
	maxAction float64) Config {
	return Config{
		StateDims: stateDims,
		Channels:  channels,
		Agents:    agents,
		ActionDim: actionDim,
		MaxAction: maxAction,

		HiddenSize:  DefaultHiddenSize,
		BatchSize:   DefaultBatchSize,
		Discount:    DefaultDiscount,
		Tau:         DefaultTau,
		PolicyNoise: DefaultPolicyNoise,
		NoiseClip:   DefaultNoiseClip,
		PolicyFreq:  DefaultPolicyFreq,
	}
}

// FeatureSize returns the length of the flattened multi-agent
// observation vector described by the Config
func (c Config) FeatureSize() int {
	return c.Agents * c.StateDims[0] * c.StateDims[1] * c.StateDims[2] *
		c.Channels
}

// ActionSize returns the length of the flattened joint action vector
// described by the Config
func (c Config) ActionSize() int {
	return c.Agents * c.ActionDim
}

// Validate checks a Config to ensure it is a valid configuration of a
// TD3 agent
func (c Config) Validate() error {
	for i, dim := range c.StateDims {
		if dim < 2 {
			return fmt.Errorf("config: state dimension %v must be at "+
				"least 2 \n\thave(%v)", i, dim)
		}
	}
	if c.Channels < 1 {
		return fmt.Errorf("config: channels must be positive \n\thave(%v)",
			c.Channels)
	}
	if c.Agents < 1 {
		return fmt.Errorf("config: agents must be positive \n\thave(%v)",
			c.Agents)
	}
	if c.ActionDim < 1 {
		return fmt.Errorf("config: action dimension must be positive "+
			"\n\thave(%v)", c.ActionDim)
	}
	if c.MaxAction <= 0 {
		return fmt.Errorf("config: max action must be positive "+
			"\n\thave(%v)", c.MaxAction)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("config: hidden size must be positive "+
			"\n\thave(%v)", c.HiddenSize)
	}
	if c.InitWFn == nil {
		return fmt.Errorf("config: no weight initializer")
	}
	if c.CriticSolver == nil || c.ActorSolver == nil {
		return fmt.Errorf("config: both critic and actor solvers are " +
			"required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("config: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Discount)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("config: tau must be in (0, 1] \n\thave(%v)",
			c.Tau)
	}
	if c.PolicyNoise < 0 || c.NoiseClip < 0 {
		return fmt.Errorf("config: policy noise and noise clip must be "+
			"non-negative \n\thave(%v, %v)", c.PolicyNoise, c.NoiseClip)
	}
	if c.PolicyFreq < 1 {
		return fmt.Errorf("config: policy frequency must be positive "+
			"\n\thave(%v)", c.PolicyFreq)
	}
	return nil
}
