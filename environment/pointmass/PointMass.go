// Package pointmass implements a synthetic multi-agent reaching task
// on volumetric observations, used to exercise the training stack
// without an external simulator.
package pointmass

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	ts "sfneuman.com/voxrl/timestep"
	"sfneuman.com/voxrl/utils/floatutils"
)

// stepSize is the fraction of the unit cube an agent moves per unit
// of action.
const stepSize = 0.05

// PointMass is an environment in which each agent is a point in the
// unit cube trying to reach a shared target position. Observations
// are voxelizations of the cube: the voxel containing the agent holds
// 1 and the voxel containing the target holds -1 in the agent's
// volume, with the target marker written to channel 1 when more than
// one channel is available and summed into channel 0 otherwise.
// Actions are per-agent displacement vectors, and each agent's reward
// is its own negative distance to the target.
//
// Episodes end after a fixed number of steps, for every agent at
// once.
type PointMass struct {
	dims          [3]int
	channels      int
	agents        int
	maxAction     float64
	episodeLength int

	positions [][3]float64
	target    [3]float64
	step      int
	rng       *rand.Rand
}

// New returns a new PointMass environment with the given observation
// geometry. The action dimension of the environment is always 3.
func New(dims [3]int, channels, agents int, maxAction float64,
	episodeLength int, seed uint64) (*PointMass, error) {
	if channels < 1 || agents < 1 {
		return nil, fmt.Errorf("new: channels and agents must be positive "+
			"\n\thave(%v, %v)", channels, agents)
	}
	if episodeLength < 1 {
		return nil, fmt.Errorf("new: episode length must be positive "+
			"\n\thave(%v)", episodeLength)
	}

	return &PointMass{
		dims:          dims,
		channels:      channels,
		agents:        agents,
		maxAction:     maxAction,
		episodeLength: episodeLength,
		positions:     make([][3]float64, agents),
		rng:           rand.New(rand.NewSource(seed)),
	}, nil
}

// Reset starts a new episode with the agents and target placed
// uniformly randomly in the cube
func (p *PointMass) Reset() ts.TimeStep {
	for i := range p.positions {
		for j := 0; j < 3; j++ {
			p.positions[i][j] = p.rng.Float64()
		}
	}
	for j := 0; j < 3; j++ {
		p.target[j] = p.rng.Float64()
	}
	p.step = 0

	return ts.New(ts.First, make([]float64, p.agents), p.observe(), 0)
}

// Step advances the environment by one joint action. The action is
// the flattened (agents, 3) displacement, each element in
// [-maxAction, maxAction].
func (p *PointMass) Step(action []float64) (ts.TimeStep, error) {
	if len(action) != 3*p.agents {
		return ts.TimeStep{}, fmt.Errorf("step: invalid action size "+
			"\n\twant(%v) \n\thave(%v)", 3*p.agents, len(action))
	}

	for i := range p.positions {
		for j := 0; j < 3; j++ {
			move := floatutils.Clip(action[3*i+j], -p.maxAction,
				p.maxAction)
			p.positions[i][j] = floatutils.Clip(
				p.positions[i][j]+stepSize*move/p.maxAction, 0, 1)
		}
	}
	p.step++

	stepType := ts.Mid
	if p.step >= p.episodeLength {
		stepType = ts.Last
	}

	return ts.New(stepType, p.reward(), p.observe(), p.step), nil
}

// reward returns each agent's negative distance to the target
func (p *PointMass) reward() []float64 {
	rewards := make([]float64, p.agents)
	for i, pos := range p.positions {
		dist := 0.0
		for j := 0; j < 3; j++ {
			diff := pos[j] - p.target[j]
			dist += diff * diff
		}
		rewards[i] = -math.Sqrt(dist)
	}
	return rewards
}

// voxel returns the flat spatial index of the voxel containing pos
func (p *PointMass) voxel(pos [3]float64) int {
	index := 0
	for j := 0; j < 3; j++ {
		v := int(pos[j] * float64(p.dims[j]))
		if v >= p.dims[j] {
			v = p.dims[j] - 1
		}
		index = index*p.dims[j] + v
	}
	return index
}

// observe voxelizes the current state into the flattened
// (agents, depth, height, width, channel) observation. With a single
// channel the agent and target markers are summed, so an agent
// sharing the target's voxel still contributes to the observation;
// with more channels the target marker gets channel 1 to itself.
func (p *PointMass) observe() []float64 {
	voxels := p.dims[0] * p.dims[1] * p.dims[2]
	obs := make([]float64, p.agents*voxels*p.channels)

	targetChannel := 0
	if p.channels > 1 {
		targetChannel = 1
	}

	targetVoxel := p.voxel(p.target)
	for i, pos := range p.positions {
		base := i * voxels * p.channels
		obs[base+p.voxel(pos)*p.channels] += 1.0
		obs[base+targetVoxel*p.channels+targetChannel] += -1.0
	}
	return obs
}
