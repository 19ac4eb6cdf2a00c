package experiment

import (
	"fmt"
	"os"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"sfneuman.com/voxrl/checkpoint"
	"sfneuman.com/voxrl/experiment/tracker"
	"sfneuman.com/voxrl/replay"
	"sfneuman.com/voxrl/td3"
	ts "sfneuman.com/voxrl/timestep"
	"sfneuman.com/voxrl/utils/floatutils"
	"sfneuman.com/voxrl/utils/progressbar"
)

// Config represents a configuration of an online experiment
type Config struct {
	// MaxSteps is the total number of environment steps to run
	MaxSteps uint

	// ExplorationNoise is the standard deviation of the Gaussian
	// noise added to selected actions during training. Noisy actions
	// are clamped back into the valid action range.
	ExplorationNoise float64

	// CheckpointName is the name the agent is saved under.
	// CheckpointEvery is the number of environment steps between
	// unforced checkpoints; 0 disables periodic checkpointing. A
	// forced checkpoint is always written when the experiment ends.
	CheckpointName  string
	CheckpointEvery uint

	// Seed for the exploration noise and the random warmup actions
	Seed uint64
}

// Online is an experiment that trains a TD3 agent online in a single
// environment. Before training starts, the replay buffer is filled to
// its minimum capacity with uniformly random actions.
type Online struct {
	env    Environment
	agent  *td3.TD3
	buffer replay.Buffer
	store  checkpoint.Store

	maxSteps     uint
	currentSteps uint

	checkpointName  string
	checkpointEvery uint

	explNoise float64
	noise     distuv.Normal
	rng       *rand.Rand
	trackers  []tracker.Tracker
}

// NewOnline creates and returns a new online experiment training agent
// in env. Transitions are stored in buffer and checkpoints written to
// store. The trackers parameter determines what data generated during
// the experiment is saved.
func NewOnline(env Environment, agent *td3.TD3, buffer replay.Buffer,
	store checkpoint.Store, config Config,
	trackers ...tracker.Tracker) *Online {
	noise := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(config.Seed),
	}

	return &Online{
		env:    env,
		agent:  agent,
		buffer: buffer,
		store:  store,

		maxSteps:        config.MaxSteps,
		checkpointName:  config.CheckpointName,
		checkpointEvery: config.CheckpointEvery,

		explNoise: config.ExplorationNoise,
		noise:     noise,
		rng:       rand.New(rand.NewSource(config.Seed)),
		trackers:  trackers,
	}
}

// Register registers a tracker.Tracker with the experiment so that
// data generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// fillBuffer fills the replay buffer to its minimum capacity by
// running the environment with uniformly random actions, displaying
// a progress bar while it does
func (o *Online) fillBuffer() error {
	needed := o.buffer.MinCapacity() - o.buffer.Capacity()
	if needed <= 0 {
		return nil
	}

	maxAction := o.agent.MaxAction()
	bar := progressbar.New(50, needed, os.Stderr)
	defer bar.Close()

	step := o.env.Reset()
	for i := 0; i < needed; i++ {
		action := make([]float64, o.agent.ActionSize())
		for j := range action {
			action[j] = maxAction * (2*o.rng.Float64() - 1)
		}

		next, err := o.env.Step(action)
		if err != nil {
			return fmt.Errorf("fillbuffer: could not step environment: %v",
				err)
		}

		err = o.buffer.Add(replay.Transition{
			State:     step.Observation,
			Action:    action,
			NextState: next.Observation,
			Reward:    next.Reward,
			Done:      next.Terminals(len(next.Reward)),
		})
		if err != nil {
			return fmt.Errorf("fillbuffer: could not store transition: %v",
				err)
		}

		if next.Last() {
			next = o.env.Reset()
		}
		step = next

		bar.Increment()
		bar.Display()
	}
	return nil
}

// RunEpisode runs a single episode of the experiment, returning
// whether the maximum step limit has been reached
func (o *Online) RunEpisode() (bool, error) {
	maxAction := o.agent.MaxAction()
	sigma := o.explNoise * maxAction

	step := o.env.Reset()
	o.track(step)

	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		action, err := o.agent.SelectAction(step.Observation)
		if err != nil {
			return false, fmt.Errorf("runepisode: could not select "+
				"action: %v", err)
		}
		for i := range action {
			action[i] = floatutils.Clip(action[i]+sigma*o.noise.Rand(),
				-maxAction, maxAction)
		}

		next, err := o.env.Step(action)
		if err != nil {
			return false, fmt.Errorf("runepisode: could not step "+
				"environment: %v", err)
		}

		err = o.buffer.Add(replay.Transition{
			State:     step.Observation,
			Action:    action,
			NextState: next.Observation,
			Reward:    next.Reward,
			Done:      next.Terminals(len(next.Reward)),
		})
		if err != nil {
			return false, fmt.Errorf("runepisode: could not store "+
				"transition: %v", err)
		}

		if _, err := o.agent.Step(o.buffer); err != nil {
			return false, fmt.Errorf("runepisode: could not train agent: %v",
				err)
		}

		o.track(next)
		step = next

		if o.checkpointEvery > 0 &&
			o.currentSteps%o.checkpointEvery == 0 {
			err := o.agent.Save(o.store, o.checkpointName, false)
			if err != nil {
				return false, fmt.Errorf("runepisode: could not "+
					"checkpoint agent: %v", err)
			}
		}
	}

	return o.currentSteps >= o.maxSteps, nil
}

// Run fills the replay buffer, then runs the entire experiment for
// all timesteps, writing a final forced checkpoint when done
func (o *Online) Run() error {
	if err := o.fillBuffer(); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	ended := false
	for !ended {
		var err error
		if ended, err = o.RunEpisode(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}

	if err := o.agent.Save(o.store, o.checkpointName, true); err != nil {
		return fmt.Errorf("run: could not save agent: %v", err)
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
}

// track tracks the current timestep by caching its data in each
// tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}
