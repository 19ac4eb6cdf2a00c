package tracker

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"

	ts "sfneuman.com/voxrl/timestep"
	"sfneuman.com/voxrl/utils/floatutils"
)

// Return tracks and saves the episodic return in an experiment
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn(filename string) *Return {
	var tracker Return
	tracker.lastTimeStep = -1
	tracker.filename = filename
	return &tracker
}

// Track tracks the rewards seen on a timestep, reduced to the mean
// over agents. By calling this method on every timestep, the Tracker
// will store all rewards seen in the episode, and save the cumulative
// reward for that episode as the episodic return. When a new episode
// starts, this method will automatically detect this and start
// accumulating the rewards for this new episode separately from the
// rewards seen on previous episodes.
//
// Track panics if it is called for non-sequential timesteps
func (o *Return) Track(step ts.TimeStep) {
	if o.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("warning: last two timesteps tracked are not"+
			"sequential: timestep %v --> timestep %v were tracked",
			o.lastTimeStep, step.Number)
		panic(msg)
	}

	// Check if the timestep is the last in the episode, if so, cache
	// the episodic return and start recording return for the next
	// episode
	if !step.Last() {
		o.currentReturn += floatutils.Mean(step.Reward...)
		o.lastTimeStep = step.Number
	} else {
		o.currentReturn += floatutils.Mean(step.Reward...)
		o.episodeReturns = append(o.episodeReturns, o.currentReturn)

		o.currentReturn = 0.0
		o.lastTimeStep = -1
	}
}

// Save saves the data tracked by the Return Tracker to disk
func (o *Return) Save() {
	file, err := os.Create(o.filename)
	if err != nil {
		log.Fatalf("could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err = en.Encode(o.episodeReturns); err != nil {
		log.Fatalf("could not encode return data: %v", err)
	}
}
