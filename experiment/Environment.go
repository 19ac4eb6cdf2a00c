// Package experiment implements functionality for running an experiment
package experiment

import ts "sfneuman.com/voxrl/timestep"

// Environment is the narrow surface an experiment needs from an
// environment: reset to a first TimeStep and advance by one joint
// action. The action passed to Step is the flattened
// (agents, actionDim) joint action.
type Environment interface {
	Reset() ts.TimeStep
	Step(action []float64) (ts.TimeStep, error)
}
