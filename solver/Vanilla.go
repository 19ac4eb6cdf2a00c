package solver

import G "gorgonia.org/gorgonia"

// VanillaConfig describes a plain stochastic gradient descent solver.
// Unlike Adam it carries no per-weight state, so two agents with equal
// weights and equal gradients take identical steps.
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // gradient clip, disabled when <= 0
}

// NewVanilla returns a stochastic gradient descent solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	return newSolver(Vanilla, VanillaConfig{
		StepSize: stepSize,
		Batch:    batchSize,
		Clip:     clip,
	})
}

// Create returns the Gorgonia solver the config describes
func (v VanillaConfig) Create() G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(v.StepSize),
		G.WithBatchSize(float64(v.Batch)),
	}
	if v.Clip > 0 {
		opts = append(opts, G.WithClip(v.Clip))
	}
	return G.NewVanillaSolver(opts...)
}

// ValidType returns whether the config can back a solver of the given
// type
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}
