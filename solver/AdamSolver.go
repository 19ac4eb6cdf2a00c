package solver

import G "gorgonia.org/gorgonia"

// AdamConfig describes an Adam solver. It is the default optimizer for
// both the actor and critic stacks.
type AdamConfig struct {
	StepSize float64
	Epsilon  float64
	Beta1    float64
	Beta2    float64
	Batch    int
}

// NewDefaultAdam returns an Adam solver with the usual moment decay
// rates (0.9, 0.999) and epsilon 1e-8.
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize)
}

// NewAdam returns an Adam solver with fully specified hyperparameters
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int) (*Solver,
	error) {
	return newSolver(Adam, AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	})
}

// Create returns the Gorgonia solver the config describes
func (a AdamConfig) Create() G.Solver {
	return G.NewAdamSolver(
		G.WithLearnRate(a.StepSize),
		G.WithEps(a.Epsilon),
		G.WithBeta1(a.Beta1),
		G.WithBeta2(a.Beta2),
		G.WithBatchSize(float64(a.Batch)),
	)
}

// ValidType returns whether the config can back a solver of the given
// type
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}
