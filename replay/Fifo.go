package replay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// fifoBuffer implements a concrete Buffer as a ring: once the buffer
// is full, each added transition overwrites the oldest stored one.
// Data is stored in flat contiguous caches so sampled batches can be
// assembled with copies only.
type fifoBuffer struct {
	stateCache     []float64
	actionCache    []float64
	nextStateCache []float64
	rewardCache    []float64
	notDoneCache   []float64

	// position is the ring index at which the next transition is
	// stored
	position int
	size     int

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
	agents      int

	rng *rand.Rand
}

func newFifoBuffer(minCapacity, maxCapacity, featureSize, actionSize,
	agents int, seed uint64) *fifoBuffer {
	return &fifoBuffer{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		nextStateCache: make([]float64, maxCapacity*featureSize),
		rewardCache:    make([]float64, maxCapacity*agents),
		notDoneCache:   make([]float64, maxCapacity*agents),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
		agents:      agents,

		rng: rand.New(rand.NewSource(seed)),
	}
}

// Add adds a transition to the buffer, overwriting the oldest stored
// transition when the buffer is full
func (f *fifoBuffer) Add(t Transition) error {
	if len(t.State) != f.featureSize || len(t.NextState) != f.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v) "+
			"\n\thave(%v)", f.featureSize, len(t.State))
	}
	if len(t.Action) != f.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v) "+
			"\n\thave(%v)", f.actionSize, len(t.Action))
	}
	if len(t.Reward) != f.agents || len(t.Done) != f.agents {
		return fmt.Errorf("add: reward and done must have one entry per "+
			"agent \n\twant(%v) \n\thave(%v, %v)", f.agents, len(t.Reward),
			len(t.Done))
	}

	stateInd := f.position * f.featureSize
	copy(f.stateCache[stateInd:stateInd+f.featureSize], t.State)
	copy(f.nextStateCache[stateInd:stateInd+f.featureSize], t.NextState)

	actionInd := f.position * f.actionSize
	copy(f.actionCache[actionInd:actionInd+f.actionSize], t.Action)

	rewardInd := f.position * f.agents
	copy(f.rewardCache[rewardInd:rewardInd+f.agents], t.Reward)
	for a, done := range t.Done {
		if done {
			f.notDoneCache[rewardInd+a] = 0.0
		} else {
			f.notDoneCache[rewardInd+a] = 1.0
		}
	}

	f.position = (f.position + 1) % f.maxCapacity
	if f.size < f.maxCapacity {
		f.size++
	}
	return nil
}

// Sample samples a batch of transitions uniformly randomly with
// replacement
func (f *fifoBuffer) Sample(batchSize int) ([]float64, []float64, []float64,
	[]float64, []float64, error) {
	if f.size == 0 {
		err := &BufferError{Op: "sample", Err: errEmptyBuffer}
		return nil, nil, nil, nil, nil, err
	}
	if f.size < f.minCapacity {
		err := &BufferError{Op: "sample", Err: errInsufficientSamples}
		return nil, nil, nil, nil, nil, err
	}
	if batchSize <= 0 {
		return nil, nil, nil, nil, nil, fmt.Errorf("sample: batch size "+
			"must be positive \n\thave(%v)", batchSize)
	}

	indices := make([]int, batchSize)
	for i := range indices {
		indices[i] = f.rng.Intn(f.size)
	}

	stateBatch := make([]float64, batchSize*f.featureSize)
	nextStateBatch := make([]float64, batchSize*f.featureSize)
	for i, index := range indices {
		batchStartInd := i * f.featureSize
		expStartInd := index * f.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+f.featureSize],
			f.stateCache[expStartInd:expStartInd+f.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+f.featureSize],
			f.nextStateCache[expStartInd:expStartInd+f.featureSize],
		)
	}

	actionBatch := make([]float64, batchSize*f.actionSize)
	for i, index := range indices {
		batchStartInd := i * f.actionSize
		expStartInd := index * f.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+f.actionSize],
			f.actionCache[expStartInd:expStartInd+f.actionSize],
		)
	}

	rewardBatch := make([]float64, batchSize*f.agents)
	notDoneBatch := make([]float64, batchSize*f.agents)
	for i, index := range indices {
		batchStartInd := i * f.agents
		expStartInd := index * f.agents
		copy(rewardBatch[batchStartInd:batchStartInd+f.agents],
			f.rewardCache[expStartInd:expStartInd+f.agents],
		)
		copy(notDoneBatch[batchStartInd:batchStartInd+f.agents],
			f.notDoneCache[expStartInd:expStartInd+f.agents],
		)
	}

	return stateBatch, actionBatch, nextStateBatch, rewardBatch,
		notDoneBatch, nil
}

// Capacity returns the current number of elements in the buffer that
// are available for sampling
func (f *fifoBuffer) Capacity() int {
	return f.size
}

// MaxCapacity returns the maximum number of elements allowed in the
// buffer
func (f *fifoBuffer) MaxCapacity() int {
	return f.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// buffer before sampling is allowed
func (f *fifoBuffer) MinCapacity() int {
	return f.minCapacity
}

// String returns the string representation of the buffer
func (f *fifoBuffer) String() string {
	return fmt.Sprintf("FifoBuffer of capacity %v/%v", f.size, f.maxCapacity)
}
