package replay

import (
	"testing"
)

func transition(value float64, featureSize, actionSize, agents int,
	done bool) Transition {
	state := make([]float64, featureSize)
	nextState := make([]float64, featureSize)
	action := make([]float64, actionSize)
	for i := range state {
		state[i] = value
		nextState[i] = value + 0.5
	}
	for i := range action {
		action[i] = -value
	}

	reward := make([]float64, agents)
	doneMask := make([]bool, agents)
	for i := range reward {
		reward[i] = value
		doneMask[i] = done
	}
	return Transition{
		State:     state,
		Action:    action,
		NextState: nextState,
		Reward:    reward,
		Done:      doneMask,
	}
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	if _, err := New(0, 10, 4, 2, 1, 1); err == nil {
		t.Error("expected an error for non-positive minimum capacity")
	}
	if _, err := New(10, 5, 4, 2, 1, 1); err == nil {
		t.Error("expected an error for min capacity above max capacity")
	}
	if _, err := New(1, 10, 4, 2, 0, 1); err == nil {
		t.Error("expected an error for non-positive agents")
	}
}

func TestSampleErrors(t *testing.T) {
	buffer, err := New(2, 10, 4, 2, 1, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	_, _, _, _, _, err = buffer.Sample(1)
	if !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error, got %v", err)
	}

	if err := buffer.Add(transition(1, 4, 2, 1, false)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	_, _, _, _, _, err = buffer.Sample(1)
	if !IsInsufficientSamples(err) {
		t.Errorf("expected an insufficient samples error, got %v", err)
	}

	if err := buffer.Add(transition(2, 4, 2, 1, false)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	if _, _, _, _, _, err := buffer.Sample(1); err != nil {
		t.Errorf("expected sampling to succeed, got %v", err)
	}
}

func TestAddRejectsWrongSizes(t *testing.T) {
	buffer, err := New(1, 10, 4, 2, 2, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	if err := buffer.Add(transition(1, 3, 2, 2, false)); err == nil {
		t.Error("expected an error for a wrong feature size")
	}
	if err := buffer.Add(transition(1, 4, 1, 2, false)); err == nil {
		t.Error("expected an error for a wrong action size")
	}
	if err := buffer.Add(transition(1, 4, 2, 1, false)); err == nil {
		t.Error("expected an error for a wrong reward length")
	}
}

func TestSampleBatchLayout(t *testing.T) {
	featureSize, actionSize, agents := 4, 2, 2
	buffer, err := New(1, 10, featureSize, actionSize, agents, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	if err := buffer.Add(transition(3, featureSize, actionSize, agents,
		true)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	batchSize := 3
	state, action, nextState, reward, notDone, err :=
		buffer.Sample(batchSize)
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	if len(state) != batchSize*featureSize ||
		len(nextState) != batchSize*featureSize {
		t.Errorf("wrong state batch lengths: %v, %v", len(state),
			len(nextState))
	}
	if len(action) != batchSize*actionSize {
		t.Errorf("wrong action batch length: %v", len(action))
	}
	if len(reward) != batchSize*agents || len(notDone) != batchSize*agents {
		t.Errorf("wrong per-agent batch lengths: %v, %v", len(reward),
			len(notDone))
	}

	// Only one stored transition, so every sampled row is that
	// transition
	for b := 0; b < batchSize; b++ {
		for a := 0; a < agents; a++ {
			if reward[b*agents+a] != 3 {
				t.Errorf("row %v agent %v reward = %v, want 3", b, a,
					reward[b*agents+a])
			}
			if notDone[b*agents+a] != 0 {
				t.Errorf("row %v agent %v notDone = %v, want 0 for a "+
					"terminal transition", b, a, notDone[b*agents+a])
			}
		}
		for i := 0; i < featureSize; i++ {
			if state[b*featureSize+i] != 3 {
				t.Errorf("row %v state element %v = %v, want 3", b, i,
					state[b*featureSize+i])
			}
			if nextState[b*featureSize+i] != 3.5 {
				t.Errorf("row %v next state element %v = %v, want 3.5", b,
					i, nextState[b*featureSize+i])
			}
		}
	}
}

// TestSampleKeepsPerAgentValues checks that agents keep their own
// rewards and termination flags through storage and sampling: one
// terminated agent must not zero another agent's bootstrap mask.
func TestSampleKeepsPerAgentValues(t *testing.T) {
	agents := 2
	buffer, err := New(1, 10, 2, 2, agents, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	err = buffer.Add(Transition{
		State:     []float64{0, 0},
		Action:    []float64{0, 0},
		NextState: []float64{0, 0},
		Reward:    []float64{0.25, -1.5},
		Done:      []bool{true, false},
	})
	if err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	batchSize := 2
	_, _, _, reward, notDone, err := buffer.Sample(batchSize)
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	for b := 0; b < batchSize; b++ {
		if reward[b*agents] != 0.25 || reward[b*agents+1] != -1.5 {
			t.Errorf("row %v rewards = (%v, %v), want (0.25, -1.5)", b,
				reward[b*agents], reward[b*agents+1])
		}
		if notDone[b*agents] != 0 || notDone[b*agents+1] != 1 {
			t.Errorf("row %v notDone = (%v, %v), want (0, 1)", b,
				notDone[b*agents], notDone[b*agents+1])
		}
	}
}

func TestFifoOverwritesOldest(t *testing.T) {
	buffer, err := New(1, 2, 1, 1, 1, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := buffer.Add(transition(float64(i), 1, 1, 1,
			false)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}
	if buffer.Capacity() != 2 {
		t.Fatalf("got capacity %v, want 2", buffer.Capacity())
	}

	// The first transition was overwritten, so only rewards 2 and 3
	// can ever be sampled
	_, _, _, reward, _, err := buffer.Sample(100)
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	for i, r := range reward {
		if r != 2 && r != 3 {
			t.Errorf("sampled reward %v = %v, want 2 or 3", i, r)
		}
	}
}
