package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"sfneuman.com/voxrl/checkpoint"
	"sfneuman.com/voxrl/environment/pointmass"
	"sfneuman.com/voxrl/experiment/tracker"
	"sfneuman.com/voxrl/initwfn"
	"sfneuman.com/voxrl/replay"
	"sfneuman.com/voxrl/solver"
	"sfneuman.com/voxrl/td3"
)

// TestOnlineRun runs a tiny end-to-end experiment: warmup, training,
// checkpointing, and tracking.
func TestOnlineRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end experiment in short mode")
	}

	dims := [3]int{17, 17, 17}
	episodeLength := 3
	var seed uint64 = 11

	env, err := pointmass.New(dims, 1, 1, 1.0, episodeLength, seed)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(1e-3, 2)
	if err != nil {
		t.Fatalf("could not create critic solver: %v", err)
	}
	actorSolver, err := solver.NewDefaultAdam(1e-3, 2)
	if err != nil {
		t.Fatalf("could not create actor solver: %v", err)
	}

	agentConfig := td3.NewDefaultConfig(dims, 1, 1, 3, 1.0)
	agentConfig.HiddenSize = 4
	agentConfig.BatchSize = 2
	agentConfig.InitWFn = init
	agentConfig.CriticSolver = criticSolver
	agentConfig.ActorSolver = actorSolver
	agentConfig.Seed = seed

	agent, err := td3.New(agentConfig)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	buffer, err := replay.New(4, 16, agentConfig.FeatureSize(),
		agentConfig.ActionSize(), 1, seed)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	dir := t.TempDir()
	store, err := checkpoint.NewDisk(dir, 0)
	if err != nil {
		t.Fatalf("could not create checkpoint store: %v", err)
	}

	returnsFile := filepath.Join(dir, "returns.bin")
	returns := tracker.NewReturn(returnsFile)

	exp := NewOnline(env, agent, buffer, store, Config{
		MaxSteps:         4,
		ExplorationNoise: 0.1,
		CheckpointName:   "test",
		CheckpointEvery:  0,
		Seed:             seed,
	}, returns)

	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}
	exp.Save()

	if got := agent.TotalIterations(); got != 4 {
		t.Errorf("agent trained for %v iterations, want 4", got)
	}

	// The warmup fills the buffer to its minimum before training
	if buffer.Capacity() < buffer.MinCapacity() {
		t.Errorf("buffer holds %v transitions, want at least %v",
			buffer.Capacity(), buffer.MinCapacity())
	}

	// A forced checkpoint is written when the experiment ends
	for _, name := range []string{"test_critic", "test_critic_optimizer",
		"test_actor", "test_actor_optimizer"} {
		path := filepath.Join(dir, name+".bin.zst")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing checkpoint file %v: %v", name, err)
		}
	}

	// Four training steps with 3-step episodes finish one episode
	episodes := tracker.LoadData(returnsFile)
	if len(episodes) != 1 {
		t.Errorf("tracked %v finished episodes, want 1", len(episodes))
	}
}
