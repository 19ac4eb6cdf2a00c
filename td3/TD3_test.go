package td3

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"sfneuman.com/voxrl/checkpoint"
	"sfneuman.com/voxrl/initwfn"
	"sfneuman.com/voxrl/replay"
	"sfneuman.com/voxrl/solver"
)

const testTolerance = 1e-9

// testDims is the smallest spatial size the encoder stack accepts
// (17 -> 9 -> 5 -> 3 -> 2).
var testDims = [3]int{17, 17, 17}

func testConfig(t *testing.T) Config {
	t.Helper()

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

	return Config{
		StateDims: testDims,
		Channels:  1,
		Agents:    1,
		ActionDim: 2,
		MaxAction: 1.0,

		HiddenSize: 4,
		InitWFn:    init,

		CriticSolver: criticSolver,
		ActorSolver:  actorSolver,

		BatchSize:   2,
		Discount:    0.99,
		Tau:         0.005,
		PolicyNoise: 0.2,
		NoiseClip:   0.5,
		PolicyFreq:  2,

		Seed: 17,
	}
}

// deterministicConfig removes every source of cross-run divergence:
// stateless vanilla solvers, no smoothing noise, and hard target
// updates on every step so the target networks always equal the live
// ones.
func deterministicConfig(t *testing.T) Config {
	t.Helper()

	config := testConfig(t)
	config.Tau = 1.0
	config.PolicyFreq = 1
	config.PolicyNoise = 0

	criticSolver, err := solver.NewVanilla(1e-3, 2, -1.0)
	if err != nil {
		t.Fatalf("could not create critic solver: %v", err)
	}
	actorSolver, err := solver.NewVanilla(1e-3, 2, -1.0)
	if err != nil {
		t.Fatalf("could not create actor solver: %v", err)
	}
	config.CriticSolver = criticSolver
	config.ActorSolver = actorSolver
	return config
}

func pseudorandom(size int, seed uint64) []float64 {
	out := make([]float64, size)
	x := seed*6364136223846793005 + 1442695040888963407
	for i := range out {
		x = x*6364136223846793005 + 1442695040888963407
		out[i] = float64(x>>11)/float64(1<<53)*2 - 1
	}
	return out
}

// fixedBuffer is a replay.Buffer stub returning the same batch on
// every sample. Returned slices are fresh copies, since the trainer
// clamps rewards in place.
type fixedBuffer struct {
	state, action, nextState []float64
	reward, notDone          []float64
}

func newFixedBuffer(config Config, reward float64) *fixedBuffer {
	batch := config.BatchSize
	rewards := make([]float64, batch*config.Agents)
	notDone := make([]float64, batch*config.Agents)
	for i := range rewards {
		rewards[i] = reward
		notDone[i] = 1
	}
	return &fixedBuffer{
		state:     pseudorandom(batch*config.FeatureSize(), 101),
		action:    pseudorandom(batch*config.ActionSize(), 102),
		nextState: pseudorandom(batch*config.FeatureSize(), 103),
		reward:    rewards,
		notDone:   notDone,
	}
}

func (f *fixedBuffer) Add(replay.Transition) error { return nil }

func (f *fixedBuffer) Sample(int) ([]float64, []float64, []float64,
	[]float64, []float64, error) {
	clone := func(in []float64) []float64 {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}
	return clone(f.state), clone(f.action), clone(f.nextState),
		clone(f.reward), clone(f.notDone), nil
}

func (f *fixedBuffer) Capacity() int    { return len(f.reward) }
func (f *fixedBuffer) MaxCapacity() int { return len(f.reward) }
func (f *fixedBuffer) MinCapacity() int { return len(f.reward) }

// snapshot deep copies the current values of a set of learnables
func snapshot(nodes G.Nodes) [][]float64 {
	out := make([][]float64, len(nodes))
	for i, node := range nodes {
		data := node.Value().Data().([]float64)
		out[i] = make([]float64, len(data))
		copy(out[i], data)
	}
	return out
}

// unchanged returns whether the learnables are bit-identical to a
// snapshot
func unchanged(nodes G.Nodes, snap [][]float64) bool {
	for i, node := range nodes {
		data := node.Value().Data().([]float64)
		for j := range data {
			if data[j] != snap[i][j] {
				return false
			}
		}
	}
	return true
}

func TestStepReturnsFiniteNonNegativeLoss(t *testing.T) {
	config := testConfig(t)
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	buffer := newFixedBuffer(config, 0.5)

	for i := 0; i < 3; i++ {
		loss, err := agent.Step(buffer)
		if err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss < 0 {
			t.Errorf("step %v: loss = %v, want finite and non-negative",
				i, loss)
		}
	}
}

// TestDelayedPolicyUpdate checks that with PolicyFreq = 2, the actor
// and target networks are updated on every second step only, with
// target parameters bit-identical in between, while the critic is
// updated on every step.
func TestDelayedPolicyUpdate(t *testing.T) {
	config := testConfig(t)
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	buffer := newFixedBuffer(config, 0.5)

	actorSnap := snapshot(agent.actor.Learnables())
	targetActorSnap := snapshot(agent.targetActor.Learnables())
	targetCriticSnap := snapshot(agent.targetCritic.Learnables())
	criticSnap := snapshot(agent.critic.Learnables())

	if _, err := agent.Step(buffer); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}

	if unchanged(agent.critic.Learnables(), criticSnap) {
		t.Error("critic parameters did not change on the first step")
	}
	if !unchanged(agent.actor.Learnables(), actorSnap) {
		t.Error("actor parameters changed before a policy update step")
	}
	if !unchanged(agent.targetActor.Learnables(), targetActorSnap) {
		t.Error("target actor parameters changed before a policy update " +
			"step")
	}
	if !unchanged(agent.targetCritic.Learnables(), targetCriticSnap) {
		t.Error("target critic parameters changed before a policy update " +
			"step")
	}

	if _, err := agent.Step(buffer); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}

	if unchanged(agent.actor.Learnables(), actorSnap) {
		t.Error("actor parameters did not change on the policy update step")
	}
	if unchanged(agent.targetActor.Learnables(), targetActorSnap) {
		t.Error("target actor parameters did not change on the policy " +
			"update step")
	}
	if unchanged(agent.targetCritic.Learnables(), targetCriticSnap) {
		t.Error("target critic parameters did not change on the policy " +
			"update step")
	}
}

// TestTargetPolyakUpdate checks that after a policy update, every
// target parameter equals tau*live + (1-tau)*old elementwise.
func TestTargetPolyakUpdate(t *testing.T) {
	config := testConfig(t)
	config.PolicyFreq = 1
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	buffer := newFixedBuffer(config, 0.5)

	oldTargetActor := snapshot(agent.targetActor.Learnables())
	oldTargetCritic := snapshot(agent.targetCritic.Learnables())

	if _, err := agent.Step(buffer); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}

	check := func(name string, target, live G.Nodes, old [][]float64) {
		for i := range target {
			got := target[i].Value().Data().([]float64)
			liveData := live[i].Value().Data().([]float64)
			for j := range got {
				want := config.Tau*liveData[j] + (1-config.Tau)*old[i][j]
				if math.Abs(got[j]-want) > testTolerance {
					t.Errorf("%v learnable %v element %v: got %v, want %v",
						name, i, j, got[j], want)
					return
				}
			}
		}
	}

	check("target actor", agent.targetActor.Learnables(),
		agent.actor.Learnables(), oldTargetActor)
	check("target critic", agent.targetCritic.Learnables(),
		agent.critic.Learnables(), oldTargetCritic)
}

func TestSelectActionBoundsAndDeterminism(t *testing.T) {
	config := testConfig(t)
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	state := pseudorandom(config.FeatureSize(), 7)
	for i := range state {
		state[i] *= 1000
	}

	first, err := agent.SelectAction(state)
	if err != nil {
		t.Fatalf("could not select action: %v", err)
	}
	if len(first) != config.ActionSize() {
		t.Fatalf("got %v action elements, want %v", len(first),
			config.ActionSize())
	}
	for i, a := range first {
		if math.IsNaN(a) || math.Abs(a) > config.MaxAction {
			t.Errorf("action element %v out of bounds: %v", i, a)
		}
	}

	second, err := agent.SelectAction(state)
	if err != nil {
		t.Fatalf("could not select action: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("action selection is not deterministic: %v != %v",
				first[i], second[i])
		}
	}
}

// TestRewardsClampedBeforeTarget checks that rewards far outside
// [-maxAction, maxAction] are clamped before entering the update
// target. An unclamped reward of 1e9 would force the critic loss to
// the order of 1e18.
func TestRewardsClampedBeforeTarget(t *testing.T) {
	config := testConfig(t)
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	buffer := newFixedBuffer(config, 1e9)

	loss, err := agent.Step(buffer)
	if err != nil {
		t.Fatalf("could not step agent: %v", err)
	}
	if loss > 1e6 {
		t.Errorf("loss = %v: reward was not clamped before the update "+
			"target", loss)
	}
}

// TestTargetSmoothingNoiseClamped checks that the noise added to the
// target policy action stays within [-noiseClip, noiseClip] even when
// the noise scale is extreme.
func TestTargetSmoothingNoiseClamped(t *testing.T) {
	config := testConfig(t)
	config.MaxAction = 5.0
	config.PolicyNoise = 1e6
	config.NoiseClip = 0.3
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	// Identical observations in every batch row, so the batched
	// target actor output matches the batch-1 selection path while the
	// target networks still equal the live ones
	single := pseudorandom(config.FeatureSize(), 23)
	nextState := make([]float64, config.BatchSize*config.FeatureSize())
	for b := 0; b < config.BatchSize; b++ {
		copy(nextState[b*config.FeatureSize():], single)
	}

	predicted, err := agent.SelectAction(single)
	if err != nil {
		t.Fatalf("could not select action: %v", err)
	}

	smoothed, err := agent.targetAction(nextState)
	if err != nil {
		t.Fatalf("could not compute target action: %v", err)
	}

	actionSize := config.ActionSize()
	for i, a := range smoothed {
		base := predicted[i%actionSize]
		if math.Abs(a-base) > config.NoiseClip+testTolerance {
			t.Errorf("element %v: |%v - %v| exceeds the noise clip %v", i,
				a, base, config.NoiseClip)
		}
	}
}

// TestTargetValuePerAgent checks that every agent bootstraps on its
// own reward and termination mask: a terminated agent's target is its
// bare reward while another agent in the same transition keeps its
// discounted bootstrap.
func TestTargetValuePerAgent(t *testing.T) {
	config := testConfig(t)
	config.Agents = 2
	agent, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	batch := config.BatchSize
	agents := config.Agents
	nextState := pseudorandom(batch*config.FeatureSize(), 41)
	nextAction, err := agent.targetAction(nextState)
	if err != nil {
		t.Fatalf("could not compute target action: %v", err)
	}

	// Agent 0 terminated, agent 1 still acting, in every transition
	mask := make([]float64, batch*agents)
	for b := 0; b < batch; b++ {
		mask[b*agents+1] = 1
	}

	// With zero rewards the target isolates each agent's bootstrap
	// term
	zeros := make([]float64, batch*agents)
	bootstrap, err := agent.targetValue(nextState, nextAction, zeros, mask)
	if err != nil {
		t.Fatalf("could not compute target value: %v", err)
	}

	rewards := make([]float64, batch*agents)
	for b := 0; b < batch; b++ {
		rewards[b*agents] = 0.5
		rewards[b*agents+1] = -0.25
	}
	got, err := agent.targetValue(nextState, nextAction, rewards, mask)
	if err != nil {
		t.Fatalf("could not compute target value: %v", err)
	}

	for b := 0; b < batch; b++ {
		if bootstrap[b*agents] != 0 {
			t.Errorf("row %v: terminated agent bootstrapped: %v", b,
				bootstrap[b*agents])
		}
		if got[b*agents] != 0.5 {
			t.Errorf("row %v: terminated agent target = %v, want its "+
				"bare reward 0.5", b, got[b*agents])
		}

		want := -0.25 + bootstrap[b*agents+1]
		if math.Abs(got[b*agents+1]-want) > testTolerance {
			t.Errorf("row %v: acting agent target = %v, want %v", b,
				got[b*agents+1], want)
		}
	}
}

// TestSaveLoadRoundTrip checks that saving and reloading into a fresh
// agent reproduces identical action selection and, with stateless
// optimizers and no smoothing noise, an identical next training step
// on a fixed batch.
func TestSaveLoadRoundTrip(t *testing.T) {
	saved, err := New(deterministicConfig(t))
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	config := deterministicConfig(t)
	buffer := newFixedBuffer(config, 0.5)

	// Train a little so the saved weights differ from a fresh
	// initialization
	for i := 0; i < 2; i++ {
		if _, err := saved.Step(buffer); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}

	store, err := checkpoint.NewDisk(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	if err := saved.Save(store, "test", true); err != nil {
		t.Fatalf("could not save agent: %v", err)
	}

	restored, err := New(config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := restored.Load(store, "test"); err != nil {
		t.Fatalf("could not load agent: %v", err)
	}

	state := pseudorandom(config.FeatureSize(), 31)
	want, err := saved.SelectAction(state)
	if err != nil {
		t.Fatalf("could not select action: %v", err)
	}
	got, err := restored.SelectAction(state)
	if err != nil {
		t.Fatalf("could not select action: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("restored action element %v = %v, want %v", i, got[i],
				want[i])
		}
	}

	// Target networks are reset to the loaded live networks
	if !unchanged(restored.targetCritic.Learnables(),
		snapshot(restored.critic.Learnables())) {
		t.Error("target critic does not match the loaded critic")
	}

	// The next training step on the same batch must agree exactly:
	// identical weights and targets give identical gradients, and the
	// stateless solvers turn those into identical updates
	savedLoss, err := saved.Step(buffer)
	if err != nil {
		t.Fatalf("could not step saved agent: %v", err)
	}
	restoredLoss, err := restored.Step(buffer)
	if err != nil {
		t.Fatalf("could not step restored agent: %v", err)
	}
	if savedLoss != restoredLoss {
		t.Errorf("post-load critic loss = %v, want %v", restoredLoss,
			savedLoss)
	}
	if !unchanged(restored.critic.Learnables(),
		snapshot(saved.critic.Learnables())) {
		t.Error("post-load critic update diverged from the saved agent")
	}
	if !unchanged(restored.actor.Learnables(),
		snapshot(saved.actor.Learnables())) {
		t.Error("post-load actor update diverged from the saved agent")
	}
}
