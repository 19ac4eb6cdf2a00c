package td3

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/voxrl/checkpoint"
	"sfneuman.com/voxrl/network"
	"sfneuman.com/voxrl/replay"
	"sfneuman.com/voxrl/solver"
	"sfneuman.com/voxrl/utils/floatutils"
)

// TD3 implements the Twin Delayed Deep Deterministic Policy Gradient
// algorithm:
//
//	https://arxiv.org/abs/1802.09477
//
// The critic is trained on every call to Step against the clipped
// double-Q target r + γ * min(Q1', Q2')(s', π'(s') + ε), where π' and
// Q' are Polyak-averaged target networks and ε is clamped Gaussian
// smoothing noise. The actor and both target networks are updated only
// every PolicyFreq steps.
//
// A TD3 holds five expression graphs, each compiled into its own
// tape machine: a batch-1 actor for action selection, the target actor
// and target critic for computing update targets, the critic training
// graph, and the policy training graph. The policy graph contains a
// second copy of the critic's first head whose weights are overwritten
// from the live critic before every policy update, so that
// ∇ E[Q1(s, π(s))] flows into actor weights only.
type TD3 struct {
	evalActor   *network.Actor
	evalActorVM G.VM

	targetActor   *network.Actor
	targetActorVM G.VM

	targetCritic   *network.Critic
	targetCriticVM G.VM

	critic       *network.Critic
	criticVM     G.VM
	criticTarget *G.Node // target-value input to the critic loss
	criticLoss   *G.Value
	criticSolver *solver.Solver

	actor       *network.Actor
	q1Critic    *network.Critic
	actorVM     G.VM
	actorLoss   *G.Value
	actorSolver *solver.Solver

	batchSize   int
	agents      int
	actionDim   int
	maxAction   float64
	discount    float64
	tau         float64
	policyNoise float64
	noiseClip   float64
	policyFreq  int

	totalIt int
	noise   distuv.Normal
}

// New returns a new TD3 agent with freshly initialized weights. The
// target networks start as exact copies of the live networks.
func New(config Config) (*TD3, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	init := config.InitWFn.InitWFn()

	// Batch-1 actor for action selection
	evalActor, err := network.NewActor(G.NewGraph(), 1, config.Agents,
		config.Channels, config.StateDims, config.HiddenSize,
		config.ActionDim, config.MaxAction, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy: %v", err)
	}
	evalActorVM := G.NewTapeMachine(evalActor.Graph())

	// Actor training graph: the live actor followed by a copy of the
	// critic's first head evaluating the actor's own action
	actorClone, err := evalActor.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training policy: %v",
			err)
	}
	actor := actorClone.(*network.Actor)

	q1Critic, err := network.NewQ1Critic(actor.Graph(), actor.Input(),
		actor.Prediction()[0], config.BatchSize, config.Agents,
		config.Channels, config.StateDims, config.HiddenSize,
		config.ActionDim, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy gradient "+
			"critic: %v", err)
	}

	actorCost := G.Must(G.Neg(G.Must(G.Mean(q1Critic.Prediction()[0]))))
	var actorLoss G.Value
	G.Read(actorCost, &actorLoss)

	if _, err := G.Grad(actorCost, actor.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute policy gradient: %v",
			err)
	}
	actorVM := G.NewTapeMachine(
		actor.Graph(),
		G.BindDualValues(actor.Learnables()...),
	)

	// Critic training graph with the update target as an input node
	critic, err := network.NewCritic(G.NewGraph(), config.BatchSize,
		config.Agents, config.Channels, config.StateDims, config.HiddenSize,
		config.ActionDim, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}

	criticTarget := G.NewMatrix(
		critic.Graph(),
		tensor.Float64,
		G.WithShape(config.BatchSize, config.Agents),
		G.WithName("targetQ"),
	)

	q1 := critic.Prediction()[0]
	q2 := critic.Prediction()[1]
	q1Cost := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(q1,
		criticTarget))))))
	q2Cost := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(q2,
		criticTarget))))))
	criticCost := G.Must(G.Add(q1Cost, q2Cost))
	var criticLoss G.Value
	G.Read(criticCost, &criticLoss)

	if _, err := G.Grad(criticCost, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute critic gradient: %v",
			err)
	}
	criticVM := G.NewTapeMachine(
		critic.Graph(),
		G.BindDualValues(critic.Learnables()...),
	)

	// Target networks start as exact parameter copies
	targetActorClone, err := actor.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target policy: %v",
			err)
	}
	targetActor := targetActorClone.(*network.Actor)
	targetActorVM := G.NewTapeMachine(targetActor.Graph())

	targetCriticClone, err := critic.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %v",
			err)
	}
	targetCritic := targetCriticClone.(*network.Critic)
	targetCriticVM := G.NewTapeMachine(targetCritic.Graph())

	if err := evalActor.Set(actor); err != nil {
		return nil, fmt.Errorf("new: could not synchronize policy: %v", err)
	}

	noise := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(config.Seed),
	}

	return &TD3{
		evalActor:   evalActor,
		evalActorVM: evalActorVM,

		targetActor:   targetActor,
		targetActorVM: targetActorVM,

		targetCritic:   targetCritic,
		targetCriticVM: targetCriticVM,

		critic:       critic,
		criticVM:     criticVM,
		criticTarget: criticTarget,
		criticLoss:   &criticLoss,
		criticSolver: config.CriticSolver,

		actor:       actor,
		q1Critic:    q1Critic,
		actorVM:     actorVM,
		actorLoss:   &actorLoss,
		actorSolver: config.ActorSolver,

		batchSize:   config.BatchSize,
		agents:      config.Agents,
		actionDim:   config.ActionDim,
		maxAction:   config.MaxAction,
		discount:    config.Discount,
		tau:         config.Tau,
		policyNoise: config.PolicyNoise,
		noiseClip:   config.NoiseClip,
		policyFreq:  config.PolicyFreq,

		noise: noise,
	}, nil
}

// TotalIterations returns the number of training steps taken so far
func (t *TD3) TotalIterations() int {
	return t.totalIt
}

// MaxAction returns the bound of the action range
func (t *TD3) MaxAction() float64 {
	return t.maxAction
}

// ActionSize returns the length of the flattened joint action the
// agent produces
func (t *TD3) ActionSize() int {
	return t.agents * t.actionDim
}

// SelectAction returns the deterministic greedy action for a single
// flattened multi-agent observation. The returned slice has
// agents*actionDim elements, each in [-maxAction, maxAction], and does
// not alias any internal state. Exploration noise, if any, is the
// caller's responsibility.
func (t *TD3) SelectAction(state []float64) ([]float64, error) {
	if err := t.evalActor.SetInput(state); err != nil {
		return nil, fmt.Errorf("selectaction: could not set state: %v", err)
	}
	if err := t.evalActorVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy: %v", err)
	}

	action := make([]float64, t.agents*t.actionDim)
	copy(action, t.evalActor.Output()[0].Data().([]float64))

	t.evalActorVM.Reset()
	return action, nil
}

// Step performs one training iteration on a batch sampled from the
// buffer and returns the critic loss. The critic is updated on every
// call; the actor and both target networks are updated only when the
// iteration counter is a multiple of the policy update frequency.
//
// Numeric divergence is not guarded internally: a NaN or Inf loss
// propagates into subsequent steps unless the caller halts on it.
func (t *TD3) Step(buffer replay.Buffer) (float64, error) {
	t.totalIt++

	state, action, nextState, reward, notDone, err := buffer.Sample(
		t.batchSize)
	if err != nil {
		return 0, fmt.Errorf("step: could not sample buffer: %v", err)
	}

	// Rewards outside the action bound indicate a reward-scale shock
	floatutils.ClipSlice(reward, -t.maxAction, t.maxAction)

	nextAction, err := t.targetAction(nextState)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	targetQ, err := t.targetValue(nextState, nextAction, reward, notDone)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	loss, err := t.updateCritic(state, action, targetQ)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	if t.totalIt%t.policyFreq == 0 {
		if err := t.updatePolicy(state); err != nil {
			return 0, fmt.Errorf("step: %v", err)
		}
	}

	return loss, nil
}

// PolicyLoss returns the policy loss -E[Q1(s, π(s))] computed during
// the most recent delayed policy update. Before the first policy
// update, PolicyLoss returns NaN.
func (t *TD3) PolicyLoss() float64 {
	if *t.actorLoss == nil {
		return math.NaN()
	}
	return (*t.actorLoss).Data().(float64)
}

// targetAction computes the smoothed target policy action
// π'(s') + clip(ε, ±noiseClip), clamped to the valid action range.
// No gradients are tracked.
func (t *TD3) targetAction(nextState []float64) ([]float64, error) {
	if err := t.targetActor.SetInput(nextState); err != nil {
		return nil, fmt.Errorf("targetaction: could not set state: %v", err)
	}
	if err := t.targetActorVM.RunAll(); err != nil {
		return nil, fmt.Errorf("targetaction: could not run target "+
			"policy: %v", err)
	}

	predicted := t.targetActor.Output()[0].Data().([]float64)
	nextAction := make([]float64, len(predicted))
	for i := range predicted {
		eps := floatutils.Clip(t.noise.Rand()*t.policyNoise, -t.noiseClip,
			t.noiseClip)
		nextAction[i] = floatutils.Clip(predicted[i]+eps, -t.maxAction,
			t.maxAction)
	}

	t.targetActorVM.Reset()
	return nextAction, nil
}

// targetValue computes the clipped double-Q update target
// r + notDone * γ * min(Q1', Q2')(s', a') as a flat
// (batchSize, agents) tensor backing. The reward and notDone batches
// hold one entry per (transition, agent) pair, agent varying fastest,
// so each agent bootstraps on its own reward and termination. No
// gradients are tracked.
func (t *TD3) targetValue(nextState, nextAction, reward,
	notDone []float64) ([]float64, error) {
	if err := t.targetCritic.SetInput(nextState); err != nil {
		return nil, fmt.Errorf("targetvalue: could not set state: %v", err)
	}
	if err := t.targetCritic.SetAction(nextAction); err != nil {
		return nil, fmt.Errorf("targetvalue: could not set action: %v", err)
	}
	if err := t.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("targetvalue: could not run target "+
			"critic: %v", err)
	}

	q1 := t.targetCritic.Output()[0].Data().([]float64)
	q2 := t.targetCritic.Output()[1].Data().([]float64)

	targetQ := make([]float64, t.batchSize*t.agents)
	for i := range targetQ {
		targetQ[i] = reward[i] +
			notDone[i]*t.discount*floatutils.Min(q1[i], q2[i])
	}

	t.targetCriticVM.Reset()
	return targetQ, nil
}

// updateCritic performs one gradient step on both critic heads toward
// targetQ and returns the critic loss
func (t *TD3) updateCritic(state, action, targetQ []float64) (float64,
	error) {
	if err := t.critic.SetInput(state); err != nil {
		return 0, fmt.Errorf("updatecritic: could not set state: %v", err)
	}
	if err := t.critic.SetAction(action); err != nil {
		return 0, fmt.Errorf("updatecritic: could not set action: %v", err)
	}

	target := tensor.New(
		tensor.WithBacking(targetQ),
		tensor.WithShape(t.batchSize, t.agents),
	)
	if err := G.Let(t.criticTarget, target); err != nil {
		return 0, fmt.Errorf("updatecritic: could not set target: %v", err)
	}

	if err := t.criticVM.RunAll(); err != nil {
		return 0, fmt.Errorf("updatecritic: could not run critic: %v", err)
	}
	if err := t.criticSolver.Step(t.critic.Model()); err != nil {
		return 0, fmt.Errorf("updatecritic: could not step solver: %v", err)
	}
	t.criticVM.Reset()

	return (*t.criticLoss).Data().(float64), nil
}

// updatePolicy performs one delayed policy update: a gradient step on
// the actor toward maximizing Q1(s, π(s)), followed by a Polyak update
// of both target networks and a synchronization of the action
// selection policy.
func (t *TD3) updatePolicy(state []float64) error {
	// The policy gradient critic shadows the live critic's first head
	err := network.SetNodes(t.q1Critic.Learnables(),
		t.critic.Q1Learnables())
	if err != nil {
		return fmt.Errorf("updatepolicy: could not synchronize critic "+
			"weights: %v", err)
	}

	if err := t.actor.SetInput(state); err != nil {
		return fmt.Errorf("updatepolicy: could not set state: %v", err)
	}
	if err := t.actorVM.RunAll(); err != nil {
		return fmt.Errorf("updatepolicy: could not run policy: %v", err)
	}
	if err := t.actorSolver.Step(t.actor.Model()); err != nil {
		return fmt.Errorf("updatepolicy: could not step solver: %v", err)
	}
	t.actorVM.Reset()

	if err := t.evalActor.Set(t.actor); err != nil {
		return fmt.Errorf("updatepolicy: could not synchronize policy: %v",
			err)
	}

	if err := t.targetActor.Polyak(t.actor, t.tau); err != nil {
		return fmt.Errorf("updatepolicy: could not update target "+
			"policy: %v", err)
	}
	if err := t.targetCritic.Polyak(t.critic, t.tau); err != nil {
		return fmt.Errorf("updatepolicy: could not update target "+
			"critic: %v", err)
	}
	return nil
}

// Save persists the live networks and optimizer configurations to
// store under the name tokens <name>_critic, <name>_critic_optimizer,
// <name>_actor, and <name>_actor_optimizer. Target networks are not
// persisted; they are reconstructed from the live networks on load.
func (t *TD3) Save(store checkpoint.Store, name string, forced bool) error {
	if err := store.SaveModel(t.critic, name+"_critic", forced); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	err := store.SaveModel(t.criticSolver, name+"_critic_optimizer", forced)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := store.SaveModel(t.actor, name+"_actor", forced); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	err = store.SaveModel(t.actorSolver, name+"_actor_optimizer", forced)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the live networks and optimizer configurations saved
// under name, then resets the target networks to exact copies of the
// loaded live networks.
func (t *TD3) Load(store checkpoint.Store, name string) error {
	if err := store.Load(name+"_critic", t.critic); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	err := store.Load(name+"_critic_optimizer", t.criticSolver)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := store.Load(name+"_actor", t.actor); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := store.Load(name+"_actor_optimizer", t.actorSolver); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	if err := t.evalActor.Set(t.actor); err != nil {
		return fmt.Errorf("load: could not synchronize policy: %v", err)
	}
	if err := t.targetActor.Set(t.actor); err != nil {
		return fmt.Errorf("load: could not reset target policy: %v", err)
	}
	if err := t.targetCritic.Set(t.critic); err != nil {
		return fmt.Errorf("load: could not reset target critic: %v", err)
	}
	return nil
}
