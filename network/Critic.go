package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/voxrl/utils/tensorutils"
)

// Critic implements the twin action-value network. A shared
// VoxelEncoder maps each agent's volumetric observation to a latent
// vector, which is concatenated with the agent's action and passed
// through two independent per-agent linear heads, yielding the twin
// estimates Q1 and Q2 as (batch, agents) tensors.
//
// A Critic may also be constructed without its twin head and on
// externally owned input nodes, which is how the policy loss
// Q1(s, π(s)) is wired: the critic's state input and action input are
// the actor's state input and action prediction in the same graph.
type Critic struct {
	g       *G.ExprGraph
	input   *G.Node // (batch, agents, depth, height, width, channel)
	action  *G.Node // (batch, agents, actionDim)
	encoder *VoxelEncoder
	q1Heads [][]*fcLayer
	q2Heads [][]*fcLayer
	twin    bool

	agents    int
	channels  int
	dims      [3]int
	hidden    int
	actionDim int
	batchSize int

	learnables G.Nodes
	model      []G.ValueGrad

	q1     *G.Node
	q2     *G.Node
	q1Val  G.Value
	q2Val  G.Value
	extern bool // input and action nodes owned elsewhere
}

// NewCritic returns a new twin Critic for agents agents acting on
// volumetric observations with the given channel count and spatial
// dimensions, adding its weight and input nodes to g.
func NewCritic(g *G.ExprGraph, batch, agents, channels int, dims [3]int,
	hidden, actionDim int, init G.InitWFn) (*Critic, error) {
	input := G.NewTensor(
		g,
		tensor.Float64,
		6,
		G.WithShape(batch, agents, dims[0], dims[1], dims[2], channels),
		G.WithName("criticState"),
		G.WithInit(G.Zeroes()),
	)
	action := G.NewTensor(
		g,
		tensor.Float64,
		3,
		G.WithShape(batch, agents, actionDim),
		G.WithName("criticAction"),
		G.WithInit(G.Zeroes()),
	)

	return newCritic(g, input, action, batch, agents, channels, dims, hidden,
		actionDim, true, false, init)
}

// NewQ1Critic returns a Critic with only its first head, computing
// Q1(state, action) from externally owned state and action nodes in g.
// The state node must be a (batch, agents, depth, height, width,
// channel) tensor and the action node a (batch, agents, actionDim)
// tensor. The returned Critic's Learnables match the order of
// Q1Learnables on a twin Critic of the same architecture, so its
// weights can be set directly from a twin Critic.
func NewQ1Critic(g *G.ExprGraph, state, action *G.Node, batch, agents,
	channels int, dims [3]int, hidden, actionDim int,
	init G.InitWFn) (*Critic, error) {
	if state == nil || action == nil {
		return nil, fmt.Errorf("newq1critic: state and action nodes " +
			"cannot be nil")
	}
	return newCritic(g, state, action, batch, agents, channels, dims, hidden,
		actionDim, false, true, init)
}

func newCritic(g *G.ExprGraph, input, action *G.Node, batch, agents,
	channels int, dims [3]int, hidden, actionDim int, twin,
	extern bool, init G.InitWFn) (*Critic, error) {
	if agents < 1 {
		return nil, fmt.Errorf("newcritic: agents must be positive "+
			"\n\twant(>0) \n\thave(%v)", agents)
	}
	if actionDim < 1 {
		return nil, fmt.Errorf("newcritic: actionDim must be positive "+
			"\n\twant(>0) \n\thave(%v)", actionDim)
	}

	encoder, err := NewVoxelEncoder(g, channels, dims, init, "Critic")
	if err != nil {
		return nil, fmt.Errorf("newcritic: could not create encoder: %v",
			err)
	}

	newHeads := func(name string) [][]*fcLayer {
		heads := make([][]*fcLayer, agents)
		for i := range heads {
			prefix := fmt.Sprintf("%sHead%d", name, i)
			heads[i] = []*fcLayer{
				newFCLayer(g, encoder.Features()+actionDim, hidden,
					Identity(), init, prefix+"L0"),
				newFCLayer(g, hidden, 1, Identity(), init, prefix+"L1"),
			}
		}
		return heads
	}

	critic := &Critic{
		g:         g,
		input:     input,
		action:    action,
		encoder:   encoder,
		q1Heads:   newHeads("CriticQ1"),
		twin:      twin,
		extern:    extern,
		agents:    agents,
		channels:  channels,
		dims:      dims,
		hidden:    hidden,
		actionDim: actionDim,
		batchSize: batch,
	}
	if twin {
		critic.q2Heads = newHeads("CriticQ2")
	}

	if err := critic.fwd(); err != nil {
		return nil, fmt.Errorf("newcritic: could not compute forward "+
			"pass: %v", err)
	}

	return critic, nil
}

// fwd adds the forward pass of the Critic to the computational graph
func (c *Critic) fwd() error {
	headFwd := func(heads [][]*fcLayer, latents, actions []*G.Node) (*G.Node,
		error) {
		perAgent := make([]*G.Node, c.agents)
		for i := 0; i < c.agents; i++ {
			in := G.Must(G.Concat(1, latents[i], actions[i]))

			var err error
			for j, layer := range heads[i] {
				if in, err = layer.fwd(in); err != nil {
					return nil, fmt.Errorf("could not compute head layer "+
						"%v of agent %v: %v", j, i, err)
				}
			}
			perAgent[i] = in // (batch, 1)
		}

		if c.agents == 1 {
			return perAgent[0], nil
		}
		return G.Must(G.Concat(1, perAgent...)), nil
	}

	latents := make([]*G.Node, c.agents)
	actions := make([]*G.Node, c.agents)
	for i := 0; i < c.agents; i++ {
		volume := G.Must(G.Slice(c.input, nil, tensorutils.Index(i)))

		latent, err := c.encoder.fwd(volume)
		if err != nil {
			return fmt.Errorf("fwd: could not encode agent %v state: %v", i,
				err)
		}
		latents[i] = latent
		actions[i] = G.Must(G.Slice(c.action, nil, tensorutils.Index(i)))
	}

	q1, err := headFwd(c.q1Heads, latents, actions)
	if err != nil {
		return fmt.Errorf("fwd: q1: %v", err)
	}
	c.q1 = q1
	G.Read(c.q1, &c.q1Val)

	if c.twin {
		q2, err := headFwd(c.q2Heads, latents, actions)
		if err != nil {
			return fmt.Errorf("fwd: q2: %v", err)
		}
		c.q2 = q2
		G.Read(c.q2, &c.q2Val)
	}

	return nil
}

// Graph returns the computational graph of the Critic
func (c *Critic) Graph() *G.ExprGraph {
	return c.g
}

// BatchSize returns the number of state-action pairs per forward pass
func (c *Critic) BatchSize() int {
	return c.batchSize
}

// CloneWithBatch clones the Critic into a new computational graph with
// a new input batch size, deep copying all weights. A Critic built on
// external input nodes cannot be cloned; its weights are set from the
// twin Critic it shadows instead.
func (c *Critic) CloneWithBatch(batch int) (NeuralNet, error) {
	if c.extern {
		return nil, fmt.Errorf("clonewithbatch: cannot clone a critic " +
			"built on external input nodes")
	}

	clone, err := NewCritic(G.NewGraph(), batch, c.agents, c.channels,
		c.dims, c.hidden, c.actionDim, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not construct "+
			"clone: %v", err)
	}

	if err := clone.Set(c); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return clone, nil
}

// SetInput sets the value of the state input node before running the
// forward pass. The input is a flattened
// (batch, agents, depth, height, width, channel) volume in row-major
// order.
func (c *Critic) SetInput(input []float64) error {
	if c.extern {
		return fmt.Errorf("setinput: state input node is owned externally")
	}
	if len(input) != c.input.Shape().TotalSize() {
		return fmt.Errorf("setinput: invalid number of inputs \n\twant(%v) "+
			"\n\thave(%v)", c.input.Shape().TotalSize(), len(input))
	}

	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(c.input.Shape()...),
	)
	return G.Let(c.input, inputTensor)
}

// SetAction sets the value of the action input node before running the
// forward pass. The input is a flattened (batch, agents, actionDim)
// tensor in row-major order.
func (c *Critic) SetAction(action []float64) error {
	if c.extern {
		return fmt.Errorf("setaction: action input node is owned externally")
	}
	if len(action) != c.action.Shape().TotalSize() {
		return fmt.Errorf("setaction: invalid number of inputs "+
			"\n\twant(%v) \n\thave(%v)", c.action.Shape().TotalSize(),
			len(action))
	}

	actionTensor := tensor.New(
		tensor.WithBacking(action),
		tensor.WithShape(c.action.Shape()...),
	)
	return G.Let(c.action, actionTensor)
}

// Set sets the weights of the Critic to be equal to the weights of
// another Critic with the same architecture
func (c *Critic) Set(source NeuralNet) error {
	return SetNodes(c.Learnables(), source.Learnables())
}

// Polyak sets the weights of the Critic to a Polyak average between
// its existing weights and the weights of another Critic
func (c *Critic) Polyak(source NeuralNet, tau float64) error {
	return PolyakNodes(c.Learnables(), source.Learnables(), tau)
}

// Learnables returns the learnable nodes of the Critic: the shared
// encoder weights, then each agent's Q1 head weights, then each
// agent's Q2 head weights.
func (c *Critic) Learnables() G.Nodes {
	if c.learnables == nil {
		nodes := c.encoder.learnables()
		for _, head := range c.q1Heads {
			for _, layer := range head {
				nodes = append(nodes, layer.Weights(), layer.Bias())
			}
		}
		for _, head := range c.q2Heads {
			for _, layer := range head {
				nodes = append(nodes, layer.Weights(), layer.Bias())
			}
		}
		c.learnables = nodes
	}
	return c.learnables
}

// Q1Learnables returns the learnable nodes reachable from the Q1
// prediction: the shared encoder weights followed by each agent's Q1
// head weights. The order matches the Learnables of a Critic
// constructed with NewQ1Critic.
func (c *Critic) Q1Learnables() G.Nodes {
	nodes := c.encoder.learnables()
	for _, head := range c.q1Heads {
		for _, layer := range head {
			nodes = append(nodes, layer.Weights(), layer.Bias())
		}
	}
	return nodes
}

// Model returns the learnable nodes with their gradients
func (c *Critic) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = modelOf(c.Learnables())
	}
	return c.model
}

// Output returns the last computed values of the action-value
// predictions, Q1 first. A Q1-only Critic returns a single value.
func (c *Critic) Output() []G.Value {
	if !c.twin {
		return []G.Value{c.q1Val}
	}
	return []G.Value{c.q1Val, c.q2Val}
}

// Prediction returns the (batch, agents) action-value nodes, Q1 first.
// A Q1-only Critic returns a single node.
func (c *Critic) Prediction() []*G.Node {
	if !c.twin {
		return []*G.Node{c.q1}
	}
	return []*G.Node{c.q1, c.q2}
}

// fingerprint describes the Critic architecture for checkpoint
// compatibility checks.
func (c *Critic) fingerprint() []int {
	twin := 0
	if c.twin {
		twin = 1
	}
	return []int{c.agents, c.channels, c.dims[0], c.dims[1], c.dims[2],
		c.hidden, c.actionDim, twin}
}

// GobEncode implements the gob.GobEncoder interface, serializing all
// Critic weights.
func (c *Critic) GobEncode() ([]byte, error) {
	return encodeLearnables(c.fingerprint(), c.Learnables())
}

// GobDecode implements the gob.GobDecoder interface, restoring
// serialized weights into the existing Critic in place. The encoded
// architecture must match the Critic's.
func (c *Critic) GobDecode(in []byte) error {
	return decodeLearnables(in, c.fingerprint(), c.Learnables())
}
