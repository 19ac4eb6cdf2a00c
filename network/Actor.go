package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/voxrl/utils/tensorutils"
)

// Actor implements the deterministic policy network. A shared
// VoxelEncoder maps each agent's volumetric observation to a latent
// vector, and a per-agent two-layer linear head maps the latent vector
// to an unbounded action, which is squashed with tanh and scaled to
// [-maxAction, maxAction].
//
// The per-agent heads have independent weights; the agent index
// selects parameters, not behaviour. Actions for all agents are
// predicted in one forward pass as a (batch, agents, actionDim)
// tensor.
type Actor struct {
	g       *G.ExprGraph
	input   *G.Node // (batch, agents, depth, height, width, channel)
	encoder *VoxelEncoder
	heads   [][]*fcLayer

	agents    int
	channels  int
	dims      [3]int
	hidden    int
	actionDim int
	maxAction float64
	batchSize int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewActor returns a new Actor for agents agents acting on volumetric
// observations with the given channel count and spatial dimensions,
// adding its weight nodes to g. Actions have actionDim dimensions and
// are bounded elementwise to [-maxAction, maxAction]. The hidden
// parameter sets the width of the first linear head layer.
func NewActor(g *G.ExprGraph, batch, agents, channels int, dims [3]int,
	hidden, actionDim int, maxAction float64,
	init G.InitWFn) (*Actor, error) {
	if agents < 1 {
		return nil, fmt.Errorf("newactor: agents must be positive "+
			"\n\twant(>0) \n\thave(%v)", agents)
	}
	if actionDim < 1 {
		return nil, fmt.Errorf("newactor: actionDim must be positive "+
			"\n\twant(>0) \n\thave(%v)", actionDim)
	}
	if maxAction <= 0 {
		return nil, fmt.Errorf("newactor: maxAction must be positive "+
			"\n\twant(>0) \n\thave(%v)", maxAction)
	}

	encoder, err := NewVoxelEncoder(g, channels, dims, init, "Actor")
	if err != nil {
		return nil, fmt.Errorf("newactor: could not create encoder: %v", err)
	}

	heads := make([][]*fcLayer, agents)
	for i := range heads {
		prefix := fmt.Sprintf("ActorHead%d", i)
		heads[i] = []*fcLayer{
			newFCLayer(g, encoder.Features(), hidden, Identity(), init,
				prefix+"L0"),
			newFCLayer(g, hidden, actionDim, Identity(), init, prefix+"L1"),
		}
	}

	input := G.NewTensor(
		g,
		tensor.Float64,
		6,
		G.WithShape(batch, agents, dims[0], dims[1], dims[2], channels),
		G.WithName("actorState"),
		G.WithInit(G.Zeroes()),
	)

	actor := &Actor{
		g:         g,
		input:     input,
		encoder:   encoder,
		heads:     heads,
		agents:    agents,
		channels:  channels,
		dims:      dims,
		hidden:    hidden,
		actionDim: actionDim,
		maxAction: maxAction,
		batchSize: batch,
	}

	if err := actor.fwd(); err != nil {
		return nil, fmt.Errorf("newactor: could not compute forward "+
			"pass: %v", err)
	}

	return actor, nil
}

// fwd adds the forward pass of the Actor to the computational graph
func (a *Actor) fwd() error {
	perAgent := make([]*G.Node, a.agents)
	for i := 0; i < a.agents; i++ {
		volume := G.Must(G.Slice(a.input, nil, tensorutils.Index(i)))

		latent, err := a.encoder.fwd(volume)
		if err != nil {
			return fmt.Errorf("fwd: could not encode agent %v state: %v", i,
				err)
		}

		action := latent
		for j, layer := range a.heads[i] {
			if action, err = layer.fwd(action); err != nil {
				return fmt.Errorf("fwd: could not compute head layer %v of "+
					"agent %v: %v", j, i, err)
			}
		}

		perAgent[i] = G.Must(G.Reshape(action,
			tensor.Shape{a.batchSize, 1, a.actionDim}))
	}

	actions := perAgent[0]
	if a.agents > 1 {
		actions = G.Must(G.Concat(1, perAgent...))
	}

	actions = G.Must(G.Tanh(actions))
	scale := G.NewConstant(a.maxAction)
	a.prediction = G.Must(G.Mul(actions, scale))

	G.Read(a.prediction, &a.predVal)
	return nil
}

// Graph returns the computational graph of the Actor
func (a *Actor) Graph() *G.ExprGraph {
	return a.g
}

// BatchSize returns the number of observations per forward pass
func (a *Actor) BatchSize() int {
	return a.batchSize
}

// Agents returns the number of agents the Actor predicts actions for
func (a *Actor) Agents() int {
	return a.agents
}

// ActionDim returns the number of action dimensions per agent
func (a *Actor) ActionDim() int {
	return a.actionDim
}

// Input returns the state input node of the Actor
func (a *Actor) Input() *G.Node {
	return a.input
}

// CloneWithBatch clones the Actor into a new computational graph with
// a new input batch size, deep copying all weights.
func (a *Actor) CloneWithBatch(batch int) (NeuralNet, error) {
	clone, err := NewActor(G.NewGraph(), batch, a.agents, a.channels, a.dims,
		a.hidden, a.actionDim, a.maxAction, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not construct "+
			"clone: %v", err)
	}

	if err := clone.Set(a); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return clone, nil
}

// SetInput sets the value of the state input node before running the
// forward pass. The input is a flattened
// (batch, agents, depth, height, width, channel) volume in row-major
// order.
func (a *Actor) SetInput(input []float64) error {
	if len(input) != a.input.Shape().TotalSize() {
		return fmt.Errorf("setinput: invalid number of inputs \n\twant(%v) "+
			"\n\thave(%v)", a.input.Shape().TotalSize(), len(input))
	}

	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(a.input.Shape()...),
	)
	return G.Let(a.input, inputTensor)
}

// Set sets the weights of the Actor to be equal to the weights of
// another Actor with the same architecture
func (a *Actor) Set(source NeuralNet) error {
	return SetNodes(a.Learnables(), source.Learnables())
}

// Polyak sets the weights of the Actor to a Polyak average between its
// existing weights and the weights of another Actor
func (a *Actor) Polyak(source NeuralNet, tau float64) error {
	return PolyakNodes(a.Learnables(), source.Learnables(), tau)
}

// Learnables returns the learnable nodes of the Actor: the shared
// encoder weights followed by each agent's head weights.
func (a *Actor) Learnables() G.Nodes {
	if a.learnables == nil {
		nodes := a.encoder.learnables()
		for _, head := range a.heads {
			for _, layer := range head {
				nodes = append(nodes, layer.Weights(), layer.Bias())
			}
		}
		a.learnables = nodes
	}
	return a.learnables
}

// Model returns the learnable nodes with their gradients
func (a *Actor) Model() []G.ValueGrad {
	if a.model == nil {
		a.model = modelOf(a.Learnables())
	}
	return a.model
}

// Output returns the last computed value of the action prediction
func (a *Actor) Output() []G.Value {
	return []G.Value{a.predVal}
}

// Prediction returns the (batch, agents, actionDim) action node
func (a *Actor) Prediction() []*G.Node {
	return []*G.Node{a.prediction}
}

// fingerprint describes the Actor architecture for checkpoint
// compatibility checks.
func (a *Actor) fingerprint() []int {
	return []int{a.agents, a.channels, a.dims[0], a.dims[1], a.dims[2],
		a.hidden, a.actionDim}
}

// GobEncode implements the gob.GobEncoder interface, serializing all
// Actor weights.
func (a *Actor) GobEncode() ([]byte, error) {
	return encodeLearnables(a.fingerprint(), a.Learnables())
}

// GobDecode implements the gob.GobDecoder interface, restoring
// serialized weights into the existing Actor in place. The encoded
// architecture must match the Actor's.
func (a *Actor) GobDecode(in []byte) error {
	return decodeLearnables(in, a.fingerprint(), a.Learnables())
}
