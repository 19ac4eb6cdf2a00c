package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Number of convolution layers in a voxel encoder and the channel
// width of every layer.
const (
	encoderLayers   = 4
	encoderChannels = 32
)

// VoxelEncoder maps a volumetric observation to a fixed-length latent
// feature vector with a stack of strided volumetric convolutions, an
// ELU after each. The encoder owns the convolution weights; calling
// fwd repeatedly (once per agent) shares the weights across agents
// while encoding each agent's volume independently.
type VoxelEncoder struct {
	layers   []*conv3dLayer
	channels int
	dims     [3]int
	outDims  [3]int
	features int
}

// NewVoxelEncoder returns a new VoxelEncoder over volumes with
// channels input channels and spatial dimensions dims, adding its
// weight nodes to g. The name parameter disambiguates the weight
// nodes of different encoders in the same graph.
func NewVoxelEncoder(g *G.ExprGraph, channels int, dims [3]int,
	init G.InitWFn, name string) (*VoxelEncoder, error) {
	if channels < 1 {
		return nil, fmt.Errorf("newvoxelencoder: channels must be positive "+
			"\n\twant(>0) \n\thave(%v)", channels)
	}

	layers := make([]*conv3dLayer, encoderLayers)
	in := channels
	layerDims := dims
	for i := range layers {
		layer, err := newConv3dLayer(g, in, encoderChannels, layerDims,
			ELU(), init, fmt.Sprintf("%vConv%d", name, i))
		if err != nil {
			return nil, fmt.Errorf("newvoxelencoder: could not create "+
				"convolution layer %v: %v", i, err)
		}
		layers[i] = layer

		in = encoderChannels
		layerDims = layer.outDims
	}

	features := encoderChannels * layerDims[0] * layerDims[1] * layerDims[2]

	return &VoxelEncoder{
		layers:   layers,
		channels: channels,
		dims:     dims,
		outDims:  layerDims,
		features: features,
	}, nil
}

// Features returns the length of the latent vector the encoder
// produces for a single volume.
func (v *VoxelEncoder) Features() int {
	return v.features
}

// fwd adds the encoder's forward pass on a rank-5 volume node of
// shape (batch, depth, height, width, channel) to the computational
// graph, returning a (batch, features) latent matrix.
func (v *VoxelEncoder) fwd(x *G.Node) (*G.Node, error) {
	batch := x.Shape()[0]

	var err error
	for i, layer := range v.layers {
		if x, err = layer.fwd(x); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass of "+
				"convolution layer %v: %v", i, err)
		}
	}

	return G.Reshape(x, tensor.Shape{batch, v.features})
}

// learnables returns the encoder's weight nodes in a fixed order.
func (v *VoxelEncoder) learnables() G.Nodes {
	nodes := make(G.Nodes, 0, 2*len(v.layers))
	for _, layer := range v.layers {
		nodes = append(nodes, layer.Weights(), layer.Bias())
	}
	return nodes
}
