package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/voxrl/utils/tensorutils"
)

// Layer implements a single differentiable layer of a neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	Weights() *G.Node
	Bias() *G.Node
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer returns a new fully connected layer with in input
// features and out output features, adding its weight nodes to g. The
// name parameter disambiguates the weight nodes of different layers in
// the same graph.
func newFCLayer(g *G.ExprGraph, in, out int, act *Activation,
	init G.InitWFn, name string) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)
	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, out),
		G.WithName(name+"B"),
		G.WithInit(G.Zeroes()),
	)

	return &fcLayer{
		weights: weights,
		bias:    bias,
		act:     act,
	}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.weights != nil {
		x = G.Must(G.Mul(x, f.weights))
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	if f.act == nil || f.act.IsNil() || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Fixed geometry of the volumetric convolutions: kernel width 3,
// stride 2, and zero padding of 1 voxel on each spatial face.
const (
	convKernel  = 3
	convStride  = 2
	convPadding = 1
)

// convOutDims returns the spatial output dimensions of a strided
// volumetric convolution over a volume with spatial dimensions dims.
func convOutDims(dims [3]int) [3]int {
	var out [3]int
	for i, d := range dims {
		out[i] = (d+2*convPadding-convKernel)/convStride + 1
	}
	return out
}

// conv3dLayer implements a strided 3-dimensional convolution over
// volumes laid out as (batch, depth, height, width, channel).
//
// Because Gorgonia has no volumetric convolution op, the convolution
// is expressed with primitive ops: the input is zero padded by
// concatenation, one strided slice per kernel offset gathers the
// receptive fields (an in-graph im2col), and a single matrix multiply
// against the kernel matrix computes all output channels at once.
// Every op used this way is differentiable, so gradients flow through
// the full convolution stack.
type conv3dLayer struct {
	weights *G.Node // (kernel volume * in channels, out channels)
	bias    *G.Node // (1, out channels)
	act     *Activation

	in, out int // channel counts
	inDims  [3]int
	outDims [3]int
}

// newConv3dLayer returns a new strided volumetric convolution layer
// mapping in channels to out channels over a volume with spatial
// dimensions inDims.
//
// The kernel matrix is laid out with one row per (kernel offset,
// input channel) pair, kernel offset varying slowest, matching the
// order in which the im2col gathers receptive field entries.
func newConv3dLayer(g *G.ExprGraph, in, out int, inDims [3]int,
	act *Activation, init G.InitWFn, name string) (*conv3dLayer, error) {
	outDims := convOutDims(inDims)
	for i, d := range outDims {
		if d < 2 {
			return nil, fmt.Errorf("newconv3dlayer: input volume %v too "+
				"small: output axis %v has length %v \n\twant(≥2) "+
				"\n\thave(%v)", inDims, i, d, d)
		}
	}

	kernelVolume := convKernel * convKernel * convKernel
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(kernelVolume*in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)
	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, out),
		G.WithName(name+"B"),
		G.WithInit(G.Zeroes()),
	)

	return &conv3dLayer{
		weights: weights,
		bias:    bias,
		act:     act,
		in:      in,
		out:     out,
		inDims:  inDims,
		outDims: outDims,
	}, nil
}

// fwd adds the forward pass of the conv3dLayer to the computational
// graph. The input must be a rank-5 node of shape
// (batch, depth, height, width, channel).
func (c *conv3dLayer) fwd(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) != 5 {
		return nil, fmt.Errorf("fwd: volumetric input must have rank 5 "+
			"\n\twant(5) \n\thave(%v)", len(shape))
	}
	batch := shape[0]
	want := []int{batch, c.inDims[0], c.inDims[1], c.inDims[2], c.in}
	for i := range want {
		if shape[i] != want[i] {
			return nil, fmt.Errorf("fwd: invalid input volume shape "+
				"\n\twant(%v) \n\thave(%v)", want, shape)
		}
	}

	padded := c.pad(x)

	// Gather one strided slice of the padded volume per kernel offset.
	// Slice (i, j, k) holds, for every output voxel, the input voxel at
	// that offset within the voxel's receptive field.
	kernelVolume := convKernel * convKernel * convKernel
	patches := make([]*G.Node, 0, kernelVolume)
	for i := 0; i < convKernel; i++ {
		for j := 0; j < convKernel; j++ {
			for k := 0; k < convKernel; k++ {
				slice := G.Must(G.Slice(
					padded,
					nil,
					tensorutils.Strided(i, c.outDims[0], convStride),
					tensorutils.Strided(j, c.outDims[1], convStride),
					tensorutils.Strided(k, c.outDims[2], convStride),
				))
				patches = append(patches, slice)
			}
		}
	}

	// (batch, outD, outH, outW, kernelVolume*in), offset varying
	// slowest along the last axis
	gathered := G.Must(G.Concat(4, patches...))

	voxels := batch * c.outDims[0] * c.outDims[1] * c.outDims[2]
	flat := G.Must(G.Reshape(gathered,
		tensor.Shape{voxels, kernelVolume * c.in}))

	pre := G.Must(G.Mul(flat, c.weights))
	pre = G.Must(G.BroadcastAdd(pre, c.bias, nil, []byte{0}))

	post, err := c.act.fwd(pre)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not apply activation: %v", err)
	}

	return G.Reshape(post, tensor.Shape{
		batch, c.outDims[0], c.outDims[1], c.outDims[2], c.out,
	})
}

// pad zero pads the spatial axes of a rank-5 volume node by
// concatenating constant zero blocks on each face.
//
// The right-side block is grown past convPadding whenever the strided
// slices' exclusive end bound (kernel-1 + stride*outDim) exceeds the
// symmetrically padded axis length. The extra zeros are never read by
// any slice; they only keep the slice bounds in range.
func (c *conv3dLayer) pad(x *G.Node) *G.Node {
	for axis := 1; axis <= 3; axis++ {
		bound := (convKernel - 1) + convStride*c.outDims[axis-1]
		right := bound - c.inDims[axis-1] - convPadding
		if right < convPadding {
			right = convPadding
		}

		shape := x.Shape().Clone()
		shape[axis] = convPadding
		left := G.NewConstant(tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape([]int(shape)...),
		))

		shape = x.Shape().Clone()
		shape[axis] = right
		rightZeros := G.NewConstant(tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape([]int(shape)...),
		))

		x = G.Must(G.Concat(axis, left, x, rightZeros))
	}
	return x
}

func (c *conv3dLayer) Weights() *G.Node {
	return c.weights
}

func (c *conv3dLayer) Bias() *G.Node {
	return c.bias
}
