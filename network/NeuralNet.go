// Package network implements the neural networks of the learning
// system: a shared volumetric feature encoder with per-agent actor
// and twin-critic heads, expressed as Gorgonia expression graphs.
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network whose weights can be learned, copied,
// and Polyak averaged.
//
// Networks with the same architecture can shadow one another: Set
// copies weights learnable-wise and Polyak exponentially smooths them,
// which is how target networks are maintained. Neither operation ever
// flows gradients.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}

// SetNodes copies the values of the src learnables into the dest
// learnables, learnable-wise. The copies are deep so that no backing
// arrays are shared between the two networks afterwards.
func SetNodes(dest, src G.Nodes) error {
	if len(dest) != len(src) {
		return fmt.Errorf("setnodes: mismatched learnables \n\twant(%v) "+
			"\n\thave(%v)", len(src), len(dest))
	}

	for i := range dest {
		srcWeights, ok := src[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("setnodes: learnable %v is not a dense tensor",
				i)
		}
		if !srcWeights.Shape().Eq(dest[i].Shape()) {
			return fmt.Errorf("setnodes: learnable %v has mismatched shape "+
				"\n\twant(%v) \n\thave(%v)", i, dest[i].Shape(),
				srcWeights.Shape())
		}

		err := G.Let(dest[i], srcWeights.Clone().(*tensor.Dense))
		if err != nil {
			return fmt.Errorf("setnodes: could not set learnable %v: %v", i,
				err)
		}
	}
	return nil
}

// PolyakNodes sets each dest learnable to the convex combination
// tau*src + (1-tau)*dest, learnable-wise.
func PolyakNodes(dest, src G.Nodes, tau float64) error {
	if len(dest) != len(src) {
		return fmt.Errorf("polyaknodes: mismatched learnables \n\twant(%v) "+
			"\n\thave(%v)", len(src), len(dest))
	}

	for i := range dest {
		weights := dest[i].Value().(*tensor.Dense)
		srcWeights := src[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return fmt.Errorf("polyaknodes: could not scale learnable %v: %v",
				i, err)
		}

		srcWeights, err = srcWeights.MulScalar(tau, true)
		if err != nil {
			return fmt.Errorf("polyaknodes: could not scale source "+
				"learnable %v: %v", i, err)
		}

		newWeights, err := weights.Add(srcWeights)
		if err != nil {
			return fmt.Errorf("polyaknodes: could not average learnable "+
				"%v: %v", i, err)
		}

		if err := G.Let(dest[i], newWeights); err != nil {
			return fmt.Errorf("polyaknodes: could not set learnable %v: %v",
				i, err)
		}
	}
	return nil
}

// modelOf adapts a slice of learnable nodes to the []G.ValueGrad that
// Gorgonia solvers step.
func modelOf(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}

// encodeLearnables gob encodes an architecture fingerprint followed by
// the value of every learnable, in order.
func encodeLearnables(fingerprint []int, learnables G.Nodes) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(fingerprint); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode architecture: %v",
			err)
	}

	for i, node := range learnables {
		weights, ok := node.Value().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("gobencode: learnable %v is not a dense "+
				"tensor", i)
		}
		if err := enc.Encode(weights); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode learnable "+
				"%v: %v", i, err)
		}
	}

	return buf.Bytes(), nil
}

// decodeLearnables decodes a blob produced by encodeLearnables into an
// existing network's learnables, in place. The target network must
// have the same architecture fingerprint as the encoded network.
func decodeLearnables(in []byte, fingerprint []int,
	learnables G.Nodes) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var encoded []int
	if err := dec.Decode(&encoded); err != nil {
		return fmt.Errorf("gobdecode: could not decode architecture: %v", err)
	}
	if len(encoded) != len(fingerprint) {
		return fmt.Errorf("gobdecode: mismatched architecture \n\twant(%v) "+
			"\n\thave(%v)", fingerprint, encoded)
	}
	for i := range encoded {
		if encoded[i] != fingerprint[i] {
			return fmt.Errorf("gobdecode: mismatched architecture "+
				"\n\twant(%v) \n\thave(%v)", fingerprint, encoded)
		}
	}

	for i, node := range learnables {
		var weights *tensor.Dense
		if err := dec.Decode(&weights); err != nil {
			return fmt.Errorf("gobdecode: could not decode learnable %v: %v",
				i, err)
		}
		if !weights.Shape().Eq(node.Shape()) {
			return fmt.Errorf("gobdecode: learnable %v has mismatched "+
				"shape \n\twant(%v) \n\thave(%v)", i, node.Shape(),
				weights.Shape())
		}
		if err := G.Let(node, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set learnable %v: %v", i,
				err)
		}
	}

	return nil
}
