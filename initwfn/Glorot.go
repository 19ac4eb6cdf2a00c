package initwfn

import G "gorgonia.org/gorgonia"

// GlorotUConfig describes Glorot (Xavier) uniform initialization.
// With gain 1 it is the default initializer for every network in this
// project.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Type returns the type of initialization the config describes
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the initialization as a Gorgonia InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig describes Glorot (Xavier) normal initialization
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// Type returns the type of initialization the config describes
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the initialization as a Gorgonia InitWFn
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
