package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig describes initialization of every weight to 0
type ZeroesConfig struct{}

// NewZeroes returns a zero weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// Type returns the type of initialization the config describes
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the initialization as a Gorgonia InitWFn
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// OnesConfig describes initialization of every weight to 1
type OnesConfig struct{}

// NewOnes returns a ones weight initializer
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{})
}

// Type returns the type of initialization the config describes
func (o OnesConfig) Type() Type {
	return Ones
}

// Create returns the initialization as a Gorgonia InitWFn
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// ConstantConfig describes initialization of every weight to a fixed
// value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a constant weight initializer
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value})
}

// Type returns the type of initialization the config describes
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create returns the initialization as a Gorgonia InitWFn
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
