// Package tensorutils provides utilities for working with tensors
package tensorutils

// Slice implements a struct that can be used for slicing tensors.
//
// Given a tensor T and a Slice S, T.Slice(..., S, ...) is equivalent to
// T[..., S.start:S.end:S.step, ...]
type Slice struct {
	start, end, step int
}

// Start returns the start index for the tensor slice
func (s Slice) Start() int {
	return s.start
}

// End returns the ending index for the tensor slice
func (s Slice) End() int {
	return s.end
}

// Step returns the step for the tensor slice
func (s Slice) Step() int {
	return s.step
}

// NewSlice returns a new Slice that can be used to slice tensors
func NewSlice(start, stop, step int) Slice {
	return Slice{start, stop, step}
}

// Index returns a Slice selecting the single index i, eliminating the
// sliced axis.
func Index(i int) Slice {
	return Slice{i, i + 1, 1}
}

// Strided returns a Slice selecting count elements starting at start
// with the given step. The end bound is start+step*count so that the
// sliced length (end-start)/step comes out to exactly count; the
// sliced axis must be at least that long even though indices past
// start+step*(count-1) are never read.
func Strided(start, count, step int) Slice {
	return Slice{start, start + step*count, step}
}
