package replay

import (
	"errors"
	"fmt"
)

var (
	errEmptyBuffer         = errors.New("no samples in buffer")
	errInsufficientSamples = errors.New("fewer samples in buffer than " +
		"minimum capacity")
)

// BufferError describes an error that occurred during an operation on
// an experience replay buffer
type BufferError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *BufferError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *BufferError) Unwrap() error {
	return e.Err
}

// IsEmptyBuffer returns whether err was caused by sampling from an
// empty buffer
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyBuffer)
}

// IsInsufficientSamples returns whether err was caused by sampling
// from a buffer holding fewer samples than its minimum capacity
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}
