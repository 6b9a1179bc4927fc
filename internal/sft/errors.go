package sft

import (
	"errors"
	"fmt"

	"github.com/samcharles93/medtune/internal/dataset"
)

var (
	// ErrMalformedExample is returned for examples with a missing or empty field.
	ErrMalformedExample = dataset.ErrMalformed
	// ErrTruncationLoss is returned when MaxLength leaves no room for a single
	// response token.
	ErrTruncationLoss = errors.New("truncation loss")
	// ErrInvalidConfig is returned by New for unusable encoder options.
	ErrInvalidConfig = errors.New("invalid encoder config")
)

// TruncationError reports the prompt length that consumed the whole sequence.
type TruncationError struct {
	PromptTokens int
	MaxLength    int
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("%s: prompt is %d tokens, max_length is %d", ErrTruncationLoss, e.PromptTokens, e.MaxLength)
}

func (e *TruncationError) Unwrap() error { return ErrTruncationLoss }

// ExampleError ties an encoding failure to the example's position in the batch.
type ExampleError struct {
	Index int
	Err   error
}

func (e *ExampleError) Error() string {
	return fmt.Sprintf("example %d: %v", e.Index, e.Err)
}

func (e *ExampleError) Unwrap() error { return e.Err }

// skippable reports whether a policy may drop the example instead of aborting.
func skippable(err error) bool {
	return errors.Is(err, ErrMalformedExample) || errors.Is(err, ErrTruncationLoss)
}
