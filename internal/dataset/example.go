// Package dataset reads, normalises, and partitions supervised QA examples.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultInstruction is used when a raw record carries no instruction of its own.
const DefaultInstruction = "回答医疗健康问题"

// ErrMalformed marks an example with a missing or empty required field.
var ErrMalformed = errors.New("malformed example")

// Example is one canonical instruction/input/output triple.
type Example struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// FieldError names the field that made an example malformed.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q is empty", ErrMalformed, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMalformed }

// Validate reports a *FieldError when any field is empty after trimming.
func (e Example) Validate() error {
	switch {
	case strings.TrimSpace(e.Instruction) == "":
		return &FieldError{Field: "instruction"}
	case strings.TrimSpace(e.Input) == "":
		return &FieldError{Field: "input"}
	case strings.TrimSpace(e.Output) == "":
		return &FieldError{Field: "output"}
	}
	return nil
}
