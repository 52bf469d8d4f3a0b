package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or empty required field.
	ErrValidation = errors.New("validation error")
	// ErrEmbedding wraps every failure of the embedding provider.
	ErrEmbedding = errors.New("embedding error")
	// ErrGeneration wraps every failure of the chat-completion provider.
	ErrGeneration = errors.New("generation error")
)

// Flow steps, used to report where an ingestion or query failed.
const (
	StepValidate   = "validate"
	StepEmbed      = "embed"
	StepUpsert     = "upsert"
	StepSearch     = "search"
	StepAssemble   = "assemble"
	StepGenerate   = "generate"
	StepListNotes  = "list"
	StepExtract    = "extract"
	StepSplit      = "split"
	StepCheckIndex = "check-index"
)

// FlowError records which step of a flow failed.
type FlowError struct {
	Step string
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

func stepError(step string, err error) error {
	return &FlowError{Step: step, Err: err}
}
