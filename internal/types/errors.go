package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the pipeline failure taxonomy. Adapter-level
// failures are captured as values inside reports and never propagate past
// the orchestrator; ErrQuorumNotMet is the only condition that aborts a
// pipeline run.
var (
	// ErrQuorumNotMet means too few adapters succeeded (or a critical one
	// failed) for the report to be usable downstream.
	ErrQuorumNotMet = errors.New("quorum not met")

	// ErrAdapterTimeout marks an adapter call that exceeded its deadline.
	ErrAdapterTimeout = errors.New("adapter timeout")

	// ErrEmbeddingUnavailable marks a record that could not be embedded
	// and is therefore excluded from similarity computation.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrSynthesisValidation marks a candidate rejected for containing
	// literal content not traceable to its referenced records.
	ErrSynthesisValidation = errors.New("synthesis output failed provenance validation")
)

// AdapterErrorKind classifies adapter failures for reporting.
type AdapterErrorKind string

const (
	AdapterTimeout   AdapterErrorKind = "timeout"
	AdapterAuth      AdapterErrorKind = "auth"
	AdapterNetwork   AdapterErrorKind = "network"
	AdapterRateLimit AdapterErrorKind = "rate_limit"
	AdapterOther     AdapterErrorKind = "other"
)

// AdapterError wraps a failure from a single source adapter. It is a
// value carried in the report, not an exception: whether it is fatal
// depends on the adapter's criticality and the quorum policy.
type AdapterError struct {
	Source string
	Kind   AdapterErrorKind
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s failed (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAdapterTimeout) match timeout-kind failures.
func (e *AdapterError) Is(target error) bool {
	return target == ErrAdapterTimeout && e.Kind == AdapterTimeout
}

// QuorumError reports why a report build was aborted. It unwraps to
// ErrQuorumNotMet so callers can branch with errors.Is.
type QuorumError struct {
	Requested      int
	Succeeded      int
	QuorumFraction float64
	FailedCritical []string
}

func (e *QuorumError) Error() string {
	if len(e.FailedCritical) > 0 {
		return fmt.Sprintf("quorum not met: critical sources failed: %s",
			strings.Join(e.FailedCritical, ", "))
	}
	return fmt.Sprintf("quorum not met: %d/%d sources succeeded (need %.0f%%)",
		e.Succeeded, e.Requested, e.QuorumFraction*100)
}

func (e *QuorumError) Unwrap() error { return ErrQuorumNotMet }

// ValidationError lists the provenance violations found in a synthesis
// candidate. It unwraps to ErrSynthesisValidation and always routes the
// candidate back to the retry controller.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSynthesisValidation, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrSynthesisValidation }
