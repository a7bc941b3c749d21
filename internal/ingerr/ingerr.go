// Package ingerr defines the error taxonomy used to classify failures at
// stage boundaries throughout the ingestion pipeline: config/environment
// errors abort the whole run, per-task errors are retried or marked
// terminal depending on their Retriable flag.
package ingerr

import (
	"errors"
	"fmt"
)

// ErrAttributionGuard is never returned as an error — it exists only as a
// marker constant for telemetry and log messages documenting that a
// guardrail fired and forced an UNKNOWN label. See types.SpeakerUnknown.
const ErrAttributionGuard = "attribution_guard"

// ConfigError indicates invalid or missing configuration. Fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError constructs a ConfigError for the given field.
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// EnvironmentError indicates an unreachable database, a missing host
// profile, or an unloadable model with no degradation fallback available.
// Fatal at startup.
type EnvironmentError struct {
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("environment: %s: %v", e.Reason, e.Err)
	}
	return "environment: " + e.Reason
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// NewEnvironmentError constructs an EnvironmentError.
func NewEnvironmentError(reason string, err error) *EnvironmentError {
	return &EnvironmentError{Reason: reason, Err: err}
}

// AcquisitionError reports a failure in the Audio Acquirer. Retriable
// failures (transient network, rate limiting, truncated downloads) are
// distinguished from terminal ones (access denied, content removed,
// unsupported format) via the Retriable field.
type AcquisitionError struct {
	Retriable bool
	Err       error
}

func (e *AcquisitionError) Error() string {
	kind := "terminal"
	if e.Retriable {
		kind = "retriable"
	}
	return fmt.Sprintf("acquisition (%s): %v", kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NewAcquisitionError constructs an AcquisitionError.
func NewAcquisitionError(retriable bool, err error) *AcquisitionError {
	return &AcquisitionError{Retriable: retriable, Err: err}
}

// ModelError reports a failure inside the Model Pool or a model call.
// OOM triggers the degradation ladder (Retriable=true); invalid output, and
// the OOM error modelpool reports once the ladder is exhausted, are terminal
// for the task (Retriable=false).
type ModelError struct {
	Retriable bool
	OOM       bool
	Err       error
}

func (e *ModelError) Error() string {
	switch {
	case e.OOM:
		return fmt.Sprintf("model (oom): %v", e.Err)
	case e.Retriable:
		return fmt.Sprintf("model (retriable): %v", e.Err)
	default:
		return fmt.Sprintf("model (terminal): %v", e.Err)
	}
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelOOMError constructs a ModelError representing an out-of-memory
// condition; these always trigger the degradation ladder.
func NewModelOOMError(err error) *ModelError {
	return &ModelError{Retriable: true, OOM: true, Err: err}
}

// NewModelInvalidOutputError constructs a terminal ModelError for a model
// that produced output violating its output contract.
func NewModelInvalidOutputError(err error) *ModelError {
	return &ModelError{Retriable: false, Err: err}
}

// OptimizerError signals a violated invariant after optimization (e.g.
// empty output on non-empty input). Always a per-task terminal error and
// always indicates a programming bug — never expected in normal operation.
type OptimizerError struct {
	Invariant string
	Err       error
}

func (e *OptimizerError) Error() string {
	return fmt.Sprintf("optimizer: invariant %q violated: %v", e.Invariant, e.Err)
}

func (e *OptimizerError) Unwrap() error { return e.Err }

// NewOptimizerError constructs an OptimizerError for the named invariant.
func NewOptimizerError(invariant string, err error) *OptimizerError {
	return &OptimizerError{Invariant: invariant, Err: err}
}

// CommitError reports a Store Writer transaction failure. Retriable
// (transient DB errors) is distinguished from terminal (constraint
// violations other than the expected dedup conflict, which is never
// surfaced as an error at all).
type CommitError struct {
	Retriable bool
	Err       error
}

func (e *CommitError) Error() string {
	kind := "terminal"
	if e.Retriable {
		kind = "retriable"
	}
	return fmt.Sprintf("commit (%s): %v", kind, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// NewCommitError constructs a CommitError.
func NewCommitError(retriable bool, err error) *CommitError {
	return &CommitError{Retriable: retriable, Err: err}
}

// Kind returns a short classification string for err, used for telemetry
// bucketing (IngestionStats.ByFailureKind) and structured log fields.
// Errors that don't match a known taxonomy member classify as "unknown".
func Kind(err error) string {
	var (
		cfgErr  *ConfigError
		envErr  *EnvironmentError
		acqErr  *AcquisitionError
		modErr  *ModelError
		optErr  *OptimizerError
		commErr *CommitError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "ConfigError"
	case errors.As(err, &envErr):
		return "EnvironmentError"
	case errors.As(err, &acqErr):
		return "AcquisitionError"
	case errors.As(err, &modErr):
		return "ModelError"
	case errors.As(err, &optErr):
		return "OptimizerError"
	case errors.As(err, &commErr):
		return "CommitError"
	default:
		return "unknown"
	}
}

// IsRetriable reports whether err, classified per the taxonomy, should be
// re-enqueued with an incremented attempt count rather than marked
// terminal. Unclassified errors are treated as non-retriable.
func IsRetriable(err error) bool {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Retriable
	}
	var modErr *ModelError
	if errors.As(err, &modErr) {
		return modErr.Retriable
	}
	var commErr *CommitError
	if errors.As(err, &commErr) {
		return commErr.Retriable
	}
	return false
}

// IsFatal reports whether err should abort the entire run rather than
// just the current task. Only ConfigError and EnvironmentError are fatal.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	var envErr *EnvironmentError
	return errors.As(err, &cfgErr) || errors.As(err, &envErr)
}
