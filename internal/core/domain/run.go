package domain

import (
	"errors"
	"time"
)

// Outcome is the terminal state of a LifecycleRun.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeSuccess     Outcome = "success"
	OutcomeUnhealthy   Outcome = "unhealthy"
	OutcomeBuildFailed Outcome = "build_failed"
	OutcomeRunFailed   Outcome = "run_failed"
)

// ExitCode maps the outcome onto the process exit contract.
func (o Outcome) ExitCode() int {
	if o == OutcomeSuccess {
		return 0
	}
	return 1
}

// OutcomeFor classifies an error returned by one of the run stages.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrBuildFailed):
		return OutcomeBuildFailed
	case errors.Is(err, ErrRunFailed):
		return OutcomeRunFailed
	default:
		return OutcomeUnhealthy
	}
}

// LifecycleRun is one build, launch, verify and cleanup attempt. CleanedUp
// reports that teardown ran; CleanupError is set when it failed and the
// container may still exist.
type LifecycleRun struct {
	ID           string           `json:"id"`
	Config       RunConfig        `json:"config"`
	Outcome      Outcome          `json:"outcome"`
	Container    *ContainerHandle `json:"container,omitempty"`
	Trail        []ProbeResult    `json:"trail"`
	Diagnostics  string           `json:"diagnostics,omitempty"`
	Error        string           `json:"error,omitempty"`
	CleanedUp    bool             `json:"cleaned_up"`
	CleanupError string           `json:"cleanup_error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Duration is the wall time between start and finish.
func (r *LifecycleRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run ended in OutcomeSuccess.
func (r *LifecycleRun) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
