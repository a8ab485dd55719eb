package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid run configuration")
	ErrBuildFailed   = errors.New("build failed")
	ErrRunFailed     = errors.New("run failed")
	ErrUnhealthy     = errors.New("service unhealthy")
)

// UnhealthyError is returned when polling ends without a 200 response.
// Trail holds every attempt that was made.
type UnhealthyError struct {
	Attempts int
	Trail    []ProbeResult
	Cause    error // set when polling stopped early, e.g. on cancellation
}

func (e *UnhealthyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("service unhealthy after %d/%d attempts: %v", len(e.Trail), e.Attempts, e.Cause)
	}
	last := "no attempts"
	if n := len(e.Trail); n > 0 {
		last = e.Trail[n-1].Observation()
	}
	return fmt.Sprintf("service unhealthy after %d attempts (last: %s)", len(e.Trail), last)
}

func (e *UnhealthyError) Is(target error) bool {
	return target == ErrUnhealthy
}

func (e *UnhealthyError) Unwrap() error {
	return e.Cause
}

// ErrRunNotFound is returned by history lookups for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")
