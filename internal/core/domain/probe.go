package domain

import (
	"fmt"
	"net/http"
	"time"
)

// ProbeResult is one health check attempt. StatusCode is 0 when the service
// could not be reached at all; Error then carries the transport failure.
type ProbeResult struct {
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Healthy reports whether the attempt observed exactly 200.
func (p ProbeResult) Healthy() bool {
	return p.StatusCode == http.StatusOK
}

// Reachable reports whether any HTTP response came back.
func (p ProbeResult) Reachable() bool {
	return p.StatusCode != 0
}

// Observation renders the attempt for logs and tables.
func (p ProbeResult) Observation() string {
	if !p.Reachable() {
		if p.Error != "" {
			return "unreachable: " + p.Error
		}
		return "unreachable"
	}
	return fmt.Sprintf("%d %s", p.StatusCode, http.StatusText(p.StatusCode))
}
