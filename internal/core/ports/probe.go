package ports

import (
	"context"
	"time"
)

// HTTPGetter issues a GET and returns the response status code. A transport
// failure is reported as an error with no status.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (int, error)
}

// Clock abstracts time so polling can be tested without real waits.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}
