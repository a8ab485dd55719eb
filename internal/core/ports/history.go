package ports

import (
	"context"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	Record(ctx context.Context, run *domain.LifecycleRun) error
}

// RunHistory reads back recorded runs, newest first.
type RunHistory interface {
	RunRecorder
	List(ctx context.Context, limit int) ([]domain.LifecycleRun, error)
	Get(ctx context.Context, id string) (*domain.LifecycleRun, error)
}
