package ports

import "context"

// BuildRequest describes one image build.
type BuildRequest struct {
	ImageTag   string
	Context    string // local directory or git URL
	Dockerfile string
	GitRef     string // branch or tag, only used for git contexts
}

// BuilderService defines operations for building container images.
type BuilderService interface {
	// BuildImage builds an image from the request's context and tags it.
	// It returns the tag of the built image or an error.
	BuildImage(ctx context.Context, req BuildRequest) (string, error)
}
