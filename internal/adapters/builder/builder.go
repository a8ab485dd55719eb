package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	ignore "github.com/moby/patternmatcher/ignorefile"

	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// imageBuilder is the subset of the Docker SDK used for builds.
type imageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

type Adapter struct {
	cli    imageBuilder
	output io.Writer
}

var _ ports.BuilderService = (*Adapter)(nil)

// NewBuilderAdapter creates a builder. Build progress is streamed to output;
// pass nil to discard it.
func NewBuilderAdapter(output io.Writer) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if output == nil {
		output = io.Discard
	}
	return &Adapter{cli: cli, output: output}, nil
}

// BuildImage builds req.ImageTag from a local directory or, when req.Context
// is a git URL, from a shallow clone of it.
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (string, error) {
	dir := req.Context
	if IsGitURL(req.Context) {
		tmpDir, err := os.MkdirTemp("", "lighthouse-build-*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		if err := a.clone(ctx, req.Context, req.GitRef, tmpDir); err != nil {
			return "", err
		}
		dir = tmpDir
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read build context: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("build context %s is not a directory", dir)
	}

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	excludes, err := readDockerignore(dir)
	if err != nil {
		return "", err
	}

	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	fmt.Fprintf(a.output, "Building Docker image: %s...\n", req.ImageTag)
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{req.ImageTag},
		Dockerfile:  dockerfile,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The daemon reports step failures inside the stream, not as an API error.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, a.output, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}

	return req.ImageTag, nil
}

func (a *Adapter) clone(ctx context.Context, url, ref, dir string) error {
	fmt.Fprintf(a.output, "Cloning %s into %s...\n", url, dir)
	opts := &git.CloneOptions{
		URL:      url,
		Progress: a.output,
		Depth:    1, // Shallow clone for speed
	}
	if ref != "" {
		opts.ReferenceName = referenceName(ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}
	return nil
}

// IsGitURL reports whether a build context should be cloned rather than read
// from disk.
func IsGitURL(s string) bool {
	switch {
	case strings.HasPrefix(s, "git@"), strings.HasPrefix(s, "git://"), strings.HasPrefix(s, "ssh://"):
		return true
	case strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "http://"):
		return strings.HasSuffix(strings.TrimSuffix(s, "/"), ".git")
	}
	return false
}

// referenceName accepts a full ref (refs/tags/v1), a tag shorthand
// (tags/v1) or a plain branch name.
func referenceName(ref string) plumbing.ReferenceName {
	switch {
	case strings.HasPrefix(ref, "refs/"):
		return plumbing.ReferenceName(ref)
	case strings.HasPrefix(ref, "tags/"):
		return plumbing.NewTagReferenceName(strings.TrimPrefix(ref, "tags/"))
	}
	return plumbing.NewBranchReferenceName(ref)
}

func readDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open .dockerignore: %w", err)
	}
	defer f.Close()

	patterns, err := ignore.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .dockerignore: %w", err)
	}
	return patterns, nil
}
