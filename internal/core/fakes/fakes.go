// Package fakes holds in-memory implementations of the core ports for tests.
package fakes

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Response is one scripted answer from HTTPGetter.
type Response struct {
	Status int
	Err    error
}

// HTTPGetter replays Responses in order and repeats the last one once the
// script runs out.
type HTTPGetter struct {
	mu        sync.Mutex
	Responses []Response
	URLs      []string
	// OnGet runs after the n-th call (1-based) is recorded.
	OnGet func(n int)
}

func (g *HTTPGetter) Get(ctx context.Context, url string) (int, error) {
	g.mu.Lock()
	g.URLs = append(g.URLs, url)
	n := len(g.URLs)
	var resp Response
	if len(g.Responses) > 0 {
		idx := n - 1
		if idx >= len(g.Responses) {
			idx = len(g.Responses) - 1
		}
		resp = g.Responses[idx]
	}
	hook := g.OnGet
	g.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if resp.Err != nil {
		return 0, resp.Err
	}
	return resp.Status, nil
}

// Calls returns how many GETs were issued.
func (g *HTTPGetter) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.URLs)
}

// Statuses builds a script from plain status codes.
func Statuses(codes ...int) []Response {
	out := make([]Response, len(codes))
	for i, c := range codes {
		out[i] = Response{Status: c}
	}
	return out
}

// Clock is a virtual clock; Sleep advances time instantly.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Elapsed is the virtual time that passed since start.
func (c *Clock) Elapsed(start time.Time) time.Duration {
	return c.Now().Sub(start)
}

// Builder records build requests.
type Builder struct {
	Err      error
	Requests []ports.BuildRequest
}

func (b *Builder) BuildImage(ctx context.Context, req ports.BuildRequest) (string, error) {
	b.Requests = append(b.Requests, req)
	if b.Err != nil {
		return "", b.Err
	}
	return req.ImageTag, nil
}

// ContainerService counts calls per operation.
type ContainerService struct {
	mu sync.Mutex

	StartErr  error
	StopErr   error
	RemoveErr error
	LogsErr   error
	Logs      string
	ID        string

	StartCalls  int
	StopCalls   int
	RemoveCalls int
	LogsCalls   int
	Specs       []ports.LaunchSpec
	// StopCtxErr is the error of the context StopContainer was called with.
	StopCtxErr error
}

func (s *ContainerService) StartContainer(ctx context.Context, spec ports.LaunchSpec) (domain.ContainerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.Specs = append(s.Specs, spec)
	if s.StartErr != nil {
		return domain.ContainerHandle{}, s.StartErr
	}
	id := s.ID
	if id == "" {
		id = "c0ffee0000000000deadbeef"
	}
	return domain.ContainerHandle{ID: id, Name: spec.Name}, nil
}

func (s *ContainerService) StopContainer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.StopCtxErr = ctx.Err()
	return s.StopErr
}

func (s *ContainerService) RemoveContainer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RemoveCalls++
	return s.RemoveErr
}

func (s *ContainerService) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogsCalls++
	if s.LogsErr != nil {
		return nil, s.LogsErr
	}
	return io.NopCloser(strings.NewReader(s.Logs)), nil
}

// Recorder keeps finished runs in memory.
type Recorder struct {
	mu   sync.Mutex
	Runs []domain.LifecycleRun
	Err  error
}

func (r *Recorder) Record(ctx context.Context, run *domain.LifecycleRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Runs = append(r.Runs, *run)
	return nil
}

func (r *Recorder) List(ctx context.Context, limit int) ([]domain.LifecycleRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LifecycleRun, 0, len(r.Runs))
	for i := len(r.Runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.Runs[i])
	}
	return out, nil
}

func (r *Recorder) Get(ctx context.Context, id string) (*domain.LifecycleRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Runs {
		if r.Runs[i].ID == id {
			run := r.Runs[i]
			return &run, nil
		}
	}
	return nil, domain.ErrRunNotFound
}

// ErrConnRefused mimics a dial failure.
var ErrConnRefused = errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
