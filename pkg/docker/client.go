// Package docker implements the runtime.Client surface against a Docker
// daemon using the engine API. Containers are the log sources; compose
// project labels group them into stacks.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/moby/moby/client"

	"github.com/modoterra/wharf/pkg/runtime"
)

const composeProjectLabel = "com.docker.compose.project"

// Runtime talks to one Docker daemon, resolved from the environment the
// same way the docker CLI resolves it.
type Runtime struct {
	cli    *client.Client
	logger *slog.Logger

	mu  sync.Mutex
	tty map[string]bool
}

// New connects to the daemon named by DOCKER_HOST and friends, negotiating
// the API version so old daemons keep working.
func New(logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Runtime{
		cli:    cli,
		logger: logger,
		tty:    make(map[string]bool),
	}, nil
}

func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx, client.PingOptions{}); err != nil {
		return fmt.Errorf("pinging docker daemon: %w", err)
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

// ListSources returns every container, running or not, so stopped ones
// stay visible in the dashboard with their final logs reachable.
func (r *Runtime) ListSources(ctx context.Context) ([]runtime.Source, error) {
	res, err := r.cli.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	sources := make([]runtime.Source, 0, len(res.Items))
	for _, c := range res.Items {
		sources = append(sources, runtime.Source{
			ID:     c.ID,
			Name:   displayName(c.Names, c.ID),
			Stack:  c.Labels[composeProjectLabel],
			Image:  c.Image,
			State:  string(c.State),
			Status: c.Status,
		})
	}
	return sources, nil
}

// isTTY reports whether the container allocates a pseudo-terminal, which
// decides the wire format of its log stream. The flag is immutable for the
// life of a container, so answers are cached.
func (r *Runtime) isTTY(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	tty, ok := r.tty[id]
	r.mu.Unlock()
	if ok {
		return tty, nil
	}

	res, err := r.cli.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		return false, fmt.Errorf("inspecting container %s: %w", shortID(id), err)
	}
	tty = res.Container.Config != nil && res.Container.Config.Tty

	r.mu.Lock()
	r.tty[id] = tty
	r.mu.Unlock()
	return tty, nil
}

// displayName picks the primary name Docker reports, minus the leading
// slash left over from the container linking era.
func displayName(names []string, id string) string {
	for _, n := range names {
		if n = strings.TrimPrefix(n, "/"); n != "" {
			return n
		}
	}
	return shortID(id)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
