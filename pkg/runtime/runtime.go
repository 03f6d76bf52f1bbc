// Package runtime abstracts the container runtime underneath the dashboard:
// enumerating log sources, streaming their logs, and watching their resource
// stats. The docker package provides the production implementation; tests
// substitute fakes.
package runtime

import (
	"context"
	"sort"
	"time"
)

// Source is one log-producing unit, typically a container.
type Source struct {
	ID     string
	Name   string
	Stack  string
	Image  string
	State  string
	Status string
}

func (s Source) Running() bool {
	return s.State == "running"
}

// Stack groups sources that belong to one compose project. Sources without
// a project land in the unnamed stack.
type Stack struct {
	Name    string
	Sources []Source
}

// GroupByStack buckets sources by stack, sorted by stack name with the
// unnamed stack last, sources sorted by name within each.
func GroupByStack(sources []Source) []Stack {
	byName := make(map[string][]Source)
	for _, s := range sources {
		byName[s.Stack] = append(byName[s.Stack], s)
	}
	stacks := make([]Stack, 0, len(byName))
	for name, members := range byName {
		sort.Slice(members, func(i, j int) bool {
			return members[i].Name < members[j].Name
		})
		stacks = append(stacks, Stack{Name: name, Sources: members})
	}
	sort.Slice(stacks, func(i, j int) bool {
		if (stacks[i].Name == "") != (stacks[j].Name == "") {
			return stacks[j].Name == ""
		}
		return stacks[i].Name < stacks[j].Name
	})
	return stacks
}

// Stats is one resource usage sample for a source.
type Stats struct {
	CPUPercent float64
	MemUsage   uint64
	MemLimit   uint64
	MemPercent float64
}

// RawLine is one log line as delivered by the runtime, before any
// normalization.
type RawLine struct {
	SourceID string
	Time     time.Time
	Text     string
}

// StreamOptions bound what a log stream replays before it goes live.
type StreamOptions struct {
	// Since drops lines older than this instant. Zero means no lower bound.
	Since time.Time
	// Tail keeps only the newest N lines of the backlog. Zero keeps
	// everything the Since window allows.
	Tail int
	// Follow keeps the stream open for new lines.
	Follow bool
}

// LogStream delivers lines until closed or failed. After Lines is drained,
// Err reports why the stream ended; nil means the source finished cleanly.
type LogStream interface {
	Lines() <-chan RawLine
	Err() error
	Close() error
}

type Lister interface {
	ListSources(ctx context.Context) ([]Source, error)
}

type Streamer interface {
	OpenLogStream(ctx context.Context, sourceID string, opts StreamOptions) (LogStream, error)
}

type StatsWatcher interface {
	WatchStats(ctx context.Context, sourceID string) (<-chan Stats, error)
}

// Client is the full runtime surface the dashboard needs.
type Client interface {
	Lister
	Streamer
	StatsWatcher
	Ping(ctx context.Context) error
	Close() error
}
