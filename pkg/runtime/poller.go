package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Poller refreshes the source list every interval and emits delta events.
type Poller struct {
	lister   Lister
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current map[string]Source

	updates chan Delta
}

func NewPoller(lister Lister, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		lister:   lister,
		interval: interval,
		logger:   logger,
		current:  make(map[string]Source),
		updates:  make(chan Delta, 8),
	}
}

// Updates delivers deltas between poll cycles. Slow consumers drop deltas;
// Sources always has the full current snapshot.
func (p *Poller) Updates() <-chan Delta {
	return p.updates
}

// Sources returns the current snapshot, sorted by stack then name.
func (p *Poller) Sources() []Source {
	p.mu.Lock()
	out := make([]Source, 0, len(p.current))
	for _, s := range p.current {
		out = append(out, s)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stack != out[j].Stack {
			return out[i].Stack < out[j].Stack
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Run polls once immediately, then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.tick(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	sources, err := p.lister.ListSources(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("source list error", "err", err)
		}
		return
	}
	next := make(map[string]Source, len(sources))
	for _, s := range sources {
		next[s.ID] = s
	}

	p.mu.Lock()
	old := p.current
	p.current = next
	p.mu.Unlock()

	delta := computeDelta(old, next)
	if !delta.HasChanges() {
		return
	}
	select {
	case p.updates <- delta:
	default:
	}
}

// Delta represents changes between poll cycles.
type Delta struct {
	Added   []Source
	Updated []Source
	Removed []string
}

// HasChanges returns true if the delta contains any changes.
func (d Delta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

func computeDelta(old, next map[string]Source) Delta {
	var d Delta

	for id, s := range next {
		prev, existed := old[id]
		if !existed {
			d.Added = append(d.Added, s)
		} else if sourceChanged(prev, s) {
			d.Updated = append(d.Updated, s)
		}
	}

	for id := range old {
		if _, exists := next[id]; !exists {
			d.Removed = append(d.Removed, id)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].ID < d.Added[j].ID })
	sort.Slice(d.Updated, func(i, j int) bool { return d.Updated[i].ID < d.Updated[j].ID })
	sort.Strings(d.Removed)
	return d
}

func sourceChanged(a, b Source) bool {
	return a.Name != b.Name ||
		a.Stack != b.Stack ||
		a.Image != b.Image ||
		a.State != b.State ||
		a.Status != b.Status
}
