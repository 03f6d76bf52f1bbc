package logs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modoterra/wharf/pkg/runtime"
)

type EventKind uint8

const (
	EventLines EventKind = iota
	EventStatus
)

type StreamStatus int32

const (
	StatusConnecting StreamStatus = iota
	StatusStreaming
	StatusRetrying
	StatusEnded
)

func (s StreamStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusRetrying:
		return "retrying"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

// Event is what the session manager tells the frontend: lines arrived, or a
// source changed stream status.
type Event struct {
	Kind     EventKind
	Source   string
	Status   StreamStatus
	Appended int
}

const (
	maxBackoff = 30 * time.Second
	// A stream that survived this long resets the failure count, so a
	// long-lived connection that finally drops reconnects fast.
	streamStableAfter = 30 * time.Second

	// dedupDepth is how many trailing line texts are remembered per source
	// for reconnect overlap detection.
	dedupDepth = 64
)

var errSuperseded = errors.New("session superseded")

// OpenOptions bound what each source session replays and whether it stays
// attached for new lines.
type OpenOptions struct {
	Since  time.Time
	Tail   int
	Follow bool
}

// Session is one streaming attempt against one source. A new Open and every
// reconnect mint a fresh session; the old one observes it is stale through
// the shared per-source counter and stops appending.
type Session struct {
	ID       uint64
	Source   string
	OpenedAt time.Time
	Since    time.Time
	Tail     int
	Follow   bool

	replay bool
	st     *sourceState
}

// Active reports whether this session is still the one allowed to append.
func (s *Session) Active() bool {
	return s.st.active.Load() == s.ID
}

// sourceState is the part of a source's streaming state that outlives
// individual sessions.
type sourceState struct {
	active atomic.Uint64
	lastNS atomic.Int64
	status atomic.Int32
	win    dedup
}

// SessionManager owns the goroutines that pull runtime log streams into the
// store. One manager serves one view; opening new sources supersedes all
// running sessions.
type SessionManager struct {
	streamer runtime.Streamer
	store    *Store
	logger   *slog.Logger
	events   chan Event
	ids      atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	src    map[string]*sourceState
}

func NewSessionManager(streamer runtime.Streamer, store *Store, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionManager{
		streamer: streamer,
		store:    store,
		logger:   logger,
		events:   make(chan Event, 128),
		src:      make(map[string]*sourceState),
	}
}

// Events delivers line and status notifications. Sends never block; a full
// channel drops events, which is fine because frontends re-render from the
// store, not from the events themselves.
func (m *SessionManager) Events() <-chan Event {
	return m.events
}

// Open starts streaming the given sources, superseding any sessions from a
// previous Open. Lines from the new sessions are appended after everything
// already in the store.
func (m *SessionManager) Open(ctx context.Context, sources []string, opts OpenOptions) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, m.cancel = context.WithCancel(ctx)

	sessions := make([]*Session, 0, len(sources))
	for _, source := range sources {
		st, ok := m.src[source]
		if !ok {
			st = &sourceState{}
			m.src[source] = st
		}
		s := m.beginSession(st, source, opts, false)
		sessions = append(sessions, s)
		go m.runSource(ctx, s)
	}
	return sessions
}

// Close stops all sessions. The store keeps its contents.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for _, st := range m.src {
		st.active.Store(0)
	}
}

// Status returns the current stream status per source.
func (m *SessionManager) Status() map[string]StreamStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StreamStatus, len(m.src))
	for source, st := range m.src {
		out[source] = StreamStatus(st.status.Load())
	}
	return out
}

func (m *SessionManager) beginSession(st *sourceState, source string, opts OpenOptions, replay bool) *Session {
	id := m.ids.Add(1)
	st.active.Store(id)
	if !replay {
		// A fresh open re-reads the backlog; stale overlap state would
		// wrongly swallow lines.
		st.win.clear()
		st.lastNS.Store(0)
	}
	return &Session{
		ID:       id,
		Source:   source,
		OpenedAt: time.Now(),
		Since:    opts.Since,
		Tail:     opts.Tail,
		Follow:   opts.Follow,
		replay:   replay,
		st:       st,
	}
}

func (m *SessionManager) runSource(ctx context.Context, s *Session) {
	failures := 0
	for {
		if ctx.Err() != nil || !s.Active() {
			return
		}
		m.setStatus(s, StatusConnecting)
		stream, err := m.streamer.OpenLogStream(ctx, s.Source, runtime.StreamOptions{
			Since:  s.Since,
			Tail:   s.Tail,
			Follow: s.Follow,
		})
		if err != nil {
			if ctx.Err() != nil || !s.Active() {
				return
			}
			failures++
			m.setStatus(s, StatusRetrying)
			m.logger.Warn("log stream open failed",
				"source", s.Source, "failures", failures, "err", err)
			if !sleepCtx(ctx, backoffDelay(failures)) {
				return
			}
			continue
		}

		m.setStatus(s, StatusStreaming)
		started := time.Now()
		err = m.consume(ctx, s, stream)
		stream.Close()

		switch {
		case errors.Is(err, errSuperseded) || ctx.Err() != nil:
			return
		case err == nil:
			// The source finished cleanly; nothing left to stream.
			m.setStatus(s, StatusEnded)
			return
		}

		if time.Since(started) >= streamStableAfter {
			failures = 0
		}
		failures++
		m.setStatus(s, StatusRetrying)
		m.logger.Warn("log stream dropped, reconnecting",
			"source", s.Source, "failures", failures, "err", err)
		if !sleepCtx(ctx, backoffDelay(failures)) {
			return
		}
		if !s.Active() {
			return
		}

		// Resume from the newest ingested timestamp. The runtime may
		// re-deliver lines at that boundary; the dedup window drops them.
		since := s.Since
		if ns := s.st.lastNS.Load(); ns > 0 {
			since = time.Unix(0, ns)
		}
		m.mu.Lock()
		s = m.beginSession(s.st, s.Source, OpenOptions{Since: since, Follow: s.Follow}, true)
		m.mu.Unlock()
	}
}

func (m *SessionManager) consume(ctx context.Context, s *Session, stream runtime.LogStream) error {
	replay := s.replay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-stream.Lines():
			if !ok {
				return stream.Err()
			}
			if !s.Active() {
				return errSuperseded
			}
			n, still := m.ingest(s, raw, replay)
			replay = still
			if n > 0 {
				m.emit(Event{Kind: EventLines, Source: s.Source, Appended: n})
			}
		}
	}
}

// ingest normalizes one raw line into store lines. During replay, lines
// matching the trailing window of the previous session are dropped; the
// first novel line ends the replay.
func (m *SessionManager) ingest(s *Session, raw runtime.RawLine, replay bool) (int, bool) {
	count := 0
	for _, text := range normalizeText(raw.Text) {
		if replay {
			if s.st.win.remove(text) {
				continue
			}
			replay = false
		}
		l := &Line{
			Session:  s.ID,
			SourceID: raw.SourceID,
			Time:     raw.Time,
			Raw:      text,
		}
		m.store.Append(l)
		s.st.win.push(text)
		count++
	}
	if !raw.Time.IsZero() {
		if ns := raw.Time.UnixNano(); ns > s.st.lastNS.Load() {
			s.st.lastNS.Store(ns)
		}
	}
	return count, replay
}

func (m *SessionManager) setStatus(s *Session, status StreamStatus) {
	if !s.Active() {
		return
	}
	s.st.status.Store(int32(status))
	m.emit(Event{Kind: EventStatus, Source: s.Source, Status: status})
}

// emit delivers ev without ever blocking a stream goroutine. Line events
// are coalescing notifications, so dropping one on a full channel is fine:
// the consumer reads the store directly. Status events carry state the
// consumer cannot recover elsewhere, so on a full channel the oldest queued
// event is evicted to make room.
func (m *SessionManager) emit(ev Event) {
	for {
		select {
		case m.events <- ev:
			return
		default:
		}
		if ev.Kind != EventStatus {
			return
		}
		select {
		case <-m.events:
		default:
		}
	}
}

func backoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > 6 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(failures-1)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// dedup is a short ring of recent line texts. Reconnect replay removes on
// match, so repeated identical lines in the overlap pair off one to one.
type dedup struct {
	mu   sync.Mutex
	ring []string
}

func (d *dedup) push(text string) {
	d.mu.Lock()
	d.ring = append(d.ring, text)
	if len(d.ring) > dedupDepth {
		d.ring = d.ring[len(d.ring)-dedupDepth:]
	}
	d.mu.Unlock()
}

func (d *dedup) remove(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range d.ring {
		if t == text {
			d.ring = append(d.ring[:i], d.ring[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dedup) clear() {
	d.mu.Lock()
	d.ring = nil
	d.mu.Unlock()
}
