package logs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/wharf/pkg/runtime"
)

type fakeStream struct {
	ch  chan runtime.RawLine
	err error
}

func (f *fakeStream) Lines() <-chan runtime.RawLine { return f.ch }
func (f *fakeStream) Err() error                    { return f.err }
func (f *fakeStream) Close() error                  { return nil }

// fakeStreamer hands out scripted streams in order and records the options
// of every open.
type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream
	opts    []runtime.StreamOptions
}

func (f *fakeStreamer) OpenLogStream(ctx context.Context, sourceID string, opts runtime.StreamOptions) (runtime.LogStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if len(f.streams) == 0 {
		return nil, fmt.Errorf("no scripted stream for %s", sourceID)
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func (f *fakeStreamer) recorded() []runtime.StreamOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.StreamOptions{}, f.opts...)
}

func rawAt(ts time.Time, text string) runtime.RawLine {
	return runtime.RawLine{SourceID: "c1", Time: ts, Text: text}
}

func waitForLen(t *testing.T, s *Store, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d lines, got %d", want, s.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionIngest(t *testing.T) {
	store := NewStore(100, nil)
	m := NewSessionManager(nil, store, nil)
	st := &sourceState{}
	s := m.beginSession(st, "c1", OpenOptions{}, false)

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	n, replay := m.ingest(s, rawAt(ts, "hello"), false)
	if n != 1 || replay {
		t.Fatalf("expected 1 line ingested, got n=%d replay=%v", n, replay)
	}
	l := store.Get(1)
	if l == nil || l.Raw != "hello" || l.Session != s.ID || l.SourceID != "c1" {
		t.Fatalf("unexpected line: %+v", l)
	}
	if got := st.lastNS.Load(); got != ts.UnixNano() {
		t.Errorf("expected last timestamp recorded, got %d", got)
	}
}

func TestSessionIngestSplitsCarriageReturns(t *testing.T) {
	store := NewStore(100, nil)
	m := NewSessionManager(nil, store, nil)
	s := m.beginSession(&sourceState{}, "c1", OpenOptions{}, false)

	n, _ := m.ingest(s, rawAt(time.Now(), "pulling 10%\rpulling 50%"), false)
	if n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
	if store.Get(1).Raw != "pulling 10%" || store.Get(2).Raw != "pulling 50%" {
		t.Errorf("unexpected split: %q, %q", store.Get(1).Raw, store.Get(2).Raw)
	}
}

func TestSessionReplayDedup(t *testing.T) {
	store := NewStore(100, nil)
	m := NewSessionManager(nil, store, nil)
	st := &sourceState{}
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	s1 := m.beginSession(st, "c1", OpenOptions{}, false)
	for i := 1; i <= 6; i++ {
		m.ingest(s1, rawAt(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("line %d", i)), false)
	}
	if store.Len() != 6 {
		t.Fatalf("expected 6 lines, got %d", store.Len())
	}

	// Reconnect: the runtime re-delivers the last two lines, then new ones.
	s2 := m.beginSession(st, "c1", OpenOptions{Since: base.Add(6 * time.Second)}, true)
	if s1.Active() {
		t.Fatal("expected first session superseded")
	}
	replay := true
	var n int
	for i := 5; i <= 9; i++ {
		n, replay = m.ingest(s2, rawAt(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("line %d", i)), replay)
		if i <= 6 && n != 0 {
			t.Errorf("line %d: expected replay drop, ingested %d", i, n)
		}
		if i > 6 && n != 1 {
			t.Errorf("line %d: expected ingest, got %d", i, n)
		}
	}
	if store.Len() != 9 {
		t.Fatalf("expected exactly 9 distinct lines, got %d", store.Len())
	}
	for i, l := range store.Range(0, 100) {
		want := fmt.Sprintf("line %d", i+1)
		if l.Raw != want {
			t.Errorf("position %d: expected %q, got %q", i, want, l.Raw)
		}
		if l.Seq != uint64(i+1) {
			t.Errorf("position %d: expected seq %d, got %d", i, i+1, l.Seq)
		}
	}
}

func TestSessionReplayDedupPairsIdenticalLines(t *testing.T) {
	store := NewStore(100, nil)
	m := NewSessionManager(nil, store, nil)
	st := &sourceState{}

	s1 := m.beginSession(st, "c1", OpenOptions{}, false)
	m.ingest(s1, rawAt(time.Now(), "same"), false)
	m.ingest(s1, rawAt(time.Now(), "same"), false)

	s2 := m.beginSession(st, "c1", OpenOptions{}, true)
	replay := true
	var n int
	n, replay = m.ingest(s2, rawAt(time.Now(), "same"), replay)
	if n != 0 {
		t.Error("expected first re-delivery dropped")
	}
	n, replay = m.ingest(s2, rawAt(time.Now(), "same"), replay)
	if n != 0 {
		t.Error("expected second re-delivery dropped")
	}
	n, _ = m.ingest(s2, rawAt(time.Now(), "same"), replay)
	if n != 1 {
		t.Error("expected a third identical line to be novel")
	}
	if store.Len() != 3 {
		t.Errorf("expected 3 lines total, got %d", store.Len())
	}
}

func TestSessionConsumeStopsWhenSuperseded(t *testing.T) {
	store := NewStore(100, nil)
	m := NewSessionManager(nil, store, nil)
	st := &sourceState{}
	s1 := m.beginSession(st, "c1", OpenOptions{}, false)
	m.beginSession(st, "c1", OpenOptions{}, false)

	stream := &fakeStream{ch: make(chan runtime.RawLine, 1)}
	stream.ch <- rawAt(time.Now(), "late line")

	err := m.consume(context.Background(), s1, stream)
	if err != errSuperseded {
		t.Fatalf("expected errSuperseded, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected no lines from a stale session, got %d", store.Len())
	}
}

func TestSessionCleanEndNoRetry(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	stream := &fakeStream{ch: make(chan runtime.RawLine, 2)}
	stream.ch <- rawAt(base, "one")
	stream.ch <- rawAt(base.Add(time.Second), "two")
	close(stream.ch)

	streamer := &fakeStreamer{streams: []*fakeStream{stream}}
	store := NewStore(100, nil)
	m := NewSessionManager(streamer, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Open(ctx, []string{"c1"}, OpenOptions{Follow: true})

	waitForLen(t, store, 2)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status := m.Status()["c1"]
		if status == StatusEnded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ended status, got %v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := streamer.recorded(); len(got) != 1 {
		t.Errorf("expected no reconnect after a clean end, got %d opens", len(got))
	}
}

func TestStatusEventSurvivesFullChannel(t *testing.T) {
	m := NewSessionManager(&fakeStreamer{}, NewStore(100, nil), nil)

	// Saturate the event channel with line notifications while nothing
	// drains it, then report the stream's end.
	for i := 0; i < 200; i++ {
		m.emit(Event{Kind: EventLines, Source: "c1", Appended: 1})
	}
	m.emit(Event{Kind: EventStatus, Source: "c1", Status: StatusEnded})

	found := false
drain:
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == EventStatus && ev.Status == StatusEnded {
				found = true
			}
		default:
			break drain
		}
	}
	if !found {
		t.Errorf("expected the ended status to be delivered despite the backlog")
	}
}

func TestSessionReconnectResumesFromLastTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	first := &fakeStream{ch: make(chan runtime.RawLine, 6), err: io.ErrUnexpectedEOF}
	for i := 1; i <= 6; i++ {
		first.ch <- rawAt(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("line %d", i))
	}
	close(first.ch)

	second := &fakeStream{ch: make(chan runtime.RawLine, 5)}
	for i := 5; i <= 9; i++ {
		second.ch <- rawAt(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("line %d", i))
	}
	close(second.ch)

	streamer := &fakeStreamer{streams: []*fakeStream{first, second}}
	store := NewStore(100, nil)
	m := NewSessionManager(streamer, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Open(ctx, []string{"c1"}, OpenOptions{Since: base, Tail: 200, Follow: true})

	// The reconnect waits out one backoff step before reopening.
	waitForLen(t, store, 9)

	lines := store.Range(0, 100)
	for i, l := range lines {
		want := fmt.Sprintf("line %d", i+1)
		if l.Raw != want {
			t.Errorf("position %d: expected %q, got %q", i, want, l.Raw)
		}
	}
	if lines[8].Session == lines[0].Session {
		t.Error("expected lines after reconnect to carry a new session id")
	}

	opts := streamer.recorded()
	if len(opts) != 2 {
		t.Fatalf("expected 2 opens, got %d", len(opts))
	}
	if opts[0].Tail != 200 || !opts[0].Since.Equal(base) {
		t.Errorf("unexpected first open options: %+v", opts[0])
	}
	if opts[1].Tail != 0 {
		t.Errorf("expected reconnect to disable tail, got %d", opts[1].Tail)
	}
	if !opts[1].Since.Equal(base.Add(6 * time.Second)) {
		t.Errorf("expected reconnect since at last ingested timestamp, got %v", opts[1].Since)
	}
}

func TestSessionOpenSupersedesPrevious(t *testing.T) {
	blocked := &fakeStream{ch: make(chan runtime.RawLine)}
	replacement := &fakeStream{ch: make(chan runtime.RawLine)}
	streamer := &fakeStreamer{streams: []*fakeStream{blocked, replacement}}
	store := NewStore(100, nil)
	m := NewSessionManager(streamer, store, nil)

	ctx := context.Background()
	first := m.Open(ctx, []string{"c1"}, OpenOptions{Follow: true})
	second := m.Open(ctx, []string{"c1"}, OpenOptions{Follow: true})

	if first[0].Active() {
		t.Error("expected first session superseded by reopen")
	}
	if !second[0].Active() {
		t.Error("expected second session active")
	}
	m.Close()
	if second[0].Active() {
		t.Error("expected close to deactivate sessions")
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.failures); got != tt.want {
			t.Errorf("failures=%d: expected %v, got %v", tt.failures, tt.want, got)
		}
	}
}
