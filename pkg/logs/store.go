package logs

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store holds the ordered line buffer for one view. Sequences are assigned
// here, at append, starting from 1; once a line is in the buffer its position
// never changes. Eviction drops oldest lines past the cap but never markers,
// marker anchor lines, or lines pinned by an active selection, so the buffer
// can exceed the cap by the number of protected lines.
type Store struct {
	mu       sync.Mutex
	lines    []*Line
	next     uint64
	max      int
	anchors  map[uint64]int
	pinLo    uint64
	pinHi    uint64
	overflow bool
	logger   *slog.Logger
}

func NewStore(maxLines int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		next:    1,
		max:     maxLines,
		anchors: make(map[uint64]int),
		logger:  logger,
	}
}

// Append assigns the next sequence to l, adds it to the buffer and returns
// the sequence. The caller must not reuse l across stores.
func (s *Store) Append(l *Line) uint64 {
	s.mu.Lock()
	l.Seq = s.next
	s.next++
	s.lines = append(s.lines, l)
	capLines, over := s.evictLocked()
	s.mu.Unlock()
	s.warnOverCap(capLines, over)
	return l.Seq
}

// AppendMarker inserts a synthetic marker line at the newest position. The
// line the marker points at (the newest real line at insertion time) becomes
// eviction-protected for as long as the store lives.
func (s *Store) AppendMarker(label string, now time.Time) *Line {
	s.mu.Lock()
	var anchor uint64
	if n := len(s.lines); n > 0 {
		anchor = s.lines[n-1].Seq
	}
	l := &Line{
		Time:   now,
		Raw:    markerText(now, label),
		Marker: true,
		Label:  label,
		Anchor: anchor,
	}
	l.Seq = s.next
	s.next++
	s.lines = append(s.lines, l)
	if anchor != 0 {
		s.anchors[anchor]++
	}
	capLines, over := s.evictLocked()
	s.mu.Unlock()
	s.warnOverCap(capLines, over)
	return l
}

func markerText(now time.Time, label string) string {
	ts := now.Format("15:04:05")
	if label == "" {
		return fmt.Sprintf("------ MARK %s ------", ts)
	}
	return fmt.Sprintf("------ MARK %s %s ------", ts, label)
}

// Get returns the line with the exact sequence, or nil if it was evicted or
// never existed.
func (s *Store) Get(seq uint64) *Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ceilLocked(seq)
	if i < len(s.lines) && s.lines[i].Seq == seq {
		return s.lines[i]
	}
	return nil
}

// Range returns up to count lines starting at the first line whose sequence
// is >= first, in ascending order.
func (s *Store) Range(first uint64, count int) []*Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ceilLocked(first)
	if i >= len(s.lines) || count <= 0 {
		return nil
	}
	j := i + count
	if j > len(s.lines) {
		j = len(s.lines)
	}
	out := make([]*Line, j-i)
	copy(out, s.lines[i:j])
	return out
}

// RangeBefore returns up to count lines whose sequence is <= last, the
// newest such lines, in ascending order.
func (s *Store) RangeBefore(last uint64, count int) []*Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ceilLocked(last)
	if j < len(s.lines) && s.lines[j].Seq == last {
		j++
	}
	if j == 0 || count <= 0 {
		return nil
	}
	i := j - count
	if i < 0 {
		i = 0
	}
	out := make([]*Line, j-i)
	copy(out, s.lines[i:j])
	return out
}

// RangeSeq returns every retained line with lo <= sequence <= hi, ascending.
func (s *Store) RangeSeq(lo, hi uint64) []*Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hi < lo {
		return nil
	}
	i := s.ceilLocked(lo)
	j := s.ceilLocked(hi + 1)
	if i >= j {
		return nil
	}
	out := make([]*Line, j-i)
	copy(out, s.lines[i:j])
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func (s *Store) Newest() *Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.lines); n > 0 {
		return s.lines[n-1]
	}
	return nil
}

func (s *Store) Oldest() *Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) > 0 {
		return s.lines[0]
	}
	return nil
}

// SetMax adjusts the line cap and evicts immediately if the buffer is over
// the new cap.
func (s *Store) SetMax(max int) {
	s.mu.Lock()
	s.max = max
	capLines, over := s.evictLocked()
	s.mu.Unlock()
	s.warnOverCap(capLines, over)
}

// PinRange protects [lo, hi] from eviction while a selection covers it.
func (s *Store) PinRange(lo, hi uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hi < lo {
		lo, hi = hi, lo
	}
	s.pinLo, s.pinHi = lo, hi
}

func (s *Store) Unpin() {
	s.mu.Lock()
	s.pinLo, s.pinHi = 0, 0
	capLines, over := s.evictLocked()
	s.mu.Unlock()
	s.warnOverCap(capLines, over)
}

// Clear drops all lines but keeps the sequence counter, so lines appended
// after a clear still order strictly after everything that came before.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.anchors = make(map[uint64]int)
	s.pinLo, s.pinHi = 0, 0
	s.overflow = false
}

func (s *Store) ceilLocked(seq uint64) int {
	return sort.Search(len(s.lines), func(i int) bool {
		return s.lines[i].Seq >= seq
	})
}

// evictLocked trims the buffer to the cap. The first time protected lines
// push the buffer past the cap it returns the cap and line count so the
// caller can log the overflow once the lock is released; a slow slog handler
// must not stall appends.
func (s *Store) evictLocked() (capLines, over int) {
	if s.max <= 0 {
		return 0, 0
	}
	for len(s.lines) > s.max && s.evictOneLocked() {
	}
	if len(s.lines) > s.max {
		if !s.overflow {
			s.overflow = true
			return s.max, len(s.lines)
		}
		return 0, 0
	}
	s.overflow = false
	return 0, 0
}

func (s *Store) warnOverCap(capLines, over int) {
	if over > 0 {
		s.logger.Warn("log buffer over cap, remaining lines are protected",
			"cap", capLines, "lines", over)
	}
}

// evictOneLocked removes the oldest unprotected line. The newest line is
// never a victim, so a fully protected buffer grows past the cap instead of
// dropping fresh input. Protected lines are rare, so the scan usually stops
// at index 0.
func (s *Store) evictOneLocked() bool {
	for j := 0; j < len(s.lines)-1; j++ {
		if s.protectedLocked(s.lines[j]) {
			continue
		}
		copy(s.lines[1:j+1], s.lines[:j])
		s.lines[0] = nil
		s.lines = s.lines[1:]
		return true
	}
	return false
}

func (s *Store) protectedLocked(l *Line) bool {
	if l.Marker {
		return true
	}
	if s.anchors[l.Seq] > 0 {
		return true
	}
	return s.pinLo != 0 && l.Seq >= s.pinLo && l.Seq <= s.pinHi
}
