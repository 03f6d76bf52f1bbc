package logs

import "strings"

// point is a selection endpoint: a line and a byte offset into its raw text.
type point struct {
	seq uint64
	off int
}

// less orders points by line, then by offset within the line.
func (p point) less(q point) bool {
	if p.seq != q.seq {
		return p.seq < q.seq
	}
	return p.off < q.off
}

// Selection tracks a text selection across lines. While active, the covered
// line range is pinned in the store so eviction cannot tear the selection
// out from under the user mid-drag. Owned by the render goroutine.
type Selection struct {
	store  *Store
	active bool
	anchor point
	focus  point
}

func NewSelection(store *Store) *Selection {
	return &Selection{store: store}
}

// Begin starts a selection at the given line and byte offset.
func (s *Selection) Begin(seq uint64, off int) {
	s.active = true
	s.anchor = point{seq: seq, off: off}
	s.focus = s.anchor
	s.store.PinRange(seq, seq)
}

// Extend moves the focus endpoint, growing or shrinking the selection.
func (s *Selection) Extend(seq uint64, off int) {
	if !s.active {
		s.Begin(seq, off)
		return
	}
	s.focus = point{seq: seq, off: off}
	lo, hi := s.ordered()
	s.store.PinRange(lo.seq, hi.seq)
}

func (s *Selection) Active() bool {
	return s.active
}

// Clear drops the selection and releases the eviction pin.
func (s *Selection) Clear() {
	if !s.active {
		return
	}
	s.active = false
	s.store.Unpin()
}

func (s *Selection) ordered() (lo, hi point) {
	if s.focus.less(s.anchor) {
		return s.focus, s.anchor
	}
	return s.anchor, s.focus
}

// RowBounds returns the selected byte range within the raw text of the line
// at seq, clamped to textLen. ok is false when the line is outside the
// selection or the covered range is empty.
func (s *Selection) RowBounds(seq uint64, textLen int) (from, to int, ok bool) {
	if !s.active {
		return 0, 0, false
	}
	lo, hi := s.ordered()
	if seq < lo.seq || seq > hi.seq {
		return 0, 0, false
	}
	from, to = 0, textLen
	if seq == lo.seq {
		from = lo.off
	}
	if seq == hi.seq {
		to = hi.off
	}
	if from < 0 {
		from = 0
	}
	if to > textLen {
		to = textLen
	}
	if from >= to {
		return 0, 0, false
	}
	return from, to, true
}

// Text extracts the selected text. Covered lines are parsed on demand,
// synchronously and exactly those, so a copy never depends on background
// work. Lines are joined with newlines in store order.
func (s *Selection) Text() string {
	if !s.active {
		return ""
	}
	lo, hi := s.ordered()
	lines := s.store.RangeSeq(lo.seq, hi.seq)
	if len(lines) == 0 {
		return ""
	}
	var parts []string
	for _, l := range lines {
		Parse(l)
		from, to := 0, len(l.Raw)
		if l.Seq == lo.seq {
			from = clamp(lo.off, 0, len(l.Raw))
		}
		if l.Seq == hi.seq {
			to = clamp(hi.off, 0, len(l.Raw))
		}
		if from > to {
			from = to
		}
		parts = append(parts, l.Raw[from:to])
	}
	return strings.Join(parts, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
