package logs

import "github.com/modoterra/wharf/pkg/logs/highlight"

// Viewport maps the filtered line stream onto a fixed-height window of
// terminal rows. The anchor is the top visible row, addressed as a line
// sequence plus a row index within that line (expanded lines span several
// rows). While following, the anchor is recomputed from the newest line on
// every render; a manual scroll up breaks follow until an explicit jump
// back to the bottom.
//
// Owned by the render goroutine.
type Viewport struct {
	store  *Store
	filter *Filter
	cache  *RenderCache
	pre    *Preparser
	sel    *Selection

	width  int
	height int
	margin int
	follow bool

	seq   uint64
	inner int

	firstSeq uint64
	lastSeq  uint64
}

func NewViewport(store *Store, filter *Filter, cache *RenderCache, pre *Preparser, sel *Selection, margin int) *Viewport {
	return &Viewport{
		store:  store,
		filter: filter,
		cache:  cache,
		pre:    pre,
		sel:    sel,
		margin: margin,
		follow: true,
	}
}

func (v *Viewport) Resize(width, height int) {
	v.width = width
	v.height = height
}

func (v *Viewport) Follow() bool {
	return v.follow
}

// ScrollToBottom re-enables follow; the next render pins to the newest line.
func (v *Viewport) ScrollToBottom() {
	v.follow = true
}

// Unfollow freezes the viewport where it is instead of tracking new lines.
func (v *Viewport) Unfollow() {
	if !v.follow {
		return
	}
	v.alignBottom()
	v.follow = false
}

func (v *Viewport) ScrollToTop() {
	v.follow = false
	if first := v.nextVisibleFrom(0); first != nil {
		v.seq, v.inner = first.Seq, 0
	} else {
		v.seq, v.inner = 0, 0
	}
}

// Scroll moves the window by delta rows. Negative is up and breaks follow;
// positive is down, clamped so the window never runs past the last row.
func (v *Viewport) Scroll(delta int) {
	if delta == 0 || v.height <= 0 {
		return
	}
	if v.follow {
		v.alignBottom()
	}
	v.ensureAnchor()
	if delta < 0 {
		v.follow = false
		v.moveUp(-delta)
		return
	}
	v.moveDown(delta)
	bSeq, bInner := v.bottomAnchor()
	if v.seq > bSeq || (v.seq == bSeq && v.inner > bInner) {
		v.seq, v.inner = bSeq, bInner
	}
}

// Render produces the visible rows, parsing on demand whatever the
// pre-parser has not warmed yet, and resets the pre-parse window around the
// new viewport.
func (v *Viewport) Render() []Row {
	if v.height <= 0 {
		return nil
	}
	if v.follow {
		v.alignBottom()
	} else {
		v.ensureAnchor()
	}
	rows := v.collect()
	if len(rows) > 0 {
		v.firstSeq = rows[0].Seq
		v.lastSeq = rows[len(rows)-1].Seq
	} else {
		v.firstSeq, v.lastSeq = 0, 0
	}
	v.warm()
	v.overlaySelection(rows)
	return rows
}

// VisibleRange reports the sequence span of the most recent render.
func (v *Viewport) VisibleRange() (first, last uint64) {
	return v.firstSeq, v.lastSeq
}

// rowsOf returns the shaped rows for one line, from the cache when possible.
// Row 0 is the line itself; expanded lines append their block rows, indented
// two columns with spans shifted to match.
func (v *Viewport) rowsOf(l *Line) []Row {
	rows, ok := v.cache.Get(l.Seq, l.Expanded, v.filter.Epoch())
	if ok {
		return rows
	}
	p := Parse(l)
	rows = []Row{{
		Seq:     l.Seq,
		Text:    l.Raw,
		Spans:   p.Spans,
		Marker:  l.Marker,
		Offset:  0,
		SelFrom: -1,
		SelTo:   -1,
	}}
	if l.Expanded {
		for i, sl := range p.Pretty(l.Raw) {
			rows = append(rows, Row{
				Seq:     l.Seq,
				Text:    "  " + sl.Text,
				Spans:   shiftSpans(sl.Spans, 2),
				Offset:  i + 1,
				SelFrom: -1,
				SelTo:   -1,
			})
		}
	}
	v.cache.Add(l.Seq, l.Expanded, v.filter.Epoch(), rows)
	return rows
}

func (v *Viewport) rowCount(l *Line) int {
	return len(v.rowsOf(l))
}

// collect gathers up to height rows starting at the anchor, pulling the
// window up when the stream ends early so the last page stays full.
func (v *Viewport) collect() []Row {
	cur := v.store.Get(v.seq)
	if cur == nil || !v.filter.Matches(cur) {
		return nil
	}
	rows := make([]Row, 0, v.height)
	lr := v.rowsOf(cur)
	for i := v.inner; i < len(lr) && len(rows) < v.height; i++ {
		rows = append(rows, lr[i])
	}
	line := cur
	for len(rows) < v.height {
		line = v.nextVisible(line.Seq)
		if line == nil {
			break
		}
		for _, r := range v.rowsOf(line) {
			if len(rows) >= v.height {
				break
			}
			rows = append(rows, r)
		}
	}
	need := v.height - len(rows)
	for need > 0 {
		if v.inner > 0 {
			anchorLine := v.store.Get(v.seq)
			if anchorLine == nil {
				break
			}
			ar := v.rowsOf(anchorLine)
			take := min(v.inner, need)
			rows = append(append([]Row{}, ar[v.inner-take:v.inner]...), rows...)
			v.inner -= take
			need -= take
			continue
		}
		prev := v.prevVisible(v.seq)
		if prev == nil {
			break
		}
		pr := v.rowsOf(prev)
		take := min(len(pr), need)
		rows = append(append([]Row{}, pr[len(pr)-take:]...), rows...)
		v.seq = prev.Seq
		v.inner = len(pr) - take
		need -= take
	}
	return rows
}

// ensureAnchor revalidates the anchor after eviction, filter changes or
// expansion toggles, snapping to the nearest visible line.
func (v *Viewport) ensureAnchor() {
	if l := v.store.Get(v.seq); l != nil && v.filter.Matches(l) {
		if rc := v.rowCount(l); v.inner >= rc {
			v.inner = rc - 1
		}
		return
	}
	if n := v.nextVisibleFrom(v.seq); n != nil {
		v.seq, v.inner = n.Seq, 0
		return
	}
	if p := v.prevVisible(v.seq); p != nil {
		v.seq, v.inner = p.Seq, 0
		return
	}
	v.seq, v.inner = 0, 0
}

func (v *Viewport) alignBottom() {
	v.seq, v.inner = v.bottomAnchor()
}

// bottomAnchor computes the anchor that puts the last visible row on the
// bottom row of the window.
func (v *Viewport) bottomAnchor() (uint64, int) {
	cur := v.lastVisible()
	if cur == nil {
		return 0, 0
	}
	need := v.height
	for {
		rc := v.rowCount(cur)
		if rc >= need {
			return cur.Seq, rc - need
		}
		need -= rc
		prev := v.prevVisible(cur.Seq)
		if prev == nil {
			return cur.Seq, 0
		}
		cur = prev
	}
}

func (v *Viewport) moveUp(n int) {
	for n > 0 {
		if v.inner > 0 {
			step := min(v.inner, n)
			v.inner -= step
			n -= step
			continue
		}
		prev := v.prevVisible(v.seq)
		if prev == nil {
			return
		}
		v.seq = prev.Seq
		v.inner = v.rowCount(prev) - 1
		n--
	}
}

func (v *Viewport) moveDown(n int) {
	for n > 0 {
		cur := v.store.Get(v.seq)
		if cur == nil {
			return
		}
		rc := v.rowCount(cur)
		if v.inner+1 < rc {
			step := min(rc-1-v.inner, n)
			v.inner += step
			n -= step
			continue
		}
		next := v.nextVisible(v.seq)
		if next == nil {
			return
		}
		v.seq = next.Seq
		v.inner = 0
		n--
	}
}

// visibleBatch is how many lines a filtered walk inspects per store call.
const visibleBatch = 64

func (v *Viewport) nextVisible(seq uint64) *Line {
	return v.nextVisibleFrom(seq + 1)
}

func (v *Viewport) nextVisibleFrom(seq uint64) *Line {
	first := seq
	for {
		batch := v.store.Range(first, visibleBatch)
		if len(batch) == 0 {
			return nil
		}
		for _, l := range batch {
			if v.filter.Matches(l) {
				return l
			}
		}
		first = batch[len(batch)-1].Seq + 1
	}
}

func (v *Viewport) prevVisible(seq uint64) *Line {
	if seq == 0 {
		return nil
	}
	last := seq - 1
	for {
		batch := v.store.RangeBefore(last, visibleBatch)
		if len(batch) == 0 {
			return nil
		}
		for i := len(batch) - 1; i >= 0; i-- {
			if v.filter.Matches(batch[i]) {
				return batch[i]
			}
		}
		if len(batch) < visibleBatch || batch[0].Seq <= 1 {
			return nil
		}
		last = batch[0].Seq - 1
	}
}

func (v *Viewport) lastVisible() *Line {
	newest := v.store.Newest()
	if newest == nil {
		return nil
	}
	if v.filter.Matches(newest) {
		return newest
	}
	return v.prevVisible(newest.Seq)
}

// warm hands the pre-parser the lookahead window around the viewport. Lines
// already parsed are excluded so nothing is analyzed twice.
func (v *Viewport) warm() {
	if v.pre == nil {
		return
	}
	lo := uint64(1)
	if v.firstSeq > uint64(v.margin) {
		lo = v.firstSeq - uint64(v.margin)
	}
	hi := v.lastSeq + uint64(v.margin)
	if hi == 0 {
		v.pre.Reset(nil)
		return
	}
	var batch []*Line
	for _, l := range v.store.RangeSeq(lo, hi) {
		if l.Parsed() == nil {
			batch = append(batch, l)
		}
	}
	v.pre.Reset(batch)
}

func (v *Viewport) overlaySelection(rows []Row) {
	if v.sel == nil || !v.sel.Active() {
		return
	}
	for i := range rows {
		if rows[i].Offset != 0 {
			continue
		}
		if from, to, ok := v.sel.RowBounds(rows[i].Seq, len(rows[i].Text)); ok {
			rows[i].SelFrom = from
			rows[i].SelTo = to
		}
	}
}

func shiftSpans(spans []highlight.Span, by int) []highlight.Span {
	if len(spans) == 0 {
		return nil
	}
	out := make([]highlight.Span, len(spans))
	for i, s := range spans {
		out[i] = highlight.Span{Start: s.Start + by, End: s.End + by, Cat: s.Cat}
	}
	return out
}
