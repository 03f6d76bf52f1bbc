package logs

import (
	"context"
	"log/slog"
	"time"

	"github.com/modoterra/wharf/pkg/logs/structured"
	"github.com/modoterra/wharf/pkg/runtime"
)

// ViewConfig sizes one log view. Values are read when the view opens;
// changing settings afterwards goes through Restart.
type ViewConfig struct {
	// MaxLines caps the store; eviction past it spares protected lines.
	MaxLines int
	// Tail bounds the backlog each source replays on open.
	Tail int
	// Since bounds how far back the backlog reaches. Zero means unbounded.
	Since time.Duration
	// Follow keeps streams attached for new lines.
	Follow bool
	// CacheSize is the render cache entry count.
	CacheSize int
	// Margin is the pre-parse lookahead in lines on each side of the
	// viewport.
	Margin int
}

func (c ViewConfig) withDefaults() ViewConfig {
	if c.MaxLines <= 0 {
		c.MaxLines = 2000
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	if c.Margin <= 0 {
		c.Margin = 30
	}
	return c
}

// View is the engine behind one log pane: a store fed by stream sessions,
// narrowed by a filter, windowed by a viewport, with selection and markers
// on top. All methods except Open, Close and Restart belong to the render
// goroutine.
type View struct {
	cfg    ViewConfig
	logger *slog.Logger

	store  *Store
	filter *Filter
	cache  *RenderCache
	pre    *Preparser
	sel    *Selection
	vp     *Viewport
	mgr    *SessionManager

	cancel  context.CancelFunc
	sources []string
}

func NewView(streamer runtime.Streamer, cfg ViewConfig, logger *slog.Logger) *View {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := &View{cfg: cfg, logger: logger}
	v.store = NewStore(cfg.MaxLines, logger)
	v.filter = NewFilter()
	v.cache = NewRenderCache(cfg.CacheSize)
	v.pre = NewPreparser()
	v.sel = NewSelection(v.store)
	v.vp = NewViewport(v.store, v.filter, v.cache, v.pre, v.sel, cfg.Margin)
	v.mgr = NewSessionManager(streamer, v.store, logger)
	return v
}

// Open starts streaming the given sources into the view and spawns the
// pre-parse worker. Reopening supersedes previous sessions.
func (v *View) Open(ctx context.Context, sources []string) {
	if v.cancel != nil {
		v.cancel()
	}
	ctx, v.cancel = context.WithCancel(ctx)
	v.sources = append([]string(nil), sources...)
	go v.pre.Run(ctx)
	v.mgr.Open(ctx, sources, v.openOptions())
}

func (v *View) openOptions() OpenOptions {
	opts := OpenOptions{Tail: v.cfg.Tail, Follow: v.cfg.Follow}
	if v.cfg.Since > 0 {
		opts.Since = time.Now().Add(-v.cfg.Since)
	}
	return opts
}

// Close stops streaming and background parsing. The store keeps its lines
// so a closed view can still be read.
func (v *View) Close() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.mgr.Close()
}

// Restart applies a new configuration and reopens the same sources from
// scratch: the buffer, cache and selection reset, the filter survives.
func (v *View) Restart(ctx context.Context, cfg ViewConfig) {
	v.cfg = cfg.withDefaults()
	v.sel.Clear()
	v.store.Clear()
	v.store.SetMax(v.cfg.MaxLines)
	v.cache.Purge()
	v.vp.margin = v.cfg.Margin
	v.vp.ScrollToBottom()
	v.Open(ctx, v.sources)
}

func (v *View) Config() ViewConfig {
	return v.cfg
}

func (v *View) Store() *Store {
	return v.store
}

func (v *View) Filter() *Filter {
	return v.filter
}

// Events surfaces session manager notifications for the frontend loop.
func (v *View) Events() <-chan Event {
	return v.mgr.Events()
}

// Status reports per-source stream status.
func (v *View) Status() map[string]StreamStatus {
	return v.mgr.Status()
}

func (v *View) Resize(width, height int) {
	v.vp.Resize(width, height)
}

func (v *View) Render() []Row {
	return v.vp.Render()
}

func (v *View) Scroll(delta int) {
	v.vp.Scroll(delta)
}

func (v *View) ScrollToTop() {
	v.vp.ScrollToTop()
}

func (v *View) ScrollToBottom() {
	v.vp.ScrollToBottom()
}

func (v *View) Follow() bool {
	return v.vp.Follow()
}

// ToggleFollow flips auto-follow and reports the new state. Enabling it
// jumps to the bottom on the next render.
func (v *View) ToggleFollow() bool {
	if v.vp.Follow() {
		v.vp.Unfollow()
	} else {
		v.vp.ScrollToBottom()
	}
	return v.vp.Follow()
}

func (v *View) VisibleRange() (first, last uint64) {
	return v.vp.VisibleRange()
}

// SetFilter swaps the filter expression; see Filter.Set for the failure
// contract.
func (v *View) SetFilter(expr string) error {
	return v.filter.Set(expr)
}

// ToggleExpandAt flips the structured-block expansion of the line at seq.
// Returns false when the line is gone or has no detectable payload.
func (v *View) ToggleExpandAt(seq uint64) bool {
	l := v.store.Get(seq)
	if l == nil {
		return false
	}
	p := Parse(l)
	if p.Block.Kind == structured.None {
		return false
	}
	l.Expanded = !l.Expanded
	return true
}

// AddMarker drops a marker at the newest position and returns it.
func (v *View) AddMarker(label string) *Line {
	return v.store.AppendMarker(label, time.Now())
}

func (v *View) BeginSelection(seq uint64, off int) {
	v.sel.Begin(seq, off)
}

func (v *View) ExtendSelection(seq uint64, off int) {
	v.sel.Extend(seq, off)
}

func (v *View) SelectionActive() bool {
	return v.sel.Active()
}

// SelectionText parses the covered lines synchronously and returns the
// selected text.
func (v *View) SelectionText() string {
	return v.sel.Text()
}

func (v *View) ClearSelection() {
	v.sel.Clear()
}
