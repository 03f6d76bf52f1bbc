package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/wharf/pkg/clipboard"
	"github.com/modoterra/wharf/pkg/config"
	"github.com/modoterra/wharf/pkg/logs"
	"github.com/modoterra/wharf/pkg/runtime"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneSources Pane = iota
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeSelect
	ModeSettings
	ModeCopy
)

// doubleClickWindow is how close two presses on the same row must be to
// count as a double click.
const doubleClickWindow = 400 * time.Millisecond

// entry is one row of the source list: a stack header or a container.
type entry struct {
	header bool
	stack  string
	source runtime.Source
}

// App is the root Bubble Tea model.
type App struct {
	cfg     config.Config
	rt      runtime.Client
	poller  *runtime.Poller
	watcher *config.Watcher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Source list
	entries  []entry
	selected int

	// Open log view
	view        *logs.View
	openName    string
	openStack   bool
	openCount   int
	stats       runtime.Stats
	haveStats   bool
	statsCancel context.CancelFunc

	// UI
	activePane Pane
	mode       Mode
	filter     textinput.Model
	prevFilter string
	filterErr  string
	settings   *SettingsModel
	width      int
	height     int

	// Keyboard selection cursor (ModeSelect)
	selSeq uint64

	// Double-click detection
	lastClickAt  time.Time
	lastClickRow int

	statusMsg   string
	pendingCopy string
}

// New creates the TUI app model. watcher and logger may be nil.
func New(cfg config.Config, rt runtime.Client, watcher *config.Watcher, logger *slog.Logger) App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fi := textinput.New()
	fi.Placeholder = "filter (regexp)..."
	fi.CharLimit = 256

	ctx, cancel := context.WithCancel(context.Background())
	return App{
		cfg:     cfg,
		rt:      rt,
		poller:  runtime.NewPoller(rt, cfg.RefreshEvery(), logger),
		watcher: watcher,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		filter:  fi,
	}
}

// Init starts the source poller and, when present, the config watcher.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.SetWindowTitle("wharf"),
		a.startPoller(),
		waitSources(a.poller),
	}
	if a.watcher != nil {
		cmds = append(cmds, a.startWatcher(), waitConfig(a.watcher))
	}
	return tea.Batch(cmds...)
}

// sourcesMsg carries a fresh source snapshot after a poll delta.
type sourcesMsg struct{ sources []runtime.Source }

// logEventMsg carries a session manager event for one view. Events from a
// superseded view are dropped by comparing the pointer.
type logEventMsg struct {
	view *logs.View
	ev   logs.Event
}

// statsStartedMsg delivers the stats channel once the watch is open.
type statsStartedMsg struct{ ch <-chan runtime.Stats }

// statsMsg carries one usage sample plus the channel to keep reading.
type statsMsg struct {
	stats runtime.Stats
	ch    <-chan runtime.Stats
}

// configMsg carries a reloaded config snapshot.
type configMsg struct{ cfg config.Config }

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func (a App) startPoller() tea.Cmd {
	return func() tea.Msg {
		a.poller.Run(a.ctx)
		return nil
	}
}

func (a App) startWatcher() tea.Cmd {
	return func() tea.Msg {
		a.watcher.Run(a.ctx)
		return nil
	}
}

func waitSources(p *runtime.Poller) tea.Cmd {
	return func() tea.Msg {
		<-p.Updates()
		return sourcesMsg{sources: p.Sources()}
	}
}

func waitLogEvents(v *logs.View) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-v.Events()
		if !ok {
			return nil
		}
		return logEventMsg{view: v, ev: ev}
	}
}

func waitStats(ch <-chan runtime.Stats) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return statsMsg{stats: s, ch: ch}
	}
}

func waitConfig(w *config.Watcher) tea.Cmd {
	return func() tea.Msg {
		cfg, ok := <-w.Updates()
		if !ok {
			return nil
		}
		return configMsg{cfg: cfg}
	}
}

func watchStats(ctx context.Context, w runtime.StatsWatcher, sourceID string) tea.Cmd {
	return func() tea.Msg {
		ch, err := w.WatchStats(ctx, sourceID)
		if err != nil {
			return errorMsg{err}
		}
		return statsStartedMsg{ch: ch}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resizeView()
		return a, nil

	case sourcesMsg:
		a.entries = buildEntries(msg.sources)
		if a.selected >= len(a.entries) {
			a.selected = max(0, len(a.entries)-1)
		}
		return a, waitSources(a.poller)

	case logEventMsg:
		if msg.view != a.view {
			return a, nil
		}
		// The render in View() reads the store directly; the event only
		// needs to trigger a redraw and be re-armed.
		return a, waitLogEvents(a.view)

	case statsStartedMsg:
		return a, waitStats(msg.ch)

	case statsMsg:
		a.stats = msg.stats
		a.haveStats = true
		return a, waitStats(msg.ch)

	case configMsg:
		a.cfg = msg.cfg
		a.statusMsg = "config reloaded, applies to newly opened views"
		return a, waitConfig(a.watcher)

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.MouseMsg:
		return a.handleMouse(msg)

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.mode {
	case ModeFilter:
		return a.handleFilterKey(msg)
	case ModeSelect:
		return a.handleSelectKey(msg)
	case ModeSettings:
		if a.settings != nil {
			return a.settings.HandleKey(a, msg)
		}
		a.mode = ModeNormal
		return a, nil
	case ModeCopy:
		a.mode = ModeNormal
		a.pendingCopy = ""
		return a, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a.quit()

	case "tab":
		if a.view != nil {
			if a.activePane == PaneSources {
				a.activePane = PaneLogs
			} else {
				a.activePane = PaneSources
			}
		}

	case "j", "down":
		if a.activePane == PaneSources {
			if a.selected < len(a.entries)-1 {
				a.selected++
			}
		} else if a.view != nil {
			a.view.Scroll(1)
		}
	case "k", "up":
		if a.activePane == PaneSources {
			if a.selected > 0 {
				a.selected--
			}
		} else if a.view != nil {
			a.view.Scroll(-1)
		}
	case "ctrl+d", "pgdown":
		if a.view != nil {
			a.view.Scroll(a.logRowCount() / 2)
		}
	case "ctrl+u", "pgup":
		if a.view != nil {
			a.view.Scroll(-a.logRowCount() / 2)
		}
	case "g", "home":
		if a.view != nil {
			a.view.ScrollToTop()
		}
	case "G", "end":
		if a.view != nil {
			a.view.ScrollToBottom()
		}

	case "enter":
		if a.activePane == PaneSources {
			return a.openSelected()
		}

	case "/":
		if a.view != nil {
			a.mode = ModeFilter
			a.prevFilter = a.view.Filter().Expression()
			a.filter.SetValue(a.prevFilter)
			a.filter.CursorEnd()
			a.filter.Focus()
			return a, textinput.Blink
		}

	case "f":
		if a.view != nil {
			if a.view.ToggleFollow() {
				a.statusMsg = "following"
			} else {
				a.statusMsg = "follow off"
			}
		}

	case "m":
		if a.view != nil {
			a.view.AddMarker("")
			a.statusMsg = "marker added"
		}

	case "e":
		return a.toggleExpand()

	case "v":
		if a.view != nil {
			if seq := a.selectionStart(); seq != 0 {
				a.mode = ModeSelect
				a.selSeq = seq
				a.view.BeginSelection(seq, 0)
				a.extendToLineEnd(seq)
				a.statusMsg = "select: j/k extend, y copy, esc cancel"
			}
		}

	case "y":
		return a.copySelection()

	case "c":
		if a.pendingCopy != "" {
			a.mode = ModeCopy
		}

	case "s":
		if a.view != nil {
			a.settings = NewSettings(a.view.Config())
			a.mode = ModeSettings
		}

	case "esc":
		if a.view != nil && a.view.SelectionActive() {
			a.view.ClearSelection()
		} else if a.activePane == PaneLogs {
			a.activePane = PaneSources
		}
	}

	return a, nil
}

func (a App) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.filter.Blur()
		a.filterErr = ""
		a.filter.SetValue(a.prevFilter)
		if a.view != nil {
			a.view.SetFilter(a.prevFilter)
		}
		return a, nil
	case "enter":
		a.mode = ModeNormal
		a.filter.Blur()
		return a, nil
	default:
		var cmd tea.Cmd
		a.filter, cmd = a.filter.Update(msg)
		if a.view != nil {
			// The filter applies live; a bad expression keeps the previous
			// predicate and the error is shown next to the input.
			if err := a.view.SetFilter(a.filter.Value()); err != nil {
				a.filterErr = err.Error()
			} else {
				a.filterErr = ""
			}
		}
		return a, cmd
	}
}

func (a App) handleSelectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		if a.view != nil {
			a.view.ClearSelection()
		}
		return a, nil
	case "y", "enter":
		a.mode = ModeNormal
		return a.copySelection()
	case "j", "down":
		a.moveSelectCursor(1)
		return a, nil
	case "k", "up":
		a.moveSelectCursor(-1)
		return a, nil
	}
	return a, nil
}

// moveSelectCursor walks the keyboard selection focus one line at a time,
// skipping lines the store has already evicted.
func (a *App) moveSelectCursor(dir int) {
	if a.view == nil {
		return
	}
	store := a.view.Store()
	next := a.selSeq
	for {
		if dir > 0 {
			next++
		} else {
			if next <= 1 {
				return
			}
			next--
		}
		if l := store.Get(next); l != nil {
			a.selSeq = next
			a.extendToLineEnd(next)
			return
		}
		newest := store.Newest()
		if newest == nil || next > newest.Seq {
			return
		}
	}
}

func (a *App) extendToLineEnd(seq uint64) {
	if l := a.view.Store().Get(seq); l != nil {
		a.view.ExtendSelection(seq, len(l.Raw))
	}
}

// selectionStart picks the line a keyboard selection begins at: the last
// visible line, so extending upward reads naturally while following.
func (a App) selectionStart() uint64 {
	_, last := a.view.VisibleRange()
	if last == 0 {
		if newest := a.view.Store().Newest(); newest != nil {
			return newest.Seq
		}
	}
	return last
}

func (a App) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSettings || a.mode == ModeCopy || a.view == nil {
		return a, nil
	}

	switch {
	case msg.Button == tea.MouseButtonWheelUp && msg.Action == tea.MouseActionPress:
		a.view.Scroll(-3)
		return a, nil
	case msg.Button == tea.MouseButtonWheelDown && msg.Action == tea.MouseActionPress:
		a.view.Scroll(3)
		return a, nil
	}

	row, col, ok := a.logCell(msg.X, msg.Y)
	if !ok {
		return a, nil
	}
	rows := a.view.Render()
	if row >= len(rows) {
		return a, nil
	}
	target := rows[row]
	off := logs.ByteOffsetForColumn(target.Text, col)

	switch {
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		if time.Since(a.lastClickAt) < doubleClickWindow && a.lastClickRow == row {
			a.lastClickAt = time.Time{}
			a.view.ClearSelection()
			if !a.view.ToggleExpandAt(target.Seq) {
				a.statusMsg = "no structured payload on this line"
			}
			return a, nil
		}
		a.lastClickAt = time.Now()
		a.lastClickRow = row
		a.activePane = PaneLogs
		a.view.ClearSelection()
		a.view.BeginSelection(target.Seq, off)
		return a, nil

	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionMotion:
		if a.view.SelectionActive() {
			a.view.ExtendSelection(target.Seq, off)
		}
		return a, nil
	}

	return a, nil
}

func (a App) openSelected() (tea.Model, tea.Cmd) {
	e := a.selectedEntry()
	if e == nil {
		return a, nil
	}

	var ids []string
	if e.header {
		for _, other := range a.entries {
			if !other.header && other.stack == e.stack {
				ids = append(ids, other.source.ID)
			}
		}
		a.openName = e.stack
		a.openStack = true
	} else {
		ids = []string{e.source.ID}
		a.openName = e.source.Name
		a.openStack = false
	}
	if len(ids) == 0 {
		return a, nil
	}
	a.openCount = len(ids)

	if a.view != nil {
		a.view.Close()
	}
	if a.statsCancel != nil {
		a.statsCancel()
		a.statsCancel = nil
	}
	a.haveStats = false
	a.filter.SetValue("")
	a.filterErr = ""

	a.view = logs.NewView(a.rt, logs.ViewConfig{
		MaxLines: a.cfg.Log.MaxLines,
		Tail:     a.cfg.Log.Tail,
		Since:    a.cfg.SinceWindow(),
		Follow:   true,
	}, a.logger)
	a.view.Open(a.ctx, ids)
	a.resizeView()
	a.activePane = PaneLogs
	a.statusMsg = ""

	cmds := []tea.Cmd{waitLogEvents(a.view)}
	if !a.openStack {
		sctx, cancel := context.WithCancel(a.ctx)
		a.statsCancel = cancel
		cmds = append(cmds, watchStats(sctx, a.rt, ids[0]))
	}
	return a, tea.Batch(cmds...)
}

func (a App) toggleExpand() (tea.Model, tea.Cmd) {
	if a.view == nil {
		return a, nil
	}
	_, seq := a.view.VisibleRange()
	if a.view.SelectionActive() {
		seq = a.selSeq
	}
	if seq == 0 {
		return a, nil
	}
	if !a.view.ToggleExpandAt(seq) {
		a.statusMsg = "no structured payload on this line"
	}
	return a, nil
}

func (a App) copySelection() (tea.Model, tea.Cmd) {
	if a.view == nil || !a.view.SelectionActive() {
		a.statusMsg = "nothing selected"
		return a, nil
	}
	text := a.view.SelectionText()
	if text == "" {
		a.statusMsg = "nothing selected"
		return a, nil
	}
	if err := clipboard.Write(text); err != nil {
		// No native clipboard; hand the text to the terminal via OSC52 and
		// keep it around for manual copy.
		a.pendingCopy = text
		a.statusMsg = "clipboard unavailable, sent via terminal escape (press c to display)"
		if err := clipboard.WriteOSC52(os.Stderr, text); err != nil {
			a.statusMsg = "clipboard unavailable, press c to display"
		}
		return a, nil
	}
	a.statusMsg = fmt.Sprintf("copied %d bytes", len(text))
	return a, nil
}

func (a App) quit() (tea.Model, tea.Cmd) {
	if a.view != nil {
		a.view.Close()
	}
	a.cancel()
	return a, tea.Quit
}

func (a *App) resizeView() {
	if a.view == nil {
		return
	}
	w, h := a.logPaneSize()
	a.view.Resize(w, h)
}

func (a App) selectedEntry() *entry {
	if a.selected < 0 || a.selected >= len(a.entries) {
		return nil
	}
	return &a.entries[a.selected]
}

// buildEntries flattens the grouped source list into list rows: one header
// per named stack, then its members, then standalone containers.
func buildEntries(sources []runtime.Source) []entry {
	var out []entry
	for _, st := range runtime.GroupByStack(sources) {
		if st.Name != "" {
			out = append(out, entry{header: true, stack: st.Name})
		}
		for _, s := range st.Sources {
			out = append(out, entry{stack: st.Name, source: s})
		}
	}
	return out
}
