package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/wharf/pkg/logs"
	"github.com/modoterra/wharf/pkg/logs/highlight"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("24"))

	stackStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	stateRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stateStopped   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	stateRestart   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statePaused    = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	stateUnknown   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	streamOKStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	streamBadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("39"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	selTextStyle = lipgloss.NewStyle().Reverse(true)
	markerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

// Styles per highlight category. Anything unlisted renders with the
// terminal default.
var catStyles = map[highlight.Category]lipgloss.Style{
	highlight.CatQuoted:     lipgloss.NewStyle().Foreground(lipgloss.Color("150")),
	highlight.CatTimestamp:  lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
	highlight.CatLevelError: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	highlight.CatLevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	highlight.CatLevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	highlight.CatLevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	highlight.CatLevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	highlight.CatURL:        lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("33")),
	highlight.CatEmail:      lipgloss.NewStyle().Foreground(lipgloss.Color("37")),
	highlight.CatPath:       lipgloss.NewStyle().Foreground(lipgloss.Color("108")),
	highlight.CatUUID:       lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
	highlight.CatMAC:        lipgloss.NewStyle().Foreground(lipgloss.Color("139")),
	highlight.CatIP:         lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	highlight.CatHex:        lipgloss.NewStyle().Foreground(lipgloss.Color("97")),
	highlight.CatHTTPMethod: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
	highlight.CatHTTPStatus: lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
	highlight.CatKey:        lipgloss.NewStyle().Foreground(lipgloss.Color("72")),
	highlight.CatSize:       lipgloss.NewStyle().Foreground(lipgloss.Color("115")),
	highlight.CatDuration:   lipgloss.NewStyle().Foreground(lipgloss.Color("115")),
	highlight.CatBool:       lipgloss.NewStyle().Foreground(lipgloss.Color("173")),
	highlight.CatNull:       lipgloss.NewStyle().Foreground(lipgloss.Color("167")),
	highlight.CatNumber:     lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
	highlight.CatJSONKey:    lipgloss.NewStyle().Foreground(lipgloss.Color("81")),
	highlight.CatJSONString: lipgloss.NewStyle().Foreground(lipgloss.Color("150")),
	highlight.CatJSONNumber: lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
	highlight.CatJSONBool:   lipgloss.NewStyle().Foreground(lipgloss.Color("173")),
	highlight.CatJSONNull:   lipgloss.NewStyle().Foreground(lipgloss.Color("167")),
	highlight.CatPunct:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	highlight.CatMarker:     markerStyle,
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	if a.mode == ModeSettings && a.settings != nil {
		return paneStyle.Width(a.width - 2).Height(a.height - 2).
			Render(a.settings.View())
	}
	if a.mode == ModeCopy {
		return a.renderCopyOverlay()
	}

	listW, logW, bodyH := a.layout()

	list := a.renderSources(listW-4, bodyH-3)
	listPane := a.paneBox(PaneSources, " Containers ", list, listW-2, bodyH-2)

	logContent := a.renderLogs(logW - 4)
	logPane := a.paneBox(PaneLogs, a.logTitle(logW-4), logContent, logW-2, bodyH-2)

	body := lipgloss.JoinHorizontal(lipgloss.Top, listPane, logPane)
	return lipgloss.JoinVertical(lipgloss.Left, body, a.renderFooter())
}

// layout computes the pane split. The log pane content origin used for
// mouse mapping follows from these numbers, so keep logCell in sync.
func (a App) layout() (listW, logW, bodyH int) {
	listW = a.width / 4
	if listW < 20 {
		listW = min(20, a.width/2)
	}
	if listW > 40 {
		listW = 40
	}
	return listW, a.width - listW, a.height - 1
}

// logPaneSize is the width and row count of the log content area.
func (a App) logPaneSize() (w, h int) {
	_, logW, bodyH := a.layout()
	return max(0, logW-4), max(0, bodyH-3)
}

func (a App) logRowCount() int {
	_, h := a.logPaneSize()
	return h
}

// logCell maps terminal coordinates to a log content row and column.
// Content starts after the pane border and padding (x) and after the
// border plus title row (y).
func (a App) logCell(x, y int) (row, col int, ok bool) {
	listW, _, _ := a.layout()
	row = y - 2
	col = x - (listW + 2)
	w, h := a.logPaneSize()
	if row < 0 || row >= h || col < 0 || col >= w {
		return 0, 0, false
	}
	return row, col, true
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderSources(w, h int) string {
	if len(a.entries) == 0 {
		return dimStyle.Render("no containers")
	}

	start := 0
	if a.selected >= h {
		start = a.selected - h + 1
	}

	var lines []string
	for i := start; i < len(a.entries) && i-start < h; i++ {
		e := a.entries[i]
		var line string
		if i == a.selected {
			line = selectedStyle.Width(w).MaxWidth(w).Render(entryText(e, w))
		} else if e.header {
			line = stackStyle.Render(truncate("▾ "+e.stack, w))
		} else {
			line = entryIndent(e) + stateIndicator(e.source.State) + " " +
				truncate(e.source.Name, w-4)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func entryIndent(e entry) string {
	if e.stack != "" {
		return "  "
	}
	return " "
}

// entryText is the uncolored form of an entry, used under the selection bar
// so it reads as one block.
func entryText(e entry, w int) string {
	if e.header {
		return truncate("▾ "+e.stack, w)
	}
	return entryIndent(e) + stateGlyph(e.source.State) + " " + truncate(e.source.Name, w-4)
}

func (a App) renderLogs(w int) string {
	if a.view == nil {
		return dimStyle.Render("enter to open logs for the selected container or stack")
	}
	rows := a.view.Render()
	if len(rows) == 0 {
		if a.view.Filter().Active() {
			return dimStyle.Render("no lines match the filter")
		}
		return dimStyle.Render("waiting for log output...")
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = renderRow(r, w)
	}
	return strings.Join(out, "\n")
}

// renderRow styles one log row: highlight spans first, then the selection
// overlay, then truncation to the pane width.
func renderRow(r logs.Row, width int) string {
	s := stylize(r.Text, r.Spans, r.SelFrom, r.SelTo, r.Marker)
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

func (a App) logTitle(w int) string {
	name := a.openName
	if name == "" {
		return " Logs "
	}
	title := " " + name
	if a.openStack {
		title += fmt.Sprintf(" (%d containers)", a.openCount)
	}
	if a.haveStats {
		title += dimStyle.Render(fmt.Sprintf("  cpu %.1f%%  mem %s/%s (%.1f%%)",
			a.stats.CPUPercent,
			formatBytes(a.stats.MemUsage),
			formatBytes(a.stats.MemLimit),
			a.stats.MemPercent))
	}
	return truncate(title+" ", w)
}

func (a App) renderFooter() string {
	if a.mode == ModeFilter {
		left := "/" + a.filter.View()
		if a.filterErr != "" {
			left += "  " + errStyle.Render(a.filterErr)
		}
		return lipgloss.NewStyle().MaxWidth(a.width).Render(left)
	}

	var left string
	if a.statusMsg != "" {
		left = a.statusMsg
	} else if a.view != nil {
		left = a.streamSummary()
	}

	right := a.helpLine()
	gap := a.width - lipgloss.Width(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().MaxWidth(a.width).
		Render(left + strings.Repeat(" ", gap) + helpStyle.Render(right))
}

// streamSummary folds per-source stream statuses into one indicator plus
// the follow and filter state.
func (a App) streamSummary() string {
	worst := logs.StatusStreaming
	for _, st := range a.view.Status() {
		if st == logs.StatusRetrying {
			worst = logs.StatusRetrying
			break
		}
		if worst == logs.StatusStreaming && (st == logs.StatusConnecting || st == logs.StatusEnded) {
			worst = st
		}
	}
	var parts []string
	switch worst {
	case logs.StatusRetrying:
		parts = append(parts, streamBadStyle.Render("● retrying"))
	case logs.StatusStreaming:
		parts = append(parts, streamOKStyle.Render("● streaming"))
	default:
		parts = append(parts, dimStyle.Render("● "+worst.String()))
	}
	if a.view.Follow() {
		parts = append(parts, "follow")
	}
	if f := a.view.Filter(); f.Active() {
		parts = append(parts, "filter:"+f.Expression())
	}
	return strings.Join(parts, "  ")
}

func (a App) helpLine() string {
	switch a.mode {
	case ModeSelect:
		return "j/k:extend y:copy esc:cancel"
	default:
		if a.activePane == PaneLogs {
			return "j/k:scroll g/G:ends f:follow /:filter m:mark e:expand v:select y:copy s:settings q:quit"
		}
		return "j/k:nav enter:logs tab:pane q:quit"
	}
}

func (a App) renderCopyOverlay() string {
	body := titleStyle.Render(" Selected text ") + "\n\n" +
		a.pendingCopy + "\n\n" +
		helpStyle.Render("  copy it from the terminal, any key to close")
	return paneStyle.Width(a.width - 2).Height(a.height - 2).Render(body)
}

// styledSeg is one run of bytes sharing a style.
type styledSeg struct {
	from, to int
	cat      highlight.Category
	sel      bool
}

// stylize renders text with its highlight spans, overlaying the selection
// range in reverse video. Marker lines ignore spans and use the marker
// style for the whole line.
func stylize(text string, spans []highlight.Span, selFrom, selTo int, marker bool) string {
	if text == "" {
		return ""
	}
	var segs []styledSeg
	if marker {
		segs = []styledSeg{{from: 0, to: len(text), cat: highlight.CatMarker}}
	} else {
		pos := 0
		for _, s := range spans {
			if s.Start > pos {
				segs = append(segs, styledSeg{from: pos, to: s.Start})
			}
			segs = append(segs, styledSeg{from: s.Start, to: s.End, cat: s.Cat})
			pos = s.End
		}
		if pos < len(text) {
			segs = append(segs, styledSeg{from: pos, to: len(text)})
		}
	}

	var b strings.Builder
	for _, sg := range segs {
		for _, part := range splitSelection(sg, selFrom, selTo) {
			chunk := text[part.from:part.to]
			switch {
			case part.sel:
				b.WriteString(selTextStyle.Render(chunk))
			case part.cat == highlight.CatNone:
				b.WriteString(chunk)
			default:
				b.WriteString(catStyles[part.cat].Render(chunk))
			}
		}
	}
	return b.String()
}

// Stylize renders text with its highlight spans as an ANSI string. The logs
// subcommand shares the TUI's styling through it.
func Stylize(text string, spans []highlight.Span) string {
	return stylize(text, spans, -1, -1, false)
}

// splitSelection cuts a segment at the selection bounds, tagging the
// covered middle. Bounds of -1 mean no selection.
func splitSelection(sg styledSeg, selFrom, selTo int) []styledSeg {
	if selFrom < 0 || selTo <= selFrom || selTo <= sg.from || selFrom >= sg.to {
		return []styledSeg{sg}
	}
	var out []styledSeg
	if selFrom > sg.from {
		out = append(out, styledSeg{from: sg.from, to: selFrom, cat: sg.cat})
	}
	lo := max(sg.from, selFrom)
	hi := min(sg.to, selTo)
	out = append(out, styledSeg{from: lo, to: hi, cat: sg.cat, sel: true})
	if selTo < sg.to {
		out = append(out, styledSeg{from: selTo, to: sg.to, cat: sg.cat})
	}
	return out
}

func stateIndicator(state string) string {
	glyph := stateGlyph(state)
	switch state {
	case "running":
		return stateRunning.Render(glyph)
	case "exited", "dead", "created":
		return stateStopped.Render(glyph)
	case "restarting":
		return stateRestart.Render(glyph)
	case "paused":
		return statePaused.Render(glyph)
	default:
		return stateUnknown.Render(glyph)
	}
}

func stateGlyph(state string) string {
	switch state {
	case "running":
		return "●"
	case "restarting":
		return "↻"
	case "paused":
		return "∥"
	case "exited", "dead", "created":
		return "○"
	default:
		return "?"
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "…"
}

func formatBytes(b uint64) string {
	const (
		kib = 1024
		mib = kib * 1024
		gib = mib * 1024
	)
	switch {
	case b >= gib:
		return fmt.Sprintf("%.1fGiB", float64(b)/float64(gib))
	case b >= mib:
		return fmt.Sprintf("%.1fMiB", float64(b)/float64(mib))
	case b >= kib:
		return fmt.Sprintf("%.1fKiB", float64(b)/float64(kib))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
