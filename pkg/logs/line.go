// Package logs is the real-time log engine: a bounded append-only store,
// reconnecting stream sessions, lazy parsing with pattern highlighting and
// structured-data expansion, filtering, selection, markers, and a virtual
// viewport with a render cache. Frontends (the TUI and the logs CLI) hold a
// View and never touch the runtime stream directly.
package logs

import (
	"sync/atomic"
	"time"

	"github.com/modoterra/wharf/pkg/logs/highlight"
	"github.com/modoterra/wharf/pkg/logs/structured"
)

// Line is one ingested log line. Identity is Seq, assigned by the Store at
// append time and strictly increasing for the life of a view. Raw is
// normalized at ingest (control sequences stripped, tabs expanded) and
// never mutated afterwards.
type Line struct {
	Seq      uint64
	Session  uint64
	SourceID string
	Time     time.Time
	Raw      string

	// Marker lines are synthetic bookmarks inserted by the user. Anchor is
	// the sequence that was newest when the marker was placed.
	Marker bool
	Label  string
	Anchor uint64

	// Expanded switches the rendering to the structured-data block form.
	// Owned by the render goroutine.
	Expanded bool

	parsed atomic.Pointer[Parsed]

	// filter memoization, owned by the render goroutine
	filterEpoch uint64
	filterOK    bool
}

// Parsed returns the memoized analysis, or nil if the line has not been
// parsed yet.
func (l *Line) Parsed() *Parsed {
	return l.parsed.Load()
}

// Parsed is the lazily computed analysis of a line: highlight spans over
// the whole raw text, and the location of an embedded structured payload
// if one was detected.
type Parsed struct {
	Spans []highlight.Span
	Block structured.Block

	pretty atomic.Pointer[[]structured.StyledLine]
}

// Pretty returns the expanded block rendering for raw, formatting it on
// first use and memoizing the result. Returns nil for plain lines and for
// payloads that fail to format.
func (p *Parsed) Pretty(raw string) []structured.StyledLine {
	if p.Block.Kind == structured.None {
		return nil
	}
	if cached := p.pretty.Load(); cached != nil {
		return *cached
	}
	payload := raw[p.Block.Start:p.Block.End]
	var lines []structured.StyledLine
	var err error
	switch p.Block.Kind {
	case structured.JSON:
		lines, err = structured.FormatJSON(payload)
	case structured.XML:
		lines, err = structured.FormatXML(payload)
	}
	if err != nil {
		lines = nil
	}
	p.pretty.Store(&lines)
	return lines
}
