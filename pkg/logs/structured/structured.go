// Package structured detects JSON and XML payloads embedded in log lines
// and pretty-prints them as indented, category-tagged rows. Detection is
// tolerant of prefixes (timestamps, level tags) and suffixes around the
// payload; anything that fails to parse is simply not a block.
package structured

import (
	"strings"

	"github.com/modoterra/wharf/pkg/logs/highlight"
)

// Kind tags the payload variants a line can carry.
type Kind uint8

const (
	None Kind = iota
	JSON
	XML
)

// Block locates a structured payload inside a line's text as a half-open
// byte range [Start, End).
type Block struct {
	Kind  Kind
	Start int
	End   int
}

// StyledLine is one pretty-printed row of an expanded block.
type StyledLine struct {
	Text  string
	Spans []highlight.Span
}

// Detect finds the first structured payload in text. JSON wins over XML
// when both could apply.
func Detect(text string) (Block, bool) {
	if b, ok := detectJSON(text); ok {
		return b, true
	}
	if b, ok := detectXML(text); ok {
		return b, true
	}
	return Block{}, false
}

// writer accumulates pretty-printed rows with their spans.
type writer struct {
	lines   []StyledLine
	text    strings.Builder
	spans   []highlight.Span
	started bool
}

func (w *writer) add(s string, cat highlight.Category) {
	w.started = true
	start := w.text.Len()
	w.text.WriteString(s)
	if cat != highlight.CatNone {
		w.spans = append(w.spans, highlight.Span{Start: start, End: start + len(s), Cat: cat})
	}
}

// newline flushes the current row (if any) and starts the next one at the
// given indent level.
func (w *writer) newline(indent int) {
	if w.started {
		w.lines = append(w.lines, StyledLine{Text: w.text.String(), Spans: w.spans})
		w.text.Reset()
		w.spans = nil
	}
	w.started = true
	for i := 0; i < indent; i++ {
		w.text.WriteString("  ")
	}
}

func (w *writer) done() []StyledLine {
	if w.started {
		w.lines = append(w.lines, StyledLine{Text: w.text.String(), Spans: w.spans})
	}
	return w.lines
}
