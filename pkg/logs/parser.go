package logs

import (
	"github.com/modoterra/wharf/pkg/logs/highlight"
	"github.com/modoterra/wharf/pkg/logs/structured"
)

// Parse returns the line's analysis, computing it on first use. Callers may
// race; the first stored result wins and everyone observes the same value.
// Parsing never happens under the store lock.
func Parse(l *Line) *Parsed {
	if p := l.parsed.Load(); p != nil {
		return p
	}
	p := analyze(l)
	if l.parsed.CompareAndSwap(nil, p) {
		return p
	}
	return l.parsed.Load()
}

func analyze(l *Line) *Parsed {
	if l.Marker {
		return &Parsed{
			Spans: []highlight.Span{{Start: 0, End: len(l.Raw), Cat: highlight.CatMarker}},
		}
	}
	p := &Parsed{}
	if b, ok := structured.Detect(l.Raw); ok {
		p.Block = b
	}
	p.Spans = highlight.Highlight(l.Raw)
	return p
}
