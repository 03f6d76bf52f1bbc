package logs

import "regexp"

// Filter narrows the visible line set with a case-insensitive regular
// expression. An empty expression matches every line. A failed compile keeps
// the previous predicate active, so a typo mid-edit never blanks the view.
//
// Filter is owned by the render goroutine, same as the per-line match memo
// it writes through.
type Filter struct {
	re    *regexp.Regexp
	expr  string
	err   error
	epoch uint64
}

// NewFilter starts at epoch 1 so zero-valued line memos are never mistaken
// for current results.
func NewFilter() *Filter {
	return &Filter{epoch: 1}
}

// Set replaces the filter expression. On compile failure the error is
// recorded and returned while the previous predicate stays in effect.
func (f *Filter) Set(expr string) error {
	if expr == "" {
		f.err = nil
		if f.re != nil || f.expr != "" {
			f.re = nil
			f.expr = ""
			f.epoch++
		}
		return nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		f.err = err
		return err
	}
	f.err = nil
	if expr == f.expr {
		return nil
	}
	f.re = re
	f.expr = expr
	f.epoch++
	return nil
}

// Matches reports whether l passes the current predicate. Markers always
// pass. Results are memoized per line per epoch.
func (f *Filter) Matches(l *Line) bool {
	if l.Marker {
		return true
	}
	if f.re == nil {
		return true
	}
	if l.filterEpoch == f.epoch {
		return l.filterOK
	}
	ok := f.re.MatchString(l.Raw)
	l.filterEpoch = f.epoch
	l.filterOK = ok
	return ok
}

// Active reports whether a non-empty predicate is in effect.
func (f *Filter) Active() bool {
	return f.re != nil
}

// Epoch increments whenever the predicate changes, invalidating render cache
// entries and line memos keyed on it.
func (f *Filter) Epoch() uint64 {
	return f.epoch
}

// Err returns the most recent compile error, or nil.
func (f *Filter) Err() error {
	return f.err
}

// Expression returns the active expression, which on compile failure is the
// last one that compiled.
func (f *Filter) Expression() string {
	return f.expr
}
