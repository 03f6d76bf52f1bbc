package logs

import "context"

// Preparser warms the parse memo for lines around the viewport so scrolling
// lands on already-parsed lines. Each Reset replaces the outstanding batch,
// so work queued for lines that scrolled away is dropped, not drained.
type Preparser struct {
	resets chan []*Line
}

func NewPreparser() *Preparser {
	return &Preparser{resets: make(chan []*Line, 1)}
}

// Reset replaces any outstanding batch with lines. It never blocks.
func (p *Preparser) Reset(lines []*Line) {
	for {
		select {
		case p.resets <- lines:
			return
		default:
		}
		select {
		case <-p.resets:
		default:
		}
	}
}

// Run parses batches until ctx is done. One line is parsed per iteration
// and a newer batch preempts the current one between lines, so a burst of
// scroll events converges on the latest window quickly.
func (p *Preparser) Run(ctx context.Context) {
	var batch []*Line
	for {
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case batch = <-p.resets:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case batch = <-p.resets:
			continue
		default:
		}
		l := batch[0]
		batch = batch[1:]
		if l.Parsed() == nil {
			Parse(l)
		}
	}
}
