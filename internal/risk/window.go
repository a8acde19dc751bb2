package risk

import "time"

// slidingWindow tracks event timestamps over a trailing span. Pruning is
// idempotent: every read drops events older than the span before counting, so
// an event never outlives the window regardless of call order.
type slidingWindow struct {
	span   time.Duration
	events []time.Time
}

func newSlidingWindow(span time.Duration) *slidingWindow {
	return &slidingWindow{span: span}
}

func (w *slidingWindow) add(t time.Time) {
	w.events = append(w.events, t)
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for ; i < len(w.events); i++ {
		if w.events[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.events)
}
