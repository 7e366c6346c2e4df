package reconcile

import "time"

// Result expresses whether reconciliation should be requeued, and after what delay.
// A zero RequeueAfter means "no requeue requested".
type Result struct {
	RequeueAfter time.Duration
}

// After returns a Result requesting a requeue after d.
func After(d time.Duration) Result {
	return Result{RequeueAfter: d}
}

// IsZero reports whether no requeue was requested.
func (r Result) IsZero() bool {
	return r.RequeueAfter <= 0
}

// Min returns the earliest requested requeue among results. Results that did
// not request a requeue are ignored; if none did, the zero Result is returned.
func Min(results ...Result) Result {
	var out Result
	for _, r := range results {
		if r.IsZero() {
			continue
		}
		if out.IsZero() || r.RequeueAfter < out.RequeueAfter {
			out = r
		}
	}
	return out
}

// OrDefault returns r, or a Result requesting d when r did not request a requeue.
func (r Result) OrDefault(d time.Duration) Result {
	if r.IsZero() {
		return After(d)
	}
	return r
}
