// Package progress implements the cooperative progress-reporting and
// cancellation contract used by every long-running core operation (spec
// §4.8): the Windows buffer merger, the Linux record walk, and the stacks
// analyzer all accept a Listener and a *Token through this package rather
// than inventing their own.
package progress

import "sync/atomic"

// A Listener receives progress notifications for one long-running
// operation.
type Listener interface {
	// Start begins the operation. message is optional additional detail.
	Start(title string, message string)
	// Report announces that the operation is progress fraction of the
	// way done, in [0,1].
	Report(progress float64, message string)
	// Finish ends the operation successfully. It is never called if the
	// operation was cancelled.
	Finish(message string)
	// MinDelta is the minimum increase in accumulated fraction that
	// causes a new Report call; smaller increments are coalesced.
	MinDelta() float64
}

// NopListener discards all notifications. It is the zero value for
// operations invoked without a caller-supplied Listener.
type NopListener struct{ Delta float64 }

func (NopListener) Start(string, string)          {}
func (NopListener) Report(float64, string)        {}
func (NopListener) Finish(string)                 {}
func (n NopListener) MinDelta() float64 {
	if n.Delta > 0 {
		return n.Delta
	}
	return 0.01
}

// A Reporter tracks a running count against an expected total and invokes
// a Listener only when the accumulated fraction has advanced by at least
// the listener's MinDelta, per spec §4.8.
type Reporter struct {
	listener Listener
	total    int
	done     int
	lastFrac float64
}

// NewReporter creates a Reporter over total units of work, reporting to
// listener (which may be nil, in which case a NopListener is used).
func NewReporter(listener Listener, total int) *Reporter {
	if listener == nil {
		listener = NopListener{}
	}
	return &Reporter{listener: listener, total: total}
}

// Start announces the beginning of the operation.
func (r *Reporter) Start(title, message string) {
	r.listener.Start(title, message)
	r.listener.Report(0, message)
}

// Advance records n more units of completed work and reports progress if
// the accumulated fraction has advanced enough.
func (r *Reporter) Advance(n int) {
	r.done += n
	frac := 1.0
	if r.total > 0 {
		frac = float64(r.done) / float64(r.total)
	}
	if frac-r.lastFrac >= r.listener.MinDelta() || frac >= 1 {
		r.listener.Report(frac, "")
		r.lastFrac = frac
	}
}

// Finish announces successful completion. It must not be called after
// cancellation was observed; the analyzer and readers instead just stop
// without calling Finish, per spec §4.8.
func (r *Reporter) Finish(message string) {
	r.listener.Finish(message)
}

// A Token is a monotone cancellation flag that may be set from any
// goroutine. Cancellation never panics. The stacks analyzer returns
// whatever partial result it has accumulated so far; the trace readers
// and the context builder stop and return a traceerr error of kind
// Cancelled.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns a fresh, uncancelled Token.
func NewToken() *Token { return &Token{} }

// Cancel sets the cancellation flag. It is idempotent and safe to call
// from any goroutine.
func (t *Token) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called. A nil *Token is
// treated as never cancelled, so operations may be invoked with no token.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
