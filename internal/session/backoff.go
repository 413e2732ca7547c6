package session

import "time"

// Backoff is a linear, capped reconnect delay policy.
type Backoff struct {
	Base      time.Duration
	Increment time.Duration
	Max       time.Duration
}

// DefaultBackoff mirrors the config defaults.
var DefaultBackoff = Backoff{
	Base:      2 * time.Second,
	Increment: 2 * time.Second,
	Max:       60 * time.Second,
}

// Delay returns the wait before retry number attempt (1-based). The first
// retry waits exactly Base.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base + time.Duration(attempt-1)*b.Increment
	if b.Max > 0 && (d > b.Max || d < b.Base) {
		d = b.Max
	}
	return d
}

// Scheduler runs f after d. The returned function cancels the run if it has
// not started yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}
