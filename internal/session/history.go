package session

import "time"

// historySize is the number of state transitions kept for debugging.
const historySize = 50

// Transition records a single status change.
type Transition struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// transitionLog is a fixed-size ring buffer. Not safe for concurrent use;
// the supervisor guards it with its own mutex.
type transitionLog struct {
	entries [historySize]Transition
	head    int // next write position
	count   int
}

func (l *transitionLog) record(t Transition) {
	l.entries[l.head] = t
	l.head = (l.head + 1) % historySize
	if l.count < historySize {
		l.count++
	}
}

// list returns transitions oldest first.
func (l *transitionLog) list() []Transition {
	if l.count == 0 {
		return nil
	}
	out := make([]Transition, l.count)
	if l.count < historySize {
		copy(out, l.entries[:l.count])
	} else {
		n := copy(out, l.entries[l.head:])
		copy(out[n:], l.entries[:l.head])
	}
	return out
}
