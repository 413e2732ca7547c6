package session

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of the session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusAwaitingPairing
	StatusConnected
	StatusDisconnected
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusConnecting:
		return "Connecting"
	case StatusAwaitingPairing:
		return "AwaitingPairing"
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusIdle; st <= StatusDisconnected; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	Status       Status    `json:"status"`
	PairingToken string    `json:"-"`
	RetryCount   int       `json:"retryCount"`
	Since        time.Time `json:"since"`

	// NextRetry is the delay of the pending reconnect, zero when none is
	// scheduled.
	NextRetry time.Duration `json:"-"`
}
