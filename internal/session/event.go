package session

import (
	"fmt"
	"strings"
)

// EventKind enumerates the lifecycle events a protocol client emits.
type EventKind int

const (
	EventPairingToken EventKind = iota
	EventCredentialsChanged
	EventOpen
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventPairingToken:
		return "pairing-token"
	case EventCredentialsChanged:
		return "credentials-changed"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lifecycle notification from a protocol client. Only the field
// matching Kind is set.
type Event struct {
	Kind     EventKind
	Token    string
	Material AuthMaterial
	Cause    CloseCause
}

func PairingTokenEvent(token string) Event { return Event{Kind: EventPairingToken, Token: token} }

func CredentialsEvent(m AuthMaterial) Event { return Event{Kind: EventCredentialsChanged, Material: m} }

func OpenEvent() Event { return Event{Kind: EventOpen} }

func CloseEvent(code int, reason string) Event {
	return Event{Kind: EventClose, Cause: CloseCause{Code: code, Reason: reason}}
}

// Disconnect reason codes reported by the chat network.
const (
	CodeLoggedOut           = 401
	CodeForbidden           = 403
	CodeTimedOut            = 408
	CodeMultideviceMismatch = 411
	CodeConnectionClosed    = 428
	CodeConnectionReplaced  = 440
	CodeBadSession          = 500
	CodeUnavailableService  = 503
	CodeRestartRequired     = 515
)

// CloseCause describes why a connection ended.
type CloseCause struct {
	Code   int
	Reason string
}

func (c CloseCause) String() string {
	if c.Reason == "" {
		return fmt.Sprintf("code %d", c.Code)
	}
	return fmt.Sprintf("code %d: %s", c.Code, c.Reason)
}

// CloseClass is the supervisor's decision category for a close.
type CloseClass int

const (
	CloseTransient CloseClass = iota
	CloseAuthTerminated
	CloseRestartRequired
)

func (c CloseClass) String() string {
	switch c {
	case CloseAuthTerminated:
		return "auth-terminated"
	case CloseRestartRequired:
		return "restart-requested"
	default:
		return "transient"
	}
}

// Classify maps a close cause to a class. A 401 only counts as a revocation
// when the network says the device was logged out; other 401s (stream
// conflicts, account used elsewhere) keep the credentials and retry.
func Classify(c CloseCause) CloseClass {
	switch c.Code {
	case CodeLoggedOut:
		if strings.Contains(strings.ToLower(c.Reason), "logged out") {
			return CloseAuthTerminated
		}
		return CloseTransient
	case CodeRestartRequired:
		return CloseRestartRequired
	default:
		return CloseTransient
	}
}
