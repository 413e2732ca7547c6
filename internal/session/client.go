package session

import "context"

// AuthMaterial is the opaque credential set that lets a client reconnect
// without pairing again.
type AuthMaterial []byte

// CredentialStore persists auth material across process restarts.
// Load returns nil, nil when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (AuthMaterial, error)
	Save(ctx context.Context, m AuthMaterial) error
	Clear(ctx context.Context) error
}

// Payload is one outbound message. Text messages leave Media empty.
type Payload struct {
	ID       string
	Text     string
	Media    []byte
	MimeType string
	Caption  string
}

// Client is a single connection attempt to the chat network.
//
// Run connects and delivers lifecycle events to emit, in order, until the
// connection ends. It must emit exactly one EventClose before returning and
// must bound the connect phase with its own timeout.
type Client interface {
	Run(ctx context.Context, emit func(Event))
	Send(ctx context.Context, to string, p Payload) error
	Logout(ctx context.Context) error
	Close() error
}

// Factory builds a new, not yet connected client from stored credentials
// (nil when the device has never been paired).
type Factory interface {
	NewClient(m AuthMaterial) (Client, error)
}
