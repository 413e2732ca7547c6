package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/identifier"
	"github.com/google/uuid"
)

// ErrNotConnected is returned by the gate when the session is not Connected.
var ErrNotConnected = errors.New("session not connected")

// DeliveryError reports that the network rejected one message. It is never
// retried by the gate.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Delivery describes one send attempt for the journal.
type Delivery struct {
	MessageID string
	Recipient string
	Kind      string // "text" or "media"
	Status    string // "sent", "failed" or "rejected"
	Error     string
	Duration  time.Duration
}

// Journal records send attempts. Implementations must not block for long.
type Journal interface {
	RecordDelivery(d Delivery)
}

// Gate forwards outbound messages to the active client.
type Gate struct {
	sup     *Supervisor
	format  identifier.Formatter
	journal Journal
}

// NewGate returns a gate in front of sup. journal may be nil.
func NewGate(sup *Supervisor, f identifier.Formatter, journal Journal) *Gate {
	return &Gate{sup: sup, format: f, journal: journal}
}

// SendText sends a text message and returns its message id.
func (g *Gate) SendText(ctx context.Context, recipient, body string) (string, error) {
	return g.send(ctx, "text", recipient, Payload{Text: body})
}

// SendMedia sends an image or file with an optional caption.
func (g *Gate) SendMedia(ctx context.Context, recipient string, data []byte, mimeType, caption string) (string, error) {
	return g.send(ctx, "media", recipient, Payload{Media: data, MimeType: mimeType, Caption: caption})
}

func (g *Gate) send(ctx context.Context, kind, recipient string, p Payload) (string, error) {
	to := g.format.Format(recipient)
	p.ID = uuid.NewString()
	d := Delivery{MessageID: p.ID, Recipient: to, Kind: kind}

	c, ok := g.sup.connectedClient()
	if !ok {
		d.Status = "rejected"
		d.Error = ErrNotConnected.Error()
		g.record(d)
		return "", ErrNotConnected
	}

	start := time.Now()
	err := c.Send(ctx, to, p)
	d.Duration = time.Since(start)
	if err != nil {
		d.Status = "failed"
		d.Error = err.Error()
		g.record(d)
		return "", &DeliveryError{Recipient: to, Err: err}
	}

	d.Status = "sent"
	g.record(d)
	return p.ID, nil
}

func (g *Gate) record(d Delivery) {
	if g.journal != nil {
		g.journal.RecordDelivery(d)
	}
}
