// Package gateway connects to the chat-protocol sidecar over a WebSocket.
//
// The sidecar owns the wire protocol (handshake, encryption, framing). This
// package speaks a small JSON frame protocol with it and turns the sidecar's
// frames into session lifecycle events:
//
//	-> hello   {auth, device}
//	<- pairing {token}
//	<- creds   {auth}
//	<- open
//	<- close   {code, reason}
//	-> send    {id, to, text | media, mime_type, caption}
//	-> logout  {id}
//	<- ack     {id, error}
//
// A sidecar may also end the connection with a WebSocket close code in the
// 4000-4999 range; the code minus 4000 is taken as the network's disconnect
// reason (4401 means 401).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"github.com/google/uuid"
)

const (
	frameHello   = "hello"
	framePairing = "pairing"
	frameCreds   = "creds"
	frameOpen    = "open"
	frameClose   = "close"
	frameSend    = "send"
	frameLogout  = "logout"
	frameAck     = "ack"
)

// readLimit bounds a single inbound frame; creds frames carry key material.
const readLimit = 4 << 20

var ErrNotConnected = errors.New("gateway: connection not established")

// ErrConnectionLost is returned to callers waiting for an ack when the
// connection drops first.
var ErrConnectionLost = errors.New("gateway: connection lost before ack")

// Device identifies this linked device to the network.
type Device struct {
	Name    string `json:"name"`
	Browser string `json:"browser"`
}

type frame struct {
	Type     string               `json:"type"`
	ID       string               `json:"id,omitempty"`
	Token    string               `json:"token,omitempty"`
	Auth     session.AuthMaterial `json:"auth,omitempty"`
	Device   *Device              `json:"device,omitempty"`
	To       string               `json:"to,omitempty"`
	Text     string               `json:"text,omitempty"`
	Media    []byte               `json:"media,omitempty"`
	MimeType string               `json:"mime_type,omitempty"`
	Caption  string               `json:"caption,omitempty"`
	Code     int                  `json:"code,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Options configures connections to the sidecar.
type Options struct {
	URL               string
	Device            Device
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration // 0 disables pings
	SendTimeout       time.Duration
}

// Factory builds Clients; it implements session.Factory.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 60 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &Factory{opts: opts}
}

func (f *Factory) NewClient(m session.AuthMaterial) (session.Client, error) {
	if f.opts.URL == "" {
		return nil, errors.New("gateway: no upstream URL configured")
	}
	return &Client{
		opts:    f.opts,
		auth:    m,
		id:      uuid.NewString()[:8],
		pending: make(map[string]chan frame),
	}, nil
}

// Client is one connection to the sidecar.
type Client struct {
	opts Options
	auth session.AuthMaterial
	id   string // short id for log lines

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan frame
	cancel  context.CancelFunc
	closed  bool
	failure string // set by the keepalive loop before it drops the connection
}

// Run dials the sidecar and pumps frames until the connection ends, then
// emits exactly one close event.
func (c *Client) Run(ctx context.Context, emit func(session.Event)) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cause := c.run(ctx, cancel, emit)
	cancel()
	c.teardown()
	log.Printf("[gateway] %s: connection ended (%s)", c.id, cause)
	emit(session.Event{Kind: session.EventClose, Cause: cause})
}

func (c *Client) run(ctx context.Context, cancel context.CancelFunc, emit func(session.Event)) session.CloseCause {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.CloseCause{Code: session.CodeConnectionClosed, Reason: "client closed"}
	}
	c.cancel = cancel
	c.mu.Unlock()

	deadline := time.Now().Add(c.opts.ConnectTimeout)
	dialCtx, dialCancel := context.WithDeadline(ctx, deadline)
	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	dialCancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return session.CloseCause{Code: session.CodeTimedOut, Reason: "connect timeout"}
		}
		return session.CloseCause{Code: session.CodeConnectionClosed, Reason: fmt.Sprintf("dial %s: %v", c.opts.URL, err)}
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Printf("[gateway] %s: connected to %s (resuming=%v)", c.id, c.opts.URL, len(c.auth) > 0)

	hello := frame{Type: frameHello, Auth: c.auth, Device: &c.opts.Device}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return c.readFailure(ctx, err, false, deadline)
	}

	if c.opts.KeepAliveInterval > 0 {
		go c.keepAlive(ctx, conn)
	}

	// Until the sidecar answers with a pairing token or an open frame, reads
	// are bounded by the connect deadline.
	established := false
	for {
		readCtx, readCancel := ctx, context.CancelFunc(func() {})
		if !established {
			readCtx, readCancel = context.WithDeadline(ctx, deadline)
		}
		var f frame
		err := wsjson.Read(readCtx, conn, &f)
		readCancel()
		if err != nil {
			return c.readFailure(ctx, err, established, deadline)
		}

		switch f.Type {
		case framePairing:
			established = true
			emit(session.PairingTokenEvent(f.Token))
		case frameCreds:
			emit(session.CredentialsEvent(f.Auth))
		case frameOpen:
			established = true
			emit(session.OpenEvent())
		case frameClose:
			return session.CloseCause{Code: f.Code, Reason: f.Reason}
		case frameAck:
			c.resolve(f)
		default:
			log.Printf("[gateway] %s: ignoring unknown frame type %q", c.id, f.Type)
		}
	}
}

// readFailure turns a transport error into a close cause.
func (c *Client) readFailure(ctx context.Context, err error, established bool, deadline time.Time) session.CloseCause {
	if ctx.Err() != nil {
		return session.CloseCause{Code: session.CodeConnectionClosed, Reason: "client stopped"}
	}

	c.mu.Lock()
	failure := c.failure
	c.mu.Unlock()
	if failure != "" {
		return session.CloseCause{Code: session.CodeTimedOut, Reason: failure}
	}

	if !established && !time.Now().Before(deadline) {
		return session.CloseCause{Code: session.CodeTimedOut, Reason: "connect timeout"}
	}

	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code >= 4000 && ce.Code < 5000 {
			return session.CloseCause{Code: int(ce.Code) - 4000, Reason: ce.Reason}
		}
		return session.CloseCause{Code: session.CodeConnectionClosed, Reason: fmt.Sprintf("upstream closed: %v", ce.Code)}
	}
	return session.CloseCause{Code: session.CodeConnectionClosed, Reason: err.Error()}
}

func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.KeepAliveInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("[gateway] %s: keepalive failed: %v, closing", c.id, err)
			c.mu.Lock()
			c.failure = "keepalive failed"
			c.mu.Unlock()
			conn.CloseNow()
			return
		}
	}
}

func (c *Client) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		log.Printf("[gateway] %s: ack for unknown request %q", c.id, f.ID)
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// teardown drops the connection and fails every request still waiting.
func (c *Client) teardown() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.CloseNow()
	}
}

// Send delivers one message and waits for the sidecar's ack.
func (c *Client) Send(ctx context.Context, to string, p session.Payload) error {
	f := frame{
		Type:     frameSend,
		ID:       p.ID,
		To:       to,
		Text:     p.Text,
		Media:    p.Media,
		MimeType: p.MimeType,
		Caption:  p.Caption,
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return c.request(ctx, f)
}

// Logout asks the network to unlink this device.
func (c *Client) Logout(ctx context.Context) error {
	return c.request(ctx, frame{Type: frameLogout, ID: uuid.NewString()})
}

func (c *Client) request(ctx context.Context, f frame) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ch := make(chan frame, 1)
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return ErrConnectionLost
		}
		if ack.Error != "" {
			return fmt.Errorf("%s rejected: %s", f.Type, ack.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("await %s ack: %w", f.Type, ctx.Err())
	}
}

// Close stops Run. It is safe to call more than once and before Run.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.CloseNow()
	}
	return nil
}
