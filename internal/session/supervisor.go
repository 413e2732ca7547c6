// supervisor.go implements the lifecycle of the single chat-network session.
//
// The Supervisor owns at most one Client. It starts a connection attempt,
// reacts to the client's lifecycle events and, when the connection closes,
// classifies the cause to decide between an immediate restart, a backoff
// retry, or wiping credentials and pairing again. All state lives behind one
// mutex; events from a client that has since been replaced carry a stale
// generation number and are dropped.

package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Options configures a Supervisor.
type Options struct {
	Store   CredentialStore
	Factory Factory
	Backoff Backoff
	// Scheduler defaults to real timers.
	Scheduler Scheduler
	// LogoutTimeout bounds the network logout call. Defaults to 10s.
	LogoutTimeout time.Duration
}

// Supervisor drives the session state machine.
type Supervisor struct {
	store         CredentialStore
	factory       Factory
	backoff       Backoff
	sched         Scheduler
	logoutTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      Status
	since       time.Time
	token       string
	client      Client
	clientStop  context.CancelFunc
	gen         uint64 // bumped whenever the current client is replaced or dropped
	inFlight    bool
	loggingOut  bool
	closed      bool
	retryCount  int
	lastDelay   time.Duration
	cancelRetry func()
	retrySeq    uint64
	history     transitionLog
	subs        map[int]chan Snapshot
	nextSub     int
}

// New creates an idle Supervisor. Call Start to begin connecting.
func New(opts Options) *Supervisor {
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.LogoutTimeout <= 0 {
		opts.LogoutTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:         opts.Store,
		factory:       opts.Factory,
		backoff:       opts.Backoff,
		sched:         opts.Scheduler,
		logoutTimeout: opts.LogoutTimeout,
		ctx:           ctx,
		cancel:        cancel,
		status:        StatusIdle,
		since:         time.Now(),
		subs:          make(map[int]chan Snapshot),
	}
}

// Start begins a connection attempt. It is a no-op while another attempt is
// in flight or a client is installed, so repeated calls never open a second
// connection.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.closed || s.loggingOut || s.inFlight || s.client != nil {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.gen++
	gen := s.gen
	s.stopRetryLocked()
	s.token = ""
	s.setStatusLocked(StatusConnecting, "connect attempt")
	s.mu.Unlock()

	c, err := s.newClient()

	s.mu.Lock()
	if gen != s.gen || s.closed {
		// Logout or shutdown overtook this attempt.
		s.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return
	}
	if err != nil {
		log.Printf("[session] connect attempt failed: %v", err)
		s.inFlight = false
		s.retryCount++
		s.scheduleRetryLocked()
		s.setStatusLocked(StatusDisconnected, err.Error())
		s.mu.Unlock()
		return
	}
	runCtx, stop := context.WithCancel(s.ctx)
	s.client = c
	s.clientStop = stop
	s.mu.Unlock()

	go c.Run(runCtx, func(ev Event) { s.handle(gen, ev) })
}

func (s *Supervisor) newClient() (Client, error) {
	material, err := s.store.Load(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	c, err := s.factory.NewClient(material)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// handle applies one client event. Events are expected in order from the
// client's Run goroutine.
func (s *Supervisor) handle(gen uint64, ev Event) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		log.Printf("[session] dropping %s event from stale client", ev.Kind)
		return
	}

	var (
		old  Client
		next func()
	)
	switch ev.Kind {
	case EventPairingToken:
		s.token = ev.Token
		s.setStatusLocked(StatusAwaitingPairing, "pairing token issued")
	case EventCredentialsChanged:
		if err := s.store.Save(s.ctx, ev.Material); err != nil {
			log.Printf("[session] save credentials: %v", err)
		}
	case EventOpen:
		s.token = ""
		s.retryCount = 0
		s.inFlight = false
		s.stopRetryLocked()
		s.setStatusLocked(StatusConnected, "connection open")
	case EventClose:
		old, next = s.onCloseLocked(ev.Cause)
	}
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if next != nil {
		next()
	}
}

// onCloseLocked releases the client before deciding what to do next, so a
// restart never sees a stale client and refuses to run.
func (s *Supervisor) onCloseLocked(cause CloseCause) (Client, func()) {
	old := s.client
	if s.clientStop != nil {
		s.clientStop()
	}
	s.client = nil
	s.clientStop = nil
	s.inFlight = false
	s.token = ""
	s.gen++

	class := Classify(cause)
	log.Printf("[session] connection closed (%s): %s", class, cause)

	switch class {
	case CloseAuthTerminated:
		if err := s.store.Clear(s.ctx); err != nil {
			log.Printf("[session] clear credentials: %v", err)
		}
		s.setStatusLocked(StatusDisconnected, "session revoked: "+cause.String())
		return old, s.Start
	case CloseRestartRequired:
		s.setStatusLocked(StatusDisconnected, "restart requested")
		return old, s.Start
	default:
		s.retryCount++
		s.scheduleRetryLocked()
		s.setStatusLocked(StatusDisconnected, cause.String())
		return old, nil
	}
}

func (s *Supervisor) scheduleRetryLocked() {
	s.stopRetryLocked()
	delay := s.backoff.Delay(s.retryCount)
	s.lastDelay = delay
	seq := s.retrySeq
	s.cancelRetry = s.sched.AfterFunc(delay, func() { s.fireRetry(seq) })
	log.Printf("[session] reconnect attempt %d in %s", s.retryCount, delay)
}

func (s *Supervisor) fireRetry(seq uint64) {
	s.mu.Lock()
	if s.closed || s.cancelRetry == nil || seq != s.retrySeq {
		s.mu.Unlock()
		return
	}
	s.cancelRetry = nil
	s.mu.Unlock()
	s.Start()
}

// stopRetryLocked cancels a pending reconnect. Bumping retrySeq also
// neutralizes a timer that already fired and is waiting for the lock.
func (s *Supervisor) stopRetryLocked() {
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	s.retrySeq++
}

// Logout logs the device out of the network (best effort), wipes stored
// credentials and starts pairing a fresh session. ctx only bounds the
// network logout.
func (s *Supervisor) Logout(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.loggingOut {
		s.mu.Unlock()
		return
	}
	s.loggingOut = true
	c, stop := s.client, s.clientStop
	s.client = nil
	s.clientStop = nil
	s.inFlight = false
	s.gen++
	s.stopRetryLocked()
	s.mu.Unlock()

	if c != nil {
		lctx, cancel := context.WithTimeout(ctx, s.logoutTimeout)
		if err := c.Logout(lctx); err != nil {
			log.Printf("[session] network logout failed: %v", err)
		}
		cancel()
		stop()
		c.Close()
	}
	if err := s.store.Clear(s.ctx); err != nil {
		log.Printf("[session] clear credentials: %v", err)
	}

	s.mu.Lock()
	s.loggingOut = false
	s.token = ""
	s.retryCount = 0
	s.setStatusLocked(StatusIdle, "logout")
	s.mu.Unlock()

	s.Start()
}

// Close tears the session down for process shutdown. Pending retries and
// late client events are ignored afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	c := s.client
	s.client = nil
	s.clientStop = nil
	s.inFlight = false
	s.token = ""
	s.gen++
	s.stopRetryLocked()
	s.setStatusLocked(StatusIdle, "shutdown")
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.cancel()
	if c != nil {
		c.Close()
	}
}

// Snapshot returns the current status projection.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Supervisor) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       s.status,
		PairingToken: s.token,
		RetryCount:   s.retryCount,
		Since:        s.since,
	}
	if s.cancelRetry != nil {
		snap.NextRetry = s.lastDelay
	}
	return snap
}

// History returns recent status transitions, oldest first.
func (s *Supervisor) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.list()
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader only sees the latest snapshot. The channel is
// closed by the returned cancel func or by Close.
func (s *Supervisor) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// connectedClient returns the client only while the session is Connected,
// read in one locked step so a send never reaches a torn-down client.
func (s *Supervisor) connectedClient() (Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.client == nil {
		return nil, false
	}
	return s.client, true
}

// setStatusLocked records the transition (if any) and notifies subscribers.
// Subscribers are notified even when the status is unchanged, e.g. when a
// new pairing token replaces the previous one.
func (s *Supervisor) setStatusLocked(to Status, reason string) {
	if from := s.status; from != to {
		now := time.Now()
		s.history.record(Transition{From: from, To: to, Timestamp: now, Reason: reason})
		s.status = to
		s.since = now
		log.Printf("[session] %s -> %s (%s)", from, to, reason)
	}
	s.notifyLocked()
}

func (s *Supervisor) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
