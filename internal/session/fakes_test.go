package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	material AuthMaterial
	saves    []AuthMaterial
	clears   int
	loadErr  error
}

func (s *fakeStore) Load(ctx context.Context) (AuthMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.material, nil
}

func (s *fakeStore) Save(ctx context.Context, m AuthMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.material = m
	s.saves = append(s.saves, m)
	return nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.material = nil
	s.clears++
	return nil
}

func (s *fakeStore) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

type sentMessage struct {
	to string
	p  Payload
}

type fakeClient struct {
	material AuthMaterial
	ran      chan struct{}

	mu        sync.Mutex
	emitFn    func(Event)
	closed    bool
	sent      []sentMessage
	sendErr   error
	logouts   int
	logoutErr error
}

func newFakeClient(m AuthMaterial) *fakeClient {
	return &fakeClient{material: m, ran: make(chan struct{})}
}

func (c *fakeClient) Run(ctx context.Context, emit func(Event)) {
	c.mu.Lock()
	c.emitFn = emit
	c.mu.Unlock()
	close(c.ran)
	<-ctx.Done()
}

func (c *fakeClient) Send(ctx context.Context, to string, p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: to, p: p})
	return c.sendErr
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// emit waits for Run to start and delivers ev synchronously.
func (c *fakeClient) emit(t *testing.T, ev Event) {
	t.Helper()
	select {
	case <-c.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("client Run was never started")
	}
	c.mu.Lock()
	fn := c.emitFn
	c.mu.Unlock()
	fn(ev)
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	err     error
}

func (f *fakeFactory) NewClient(m AuthMaterial) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeClient(m)
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) last(t *testing.T) *fakeClient {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		t.Fatal("no client created")
	}
	return f.clients[len(f.clients)-1]
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeTimer struct {
	d         time.Duration
	f         func()
	cancelled bool
}

// fakeScheduler records delays and fires timers only when told to.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.d
	}
	return out
}

func (s *fakeScheduler) lastTimer(t *testing.T) *fakeTimer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		t.Fatal("no timer scheduled")
	}
	return s.timers[len(s.timers)-1]
}

// fireLast runs the most recent timer the way time.AfterFunc would, even if
// it was cancelled, to exercise the late-fire guard.
func (s *fakeScheduler) fireLast(t *testing.T) {
	t.Helper()
	s.lastTimer(t).f()
}

func (s *fakeScheduler) isCancelled(tm *fakeTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tm.cancelled
}

var testBackoff = Backoff{Base: 2 * time.Second, Increment: 2 * time.Second, Max: 7 * time.Second}

type harness struct {
	sup     *Supervisor
	store   *fakeStore
	factory *fakeFactory
	sched   *fakeScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   &fakeStore{},
		factory: &fakeFactory{},
		sched:   &fakeScheduler{},
	}
	h.sup = New(Options{
		Store:     h.store,
		Factory:   h.factory,
		Backoff:   testBackoff,
		Scheduler: h.sched,
	})
	t.Cleanup(h.sup.Close)
	return h
}

// connect starts the supervisor and opens the first client.
func (h *harness) connect(t *testing.T) *fakeClient {
	t.Helper()
	h.sup.Start()
	c := h.factory.last(t)
	c.emit(t, OpenEvent())
	if got := h.sup.Snapshot().Status; got != StatusConnected {
		t.Fatalf("status = %s, want Connected", got)
	}
	return c
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []Delivery
}

func (j *recordingJournal) RecordDelivery(d Delivery) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, d)
}

var errBoom = errors.New("boom")
