package api

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/config"
	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"github.com/go-chi/chi/v5"
)

type stubSession struct {
	mu      sync.Mutex
	snap    session.Snapshot
	history []session.Transition
	logouts int
	subs    []chan session.Snapshot
}

func (s *stubSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) History() []session.Transition { return s.history }

func (s *stubSession) Subscribe() (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot, 4)
	s.mu.Lock()
	ch <- s.snap
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch, func() {}
}

func (s *stubSession) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
}

func (s *stubSession) set(snap session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	for _, ch := range s.subs {
		ch <- snap
	}
}

type sentMessage struct {
	recipient, body, mimeType, caption string
	data                               []byte
}

type stubSender struct {
	err  error
	sent []sentMessage
}

func (s *stubSender) SendText(ctx context.Context, recipient, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMessage{recipient: recipient, body: body})
	return "msg-1", nil
}

func (s *stubSender) SendMedia(ctx context.Context, recipient string, data []byte, mimeType, caption string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMessage{recipient: recipient, data: data, mimeType: mimeType, caption: caption})
	return "msg-2", nil
}

func setupTestDB(t *testing.T) func() {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")
	config.Cfg.LogPath = filepath.Join(tmpDir, "test.log")

	if err := database.Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	return func() {
		database.Close()
		config.Cfg.LogPath = ""
		os.RemoveAll(tmpDir)
	}
}

func newTestRouter(srv *Server) *chi.Mux {
	r := chi.NewRouter()
	srv.Routes(r)
	return r
}

func connectedSnapshot() session.Snapshot {
	return session.Snapshot{Status: session.StatusConnected, Since: time.Now()}
}
