package api

import (
	"context"
	"net/http"

	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"github.com/go-chi/chi/v5"
)

// SessionController is the part of the supervisor the HTTP layer uses.
type SessionController interface {
	Snapshot() session.Snapshot
	History() []session.Transition
	Subscribe() (<-chan session.Snapshot, func())
	Logout(ctx context.Context)
}

// Sender delivers outbound messages.
type Sender interface {
	SendText(ctx context.Context, recipient, body string) (string, error)
	SendMedia(ctx context.Context, recipient string, data []byte, mimeType, caption string) (string, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Session SessionController
	Sender  Sender

	APIToken          string
	SendRatePerMinute int
	MaxUploadBytes    int64
}

// Routes mounts all endpoints on r.
func (s *Server) Routes(r chi.Router) {
	// No auth
	r.Get("/", Index)
	r.Get("/health", s.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(TokenAuth(s.APIToken))

		r.Get("/status", s.GetStatus)
		r.Get("/status/history", s.GetHistory)
		r.Get("/status/stream", s.StreamStatus)
		r.Get("/qr", s.GetQRCode)
		r.Post("/logout", s.Logout)
		r.Get("/deliveries", ListDeliveries)
		r.Get("/logs", GetServerLogs)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.SendRatePerMinute))
			r.Post("/send-text", s.SendText)
			r.Post("/send-media", s.SendMedia)
		})
	})
}

func Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Session Gateway\n"))
}
