package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"github.com/gluk-w/claworc/session-gateway/internal/logging"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"github.com/skip2/go-qrcode"
)

const defaultMaxUploadBytes = 16 << 20

type statusResponse struct {
	Status       session.Status `json:"status"`
	PairingToken *string        `json:"pairingToken"`
	RetryCount   int            `json:"retryCount"`
	Since        time.Time      `json:"since"`
	NextRetryMs  *int64         `json:"nextRetryMs"`
}

func toStatusResponse(snap session.Snapshot) statusResponse {
	resp := statusResponse{
		Status:     snap.Status,
		RetryCount: snap.RetryCount,
		Since:      snap.Since,
	}
	if snap.PairingToken != "" {
		token := snap.PairingToken
		resp.PairingToken = &token
	}
	if snap.NextRetry > 0 {
		ms := snap.NextRetry.Milliseconds()
		resp.NextRetryMs = &ms
	}
	return resp
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := database.Ping(); err != nil {
		dbStatus = "disconnected"
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"session":  s.Session.Snapshot().Status.String(),
	})
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(s.Session.Snapshot()))
}

func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := s.Session.History()
	if history == nil {
		history = []session.Transition{}
	}
	writeJSON(w, http.StatusOK, history)
}

// StreamStatus pushes one "status" event per snapshot until the client leaves.
func (s *Server) StreamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	updates, unsubscribe := s.Session.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sw := &sseWriter{w: w, f: flusher}
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := sw.event("status", toStatusResponse(snap)); err != nil {
				return
			}
		}
	}
}

type sseWriter struct {
	w io.Writer
	f http.Flusher
}

func (sw *sseWriter) event(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(sw.w, "event: "+name+"\ndata: "+string(data)+"\n\n"); err != nil {
		return err
	}
	if sw.f != nil {
		sw.f.Flush()
	}
	return nil
}

// GetQRCode renders the current pairing token as a PNG.
func (s *Server) GetQRCode(w http.ResponseWriter, r *http.Request) {
	token := s.Session.Snapshot().PairingToken
	if token == "" {
		writeError(w, http.StatusNotFound, "No pairing token available")
		return
	}

	png, err := qrcode.Encode(token, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[api] failed to render pairing QR: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.Session.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out, waiting for a new pairing"})
}

type sendTextRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

func (s *Server) SendText(w http.ResponseWriter, r *http.Request) {
	var body sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Recipient == "" || body.Body == "" {
		writeError(w, http.StatusBadRequest, "recipient and body are required")
		return
	}

	id, err := s.Sender.SendText(r.Context(), body.Recipient, body.Body)
	if err != nil {
		writeSendError(w, "text", body.Recipient, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "id": id})
}

func (s *Server) SendMedia(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	// Leave room for the other form fields around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	recipient := r.FormValue("recipient")
	caption := r.FormValue("caption")
	if recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	id, err := s.Sender.SendMedia(r.Context(), recipient, data, mimeType, caption)
	if err != nil {
		writeSendError(w, "media", recipient, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "id": id})
}

func writeSendError(w http.ResponseWriter, kind, recipient string, err error) {
	if errors.Is(err, session.ErrNotConnected) {
		writeError(w, http.StatusServiceUnavailable, "Session is not connected")
		return
	}
	log.Printf("[api] %s send to %s failed: %v", kind, logging.SanitizeForLog(recipient), err)
	writeError(w, http.StatusInternalServerError, "Failed to send message")
}

func ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	records, err := database.ListDeliveries(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}
	if records == nil {
		records = []database.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = n
		}
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}
