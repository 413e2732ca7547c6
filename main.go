package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/api"
	"github.com/gluk-w/claworc/session-gateway/internal/authstore"
	"github.com/gluk-w/claworc/session-gateway/internal/config"
	"github.com/gluk-w/claworc/session-gateway/internal/crypto"
	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"github.com/gluk-w/claworc/session-gateway/internal/gateway"
	"github.com/gluk-w/claworc/session-gateway/internal/identifier"
	"github.com/gluk-w/claworc/session-gateway/internal/jobs"
	"github.com/gluk-w/claworc/session-gateway/internal/logging"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func main() {
	config.Load()
	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	key, err := crypto.LoadKey(config.Cfg.CredentialKey)
	if err != nil {
		log.Fatalf("Credential key: %v", err)
	}

	factory := gateway.NewFactory(gateway.Options{
		URL: config.Cfg.UpstreamURL,
		Device: gateway.Device{
			Name:    config.Cfg.DeviceName,
			Browser: config.Cfg.DeviceBrowser,
		},
		ConnectTimeout:    config.Cfg.ConnectTimeout,
		KeepAliveInterval: config.Cfg.KeepAliveInterval,
		SendTimeout:       config.Cfg.SendTimeout,
	})

	sup := session.New(session.Options{
		Store:   authstore.New(database.DB, key),
		Factory: factory,
		Backoff: session.Backoff{
			Base:      config.Cfg.ReconnectBaseDelay,
			Increment: config.Cfg.ReconnectIncrement,
			Max:       config.Cfg.ReconnectMaxDelay,
		},
	})
	gate := session.NewGate(sup, identifier.Formatter{
		CountryCode: config.Cfg.CountryCode,
		Domain:      config.Cfg.IdentifierDomain,
	}, database.Journal{})

	retention, err := jobs.StartRetention(config.Cfg.RetentionSchedule, config.Cfg.RetentionMaxAge)
	if err != nil {
		log.Fatalf("Retention job: %v", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(api.CORS(config.Cfg.AllowedOrigins))

	srvAPI := &api.Server{
		Session:           sup,
		Sender:            gate,
		APIToken:          config.Cfg.APIToken,
		SendRatePerMinute: config.Cfg.SendRatePerMinute,
		MaxUploadBytes:    config.Cfg.MaxUploadBytes,
	}
	srvAPI.Routes(r)

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Session Gateway starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sup.Start()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing the session ends open status streams before the HTTP drain.
	sup.Close()
	<-retention.Stop().Done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Session Gateway stopped")
}
