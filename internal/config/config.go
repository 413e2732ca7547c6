package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":3000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/session-gateway.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/session-gateway.log"`

	// API access. An empty token leaves the API open.
	APIToken          string   `envconfig:"API_TOKEN" default:""`
	AllowedOrigins    []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	SendRatePerMinute int      `envconfig:"SEND_RATE_PER_MINUTE" default:"0"`
	MaxUploadBytes    int64    `envconfig:"MAX_UPLOAD_BYTES" default:"16777216"`

	// Protocol sidecar
	UpstreamURL       string        `envconfig:"UPSTREAM_URL" default:"ws://127.0.0.1:8099/session"`
	DeviceName        string        `envconfig:"DEVICE_NAME" default:"Session Gateway"`
	DeviceBrowser     string        `envconfig:"DEVICE_BROWSER" default:"Chrome"`
	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"60s"`
	KeepAliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"30s"`
	SendTimeout       time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// Reconnection policy
	ReconnectBaseDelay time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"2s"`
	ReconnectIncrement time.Duration `envconfig:"RECONNECT_INCREMENT" default:"2s"`
	ReconnectMaxDelay  time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"60s"`

	// Recipient addressing
	CountryCode      string `envconfig:"COUNTRY_CODE" default:"58"`
	IdentifierDomain string `envconfig:"IDENTIFIER_DOMAIN" default:"s.whatsapp.net"`

	// Fernet key for auth material at rest. Generated and stored in the
	// settings table when empty.
	CredentialKey string `envconfig:"CREDENTIAL_KEY" default:""`

	// Delivery journal retention
	RetentionSchedule string        `envconfig:"RETENTION_SCHEDULE" default:"@daily"`
	RetentionMaxAge   time.Duration `envconfig:"RETENTION_MAX_AGE" default:"720h"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("SESSION_GATEWAY", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
