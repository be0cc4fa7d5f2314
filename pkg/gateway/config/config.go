package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultInstructions is the assistant persona sent in session.update when
// CALLBRIDGE_INSTRUCTIONS is unset.
const DefaultInstructions = "You are a helpful and bubbly AI assistant who loves to chat about " +
	"anything the user is interested in and is prepared to offer them facts. " +
	"You have a penchant for dad jokes, owl jokes, and rickrolling – subtly. " +
	"Always stay positive, but work in a joke when appropriate."

const (
	DefaultGreeting    = "Please wait while we connect your call to the A. I. voice assistant, powered by Twilio and the Open-A.I. Realtime API"
	DefaultReadyPrompt = "O.K. you can start talking!"
)

type Config struct {
	// Addr is derived from Port.
	Addr string
	Port int `env:"PORT" envDefault:"5050"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	RealtimeURL  string `env:"CALLBRIDGE_REALTIME_URL" envDefault:"wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01"`

	// Realtime session settings.
	Voice        string  `env:"CALLBRIDGE_VOICE" envDefault:"alloy"`
	Instructions string  `env:"CALLBRIDGE_INSTRUCTIONS"`
	Temperature  float64 `env:"CALLBRIDGE_TEMPERATURE" envDefault:"0.8"`

	// Call control document.
	Greeting    string `env:"CALLBRIDGE_GREETING"`
	ReadyPrompt string `env:"CALLBRIDGE_READY_PROMPT"`

	// If true, the public host for the media stream URL may be taken from
	// X-Forwarded-Host. Only enable behind a trusted proxy/LB.
	TrustProxyHeaders bool `env:"CALLBRIDGE_TRUST_PROXY_HEADERS" envDefault:"false"`

	// Relay.
	KeepAliveInterval time.Duration `env:"CALLBRIDGE_KEEPALIVE_INTERVAL" envDefault:"10s"`
	WSWriteTimeout    time.Duration `env:"CALLBRIDGE_WS_WRITE_TIMEOUT" envDefault:"5s"`
	WSMaxMessageBytes int64         `env:"CALLBRIDGE_WS_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	MaxCallDuration   time.Duration `env:"CALLBRIDGE_MAX_CALL_DURATION" envDefault:"0s"`

	UpstreamConnectTimeout time.Duration `env:"CALLBRIDGE_CONNECT_TIMEOUT" envDefault:"10s"`

	// Operational defaults
	ReadHeaderTimeout   time.Duration `env:"CALLBRIDGE_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownGracePeriod time.Duration `env:"CALLBRIDGE_SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.RealtimeURL = strings.TrimSpace(cfg.RealtimeURL)
	if strings.TrimSpace(cfg.Instructions) == "" {
		cfg.Instructions = DefaultInstructions
	}
	if strings.TrimSpace(cfg.Greeting) == "" {
		cfg.Greeting = DefaultGreeting
	}
	if strings.TrimSpace(cfg.ReadyPrompt) == "" {
		cfg.ReadyPrompt = DefaultReadyPrompt
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Addr = ":" + strconv.Itoa(cfg.Port)
	return cfg, nil
}

// Validate checks a parsed Config. LoadFromEnv calls it; tests and embedders
// that build a Config by hand can call it directly.
func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	u, err := url.Parse(c.RealtimeURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("CALLBRIDGE_REALTIME_URL must be a ws:// or wss:// URL")
	}
	if strings.TrimSpace(c.Voice) == "" {
		return fmt.Errorf("CALLBRIDGE_VOICE must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("CALLBRIDGE_TEMPERATURE must be between 0 and 2")
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("CALLBRIDGE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.WSWriteTimeout <= 0 {
		return fmt.Errorf("CALLBRIDGE_WS_WRITE_TIMEOUT must be > 0")
	}
	if c.WSMaxMessageBytes <= 0 {
		return fmt.Errorf("CALLBRIDGE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if c.MaxCallDuration < 0 {
		return fmt.Errorf("CALLBRIDGE_MAX_CALL_DURATION must be >= 0")
	}
	if c.UpstreamConnectTimeout <= 0 {
		return fmt.Errorf("CALLBRIDGE_CONNECT_TIMEOUT must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("CALLBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("CALLBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}
