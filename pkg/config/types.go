package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Security SecurityConfig `yaml:"security"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
	Reaper   ReaperConfig   `yaml:"reaper"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// UpstreamConfig names the external collaborators.
type UpstreamConfig struct {
	ThreadStore EndpointConfig `yaml:"thread_store"`
	Gateway     EndpointConfig `yaml:"gateway"`
}

// EndpointConfig is one upstream HTTP endpoint plus its bearer token.
type EndpointConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	APIKeys struct {
		Frontend []string `yaml:"frontend"`
		Backend  []string `yaml:"backend"`
	} `yaml:"api_keys"`
}

// WebhookConfig configures identity-provider webhook verification.
type WebhookConfig struct {
	// SigningSecret is the provider-issued secret, typically prefixed
	// "whsec_" followed by base64 key material.
	SigningSecret string `yaml:"signing_secret"`
	// Tolerance bounds the accepted webhook timestamp skew.
	Tolerance Duration `yaml:"tolerance"`
}

// UploadConfig bounds document ingestion requests.
type UploadConfig struct {
	MaxSize Size `yaml:"max_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ReaperConfig configures the orphaned-empty-thread reaper.
type ReaperConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	MinAge  Duration `yaml:"min_age"`
}

// Duration is a yaml-friendly time.Duration ("5m", "30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Size is a yaml-friendly byte size ("25MB", "1GiB").
type Size uint64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*s = 0
		return nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*s = Size(n)
	return nil
}
