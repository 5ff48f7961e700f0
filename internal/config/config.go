// ABOUTME: Configuration loading and validation for smsrelay
// ABOUTME: Reads YAML or TOML by extension with ${VAR} expansion, defaults, and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transport providers.
const (
	ProviderTwilio = "twilio"
	ProviderRelay  = "relay"
	ProviderLog    = "log"
)

// Environment overrides.
const (
	EnvConfigPath = "SMSRELAY_CONFIG"
	EnvDBPath     = "SMSRELAY_DB_PATH"
)

// Config is the complete smsrelay configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Matrix    MatrixConfig    `yaml:"matrix" toml:"matrix"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds tsnet settings. When enabled the HTTP server
// listens on the tailnet instead of server.http_addr.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds the REST API signing secret. An empty secret disables the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// MatrixConfig holds the chat workspace connection.
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled"`
	Homeserver   string   `yaml:"homeserver" toml:"homeserver"`
	UserID       string   `yaml:"user_id" toml:"user_id"`
	AccessToken  string   `yaml:"access_token" toml:"access_token"`
	AllowedRooms []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	AllowedUsers []string `yaml:"allowed_users" toml:"allowed_users"`
}

// RelayConfig tunes command parsing and channel discovery.
type RelayConfig struct {
	CommandPrefix   string   `yaml:"command_prefix" toml:"command_prefix"`
	ReservedAliases []string `yaml:"reserved_aliases" toml:"reserved_aliases"`
	FallbackAliases []string `yaml:"fallback_aliases" toml:"fallback_aliases"`
	DefaultGroup    string   `yaml:"default_group" toml:"default_group"`
}

// TransportConfig selects and configures the SMS provider.
type TransportConfig struct {
	Provider string        `yaml:"provider" toml:"provider"`
	Twilio   TwilioConfig  `yaml:"twilio" toml:"twilio"`
	Relay    PhoneRelay    `yaml:"relay" toml:"relay"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// TwilioConfig holds Twilio REST credentials.
type TwilioConfig struct {
	AccountSID         string `yaml:"account_sid" toml:"account_sid"`
	AuthToken          string `yaml:"auth_token" toml:"auth_token"`
	From               string `yaml:"from" toml:"from"`
	BaseURL            string `yaml:"base_url" toml:"base_url"`
	ValidateSignatures bool   `yaml:"validate_signatures" toml:"validate_signatures"`
	// PublicURL is the externally visible webhook URL Twilio signs against.
	PublicURL string `yaml:"public_url" toml:"public_url"`
}

// PhoneRelay holds the Redis connection used by the phone relay provider.
type PhoneRelay struct {
	RedisAddr      string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" toml:"redis_password"`
	RedisDB        int    `yaml:"redis_db" toml:"redis_db"`
	OutboundKey    string `yaml:"outbound_key" toml:"outbound_key"`
	InboundChannel string `yaml:"inbound_channel" toml:"inbound_channel"`
}

// DedupeConfig sizes the inbound event dedupe window.
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads the file at path, decoding TOML for .toml files and YAML otherwise.
// ${VAR} references are expanded before decoding; SMSRELAY_DB_PATH overrides
// database.path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.Database.Path = p
	}
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// DefaultPath returns the config file location.
// Priority: SMSRELAY_CONFIG > $XDG_CONFIG_HOME/smsrelay/config.yaml > ~/.config/smsrelay/config.yaml
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "smsrelay", "config.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Transport.TimeoutRaw != "" {
		cfg.Transport.Timeout, err = time.ParseDuration(cfg.Transport.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing transport.timeout %q: %w", cfg.Transport.TimeoutRaw, err)
		}
	}
	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "smsrelay.db"
	}
	if c.Relay.CommandPrefix == "" {
		c.Relay.CommandPrefix = "!"
	}
	if c.Relay.ReservedAliases == nil {
		c.Relay.ReservedAliases = []string{"sms", "bot"}
	}
	if c.Relay.FallbackAliases == nil {
		c.Relay.FallbackAliases = []string{"general"}
	}
	if c.Transport.Provider == "" {
		c.Transport.Provider = ProviderLog
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 15 * time.Second
	}
	if c.Transport.Relay.OutboundKey == "" {
		c.Transport.Relay.OutboundKey = "smsrelay:outbound"
	}
	if c.Transport.Relay.InboundChannel == "" {
		c.Transport.Relay.InboundChannel = "smsrelay:inbound"
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 10 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate returns the first configuration problem found.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Matrix.Enabled {
		u, err := url.Parse(c.Matrix.Homeserver)
		if c.Matrix.Homeserver == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("matrix.homeserver must be an http(s) URL")
		}
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required")
		}
	}

	switch c.Transport.Provider {
	case ProviderTwilio:
		t := c.Transport.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.From == "" {
			return fmt.Errorf("transport.twilio requires account_sid, auth_token, and from")
		}
		if t.ValidateSignatures && t.PublicURL == "" {
			return fmt.Errorf("transport.twilio.public_url is required when validate_signatures is set")
		}
	case ProviderRelay:
		if c.Transport.Relay.RedisAddr == "" {
			return fmt.Errorf("transport.relay.redis_addr is required")
		}
	case ProviderLog:
	default:
		return fmt.Errorf("transport.provider %q is not one of twilio, relay, log", c.Transport.Provider)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// ExampleYAML is written by `smsrelay init`.
const ExampleYAML = `# smsrelay configuration
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "${HOME}/.local/share/smsrelay/smsrelay.db"

auth:
  # at least 32 bytes; leave empty to disable the REST API
  jwt_secret: "${SMSRELAY_JWT_SECRET}"

matrix:
  enabled: true
  homeserver: "https://matrix.example.org"
  user_id: "@smsrelay:example.org"
  access_token: "${SMSRELAY_MATRIX_TOKEN}"
  allowed_rooms: []
  allowed_users: []

relay:
  command_prefix: "!"
  reserved_aliases: ["sms", "bot"]
  fallback_aliases: ["general"]

transport:
  provider: "log"   # twilio | relay | log
  timeout: "15s"
  twilio:
    account_sid: "${TWILIO_ACCOUNT_SID}"
    auth_token: "${TWILIO_AUTH_TOKEN}"
    from: "+15550000000"
    validate_signatures: false
  relay:
    redis_addr: "127.0.0.1:6379"

dedupe:
  ttl: "10m"
  max_size: 10000

logging:
  level: "info"
  format: "text"
`
