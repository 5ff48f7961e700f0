// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_TWILIO_TOKEN", "tok-123")
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:9090"
database:
  path: "/var/lib/smsrelay/relay.db"
matrix:
  enabled: true
  homeserver: "https://matrix.example.org"
  user_id: "@relay:example.org"
  access_token: "syt_abc"
  allowed_rooms: ["!ops:example.org"]
relay:
  command_prefix: "/"
  default_group: "Friends"
transport:
  provider: twilio
  timeout: "5s"
  twilio:
    account_sid: "AC1"
    auth_token: "${TEST_TWILIO_TOKEN}"
    from: "+15550000000"
dedupe:
  ttl: "2m"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/smsrelay/relay.db", cfg.Database.Path)
	assert.Equal(t, []string{"!ops:example.org"}, cfg.Matrix.AllowedRooms)
	assert.Equal(t, "/", cfg.Relay.CommandPrefix)
	assert.Equal(t, "Friends", cfg.Relay.DefaultGroup)
	assert.Equal(t, ProviderTwilio, cfg.Transport.Provider)
	assert.Equal(t, "tok-123", cfg.Transport.Twilio.AuthToken)
	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
path = "relay.db"

[transport]
provider = "relay"

[transport.relay]
redis_addr = "127.0.0.1:6379"
redis_db = 2

[relay]
reserved_aliases = ["texts"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderRelay, cfg.Transport.Provider)
	assert.Equal(t, "127.0.0.1:6379", cfg.Transport.Relay.RedisAddr)
	assert.Equal(t, 2, cfg.Transport.Relay.RedisDB)
	assert.Equal(t, []string{"texts"}, cfg.Relay.ReservedAliases)
	assert.Equal(t, []string{"general"}, cfg.Relay.FallbackAliases)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "logging:\n  level: info\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "smsrelay.db", cfg.Database.Path)
	assert.Equal(t, "!", cfg.Relay.CommandPrefix)
	assert.Equal(t, []string{"sms", "bot"}, cfg.Relay.ReservedAliases)
	assert.Equal(t, ProviderLog, cfg.Transport.Provider)
	assert.Equal(t, 15*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "smsrelay:outbound", cfg.Transport.Relay.OutboundKey)
	assert.Equal(t, "smsrelay:inbound", cfg.Transport.Relay.InboundChannel)
	assert.Equal(t, 10*time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, 10000, cfg.Dedupe.MaxSize)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/override.db")
	path := writeConfig(t, "config.yaml", "database:\n  path: from-file.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad duration", "dedupe:\n  ttl: soon\n", "dedupe.ttl"},
		{"bad yaml", "server: [\n", "parsing config file"},
		{"unknown provider", "transport:\n  provider: pigeon\n", "transport.provider"},
		{"twilio missing creds", "transport:\n  provider: twilio\n", "account_sid"},
		{"relay missing redis", "transport:\n  provider: relay\n", "redis_addr"},
		{"matrix missing token", "matrix:\n  enabled: true\n  homeserver: https://m.org\n  user_id: \"@a:m.org\"\n", "access_token"},
		{"matrix bad homeserver", "matrix:\n  enabled: true\n  homeserver: m.org\n", "homeserver"},
		{"short secret", "auth:\n  jwt_secret: short\n", "jwt_secret"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"tailscale no hostname", "tailscale:\n  enabled: true\n", "tailscale.hostname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_ExampleYAML(t *testing.T) {
	t.Setenv("SMSRELAY_JWT_SECRET", "an-example-secret-that-is-32-bytes-long")
	t.Setenv("SMSRELAY_MATRIX_TOKEN", "syt_token")

	cfg, err := Load(writeConfig(t, "config.yaml", ExampleYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Matrix.Enabled)
	assert.Equal(t, ProviderLog, cfg.Transport.Provider)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SMSRELAY_TEST_A", "alpha")

	assert.Equal(t, "x=alpha y=", expandEnvVars("x=${SMSRELAY_TEST_A} y=${SMSRELAY_TEST_UNSET}"))
	assert.Equal(t, "$NOTBRACED", expandEnvVars("$NOTBRACED"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/smsrelay.yaml")
	assert.Equal(t, "/etc/smsrelay.yaml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "smsrelay", "config.yaml"), DefaultPath())
}
