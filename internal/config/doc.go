// Package config loads smsrelay configuration.
//
// # Configuration File
//
// Location, in priority order:
//
//  1. SMSRELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/smsrelay/config.yaml
//  3. ~/.config/smsrelay/config.yaml
//
// Files ending in .toml are decoded as TOML; everything else as YAML.
// `smsrelay init` writes ExampleYAML to the default location.
//
// # Environment Variable Expansion
//
// Values may reference the environment before decoding:
//
//	auth:
//	  jwt_secret: "${SMSRELAY_JWT_SECRET}"
//
// SMSRELAY_DB_PATH overrides database.path after decoding.
//
// # Durations
//
// transport.timeout and dedupe.ttl use time.ParseDuration syntax ("15s", "10m").
//
// # Transport Providers
//
//   - twilio: Twilio REST API; inbound texts arrive on POST /api/sms/inbound
//   - relay:  phone relay over Redis; jobs are pushed to a list and inbound
//     texts arrive on a pub/sub channel
//   - log:    logs outbound messages without sending (development)
package config
