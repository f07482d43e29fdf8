package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Optionstream Configuration

[server]
# HTTP/WebSocket listen address
addr = ":8080"
read_timeout = "15s"
write_timeout = "15s"
shutdown_timeout = "10s"

[cache]
# How long a computed option-chain view is served without recomputation
ttl = "30s"
# How far past TTL a stale view may be served when fresh computation fails,
# expressed as a multiple of the TTL
stale_grace_multiple = 4.0

[broadcast]
# Push interval while the market is open
interval = "10s"
# Push interval while the market is closed
closed_interval = "1m"
# Per-symbol view computation timeout within a tick
symbol_timeout = "5s"
# Symbols processed concurrently per tick
workers = 4

[connection]
# Outbound message queue size per client
queue_size = 64
# Which message to drop when a client's queue is full: "oldest" or "newest"
drop_policy = "oldest"
# Consecutive drops before a slow client is disconnected
drop_threshold = 25

[analytics]
# Annual risk-free rate used for Greeks
risk_free_rate = 0.05

[store]
# SQLite database path (session tokens and analytics journal)
path = ""
# Persist per-computation analytics summaries
journal_enabled = true

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
`

const credentialsTemplate = `# Optionstream Credentials
# SECURITY: Keep this file private (chmod 600)

[kite]
api_key = ""
api_secret = ""
# An access token generated for the current trading day; also settable
# via the KITE_ACCESS_TOKEN environment variable
access_token = ""
# REST call budget against the Kite API
requests_per_second = 3.0
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
