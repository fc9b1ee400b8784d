package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Configuration
# Relative paths are resolved against this directory.

[database]
path = "journal.db"

[storage]
# Object storage for chart images: "file" or "s3"
driver = "file"
dir = "images"
bucket = ""
region = "us-east-1"
# Custom endpoint for S3-compatible services (MinIO, R2)
endpoint = ""
use_path_style = false

[cache]
path = "image-cache.db"
# Cached images older than this are evicted
max_age = "720h"
janitor_schedule = "@every 1h"

[auth]
# Refuse sign-in until the email address is verified
require_verified = false
session_ttl = "720h"

[importer]
# Trade screenshot/text parsing service
url = ""
rate = 1.0
burst = 2
timeout = "60s"
# Pause imports after this many consecutive failures (0 disables)
breaker_threshold = 5
breaker_cooldown = "30s"

[server]
addr = ":8080"
allowed_origins = ["*"]
dev_mode = false

[sync]
first_snapshot_timeout = "10s"

[security]
# Block every journal write (browse-only)
read_only = false
# Append sign-in and mutation events to audit/audit.log
audit = true
audit_dir = "audit"

[logging]
level = "info"
console = true
file = true
file_path = "logs/journal.log"
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Trade Journal Credentials
# Keep this file private (0600).

[s3]
access_key_id = ""
secret_access_key = ""

[importer]
api_key = ""
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
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
