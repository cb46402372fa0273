package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Premium Scanner Configuration

[scanner]
# Number of concurrent margin-calculation calls
workers = 4
# Collect per-row failures instead of aborting on the first one
partial = false
# Per-call HTTP timeout in seconds
timeout_seconds = 30
# Symbol used when none is given on the command line
default_symbol = "NIFTY"

[reference]
# SQLite cache for downloaded reference tables.
# Defaults to <config dir>/reference.db when empty.
cache_path = ""
# Re-download the instrument dump after this many days
instrument_ttl_days = 1
# Re-download the lot-size table after this many days
lot_size_ttl_days = 30

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
`

const credentialsTemplate = `# Premium Scanner Credentials
#
# Values here can be overridden by the CLIENT_ID, CLIENT_SECRET,
# REDIRECT_URL, CODE and TOKEN environment variables (a .env file in the
# working directory is also honored).

[upstox]
client_id = ""
client_secret = ""
redirect_url = ""
# One-time authorization code from the login dialog
auth_code = ""
# Access token from a previous 'pscan login' (valid until 03:30 IST)
token = ""
`

func createTemplateConfig(configDir string) error {
	return writeTemplate(configDir, "config.toml", configTemplate, 0644)
}

func createTemplateCredentials(configDir string) error {
	return writeTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
}

func writeTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}
