// Package config loads the client configuration.
//
// # Overview
//
// Settings are layered with viper: built-in defaults, then the TOML config
// file, then environment variables with the TABLES_ prefix. A missing config
// file is not an error; every field has a default.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/tables/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. TABLES_* environment variables override both
//
// # Default Values
//
//   - server-url: http://127.0.0.1:5000
//   - request-timeout: 30s, retry-attempts: 3, retry-delay: 1s
//   - redirect-delay: 2s (pause before returning to login after a 401)
//   - poll-interval: 2s, poll-max-attempts: 60
//   - poll-failure-threshold: 5, poll-progress-every: 10
//   - refresh-interval: 0 (background indicator refresh disabled)
//   - download-dir: ~/Downloads
//   - cookie-file: ~/.local/share/tables/cookies.json
//   - prefs-file: ~/.config/tables/prefs.toml
//   - log-file: ~/.local/state/tables/tables.log, log-level: info, log-format: text
//
// # TOML Format
//
//	server-url = "https://tables.example.org"
//	request-timeout = "45s"
//	poll-max-attempts = 90
//	log-level = "debug"
//
// # Environment
//
// Dashes become underscores: TABLES_SERVER_URL, TABLES_POLL_INTERVAL,
// TABLES_LOG_LEVEL and so on. Durations use Go syntax ("500ms", "2m").
//
// # Path Expansion
//
// Tilde paths are expanded to the home directory and relative paths are made
// absolute for the config file, download dir, cookie file, prefs file and
// log file.
//
// # Error Handling
//
// Load returns errors for unreadable or malformed config files and for
// values out of range (non-positive timeouts, zero attempts, unknown log
// levels or formats).
package config
