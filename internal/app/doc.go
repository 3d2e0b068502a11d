// Package app is the composition root of the tables client.
//
// # Overview
//
// Open wires configuration, logging, preferences, the persistent cookie jar,
// the HTTP client, the shared state.Store, the status log, the poll session
// manager and the actions.Service. Both the TUI (Run) and the one-shot
// commands in cmd/tables start from the same Env.
//
// # Architecture
//
//	┌──────────────┐
//	│   Open()     │ Wire everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()        Defaults, TOML file, TABLES_* env
//	       ├─────> logging.New()        slog to the log file
//	       ├─────> tables.OpenJar()     Cookies from the last run
//	       ├─────> tables.NewClient()   401 redirect -> AuthExpired channel
//	       ├─────> poller.NewManager()  One poll session at a time
//	       └─────> actions.New()        User operations
//
//	Run():
//	┌─────────────────────────────────────────┐
//	│ errgroup                                │
//	│  ├─> ui.Run()          (blocks)         │
//	│  └─> runRefresher()    optional         │
//	│      └─> RefreshIndicators() -> Store   │
//	└─────────────────────────────────────────┘
//
// # Indicator Refresh
//
// With refresh-interval set, a background loop refreshes the file
// indicators while the user is logged in and no poll session is active.
// Consecutive failures back off exponentially up to 30 seconds.
//
// # Shutdown
//
// Quitting the UI cancels the refresher. Env.Close stops any poll session,
// saves cookies and closes the log file.
package app
