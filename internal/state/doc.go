// Package state holds the client-side session and file indicator state.
//
// # Overview
//
// Several goroutines write the store: the poll session records each
// /check_files result, the indicator refresher does the same in the
// background, and user actions record login, logout and session expiry.
// The UI only reads Snapshot on its tick.
//
//	Writers:                         Reader:
//	┌──────────────────────┐        ┌──────────────────┐
//	│ poller.Session.tick  │        │                  │
//	│ app.runRefresher     │───────→│ store.Snapshot() │
//	│ actions.Service      │(mutex) │      ↓           │
//	└──────────────────────┘        │  render header   │
//	                                └──────────────────┘
//
// # Core Types
//
// Store:
//   - Guards one Snapshot with a sync.RWMutex
//   - UpdateFiles keeps the previous indicators when a refresh fails and
//     counts consecutive failures
//   - SetAuth and ClearSession track who is logged in
//
// Snapshot:
//   - Copy of the state at a point in time
//   - IsOffline reports two or more consecutive failed refreshes
//   - Authenticated reports the last successful auth check
package state
