// Package ui provides the terminal user interface for the tables client.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program with a single value-typed Model. Blocking
// work (HTTP calls, file reads) runs inside tea.Cmd functions and reports
// back as messages; Update never blocks.
//
// A ticker re-reads the shared state.Store, the status log and the current
// poll session every PollTick, so background updates made by the poller or
// the indicator refresher appear without explicit notifications.
//
// # Views
//
//   - Login: username and password form, shown at startup when the session
//     is not authenticated and after a session expiry redirect
//   - Dashboard: file indicators, job phase and the status log, newest first
//   - Logs: server log (GET /get_logs) or the local client log file
//
// Help (h) and instructions (I) are overlays closed by any key.
//
// # Session Expiry
//
// The HTTP client signals a pending login redirect on the AuthExpired
// channel. The model switches to the login form, stops the active poll
// session and listens for the next redirect.
//
// # Key Bindings
//
//   - 1/2: Upload sklad.xlsx/reestr.xlsx (opens a path prompt)
//   - s: Start processing, d: Download result, c: Clear server files
//   - r: Refresh auth and indicators
//   - l: Logs view, tab: toggle server/client log
//   - L: Log out, T: Cycle theme, e or Ctrl+C: Exit
package ui
