// Package logtail reads and classifies log lines for the logs view.
//
// # Overview
//
// Two sources feed the logs view: the server's recent lines from /get_logs
// and the client's own slog file. Both are plain text; this package turns
// them into trimmed lines with a status severity so the UI and the status
// log treat them the same way.
//
// # Reading Log Files
//
// Read uses a ring buffer to extract the last maxLines from a file in one
// pass:
//
//	1. Allocate ring buffer of size maxLines
//	2. For each line in file:
//	   - Store line at current index
//	   - Increment index (wrapping at maxLines)
//	   - Track total lines seen
//	3. If total < maxLines:
//	   - Return first 'count' entries from buffer
//	4. If total >= maxLines:
//	   - Return buffer starting from current index (oldest line)
//
// A non-positive maxLines reads the whole file.
//
// Example usage:
//
//	lines, err := logtail.Read("~/.local/state/tables/tables.log", 400)
//	if err != nil {
//		log.Printf("failed to read log: %v", err)
//	}
//
// # Classification
//
// Classify looks for level markers anywhere in the line:
//
//   - ERROR: error
//   - WARNING (server) or level=WARN (client): warning
//   - anything else: info
//
// # Error Handling
//
// Read returns nil, nil for non-existent files (graceful degradation).
// Other errors (permission denied, I/O errors) are returned wrapped.
package logtail
