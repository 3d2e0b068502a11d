package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/tables/internal/tables"
)

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Files               tables.FileState
	HasFiles            bool
	Auth                tables.AuthStatus
	HasAuth             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // consecutive failed indicator refreshes
}

// IsOffline returns true when the server has been unreachable for multiple refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Authenticated reports whether the last auth check succeeded.
func (s Snapshot) Authenticated() bool {
	return s.HasAuth && s.Auth.Authenticated
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// UpdateFiles replaces the file indicators. When err is non-nil the previous
// indicators are kept but the error is recorded for visibility.
func (s *Store) UpdateFiles(files *tables.FileState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	if files != nil {
		s.snapshot.Files = *files
		s.snapshot.HasFiles = true
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// SetAuth records the result of an auth check.
func (s *Store) SetAuth(auth tables.AuthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Auth = auth
	s.snapshot.HasAuth = true
}

// ClearSession forgets auth and indicators after logout or session expiry.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Auth = tables.AuthStatus{}
	s.snapshot.HasAuth = true
	s.snapshot.Files = tables.FileState{}
	s.snapshot.HasFiles = false
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
