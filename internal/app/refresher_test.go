package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/state"
	"github.com/five82/tables/internal/tables"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 100; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

// filesAPI answers /check_files; every other call panics through the nil
// embedded interface.
type filesAPI struct {
	tables.API

	mu    sync.Mutex
	calls int
	err   error
	files tables.FileState
}

func (f *filesAPI) CheckFiles(context.Context) (tables.FileState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.files, f.err
}

func (f *filesAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newRefresherService(api tables.API, authenticated bool) *actions.Service {
	store := &state.Store{}
	if authenticated {
		store.SetAuth(tables.AuthStatus{Authenticated: true, User: "anna"})
	}
	return actions.New(api, nil, store, nil, actions.Options{Logger: slog.New(slog.DiscardHandler)})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunRefresher_UpdatesStoreWhileLoggedIn(t *testing.T) {
	api := &filesAPI{files: tables.FileState{Sklad: true, Result: true}}
	svc := newRefresherService(api, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runRefresher(ctx, svc, time.Millisecond, slog.New(slog.DiscardHandler)) }()

	waitFor(t, func() bool { return api.count() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runRefresher returned %v, want nil", err)
	}

	snap := svc.Store().Snapshot()
	if !snap.HasFiles || !snap.Files.Sklad || !snap.Files.Result || snap.Files.Reestr {
		t.Fatalf("files = %+v, want sklad and result", snap.Files)
	}
}

func TestRunRefresher_SkipsWhenLoggedOut(t *testing.T) {
	api := &filesAPI{}
	svc := newRefresherService(api, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := runRefresher(ctx, svc, time.Millisecond, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("runRefresher returned %v, want nil", err)
	}
	if got := api.count(); got != 0 {
		t.Fatalf("CheckFiles calls = %d, want 0", got)
	}
}

func TestRunRefresher_RecordsFailures(t *testing.T) {
	api := &filesAPI{err: errors.New("connection refused")}
	svc := newRefresherService(api, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runRefresher(ctx, svc, time.Millisecond, slog.New(slog.DiscardHandler)) }()

	waitFor(t, func() bool { return api.count() >= 2 })
	cancel()
	<-done

	snap := svc.Store().Snapshot()
	if !snap.IsOffline() {
		t.Fatalf("ConsecutiveFailures = %d, want offline", snap.ConsecutiveFailures)
	}
}
