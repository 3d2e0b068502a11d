// Package poller watches a started conversion job until the result workbook
// appears, the attempt budget runs out, or probes keep failing.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

const (
	DefaultInterval         = 2 * time.Second
	DefaultMaxAttempts      = 60
	DefaultFailureThreshold = 5
	DefaultProgressEvery    = 10
)

// ErrAlreadyStarted is returned when Start is called on a session that has
// left the Idle phase.
var ErrAlreadyStarted = errors.New("poll session already started")

// Phase is a poll session's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseCompleted
	PhaseTimedOut
	PhaseFailed
	PhaseCanceled
)

func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseCompleted:
		return "completed"
	case PhaseTimedOut:
		return "timed out"
	case PhaseFailed:
		return "failed"
	case PhaseCanceled:
		return "canceled"
	default:
		return "idle"
	}
}

// Terminal reports whether no further probes will be issued.
func (p Phase) Terminal() bool {
	return p >= PhaseCompleted
}

// Prober checks which workbooks exist. *tables.Client implements it.
type Prober interface {
	CheckFiles(ctx context.Context) (tables.FileState, error)
}

// Recorder receives every probe result. *state.Store implements it.
type Recorder interface {
	UpdateFiles(files *tables.FileState, err error)
}

// Options tune a session. Zero values use the package defaults.
type Options struct {
	Interval         time.Duration
	MaxAttempts      int
	FailureThreshold int
	ProgressEvery    int

	Logger  *slog.Logger
	OnPhase func(Phase) // called after every phase change
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session is one job's poll loop.
type Session struct {
	prober   Prober
	sink     statuslog.Sink
	recorder Recorder
	opts     Options

	mu       sync.Mutex
	phase    Phase
	attempts int
	failures int
	last     *tables.FileState
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession builds an idle session. sink and recorder may be nil.
func NewSession(prober Prober, sink statuslog.Sink, recorder Recorder, opts Options) *Session {
	if sink == nil {
		sink = statuslog.Discard
	}
	return &Session{
		prober:   prober,
		sink:     sink,
		recorder: recorder,
		opts:     opts.withDefaults(),
		done:     make(chan struct{}),
	}
}

// Start moves the session from Idle to Polling and probes every Interval
// until a terminal phase or ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.phase = PhasePolling
	s.mu.Unlock()

	s.notify(PhasePolling)
	go s.run(runCtx, cancel)
	return nil
}

// Stop cancels a live session and waits for its loop to exit. A session
// that already reached a terminal phase keeps it.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Done is closed once the session stops probing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done and returns the phase.
func (s *Session) Wait(ctx context.Context) Phase {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s.Phase()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Attempts returns how many probes have been issued.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Elapsed is the nominal polling time covered so far.
func (s *Session) Elapsed() time.Duration {
	return time.Duration(s.Attempts()) * s.opts.Interval
}

func (s *Session) run(ctx context.Context, release context.CancelFunc) {
	defer close(s.done)
	defer release()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(PhaseCanceled)
			return
		case <-ticker.C:
		}
		if s.tick(ctx) {
			return
		}
	}
}

// tick issues one probe and reports whether the session is finished.
func (s *Session) tick(ctx context.Context) bool {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	files, err := s.prober.CheckFiles(ctx)
	if ctx.Err() != nil {
		s.finish(PhaseCanceled)
		return true
	}
	if s.recorder != nil {
		if err != nil {
			s.recorder.UpdateFiles(nil, err)
		} else {
			s.recorder.UpdateFiles(&files, nil)
		}
	}

	if err != nil {
		s.mu.Lock()
		s.failures++
		failures := s.failures
		s.mu.Unlock()

		s.opts.Logger.Warn("job status probe failed", "attempt", attempt, "failures", failures, "error", err)
		if failures >= s.opts.FailureThreshold {
			s.sink.Append(fmt.Sprintf("Error checking processing status: %v", err), statuslog.Error)
			s.finish(PhaseFailed)
			return true
		}
	} else {
		s.mu.Lock()
		s.failures = 0
		s.last = &files
		s.mu.Unlock()

		if files.Result {
			s.sink.Append("Processing complete! The result is ready to download", statuslog.Success)
			s.finish(PhaseCompleted)
			return true
		}
	}

	if attempt >= s.opts.MaxAttempts {
		s.sink.Append(s.timeoutMessage(), statuslog.Error)
		s.finish(PhaseTimedOut)
		return true
	}
	if attempt%s.opts.ProgressEvery == 0 {
		elapsed := time.Duration(attempt) * s.opts.Interval
		s.sink.Append(fmt.Sprintf("Processing continues... (%s)", elapsed.Round(time.Second)), statuslog.Info)
	}
	return false
}

func (s *Session) timeoutMessage() string {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	msg := "Timed out waiting for the result"
	var notes []string
	if last != nil {
		if missing := last.Missing(); len(missing) > 0 {
			notes = append(notes, "missing: "+strings.Join(missing, ", "))
		}
		if last.WorkingDir != "" {
			notes = append(notes, "working dir: "+last.WorkingDir)
		}
	}
	if len(notes) > 0 {
		msg += " (" + strings.Join(notes, "; ") + ")"
	}
	msg += ". Check the logs."
	return msg
}

func (s *Session) finish(phase Phase) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	s.phase = phase
	s.mu.Unlock()

	s.opts.Logger.Info("job poll finished", "phase", phase.String(), "attempts", s.Attempts())
	s.notify(phase)
}

func (s *Session) notify(phase Phase) {
	if s.opts.OnPhase != nil {
		s.opts.OnPhase(phase)
	}
}
