// Package statuslog keeps the operator-facing status messages shown in the
// dashboard. Entries are append-only and displayed newest first.
package statuslog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Severity classifies a status entry.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Success
)

// EmptyText replaces blank messages so nothing is rendered as an empty line.
const EmptyText = "Received an empty message"

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Success:
		return "success"
	default:
		return "info"
	}
}

// ParseSeverity maps a severity name back to its value.
func ParseSeverity(name string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return Info, true
	case "warning", "warn":
		return Warning, true
	case "error":
		return Error, true
	case "success":
		return Success, true
	}
	return Info, false
}

func (s Severity) level() slog.Level {
	switch s {
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is a single timestamped message. Entries are never modified once
// appended.
type Entry struct {
	Time     time.Time
	Severity Severity
	Text     string
}

// Sink accepts status messages. *Log implements it.
type Sink interface {
	Append(text string, severity Severity) Entry
}

// Discard is a Sink that drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(text string, severity Severity) Entry {
	return normalize(time.Now(), text, severity)
}

// Log is the append-only status log. The zero value is ready to use.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry // chronological; reversed on read
	listeners []func(Entry)

	Logger *slog.Logger
	Now    func() time.Time
}

var _ Sink = (*Log)(nil)

// New returns a Log that mirrors every entry to logger.
func New(logger *slog.Logger) *Log {
	return &Log{Logger: logger}
}

// Append records a message. Blank text is replaced with EmptyText and forced
// to Error severity.
func (l *Log) Append(text string, severity Severity) Entry {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	entry := normalize(now(), text, severity)

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	listeners := make([]func(Entry), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), entry.Severity.level(), entry.Text, "status", entry.Severity.String())

	for _, fn := range listeners {
		fn(entry)
	}
	return entry
}

// Entries returns a newest-first copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len reports how many entries have been appended.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe registers fn to be called after every Append. Listeners run on
// the appending goroutine and must not call Append themselves.
func (l *Log) Subscribe(fn func(Entry)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func normalize(at time.Time, text string, severity Severity) Entry {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Entry{Time: at, Severity: Error, Text: EmptyText}
	}
	return Entry{Time: at, Severity: severity, Text: trimmed}
}
