// Package actions implements the user-facing operations of the client:
// login and logout, uploads, starting and watching a job, downloading the
// result, clearing the server and reading its logs.
//
// Every operation reports progress and failures to the status log and
// returns the error as well, so the TUI and the one-shot commands share the
// same behavior.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/five82/tables/internal/logtail"
	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/state"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

const (
	logsHeader = "=== SYSTEM LOGS ==="
	logsFooter = "=== END OF LOGS ==="
)

// ErrResultMissing is returned by Download when the server has no result yet.
var ErrResultMissing = errors.New("result file not found")

// Persister saves session cookies. *tables.FileJar implements it.
type Persister interface {
	Save() error
}

// Options carry the optional collaborators of a Service.
type Options struct {
	Jar          Persister
	RememberUser func(username string)
	Logger       *slog.Logger
}

// Service runs user actions against the server.
type Service struct {
	api      tables.API
	sink     statuslog.Sink
	store    *state.Store
	polls    *poller.Manager
	jar      Persister
	remember func(string)
	logger   *slog.Logger
}

// New wires a Service. sink defaults to statuslog.Discard and store to a
// fresh Store.
func New(api tables.API, sink statuslog.Sink, store *state.Store, polls *poller.Manager, opts Options) *Service {
	if sink == nil {
		sink = statuslog.Discard
	}
	if store == nil {
		store = &state.Store{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      api,
		sink:     sink,
		store:    store,
		polls:    polls,
		jar:      opts.Jar,
		remember: opts.RememberUser,
		logger:   logger,
	}
}

// Store exposes the shared snapshot the service updates.
func (s *Service) Store() *state.Store {
	return s.store
}

// Polls exposes the job poll manager.
func (s *Service) Polls() *poller.Manager {
	return s.polls
}

// Login establishes a session and records who is logged in.
func (s *Service) Login(ctx context.Context, username, password string) (tables.AuthStatus, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return tables.AuthStatus{}, tables.Validationf("enter a username and password")
	}

	s.logger.Info("login attempt", "user", username)
	if err := s.api.Login(ctx, tables.Credentials{Username: username, Password: password}); err != nil {
		s.logger.Warn("login failed", "user", username, "error", err)
		return tables.AuthStatus{}, err
	}
	s.saveJar()
	if s.remember != nil {
		s.remember(username)
	}

	auth, err := s.api.CheckAuth(ctx)
	if err != nil {
		// The login itself succeeded; show who we asked to be.
		auth = tables.AuthStatus{Authenticated: true, User: username}
	}
	s.store.SetAuth(auth)
	s.sink.Append(fmt.Sprintf("Logged in as %s", orName(auth.User, username)), statuslog.Success)
	return auth, nil
}

// CheckAuth asks the server whether the stored session is still valid.
func (s *Service) CheckAuth(ctx context.Context) (tables.AuthStatus, error) {
	auth, err := s.api.CheckAuth(ctx)
	if err != nil {
		if tables.IsKind(err, tables.KindAuthExpired) {
			s.store.ClearSession()
			return tables.AuthStatus{}, nil
		}
		s.logger.Warn("auth check failed", "error", err)
		return tables.AuthStatus{}, err
	}
	if auth.Authenticated {
		s.store.SetAuth(auth)
	} else {
		s.store.ClearSession()
	}
	return auth, nil
}

// Logout clears the server-side files on a best-effort basis and then ends
// the session. The local session is forgotten even when logout fails.
func (s *Service) Logout(ctx context.Context) error {
	s.sink.Append("Logging out...", statuslog.Info)
	if s.polls != nil {
		s.polls.Stop()
	}

	if _, err := s.api.Clear(ctx); err != nil {
		s.logger.Warn("clear before logout failed", "error", err)
	}

	err := s.api.Logout(ctx)
	s.store.ClearSession()
	s.saveJar()
	if err != nil {
		s.sink.Append(fmt.Sprintf("Logout failed: %v", err), statuslog.Error)
		return fmt.Errorf("logout: %w", err)
	}
	s.sink.Append("Logged out successfully", statuslog.Success)
	return nil
}

// Upload sends the workbook at path as the given input kind. The kind, the
// extension and the file's existence are checked before any request.
func (s *Service) Upload(ctx context.Context, kind, path string) error {
	uploadKind, err := tables.ParseUploadKind(kind)
	if err != nil {
		return s.fail("File upload failed", err)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		s.sink.Append("Please choose a file", statuslog.Warning)
		return tables.Validationf("no file selected")
	}
	if err := tables.ValidateWorkbookName(path); err != nil {
		s.sink.Append("Only .xlsx files are supported", statuslog.Error)
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.fail("File upload failed", tables.Validationf("file %s does not exist", path))
		}
		return s.fail("File upload failed", fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		return s.fail("File upload failed", tables.Validationf("%s is a directory", path))
	}

	file, err := os.Open(path)
	if err != nil {
		return s.fail("File upload failed", fmt.Errorf("open %s: %w", path, err))
	}
	defer file.Close()

	name := filepath.Base(path)
	s.sink.Append(fmt.Sprintf("Uploading %s...", name), statuslog.Info)
	msg, err := s.api.Upload(ctx, uploadKind, name, file)
	if err != nil {
		return s.fail("File upload failed", err)
	}
	s.sink.Append(orName(msg.Message, fmt.Sprintf("%s uploaded as %s", name, uploadKind.Filename())), statuslog.Success)
	_, _ = s.RefreshIndicators(ctx)
	return nil
}

// Start launches the server-side job and begins polling for the result.
func (s *Service) Start(ctx context.Context) (*poller.Session, error) {
	s.sink.Append("Starting processing...", statuslog.Info)
	msg, err := s.api.Start(ctx)
	if err != nil {
		return nil, s.fail("Failed to start processing", err)
	}
	s.sink.Append(orName(msg.Message, "Processing started"), statuslog.Success)
	if s.polls == nil {
		return nil, nil
	}
	session, err := s.polls.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin polling: %w", err)
	}
	return session, nil
}

// Clear deletes the server-side workbooks and refreshes the indicators
// whatever the outcome.
func (s *Service) Clear(ctx context.Context) error {
	s.sink.Append("Clearing files on the server...", statuslog.Info)
	msg, err := s.api.Clear(ctx)
	if err != nil {
		err = s.fail("Failed to clear files", err)
	} else {
		s.sink.Append(orName(msg.Message, "Files cleared"), statuslog.Success)
	}
	_, _ = s.RefreshIndicators(ctx)
	return err
}

// Logs fetches the server log and echoes it into the status log between a
// header and a footer. The trimmed non-blank lines are returned.
func (s *Service) Logs(ctx context.Context) ([]string, error) {
	raw, err := s.api.GetLogs(ctx)
	if err != nil {
		return nil, s.fail("Failed to fetch logs", err)
	}
	lines := logtail.NonBlank(raw)
	if len(lines) == 0 {
		s.sink.Append("No logs found", statuslog.Warning)
		return nil, nil
	}
	s.sink.Append(logsHeader, statuslog.Info)
	for _, line := range lines {
		s.sink.Append(line, logtail.Classify(line))
	}
	s.sink.Append(logsFooter, statuslog.Info)
	return lines, nil
}

// RefreshIndicators updates the file indicators in the store. Failures are
// recorded in the store only; background refreshes stay out of the status
// log.
func (s *Service) RefreshIndicators(ctx context.Context) (tables.FileState, error) {
	files, err := s.api.CheckFiles(ctx)
	if err != nil {
		s.logger.Debug("indicator refresh failed", "error", err)
		s.store.UpdateFiles(nil, err)
		return tables.FileState{}, err
	}
	s.store.UpdateFiles(&files, nil)
	return files, nil
}

func (s *Service) fail(prefix string, err error) error {
	s.sink.Append(fmt.Sprintf("%s: %v", prefix, err), statuslog.Error)
	return err
}

func (s *Service) saveJar() {
	if s.jar == nil {
		return
	}
	if err := s.jar.Save(); err != nil {
		s.logger.Warn("save cookies failed", "error", err)
	}
}

func orName(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
