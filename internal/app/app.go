package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/config"
	"github.com/five82/tables/internal/logging"
	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/prefs"
	"github.com/five82/tables/internal/state"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
	"github.com/five82/tables/internal/ui"
)

// Options configure the tables application.
type Options struct {
	ConfigPath string

	// Flag overrides; empty values keep the configured setting.
	ServerURL string
	LogLevel  string
	LogFormat string

	// LogWriter receives log records when set, instead of the log file.
	LogWriter io.Writer
}

// Env holds the wired components shared by the TUI and one-shot commands.
type Env struct {
	Config  config.Config
	Prefs   prefs.Prefs
	Logger  *slog.Logger
	Status  *statuslog.Log
	Store   *state.Store
	Jar     *tables.FileJar
	Client  *tables.Client
	Polls   *poller.Manager
	Service *actions.Service

	// AuthExpired receives once per scheduled login redirect.
	AuthExpired <-chan struct{}
	// PhaseChanges holds the latest poll phase change not yet received.
	PhaseChanges <-chan poller.Phase

	closeLog func() error
}

// Open loads configuration and wires the client stack.
func Open(opts Options) (*Env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, opts)

	logOpts := logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel, File: cfg.LogFile}
	if opts.LogWriter != nil {
		logOpts.File = ""
		logOpts.Writer = opts.LogWriter
	}
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	userPrefs, err := prefs.Load(cfg.PrefsFile)
	if err != nil {
		logger.Warn("load prefs failed", "path", cfg.PrefsFile, "error", err)
	}

	jar, err := tables.OpenJar(cfg.CookieFile, cfg.ServerURL)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}

	status := statuslog.New(logger.With("component", "status"))
	expired := make(chan struct{}, 1)

	client, err := tables.NewClient(tables.Options{
		BaseURL:       cfg.ServerURL,
		Timeout:       cfg.Timeout,
		Attempts:      cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		RedirectDelay: cfg.RedirectDelay,
		Jar:           jar,
		Sink:          status,
		Logger:        logger.With("component", "client"),
		OnAuthExpired: func() {
			select {
			case expired <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init client: %w", err)
	}

	store := &state.Store{}
	phases := make(chan poller.Phase, 1)
	polls := poller.NewManager(client, status, store, poller.Options{
		Interval:         cfg.PollInterval,
		MaxAttempts:      cfg.PollMaxAttempts,
		FailureThreshold: cfg.PollFailureThreshold,
		ProgressEvery:    cfg.PollProgressEvery,
		Logger:           logger.With("component", "poller"),
		OnPhase:          func(p poller.Phase) { offerLatest(phases, p) },
	})

	svc := actions.New(client, status, store, polls, actions.Options{
		Jar:          jar,
		RememberUser: ui.RememberUser(cfg.PrefsFile, logger.With("component", "prefs")),
		Logger:       logger.With("component", "actions"),
	})

	logger.Debug("client ready", "server", cfg.ServerURL, "cookies", cfg.CookieFile)

	return &Env{
		Config:       cfg,
		Prefs:        userPrefs,
		Logger:       logger,
		Status:       status,
		Store:        store,
		Jar:          jar,
		Client:       client,
		Polls:        polls,
		Service:      svc,
		AuthExpired:  expired,
		PhaseChanges: phases,
		closeLog:     closeLog,
	}, nil
}

// Close stops polling, persists cookies and closes the log file.
func (e *Env) Close() error {
	e.Polls.Stop()
	var errs []error
	if err := e.Jar.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save cookies: %w", err))
	}
	if e.closeLog != nil {
		if err := e.closeLog(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run boots the TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	env, err := Open(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil {
			env.Logger.Warn("shutdown", "error", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if interval := env.Config.RefreshInterval; interval > 0 {
		g.Go(func() error {
			return runRefresher(gctx, env.Service, interval, env.Logger.With("component", "refresher"))
		})
	}

	g.Go(func() error {
		// Quitting the UI ends the refresher too.
		defer cancel()
		err := ui.Run(ui.Options{
			Context:       gctx,
			Service:       env.Service,
			Log:           env.Status,
			AuthExpired:   env.AuthExpired,
			PhaseChanges:  env.PhaseChanges,
			ServerURL:     env.Config.ServerURL,
			ThemeName:     env.Prefs.Theme,
			PrefsPath:     env.Config.PrefsFile,
			Username:      env.Prefs.Username,
			DownloadDir:   orDefault(env.Prefs.DownloadDir, env.Config.DownloadDir),
			ClientLogPath: env.Config.LogFile,
			Logger:        env.Logger.With("component", "ui"),
		})
		if errors.Is(err, tea.ErrProgramKilled) && gctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// offerLatest puts v on ch, replacing a value nobody has received yet.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
