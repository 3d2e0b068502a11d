package ui

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/prefs"
	"github.com/five82/tables/internal/state"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

// View represents the current active view.
type View int

const (
	ViewLogin View = iota
	ViewDashboard
	ViewLogs
)

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayInstructions
)

// Options configures the UI.
type Options struct {
	Context       context.Context
	Service       *actions.Service
	Log           *statuslog.Log
	AuthExpired   <-chan struct{} // receives once per scheduled login redirect
	PhaseChanges  <-chan poller.Phase
	ServerURL     string
	ThemeName     string
	PrefsPath     string
	Username      string
	DownloadDir   string
	ClientLogPath string
	PollTick      time.Duration
	Logger        *slog.Logger
}

// jobStatus is the UI's view of the current poll session.
type jobStatus struct {
	started  bool
	phase    poller.Phase
	attempts int
	elapsed  time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx           context.Context
	service       *actions.Service
	log           *statuslog.Log
	authExpired   <-chan struct{}
	phaseChanges  <-chan poller.Phase
	serverURL     string
	prefsPath     string
	downloadDir   string
	clientLogPath string
	pollTick      time.Duration
	keys          keyMap
	logger        *slog.Logger

	// UI state
	theme   Theme
	view    View
	overlay overlay
	width   int
	height  int
	ready   bool

	// Data state
	snapshot    state.Snapshot
	entries     []statuslog.Entry
	entriesSeen int
	job         jobStatus

	// Forms
	login  loginForm
	prompt uploadPrompt

	// Activity
	busy    string // label of the running action, empty when idle
	spinner spinner.Model

	statusViewport viewport.Model
	logViewport    viewport.Model
	logs           logsState
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = 500 * time.Millisecond
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	log := opts.Log
	if log == nil {
		log = statuslog.New(nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		ctx:           ctx,
		service:       opts.Service,
		log:           log,
		authExpired:   opts.AuthExpired,
		phaseChanges:  opts.PhaseChanges,
		serverURL:     opts.ServerURL,
		prefsPath:     prefsPath,
		downloadDir:   opts.DownloadDir,
		clientLogPath: opts.ClientLogPath,
		pollTick:      pollTick,
		keys:          DefaultKeyMap(),
		logger:        logger,
		theme:         GetTheme(themeName),
		view:          ViewLogin,
		login:         newLoginForm(opts.Username),
		prompt:        newUploadPrompt(),
		spinner:       sp,
		logs:          logsState{source: logSourceServer},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
		m.spinner.Tick,
		textinput.Blink,
	}
	if m.service != nil {
		cmds = append(cmds, checkAuthCmd(m.ctx, m.service))
	}
	if m.authExpired != nil {
		cmds = append(cmds, waitForRedirectCmd(m.ctx, m.authExpired))
	}
	if m.phaseChanges != nil {
		cmds = append(cmds, waitForPhaseCmd(m.ctx, m.phaseChanges))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.updateStatusViewport(true)
		m.updateLogViewport()
		return m, nil

	case tickMsg:
		return m, tea.Batch(
			fetchSnapshotCmd(m.service, m.log, m.entriesSeen),
			tickCmd(m.pollTick),
		)

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case authCheckedMsg:
		return m.handleAuthChecked(msg)

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case authExpiredMsg:
		return m.handleAuthExpired()

	case phaseChangedMsg:
		// Refresh now instead of waiting for the next tick.
		return m, tea.Batch(
			fetchSnapshotCmd(m.service, m.log, m.entriesSeen),
			waitForPhaseCmd(m.ctx, m.phaseChanges),
		)

	case actionDoneMsg:
		return m.handleActionDone(msg)

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	// Let focused inputs consume everything else (cursor blink etc.).
	return m.updateInputs(msg)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	switch m.overlay {
	case overlayHelp:
		return m.renderHelp()
	case overlayInstructions:
		return m.renderInstructions()
	}

	if m.view == ViewLogin {
		return m.renderLogin()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Any key closes an overlay
	if m.overlay != overlayNone {
		m.overlay = overlayNone
		return m, nil
	}

	if m.view == ViewLogin {
		return m.handleLoginKey(msg)
	}
	if m.prompt.active {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil
	case key.Matches(msg, m.keys.Instructions):
		m.overlay = overlayInstructions
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		name := m.theme.Name
		if m.prefsPath != "" {
			if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Theme = name }); err != nil {
				m.logger.Warn("save prefs failed", "path", m.prefsPath, "error", err)
			}
		}
		m.updateStatusViewport(true)
		return m, nil
	}

	switch m.view {
	case ViewLogs:
		return m.handleLogsKey(msg)
	default:
		return m.handleDashboardKey(msg)
	}
}

// handleDashboardKey processes keys on the dashboard.
func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ViewLogs):
		m.view = ViewLogs
		m.updateLogViewport()
		cmd := m.refreshLogs()
		return m, cmd
	case key.Matches(msg, m.keys.Up):
		m.statusViewport.ScrollUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.statusViewport.ScrollDown(1)
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.statusViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.statusViewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.HalfPageUp):
		m.statusViewport.HalfPageUp()
		return m, nil
	case key.Matches(msg, m.keys.HalfPageDown):
		m.statusViewport.HalfPageDown()
		return m, nil
	}

	if m.busy != "" || m.service == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.UploadSklad):
		return m.openPrompt(tables.UploadSklad)
	case key.Matches(msg, m.keys.UploadReestr):
		return m.openPrompt(tables.UploadReestr)
	case key.Matches(msg, m.keys.Start):
		return m.runAction(actionStart, "Starting processing", func(ctx context.Context, svc *actions.Service) error {
			_, err := svc.Start(ctx)
			return err
		})
	case key.Matches(msg, m.keys.Download):
		dir := m.downloadDir
		return m.runAction(actionDownload, "Downloading", func(ctx context.Context, svc *actions.Service) error {
			_, err := svc.Download(ctx, dir)
			return err
		})
	case key.Matches(msg, m.keys.Clear):
		return m.runAction(actionClear, "Clearing", func(ctx context.Context, svc *actions.Service) error {
			return svc.Clear(ctx)
		})
	case key.Matches(msg, m.keys.Refresh):
		return m.runAction(actionRefresh, "Refreshing", func(ctx context.Context, svc *actions.Service) error {
			if _, err := svc.CheckAuth(ctx); err != nil {
				return err
			}
			_, err := svc.RefreshIndicators(ctx)
			return err
		})
	case key.Matches(msg, m.keys.Logout):
		return m.runAction(actionLogout, "Logging out", func(ctx context.Context, svc *actions.Service) error {
			return svc.Logout(ctx)
		})
	}
	return m, nil
}

func (m Model) handleAuthChecked(msg authCheckedMsg) (tea.Model, tea.Cmd) {
	m.login.checking = false
	switch {
	case msg.err != nil:
		// The server could not answer; let the user try to work anyway.
		m.log.Append("Could not verify the session: "+errorText(msg.err), statuslog.Warning)
		m.view = ViewDashboard
	case msg.auth.Authenticated:
		m.view = ViewDashboard
	default:
		m.view = ViewLogin
		cmd := m.login.focusCmd()
		return m, cmd
	}
	m.log.Append("Ready", statuslog.Info)
	return m, refreshIndicatorsCmd(m.ctx, m.service)
}

func (m Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.login.submitting = false
	if msg.err != nil {
		m.login.err = loginErrorText(msg.err)
		m.login.password.SetValue("")
		cmd := m.login.focusCmd()
		return m, cmd
	}
	m.login.err = ""
	m.login.password.SetValue("")
	m.view = ViewDashboard
	m.log.Append("Ready", statuslog.Info)
	return m, tea.Batch(
		refreshIndicatorsCmd(m.ctx, m.service),
		fetchSnapshotCmd(m.service, m.log, m.entriesSeen),
	)
}

func (m Model) handleAuthExpired() (tea.Model, tea.Cmd) {
	m.view = ViewLogin
	m.overlay = overlayNone
	m.prompt.close()
	m.busy = ""
	m.login.err = "Session expired, please log in again"
	m.login.password.SetValue("")
	cmds := []tea.Cmd{m.login.focusCmd(), stopPollsCmd(m.service)}
	if m.authExpired != nil {
		cmds = append(cmds, waitForRedirectCmd(m.ctx, m.authExpired))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleActionDone(msg actionDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	if msg.name == actionLogout {
		m.view = ViewLogin
		m.login.err = ""
		focus := m.login.focusCmd()
		return m, tea.Batch(focus, fetchSnapshotCmd(m.service, m.log, m.entriesSeen))
	}
	return m, fetchSnapshotCmd(m.service, m.log, m.entriesSeen)
}

// applySnapshot copies fresh state into the model.
func (m *Model) applySnapshot(msg snapshotMsg) {
	m.snapshot = msg.snapshot
	m.job = msg.job
	if msg.entries != nil {
		m.entries = msg.entries
		m.entriesSeen = len(msg.entries)
		m.updateStatusViewport(true)
	}
}

func (m Model) runAction(name, label string, fn func(context.Context, *actions.Service) error) (tea.Model, tea.Cmd) {
	m.busy = label
	ctx, svc := m.ctx, m.service
	return m, func() tea.Msg {
		return actionDoneMsg{name: name, err: fn(ctx, svc)}
	}
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.view == ViewLogin:
		m.login, cmd = m.login.update(msg)
	case m.prompt.active:
		m.prompt.input, cmd = m.prompt.input.Update(msg)
	}
	return m, cmd
}

// Action names

const (
	actionUpload   = "upload"
	actionStart    = "start"
	actionDownload = "download"
	actionClear    = "clear"
	actionRefresh  = "refresh"
	actionLogout   = "logout"
)

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	snapshot state.Snapshot
	entries  []statuslog.Entry // nil when the log did not change
	job      jobStatus
}

type authCheckedMsg struct {
	auth tables.AuthStatus
	err  error
}

type loginResultMsg struct {
	auth tables.AuthStatus
	err  error
}

type authExpiredMsg struct{}

type phaseChangedMsg poller.Phase

type actionDoneMsg struct {
	name string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(svc *actions.Service, log *statuslog.Log, seen int) tea.Cmd {
	return func() tea.Msg {
		var msg snapshotMsg
		if svc != nil {
			msg.snapshot = svc.Store().Snapshot()
			if polls := svc.Polls(); polls != nil {
				if s := polls.Current(); s != nil {
					msg.job = jobStatus{started: true, phase: s.Phase(), attempts: s.Attempts(), elapsed: s.Elapsed()}
				}
			}
		}
		if log != nil && log.Len() != seen {
			msg.entries = log.Entries()
		}
		return msg
	}
}

func checkAuthCmd(ctx context.Context, svc *actions.Service) tea.Cmd {
	return func() tea.Msg {
		auth, err := svc.CheckAuth(ctx)
		return authCheckedMsg{auth: auth, err: err}
	}
}

func refreshIndicatorsCmd(ctx context.Context, svc *actions.Service) tea.Cmd {
	if svc == nil {
		return nil
	}
	return func() tea.Msg {
		_, _ = svc.RefreshIndicators(ctx)
		return nil
	}
}

func stopPollsCmd(svc *actions.Service) tea.Cmd {
	if svc == nil || svc.Polls() == nil {
		return nil
	}
	return func() tea.Msg {
		svc.Polls().Stop()
		return nil
	}
}

func waitForRedirectCmd(ctx context.Context, ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return authExpiredMsg{}
		}
	}
}

func waitForPhaseCmd(ctx context.Context, ch <-chan poller.Phase) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-ch:
			if !ok {
				return nil
			}
			return phaseChangedMsg(p)
		}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(opts Options) error {
	m := New(opts)
	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(m, programOpts...)
	_, err := p.Run()
	return err
}
