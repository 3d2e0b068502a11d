package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

// stubAPI answers the auth endpoints; every other call panics through the
// nil embedded interface.
type stubAPI struct {
	tables.API
	auth     tables.AuthStatus
	loginErr error
	logins   int
}

func (s *stubAPI) Login(context.Context, tables.Credentials) error {
	s.logins++
	return s.loginErr
}

func (s *stubAPI) CheckAuth(context.Context) (tables.AuthStatus, error) {
	return s.auth, nil
}

func newTestModel(t *testing.T, api tables.API) Model {
	t.Helper()
	log := statuslog.New(nil)
	var svc *actions.Service
	if api != nil {
		svc = actions.New(api, log, nil, nil, actions.Options{Logger: slog.New(slog.DiscardHandler)})
	}
	m := New(Options{
		Context:   context.Background(),
		Service:   svc,
		Log:       log,
		PrefsPath: t.TempDir() + "/prefs.toml",
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return out, cmd
}

func TestView_LoadingUntilSized(t *testing.T) {
	m := New(Options{})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View() = %q, want Loading...", got)
	}
}

func TestAuthChecked_Routing(t *testing.T) {
	m := newTestModel(t, nil)

	got, _ := update(t, m, authCheckedMsg{auth: tables.AuthStatus{Authenticated: true, User: "anna"}})
	if got.view != ViewDashboard {
		t.Fatalf("authenticated view = %v, want dashboard", got.view)
	}
	if got.login.checking {
		t.Fatalf("login.checking = true after auth check")
	}

	got, _ = update(t, m, authCheckedMsg{})
	if got.view != ViewLogin {
		t.Fatalf("unauthenticated view = %v, want login", got.view)
	}
}

func TestAuthChecked_ErrorLetsUserWork(t *testing.T) {
	m := newTestModel(t, nil)
	got, _ := update(t, m, authCheckedMsg{err: &tables.Error{Kind: tables.KindNetwork, Endpoint: "/check_auth"}})
	if got.view != ViewDashboard {
		t.Fatalf("view = %v, want dashboard", got.view)
	}
	entries := got.log.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want warning and ready", entries)
	}
	oldest := entries[len(entries)-1]
	if oldest.Severity != statuslog.Warning || !strings.Contains(oldest.Text, "Could not connect to the server") {
		t.Fatalf("oldest entry = %+v, want connection warning", oldest)
	}
}

func TestLoginForm_LetterKeysGoToInputs(t *testing.T) {
	m := newTestModel(t, nil)
	for _, r := range "eh?" {
		m, _ = update(t, m, runeKey(string(r)))
	}
	if got := m.login.username.Value(); got != "eh?" {
		t.Fatalf("username = %q, want %q", got, "eh?")
	}
	if m.overlay != overlayNone {
		t.Fatalf("overlay = %v, want none while typing", m.overlay)
	}
}

func TestLoginForm_RequiresPassword(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(t, api)
	m.login.username.SetValue("anna")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.login.err != "Enter a password" {
		t.Fatalf("login.err = %q, want password prompt", m.login.err)
	}
	if m.login.focus != fieldPassword {
		t.Fatalf("focus = %v, want password", m.login.focus)
	}
	if m.login.submitting || api.logins != 0 {
		t.Fatalf("submitting = %v logins = %d, want no request", m.login.submitting, api.logins)
	}
}

func TestLoginForm_SubmitsAndShowsDashboard(t *testing.T) {
	api := &stubAPI{auth: tables.AuthStatus{Authenticated: true, User: "anna"}}
	m := newTestModel(t, api)
	m.login.username.SetValue("anna")
	m.login.password.SetValue("secret")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.login.submitting {
		t.Fatalf("submitting = false after enter")
	}
	if cmd == nil {
		t.Fatalf("enter returned nil cmd")
	}
	msg, ok := cmd().(loginResultMsg)
	if !ok {
		t.Fatalf("cmd returned %T, want loginResultMsg", msg)
	}
	if msg.err != nil {
		t.Fatalf("login err = %v", msg.err)
	}

	m, _ = update(t, m, msg)
	if m.view != ViewDashboard {
		t.Fatalf("view = %v, want dashboard", m.view)
	}
	if m.login.password.Value() != "" {
		t.Fatalf("password kept after login")
	}
	if api.logins != 1 {
		t.Fatalf("logins = %d, want 1", api.logins)
	}
}

func TestLoginForm_RejectedShowsServerMessage(t *testing.T) {
	m := newTestModel(t, nil)
	m.login.submitting = true
	m, _ = update(t, m, loginResultMsg{err: &tables.Error{Kind: tables.KindRejected, Endpoint: "/login", Message: "Invalid credentials"}})
	if m.view != ViewLogin {
		t.Fatalf("view = %v, want login", m.view)
	}
	if m.login.err != "Invalid credentials" {
		t.Fatalf("login.err = %q, want server message", m.login.err)
	}
}

func TestAuthExpired_ReturnsToLogin(t *testing.T) {
	m := newTestModel(t, nil)
	m.view = ViewDashboard
	m.overlay = overlayHelp
	m.busy = "Downloading"

	m, _ = update(t, m, authExpiredMsg{})
	if m.view != ViewLogin || m.overlay != overlayNone || m.busy != "" {
		t.Fatalf("view/overlay/busy = %v/%v/%q, want login/none/idle", m.view, m.overlay, m.busy)
	}
	if !strings.Contains(m.login.err, "Session expired") {
		t.Fatalf("login.err = %q, want session expired", m.login.err)
	}
}

func TestPhaseChanged_FetchesSnapshotAndListensAgain(t *testing.T) {
	m := newTestModel(t, nil)
	phases := make(chan poller.Phase, 1)
	m.phaseChanges = phases

	_, cmd := update(t, m, phaseChangedMsg(poller.PhaseCompleted))
	if cmd == nil {
		t.Fatalf("phase change returned nil cmd")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("phase change cmd = %T, want a batch of 2", batch)
	}

	phases <- poller.PhaseTimedOut
	var snapshot, relisten bool
	for _, c := range batch {
		switch msg := c().(type) {
		case snapshotMsg:
			snapshot = true
		case phaseChangedMsg:
			relisten = poller.Phase(msg) == poller.PhaseTimedOut
		}
	}
	if !snapshot || !relisten {
		t.Fatalf("snapshot = %v, relisten = %v; want both", snapshot, relisten)
	}
}

func TestDashboard_UploadPromptOpensAndCloses(t *testing.T) {
	m := newTestModel(t, &stubAPI{})
	m.view = ViewDashboard

	m, _ = update(t, m, runeKey("2"))
	if !m.prompt.active || m.prompt.kind != tables.UploadReestr {
		t.Fatalf("prompt = %+v, want active reestr prompt", m.prompt)
	}

	// Letters go to the path input while the prompt is open.
	m, _ = update(t, m, runeKey("s"))
	if m.busy != "" {
		t.Fatalf("busy = %q, want no action while prompting", m.busy)
	}
	if got := m.prompt.input.Value(); got != "s" {
		t.Fatalf("prompt input = %q, want %q", got, "s")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.prompt.active {
		t.Fatalf("prompt still active after esc")
	}
}

func TestDashboard_ActionsIgnoredWhileBusy(t *testing.T) {
	m := newTestModel(t, &stubAPI{})
	m.view = ViewDashboard
	m.busy = "Uploading sklad.xlsx"

	m, cmd := update(t, m, runeKey("1"))
	if m.prompt.active || cmd != nil {
		t.Fatalf("prompt = %v cmd = %v, want key ignored", m.prompt.active, cmd != nil)
	}
}

func TestActionDone_LogoutShowsLogin(t *testing.T) {
	m := newTestModel(t, nil)
	m.view = ViewDashboard
	m.busy = "Logging out"

	m, _ = update(t, m, actionDoneMsg{name: actionLogout, err: errors.New("boom")})
	if m.view != ViewLogin || m.busy != "" {
		t.Fatalf("view/busy = %v/%q, want login/idle", m.view, m.busy)
	}
}

func TestSnapshot_OnlyCopiesChangedLog(t *testing.T) {
	m := newTestModel(t, nil)
	m.log.Append("first", statuslog.Info)
	m.log.Append("second", statuslog.Success)

	msg := fetchSnapshotCmd(nil, m.log, m.entriesSeen)().(snapshotMsg)
	if len(msg.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(msg.entries))
	}
	m, _ = update(t, m, msg)
	if m.entriesSeen != 2 {
		t.Fatalf("entriesSeen = %d, want 2", m.entriesSeen)
	}

	again := fetchSnapshotCmd(nil, m.log, m.entriesSeen)().(snapshotMsg)
	if again.entries != nil {
		t.Fatalf("entries = %v, want nil when unchanged", again.entries)
	}
}

func TestRenderStatusEntries_KeepsNewestFirstOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	entries := []statuslog.Entry{
		{Time: base.Add(5 * time.Second), Severity: statuslog.Error, Text: "second"},
		{Time: base, Severity: statuslog.Info, Text: "first"},
	}
	out := renderStatusEntries(entries, GetTheme("Dracula").Styles(), 80)
	first := strings.Index(out, "first")
	second := strings.Index(out, "second")
	if first < 0 || second < 0 || second > first {
		t.Fatalf("output = %q, want second before first", out)
	}
	if !strings.Contains(out, "[10:00:05]") {
		t.Fatalf("output = %q, want timestamp", out)
	}
}

func TestHelpOverlay_ListsBindingsAndClosesOnAnyKey(t *testing.T) {
	m := newTestModel(t, nil)
	m.view = ViewDashboard

	m, _ = update(t, m, runeKey("h"))
	if m.overlay != overlayHelp {
		t.Fatalf("overlay = %v, want help", m.overlay)
	}
	view := m.View()
	for _, want := range []string{"Keyboard Shortcuts", "Upload sklad.xlsx", "Download result"} {
		if !strings.Contains(view, want) {
			t.Fatalf("help view missing %q", want)
		}
	}

	m, _ = update(t, m, runeKey("x"))
	if m.overlay != overlayNone {
		t.Fatalf("overlay = %v, want closed", m.overlay)
	}
}

func TestLogs_IgnoresStaleSource(t *testing.T) {
	m := newTestModel(t, nil)
	m.view = ViewLogs
	m.logs.source = logSourceClient
	m.logs.loading = true

	m, _ = update(t, m, logsMsg{source: logSourceServer, lines: []string{"server line"}})
	if len(m.logs.lines) != 0 || !m.logs.loading {
		t.Fatalf("logs = %+v, want stale server lines dropped", m.logs)
	}

	m, _ = update(t, m, logsMsg{source: logSourceClient, lines: []string{"a", " ", "b"}})
	if m.logs.loading || len(m.logs.lines) != 2 {
		t.Fatalf("logs = %+v, want two client lines", m.logs)
	}
}

func TestCycleTheme_LogsPrefsSaveFailure(t *testing.T) {
	var buf bytes.Buffer
	m := newTestModel(t, nil)
	m.prefsPath = t.TempDir() // a directory cannot be written as a file
	m.logger = slog.New(slog.NewTextHandler(&buf, nil))
	m, _ = update(t, m, authCheckedMsg{auth: tables.AuthStatus{Authenticated: true}})

	before := m.theme.Name
	m, _ = update(t, m, runeKey("T"))
	if m.theme.Name == before {
		t.Fatalf("theme = %q, want it to change", m.theme.Name)
	}
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "save prefs failed") {
		t.Fatalf("log = %q, want a prefs warning", out)
	}
}

func TestRememberUser_LogsPrefsSaveFailure(t *testing.T) {
	var buf bytes.Buffer
	RememberUser(t.TempDir(), slog.New(slog.NewTextHandler(&buf, nil)))("anna")
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "save prefs failed") {
		t.Fatalf("log = %q, want a prefs warning", out)
	}

	path := t.TempDir() + "/prefs.toml"
	buf.Reset()
	RememberUser(path, slog.New(slog.NewTextHandler(&buf, nil)))("anna")
	if buf.Len() != 0 {
		t.Fatalf("log = %q, want nothing on success", buf.String())
	}
}
