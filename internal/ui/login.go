package ui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/prefs"
)

type loginField int

const (
	fieldUsername loginField = iota
	fieldPassword
)

// loginForm holds the credential inputs.
type loginForm struct {
	username   textinput.Model
	password   textinput.Model
	focus      loginField
	err        string
	checking   bool // initial auth check in flight
	submitting bool
}

func newLoginForm(username string) loginForm {
	user := textinput.New()
	user.Placeholder = "username"
	user.CharLimit = 64
	user.Prompt = ""
	user.SetValue(username)

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.CharLimit = 128
	pass.Prompt = ""
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	f := loginForm{username: user, password: pass, checking: true}
	if strings.TrimSpace(username) != "" {
		f.focus = fieldPassword
	}
	f.focusCmd()
	return f
}

// focusCmd focuses the active field and blurs the other one.
func (f *loginForm) focusCmd() tea.Cmd {
	if f.focus == fieldPassword {
		f.username.Blur()
		return f.password.Focus()
	}
	f.password.Blur()
	return f.username.Focus()
}

func (f *loginForm) nextField() tea.Cmd {
	if f.focus == fieldUsername {
		f.focus = fieldPassword
	} else {
		f.focus = fieldUsername
	}
	return f.focusCmd()
}

func (f loginForm) update(msg tea.Msg) (loginForm, tea.Cmd) {
	var cmd tea.Cmd
	if f.focus == fieldPassword {
		f.password, cmd = f.password.Update(msg)
	} else {
		f.username, cmd = f.username.Update(msg)
	}
	return f, cmd
}

// handleLoginKey processes keys while the login form is shown. Letter
// shortcuts are disabled here because every printable key goes to the inputs.
func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.submitting {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextField):
		cmd := m.login.nextField()
		return m, cmd
	case key.Matches(msg, m.keys.Confirm):
		return m.submitLogin()
	}

	var cmd tea.Cmd
	m.login, cmd = m.login.update(msg)
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(m.login.username.Value())
	password := m.login.password.Value()
	if username == "" {
		m.login.err = "Enter a username"
		m.login.focus = fieldUsername
		cmd := m.login.focusCmd()
		return m, cmd
	}
	if password == "" {
		m.login.err = "Enter a password"
		m.login.focus = fieldPassword
		cmd := m.login.focusCmd()
		return m, cmd
	}
	if m.service == nil {
		return m, nil
	}

	m.login.err = ""
	m.login.submitting = true
	ctx, svc := m.ctx, m.service
	return m, loginCmd(ctx, svc, username, password)
}

func loginCmd(ctx context.Context, svc *actions.Service, username, password string) tea.Cmd {
	return func() tea.Msg {
		auth, err := svc.Login(ctx, username, password)
		return loginResultMsg{auth: auth, err: err}
	}
}

// RememberUser returns a callback that stores the last successful username
// in prefs. It fits actions.Options.RememberUser.
func RememberUser(prefsPath string, logger *slog.Logger) func(string) {
	return func(user string) {
		if prefsPath == "" {
			return
		}
		if err := prefs.Update(prefsPath, func(p *prefs.Prefs) { p.Username = user }); err != nil && logger != nil {
			logger.Warn("save prefs failed", "path", prefsPath, "error", err)
		}
	}
}

// renderLogin draws the centered login card.
func (m Model) renderLogin() string {
	styles := m.theme.Styles()

	labelStyle := styles.MutedText.Width(10)
	fieldStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color(m.theme.Border)).
		Width(32)
	focusedField := fieldStyle.BorderForeground(lipgloss.Color(m.theme.BorderFocus))

	userField := fieldStyle
	passField := fieldStyle
	if m.login.focus == fieldUsername {
		userField = focusedField
	} else {
		passField = focusedField
	}

	var b strings.Builder
	b.WriteString(styles.Logo.Render(logoText))
	b.WriteString("\n")
	if m.serverURL != "" {
		b.WriteString(styles.FaintText.Render(m.serverURL))
	}
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom,
		labelStyle.Render("Username"), userField.Render(m.login.username.View())))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom,
		labelStyle.Render("Password"), passField.Render(m.login.password.View())))
	b.WriteString("\n\n")

	switch {
	case m.login.checking:
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Checking session..."))
	case m.login.submitting:
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Logging in..."))
	case m.login.err != "":
		b.WriteString(styles.DangerText.Render(m.login.err))
	default:
		b.WriteString(" ")
	}
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter: log in  tab: next field  esc: quit"))

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 3).
		Render(b.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, card)
}
