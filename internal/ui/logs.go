package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/logtail"
)

// Log source modes
type logSource int

const (
	logSourceServer logSource = iota
	logSourceClient
)

func (s logSource) String() string {
	if s == logSourceClient {
		return "Client log"
	}
	return "Server log"
}

const (
	logFetchTimeout = 10 * time.Second
	clientLogLimit  = 500
)

// logsState holds the lines shown in the logs view.
type logsState struct {
	source      logSource
	lines       []string
	loading     bool
	err         string
	lastRefresh time.Time
}

type logsMsg struct {
	source logSource
	lines  []string
	err    error
}

// handleLogsKey processes keys in the logs view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.ViewLogs):
		m.view = ViewDashboard
		return m, nil
	case key.Matches(msg, m.keys.ToggleSource):
		if m.logs.source == logSourceServer {
			m.logs.source = logSourceClient
		} else {
			m.logs.source = logSourceServer
		}
		m.logs.lines = nil
		m.logs.err = ""
		m.updateLogViewport()
		cmd := m.refreshLogs()
		return m, cmd
	case key.Matches(msg, m.keys.Refresh):
		cmd := m.refreshLogs()
		return m, cmd
	case key.Matches(msg, m.keys.Up):
		m.logViewport.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.logViewport.ScrollDown(1)
	case key.Matches(msg, m.keys.Top):
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.logViewport.HalfPageUp()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.logViewport.HalfPageDown()
	}
	return m, nil
}

// refreshLogs marks the view loading and returns the fetch command.
func (m *Model) refreshLogs() tea.Cmd {
	m.logs.loading = true
	return fetchLogsCmd(m.ctx, m.service, m.logs.source, m.clientLogPath)
}

func fetchLogsCmd(ctx context.Context, svc *actions.Service, source logSource, clientPath string) tea.Cmd {
	return func() tea.Msg {
		if source == logSourceClient {
			if clientPath == "" {
				return logsMsg{source: source, err: fmt.Errorf("client log file is not configured")}
			}
			lines, err := logtail.Read(clientPath, clientLogLimit)
			return logsMsg{source: source, lines: lines, err: err}
		}
		if svc == nil {
			return logsMsg{source: source}
		}
		fetchCtx, cancel := context.WithTimeout(ctx, logFetchTimeout)
		defer cancel()
		lines, err := svc.Logs(fetchCtx)
		return logsMsg{source: source, lines: lines, err: err}
	}
}

// handleLogs applies fetched lines if they belong to the active source.
func (m *Model) handleLogs(msg logsMsg) {
	if msg.source != m.logs.source {
		return
	}
	m.logs.loading = false
	m.logs.lastRefresh = time.Now()
	if msg.err != nil {
		m.logs.err = errorText(msg.err)
		return
	}
	m.logs.err = ""
	m.logs.lines = logtail.NonBlank(msg.lines)
	m.updateLogViewport()
	m.logViewport.GotoBottom()
}

// updateLogViewport sizes the log viewport and refreshes its content.
func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	width := max(m.width-6, 10)
	m.logViewport.Width = width
	m.logViewport.Height = max(m.height-chromeHeight-3, 1)
	m.logViewport.SetContent(m.renderLogLines(width))
}

func (m Model) renderLogLines(width int) string {
	styles := m.theme.Styles()
	if len(m.logs.lines) == 0 {
		return styles.FaintText.Render("No log lines")
	}
	out := make([]string, 0, len(m.logs.lines))
	for _, line := range m.logs.lines {
		out = append(out, styles.SeverityStyle(logtail.Classify(line)).Render(truncate(line, width)))
	}
	return strings.Join(out, "\n")
}

// renderLogsView shows the selected log source.
func (m Model) renderLogsView() string {
	styles := m.theme.Styles()
	title := m.logs.source.String()
	switch {
	case m.logs.loading:
		title += " · " + m.spinner.View() + " loading"
	case m.logs.err != "":
		title += " · " + styles.DangerText.Render(m.logs.err)
	case !m.logs.lastRefresh.IsZero():
		title += " · " + pluralize(len(m.logs.lines), "line", "lines") + " at " + m.logs.lastRefresh.Format("15:04:05")
	}
	return m.renderPanel(title, m.logViewport.View())
}
