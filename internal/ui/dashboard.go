package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tables/internal/actions"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

// chromeHeight is the number of rows taken by header, command bar and footer.
const chromeHeight = 3

// uploadPrompt asks for the local path of a workbook.
type uploadPrompt struct {
	active bool
	kind   tables.UploadKind
	input  textinput.Model
}

func newUploadPrompt() uploadPrompt {
	in := textinput.New()
	in.Placeholder = "/path/to/workbook.xlsx"
	in.CharLimit = 1024
	in.Prompt = "› "
	return uploadPrompt{input: in}
}

func (p *uploadPrompt) close() {
	p.active = false
	p.input.Blur()
	p.input.SetValue("")
}

func (m Model) openPrompt(kind tables.UploadKind) (tea.Model, tea.Cmd) {
	m.prompt.active = true
	m.prompt.kind = kind
	m.prompt.input.SetValue("")
	cmd := m.prompt.input.Focus()
	return m, cmd
}

// handlePromptKey processes keys while the upload prompt is open.
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.prompt.close()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		kind := m.prompt.kind
		path := strings.TrimSpace(m.prompt.input.Value())
		m.prompt.close()
		return m.runAction(actionUpload, "Uploading "+kind.Filename(), func(ctx context.Context, svc *actions.Service) error {
			return svc.Upload(ctx, string(kind), path)
		})
	}

	var cmd tea.Cmd
	m.prompt.input, cmd = m.prompt.input.Update(msg)
	return m, cmd
}

// renderMain draws the dashboard or logs view under the header.
func (m Model) renderMain() string {
	var content string
	switch m.view {
	case ViewLogs:
		content = m.renderLogsView()
	default:
		content = m.renderDashboard()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderCommandBar(),
		content,
		m.renderFooter(),
	)
}

// renderDashboard shows the status log panel.
func (m Model) renderDashboard() string {
	title := "Status"
	if n := len(m.entries); n > 0 {
		title = "Status · " + pluralize(n, "message", "messages")
	}
	return m.renderPanel(title, m.statusViewport.View())
}

// renderPanel wraps body in a bordered box filling the content area.
func (m Model) renderPanel(title, body string) string {
	styles := m.theme.Styles()
	height := max(m.height-chromeHeight, 3)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Border)).
		Padding(0, 1).
		Width(max(m.width-2, 10)).
		Height(height - 2)

	return box.Render(styles.AccentText.Bold(true).Render(title) + "\n" + body)
}

// renderFooter shows the upload prompt or the latest status message.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	line := lipgloss.NewStyle().Width(m.width).Padding(0, 1)

	if m.prompt.active {
		label := styles.AccentText.Render("Upload " + m.prompt.kind.Filename() + ":")
		return line.Render(label + " " + m.prompt.input.View())
	}
	if len(m.entries) == 0 {
		return line.Render(styles.FaintText.Render("Press I for instructions"))
	}
	latest := m.entries[0]
	return line.Render(styles.SeverityStyle(latest.Severity).Render(truncate(latest.Text, max(m.width-4, 10))))
}

// updateStatusViewport sizes the status viewport and refreshes its content.
func (m *Model) updateStatusViewport(toTop bool) {
	if !m.ready {
		return
	}
	width := max(m.width-6, 10)
	height := max(m.height-chromeHeight-3, 1)
	m.statusViewport.Width = width
	m.statusViewport.Height = height
	m.statusViewport.SetContent(renderStatusEntries(m.entries, m.theme.Styles(), width))
	if toTop {
		m.statusViewport.GotoTop()
	}
}

// renderStatusEntries lists newest-first entries as "[15:04:05] text".
func renderStatusEntries(entries []statuslog.Entry, styles Styles, width int) string {
	if len(entries) == 0 {
		return styles.FaintText.Render("No messages yet")
	}

	textWidth := max(width-11, 10)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		stamp := styles.FaintText.Render("[" + e.Time.Format("15:04:05") + "] ")
		text := styles.SeverityStyle(e.Severity).Width(textWidth).Render(e.Text)
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, stamp, text))
	}
	return strings.Join(lines, "\n")
}
