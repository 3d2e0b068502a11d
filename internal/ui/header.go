package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/tables"
)

const logoText = "tables"

// renderHeader renders the status bar: logo, session, file indicators and job state.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < 90

	parts := []string{bg.Render(logoText, styles.Logo)}

	// Session
	auth := m.snapshot.Auth
	switch {
	case auth.Authenticated && auth.User != "":
		user := bg.Render("●", styles.SuccessText) + bg.Space() + bg.Render(auth.User, styles.Text)
		if t := auth.ParsedLoginTime(); !t.IsZero() && !compact {
			user += bg.Space() + bg.Render("since "+t.Format("15:04"), styles.MutedText)
		}
		parts = append(parts, user)
	case m.snapshot.HasAuth:
		parts = append(parts, bg.Render("● signed out", styles.DangerText))
	}

	// File indicators
	files := m.snapshot.Files
	chips := styles.Chip("SKLAD", files.Sklad) + bg.Space() +
		styles.Chip("REESTR", files.Reestr) + bg.Space() +
		styles.Chip("RESULT", files.Result)
	parts = append(parts, chips)

	if job := m.renderJobStatus(styles, bg); job != "" {
		parts = append(parts, job)
	}

	if m.snapshot.IsOffline() {
		parts = append(parts, bg.Render("OFFLINE", styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// renderJobStatus describes the busy action or the current poll session.
func (m Model) renderJobStatus(styles Styles, bg BgStyle) string {
	if m.busy != "" {
		return bg.Render(m.spinner.View(), styles.AccentText) + bg.Space() +
			bg.Render(m.busy+"...", styles.AccentText)
	}
	if !m.job.started {
		return ""
	}
	switch m.job.phase {
	case poller.PhasePolling:
		return bg.Render(m.spinner.View(), styles.WarningText) + bg.Space() +
			bg.Render(fmt.Sprintf("Processing %s", humanizeDuration(m.job.elapsed)), styles.WarningText)
	case poller.PhaseCompleted:
		return bg.Render("✓ Result ready", styles.SuccessText)
	case poller.PhaseTimedOut:
		return bg.Render("✗ Timed out", styles.DangerText)
	case poller.PhaseFailed:
		return bg.Render("✗ Status check failed", styles.DangerText)
	case poller.PhaseCanceled:
		return bg.Render("Canceled", styles.MutedText)
	}
	return ""
}

// renderCommandBar renders the key hints below the header.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	type hint struct{ key, desc string }
	var hints []hint
	switch m.view {
	case ViewLogs:
		source := "client"
		if m.logs.source == logSourceClient {
			source = "server"
		}
		hints = []hint{{"tab", source}, {"r", "refresh"}, {"esc", "back"}, {"j/k", "scroll"}, {"h", "help"}}
	default:
		hints = []hint{
			{"1", tables.UploadSklad.Filename()}, {"2", tables.UploadReestr.Filename()},
			{"s", "start"}, {"d", "download"}, {"c", "clear"}, {"l", "logs"},
			{"L", "logout"}, {"h", "help"}, {"e", "quit"},
		}
		if m.width < 90 {
			hints = []hint{{"1/2", "upload"}, {"s", "start"}, {"d", "download"}, {"l", "logs"}, {"h", "help"}}
		}
	}

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, bg.Render(h.key, styles.AccentText)+bg.Space()+bg.Render(h.desc, styles.MutedText))
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Background)).
		Width(m.width).
		Padding(0, 1).
		Render(bg.Join(parts, "  "))
}
