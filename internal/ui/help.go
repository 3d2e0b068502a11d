package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var helpSectionTitles = []string{"Actions", "Logs", "Navigation", "General"}

// renderHelp renders the help overlay from the key map.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	groups := m.keys.FullHelp()
	sections := make([]helpSection, 0, len(groups))
	for i, group := range groups {
		title := "Other"
		if i < len(helpSectionTitles) {
			title = helpSectionTitles[i]
		}
		sections = append(sections, helpSection{title: title, items: helpItems(group)})
	}

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for i, section := range sections {
		b.WriteString(styles.Text.Bold(true).Render(section.title))
		b.WriteString("\n")
		for _, item := range section.items {
			keyStyle := styles.AccentText.Width(12)
			b.WriteString(keyStyle.Render(item.key))
			b.WriteString(styles.MutedText.Render(item.desc))
			b.WriteString("\n")
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	return m.renderModal(b.String(), 44)
}

// renderInstructions renders the workflow overlay.
func (m Model) renderInstructions() string {
	styles := m.theme.Styles()

	steps := []string{
		"Upload the warehouse workbook (sklad.xlsx) with 1.",
		"Upload the registry workbook (reestr.xlsx) with 2.",
		"Press s to start processing on the server.",
		"Wait for the result indicator; progress shows in the status log.",
		"Press d to download the result workbook.",
		"Press c to clear the server files before the next run.",
	}

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("How it works"))
	b.WriteString("\n\n")
	for i, step := range steps {
		b.WriteString(styles.AccentText.Render(string(rune('1'+i)) + ". "))
		b.WriteString(styles.Text.Render(step))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("Only .xlsx files are accepted. Server logs are in the logs view (l)."))

	return m.renderModal(b.String(), 60)
}

// renderModal centers content in a bordered box over the screen.
func (m Model) renderModal(content string, width int) string {
	if m.width > 0 && width > m.width-4 {
		width = max(m.width-4, 20)
	}
	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(width)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(content),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

func helpItems(bindings []key.Binding) []helpItem {
	items := make([]helpItem, 0, len(bindings))
	for _, binding := range bindings {
		h := binding.Help()
		if h.Key == "" {
			continue
		}
		items = append(items, helpItem{key: h.Key, desc: h.Desc})
	}
	return items
}

type helpSection struct {
	title string
	items []helpItem
}

type helpItem struct {
	key  string
	desc string
}
