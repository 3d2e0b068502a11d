package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit         key.Binding
	Help         key.Binding
	Instructions key.Binding
	CycleTheme   key.Binding
	Escape       key.Binding

	// Actions
	UploadSklad  key.Binding
	UploadReestr key.Binding
	Start        key.Binding
	Download     key.Binding
	Clear        key.Binding
	Refresh      key.Binding
	Logout       key.Binding

	// View switching
	ViewLogs     key.Binding
	ToggleSource key.Binding

	// Navigation
	Up           key.Binding
	Down         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding

	// Forms
	NextField key.Binding
	Confirm   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		Instructions: key.NewBinding(
			key.WithKeys("I"),
			key.WithHelp("I", "How it works"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back"),
		),

		UploadSklad: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Upload sklad.xlsx"),
		),
		UploadReestr: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Upload reestr.xlsx"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Start processing"),
		),
		Download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Download result"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Clear server files"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Log out"),
		),

		ViewLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logs view"),
		),
		ToggleSource: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Server/client log"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Scroll down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("ctrl+u", "Half page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
			key.WithHelp("ctrl+d", "Half page down"),
		),

		NextField: key.NewBinding(
			key.WithKeys("tab", "shift+tab", "up", "down"),
			key.WithHelp("tab", "Next field"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.UploadSklad, k.UploadReestr, k.Start, k.Download, k.Clear, k.Refresh},
		{k.ViewLogs, k.ToggleSource, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom, k.HalfPageDown, k.HalfPageUp},
		{k.Instructions, k.CycleTheme, k.Logout, k.Help, k.Quit},
	}
}
