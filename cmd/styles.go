package cmd

import "github.com/charmbracelet/lipgloss"

type chatStyles struct {
	prompt        lipgloss.Style
	answer        lipgloss.Style
	sourcesHeader lipgloss.Style
	sourceTitle   lipgloss.Style
	sourceMeta    lipgloss.Style
	notice        lipgloss.Style
}

func newChatStyles() chatStyles {
	return chatStyles{
		prompt:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		answer:        lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		sourcesHeader: lipgloss.NewStyle().Bold(true).MarginTop(1),
		sourceTitle:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		sourceMeta:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		notice:        lipgloss.NewStyle().Faint(true),
	}
}
