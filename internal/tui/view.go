package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	title := styleTitle.Render(fmt.Sprintf("srtla-rec %s", m.version))

	var stats string
	if m.current != nil {
		s := m.current.Stats
		stats = lipgloss.JoinHorizontal(lipgloss.Left,
			styleLabel.Render("groups: "), styleStat.Render(fmt.Sprintf("%d", s.LiveGroups)), "  ",
			styleLabel.Render("conns: "), styleStat.Render(fmt.Sprintf("%d", s.LiveConns)), "  ",
			styleLabel.Render("evicted groups: "), styleStat.Render(fmt.Sprintf("%d", s.EvictedGroups)), "  ",
			styleLabel.Render("evicted conns: "), styleStat.Render(fmt.Sprintf("%d", s.EvictedConns)),
		)
	} else {
		stats = styleLabel.Render("waiting for first eviction sweep...")
	}

	footer := styleFooter.Render("q quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, stats, m.rows.View(), footer)
}
