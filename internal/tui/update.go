package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rows.SetWidth(msg.Width - 4)
		m.rows.SetHeight(msg.Height - 8)

	case snapshotMsg:
		m.current = msg
		m.rebuildRows()
		return m, waitForSnapshot(m.snapshots)
	}

	var cmd tea.Cmd
	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

func (m *Model) rebuildRows() {
	var rows []table.Row
	if m.current != nil {
		now := m.current.Time
		for _, g := range m.current.Groups {
			rows = append(rows, table.Row{
				shortID(g.ID),
				g.LastAddr,
				fmt.Sprintf("%d", len(g.Conns)),
				fmtDuration(now.Sub(g.CreatedAt).Seconds()),
			})
		}
	}
	m.rows.SetRows(rows)
}

func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "…" + id[len(id)-8:]
}
