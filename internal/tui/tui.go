// Package tui implements the optional live terminal dashboard: a
// read-only bubbletea view over the same Snapshot struct the debug HTTP
// API serves. It never touches reactor state directly, only the
// best-effort snapshot channel the reactor publishes to, so a stalled
// terminal can never back up or deadlock the reactor goroutine.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/IRLToolkit/srtla/internal/reactor"
)

// SnapshotSource is the subset of *reactor.Reactor the dashboard needs.
type SnapshotSource interface {
	Subscribe() <-chan *reactor.Snapshot
	LatestSnapshot() *reactor.Snapshot
}

// Model is the dashboard's bubbletea model.
type Model struct {
	version   string
	snapshots <-chan *reactor.Snapshot
	current   *reactor.Snapshot
	rows      table.Model
	width     int
	height    int
}

// New builds a Model bound to source. It subscribes immediately so no
// snapshot published between New and the program starting is missed.
func New(version string, source SnapshotSource) Model {
	cols := []table.Column{
		{Title: "Group", Width: 18},
		{Title: "Last Addr", Width: 22},
		{Title: "Conns", Width: 6},
		{Title: "Age", Width: 8},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
	)

	m := Model{
		version:   version,
		snapshots: source.Subscribe(),
		current:   source.LatestSnapshot(),
		rows:      t,
	}
	m.rebuildRows()
	return m
}

// Run starts the dashboard program and blocks until the user quits.
func Run(version string, source SnapshotSource) error {
	p := tea.NewProgram(New(version, source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

type snapshotMsg *reactor.Snapshot

func waitForSnapshot(ch <-chan *reactor.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func fmtDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%ds", int(seconds))
}
