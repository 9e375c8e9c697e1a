package pool

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Clear previous messages on keypress
		m.errorMessage = ""
		m.statusMessage = ""

		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		if max := len(m.status.Pool.Credentials) - 1; m.cursor > max {
			m.cursor = 0
		}
		return m, nil

	case reloadCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.statusMessage = fmt.Sprintf("✓ Reloaded: %d credentials", msg.count)
		return m, fetchStatus(m.client)

	case resetUsageCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.statusMessage = "✓ Daily usage counters reset"
		return m, fetchStatus(m.client)

	case refreshTickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(fetchStatus(m.client), refreshTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.status != nil && m.cursor < len(m.status.Pool.Credentials)-1 {
			m.cursor++
		}
		return m, nil

	case "r":
		m.loading = true
		return m, reloadCredentials(m.client)

	case "u":
		m.loading = true
		return m, resetUsage(m.client)

	case "R":
		m.loading = true
		return m, fetchStatus(m.client)
	}

	return m, nil
}
