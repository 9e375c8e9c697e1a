// Package pool es el TUI de inspección del pool de credenciales. Habla con
// el gateway por HTTP, no toca el store directamente.
package pool

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/imagine-gateway/pkg/client"
)

// Model is the Bubbletea model for the credential pool monitor
type Model struct {
	client *client.Client

	width    int
	height   int
	quitting bool

	status  *client.StatusResponse
	cursor  int
	spinner spinner.Model

	loading       bool
	statusMessage string
	errorMessage  string
}

// NewModel creates a new pool monitor TUI model
func NewModel(c *client.Client) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		client:  c,
		loading: true,
		spinner: s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatus(m.client),
		refreshTick(),
		m.spinner.Tick,
	)
}
