package pool

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/imagine-gateway/pkg/client"
)

// refreshInterval es la cadencia del refresco automático del estado
const refreshInterval = 5 * time.Second

// Async commands that return tea.Msg

func fetchStatus(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status, err := c.Status(ctx)
		return statusLoadedMsg{status: status, err: err}
	}
}

func reloadCredentials(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		count, err := c.Reload(ctx)
		return reloadCompleteMsg{count: count, err: err}
	}
}

func resetUsage(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := c.ResetUsage(ctx)
		return resetUsageCompleteMsg{err: err}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
