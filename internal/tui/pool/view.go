package pool

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Styles with adaptive colors for light/dark backgrounds
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"}).
			MarginLeft(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "250"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "9"}).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "34", Dark: "10"}).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"})

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "9"})

	exhaustedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "11"})
)

// View renders the pool monitor
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("🔑 Credential Pool") + "\n\n")

	if m.status == nil {
		if m.errorMessage == "" {
			content.WriteString("  " + m.spinner.View() + " Connecting to gateway...\n")
		}
	} else {
		content.WriteString(m.viewSummary())
		content.WriteString(m.viewCredentials())
	}

	if m.errorMessage != "" {
		content.WriteString("\n" + errorStyle.Render("Error: "+m.errorMessage))
	} else if m.statusMessage != "" {
		content.WriteString("\n" + successStyle.Render(m.statusMessage))
	}

	if m.loading && m.status != nil {
		content.WriteString("\n" + m.spinner.View() + " Working...")
	}

	content.WriteString("\n\n" + helpStyle.Render("  r: reload file • u: reset usage • R: refresh • q: quit"))
	return content.String()
}

func (m Model) viewSummary() string {
	p := m.status.Pool
	var b strings.Builder

	fmt.Fprintf(&b, "  %d credentials: %d available, %d exhausted, %d failed\n",
		p.Total, p.Available, p.Exhausted, p.Failed)
	fmt.Fprintf(&b, "  strategy: %s • daily limit: %d", p.Strategy, p.DailyLimit)
	if m.status.Config.RedisEnabled {
		b.WriteString(" • store: redis")
	} else {
		b.WriteString(" • store: file")
	}
	b.WriteString("\n")
	if !p.NextReset.IsZero() {
		fmt.Fprintf(&b, "  next quota reset in %s\n", formatUntil(p.NextReset))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewCredentials() string {
	creds := m.status.Pool.Credentials
	if len(creds) == 0 {
		return "  No credentials loaded. Add tokens to the sso file and press 'r'.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %-14s %-8s %-12s %-6s %s\n", "KEY", "USAGE", "LAST USED", "AGE✓", "STATE")

	for i, cred := range creds {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}

		lastUsed := "never"
		if cred.LastUsed != nil {
			lastUsed = cred.LastUsed.Local().Format("15:04:05")
		}

		ageIcon := " "
		if cred.AgeVerified {
			ageIcon = "✓"
		}

		state := "ok"
		style := lipgloss.NewStyle()
		switch {
		case cred.Failed:
			state = "failed"
			style = failedStyle
		case cred.Remaining <= 0:
			state = "exhausted"
			style = exhaustedStyle
		}

		line := fmt.Sprintf("%s%-14s %-8s %-12s %-6s %s",
			cursor,
			cred.Key,
			fmt.Sprintf("%d/%d", cred.UsageCount, cred.DailyLimit),
			lastUsed,
			ageIcon,
			state,
		)
		b.WriteString(style.Render(line) + "\n")
	}
	return b.String()
}

// formatUntil describe cuánto falta para un instante futuro
func formatUntil(t time.Time) string {
	d := time.Until(t)
	if d < 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	h := d / time.Hour
	min := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, min)
	}
	return fmt.Sprintf("%dm", min)
}
