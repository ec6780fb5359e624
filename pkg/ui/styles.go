package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
)

// Color palette
var (
	Primary   = lipgloss.Color("#7D56F4") // Purple - brand color
	Secondary = lipgloss.Color("#00D4AA") // Cyan/Teal

	// Severity colors
	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")
	Info     = lipgloss.Color("#4D96FF")

	// Status colors
	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
	Bright  = lipgloss.Color("#FAFAFA")
)

// Pre-configured styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true).
			MarginTop(1)

	ConfigLabelStyle = lipgloss.NewStyle().
				Foreground(Muted).
				Width(15)

	ConfigValueStyle = lipgloss.NewStyle().
				Foreground(Bright)

	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(Primary)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3B3B4F"))

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(Muted)

	StatValueStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true)

	BracketStyle = lipgloss.NewStyle().
			Foreground(Muted)

	PassStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	FailStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	DividerStyle = lipgloss.NewStyle().
			Foreground(Muted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	// Tool name badge
	ToolStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Background(lipgloss.Color("#3B3B4F")).
			Padding(0, 1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)
)

// SeverityStyle returns the badge style of a finding severity.
func SeverityStyle(sev finding.Severity) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch sev {
	case finding.Critical:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Critical)
	case finding.High:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(High)
	case finding.Medium:
		return base.Foreground(lipgloss.Color("#000000")).Background(Medium)
	case finding.Low:
		return base.Foreground(lipgloss.Color("#000000")).Background(Low)
	case finding.Info:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Info)
	default:
		return base.Foreground(Muted)
	}
}

// StatusStyle returns the style of a job status.
func StatusStyle(status jobs.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch status {
	case jobs.StatusQueued:
		return base.Foreground(Muted)
	case jobs.StatusRunning:
		return base.Foreground(Secondary)
	case jobs.StatusDone:
		return base.Foreground(Success)
	default:
		return base.Foreground(Muted)
	}
}

// OutcomeStyle returns PassStyle or FailStyle.
func OutcomeStyle(ok bool) lipgloss.Style {
	if ok {
		return PassStyle
	}
	return FailStyle
}
