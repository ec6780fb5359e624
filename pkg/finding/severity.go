// Package finding holds the severity scale shared by the correlation rules,
// the report renderers and the metrics labels.
package finding

import "strings"

// Severity is the impact level of a correlated finding. Values are
// lowercase so they can be used directly as CSS classes and metric labels.
type Severity string

const (
	// Critical means the host is compromised or trivially compromisable.
	Critical Severity = "critical"

	// High means an exposed service with a known weak protocol (telnet, ftp).
	High Severity = "high"

	// Medium means a weak configuration reachable from the network.
	Medium Severity = "medium"

	// Low means a widened local attack surface.
	Low Severity = "low"

	// Info is context worth reading with no direct impact.
	Info Severity = "info"
)

// All returns every severity, most severe first.
func All() []Severity {
	return []Severity{Critical, High, Medium, Low, Info}
}

// Parse maps free-form input onto the scale. Unknown values become Info.
func Parse(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return Info
	}
	return sev
}

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// Compare orders severities most severe first, for slices.SortFunc.
func Compare(a, b Severity) int {
	return b.Score() - a.Score()
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}

// Color returns the report accent colour of the level.
func (s Severity) Color() string {
	switch s {
	case Critical:
		return "#b91c1c"
	case High:
		return "#ef4444"
	case Medium:
		return "#f59e0b"
	case Low:
		return "#22c55e"
	default:
		return "#60a5fa"
	}
}
