// Package strutil holds string helpers shared by the subprocess tools.
package strutil

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks output cut by Head.
const Ellipsis = "…"

// Head returns the first n runes of s followed by Ellipsis when s is longer.
// It never splits a rune.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + Ellipsis
}

// ShellJoin renders argv the way a POSIX shell would need it typed. It is
// used for display only; commands are never run through a shell.
func ShellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./-_", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
