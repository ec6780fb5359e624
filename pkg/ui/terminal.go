package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Terminal describes what an output stream can render.
type Terminal struct {
	Color   bool
	Unicode bool
}

// Detect inspects f. Colour is off when f is not a terminal, when NO_COLOR
// is set or when TERM is "dumb". Unicode additionally needs Windows
// Terminal on Windows; legacy consoles lack the glyphs.
func Detect(f *os.File, getenv func(string) string) Terminal {
	if getenv == nil {
		getenv = os.Getenv
	}
	if f == nil || !term.IsTerminal(int(f.Fd())) || getenv("TERM") == "dumb" {
		return Terminal{}
	}
	t := Terminal{
		Color:   getenv("NO_COLOR") == "",
		Unicode: true,
	}
	if runtime.GOOS == "windows" {
		t.Unicode = getenv("WT_SESSION") != ""
	}
	return t
}

// Apply sets the lipgloss colour profile for t. Without colour every style
// renders as plain text.
func (t Terminal) Apply() {
	if !t.Color {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// Icon returns unicode when the terminal supports it, ascii otherwise.
func (t Terminal) Icon(unicode, ascii string) string {
	if t.Unicode {
		return unicode
	}
	return ascii
}

// Sanitize strips emoji and other multi-byte symbols from s when the
// terminal cannot render them.
func (t Terminal) Sanitize(s string) string {
	if t.Unicode {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r < 0x80:
			b.WriteByte(s[i])
		case isVariationSelector(r):
		case isSafeForLegacy(r):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// Fprintf writes to w with terminal-appropriate sanitization.
func (t Terminal) Fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, t.Sanitize(fmt.Sprintf(format, args...)))
}

// isVariationSelector returns true for Unicode variation selectors
// (U+FE00–U+FE0F).
func isVariationSelector(r rune) bool {
	return r >= 0xFE00 && r <= 0xFE0F
}

// isSafeForLegacy returns true for Latin-1 and Latin runes. Box drawing
// and block elements are excluded; legacy consoles garble them.
func isSafeForLegacy(r rune) bool {
	if r <= 0xFF {
		return true
	}
	return unicode.Is(unicode.Latin, r)
}
