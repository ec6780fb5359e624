package ui

import (
	"fmt"
	"io"
	"strings"
)

// ASCII art banner
const bannerArt = `
                    __
   ____  ____ _____/ /_____________ _____
  / __ \/ __ ` + "`" + `/ __  / ___/ ___/ __ ` + "`" + `/ __ \
 / / / / /_/ / /_/ (__  ) /__/ /_/ / / / /
/_/ /_/\__,_/\__,_/____/\___/\__,_/_/ /_/
`

// Separator line
const bannerSeparator = "__________________________________________"

// Option is one line of the configuration banner.
type Option struct {
	Name  string
	Value string
}

// Printer renders banners, event lines and summaries to one stream.
type Printer struct {
	w    io.Writer
	term Terminal
}

// NewPrinter creates a Printer writing to w. Call t.Apply first so the
// lipgloss profile matches the stream.
func NewPrinter(w io.Writer, t Terminal) *Printer {
	return &Printer{w: w, term: t}
}

// Banner prints the application banner with version info.
func (p *Printer) Banner(version string) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(p.w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(p.w, "%31s\n\n", VersionStyle.Render("v"+version))
}

// ConfigBanner prints options in order, skipping empty values.
// Format:  :: Option              : Value
func (p *Printer) ConfigBanner(options []Option) {
	for _, o := range options {
		if o.Value == "" {
			continue
		}
		fmt.Fprintf(p.w, " :: %-20s : %s\n", ConfigLabelStyle.Render(o.Name), ConfigValueStyle.Render(o.Value))
	}
	fmt.Fprintf(p.w, "%s\n\n", DividerStyle.Render(bannerSeparator))
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, SectionStyle.Render("> "+title))
	fmt.Fprintln(p.w, DividerStyle.Render(strings.Repeat("-", 60)))
}

// Success prints a success message.
func (p *Printer) Success(message string) {
	fmt.Fprintln(p.w, PassStyle.Render("  "+p.term.Icon("✔", "[+]")+" "+p.term.Sanitize(message)))
}

// Error prints an error message.
func (p *Printer) Error(message string) {
	fmt.Fprintln(p.w, FailStyle.Render("  "+p.term.Icon("✘", "[X]")+" "+p.term.Sanitize(message)))
}

// Warning prints a warning message.
func (p *Printer) Warning(message string) {
	fmt.Fprintln(p.w, WarnStyle.Render("  [!] "+p.term.Sanitize(message)))
}

// Info prints an info message.
func (p *Printer) Info(message string) {
	fmt.Fprintf(p.w, "  %s %s\n", SpinnerStyle.Render("*"), p.term.Sanitize(message))
}

// Help prints contextual help.
func (p *Printer) Help(text string) {
	fmt.Fprintln(p.w, HelpStyle.Render("  [i] "+text))
}
