package report

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Branding customizes the rendered reports. It is loaded from a YAML file
// so each deployment can carry its own header and colours.
type Branding struct {
	// Title heads the report, followed by the target.
	Title string `yaml:"title" json:"title"`

	// Organization appears under the title.
	Organization string `yaml:"organization" json:"organization"`

	// AccentColor is the header colour (hex, e.g. "#0f172a").
	AccentColor string `yaml:"accent_color" json:"accent_color"`

	// Footer appears at the bottom of every page.
	Footer string `yaml:"footer" json:"footer"`

	// ShowRawJSON embeds the full job JSON at the end of the HTML report.
	ShowRawJSON bool `yaml:"show_raw_json" json:"show_raw_json"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DefaultBranding returns the built-in look.
func DefaultBranding() Branding {
	return Branding{
		Title:        "Network Assessment",
		Organization: "nadscan",
		AccentColor:  "#0f172a",
		Footer:       "Generated by nadscan",
		ShowRawJSON:  true,
	}
}

// LoadBranding reads a YAML file over the defaults. An empty path returns
// the defaults.
func LoadBranding(path string) (Branding, error) {
	b := DefaultBranding()
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("branding %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// Validate returns descriptive errors instead of silently correcting values.
func (b Branding) Validate() error {
	var errs []string
	if strings.TrimSpace(b.Title) == "" {
		errs = append(errs, "title must not be empty")
	}
	if !hexColor.MatchString(b.AccentColor) {
		errs = append(errs, fmt.Sprintf("invalid accent_color %q: must be #rrggbb", b.AccentColor))
	}
	if len(errs) > 0 {
		return fmt.Errorf("branding validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

// rgb splits the accent colour for fpdf. Validate guarantees the format.
func (b Branding) rgb() (int, int, int) {
	var r, g, bl int
	if _, err := fmt.Sscanf(b.AccentColor, "#%02x%02x%02x", &r, &g, &bl); err != nil {
		return 15, 23, 42
	}
	return r, g, bl
}
