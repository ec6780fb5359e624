package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"os"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

//go:embed templates/report.html
var htmlTemplate string

// HTMLReporter renders report_<id>.html.
type HTMLReporter struct {
	dir      string
	branding Branding
	tmpl     *template.Template
}

var _ jobs.ReportExporter = (*HTMLReporter)(nil)

// NewHTMLReporter parses the embedded template once.
func NewHTMLReporter(dir string, b Branding) (*HTMLReporter, error) {
	tmpl, err := template.New("report").Funcs(funcMap()).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLReporter{dir: dir, branding: b, tmpl: tmpl}, nil
}

// ExportReport implements jobs.ReportExporter.
func (r *HTMLReporter) ExportReport(v jobs.View) (string, error) {
	data := buildData(v, r.branding)
	return writeFile(r.dir, ReportFile(v.ID, FormatHTML), func(f *os.File) error {
		return r.tmpl.Execute(f, data)
	})
}

func funcMap() template.FuncMap {
	title := cases.Title(language.English)
	fm := sprig.FuncMap()
	fm["title"] = title.String
	fm["sevColor"] = func(s finding.Severity) string { return s.Color() }
	fm["css"] = func(s string) template.CSS {
		if hexColor.MatchString(s) {
			return template.CSS(s)
		}
		return template.CSS("#0f172a")
	}
	fm["toJSON"] = func(v any) string {
		b, err := jsonutil.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fm
}
