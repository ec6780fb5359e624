package report

import (
	"fmt"
	"os"
	"strings"

	gofpdf "github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/strutil"
)

var pdfSeverityColors = map[finding.Severity][]int{
	finding.Critical: {185, 28, 28},
	finding.High:     {239, 68, 68},
	finding.Medium:   {245, 158, 11},
	finding.Low:      {34, 197, 94},
	finding.Info:     {96, 165, 250},
}

// PDFReporter renders report_<id>.pdf.
type PDFReporter struct {
	dir      string
	branding Branding
}

var _ jobs.ReportExporter = (*PDFReporter)(nil)

// NewPDFReporter writes into dir.
func NewPDFReporter(dir string, b Branding) *PDFReporter {
	return &PDFReporter{dir: dir, branding: b}
}

// ExportReport implements jobs.ReportExporter.
func (r *PDFReporter) ExportReport(v jobs.View) (string, error) {
	data := buildData(v, r.branding)
	pdf := r.render(data)
	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}
	return writeFile(r.dir, ReportFile(v.ID, FormatPDF), func(f *os.File) error {
		return pdf.Output(f)
	})
}

func (r *PDFReporter) render(d Data) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(d.Branding.Title, true)
	pdf.SetCreator("nadscan "+d.Version, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(100, 116, 139)
		pdf.CellFormat(0, 6, fmt.Sprintf("%s - page %d/{nb}", latin(d.Branding.Footer), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r.addHeader(pdf, d)
	r.addSummary(pdf, d)
	r.addFindings(pdf, d)
	r.addHosts(pdf, d)
	r.addLocal(pdf, d)
	r.addErrors(pdf, d)
	return pdf
}

func (r *PDFReporter) addHeader(pdf *gofpdf.Fpdf, d Data) {
	cr, cg, cb := d.Branding.rgb()
	pageW, _ := pdf.GetPageSize()
	pdf.SetFillColor(cr, cg, cb)
	pdf.Rect(0, 0, pageW, 32, "F")

	pdf.SetXY(15, 9)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 18)
	target := d.Job.Target
	if target == "" {
		target = "local host"
	}
	pdf.CellFormat(0, 8, latin(d.Branding.Title+": "+target), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, latin(fmt.Sprintf("%s - job %s - %s",
		d.Branding.Organization, strutil.Head(d.Job.ID, 8), d.Generated.Format("2006-01-02 15:04 MST"))), "", 1, "L", false, 0, "")
	pdf.SetY(40)
}

func (r *PDFReporter) addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(15, 23, 42)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (r *PDFReporter) addSummary(pdf *gofpdf.Fpdf, d Data) {
	r.addSectionHeader(pdf, "Summary")
	tools := strings.Join(d.Job.Tools, ", ")
	if tools == "" {
		tools = "none"
	}
	rows := [][2]string{
		{"Status", cases.Title(language.English).String(string(d.Job.Status))},
		{"Tools", tools},
		{"Succeeded", fmt.Sprint(len(d.Job.Results))},
		{"Failed", fmt.Sprint(len(d.Errors))},
		{"Findings", fmt.Sprint(len(d.Findings))},
		{"Duration", d.Duration.String()},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(35, 6, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, latin(row[1]), "", "L", false)
	}
}

func (r *PDFReporter) addFindings(pdf *gofpdf.Fpdf, d Data) {
	r.addSectionHeader(pdf, "Findings")
	if len(d.Findings) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, "No findings.", "", 1, "L", false, 0, "")
		return
	}
	titleCase := cases.Title(language.English)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(24, 7, "Severity", "1", 0, "C", true, 0, "")
	pdf.CellFormat(34, 7, "ID", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 7, "Title", "1", 1, "L", true, 0, "")

	for _, f := range d.Findings {
		c := pdfSeverityColors[f.Severity]
		if c == nil {
			c = []int{128, 128, 128}
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(24, 6, titleCase.String(string(f.Severity)), "1", 0, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(34, 6, latin(f.ID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, latin(strutil.Head(f.Title, 90)), "1", 1, "L", false, 0, "")

		if ev, err := jsonutil.Marshal(f.Evidence); err == nil && len(f.Evidence) > 0 {
			pdf.SetFont("Courier", "", 7)
			pdf.SetTextColor(100, 116, 139)
			pdf.MultiCell(0, 4, latin(strutil.Head(string(ev), 400)), "", "L", false)
		}
	}
}

func (r *PDFReporter) addHosts(pdf *gofpdf.Fpdf, d Data) {
	if d.Nmap == nil {
		return
	}
	r.addSectionHeader(pdf, "Hosts")
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(35, 7, "IP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 7, "Hostname", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 7, "Open ports", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for _, a := range d.Nmap.Assets {
		ports := make([]string, 0, len(a.Ports))
		for _, p := range a.Ports {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Proto))
		}
		pdf.CellFormat(35, 6, latin(a.IP), "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, latin(strutil.Head(a.Hostname, 28)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, latin(strutil.Head(strings.Join(ports, ", "), 60)), "1", 1, "L", false, 0, "")
	}
}

func (r *PDFReporter) addLocal(pdf *gofpdf.Fpdf, d Data) {
	if d.Local == nil {
		return
	}
	r.addSectionHeader(pdf, "Local host")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	lines := []string{
		fmt.Sprintf("Hostname: %s (%s/%s)", d.Local.Host.Hostname, d.Local.Host.OS, d.Local.Host.Arch),
		fmt.Sprintf("Listening sockets: %d", len(d.Local.Network.Listening)),
		fmt.Sprintf("Resolvers: %s", strings.Join(d.Local.Network.Resolvers, ", ")),
		fmt.Sprintf("SUID binaries: %d", len(d.Local.Files.SUIDBins)),
	}
	for _, l := range lines {
		pdf.MultiCell(0, 6, latin(l), "", "L", false)
	}
}

func (r *PDFReporter) addErrors(pdf *gofpdf.Fpdf, d Data) {
	if len(d.Errors) == 0 {
		return
	}
	r.addSectionHeader(pdf, "Tool errors")
	for _, e := range d.Errors {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(220, 38, 38)
		pdf.CellFormat(35, 6, latin(e.Tool), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, 6, latin(strutil.Head(e.Error, 300)), "", "L", false)
	}
}

// latin maps text onto the core fonts' Latin-1 range; other runes become '?'.
func latin(s string) string {
	s = strings.ReplaceAll(s, strutil.Ellipsis, "...")
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, s)
}
