// Package correlation derives findings from the aggregated results of a job.
// Rules read the nmap and local_enum outputs through small typed views, so
// they work the same whether a result came from a builtin tool or from a
// script that produced a plain map.
package correlation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

// Result keys the rules read.
const (
	ToolNmap      = "nmap"
	ToolLocalEnum = "local_enum"
)

// Finding is one correlated observation.
type Finding struct {
	ID          string           `json:"id"`
	Severity    finding.Severity `json:"severity"`
	Title       string           `json:"title"`
	Evidence    map[string]any   `json:"evidence"`
	Fingerprint string           `json:"fingerprint"`
}

// Result is the output of a correlation run.
type Result struct {
	Findings []Finding `json:"findings"`
}

// BySeverity counts findings per level.
func (r Result) BySeverity() map[finding.Severity]int {
	out := make(map[finding.Severity]int, len(r.Findings))
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// Rule inspects the typed inputs and returns zero or more findings.
type Rule struct {
	Name     string
	Evaluate func(in Inputs) []Finding
}

// Inputs are the typed views a rule reads.
type Inputs struct {
	Nmap  NmapView
	Local LocalView
}

// Correlator applies a fixed rule set. It holds no mutable state and is
// safe for concurrent use.
type Correlator struct {
	rules []Rule
}

// New creates a correlator with the default rules followed by extra.
func New(extra ...Rule) *Correlator {
	return &Correlator{rules: append(DefaultRules(), extra...)}
}

// Rules returns the names of the active rules.
func (c *Correlator) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Correlate is a pure function of results: no I/O and no retained state.
func (c *Correlator) Correlate(results map[string]any) Result {
	in := Inputs{}
	if raw, ok := results[ToolNmap]; ok {
		_ = jsonutil.Convert(raw, &in.Nmap)
	}
	if raw, ok := results[ToolLocalEnum]; ok {
		_ = jsonutil.Convert(raw, &in.Local)
	}

	res := Result{Findings: []Finding{}}
	for _, rule := range c.rules {
		for _, f := range rule.Evaluate(in) {
			f.Fingerprint = fingerprint(f)
			res.Findings = append(res.Findings, f)
		}
	}
	return res
}

// fingerprint identifies a finding across jobs: same rule and same
// evidence hash to the same value.
func fingerprint(f Finding) string {
	ev, err := jsonutil.Marshal(f.Evidence)
	if err != nil {
		ev = []byte(fmt.Sprint(f.Evidence))
	}
	h := murmur3.New64()
	_, _ = h.Write([]byte(f.ID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write(ev)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ---------------------------------------------------------------------------
// Typed views
// ---------------------------------------------------------------------------

// PortNumber accepts a port as a JSON number or a string.
type PortNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PortNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "null" {
		s = ""
	}
	*p = PortNumber(s)
	return nil
}

// Int returns the numeric port, or 0.
func (p PortNumber) Int() int {
	n, _ := strconv.Atoi(string(p))
	return n
}

// NmapView is the subset of a network scan the rules read.
type NmapView struct {
	Assets []struct {
		IP       string `json:"ip"`
		Hostname string `json:"hostname"`
		Ports    []struct {
			Port    PortNumber `json:"port"`
			Proto   string     `json:"proto"`
			State   string     `json:"state"`
			Service string     `json:"service"`
		} `json:"ports"`
	} `json:"assets"`
}

// LocalView is the subset of local enumeration the rules read.
type LocalView struct {
	Network struct {
		Listening []struct {
			Addr string     `json:"addr"`
			Port PortNumber `json:"port"`
			Proc string     `json:"proc"`
		} `json:"listening"`
		Resolvers []string `json:"resolvers"`
	} `json:"network"`
	SSHConfig map[string]string `json:"ssh_config_audit"`
	Files     struct {
		SUIDBins []string `json:"suid_bins"`
	} `json:"files"`
}
