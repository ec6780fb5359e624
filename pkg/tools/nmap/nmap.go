// Package nmap wraps the nmap binary as a scan tool. It runs a service
// scan with XML output on stdout and normalises hosts into assets.
package nmap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/proc"
	"github.com/nadscan/nadscan/pkg/strutil"
)

// Name is the registry name of the tool.
const Name = "nmap"

// MetaArgs lets a job override the scan arguments.
const MetaArgs = "nmap_args"

// DefaultArgs are used when neither config nor job supply any.
var DefaultArgs = []string{"-sV"}

// Port is one scanned port of an asset.
type Port struct {
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	State   string `json:"state"`
	Service string `json:"service"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// Asset is one scanned host.
type Asset struct {
	HostID   string `json:"host_id"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	OS       string `json:"os,omitempty"`
	Ports    []Port `json:"ports"`
}

// Result is the tool output.
type Result struct {
	Command string  `json:"command"`
	Assets  []Asset `json:"assets"`
}

// OpenPorts counts ports reported open across all assets.
func (r Result) OpenPorts() int {
	n := 0
	for _, a := range r.Assets {
		for _, p := range a.Ports {
			if p.State == "open" {
				n++
			}
		}
	}
	return n
}

// Tool runs nmap.
type Tool struct {
	binary string
	args   []string
	runner proc.Runner
}

// Option configures a Tool.
type Option func(*Tool)

// WithRunner replaces the process runner.
func WithRunner(r proc.Runner) Option { return func(t *Tool) { t.runner = r } }

// WithArgs replaces the default scan arguments.
func WithArgs(args []string) Option {
	return func(t *Tool) {
		if len(args) > 0 {
			t.args = args
		}
	}
}

// New creates the tool. An empty binary means "nmap" on PATH.
func New(binary string, opts ...Option) *Tool {
	if binary == "" {
		binary = defaults.NmapBinary
	}
	t := &Tool{binary: binary, args: DefaultArgs, runner: proc.Exec{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "Network and service scan with nmap (" + strings.Join(t.args, " ") + ")"
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, meta plugin.Meta) (any, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, plugin.ErrEmptyTarget
	}
	args := t.args
	if override := meta.Strings(MetaArgs); len(override) > 0 {
		args = override
	}

	cmd := proc.Cmd{Name: t.binary, Args: append(append([]string{"-oX", "-"}, args...), target)}
	display := strutil.ShellJoin(append(append([]string{t.binary}, args...), target))
	emit(map[string]any{"cmd": display})

	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("nmap exited %d: %s", res.ExitCode, strutil.Head(strings.TrimSpace(string(res.Stderr)), 500))
	}

	assets, err := Parse(res.Stdout)
	if err != nil {
		return nil, err
	}
	out := Result{Command: display, Assets: assets}
	emit(map[string]any{"summary": fmt.Sprintf("%d host(s) processed, %d open port(s)", len(assets), out.OpenPorts())})
	return out, nil
}

// ---------------------------------------------------------------------------
// XML
// ---------------------------------------------------------------------------

type xmlRun struct {
	Hosts []xmlHost `xml:"host"`
}

type xmlHost struct {
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
	} `xml:"hostnames>hostname"`
	Ports []struct {
		Protocol string `xml:"protocol,attr"`
		PortID   string `xml:"portid,attr"`
		State    struct {
			State string `xml:"state,attr"`
		} `xml:"state"`
		Service struct {
			Name    string `xml:"name,attr"`
			Product string `xml:"product,attr"`
			Version string `xml:"version,attr"`
		} `xml:"service"`
	} `xml:"ports>port"`
	OSMatches []struct {
		Name string `xml:"name,attr"`
	} `xml:"os>osmatch"`
}

// Parse converts nmap XML into assets. Hosts without an IP address are
// skipped.
func Parse(data []byte) ([]Asset, error) {
	var run xmlRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse nmap xml: %w", err)
	}

	assets := make([]Asset, 0, len(run.Hosts))
	for _, h := range run.Hosts {
		ip := ""
		for _, a := range h.Addresses {
			if a.AddrType == "ipv4" || a.AddrType == "ipv6" || a.AddrType == "" {
				ip = a.Addr
				break
			}
		}
		if ip == "" {
			continue
		}
		asset := Asset{HostID: HostID(ip), IP: ip, Ports: []Port{}}
		if len(h.Hostnames) > 0 {
			asset.Hostname = h.Hostnames[0].Name
		}
		if len(h.OSMatches) > 0 {
			asset.OS = h.OSMatches[0].Name
		}
		for _, p := range h.Ports {
			n, err := strconv.Atoi(p.PortID)
			if err != nil {
				continue
			}
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			asset.Ports = append(asset.Ports, Port{
				Port:    n,
				Proto:   proto,
				State:   p.State.State,
				Service: p.Service.Name,
				Product: p.Service.Product,
				Version: p.Service.Version,
			})
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// HostID is the stable identifier of an address: the first 16 hex digits
// of its SHA-256.
func HostID(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}
