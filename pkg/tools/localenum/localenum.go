// Package localenum collects security-relevant facts about the machine the
// scanner runs on: network exposure, resolver configuration, sshd settings
// and setuid binaries. Everything is read from files under a configurable
// root, so tests run against a fixture tree.
package localenum

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/nadscan/nadscan/pkg/plugin"
)

// Name is the registry name of the tool.
const Name = "local_enum"

// maxSUID caps the setuid listing.
const maxSUID = 200

var (
	suidDirs    = []string{"/bin", "/sbin", "/usr/bin", "/usr/sbin", "/usr/local/bin", "/usr/local/sbin"}
	keyPaths    = []string{"/etc/passwd", "/etc/shadow", "/etc/sudoers", "/root", "/home", "/etc/ssh/sshd_config"}
	worldDirs   = []string{"/tmp", "/var/tmp", "/dev/shm"}
	sshdAudited = []string{"PasswordAuthentication", "PermitRootLogin", "PubkeyAuthentication", "X11Forwarding"}
)

// Facts is the tool output.
type Facts struct {
	Host           Host              `json:"host"`
	Network        Network           `json:"network"`
	SSHConfigAudit map[string]string `json:"ssh_config_audit"`
	Files          Files             `json:"files"`
}

type Host struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
}

type Network struct {
	Interfaces []Interface `json:"interfaces"`
	Listening  []Socket    `json:"listening"`
	Resolvers  []string    `json:"resolvers"`
}

type Interface struct {
	Name  string   `json:"name"`
	Addrs []string `json:"addrs"`
}

// Socket is a listening endpoint.
type Socket struct {
	Proto string `json:"proto"`
	Addr  string `json:"addr"`
	Port  int    `json:"port"`
}

type Files struct {
	KeyPermissions    []FileInfo `json:"key_permissions"`
	SUIDBins          []string   `json:"suid_bins"`
	WorldWritableDirs []FileInfo `json:"world_writable_dirs"`
}

// FileInfo is an ls-style view of one path.
type FileInfo struct {
	Path    string `json:"path"`
	Mode    string `json:"mode,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// Tool enumerates the local host.
type Tool struct {
	root       string
	hostname   func() (string, error)
	interfaces func() ([]Interface, error)
}

// Option configures a Tool.
type Option func(*Tool)

// WithRoot reads system files relative to dir instead of "/".
func WithRoot(dir string) Option { return func(t *Tool) { t.root = dir } }

// WithHostname overrides hostname discovery.
func WithHostname(fn func() (string, error)) Option { return func(t *Tool) { t.hostname = fn } }

// WithInterfaces overrides interface discovery.
func WithInterfaces(fn func() ([]Interface, error)) Option {
	return func(t *Tool) { t.interfaces = fn }
}

// New creates the tool.
func New(opts ...Option) *Tool {
	t := &Tool{root: "/", hostname: os.Hostname, interfaces: systemInterfaces}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "Local host enumeration: sockets, resolvers, sshd config, SUID binaries"
}

// Run implements plugin.Tool. The target is ignored.
func (t *Tool) Run(ctx context.Context, _ string, emit plugin.EmitFunc, _ plugin.Meta) (any, error) {
	emit("enumerating local system")
	facts, err := t.Collect(ctx)
	if err != nil {
		return nil, err
	}

	if pw := facts.SSHConfigAudit["PasswordAuthentication"]; pw == "yes" || pw == "true" {
		emit(map[string]any{"warn": "sshd allows password authentication"})
	}
	if prl, ok := facts.SSHConfigAudit["PermitRootLogin"]; ok && prl != "no" && prl != "prohibit-password" {
		emit(map[string]any{"warn": "PermitRootLogin=" + prl})
	}
	if n := len(facts.Files.SUIDBins); n > 0 {
		emit(map[string]any{"info": fmt.Sprintf("SUID binaries found: %d", n)})
	}
	emit("local enumeration complete")
	return facts, nil
}

// Collect gathers the facts without emitting anything.
func (t *Tool) Collect(ctx context.Context) (Facts, error) {
	f := Facts{
		Host:           Host{OS: runtime.GOOS, Arch: runtime.GOARCH},
		SSHConfigAudit: map[string]string{},
		Network:        Network{Interfaces: []Interface{}, Listening: []Socket{}, Resolvers: []string{}},
		Files:          Files{KeyPermissions: []FileInfo{}, SUIDBins: []string{}, WorldWritableDirs: []FileInfo{}},
	}
	if name, err := t.hostname(); err == nil {
		f.Host.Hostname = name
	}
	if ifaces, err := t.interfaces(); err == nil {
		f.Network.Interfaces = ifaces
	}

	for _, spec := range []struct{ file, proto string }{
		{"/proc/net/tcp", "tcp"},
		{"/proc/net/tcp6", "tcp6"},
	} {
		data, err := os.ReadFile(t.path(spec.file))
		if err != nil {
			continue
		}
		f.Network.Listening = append(f.Network.Listening, ParseProcNet(string(data), spec.proto)...)
	}

	if data, err := os.ReadFile(t.path("/etc/resolv.conf")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				f.Network.Resolvers = append(f.Network.Resolvers, strings.TrimRight(line, "\r"))
			}
		}
	}

	if data, err := os.ReadFile(t.path("/etc/ssh/sshd_config")); err == nil {
		f.SSHConfigAudit = ParseSSHDConfig(string(data))
	}

	if err := ctx.Err(); err != nil {
		return f, err
	}

	for _, p := range keyPaths {
		f.Files.KeyPermissions = append(f.Files.KeyPermissions, t.stat(p))
	}
	for _, p := range worldDirs {
		if info := t.stat(p); !info.Missing {
			f.Files.WorldWritableDirs = append(f.Files.WorldWritableDirs, info)
		}
	}
	f.Files.SUIDBins = t.suidBinaries(ctx)
	return f, ctx.Err()
}

func (t *Tool) path(abs string) string {
	return filepath.Join(t.root, filepath.FromSlash(abs))
}

func (t *Tool) stat(abs string) FileInfo {
	info, err := os.Lstat(t.path(abs))
	if err != nil {
		return FileInfo{Path: abs, Missing: true}
	}
	return FileInfo{Path: abs, Mode: info.Mode().String()}
}

// suidBinaries lists setuid regular files at most two levels below the
// usual binary directories.
func (t *Tool) suidBinaries(ctx context.Context) []string {
	out := []string{}
	for _, dir := range suidDirs {
		base := t.path(dir)
		baseDepth := strings.Count(base, string(filepath.Separator))
		_ = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil || ctx.Err() != nil {
				return fs.SkipDir
			}
			if d.IsDir() {
				if strings.Count(p, string(filepath.Separator))-baseDepth >= 2 {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil || info.Mode()&fs.ModeSetuid == 0 {
				return nil
			}
			rel, _ := filepath.Rel(t.root, p)
			out = append(out, "/"+filepath.ToSlash(rel))
			if len(out) >= maxSUID {
				return fs.SkipAll
			}
			return nil
		})
		if len(out) >= maxSUID {
			break
		}
	}
	sort.Strings(out)
	return out
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		entry := Interface{Name: iface.Name, Addrs: []string{}}
		if addrs, err := iface.Addrs(); err == nil {
			for _, a := range addrs {
				entry.Addrs = append(entry.Addrs, a.String())
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
