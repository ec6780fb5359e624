package correlation

import (
	"strings"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/finding"
)

// DefaultRules returns the builtin rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "ssh-password-auth", Evaluate: sshPasswordAuth},
		{Name: "insecure-services", Evaluate: insecureServices},
		{Name: "wildcard-bind", Evaluate: wildcardBind},
		{Name: "suid-many", Evaluate: suidMany},
		{Name: "dns-resolvers", Evaluate: dnsResolvers},
	}
}

// An unreported state is treated as open; some scanners omit it.
func isOpen(state string) bool {
	return state == "" || state == "open"
}

func sshPasswordAuth(in Inputs) []Finding {
	pw := strings.ToLower(in.Local.SSHConfig["PasswordAuthentication"])
	if pw != "yes" && pw != "true" {
		return nil
	}
	var out []Finding
	for _, h := range in.Nmap.Assets {
		for _, p := range h.Ports {
			if p.Port.Int() == 22 && isOpen(p.State) {
				out = append(out, Finding{
					ID:       "SSH-PA-001",
					Severity: finding.Medium,
					Title:    "SSH allows password authentication",
					Evidence: map[string]any{"host": h.IP, "PasswordAuthentication": pw},
				})
				break
			}
		}
	}
	return out
}

var insecurePorts = map[int]string{23: "telnet", 21: "ftp"}

func insecureServices(in Inputs) []Finding {
	var out []Finding
	for _, h := range in.Nmap.Assets {
		for _, p := range h.Ports {
			name, bad := insecurePorts[p.Port.Int()]
			if !bad || !isOpen(p.State) {
				continue
			}
			out = append(out, Finding{
				ID:       "INSECURE-" + string(p.Port),
				Severity: finding.High,
				Title:    "Insecure service exposed: " + name,
				Evidence: map[string]any{"host": h.IP, "port": string(p.Port)},
			})
		}
	}
	return out
}

var wildcardPorts = map[int]bool{22: true, 80: true, 443: true, 3389: true, 5900: true}

func wildcardBind(in Inputs) []Finding {
	var out []Finding
	for _, s := range in.Local.Network.Listening {
		if !wildcardPorts[s.Port.Int()] || (s.Addr != "0.0.0.0" && s.Addr != "::") {
			continue
		}
		out = append(out, Finding{
			ID:       "WILDCARD-BIND",
			Severity: finding.Medium,
			Title:    "Critical service listening on all interfaces",
			Evidence: map[string]any{"addr": s.Addr, "port": s.Port.Int(), "proc": s.Proc},
		})
	}
	return out
}

func suidMany(in Inputs) []Finding {
	n := len(in.Local.Files.SUIDBins)
	if n < defaults.SUIDThreshold {
		return nil
	}
	return []Finding{{
		ID:       "SUID-MANY",
		Severity: finding.Low,
		Title:    "High number of SUID binaries",
		Evidence: map[string]any{"count": n},
	}}
}

func dnsResolvers(in Inputs) []Finding {
	var servers []string
	for _, line := range in.Local.Network.Resolvers {
		if strings.HasPrefix(strings.TrimSpace(line), "nameserver ") {
			servers = append(servers, strings.TrimSpace(line))
		}
	}
	if len(servers) == 0 {
		return nil
	}
	if len(servers) > 5 {
		servers = servers[:5]
	}
	return []Finding{{
		ID:       "DNS-RESOLVERS",
		Severity: finding.Info,
		Title:    "Configured DNS servers",
		Evidence: map[string]any{"resolvers": servers},
	}}
}
