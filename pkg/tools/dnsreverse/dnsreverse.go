// Package dnsreverse resolves PTR records for an address, a CIDR block or
// the address a hostname resolves to.
package dnsreverse

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/workerpool"
)

// Name is the registry name of the tool.
const Name = "dns_reverse"

// Resolver is the subset of *net.Resolver the tool needs.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// PTR is one resolved address.
type PTR struct {
	IP    string   `json:"ip"`
	Names []string `json:"names"`
}

// Result is the tool output.
type Result struct {
	PTRs  []PTR `json:"ptrs"`
	Count int   `json:"count"`
}

// Config tunes the lookups. Zero values take the package defaults.
type Config struct {
	Workers  int
	MaxHosts int
	Timeout  time.Duration
}

// Tool performs reverse lookups.
type Tool struct {
	cfg      Config
	resolver Resolver
}

// New creates the tool.
func New(cfg Config, resolver Resolver) *Tool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.DNSWorkers
	}
	if cfg.MaxHosts <= 0 {
		cfg.MaxHosts = defaults.DNSMaxHosts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.DNSLookup
	}
	return &Tool{cfg: cfg, resolver: resolver}
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return fmt.Sprintf("Reverse DNS (PTR) over an IP, hostname or CIDR (max %d hosts)", t.cfg.MaxHosts)
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, _ plugin.Meta) (any, error) {
	ips := t.Addresses(ctx, target)
	if len(ips) == 0 {
		emit(map[string]any{"warn": "no addresses to reverse-resolve"})
		return Result{PTRs: []PTR{}}, nil
	}
	emit(map[string]any{"info": fmt.Sprintf("PTR over %d target(s)", len(ips))})

	pool := workerpool.New(min(t.cfg.Workers, len(ips)))
	defer pool.Close()

	lookups := workerpool.Map(pool, ips, func(ip string) PTR {
		return t.lookup(ctx, ip)
	})

	out := Result{PTRs: []PTR{}}
	for _, ptr := range lookups {
		if len(ptr.Names) == 0 {
			continue
		}
		out.PTRs = append(out.PTRs, ptr)
		emit(map[string]any{"match": ptr})
	}
	out.Count = len(out.PTRs)
	emit(map[string]any{"summary": fmt.Sprintf("%d PTR(s) resolved", out.Count)})
	return out, ctx.Err()
}

func (t *Tool) lookup(ctx context.Context, ip string) PTR {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	names, err := t.resolver.LookupAddr(ctx, ip)
	if err != nil {
		return PTR{IP: ip}
	}
	for i, n := range names {
		names[i] = strings.TrimSuffix(n, ".")
	}
	return PTR{IP: ip, Names: names}
}

// Addresses expands target into the addresses to look up: a single IP,
// the host addresses of a CIDR (capped at MaxHosts) or the first IPv4
// address of a hostname.
func (t *Tool) Addresses(ctx context.Context, target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	if addr, err := netip.ParseAddr(target); err == nil {
		return []string{addr.String()}
	}
	if prefix, err := netip.ParsePrefix(target); err == nil {
		return hosts(prefix.Masked(), t.cfg.MaxHosts)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	addrs, err := t.resolver.LookupHost(ctx, target)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	for _, a := range addrs {
		if ip, err := netip.ParseAddr(a); err == nil && ip.Is4() {
			return []string{a}
		}
	}
	return addrs[:1]
}

// hosts lists usable host addresses in p. For IPv4 blocks larger than /31
// the network and broadcast addresses are excluded.
func hosts(p netip.Prefix, limit int) []string {
	var out []string
	addr := p.Addr()
	skipEdges := addr.Is4() && p.Bits() < 31
	if skipEdges {
		addr = addr.Next()
	}
	for ; addr.IsValid() && p.Contains(addr) && len(out) < limit; addr = addr.Next() {
		if skipEdges && !p.Contains(addr.Next()) {
			break
		}
		out = append(out, addr.String())
	}
	return out
}
