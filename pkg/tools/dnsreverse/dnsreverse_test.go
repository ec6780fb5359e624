package dnsreverse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	ptr     map[string][]string
	hosts   map[string][]string
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	if names, ok := f.ptr[addr]; ok {
		return append([]string(nil), names...), nil
	}
	return nil, errors.New("no such host")
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func TestAddresses(t *testing.T) {
	tool := New(Config{MaxHosts: 256}, &fakeResolver{hosts: map[string][]string{
		"example.org": {"2001:db8::1", "93.184.216.34"},
		"v6only.test": {"2001:db8::2"},
	}})
	ctx := context.Background()

	assert.Equal(t, []string{"10.0.0.1"}, tool.Addresses(ctx, " 10.0.0.1 "))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, tool.Addresses(ctx, "10.0.0.0/30"))
	assert.Equal(t, []string{"10.0.0.0", "10.0.0.1"}, tool.Addresses(ctx, "10.0.0.1/31"))
	assert.Len(t, tool.Addresses(ctx, "10.0.0.0/16"), 256)
	assert.Equal(t, []string{"93.184.216.34"}, tool.Addresses(ctx, "example.org"))
	assert.Equal(t, []string{"2001:db8::2"}, tool.Addresses(ctx, "v6only.test"))
	assert.Empty(t, tool.Addresses(ctx, "missing.test"))
	assert.Empty(t, tool.Addresses(ctx, ""))
}

func TestTool_Run(t *testing.T) {
	res := &fakeResolver{ptr: map[string][]string{
		"10.0.0.2": {"gw.lan."},
		"10.0.0.9": {"nas.lan.", "files.lan."},
	}}
	tool := New(Config{Workers: 4}, res)

	var msgs []any
	out, err := tool.Run(context.Background(), "10.0.0.0/28", func(m any) { msgs = append(msgs, m) }, nil)
	require.NoError(t, err)

	r := out.(Result)
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, []PTR{
		{IP: "10.0.0.2", Names: []string{"gw.lan"}},
		{IP: "10.0.0.9", Names: []string{"nas.lan", "files.lan"}},
	}, r.PTRs)
	assert.Equal(t, int32(14), res.calls.Load())
	assert.LessOrEqual(t, res.peak.Load(), int32(4))

	assert.Equal(t, map[string]any{"info": "PTR over 14 target(s)"}, msgs[0])
	assert.Equal(t, map[string]any{"summary": "2 PTR(s) resolved"}, msgs[len(msgs)-1])
}

func TestTool_EmptyTarget(t *testing.T) {
	var msgs []any
	out, err := New(Config{}, &fakeResolver{}).Run(context.Background(), "", func(m any) { msgs = append(msgs, m) }, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{PTRs: []PTR{}}, out)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "warn")
}
