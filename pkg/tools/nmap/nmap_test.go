package nmap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/proc"
)

const sampleXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" args="nmap -oX - -sV 10.0.0.5">
  <host>
    <status state="up"/>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <address addr="AA:BB:CC:DD:EE:FF" addrtype="mac"/>
    <hostnames><hostname name="box.lan" type="PTR"/></hostnames>
    <ports>
      <port protocol="tcp" portid="22"><state state="open"/><service name="ssh" product="OpenSSH" version="9.6"/></port>
      <port protocol="tcp" portid="23"><state state="closed"/><service name="telnet"/></port>
    </ports>
    <os><osmatch name="Linux 6.X" accuracy="96"/></os>
  </host>
  <host>
    <address addr="AA:BB:CC:00:00:01" addrtype="mac"/>
  </host>
</nmaprun>`

func TestParse(t *testing.T) {
	assets, err := Parse([]byte(sampleXML))
	require.NoError(t, err)
	require.Len(t, assets, 1)

	a := assets[0]
	assert.Equal(t, "10.0.0.5", a.IP)
	assert.Equal(t, "box.lan", a.Hostname)
	assert.Equal(t, "Linux 6.X", a.OS)
	assert.Equal(t, HostID("10.0.0.5"), a.HostID)
	assert.Len(t, a.HostID, 16)
	require.Len(t, a.Ports, 2)
	assert.Equal(t, Port{Port: 22, Proto: "tcp", State: "open", Service: "ssh", Product: "OpenSSH", Version: "9.6"}, a.Ports[0])
	assert.Equal(t, "closed", a.Ports[1].State)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("<nmaprun><host>"))
	assert.Error(t, err)
}

func fakeRunner(stdout string, exit int, seen *proc.Cmd) proc.Runner {
	return proc.RunnerFunc(func(_ context.Context, cmd proc.Cmd) (proc.Result, error) {
		if seen != nil {
			*seen = cmd
		}
		return proc.Result{Stdout: []byte(stdout), Stderr: []byte("boom"), ExitCode: exit}, nil
	})
}

func TestTool_Run(t *testing.T) {
	var seen proc.Cmd
	var msgs []any
	tool := New("", WithRunner(fakeRunner(sampleXML, 0, &seen)))

	out, err := tool.Run(context.Background(), " 10.0.0.5 ", func(m any) { msgs = append(msgs, m) }, plugin.Meta{})
	require.NoError(t, err)

	assert.Equal(t, []string{"-oX", "-", "-sV", "10.0.0.5"}, seen.Args)
	assert.Equal(t, "nmap", seen.Name)

	res := out.(Result)
	assert.Equal(t, "nmap -sV 10.0.0.5", res.Command)
	assert.Equal(t, 1, res.OpenPorts())
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"cmd": "nmap -sV 10.0.0.5"}, msgs[0])
}

func TestTool_MetaArgs(t *testing.T) {
	var seen proc.Cmd
	tool := New("/usr/bin/nmap", WithArgs([]string{"-T4"}), WithRunner(fakeRunner(sampleXML, 0, &seen)))

	_, err := tool.Run(context.Background(), "h", func(any) {}, plugin.Meta{MetaArgs: []any{"-p", "22"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"-oX", "-", "-p", "22", "h"}, seen.Args)
	assert.Contains(t, tool.Description(), "-T4")
}

func TestTool_Errors(t *testing.T) {
	tool := New("", WithRunner(fakeRunner("", 1, nil)))
	_, err := tool.Run(context.Background(), "", func(any) {}, nil)
	assert.ErrorIs(t, err, plugin.ErrEmptyTarget)

	_, err = tool.Run(context.Background(), "h", func(any) {}, nil)
	assert.ErrorContains(t, err, "nmap exited 1: boom")

	failing := New("", WithRunner(proc.RunnerFunc(func(context.Context, proc.Cmd) (proc.Result, error) {
		return proc.Result{}, errors.New("exec: not found")
	})))
	_, err = failing.Run(context.Background(), "h", func(any) {}, nil)
	assert.ErrorContains(t, err, "not found")
}
