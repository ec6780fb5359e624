package localenum

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000:0016 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 1 1 0 100 0 0 10 0
   1: 0100007F:0CEA 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 2 1 0 100 0 0 10 0
   2: 0500000A:0016 0100000A:D431 01 00000000:00000000 00:00000000 00000000     0        0 3 1 0 100 0 0 10 0
`

const procTCP6 = `  sl  local_address                         remote_address                        st
   0: 00000000000000000000000000000000:01BB 00000000000000000000000000000000:0000 0A
`

func TestParseProcNet(t *testing.T) {
	socks := ParseProcNet(procTCP, "tcp")
	require.Len(t, socks, 2)
	assert.Equal(t, Socket{Proto: "tcp", Addr: "0.0.0.0", Port: 22}, socks[0])
	assert.Equal(t, Socket{Proto: "tcp", Addr: "127.0.0.1", Port: 3306}, socks[1])

	socks6 := ParseProcNet(procTCP6, "tcp6")
	require.Len(t, socks6, 1)
	assert.Equal(t, "::", socks6[0].Addr)
	assert.Equal(t, 443, socks6[0].Port)
}

func TestParseSSHDConfig(t *testing.T) {
	cfg := ParseSSHDConfig(`
# PasswordAuthentication no
PasswordAuthentication YES
passwordauthentication no
PermitRootLogin prohibit-password
Port 22
`)
	assert.Equal(t, map[string]string{
		"PasswordAuthentication": "yes",
		"PermitRootLogin":        "prohibit-password",
	}, cfg)
}

func writeFile(t *testing.T, root, rel, content string, mode os.FileMode) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), mode))
	require.NoError(t, os.Chmod(p, mode))
}

func fixtureRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "/proc/net/tcp", procTCP, 0o644)
	writeFile(t, root, "/etc/resolv.conf", "# generated\nnameserver 1.1.1.1\n\nnameserver 9.9.9.9\n", 0o644)
	writeFile(t, root, "/etc/ssh/sshd_config", "PasswordAuthentication yes\nPermitRootLogin yes\n", 0o644)
	writeFile(t, root, "/usr/bin/passwd", "x", 0o755|os.ModeSetuid)
	writeFile(t, root, "/usr/bin/ls", "x", 0o755)
	writeFile(t, root, "/usr/bin/a/b/deep", "x", 0o755|os.ModeSetuid)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tmp"), 0o777))
	return root
}

func newFixtureTool(root string) *Tool {
	return New(
		WithRoot(root),
		WithHostname(func() (string, error) { return "fixture", nil }),
		WithInterfaces(func() ([]Interface, error) {
			return []Interface{{Name: "lo", Addrs: []string{"127.0.0.1/8"}}}, nil
		}),
	)
}

func TestTool_Collect(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("setuid bits are POSIX only")
	}
	root := fixtureRoot(t)
	facts, err := newFixtureTool(root).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fixture", facts.Host.Hostname)
	assert.Equal(t, "lo", facts.Network.Interfaces[0].Name)
	assert.Len(t, facts.Network.Listening, 2)
	assert.Equal(t, []string{"# generated", "nameserver 1.1.1.1", "nameserver 9.9.9.9"}, facts.Network.Resolvers)
	assert.Equal(t, "yes", facts.SSHConfigAudit["PasswordAuthentication"])
	assert.Equal(t, []string{"/usr/bin/passwd"}, facts.Files.SUIDBins, "deeper than two levels is skipped")

	var passwd FileInfo
	for _, fi := range facts.Files.KeyPermissions {
		if fi.Path == "/etc/passwd" {
			passwd = fi
		}
	}
	assert.True(t, passwd.Missing)
	require.Len(t, facts.Files.WorldWritableDirs, 1)
	assert.Equal(t, "/tmp", facts.Files.WorldWritableDirs[0].Path)
}

func TestTool_RunEmitsWarnings(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("setuid bits are POSIX only")
	}
	root := fixtureRoot(t)
	var msgs []any
	out, err := newFixtureTool(root).Run(context.Background(), "ignored", func(m any) { msgs = append(msgs, m) }, nil)
	require.NoError(t, err)
	_, ok := out.(Facts)
	assert.True(t, ok)

	assert.Contains(t, msgs, map[string]any{"warn": "sshd allows password authentication"})
	assert.Contains(t, msgs, map[string]any{"warn": "PermitRootLogin=yes"})
	assert.Contains(t, msgs, map[string]any{"info": "SUID binaries found: 1"})
	assert.Equal(t, "local enumeration complete", msgs[len(msgs)-1])
}

func TestTool_EmptyRoot(t *testing.T) {
	facts, err := newFixtureTool(t.TempDir()).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, facts.Network.Listening)
	assert.Empty(t, facts.Files.SUIDBins)
	assert.Empty(t, facts.SSHConfigAudit)
}
