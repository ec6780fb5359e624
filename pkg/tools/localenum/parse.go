package localenum

import (
	"bufio"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
)

// tcpListen is the kernel's TCP_LISTEN state in /proc/net/tcp.
const tcpListen = "0A"

// ParseProcNet extracts listening sockets from the contents of
// /proc/net/tcp or /proc/net/tcp6.
func ParseProcNet(data, proto string) []Socket {
	var out []Socket
	sc := bufio.NewScanner(strings.NewReader(data))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[3] != tcpListen {
			continue
		}
		addrHex, portHex, ok := strings.Cut(fields[1], ":")
		if !ok {
			continue
		}
		port, err := strconv.ParseUint(portHex, 16, 16)
		if err != nil {
			continue
		}
		ip, ok := decodeProcAddr(addrHex)
		if !ok {
			continue
		}
		out = append(out, Socket{Proto: proto, Addr: ip, Port: int(port)})
	}
	return out
}

// decodeProcAddr reverses the kernel's per-32-bit-word little-endian hex
// encoding of an address.
func decodeProcAddr(s string) (string, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil || (len(raw) != 4 && len(raw) != 16) {
		return "", false
	}
	ip := make(net.IP, len(raw))
	for i := 0; i < len(raw); i += 4 {
		ip[i], ip[i+1], ip[i+2], ip[i+3] = raw[i+3], raw[i+2], raw[i+1], raw[i]
	}
	if len(raw) == 4 {
		return ip.To4().String(), true
	}
	return ip.String(), true
}

// ParseSSHDConfig returns the audited sshd options that are set, with
// lower-cased values. The first occurrence wins, as in sshd itself.
func ParseSSHDConfig(text string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		for _, key := range sshdAudited {
			if !strings.EqualFold(fields[0], key) {
				continue
			}
			if _, seen := out[key]; !seen {
				out[key] = strings.ToLower(fields[1])
			}
		}
	}
	return out
}
