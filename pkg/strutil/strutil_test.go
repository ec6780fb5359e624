package strutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHead(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short unchanged", "nmap done", 20, "nmap done"},
		{"exact boundary", "abcd", 4, "abcd"},
		{"cut", strings.Repeat("x", 10), 4, "xxxx" + Ellipsis},
		{"runes kept whole", "héllo wörld", 5, "héllo" + Ellipsis},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Head(tt.in, tt.n))
		})
	}
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, "uv run theHarvester -d example.org", ShellJoin([]string{"uv", "run", "theHarvester", "-d", "example.org"}))
	assert.Equal(t, "echo 'a b' '' 'it'\"'\"'s'", ShellJoin([]string{"echo", "a b", "", "it's"}))
}
