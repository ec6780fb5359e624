package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/plugin"
)

func TestRegister_Defaults(t *testing.T) {
	reg := plugin.NewRegistry()
	names, err := Register(reg, config.Default().Plugins, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"dns_reverse", "http_probe", "local_enum", "nmap", "shodan"}, names)
	assert.Equal(t, names, reg.Names())
}

func TestRegister_OptInTools(t *testing.T) {
	cfg := config.Default().Plugins
	cfg.Screenshot.Enabled = true
	cfg.Harvester.ProjectDir = "/opt/theHarvester"

	names, err := Register(plugin.NewRegistry(), cfg, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, names, "web_screenshot")
	assert.Contains(t, names, "theharvester")
}

func TestRegister_Disabled(t *testing.T) {
	cfg := config.Default().Plugins
	cfg.Disabled = []string{"shodan", "nmap"}

	names, err := Register(plugin.NewRegistry(), cfg, t.TempDir())
	require.NoError(t, err)
	assert.NotContains(t, names, "shodan")
	assert.NotContains(t, names, "nmap")
}

func TestRegister_Conflict(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.MustRegister("nmap", plugin.ToolFunc(nil))
	_, err := Register(reg, config.Default().Plugins, t.TempDir())
	assert.ErrorIs(t, err, plugin.ErrDuplicateTool)
}
