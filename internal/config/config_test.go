package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGlobalDefaultsServerPort(t *testing.T) {
	cfg, err := LoadGlobal("/tmp/cyrus-home")
	require.NoError(t, err)
	assert.Equal(t, defaultServerPort, cfg.ServerPort)
	assert.False(t, cfg.HostExternal)
}

func TestLoadGlobalBindsEnvVars(t *testing.T) {
	t.Setenv("CYRUS_SERVER_PORT", "9999")
	t.Setenv("CYRUS_HOST_EXTERNAL", "true")
	t.Setenv("ALLOWED_TOOLS", "Read, Edit ,Bash")
	t.Setenv("LINEAR_WORKSPACE_ID", "ws-1")

	cfg, err := LoadGlobal("/tmp/cyrus-home")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.True(t, cfg.HostExternal)
	assert.Equal(t, []string{"Read", "Edit", "Bash"}, cfg.AllowedTools)
	assert.Equal(t, "ws-1", cfg.LinearWorkspaceID)
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a ,, b "))
	assert.Nil(t, splitCSV("  "))
}

func TestPathHelpers(t *testing.T) {
	home := "/tmp/cyrus-home"
	assert.Equal(t, "/tmp/cyrus-home/config.json", ConfigPath(home))
	assert.Equal(t, "/tmp/cyrus-home/state/snapshot.json", SnapshotPath(home))
	assert.Equal(t, "/tmp/cyrus-home/workspaces/my-repo", WorkspaceRoot(home, "my-repo"))
}
