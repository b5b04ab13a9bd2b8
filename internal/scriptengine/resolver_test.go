package scriptengine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReplacesKnownPlaceholders(t *testing.T) {
	r := NewResolver().WithStatic(IssuePlaceholders("i1", "CEE-9", "Fix the bug", "/tmp/ws"))
	out := r.Resolve("echo {{issue.identifier}} in {{workspace.path}}")
	assert.Equal(t, "echo CEE-9 in /tmp/ws", out)
}

func TestResolveLeavesUnknownPlaceholdersAsIs(t *testing.T) {
	r := NewResolver().WithStatic(map[string]string{"known": "x"})
	out := r.Resolve("{{known}} {{unknown}}")
	assert.Equal(t, "x {{unknown}}", out)
}

func TestFindScriptReturnsEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", FindScript(dir))
}

func TestRunExecutesScriptWithEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix-only test")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "cyrus-setup.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"hello $ISSUE_IDENTIFIER\"\n"), 0o755))

	res := Run(context.Background(), script, dir, map[string]string{"ISSUE_IDENTIFIER": "CEE-9"}, 5*time.Second)
	require.NoError(t, res.Err)
	assert.True(t, res.Ran)
	assert.Contains(t, res.Output, "hello CEE-9")
}

func TestRunTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix-only test")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "cyrus-setup.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	res := Run(context.Background(), script, dir, nil, 50*time.Millisecond)
	assert.Error(t, res.Err)
}
