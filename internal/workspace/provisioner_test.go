package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-m", "init")
}

func TestBranchNameForUsesTrackerBranchWhenPresent(t *testing.T) {
	ref := IssueRef{Identifier: "CEE-9", Title: "Fix `rm -rf` bug", Branch: "feature/CEE-9"}
	assert.Equal(t, "feature/CEE-9", branchNameFor(ref))
}

func TestBranchNameForSanitizesBackticks(t *testing.T) {
	ref := IssueRef{Identifier: "CEE-9", Title: "Fix `rm -rf` bug"}
	name := branchNameFor(ref)
	assert.NotContains(t, name, "`")
	assert.Contains(t, name, "CEE-9")
}

func TestProvisionCreatesWorktree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix-only test")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repoDir := t.TempDir()
	initGitRepo(t, repoDir)
	workspaceRoot := t.TempDir()

	repo := config.RepositoryConfig{
		ID:            "repo-a",
		RootPath:      repoDir,
		BaseBranch:    "main",
		WorkspaceRoot: workspaceRoot,
	}

	p := New("", testLogger(t))
	ws, err := p.Provision(context.Background(), IssueRef{Identifier: "CEE-1", Title: "Add widget"}, repo)
	require.NoError(t, err)
	assert.True(t, ws.IsWorktree)
	assert.DirExists(t, ws.Path)
}

func TestProvisionReusesExistingWorktree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix-only test")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repoDir := t.TempDir()
	initGitRepo(t, repoDir)
	workspaceRoot := t.TempDir()
	repo := config.RepositoryConfig{ID: "repo-a", RootPath: repoDir, BaseBranch: "main", WorkspaceRoot: workspaceRoot}

	p := New("", testLogger(t))
	ref := IssueRef{Identifier: "CEE-2", Title: "Add gadget"}
	first, err := p.Provision(context.Background(), ref, repo)
	require.NoError(t, err)

	second, err := p.Provision(context.Background(), ref, repo)
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
	assert.True(t, second.IsWorktree)
}

func TestProvisionFallsBackToPlainDirectoryWhenNotAGitRepo(t *testing.T) {
	repoDir := t.TempDir() // not a git repo
	workspaceRoot := t.TempDir()
	repo := config.RepositoryConfig{ID: "repo-b", RootPath: repoDir, BaseBranch: "main", WorkspaceRoot: workspaceRoot}

	p := New("", testLogger(t))
	ws, err := p.Provision(context.Background(), IssueRef{Identifier: "CEE-3", Title: "no git here"}, repo)
	require.NoError(t, err)
	assert.False(t, ws.IsWorktree)
	assert.DirExists(t, ws.Path)
}
