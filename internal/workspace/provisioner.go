// Package workspace provisions an isolated filesystem root per issue,
// preferring a git worktree over a plain directory, grounded on the git
// worktree lifecycle in internal/worktree/manager.go: per-repository
// ref-counted locking, best-effort remote sync, non-interactive git
// plumbing, and directory-first fallback on any failure.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/scriptengine"
	"github.com/go-cyrus/orchestrator/internal/session"
)

const (
	fetchTimeout       = 8 * time.Second
	pullTimeout         = 8 * time.Second
	setupScriptTimeout = 5 * time.Minute
)

// IssueRef is the subset of issue identity the provisioner needs.
type IssueRef struct {
	Identifier string
	Title      string
	Branch     string // tracker-supplied branch name, if any
	ParentRef  *IssueRef
}

// Provisioner creates (or reuses) a workspace per issue.
type Provisioner struct {
	log               *logger.Logger
	globalSetupScript string

	repoLockMu sync.Mutex
	repoLocks  map[string]*repoLockEntry
}

type repoLockEntry struct {
	mu       *sync.Mutex
	refCount int
}

// New constructs a Provisioner. globalSetupScript, if non-empty, is the
// path of a script run through scriptengine.Run before any
// repository-local setup script, in every worktree it newly creates.
func New(globalSetupScript string, log *logger.Logger) *Provisioner {
	return &Provisioner{
		log:               log,
		globalSetupScript: globalSetupScript,
		repoLocks:         make(map[string]*repoLockEntry),
	}
}

func (p *Provisioner) getRepoLock(repoPath string) *sync.Mutex {
	p.repoLockMu.Lock()
	defer p.repoLockMu.Unlock()
	if entry, ok := p.repoLocks[repoPath]; ok {
		entry.refCount++
		return entry.mu
	}
	entry := &repoLockEntry{mu: &sync.Mutex{}, refCount: 1}
	p.repoLocks[repoPath] = entry
	return entry.mu
}

func (p *Provisioner) releaseRepoLock(repoPath string) {
	p.repoLockMu.Lock()
	defer p.repoLockMu.Unlock()
	entry, ok := p.repoLocks[repoPath]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount <= 0 {
		delete(p.repoLocks, repoPath)
	}
}

// sanitizePattern strips anything that isn't safe in a branch name or
// directory component, most importantly backticks, guarding against
// command injection via a tracker-supplied title.
var sanitizePattern = regexp.MustCompile("[`$\\\\\"'\\s]+")

func slugify(title string, maxLen int) string {
	s := sanitizePattern.ReplaceAllString(title, "-")
	s = strings.Trim(s, "-")
	s = strings.ToLower(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.Trim(s, "-")
}

func branchNameFor(ref IssueRef) string {
	if ref.Branch != "" {
		return sanitizePattern.ReplaceAllString(ref.Branch, "")
	}
	return fmt.Sprintf("%s-%s", ref.Identifier, slugify(ref.Title, 30))
}

// Provision creates or reuses a per-issue workspace for repo.
func (p *Provisioner) Provision(ctx context.Context, ref IssueRef, repo config.RepositoryConfig) (session.Workspace, error) {
	if err := os.MkdirAll(repo.WorkspaceRoot, 0o755); err != nil {
		return session.Workspace{}, fmt.Errorf("workspace: creating workspace root: %w", err)
	}

	workspacePath := filepath.Join(repo.WorkspaceRoot, ref.Identifier)

	if isValidWorktree(workspacePath) {
		return session.Workspace{Path: workspacePath, IsWorktree: true}, nil
	}
	if info, err := os.Stat(workspacePath); err == nil && info.IsDir() {
		return session.Workspace{Path: workspacePath, IsWorktree: false}, nil
	}

	branchName := branchNameFor(ref)
	baseBranch := p.selectBaseBranch(repo, ref)

	lock := p.getRepoLock(repo.RootPath)
	lock.Lock()
	baseRef := p.pullBaseBranch(ctx, repo.RootPath, baseBranch)
	err := p.gitAddWorktree(ctx, repo.RootPath, branchName, workspacePath, baseRef)
	lock.Unlock()
	p.releaseRepoLock(repo.RootPath)

	if err != nil {
		p.log.Warn("worktree creation failed, falling back to plain directory",
			zap.String("repository", repo.ID), zap.String("issue", ref.Identifier), zap.Error(err))
		if mkErr := os.MkdirAll(workspacePath, 0o755); mkErr != nil {
			return session.Workspace{}, fmt.Errorf("workspace: fallback directory creation: %w", mkErr)
		}
		return session.Workspace{Path: workspacePath, IsWorktree: false}, nil
	}

	p.runSetupScripts(ctx, ref, repo, workspacePath)
	return session.Workspace{Path: workspacePath, IsWorktree: true}, nil
}

// selectBaseBranch uses the parent issue's branch if it exists locally or
// remotely, else the repository default.
func (p *Provisioner) selectBaseBranch(repo config.RepositoryConfig, ref IssueRef) string {
	if ref.ParentRef != nil {
		parentBranch := branchNameFor(*ref.ParentRef)
		if p.branchExists(repo.RootPath, parentBranch) {
			return parentBranch
		}
	}
	return repo.BaseBranch
}

func (p *Provisioner) branchExists(repoPath, branch string) bool {
	cmd := p.nonInteractiveGit(context.Background(), repoPath, "rev-parse", "--verify", "--quiet", branch)
	if cmd.Run() == nil {
		return true
	}
	cmd = p.nonInteractiveGit(context.Background(), repoPath, "rev-parse", "--verify", "--quiet", "origin/"+branch)
	return cmd.Run() == nil
}

func (p *Provisioner) currentBranch(repoPath string) string {
	cmd := p.nonInteractiveGit(context.Background(), repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (p *Provisioner) nonInteractiveGit(ctx context.Context, repoPath string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GCM_INTERACTIVE=Never",
		"GIT_ASKPASS=echo",
		"SSH_ASKPASS=/bin/false",
		"GIT_SSH_COMMAND=ssh -oBatchMode=yes",
	)
	cmd.WaitDelay = 500 * time.Millisecond
	return cmd
}

// pullBaseBranch fetches origin and returns the best ref to create the new
// worktree from, falling back to the original branch name on any failure.
func (p *Provisioner) pullBaseBranch(ctx context.Context, repoPath, baseBranch string) string {
	localBranch := strings.TrimPrefix(baseBranch, "origin/")
	isRemoteRef := localBranch != baseBranch

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	fetchArgs := []string{"fetch", "origin"}
	if localBranch != "" {
		fetchArgs = append(fetchArgs, localBranch)
	}
	if out, err := p.nonInteractiveGit(fetchCtx, repoPath, fetchArgs...).CombinedOutput(); err != nil {
		p.log.Warn("git fetch failed before worktree creation; continuing with fallback ref",
			zap.String("branch", baseBranch), zap.String("output", string(out)), zap.Error(err))
		return baseBranch
	}

	if isRemoteRef {
		return "origin/" + localBranch
	}

	remoteRef := "origin/" + localBranch
	if p.currentBranch(repoPath) == baseBranch {
		pullCtx, cancel := context.WithTimeout(ctx, pullTimeout)
		defer cancel()
		if out, err := p.nonInteractiveGit(pullCtx, repoPath, "pull", "--ff-only", "origin", baseBranch).CombinedOutput(); err != nil {
			p.log.Warn("git pull failed before worktree creation; continuing with remote ref",
				zap.String("branch", baseBranch), zap.String("output", string(out)), zap.Error(err))
			return remoteRef
		}
		return baseBranch
	}
	return remoteRef
}

func (p *Provisioner) gitAddWorktree(ctx context.Context, repoPath, branchName, worktreePath, baseRef string) error {
	cmd := p.nonInteractiveGit(ctx, repoPath, "worktree", "add", "-b", branchName, worktreePath, baseRef)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git worktree add: %s: %w", string(out), err)
	}
	return nil
}

// isValidWorktree checks a directory's .git file points at a real gitdir,
// the same check internal/worktree/manager.go's IsValid performs.
func isValidWorktree(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	content, err := os.ReadFile(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(content), "gitdir:")
}

func (p *Provisioner) runSetupScripts(ctx context.Context, ref IssueRef, repo config.RepositoryConfig, workspacePath string) {
	env := map[string]string{
		"ISSUE_ID":         ref.Identifier,
		"ISSUE_IDENTIFIER": ref.Identifier,
		"ISSUE_TITLE":      ref.Title,
	}

	if p.globalSetupScript != "" {
		res := scriptengine.Run(ctx, p.globalSetupScript, workspacePath, env, setupScriptTimeout)
		if res.Err != nil {
			p.log.Warn("global setup script failed", zap.Error(res.Err), zap.String("output", res.Output))
		}
	}

	if script := scriptengine.FindScript(workspacePath); script != "" {
		res := scriptengine.Run(ctx, script, workspacePath, env, setupScriptTimeout)
		if res.Err != nil {
			p.log.Warn("repository setup script failed",
				zap.String("repository", repo.ID), zap.Error(res.Err), zap.String("output", res.Output))
		}
	}
}
