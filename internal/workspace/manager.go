// Package workspace isolates sessions in git worktrees, one branch and
// directory per session.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/config"
	"github.com/agenttool/agenttool/internal/common/logger"
)

// Info describes one worktree reported by git.
type Info struct {
	Path   string
	Branch string
	Head   string
}

// Manager handles git worktree operations. Git mutations on the same
// repository are serialized through a per-repository mutex.
type Manager struct {
	basePath      string
	branchPrefix  string
	defaultBranch string
	logger        *logger.Logger
	repoLocks     map[string]*sync.Mutex
	repoLockMu    sync.Mutex
}

// NewManager creates a workspace manager rooted at the configured base
// path, expanding a leading ~ and creating the directory if needed.
func NewManager(cfg config.WorkspaceConfig, log *logger.Logger) (*Manager, error) {
	basePath := cfg.BasePath
	if strings.HasPrefix(basePath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		basePath = filepath.Join(home, strings.TrimPrefix(basePath, "~"))
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
	}

	return &Manager{
		basePath:      basePath,
		branchPrefix:  cfg.BranchPrefix,
		defaultBranch: cfg.DefaultBranch,
		logger:        log.WithFields(zap.String("component", "workspace-manager")),
		repoLocks:     make(map[string]*sync.Mutex),
	}, nil
}

// repoLock returns the mutex serializing git operations on a repository.
func (m *Manager) repoLock(repoPath string) *sync.Mutex {
	m.repoLockMu.Lock()
	defer m.repoLockMu.Unlock()

	lock, exists := m.repoLocks[repoPath]
	if !exists {
		lock = &sync.Mutex{}
		m.repoLocks[repoPath] = lock
	}
	return lock
}

// BranchForSession returns the deterministic branch name for a session.
func (m *Manager) BranchForSession(sessionID string) string {
	return m.branchPrefix + sessionID
}

// PathForSession returns the workspace directory for a session.
func (m *Manager) PathForSession(sessionID string) string {
	return filepath.Join(m.basePath, "session-"+sessionID)
}

// CreateWorkspace creates an isolated worktree for the session and writes
// the session sidecar into it. The branch name defaults to the session
// convention and the base branch is probed when not supplied.
func (m *Manager) CreateWorkspace(ctx context.Context, projectPath, sessionID, branchName, baseBranch string) (string, error) {
	if !m.isGitRepo(ctx, projectPath) {
		return "", fmt.Errorf("not a git repository: %s", projectPath)
	}

	lock := m.repoLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	workspacePath := m.PathForSession(sessionID)

	targetBranch := branchName
	if targetBranch == "" {
		targetBranch = m.BranchForSession(sessionID)
	}
	if baseBranch == "" {
		baseBranch = m.resolveMainBranch(ctx, projectPath)
	}

	if err := m.createBranchIfMissing(ctx, projectPath, targetBranch, baseBranch); err != nil {
		return "", err
	}

	if _, err := m.git(ctx, projectPath, "worktree", "add", workspacePath, targetBranch); err != nil {
		return "", fmt.Errorf("failed to create worktree: %w", err)
	}

	if err := writeMetadata(workspacePath, sessionID, targetBranch); err != nil {
		_, _ = m.git(ctx, projectPath, "worktree", "remove", "--force", workspacePath)
		return "", fmt.Errorf("failed to write workspace metadata: %w", err)
	}

	m.logger.Info("created workspace",
		zap.String("session_id", sessionID),
		zap.String("path", workspacePath),
		zap.String("branch", targetBranch))
	return workspacePath, nil
}

// RemoveWorkspace force-removes the worktree and, if the branch follows
// the session naming convention, deletes the branch too. Failures are
// logged and swallowed so teardown never blocks session deletion.
func (m *Manager) RemoveWorkspace(ctx context.Context, projectPath, workspacePath string) error {
	lock := m.repoLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	branch, err := m.WorkspaceBranch(ctx, workspacePath)
	if err != nil {
		if meta, metaErr := readMetadata(workspacePath); metaErr == nil {
			branch = meta.BranchName
		}
	}

	if _, err := m.git(ctx, projectPath, "worktree", "remove", "--force", workspacePath); err != nil {
		m.logger.Warn("failed to remove worktree",
			zap.String("path", workspacePath),
			zap.Error(err))
	}

	if branch != "" && strings.HasPrefix(branch, m.branchPrefix) {
		if _, err := m.git(ctx, projectPath, "branch", "-D", branch); err != nil {
			m.logger.Warn("failed to delete session branch",
				zap.String("branch", branch),
				zap.Error(err))
		}
	}
	return nil
}

// SquashAndMergeToMain squash-merges the workspace branch into the main
// branch of the origin project and commits with the supplied message.
func (m *Manager) SquashAndMergeToMain(ctx context.Context, projectPath, workspacePath, commitMessage, mainBranch string) error {
	lock := m.repoLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	if mainBranch == "" {
		mainBranch = m.resolveMainBranch(ctx, projectPath)
	}

	branch, err := m.WorkspaceBranch(ctx, workspacePath)
	if err != nil {
		return fmt.Errorf("failed to get workspace branch: %w", err)
	}

	if _, err := m.git(ctx, projectPath, "checkout", mainBranch); err != nil {
		return fmt.Errorf("failed to switch to %s: %w", mainBranch, err)
	}

	// Best effort: the project may have no remote.
	if _, err := m.git(ctx, projectPath, "pull", "origin", mainBranch); err != nil {
		m.logger.Debug("pull before merge failed", zap.Error(err))
	}

	if _, err := m.git(ctx, projectPath, "merge", "--squash", branch); err != nil {
		return fmt.Errorf("failed to squash merge: %w", err)
	}

	if _, err := m.git(ctx, projectPath, "commit", "-m", commitMessage); err != nil {
		return fmt.Errorf("failed to commit squashed changes: %w", err)
	}

	m.logger.Info("merged workspace to main",
		zap.String("branch", branch),
		zap.String("main_branch", mainBranch))
	return nil
}

// RebaseOntoMain rebases the workspace branch onto the remote main
// reference. A failed rebase is surfaced; the workspace is left in
// whatever state the rebase produced.
func (m *Manager) RebaseOntoMain(ctx context.Context, projectPath, workspacePath, mainBranch string) error {
	if mainBranch == "" {
		mainBranch = m.resolveMainBranch(ctx, projectPath)
	}

	if _, err := m.git(ctx, workspacePath, "fetch", "origin"); err != nil {
		m.logger.Debug("fetch before rebase failed", zap.Error(err))
	}

	if _, err := m.git(ctx, workspacePath, "rebase", "origin/"+mainBranch); err != nil {
		return fmt.Errorf("failed to rebase: %w", err)
	}
	return nil
}

// ListWorkspaces parses `git worktree list --porcelain` output.
func (m *Manager) ListWorkspaces(ctx context.Context, projectPath string) ([]Info, error) {
	out, err := m.git(ctx, projectPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var (
		worktrees []Info
		current   Info
	)
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = Info{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees, nil
}

// CleanupAbandonedWorkspaces removes every session workspace whose
// sidecar names a session not in activeSessionIDs. Workspaces without a
// readable sidecar are left untouched.
func (m *Manager) CleanupAbandonedWorkspaces(ctx context.Context, projectPath string, activeSessionIDs []string) error {
	worktrees, err := m.ListWorkspaces(ctx, projectPath)
	if err != nil {
		return err
	}

	active := make(map[string]bool, len(activeSessionIDs))
	for _, id := range activeSessionIDs {
		active[id] = true
	}

	for _, wt := range worktrees {
		if wt.Path == projectPath {
			continue
		}
		meta, err := readMetadata(wt.Path)
		if err != nil {
			continue
		}
		if !active[meta.SessionID] {
			m.logger.Info("removing abandoned workspace",
				zap.String("session_id", meta.SessionID),
				zap.String("path", wt.Path))
			_ = m.RemoveWorkspace(ctx, projectPath, wt.Path)
		}
	}
	return nil
}

// WorkspaceBranch returns the branch currently checked out in a worktree.
func (m *Manager) WorkspaceBranch(ctx context.Context, workspacePath string) (string, error) {
	out, err := m.git(ctx, workspacePath, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return out, nil
}

// IsGitRepo reports whether the path is inside a git repository.
func (m *Manager) IsGitRepo(ctx context.Context, path string) bool {
	return m.isGitRepo(ctx, path)
}

func (m *Manager) isGitRepo(ctx context.Context, path string) bool {
	_, err := m.git(ctx, path, "rev-parse", "--git-dir")
	return err == nil
}

// resolveMainBranch probes main, master and develop, then the remote
// default branch, and finally falls back to the configured default.
func (m *Manager) resolveMainBranch(ctx context.Context, projectPath string) string {
	for _, branch := range []string{"main", "master", "develop"} {
		if m.branchExists(ctx, projectPath, branch) {
			return branch
		}
	}

	if out, err := m.git(ctx, projectPath, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		if name := strings.TrimPrefix(out, "refs/remotes/origin/"); name != out {
			return name
		}
	}

	return m.defaultBranch
}

func (m *Manager) branchExists(ctx context.Context, projectPath, branch string) bool {
	_, err := m.git(ctx, projectPath, "show-ref", "--verify", "refs/heads/"+branch)
	return err == nil
}

func (m *Manager) createBranchIfMissing(ctx context.Context, projectPath, branch, baseBranch string) error {
	if m.branchExists(ctx, projectPath, branch) {
		return nil
	}
	if _, err := m.git(ctx, projectPath, "branch", branch, baseBranch); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// git runs one git command, returning trimmed stdout. On non-zero exit
// the error carries the captured stderr.
func (m *Manager) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
