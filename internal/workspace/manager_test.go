package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttool/agenttool/internal/common/config"
	"github.com/agenttool/agenttool/internal/common/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)

	m, err := NewManager(config.WorkspaceConfig{
		BasePath:      t.TempDir(),
		BranchPrefix:  "session/",
		DefaultBranch: "main",
	}, log)
	require.NoError(t, err)
	return m
}

// initRepo creates a git repository with one commit on main.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustGit(t, dir, "init", "-b", "main")
	mustGit(t, dir, "config", "user.email", "test@example.com")
	mustGit(t, dir, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("project\n"), 0644))
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func TestCreateWorkspace(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	path, err := m.CreateWorkspace(ctx, repo, "abc123", "", "")
	require.NoError(t, err)
	assert.Equal(t, m.PathForSession("abc123"), path)
	assert.DirExists(t, path)

	meta, err := readMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", meta.SessionID)
	assert.Equal(t, "session/abc123", meta.BranchName)

	branch, err := m.WorkspaceBranch(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "session/abc123", branch)
}

func TestCreateWorkspaceRejectsNonRepo(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CreateWorkspace(context.Background(), t.TempDir(), "abc123", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestRemoveWorkspaceDeletesSessionBranch(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	path, err := m.CreateWorkspace(ctx, repo, "abc123", "", "")
	require.NoError(t, err)

	require.NoError(t, m.RemoveWorkspace(ctx, repo, path))
	assert.NoDirExists(t, path)
	assert.False(t, m.branchExists(ctx, repo, "session/abc123"))
}

func TestRemoveWorkspaceKeepsForeignBranch(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	path, err := m.CreateWorkspace(ctx, repo, "abc123", "feature/custom", "")
	require.NoError(t, err)

	require.NoError(t, m.RemoveWorkspace(ctx, repo, path))
	assert.True(t, m.branchExists(ctx, repo, "feature/custom"),
		"branches outside the session naming convention are preserved")
}

func TestResolveMainBranch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	repo := t.TempDir()
	mustGit(t, repo, "init", "-b", "master")
	mustGit(t, repo, "config", "user.email", "test@example.com")
	mustGit(t, repo, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.txt"), []byte("a"), 0644))
	mustGit(t, repo, "add", ".")
	mustGit(t, repo, "commit", "-m", "init")

	assert.Equal(t, "master", m.resolveMainBranch(ctx, repo))

	assert.Equal(t, "main", m.resolveMainBranch(ctx, t.TempDir()),
		"falls back to the configured default when probing fails")
}

func TestSquashAndMergeToMain(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	path, err := m.CreateWorkspace(ctx, repo, "merge1", "", "")
	require.NoError(t, err)

	mustGit(t, path, "config", "user.email", "test@example.com")
	mustGit(t, path, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(path, "feature.txt"), []byte("new feature\n"), 0644))
	mustGit(t, path, "add", "feature.txt")
	mustGit(t, path, "commit", "-m", "add feature")

	require.NoError(t, m.SquashAndMergeToMain(ctx, repo, path, "session merge1 changes", ""))

	assert.FileExists(t, filepath.Join(repo, "feature.txt"))
	subject := mustGit(t, repo, "log", "-1", "--format=%s")
	assert.Contains(t, subject, "session merge1 changes")
}

func TestListWorkspaces(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	_, err := m.CreateWorkspace(ctx, repo, "lst1", "", "")
	require.NoError(t, err)

	worktrees, err := m.ListWorkspaces(ctx, repo)
	require.NoError(t, err)
	require.Len(t, worktrees, 2)

	var found bool
	for _, wt := range worktrees {
		if wt.Branch == "session/lst1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCleanupAbandonedWorkspaces(t *testing.T) {
	m := newTestManager(t)
	repo := initRepo(t)
	ctx := context.Background()

	pathA, err := m.CreateWorkspace(ctx, repo, "A", "", "")
	require.NoError(t, err)
	pathB, err := m.CreateWorkspace(ctx, repo, "B", "", "")
	require.NoError(t, err)
	pathC, err := m.CreateWorkspace(ctx, repo, "C", "", "")
	require.NoError(t, err)

	// C's sidecar becomes unparsable; cleanup must not guess.
	require.NoError(t, os.WriteFile(filepath.Join(pathC, MetadataFile), []byte("not json"), 0644))

	require.NoError(t, m.CleanupAbandonedWorkspaces(ctx, repo, []string{"A"}))

	assert.DirExists(t, pathA)
	assert.NoDirExists(t, pathB)
	assert.DirExists(t, pathC)
}
