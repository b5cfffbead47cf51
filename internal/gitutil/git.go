package gitutil

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"

	"github.com/jmsnll/ext-release/internal/runner"
)

// CommitMessage is the message used for release commits.
func CommitMessage(version string) string {
	return fmt.Sprintf("Release v%s", version)
}

// run executes a git subcommand in repoPath. Credential prompts are disabled
// so a missing credential helper fails instead of hanging.
func run(ctx context.Context, r runner.Runner, repoPath string, args ...string) (runner.Result, error) {
	cmd := runner.Command{
		Name: "git",
		Args: args,
		Dir:  repoPath,
		Env:  []string{"GIT_TERMINAL_PROMPT=0"},
	}
	clog.FromContext(ctx).Debugf("Executing: %s (in %s)", cmd.String(), repoPath)
	return r.Run(ctx, cmd)
}

// StageAll stages every change in the working tree ('git add -A').
func StageAll(ctx context.Context, r runner.Runner, repoPath string) error {
	if _, err := run(ctx, r, repoPath, "add", "-A"); err != nil {
		return fmt.Errorf("failed to stage changes in %s: %w", repoPath, err)
	}
	return nil
}

// Commit records the staged changes with message.
func Commit(ctx context.Context, r runner.Runner, repoPath, message string) error {
	if _, err := run(ctx, r, repoPath, "commit", "-m", message); err != nil {
		return fmt.Errorf("failed to commit in %s: %w", repoPath, err)
	}
	return nil
}

// Push pushes the current HEAD to branch on remote.
func Push(ctx context.Context, r runner.Runner, repoPath, remote, branch string) error {
	if _, err := run(ctx, r, repoPath, "push", remote, "HEAD:"+branch); err != nil {
		return fmt.Errorf("failed to push to %s/%s: %w", remote, branch, err)
	}
	return nil
}

// Publish stages everything, commits it as the release of version and pushes.
// Each step only runs if the previous one succeeded.
func Publish(ctx context.Context, r runner.Runner, repoPath, version, remote, branch string) error {
	if err := StageAll(ctx, r, repoPath); err != nil {
		return err
	}
	if err := Commit(ctx, r, repoPath, CommitMessage(version)); err != nil {
		return err
	}
	return Push(ctx, r, repoPath, remote, branch)
}

// IsGitRepository reports whether path is inside a git working tree.
func IsGitRepository(path string) bool {
	_, err := open(path)
	return err == nil
}

// WorktreeStatus summarizes uncommitted changes in a repository.
type WorktreeStatus struct {
	Branch  string   // Short name of the checked out branch, "" when detached
	Changed []string // Paths with staged, unstaged or untracked changes, sorted
}

// Clean reports whether the working tree has no changes.
func (s WorktreeStatus) Clean() bool {
	return len(s.Changed) == 0
}

// Status inspects the repository containing path.
func Status(path string) (WorktreeStatus, error) {
	repo, err := open(path)
	if err != nil {
		return WorktreeStatus{}, err
	}

	var st WorktreeStatus
	head, err := repo.Head()
	if err == nil && head.Name().IsBranch() {
		st.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return WorktreeStatus{}, fmt.Errorf("failed to open worktree of %s: %w", path, err)
	}
	status, err := wt.Status()
	if err != nil {
		return WorktreeStatus{}, fmt.Errorf("failed to get worktree status of %s: %w", path, err)
	}
	for file, fs := range status {
		if fs.Staging != git.Unmodified || fs.Worktree != git.Unmodified {
			st.Changed = append(st.Changed, file)
		}
	}
	sort.Strings(st.Changed)
	return st, nil
}

// RemoteURLs returns the configured URLs of the named remote.
func RemoteURLs(path, remote string) ([]string, error) {
	repo, err := open(path)
	if err != nil {
		return nil, err
	}
	rem, err := repo.Remote(remote)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return nil, fmt.Errorf("remote '%s' is not configured in %s", remote, path)
		}
		return nil, fmt.Errorf("failed to read remote '%s': %w", remote, err)
	}
	return rem.Config().URLs, nil
}

func open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("path '%s' is not a git repository", path)
		}
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return repo, nil
}
