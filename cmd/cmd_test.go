package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsnll/ext-release/internal/config"
	"github.com/jmsnll/ext-release/internal/progress"
	"github.com/jmsnll/ext-release/internal/release"
)

// newRepoProject creates a committed extension project with an origin remote.
func newRepoProject(t *testing.T, extVersion string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	files := map[string]string{
		"package.json":      "{\n\t\"name\": \"demo\",\n\t\"version\": \"1.0.3\"\n}\n",
		"src/manifest.json": "{\n  \"version\": \"" + extVersion + "\"\n}\n",
		".gitignore":        config.DefaultConfigFileName + "\n",
	}
	files[config.DefaultConfigFileName] = `{"apiKey":"k","apiSecret":"s"}`
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for _, name := range []string{"package.json", "src/manifest.json", ".gitignore"} {
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:example/demo.git"}})
	require.NoError(t, err)
	return dir
}

func allTools(string) (string, error) { return "/usr/bin/tool", nil }

func issuesOf(sections []diagnosis, name string) []string {
	for _, s := range sections {
		if s.Name == name {
			return s.Issues
		}
	}
	return nil
}

func TestDiagnoseHealthyProject(t *testing.T) {
	dir := newRepoProject(t, "1.0.3")
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)

	sections := diagnose(cfg, allTools)
	for _, s := range sections {
		assert.Empty(t, s.Issues, s.Name)
	}

	var buf bytes.Buffer
	assert.Equal(t, 0, printDiagnosis(&buf, sections))
	assert.Contains(t, buf.String(), "Status: OK")
}

func TestDiagnoseVersionMismatch(t *testing.T) {
	dir := newRepoProject(t, "1.0.2")
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)

	issues := issuesOf(diagnose(cfg, allTools), "Manifests")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "package.json has 1.0.3, manifest.json has 1.0.2")
}

func TestDiagnoseDirtyTreeAndMissingTools(t *testing.T) {
	dir := newRepoProject(t, "1.0.3")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("wip"), 0644))
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)

	lookPath := func(name string) (string, error) {
		if name == "zip" || name == "web-ext" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}
	sections := diagnose(cfg, lookPath)

	gitIssues := issuesOf(sections, "Git repository")
	require.Len(t, gitIssues, 1)
	assert.Contains(t, gitIssues[0], "notes.txt")
	assert.Equal(t, []string{"'web-ext' not found on PATH", "'zip' not found on PATH"}, issuesOf(sections, "Tools"))

	var buf bytes.Buffer
	assert.Equal(t, 2, printDiagnosis(&buf, sections))
	assert.Contains(t, buf.String(), "ISSUES FOUND")
}

func TestDiagnoseOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)

	sections := diagnose(cfg, allTools)
	assert.Len(t, issuesOf(sections, "Manifests"), 2)
	assert.Equal(t, []string{
		"Config file not found: " + cfg.ConfigFile,
		"No apiKey configured; signing will fail",
		"No apiSecret configured; signing will fail",
	}, issuesOf(sections, "Release config"))
	assert.Equal(t, []string{"Not a Git repository: " + dir}, issuesOf(sections, "Git repository"))
}

func TestVersionsCommand(t *testing.T) {
	dir := newRepoProject(t, "1.0.3")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"versions", "--dir", dir})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		projectDir = ""
	})

	require.NoError(t, rootCmd.Execute())
	got := out.String()
	assert.Contains(t, got, "demo")
	for _, v := range []string{"1.0.3", "1.0.4", "1.1.0", "2.0.0"} {
		assert.Contains(t, got, v)
	}
}

func TestWriteReportMarksIgnoredFailures(t *testing.T) {
	report := release.Report{Outcomes: []release.Outcome{
		{Stage: release.StageBuild, State: progress.Succeeded, Message: "Built dist"},
		{Stage: release.StageSign, Tolerant: true, State: progress.Failed, Message: "Signing: exited with code 1"},
	}}

	var buf bytes.Buffer
	writeReport(&buf, report)
	got := buf.String()
	assert.Contains(t, got, "Stage")
	assert.Contains(t, got, "Built dist")
	assert.Contains(t, got, "ignored")
}

func TestCheckArchiveDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{ArchiveDir: dir}
	assert.Empty(t, checkArchiveDir(cfg))

	cfg.ArchiveDir = filepath.Join(dir, "missing")
	assert.Empty(t, checkArchiveDir(cfg))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	cfg.ArchiveDir = file
	issues := checkArchiveDir(cfg)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "is not writable")
}
