package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsnll/ext-release/internal/config"
	"github.com/jmsnll/ext-release/internal/manifest"
	"github.com/jmsnll/ext-release/internal/progress"
	"github.com/jmsnll/ext-release/internal/prompt"
	"github.com/jmsnll/ext-release/internal/runner"
)

const distManifest = `{
  "manifest_version": 2,
  "name": "Demo",
  "version": "1.1.0",
  "chrome_settings_overrides": {
    "homepage": "https://example.com"
  }
}
`

func newProject(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	files := map[string]string{
		"package.json":       "{\n\t\"name\": \"demo\",\n\t\"version\": \"1.0.0\"\n}\n",
		"src/manifest.json":  "{\n  \"name\": \"Demo\",\n  \"version\": \"1.0.0\"\n}\n",
		"src/background.js":  "// bg",
		"dist/manifest.json": distManifest,
		"dist/bundle.js":     "// bundle",
	}
	files[config.DefaultConfigFileName] = `{"apiKey":"user:1","apiSecret":"s3cret","archiveDir":"` +
		filepath.ToSlash(filepath.Join(dir, "out")) + `"}`
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, cfg *config.Config, rec *runner.Recorder, p prompt.Prompter) (Report, *progress.Log, *Context, error) {
	t.Helper()
	var log progress.Log
	pipeline := &Pipeline{
		Stages:   Stages(Options{Runner: rec, Prompter: p, GOOS: "linux"}),
		Reporter: &log,
	}
	rc := &Context{Config: cfg}
	report, err := pipeline.Run(context.Background(), rc)
	return report, &log, rc, err
}

func TestReleaseMinorScenario(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}

	report, log, rc, err := run(t, cfg, rec, prompt.Label("minor"))
	require.NoError(t, err)

	assert.Equal(t, "demo", rc.Name)
	assert.Equal(t, "1.1.0", rc.Version)
	assert.True(t, rc.Pushed)
	assert.Empty(t, report.Ignored())

	for _, path := range cfg.Manifests() {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(string(data), "\"version\": \"1.1.0\"\n}\n"), path)
	}
	pkg, _ := os.ReadFile(cfg.Manifest)
	assert.Equal(t, "{\n\t\"name\": \"demo\",\n\t\"version\": \"1.1.0\"\n}\n", string(pkg))

	out := filepath.Join(cfg.ProjectDir, "out")
	assert.Equal(t, []string{
		"git add -A",
		"git commit -m Release v1.1.0",
		"git push origin HEAD:master",
		"npm run build",
		"web-ext sign --channel=listed",
		"zip -r -q " + filepath.Join(out, "demo-v1.1.0-source.zip") + " .",
		"zip -r -q " + filepath.Join(out, "demo-v1.1.0-chrome.zip") + " .",
		"xdg-open " + config.DefaultStoreURLs[0],
		"xdg-open " + config.DefaultStoreURLs[1],
	}, rec.Lines())
	assert.Less(t, rec.Index("git push"), rec.Index("npm run build"))

	for _, name := range []string{StageResolve, StageChoose, StageManifests, StageGit, StageBuild, StageSign, StageArchiveSource, StageArchiveChrome, StageOpen} {
		assert.Equal(t, progress.Succeeded, log.Last(name), name)
	}
}

func TestReleasePassesCredentialsThroughEnv(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}

	_, _, _, err := run(t, cfg, rec, prompt.Label("patch"))
	require.NoError(t, err)

	sign := rec.Calls[rec.Index("web-ext")]
	assert.Equal(t, cfg.DistDir, sign.Dir)
	assert.Contains(t, sign.Env, "WEB_EXT_API_KEY=user:1")
	assert.Contains(t, sign.Env, "WEB_EXT_API_SECRET=s3cret")
	assert.NotContains(t, sign.String(), "s3cret")
}

func TestSignCommandWithCredentialsInArgs(t *testing.T) {
	cfg := newProject(t)
	cfg.CredentialsInArgs = true

	cmd := SignCommand(&Context{Config: cfg})
	assert.Equal(t, "web-ext", cmd.Name)
	assert.Equal(t, []string{"sign", "--channel=listed", "--api-key=user:1", "--api-secret=s3cret"}, cmd.Args)
	assert.Empty(t, cmd.Env)
}

func TestBuildFailureHaltsRelease(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}
	rec.FailWith("npm run build", 1)

	report, log, _, err := run(t, cfg, rec, prompt.Label("minor"))
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageBuild, stageErr.Stage)
	assert.True(t, stageErr.Pushed)
	assert.Contains(t, err.Error(), "already pushed")

	var exitErr *runner.ExitError
	assert.True(t, errors.As(err, &exitErr))

	assert.Equal(t, -1, rec.Index("web-ext"))
	assert.Equal(t, -1, rec.Index("zip"))
	assert.Equal(t, -1, rec.Index("xdg-open"))
	assert.False(t, report.Ran(StageSign))
	assert.Equal(t, progress.Failed, log.Last(StageBuild))
	assert.Equal(t, progress.Pending, log.Last(StageSign))
}

func TestCommitFailureHaltsBeforePush(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}
	rec.FailWith("git commit", 1)

	_, _, rc, err := run(t, cfg, rec, prompt.Label("patch"))
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageGit, stageErr.Stage)
	assert.False(t, rc.Pushed)
	assert.NotContains(t, err.Error(), "already pushed")
	assert.Equal(t, -1, rec.Index("git push"))
	assert.Equal(t, -1, rec.Index("npm"))
}

func TestSignFailureIsTolerated(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}
	rec.FailWith("web-ext", 1)

	report, log, _, err := run(t, cfg, rec, prompt.Label("minor"))
	require.NoError(t, err)

	ignored := report.Ignored()
	require.Len(t, ignored, 1)
	assert.Equal(t, StageSign, ignored[0].Stage)
	assert.Error(t, ignored[0].Err)
	assert.Equal(t, progress.Failed, log.Last(StageSign))

	assert.Greater(t, rec.Index("zip"), rec.Index("web-ext"))
	assert.NotEqual(t, -1, rec.Index("xdg-open"))
}

func TestArchiveFailuresAreTolerated(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}
	rec.FailWith("zip", 15)
	rec.FailWith("xdg-open", 3)

	report, log, _, err := run(t, cfg, rec, prompt.Label("major"))
	require.NoError(t, err)

	assert.Len(t, report.Ignored(), 2)
	assert.Equal(t, progress.Succeeded, log.Last(StageOpen), "opener failures never fail the last stage")
}

func TestChromeArchiveDropsForbiddenProperty(t *testing.T) {
	cfg := newProject(t)
	var staged *manifest.Document
	rec := &runner.Recorder{Hook: func(c runner.Command) (runner.Result, error) {
		if c.Name == "zip" && strings.HasSuffix(c.Args[2], "-chrome.zip") {
			staged = manifest.Load(filepath.Join(c.Dir, "manifest.json"))
		}
		return runner.Result{}, nil
	}}

	_, _, _, err := run(t, cfg, rec, prompt.Label("minor"))
	require.NoError(t, err)

	require.NotNil(t, staged)
	assert.False(t, staged.Has(ChromeForbiddenProperty))
	assert.Equal(t, []string{"manifest_version", "name", "version"}, staged.Keys())

	original, err := os.ReadFile(filepath.Join(cfg.DistDir, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, distManifest, string(original), "dist manifest is left alone")
}

func TestChromeArchiveWithoutManifestFails(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.DistDir, "manifest.json")))
	rec := &runner.Recorder{}

	report, _, _, err := run(t, cfg, rec, prompt.Label("minor"))
	require.NoError(t, err)

	ignored := report.Ignored()
	require.Len(t, ignored, 1)
	assert.Equal(t, StageArchiveChrome, ignored[0].Stage)
}

func TestAbortedPromptChangesNothing(t *testing.T) {
	cfg := newProject(t)
	rec := &runner.Recorder{}
	before, _ := os.ReadFile(cfg.Manifest)

	_, _, _, err := run(t, cfg, rec, prompt.Static("not-a-version"))
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageChoose, stageErr.Stage)
	assert.Empty(t, rec.Calls)

	after, _ := os.ReadFile(cfg.Manifest)
	assert.Equal(t, string(before), string(after))
}

func TestMissingNameFallsBackToDirectory(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile(cfg.Manifest, []byte(`{"version":"0.3.0"}`), 0644))
	rec := &runner.Recorder{}

	_, _, rc, err := run(t, cfg, rec, prompt.Label("patch"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(cfg.ProjectDir), rc.Name)
	assert.Equal(t, "0.3.1", rc.Version)
	assert.Contains(t, SourceArchivePath(rc), filepath.Base(cfg.ProjectDir)+"-v0.3.1-source.zip")
}

func TestOptionalStagesCanBeSkipped(t *testing.T) {
	names := func(stages []Stage) []string {
		var out []string
		for _, s := range stages {
			out = append(out, s.Name)
		}
		return out
	}

	all := Stages(Options{})
	assert.Equal(t, []string{StageResolve, StageChoose, StageManifests, StageGit, StageBuild, StageSign, StageArchiveSource, StageArchiveChrome, StageOpen}, names(all))

	minimal := Stages(Options{SkipPublish: true, SkipArchive: true, NoOpen: true})
	assert.Equal(t, []string{StageResolve, StageChoose, StageManifests, StageGit, StageBuild}, names(minimal))

	for _, s := range all {
		tolerant := s.Name == StageSign || s.Name == StageArchiveSource || s.Name == StageArchiveChrome
		assert.Equal(t, tolerant, s.Tolerant, s.Name)
	}
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	p := &Pipeline{Stages: []Stage{{Name: "only", Run: func(context.Context, *Context) (string, error) {
		ran = true
		return "", nil
	}}}}

	_, err := p.Run(ctx, &Context{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestOpenCommand(t *testing.T) {
	assert.Equal(t, "open https://x", OpenCommand("darwin", "https://x").String())
	assert.Equal(t, "rundll32 url.dll,FileProtocolHandler https://x", OpenCommand("windows", "https://x").String())
	assert.Equal(t, "xdg-open https://x", OpenCommand("linux", "https://x").String())
}
