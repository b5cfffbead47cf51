package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chainguard-dev/clog"

	"github.com/jmsnll/ext-release/internal/archive"
	"github.com/jmsnll/ext-release/internal/gitutil"
	"github.com/jmsnll/ext-release/internal/manifest"
	"github.com/jmsnll/ext-release/internal/prompt"
	"github.com/jmsnll/ext-release/internal/runner"
	"github.com/jmsnll/ext-release/internal/version"
)

// Stage names.
const (
	StageResolve       = "resolve"
	StageChoose        = "choose"
	StageManifests     = "manifests"
	StageGit           = "git"
	StageBuild         = "build"
	StageSign          = "sign"
	StageArchiveSource = "archive-source"
	StageArchiveChrome = "archive-chrome"
	StageOpen          = "open"
)

// ChromeForbiddenProperty is removed from the Chrome package's manifest;
// the Chrome Web Store rejects extensions that declare it.
const ChromeForbiddenProperty = "chrome_settings_overrides"

// Options selects the collaborators and optional stages of a release.
type Options struct {
	Runner   runner.Runner
	Prompter prompt.Prompter

	SkipPublish bool // Leave out the store signing stage
	SkipArchive bool // Leave out both archive stages
	NoOpen      bool // Do not open the store consoles at the end

	// GOOS selects the URL opener; defaults to runtime.GOOS.
	GOOS string
}

// Stages returns the release stages in execution order.
func Stages(opts Options) []Stage {
	s := &stages{opts: opts}
	list := []Stage{
		{Name: StageResolve, Title: "Reading current version", Run: s.resolve},
		{Name: StageChoose, Title: "Choosing release version", Run: s.choose},
		{Name: StageManifests, Title: "Updating manifests", Run: s.manifests},
		{Name: StageGit, Title: "Committing and pushing", Run: s.git},
		{Name: StageBuild, Title: "Building production bundle", Run: s.build},
	}
	if !opts.SkipPublish {
		list = append(list, Stage{Name: StageSign, Title: "Signing and publishing to addons.mozilla.org", Tolerant: true, Run: s.sign})
	}
	if !opts.SkipArchive {
		list = append(list,
			Stage{Name: StageArchiveSource, Title: "Archiving source", Tolerant: true, Run: s.archiveSource},
			Stage{Name: StageArchiveChrome, Title: "Archiving Chrome Web Store package", Tolerant: true, Run: s.archiveChrome},
		)
	}
	if !opts.NoOpen {
		list = append(list, Stage{Name: StageOpen, Title: "Opening store consoles", Run: s.open})
	}
	return list
}

type stages struct {
	opts Options
}

func (s *stages) resolve(ctx context.Context, rc *Context) (string, error) {
	cfg := rc.Config
	rc.Descriptor = version.Resolve(cfg.Manifest)
	rc.Name = rc.Descriptor.Name
	if rc.Name == "" {
		rc.Name = filepath.Base(cfg.ProjectDir)
	}

	if st, err := gitutil.Status(cfg.ProjectDir); err != nil {
		clog.FromContext(ctx).Debugf("Could not inspect working tree: %v", err)
	} else if !st.Clean() {
		clog.FromContext(ctx).Warnf("Working tree has %d uncommitted change(s); they will be part of the release commit", len(st.Changed))
	}
	return fmt.Sprintf("%s is at version %s", rc.Name, rc.Descriptor.Current), nil
}

func (s *stages) choose(ctx context.Context, rc *Context) (string, error) {
	v, err := s.opts.Prompter.Choose(ctx, rc.Descriptor)
	if err != nil {
		return "", err
	}
	rc.Version = v
	return fmt.Sprintf("Releasing version %s", v), nil
}

func (s *stages) manifests(ctx context.Context, rc *Context) (string, error) {
	for _, path := range rc.Config.Manifests() {
		if err := manifest.SetVersion(path, rc.Version); err != nil {
			return "", err
		}
		clog.FromContext(ctx).Debugf("Set version %s in %s", rc.Version, path)
	}
	return fmt.Sprintf("Updated %s and %s to %s",
		filepath.Base(rc.Config.Manifest), filepath.Base(rc.Config.ExtensionManifest), rc.Version), nil
}

func (s *stages) git(ctx context.Context, rc *Context) (string, error) {
	cfg := rc.Config
	if err := gitutil.Publish(ctx, s.opts.Runner, cfg.ProjectDir, rc.Version, cfg.Remote, cfg.Branch); err != nil {
		return "", err
	}
	rc.Pushed = true
	return fmt.Sprintf("Pushed \"%s\" to %s/%s", gitutil.CommitMessage(rc.Version), cfg.Remote, cfg.Branch), nil
}

func (s *stages) build(ctx context.Context, rc *Context) (string, error) {
	cfg := rc.Config
	cmd := runner.Command{
		Name:   cfg.BuildCommand[0],
		Args:   cfg.BuildCommand[1:],
		Dir:    cfg.ProjectDir,
		Stream: true,
	}
	if _, err := s.opts.Runner.Run(ctx, cmd); err != nil {
		return "", err
	}
	return fmt.Sprintf("Built %s", cfg.DistDir), nil
}

// SignCommand assembles the signing command for cfg.
func SignCommand(rc *Context) runner.Command {
	cfg := rc.Config
	args := append([]string{}, cfg.SignCommand[1:]...)
	cmd := runner.Command{Name: cfg.SignCommand[0], Dir: cfg.DistDir}
	if cfg.CredentialsInArgs {
		args = append(args,
			"--api-key="+cfg.Credentials.APIKey,
			"--api-secret="+cfg.Credentials.APISecret,
		)
	} else {
		cmd.Env = []string{
			"WEB_EXT_API_KEY=" + cfg.Credentials.APIKey,
			"WEB_EXT_API_SECRET=" + cfg.Credentials.APISecret,
		}
	}
	cmd.Args = args
	return cmd
}

func (s *stages) sign(ctx context.Context, rc *Context) (string, error) {
	if _, err := s.opts.Runner.Run(ctx, SignCommand(rc)); err != nil {
		return "", err
	}
	return "Submitted to addons.mozilla.org", nil
}

// SourceArchivePath is where the source archive of a release is written.
func SourceArchivePath(rc *Context) string {
	return filepath.Join(rc.Config.ArchiveDir, fmt.Sprintf("%s-v%s-source.zip", rc.Name, rc.Version))
}

// ChromeArchivePath is where the Chrome Web Store package is written.
func ChromeArchivePath(rc *Context) string {
	return filepath.Join(rc.Config.ArchiveDir, fmt.Sprintf("%s-v%s-chrome.zip", rc.Name, rc.Version))
}

func (s *stages) archiveSource(ctx context.Context, rc *Context) (string, error) {
	a := &archive.Archiver{Runner: s.opts.Runner}
	dest := SourceArchivePath(rc)
	err := a.Build(ctx, archive.Spec{
		Source:  rc.Config.ProjectDir,
		Entries: rc.Config.SourceEntries,
		Exclude: rc.Config.ArchiveExclude,
		Dest:    dest,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %s", dest), nil
}

func (s *stages) archiveChrome(ctx context.Context, rc *Context) (string, error) {
	a := &archive.Archiver{Runner: s.opts.Runner}
	dest := ChromeArchivePath(rc)
	err := a.Build(ctx, archive.Spec{
		Source:  rc.Config.DistDir,
		Exclude: rc.Config.ArchiveExclude,
		Dest:    dest,
		Prepare: func(staging string) error {
			path := filepath.Join(staging, "manifest.json")
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no manifest.json in %s: %w", rc.Config.DistDir, err)
			}
			return manifest.RemoveProperty(path, ChromeForbiddenProperty)
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %s", dest), nil
}

// OpenCommand returns the command that opens url in the default browser on goos.
func OpenCommand(goos, url string) runner.Command {
	switch goos {
	case "darwin":
		return runner.Command{Name: "open", Args: []string{url}}
	case "windows":
		return runner.Command{Name: "rundll32", Args: []string{"url.dll,FileProtocolHandler", url}}
	default:
		return runner.Command{Name: "xdg-open", Args: []string{url}}
	}
}

// open never fails: the release is complete once this stage is reached.
func (s *stages) open(ctx context.Context, rc *Context) (string, error) {
	goos := s.opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	opened := 0
	for _, url := range rc.Config.StoreURLs {
		if _, err := s.opts.Runner.Run(ctx, OpenCommand(goos, url)); err != nil {
			clog.FromContext(ctx).Warnf("Could not open %s: %v", url, err)
			continue
		}
		opened++
	}
	return fmt.Sprintf("Opened %d of %d store consoles", opened, len(rc.Config.StoreURLs)), nil
}
