package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmsnll/ext-release/internal/config"
	"github.com/jmsnll/ext-release/internal/gitutil"
	"github.com/jmsnll/ext-release/internal/manifest"
	"github.com/jmsnll/ext-release/internal/version"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Checks that the project is ready to be released.",
	Long: `The doctor command inspects the project and reports anything that would make
a release fail or produce a surprising result.
Checks performed include:
- Both manifests exist, carry a version, and agree on it.
- The release config file exists and provides the store credentials.
- The project is a Git repository with a clean working tree and the
  configured remote.
- The archive directory is writable.
- The git, build, signing and zip commands are on the PATH.

This command is read-only and does not make any changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if verbose {
			fmt.Fprintf(out, "Running ext-release doctor...\n")
			fmt.Fprintf(out, "Project directory: %s\n", appConfig.ProjectDir)
			fmt.Fprintf(out, "Config file: %s\n\n", appConfig.ConfigFile)
		}

		sections := diagnose(appConfig, exec.LookPath)
		issues := printDiagnosis(out, sections)

		if issues > 0 {
			fmt.Fprintln(out, "\nPlease review the issues listed above.")
			return fmt.Errorf("%d check(s) reported issues", issues)
		}
		fmt.Fprintln(out, "\nAll checks passed. The project is ready to be released.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// diagnosis is the outcome of one group of checks.
type diagnosis struct {
	Name   string
	Issues []string
}

// diagnose runs every check against cfg concurrently and returns the results
// in a fixed order. lookPath resolves executables.
func diagnose(cfg *config.Config, lookPath func(string) (string, error)) []diagnosis {
	checks := []struct {
		name  string
		check func() []string
	}{
		{"Manifests", func() []string { return checkManifests(cfg) }},
		{"Release config", func() []string { return checkConfig(cfg) }},
		{"Git repository", func() []string { return checkGit(cfg) }},
		{"Archive directory", func() []string { return checkArchiveDir(cfg) }},
		{"Tools", func() []string { return checkTools(cfg, lookPath) }},
	}

	results := make([]diagnosis, len(checks))
	g := new(errgroup.Group)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = diagnosis{Name: c.name, Issues: c.check()}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printDiagnosis(w io.Writer, sections []diagnosis) int {
	issues := 0
	for _, s := range sections {
		fmt.Fprintf(w, "Checking %s\n", s.Name)
		if len(s.Issues) == 0 {
			fmt.Fprintln(w, "  Status: OK")
			continue
		}
		issues++
		fmt.Fprintln(w, "  Status: ISSUES FOUND")
		for _, issue := range s.Issues {
			fmt.Fprintf(w, "    - %s\n", issue)
		}
	}
	return issues
}

func checkManifests(cfg *config.Config) []string {
	var issues []string
	versions := make(map[string]string, 2)
	for _, path := range cfg.Manifests() {
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			issues = append(issues, fmt.Sprintf("Manifest does not exist: %s", path))
			continue
		} else if err != nil {
			issues = append(issues, fmt.Sprintf("Error reading %s: %v", path, err))
			continue
		}
		v := manifest.Parse(raw).GetString("version")
		if v == "" {
			issues = append(issues, fmt.Sprintf("No version in %s", path))
			continue
		}
		if _, err := version.Clean(v); err != nil {
			issues = append(issues, fmt.Sprintf("Version in %s: %v", path, err))
		}
		versions[path] = v
	}

	primary, ext := versions[cfg.Manifest], versions[cfg.ExtensionManifest]
	if primary != "" && ext != "" && primary != ext {
		issues = append(issues, fmt.Sprintf("Version mismatch: %s has %s, %s has %s",
			filepath.Base(cfg.Manifest), primary, filepath.Base(cfg.ExtensionManifest), ext))
	}
	return issues
}

func checkConfig(cfg *config.Config) []string {
	var issues []string
	if !cfg.ConfigFound {
		issues = append(issues, fmt.Sprintf("Config file not found: %s", cfg.ConfigFile))
	}
	if cfg.Credentials.APIKey == "" {
		issues = append(issues, "No apiKey configured; signing will fail")
	}
	if cfg.Credentials.APISecret == "" {
		issues = append(issues, "No apiSecret configured; signing will fail")
	}
	return issues
}

func checkGit(cfg *config.Config) []string {
	if !gitutil.IsGitRepository(cfg.ProjectDir) {
		return []string{fmt.Sprintf("Not a Git repository: %s", cfg.ProjectDir)}
	}

	var issues []string
	st, err := gitutil.Status(cfg.ProjectDir)
	if err != nil {
		issues = append(issues, err.Error())
	} else {
		if !st.Clean() {
			issues = append(issues, fmt.Sprintf("Working tree has %d uncommitted change(s), e.g. %s", len(st.Changed), st.Changed[0]))
		}
		if st.Branch != "" && st.Branch != cfg.Branch {
			issues = append(issues, fmt.Sprintf("Checked out branch '%s' differs from release branch '%s'", st.Branch, cfg.Branch))
		}
	}

	urls, err := gitutil.RemoteURLs(cfg.ProjectDir, cfg.Remote)
	if err != nil {
		issues = append(issues, err.Error())
	} else if len(urls) == 0 {
		issues = append(issues, fmt.Sprintf("Remote '%s' has no URL", cfg.Remote))
	}
	return issues
}

func checkArchiveDir(cfg *config.Config) []string {
	if _, err := os.Stat(cfg.ArchiveDir); os.IsNotExist(err) {
		// Created on demand by the archive stages.
		return nil
	}
	if err := writable(cfg.ArchiveDir); err != nil {
		return []string{fmt.Sprintf("Archive directory %s is not writable: %v", cfg.ArchiveDir, err)}
	}
	return nil
}

func checkTools(cfg *config.Config, lookPath func(string) (string, error)) []string {
	var issues []string
	seen := map[string]bool{}
	for _, tool := range []string{"git", cfg.BuildCommand[0], cfg.SignCommand[0], "zip"} {
		if seen[tool] {
			continue
		}
		seen[tool] = true
		if _, err := lookPath(tool); err != nil {
			issues = append(issues, fmt.Sprintf("'%s' not found on PATH", tool))
		}
	}
	return issues
}
