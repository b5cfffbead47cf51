package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmsnll/ext-release/internal/progress"
	"github.com/jmsnll/ext-release/internal/prompt"
	"github.com/jmsnll/ext-release/internal/release"
	"github.com/jmsnll/ext-release/internal/runner"
)

var releaseFlags struct {
	version     string
	bump        string
	skipPublish bool
	skipArchive bool
	noOpen      bool
}

// releaseCmd represents the release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Bumps the version, commits, pushes, builds, publishes and archives the extension.",
	Long: `Runs the full release. This is also what ext-release does without a subcommand.

Updating the manifests, committing, pushing and building must succeed; the
first failure among them stops the release. Once the commit is pushed a
re-run needs a new version.

Store signing and the two archives are attempted even if one of them fails;
failures are reported at the end and do not change the exit status.

Use --set-version or --bump to skip the interactive prompt.`,
	Args: cobra.NoArgs,
	RunE: runRelease,
}

func init() {
	addReleaseFlags(releaseCmd)
	rootCmd.AddCommand(releaseCmd)
}

// addReleaseFlags registers the release flags on cmd. The root command and
// 'release' share them.
func addReleaseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&releaseFlags.version, "set-version", "", "release this version instead of asking")
	cmd.Flags().StringVar(&releaseFlags.bump, "bump", "", "release the suggested version for this label (current, patch, minor, major) instead of asking")
	cmd.Flags().BoolVar(&releaseFlags.skipPublish, "skip-publish", false, "do not sign and submit to addons.mozilla.org")
	cmd.Flags().BoolVar(&releaseFlags.skipArchive, "skip-archive", false, "do not write the source and Chrome archives")
	cmd.Flags().BoolVar(&releaseFlags.noOpen, "no-open", false, "do not open the store consoles when done")
	cmd.MarkFlagsMutuallyExclusive("set-version", "bump")
}

func runRelease(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var p prompt.Prompter = prompt.Interactive{In: cmd.InOrStdin(), Out: out}
	switch {
	case releaseFlags.version != "":
		p = prompt.Static(releaseFlags.version)
	case releaseFlags.bump != "":
		p = prompt.Label(releaseFlags.bump)
	}

	pipeline := &release.Pipeline{
		Stages: release.Stages(release.Options{
			Runner:      runner.Exec{Stdout: out, Stderr: cmd.ErrOrStderr()},
			Prompter:    p,
			SkipPublish: releaseFlags.skipPublish,
			SkipArchive: releaseFlags.skipArchive,
			NoOpen:      releaseFlags.noOpen,
		}),
		Reporter: progress.NewTerminal(out),
	}

	rc := &release.Context{Config: appConfig}
	report, err := pipeline.Run(cmd.Context(), rc)
	if verbose || len(report.Ignored()) > 0 {
		fmt.Fprintln(out)
		writeReport(out, report)
	}
	if err != nil {
		return err
	}

	if ignored := report.Ignored(); len(ignored) > 0 {
		fmt.Fprintf(out, "\nReleased %s v%s with %d ignored failure(s).\n", rc.Name, rc.Version, len(ignored))
	} else {
		fmt.Fprintf(out, "\nReleased %s v%s.\n", rc.Name, rc.Version)
	}
	return nil
}

// writeReport renders one row per executed stage.
func writeReport(w io.Writer, report release.Report) {
	table := newTable(w, "Stage", "Result", "Details")
	for _, o := range report.Outcomes {
		result := "ok"
		if o.State == progress.Failed {
			result = "failed"
			if o.Tolerant {
				result = "ignored"
			}
		}
		_ = table.Append([]string{o.Stage, result, o.Message})
	}
	_ = table.Render()
}
