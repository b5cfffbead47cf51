package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/jmsnll/ext-release/internal/config"
)

var (
	cfgFile    string
	projectDir string
	verbose    bool
	appConfig  *config.Config
	AppVersion string // Populated by main.go from ldflags
	AppCommit  string // Populated by main.go from ldflags
	AppDate    string // Populated by main.go from ldflags
	AppBuiltBy string // Populated by main.go from ldflags
)

// rootCmd represents the base command when called without any subcommands.
// Without a subcommand it runs the release, like 'ext-release release'.
var rootCmd = &cobra.Command{
	Use:   "ext-release",
	Short: "ext-release bumps, builds, publishes and archives a browser extension.",
	Long: `ext-release runs the release of a browser extension from its project directory:

1. Read the current version from package.json and ask which version to release.
2. Write the new version to package.json and the extension manifest.
3. Commit everything as "Release v<version>" and push it.
4. Run the production build.
5. Sign and submit the bundle to addons.mozilla.org (failures are ignored).
6. Write a source archive and a Chrome Web Store package to the desktop
   (failures are ignored).
7. Open the store consoles.

Store credentials are read from release.config.json ("apiKey", "apiSecret")
or the EXT_RELEASE_APIKEY / EXT_RELEASE_APISECRET environment variables.

The working tree should be clean: every change in it becomes part of the
release commit.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(clog.WithLogger(cmd.Context(), newLogger(cmd.ErrOrStderr())))

		dir := projectDir
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current working directory: %w", err)
			}
			dir = cwd
		}

		var err error
		appConfig, err = config.Load(dir, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		log := clog.FromContext(cmd.Context())
		if appConfig.ConfigFound {
			log.Debugf("Using config file: %s", appConfig.ConfigFile)
		} else {
			log.Debugf("Config file %s not found, using defaults and environment", appConfig.ConfigFile)
		}
		log.Debugf("Project directory: %s", appConfig.ProjectDir)
		return nil
	},
	RunE:          runRelease,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and runs it.
// SIGINT and SIGTERM cancel the running stage.
func Execute(appVersion, appCommit, appDate, appBuiltBy string) error {
	AppVersion = appVersion
	AppCommit = appCommit
	AppDate = appDate
	AppBuiltBy = appBuiltBy

	if AppVersion == "dev" && AppCommit == "none" { // If not set by ldflags
		rootCmd.Version = "dev-snapshot (manual build)"
	} else {
		rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s, by: %s)", AppVersion, AppCommit, AppDate, AppBuiltBy)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("release config file (default is <dir>/%s)", config.DefaultConfigFileName))
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "project directory (default is the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	addReleaseFlags(rootCmd)
}

// newLogger logs warnings and errors to w, or everything with --verbose.
func newLogger(w io.Writer) *clog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return clog.NewLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
