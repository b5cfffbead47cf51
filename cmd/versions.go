package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmsnll/ext-release/internal/version"
)

// versionsCmd represents the versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Shows the current version and the suggested release versions.",
	Long: `Reads the version from package.json and lists the choices the release
prompt would offer. Nothing is changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := version.Resolve(appConfig.Manifest)
		out := cmd.OutOrStdout()

		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(out, "%s (%s)\n\n", name, appConfig.Manifest)

		table := newTable(out, "Choice", "Version")
		for _, c := range d.Choices() {
			_ = table.Append([]string{c.Label, c.Version})
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
