package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand sets the --version flag of root and adds a
// `version` subcommand printing the full build metadata.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.Version = Short()

	var asJSON bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information.",
		Long:  "Print the version, commit, build time and toolchain of " + root.Name() + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			build := Current()

			if !asJSON {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())

				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(build); err != nil {
				return fmt.Errorf("encode build info: %w", err)
			}

			return nil
		},
	}

	versionCmd.Flags().BoolVar(&asJSON, "json", false, "print build information as JSON")

	root.AddCommand(versionCmd)
}
