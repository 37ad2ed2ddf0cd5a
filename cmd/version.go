package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for gitcms: the version, git commit, build
time, Go version and target platform.

Examples:
  gitcms version                # Show version details
  gitcms version --short        # Version only
  gitcms version --format json  # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", formatText, "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	AddFlagValidation(versionCmd, "format", oneOf(formatText, formatJSON, formatYAML))
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case formatJSON, formatYAML:
		return writeStructured(out, versionFormat, struct {
			version.Info `yaml:",inline"`
			Release      bool `json:"release" yaml:"release"`
		}{info, info.IsRelease()})
	case formatText:
		if versionShort {
			fmt.Fprintln(out, info.Short())
			return nil
		}
		fmt.Fprintf(out, "gitcms %s\n", info.Short())
		fmt.Fprintln(out, info.String())
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", versionFormat)
	}
}
