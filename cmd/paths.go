package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pathsOutput string

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List every addressable content URL",
	Long: `List the public URL of every published page, project, service and blog post.
Static site generators use this to know what to prerender.

Examples:
  gitcms paths              # One URL per line
  gitcms paths -o json      # Identifiers grouped by collection`,
	Args: cobra.NoArgs,
	RunE: runPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)
	addOutputFlag(pathsCmd, &pathsOutput)
}

func runPaths(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := a.fetcher.Paths(ctx)
	if err != nil {
		return fmt.Errorf("listing content paths: %w", err)
	}

	if pathsOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), pathsOutput, paths)
	}

	for _, u := range paths.URLs() {
		fmt.Fprintln(cmd.OutOrStdout(), u)
	}
	return nil
}
