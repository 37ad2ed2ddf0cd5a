package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Create a configuration file interactively",
	Long: `Ask a few questions and write a .gitcms.yml (or the file named by --config).
Press enter to accept a default. An admin token and webhook secret can be
generated for you.

Examples:
  gitcms init
  gitcms init --force              # Replace an existing file
  gitcms init --config prod.yml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	filename := configFile()
	if _, err := os.Stat(filename); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", filename)
	}

	wizard := config.NewConfigWizard(cmd.InOrStdin(), cmd.OutOrStdout())
	if _, err := wizard.Run(); err != nil {
		return err
	}
	return wizard.WriteConfigFile(filename, initForce)
}
