package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/fetcher"
)

var validateOutput string

var validateCmd = &cobra.Command{
	Use:     "validate",
	Aliases: []string{"v"},
	Short:   "Parse and validate every content file",
	Long: `Parse every content file in the repository, drafts included, and report
each failing field. Exits non-zero when any file is invalid, so it can gate
a deploy.

Examples:
  gitcms validate
  gitcms validate -o json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addOutputFlag(validateCmd, &validateOutput)
}

// validateSummary is the structured validate output.
type validateSummary struct {
	Files   int                  `json:"files" yaml:"files"`
	Invalid int                  `json:"invalid" yaml:"invalid"`
	Reports []fetcher.FileReport `json:"reports" yaml:"reports"`
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	reports, err := a.fetcher.Check(ctx)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}

	summary := validateSummary{Files: len(reports), Reports: reports}
	for _, r := range reports {
		if r.Err != nil {
			summary.Invalid++
		}
	}

	out := cmd.OutOrStdout()
	if validateOutput != formatTable {
		if err := writeStructured(out, validateOutput, summary); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range reports {
			state := "ok"
			if r.Err != nil {
				state = "FAIL"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", state, r.Type, r.Path)
			if r.Err != nil {
				fmt.Fprintf(w, "\t\t  %s\n", r.Error)
			}
		}
		w.Flush()
		fmt.Fprintf(out, "\n%d files checked, %d invalid\n", summary.Files, summary.Invalid)
	}

	if summary.Invalid > 0 {
		return fmt.Errorf("%d of %d content files failed validation", summary.Invalid, summary.Files)
	}
	return nil
}
