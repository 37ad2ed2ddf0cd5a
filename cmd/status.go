package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/fetcher"
	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/version"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository connectivity and content statistics",
	Long: `Probe the configured repository and report whether it is reachable, its
metadata, the most recent commit and counts of published content.

Examples:
  gitcms status             # Human readable summary
  gitcms status -o json     # Machine readable`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addOutputFlag(statusCmd, &statusOutput)
}

// statusReport is the status command output.
type statusReport struct {
	Connected  bool                   `json:"connected" yaml:"connected"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Backend    string                 `json:"backend" yaml:"backend"`
	Repository *remote.RepositoryInfo `json:"repository,omitempty" yaml:"repository,omitempty"`
	LastCommit *remote.CommitRecord   `json:"lastCommit,omitempty" yaml:"lastCommit,omitempty"`
	Statistics *fetcher.Stats         `json:"statistics,omitempty" yaml:"statistics,omitempty"`
	Version    string                 `json:"version" yaml:"version"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	report := collectStatus(ctx, a)

	if statusOutput == formatTable {
		printStatus(cmd.OutOrStdout(), report)
	} else if err := writeStructured(cmd.OutOrStdout(), statusOutput, report); err != nil {
		return err
	}

	if !report.Connected {
		return fmt.Errorf("repository is not reachable: %s", report.Error)
	}
	return nil
}

func collectStatus(ctx context.Context, a *app) *statusReport {
	report := &statusReport{
		Backend: a.cfg.Repository.Backend,
		Version: version.Get().Short(),
	}

	access := a.store.CheckAccess(ctx)
	if !access.Valid {
		report.Error = access.Error
		return report
	}

	info, err := a.store.Repository(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Repository = info

	if commits, err := a.store.ListCommits(ctx, 1); err == nil && len(commits) > 0 {
		report.LastCommit = &commits[0]
	}

	stats, err := a.fetcher.Stats(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Statistics = stats
	report.Connected = true
	return report
}

func printStatus(out io.Writer, report *statusReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	state := "connected"
	if !report.Connected {
		state = "disconnected"
	}
	fmt.Fprintf(w, "Status:\t%s\n", state)
	if report.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", report.Error)
	}
	fmt.Fprintf(w, "Backend:\t%s\n", report.Backend)

	if r := report.Repository; r != nil {
		fmt.Fprintf(w, "Repository:\t%s\n", r.FullName)
		fmt.Fprintf(w, "Default branch:\t%s\n", r.DefaultBranch)
		if r.URL != "" {
			fmt.Fprintf(w, "URL:\t%s\n", r.URL)
		}
	}

	if c := report.LastCommit; c != nil {
		sha := c.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		fmt.Fprintf(w, "Last commit:\t%s %s (%s, %s)\n", sha, c.Message, c.Author.Name, c.Date.Format(time.RFC3339))
	}

	if s := report.Statistics; s != nil {
		fmt.Fprintf(w, "Pages:\t%d\n", s.TotalPages)
		fmt.Fprintf(w, "Projects:\t%d\n", s.TotalProjects)
		fmt.Fprintf(w, "Services:\t%d\n", s.TotalServices)
		fmt.Fprintf(w, "Blog posts:\t%d\n", s.TotalBlogPosts)
		fmt.Fprintf(w, "Testimonials:\t%d\n", s.TotalTestimonials)
		if s.LastUpdate != nil {
			fmt.Fprintf(w, "Last update:\t%s\n", s.LastUpdate.Format(time.RFC3339))
		}
	}

	fmt.Fprintf(w, "Version:\t%s\n", report.Version)
}

// commandContext returns the command's context, or Background when the
// command is run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
