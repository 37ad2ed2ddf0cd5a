package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/validation"
)

var (
	saveMessage     string
	saveDryRun      bool
	saveHash        string
	saveAuthorName  string
	saveAuthorEmail string

	rmMessage string
	rmHash    string
)

var saveCmd = &cobra.Command{
	Use:   "save <local-file> <repo-path>",
	Short: "Commit a local file to the content repository",
	Long: `Write a local file to a path in the content repository as one commit.

Without --hash the file is created or updated using the hash read just before
the write. With --hash the write only succeeds if the stored file still has
that hash. --dry-run prints the unified diff and writes nothing.

Examples:
  gitcms save about.md content/pages/about.md -m "Update about page"
  gitcms save about.md content/pages/about.md --dry-run
  gitcms save about.md content/pages/about.md --hash 3b18e512 -m "Edit"`,
	Args: cobra.ExactArgs(2),
	RunE: runSave,
}

var rmCmd = &cobra.Command{
	Use:   "rm <repo-path>",
	Short: "Delete a file from the content repository",
	Long: `Delete a file from the content repository as one commit. The current hash
of the file is required and the delete fails if the file changed since.

Examples:
  gitcms rm content/blog/old-post.md --hash 3b18e512 -m "Remove old post"`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(rmCmd)

	saveCmd.Flags().StringVarP(&saveMessage, "message", "m", "", "Commit message (default \"Update <repo-path>\")")
	saveCmd.Flags().BoolVar(&saveDryRun, "dry-run", false, "Show the diff without committing")
	saveCmd.Flags().StringVar(&saveHash, "hash", "", "Require the stored file to have this content hash")
	saveCmd.Flags().StringVar(&saveAuthorName, "author-name", "", "Commit author name")
	saveCmd.Flags().StringVar(&saveAuthorEmail, "author-email", "", "Commit author email")

	rmCmd.Flags().StringVarP(&rmMessage, "message", "m", "", "Commit message (default \"Delete <repo-path>\")")
	rmCmd.Flags().StringVar(&rmHash, "hash", "", "Current content hash of the file")
	_ = rmCmd.MarkFlagRequired("hash")
}

func runSave(cmd *cobra.Command, args []string) error {
	localFile := args[0]
	repoPath, err := validation.ContentPath(args[1])
	if err != nil {
		return err
	}

	if err := ValidateFileExists(localFile); err != nil {
		return err
	}
	data, err := os.ReadFile(localFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localFile, err)
	}

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

	out := cmd.OutOrStdout()

	if saveDryRun {
		change, err := remote.Diff(ctx, a.store, repoPath, "", data)
		if err != nil {
			return fmt.Errorf("comparing %s: %w", repoPath, err)
		}
		printChange(out, change)
		return nil
	}

	message := validation.SanitizeMessage(saveMessage)
	if message == "" {
		message = "Update " + repoPath
	}

	var author *remote.Author
	if saveAuthorName != "" || saveAuthorEmail != "" {
		author = &remote.Author{Name: saveAuthorName, Email: saveAuthorEmail}
	}

	var result *remote.CommitResult
	if saveHash != "" {
		result, err = a.store.Write(ctx, repoPath, data, message, remote.WriteOptions{
			ContentHash: saveHash,
			Author:      author,
		})
	} else {
		result, err = remote.Save(ctx, a.store, repoPath, data, message, author)
	}
	if err != nil {
		return fmt.Errorf("saving %s: %w", repoPath, err)
	}

	printCommit(out, result)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	repoPath, err := validation.ContentPath(args[0])
	if err != nil {
		return err
	}

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

	message := validation.SanitizeMessage(rmMessage)
	if message == "" {
		message = "Delete " + repoPath
	}

	result, err := a.store.Remove(ctx, repoPath, message, rmHash)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", repoPath, err)
	}

	printCommit(cmd.OutOrStdout(), result)
	return nil
}

func printChange(out io.Writer, change *remote.Change) {
	switch {
	case change.Unchanged:
		fmt.Fprintf(out, "%s is unchanged\n", change.Path)
	case change.Created:
		fmt.Fprintf(out, "%s would be created\n\n%s", change.Path, change.Patch)
	default:
		fmt.Fprintf(out, "%s would be updated (current hash %s)\n\n%s", change.Path, change.ContentHash, change.Patch)
	}
}

func printCommit(out io.Writer, result *remote.CommitResult) {
	sha := result.CommitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	fmt.Fprintf(out, "[%s] %s\n", sha, result.Message)
	fmt.Fprintf(out, " %s", result.Path)
	if result.ContentHash != "" {
		fmt.Fprintf(out, " (hash %s)", result.ContentHash)
	}
	fmt.Fprintln(out)
}
