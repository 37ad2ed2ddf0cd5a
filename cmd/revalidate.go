package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/gitcms/internal/revalidate"
	"github.com/conneroisu/gitcms/internal/server"
	"github.com/conneroisu/gitcms/internal/validation"
	"github.com/conneroisu/gitcms/internal/version"
)

const revalidateTimeout = 30 * time.Second

var (
	revalidateServer string
	revalidateToken  string
)

var revalidateCmd = &cobra.Command{
	Use:   "revalidate [type|all] [paths...]",
	Short: "Invalidate cached content on a running server",
	Long: `Ask a running gitcms server to invalidate a content type, or everything,
plus any extra public paths. Uses the admin token from the configuration
unless --token is given.

Types: ` + strings.Join(revalidate.TypeNames(), ", ") + `

Examples:
  gitcms revalidate                         # Invalidate everything
  gitcms revalidate projects /projects/deck # One type plus a path
  gitcms revalidate blog --server https://cms.example.com`,
	Args: cobra.ArbitraryArgs,
	RunE: runRevalidate,
}

func init() {
	rootCmd.AddCommand(revalidateCmd)

	revalidateCmd.Flags().StringVar(&revalidateServer, "server", "", "Server base URL (default from server.host and server.port)")
	revalidateCmd.Flags().StringVar(&revalidateToken, "token", "", "Admin token (default server.admin_token)")
}

// revalidateResponse is the success body of POST /api/revalidate.
type revalidateResponse struct {
	Success bool     `json:"success"`
	Type    string   `json:"type"`
	Paths   []string `json:"paths"`
	Error   string   `json:"error"`
}

func runRevalidate(cmd *cobra.Command, args []string) error {
	req := server.RevalidateRequest{Type: "all", Paths: []string{}}
	if len(args) > 0 {
		req.Type = args[0]
		req.Paths = args[1:]
	}
	if req.Type != "all" {
		if _, ok := revalidate.ParseType(req.Type); !ok {
			return fmt.Errorf("unknown content type %q (available: %s)", req.Type, strings.Join(revalidate.TypeNames(), ", "))
		}
	}
	for _, p := range req.Paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("path %q must start with /", p)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := revalidateServer
	if base == "" {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}
	if err := validation.ValidateURL(base); err != nil {
		return fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	token := revalidateToken
	if token == "" {
		token = cfg.Server.AdminToken
	}
	if token == "" {
		return fmt.Errorf("an admin token is required: set server.admin_token or pass --token")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/revalidate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	client := &http.Client{Timeout: revalidateTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", base, err)
	}
	defer resp.Body.Close()

	var result revalidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		return fmt.Errorf("revalidation failed (status %d): %s", resp.StatusCode, result.Error)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revalidated %s", result.Type)
	if len(result.Paths) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), " and %s", strings.Join(result.Paths, ", "))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
