// Package cmd provides the gitcms command-line interface.
//
// Configuration is read from several sources, highest priority first:
//
//  1. Command-line flags (--config, --port, --log-level, ...)
//  2. GITCMS_CONFIG_FILE: path to a configuration file
//  3. Individual environment variables (GITCMS_SERVER_PORT, GITCMS_REPOSITORY_REPO, ...)
//  4. The .gitcms.yml file in the current directory
//
// Credentials also fall back to GITHUB_TOKEN, GH_TOKEN and
// GITHUB_WEBHOOK_SECRET.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/gitcms/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gitcms",
	Short: "Git-backed content sync and cache invalidation service",
	Long: `gitcms serves website content stored as files in a git repository.

It reads and validates structured content (pages, projects, services, blog
posts, testimonials and site settings), serves it through a page cache, and
invalidates exactly the affected cache entries when the repository changes.

Quick Start:
  gitcms init                     Write a .gitcms.yml interactively
  gitcms validate                 Check every content file
  gitcms serve                    Start the server
  gitcms status                   Show repository and content status
  gitcms revalidate projects      Invalidate a content type on a running server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .gitcms.yml, can also use GITCMS_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file and environment.
//
// The file is the --config flag, else GITCMS_CONFIG_FILE, else .gitcms.yml
// in the current directory. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gitcms")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// configFile returns the file init writes to.
func configFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		return envConfigFile
	}
	return config.DefaultConfigFile
}
