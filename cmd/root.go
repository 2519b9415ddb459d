package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "chatppt",
	Short: "Draft, refine and illustrate presentation outlines with LLMs",
	Long: `chatppt turns free-form material into a markdown slide outline.

The outline is improved by a fixed number of write/critique rounds, then each
slide can be illustrated with a searched image that a vision model judged
relevant, or with a synthesized image when nothing found is good enough.

Settings come from an optional config file, a .env file and CHATPPT_*
environment variables.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
