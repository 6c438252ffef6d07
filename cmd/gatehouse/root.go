package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse - local AI gateway with model aliasing and fallback",
	Long: `Gatehouse is a local AI gateway for OpenAI-compatible clients.

It exposes the chat-completions and responses dialects on one endpoint pair
and fans requests out to multiple upstream providers, providing:
  - Request and response translation between provider dialects
  - Model aliases and ordered fallback combos
  - Account rotation with cooldowns and credential refresh
  - Streaming normalization across provider stream formats
  - Token usage recording with retention`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gatehouse.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
