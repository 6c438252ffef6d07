package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gatehouse-hq/gatehouse/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and report every validation problem found.

Examples:
  # Validate the default config
  gatehouse validate

  # Validate a specific file
  gatehouse validate --config /etc/gatehouse/gatehouse.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s has %d problems:\n", cfgFile, len(verr.Problems))
			for _, p := range verr.Problems {
				fmt.Printf("  - %s\n", p)
			}
			return fmt.Errorf("configuration invalid")
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  providers: %d\n", len(cfg.Providers))
	fmt.Printf("  aliases:   %d\n", len(cfg.Models.Aliases))
	fmt.Printf("  listen:    %s\n", cfg.Server.ListenAddress)
	return nil
}
