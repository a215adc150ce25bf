package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/config"
)

// Package-level variables for config flags
var (
	configShowJSONFlag    bool
	configShowSecretsFlag bool
	configInitForceFlag   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after the config file, environment and flags
have been applied. Secrets are masked unless --show-secrets is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Writes the default configuration to path (default ./config.toml).
An existing file is only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	// The file being created may not exist yet; skip loading it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogging(logLevel, logFormat)
		return nil
	},
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configShowCmd.Flags().BoolVar(&configShowJSONFlag, "json", false, "Print JSON instead of TOML")
	configShowCmd.Flags().BoolVar(&configShowSecretsFlag, "show-secrets", false, "Print API keys and passwords unmasked")
	configInitCmd.Flags().BoolVar(&configInitForceFlag, "force", false, "Overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if configShowJSONFlag {
		cfg := globalConfig
		if !configShowSecretsFlag {
			cfg = config.Masked(cfg)
		}
		return writeJSON(cmd.OutOrStdout(), cfg)
	}
	out, err := config.Encode(globalConfig, configShowSecretsFlag)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigFilePath
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.WriteDefault(path, configInitForceFlag); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}
