package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"assetgrab/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage assetgrab configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (ASSETGRAB_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created in the current directory as 'assetgrab.yaml' unless a
different path is given with the --config flag.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration that a run would use, merged from all sources:
  - Environment variables
  - Configuration file
  - Default values`,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "assetgrab.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	fmt.Printf("Configuration file created: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the file and set the discovery keyword and selectors for your target site")
	fmt.Println("2. Run 'assetgrab config validate' to check the configuration")
	fmt.Println("3. Collect links with 'assetgrab discover <keyword>', then fetch them with 'assetgrab download'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Environment variables (ASSETGRAB_*)")
	if configFile != "" {
		fmt.Printf("2. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("2. Configuration file: (not specified)")
	}
	fmt.Println("3. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		return fmt.Errorf("no configuration file specified, use --config")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Keyword: %s\n", cfg.Discovery.Keyword)
	fmt.Printf("  Link directory: %s\n", cfg.Discovery.LinkDir)
	fmt.Printf("  Download root: %s\n", cfg.Download.DownloadRoot)
	fmt.Printf("  Download workers: %d\n", cfg.Download.Workers)
	fmt.Printf("  Rate limit: %d requests per %s\n", cfg.RateLimit.MaxRequests, cfg.RateLimit.TimeWindow)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
