package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/gubacrawl/internal/config"
)

//go:embed templates/gubacrawl.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new gubacrawl configuration file",
		Long: `Initialize creates a commented .gubacrawl.yaml in the current directory.

The template documents every crawl, proxy, batch and target-source setting.
Credentials are not part of it: put them in the environment or a .env file.

Examples:
  # Create .gubacrawl.yaml in current directory
  gubacrawl init

  # Create config file at a specific path
  gubacrawl init -o myconfig.yaml

  # Force overwrite existing file
  gubacrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/gubacrawl.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nSet credentials in the environment or a .env file:")
	fmt.Fprintf(out, "  %s, %s (proxy vendor)\n", config.EnvProxyAppKey, config.EnvProxyAppSecret)
	fmt.Fprintf(out, "  %s (target database for crawl --all)\n", config.EnvTargetsDSN)
	return nil
}
