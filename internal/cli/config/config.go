// Package config implements the 'benchrun config' command family.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/cli/helpers"
	"github.com/benchrun/benchrun/internal/config"
	"github.com/benchrun/benchrun/internal/constants"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(g *helpers.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate benchrun configuration",
		Long: `Inspect and validate benchrun configuration.

Configuration Priority (highest last):
  1. Built-in defaults
  2. Config file (--config, or ./benchrun.yaml if present)
  3. BENCHRUN_* environment variables
  4. Command-line flags`,
	}

	cmd.AddCommand(newViewCmd(g))
	cmd.AddCommand(newValidateCmd(g))
	cmd.AddCommand(newInitCmd())

	return cmd
}

// newViewCmd creates the 'config view' command.
func newViewCmd(g *helpers.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(g)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd(g *helpers.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		Long: `Load every configuration layer and report all problems at once.
A workload command is required, so set workload.command in the file or
BENCHRUN_COMMAND in the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(g)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				var multi *config.MultiValidationError
				if !errors.As(err, &multi) {
					return err
				}
				for _, e := range multi.Errors {
					cmd.PrintErrf("  ✗ %s\n", e.Error())
				}
				return errors.New("configuration is invalid")
			}
			cmd.Println("✓ Configuration is valid")
			return nil
		},
	}
}

// newInitCmd creates the 'config init' command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := constants.ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := config.Marshal(config.Default())
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- config is not secret
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
