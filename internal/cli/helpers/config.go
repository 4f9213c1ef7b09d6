package helpers

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benchrun/benchrun/internal/config"
	"github.com/benchrun/benchrun/internal/logging"
)

// GlobalFlags are the persistent flags of the root command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	JSONLogs   bool
}

// AddGlobalFlags registers the persistent flags on root.
func AddGlobalFlags(root *cobra.Command, g *GlobalFlags) {
	root.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "", "Config file (default ./benchrun.yaml if present)")
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.JSONLogs, "json-logs", false, "Emit structured JSON logs instead of console output")
}

// LoadConfig loads the layered configuration and applies the global flags,
// the last layer.
func LoadConfig(g *GlobalFlags) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.JSONLogs {
		cfg.Logging.Pretty = false
	}
	if cfg.Logging.Output == nil {
		cfg.Logging.Output = os.Stderr
	}
	return cfg, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}
