// Package constants defines shared file names and defaults.
package constants

import "time"

var (
	// ConfigFile is looked up in the working directory when no --config is given.
	ConfigFile = "benchrun.yaml"

	DefaultDir = ".benchrun"

	DefaultWorkDir = DefaultDir + "/" + "runs"

	DefaultStorePath = DefaultDir + "/" + "results.duckdb"

	DefaultArtifactDir = DefaultDir + "/" + "artifacts"
)

// Phase wait defaults. Zero disables a timeout.
const (
	DefaultWarmupTimeout time.Duration = 0
	DefaultSteadyTimeout time.Duration = 0
)

// DefaultListLimit bounds "runs list" output.
const DefaultListLimit = 20
