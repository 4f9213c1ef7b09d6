package config

import (
	"github.com/benchrun/benchrun/internal/monitor"
	"github.com/benchrun/benchrun/internal/phase"
)

// MonitorOptions returns the collector selection for monitor.Factories.
func (c *Config) MonitorOptions() monitor.Options {
	return monitor.Options{
		Collectors:     c.Monitor.Collectors,
		Profiler:       c.Monitor.Profiler,
		SampleInterval: c.Monitor.SampleInterval,
	}
}

// Grammar returns the parsed phase log grammar.
func (c *Config) Grammar() (phase.Grammar, error) {
	return phase.ParseGrammar(c.Phases.Grammar)
}
