package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Workload.Command = []string{"bench"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "missing command",
			mutate: func(c *Config) { c.Workload.Command = nil },
			fields: []string{"workload.command"},
		},
		{
			name:   "unknown grammar",
			mutate: func(c *Config) { c.Phases.Grammar = "xml" },
			fields: []string{"phases.grammar"},
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Phases.SteadyTimeout = -1 },
			fields: []string{"phases.steady_timeout"},
		},
		{
			name:   "unknown collector",
			mutate: func(c *Config) { c.Monitor.Collectors = []string{"vmstat"} },
			fields: []string{"monitor.collectors"},
		},
		{
			name: "store without path",
			mutate: func(c *Config) {
				c.Store.Enabled = true
				c.Store.Path = ""
			},
			fields: []string{"store.path"},
		},
		{
			name:   "s3 without bucket",
			mutate: func(c *Config) { c.Artifacts.Backend = BackendS3 },
			fields: []string{"artifacts.s3.bucket"},
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Artifacts.Backend = "gcs" },
			fields: []string{"artifacts.backend"},
		},
		{
			name: "several at once",
			mutate: func(c *Config) {
				c.Workload.Command = nil
				c.Output.WorkDir = ""
			},
			fields: []string{"workload.command", "output.work_dir"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}

			var multi *MultiValidationError
			require.ErrorAs(t, err, &multi)
			var got []string
			for _, e := range multi.Errors {
				got = append(got, e.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestMultiValidationError_Message(t *testing.T) {
	one := &MultiValidationError{Errors: []ValidationError{{Field: "a", Message: "bad"}}}
	assert.Equal(t, "a: bad", one.Error())

	two := &MultiValidationError{Errors: []ValidationError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	assert.Contains(t, two.Error(), "validation failed with 2 errors")
	assert.Contains(t, two.Error(), "2. b: worse")
}
