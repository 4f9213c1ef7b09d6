package monitor

import (
	"fmt"
	"time"
)

// Options selects and configures collectors by name.
type Options struct {
	// Collectors lists enabled collectors; empty means DefaultCollectors.
	Collectors     []string
	Profiler       ProfilerConfig
	SampleInterval time.Duration
}

// DefaultCollectors is the full collector set.
var DefaultCollectors = []string{
	NameMpstat,
	NameIostat,
	NameSarNetwork,
	NamePerfStat,
	NameProfiler,
	NameSystem,
}

// Factories resolves collector names to factories in the given order.
func Factories(opts Options) ([]Factory, error) {
	names := opts.Collectors
	if len(names) == 0 {
		names = DefaultCollectors
	}

	seen := make(map[string]bool, len(names))
	factories := make([]Factory, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case NameMpstat:
			factories = append(factories, NewMpstat)
		case NameIostat:
			factories = append(factories, NewIostat)
		case NameSarNetwork:
			factories = append(factories, NewSarNetwork)
		case NamePerfStat:
			factories = append(factories, NewPerfStat)
		case NameProfiler:
			factories = append(factories, NewAsyncProfilerFactory(opts.Profiler))
		case NameSystem:
			factories = append(factories, NewSystemSamplerFactory(opts.SampleInterval))
		default:
			return nil, fmt.Errorf("unknown collector %q", name)
		}
	}
	return factories, nil
}
