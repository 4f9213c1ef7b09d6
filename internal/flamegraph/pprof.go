package flamegraph

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"
)

// ProfileOptions describes the sample type of an exported profile.
type ProfileOptions struct {
	SampleType string
	SampleUnit string
	// Period is the sampling interval in nanoseconds, when known.
	Period int64
	// Duration of the profiled window.
	Duration time.Duration
}

// DefaultProfileOptions matches async-profiler's cpu event.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{SampleType: "samples", SampleUnit: "count"}
}

// ToProfile exports the tree as a pprof profile. Each node with self weight
// becomes one sample whose stack is the node's path, leaf first. Frames with
// the same label share a Function and Location.
func ToProfile(t *Tree, opts ProfileOptions) *profile.Profile {
	if opts.SampleType == "" {
		opts = DefaultProfileOptions()
	}
	p := &profile.Profile{
		SampleType:    []*profile.ValueType{{Type: opts.SampleType, Unit: opts.SampleUnit}},
		DurationNanos: opts.Duration.Nanoseconds(),
	}
	if opts.Period > 0 {
		p.PeriodType = &profile.ValueType{Type: "cpu", Unit: "nanoseconds"}
		p.Period = opts.Period
	}

	locations := make(map[string]*profile.Location)
	locationFor := func(label string) *profile.Location {
		if loc, ok := locations[label]; ok {
			return loc
		}
		fn := &profile.Function{ID: uint64(len(p.Function) + 1), Name: label, SystemName: label}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{ID: uint64(len(p.Location) + 1), Line: []profile.Line{{Function: fn}}}
		p.Location = append(p.Location, loc)
		locations[label] = loc
		return loc
	}

	for id := 1; id < len(t.nodes); id++ {
		n := t.nodes[id]
		if n.Self == 0 {
			continue
		}
		var stack []*profile.Location
		for cur := NodeID(id); cur != RootID; cur = t.nodes[cur].Parent {
			stack = append(stack, locationFor(t.nodes[cur].Label))
		}
		p.Sample = append(p.Sample, &profile.Sample{Location: stack, Value: []int64{n.Self}})
	}
	return p
}

// WriteProfile writes the tree as a gzip-compressed pprof profile.
func WriteProfile(w io.Writer, t *Tree, opts ProfileOptions) error {
	p := ToProfile(t, opts)
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return p.Write(w)
}
