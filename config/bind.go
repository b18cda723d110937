package config

import (
	"fmt"

	"cncfw/axis"
	"cncfw/canonical"
)

// axisLetters maps axis.Name to the single-letter token prefix used by
// the $<axis><param> convention (xvm, yvm, zvm, ...).
var axisLetters = [axis.NumAxes]string{"x", "y", "z", "a", "b", "c"}

// BindAxisMachine registers every per-axis token ($xvm, $xfm, $xtm,
// $xjm, $xjd for each of the six axes) against the live axis data
// model, so a config.Registry.Set immediately takes effect on the next
// planned move.
func BindAxisMachine(r *Registry, m *axis.Machine) {
	for i := range m.Axes {
		a := &m.Axes[i]
		letter := axisLetters[i]

		r.Register(letter+"vm", KindFloatLengthUnit,
			func() float64 { return a.VelocityMax },
			func(v float64) error { a.VelocityMax = v; return nil })

		r.Register(letter+"fm", KindFloatLengthUnit,
			func() float64 { return a.FeedMax },
			func(v float64) error { a.FeedMax = v; return nil })

		r.Register(letter+"tm", KindFloatLengthUnit,
			func() float64 { return a.TravelMax },
			func(v float64) error { a.TravelMax = v; return nil })

		r.Register(letter+"jm", KindFloatPlain,
			func() float64 { return a.JerkMax },
			func(v float64) error { a.JerkMax = v; return nil })

		r.Register(letter+"jd", KindFloatLengthUnit,
			func() float64 { return a.JunctionDeviation },
			func(v float64) error { a.JunctionDeviation = v; return nil })
	}

	for i, mo := range m.Motors {
		mo := mo
		prefix := fmt.Sprintf("%d", i+1)

		r.Register(prefix+"sa", KindFloatPlain,
			func() float64 { return mo.StepAngleDeg },
			func(v float64) error { mo.StepAngleDeg = v; mo.Recompute(); return nil })

		r.Register(prefix+"tr", KindFloatLengthUnit,
			func() float64 { return mo.TravelPerRev },
			func(v float64) error { mo.TravelPerRev = v; mo.Recompute(); return nil })

		r.Register(prefix+"mi", KindUint8,
			func() float64 { return float64(mo.Microsteps) },
			func(v float64) error { mo.Microsteps = int(v); mo.Recompute(); return nil })

		r.Register(prefix+"mt", KindFloatPlain,
			func() float64 { return mo.IdleTimeoutSec },
			func(v float64) error { mo.IdleTimeoutSec = v; return nil })
	}
}

// BindCanonicalMachine registers the canonical machine's global motion
// parameters ($ja junction acceleration, $ct chordal tolerance, $mas
// min arc segment, $mca max chord angle) and the six work offset
// coordinate systems ($g54x..$g59c).
func BindCanonicalMachine(r *Registry, m *canonical.Machine) {
	r.Register("ja", KindFloatPlain,
		func() float64 { return m.JunctionAcceleration },
		func(v float64) error { m.JunctionAcceleration = v; return nil })

	r.Register("ct", KindFloatLengthUnit,
		func() float64 { return m.ChordTolerance },
		func(v float64) error { m.ChordTolerance = v; return nil })

	r.Register("mas", KindFloatLengthUnit,
		func() float64 { return m.MinArcSegment },
		func(v float64) error { m.MinArcSegment = v; return nil })

	r.Register("mca", KindFloatPlain,
		func() float64 { return m.MaxChordAngle },
		func(v float64) error { m.MaxChordAngle = v; return nil })

	offsetNames := []string{"g54", "g55", "g56", "g57", "g58", "g59"}
	for oi, name := range offsetNames {
		offset := canonical.WorkOffset(oi)
		for ai, letter := range axisLetters {
			ai := ai
			r.Register(name+letter, KindFloatLengthUnit,
				func() float64 { return m.Offsets[offset][ai] },
				func(v float64) error { m.Offsets[offset][ai] = v; return nil })
		}
	}
}
