package panner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/drgolem/resonantmix/pkg/geom"
)

func drainRamp(r *LinearRamp, steps int) []float64 {
	vals := make([]float64, 0, steps)
	for i := 0; i < steps; i++ {
		r.sync()
		r.Update()
		vals = append(vals, r.Value())
	}
	return vals
}

func TestLinearRampReachesTargetExactlyAfterSteps(t *testing.T) {
	r := NewLinearRamp()
	r.SetTarget(1.0, 100)
	vals := drainRamp(r, 100)
	assert.InDelta(t, 1.0, vals[len(vals)-1], 1e-9)
	assert.False(t, r.Left())
}

// TestRampNeverOvershoots is property #5: |value - previous| <=
// |target - previous| for every step, and value == target after steps.
func TestRampNeverOvershoots(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := rapid.Float64Range(-10, 10).Draw(t, "target")
		steps := rapid.IntRange(1, 5000).Draw(t, "steps")
		r := NewLinearRamp()
		r.SetTarget(target, steps)
		r.sync()
		prev := r.Value()
		for i := 0; i < steps; i++ {
			r.Update()
			v := r.Value()
			assert.LessOrEqual(t, math.Abs(v-prev), math.Abs(target-prev)+1e-9)
			prev = v
		}
		assert.InDelta(t, target, r.Value(), 1e-6)
	})
}

func TestRadialSingleSpeakerOnAxis(t *testing.T) {
	// S3: speaker at origin, max_radius 1000, source at (500,0) -> gain 1.
	p := New(0)
	p.ReplaceSpeakers([]Loudspeaker{{Location: geom.NewPoint(0, 0)}})
	p.SetMaxRadius(1000)
	p.AddSource("s")
	p.SetSourceLocation("s", "main", geom.NewPoint(500, 0))

	in := [][]float32{make([]float32, 1)}
	in[0][0] = 1.0
	out := [][]float32{make([]float32, 1)}

	// Drain the 2000-sample retarget ramp.
	for i := 0; i < 2000; i++ {
		p.Process(in, out, 1)
	}
	assert.InDelta(t, 1.0, out[0][0], 1e-3)
}

func TestRadialSourceMovingAwayRampsToZero(t *testing.T) {
	p := New(1000)
	p.ReplaceSpeakers([]Loudspeaker{{Location: geom.NewPoint(0, 0)}})
	p.AddSource("s")
	p.SetSourceLocation("s", "main", geom.NewPoint(500, 0))

	in := [][]float32{{1.0}}
	out := [][]float32{make([]float32, 1)}
	for i := 0; i < 2000; i++ {
		p.Process(in, out, 1)
	}

	p.SetSourceLocation("s", "main", geom.NewPoint(2000, 0))
	for i := 0; i < 2000; i++ {
		p.Process(in, out, 1)
	}
	assert.InDelta(t, 0, out[0][0], 1e-3)
}

// TestRadialConservationOnAxis is property #3: a source exactly on a
// loudspeaker gets gain 1 to that channel, and every other channel's
// gain stays <= 1.
func TestRadialConservationOnAxis(t *testing.T) {
	p := New(1000)
	p.ReplaceSpeakers([]Loudspeaker{
		{Location: geom.NewPoint(0, 0)},
		{Location: geom.NewPoint(2000, 0)},
	})
	plan := p.currentPlan()
	g0 := computeGainRadial(plan, 0, geom.NewPoint(0, 0))
	g1 := computeGainRadial(plan, 1, geom.NewPoint(0, 0))
	assert.InDelta(t, 1.0, g0, 1e-9)
	assert.LessOrEqual(t, g1, 1.0)
}

func TestRectangleStereoFadeScenario(t *testing.T) {
	// S4: rectangle (0,0) size (1000,1000) fade 100 stereo_pan 0.3,
	// left=0 right=1, source at (0,500).
	p := New(0)
	p.SetMode(ModeRectangles)
	p.AddRectangle(SoundRectangle{
		Location: geom.NewPoint(0, 0), Size: geom.NewPoint(1000, 1000),
		StereoPan: 0.3, FadeWidth: 100, LeftChannel: 0, RightChannel: 1,
	})
	p.AddSource("s")
	p.SetSourceLocation("s", "main", geom.NewPoint(0, 500))

	in := [][]float32{{1.0}}
	out := [][]float32{make([]float32, 1), make([]float32, 1)}
	for i := 0; i < 2000; i++ {
		p.Process(in, out, 1)
	}
	assert.InDelta(t, 1.0, out[0][0], 1e-3)
	assert.InDelta(t, 0.7, out[1][0], 1e-3)
}

// TestRectangleBoundaryProperty is property #4: at distance `fade`
// outside a rectangle corner, gain is 0; at the inside corner exactly on
// the rectangle, gain is 1.
func TestRectangleBoundaryProperty(t *testing.T) {
	p := New(0)
	p.SetMode(ModeRectangles)
	r := SoundRectangle{
		Location: geom.NewPoint(0, 0), Size: geom.NewPoint(1000, 1000),
		StereoPan: 0, FadeWidth: 100, LeftChannel: 0, RightChannel: 0,
	}
	p.AddRectangle(r)
	plan := p.currentPlan()

	outside := geom.NewPoint(-100, -100)
	assert.InDelta(t, 0, computeGainRectangle(plan, 0, outside), 1e-9)

	inside := geom.NewPoint(0, 0)
	assert.InDelta(t, 1.0, computeGainRectangle(plan, 0, inside), 1e-9)
}

func TestSetSourceLocationUnknownSourceIsDiagnosticOnly(t *testing.T) {
	p := New(1000)
	ok := p.SetSourceLocation("ghost", "main", geom.NewPoint(0, 0))
	assert.False(t, ok)
}

// TestLocationRoundTripIdempotence is property #9: set then clear a
// location leaves the source's pipe topology the same as it started
// (pipes may be mid-ramp-to-zero, but no new pipes were allocated).
func TestLocationRoundTripIdempotence(t *testing.T) {
	p := New(1000)
	p.ReplaceSpeakers([]Loudspeaker{{Location: geom.NewPoint(0, 0)}})
	p.AddSource("s")

	before := p.findSource("s")
	activeBefore := countActivePipes(before)

	p.SetSourceLocation("s", "main", geom.NewPoint(0, 0))
	p.ClearSourceLocation("s", "main")

	after := p.findSource("s")
	activeAfter := countActivePipes(after)
	assert.Equal(t, activeBefore, activeAfter, "no new pipe allocations should remain active after clearing")
}

func countActivePipes(s *Source) int {
	n := 0
	for _, p := range s.Pipes {
		if p.To() != 0 || p.Ramp.Target() != 0 {
			n++
		}
	}
	return n
}

// TestSetModeIdempotent is property #10: calling SetMode twice with the
// same value is a no-op beyond the internal generation bump.
func TestSetModeIdempotent(t *testing.T) {
	p := New(1000)
	p.SetMode(ModeRectangles)
	before := p.ChannelCount()
	p.SetMode(ModeRectangles)
	after := p.ChannelCount()
	assert.Equal(t, before, after)
}
