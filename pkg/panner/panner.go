// Package panner implements the spatial mixer: a set of named sources,
// each with one or more 2-D locations, routed onto output channels
// through gain-ramped pipes. Two geometric modes compute the per-channel
// gain: Radial (distance to a loudspeaker) and Rectangles (piecewise
// linear fade envelopes over a stereo patch).
package panner

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/drgolem/resonantmix/pkg/geom"
)

// Mode selects the geometric model used to compute gains.
type Mode int32

const (
	ModeRadial Mode = iota
	ModeRectangles
)

// interpSamples is the length, in samples, of every gain retarget ramp
// triggered by a sync, matching the "glitch-free" rate limit the spec
// calls for.
const interpSamples = 2000

// maxPipesPerSource bounds the number of simultaneous gain trajectories a
// single source can have in flight. It is fixed at construction so the
// control thread never grows a source's pipe slice while the callback
// thread iterates it.
const maxPipesPerSource = 32

// Loudspeaker is a physical output position used by Radial mode.
type Loudspeaker struct {
	Location geom.Point
}

// SoundRectangle is a rectangular stereo patch used by Rectangles mode: a
// fade border around location/size, with a left/right channel pair and a
// stereo-pan balance between them.
type SoundRectangle struct {
	Location     geom.Point
	Size         geom.Size
	StereoPan    float64
	FadeWidth    float64
	LeftChannel  int
	RightChannel int
}

// rampDirective is the immutable payload swapped into a LinearRamp's
// atomic pointer by the control thread; the callback thread absorbs it
// once per callback via sync(), then advances a plain, non-atomic copy
// per sample with zero allocation.
type rampDirective struct {
	target     float64
	totalSteps int
}

// LinearRamp advances a value toward a target over a fixed number of
// samples. SetTarget is safe to call from the control thread at any time;
// Update/Value/Left are meant for the callback thread's per-sample loop
// and never allocate.
type LinearRamp struct {
	directive atomic.Pointer[rampDirective]
	seen      *rampDirective

	value         float64
	target        float64
	stepSize      float64
	stepRemaining int
}

// NewLinearRamp creates a ramp parked at 0 with no pending motion.
func NewLinearRamp() *LinearRamp {
	r := &LinearRamp{}
	d := &rampDirective{}
	r.directive.Store(d)
	r.seen = d
	return r
}

// SetTarget schedules the ramp to reach target after the given number of
// samples. Callable from any thread; takes effect the next time sync()
// runs on the callback thread.
func (r *LinearRamp) SetTarget(target float64, steps int) {
	r.directive.Store(&rampDirective{target: target, totalSteps: steps})
}

// Target returns the most recently requested target, regardless of how
// far the ramp has progressed toward it. Safe to call from any thread.
func (r *LinearRamp) Target() float64 {
	return r.directive.Load().target
}

// sync absorbs any pending directive into the ramp's plain, callback-
// thread-only fields. Call once per callback, never per sample.
func (r *LinearRamp) sync() {
	d := r.directive.Load()
	if d == r.seen {
		return
	}
	r.seen = d
	r.target = d.target
	if d.totalSteps <= 0 {
		r.value = d.target
		r.stepSize = 0
		r.stepRemaining = 0
		return
	}
	r.stepSize = (d.target - r.value) / float64(d.totalSteps)
	r.stepRemaining = d.totalSteps
}

// Update advances the ramp by one sample. Zero allocation; call exactly
// once per output sample.
func (r *LinearRamp) Update() {
	if r.stepRemaining <= 0 {
		return
	}
	r.stepRemaining--
	if r.stepRemaining == 0 {
		r.value = r.target
		return
	}
	r.value += r.stepSize
}

// Value returns the ramp's current value.
func (r *LinearRamp) Value() float64 {
	return r.value
}

// Left reports whether the ramp still has samples to travel.
func (r *LinearRamp) Left() bool {
	return r.stepRemaining > 0
}

// Pipe is one active gain trajectory from a source to an output channel.
type Pipe struct {
	to   atomic.Int32
	Ramp *LinearRamp
}

// To returns the pipe's current destination output channel.
func (p *Pipe) To() int {
	return int(p.to.Load())
}

// isDone reports whether the pipe has no useful signal left and may be
// repurposed for a different channel.
func (p *Pipe) isDone() bool {
	return !p.Ramp.Left() && p.Ramp.Value() == 0 && p.Ramp.Target() == 0
}

// Source is a named entry in the Panner: a set of simultaneous locations
// (e.g. duplicated widgets) and the pipes currently carrying its audio to
// output channels.
type Source struct {
	ID        string
	Locations map[string]geom.Point
	Pipes     []*Pipe
}

// newSource allocates a source with its full pipe pool pre-populated
// (all initially done/inert): the pipe slice's length never changes
// again, so the callback thread's range over src.Pipes never races the
// control thread allocating a pipe.
func newSource(id string) *Source {
	s := &Source{ID: id, Locations: make(map[string]geom.Point)}
	s.Pipes = make([]*Pipe, maxPipesPerSource)
	for i := range s.Pipes {
		s.Pipes[i] = &Pipe{Ramp: NewLinearRamp()}
	}
	return s
}

// routingPlan is the Panner's geometric configuration: mode, loudspeaker
// or rectangle layout, and the derived output channel count. It is
// rebuilt off-path by the control thread and swapped into the Panner via
// a single atomic pointer, matching the spec's RCU guidance for anything
// the callback thread reads but does not own.
type routingPlan struct {
	mode         Mode
	maxRadius    float64
	speakers     []Loudspeaker
	rectangles   []SoundRectangle
	channelCount int
}

// Panner mixes named sources onto output channels. AddSource/RemoveSource
// and the Set*/Replace* reconfiguration methods are control-thread
// operations; Process is the callback-thread entry point.
type Panner struct {
	plan atomic.Pointer[routingPlan]

	mu      sync.Mutex // serializes control-thread writers against each other
	sources atomic.Pointer[[]*Source]
}

// New creates an empty Panner in Radial mode with the given max radius.
func New(maxRadius float64) *Panner {
	p := &Panner{}
	p.plan.Store(&routingPlan{mode: ModeRadial, maxRadius: maxRadius})
	empty := []*Source{}
	p.sources.Store(&empty)
	return p
}

func (p *Panner) currentPlan() *routingPlan {
	return p.plan.Load()
}

func (p *Panner) currentSources() []*Source {
	return *p.sources.Load()
}

// AddSource registers a new, location-less source. O(#sources).
func (p *Panner) AddSource(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentSources()
	next := make([]*Source, len(old), len(old)+1)
	copy(next, old)
	next = append(next, newSource(id))
	p.sources.Store(&next)
}

// RemoveSource detaches and discards a source. All of its pipes stop
// being iterated by Process immediately once the swap is visible; any
// in-flight callback keeps using the pre-swap snapshot. Returns false if
// the id is unknown.
func (p *Panner) RemoveSource(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentSources()
	next := make([]*Source, 0, len(old))
	found := false
	for _, s := range old {
		if s.ID == id {
			found = true
			continue
		}
		next = append(next, s)
	}
	if !found {
		return false
	}
	p.sources.Store(&next)
	return true
}

func (p *Panner) findSource(id string) *Source {
	for _, s := range p.currentSources() {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SetSourceLocation updates one named location of a source and re-syncs
// its pipe gains. Returns false (a non-fatal diagnostic) if id is
// unknown.
func (p *Panner) SetSourceLocation(id, path string, point geom.Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.findSource(id)
	if s == nil {
		slog.Warn("panner: set_source_location for unknown source", "id", id)
		return false
	}
	s.Locations[path] = point
	p.syncSource(s)
	return true
}

// ClearSourceLocation removes one named location of a source and re-syncs
// its pipe gains.
func (p *Panner) ClearSourceLocation(id, path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.findSource(id)
	if s == nil {
		slog.Warn("panner: clear_source_location for unknown source", "id", id)
		return false
	}
	delete(s.Locations, path)
	p.syncSource(s)
	return true
}

// SetMode reconfigures the geometric mode, bumps the routing generation
// and recomputes the channel count.
func (p *Panner) SetMode(mode Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentPlan()
	next := *old
	next.mode = mode
	p.installPlan(&next)
}

// SetMaxRadius updates the Radial mode falloff distance without bumping
// the channel-count-affecting reconfiguration path.
func (p *Panner) SetMaxRadius(r float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentPlan()
	next := *old
	next.maxRadius = r
	p.plan.Store(&next)
}

// ReplaceSpeakers swaps in a new loudspeaker list, bumps generation and
// recomputes channel count. Never fallible.
func (p *Panner) ReplaceSpeakers(speakers []Loudspeaker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentPlan()
	next := *old
	next.speakers = append([]Loudspeaker(nil), speakers...)
	p.installPlan(&next)
}

// AddRectangle appends a Sound Rectangle, bumps generation and recomputes
// channel count. Never fallible.
func (p *Panner) AddRectangle(r SoundRectangle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.currentPlan()
	next := *old
	next.rectangles = append(append([]SoundRectangle(nil), old.rectangles...), r)
	p.installPlan(&next)
}

// installPlan recomputes channel count, swaps the plan in, and re-syncs
// every source against the new geometry.
func (p *Panner) installPlan(next *routingPlan) {
	next.channelCount = computeChannelCount(next)
	p.plan.Store(next)
	for _, s := range p.currentSources() {
		p.syncSource(s)
	}
}

func computeChannelCount(plan *routingPlan) int {
	switch plan.mode {
	case ModeRadial:
		return len(plan.speakers)
	case ModeRectangles:
		count := 0
		for _, r := range plan.rectangles {
			if r.LeftChannel+1 > count {
				count = r.LeftChannel + 1
			}
			if r.RightChannel+1 > count {
				count = r.RightChannel + 1
			}
		}
		return count
	default:
		return 0
	}
}

// ChannelCount returns the output channel count derived from the current
// configuration.
func (p *Panner) ChannelCount() int {
	return p.currentPlan().channelCount
}

// syncSource recomputes every output channel's target gain for src and
// retargets or allocates pipes to match. Control-thread only.
func (p *Panner) syncSource(src *Source) {
	plan := p.currentPlan()

	for channel := 0; channel < plan.channelCount; channel++ {
		gain := 0.0
		for _, loc := range src.Locations {
			g := computeGain(plan, channel, loc)
			if g > gain {
				gain = g
			}
		}

		if gain <= 1e-7 {
			for _, pipe := range src.Pipes {
				if pipe.To() == channel && pipe.Ramp.Target() >= 1e-4 {
					pipe.Ramp.SetTarget(0, interpSamples)
				}
			}
			continue
		}

		found := false
		for _, pipe := range src.Pipes {
			if pipe.To() == channel {
				pipe.Ramp.SetTarget(gain, interpSamples)
				found = true
				break
			}
		}
		if found {
			continue
		}

		for _, pipe := range src.Pipes {
			if pipe.isDone() {
				pipe.to.Store(int32(channel))
				pipe.Ramp.SetTarget(gain, interpSamples)
				found = true
				break
			}
		}
		if !found {
			slog.Warn("panner: could not allocate pipe for a moving source", "source", src.ID, "channel", channel)
		}
	}
}

func computeGain(plan *routingPlan, channel int, loc geom.Point) float64 {
	switch plan.mode {
	case ModeRadial:
		return computeGainRadial(plan, channel, loc)
	case ModeRectangles:
		return computeGainRectangle(plan, channel, loc)
	default:
		return 0
	}
}

func computeGainRadial(plan *routingPlan, channel int, loc geom.Point) float64 {
	if channel >= len(plan.speakers) {
		return 0
	}
	d := geom.Distance(loc, plan.speakers[channel].Location)
	rel := d / plan.maxRadius
	return clamp01(2 * (1 - rel))
}

func computeGainRectangle(plan *routingPlan, channel int, loc geom.Point) float64 {
	gain := 0.0
	for _, r := range plan.rectangles {
		if r.LeftChannel != channel && r.RightChannel != channel {
			continue
		}
		localX := loc.X - r.Location.X
		localY := loc.Y - r.Location.Y

		gy := piecewiseLinear(localY, []keyframe{
			{-r.FadeWidth, 0},
			{0, 1},
			{r.Size.Y, 1},
			{r.Size.Y + r.FadeWidth, 0},
		})

		var gx float64
		if r.LeftChannel == r.RightChannel {
			gx = piecewiseLinear(localX, []keyframe{
				{-r.FadeWidth, 0},
				{0, 1},
				{r.Size.X, 1},
				{r.Size.X + r.FadeWidth, 0},
			})
		} else if r.LeftChannel == channel {
			gx = piecewiseLinear(localX, []keyframe{
				{-r.FadeWidth, 0},
				{0, 1},
				{r.Size.X, 1 - r.StereoPan},
				{r.Size.X + r.FadeWidth, 0},
			})
		} else {
			gx = piecewiseLinear(localX, []keyframe{
				{-r.FadeWidth, 0},
				{0, 1 - r.StereoPan},
				{r.Size.X, 1},
				{r.Size.X + r.FadeWidth, 0},
			})
		}

		contribution := gx * gy
		if contribution > gain {
			gain = contribution
		}
	}
	return gain
}

type keyframe struct {
	x, y float64
}

// piecewiseLinear interpolates y at x across a strictly increasing-x set
// of keyframes, clamping to the first/last key's y outside the range.
func piecewiseLinear(x float64, keys []keyframe) float64 {
	if x <= keys[0].x {
		return keys[0].y
	}
	last := keys[len(keys)-1]
	if x >= last.x {
		return last.y
	}
	for i := 1; i < len(keys); i++ {
		if x <= keys[i].x {
			a, b := keys[i-1], keys[i]
			t := (x - a.x) / (b.x - a.x)
			return a.y + t*(b.y-a.y)
		}
	}
	return last.y
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LocateChannel finds the output channel nearest a query point: the
// closest loudspeaker in Radial mode, or the nearest rectangle's left or
// right channel (split by horizontal midpoint) in Rectangles mode.
func (p *Panner) LocateChannel(point geom.Point) int {
	plan := p.currentPlan()
	switch plan.mode {
	case ModeRadial:
		best := 0
		bestd := math.Inf(1)
		for i, ls := range plan.speakers {
			d := geom.Distance(point, ls.Location)
			if d < bestd {
				best = i
				bestd = d
			}
		}
		return best
	case ModeRectangles:
		var best *SoundRectangle
		bestd := 0.0
		for i := range plan.rectangles {
			r := &plan.rectangles[i]
			d := distanceToRect(point, *r)
			if best == nil || d < bestd {
				best = r
				bestd = d
			}
		}
		if best == nil {
			return 0
		}
		midX := best.Location.X + best.Size.X/2
		if point.X < midX {
			return best.LeftChannel
		}
		return best.RightChannel
	default:
		return 0
	}
}

func distanceToRect(p geom.Point, r SoundRectangle) float64 {
	dx := 0.0
	if p.X < r.Location.X {
		dx = r.Location.X - p.X
	} else if p.X > r.Location.X+r.Size.X {
		dx = p.X - (r.Location.X + r.Size.X)
	}
	dy := 0.0
	if p.Y < r.Location.Y {
		dy = r.Location.Y - p.Y
	} else if p.Y > r.Location.Y+r.Size.Y {
		dy = p.Y - (r.Location.Y + r.Size.Y)
	}
	return math.Hypot(dx, dy)
}

// Process zeros out, then for each source's active pipes mixes
// in[source][i]*ramp.value into out[pipe.To()][i], advancing the ramp per
// sample. Callback-thread only: no allocation, no locks.
func (p *Panner) Process(in [][]float32, out [][]float32, n int) {
	for _, ch := range out {
		for i := range ch {
			ch[i] = 0
		}
	}

	sources := p.currentSources()
	for i, src := range sources {
		if i >= len(in) {
			break
		}
		srcIn := in[i]
		for _, pipe := range src.Pipes {
			pipe.Ramp.sync()
			if !pipe.Ramp.Left() && pipe.Ramp.Value() == 0 {
				continue
			}
			to := pipe.To()
			if to >= len(out) {
				continue
			}
			dest := out[to]
			if pipe.Ramp.Left() {
				for j := 0; j < n; j++ {
					dest[j] += srcIn[j] * float32(pipe.Ramp.Value())
					pipe.Ramp.Update()
				}
			} else {
				v := float32(pipe.Ramp.Value())
				for j := 0; j < n; j++ {
					dest[j] += srcIn[j] * v
				}
			}
		}
	}
}
