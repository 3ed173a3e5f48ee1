// Package graph implements the Graph Root: the object a hardware callback
// drives directly. It owns the source modules, the Panner and one Channel
// Limiter per output channel, and preallocates every scratch buffer the
// callback path touches so Process never allocates.
package graph

import (
	"github.com/drgolem/resonantmix/pkg/audiotransfer"
	"github.com/drgolem/resonantmix/pkg/limiter"
	"github.com/drgolem/resonantmix/pkg/panner"
)

// SourceModule is anything the root can pull a callback's worth of samples
// from. *audiotransfer.AudioTransfer is the only implementation today; the
// interface exists so the root does not hard-code a single source type.
type SourceModule interface {
	Process(out [][]float32, n int, callbackTime audiotransfer.CallbackTime)
}

// Root owns the full signal path for one set of output channels: N source
// modules feeding the Panner, whose output is clamped per channel by a
// dedicated Channel Limiter.
type Root struct {
	sources  []SourceModule
	panner   *panner.Panner
	limiters []*limiter.ChannelLimiter

	frames   int
	preLimit [][]float32   // one scratch channel per output channel, reused every callback
	scratch  [][][]float32 // per-source raw input channels, [source][channel][frame]
	panIn    [][]float32   // per-source mono downmix buffer, fed to Panner.Process
}

// New creates a Root for the given number of output channels and the
// per-callback frame count it should preallocate scratch buffers for.
// threshold/attack/release configure every per-channel limiter identically;
// callers needing per-channel limiter parameters can reach into Limiters
// after construction.
func New(p *panner.Panner, channels, frames int, threshold float64, attackTime, releaseTime int) *Root {
	r := &Root{
		panner: p,
		frames: frames,
	}
	r.limiters = make([]*limiter.ChannelLimiter, channels)
	for c := range r.limiters {
		r.limiters[c] = limiter.NewChannelLimiter(threshold, attackTime, releaseTime)
	}
	r.preLimit = make([][]float32, channels)
	for c := range r.preLimit {
		r.preLimit[c] = make([]float32, frames)
	}
	return r
}

// AddSource registers a source module under id, which also becomes its
// Panner source ID, and records its real channel count. The Panner's
// source list and the root's own source list are appended to in lockstep
// so Panner.Process's index-by-position convention keeps lining up panner
// source i with r.scratch[i]. channels raw input channels are preallocated
// per source so Process never allocates; since Panner.Process mixes exactly
// one mono stream per source, Process downmixes those raw channels into
// r.panIn[i] every callback the same way convertToMono16Bit averages a
// decoded file's channels down to mono. Control-thread only; must not be
// called while Process is running concurrently.
func (r *Root) AddSource(id string, channels int, s SourceModule) {
	r.panner.AddSource(id)
	r.sources = append(r.sources, s)

	raw := make([][]float32, channels)
	for c := range raw {
		raw[c] = make([]float32, r.frames)
	}
	r.scratch = append(r.scratch, raw)
	r.panIn = append(r.panIn, make([]float32, r.frames))
}

// Limiters exposes the per-channel limiters for parameter queries
// (current_gain) or reconfiguration from the control thread.
func (r *Root) Limiters() []*limiter.ChannelLimiter {
	return r.limiters
}

// Process drives one callback: pull every source into its scratch input,
// mix through the Panner into the pre-limit buffers, then run each output
// channel through its Channel Limiter into out. Callback-thread only: no
// allocation, no locks beyond what Panner.Process and AudioTransfer.Process
// already guarantee are realtime-safe.
func (r *Root) Process(out [][]float32, n int, callbackTime audiotransfer.CallbackTime) {
	for i, s := range r.sources {
		s.Process(r.scratch[i], n, callbackTime)
		downmixToMono(r.panIn[i], r.scratch[i], n)
	}
	r.panner.Process(r.panIn, r.preLimit, n)

	for c, out := range out {
		if c >= len(r.preLimit) {
			for i := range out[:n] {
				out[i] = 0
			}
			continue
		}
		lim := r.limiters[c]
		src := r.preLimit[c]
		for i := 0; i < n; i++ {
			out[i] = float32(lim.PutGet(float64(src[i])))
		}
	}
}

// downmixToMono collapses a source's raw input channels into the single
// mono stream Panner.Process expects per source, averaging across channels
// the same way convertToMono16Bit averages a decoded file's interleaved
// samples. A mono source is copied through unchanged.
func downmixToMono(dst []float32, channels [][]float32, n int) {
	switch len(channels) {
	case 0:
		for i := 0; i < n; i++ {
			dst[i] = 0
		}
	case 1:
		copy(dst[:n], channels[0][:n])
	default:
		inv := 1.0 / float32(len(channels))
		for i := 0; i < n; i++ {
			var sum float32
			for _, ch := range channels {
				sum += ch[i]
			}
			dst[i] = sum * inv
		}
	}
}
