// Package audiotransfer bridges a decoder thread and the realtime
// callback thread: a RingState of DecodedBuffers, play/pause/seek
// semantics, and the wall-clock-to-presentation-time mapping that makes
// A/V sync possible.
package audiotransfer

import (
	"math"
	"sync/atomic"

	"github.com/drgolem/resonantmix/pkg/decodedbuffer"
	"github.com/drgolem/resonantmix/pkg/ringstate"
	"github.com/drgolem/resonantmix/pkg/timestamp"
)

// PlayMode selects whether the transfer advances its ring or holds in
// place.
type PlayMode int32

const (
	PlayModePlay PlayMode = iota
	PlayModePause
)

// CallbackTime carries the timing context the hardware callback driver
// provides for one invocation.
type CallbackTime struct {
	OutputTimeSeconds float64
}

// AudioTransfer owns one RingState of DecodedBuffers and realizes the
// play/pause/seek/gain contract on top of it. All setters are realtime
// safe; Process is the only method meant to run on the callback thread.
type AudioTransfer struct {
	ring       *ringstate.RingState
	sampleRate float64
	channels   int

	playMode         atomic.Int32
	seeking          atomic.Bool
	seekGeneration   atomic.Int64
	gainBits         atomic.Uint64
	enabled          atomic.Bool
	decodingFinished atomic.Bool

	lastPts            atomic.Pointer[timestamp.Timestamp]
	resonantToPtsBits  atomic.Uint64
	usedSeekGeneration atomic.Int64
	underrunCounter    atomic.Uint64

	// consumedSinceSeek counts samples consumed in the current seek
	// generation, for the seeking-timeout check in Process. Written only
	// by the callback thread; reset by SetSeekGeneration from the
	// control thread, which is safe because topology/seek edits are
	// serialized relative to callbacks.
	consumedSinceSeek atomic.Int64
}

// New creates an AudioTransfer with a ring of the given slot capacity,
// channel count and per-slot sample capacity.
func New(ringCapacity, channels, bufferLen int, sampleRate float64) *AudioTransfer {
	t := &AudioTransfer{
		ring:       ringstate.New(ringCapacity, channels, bufferLen),
		sampleRate: sampleRate,
		channels:   channels,
	}
	t.gainBits.Store(math.Float64bits(1.0))
	t.enabled.Store(true)
	t.lastPts.Store(&timestamp.Timestamp{})
	return t
}

// TakeFreeBuffer delegates to the underlying ring; see ringstate.RingState.TakeFreeBuffer.
func (t *AudioTransfer) TakeFreeBuffer(sampleBudget int) (*decodedbuffer.DecodedBuffer, bool) {
	return t.ring.TakeFreeBuffer(sampleBudget)
}

// PutReadyBuffer delegates to the underlying ring; see ringstate.RingState.PutReadyBuffer.
func (t *AudioTransfer) PutReadyBuffer(samples int) {
	t.ring.PutReadyBuffer(samples)
}

// SetPlayMode is a realtime-safe, idempotent control-thread setter.
func (t *AudioTransfer) SetPlayMode(m PlayMode) {
	t.playMode.Store(int32(m))
}

// SetSeeking is a realtime-safe, idempotent control-thread setter.
func (t *AudioTransfer) SetSeeking(seeking bool) {
	t.seeking.Store(seeking)
}

// SetSeekGeneration bumps the generation the transfer expects incoming
// buffers to carry and resets the per-generation consumed-sample counter
// used by the seeking timeout check.
func (t *AudioTransfer) SetSeekGeneration(gen int64) {
	t.seekGeneration.Store(gen)
	t.consumedSinceSeek.Store(0)
}

// CurrentSeekGeneration reports the generation buffers should be stamped
// with right now. Decoder threads read this once per decoded buffer so
// their fill() timestamps match what Process expects to find fresh.
func (t *AudioTransfer) CurrentSeekGeneration() int64 {
	return t.seekGeneration.Load()
}

// SetGain is a realtime-safe, idempotent control-thread setter.
func (t *AudioTransfer) SetGain(gain float64) {
	t.gainBits.Store(math.Float64bits(gain))
}

// SetEnabled is a realtime-safe, idempotent control-thread setter.
func (t *AudioTransfer) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// SetDecodingFinished signals decoder EOF: once set, the transfer drains
// whatever is left in its ring and then disables itself.
func (t *AudioTransfer) SetDecodingFinished(finished bool) {
	t.decodingFinished.Store(finished)
}

// BufferUnderrunCounter returns the monotonic count of samples produced as
// silence due to underrun or seek timeout.
func (t *AudioTransfer) BufferUnderrunCounter() uint64 {
	return t.underrunCounter.Load()
}

// LastPts returns the most recently consumed presentation timestamp.
func (t *AudioTransfer) LastPts() timestamp.Timestamp {
	return *t.lastPts.Load()
}

// BufferStateSeconds reports how many seconds of audio are currently
// buffered ahead of playback.
func (t *AudioTransfer) BufferStateSeconds() float32 {
	return float32(float64(t.ring.SamplesInBuffers()) / t.sampleRate)
}

// ToPts maps a future wall-clock output time to the corresponding source
// presentation timestamp, for A/V sync queries from the control thread.
func (t *AudioTransfer) ToPts(wallClockTime float64) timestamp.Timestamp {
	resonantToPts := math.Float64frombits(t.resonantToPtsBits.Load())
	candidate := timestamp.Timestamp{
		PTS:            wallClockTime + resonantToPts,
		SeekGeneration: t.usedSeekGeneration.Load(),
	}
	return timestamp.Min(t.LastPts(), candidate)
}

// Process fills N frames of outChannels from the ring, implementing
// play/pause/seek/gain semantics. Callback-thread only: no allocation, no
// blocking, no locks.
func (t *AudioTransfer) Process(outChannels [][]float32, n int, callbackTime CallbackTime) {
	if !t.enabled.Load() {
		zero(outChannels, 0, n)
		return
	}

	remaining := n
	written := 0
	first := true
	seeking := t.seeking.Load()
	seekGen := t.seekGeneration.Load()
	gain := math.Float64frombits(t.gainBits.Load())

	for remaining > 0 {
		// a. Discard stale slots.
		for {
			head := t.ring.Head()
			if head == nil || head.Timestamp.SeekGeneration >= seekGen {
				break
			}
			t.ring.DiscardStale(head.Remaining())
		}

		head := t.ring.Head()
		paused := PlayMode(t.playMode.Load()) == PlayModePause && !seeking

		// b. Pause or empty ring: emit silence and stop.
		if paused || head == nil {
			zero(outChannels, written, remaining)
			if t.decodingFinished.Load() {
				t.enabled.Store(false)
			} else {
				t.underrunCounter.Add(uint64(remaining))
			}
			break
		}

		// c. Seeking timeout: resync by producing silence.
		if seeking {
			limit := int64(t.sampleRate / 24)
			if t.consumedSinceSeek.Load() > limit {
				zero(outChannels, written, remaining)
				t.underrunCounter.Add(uint64(remaining))
				break
			}
		}

		// d.
		take := remaining
		if avail := head.Remaining(); avail < take {
			take = avail
		}

		// e.
		ptsHere := head.Timestamp.PTS + float64(head.Offset)/t.sampleRate
		newLastPts := timestamp.Timestamp{
			PTS:            ptsHere + float64(take)/t.sampleRate,
			SeekGeneration: head.Timestamp.SeekGeneration,
		}
		t.lastPts.Store(&newLastPts)

		// f.
		if first {
			t.resonantToPtsBits.Store(math.Float64bits(ptsHere - callbackTime.OutputTimeSeconds))
			t.usedSeekGeneration.Store(head.Timestamp.SeekGeneration)
			first = false
		}

		// g.
		effectiveGain := gain
		if seeking {
			effectiveGain = gain * 0.35
		}
		copyWithGain(outChannels, written, head.Channels, head.Offset, take, effectiveGain)

		// h.
		head.Offset += take
		t.ring.ConsumeSamples(take)
		if head.Offset == head.Len() {
			t.ring.AdvanceReader()
		}

		// i.
		written += take
		remaining -= take
		t.consumedSinceSeek.Add(int64(take))
	}
}

func zero(outChannels [][]float32, offset, n int) {
	for _, ch := range outChannels {
		clearRange := ch[offset : offset+n]
		for i := range clearRange {
			clearRange[i] = 0
		}
	}
}

func copyWithGain(outChannels [][]float32, outOffset int, srcChannels [][]float32, srcOffset, n int, gain float64) {
	const unityEpsilon = 1e-5
	unity := math.Abs(gain-1) < unityEpsilon
	for c, src := range srcChannels {
		if c >= len(outChannels) {
			break
		}
		dst := outChannels[c][outOffset : outOffset+n]
		s := src[srcOffset : srcOffset+n]
		if unity {
			copy(dst, s)
			continue
		}
		g := float32(gain)
		for i, v := range s {
			dst[i] = v * g
		}
	}
}
