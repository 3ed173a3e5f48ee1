// Package ringstate implements the Audio Transfer's single-producer/
// single-consumer buffer pool: a fixed ring of pre-allocated
// decodedbuffer.DecodedBuffer slots handed between a decoder thread and
// the realtime callback thread without allocation or locking.
package ringstate

import (
	"sync/atomic"

	"github.com/drgolem/resonantmix/pkg/decodedbuffer"
)

// RingState is a pool of K pre-allocated buffer slots. The decoder thread
// is the sole writer of the writer cursor and the sole caller of
// TakeFreeBuffer/PutReadyBuffer; the callback thread is the sole reader of
// the reader cursor and the sole caller of Head/AdvanceReader/DiscardStale.
// readyCount and samplesInBuffers are the only state touched by both
// threads and are therefore atomic.
type RingState struct {
	slots  []*decodedbuffer.DecodedBuffer
	mask   uint64
	writer uint64 // decoder-thread only
	reader uint64 // callback-thread only

	readyCount       atomic.Int64
	samplesInBuffers atomic.Int64
}

// New creates a RingState with capacity slots (rounded up to the next
// power of 2), each a DecodedBuffer of the given channel count and
// sample-per-channel length.
func New(capacity, channels, bufferLen int) *RingState {
	n := nextPowerOf2(capacity)
	r := &RingState{
		slots: make([]*decodedbuffer.DecodedBuffer, n),
		mask:  uint64(n - 1),
	}
	for i := range r.slots {
		r.slots[i] = decodedbuffer.New(channels, bufferLen)
	}
	return r
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the number of slots in the pool.
func (r *RingState) Capacity() int {
	return len(r.slots)
}

// ReadyCount returns the number of slots currently holding decoded,
// unconsumed audio.
func (r *RingState) ReadyCount() int64 {
	return r.readyCount.Load()
}

// SamplesInBuffers returns the total unconsumed sample count (per channel)
// across all ready slots.
func (r *RingState) SamplesInBuffers() int64 {
	return r.samplesInBuffers.Load()
}

// TakeFreeBuffer returns a slot for the decoder thread to fill, subject to
// back-pressure: it refuses (returns false) when the pool is full of ready
// buffers, or when samplesInBuffers has already reached sampleBudget (the
// decoder's look-ahead budget — how far ahead of playback it is allowed
// to decode). Called only from the decoder thread.
func (r *RingState) TakeFreeBuffer(sampleBudget int) (*decodedbuffer.DecodedBuffer, bool) {
	if r.readyCount.Load() >= int64(len(r.slots)) {
		return nil, false
	}
	if r.samplesInBuffers.Load() >= int64(sampleBudget) {
		return nil, false
	}
	slot := r.slots[r.writer&r.mask]
	r.writer++
	return slot, true
}

// PutReadyBuffer publishes a slot just filled by TakeFreeBuffer as ready
// for consumption, with the given number of samples (per channel) it
// holds. Called only from the decoder thread, strictly after the
// corresponding TakeFreeBuffer.
func (r *RingState) PutReadyBuffer(samples int) {
	r.samplesInBuffers.Add(int64(samples))
	r.readyCount.Add(1)
}

// Head returns the oldest ready slot without consuming it, or nil if no
// slot is ready. Called only from the callback thread.
func (r *RingState) Head() *decodedbuffer.DecodedBuffer {
	if r.readyCount.Load() <= 0 {
		return nil
	}
	return r.slots[r.reader&r.mask]
}

// ConsumeSamples removes n samples from the samples-in-buffers count as
// the callback thread advances through the head slot's Offset. Called for
// every partial step through a slot, independent of whether the slot is
// fully drained yet.
func (r *RingState) ConsumeSamples(n int) {
	r.samplesInBuffers.Add(-int64(n))
}

// AdvanceReader retires the fully-consumed head slot, freeing it back to
// the decoder thread. Callers must have already accounted for the slot's
// samples via ConsumeSamples. Called only from the callback thread.
func (r *RingState) AdvanceReader() {
	r.readyCount.Add(-1)
	r.reader++
}

// DiscardStale drops the entire head slot at once because it belongs to a
// seek generation older than the current one, rather than because it was
// played: it both accounts for its remaining samples and retires it.
func (r *RingState) DiscardStale(remaining int) {
	r.ConsumeSamples(remaining)
	r.AdvanceReader()
}
