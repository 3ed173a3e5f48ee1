// Package decodedbuffer holds the fixed-capacity planar float block that
// moves decoded audio from the decoder thread to the callback thread
// through a RingState pool.
package decodedbuffer

import (
	"fmt"

	"github.com/drgolem/resonantmix/pkg/timestamp"
)

// DecodedBuffer is one pre-allocated slot in a RingState pool: for each
// channel, a contiguous array of Capacity() float32 samples backing
// storage. Offset tracks how much of the current fill has been consumed by
// the callback thread; Offset == Len() means the buffer is fully consumed.
// Len() reports the number of samples the most recent Fill actually wrote,
// which may be less than Capacity() (e.g. the last chunk of a file) — the
// slice's unfilled tail past Len() is stale data from a previous lap
// around the ring and must never be read.
type DecodedBuffer struct {
	Channels  [][]float32
	Timestamp timestamp.Timestamp
	Offset    int
	filled    int
}

// New allocates a DecodedBuffer with the given channel count and capacity
// (samples per channel). It is meant to be created once, at pool
// initialization, and reused for the lifetime of the pipeline.
func New(channels, capacity int) *DecodedBuffer {
	b := &DecodedBuffer{Channels: make([][]float32, channels), filled: capacity}
	for c := range b.Channels {
		b.Channels[c] = make([]float32, capacity)
	}
	return b
}

// Capacity returns the buffer's fixed backing-storage size in samples per
// channel, regardless of how much of it the last Fill actually used.
func (b *DecodedBuffer) Capacity() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Len returns the number of valid samples per channel from the most recent
// Fill, which callers must treat as the buffer's logical length.
func (b *DecodedBuffer) Len() int {
	return b.filled
}

// Remaining returns the number of unconsumed samples per channel.
func (b *DecodedBuffer) Remaining() int {
	return b.Len() - b.Offset
}

// FillPlanar overwrites the buffer with already-planar float samples and
// resets its consumed-offset cursor to zero. planes must have exactly
// len(b.Channels) entries, each of length <= b.Capacity().
func (b *DecodedBuffer) FillPlanar(ts timestamp.Timestamp, planes [][]float32) error {
	if len(planes) != len(b.Channels) {
		return fmt.Errorf("decodedbuffer: channel count mismatch: got %d, want %d", len(planes), len(b.Channels))
	}
	n := 0
	if len(planes) > 0 {
		n = len(planes[0])
	}
	if n > b.Capacity() {
		return fmt.Errorf("decodedbuffer: fill of %d samples exceeds capacity %d", n, b.Capacity())
	}
	for c, plane := range planes {
		copy(b.Channels[c][:n], plane)
	}
	b.Timestamp = ts
	b.Offset = 0
	b.filled = n
	return nil
}

// FillInterleaved overwrites the buffer from an interleaved int16 slice,
// converting each sample by multiplying by 1/65536 as decoded frames
// arrive from the int16 world into the mixer's planar float domain.
func (b *DecodedBuffer) FillInterleaved(ts timestamp.Timestamp, interleaved []int16, channels int) error {
	if channels != len(b.Channels) {
		return fmt.Errorf("decodedbuffer: channel count mismatch: got %d, want %d", channels, len(b.Channels))
	}
	n := len(interleaved) / channels
	if n > b.Capacity() {
		return fmt.Errorf("decodedbuffer: fill of %d samples exceeds capacity %d", n, b.Capacity())
	}
	const scale = 1.0 / 65536.0
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			b.Channels[c][i] = float32(interleaved[i*channels+c]) * scale
		}
	}
	b.Timestamp = ts
	b.Offset = 0
	b.filled = n
	return nil
}
