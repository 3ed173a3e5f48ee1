package audiotransfer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drgolem/resonantmix/pkg/timestamp"
)

func newOut(channels, n int) [][]float32 {
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
	}
	return out
}

func fillOne(t *testing.T, tr *AudioTransfer, ts timestamp.Timestamp, samples int, value float32) {
	t.Helper()
	buf, ok := tr.TakeFreeBuffer(1 << 30)
	if !ok {
		t.Fatalf("TakeFreeBuffer failed")
	}
	planes := make([][]float32, len(buf.Channels))
	for c := range planes {
		plane := make([]float32, samples)
		for i := range plane {
			plane[i] = value
		}
		planes[c] = plane
	}
	if err := buf.FillPlanar(ts, planes); err != nil {
		t.Fatalf("FillPlanar: %v", err)
	}
	tr.PutReadyBuffer(samples)
}

func TestUnderrunOnEmptyRing(t *testing.T) {
	tr := New(4, 1, 256, 48000)
	out := newOut(1, 128)
	tr.Process(out, 128, CallbackTime{})
	for _, v := range out[0] {
		assert.Equal(t, float32(0), v)
	}
	assert.EqualValues(t, 128, tr.BufferUnderrunCounter())
}

func TestDisabledProducesSilence(t *testing.T) {
	tr := New(4, 1, 256, 48000)
	tr.SetEnabled(false)
	fillOne(t, tr, timestamp.Timestamp{}, 128, 1.0)
	out := newOut(1, 64)
	tr.Process(out, 64, CallbackTime{})
	for _, v := range out[0] {
		assert.Equal(t, float32(0), v)
	}
}

func TestUnityGainPassesThroughSample(t *testing.T) {
	tr := New(4, 1, 256, 48000)
	fillOne(t, tr, timestamp.Timestamp{PTS: 0}, 128, 0.5)
	out := newOut(1, 64)
	tr.Process(out, 64, CallbackTime{})
	for _, v := range out[0] {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestMonotonicPtsAcrossCallbacks(t *testing.T) {
	// Property #2: successive non-underrun callbacks in the same
	// generation see non-decreasing pts.
	tr := New(8, 1, 4096, 48000)
	fillOne(t, tr, timestamp.Timestamp{PTS: 0}, 2048, 0.1)

	out := newOut(1, 256)
	tr.Process(out, 256, CallbackTime{})
	firstLast := tr.LastPts()

	tr.Process(out, 256, CallbackTime{})
	secondLast := tr.LastPts()

	assert.False(t, secondLast.Less(firstLast), "pts must not regress across callbacks")
}

func TestSeekFreshnessDiscardsStaleGenerations(t *testing.T) {
	// S6: two stale buffers in the ring, then a seek bump; the next
	// callback must skip the stale buffers entirely and emit only
	// samples from the first buffer at the new generation.
	tr := New(8, 1, 1024, 48000)
	fillOne(t, tr, timestamp.Timestamp{PTS: 0, SeekGeneration: 0}, 512, -1.0)
	fillOne(t, tr, timestamp.Timestamp{PTS: 1, SeekGeneration: 0}, 512, -1.0)

	tr.SetSeekGeneration(1)
	fillOne(t, tr, timestamp.Timestamp{PTS: 0, SeekGeneration: 1}, 512, 9.0)

	out := newOut(1, 256)
	tr.Process(out, 256, CallbackTime{})

	for _, v := range out[0] {
		assert.Equal(t, float32(9.0), v, "stale-generation sentinel (-1.0) must never reach the output")
	}
	assert.GreaterOrEqual(t, tr.LastPts().SeekGeneration, int64(1))
}

func TestGainZeroSilencesOutput(t *testing.T) {
	tr := New(4, 1, 256, 48000)
	tr.SetGain(0)
	fillOne(t, tr, timestamp.Timestamp{}, 128, 1.0)
	out := newOut(1, 64)
	tr.Process(out, 64, CallbackTime{})
	for _, v := range out[0] {
		assert.Equal(t, float32(0), v)
	}
}
