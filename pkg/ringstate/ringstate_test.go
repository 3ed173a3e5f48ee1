package ringstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCapacityRoundsToPowerOf2(t *testing.T) {
	r := New(5, 1, 16)
	assert.Equal(t, 8, r.Capacity())
}

func TestTakeFreeBufferBackpressureOnFullPool(t *testing.T) {
	r := New(2, 1, 16)
	b1, ok := r.TakeFreeBuffer(1 << 20)
	assert.True(t, ok)
	r.PutReadyBuffer(b1.Len())
	b2, ok := r.TakeFreeBuffer(1 << 20)
	assert.True(t, ok)
	r.PutReadyBuffer(b2.Len())

	// Pool capacity is 2 and both slots are ready: further checkout must
	// be refused regardless of the samples threshold.
	_, ok = r.TakeFreeBuffer(1 << 20)
	assert.False(t, ok)
}

func TestTakeFreeBufferBackpressureOnSampleThreshold(t *testing.T) {
	r := New(4, 1, 16)
	b1, ok := r.TakeFreeBuffer(10)
	assert.True(t, ok)
	r.PutReadyBuffer(16)

	_, ok = r.TakeFreeBuffer(10)
	assert.False(t, ok, "samplesInBuffers (16) already at or beyond threshold (10)")
	_ = b1
}

func TestBackpressureScenario(t *testing.T) {
	// S5: ring size 4, each slot holds 1024 samples, budget 2048. First two
	// takes succeed (cumulative 2048 <= budget is reached exactly at the
	// boundary); the third must be refused since the budget is already
	// spoken for. After a callback consumes the head buffer, a take
	// succeeds again.
	r := New(4, 1, 1024)
	const budget = 2048

	b1, ok := r.TakeFreeBuffer(budget)
	assert.True(t, ok)
	r.PutReadyBuffer(1024)

	b2, ok := r.TakeFreeBuffer(budget)
	assert.True(t, ok)
	r.PutReadyBuffer(1024)

	_, ok = r.TakeFreeBuffer(budget)
	assert.False(t, ok, "budget fully committed by the first two buffers")

	// A callback consumes the head buffer (b1) in full.
	r.ConsumeSamples(1024)
	r.AdvanceReader()

	_, ok = r.TakeFreeBuffer(budget)
	assert.True(t, ok, "freeing one buffer's worth of budget allows another take")

	_ = b1
	_ = b2
}

func TestHeadAndAdvanceReader(t *testing.T) {
	r := New(2, 1, 16)
	assert.Nil(t, r.Head())

	b, ok := r.TakeFreeBuffer(1 << 20)
	assert.True(t, ok)
	r.PutReadyBuffer(16)

	assert.Same(t, b, r.Head())
	assert.EqualValues(t, 1, r.ReadyCount())
	assert.EqualValues(t, 16, r.SamplesInBuffers())

	r.ConsumeSamples(16)
	r.AdvanceReader()
	assert.Nil(t, r.Head())
	assert.EqualValues(t, 0, r.ReadyCount())
	assert.EqualValues(t, 0, r.SamplesInBuffers())
}

func TestDiscardStale(t *testing.T) {
	r := New(2, 1, 16)
	_, ok := r.TakeFreeBuffer(1 << 20)
	assert.True(t, ok)
	r.PutReadyBuffer(16)

	assert.EqualValues(t, 1, r.ReadyCount())
	r.DiscardStale(16)
	assert.EqualValues(t, 0, r.ReadyCount())
	assert.EqualValues(t, 0, r.SamplesInBuffers())
}

// TestInvariantReadyCountBounded checks property #1 from the testable
// properties: 0 <= readyCount <= capacity, and samplesInBuffers stays
// consistent with the sequence of take/put/advance operations, across
// randomized operation sequences.
func TestInvariantReadyCountBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		r := New(capacity, 1, 32)
		cap64 := int64(r.Capacity())

		var expectedSamples int64
		var queue []int // sample counts of ready buffers, oldest first
		ops := rapid.IntRange(1, 200).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0: // take + put
				samples := rapid.IntRange(1, 32).Draw(t, "samples")
				buf, ok := r.TakeFreeBuffer(1 << 30)
				if ok {
					r.PutReadyBuffer(samples)
					expectedSamples += int64(samples)
					queue = append(queue, samples)
					assert.NotNil(t, buf)
				}
			case 1: // advance (consume the head buffer fully)
				if len(queue) > 0 {
					n := queue[0]
					queue = queue[1:]
					r.ConsumeSamples(n)
					r.AdvanceReader()
					expectedSamples -= int64(n)
				}
			case 2: // just observe
				assert.GreaterOrEqual(t, r.ReadyCount(), int64(0))
				assert.LessOrEqual(t, r.ReadyCount(), cap64)
			}
			assert.GreaterOrEqual(t, r.ReadyCount(), int64(0))
			assert.LessOrEqual(t, r.ReadyCount(), cap64)
			assert.EqualValues(t, len(queue), r.ReadyCount())
			assert.Equal(t, expectedSamples, r.SamplesInBuffers())
		}
	})
}
