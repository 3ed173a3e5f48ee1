package decodedbuffer

import (
	"testing"

	"github.com/drgolem/resonantmix/pkg/timestamp"
)

func TestNewShape(t *testing.T) {
	b := New(2, 128)
	if len(b.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(b.Channels))
	}
	if b.Len() != 128 {
		t.Fatalf("Len() = %d, want 128", b.Len())
	}
	if b.Remaining() != 128 {
		t.Fatalf("Remaining() = %d, want 128 before any consumption", b.Remaining())
	}
}

func TestFillPlanarRoundTrip(t *testing.T) {
	b := New(2, 4)
	planes := [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{-0.1, -0.2, -0.3, -0.4},
	}
	ts := timestamp.Timestamp{PTS: 1.5, SeekGeneration: 3}
	if err := b.FillPlanar(ts, planes); err != nil {
		t.Fatalf("FillPlanar: %v", err)
	}
	if b.Offset != 0 {
		t.Fatalf("Offset = %d, want 0 after fill", b.Offset)
	}
	if b.Timestamp != ts {
		t.Fatalf("Timestamp = %+v, want %+v", b.Timestamp, ts)
	}
	for c, plane := range planes {
		for i, v := range plane {
			if b.Channels[c][i] != v {
				t.Fatalf("Channels[%d][%d] = %v, want %v", c, i, b.Channels[c][i], v)
			}
		}
	}
}

func TestFillPlanarChannelMismatch(t *testing.T) {
	b := New(2, 4)
	if err := b.FillPlanar(timestamp.Timestamp{}, [][]float32{{0, 0, 0, 0}}); err == nil {
		t.Fatal("expected error on channel count mismatch")
	}
}

func TestFillInterleavedScaling(t *testing.T) {
	b := New(2, 2)
	// Interleaved L,R,L,R. Samples are scaled by 1/65536 (not the
	// conventional 1/32768): -32768 maps to exactly -0.5 and the int16
	// maximum 32767 to just under 0.5.
	interleaved := []int16{32767, -32768, 0, 16384}
	if err := b.FillInterleaved(timestamp.Timestamp{PTS: 2}, interleaved, 2); err != nil {
		t.Fatalf("FillInterleaved: %v", err)
	}
	if got, want := b.Channels[0][0], float32(32767.0/65536.0); got != want {
		t.Fatalf("Channels[0][0] = %v, want %v", got, want)
	}
	if got, want := b.Channels[1][0], float32(-0.5); got != want {
		t.Fatalf("Channels[1][0] = %v, want %v", got, want)
	}
	if got, want := b.Channels[0][1], float32(0); got != want {
		t.Fatalf("Channels[0][1] = %v, want %v", got, want)
	}
	if got, want := b.Channels[1][1], float32(0.25); got != want {
		t.Fatalf("Channels[1][1] = %v, want %v", got, want)
	}
}

func TestFillInterleavedCapacityOverflow(t *testing.T) {
	b := New(1, 1)
	if err := b.FillInterleaved(timestamp.Timestamp{}, []int16{1, 2, 3}, 1); err == nil {
		t.Fatal("expected error when interleaved data exceeds capacity")
	}
}
