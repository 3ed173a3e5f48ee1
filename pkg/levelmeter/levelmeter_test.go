package levelmeter

import "testing"

func TestNewStartsAtFloor(t *testing.T) {
	m := New(-100)
	if m.Peak() != -100 {
		t.Fatalf("Peak() = %v, want -100", m.Peak())
	}
}

func TestPutTracksRisingPeak(t *testing.T) {
	m := New(-100)
	m.Put(-10, -100, 5)
	if m.Peak() != -10 {
		t.Fatalf("Peak() = %v, want -10 after a rising value", m.Peak())
	}
	// A lower value shouldn't displace the held peak immediately.
	m.Put(-50, -100, 5)
	if m.Peak() != -10 {
		t.Fatalf("Peak() = %v, want held at -10", m.Peak())
	}
}

func TestPutHoldExpiresToNextCandidate(t *testing.T) {
	m := New(-100)
	m.Put(-10, -100, 2)
	m.Put(-20, -100, 2) // candidate v2 becomes -20
	m.Put(-30, -100, 2) // hold window (2) expires: v1 <- v2 (-20)
	if m.Peak() != -20 {
		t.Fatalf("Peak() = %v, want -20 once the hold window expires", m.Peak())
	}
}

func TestReset(t *testing.T) {
	m := New(-100)
	m.Put(0, -100, 5)
	m.Reset(-60)
	if m.Peak() != -60 {
		t.Fatalf("Peak() after Reset = %v, want -60", m.Peak())
	}
}
