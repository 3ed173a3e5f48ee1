// Package levelmeter implements a two-tap peak-with-hold level tracker,
// the same measurement the limiter uses to decide how hard a channel is
// being driven before it reaches the delayed samples.
package levelmeter

// LevelMeter tracks two running peaks, v1 (the current hold value) and v2
// (the next candidate), so a transient peak is held for holdTime samples
// before decaying to whatever has been observed since.
type LevelMeter struct {
	v1, v2        float64
	timeRemaining int
}

// New creates a LevelMeter with both taps initialized to floor.
func New(floor float64) *LevelMeter {
	return &LevelMeter{v1: floor, v2: floor, timeRemaining: 1}
}

// Reset reinitializes both taps to floor, as if newly constructed.
func (m *LevelMeter) Reset(floor float64) {
	m.v1 = floor
	m.v2 = floor
	m.timeRemaining = 1
}

// Put feeds one new sample value into the meter. floor is the value v2
// decays to once v1's hold window expires; holdTime is how long a new
// peak is held at v1 before the next candidate takes over.
func (m *LevelMeter) Put(value, floor float64, holdTime int) {
	m.timeRemaining--
	if m.timeRemaining <= 0 {
		m.timeRemaining = holdTime
		m.v1 = m.v2
		m.v2 = floor
	}
	if value > m.v1 {
		m.timeRemaining = holdTime
		m.v2 = m.v1
		m.v1 = value
	} else if value > m.v2 {
		m.v2 = value
	}
}

// Peak returns the meter's current held peak value.
func (m *LevelMeter) Peak() float64 {
	return m.v1
}
