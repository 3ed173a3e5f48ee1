// Package timestamp models presentation timestamps for the audio pipeline:
// a playback position in seconds tagged with the seek generation that
// produced it, so stale data from before a seek can never be mistaken for
// fresh data after it.
package timestamp

// Timestamp is a presentation time paired with the seek generation that
// produced it. Ordering is lexicographic on (SeekGeneration, PTS):
// timestamps from different generations are incomparable for content but
// still orderable for freshness.
type Timestamp struct {
	PTS            float64
	SeekGeneration int64
}

// Less reports whether t sorts strictly before other under the
// (SeekGeneration, PTS) lexicographic order.
func (t Timestamp) Less(other Timestamp) bool {
	if t.SeekGeneration != other.SeekGeneration {
		return t.SeekGeneration < other.SeekGeneration
	}
	return t.PTS < other.PTS
}

// Min returns the lexicographically smaller of a and b.
func Min(a, b Timestamp) Timestamp {
	if b.Less(a) {
		return b
	}
	return a
}
