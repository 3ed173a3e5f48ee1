// Package limiter implements a per-channel look-ahead peak limiter: a
// fixed attack-length delay line lets the limiter see a peak coming and
// ramp gain down before the peak itself reaches the output, trading a
// small, constant latency for the absence of audible clipping or
// overshoot.
package limiter

import (
	"log/slog"
	"math"

	"github.com/drgolem/resonantmix/pkg/levelmeter"
)

// delayLine is a fixed-size circular buffer of float64 samples with a
// wrap-around write position: fixed-length overwrite-oldest float storage
// with direct "newest minus N" lookback instead of sequential read/write
// cursors. Its length need not be a power of 2.
type delayLine struct {
	buf []float64
	pos int
}

func newDelayLine(size int, fill float64) *delayLine {
	d := &delayLine{buf: make([]float64, size)}
	for i := range d.buf {
		d.buf[i] = fill
	}
	return d
}

func (d *delayLine) put(v float64) {
	d.buf[d.pos] = v
	d.pos++
	if d.pos == len(d.buf) {
		d.pos = 0
	}
}

// getNewest returns the value put `back` puts ago: back == 0 is the most
// recently put value, back == len-1 is the oldest still held.
func (d *delayLine) getNewest(back int) float64 {
	idx := d.pos - 1 - back
	n := len(d.buf)
	idx %= n
	if idx < 0 {
		idx += n
	}
	return d.buf[idx]
}

// minSample floors the magnitude fed to the log domain so silence never
// produces -Inf.
const minSample = 1e-10

// ChannelLimiter holds one output channel's look-ahead limiter state: two
// delay lines (linear and log-magnitude), a level meter, and the current
// planned gain trajectory.
type ChannelLimiter struct {
	xLine   *delayLine
	logLine *delayLine
	level   *levelmeter.LevelMeter

	thresholdLog float64
	attackTime   int
	releaseTime  int

	gainLog   float64
	step      float64
	untilPeak int
}

// NewChannelLimiter creates a limiter with the given threshold (linear
// gain, e.g. 1.0 for 0 dBFS) and attack/release window lengths in samples.
func NewChannelLimiter(threshold float64, attackTime, releaseTime int) *ChannelLimiter {
	lc := &ChannelLimiter{}
	lc.Prepare(threshold, attackTime, releaseTime)
	return lc
}

// Prepare (re)configures the limiter, reallocating its delay lines to
// match the new attack window and resetting all planning state.
func (lc *ChannelLimiter) Prepare(threshold float64, attackTime, releaseTime int) {
	if attackTime < 1 {
		attackTime = 1
	}
	lc.thresholdLog = math.Log(threshold)
	lc.attackTime = attackTime
	lc.releaseTime = releaseTime
	lc.xLine = newDelayLine(attackTime, 0)
	lc.logLine = newDelayLine(attackTime, lc.thresholdLog)
	lc.level = levelmeter.New(lc.thresholdLog)
	lc.gainLog = 0
	lc.step = 0
	lc.untilPeak = 0
}

// CurrentGain returns the limiter's current linear output gain.
func (lc *ChannelLimiter) CurrentGain() float64 {
	return math.Exp(lc.gainLog)
}

// PutGet pushes one new input sample through the look-ahead delay and
// returns the corresponding delayed, gain-adjusted output sample. Must be
// called exactly once per input sample, in order; realtime-safe (no
// allocation).
func (lc *ChannelLimiter) PutGet(x float64) float64 {
	attackTime := lc.attackTime

	lc.xLine.put(x)

	mag := math.Abs(x)
	if mag < minSample {
		mag = minSample
	}
	xLog := math.Log(mag)
	if xLog < lc.thresholdLog {
		xLog = lc.thresholdLog
	}
	lc.logLine.put(xLog)

	design := 0

	// A new sample may demand a steeper attack than the one already in
	// flight; check before consuming this round of the planned ramp.
	if lc.untilPeak != 0 {
		requiredGain := lc.thresholdLog - xLog
		ats := float64(attackTime - 1)
		planned := lc.step*ats + lc.gainLog
		if planned > requiredGain {
			lc.step = (requiredGain - lc.gainLog) / ats
			lc.untilPeak = attackTime
			design = 1
		}
	}

	if lc.untilPeak != 0 {
		lc.untilPeak--
	}

	if design == 0 {
		// The fast path did not redesign the attack: rescan the whole
		// look-ahead window for the steepest gain reduction any sample in
		// it will need.
		lc.step = 0
		for i := 1; i <= attackTime; i++ {
			s := lc.logLine.getNewest(attackTime - i)
			requiredGain := lc.thresholdLog - s
			is := float64(i)
			planned := lc.step*is + lc.gainLog
			if planned > requiredGain {
				lc.step = (requiredGain - lc.gainLog) / is
				lc.untilPeak = i - 1
				design = 2
			}
		}
	}

	delayed := lc.xLine.getNewest(attackTime - 1)
	lc.level.Put(lc.logLine.getNewest(attackTime-1), lc.thresholdLog, lc.releaseTime)

	if design == 0 {
		// Nothing in the window demands an attack: relax back toward
		// whatever the level meter says is currently safe.
		requiredGain := lc.thresholdLog - lc.level.Peak()
		lc.step = (requiredGain - lc.gainLog) / float64(lc.releaseTime)
		design = 3
	}

	lc.gainLog += lc.step

	gainLinear := math.Exp(lc.gainLog)
	y := delayed * gainLinear
	outLog := math.Log(math.Abs(y))

	if outLog > lc.thresholdLog+1e-3 || math.IsNaN(y) || math.IsInf(y, 0) {
		lc.fatal(y, outLog, design)
	}
	return y
}

// fatal reports a limiter invariant violation: the planned gain
// trajectory let a sample through above threshold, which should be
// impossible if the attack window covers the true peak distance. This is
// an assertion about the algorithm, not a response to adversarial input.
func (lc *ChannelLimiter) fatal(y, outLog float64, design int) {
	slog.Error("limiter: output exceeded threshold",
		"output", y,
		"outputLog", outLog,
		"thresholdLog", lc.thresholdLog,
		"gainLog", lc.gainLog,
		"attackTime", lc.attackTime,
		"releaseTime", lc.releaseTime,
		"design", design,
	)
	panic("limiter: output exceeded threshold")
}
