package dw1000

// TimeMax is the largest value of the chip's 40-bit system time counter.
// The counter increments at 63.8976 GHz (nominally 64 ticks per nanosecond)
// and wraps around roughly every 17.2 seconds.
const TimeMax = (1 << 40) - 1

// TicksPerSecond is the nominal rate of the chip's time counter, 128 times
// the 499.2 MHz fundamental frequency.
const TicksPerSecond = 128 * 499200000

// Instant is a point in time on the chip's 40-bit clock, in ticks.
type Instant uint64

// NewInstant returns ticks as an Instant. The second return value is false
// if ticks does not fit in 40 bits.
func NewInstant(ticks uint64) (Instant, bool) {
	if ticks > TimeMax {
		return 0, false
	}
	return Instant(ticks), true
}

// Ticks returns the raw 40-bit tick value.
func (i Instant) Ticks() uint64 {
	return uint64(i)
}

// Sub returns the duration elapsed from earlier to i, accounting for at most
// one wraparound of the 40-bit counter.
func (i Instant) Sub(earlier Instant) Duration {
	if i >= earlier {
		return Duration(i - earlier)
	}
	return Duration(TimeMax - uint64(earlier) + uint64(i) + 1)
}

// Add returns i advanced by d, wrapping around the 40-bit counter.
func (i Instant) Add(d Duration) Instant {
	return Instant((uint64(i) + uint64(d)) & TimeMax)
}

// Duration is a span of time on the chip's clock, in ticks.
type Duration uint64

// NewDuration returns ticks as a Duration. The second return value is false
// if ticks does not fit in 40 bits.
func NewDuration(ticks uint64) (Duration, bool) {
	if ticks > TimeMax {
		return 0, false
	}
	return Duration(ticks), true
}

// DurationFromNanos converts a nanosecond count to ticks using the nominal
// rate of 64 ticks per nanosecond. Values beyond the 40-bit range are
// saturated to TimeMax.
func DurationFromNanos(ns uint64) Duration {
	ticks := ns * 64
	if ns > TimeMax/64 {
		return TimeMax
	}
	return Duration(ticks)
}

// Ticks returns the raw tick count.
func (d Duration) Ticks() uint64 {
	return uint64(d)
}

// Nanos returns the duration in nanoseconds, using the nominal tick rate.
func (d Duration) Nanos() uint64 {
	return uint64(d) / 64
}
