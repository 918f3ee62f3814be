// Package ranging implements double-sided two-way ranging between two
// DW1000 nodes.
//
// An exchange consists of three messages. The initiator sends a Ping, the
// responder answers with a Resp after a fixed reply delay, and the initiator
// closes with a Final carrying its own timestamps. Each node records when
// its messages left the antenna and when the peer's arrived, yielding six
// timestamps:
//
//	t1 ping sent        (initiator)
//	t2 ping received    (responder)
//	t3 resp sent        (responder)
//	t4 resp received    (initiator)
//	t5 final sent       (initiator)
//	t6 final received   (responder)
//
// Using both round trips cancels the first order clock drift between the
// nodes, which a single round trip divided by two does not. The responder
// ends up holding all six timestamps and computes the result.
package ranging

import (
	"errors"
	"fmt"

	"github.com/michcald/dw1000"
)

var (
	// ErrTimeout indicates that the exchange did not complete before its
	// deadline.
	ErrTimeout = errors.New("ranging exchange timed out")
	// ErrProtocol indicates an unexpected or malformed ranging message from
	// a node that passed frame filtering.
	ErrProtocol = errors.New("ranging protocol violation")
	// ErrRanging indicates timestamps that yield no plausible time of
	// flight, such as a negative one from excessive clock drift.
	ErrRanging = errors.New("implausible ranging timestamps")
)

// maxInterval caps the four measured intervals at about 33 milliseconds.
// The sessions use reply delays of a few milliseconds, so a longer interval
// means a wildly wrong timestamp; the cap also keeps the products below
// within uint64 range.
const maxInterval = 1 << 31

// maxTimeOfFlight is the plausibility limit for the result, about 33
// microseconds or ten kilometres, far beyond the chip's radio range.
const maxTimeOfFlight = 1 << 21

// speedOfLight in meters per second.
const speedOfLight = 299792458.0

// Measurement is the outcome of one completed exchange, as seen by the
// responder.
type Measurement struct {
	// Peer is the source address of the initiator.
	Peer dw1000.Address
	// Session identifies the exchange.
	Session byte
	// TimeOfFlight is the one-way signal travel time.
	TimeOfFlight dw1000.Duration
	// Distance is the corresponding distance in meters.
	Distance float64
}

// TimeOfFlight computes the one-way travel time from the six timestamps of
// a completed exchange. The two round trips are combined as
//
//	tof = (Ra*Rb - Da*Db) / (Ra + Rb + Da + Db)
//
// where Ra, Rb are the round trip times and Da, Db the reply delays seen by
// initiator and responder. Timestamps that produce a negative or implausibly
// large result fail with ErrRanging.
func TimeOfFlight(pingTx, pingRx, respTx, respRx, finalTx, finalRx dw1000.Instant) (dw1000.Duration, error) {
	ra := respRx.Sub(pingTx).Ticks()
	db := respTx.Sub(pingRx).Ticks()
	rb := finalRx.Sub(respTx).Ticks()
	da := finalTx.Sub(respRx).Ticks()

	for _, v := range [...]uint64{ra, db, rb, da} {
		if v >= maxInterval {
			return 0, fmt.Errorf("%w: interval of %d ticks", ErrRanging, v)
		}
	}
	if ra*rb <= da*db {
		return 0, fmt.Errorf("%w: negative time of flight", ErrRanging)
	}
	tof := (ra*rb - da*db) / (ra + rb + da + db)
	if tof > maxTimeOfFlight {
		return 0, fmt.Errorf("%w: time of flight of %d ticks", ErrRanging, tof)
	}
	return dw1000.Duration(tof), nil
}

// Distance converts a time of flight to a distance in meters.
func Distance(tof dw1000.Duration) float64 {
	return float64(tof.Ticks()) / dw1000.TicksPerSecond * speedOfLight
}
