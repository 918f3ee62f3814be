package ranging

import (
	"fmt"

	"github.com/michcald/dw1000"
)

// Message types of the ranging exchange, carried in the first payload byte.
const (
	typePing  = 0x00
	typeResp  = 0x01
	typeFinal = 0x02
)

// Payload sizes: type byte, session byte, then packed 40-bit timestamps.
const (
	pingSize  = 2
	respSize  = 2 + 2*5
	finalSize = 2 + 3*5
)

// Ping opens a ranging exchange. It carries no timestamps; the initiator
// learns its own transmit time from the chip, the responder captures the
// receive time.
type Ping struct {
	Session byte
}

// Resp answers a Ping. It reports when the responder saw the ping and when
// the response itself leaves the responder's antenna.
type Resp struct {
	Session byte
	PingRx  dw1000.Instant
	RespTx  dw1000.Instant
}

// Final closes the exchange. It reports the initiator's three timestamps,
// giving the responder all six points needed to compute the time of flight.
type Final struct {
	Session byte
	PingTx  dw1000.Instant
	RespRx  dw1000.Instant
	FinalTx dw1000.Instant
}

func (m Ping) encode(buf []byte) int {
	buf[0] = typePing
	buf[1] = m.Session
	return pingSize
}

func (m Resp) encode(buf []byte) int {
	buf[0] = typeResp
	buf[1] = m.Session
	putInstant(buf[2:], m.PingRx)
	putInstant(buf[7:], m.RespTx)
	return respSize
}

func (m Final) encode(buf []byte) int {
	buf[0] = typeFinal
	buf[1] = m.Session
	putInstant(buf[2:], m.PingTx)
	putInstant(buf[7:], m.RespRx)
	putInstant(buf[12:], m.FinalTx)
	return finalSize
}

// decode parses a ranging payload into one of Ping, Resp or Final.
func decode(payload []byte) (any, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: %d byte payload", ErrProtocol, len(payload))
	}
	session := payload[1]
	switch payload[0] {
	case typePing:
		if len(payload) != pingSize {
			return nil, badSize("ping", len(payload))
		}
		return Ping{Session: session}, nil
	case typeResp:
		if len(payload) != respSize {
			return nil, badSize("resp", len(payload))
		}
		return Resp{
			Session: session,
			PingRx:  getInstant(payload[2:]),
			RespTx:  getInstant(payload[7:]),
		}, nil
	case typeFinal:
		if len(payload) != finalSize {
			return nil, badSize("final", len(payload))
		}
		return Final{
			Session: session,
			PingTx:  getInstant(payload[2:]),
			RespRx:  getInstant(payload[7:]),
			FinalTx: getInstant(payload[12:]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: message type %#02x", ErrProtocol, payload[0])
	}
}

func badSize(kind string, n int) error {
	return fmt.Errorf("%w: %s message of %d bytes", ErrProtocol, kind, n)
}

// putInstant packs a 40-bit timestamp as 5 little-endian bytes.
func putInstant(buf []byte, t dw1000.Instant) {
	for i := 0; i < 5; i++ {
		buf[i] = byte(t.Ticks() >> (8 * i))
	}
}

func getInstant(buf []byte) dw1000.Instant {
	var v uint64
	for i := 4; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return dw1000.Instant(v)
}
