package ranging

import (
	"errors"
	"fmt"
	"time"

	"github.com/michcald/dw1000"
)

// replyDelay is how far in the future each answer is scheduled. It must
// leave enough room for reading the received frame, building the answer and
// writing it to the chip over SPI.
var replyDelay = dw1000.DurationFromNanos(3_000_000)

// pollInterval is the sleep between device polls in the run loops.
const pollInterval = 100 * time.Microsecond

// Initiator runs the initiator side of one ranging exchange: it sends the
// Ping and the Final. The responder computes the result; an initiator only
// learns whether its exchange completed.
type Initiator struct {
	session    byte
	peer       dw1000.Address
	pingTx     dw1000.Instant
	respRxTime dw1000.Instant
}

// NewInitiator returns an initiator session. The session byte ties the
// three messages of the exchange together and is echoed back by the
// responder.
func NewInitiator(session byte) *Initiator {
	return &Initiator{session: session}
}

func (ix *Initiator) ping() Ping {
	return Ping{Session: ix.session}
}

// handleResp records the response and the initiator-side receive timestamp.
func (ix *Initiator) handleResp(m Resp, src dw1000.Address, rxTime dw1000.Instant) error {
	if m.Session != ix.session {
		return fmt.Errorf("%w: resp for session %d, expected %d", ErrProtocol, m.Session, ix.session)
	}
	ix.peer = src
	ix.respRxTime = rxTime
	return nil
}

// final builds the closing message. txTime must be the instant the frame
// will leave the antenna.
func (ix *Initiator) final(txTime dw1000.Instant) Final {
	return Final{
		Session: ix.session,
		PingTx:  ix.pingTx,
		RespRx:  ix.respRxTime,
		FinalTx: txTime,
	}
}

// Run performs the initiator side of the exchange on an idle device. The
// Ping is broadcast; the Final goes to whichever responder answered.
// expired is consulted between polls; once it reports true the exchange is
// abandoned with ErrTimeout. The device is always handed back idle.
func (ix *Initiator) Run(r *dw1000.Ready, expired func() bool) (*dw1000.Ready, error) {
	var payload [finalSize]byte
	buf := make([]byte, dw1000.MaxPayload)

	n := ix.ping().encode(payload[:])
	s, err := r.Send(dw1000.Broadcast(), payload[:n], true)
	if err != nil {
		return r, err
	}
	r, ix.pingTx, err = pollSend(s, expired)
	if err != nil {
		return r, err
	}

	for {
		rx, err := r.Receive(dw1000.RxConfig{})
		if err != nil {
			return r, err
		}
		var msg *dw1000.Message
		r, msg, err = pollReceive(rx, buf, expired)
		if err != nil {
			if retryable(err) && !expired() {
				continue
			}
			return r, err
		}
		m, err := decode(msg.Frame.Payload)
		if err != nil {
			return r, err
		}
		resp, ok := m.(Resp)
		if !ok {
			return r, fmt.Errorf("%w: %T while waiting for resp", ErrProtocol, m)
		}
		if err := ix.handleResp(resp, msg.Frame.Src, msg.RxTime); err != nil {
			return r, err
		}
		break
	}

	now, err := r.SysTime()
	if err != nil {
		return r, err
	}
	txTime := now.Add(replyDelay)
	n = ix.final(txTime.Add(r.TxAntennaDelay())).encode(payload[:])
	s, err = r.SendDelayed(ix.peer, payload[:n], true, txTime)
	if err != nil {
		return r, err
	}
	r, _, err = pollSend(s, expired)
	return r, err
}

// Responder runs the responder side of one ranging exchange: it answers a
// Ping with a Resp, waits for the Final and computes the measurement.
type Responder struct {
	session    byte
	peer       dw1000.Address
	pingRxTime dw1000.Instant
	respTxTime dw1000.Instant
}

// NewResponder returns a responder session. The session is adopted from the
// Ping that opens the exchange.
func NewResponder() *Responder {
	return &Responder{}
}

// handlePing adopts the exchange opened by a Ping.
func (rp *Responder) handlePing(m Ping, src dw1000.Address, rxTime dw1000.Instant) {
	rp.session = m.Session
	rp.peer = src
	rp.pingRxTime = rxTime
}

// resp builds the answer to the Ping. txTime must be the instant the frame
// will leave the antenna.
func (rp *Responder) resp(txTime dw1000.Instant) Resp {
	rp.respTxTime = txTime
	return Resp{
		Session: rp.session,
		PingRx:  rp.pingRxTime,
		RespTx:  txTime,
	}
}

// handleFinal closes the exchange and computes the measurement.
func (rp *Responder) handleFinal(m Final, rxTime dw1000.Instant) (*Measurement, error) {
	if m.Session != rp.session {
		return nil, fmt.Errorf("%w: final for session %d, expected %d", ErrProtocol, m.Session, rp.session)
	}
	tof, err := TimeOfFlight(m.PingTx, rp.pingRxTime, rp.respTxTime, m.RespRx, m.FinalTx, rxTime)
	if err != nil {
		return nil, err
	}
	return &Measurement{
		Peer:         rp.peer,
		Session:      rp.session,
		TimeOfFlight: tof,
		Distance:     Distance(tof),
	}, nil
}

// Run performs the responder side of one exchange on an idle device: wait
// for a Ping, answer it, wait for the Final and measure. Stale Resp or
// Final messages arriving while waiting for a Ping are ignored. expired is
// consulted between polls; once it reports true the exchange is abandoned
// with ErrTimeout. The device is always handed back idle.
func (rp *Responder) Run(r *dw1000.Ready, expired func() bool) (*dw1000.Ready, *Measurement, error) {
	var payload [respSize]byte
	buf := make([]byte, dw1000.MaxPayload)

	for {
		var m any
		var msg *dw1000.Message
		var err error
		r, m, msg, err = rp.receive(r, buf, expired)
		if err != nil {
			return r, nil, err
		}
		ping, ok := m.(Ping)
		if !ok {
			// Leftover of an earlier exchange; keep listening.
			continue
		}
		rp.handlePing(ping, msg.Frame.Src, msg.RxTime)
		break
	}

	now, err := r.SysTime()
	if err != nil {
		return r, nil, err
	}
	txTime := now.Add(replyDelay)
	n := rp.resp(txTime.Add(r.TxAntennaDelay())).encode(payload[:])
	s, err := r.SendDelayed(rp.peer, payload[:n], true, txTime)
	if err != nil {
		return r, nil, err
	}
	r, _, err = pollSend(s, expired)
	if err != nil {
		return r, nil, err
	}

	var m any
	var msg *dw1000.Message
	r, m, msg, err = rp.receive(r, buf, expired)
	if err != nil {
		return r, nil, err
	}
	final, ok := m.(Final)
	if !ok {
		return r, nil, fmt.Errorf("%w: %T while waiting for final", ErrProtocol, m)
	}
	measurement, err := rp.handleFinal(final, msg.RxTime)
	if err != nil {
		return r, nil, err
	}
	return r, measurement, nil
}

// receive listens until a decodable ranging message arrives, retrying
// through channel noise, or until expired.
func (rp *Responder) receive(r *dw1000.Ready, buf []byte, expired func() bool) (*dw1000.Ready, any, *dw1000.Message, error) {
	for {
		rx, err := r.Receive(dw1000.RxConfig{})
		if err != nil {
			return r, nil, nil, err
		}
		var msg *dw1000.Message
		r, msg, err = pollReceive(rx, buf, expired)
		if err != nil {
			if retryable(err) && !expired() {
				continue
			}
			return r, nil, nil, err
		}
		m, err := decode(msg.Frame.Payload)
		if err != nil {
			return r, nil, nil, err
		}
		return r, m, msg, nil
	}
}

// retryable reports whether a reception error is channel noise that a
// session should listen through rather than report.
func retryable(err error) bool {
	return errors.Is(err, dw1000.ErrFilterRejected) ||
		errors.Is(err, dw1000.ErrCRC) ||
		errors.Is(err, dw1000.ErrPreambleTimeout) ||
		errors.Is(err, dw1000.ErrFrame)
}

func pollSend(s *dw1000.Sending, expired func() bool) (*dw1000.Ready, dw1000.Instant, error) {
	for {
		ready, txTime, err := s.Poll()
		if !errors.Is(err, dw1000.ErrWouldBlock) {
			return ready, txTime, err
		}
		if expired() {
			ready, cerr := s.Cancel()
			if cerr != nil {
				return nil, 0, cerr
			}
			return ready, 0, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

func pollReceive(rx *dw1000.Receiving, buf []byte, expired func() bool) (*dw1000.Ready, *dw1000.Message, error) {
	for {
		ready, msg, err := rx.Poll(buf)
		if !errors.Is(err, dw1000.ErrWouldBlock) {
			return ready, msg, err
		}
		if expired() {
			ready, cerr := rx.Cancel()
			if cerr != nil {
				return nil, nil, cerr
			}
			return ready, nil, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Deadline returns an expired func that trips after d, for use with the Run
// methods.
func Deadline(d time.Duration) func() bool {
	end := time.Now().Add(d)
	return func() bool {
		return time.Now().After(end)
	}
}
