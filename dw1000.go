// Package dw1000 is a driver for the Decawave DW1000 ultra-wideband radio
// transceiver. The chip is driven over SPI; at any time the device is in one
// of four operating modes, modelled as separate handle types that are
// consumed and produced by state transitions:
//
//	New            -> *Uninitialized
//	Initialize     -> *Ready
//	Send, Receive  -> *Sending, *Receiving
//	Poll, Cancel   -> *Ready
//
// A handle that has been passed through a transition is spent; further calls
// on it fail with ErrInvalidState. Poll methods are non-blocking and return
// ErrWouldBlock while the operation is still in progress.
//
// The ranging subpackage implements double-sided two-way ranging on top of
// this driver.
package dw1000

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// deviceID is the value of the DEV_ID register on every DW1000.
const deviceID = 0xDECA0130

// pollInterval is the sleep between polls in the blocking Wait helpers.
const pollInterval = 100 * time.Microsecond

// Device gives raw register access to a DW1000 over SPI. It is the shared
// core of the state handles; a Device and its handles must be used from a
// single goroutine.
type Device struct {
	bus     SPI
	rst     Pin
	port    io.Closer
	cfg     Config
	txAntd  Duration
	seq     byte
	scratch [131]byte // 3 byte header + 127 byte register, plus slack
}

// New returns a handle to an uninitialized DW1000 behind the given SPI
// connection.
func New(bus SPI) *Uninitialized {
	return NewWithHardware(bus, nil)
}

// NewWithHardware returns a handle to an uninitialized DW1000 behind the
// given SPI connection, with an optional reset pin wired to the chip's RSTn
// line.
func NewWithHardware(bus SPI, rst Pin) *Uninitialized {
	return &Uninitialized{d: &Device{bus: bus, rst: rst}}
}

// Close releases the underlying bus, if the device owns one.
func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

func (d *Device) String() string {
	return fmt.Sprintf("DW1000(%s, prf %s, %s, preamble %s)",
		d.cfg.Channel, d.cfg.PRF, d.cfg.BitRate, d.cfg.PreambleLength)
}

// Message is a received frame together with its reception timestamp.
type Message struct {
	// RxTime is the ranging timestamp of the reception, adjusted by the
	// chip's leading edge detection.
	RxTime Instant
	// Frame is the decoded frame. Its payload aliases the buffer passed to
	// Poll.
	Frame Frame
}

// RxConfig controls a single reception.
type RxConfig struct {
	// FrameWaitTimeout aborts the reception with ErrFrameWaitTimeout if no
	// complete frame arrived within the given time. Zero disables the
	// timeout. The hardware rounds the value down to its 65536-tick timeout
	// unit.
	FrameWaitTimeout Duration
	// PreambleTimeout aborts the reception with ErrPreambleTimeout if no
	// preamble was detected within the given number of PAC symbols. Zero
	// disables the timeout.
	PreambleTimeout uint16
}

// Uninitialized is the handle to a device that has not been configured yet.
type Uninitialized struct {
	d     *Device
	spent bool
}

// Driver exposes the raw register interface of the device.
func (u *Uninitialized) Driver() *Device {
	return u.d
}

// HardwareReset pulses the chip's reset line, if one was configured.
func (u *Uninitialized) HardwareReset() error {
	if u.spent {
		return ErrInvalidState
	}
	if u.d.rst == nil {
		return nil
	}
	return hardwareReset(u.d.rst)
}

// Initialize verifies the chip identity, loads the leading edge detection
// microcode, applies the tuning recommended for cfg and transitions the
// device to Ready. The configuration is validated up front; nothing is
// written to the chip if it is invalid.
func (u *Uninitialized) Initialize(cfg Config) (*Ready, error) {
	if u.spent {
		return nil, ErrInvalidState
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := u.d

	var id [4]byte
	if err := d.Read(RegDevID, id[:]); err != nil {
		return nil, err
	}
	if got := uint32(id[0]) | uint32(id[1])<<8 | uint32(id[2])<<16 | uint32(id[3])<<24; got != deviceID {
		return nil, fmt.Errorf("%w: device id %#08x", ErrTransport, got)
	}

	if err := d.loadLDE(); err != nil {
		return nil, err
	}
	if err := d.loadLDOTune(); err != nil {
		return nil, err
	}

	tune1b, err := cfg.drxTune1b()
	if err != nil {
		return nil, err
	}

	w := regWriter{d: d}
	w.u16(RegAgcTune1, cfg.agcTune1())
	w.u32(RegAgcTune2, 0x2502A907)
	w.u16(RegDrxTune0b, cfg.drxTune0b())
	w.u16(RegDrxTune1a, cfg.drxTune1a())
	w.u16(RegDrxTune1b, tune1b)
	w.u32(RegDrxTune2, cfg.drxTune2())
	w.u16(RegDrxTune4h, cfg.drxTune4h())
	w.u8(RegRfRxCtrlH, cfg.rfRxCtrlH())
	w.u24(RegRfTxCtrl, cfg.rfTxCtrl())
	w.u8(RegTcPgDelay, cfg.tcPgDelay())
	w.u32(RegFsPllCfg, cfg.fsPllCfg())
	w.u8(RegFsPllTune, cfg.fsPllTune())
	w.u32(RegTxPower, 0x0E082848)
	w.modify(RegLdeCfg1, func(buf []byte) {
		LdeCfg1NTM.Put(buf, 0xD)
	})
	w.u16(RegLdeCfg2, cfg.ldeCfg2())

	code := uint64(cfg.preambleCode())
	var chanCtrl [4]byte
	ChanCtrlTXCHAN.Put(chanCtrl[:], uint64(cfg.Channel))
	ChanCtrlRXCHAN.Put(chanCtrl[:], uint64(cfg.Channel))
	ChanCtrlRXPRF.Put(chanCtrl[:], uint64(cfg.PRF.bits()))
	ChanCtrlTXPCODE.Put(chanCtrl[:], code)
	ChanCtrlRXPCODE.Put(chanCtrl[:], code)
	w.raw(RegChanCtrl, chanCtrl[:])

	w.modify(RegSysCfg, func(buf []byte) {
		filter := uint64(1)
		if cfg.DisableFrameFilter {
			filter = 0
		}
		SysCfgFFEN.Put(buf, filter)
		SysCfgFFAB.Put(buf, filter)
		SysCfgFFAD.Put(buf, filter)
		SysCfgFFAA.Put(buf, filter)
		SysCfgFFAM.Put(buf, filter)
		if cfg.BitRate == BitRate110kbps {
			SysCfgRXM110K.Put(buf, 1)
		} else {
			SysCfgRXM110K.Put(buf, 0)
		}
	})

	var panAdr [4]byte
	PanAdrShortAddr.Put(panAdr[:], uint64(cfg.Address.Short))
	PanAdrPanID.Put(panAdr[:], uint64(cfg.Address.PanID))
	w.raw(RegPanAdr, panAdr[:])

	if w.err != nil {
		return nil, w.err
	}

	d.cfg = cfg
	u.spent = true
	globalLogger.Info("dw1000 initialized: " + d.String())
	return &Ready{d: d}, nil
}

// loadLDE loads the leading edge detection microcode from ROM. Without it
// the chip cannot produce ranging quality receive timestamps.
func (d *Device) loadLDE() error {
	// Force the system clock to the 19.2 MHz crystal and open the LDE clock
	// gate while the microcode is copied.
	if err := d.Write(RegPmscCtrl0, []byte{0x01, 0x03}); err != nil {
		return err
	}
	var otp [2]byte
	OtpCtrlLDELOAD.Put(otp[:], 1)
	if err := d.Write(RegOtpCtrl, otp[:]); err != nil {
		return err
	}
	time.Sleep(150 * time.Microsecond)
	return d.Write(RegPmscCtrl0, []byte{0x00, 0x02})
}

// loadLDOTune applies the LDO tuning calibrated into OTP memory during
// production, if the chip carries one.
func (d *Device) loadLDOTune() error {
	low, err := d.otpRead(0x004)
	if err != nil {
		return err
	}
	if low == 0 {
		return nil
	}
	high, err := d.otpRead(0x005)
	if err != nil {
		return err
	}
	var tune [5]byte
	for i := 0; i < 4; i++ {
		tune[i] = byte(low >> (8 * i))
	}
	tune[4] = byte(high)
	return d.Write(RegLdoTune, tune[:])
}

func (d *Device) otpRead(addr uint16) (uint32, error) {
	if err := d.WriteU16(RegOtpAddr, addr); err != nil {
		return 0, err
	}
	var ctrl [2]byte
	OtpCtrlOTPRDEN.Put(ctrl[:], 1)
	OtpCtrlOTPREAD.Put(ctrl[:], 1)
	if err := d.Write(RegOtpCtrl, ctrl[:]); err != nil {
		return 0, err
	}
	if err := d.WriteU16(RegOtpCtrl, 0); err != nil {
		return 0, err
	}
	var data [4]byte
	if err := d.Read(RegOtpRdat, data[:]); err != nil {
		return 0, err
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24, nil
}

// Ready is the handle to an idle, configured device.
type Ready struct {
	d     *Device
	spent bool
}

// Driver exposes the raw register interface of the device.
func (r *Ready) Driver() *Device {
	return r.d
}

// Address returns the node address the device was configured with.
func (r *Ready) Address() Address {
	return r.d.cfg.Address
}

// SysTime reads the chip's 40-bit system time counter.
func (r *Ready) SysTime() (Instant, error) {
	if r.spent {
		return 0, ErrInvalidState
	}
	return r.d.readInstant(RegSysTime)
}

// SetAntennaDelay programs the calibrated antenna delay. The transmit side
// delay is added by the chip to every transmit timestamp; the receive side
// delay is subtracted by the leading edge detection from every receive
// timestamp.
func (r *Ready) SetAntennaDelay(delay Duration) error {
	if r.spent {
		return ErrInvalidState
	}
	if delay > 0xFFFF {
		return fmt.Errorf("%w: antenna delay %d ticks", ErrConfig, delay)
	}
	if err := r.d.WriteU16(RegTxAntd, uint16(delay)); err != nil {
		return err
	}
	if err := r.d.WriteU16(RegLdeRxAntd, uint16(delay)); err != nil {
		return err
	}
	r.d.txAntd = delay
	return nil
}

// TxAntennaDelay returns the transmit antenna delay set with
// SetAntennaDelay. Delayed transmissions leave the antenna this much later
// than their scheduled time.
func (r *Ready) TxAntennaDelay() Duration {
	return r.d.txAntd
}

// SetAddress changes the node's PAN and short address. It affects frame
// filtering and the source address of frames sent afterwards.
func (r *Ready) SetAddress(addr Address) error {
	if r.spent {
		return ErrInvalidState
	}
	if addr.Mode == AddrExtended {
		return fmt.Errorf("%w: extended address as node address", ErrConfig)
	}
	addr.Mode = AddrShort
	var panAdr [4]byte
	PanAdrShortAddr.Put(panAdr[:], uint64(addr.Short))
	PanAdrPanID.Put(panAdr[:], uint64(addr.PanID))
	if err := r.d.Write(RegPanAdr, panAdr[:]); err != nil {
		return err
	}
	r.d.cfg.Address = addr
	return nil
}

// SetEUI programs the node's 64-bit extended unique identifier, used by
// frame filtering for extended-address frames.
func (r *Ready) SetEUI(eui uint64) error {
	if r.spent {
		return ErrInvalidState
	}
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(eui >> (8 * i))
	}
	return r.d.Write(RegEUI, buf[:])
}

// Send starts transmitting a frame to dest and transitions the device to
// Sending. The ranging flag sets the ranging bit in the PHY header.
func (r *Ready) Send(dest Address, payload []byte, ranging bool) (*Sending, error) {
	return r.send(dest, payload, ranging, 0, false)
}

// SendDelayed schedules the transmission to start when the system time
// counter reaches t. The chip ignores the low 9 bits of the scheduled time.
// Scheduling too close to the current time fails with ErrDelayedSendTooLate.
func (r *Ready) SendDelayed(dest Address, payload []byte, ranging bool, t Instant) (*Sending, error) {
	return r.send(dest, payload, ranging, t, true)
}

func (r *Ready) send(dest Address, payload []byte, ranging bool, t Instant, delayed bool) (*Sending, error) {
	if r.spent {
		return nil, ErrInvalidState
	}
	d := r.d
	if err := d.forceIdle(); err != nil {
		return nil, err
	}
	if err := d.clearStatus(txStatusMask); err != nil {
		return nil, err
	}

	frame := Frame{
		Seq:     d.seq,
		Dest:    dest,
		Src:     d.cfg.Address,
		Ranging: ranging,
		Payload: payload,
	}
	var buf [MaxPayload]byte
	n, err := frame.Encode(buf[:])
	if err != nil {
		return nil, err
	}
	d.seq++

	if err := d.Write(RegTxBuffer, buf[:n]); err != nil {
		return nil, err
	}

	var fctrl [5]byte
	TxFCtrlTFLEN.Put(fctrl[:], uint64(n)+2) // hardware appends the 2 byte FCS
	TxFCtrlTXBR.Put(fctrl[:], uint64(d.cfg.BitRate.bits()))
	TxFCtrlTXPRF.Put(fctrl[:], uint64(d.cfg.PRF.bits()))
	TxFCtrlTXPSR.Put(fctrl[:], uint64(d.cfg.PreambleLength))
	if ranging {
		TxFCtrlTR.Put(fctrl[:], 1)
	}
	if err := d.Write(RegTxFCtrl, fctrl[:]); err != nil {
		return nil, err
	}

	if delayed {
		if err := d.writeInstant(RegDxTime, t&^0x1FF); err != nil {
			return nil, err
		}
	}

	var ctrl [4]byte
	SysCtrlTXSTRT.Put(ctrl[:], 1)
	if delayed {
		SysCtrlTXDLYS.Put(ctrl[:], 1)
	}
	if err := d.Write(RegSysCtrl, ctrl[:]); err != nil {
		return nil, err
	}

	if delayed {
		status, err := d.readStatus()
		if err != nil {
			return nil, err
		}
		if SysStatusHPDWARN.Get(status[:]) != 0 {
			if err := d.forceIdle(); err != nil {
				return nil, err
			}
			return nil, ErrDelayedSendTooLate
		}
		if SysStatusTXPUTE.Get(status[:]) != 0 {
			if err := d.forceIdle(); err != nil {
				return nil, err
			}
			return nil, ErrDelayedSendPowerUp
		}
	}

	r.spent = true
	return &Sending{d: d}, nil
}

// Receive enables the receiver and transitions the device to Receiving.
func (r *Ready) Receive(cfg RxConfig) (*Receiving, error) {
	if r.spent {
		return nil, ErrInvalidState
	}
	d := r.d
	if err := d.forceIdle(); err != nil {
		return nil, err
	}
	if err := d.resetReceiver(); err != nil {
		return nil, err
	}
	if err := d.clearStatus(rxStatusMask); err != nil {
		return nil, err
	}

	enableTimeout := uint64(0)
	if cfg.FrameWaitTimeout > 0 {
		counts := cfg.FrameWaitTimeout.Ticks() >> 16 // hardware timeout unit is 65536 ticks
		if counts == 0 {
			counts = 1
		}
		if counts > 0xFFFF {
			return nil, fmt.Errorf("%w: frame wait timeout %d ticks", ErrConfig, cfg.FrameWaitTimeout)
		}
		if err := d.WriteU16(RegRxFWTO, uint16(counts)); err != nil {
			return nil, err
		}
		enableTimeout = 1
	}
	if err := d.Modify(RegSysCfg, func(buf []byte) {
		SysCfgRXWTOE.Put(buf, enableTimeout)
	}); err != nil {
		return nil, err
	}
	if cfg.PreambleTimeout > 0 {
		if err := d.WriteU16(RegDrxPreToc, cfg.PreambleTimeout); err != nil {
			return nil, err
		}
	}

	var ctrl [4]byte
	SysCtrlRXENAB.Put(ctrl[:], 1)
	if err := d.Write(RegSysCtrl, ctrl[:]); err != nil {
		return nil, err
	}

	r.spent = true
	return &Receiving{d: d}, nil
}

// Sending is the handle to a device with a transmission in flight.
type Sending struct {
	d     *Device
	spent bool
}

// Poll checks whether the transmission has completed. While the frame is
// still in the air it returns ErrWouldBlock and the handle stays usable.
// On completion it returns the Ready handle and the transmit timestamp,
// marking the instant the frame left the antenna.
func (s *Sending) Poll() (*Ready, Instant, error) {
	if s.spent {
		return nil, 0, ErrInvalidState
	}
	d := s.d
	status, err := d.readStatus()
	if err != nil {
		return nil, 0, err
	}
	if SysStatusTXBERR.Get(status[:]) != 0 {
		if err := d.forceIdle(); err != nil {
			return nil, 0, err
		}
		if err := d.clearStatus(txStatusMask); err != nil {
			return nil, 0, err
		}
		s.spent = true
		return &Ready{d: d}, 0, fmt.Errorf("%w: tx buffer error", ErrSend)
	}
	if SysStatusTXFRS.Get(status[:]) == 0 {
		return nil, 0, ErrWouldBlock
	}
	txTime, err := d.readInstant(RegTxTime)
	if err != nil {
		return nil, 0, err
	}
	if err := d.clearStatus(txStatusMask); err != nil {
		return nil, 0, err
	}
	s.spent = true
	return &Ready{d: d}, txTime, nil
}

// Wait polls until the transmission completes or ctx is done. On context
// expiry the transmission is cancelled.
func (s *Sending) Wait(ctx context.Context) (*Ready, Instant, error) {
	for {
		ready, txTime, err := s.Poll()
		if !errors.Is(err, ErrWouldBlock) {
			return ready, txTime, err
		}
		select {
		case <-ctx.Done():
			ready, cerr := s.Cancel()
			if cerr != nil {
				return nil, 0, cerr
			}
			return ready, 0, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Cancel aborts the transmission and returns the device to Ready.
func (s *Sending) Cancel() (*Ready, error) {
	if s.spent {
		return nil, ErrInvalidState
	}
	d := s.d
	if err := d.forceIdle(); err != nil {
		return nil, err
	}
	if err := d.clearStatus(txStatusMask); err != nil {
		return nil, err
	}
	s.spent = true
	return &Ready{d: d}, nil
}

// Receiving is the handle to a device with the receiver enabled.
type Receiving struct {
	d     *Device
	spent bool
}

// Poll checks whether a frame has arrived. While the receiver is still
// listening it returns ErrWouldBlock and the handle stays usable. On a
// received frame it decodes it into a Message whose payload aliases buf.
// Reception errors (bad CRC, filter rejection, timeouts, PHY errors)
// disable the receiver and consume the handle, returning the Ready handle
// alongside the error so the caller can start over.
func (rx *Receiving) Poll(buf []byte) (*Ready, *Message, error) {
	if rx.spent {
		return nil, nil, ErrInvalidState
	}
	d := rx.d
	status, err := d.readStatus()
	if err != nil {
		return nil, nil, err
	}

	if rxErr := rxError(status[:]); rxErr != nil {
		return rx.finish(rxErr)
	}
	if SysStatusRXDFR.Get(status[:]) == 0 {
		return nil, nil, ErrWouldBlock
	}
	if SysStatusRXFCG.Get(status[:]) == 0 {
		return rx.finish(ErrCRC)
	}

	var finfo [4]byte
	if err := d.Read(RegRxFInfo, finfo[:]); err != nil {
		return nil, nil, err
	}
	frameLen := int(RxFInfoRXFLEN.Get(finfo[:]))
	if frameLen < 2 {
		return rx.finish(fmt.Errorf("%w: frame of %d bytes", ErrFrame, frameLen))
	}
	dataLen := frameLen - 2 // strip the hardware verified FCS
	if dataLen > len(buf) {
		return rx.finish(fmt.Errorf("%w: %d byte frame into %d byte buffer", ErrBufferTooLarge, dataLen, len(buf)))
	}

	if err := d.Read(RegRxBuffer, buf[:dataLen]); err != nil {
		return nil, nil, err
	}
	rxTime, err := d.readInstant(RegRxTime)
	if err != nil {
		return nil, nil, err
	}

	frame, err := DecodeFrame(buf[:dataLen])
	if err != nil {
		return rx.finish(err)
	}
	frame.Ranging = RxFInfoRNG.Get(finfo[:]) != 0

	if err := d.clearStatus(rxStatusMask); err != nil {
		return nil, nil, err
	}
	rx.spent = true
	return &Ready{d: d}, &Message{RxTime: rxTime, Frame: frame}, nil
}

// finish disables the receiver after a failed reception and consumes the
// handle.
func (rx *Receiving) finish(rxErr error) (*Ready, *Message, error) {
	d := rx.d
	if err := d.forceIdle(); err != nil {
		return nil, nil, err
	}
	if err := d.clearStatus(rxStatusMask); err != nil {
		return nil, nil, err
	}
	rx.spent = true
	globalLogger.Debug("dw1000 reception failed: " + rxErr.Error())
	return &Ready{d: d}, nil, rxErr
}

// Wait polls until a frame arrives or ctx is done. On context expiry the
// reception is cancelled.
func (rx *Receiving) Wait(ctx context.Context, buf []byte) (*Ready, *Message, error) {
	for {
		ready, msg, err := rx.Poll(buf)
		if !errors.Is(err, ErrWouldBlock) {
			return ready, msg, err
		}
		select {
		case <-ctx.Done():
			ready, cerr := rx.Cancel()
			if cerr != nil {
				return nil, nil, cerr
			}
			return ready, nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Cancel disables the receiver and returns the device to Ready.
func (rx *Receiving) Cancel() (*Ready, error) {
	if rx.spent {
		return nil, ErrInvalidState
	}
	d := rx.d
	if err := d.forceIdle(); err != nil {
		return nil, err
	}
	if err := d.clearStatus(rxStatusMask); err != nil {
		return nil, err
	}
	rx.spent = true
	return &Ready{d: d}, nil
}

// rxError maps the error bits of a SYS_STATUS image to the corresponding
// reception error. Filter rejection is checked first: a rejected frame may
// also flag CRC or PHY errors, but the caller should see it as filtered.
func rxError(status []byte) error {
	switch {
	case SysStatusAFFREJ.Get(status) != 0:
		return ErrFilterRejected
	case SysStatusRXFCE.Get(status) != 0:
		return ErrCRC
	case SysStatusRXPHE.Get(status) != 0:
		return fmt.Errorf("%w: phy header error", ErrPhy)
	case SysStatusRXRFSL.Get(status) != 0:
		return fmt.Errorf("%w: reed solomon failure", ErrPhy)
	case SysStatusLDEERR.Get(status) != 0:
		return fmt.Errorf("%w: leading edge detection failed", ErrPhy)
	case SysStatusRXOVRR.Get(status) != 0:
		return ErrOverrun
	case SysStatusRXRFTO.Get(status) != 0:
		return ErrFrameWaitTimeout
	case SysStatusRXPTO.Get(status) != 0:
		return ErrPreambleTimeout
	case SysStatusRXSFDTO.Get(status) != 0:
		return fmt.Errorf("%w: sfd timeout", ErrPreambleTimeout)
	default:
		return nil
	}
}

// Write-one-to-clear masks for the SYS_STATUS register.
var (
	txStatusMask = statusMask(SysStatusTXFRB, SysStatusTXPRS, SysStatusTXPHS, SysStatusTXFRS, SysStatusTXBERR)
	rxStatusMask = statusMask(SysStatusRXPHE, SysStatusRXDFR, SysStatusRXFCG, SysStatusRXFCE,
		SysStatusRXRFSL, SysStatusRXRFTO, SysStatusLDEERR, SysStatusRXOVRR, SysStatusRXPTO,
		SysStatusRXSFDTO, SysStatusAFFREJ, SysStatusLDEDONE)
)

func statusMask(fields ...Field) uint64 {
	var m uint64
	for _, f := range fields {
		m |= (1<<f.Bits - 1) << f.Off
	}
	return m
}

// clearStatus acknowledges the given SYS_STATUS bits; the register is
// write-one-to-clear.
func (d *Device) clearStatus(mask uint64) error {
	var buf [5]byte
	for i := range buf {
		buf[i] = byte(mask >> (8 * i))
	}
	return d.Write(RegSysStatus, buf[:])
}

func (d *Device) readStatus() ([5]byte, error) {
	var status [5]byte
	err := d.Read(RegSysStatus, status[:])
	return status, err
}

// forceIdle aborts any transmission or reception in progress.
func (d *Device) forceIdle() error {
	var ctrl [4]byte
	SysCtrlTRXOFF.Put(ctrl[:], 1)
	return d.Write(RegSysCtrl, ctrl[:])
}

// resetReceiver soft resets the receiver block. Decawave recommends this
// before every receiver enable to clear a potential sync loss.
func (d *Device) resetReceiver() error {
	if err := d.Modify(RegPmscCtrl0, func(buf []byte) {
		PmscCtrl0SOFTRESET.Put(buf, 0b1110)
	}); err != nil {
		return err
	}
	return d.Modify(RegPmscCtrl0, func(buf []byte) {
		PmscCtrl0SOFTRESET.Put(buf, 0b1111)
	})
}

func (d *Device) readInstant(r Reg) (Instant, error) {
	var buf [5]byte
	if err := d.Read(r, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 4; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return Instant(v), nil
}

func (d *Device) writeInstant(r Reg, t Instant) error {
	var buf [5]byte
	for i := range buf {
		buf[i] = byte(t >> (8 * i))
	}
	return d.Write(r, buf[:])
}

func (d *Device) writeU24(r Reg, v uint32) error {
	return d.Write(r, []byte{byte(v), byte(v >> 8), byte(v >> 16)})
}

// regWriter runs a sequence of register writes, stopping at the first error.
type regWriter struct {
	d   *Device
	err error
}

func (w *regWriter) raw(r Reg, data []byte) {
	if w.err == nil {
		w.err = w.d.Write(r, data)
	}
}

func (w *regWriter) u8(r Reg, v byte) {
	w.raw(r, []byte{v})
}

func (w *regWriter) u16(r Reg, v uint16) {
	if w.err == nil {
		w.err = w.d.WriteU16(r, v)
	}
}

func (w *regWriter) u24(r Reg, v uint32) {
	if w.err == nil {
		w.err = w.d.writeU24(r, v)
	}
}

func (w *regWriter) u32(r Reg, v uint32) {
	if w.err == nil {
		w.err = w.d.WriteU32(r, v)
	}
}

func (w *regWriter) modify(r Reg, fn func(buf []byte)) {
	if w.err == nil {
		w.err = w.d.Modify(r, fn)
	}
}
