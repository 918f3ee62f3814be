package dw1000

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// mockChip emulates the DW1000 register file behind the SPI interface:
// reads and writes address a flat memory per register file, SYS_STATUS is
// write-one-to-clear, and triggering a transmission completes it instantly.
type mockChip struct {
	mem      map[byte][]byte
	writes   []regWrite
	failNext error
	txStamp  Instant
}

type regWrite struct {
	id   byte
	sub  uint16
	data []byte
}

func newMockChip() *mockChip {
	m := &mockChip{mem: make(map[byte][]byte)}
	copy(m.reg(RegDevID.ID, 4), []byte{0x30, 0x01, 0xCA, 0xDE})
	m.txStamp = 0x0100000000
	return m
}

func (m *mockChip) reg(id byte, size int) []byte {
	buf := m.mem[id]
	if len(buf) < size {
		grown := make([]byte, size)
		copy(grown, buf)
		buf = grown
		m.mem[id] = buf
	}
	return buf
}

func (m *mockChip) Tx(w, r []byte) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	id := w[0] & 0x3F
	write := w[0]&0x80 != 0
	hdr := 1
	var sub uint16
	if w[0]&0x40 != 0 {
		sub = uint16(w[1] & 0x7F)
		hdr = 2
		if w[1]&0x80 != 0 {
			sub |= uint16(w[2]) << 7
			hdr = 3
		}
	}
	n := len(w) - hdr
	buf := m.reg(id, int(sub)+n)

	if !write {
		copy(r[hdr:], buf[sub:int(sub)+n])
		return nil
	}

	m.writes = append(m.writes, regWrite{id, sub, append([]byte(nil), w[hdr:]...)})
	if id == RegSysStatus.ID {
		for i, b := range w[hdr:] {
			buf[int(sub)+i] &^= b
		}
		return nil
	}
	copy(buf[sub:], w[hdr:])

	if id == RegSysCtrl.ID && sub == 0 {
		ctrl := buf[:4]
		if SysCtrlTXSTRT.Get(ctrl) != 0 {
			m.completeTx()
		}
		if SysCtrlTRXOFF.Get(ctrl) != 0 || SysCtrlTXSTRT.Get(ctrl) != 0 {
			// Self clearing trigger bits.
			for i := range ctrl {
				ctrl[i] = 0
			}
		}
	}
	return nil
}

// completeTx marks the pending transmission as done and stamps it.
func (m *mockChip) completeTx() {
	status := m.reg(RegSysStatus.ID, 5)
	SysStatusTXFRS.Put(status, 1)
	stamp := m.reg(RegTxTime.ID, 10)
	TxTimeTXSTAMP.Put(stamp, m.txStamp.Ticks())
	m.txStamp = m.txStamp.Add(1000)
}

// deliver places a received frame in the RX registers and raises the good
// frame status bits.
func (m *mockChip) deliver(frame []byte, rxTime Instant) {
	copy(m.reg(RegRxBuffer.ID, len(frame)), frame)
	finfo := m.reg(RegRxFInfo.ID, 4)
	RxFInfoRXFLEN.Put(finfo, uint64(len(frame))+2)
	RxFInfoRNG.Put(finfo, 1)
	RxTimeRXSTAMP.Put(m.reg(RegRxTime.ID, 14), rxTime.Ticks())
	status := m.reg(RegSysStatus.ID, 5)
	SysStatusRXDFR.Put(status, 1)
	SysStatusRXFCG.Put(status, 1)
}

func (m *mockChip) raiseStatus(fields ...Field) {
	status := m.reg(RegSysStatus.ID, 5)
	for _, f := range fields {
		f.Put(status, 1)
	}
}

func (m *mockChip) lastWrite(t *testing.T) regWrite {
	t.Helper()
	if len(m.writes) == 0 {
		t.Fatal("no writes recorded")
	}
	return m.writes[len(m.writes)-1]
}

func (m *mockChip) findWrite(id byte, sub uint16) ([]byte, bool) {
	for i := len(m.writes) - 1; i >= 0; i-- {
		if m.writes[i].id == id && m.writes[i].sub == sub {
			return m.writes[i].data, true
		}
	}
	return nil, false
}

func initialized(t *testing.T, cfg Config) (*mockChip, *Ready) {
	t.Helper()
	chip := newMockChip()
	ready, err := New(chip).Initialize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	chip.writes = nil
	return chip, ready
}

func TestInitialize(t *testing.T) {
	chip := newMockChip()
	u := New(chip)

	ready, err := u.Initialize(Config{
		Address: ShortAddress(0x0D57, 0x0001),
	})
	if err != nil {
		t.Fatal(err)
	}
	if ready == nil {
		t.Fatal("no ready handle")
	}

	// Defaults: channel 5, PRF 16MHz, AGC_TUNE1 for 16MHz.
	if data, ok := chip.findWrite(RegAgcTune1.ID, RegAgcTune1.Sub); !ok || !bytes.Equal(data, []byte{0x70, 0x88}) {
		t.Errorf("AGC_TUNE1 = %#v", data)
	}
	if data, ok := chip.findWrite(RegFsPllTune.ID, RegFsPllTune.Sub); !ok || data[0] != 0xBE {
		t.Errorf("FS_PLLTUNE = %#v", data)
	}
	if data, ok := chip.findWrite(RegLdeCfg1.ID, RegLdeCfg1.Sub); !ok || data[0]&0x1F != 0xD {
		t.Errorf("LDE_CFG1 = %#v", data)
	}
	cfgBuf := chip.reg(RegSysCfg.ID, 4)
	if SysCfgFFEN.Get(cfgBuf) != 1 {
		t.Error("frame filtering not enabled")
	}
	pan := chip.reg(RegPanAdr.ID, 4)
	if PanAdrPanID.Get(pan) != 0x0D57 || PanAdrShortAddr.Get(pan) != 0x0001 {
		t.Errorf("PANADR = %#v", pan)
	}

	// The handle is spent after the transition.
	if _, err := u.Initialize(Config{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Initialize error = %v, want ErrInvalidState", err)
	}
}

func TestInitializeRejectsUnknownChip(t *testing.T) {
	chip := newMockChip()
	copy(chip.mem[RegDevID.ID], []byte{0x00, 0x00, 0xAD, 0xDE})

	_, err := New(chip).Initialize(Config{})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestInitializeValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"bad channel", Config{Channel: 6}},
		{"64 symbol preamble at 110kbps", Config{BitRate: BitRate110kbps, PreambleLength: PreambleLength64}},
		{"long preamble at 6.8Mbps", Config{BitRate: BitRate6800kbps, PreambleLength: PreambleLength4096}},
		{"extended node address", Config{Address: ExtendedAddress(0x0D57, 0xDECA000000000001)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chip := newMockChip()
			if _, err := New(chip).Initialize(c.cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("error = %v, want ErrConfig", err)
			}
			// Validation failures must not touch the chip.
			if len(chip.writes) != 0 {
				t.Errorf("chip written during failed validation: %+v", chip.writes)
			}
		})
	}
}

func TestSendCompletes(t *testing.T) {
	chip, ready := initialized(t, Config{Address: ShortAddress(0x0D57, 0x0001)})

	s, err := ready.Send(ShortAddress(0x0D57, 0x0002), []byte("hello"), false)
	if err != nil {
		t.Fatal(err)
	}
	next, txTime, err := s.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if next == nil {
		t.Fatal("no ready handle")
	}
	if txTime == 0 {
		t.Error("no transmit timestamp")
	}

	// The encoded frame must be in the TX buffer with the payload at the
	// tail, and TFLEN must cover it plus the FCS.
	frameData, ok := chip.findWrite(RegTxBuffer.ID, 0)
	if !ok || !bytes.Contains(frameData, []byte("hello")) {
		t.Errorf("TX buffer = %#v", frameData)
	}
	frame, err := DecodeFrame(frameData)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Src != ShortAddress(0x0D57, 0x0001) || frame.Dest != ShortAddress(0x0D57, 0x0002) {
		t.Errorf("frame addresses = %s -> %s", frame.Src, frame.Dest)
	}
	fctrl, ok := chip.findWrite(RegTxFCtrl.ID, 0)
	if !ok || TxFCtrlTFLEN.Get(fctrl) != uint64(len(frameData))+2 {
		t.Errorf("TX_FCTRL = %#v", fctrl)
	}

	// Spent handles refuse further use.
	if _, _, err := s.Poll(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("spent Poll error = %v, want ErrInvalidState", err)
	}
	if _, err := ready.Send(Broadcast(), nil, false); !errors.Is(err, ErrInvalidState) {
		t.Errorf("spent Send error = %v, want ErrInvalidState", err)
	}
}

func TestSendSequenceNumbers(t *testing.T) {
	chip, ready := initialized(t, Config{})

	var seqs []byte
	for i := 0; i < 3; i++ {
		s, err := ready.Send(Broadcast(), nil, false)
		if err != nil {
			t.Fatal(err)
		}
		ready, _, err = s.Poll()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := chip.findWrite(RegTxBuffer.ID, 0)
		frame, err := DecodeFrame(data)
		if err != nil {
			t.Fatal(err)
		}
		seqs = append(seqs, frame.Seq)
	}
	if seqs[1] != seqs[0]+1 || seqs[2] != seqs[1]+1 {
		t.Errorf("sequence numbers = %v", seqs)
	}
}

func TestSendRangingBit(t *testing.T) {
	chip, ready := initialized(t, Config{})

	s, err := ready.Send(Broadcast(), nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}
	fctrl, _ := chip.findWrite(RegTxFCtrl.ID, 0)
	if TxFCtrlTR.Get(fctrl) != 1 {
		t.Error("ranging bit not set")
	}
}

func TestSendDelayed(t *testing.T) {
	chip, ready := initialized(t, Config{})

	at := Instant(0x123456789)
	s, err := ready.SendDelayed(Broadcast(), nil, true, at)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}
	dx, ok := chip.findWrite(RegDxTime.ID, 0)
	if !ok {
		t.Fatal("DX_TIME not written")
	}
	var v uint64
	for i := 4; i >= 0; i-- {
		v = v<<8 | uint64(dx[i])
	}
	if v != uint64(at)&^uint64(0x1FF) {
		t.Errorf("DX_TIME = %#x, want %#x", v, uint64(at)&^uint64(0x1FF))
	}
	ctrl, _ := chip.findWrite(RegSysCtrl.ID, 0)
	if SysCtrlTXDLYS.Get(ctrl) != 1 || SysCtrlTXSTRT.Get(ctrl) != 1 {
		t.Errorf("SYS_CTRL = %#v", ctrl)
	}
}

func TestSendDelayedTooLate(t *testing.T) {
	chip, ready := initialized(t, Config{})

	// completeTx leaves TXFRS set; HPDWARN on top signals a missed slot.
	chip.raiseStatus(SysStatusHPDWARN)
	_, err := ready.SendDelayed(Broadcast(), nil, false, 0x1000)
	if !errors.Is(err, ErrDelayedSendTooLate) {
		t.Errorf("error = %v, want ErrDelayedSendTooLate", err)
	}

	// The failed send must leave the handle usable.
	chip.reg(RegSysStatus.ID, 5)[3] = 0
	if _, err := ready.Send(Broadcast(), nil, false); err != nil {
		t.Errorf("send after failed delayed send: %v", err)
	}
}

// failAfterStatusRead serves transfers from the chip until the first read of
// SYS_STATUS, then fails every following transfer.
type failAfterStatusRead struct {
	chip  *mockChip
	armed bool
}

func (b *failAfterStatusRead) Tx(w, r []byte) error {
	if b.armed {
		return errors.New("bus gone")
	}
	if w[0] == RegSysStatus.ID {
		b.armed = true
	}
	return b.chip.Tx(w, r)
}

func TestSendDelayedAbortBusError(t *testing.T) {
	chip := newMockChip()
	bus := &failAfterStatusRead{chip: chip}
	ready, err := New(bus).Initialize(Config{})
	if err != nil {
		t.Fatal(err)
	}

	// The status read that spots HPDWARN is the last transfer that works,
	// so the abort's TRXOFF write fails and must be reported.
	chip.raiseStatus(SysStatusHPDWARN)
	_, err = ready.SendDelayed(Broadcast(), nil, false, 0x1000)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestSendBufferError(t *testing.T) {
	chip, ready := initialized(t, Config{})

	s, err := ready.Send(Broadcast(), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	chip.raiseStatus(SysStatusTXBERR)

	next, _, err := s.Poll()
	if !errors.Is(err, ErrSend) {
		t.Fatalf("error = %v, want ErrSend", err)
	}
	if next == nil {
		t.Fatal("no ready handle after failed send")
	}
	if _, _, err := s.Poll(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("spent Poll error = %v, want ErrInvalidState", err)
	}
}

func TestSendPollWouldBlock(t *testing.T) {
	chip, ready := initialized(t, Config{})

	s, err := ready.Send(Broadcast(), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	// Take the completion away again to simulate a frame still in the air.
	status := chip.reg(RegSysStatus.ID, 5)
	SysStatusTXFRS.Put(status, 0)

	if _, _, err := s.Poll(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("error = %v, want ErrWouldBlock", err)
	}
	// The handle survives ErrWouldBlock.
	SysStatusTXFRS.Put(status, 1)
	if _, _, err := s.Poll(); err != nil {
		t.Errorf("second poll: %v", err)
	}
}

func TestReceive(t *testing.T) {
	chip, ready := initialized(t, Config{Address: ShortAddress(0x0D57, 0x0002)})

	sent := Frame{
		Seq:     7,
		Dest:    ShortAddress(0x0D57, 0x0002),
		Src:     ShortAddress(0x0D57, 0x0001),
		Payload: []byte("ping"),
	}
	var raw [MaxPayload]byte
	n, err := sent.Encode(raw[:])
	if err != nil {
		t.Fatal(err)
	}

	rx, err := ready.Receive(RxConfig{})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, MaxPayload)
	if _, _, err := rx.Poll(buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("error = %v, want ErrWouldBlock", err)
	}

	chip.deliver(raw[:n], 0x42)
	next, msg, err := rx.Poll(buf)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || msg == nil {
		t.Fatal("no result")
	}
	if msg.RxTime != 0x42 {
		t.Errorf("rx time = %#x, want 0x42", msg.RxTime)
	}
	if !msg.Frame.Ranging {
		t.Error("ranging flag not taken from RX_FINFO")
	}
	if msg.Frame.Src != sent.Src || msg.Frame.Seq != sent.Seq {
		t.Errorf("frame = %+v", msg.Frame)
	}
	if !bytes.Equal(msg.Frame.Payload, []byte("ping")) {
		t.Errorf("payload = %q", msg.Frame.Payload)
	}
}

func TestReceiveErrors(t *testing.T) {
	cases := []struct {
		name   string
		fields []Field
		want   error
	}{
		{"filter rejection", []Field{SysStatusAFFREJ}, ErrFilterRejected},
		{"filter rejection beats crc", []Field{SysStatusAFFREJ, SysStatusRXFCE}, ErrFilterRejected},
		{"crc", []Field{SysStatusRXFCE}, ErrCRC},
		{"phy header", []Field{SysStatusRXPHE}, ErrPhy},
		{"reed solomon", []Field{SysStatusRXRFSL}, ErrPhy},
		{"frame wait timeout", []Field{SysStatusRXRFTO}, ErrFrameWaitTimeout},
		{"preamble timeout", []Field{SysStatusRXPTO}, ErrPreambleTimeout},
		{"sfd timeout", []Field{SysStatusRXSFDTO}, ErrPreambleTimeout},
		{"overrun", []Field{SysStatusRXOVRR}, ErrOverrun},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chip, ready := initialized(t, Config{})
			rx, err := ready.Receive(RxConfig{})
			if err != nil {
				t.Fatal(err)
			}
			chip.raiseStatus(c.fields...)

			next, msg, err := rx.Poll(make([]byte, MaxPayload))
			if !errors.Is(err, c.want) {
				t.Fatalf("error = %v, want %v", err, c.want)
			}
			if msg != nil {
				t.Error("message on failed reception")
			}
			// Errors consume the handle but hand back a usable Ready.
			if next == nil {
				t.Fatal("no ready handle")
			}
			if _, _, err := rx.Poll(nil); !errors.Is(err, ErrInvalidState) {
				t.Errorf("spent Poll error = %v, want ErrInvalidState", err)
			}
			if _, err := next.Receive(RxConfig{}); err != nil {
				t.Errorf("receive after error: %v", err)
			}
		})
	}
}

func TestReceiveFrameWaitTimeoutSetup(t *testing.T) {
	chip, ready := initialized(t, Config{})

	_, err := ready.Receive(RxConfig{FrameWaitTimeout: Duration(3) << 16})
	if err != nil {
		t.Fatal(err)
	}
	fwto, ok := chip.findWrite(RegRxFWTO.ID, 0)
	if !ok || !bytes.Equal(fwto, []byte{0x03, 0x00}) {
		t.Errorf("RX_FWTO = %#v", fwto)
	}
	if SysCfgRXWTOE.Get(chip.reg(RegSysCfg.ID, 4)) != 1 {
		t.Error("RXWTOE not enabled")
	}
}

func TestReceiveBufferTooSmall(t *testing.T) {
	chip, ready := initialized(t, Config{})

	rx, err := ready.Receive(RxConfig{})
	if err != nil {
		t.Fatal(err)
	}
	frame := Frame{Dest: Broadcast(), Src: ShortAddress(0xFFFF, 1), Payload: bytes.Repeat([]byte{0xAA}, 40)}
	var raw [MaxPayload]byte
	n, _ := frame.Encode(raw[:])
	chip.deliver(raw[:n], 1)

	_, _, err = rx.Poll(make([]byte, 8))
	if !errors.Is(err, ErrBufferTooLarge) {
		t.Errorf("error = %v, want ErrBufferTooLarge", err)
	}
}

func TestCancelReturnsReady(t *testing.T) {
	_, ready := initialized(t, Config{})

	rx, err := ready.Receive(RxConfig{})
	if err != nil {
		t.Fatal(err)
	}
	next, err := rx.Cancel()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rx.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel error = %v, want ErrInvalidState", err)
	}

	s, err := next.Send(Broadcast(), []byte{1}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel(); err != nil {
		t.Fatal(err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	chip, ready := initialized(t, Config{})

	rx, err := ready.Receive(RxConfig{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next, msg, err := rx.Wait(ctx, make([]byte, MaxPayload))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if msg != nil {
		t.Error("message despite cancelled context")
	}
	if next == nil {
		t.Fatal("no ready handle after cancelled wait")
	}

	// With a frame already on the air, Wait returns it immediately.
	frame := Frame{Dest: Broadcast(), Src: ShortAddress(0xFFFF, 9), Payload: []byte("hi")}
	var raw [MaxPayload]byte
	n, _ := frame.Encode(raw[:])
	rx, err = next.Receive(RxConfig{})
	if err != nil {
		t.Fatal(err)
	}
	chip.deliver(raw[:n], 77)
	_, msg, err = rx.Wait(context.Background(), make([]byte, MaxPayload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg.Frame.Payload, []byte("hi")) {
		t.Errorf("payload = %q", msg.Frame.Payload)
	}
}

func TestSetAntennaDelay(t *testing.T) {
	chip, ready := initialized(t, Config{})

	if err := ready.SetAntennaDelay(16456); err != nil {
		t.Fatal(err)
	}
	if ready.TxAntennaDelay() != 16456 {
		t.Errorf("tx antenna delay = %d", ready.TxAntennaDelay())
	}
	if data, ok := chip.findWrite(RegTxAntd.ID, 0); !ok || !bytes.Equal(data, []byte{0x48, 0x40}) {
		t.Errorf("TX_ANTD = %#v", data)
	}
	if data, ok := chip.findWrite(RegLdeRxAntd.ID, RegLdeRxAntd.Sub); !ok || !bytes.Equal(data, []byte{0x48, 0x40}) {
		t.Errorf("LDE_RXANTD = %#v", data)
	}

	if err := ready.SetAntennaDelay(0x10000); !errors.Is(err, ErrConfig) {
		t.Errorf("oversized delay error = %v, want ErrConfig", err)
	}
}

func TestSetAddress(t *testing.T) {
	chip, ready := initialized(t, Config{Address: ShortAddress(0x0D57, 0x0001)})

	if err := ready.SetAddress(ShortAddress(0xBEEF, 0x0042)); err != nil {
		t.Fatal(err)
	}
	pan := chip.reg(RegPanAdr.ID, 4)
	if PanAdrPanID.Get(pan) != 0xBEEF || PanAdrShortAddr.Get(pan) != 0x0042 {
		t.Errorf("PANADR = %#v", pan)
	}

	// Frames sent afterwards carry the new source address.
	s, err := ready.Send(Broadcast(), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}
	data, _ := chip.findWrite(RegTxBuffer.ID, 0)
	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Src != ShortAddress(0xBEEF, 0x0042) {
		t.Errorf("source = %s", frame.Src)
	}

	if err := ready.SetAddress(ExtendedAddress(1, 2)); !errors.Is(err, ErrConfig) {
		t.Errorf("extended address error = %v, want ErrConfig", err)
	}
}

func TestSysTime(t *testing.T) {
	chip, ready := initialized(t, Config{})

	want := Instant(0xDEADBEEF42)
	buf := chip.reg(RegSysTime.ID, 5)
	for i := range buf {
		buf[i] = byte(want >> (8 * i))
	}
	got, err := ready.SysTime()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("sys time = %#x, want %#x", got, want)
	}
}
