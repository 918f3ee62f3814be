package dw1000

import "fmt"

// Reg describes one register file of the DW1000. ID is the 6-bit register
// file address, Sub the 15-bit sub-address within the file, and Len the
// number of bytes the register occupies.
type Reg struct {
	ID  byte
	Sub uint16
	Len int
}

// header encodes the SPI transaction header for r into buf and returns the
// header length. The header is one byte for plain register access, two bytes
// for sub-addresses up to 0x7F, and three bytes for the full 15-bit range:
//
//	byte 0: [write][sub-index present][6-bit register ID]
//	byte 1: [extended][low 7 bits of sub-address]
//	byte 2: [bits 7..14 of sub-address]
func (r Reg) header(buf []byte, write bool) int {
	b0 := r.ID & 0x3F
	if write {
		b0 |= 0x80
	}
	if r.Sub == 0 {
		buf[0] = b0
		return 1
	}
	buf[0] = b0 | 0x40
	if r.Sub <= 0x7F {
		buf[1] = byte(r.Sub)
		return 2
	}
	buf[1] = byte(r.Sub) | 0x80
	buf[2] = byte(r.Sub >> 7)
	return 3
}

// The register map. Addresses, sub-addresses and lengths follow the DW1000
// register file layout. It includes registers the driver itself never
// touches; those are usable through the raw Device interface.
var (
	RegDevID     = Reg{0x00, 0x0000, 4}
	RegEUI       = Reg{0x01, 0x0000, 8}
	RegPanAdr    = Reg{0x03, 0x0000, 4}
	RegSysCfg    = Reg{0x04, 0x0000, 4}
	RegSysTime   = Reg{0x06, 0x0000, 5}
	RegTxFCtrl   = Reg{0x08, 0x0000, 5}
	RegTxBuffer  = Reg{0x09, 0x0000, 127}
	RegDxTime    = Reg{0x0A, 0x0000, 5}
	RegRxFWTO    = Reg{0x0C, 0x0000, 2}
	RegSysCtrl   = Reg{0x0D, 0x0000, 4}
	RegSysMask   = Reg{0x0E, 0x0000, 4}
	RegSysStatus = Reg{0x0F, 0x0000, 5}
	RegRxFInfo   = Reg{0x10, 0x0000, 4}
	RegRxBuffer  = Reg{0x11, 0x0000, 127}
	RegRxFQual   = Reg{0x12, 0x0000, 8}
	RegRxTime    = Reg{0x15, 0x0000, 14}
	RegTxTime    = Reg{0x17, 0x0000, 10}
	RegTxAntd    = Reg{0x18, 0x0000, 2}
	RegTxPower   = Reg{0x1E, 0x0000, 4}
	RegChanCtrl  = Reg{0x1F, 0x0000, 4}
	RegSfdLength = Reg{0x21, 0x0000, 1}
	RegAgcTune1  = Reg{0x23, 0x0004, 2}
	RegAgcTune2  = Reg{0x23, 0x000C, 4}
	RegDrxTune0b = Reg{0x27, 0x0002, 2}
	RegDrxTune1a = Reg{0x27, 0x0004, 2}
	RegDrxTune1b = Reg{0x27, 0x0006, 2}
	RegDrxTune2  = Reg{0x27, 0x0008, 4}
	RegDrxSfdToc = Reg{0x27, 0x0020, 2}
	RegDrxPreToc = Reg{0x27, 0x0024, 2}
	RegDrxTune4h = Reg{0x27, 0x0026, 2}
	RegRfRxCtrlH = Reg{0x28, 0x000B, 1}
	RegRfTxCtrl  = Reg{0x28, 0x000C, 3}
	RegTcPgDelay = Reg{0x2A, 0x000B, 1}
	RegFsPllCfg  = Reg{0x2B, 0x0007, 4}
	RegFsPllTune = Reg{0x2B, 0x000B, 1}
	RegLdoTune   = Reg{0x2C, 0x0030, 5}
	RegOtpAddr   = Reg{0x2D, 0x0004, 2}
	RegOtpCtrl   = Reg{0x2D, 0x0006, 2}
	RegOtpRdat   = Reg{0x2D, 0x000A, 4}
	RegLdeCfg1   = Reg{0x2E, 0x0806, 1}
	RegLdeRxAntd = Reg{0x2E, 0x1804, 2}
	RegLdeCfg2   = Reg{0x2E, 0x1806, 2}
	RegLdeRepc   = Reg{0x2E, 0x2804, 2}
	RegEvcCtrl   = Reg{0x2F, 0x0000, 4}
	RegEvcHpw    = Reg{0x2F, 0x0018, 2}
	RegEvcTpw    = Reg{0x2F, 0x001A, 2}
	RegPmscCtrl0 = Reg{0x36, 0x0000, 4}
)

// Field describes a bit field within a register: Off is the bit offset from
// the register's least significant bit, Bits the field width.
type Field struct {
	Off  uint
	Bits uint
}

// Get extracts the field value from a little-endian register image.
func (f Field) Get(buf []byte) uint64 {
	var v uint64
	start := f.Off / 8
	end := (f.Off + f.Bits - 1) / 8
	for i := end; ; i-- {
		v = v<<8 | uint64(buf[i])
		if i == start {
			break
		}
	}
	v >>= f.Off % 8
	return v & (1<<f.Bits - 1)
}

// Put stores the field value into a little-endian register image, leaving
// all other bits untouched.
func (f Field) Put(buf []byte, v uint64) {
	mask := uint64(1<<f.Bits-1) << (f.Off % 8)
	v = v << (f.Off % 8) & mask
	start := f.Off / 8
	end := (f.Off + f.Bits - 1) / 8
	for i := start; i <= end; i++ {
		shift := (i - start) * 8
		buf[i] = buf[i]&^byte(mask>>shift) | byte(v>>shift)
	}
}

// Bit fields of the registers the driver touches.
var (
	SysCfgFFEN    = Field{0, 1}
	SysCfgFFAB    = Field{1, 1}
	SysCfgFFAD    = Field{2, 1}
	SysCfgFFAA    = Field{3, 1}
	SysCfgFFAM    = Field{4, 1}
	SysCfgRXM110K = Field{22, 1}
	SysCfgRXWTOE  = Field{28, 1}

	TxFCtrlTFLEN = Field{0, 7}
	TxFCtrlTXBR  = Field{13, 2}
	TxFCtrlTR    = Field{15, 1}
	TxFCtrlTXPRF = Field{16, 2}
	TxFCtrlTXPSR = Field{18, 4}

	SysCtrlTXSTRT = Field{1, 1}
	SysCtrlTXDLYS = Field{2, 1}
	SysCtrlTRXOFF = Field{6, 1}
	SysCtrlRXENAB = Field{8, 1}

	SysStatusTXFRB   = Field{4, 1}
	SysStatusTXPRS   = Field{5, 1}
	SysStatusTXPHS   = Field{6, 1}
	SysStatusTXFRS   = Field{7, 1}
	SysStatusLDEDONE = Field{10, 1}
	SysStatusRXPHE   = Field{12, 1}
	SysStatusRXDFR   = Field{13, 1}
	SysStatusRXFCG   = Field{14, 1}
	SysStatusRXFCE   = Field{15, 1}
	SysStatusRXRFSL  = Field{16, 1}
	SysStatusRXRFTO  = Field{17, 1}
	SysStatusLDEERR  = Field{18, 1}
	SysStatusRXOVRR  = Field{20, 1}
	SysStatusRXPTO   = Field{21, 1}
	SysStatusRXSFDTO = Field{26, 1}
	SysStatusHPDWARN = Field{27, 1}
	SysStatusTXBERR  = Field{28, 1}
	SysStatusAFFREJ  = Field{29, 1}
	SysStatusTXPUTE  = Field{34, 1}

	RxFInfoRXFLEN = Field{0, 7}
	RxFInfoRNG    = Field{15, 1}

	RxTimeRXSTAMP = Field{0, 40}
	TxTimeTXSTAMP = Field{0, 40}

	PanAdrShortAddr = Field{0, 16}
	PanAdrPanID     = Field{16, 16}

	ChanCtrlTXCHAN  = Field{0, 4}
	ChanCtrlRXCHAN  = Field{4, 4}
	ChanCtrlRXPRF   = Field{18, 2}
	ChanCtrlTXPCODE = Field{22, 5}
	ChanCtrlRXPCODE = Field{27, 5}

	OtpCtrlOTPRDEN = Field{0, 1}
	OtpCtrlOTPREAD = Field{1, 1}
	OtpCtrlLDELOAD = Field{15, 1}

	LdeCfg1NTM = Field{0, 5}

	PmscCtrl0SOFTRESET = Field{28, 4}
)

// Read reads the register into buf. When len(buf) is smaller than the
// register, only the leading bytes are transferred; this is how variable
// length reads of the RX buffer work.
func (d *Device) Read(r Reg, buf []byte) error {
	if len(buf) > r.Len {
		return fmt.Errorf("%w: read of %d bytes from register %#02x (len %d)", ErrTransport, len(buf), r.ID, r.Len)
	}
	n := r.header(d.scratch[:], false)
	total := n + len(buf)
	for i := n; i < total; i++ {
		d.scratch[i] = 0
	}
	if err := d.bus.Tx(d.scratch[:total], d.scratch[:total]); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	copy(buf, d.scratch[n:total])
	return nil
}

// Write writes data to the register. Writes shorter than the register length
// update only the leading bytes.
func (d *Device) Write(r Reg, data []byte) error {
	if len(data) > r.Len {
		return fmt.Errorf("%w: write of %d bytes to register %#02x (len %d)", ErrTransport, len(data), r.ID, r.Len)
	}
	n := r.header(d.scratch[:], true)
	total := n + copy(d.scratch[n:], data)
	if err := d.bus.Tx(d.scratch[:total], d.scratch[:total]); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Modify reads the register, applies fn to its image and writes it back.
func (d *Device) Modify(r Reg, fn func(buf []byte)) error {
	buf := make([]byte, r.Len)
	if err := d.Read(r, buf); err != nil {
		return err
	}
	fn(buf)
	return d.Write(r, buf)
}

// ReadField reads the register and extracts a single field from it.
func (d *Device) ReadField(r Reg, f Field) (uint64, error) {
	buf := make([]byte, r.Len)
	if err := d.Read(r, buf); err != nil {
		return 0, err
	}
	return f.Get(buf), nil
}

// WriteU16 writes a 16-bit little-endian value to the register.
func (d *Device) WriteU16(r Reg, v uint16) error {
	return d.Write(r, []byte{byte(v), byte(v >> 8)})
}

// WriteU32 writes a 32-bit little-endian value to the register.
func (d *Device) WriteU32(r Reg, v uint32) error {
	return d.Write(r, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
