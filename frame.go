package dw1000

import "fmt"

// MaxPayload is the largest MAC frame the chip can carry, excluding the two
// byte frame check sequence that the hardware appends on transmission.
const MaxPayload = 125

// AddrMode selects between the two IEEE 802.15.4 addressing modes the
// driver supports. The values match the frame control field encoding.
type AddrMode byte

const (
	AddrShort    AddrMode = 0b10
	AddrExtended AddrMode = 0b11
)

// Address is an IEEE 802.15.4 device address: a PAN identifier plus either a
// 16-bit short address or a 64-bit extended address, selected by Mode.
type Address struct {
	PanID    uint16
	Short    uint16
	Extended uint64
	Mode     AddrMode
}

// ShortAddress returns a short-form address on the given PAN.
func ShortAddress(panID, short uint16) Address {
	return Address{PanID: panID, Short: short, Mode: AddrShort}
}

// ExtendedAddress returns an extended-form address on the given PAN.
func ExtendedAddress(panID uint16, eui uint64) Address {
	return Address{PanID: panID, Extended: eui, Mode: AddrExtended}
}

// Broadcast returns the short broadcast address on the broadcast PAN.
func Broadcast() Address {
	return ShortAddress(0xFFFF, 0xFFFF)
}

// IsBroadcast reports whether a is the short broadcast address.
func (a Address) IsBroadcast() bool {
	return a.Mode == AddrShort && a.Short == 0xFFFF
}

func (a Address) String() string {
	if a.Mode == AddrExtended {
		return fmt.Sprintf("%04X:%016X", a.PanID, a.Extended)
	}
	return fmt.Sprintf("%04X:%04X", a.PanID, a.Short)
}

func (a Address) size() int {
	if a.Mode == AddrExtended {
		return 8
	}
	return 2
}

// Frame is an IEEE 802.15.4 MAC data frame. Ranging is carried in the PHY
// header rather than the MAC frame; on transmission it sets the ranging bit,
// on reception it reflects the received one.
type Frame struct {
	Seq     byte
	Dest    Address
	Src     Address
	Ranging bool
	Payload []byte
}

// Frame control field layout.
const (
	fcfTypeData    = 0b001
	fcfPanCompress = 1 << 6
	fcfDestModeOff = 10
	fcfVersionOff  = 12
	fcfSrcModeOff  = 14
	fcfVersion2006 = 1
)

// Encode writes the frame into buf and returns the number of bytes written.
// The source PAN identifier is elided via PAN ID compression when it equals
// the destination PAN.
func (f *Frame) Encode(buf []byte) (int, error) {
	for _, mode := range [...]AddrMode{f.Dest.Mode, f.Src.Mode} {
		if mode != AddrShort && mode != AddrExtended {
			return 0, fmt.Errorf("%w: address without mode, use ShortAddress or ExtendedAddress", ErrFrame)
		}
	}
	compress := f.Src.PanID == f.Dest.PanID
	n := 2 + 1 + 2 + f.Dest.size() + f.Src.size()
	if !compress {
		n += 2
	}
	n += len(f.Payload)
	if n > MaxPayload {
		return 0, fmt.Errorf("%w: frame of %d bytes", ErrBufferTooLarge, n)
	}
	if n > len(buf) {
		return 0, fmt.Errorf("%w: frame of %d bytes into %d byte buffer", ErrBufferTooLarge, n, len(buf))
	}

	fcf := uint16(fcfTypeData) |
		uint16(f.Dest.Mode)<<fcfDestModeOff |
		uint16(fcfVersion2006)<<fcfVersionOff |
		uint16(f.Src.Mode)<<fcfSrcModeOff
	if compress {
		fcf |= fcfPanCompress
	}

	buf[0] = byte(fcf)
	buf[1] = byte(fcf >> 8)
	buf[2] = f.Seq
	i := 3
	i += putU16(buf[i:], f.Dest.PanID)
	i += putAddr(buf[i:], f.Dest)
	if !compress {
		i += putU16(buf[i:], f.Src.PanID)
	}
	i += putAddr(buf[i:], f.Src)
	i += copy(buf[i:], f.Payload)
	return i, nil
}

// DecodeFrame parses a MAC data frame. The returned frame's Payload aliases
// buf; it stays valid only as long as buf does.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < 3 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrame, len(buf))
	}
	fcf := uint16(buf[0]) | uint16(buf[1])<<8
	if fcf&0b111 != fcfTypeData {
		return Frame{}, fmt.Errorf("%w: frame type %#03b", ErrFrame, fcf&0b111)
	}
	destMode := AddrMode(fcf >> fcfDestModeOff & 0b11)
	srcMode := AddrMode(fcf >> fcfSrcModeOff & 0b11)
	if destMode != AddrShort && destMode != AddrExtended {
		return Frame{}, fmt.Errorf("%w: destination addressing mode %#02b", ErrFrame, destMode)
	}
	if srcMode != AddrShort && srcMode != AddrExtended {
		return Frame{}, fmt.Errorf("%w: source addressing mode %#02b", ErrFrame, srcMode)
	}

	f := Frame{Seq: buf[2]}
	f.Dest.Mode = destMode
	f.Src.Mode = srcMode
	i := 3

	var ok bool
	if f.Dest.PanID, ok = getU16(buf, &i); !ok {
		return Frame{}, truncated(len(buf))
	}
	if !getAddr(buf, &i, &f.Dest) {
		return Frame{}, truncated(len(buf))
	}
	if fcf&fcfPanCompress != 0 {
		f.Src.PanID = f.Dest.PanID
	} else if f.Src.PanID, ok = getU16(buf, &i); !ok {
		return Frame{}, truncated(len(buf))
	}
	if !getAddr(buf, &i, &f.Src) {
		return Frame{}, truncated(len(buf))
	}
	f.Payload = buf[i:]
	return f, nil
}

func truncated(n int) error {
	return fmt.Errorf("%w: truncated header in %d byte frame", ErrFrame, n)
}

func putU16(buf []byte, v uint16) int {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	return 2
}

func putAddr(buf []byte, a Address) int {
	if a.Mode == AddrExtended {
		for i := 0; i < 8; i++ {
			buf[i] = byte(a.Extended >> (8 * i))
		}
		return 8
	}
	return putU16(buf, a.Short)
}

func getU16(buf []byte, i *int) (uint16, bool) {
	if *i+2 > len(buf) {
		return 0, false
	}
	v := uint16(buf[*i]) | uint16(buf[*i+1])<<8
	*i += 2
	return v, true
}

func getAddr(buf []byte, i *int, a *Address) bool {
	if a.Mode == AddrExtended {
		if *i+8 > len(buf) {
			return false
		}
		for k := 0; k < 8; k++ {
			a.Extended |= uint64(buf[*i+k]) << (8 * k)
		}
		*i += 8
		return true
	}
	var ok bool
	a.Short, ok = getU16(buf, i)
	return ok
}
