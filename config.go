package dw1000

import "fmt"

// Channel selects the UWB channel.
type Channel byte

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
	Channel3 Channel = 3
	Channel4 Channel = 4
	Channel5 Channel = 5
	Channel7 Channel = 7
)

func (c Channel) String() string {
	return fmt.Sprintf("channel %d", byte(c))
}

// PRF selects the pulse repetition frequency.
type PRF byte

const (
	PRF16MHz PRF = iota + 1
	PRF64MHz
)

func (p PRF) String() string {
	switch p {
	case PRF16MHz:
		return "16MHz"
	case PRF64MHz:
		return "64MHz"
	default:
		return "unknown"
	}
}

// bits returns the two-bit register encoding of the PRF.
func (p PRF) bits() byte {
	if p == PRF64MHz {
		return 0b10
	}
	return 0b01
}

// BitRate selects the data rate of the transmission.
type BitRate byte

const (
	BitRate110kbps BitRate = iota + 1
	BitRate850kbps
	BitRate6800kbps
)

func (b BitRate) String() string {
	switch b {
	case BitRate110kbps:
		return "110kbps"
	case BitRate850kbps:
		return "850kbps"
	case BitRate6800kbps:
		return "6.8Mbps"
	default:
		return "unknown"
	}
}

// bits returns the two-bit register encoding of the bit rate.
func (b BitRate) bits() byte {
	switch b {
	case BitRate850kbps:
		return 0b01
	case BitRate6800kbps:
		return 0b10
	default:
		return 0b00
	}
}

// PreambleLength selects the number of preamble symbols. Longer preambles
// improve reception quality and range at the cost of airtime. The values are
// the four-bit TXPSR+PE register encoding.
type PreambleLength byte

const (
	PreambleLength64   PreambleLength = 0b0100
	PreambleLength128  PreambleLength = 0b0101
	PreambleLength256  PreambleLength = 0b0110
	PreambleLength512  PreambleLength = 0b0111
	PreambleLength1024 PreambleLength = 0b1000
	PreambleLength1536 PreambleLength = 0b1001
	PreambleLength2048 PreambleLength = 0b1010
	PreambleLength4096 PreambleLength = 0b1100
)

func (p PreambleLength) String() string {
	if n := p.symbols(); n != 0 {
		return fmt.Sprintf("%d symbols", n)
	}
	return "unknown"
}

func (p PreambleLength) symbols() int {
	switch p {
	case PreambleLength64:
		return 64
	case PreambleLength128:
		return 128
	case PreambleLength256:
		return 256
	case PreambleLength512:
		return 512
	case PreambleLength1024:
		return 1024
	case PreambleLength1536:
		return 1536
	case PreambleLength2048:
		return 2048
	case PreambleLength4096:
		return 4096
	default:
		return 0
	}
}

// pacSize returns the recommended preamble acquisition chunk size for the
// preamble length.
func (p PreambleLength) pacSize() int {
	switch p {
	case PreambleLength64, PreambleLength128:
		return 8
	case PreambleLength256, PreambleLength512:
		return 16
	case PreambleLength1024:
		return 32
	default:
		return 64
	}
}

// Config is the radio configuration applied when the device transitions from
// Uninitialized to Ready. Zero values select the defaults documented on each
// field.
type Config struct {
	// Channel is the UWB channel to transmit and receive on.
	// Defaults to Channel5.
	Channel Channel
	// PRF is the pulse repetition frequency.
	// Defaults to PRF16MHz.
	PRF PRF
	// BitRate is the data rate.
	// Defaults to BitRate6800kbps.
	BitRate BitRate
	// PreambleLength is the preamble length. Not every combination with
	// BitRate is supported; see the constants.
	// Defaults to PreambleLength128.
	PreambleLength PreambleLength
	// DisableFrameFilter turns hardware frame filtering off. With filtering
	// on, only frames addressed to this node or broadcast are received.
	DisableFrameFilter bool
	// Address is the node's own PAN and short address, used for frame
	// filtering and as the source address of sent frames.
	Address Address
}

func (c Config) withDefaults() Config {
	if c.Channel == 0 {
		c.Channel = Channel5
	}
	if c.PRF == 0 {
		c.PRF = PRF16MHz
	}
	if c.BitRate == 0 {
		c.BitRate = BitRate6800kbps
	}
	if c.PreambleLength == 0 {
		c.PreambleLength = PreambleLength128
	}
	if c.Address.Mode == 0 {
		c.Address.Mode = AddrShort
	}
	return c
}

func (c Config) validate() error {
	switch c.Channel {
	case Channel1, Channel2, Channel3, Channel4, Channel5, Channel7:
	default:
		return fmt.Errorf("%w: channel %d", ErrConfig, c.Channel)
	}
	if c.PRF != PRF16MHz && c.PRF != PRF64MHz {
		return fmt.Errorf("%w: prf %d", ErrConfig, c.PRF)
	}
	if c.BitRate > BitRate6800kbps {
		return fmt.Errorf("%w: bit rate %d", ErrConfig, c.BitRate)
	}
	if c.PreambleLength.symbols() == 0 {
		return fmt.Errorf("%w: preamble length %#04b", ErrConfig, c.PreambleLength)
	}
	if _, err := c.drxTune1b(); err != nil {
		return err
	}
	if c.Address.Mode == AddrExtended {
		return fmt.Errorf("%w: extended address as node address", ErrConfig)
	}
	return nil
}

// The recommended register values below follow the tuning tables of the
// DW1000 user manual (tables 30-44).

func (c Config) drxTune0b() uint16 {
	switch c.BitRate {
	case BitRate110kbps:
		return 0x000A
	default:
		return 0x0001
	}
}

func (c Config) drxTune1a() uint16 {
	if c.PRF == PRF64MHz {
		return 0x008D
	}
	return 0x0087
}

func (c Config) drxTune1b() (uint16, error) {
	switch {
	case c.PreambleLength == PreambleLength64 && c.BitRate == BitRate6800kbps:
		return 0x0010, nil
	case c.PreambleLength >= PreambleLength128 && c.PreambleLength <= PreambleLength1024 &&
		(c.BitRate == BitRate850kbps || c.BitRate == BitRate6800kbps):
		return 0x0020, nil
	case c.PreambleLength >= PreambleLength1536 && c.BitRate == BitRate110kbps:
		return 0x0064, nil
	default:
		return 0, fmt.Errorf("%w: %s preamble at %s", ErrConfig, c.PreambleLength, c.BitRate)
	}
}

func (c Config) drxTune2() uint32 {
	tune := map[int]uint32{8: 0x311A002D, 16: 0x331A0052, 32: 0x351A009A, 64: 0x371A011D}
	if c.PRF == PRF64MHz {
		tune = map[int]uint32{8: 0x313B006B, 16: 0x333B00BE, 32: 0x353B015E, 64: 0x373B0296}
	}
	return tune[c.PreambleLength.pacSize()]
}

func (c Config) drxTune4h() uint16 {
	if c.PreambleLength == PreambleLength64 {
		return 0x0010
	}
	return 0x0028
}

func (c Config) agcTune1() uint16 {
	if c.PRF == PRF64MHz {
		return 0x889B
	}
	return 0x8870
}

func (c Config) ldeCfg2() uint16 {
	if c.PRF == PRF64MHz {
		return 0x0607
	}
	return 0x1607
}

// preambleCode returns a recommended preamble code for the channel and PRF.
// Codes are picked so that no two channels share one.
func (c Config) preambleCode() byte {
	if c.PRF == PRF64MHz {
		switch c.Channel {
		case Channel1:
			return 9
		case Channel2:
			return 10
		case Channel3:
			return 11
		case Channel4:
			return 17
		case Channel7:
			return 18
		default:
			return 12
		}
	}
	switch c.Channel {
	case Channel1:
		return 1
	case Channel2:
		return 3
	case Channel3:
		return 5
	case Channel4:
		return 7
	case Channel7:
		return 8
	default:
		return 4
	}
}

func (c Config) rfTxCtrl() uint32 {
	switch c.Channel {
	case Channel1:
		return 0x00005C40
	case Channel2:
		return 0x00045CA0
	case Channel3:
		return 0x00086CC0
	case Channel4:
		return 0x00045C80
	case Channel7:
		return 0x001E7DE0
	default:
		return 0x001E3FE0
	}
}

func (c Config) rfRxCtrlH() byte {
	if c.Channel == Channel4 || c.Channel == Channel7 {
		return 0xBC
	}
	return 0xD8
}

func (c Config) tcPgDelay() byte {
	switch c.Channel {
	case Channel1:
		return 0xC9
	case Channel2:
		return 0xC2
	case Channel3:
		return 0xC5
	case Channel4:
		return 0x95
	case Channel7:
		return 0x93
	default:
		return 0xC0
	}
}

func (c Config) fsPllCfg() uint32 {
	switch c.Channel {
	case Channel1:
		return 0x09000407
	case Channel2, Channel4:
		return 0x08400508
	case Channel3:
		return 0x08401009
	default:
		return 0x0800041D
	}
}

func (c Config) fsPllTune() byte {
	switch c.Channel {
	case Channel1:
		return 0x1E
	case Channel2, Channel4:
		return 0x26
	case Channel3:
		return 0x56
	default:
		return 0xBE
	}
}
