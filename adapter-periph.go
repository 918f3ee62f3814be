//go:build !tinygo

package dw1000

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) In(pull Pull) error {
	var pPull gpio.Pull
	switch pull {
	case PullFloat:
		pPull = gpio.Float
	case PullDown:
		pPull = gpio.PullDown
	case PullUp:
		pPull = gpio.PullUp
	default:
		pPull = gpio.PullNoChange
	}
	return p.PinIO.In(pPull, gpio.NoEdge)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

// HostConfig holds the configuration for the Linux/periph.io driver.
type HostConfig struct {
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string
	// SpiClockHz is the SPI clock frequency in Hz.
	// Defaults to 3000000 (3MHz), the chip's limit before its clock PLL has
	// locked. After Initialize the bus may be reopened at up to 20MHz.
	SpiClockHz int
	// ResetPin is the GPIO pin number (BCM numbering) for the chip's RSTn
	// line. Optional. If provided, the chip is hardware reset before use.
	ResetPin int
}

// Open sets up the SPI bus and optional reset line using periph.io and
// returns a handle to the uninitialized chip.
func Open(c HostConfig) (*Uninitialized, error) {
	// 1. Initialize periph.io host (required for both SPI and GPIO)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	// 2. Default SPI path
	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}

	// 3. Open the SPI port
	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	// 4. Default clock
	if c.SpiClockHz == 0 {
		c.SpiClockHz = 3000000
	}

	// 5. Create the SPI connection (Mode 0, 8 bits)
	conn, err := p.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}

	// 6. Setup reset pin
	var rstWrapper Pin
	if c.ResetPin != 0 {
		rstName := fmt.Sprintf("GPIO%d", c.ResetPin)
		realRst := gpioreg.ByName(rstName)
		if realRst == nil {
			p.Close()
			return nil, fmt.Errorf("failed to open reset pin %s", rstName)
		}
		rstWrapper = &realPin{PinIO: realRst}
	}

	dev := NewWithHardware(conn, rstWrapper)
	// Store the port closer so we can close it later
	dev.d.port = p

	if err := dev.HardwareReset(); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to reset chip: %w", err)
	}
	return dev, nil
}
