package dw1000

import "time"

// Level represents the logical level of a pin (Low or High).
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pull represents the internal pull-up/down resistor state.
type Pull uint8

const (
	PullNoChange Pull = iota
	PullFloat
	PullDown
	PullUp
)

// hardwareReset pulses the RSTn line. The line must not be driven high: the
// chip drives it itself, so after the pulse the pin is released to floating
// input.
func hardwareReset(rst Pin) error {
	if err := rst.Out(Low); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	if err := rst.In(PullFloat); err != nil {
		return err
	}
	// Give the chip time to come out of reset and lock its clock PLL.
	time.Sleep(5 * time.Millisecond)
	return nil
}
