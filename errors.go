package dw1000

import "errors"

var (
	// ErrTransport indicates a failed SPI transfer or an unresponsive chip.
	ErrTransport = errors.New("spi transport error")
	// ErrConfig indicates an invalid or unsupported configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrBufferTooLarge indicates a payload or frame that does not fit the
	// chip's 127 byte TX/RX buffers, or a caller buffer too small for a
	// received frame.
	ErrBufferTooLarge = errors.New("buffer too large")
	// ErrSend indicates a transmission that did not complete.
	ErrSend = errors.New("send failed")
	// ErrCRC indicates a received frame with a bad frame check sequence.
	ErrCRC = errors.New("frame check sequence error")
	// ErrFilterRejected indicates a received frame dropped by frame filtering.
	ErrFilterRejected = errors.New("frame rejected by filter")
	// ErrPreambleTimeout indicates that no preamble or SFD was detected
	// within the configured window.
	ErrPreambleTimeout = errors.New("preamble detection timeout")
	// ErrFrameWaitTimeout indicates that no complete frame arrived within
	// the configured frame wait timeout.
	ErrFrameWaitTimeout = errors.New("frame wait timeout")
	// ErrPhy indicates a PHY level reception error (header error, Reed
	// Solomon failure, LDE failure).
	ErrPhy = errors.New("phy reception error")
	// ErrOverrun indicates a receiver overrun.
	ErrOverrun = errors.New("receiver overrun")
	// ErrFrame indicates a received frame that could not be decoded.
	ErrFrame = errors.New("malformed frame")
	// ErrDelayedSendTooLate indicates a delayed transmission scheduled too
	// close to (or behind) the current system time.
	ErrDelayedSendTooLate = errors.New("delayed send too late")
	// ErrDelayedSendPowerUp indicates a delayed transmission scheduled while
	// the transmitter was still powering up.
	ErrDelayedSendPowerUp = errors.New("delayed send during power up")
	// ErrWouldBlock indicates that an operation is still in progress and the
	// caller should poll again.
	ErrWouldBlock = errors.New("operation would block")
	// ErrInvalidState indicates a call on a handle that has already been
	// consumed by a state transition.
	ErrInvalidState = errors.New("handle already consumed")
)
