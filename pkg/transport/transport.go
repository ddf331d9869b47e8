// Package transport provides the byte-oriented channel a protocol client
// exchanges frames over. Concrete kinds implement the Transport contract
// and are selected at construction time by the syntax of the target
// address; serial is the only kind wired today.
package transport

import (
	"fmt"
	"regexp"
	"time"

	"go.bug.st/serial"
)

// Transport is one request/response channel to a single device. An
// implementation owns exclusive access to the physical link for the
// duration of one exchange; calls serialize per transport.
type Transport interface {
	// AwaitFrame writes the request and accumulates the response until the
	// frame terminator and the trailing check byte have been consumed.
	AwaitFrame(request []byte) ([]byte, error)
	// AwaitLines writes the request and accumulates everything the peer
	// sends until the timeout elapses, split on line boundaries. Used only
	// for diagnostic commands without frame terminators.
	AwaitLines(request []byte) ([][]byte, error)
	Close() error
}

// SerialOptions carries the physical port configuration, passed through
// unchanged to the serial layer.
type SerialOptions struct {
	BaudRate int             `json:"baudRate"`
	DataBits int             `json:"dataBits"`
	Parity   serial.Parity   `json:"parity"`
	StopBits serial.StopBits `json:"stopBits"`
	Timeout  time.Duration   `json:"timeout"`
}

// DefaultSerialOptions is the G3PW factory default link configuration:
// 57600 baud, 7 data bits, even parity, 2 stop bits.
func DefaultSerialOptions() *SerialOptions {
	return &SerialOptions{
		BaudRate: 57600,
		DataBits: 7,
		Parity:   serial.EvenParity,
		StopBits: serial.TwoStopBits,
		Timeout:  500 * time.Millisecond,
	}
}

var parityFromString = map[string]serial.Parity{
	"none": serial.NoParity,
	"odd":  serial.OddParity,
	"even": serial.EvenParity,
}

var stopBitsFromString = map[string]serial.StopBits{
	"1":   serial.OneStopBit,
	"1.5": serial.OnePointFiveStopBits,
	"2":   serial.TwoStopBits,
}

// ParseParity maps the wire-format names "none", "odd" and "even".
func ParseParity(s string) (serial.Parity, bool) {
	p, ok := parityFromString[s]
	return p, ok
}

// ParseStopBits maps the wire-format names "1", "1.5" and "2".
func ParseStopBits(s string) (serial.StopBits, bool) {
	sb, ok := stopBitsFromString[s]
	return sb, ok
}

var windowsPortPattern = regexp.MustCompile(`^COM\d+$`)

// New selects a transport kind from the address syntax and opens it. A nil
// opts opens with the factory defaults.
func New(address string, opts *SerialOptions) (Transport, error) {
	if opts == nil {
		opts = DefaultSerialOptions()
	}
	if isSerialAddress(address) {
		return openSerial(address, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
}

func isSerialAddress(address string) bool {
	return len(address) > 5 && address[:5] == "/dev/" || windowsPortPattern.MatchString(address)
}
