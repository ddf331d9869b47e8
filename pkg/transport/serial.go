package transport

import (
	"bytes"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"k8s.io/klog/v2"

	"omrongateway/pkg/protocol/finsmini"
)

// port is the slice of serial.Port the transport needs; tests substitute a
// scripted implementation.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// SerialTransport drives one physical serial port. Exchanges serialize on
// the internal mutex: requests to the same device are request/response
// pairs over one link, no pipelining.
type SerialTransport struct {
	mu      sync.Mutex
	port    port
	address string
	timeout time.Duration
}

func openSerial(address string, opts *SerialOptions) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   opts.Parity,
		StopBits: opts.StopBits,
	}
	p, err := serial.Open(address, mode)
	if err != nil {
		klog.V(2).InfoS("Failed to open serial port", "address", address, "error", err)
		return nil, errors.Wrapf(err, "open %s", address)
	}
	return &SerialTransport{port: p, address: address, timeout: opts.Timeout}, nil
}

// AwaitFrame writes the request, then reads one unit at a time, each read
// bounded by the per-attempt timeout. The exchange completes once the
// terminator (ETX) has been seen and one further byte, the peer's BCC, has
// been consumed. A read attempt that produces no byte aborts the exchange
// with a timeout carrying the partial accumulation.
func (t *SerialTransport) AwaitFrame(request []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(request); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 64)
	buf := make([]byte, 1)
	etxSeen := false
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			klog.V(2).InfoS("Failed to read byte from serial port", "address", t.address, "error", err)
			return nil, errors.Wrap(err, "serial read")
		}
		if n == 0 {
			return nil, &TimeoutError{Partial: frame}
		}
		frame = append(frame, buf[0])
		if etxSeen {
			// The byte after ETX is the peer's checksum; frame complete.
			break
		}
		if buf[0] == finsmini.ETX {
			etxSeen = true
		}
	}
	klog.V(5).InfoS("Received frame", "address", t.address, "length", len(frame))
	return frame, nil
}

// AwaitLines writes the request and accumulates bytes until the timeout
// elapses, then splits the accumulation on line boundaries.
func (t *SerialTransport) AwaitLines(request []byte) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(request); err != nil {
		return nil, err
	}

	accumulated := make([]byte, 0, 256)
	buf := make([]byte, 64)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			klog.V(2).InfoS("Failed to read byte from serial port", "address", t.address, "error", err)
			return nil, errors.Wrap(err, "serial read")
		}
		if n == 0 {
			break
		}
		accumulated = append(accumulated, buf[:n]...)
	}

	lines := make([][]byte, 0, 4)
	for _, line := range bytes.Split(accumulated, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (t *SerialTransport) write(request []byte) error {
	if t.port == nil {
		return ErrPortClosed
	}
	n, err := t.port.Write(request)
	if err != nil {
		klog.V(2).InfoS("Failed to write to serial port", "address", t.address, "error", err)
		return errors.Wrap(err, "serial write")
	}
	klog.V(5).InfoS("Wrote frame", "address", t.address, "length", n)
	if err := t.port.SetReadTimeout(t.timeout); err != nil {
		klog.V(2).InfoS("Failed to set serial read timeout", "address", t.address, "error", err)
		return errors.Wrap(err, "set read timeout")
	}
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrPortClosed
	}
	err := t.port.Close()
	t.port = nil
	return err
}
