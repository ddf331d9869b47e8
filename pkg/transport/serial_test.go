package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort feeds canned bytes back one read at a time; an exhausted
// script behaves like a read timeout (n == 0).
type scriptedPort struct {
	pending []byte
	written []byte
	closed  bool
}

func (p *scriptedPort) Read(buf []byte) (int, error) {
	if len(p.pending) == 0 {
		return 0, nil
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *scriptedPort) Write(buf []byte) (int, error) {
	p.written = append(p.written, buf...)
	return len(buf), nil
}

func (p *scriptedPort) SetReadTimeout(time.Duration) error { return nil }

func (p *scriptedPort) Close() error {
	p.closed = true
	return nil
}

func newTestTransport(pending []byte) (*SerialTransport, *scriptedPort) {
	sp := &scriptedPort{pending: pending}
	return &SerialTransport{port: sp, address: "/dev/ttyUSB0", timeout: time.Millisecond}, sp
}

func TestAwaitFrameStopsAfterTerminatorPlusChecksum(t *testing.T) {
	// Response, then trailing garbage that must not be consumed.
	response := []byte{0x02, '0', '1', '0', '0', '0', '0', 0x03, 0x42}
	tr, sp := newTestTransport(append(append([]byte{}, response...), 'X', 'Y'))

	frame, err := tr.AwaitFrame([]byte("request"))
	require.NoError(t, err)
	assert.Equal(t, response, frame)
	assert.Equal(t, []byte("request"), sp.written)
	assert.Equal(t, []byte{'X', 'Y'}, sp.pending)
}

func TestAwaitFrameTimeoutReturnsPartial(t *testing.T) {
	tr, _ := newTestTransport([]byte{0x02, '0', '1'})

	_, err := tr.AwaitFrame([]byte("request"))
	require.Error(t, err)
	require.True(t, IsTimeout(err))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []byte{0x02, '0', '1'}, te.Partial)
}

func TestAwaitLinesSplitsOnLineBoundaries(t *testing.T) {
	tr, _ := newTestTransport([]byte("first line\r\nsecond line\n"))

	lines, err := tr.AwaitLines([]byte("status"))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, []byte("first line"), lines[0])
	assert.Equal(t, []byte("second line"), lines[1])
}

func TestCloseReleasesPort(t *testing.T) {
	tr, sp := newTestTransport(nil)

	require.NoError(t, tr.Close())
	assert.True(t, sp.closed)
	assert.ErrorIs(t, tr.Close(), ErrPortClosed)

	_, err := tr.AwaitFrame([]byte("request"))
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestNewRejectsUnknownAddressSyntax(t *testing.T) {
	_, err := New("tcp://10.0.0.2:502", DefaultSerialOptions())
	assert.ErrorIs(t, err, ErrUnsupportedAddress)
}

func TestIsSerialAddress(t *testing.T) {
	assert.True(t, isSerialAddress("/dev/ttyUSB6"))
	assert.True(t, isSerialAddress("COM3"))
	assert.False(t, isSerialAddress("COMX"))
	assert.False(t, isSerialAddress("10.0.0.2"))
}
