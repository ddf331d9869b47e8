package transport

import (
	"errors"
	"fmt"
)

var ErrUnsupportedAddress = errors.New("unsupported transport address")
var ErrPortClosed = errors.New("serial port closed")

// TimeoutError reports a read attempt that produced no byte within the
// per-attempt window. Partial holds whatever was accumulated before the
// exchange was abandoned.
type TimeoutError struct {
	Partial []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("serial read timeout, %d bytes accumulated", len(e.Partial))
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
