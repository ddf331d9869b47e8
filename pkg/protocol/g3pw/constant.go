package g3pw

import (
	"errors"
	"fmt"
	"strings"
)

var ErrShortPayload = errors.New("response payload shorter than requested element count")
var ErrEchoMismatch = errors.New("echo back data mismatch")

// ModelMismatchError means the identification handshake answered, but the
// device is not a G3PW. Discovery uses it to reject non-target devices.
type ModelMismatchError struct {
	Model string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("device is not %s: identified as %q", ModelPrefix, e.Model)
}

// UnknownVariableError is a request for a name the address table does not
// carry.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// IncompleteReadError is a get that decoded fewer fields than requested.
type IncompleteReadError struct {
	Missing []string
}

func (e *IncompleteReadError) Error() string {
	return fmt.Sprintf("not all values were read, missing: %s", strings.Join(e.Missing, ", "))
}
