package registry

import "fmt"

// Field names injected into every device reading for latency observability.
const (
	RequestSentField      = "Request Sent"
	ResponseReceivedField = "Response Received"
)

// DeviceExistsError is an add under a name already registered.
type DeviceExistsError struct {
	Name string
}

func (e *DeviceExistsError) Error() string {
	return fmt.Sprintf("device %q already registered", e.Name)
}

// DeviceNotFoundError is an operation addressing a name the registry does
// not hold.
type DeviceNotFoundError struct {
	Name string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %q not registered", e.Name)
}
