package finsmini

import "fmt"

// End codes report link-layer transmission status.
var endCodes = map[string]string{
	"00": "Normal Completion",
	"0F": "FINS command error",
	"10": "Parity error",
	"11": "Framing error",
	"12": "Overrun error",
	"13": "BCC error",
	"14": "Format error",
	"16": "Sub-address error",
	"18": "Frame length error",
}

// Response codes report protocol-layer command acceptance status.
var responseCodes = map[string]string{
	"0000": "Normal Completion",
	"1001": "Command length too long",
	"1002": "Command length too short",
	"1003": "Number of elements/Number of data do not agree",
	"1100": "Parameter error",
	"1101": "Area Type Error",
	"110B": "Response length too long",
	"2203": "Operation error",
}

// EndCodeError is a link-layer fault (parity, framing, overrun, BCC,
// format, sub-address or frame-length error) reported by the device.
type EndCodeError struct {
	Code string
}

func (e *EndCodeError) Error() string {
	name, ok := endCodes[e.Code]
	if !ok {
		name = "Unknown Error"
	}
	return fmt.Sprintf("end code %s: %s", e.Code, name)
}

// ResponseCodeError is a protocol-layer rejection of the command.
type ResponseCodeError struct {
	Code string
}

func (e *ResponseCodeError) Error() string {
	name, ok := responseCodes[e.Code]
	if !ok {
		name = "Unknown Error"
	}
	return fmt.Sprintf("response code %s: %s", e.Code, name)
}

// FrameLengthError marks a response too short to carry its fixed header.
type FrameLengthError struct {
	Length int
}

func (e *FrameLengthError) Error() string {
	return fmt.Sprintf("response frame too short: %d bytes", e.Length)
}
