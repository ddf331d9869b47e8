// Package finsmini implements the CompoWay/F (FINS-mini) ASCII framing used
// by OMRON single-loop controllers over a point-to-point serial link.
//
// A command frame is laid out as
//
//	STX | unit no (2 hex) | sub-address "00" | SID "0" | body | ETX | BCC
//
// and a response frame as
//
//	STX | unit no (2 hex) | sub-address "00" | end code (2) |
//	MRC (2) | SRC (2) | response code (4) | payload | ETX | BCC
//
// The BCC is the XOR of every byte after STX, ETX included.
package finsmini

import (
	"fmt"
)

const (
	STX byte = 0x02
	ETX byte = 0x03
)

// MRC+SRC service codes understood by the G3PW family.
const (
	ServiceVariableAreaRead        = "0101"
	ServiceVariableAreaWrite       = "0102"
	ServiceControllerAttributeRead = "0503"
	ServiceControllerStatusRead    = "0601"
	ServiceEchoBackTest            = "0801"
)

// Fixed response offsets.
const (
	endCodeOffset      = 5
	responseCodeOffset = 11
	payloadOffset      = 15
	trailerLength      = 2 // ETX + BCC
)

// minResponseLength is the shortest frame that still carries a response code.
const minResponseLength = payloadOffset + trailerLength

// Bcc computes the block check character over a frame: the running XOR of
// every byte except the leading STX.
func Bcc(frame []byte) byte {
	var bcc byte
	for _, b := range frame[1:] {
		bcc ^= b
	}
	return bcc
}

// BuildFrame wraps body into a complete command frame for the given unit
// number, appending ETX and the BCC.
func BuildFrame(unitNo int, body []byte) []byte {
	frame := make([]byte, 0, 6+len(body)+2)
	frame = append(frame, STX)
	frame = append(frame, fmt.Sprintf("%02X", unitNo)...)
	frame = append(frame, '0', '0', '0') // sub-address "00" + SID "0"
	frame = append(frame, body...)
	frame = append(frame, ETX)
	frame = append(frame, Bcc(frame))
	return frame
}

// CheckEndCode validates the link-layer end code of a response. A non-"00"
// code reports transmission faults such as parity or BCC errors.
func CheckEndCode(resp []byte) error {
	if len(resp) < minResponseLength {
		return &FrameLengthError{Length: len(resp)}
	}
	code := string(resp[endCodeOffset : endCodeOffset+2])
	if code != "00" {
		return &EndCodeError{Code: code}
	}
	return nil
}

// CheckResponseCode validates the protocol-layer response code. A non-"0000"
// code means the command itself was rejected.
func CheckResponseCode(resp []byte) error {
	if len(resp) < minResponseLength {
		return &FrameLengthError{Length: len(resp)}
	}
	code := string(resp[responseCodeOffset : responseCodeOffset+4])
	if code != "0000" {
		return &ResponseCodeError{Code: code}
	}
	return nil
}

// Payload returns the data portion of a validated response, between the
// fixed header and the ETX/BCC trailer. Callers must have checked the end
// and response codes first.
func Payload(resp []byte) []byte {
	if len(resp) < minResponseLength {
		return nil
	}
	return resp[payloadOffset : len(resp)-trailerLength]
}
