package finsmini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildResponse(endCode, service, responseCode string, payload []byte) []byte {
	resp := []byte{STX}
	resp = append(resp, "0100"...)
	resp = append(resp, endCode...)
	resp = append(resp, service...)
	resp = append(resp, responseCode...)
	resp = append(resp, payload...)
	resp = append(resp, ETX)
	resp = append(resp, Bcc(resp))
	return resp
}

func TestBcc(t *testing.T) {
	// STX is excluded: 0x42 ^ 0x43 = 0x01
	assert.Equal(t, byte(0x01), Bcc([]byte{'A', 'B', 'C'}))
	assert.Equal(t, byte(0x00), Bcc([]byte{'A'}))
}

func TestBuildFrame(t *testing.T) {
	frame := BuildFrame(1, []byte(ServiceControllerAttributeRead))

	require.Equal(t, STX, frame[0])
	assert.Equal(t, "01", string(frame[1:3]))
	assert.Equal(t, "000", string(frame[3:6]))
	assert.Equal(t, ServiceControllerAttributeRead, string(frame[6:10]))
	assert.Equal(t, ETX, frame[len(frame)-2])
	assert.Equal(t, Bcc(frame[:len(frame)-1]), frame[len(frame)-1])
}

func TestBuildFrameZeroPadsUnitNo(t *testing.T) {
	frame := BuildFrame(0x0A, []byte(ServiceControllerStatusRead))
	assert.Equal(t, "0A", string(frame[1:3]))
}

func TestCheckEndCode(t *testing.T) {
	resp := buildResponse("00", "0101", "0000", []byte("0000"))
	assert.NoError(t, CheckEndCode(resp))

	resp = buildResponse("13", "0101", "0000", nil)
	err := CheckEndCode(resp)
	require.Error(t, err)
	var ece *EndCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, "13", ece.Code)
	assert.Contains(t, err.Error(), "BCC error")
}

func TestCheckResponseCode(t *testing.T) {
	resp := buildResponse("00", "0101", "0000", []byte("0000"))
	assert.NoError(t, CheckResponseCode(resp))

	resp = buildResponse("00", "0101", "1101", nil)
	err := CheckResponseCode(resp)
	require.Error(t, err)
	var rce *ResponseCodeError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "1101", rce.Code)
	assert.Contains(t, err.Error(), "Area Type Error")
}

func TestCheckCodesShortFrame(t *testing.T) {
	var fle *FrameLengthError
	assert.ErrorAs(t, CheckEndCode([]byte{STX, '0', '1'}), &fle)
	assert.ErrorAs(t, CheckResponseCode(nil), &fle)
}

func TestPayload(t *testing.T) {
	resp := buildResponse("00", "0101", "0000", []byte("04D2"))
	assert.Equal(t, []byte("04D2"), Payload(resp))
	assert.Nil(t, Payload([]byte("short")))
}
