package registry

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omrongateway/pkg/protocol/finsmini"
	"omrongateway/pkg/protocol/g3pw"
	"omrongateway/pkg/transport"
)

// fakeController answers identification and variable-area requests from a
// flat register map. A non-nil err fails every exchange.
type fakeController struct {
	registers map[uint16]uint64
	err       error
	closed    bool
}

func (d *fakeController) AwaitFrame(request []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	body := request[6 : len(request)-2]
	service := string(body[:4])
	var payload []byte
	switch service {
	case finsmini.ServiceControllerAttributeRead:
		payload = []byte("G3PW-A260EC-S0190")
	case finsmini.ServiceVariableAreaRead:
		offset, _ := strconv.ParseUint(string(body[6:10]), 16, 16)
		count, _ := strconv.ParseUint(string(body[12:16]), 16, 16)
		for i := uint64(0); i < count; i++ {
			payload = append(payload, fmt.Sprintf("%04X", d.registers[uint16(offset+i)])...)
		}
	}

	resp := []byte{finsmini.STX}
	resp = append(resp, "010000"...)
	resp = append(resp, service...)
	resp = append(resp, "0000"...)
	resp = append(resp, payload...)
	resp = append(resp, finsmini.ETX)
	resp = append(resp, finsmini.Bcc(resp))
	return resp, nil
}

func (d *fakeController) AwaitLines(request []byte) ([][]byte, error) {
	return nil, nil
}

func (d *fakeController) Close() error {
	d.closed = true
	return nil
}

var _ transport.Transport = (*fakeController)(nil)

func addFake(t *testing.T, r *Registry, name string, dev *fakeController) {
	t.Helper()
	client, err := g3pw.Connect(dev, g3pw.DefaultUnitNo)
	require.NoError(t, err)
	require.NoError(t, r.AddClient(name, client))
}

func TestAddClientRejectsDuplicateName(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{})

	client := g3pw.NewClient(&fakeController{}, g3pw.DefaultUnitNo)
	err := r.AddClient("oven-1", client)

	var dee *DeviceExistsError
	require.ErrorAs(t, err, &dee)
	assert.Equal(t, []string{"oven-1"}, r.Names())
}

func TestRemoveDeviceClosesTransport(t *testing.T) {
	r := New()
	dev := &fakeController{}
	addFake(t, r, "oven-1", dev)

	require.NoError(t, r.RemoveDevice("oven-1"))
	assert.True(t, dev.closed)
	assert.Zero(t, r.Len())

	err := r.RemoveDevice("oven-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestGetFansOutToAllDevices(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{registers: map[uint16]uint64{0x0000: 100}})
	addFake(t, r, "oven-2", &fakeController{registers: map[uint16]uint64{0x0000: 200}})

	snapshot, err := r.Get([]string{"Input Monitor"})
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, 10.0, snapshot["oven-1"]["Input Monitor"])
	assert.Equal(t, 20.0, snapshot["oven-2"]["Input Monitor"])
}

func TestGetTimestampsEveryReading(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{})

	snapshot, err := r.Get([]string{"Input Monitor"})
	require.NoError(t, err)

	reading := snapshot["oven-1"]
	assert.Contains(t, reading, RequestSentField)
	assert.Contains(t, reading, ResponseReceivedField)
}

func TestGetIsolatesDeviceFaults(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{registers: map[uint16]uint64{0x0000: 100}})

	broken := &fakeController{}
	addFake(t, r, "oven-2", broken)
	broken.err = &transport.TimeoutError{}

	snapshot, err := r.Get([]string{"Input Monitor"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oven-2")

	// The healthy device still reports.
	require.Contains(t, snapshot, "oven-1")
	assert.Equal(t, 10.0, snapshot["oven-1"]["Input Monitor"])
	assert.NotContains(t, snapshot, "oven-2")
}

func TestGetUnknownTargetID(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{})

	snapshot, err := r.Get([]string{"Input Monitor"}, "oven-1", "missing")
	require.Error(t, err)
	assert.Contains(t, snapshot, "oven-1")
}

func TestMonitorsReadsStandardSet(t *testing.T) {
	r := New()
	registers := map[uint16]uint64{}
	for i := uint16(0); i < 6; i++ {
		registers[i] = uint64(10 * (i + 1))
	}
	addFake(t, r, "oven-1", &fakeController{registers: registers})

	snapshot, err := r.Monitors()
	require.NoError(t, err)

	reading := snapshot["oven-1"]
	assert.Len(t, reading, 6+2)
	assert.Equal(t, 1.0, reading["Input Monitor"])
	assert.Equal(t, 6.0, reading["Total Run Time Monitor"])
}

func TestSetTargetsCommandedDevicesOnly(t *testing.T) {
	r := New()
	addFake(t, r, "oven-1", &fakeController{registers: map[uint16]uint64{}})
	addFake(t, r, "oven-2", &fakeController{registers: map[uint16]uint64{}})

	err := r.Set(map[string]map[string]interface{}{
		"oven-1": {"Communications Main Setting 1": 12.5},
		"ghost":  {"Communications Main Setting 1": 1.0},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost" not registered`)
}
