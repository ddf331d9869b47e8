package g3pw

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omrongateway/pkg/protocol/finsmini"
	"omrongateway/pkg/transport"
	"omrongateway/pkg/variables"
)

// fakeDevice simulates one G3PW behind the Transport contract: it parses
// the request body and answers from an in-memory register file.
type fakeDevice struct {
	model        string
	registers    map[string]map[uint16]uint64
	requests     [][]byte
	lines        [][]byte
	endCode      string
	responseCode string
	err          error
	closed       bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		model:        "G3PW-A245EU-C",
		registers:    map[string]map[uint16]uint64{},
		endCode:      "00",
		responseCode: "0000",
	}
}

func (d *fakeDevice) store(family string, offset uint16, raw uint64) {
	if d.registers[family] == nil {
		d.registers[family] = map[uint16]uint64{}
	}
	d.registers[family][offset] = raw
}

func (d *fakeDevice) respond(service string, payload []byte) []byte {
	resp := []byte{finsmini.STX}
	resp = append(resp, "0100"...)
	resp = append(resp, d.endCode...)
	resp = append(resp, service...)
	resp = append(resp, d.responseCode...)
	resp = append(resp, payload...)
	resp = append(resp, finsmini.ETX)
	resp = append(resp, finsmini.Bcc(resp))
	return resp
}

func (d *fakeDevice) AwaitFrame(request []byte) ([]byte, error) {
	d.requests = append(d.requests, request)
	if d.err != nil {
		return nil, d.err
	}

	body := request[6 : len(request)-2]
	service := string(body[:4])
	if d.endCode != "00" || d.responseCode != "0000" {
		return d.respond(service, nil), nil
	}

	switch service {
	case finsmini.ServiceControllerAttributeRead:
		return d.respond(service, []byte(d.model+"0190")), nil
	case finsmini.ServiceVariableAreaRead:
		family := string(body[4:6])
		offset, _ := strconv.ParseUint(string(body[6:10]), 16, 16)
		count, _ := strconv.ParseUint(string(body[12:16]), 16, 16)
		width := 4
		if family[0] == 'C' {
			width = 8
		}
		payload := make([]byte, 0, int(count)*width)
		for i := uint64(0); i < count; i++ {
			raw := d.registers[family][uint16(offset+i)]
			payload = append(payload, fmt.Sprintf("%0*X", width, raw)...)
		}
		return d.respond(service, payload), nil
	case finsmini.ServiceVariableAreaWrite:
		family := string(body[4:6])
		offset, _ := strconv.ParseUint(string(body[6:10]), 16, 16)
		count, _ := strconv.ParseUint(string(body[12:16]), 16, 16)
		width := 4
		if family[0] == 'C' {
			width = 8
		}
		for i := uint64(0); i < count; i++ {
			raw, _ := strconv.ParseUint(string(body[16+int(i)*width:16+int(i+1)*width]), 16, 64)
			d.store(family, uint16(offset+i), raw)
		}
		return d.respond(service, nil), nil
	case finsmini.ServiceEchoBackTest:
		return d.respond(service, body[4:]), nil
	default:
		return d.respond(service, nil), nil
	}
}

func (d *fakeDevice) AwaitLines(request []byte) ([][]byte, error) {
	d.requests = append(d.requests, request)
	return d.lines, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

var _ transport.Transport = (*fakeDevice)(nil)

// readRequest picks apart one variable-area request frame.
func readRequest(t *testing.T, frame []byte) (service, address, count string) {
	t.Helper()
	body := frame[6 : len(frame)-2]
	require.GreaterOrEqual(t, len(body), 16)
	return string(body[:4]), string(body[4:10]), string(body[12:16])
}

func TestIdentify(t *testing.T) {
	dev := newFakeDevice()
	c, err := Connect(dev, DefaultUnitNo)
	require.NoError(t, err)
	assert.Equal(t, "G3PW-A245EU-C", c.Model())
}

func TestIdentifyRejectsOtherModels(t *testing.T) {
	dev := newFakeDevice()
	dev.model = "E5CC-RX2ASM-8"

	_, err := Connect(dev, DefaultUnitNo)
	var mme *ModelMismatchError
	require.ErrorAs(t, err, &mme)
	assert.Equal(t, "E5CC-RX2ASM-8", mme.Model)
}

func TestReadVariablesAppliesScaling(t *testing.T) {
	dev := newFakeDevice()
	dev.store("8E", 0x0000, 125) // Input Monitor, div10
	dev.store("8E", 0x0001, 200) // Internal Duty Monitor, div10
	c := NewClient(dev, DefaultUnitNo)

	values, err := c.ReadVariables(addr("8E", 0x0000), 2)
	require.NoError(t, err)
	assert.Equal(t, 12.5, values["Input Monitor"])
	assert.Equal(t, 20.0, values["Internal Duty Monitor"])
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)

	// div10 field: 12.5 encodes as 125 (007D) and decodes back to 12.5.
	require.NoError(t, c.WriteVariables(addr("81", 0x0000), []float64{12.5}))
	assert.Equal(t, uint64(125), dev.registers["81"][0x0000])
	assert.Contains(t, string(dev.requests[0]), "007D")

	values, err := c.ReadVariables(addr("81", 0x0000), 1)
	require.NoError(t, err)
	assert.Equal(t, 12.5, values["Communications Main Setting 1"])
}

func TestGetCoalescesContiguousAddresses(t *testing.T) {
	dev := newFakeDevice()
	dev.store("8E", 0x0000, 10)
	dev.store("8E", 0x0001, 20)
	c := NewClient(dev, DefaultUnitNo)

	values, err := c.Get([]string{"Input Monitor", "Internal Duty Monitor"}, false)
	require.NoError(t, err)
	require.Len(t, values, 2)

	// One batched read of two elements, not two reads of one.
	require.Len(t, dev.requests, 1)
	service, address, count := readRequest(t, dev.requests[0])
	assert.Equal(t, finsmini.ServiceVariableAreaRead, service)
	assert.Equal(t, "8E0000", address)
	assert.Equal(t, "0002", count)
}

func TestGetNeverMergesAcrossBatchWindow(t *testing.T) {
	dev := newFakeDevice()
	dev.store("8E", 0x0000, 10)
	dev.store("8E", 0x0014, 125)
	c := NewClient(dev, DefaultUnitNo)

	// Input Monitor (0000) and Version (0014) are 20 apart.
	_, err := c.Get([]string{"Input Monitor", "Version"}, false)
	require.NoError(t, err)
	assert.Len(t, dev.requests, 2)
}

func TestGetScalesAcrossFamilies(t *testing.T) {
	dev := newFakeDevice()
	dev.store("8E", 0x0014, 210) // Version, div100
	dev.store("81", 0x0000, 125) // Communications Main Setting 1, div10
	c := NewClient(dev, DefaultUnitNo)

	values, err := c.Get([]string{"Version", "Communications Main Setting 1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2.1, values["Version"])
	assert.Equal(t, 12.5, values["Communications Main Setting 1"])
}

func TestGetStatusExpandsSubFields(t *testing.T) {
	dev := newFakeDevice()
	// Bit 0 (Heater Burnout), bit 21 (Control Method) set.
	dev.store("CE", 0x0006, 1|1<<21)
	c := NewClient(dev, DefaultUnitNo)

	values, err := c.Get([]string{"Status"}, false)
	require.NoError(t, err)

	// Status reads go through the wide family.
	_, address, _ := readRequest(t, dev.requests[0])
	assert.Equal(t, "CE0006", address)

	assert.Len(t, values, 27)
	assert.Equal(t, "Error", values["Heater Burnout"])
	assert.Equal(t, "Optimum Cycle Control", values["Control Method"])
	assert.Equal(t, "OFF", values["Control Output"])
	assert.NotContains(t, values, "Not used.")
}

func TestGetUnknownName(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)

	_, err := c.Get([]string{"Bogus Field"}, false)
	var uve *UnknownVariableError
	require.ErrorAs(t, err, &uve)

	values, err := c.Get([]string{"Bogus Field"}, true)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestGetSurfacesEndCodeFault(t *testing.T) {
	dev := newFakeDevice()
	dev.endCode = "10" // parity error
	c := NewClient(dev, DefaultUnitNo)

	_, err := c.Get([]string{"Input Monitor"}, false)
	var ece *finsmini.EndCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, "10", ece.Code)
}

func TestGetSurfacesResponseCodeFault(t *testing.T) {
	dev := newFakeDevice()
	dev.responseCode = "1101"
	c := NewClient(dev, DefaultUnitNo)

	_, err := c.Get([]string{"Input Monitor"}, false)
	var rce *finsmini.ResponseCodeError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "1101", rce.Code)
}

func TestGetSurfacesTransportTimeout(t *testing.T) {
	dev := newFakeDevice()
	dev.err = &transport.TimeoutError{}
	c := NewClient(dev, DefaultUnitNo)

	_, err := c.Get([]string{"Input Monitor"}, false)
	assert.True(t, transport.IsTimeout(err))
}

func TestSetTranslatesNotation(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)

	require.NoError(t, c.Set(map[string]interface{}{"Communications Parity": "Odd"}))
	assert.Equal(t, uint64(1), dev.registers["83"][0x0002])

	err := c.Set(map[string]interface{}{"Communications Parity": "Mark"})
	assert.Error(t, err)
}

func TestSetScalesNumericValues(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)

	require.NoError(t, c.Set(map[string]interface{}{
		"Output Upper Limit":       100.0, // div10
		"Heater Burnout Threshold": 50.0,  // identity
	}))
	assert.Equal(t, uint64(1000), dev.registers["81"][0x000C])
	assert.Equal(t, uint64(50), dev.registers["81"][0x000E])
}

func TestStatusSkipsReservedBits(t *testing.T) {
	c := NewClient(newFakeDevice(), DefaultUnitNo)

	decoded := c.Status(0xFFFFFFFF)
	assert.Len(t, decoded, 27)
	assert.NotContains(t, decoded, "Not used.")
	assert.Equal(t, "Error", decoded["Memory Error"])
	assert.Equal(t, "Initial Setting Level", decoded["Setting Level"])
	assert.Equal(t, "Manual", decoded["Main Setting Mode"])
	assert.Equal(t, "ON", decoded["Run Status"])

	decoded = c.Status(0)
	assert.Equal(t, "No Error", decoded["Heater Burnout"])
	assert.Equal(t, "Operation Level", decoded["Setting Level"])
	assert.Equal(t, "Automatic", decoded["Main Setting Mode"])
	assert.Equal(t, "Phase Control", decoded["Control Method"])
}

func TestMonitors(t *testing.T) {
	dev := newFakeDevice()
	for i := uint16(0); i < 6; i++ {
		dev.store("8E", i, uint64(100+i))
	}
	c := NewClient(dev, DefaultUnitNo)

	values, err := c.Monitors()
	require.NoError(t, err)
	assert.Len(t, values, 6)

	_, address, count := readRequest(t, dev.requests[0])
	assert.Equal(t, "8E0000", address)
	assert.Equal(t, "0006", count)
}

func TestEchoBackTest(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)
	assert.NoError(t, c.EchoBackTest(123))
}

func TestCloseReleasesTransport(t *testing.T) {
	dev := newFakeDevice()
	c := NewClient(dev, DefaultUnitNo)
	require.NoError(t, c.Close())
	assert.True(t, dev.closed)
}

func addr(family string, offset uint16) variables.Address {
	return variables.Address{Family: family, Offset: offset}
}
