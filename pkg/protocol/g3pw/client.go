// Package g3pw is the protocol client for one OMRON G3PW power controller
// reached over a CompoWay/F serial link. It builds variable-area commands,
// validates and decodes responses, applies per-key scaling from the address
// table and coalesces multi-address reads into batched requests.
package g3pw

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"omrongateway/pkg/protocol/finsmini"
	"omrongateway/pkg/transport"
	"omrongateway/pkg/variables"
)

// ModelPrefix is the identification prefix a target device must answer.
const ModelPrefix = "G3PW"

// DefaultUnitNo is the factory default communications unit number.
const DefaultUnitNo = 1

var monitorAddress = variables.Address{Family: "8E", Offset: 0x0000}

const monitorCount = 6

// Client talks to a single device. Exchanges serialize inside the
// transport; Client itself carries no mutable protocol state beyond the
// cached model string.
type Client struct {
	transport transport.Transport
	table     *variables.Table
	unitNo    int
	model     string
}

// NewClient wires a client over an open transport without touching the
// device.
func NewClient(tr transport.Transport, unitNo int) *Client {
	return &Client{
		transport: tr,
		table:     variables.Default(),
		unitNo:    unitNo,
	}
}

// Connect creates a client and performs the identification handshake,
// rejecting devices that are not G3PW controllers.
func Connect(tr transport.Transport, unitNo int) (*Client, error) {
	c := NewClient(tr, unitNo)
	if _, err := c.Identify(); err != nil {
		return nil, err
	}
	return c, nil
}

// Model returns the cached identification string, empty before the first
// successful Identify.
func (c *Client) Model() string {
	return c.model
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) exchange(body []byte) ([]byte, error) {
	frame := finsmini.BuildFrame(c.unitNo, body)
	resp, err := c.transport.AwaitFrame(frame)
	if err != nil {
		return nil, err
	}
	if err := finsmini.CheckEndCode(resp); err != nil {
		return nil, err
	}
	if err := finsmini.CheckResponseCode(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Identify issues a controller attribute read and succeeds only when the
// payload prefix matches the expected model.
func (c *Client) Identify() (string, error) {
	resp, err := c.exchange([]byte(finsmini.ServiceControllerAttributeRead))
	if err != nil {
		return "", err
	}
	payload := finsmini.Payload(resp)
	if len(payload) < 4 {
		return "", ErrShortPayload
	}
	// The attribute payload is the model string followed by a 4-hex-digit
	// buffer size.
	model := string(payload[:len(payload)-4])
	if !strings.HasPrefix(model, ModelPrefix) {
		return "", &ModelMismatchError{Model: model}
	}
	c.model = model
	return model, nil
}

// ReadVariables reads count contiguous elements starting at addr and
// decodes them at the family's stride, applying per-key scaling.
func (c *Client) ReadVariables(addr variables.Address, count int) (map[string]interface{}, error) {
	body := make([]byte, 0, 18)
	body = append(body, finsmini.ServiceVariableAreaRead...)
	body = append(body, addr.String()...)
	body = append(body, "00"...) // bit position
	body = append(body, fmt.Sprintf("%04X", count)...)

	resp, err := c.exchange(body)
	if err != nil {
		return nil, err
	}
	payload := finsmini.Payload(resp)
	width := addr.Width()
	if len(payload) < count*width {
		return nil, ErrShortPayload
	}

	out := make(map[string]interface{}, count)
	for i := 0; i < count; i++ {
		raw, err := strconv.ParseUint(string(payload[i*width:(i+1)*width]), 16, 64)
		if err != nil {
			return nil, errors.Wrap(err, "decode element")
		}
		offset := addr.Offset + uint16(i)
		entry, ok := c.table.EntryAt(addr.Family, offset)
		if !ok {
			// Gap register swept up by a coalesced read; nothing to name it.
			klog.V(5).InfoS("Skipping unnamed register", "family", addr.Family, "offset", offset)
			continue
		}
		c.decodeInto(out, entry, raw)
	}
	return out, nil
}

func (c *Client) decodeInto(out map[string]interface{}, entry *variables.Entry, raw uint64) {
	switch entry.Scaling {
	case variables.ScalingBitfield:
		for label, state := range c.Status(uint32(raw)) {
			out[label] = state
		}
	case variables.ScalingDiv10:
		out[entry.Name] = float64(raw) / 10
	case variables.ScalingDiv100:
		out[entry.Name] = float64(raw) / 100
	case variables.ScalingNotation:
		if s, ok := entry.Notation(uint32(raw)); ok {
			out[entry.Name] = s
		} else {
			out[entry.Name] = float64(raw)
		}
	default:
		out[entry.Name] = float64(raw)
	}
}

// WriteVariables writes one or more contiguous elements starting at addr.
// Values are scaled per the table before hex encoding to the family width.
func (c *Client) WriteVariables(addr variables.Address, values []float64) error {
	body := make([]byte, 0, 18+len(values)*addr.Width())
	body = append(body, finsmini.ServiceVariableAreaWrite...)
	body = append(body, addr.String()...)
	body = append(body, "00"...) // bit position
	body = append(body, fmt.Sprintf("%04X", len(values))...)

	width := addr.Width()
	for i, value := range values {
		scaled := int64(value)
		if entry, ok := c.table.EntryAt(addr.Family, addr.Offset+uint16(i)); ok {
			switch entry.Scaling {
			case variables.ScalingDiv10:
				scaled = int64(value*10 + 0.5)
			case variables.ScalingDiv100:
				scaled = int64(value*100 + 0.5)
			}
		}
		body = append(body, fmt.Sprintf("%0*X", width, scaled)...)
	}

	_, err := c.exchange(body)
	return err
}

// Get resolves human names to addresses, coalesces contiguous offsets per
// family into batched reads, and returns exactly the requested names (plus
// the status sub-fields when "Status" is requested). Unless ignoreMissing
// is set, a result missing any requested name fails.
func (c *Client) Get(names []string, ignoreMissing bool) (map[string]interface{}, error) {
	if len(names) == 0 {
		return c.Monitors()
	}

	requested := sets.New[string](names...)
	resolved := make(map[string]sets.Set[uint16])
	for _, name := range requested.UnsortedList() {
		addr, ok := c.table.Resolve(name)
		if !ok {
			if c.table.IsStatusLabel(name) || ignoreMissing {
				continue
			}
			return nil, &UnknownVariableError{Name: name}
		}
		if resolved[addr.Family] == nil {
			resolved[addr.Family] = sets.New[uint16]()
		}
		resolved[addr.Family].Insert(addr.Offset)
	}

	merged := make(map[string]interface{})
	for family, offsets := range resolved {
		for _, run := range planRuns(offsets.UnsortedList()) {
			values, err := c.ReadVariables(variables.Address{Family: family, Offset: run.start}, run.count)
			if err != nil {
				return nil, errors.Wrapf(err, "read %s%04X", family, run.start)
			}
			for k, v := range values {
				merged[k] = v
			}
		}
	}

	statusRequested := requested.Has("Status")
	result := make(map[string]interface{}, len(merged))
	for k, v := range merged {
		if requested.Has(k) || (statusRequested && c.table.IsStatusLabel(k)) {
			result[k] = v
		}
	}

	if missing := c.missingNames(requested, result); len(missing) > 0 && !ignoreMissing {
		return nil, &IncompleteReadError{Missing: missing}
	}
	return result, nil
}

// missingNames checks each requested name against the result; "Status" is
// satisfied when every non-reserved sub-field label decoded, the count
// derived from the label table.
func (c *Client) missingNames(requested sets.Set[string], result map[string]interface{}) []string {
	missing := make([]string, 0)
	for _, name := range sets.List(requested) {
		if name == "Status" {
			decoded := 0
			for _, label := range c.table.StatusLabels() {
				if label == variables.ReservedLabel {
					continue
				}
				if _, ok := result[label]; ok {
					decoded++
				}
			}
			if decoded < c.table.StatusFieldCount() {
				missing = append(missing, name)
			}
			continue
		}
		if _, ok := result[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Set writes each named value, translating notation strings back to their
// encoded form. Writes go one address at a time; write batching is not
// part of the contract.
func (c *Client) Set(commands map[string]interface{}) error {
	for name, value := range commands {
		addr, ok := c.table.Resolve(name)
		if !ok {
			return &UnknownVariableError{Name: name}
		}
		entry, _ := c.table.EntryFor(name)

		var numeric float64
		switch v := value.(type) {
		case string:
			raw, ok := entry.NotationValue(v)
			if !ok {
				return errors.Errorf("no notation %q for %s", v, name)
			}
			numeric = float64(raw)
		case float64:
			numeric = v
		case float32:
			numeric = float64(v)
		case int:
			numeric = float64(v)
		case int64:
			numeric = float64(v)
		case uint32:
			numeric = float64(v)
		default:
			return errors.Errorf("unsupported value type %T for %s", value, name)
		}

		if err := c.WriteVariables(addr, []float64{numeric}); err != nil {
			return errors.Wrapf(err, "set %s", name)
		}
	}
	return nil
}

// Status decomposes the 32-bit status word into named flags. Reserved bits
// never appear in the result.
func (c *Client) Status(value uint32) map[string]interface{} {
	labels := c.table.StatusLabels()
	out := make(map[string]interface{}, len(labels))
	for i, label := range labels {
		if label == variables.ReservedLabel {
			continue
		}
		bit := value>>uint(i)&1 == 1
		var state string
		switch {
		case i < 16:
			state = pick(bit, "Error", "No Error")
		case i == 19:
			state = pick(bit, "Initial Setting Level", "Operation Level")
		case i == 20:
			state = pick(bit, "Manual", "Automatic")
		case i == 21:
			state = pick(bit, "Optimum Cycle Control", "Phase Control")
		default:
			state = pick(bit, "ON", "OFF")
		}
		out[label] = state
	}
	return out
}

func pick(bit bool, set, clear string) string {
	if bit {
		return set
	}
	return clear
}

// Monitors reads the six standard monitor fields in one batched request.
func (c *Client) Monitors() (map[string]interface{}, error) {
	return c.ReadVariables(monitorAddress, monitorCount)
}

// Heat sets the heater setpoint through Communications Main Setting 1.
func (c *Client) Heat(setpoint float64) error {
	return c.Set(map[string]interface{}{"Communications Main Setting 1": setpoint})
}

// ControllerStatusRead returns the raw operating/error status text from
// the 0601 service.
func (c *Client) ControllerStatusRead() (string, error) {
	resp, err := c.exchange([]byte(finsmini.ServiceControllerStatusRead))
	if err != nil {
		return "", err
	}
	payload := finsmini.Payload(resp)
	if len(payload) < 2 {
		return "", ErrShortPayload
	}
	return string(payload[:len(payload)-2]), nil
}

// DiagnosticDump writes a raw service command and collects whatever the
// device emits until the timeout elapses, line by line. Bench diagnostics
// only; responses are not frame-checked.
func (c *Client) DiagnosticDump(service string) ([]string, error) {
	frame := finsmini.BuildFrame(c.unitNo, []byte(service))
	raw, err := c.transport.AwaitLines(frame)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, string(line))
	}
	return lines, nil
}

// EchoBackTest sends the decimal digits of n and verifies the device
// echoes them back unchanged.
func (c *Client) EchoBackTest(n int) error {
	digits := strconv.Itoa(n)
	body := append([]byte(finsmini.ServiceEchoBackTest), digits...)
	resp, err := c.exchange(body)
	if err != nil {
		return err
	}
	if string(finsmini.Payload(resp)) != digits {
		return ErrEchoMismatch
	}
	return nil
}
