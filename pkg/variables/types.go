package variables

import "fmt"

// Scaling selects the decode path applied to a raw register value.
type Scaling string

const (
	ScalingIdentity Scaling = "identity"
	ScalingDiv10    Scaling = "div10"
	ScalingDiv100   Scaling = "div100"
	ScalingBitfield Scaling = "bitfield"
	ScalingNotation Scaling = "notation"
)

// ReservedLabel marks status bits that carry no information.
const ReservedLabel = "Not used."

// Address identifies one variable in the device's variable area. The first
// character of the family code determines the on-wire value width: 'C'
// families carry 8 hex digits per element, '8' families 4.
type Address struct {
	Family string
	Offset uint16
}

// Width returns the number of hex digits per element for this address.
func (a Address) Width() int {
	if len(a.Family) > 0 && a.Family[0] == 'C' {
		return 8
	}
	return 4
}

func (a Address) String() string {
	return fmt.Sprintf("%s%04X", a.Family, a.Offset)
}

// Entry is the decode rule for one named variable.
type Entry struct {
	Name     string
	Scaling  Scaling
	notation map[string]string
}

// Notation maps a raw value to its human-readable string, if the entry
// carries a notation table.
func (e *Entry) Notation(raw uint32) (string, bool) {
	if e.notation == nil {
		return "", false
	}
	s, ok := e.notation[fmt.Sprintf("%d", raw)]
	return s, ok
}

// NotationValue is the reverse lookup used on writes: human string back to
// the encoded numeric form.
func (e *Entry) NotationValue(s string) (uint32, bool) {
	for raw, human := range e.notation {
		if human == s {
			var v uint32
			if _, err := fmt.Sscanf(raw, "%d", &v); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
