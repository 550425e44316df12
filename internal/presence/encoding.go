package presence

import "bytes"

const (
	// CompanyID is the manufacturer code carried by every advertisement this
	// application emits. 0xFFFF is reserved by the Bluetooth SIG for testing and
	// never assigned to a real vendor, so it works as an application tag.
	CompanyID uint16 = 0xFFFF

	// MaxIdentifierBytes bounds the identifier part of the payload.
	MaxIdentifierBytes = 20
)

// payloadMagic prefixes the manufacturer data so that other test devices
// using 0xFFFF are not mistaken for ours.
var payloadMagic = []byte{'P', 'X'}

// Payload is the manufacturer data block handed to the radio.
type Payload struct {
	CompanyID uint16
	Data      []byte
}

// EncodeIdentifier returns the UTF-8 bytes of id, truncated to the first
// MaxIdentifierBytes bytes.
func EncodeIdentifier(id string) []byte {
	b := []byte(id)
	if len(b) > MaxIdentifierBytes {
		b = b[:MaxIdentifierBytes]
	}
	return b
}

// DecodeIdentifier is the inverse of EncodeIdentifier for identifiers that
// fit in MaxIdentifierBytes.
func DecodeIdentifier(b []byte) string {
	return string(b)
}

// BuildPayload wraps the encoded identifier with the application tag.
func BuildPayload(id string) Payload {
	enc := EncodeIdentifier(id)
	data := make([]byte, 0, len(payloadMagic)+len(enc))
	data = append(data, payloadMagic...)
	data = append(data, enc...)
	return Payload{CompanyID: CompanyID, Data: data}
}

// ParsePayload extracts the identifier from manufacturer data. It reports
// false for foreign company codes, a missing tag or an empty identifier.
func ParsePayload(companyID uint16, data []byte) (string, bool) {
	if companyID != CompanyID || !bytes.HasPrefix(data, payloadMagic) {
		return "", false
	}
	id := data[len(payloadMagic):]
	if len(id) == 0 || len(id) > MaxIdentifierBytes {
		return "", false
	}
	return DecodeIdentifier(id), true
}
