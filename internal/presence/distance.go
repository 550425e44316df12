package presence

// Proximity is a coarse distance bucket derived from RSSI.
type Proximity int

const (
	VeryClose Proximity = iota
	Close
	Nearby
	Far
	VeryFar
)

func (p Proximity) String() string {
	switch p {
	case VeryClose:
		return "very close"
	case Close:
		return "close"
	case Nearby:
		return "nearby"
	case Far:
		return "far"
	default:
		return "very far"
	}
}

// ProximityOf buckets a signal strength in dBm.
func ProximityOf(rssi int) Proximity {
	switch {
	case rssi >= -50:
		return VeryClose
	case rssi >= -60:
		return Close
	case rssi >= -70:
		return Nearby
	case rssi >= -80:
		return Far
	default:
		return VeryFar
	}
}
