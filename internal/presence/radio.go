package presence

import (
	"errors"
	"fmt"
	"time"
)

// Sighting is one received advertisement that passed the scan filter.
type Sighting struct {
	Address   string
	CompanyID uint16
	Data      []byte
	RSSI      int
	At        time.Time
}

// ScanFilter restricts delivered sightings to a manufacturer code.
type ScanFilter struct {
	CompanyID uint16
}

// Radio is the platform Bluetooth LE surface used by Broadcaster and Scanner.
//
// StartScan registers onSighting and returns once the scan is running;
// sightings are delivered on driver goroutines until StopScan.
type Radio interface {
	Supported() bool
	Enabled() bool
	StartAdvertising(p Payload) error
	StopAdvertising() error
	StartScan(filter ScanFilter, onSighting func(Sighting)) error
	StopScan() error
}

// AdvertiseFailure is a platform advertising failure code.
type AdvertiseFailure int

const (
	AdvertiseAlreadyStarted AdvertiseFailure = iota + 1
	AdvertiseDataTooLarge
	AdvertiseUnsupported
	AdvertiseInternalError
	AdvertiseTooManyAdvertisers
)

func (f AdvertiseFailure) String() string {
	switch f {
	case AdvertiseAlreadyStarted:
		return "already started"
	case AdvertiseDataTooLarge:
		return "data too large"
	case AdvertiseUnsupported:
		return "unsupported"
	case AdvertiseInternalError:
		return "internal error"
	case AdvertiseTooManyAdvertisers:
		return "too many advertisers"
	default:
		return fmt.Sprintf("advertise failure %d", int(f))
	}
}

// AdvertiseError is returned by Radio.StartAdvertising.
type AdvertiseError struct {
	Code AdvertiseFailure
	Err  error
}

func (e *AdvertiseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advertise: %s: %v", e.Code, e.Err)
	}
	return "advertise: " + e.Code.String()
}

func (e *AdvertiseError) Unwrap() error { return e.Err }

// ScanFailure is a platform scan failure code.
type ScanFailure int

const (
	ScanAlreadyStarted ScanFailure = iota + 1
	ScanRegistrationFailed
	ScanUnsupported
	ScanInternalError
	ScanOutOfHardwareResources
)

func (f ScanFailure) String() string {
	switch f {
	case ScanAlreadyStarted:
		return "already started"
	case ScanRegistrationFailed:
		return "application registration failed"
	case ScanUnsupported:
		return "unsupported"
	case ScanInternalError:
		return "internal error"
	case ScanOutOfHardwareResources:
		return "out of hardware resources"
	default:
		return fmt.Sprintf("scan failure %d", int(f))
	}
}

// ScanError is returned by Radio.StartScan.
type ScanError struct {
	Code ScanFailure
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan: %s: %v", e.Code, e.Err)
	}
	return "scan: " + e.Code.String()
}

func (e *ScanError) Unwrap() error { return e.Err }

func advertiseReason(err error) Reason {
	var ae *AdvertiseError
	if !errors.As(err, &ae) {
		return ReasonInternal
	}
	switch ae.Code {
	case AdvertiseAlreadyStarted:
		return ReasonAlreadyStarted
	case AdvertiseDataTooLarge:
		return ReasonPayloadTooLarge
	case AdvertiseUnsupported:
		return ReasonUnsupported
	case AdvertiseTooManyAdvertisers:
		return ReasonResourcesExhausted
	default:
		return ReasonInternal
	}
}

func scanReason(err error) Reason {
	var se *ScanError
	if !errors.As(err, &se) {
		return ReasonInternal
	}
	switch se.Code {
	case ScanAlreadyStarted:
		return ReasonAlreadyStarted
	case ScanRegistrationFailed:
		return ReasonRegistrationFailed
	case ScanUnsupported:
		return ReasonUnsupported
	case ScanOutOfHardwareResources:
		return ReasonHardwareUnavailable
	default:
		return ReasonInternal
	}
}
