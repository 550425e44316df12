package presence

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle position of a Broadcaster or Scanner.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateBroadcasting
	StateScanning
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateBroadcasting:
		return "broadcasting"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason names why a radio role ended up in StateError.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMissingPermission   Reason = "missing_permission"
	ReasonRadioDisabled       Reason = "radio_disabled"
	ReasonMissingIdentifier   Reason = "missing_identifier"
	ReasonUnsupportedHardware Reason = "unsupported_hardware"

	// Platform-reported failures.
	ReasonAlreadyStarted      Reason = "already_started"
	ReasonPayloadTooLarge     Reason = "payload_too_large"
	ReasonUnsupported         Reason = "unsupported"
	ReasonInternal            Reason = "internal_error"
	ReasonResourcesExhausted  Reason = "resources_exhausted"
	ReasonRegistrationFailed  Reason = "registration_failed"
	ReasonHardwareUnavailable Reason = "hardware_unavailable"
)

// Message returns the text shown to the operator.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonMissingPermission:
		return "Bluetooth permissions are not granted"
	case ReasonRadioDisabled:
		return "Bluetooth is turned off"
	case ReasonMissingIdentifier:
		return "No account identifier is set"
	case ReasonUnsupportedHardware:
		return "This device does not support Bluetooth LE"
	case ReasonAlreadyStarted:
		return "Already started"
	case ReasonPayloadTooLarge:
		return "Advertisement data is too large"
	case ReasonUnsupported:
		return "Feature not supported by this device"
	case ReasonInternal:
		return "Internal Bluetooth error"
	case ReasonResourcesExhausted:
		return "Too many advertisers are active"
	case ReasonRegistrationFailed:
		return "Could not register the scanner"
	case ReasonHardwareUnavailable:
		return "Bluetooth hardware resources are unavailable"
	default:
		return string(r)
	}
}

// Status is a snapshot of a role's state machine.
type Status struct {
	State  State
	Reason Reason
	Detail string
	At     time.Time
}

func (s Status) String() string {
	if s.State == StateError {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return s.State.String()
}

// watchers fans values out to subscribers. Each subscriber keeps only the
// latest value; slow readers never block the publisher.
type watchers[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

func newWatchers[T any]() *watchers[T] {
	return &watchers[T]{subs: make(map[int]chan T)}
}

func (w *watchers[T]) subscribe() (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.next
	w.next++
	ch := make(chan T, 1)
	w.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
	return ch, cancel
}

func (w *watchers[T]) publish(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
