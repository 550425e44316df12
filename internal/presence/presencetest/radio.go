// Package presencetest provides an in-memory presence.Radio for tests.
package presencetest

import (
	"errors"
	"sync"
	"time"

	"github.com/suspectuso/proxipay/internal/presence"
)

var errNotScanning = errors.New("not scanning")

// FakeRadio simulates a Bluetooth LE adapter. It behaves like the platform:
// starting an already running role fails with the already-started code.
type FakeRadio struct {
	mu sync.Mutex

	supported bool
	enabled   bool

	advertising bool
	payload     presence.Payload
	advErr      error

	scanning bool
	filter   presence.ScanFilter
	handler  func(presence.Sighting)
	scanErr  error

	advertiseCalls int
	scanCalls      int
	stopAdvCalls   int
	stopScanCalls  int
}

// NewFakeRadio returns a supported, enabled radio.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{supported: true, enabled: true}
}

func (f *FakeRadio) SetSupported(v bool) {
	f.mu.Lock()
	f.supported = v
	f.mu.Unlock()
}

func (f *FakeRadio) SetEnabled(v bool) {
	f.mu.Lock()
	f.enabled = v
	f.mu.Unlock()
}

// FailAdvertise makes the next StartAdvertising calls fail with code.
func (f *FakeRadio) FailAdvertise(code presence.AdvertiseFailure) {
	f.mu.Lock()
	f.advErr = &presence.AdvertiseError{Code: code}
	f.mu.Unlock()
}

// FailScan makes the next StartScan calls fail with code.
func (f *FakeRadio) FailScan(code presence.ScanFailure) {
	f.mu.Lock()
	f.scanErr = &presence.ScanError{Code: code}
	f.mu.Unlock()
}

func (f *FakeRadio) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported
}

func (f *FakeRadio) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *FakeRadio) StartAdvertising(p presence.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertiseCalls++
	if f.advErr != nil {
		return f.advErr
	}
	if f.advertising {
		return &presence.AdvertiseError{Code: presence.AdvertiseAlreadyStarted}
	}
	f.advertising = true
	f.payload = p
	return nil
}

func (f *FakeRadio) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAdvCalls++
	f.advertising = false
	f.payload = presence.Payload{}
	return nil
}

func (f *FakeRadio) StartScan(filter presence.ScanFilter, onSighting func(presence.Sighting)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	if f.scanErr != nil {
		return f.scanErr
	}
	if f.scanning {
		return &presence.ScanError{Code: presence.ScanAlreadyStarted}
	}
	f.scanning = true
	f.filter = filter
	f.handler = onSighting
	return nil
}

func (f *FakeRadio) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopScanCalls++
	if !f.scanning {
		return errNotScanning
	}
	f.scanning = false
	f.handler = nil
	return nil
}

// Emit delivers a sighting to the active scan if it passes the filter.
// It reports whether the sighting was delivered.
func (f *FakeRadio) Emit(sg presence.Sighting) bool {
	f.mu.Lock()
	handler, filter, scanning := f.handler, f.filter, f.scanning
	f.mu.Unlock()

	if !scanning || handler == nil || sg.CompanyID != filter.CompanyID {
		return false
	}
	handler(sg)
	return true
}

// EmitIdentifier emits a well formed advertisement for identifier.
func (f *FakeRadio) EmitIdentifier(identifier string, rssi int, at time.Time) bool {
	p := presence.BuildPayload(identifier)
	return f.Emit(presence.Sighting{CompanyID: p.CompanyID, Data: p.Data, RSSI: rssi, At: at})
}

// Advertising returns the payload currently on air.
func (f *FakeRadio) Advertising() (presence.Payload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload, f.advertising
}

// Scanning reports whether a scan is registered.
func (f *FakeRadio) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// Calls returns how many times each platform entry point ran.
func (f *FakeRadio) Calls() (startAdv, stopAdv, startScan, stopScan int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advertiseCalls, f.stopAdvCalls, f.scanCalls, f.stopScanCalls
}
