// Package ble implements presence.Radio on the host Bluetooth LE adapter.
package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/suspectuso/proxipay/internal/presence"
)

// scanSettle is how long StartScan waits for the adapter to reject a scan
// before reporting it as running.
const scanSettle = 200 * time.Millisecond

// scanStopWait bounds how long StopScan waits for the adapter to release
// the previous scan.
const scanStopWait = 2 * time.Second

var errNoAdapter = errors.New("no bluetooth adapter")

// adapter is the subset of *bluetooth.Adapter the driver uses.
type adapter interface {
	Enable() error
	Advertise(companyID uint16, data []byte) error
	StopAdvertise() error
	Scan(func(bluetooth.ScanResult)) error
	StopScan() error
}

// Driver is a presence.Radio backed by tinygo.org/x/bluetooth.
type Driver struct {
	adapter adapter
	log     *slog.Logger

	mu          sync.Mutex
	enabled     bool
	unsupported bool
	advertising bool
	scanning    bool
	scanGen     uint64
	scanDone    chan struct{}
	onSighting  func(presence.Sighting)
	filter      presence.ScanFilter
}

// NewDriver wraps the default host adapter.
func NewDriver(log *slog.Logger) *Driver {
	return newDriver(&hostAdapter{a: bluetooth.DefaultAdapter}, log)
}

func newDriver(a adapter, log *slog.Logger) *Driver {
	return &Driver{adapter: a, log: log}
}

// Supported reports whether an adapter exists. It powers the adapter on
// first use.
func (d *Driver) Supported() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableLocked()
	return !d.unsupported
}

// Enabled reports whether the adapter is powered and usable.
func (d *Driver) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableLocked()
	return d.enabled
}

func (d *Driver) enableLocked() {
	if d.enabled || d.unsupported {
		return
	}
	err := d.adapter.Enable()
	switch {
	case err == nil:
		d.enabled = true
	case isNoAdapter(err):
		d.log.Warn("bluetooth adapter not found", "error", err)
		d.unsupported = true
	default:
		d.log.Warn("enable bluetooth adapter", "error", err)
	}
}

func (d *Driver) StartAdvertising(p presence.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.advertising {
		return &presence.AdvertiseError{Code: presence.AdvertiseAlreadyStarted}
	}
	if err := d.adapter.Advertise(p.CompanyID, p.Data); err != nil {
		return &presence.AdvertiseError{Code: advertiseCode(err), Err: err}
	}
	d.advertising = true
	return nil
}

func (d *Driver) StopAdvertising() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.advertising {
		return nil
	}
	d.advertising = false
	return d.adapter.StopAdvertise()
}

func (d *Driver) StartScan(filter presence.ScanFilter, onSighting func(presence.Sighting)) error {
	d.mu.Lock()
	if d.scanning {
		d.mu.Unlock()
		return &presence.ScanError{Code: presence.ScanAlreadyStarted}
	}
	d.scanning = true
	d.scanGen++
	gen := d.scanGen
	done := make(chan struct{})
	d.scanDone = done
	d.filter = filter
	d.onSighting = onSighting
	d.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		errc <- d.adapter.Scan(d.handleResult)
	}()

	select {
	case err := <-errc:
		close(done)
		d.mu.Lock()
		if d.scanGen == gen {
			d.scanning = false
			d.scanDone = nil
			d.onSighting = nil
		}
		d.mu.Unlock()
		if err == nil {
			return &presence.ScanError{Code: presence.ScanInternalError, Err: errors.New("scan ended immediately")}
		}
		return &presence.ScanError{Code: scanCode(err), Err: err}
	case <-time.After(scanSettle):
	}

	go func() {
		if err := <-errc; err != nil {
			d.log.Warn("scan ended", "error", err)
		}
		close(done)
		d.mu.Lock()
		if d.scanGen == gen {
			d.scanning = false
			d.scanDone = nil
			d.onSighting = nil
		}
		d.mu.Unlock()
	}()
	return nil
}

// StopScan stops the running scan and waits, up to scanStopWait, for the
// adapter to return from it so a new scan can start right away.
func (d *Driver) StopScan() error {
	d.mu.Lock()
	scanning, done := d.scanning, d.scanDone
	d.scanning = false
	d.scanGen++
	d.scanDone = nil
	d.onSighting = nil
	d.mu.Unlock()

	if !scanning {
		return nil
	}
	err := d.adapter.StopScan()
	if done != nil {
		select {
		case <-done:
		case <-time.After(scanStopWait):
			d.log.Warn("adapter still scanning after stop", "waited", scanStopWait)
		}
	}
	return err
}

func (d *Driver) handleResult(r bluetooth.ScanResult) {
	d.mu.Lock()
	cb, filter := d.onSighting, d.filter
	d.mu.Unlock()
	if cb == nil {
		return
	}

	for _, m := range r.ManufacturerData() {
		if m.CompanyID != filter.CompanyID {
			continue
		}
		cb(presence.Sighting{
			Address:   r.Address.String(),
			CompanyID: m.CompanyID,
			Data:      m.Data,
			RSSI:      int(r.RSSI),
			At:        time.Now(),
		})
	}
}

func isNoAdapter(err error) bool {
	if errors.Is(err, errNoAdapter) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such adapter") || strings.Contains(msg, "not found") || strings.Contains(msg, "not supported")
}

// advertiseCode maps platform error text onto advertise failure codes.
func advertiseCode(err error) presence.AdvertiseFailure {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "alreadyexists"), strings.Contains(msg, "already"):
		return presence.AdvertiseAlreadyStarted
	case strings.Contains(msg, "invalidlength"), strings.Contains(msg, "too large"), strings.Contains(msg, "too long"):
		return presence.AdvertiseDataTooLarge
	case strings.Contains(msg, "maximum advertisements"), strings.Contains(msg, "notpermitted"):
		return presence.AdvertiseTooManyAdvertisers
	case strings.Contains(msg, "notsupported"), strings.Contains(msg, "not supported"), strings.Contains(msg, "not implemented"):
		return presence.AdvertiseUnsupported
	default:
		return presence.AdvertiseInternalError
	}
}

// scanCode maps platform error text onto scan failure codes.
func scanCode(err error) presence.ScanFailure {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already"), strings.Contains(msg, "inprogress"):
		return presence.ScanAlreadyStarted
	case strings.Contains(msg, "notauthorized"), strings.Contains(msg, "registration"):
		return presence.ScanRegistrationFailed
	case strings.Contains(msg, "notsupported"), strings.Contains(msg, "not supported"), strings.Contains(msg, "not implemented"):
		return presence.ScanUnsupported
	case strings.Contains(msg, "notready"), strings.Contains(msg, "resources"), strings.Contains(msg, "busy"):
		return presence.ScanOutOfHardwareResources
	default:
		return presence.ScanInternalError
	}
}

// hostAdapter adapts *bluetooth.Adapter.
type hostAdapter struct {
	a   *bluetooth.Adapter
	adv *bluetooth.Advertisement
}

func (h *hostAdapter) Enable() error {
	if h.a == nil {
		return errNoAdapter
	}
	return h.a.Enable()
}

func (h *hostAdapter) Advertise(companyID uint16, data []byte) error {
	if h.adv == nil {
		h.adv = h.a.DefaultAdvertisement()
	}
	err := h.adv.Configure(bluetooth.AdvertisementOptions{
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: companyID, Data: data},
		},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	return h.adv.Start()
}

func (h *hostAdapter) StopAdvertise() error {
	if h.adv == nil {
		return nil
	}
	return h.adv.Stop()
}

func (h *hostAdapter) Scan(cb func(bluetooth.ScanResult)) error {
	return h.a.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		cb(r)
	})
}

func (h *hostAdapter) StopScan() error {
	return h.a.StopScan()
}
