package presence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scanner listens for application advertisements and feeds the Roster.
type Scanner struct {
	radio      Radio
	perms      Permissions
	required   []Permission
	roster     *Roster
	log        *slog.Logger
	sweepEvery time.Duration
	now        func() time.Time

	active atomic.Bool

	opMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	gen       uint64
	cancel    context.CancelFunc
	evictDone chan struct{}

	watch *watchers[Status]
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithSweepEvery sets the eviction interval.
func WithSweepEvery(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.sweepEvery = d
		}
	}
}

// WithScannerClock replaces time.Now for sightings that carry no timestamp.
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScanner creates a Scanner in StateIdle.
func NewScanner(radio Radio, perms Permissions, required []Permission, roster *Roster, log *slog.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		radio:      radio,
		perms:      perms,
		required:   required,
		roster:     roster,
		log:        log,
		sweepEvery: DefaultSweepEvery,
		now:        time.Now,
		watch:      newWatchers[Status](),
	}
	for _, o := range opts {
		o(s)
	}
	s.status = Status{State: StateIdle, At: s.now()}
	return s
}

// Roster returns the roster this scanner feeds.
func (s *Scanner) Roster() *Roster {
	return s.roster
}

// Status returns the current state.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe delivers every subsequent status change.
func (s *Scanner) Subscribe() (<-chan Status, func()) {
	return s.watch.subscribe()
}

// Start begins scanning. Scanning and the eviction loop end when ctx is
// cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) Status {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch {
	case !s.radio.Supported():
		return s.fail(ReasonUnsupportedHardware, "")
	case !ensurePermissions(ctx, s.perms, s.required):
		return s.fail(ReasonMissingPermission, "")
	case !s.radio.Enabled():
		return s.fail(ReasonRadioDisabled, "")
	}

	s.setStatus(StateStarting, ReasonNone, "")

	wasActive := s.active.Swap(true)
	if err := s.radio.StartScan(ScanFilter{CompanyID: CompanyID}, s.handleSighting); err != nil {
		s.active.Store(wasActive)
		s.log.Error("start scan", "error", err)
		return s.fail(scanReason(err), err.Error())
	}

	scanCtx, cancel := context.WithCancel(ctx)
	evictDone := make(chan struct{})

	s.mu.Lock()
	if s.cancel != nil {
		// Previous session was never stopped; its evictor gives way.
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.evictDone = evictDone
	s.mu.Unlock()

	go func() {
		defer close(evictDone)
		s.roster.RunEvictor(scanCtx, s.sweepEvery)
	}()
	go s.watchOwner(scanCtx, gen)

	s.log.Info("scanning", "company_id", CompanyID, "sweep_every", s.sweepEvery)
	return s.setStatus(StateScanning, ReasonNone, "")
}

// Stop ends scanning and the eviction loop. The roster is left intact.
func (s *Scanner) Stop() Status {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

func (s *Scanner) stopLocked() Status {
	s.active.Store(false)
	if err := s.radio.StopScan(); err != nil {
		s.log.Debug("stop scan", "error", err)
	}

	s.mu.Lock()
	cancel, evictDone := s.cancel, s.evictDone
	s.cancel, s.evictDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-evictDone
	}
	return s.setStatus(StateStopped, ReasonNone, "")
}

func (s *Scanner) watchOwner(scanCtx context.Context, gen uint64) {
	<-scanCtx.Done()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	current := s.gen == gen && s.cancel != nil
	s.mu.RUnlock()
	if current {
		s.log.Info("owner closed, stopping scan")
		s.stopLocked()
	}
}

func (s *Scanner) handleSighting(sg Sighting) {
	if !s.active.Load() {
		return
	}
	id, ok := ParsePayload(sg.CompanyID, sg.Data)
	if !ok {
		return
	}
	at := sg.At
	if at.IsZero() {
		at = s.now()
	}
	s.roster.Observe(id, sg.RSSI, at)
}

func (s *Scanner) fail(reason Reason, detail string) Status {
	s.log.Warn("scan unavailable", "reason", reason)
	return s.setStatus(StateError, reason, detail)
}

func (s *Scanner) setStatus(state State, reason Reason, detail string) Status {
	st := Status{State: state, Reason: reason, Detail: detail, At: s.now()}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.watch.publish(st)
	return st
}
