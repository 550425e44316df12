package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Broadcaster advertises the account identifier while its owner is active.
type Broadcaster struct {
	radio    Radio
	perms    Permissions
	required []Permission
	log      *slog.Logger
	now      func() time.Time

	// opMu serialises Start and Stop; mu guards the fields below it.
	opMu sync.Mutex

	mu          sync.RWMutex
	status      Status
	payload     *Payload
	gen         uint64
	sessionDone chan struct{}

	watch *watchers[Status]
}

// NewBroadcaster creates a Broadcaster in StateIdle.
func NewBroadcaster(radio Radio, perms Permissions, required []Permission, log *slog.Logger) *Broadcaster {
	b := &Broadcaster{
		radio:    radio,
		perms:    perms,
		required: required,
		log:      log,
		now:      time.Now,
		watch:    newWatchers[Status](),
	}
	b.status = Status{State: StateIdle, At: b.now()}
	return b
}

// Status returns the current state.
func (b *Broadcaster) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Payload returns the payload being advertised, if any.
func (b *Broadcaster) Payload() (Payload, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.payload == nil {
		return Payload{}, false
	}
	return *b.payload, true
}

// Subscribe delivers every subsequent status change. Call cancel when done.
func (b *Broadcaster) Subscribe() (<-chan Status, func()) {
	return b.watch.subscribe()
}

// Start begins advertising identifier. Advertising stops when ctx is
// cancelled or Stop is called, whichever comes first.
//
// Calling Start while already broadcasting is a caller bug: the platform
// rejects it and the Broadcaster ends in Error(AlreadyStarted).
func (b *Broadcaster) Start(ctx context.Context, identifier string) Status {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	switch {
	case !b.radio.Supported():
		return b.fail(ReasonUnsupportedHardware, "")
	case !ensurePermissions(ctx, b.perms, b.required):
		return b.fail(ReasonMissingPermission, "")
	case !b.radio.Enabled():
		return b.fail(ReasonRadioDisabled, "")
	case identifier == "":
		return b.fail(ReasonMissingIdentifier, "")
	}

	b.setStatus(StateStarting, ReasonNone, "")

	payload := BuildPayload(identifier)
	if err := b.radio.StartAdvertising(payload); err != nil {
		b.log.Error("start advertising", "error", err)
		return b.fail(advertiseReason(err), err.Error())
	}

	b.mu.Lock()
	b.payload = &payload
	b.mu.Unlock()

	b.watchOwner(ctx)

	b.log.Info("broadcasting", "identifier", identifier, "bytes", len(payload.Data))
	return b.setStatus(StateBroadcasting, ReasonNone, "")
}

// Stop ends advertising. It is valid in every state and always ends in
// StateStopped.
func (b *Broadcaster) Stop() Status {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return b.stopLocked()
}

func (b *Broadcaster) stopLocked() Status {
	if err := b.radio.StopAdvertising(); err != nil {
		b.log.Debug("stop advertising", "error", err)
	}

	b.mu.Lock()
	b.payload = nil
	if b.sessionDone != nil {
		close(b.sessionDone)
		b.sessionDone = nil
	}
	b.mu.Unlock()

	return b.setStatus(StateStopped, ReasonNone, "")
}

// watchOwner stops this session when ctx ends. A later session is left alone.
func (b *Broadcaster) watchOwner(ctx context.Context) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	done := make(chan struct{})
	b.sessionDone = done
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.opMu.Lock()
			defer b.opMu.Unlock()

			b.mu.RLock()
			current := b.gen == gen && b.sessionDone == done
			b.mu.RUnlock()
			if current {
				b.log.Info("owner closed, stopping broadcast")
				b.stopLocked()
			}
		case <-done:
		}
	}()
}

func (b *Broadcaster) fail(reason Reason, detail string) Status {
	b.log.Warn("broadcast unavailable", "reason", reason)
	return b.setStatus(StateError, reason, detail)
}

func (b *Broadcaster) setStatus(state State, reason Reason, detail string) Status {
	st := Status{State: state, Reason: reason, Detail: detail, At: b.now()}
	b.mu.Lock()
	b.status = st
	b.mu.Unlock()
	b.watch.publish(st)
	return st
}
