package presencetest

import (
	"context"
	"errors"
	"sync"

	"github.com/suspectuso/proxipay/internal/presence"
)

var ErrUnknownProfile = errors.New("unknown profile")

// FakeEnricher returns canned profiles and records lookups.
type FakeEnricher struct {
	mu       sync.Mutex
	profiles map[string]presence.Profile
	err      error
	calls    map[string]int
	block    chan struct{}
}

// NewFakeEnricher creates an enricher with no profiles. Unknown identifiers
// fail with ErrUnknownProfile.
func NewFakeEnricher() *FakeEnricher {
	return &FakeEnricher{
		profiles: make(map[string]presence.Profile),
		calls:    make(map[string]int),
	}
}

func (e *FakeEnricher) Set(identifier string, p presence.Profile) {
	e.mu.Lock()
	e.profiles[identifier] = p
	e.mu.Unlock()
}

// FailAll makes every lookup return err.
func (e *FakeEnricher) FailAll(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Block holds lookups until the returned release function is called.
func (e *FakeEnricher) Block() func() {
	ch := make(chan struct{})
	e.mu.Lock()
	e.block = ch
	e.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (e *FakeEnricher) Enrich(ctx context.Context, identifier string) (presence.Profile, error) {
	e.mu.Lock()
	e.calls[identifier]++
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return presence.Profile{}, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return presence.Profile{}, e.err
	}
	p, ok := e.profiles[identifier]
	if !ok {
		return presence.Profile{}, ErrUnknownProfile
	}
	return p, nil
}

// Calls returns how many lookups were made for identifier.
func (e *FakeEnricher) Calls(identifier string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[identifier]
}
