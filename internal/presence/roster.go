package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultStaleAfter = 30 * time.Second
	DefaultSweepEvery = 5 * time.Second

	defaultEnrichWorkers = 4
	defaultEnrichQueue   = 64
)

// Candidate is a nearby payer discovered by the Scanner.
type Candidate struct {
	Identifier        string
	DisplayName       string
	ProfileImageURL   string
	SignalStrength    int // dBm
	LastSeen          time.Time
	EnrichmentPending bool
}

// Proximity buckets the candidate's signal strength.
func (c Candidate) Proximity() Proximity {
	return ProximityOf(c.SignalStrength)
}

// Label is the name to show, falling back to a placeholder.
func (c Candidate) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return PlaceholderName(c.Identifier)
}

// PlaceholderName is used when no profile name could be fetched.
func PlaceholderName(identifier string) string {
	return "User " + identifier
}

// Profile is the human readable data attached to a candidate.
type Profile struct {
	DisplayName string
	ImageURL    string
}

// Enricher looks up profile data for an identifier.
type Enricher interface {
	Enrich(ctx context.Context, identifier string) (Profile, error)
}

// RosterOption configures a Roster.
type RosterOption func(*Roster)

// WithStaleAfter sets how long a candidate survives without a sighting.
func WithStaleAfter(d time.Duration) RosterOption {
	return func(r *Roster) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RosterOption {
	return func(r *Roster) {
		if now != nil {
			r.now = now
		}
	}
}

// WithEnrichWorkers sets the enrichment pool size.
func WithEnrichWorkers(n int) RosterOption {
	return func(r *Roster) {
		if n > 0 {
			r.workers = n
		}
	}
}

// Roster is the deduplicated set of nearby candidates keyed by identifier.
// Every mutation goes through mu.
type Roster struct {
	enricher   Enricher
	log        *slog.Logger
	staleAfter time.Duration
	now        func() time.Time
	workers    int

	mu      sync.Mutex
	entries map[string]*Candidate // GUARDED_BY(mu)

	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan string
	qmu     sync.Mutex
	qclosed bool
	wg      sync.WaitGroup

	watch *watchers[[]Candidate]
}

// NewRoster creates an empty roster and starts its enrichment workers.
// Close releases them.
func NewRoster(enricher Enricher, log *slog.Logger, opts ...RosterOption) *Roster {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Roster{
		enricher:   enricher,
		log:        log,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		workers:    defaultEnrichWorkers,
		entries:    make(map[string]*Candidate),
		ctx:        ctx,
		cancel:     cancel,
		queue:      make(chan string, defaultEnrichQueue),
		watch:      newWatchers[[]Candidate](),
	}
	for _, o := range opts {
		o(r)
	}
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.enrichWorker()
	}
	return r
}

// Observe records a sighting of identifier. It reports whether the
// identifier was new. Sightings older than the stored one are ignored.
func (r *Roster) Observe(identifier string, rssi int, at time.Time) bool {
	r.mu.Lock()
	c, ok := r.entries[identifier]
	switch {
	case !ok:
		r.entries[identifier] = &Candidate{
			Identifier:        identifier,
			SignalStrength:    rssi,
			LastSeen:          at,
			EnrichmentPending: true,
		}
	case at.Before(c.LastSeen):
		r.mu.Unlock()
		return false
	default:
		c.SignalStrength = rssi
		c.LastSeen = at
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.watch.publish(snap)
	if !ok {
		r.log.Debug("candidate discovered", "identifier", identifier, "rssi", rssi)
		r.enqueue(identifier)
	}
	return !ok
}

// Evict removes candidates last seen more than the stale interval before
// now and republishes the roster. It returns the number removed.
func (r *Roster) Evict(now time.Time) int {
	r.mu.Lock()
	removed := 0
	for id, c := range r.entries {
		if now.Sub(c.LastSeen) > r.staleAfter {
			delete(r.entries, id)
			removed++
		}
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.watch.publish(snap)
	return removed
}

// RunEvictor calls Evict every interval until ctx is done.
func (r *Roster) RunEvictor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(r.now()); n > 0 {
				r.log.Debug("evicted stale candidates", "count", n)
			}
		}
	}
}

// Snapshot returns the candidates ordered by descending signal strength,
// ties broken by ascending identifier.
func (r *Roster) Snapshot() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Get returns one candidate.
func (r *Roster) Get(identifier string) (Candidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[identifier]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Len returns the number of candidates.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Subscribe delivers the sorted roster after every change.
func (r *Roster) Subscribe() (<-chan []Candidate, func()) {
	return r.watch.subscribe()
}

// Close stops the enrichment workers. Pending lookups are abandoned.
func (r *Roster) Close() {
	r.cancel()

	r.qmu.Lock()
	if r.qclosed {
		r.qmu.Unlock()
		return
	}
	r.qclosed = true
	close(r.queue)
	r.qmu.Unlock()

	r.wg.Wait()
}

func (r *Roster) snapshotLocked() []Candidate {
	out := make([]Candidate, 0, len(r.entries))
	for _, c := range r.entries {
		out = append(out, *c)
	}
	SortCandidates(out)
	return out
}

// SortCandidates orders closest first, then by identifier.
func SortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].SignalStrength != cs[j].SignalStrength {
			return cs[i].SignalStrength > cs[j].SignalStrength
		}
		return cs[i].Identifier < cs[j].Identifier
	})
}

func (r *Roster) enqueue(identifier string) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.qclosed {
		return
	}
	select {
	case r.queue <- identifier:
	default:
		r.log.Warn("enrichment queue full, applying backpressure", "identifier", identifier)
		r.queue <- identifier
	}
}

func (r *Roster) enrichWorker() {
	defer r.wg.Done()
	for id := range r.queue {
		r.applyProfile(id, r.lookup(id))
	}
}

func (r *Roster) lookup(identifier string) Profile {
	if r.enricher == nil {
		return Profile{DisplayName: PlaceholderName(identifier)}
	}
	p, err := r.enricher.Enrich(r.ctx, identifier)
	if err != nil {
		r.log.Warn("enrich candidate", "identifier", identifier, "error", err)
		return Profile{DisplayName: PlaceholderName(identifier)}
	}
	if p.DisplayName == "" {
		p.DisplayName = PlaceholderName(identifier)
	}
	return p
}

func (r *Roster) applyProfile(identifier string, p Profile) {
	r.mu.Lock()
	c, ok := r.entries[identifier]
	if !ok {
		// Evicted while the lookup was in flight.
		r.mu.Unlock()
		return
	}
	c.DisplayName = p.DisplayName
	c.ProfileImageURL = p.ImageURL
	c.EnrichmentPending = false
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.watch.publish(snap)
}
