// Provider registry and failover control.
//
// The registry owns the configured provider set, their initialization
// status and their failure bookkeeping. Active-provider selection and
// failure marking interleave with concurrent send calls, so every
// read-then-write runs under a single mutex held only for the duration
// of the decision, never across a network call.

package llm

import (
	"context"
	"sync"
	"time"
)

// DefaultFailureBackoff is how long a failed provider stays ineligible
// for selection. Staleness is computed lazily on each selection; there
// is no expiry sweep.
const DefaultFailureBackoff = 5 * time.Minute

// Registry holds the configured providers and their live/failed status.
type Registry struct {
	mu          sync.Mutex
	providers   []Provider
	initialized map[string]bool
	failures    map[string]time.Time
	active      Provider
	backoff     time.Duration
	now         func() time.Time
}

// NewRegistry creates a registry over the given providers. Order is
// significant: the first configured provider is the selection of last
// resort.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers:   providers,
		initialized: make(map[string]bool),
		failures:    make(map[string]time.Time),
		backoff:     DefaultFailureBackoff,
		now:         time.Now,
	}
}

// WithBackoff overrides the failure backoff window.
func (r *Registry) WithBackoff(d time.Duration) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = d
	return r
}

// Initialize asks every configured provider to initialize and selects
// the initial active provider. Initialization failures do not remove a
// provider; it is simply skipped for active selection. The returned map
// carries the per-provider errors for callers that want to report them.
func (r *Registry) Initialize(ctx context.Context) map[string]error {
	errs := make(map[string]error)

	// Initialization hits the network for some providers; run it
	// outside the selection lock.
	results := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		if err := p.Initialize(ctx); err != nil {
			errs[p.Name()] = err
			results[p.Name()] = false
			continue
		}
		results[p.Name()] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, ok := range results {
		r.initialized[name] = ok
	}
	r.selectActiveLocked()
	return errs
}

// Active returns the currently active provider. It returns
// ErrNoProvider only when the registry holds no providers at all.
func (r *Registry) Active() (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		return nil, ErrNoProvider
	}
	if r.active == nil {
		r.selectActiveLocked()
	}
	return r.active, nil
}

// MarkFailed records a failure timestamp for the named provider. If it
// was the active provider, active selection re-runs immediately.
func (r *Registry) MarkFailed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = r.now()
	if r.active != nil && r.active.Name() == name {
		r.selectActiveLocked()
	}
}

// Fallback returns the first eligible provider that is not the active
// one, or nil when none exists.
func (r *Registry) Fallback() Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if r.active != nil && p.Name() == r.active.Name() {
			continue
		}
		if r.eligibleLocked(p) {
			return p
		}
	}
	return nil
}

// VisionProvider returns a provider able to serve an image request:
// the active provider when it qualifies, otherwise the first eligible
// vision-capable provider. Exhaustion is ErrNoVisionProvider, distinct
// from the generic no-provider case.
func (r *Registry) VisionProvider() (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		return nil, ErrNoProvider
	}
	if r.active != nil && r.active.SupportsVision() && r.eligibleLocked(r.active) {
		return r.active, nil
	}
	for _, p := range r.providers {
		if p.SupportsVision() && r.eligibleLocked(p) {
			return p, nil
		}
	}
	return nil, ErrNoVisionProvider
}

// VisionFallback returns an eligible vision-capable provider other than
// the given one, or nil.
func (r *Registry) VisionFallback(exclude string) Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.Name() == exclude {
			continue
		}
		if p.SupportsVision() && r.eligibleLocked(p) {
			return p
		}
	}
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// SetActive manually overrides the active provider.
func (r *Registry) SetActive(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.Name() == name {
			r.active = p
			return true
		}
	}
	return false
}

// Providers returns the configured providers in order.
func (r *Registry) Providers() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// selectActiveLocked re-runs active selection. Preference order:
// initialized + credentialed + not backed off, then credentialed
// regardless of backoff, then the first configured provider.
// Caller holds r.mu.
func (r *Registry) selectActiveLocked() {
	for _, p := range r.providers {
		if r.initialized[p.Name()] && p.HasValidAPIKey() && !r.backedOffLocked(p.Name()) {
			r.active = p
			return
		}
	}
	for _, p := range r.providers {
		if p.HasValidAPIKey() {
			r.active = p
			return
		}
	}
	if len(r.providers) > 0 {
		r.active = r.providers[0]
		return
	}
	r.active = nil
}

// eligibleLocked reports whether a provider may serve requests:
// credentialed and outside its backoff window. Caller holds r.mu.
func (r *Registry) eligibleLocked(p Provider) bool {
	return p.HasValidAPIKey() && !r.backedOffLocked(p.Name())
}

// backedOffLocked reports whether the provider has a failure record
// younger than the backoff window. Caller holds r.mu.
func (r *Registry) backedOffLocked(name string) bool {
	failedAt, ok := r.failures[name]
	if !ok {
		return false
	}
	return r.now().Sub(failedAt) < r.backoff
}
