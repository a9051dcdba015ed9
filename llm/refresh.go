// Periodic model-catalog refresh.
//
// The refresher re-queries each credentialed provider's model catalog on
// a fixed interval and opportunistically upgrades to a newer variant of
// the same model family. Runs are single-flight: a refresh requested
// while one is in progress is dropped, not queued.

package llm

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultRefreshInterval is how often catalogs are re-fetched.
	DefaultRefreshInterval = 24 * time.Hour

	// DefaultRefreshDelay lets the process settle before the first run.
	DefaultRefreshDelay = 2 * time.Minute
)

// versionSegment matches embedded version tokens like "-4", "-3.5" or
// "-20250514" inside a model identifier.
var versionSegment = regexp.MustCompile(`-\d+(?:\.\d+)*`)

// firstNumber extracts the first embedded number for version comparison.
// Best-effort: "3.10" parses below "3.9". Acceptable because upgrades
// only ever move to a capability-superset model.
var firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Refresher periodically refreshes provider model catalogs.
type Refresher struct {
	registry *Registry
	interval time.Duration
	delay    time.Duration
	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRefresher creates a refresher over the given registry with default
// timing.
func NewRefresher(registry *Registry) *Refresher {
	return &Refresher{
		registry: registry,
		interval: DefaultRefreshInterval,
		delay:    DefaultRefreshDelay,
	}
}

// WithTiming overrides the refresh interval and initial delay.
func (r *Refresher) WithTiming(interval, delay time.Duration) *Refresher {
	r.interval = interval
	r.delay = delay
	return r
}

// Start launches the background refresh loop. Stop shuts it down
// deterministically; starting twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.RefreshAll(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RefreshAll(ctx)
			}
		}
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

// RefreshAll refreshes every credentialed provider's catalog and applies
// the upgrade heuristic. Single-flight: returns false when a run is
// already in progress. A failure for one provider is logged and does not
// affect the others.
func (r *Refresher) RefreshAll(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	defer r.running.Store(false)

	for _, p := range r.registry.Providers() {
		if !p.HasValidAPIKey() {
			continue
		}
		if err := r.refreshProvider(ctx, p, true); err != nil {
			log.Printf("model refresh: %s: %v", p.Name(), err)
		}
		if ctx.Err() != nil {
			return true
		}
	}
	return true
}

// RefreshProvider re-fetches a single provider's catalog without
// applying the upgrade heuristic (manual refresh).
func (r *Refresher) RefreshProvider(ctx context.Context, name string) error {
	p, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown provider: %q", name)
	}
	return r.refreshProvider(ctx, p, false)
}

func (r *Refresher) refreshProvider(ctx context.Context, p Provider, upgrade bool) error {
	catalog, err := p.FetchAvailableModels(ctx)
	if err != nil {
		return fmt.Errorf("fetch models: %w", err)
	}
	if !upgrade {
		return nil
	}

	current := p.CurrentModel()
	best, ok := pickUpgrade(current, catalog)
	if !ok || best.ID == current.ID {
		return nil
	}
	if p.SetModel(best.ID) {
		log.Printf("model refresh: %s: upgraded %s -> %s", p.Name(), current.ID, best.ID)
	}
	return nil
}

// pickUpgrade chooses a strictly-better same-family model from the
// catalog: an id containing "latest" wins; otherwise the highest
// embedded version among entries whose capabilities are a superset of
// the current model's.
func pickUpgrade(current ModelInfo, catalog []ModelInfo) (ModelInfo, bool) {
	family := modelFamily(current.ID)
	if family == "" {
		return ModelInfo{}, false
	}

	var best ModelInfo
	bestVersion := modelVersion(current.ID)
	found := false

	for _, m := range catalog {
		if modelFamily(m.ID) != family {
			continue
		}
		if strings.Contains(m.ID, "latest") {
			return m, true
		}
		if !capabilitySuperset(m, current) {
			continue
		}
		if v := modelVersion(m.ID); v > bestVersion {
			best = m
			bestVersion = v
			found = true
		}
	}
	return best, found
}

// modelFamily derives a base model name: provider-path prefixes and a
// trailing "-latest" are removed, then version segments are stripped.
// "gpt-4-turbo" and "gpt-4-turbo-latest" share the family "gpt-turbo".
func modelFamily(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	id = strings.TrimSuffix(id, "-latest")
	return versionSegment.ReplaceAllString(id, "")
}

// modelVersion extracts the first embedded number of an identifier,
// or zero when none is present.
func modelVersion(id string) float64 {
	match := firstNumber.FindString(id)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}

// capabilitySuperset reports whether candidate covers everything the
// current model does: tool calls, vision and context length.
func capabilitySuperset(candidate, current ModelInfo) bool {
	if current.SupportsToolCalls && !candidate.SupportsToolCalls {
		return false
	}
	if current.SupportsVision && !candidate.SupportsVision {
		return false
	}
	return candidate.ContextLength >= current.ContextLength
}
