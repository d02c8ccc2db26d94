package health

import (
	"context"
	"sync"
	"time"

	"aivisibility/internal/models"
	"aivisibility/internal/providers"
	"aivisibility/internal/utils"
)

// UnknownModelPolicy decides what IsHealthy reports for a model that has
// never been probed.
type UnknownModelPolicy int

const (
	// AssumeHealthy treats unprobed models as available. This is the
	// deliberate default: failing closed would deadlock routing at cold
	// start, before the first CheckAll has run. The trade-off is that a
	// consistently-down provider is not noticed until its first probe.
	AssumeHealthy UnknownModelPolicy = iota

	// AssumeUnhealthy fails closed. Not used by the default wiring; kept
	// so the policy is a visible, swappable decision rather than an
	// accidental fallthrough.
	AssumeUnhealthy
)

// DefaultProbeTimeout bounds each health probe request.
const DefaultProbeTimeout = 10 * time.Second

// ModelHealth pairs a model key with its probe record.
type ModelHealth struct {
	Key    string
	Record models.HealthRecord
}

// Monitor owns the process-wide health cache. It is an injectable value,
// not a package singleton, so tests get a fresh instance per run.
//
// The cache has no TTL of its own: staleness is bounded only by how often
// callers invoke CheckAll (process start, or the admin trigger). That is a
// documented property of the design, not a bug.
type Monitor struct {
	registry *providers.Registry
	policy   UnknownModelPolicy
	timeout  time.Duration
	logger   *utils.Logger

	mu            sync.RWMutex
	records       map[string]models.HealthRecord
	lastCheckedAt time.Time
}

// NewMonitor creates a monitor with an empty cache.
func NewMonitor(registry *providers.Registry) *Monitor {
	return &Monitor{
		registry: registry,
		policy:   AssumeHealthy,
		timeout:  DefaultProbeTimeout,
		logger:   utils.NewLogger("health"),
		records:  make(map[string]models.HealthRecord),
	}
}

// SetProbeTimeout overrides the per-probe deadline (tests).
func (m *Monitor) SetProbeTimeout(d time.Duration) { m.timeout = d }

// CheckAll probes every registered model once and replaces the cache
// wholesale. Deprecated models are marked unhealthy without a network
// call. Probe failures never escape; they land in the record's Error.
func (m *Monitor) CheckAll(ctx context.Context) map[string]models.HealthRecord {
	descriptors := m.registry.Models()
	now := time.Now()

	fresh := make(map[string]models.HealthRecord, len(descriptors))
	var freshMu sync.Mutex
	var wg sync.WaitGroup

	for _, desc := range descriptors {
		if desc.Deprecated {
			freshMu.Lock()
			fresh[desc.Key] = models.HealthRecord{
				Healthy:       false,
				LastCheckedAt: now,
				Error:         "model is deprecated",
			}
			freshMu.Unlock()
			continue
		}

		wg.Add(1)
		go func(desc models.ModelDescriptor) {
			defer wg.Done()
			record := m.probe(ctx, desc)
			freshMu.Lock()
			fresh[desc.Key] = record
			freshMu.Unlock()
		}(desc)
	}
	wg.Wait()

	m.mu.Lock()
	m.records = fresh
	m.lastCheckedAt = now
	m.mu.Unlock()

	healthy := 0
	for _, rec := range fresh {
		if rec.Healthy {
			healthy++
		}
	}
	m.logger.Info("Health check complete", "models", len(fresh), "healthy", healthy)

	out := make(map[string]models.HealthRecord, len(fresh))
	for k, v := range fresh {
		out[k] = v
	}
	return out
}

func (m *Monitor) probe(ctx context.Context, desc models.ModelDescriptor) models.HealthRecord {
	provider, _, err := m.registry.Resolve(desc.Key)
	if err != nil {
		return models.HealthRecord{Healthy: false, LastCheckedAt: time.Now(), Error: err.Error()}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	_, err = provider.Invoke(probeCtx, desc.Key, desc.ProbePrompt)
	elapsed := time.Since(start).Milliseconds()

	record := models.HealthRecord{LastCheckedAt: time.Now()}
	if err != nil {
		pe := providers.AsProviderError(provider.Name(), err)
		record.Error = pe.Error()
		if pe.Kind == providers.KindRateLimited {
			record.IsRateLimited = true
			secs := int(pe.RetryAfter / time.Second)
			if secs == 0 {
				secs = int(providers.DefaultRateLimitBackoff / time.Second)
			}
			record.RetryAfterSeconds = &secs
		}
		m.logger.Warn("Model probe failed", "model", desc.Key, "kind", pe.Kind, "error", pe.Message)
		return record
	}

	record.Healthy = true
	record.ResponseTimeMs = &elapsed
	return record
}

// IsHealthy resolves in order: exact cache key, alias-normalized key,
// then the unknown-model policy. A rate-limited model counts as healthy
// again once its retry-after hint has elapsed.
func (m *Monitor) IsHealthy(nameOrKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[nameOrKey]
	if !ok {
		record, ok = m.records[m.registry.CanonicalKey(nameOrKey)]
	}
	if !ok {
		return m.policy == AssumeHealthy
	}

	if record.Healthy {
		return true
	}
	if record.IsRateLimited && record.RetryAfterSeconds != nil {
		wait := time.Duration(*record.RetryAfterSeconds) * time.Second
		return time.Since(record.LastCheckedAt) >= wait
	}
	return false
}

// GetHealthy lists healthy models, optionally filtered by provider. Order
// follows the registry's registration order; callers needing routing
// priority apply their own candidate list.
func (m *Monitor) GetHealthy(provider string) []ModelHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ModelHealth
	for _, desc := range m.registry.Models() {
		if provider != "" && desc.Provider != provider {
			continue
		}
		record, ok := m.records[desc.Key]
		if !ok || !record.Healthy {
			continue
		}
		out = append(out, ModelHealth{Key: desc.Key, Record: record})
	}
	return out
}

// Snapshot returns the cache for the diagnostic endpoint.
func (m *Monitor) Snapshot() models.HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.HealthRecord, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return models.HealthSnapshot{LastCheckedAt: m.lastCheckedAt, Models: out}
}
