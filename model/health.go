package model

import (
	"sync"
	"time"
)

// EndpointHealth is a point-in-time view of one endpoint's recent behavior.
type EndpointHealth struct {
	Available bool `json:"available"`

	LastSuccess time.Time `json:"last_success,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is consecutive failures; any success resets it.
	FailureCount int `json:"failure_count"`

	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig tunes the circuit breaker guarding each endpoint.
type HealthConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit holds before a probe
	// request is let through.
	RecoveryTimeout time.Duration

	// HalfOpenRequests is how many probe requests the half-open state
	// admits.
	HalfOpenRequests int
}

// DefaultHealthConfig trips after a few consecutive failures and probes
// again after half a minute. A chapter draft takes tens of seconds per
// call, so a shorter recovery window would re-probe mid-outage.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// healthState owns the per-endpoint breaker state behind one lock.
type healthState struct {
	mu       sync.RWMutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
	}
}

// status returns the tracked entry for name, creating it on first sight.
// Caller holds h.mu.
func (h *healthState) status(name string) *EndpointHealth {
	st, ok := h.statuses[name]
	if !ok {
		st = &EndpointHealth{Available: true}
		h.statuses[name] = st
	}
	return st
}

func (h *healthState) markSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.status(name)
	st.LastSuccess = time.Now()
	st.FailureCount = 0
	st.Available = true
	st.CircuitOpen = false
}

func (h *healthState) markFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.status(name)
	st.LastFailure = time.Now()
	st.FailureCount++
	if st.FailureCount >= h.config.FailureThreshold {
		st.CircuitOpen = true
		st.CircuitOpenedAt = time.Now()
		st.Available = false
	}
}

func (h *healthState) available(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.statuses[name]
	if !ok || !st.CircuitOpen {
		return true
	}

	// Past the recovery window the circuit is half-open: a probe request
	// goes through and its outcome closes or re-opens the circuit.
	return time.Since(st.CircuitOpenedAt) > h.config.RecoveryTimeout
}

func (h *healthState) get(name string) *EndpointHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.statuses[name]
	if !ok {
		return nil
	}
	dup := *st
	return &dup
}

func (h *healthState) reset(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.statuses, name)
}

// ensureHealth lazily creates the breaker state on first use; a registry
// that never records an outcome does no tracking at all.
func (r *Registry) ensureHealth() *healthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = newHealthState(DefaultHealthConfig())
	}
	return r.health
}

// MarkEndpointSuccess records a completed request and closes the endpoint's
// circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.ensureHealth().markSuccess(name)
}

// MarkEndpointFailure records a failed request. Enough failures in a row
// open the circuit and take the endpoint out of fallback rotation.
func (r *Registry) MarkEndpointFailure(name string) {
	r.ensureHealth().markFailure(name)
}

// IsEndpointAvailable reports whether the endpoint should receive requests.
// A registry with no recorded outcomes treats every endpoint as available.
func (r *Registry) IsEndpointAvailable(name string) bool {
	r.mu.RLock()
	h := r.health
	r.mu.RUnlock()

	if h == nil {
		return true
	}
	return h.available(name)
}

// GetEndpointHealth returns a copy of the endpoint's breaker state, or nil
// when nothing has been recorded for it.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	r.mu.RLock()
	h := r.health
	r.mu.RUnlock()

	if h == nil {
		return nil
	}
	return h.get(name)
}

// GetAvailableFallbackChain filters a capability's fallback chain down to
// endpoints whose circuits are closed or probing. When every endpoint is
// down, the full chain comes back and the client takes its chances.
func (r *Registry) GetAvailableFallbackChain(cap Capability) []string {
	chain := r.GetFallbackChain(cap)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// SetHealthConfig replaces the breaker tuning.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.health == nil {
		r.health = newHealthState(cfg)
		return
	}
	r.health.mu.Lock()
	r.health.config = cfg
	r.health.mu.Unlock()
}

// ResetEndpointHealth forgets an endpoint's breaker state.
func (r *Registry) ResetEndpointHealth(name string) {
	r.mu.RLock()
	h := r.health
	r.mu.RUnlock()

	if h != nil {
		h.reset(name)
	}
}
