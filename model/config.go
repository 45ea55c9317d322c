package model

// RegistryConfig is the serializable configuration for the model registry,
// as it appears under "models" in bookwright.yaml.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// FromConfig builds a Registry from a RegistryConfig. Unknown capability
// names are preserved as-is so configs can define custom capabilities.
func FromConfig(cfg *RegistryConfig) *Registry {
	if cfg == nil || (len(cfg.Capabilities) == 0 && len(cfg.Endpoints) == 0) {
		return NewDefaultRegistry()
	}

	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		cap := ParseCapability(k)
		if cap == "" {
			cap = Capability(k)
		}
		caps[cap] = v
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &DefaultsConfig{Model: "default"}
	}

	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}

	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     defaults,
	}
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     r.defaults,
	}
}

// MergeFromConfig merges configuration into an existing registry.
// Existing entries are overwritten by the new config.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cfg.Capabilities {
		cap := ParseCapability(k)
		if cap == "" {
			cap = Capability(k)
		}
		r.capabilities[cap] = v
	}

	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}

	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
}
