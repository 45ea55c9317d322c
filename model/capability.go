// Package model provides capability-based model selection for book production
// phases. Instead of hardcoding model names, callers specify capabilities
// (planning, drafting, editing) and the registry resolves them to available
// models with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", users specify "drafting" or "planning".
type Capability string

const (
	// CapabilityPlanning is for outline construction and structural decisions.
	CapabilityPlanning Capability = "planning"

	// CapabilityResearch is for gathering and organizing background material.
	CapabilityResearch Capability = "research"

	// CapabilityDrafting is for long-form chapter prose generation.
	CapabilityDrafting Capability = "drafting"

	// CapabilityEditing is for revision passes over existing chapters.
	CapabilityEditing Capability = "editing"

	// CapabilityChat is for interactive refinement conversations.
	CapabilityChat Capability = "chat"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// PhaseCapabilities maps book production phases to their default capability.
// Used when no explicit capability or model is specified.
var PhaseCapabilities = map[string]Capability{
	"planning": CapabilityPlanning,
	"research": CapabilityResearch,
	"writing":  CapabilityDrafting,
	"editing":  CapabilityEditing,
	"refining": CapabilityChat,
}

// CapabilityForPhase returns the default capability for a given phase.
// Returns CapabilityDrafting as fallback for unknown phases.
func CapabilityForPhase(phase string) Capability {
	if cap, ok := PhaseCapabilities[phase]; ok {
		return cap
	}
	return CapabilityDrafting
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityResearch, CapabilityDrafting,
		CapabilityEditing, CapabilityChat, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
