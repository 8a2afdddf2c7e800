package model

// AgentType identifies one of the fixed conversational roles an
// organization runs. Each role carries its own configuration, resolved
// against the organization default.
type AgentType string

const (
	AgentInitialContact    AgentType = "initial-contact"
	AgentQualifier         AgentType = "qualifier"
	AgentNurturer          AgentType = "nurturer"
	AgentObjectionHandler  AgentType = "objection-handler"
	AgentCloser            AgentType = "closer"
	AgentAppointmentSetter AgentType = "appointment-setter"

	// AgentTypeDefault is the sentinel row holding the organization-wide
	// default configuration. It is not a dispatchable agent type.
	AgentTypeDefault AgentType = "default"
)

// AllAgentTypes lists the dispatchable agent types (the default sentinel
// excluded) in display order.
var AllAgentTypes = []AgentType{
	AgentInitialContact,
	AgentQualifier,
	AgentNurturer,
	AgentObjectionHandler,
	AgentCloser,
	AgentAppointmentSetter,
}

// Valid reports whether a names a dispatchable agent type.
func (a AgentType) Valid() bool {
	for _, known := range AllAgentTypes {
		if a == known {
			return true
		}
	}
	return false
}

// ProviderChoice selects which LLM transport an agent's requests go
// through.
type ProviderChoice string

const (
	ProviderChoiceOpenAI     ProviderChoice = "openai"
	ProviderChoiceOpenRouter ProviderChoice = "openrouter"
)

// Valid reports whether p is a known provider choice.
func (p ProviderChoice) Valid() bool {
	return p == ProviderChoiceOpenAI || p == ProviderChoiceOpenRouter
}

// VoiceConfig holds per-agent voice synthesis overrides. Nil fields
// inherit the organization default.
type VoiceConfig struct {
	VoiceID   *string
	Stability *float64
	Speed     *float64
}

// BehaviorConfig holds per-agent conversational behavior overrides.
// Nil fields inherit the organization default.
type BehaviorConfig struct {
	MaxFollowUps         *int
	ResponseDelaySeconds *int
	Tone                 *string
}

// AgentTypeConfig is the stored configuration for one agent type. Every
// field is optional; a nil field means "inherit the organization
// default". The zero value is a configuration with no overrides.
type AgentTypeConfig struct {
	AgentType   AgentType
	Model       *string
	Temperature *float64
	Provider    *ProviderChoice
	Voice       VoiceConfig
	Behavior    BehaviorConfig
}

// HasOverrides reports whether any field is explicitly set.
func (c AgentTypeConfig) HasOverrides() bool {
	return c.Model != nil || c.Temperature != nil || c.Provider != nil ||
		c.Voice.VoiceID != nil || c.Voice.Stability != nil || c.Voice.Speed != nil ||
		c.Behavior.MaxFollowUps != nil || c.Behavior.ResponseDelaySeconds != nil || c.Behavior.Tone != nil
}

// ResolvedVoiceConfig is a fully populated voice configuration.
type ResolvedVoiceConfig struct {
	VoiceID   string
	Stability float64
	Speed     float64
}

// ResolvedBehaviorConfig is a fully populated behavior configuration.
type ResolvedBehaviorConfig struct {
	MaxFollowUps         int
	ResponseDelaySeconds int
	Tone                 string
}

// OrganizationDefaultConfig is the organization-wide fallback
// configuration. Unlike AgentTypeConfig every field is concrete; the
// registry guarantees it is fully populated, which is what lets
// effective resolution never return an unset field.
type OrganizationDefaultConfig struct {
	Model       string
	Temperature float64
	Provider    ProviderChoice
	Voice       ResolvedVoiceConfig
	Behavior    ResolvedBehaviorConfig
}

// ResolvedAgentConfig is the effective configuration for one agent type
// after override-then-fallback resolution. Shape matches
// OrganizationDefaultConfig plus the agent type it was resolved for.
type ResolvedAgentConfig struct {
	AgentType   AgentType
	Model       string
	Temperature float64
	Provider    ProviderChoice
	Voice       ResolvedVoiceConfig
	Behavior    ResolvedBehaviorConfig
}

// NewOrganizationDefaultConfig returns the platform baseline defaults
// assigned to an organization at creation, before any operator edits.
func NewOrganizationDefaultConfig() OrganizationDefaultConfig {
	return OrganizationDefaultConfig{
		Model:       "gpt-4o",
		Temperature: 0.7,
		Provider:    ProviderChoiceOpenAI,
		Voice: ResolvedVoiceConfig{
			VoiceID:   "rachel",
			Stability: 0.5,
			Speed:     1.0,
		},
		Behavior: ResolvedBehaviorConfig{
			MaxFollowUps:         3,
			ResponseDelaySeconds: 2,
			Tone:                 "professional",
		},
	}
}

// RegistrySnapshot is a copy of an organization's full agent
// configuration state: the default plus every per-agent override set.
// Used as the unit of persistence and cache exchange.
type RegistrySnapshot struct {
	Default  OrganizationDefaultConfig
	PerAgent map[AgentType]AgentTypeConfig
}
