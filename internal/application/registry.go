package application

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nharlow/leadpanel/internal/domain/model"
)

// Sentinel errors returned by AgentConfigRegistry operations. An
// unknown agent type or field is an internal invariant violation, not
// operator input: the write is rejected and prior state kept.
var (
	ErrUnknownAgentType = errors.New("unknown agent type")
	ErrUnknownField     = errors.New("unknown configuration field")
	ErrDefaultRequired  = errors.New("organization default fields cannot be cleared")
)

// ConfigField names one settable field of an agent configuration.
type ConfigField string

const (
	FieldModel          ConfigField = "model"
	FieldTemperature    ConfigField = "temperature"
	FieldProvider       ConfigField = "provider"
	FieldVoiceID        ConfigField = "voice_id"
	FieldVoiceStability ConfigField = "voice_stability"
	FieldVoiceSpeed     ConfigField = "voice_speed"
	FieldMaxFollowUps   ConfigField = "max_follow_ups"
	FieldResponseDelay  ConfigField = "response_delay_seconds"
	FieldTone           ConfigField = "tone"
)

// AgentConfigRegistry stores one configuration per agent type plus the
// organization default, and resolves effective values per field:
// explicit override wins, otherwise the default. The default is fully
// populated by construction, so effective resolution never yields an
// unset field.
type AgentConfigRegistry struct {
	mu       sync.RWMutex
	def      model.OrganizationDefaultConfig
	perAgent map[model.AgentType]model.AgentTypeConfig
}

// NewAgentConfigRegistry creates a registry seeded with the given
// organization default and no per-agent overrides.
func NewAgentConfigRegistry(def model.OrganizationDefaultConfig) *AgentConfigRegistry {
	return &AgentConfigRegistry{
		def:      def,
		perAgent: make(map[model.AgentType]model.AgentTypeConfig),
	}
}

// Default returns the current organization default configuration.
func (r *AgentConfigRegistry) Default() model.OrganizationDefaultConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Stored returns the raw per-agent configuration (overrides only) for
// the agent type.
func (r *AgentConfigRegistry) Stored(agent model.AgentType) (model.AgentTypeConfig, error) {
	if !agent.Valid() {
		return model.AgentTypeConfig{}, fmt.Errorf("%w: %q", ErrUnknownAgentType, agent)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.perAgent[agent]
	if !ok {
		return model.AgentTypeConfig{AgentType: agent}, nil
	}
	return cfg, nil
}

// GetEffective resolves the agent's configuration field by field:
// explicit overrides win, nil fields fall back to the organization
// default. Every field of the result is populated.
func (r *AgentConfigRegistry) GetEffective(agent model.AgentType) (model.ResolvedAgentConfig, error) {
	if !agent.Valid() {
		return model.ResolvedAgentConfig{}, fmt.Errorf("%w: %q", ErrUnknownAgentType, agent)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := r.perAgent[agent]
	out := model.ResolvedAgentConfig{
		AgentType:   agent,
		Model:       r.def.Model,
		Temperature: r.def.Temperature,
		Provider:    r.def.Provider,
		Voice:       r.def.Voice,
		Behavior:    r.def.Behavior,
	}

	if cfg.Model != nil {
		out.Model = *cfg.Model
	}
	if cfg.Temperature != nil {
		out.Temperature = *cfg.Temperature
	}
	if cfg.Provider != nil {
		out.Provider = *cfg.Provider
	}
	if cfg.Voice.VoiceID != nil {
		out.Voice.VoiceID = *cfg.Voice.VoiceID
	}
	if cfg.Voice.Stability != nil {
		out.Voice.Stability = *cfg.Voice.Stability
	}
	if cfg.Voice.Speed != nil {
		out.Voice.Speed = *cfg.Voice.Speed
	}
	if cfg.Behavior.MaxFollowUps != nil {
		out.Behavior.MaxFollowUps = *cfg.Behavior.MaxFollowUps
	}
	if cfg.Behavior.ResponseDelaySeconds != nil {
		out.Behavior.ResponseDelaySeconds = *cfg.Behavior.ResponseDelaySeconds
	}
	if cfg.Behavior.Tone != nil {
		out.Behavior.Tone = *cfg.Behavior.Tone
	}

	return out, nil
}

// SetAgentField sets an explicit override on the agent type. A nil
// value clears the override, returning the field to inheritance.
// Unknown agent types and fields reject the write and leave all state
// untouched.
func (r *AgentConfigRegistry) SetAgentField(agent model.AgentType, field ConfigField, value any) error {
	if !agent.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAgentType, agent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.perAgent[agent]
	cfg.AgentType = agent

	if err := applyOverride(&cfg, field, value); err != nil {
		return err
	}

	r.perAgent[agent] = cfg
	return nil
}

// SetDefaultField mutates the organization default. Explicit per-agent
// overrides are unaffected; agents without an override for the field
// resolve to the new value. Defaults are always populated, so a nil
// value is rejected.
func (r *AgentConfigRegistry) SetDefaultField(field ConfigField, value any) error {
	if value == nil {
		return fmt.Errorf("%w: %s", ErrDefaultRequired, field)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	def := r.def
	if err := applyDefault(&def, field, value); err != nil {
		return err
	}
	r.def = def
	return nil
}

// ApplyAgentPatch sets several override fields atomically: the patch is
// staged on a copy and committed only when every field applies cleanly,
// so a bad field leaves prior state untouched.
func (r *AgentConfigRegistry) ApplyAgentPatch(agent model.AgentType, fields map[ConfigField]any) error {
	if !agent.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAgentType, agent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.perAgent[agent]
	cfg.AgentType = agent
	for field, value := range fields {
		if err := applyOverride(&cfg, field, value); err != nil {
			return err
		}
	}

	r.perAgent[agent] = cfg
	return nil
}

// ApplyDefaultPatch mutates several default fields atomically. Nil
// values are rejected since the default is always fully populated.
func (r *AgentConfigRegistry) ApplyDefaultPatch(fields map[ConfigField]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def := r.def
	for field, value := range fields {
		if value == nil {
			return fmt.Errorf("%w: %s", ErrDefaultRequired, field)
		}
		if err := applyDefault(&def, field, value); err != nil {
			return err
		}
	}

	r.def = def
	return nil
}

// Snapshot copies the full registry state for persistence.
func (r *AgentConfigRegistry) Snapshot() model.RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perAgent := make(map[model.AgentType]model.AgentTypeConfig, len(r.perAgent))
	for agent, cfg := range r.perAgent {
		perAgent[agent] = cfg
	}
	return model.RegistrySnapshot{Default: r.def, PerAgent: perAgent}
}

// ReplaceAll bulk-replaces the registry after a fetch from the sync
// client. Unknown agent types in the snapshot are dropped rather than
// poisoning the registry.
func (r *AgentConfigRegistry) ReplaceAll(snap model.RegistrySnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.def = snap.Default
	r.perAgent = make(map[model.AgentType]model.AgentTypeConfig, len(snap.PerAgent))
	for agent, cfg := range snap.PerAgent {
		if !agent.Valid() {
			continue
		}
		cfg.AgentType = agent
		r.perAgent[agent] = cfg
	}
}

// Reset discards all overrides and restores the given default, used
// when switching organizations.
func (r *AgentConfigRegistry) Reset(def model.OrganizationDefaultConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.def = def
	r.perAgent = make(map[model.AgentType]model.AgentTypeConfig)
}

// applyOverride writes one override field, with nil clearing it.
func applyOverride(cfg *model.AgentTypeConfig, field ConfigField, value any) error {
	switch field {
	case FieldModel:
		return setStringPtr(&cfg.Model, field, value)
	case FieldTemperature:
		return setFloatPtr(&cfg.Temperature, field, value)
	case FieldProvider:
		if value == nil {
			cfg.Provider = nil
			return nil
		}
		choice, ok := value.(model.ProviderChoice)
		if !ok {
			if s, isStr := value.(string); isStr {
				choice = model.ProviderChoice(s)
				ok = true
			}
		}
		if !ok || !choice.Valid() {
			return fmt.Errorf("field %s: invalid provider choice %v", field, value)
		}
		cfg.Provider = &choice
		return nil
	case FieldVoiceID:
		return setStringPtr(&cfg.Voice.VoiceID, field, value)
	case FieldVoiceStability:
		return setFloatPtr(&cfg.Voice.Stability, field, value)
	case FieldVoiceSpeed:
		return setFloatPtr(&cfg.Voice.Speed, field, value)
	case FieldMaxFollowUps:
		return setIntPtr(&cfg.Behavior.MaxFollowUps, field, value)
	case FieldResponseDelay:
		return setIntPtr(&cfg.Behavior.ResponseDelaySeconds, field, value)
	case FieldTone:
		return setStringPtr(&cfg.Behavior.Tone, field, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// applyDefault writes one concrete default field. value is known non-nil.
func applyDefault(def *model.OrganizationDefaultConfig, field ConfigField, value any) error {
	switch field {
	case FieldModel:
		return setString(&def.Model, field, value)
	case FieldTemperature:
		return setFloat(&def.Temperature, field, value)
	case FieldProvider:
		choice, ok := value.(model.ProviderChoice)
		if !ok {
			if s, isStr := value.(string); isStr {
				choice = model.ProviderChoice(s)
				ok = true
			}
		}
		if !ok || !choice.Valid() {
			return fmt.Errorf("field %s: invalid provider choice %v", field, value)
		}
		def.Provider = choice
		return nil
	case FieldVoiceID:
		return setString(&def.Voice.VoiceID, field, value)
	case FieldVoiceStability:
		return setFloat(&def.Voice.Stability, field, value)
	case FieldVoiceSpeed:
		return setFloat(&def.Voice.Speed, field, value)
	case FieldMaxFollowUps:
		return setInt(&def.Behavior.MaxFollowUps, field, value)
	case FieldResponseDelay:
		return setInt(&def.Behavior.ResponseDelaySeconds, field, value)
	case FieldTone:
		return setString(&def.Behavior.Tone, field, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

func setStringPtr(dst **string, field ConfigField, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %s: expected string, got %T", field, value)
	}
	*dst = &s
	return nil
}

func setFloatPtr(dst **float64, field ConfigField, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	f, err := toFloat(field, value)
	if err != nil {
		return err
	}
	*dst = &f
	return nil
}

func setIntPtr(dst **int, field ConfigField, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	n, err := toInt(field, value)
	if err != nil {
		return err
	}
	*dst = &n
	return nil
}

func setString(dst *string, field ConfigField, value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %s: expected string, got %T", field, value)
	}
	*dst = s
	return nil
}

func setFloat(dst *float64, field ConfigField, value any) error {
	f, err := toFloat(field, value)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setInt(dst *int, field ConfigField, value any) error {
	n, err := toInt(field, value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// toFloat accepts float64 and int, the two numeric shapes JSON decoding
// and native callers produce.
func toFloat(field ConfigField, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %s: expected number, got %T", field, value)
	}
}

func toInt(field ConfigField, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("field %s: expected integer, got %v", field, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("field %s: expected integer, got %T", field, value)
	}
}
