package syncapi

import (
	"github.com/nharlow/leadpanel/internal/domain/model"
)

// Wire shapes for the settings API. Nullable configuration fields are
// represented as absent/null on the wire; pointers on the DTO mirror
// that so "unset" and "zero" stay distinguishable end to end.

type validateRequest struct {
	APIKey string `json:"api_key"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type integrationStatusDTO struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
}

type voiceConfigDTO struct {
	VoiceID   *string  `json:"voice_id,omitempty"`
	Stability *float64 `json:"stability,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type behaviorConfigDTO struct {
	MaxFollowUps         *int    `json:"max_follow_ups,omitempty"`
	ResponseDelaySeconds *int    `json:"response_delay_seconds,omitempty"`
	Tone                 *string `json:"tone,omitempty"`
}

type agentConfigDTO struct {
	Model       *string            `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Provider    *string            `json:"provider,omitempty"`
	Voice       *voiceConfigDTO    `json:"voice,omitempty"`
	Behavior    *behaviorConfigDTO `json:"behavior,omitempty"`
}

type putAgentConfigRequest struct {
	OrgID     string         `json:"org_id"`
	AgentType string         `json:"agent_type"`
	Config    agentConfigDTO `json:"config"`
}

// dtoToConfig coerces a wire config into the domain override shape.
// Invalid provider choices are dropped rather than stored.
func dtoToConfig(agent model.AgentType, dto agentConfigDTO) model.AgentTypeConfig {
	cfg := model.AgentTypeConfig{
		AgentType:   agent,
		Model:       dto.Model,
		Temperature: dto.Temperature,
	}

	if dto.Provider != nil {
		choice := model.ProviderChoice(*dto.Provider)
		if choice.Valid() {
			cfg.Provider = &choice
		}
	}
	if dto.Voice != nil {
		cfg.Voice = model.VoiceConfig{
			VoiceID:   dto.Voice.VoiceID,
			Stability: dto.Voice.Stability,
			Speed:     dto.Voice.Speed,
		}
	}
	if dto.Behavior != nil {
		cfg.Behavior = model.BehaviorConfig{
			MaxFollowUps:         dto.Behavior.MaxFollowUps,
			ResponseDelaySeconds: dto.Behavior.ResponseDelaySeconds,
			Tone:                 dto.Behavior.Tone,
		}
	}
	return cfg
}

// configToDTO maps a domain override config onto the wire.
func configToDTO(cfg model.AgentTypeConfig) agentConfigDTO {
	dto := agentConfigDTO{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	if cfg.Provider != nil {
		s := string(*cfg.Provider)
		dto.Provider = &s
	}
	if cfg.Voice.VoiceID != nil || cfg.Voice.Stability != nil || cfg.Voice.Speed != nil {
		dto.Voice = &voiceConfigDTO{
			VoiceID:   cfg.Voice.VoiceID,
			Stability: cfg.Voice.Stability,
			Speed:     cfg.Voice.Speed,
		}
	}
	if cfg.Behavior.MaxFollowUps != nil || cfg.Behavior.ResponseDelaySeconds != nil || cfg.Behavior.Tone != nil {
		dto.Behavior = &behaviorConfigDTO{
			MaxFollowUps:         cfg.Behavior.MaxFollowUps,
			ResponseDelaySeconds: cfg.Behavior.ResponseDelaySeconds,
			Tone:                 cfg.Behavior.Tone,
		}
	}
	return dto
}

// defaultToDTO maps the fully populated organization default onto the
// wire. Every field is present by definition.
func defaultToDTO(def model.OrganizationDefaultConfig) agentConfigDTO {
	provider := string(def.Provider)
	return agentConfigDTO{
		Model:       &def.Model,
		Temperature: &def.Temperature,
		Provider:    &provider,
		Voice: &voiceConfigDTO{
			VoiceID:   &def.Voice.VoiceID,
			Stability: &def.Voice.Stability,
			Speed:     &def.Voice.Speed,
		},
		Behavior: &behaviorConfigDTO{
			MaxFollowUps:         &def.Behavior.MaxFollowUps,
			ResponseDelaySeconds: &def.Behavior.ResponseDelaySeconds,
			Tone:                 &def.Behavior.Tone,
		},
	}
}

// applyDefaultDTO overlays present wire fields onto the constructed
// default, leaving absent fields at their baseline values so the
// default stays fully populated.
func applyDefaultDTO(def *model.OrganizationDefaultConfig, dto agentConfigDTO) {
	if dto.Model != nil {
		def.Model = *dto.Model
	}
	if dto.Temperature != nil {
		def.Temperature = *dto.Temperature
	}
	if dto.Provider != nil {
		choice := model.ProviderChoice(*dto.Provider)
		if choice.Valid() {
			def.Provider = choice
		}
	}
	if dto.Voice != nil {
		if dto.Voice.VoiceID != nil {
			def.Voice.VoiceID = *dto.Voice.VoiceID
		}
		if dto.Voice.Stability != nil {
			def.Voice.Stability = *dto.Voice.Stability
		}
		if dto.Voice.Speed != nil {
			def.Voice.Speed = *dto.Voice.Speed
		}
	}
	if dto.Behavior != nil {
		if dto.Behavior.MaxFollowUps != nil {
			def.Behavior.MaxFollowUps = *dto.Behavior.MaxFollowUps
		}
		if dto.Behavior.ResponseDelaySeconds != nil {
			def.Behavior.ResponseDelaySeconds = *dto.Behavior.ResponseDelaySeconds
		}
		if dto.Behavior.Tone != nil {
			def.Behavior.Tone = *dto.Behavior.Tone
		}
	}
}
