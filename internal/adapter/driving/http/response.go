package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nharlow/leadpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it with the given status
// code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CredentialResponse is the JSON representation of one credential slot.
// Values are masked; the raw secret never leaves the subsystem on a read.
type CredentialResponse struct {
	Provider       string              `json:"provider"`
	Value          string              `json:"value"`
	IsSet          bool                `json:"is_set"`
	LastValidation *ValidationResponse `json:"last_validation,omitempty"`
}

// SetCredentialRequest is the JSON body for the set credential endpoint.
type SetCredentialRequest struct {
	Value string `json:"value"`
}

// ValidationResponse is the JSON representation of a validation result.
type ValidationResponse struct {
	Provider  string `json:"provider,omitempty"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
	CheckedAt string `json:"checked_at"`
	Applied   bool   `json:"applied,omitempty"`
}

// IntegrationStatusResponse is the JSON representation of one group's
// derived connection status.
type IntegrationStatusResponse struct {
	Group     string `json:"group"`
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
}

// ConnectResponse reports the connect precondition for a group.
type ConnectResponse struct {
	Group         string   `json:"group"`
	Ready         bool     `json:"ready"`
	MissingFields []string `json:"missing_fields"`
}

// SaveResponse is the aggregate outcome of a save or reload.
type SaveResponse struct {
	Saved     bool   `json:"saved"`
	Retryable bool   `json:"retryable,omitempty"`
	Error     string `json:"error,omitempty"`
}

// VoiceResponse is a fully resolved voice configuration.
type VoiceResponse struct {
	VoiceID   string  `json:"voice_id"`
	Stability float64 `json:"stability"`
	Speed     float64 `json:"speed"`
}

// BehaviorResponse is a fully resolved behavior configuration.
type BehaviorResponse struct {
	MaxFollowUps         int    `json:"max_follow_ups"`
	ResponseDelaySeconds int    `json:"response_delay_seconds"`
	Tone                 string `json:"tone"`
}

// DefaultConfigResponse is the organization default configuration.
type DefaultConfigResponse struct {
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	Provider    string           `json:"provider"`
	Voice       VoiceResponse    `json:"voice"`
	Behavior    BehaviorResponse `json:"behavior"`
}

// StoredConfigResponse is one agent's raw overrides; null fields mean
// "inherits the default".
type StoredConfigResponse struct {
	Model                *string  `json:"model"`
	Temperature          *float64 `json:"temperature"`
	Provider             *string  `json:"provider"`
	VoiceID              *string  `json:"voice_id"`
	VoiceStability       *float64 `json:"voice_stability"`
	VoiceSpeed           *float64 `json:"voice_speed"`
	MaxFollowUps         *int     `json:"max_follow_ups"`
	ResponseDelaySeconds *int     `json:"response_delay_seconds"`
	Tone                 *string  `json:"tone"`
}

// AgentConfigResponse pairs an agent's stored overrides with the
// effective configuration after fallback resolution.
type AgentConfigResponse struct {
	AgentType string                `json:"agent_type"`
	Stored    StoredConfigResponse  `json:"stored"`
	Effective DefaultConfigResponse `json:"effective"`
}

// AgentConfigListResponse is the full configuration view.
type AgentConfigListResponse struct {
	Default DefaultConfigResponse `json:"default"`
	Agents  []AgentConfigResponse `json:"agents"`
}

// HealthResponse is the JSON representation of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	OrgID  string `json:"org_id"`
	Time   string `json:"time"`
}

// toCredentialResponse converts a domain credential to its JSON
// representation, masking the secret.
func toCredentialResponse(rec model.ProviderCredential) CredentialResponse {
	resp := CredentialResponse{
		Provider: string(rec.Provider),
		Value:    rec.MaskedValue(),
		IsSet:    rec.IsSet(),
	}
	if rec.LastValidation != nil {
		resp.LastValidation = &ValidationResponse{
			Valid:     rec.LastValidation.Valid,
			Message:   rec.LastValidation.Message,
			CheckedAt: rec.LastValidation.CheckedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// toDefaultResponse converts the organization default to its JSON
// representation.
func toDefaultResponse(def model.OrganizationDefaultConfig) DefaultConfigResponse {
	return DefaultConfigResponse{
		Model:       def.Model,
		Temperature: def.Temperature,
		Provider:    string(def.Provider),
		Voice: VoiceResponse{
			VoiceID:   def.Voice.VoiceID,
			Stability: def.Voice.Stability,
			Speed:     def.Voice.Speed,
		},
		Behavior: BehaviorResponse{
			MaxFollowUps:         def.Behavior.MaxFollowUps,
			ResponseDelaySeconds: def.Behavior.ResponseDelaySeconds,
			Tone:                 def.Behavior.Tone,
		},
	}
}

// toAgentConfigResponse converts stored plus effective configuration
// for one agent type.
func toAgentConfigResponse(stored model.AgentTypeConfig, effective model.ResolvedAgentConfig) AgentConfigResponse {
	var provider *string
	if stored.Provider != nil {
		s := string(*stored.Provider)
		provider = &s
	}

	return AgentConfigResponse{
		AgentType: string(effective.AgentType),
		Stored: StoredConfigResponse{
			Model:                stored.Model,
			Temperature:          stored.Temperature,
			Provider:             provider,
			VoiceID:              stored.Voice.VoiceID,
			VoiceStability:       stored.Voice.Stability,
			VoiceSpeed:           stored.Voice.Speed,
			MaxFollowUps:         stored.Behavior.MaxFollowUps,
			ResponseDelaySeconds: stored.Behavior.ResponseDelaySeconds,
			Tone:                 stored.Behavior.Tone,
		},
		Effective: DefaultConfigResponse{
			Model:       effective.Model,
			Temperature: effective.Temperature,
			Provider:    string(effective.Provider),
			Voice: VoiceResponse{
				VoiceID:   effective.Voice.VoiceID,
				Stability: effective.Voice.Stability,
				Speed:     effective.Voice.Speed,
			},
			Behavior: BehaviorResponse{
				MaxFollowUps:         effective.Behavior.MaxFollowUps,
				ResponseDelaySeconds: effective.Behavior.ResponseDelaySeconds,
				Tone:                 effective.Behavior.Tone,
			},
		},
	}
}
