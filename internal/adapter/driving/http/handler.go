// Package httphandler is the HTTP driving adapter serving the console
// REST API the dashboard views consume.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nharlow/leadpanel/internal/application"
	"github.com/nharlow/leadpanel/internal/domain/model"
)

// Handler serves the settings and agent configuration API.
type Handler struct {
	settings *application.SettingsService
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(settings *application.SettingsService, logger *slog.Logger) *Handler {
	return &Handler{
		settings: settings,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/settings/api-keys", h.ListCredentials)
	mux.HandleFunc("PUT /api/v1/settings/api-keys/{provider}", h.SetCredential)
	mux.HandleFunc("POST /api/v1/settings/api-keys/validate/{provider}", h.ValidateCredential)
	mux.HandleFunc("GET /api/v1/settings/integration-status", h.IntegrationStatus)
	mux.HandleFunc("POST /api/v1/settings/integrations/{group}/connect", h.ConnectIntegration)
	mux.HandleFunc("POST /api/v1/settings/save", h.SaveSettings)
	mux.HandleFunc("POST /api/v1/settings/reload", h.ReloadSettings)
	mux.HandleFunc("GET /api/v1/agent-configs", h.ListAgentConfigs)
	mux.HandleFunc("GET /api/v1/agent-configs/{agentType}", h.GetAgentConfig)
	mux.HandleFunc("PUT /api/v1/agent-configs/{agentType}", h.UpdateAgentConfig)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListCredentials returns every credential slot with masked values and
// the latest validation result, if any.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	records := h.settings.Store().Snapshot()

	resp := make([]CredentialResponse, 0, len(model.AllProviders))
	for _, provider := range model.AllProviders {
		rec, ok := records[provider]
		if !ok {
			rec = model.ProviderCredential{Provider: provider}
		}
		resp = append(resp, toCredentialResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetCredential replaces one credential slot's value. The previous
// validation result is invalidated as a side effect.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	provider := model.ProviderID(r.PathValue("provider"))
	if !provider.Valid() {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}

	var req SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.settings.Store().Set(provider, req.Value)
	writeJSON(w, http.StatusOK, toCredentialResponse(h.settings.Store().Get(provider)))
}

// ValidateCredential runs validation for the provider's current value.
// A result that arrives after the value was edited again is reported
// with applied=false and is not stored.
func (h *Handler) ValidateCredential(w http.ResponseWriter, r *http.Request) {
	provider := model.ProviderID(r.PathValue("provider"))
	if !provider.Valid() {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}

	result, applied := h.settings.ValidateCredential(r.Context(), provider)

	writeJSON(w, http.StatusOK, ValidationResponse{
		Provider:  string(provider),
		Valid:     result.Valid,
		Message:   result.Message,
		CheckedAt: result.CheckedAt.UTC().Format(time.RFC3339),
		Applied:   applied,
	})
}

// IntegrationStatus returns the derived two-valued status per group.
func (h *Handler) IntegrationStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.settings.IntegrationStatuses()

	resp := make([]IntegrationStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, IntegrationStatusResponse{
			Group:     string(st.Group),
			Connected: st.Connected,
			Status:    st.Label,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConnectIntegration checks the local precondition for connecting a
// grouped provider: every required slot populated. Missing slots come
// back as a 422 so the form can highlight them.
func (h *Handler) ConnectIntegration(w http.ResponseWriter, r *http.Request) {
	group := model.IntegrationGroup(r.PathValue("group"))

	missing, err := h.settings.ConnectGroup(group)
	if err != nil {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}

	if len(missing) > 0 {
		fields := make([]string, 0, len(missing))
		for _, provider := range missing {
			fields = append(fields, string(provider))
		}
		writeJSON(w, http.StatusUnprocessableEntity, ConnectResponse{
			Group:         string(group),
			Ready:         false,
			MissingFields: fields,
		})
		return
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		Group:         string(group),
		Ready:         true,
		MissingFields: []string{},
	})
}

// SaveSettings persists the in-memory state through the sync client.
// While a save is in flight further saves are rejected with 409.
// In-memory edits survive a failed save.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Save(r.Context()); err != nil {
		if errors.Is(err, application.ErrSaveInFlight) {
			writeError(w, http.StatusConflict, "a save is already in progress")
			return
		}
		h.logger.Error("failed to save settings", "error", err)
		writeJSON(w, http.StatusBadGateway, SaveResponse{
			Saved:     false,
			Retryable: true,
			Error:     "settings could not be saved; your changes are preserved",
		})
		return
	}

	writeJSON(w, http.StatusOK, SaveResponse{Saved: true})
}

// ReloadSettings re-hydrates local state from the remote API. Callers
// confirm with the user first; unsaved edits are overwritten.
func (h *Handler) ReloadSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Load(r.Context()); err != nil {
		h.logger.Error("failed to reload settings", "error", err)
		writeJSON(w, http.StatusBadGateway, SaveResponse{
			Saved:     false,
			Retryable: true,
			Error:     "settings could not be loaded",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAgentConfigs returns stored and effective configuration for
// every agent type, plus the organization default.
func (h *Handler) ListAgentConfigs(w http.ResponseWriter, r *http.Request) {
	registry := h.settings.Registry()

	resp := AgentConfigListResponse{
		Default: toDefaultResponse(registry.Default()),
		Agents:  make([]AgentConfigResponse, 0, len(model.AllAgentTypes)),
	}

	for _, agent := range model.AllAgentTypes {
		stored, err := registry.Stored(agent)
		if err != nil {
			h.logger.Error("failed to read agent config", "agent_type", agent, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		effective, err := registry.GetEffective(agent)
		if err != nil {
			h.logger.Error("failed to resolve agent config", "agent_type", agent, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.Agents = append(resp.Agents, toAgentConfigResponse(stored, effective))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAgentConfig returns one agent type's stored overrides and
// effective configuration.
func (h *Handler) GetAgentConfig(w http.ResponseWriter, r *http.Request) {
	agent := model.AgentType(r.PathValue("agentType"))

	stored, err := h.settings.Registry().Stored(agent)
	if err != nil {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}
	effective, err := h.settings.Registry().GetEffective(agent)
	if err != nil {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}

	writeJSON(w, http.StatusOK, toAgentConfigResponse(stored, effective))
}

// UpdateAgentConfig applies field updates to one agent type, or to the
// organization default when agentType is "default". Fields present in
// the body are set; fields present with null clear the override.
// Unknown agent types or fields reject the whole update.
func (h *Handler) UpdateAgentConfig(w http.ResponseWriter, r *http.Request) {
	agent := model.AgentType(r.PathValue("agentType"))

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	registry := h.settings.Registry()

	fields := make(map[application.ConfigField]any, len(req))
	for field, value := range req {
		fields[application.ConfigField(field)] = value
	}

	var err error
	if agent == model.AgentTypeDefault {
		err = registry.ApplyDefaultPatch(fields)
	} else {
		err = registry.ApplyAgentPatch(agent, fields)
	}
	if err != nil {
		switch {
		case errors.Is(err, application.ErrUnknownAgentType):
			writeError(w, http.StatusNotFound, "configuration error")
		case errors.Is(err, application.ErrUnknownField), errors.Is(err, application.ErrDefaultRequired):
			writeError(w, http.StatusUnprocessableEntity, "configuration error")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if agent == model.AgentTypeDefault {
		writeJSON(w, http.StatusOK, toDefaultResponse(registry.Default()))
		return
	}

	stored, err := registry.Stored(agent)
	if err != nil {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}
	effective, err := registry.GetEffective(agent)
	if err != nil {
		writeError(w, http.StatusNotFound, "configuration error")
		return
	}
	writeJSON(w, http.StatusOK, toAgentConfigResponse(stored, effective))
}

// Health is the liveness endpoint polled by cmd/healthcheck.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		OrgID:  h.settings.OrgID(),
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
