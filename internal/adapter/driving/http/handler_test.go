package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/nharlow/leadpanel/internal/adapter/driving/http"
	"github.com/nharlow/leadpanel/internal/application"
	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockSyncClient struct {
	remote  *driven.RemoteSettings
	loadErr error
	saveErr error
	saves   int
}

func (m *mockSyncClient) Load(_ context.Context, _ string) (*driven.RemoteSettings, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.remote != nil {
		return m.remote, nil
	}
	return &driven.RemoteSettings{Credentials: map[model.ProviderID]string{}}, nil
}

func (m *mockSyncClient) Save(_ context.Context, _ string, _ map[model.ProviderID]string, _ model.RegistrySnapshot) error {
	m.saves++
	return m.saveErr
}

type mockProbe struct {
	result model.ValidationResult
	err    error
	calls  int
}

func (m *mockProbe) ProbeKey(_ context.Context, _ model.ProviderID, _ string) (model.ValidationResult, error) {
	m.calls++
	return m.result, m.err
}

// --- Test helpers ---

func setupMux(sync *mockSyncClient, probe *mockProbe) http.Handler {
	store := application.NewCredentialStore()
	registry := application.NewAgentConfigRegistry(model.NewOrganizationDefaultConfig())
	validator := application.NewCredentialValidator(probe)
	settings := application.NewSettingsService("org-1", store, registry, validator, sync, nil, slog.Default())

	h := httphandler.NewHandler(settings, slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

// --- Tests ---

func TestListCredentials(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	// Populate one slot so the list mixes set and empty slots.
	set := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/memory-store",
		strings.NewReader(`{"value":"m0-xxxxxxxxxxxx"}`))
	mux.ServeHTTP(httptest.NewRecorder(), set)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/api-keys", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	decodeJSON(t, rec, &resp)
	require.Len(t, resp, len(model.AllProviders))

	byProvider := make(map[string]map[string]any, len(resp))
	for _, slot := range resp {
		byProvider[slot["provider"].(string)] = slot
	}

	memory := byProvider["memory-store"]
	require.NotNil(t, memory)
	assert.Equal(t, true, memory["is_set"])
	assert.Equal(t, "***********xxxx", memory["value"])

	llm := byProvider["llm-primary"]
	require.NotNil(t, llm)
	assert.Equal(t, false, llm["is_set"])
	assert.Equal(t, "", llm["value"])
}

func TestSetCredential(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		check      func(t *testing.T, resp map[string]any)
	}{
		{
			name:       "valid provider",
			path:       "/api/v1/settings/api-keys/llm-primary",
			body:       `{"value":"sk-aaaaaaaaaaaaaaaaaaaa"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "llm-primary", resp["provider"])
				assert.Equal(t, true, resp["is_set"])
				// Raw secrets never come back; only the masked tail does.
				value := resp["value"].(string)
				assert.NotContains(t, value, "sk-")
				assert.True(t, strings.HasSuffix(value, "aaaa"))
				assert.Nil(t, resp["last_validation"])
			},
		},
		{
			name:       "unknown provider",
			path:       "/api/v1/settings/api-keys/quantum-flux",
			body:       `{"value":"anything"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed body",
			path:       "/api/v1/settings/api-keys/llm-primary",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockSyncClient{}, &mockProbe{})
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				tt.check(t, resp)
			}
		})
	}
}

func TestSetCredentialClearsValidation(t *testing.T) {
	probe := &mockProbe{result: model.ValidationResult{Valid: true, Message: "Key is active"}}
	mux := setupMux(&mockSyncClient{}, probe)

	set := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/memory-store",
		strings.NewReader(`{"value":"m0-xxxxxxxxxxxx"}`))
	mux.ServeHTTP(httptest.NewRecorder(), set)

	validate := httptest.NewRequest(http.MethodPost, "/api/v1/settings/api-keys/validate/memory-store", nil)
	mux.ServeHTTP(httptest.NewRecorder(), validate)

	// Editing the value again must drop the stored verdict.
	edit := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/memory-store",
		strings.NewReader(`{"value":"m0-yyyyyyyyyyyy"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, edit)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Nil(t, resp["last_validation"])
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		probe      *mockProbe
		wantStatus int
		wantValid  bool
		wantMsg    string
		wantProbes int
	}{
		{
			name:       "valid key",
			path:       "/api/v1/settings/api-keys/validate/memory-store",
			body:       `{"value":"m0-xxxxxxxxxxxx"}`,
			probe:      &mockProbe{result: model.ValidationResult{Valid: true, Message: "Key is active"}},
			wantStatus: http.StatusOK,
			wantValid:  true,
			wantMsg:    "Key is active",
			wantProbes: 1,
		},
		{
			name:       "empty key short-circuits without a probe",
			path:       "/api/v1/settings/api-keys/validate/memory-store",
			body:       "",
			probe:      &mockProbe{result: model.ValidationResult{Valid: true}},
			wantStatus: http.StatusOK,
			wantValid:  false,
			wantMsg:    "API key is required",
			wantProbes: 0,
		},
		{
			name:       "format rejection skips the probe",
			path:       "/api/v1/settings/api-keys/validate/memory-store",
			body:       `{"value":"wrong-prefix"}`,
			probe:      &mockProbe{result: model.ValidationResult{Valid: true}},
			wantStatus: http.StatusOK,
			wantValid:  false,
			wantProbes: 0,
		},
		{
			name:       "unknown provider",
			path:       "/api/v1/settings/api-keys/validate/quantum-flux",
			probe:      &mockProbe{},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockSyncClient{}, tt.probe)

			if tt.body != "" {
				setPath := strings.Replace(tt.path, "/validate", "", 1)
				set := httptest.NewRequest(http.MethodPut, setPath, strings.NewReader(tt.body))
				mux.ServeHTTP(httptest.NewRecorder(), set)
			}

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantProbes, tt.probe.calls)

			if tt.wantStatus == http.StatusOK {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantValid, resp["valid"])
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, resp["message"])
				}
				assert.Equal(t, true, resp["applied"])
			}
		})
	}
}

func TestIntegrationStatus(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	set := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/memory-store",
		strings.NewReader(`{"value":"m0-xxxxxxxxxxxx"}`))
	mux.ServeHTTP(httptest.NewRecorder(), set)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/integration-status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	decodeJSON(t, rec, &resp)
	require.Len(t, resp, len(model.AllGroups))

	byGroup := make(map[string]map[string]any, len(resp))
	for _, st := range resp {
		byGroup[st["group"].(string)] = st
	}

	assert.Equal(t, true, byGroup["memory"]["connected"])
	assert.Equal(t, "Connected", byGroup["memory"]["status"])
	assert.Equal(t, false, byGroup["llm"]["connected"])
	assert.Equal(t, "Not configured", byGroup["llm"]["status"])
}

func TestConnectIntegration(t *testing.T) {
	tests := []struct {
		name        string
		setup       map[string]string
		path        string
		wantStatus  int
		wantReady   bool
		wantMissing []string
	}{
		{
			name: "all fields present",
			setup: map[string]string{
				"crm-oauth-client-id":     "client-id",
				"crm-oauth-client-secret": "client-secret",
				"crm-webhook-secret":      "webhook-secret",
			},
			path:        "/api/v1/settings/integrations/crm/connect",
			wantStatus:  http.StatusOK,
			wantReady:   true,
			wantMissing: []string{},
		},
		{
			name: "partially configured group",
			setup: map[string]string{
				"crm-oauth-client-id": "client-id",
			},
			path:        "/api/v1/settings/integrations/crm/connect",
			wantStatus:  http.StatusUnprocessableEntity,
			wantReady:   false,
			wantMissing: []string{"crm-oauth-client-secret", "crm-webhook-secret"},
		},
		{
			name:       "unknown group",
			path:       "/api/v1/settings/integrations/fax/connect",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockSyncClient{}, &mockProbe{})

			for provider, value := range tt.setup {
				body, err := json.Marshal(map[string]string{"value": value})
				require.NoError(t, err)
				set := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/"+provider,
					strings.NewReader(string(body)))
				mux.ServeHTTP(httptest.NewRecorder(), set)
			}

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNotFound {
				return
			}

			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.wantReady, resp["ready"])

			missing := resp["missing_fields"].([]any)
			got := make([]string, 0, len(missing))
			for _, m := range missing {
				got = append(got, m.(string))
			}
			assert.Equal(t, tt.wantMissing, got)
		})
	}
}

func TestSaveSettings(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sync := &mockSyncClient{}
		mux := setupMux(sync, &mockProbe{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/save", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, sync.saves)

		var resp map[string]any
		decodeJSON(t, rec, &resp)
		assert.Equal(t, true, resp["saved"])
	})

	t.Run("remote failure is retryable and preserves edits", func(t *testing.T) {
		sync := &mockSyncClient{saveErr: errors.New("api down")}
		mux := setupMux(sync, &mockProbe{})

		set := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api-keys/llm-primary",
			strings.NewReader(`{"value":"sk-aaaaaaaaaaaaaaaaaaaa"}`))
		mux.ServeHTTP(httptest.NewRecorder(), set)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/save", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var resp map[string]any
		decodeJSON(t, rec, &resp)
		assert.Equal(t, false, resp["saved"])
		assert.Equal(t, true, resp["retryable"])

		// The edit must still be there for a retry.
		list := httptest.NewRequest(http.MethodGet, "/api/v1/settings/api-keys", nil)
		listRec := httptest.NewRecorder()
		mux.ServeHTTP(listRec, list)

		var slots []map[string]any
		decodeJSON(t, listRec, &slots)
		for _, slot := range slots {
			if slot["provider"] == "llm-primary" {
				assert.Equal(t, true, slot["is_set"])
			}
		}
	})
}

func TestReloadSettings(t *testing.T) {
	t.Run("hydrates from remote", func(t *testing.T) {
		sync := &mockSyncClient{remote: &driven.RemoteSettings{
			Credentials: map[model.ProviderID]string{
				model.ProviderMemoryStore: "m0-xxxxxxxxxxxx",
			},
		}}
		mux := setupMux(sync, &mockProbe{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/reload", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)

		list := httptest.NewRequest(http.MethodGet, "/api/v1/settings/api-keys", nil)
		listRec := httptest.NewRecorder()
		mux.ServeHTTP(listRec, list)

		var slots []map[string]any
		decodeJSON(t, listRec, &slots)
		for _, slot := range slots {
			if slot["provider"] == "memory-store" {
				assert.Equal(t, true, slot["is_set"])
			}
		}
	})

	t.Run("remote failure without cache", func(t *testing.T) {
		sync := &mockSyncClient{loadErr: errors.New("api down")}
		mux := setupMux(sync, &mockProbe{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/reload", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestListAgentConfigs(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent-configs", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)

	def := resp["default"].(map[string]any)
	assert.Equal(t, "gpt-4o", def["model"])
	assert.Equal(t, 0.7, def["temperature"])

	agents := resp["agents"].([]any)
	require.Len(t, agents, len(model.AllAgentTypes))

	first := agents[0].(map[string]any)
	assert.Equal(t, "initial-contact", first["agent_type"])
	// No overrides yet: effective mirrors the default, stored is all null.
	effective := first["effective"].(map[string]any)
	assert.Equal(t, "gpt-4o", effective["model"])
	stored := first["stored"].(map[string]any)
	assert.Nil(t, stored["model"])
}

func TestUpdateAgentConfig(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		check      func(t *testing.T, resp map[string]any)
	}{
		{
			name:       "set override",
			path:       "/api/v1/agent-configs/closer",
			body:       `{"model":"claude-3-5-sonnet","temperature":0.3}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				stored := resp["stored"].(map[string]any)
				assert.Equal(t, "claude-3-5-sonnet", stored["model"])
				assert.Equal(t, 0.3, stored["temperature"])
				effective := resp["effective"].(map[string]any)
				assert.Equal(t, "claude-3-5-sonnet", effective["model"])
				// Untouched fields keep falling through to the default.
				assert.Equal(t, "openai", effective["provider"])
			},
		},
		{
			name:       "null clears an override",
			path:       "/api/v1/agent-configs/closer",
			body:       `{"model":null}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				stored := resp["stored"].(map[string]any)
				assert.Nil(t, stored["model"])
				effective := resp["effective"].(map[string]any)
				assert.Equal(t, "gpt-4o", effective["model"])
			},
		},
		{
			name:       "update the organization default",
			path:       "/api/v1/agent-configs/default",
			body:       `{"model":"gpt-4o-mini"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "gpt-4o-mini", resp["model"])
			},
		},
		{
			name:       "default rejects null",
			path:       "/api/v1/agent-configs/default",
			body:       `{"model":null}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown agent type",
			path:       "/api/v1/agent-configs/yodeler",
			body:       `{"model":"gpt-4o"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown field",
			path:       "/api/v1/agent-configs/closer",
			body:       `{"mood":"sunny"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "malformed body",
			path:       "/api/v1/agent-configs/closer",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockSyncClient{}, &mockProbe{})

			if tt.name == "null clears an override" {
				seed := httptest.NewRequest(http.MethodPut, tt.path,
					strings.NewReader(`{"model":"claude-3-5-sonnet"}`))
				mux.ServeHTTP(httptest.NewRecorder(), seed)
			}

			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				tt.check(t, resp)
			}
		})
	}
}

func TestUpdateAgentConfigRejectsPartialPatch(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	// One good field, one unknown: nothing may be applied.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/agent-configs/closer",
		strings.NewReader(`{"model":"claude-3-5-sonnet","mood":"sunny"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	get := httptest.NewRequest(http.MethodGet, "/api/v1/agent-configs/closer", nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, get)

	var resp map[string]any
	decodeJSON(t, getRec, &resp)
	stored := resp["stored"].(map[string]any)
	assert.Nil(t, stored["model"])
}

func TestGetAgentConfig(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent-configs/qualifier", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "qualifier", resp["agent_type"])

	unknown := httptest.NewRequest(http.MethodGet, "/api/v1/agent-configs/yodeler", nil)
	unknownRec := httptest.NewRecorder()
	mux.ServeHTTP(unknownRec, unknown)
	assert.Equal(t, http.StatusNotFound, unknownRec.Code)
}

func TestHealth(t *testing.T) {
	mux := setupMux(&mockSyncClient{}, &mockProbe{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "org-1", resp["org_id"])
}
