// Package syncapi implements the ConfigSyncClient and ValidationProbe
// ports against the platform's settings REST API.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregjones/httpcache"

	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ConfigSyncClient = (*Client)(nil)
	_ driven.ValidationProbe  = (*Client)(nil)
)

// maxSubWriteRetries bounds the retry of each save sub-write. Retries
// never happen silently beyond this policy; the caller decides whether
// to retry the aggregate save.
const maxSubWriteRetries = 3

// Client talks to the settings API. GET requests go through an
// httpcache memory transport so unchanged settings are served from
// ETag-conditional responses.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string
}

// NewClient creates a production client for the given API base URL.
// token is sent as a bearer credential on every request.
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	httpClient := &http.Client{
		Transport: httpcache.NewMemoryCacheTransport(),
		Timeout:   30 * time.Second,
	}

	return &Client{
		http:    httpClient,
		baseURL: u,
		token:   token,
	}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client
// and base URL. Intended for testing against an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &Client{
		http:    httpClient,
		baseURL: u,
		token:   token,
	}, nil
}

// Load fetches the organization's credentials, agent configurations,
// and server-side integration statuses. Agent configs absent on a
// first run are tolerated: the snapshot comes back nil. A failed
// status read is tolerated too, since the local resolver mirrors it.
func (c *Client) Load(ctx context.Context, orgID string) (*driven.RemoteSettings, error) {
	creds, err := c.fetchAPIKeys(ctx, orgID)
	if err != nil {
		return nil, err
	}

	configs, err := c.fetchAgentConfigs(ctx, orgID)
	if err != nil && !errors.Is(err, driven.ErrNotFound) {
		return nil, err
	}

	statuses, err := c.fetchIntegrationStatuses(ctx, orgID)
	if err != nil {
		slog.Warn("integration status fetch failed, using local resolution", "org_id", orgID, "error", err)
		statuses = nil
	}

	return &driven.RemoteSettings{
		Credentials:  creds,
		AgentConfigs: configs,
		Statuses:     statuses,
	}, nil
}

// Save persists credentials and agent configurations as one logical
// transaction: the credential map first, then the default, then every
// per-agent configuration. Agents without overrides are written as an
// empty config so a cleared override replaces the remote row instead
// of leaving the old value behind. Transient sub-write failures are
// retried with exponential backoff; any sub-write that ultimately
// fails fails the whole save.
func (c *Client) Save(ctx context.Context, orgID string, credentials map[model.ProviderID]string, configs model.RegistrySnapshot) error {
	if err := c.retrySubWrite(ctx, func() error {
		return c.putAPIKeys(ctx, orgID, credentials)
	}); err != nil {
		return fmt.Errorf("saving api keys: %w", err)
	}

	if err := c.retrySubWrite(ctx, func() error {
		return c.putAgentConfig(ctx, orgID, model.AgentTypeDefault, defaultToDTO(configs.Default))
	}); err != nil {
		return fmt.Errorf("saving default agent config: %w", err)
	}

	for _, agent := range model.AllAgentTypes {
		cfg := configs.PerAgent[agent]
		cfg.AgentType = agent
		if err := c.retrySubWrite(ctx, func() error {
			return c.putAgentConfig(ctx, orgID, agent, configToDTO(cfg))
		}); err != nil {
			return fmt.Errorf("saving agent config %s: %w", agent, err)
		}
	}

	return nil
}

// ProbeKey calls the provider's validation endpoint. Any 4xx/5xx
// response is mapped to an invalid result carrying the server's
// message; only transport and decode failures return an error.
func (c *Client) ProbeKey(ctx context.Context, provider model.ProviderID, value string) (model.ValidationResult, error) {
	endpoint := c.resolve(fmt.Sprintf("/settings/validate-%s-key", provider))

	body, err := json.Marshal(validateRequest{APIKey: value})
	if err != nil {
		return model.ValidationResult{}, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.ValidationResult{}, fmt.Errorf("create validate request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.ValidationResult{}, fmt.Errorf("validate %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.ValidationResult{}, fmt.Errorf("read validate response: %w", err)
	}

	var dto validateResponse
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, &dto); err != nil {
			return model.ValidationResult{}, fmt.Errorf("decode validate response: %w", err)
		}
		return model.ValidationResult{Valid: dto.Valid, Message: dto.Message}, nil
	}

	// Rejections carry the server's message when the body is decodable.
	message := fmt.Sprintf("validation endpoint returned %d", resp.StatusCode)
	if err := json.Unmarshal(raw, &dto); err == nil && dto.Message != "" {
		message = dto.Message
	}
	return model.ValidationResult{Valid: false, Message: message}, nil
}

// fetchAPIKeys hydrates the provider -> secret map, dropping unknown
// provider ids at the boundary.
func (c *Client) fetchAPIKeys(ctx context.Context, orgID string) (map[model.ProviderID]string, error) {
	var wire map[string]string
	if err := c.getJSON(ctx, "/settings/api-keys/"+url.PathEscape(orgID), &wire); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			return map[model.ProviderID]string{}, nil
		}
		return nil, fmt.Errorf("fetching api keys for org %s: %w", orgID, err)
	}

	creds := make(map[model.ProviderID]string, len(wire))
	for id, value := range wire {
		provider := model.ProviderID(id)
		if !provider.Valid() {
			slog.Warn("skipping unknown provider id in api keys response", "provider", id)
			continue
		}
		creds[provider] = value
	}
	return creds, nil
}

// putAPIKeys persists the full credential map. The server echoes the
// persisted map back, possibly masked; the echo is drained, not applied.
func (c *Client) putAPIKeys(ctx context.Context, orgID string, credentials map[model.ProviderID]string) error {
	wire := make(map[string]string, len(credentials))
	for provider, value := range credentials {
		wire[string(provider)] = value
	}
	return c.putJSON(ctx, "/settings/api-keys/"+url.PathEscape(orgID), wire)
}

// fetchAgentConfigs returns the stored registry snapshot, or
// driven.ErrNotFound on a first run.
func (c *Client) fetchAgentConfigs(ctx context.Context, orgID string) (*model.RegistrySnapshot, error) {
	var wire map[string]agentConfigDTO
	path := "/agent-configs?org_id=" + url.QueryEscape(orgID)
	if err := c.getJSON(ctx, path, &wire); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			return nil, driven.ErrNotFound
		}
		return nil, fmt.Errorf("fetching agent configs for org %s: %w", orgID, err)
	}
	if len(wire) == 0 {
		return nil, driven.ErrNotFound
	}

	snap := model.RegistrySnapshot{
		Default:  model.NewOrganizationDefaultConfig(),
		PerAgent: make(map[model.AgentType]model.AgentTypeConfig),
	}

	for id, dto := range wire {
		agent := model.AgentType(id)
		if agent == model.AgentTypeDefault {
			applyDefaultDTO(&snap.Default, dto)
			continue
		}
		if !agent.Valid() {
			slog.Warn("skipping unknown agent type in agent configs response", "agent_type", id)
			continue
		}
		snap.PerAgent[agent] = dtoToConfig(agent, dto)
	}

	return &snap, nil
}

// putAgentConfig persists one agent type's configuration.
func (c *Client) putAgentConfig(ctx context.Context, orgID string, agent model.AgentType, dto agentConfigDTO) error {
	body := putAgentConfigRequest{
		OrgID:     orgID,
		AgentType: string(agent),
		Config:    dto,
	}
	return c.putJSON(ctx, "/agent-configs", body)
}

// fetchIntegrationStatuses returns the server's view of group
// connectivity, coerced into the two-valued local status model.
func (c *Client) fetchIntegrationStatuses(ctx context.Context, orgID string) (map[model.IntegrationGroup]model.IntegrationStatus, error) {
	var wire map[string]integrationStatusDTO
	if err := c.getJSON(ctx, "/settings/integration-status/"+url.PathEscape(orgID), &wire); err != nil {
		return nil, err
	}

	statuses := make(map[model.IntegrationGroup]model.IntegrationStatus, len(wire))
	for id, dto := range wire {
		group := model.IntegrationGroup(id)
		if !group.Valid() {
			continue
		}
		label := model.StatusLabelNotConfigured
		if dto.Connected {
			label = model.StatusLabelConnected
		}
		statuses[group] = model.IntegrationStatus{
			Group:     group,
			Connected: dto.Connected,
			Label:     label,
		}
	}
	return statuses, nil
}

// retrySubWrite retries a single sub-write with exponential backoff.
// 4xx responses other than 429 are permanent and fail immediately.
func (c *Client) retrySubWrite(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSubWriteRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		var httpErr *apiError
		if errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 && httpErr.Status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// apiError is a non-2xx response from the settings API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("settings api returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("settings api returned %d", e.Status)
}

// getJSON performs an authenticated GET and decodes the body into out.
// 404 maps to driven.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return driven.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// putJSON performs an authenticated PUT with a JSON body. The response
// body is drained and discarded.
func (c *Client) putJSON(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resolve(path), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// resolve joins a path (optionally with a query string) onto the base URL.
func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(ref).String()
}

// readErrorMessage extracts {"error": "..."} or {"message": "..."} from
// an error response body, tolerating any other shape.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<16))
	if err != nil {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
