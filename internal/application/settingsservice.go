package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

// ErrSaveInFlight is returned by Save while a previous save for the
// organization has not completed. The host disables re-entrant saves;
// this is the backstop.
var ErrSaveInFlight = errors.New("a save is already in flight")

// SettingsService orchestrates the credential store, agent config
// registry, sync client, and local cache for one active organization.
//
// Loads, saves, and validations are keyed to an organization epoch.
// Switching organizations bumps the epoch, so results of operations
// started under the previous organization are discarded on arrival
// instead of being applied to the new organization's state.
type SettingsService struct {
	store     *CredentialStore
	registry  *AgentConfigRegistry
	validator *CredentialValidator
	sync      driven.ConfigSyncClient
	cache     driven.SettingsCache
	logger    *slog.Logger

	mu     sync.Mutex
	orgID  string
	epoch  uint64
	saving bool
}

// NewSettingsService wires the configuration subsystem for the given
// organization. cache may be nil when local caching is disabled.
func NewSettingsService(
	orgID string,
	store *CredentialStore,
	registry *AgentConfigRegistry,
	validator *CredentialValidator,
	syncClient driven.ConfigSyncClient,
	cache driven.SettingsCache,
	logger *slog.Logger,
) *SettingsService {
	return &SettingsService{
		store:     store,
		registry:  registry,
		validator: validator,
		sync:      syncClient,
		cache:     cache,
		logger:    logger,
		orgID:     orgID,
	}
}

// OrgID returns the active organization.
func (s *SettingsService) OrgID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgID
}

// Store exposes the credential store for query paths.
func (s *SettingsService) Store() *CredentialStore {
	return s.store
}

// Registry exposes the agent config registry for query paths.
func (s *SettingsService) Registry() *AgentConfigRegistry {
	return s.registry
}

// SwitchOrganization makes orgID the active organization. All local
// state is reset and the epoch bumped so in-flight results for the old
// organization cannot land on the new one.
func (s *SettingsService) SwitchOrganization(orgID string) {
	s.mu.Lock()
	s.orgID = orgID
	s.epoch++
	s.saving = false
	s.mu.Unlock()

	s.store.Clear()
	s.registry.Reset(model.NewOrganizationDefaultConfig())
}

// currentEpoch returns the epoch and organization at dispatch time.
func (s *SettingsService) currentEpoch() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.orgID
}

// epochCurrent reports whether the given epoch is still active.
func (s *SettingsService) epochCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// Load hydrates the store and registry from the remote API. When the
// remote call fails and a cache is configured, the last-known-good
// snapshot is used instead so the console stays usable offline. A load
// that resolves after an organization switch is discarded.
func (s *SettingsService) Load(ctx context.Context) error {
	epoch, orgID := s.currentEpoch()

	remote, err := s.sync.Load(ctx, orgID)
	if err != nil {
		s.logger.Warn("remote settings load failed", "org_id", orgID, "error", err)
		return s.loadFromCache(ctx, epoch, orgID, err)
	}

	if !s.epochCurrent(epoch) {
		s.logger.Info("discarding stale settings load", "org_id", orgID)
		return nil
	}

	s.applyRemote(remote)
	s.writeCache(ctx, orgID)
	return nil
}

// loadFromCache falls back to the local snapshot after a remote
// failure. Without a cache (or a cached snapshot) the remote error
// propagates so the host can show the retry banner.
func (s *SettingsService) loadFromCache(ctx context.Context, epoch uint64, orgID string, remoteErr error) error {
	if s.cache == nil {
		return fmt.Errorf("load settings for org %s: %w", orgID, remoteErr)
	}

	creds, err := s.cache.GetCredentials(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load settings for org %s: %w", orgID, remoteErr)
	}
	snap, err := s.cache.GetAgentConfigs(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load settings for org %s: %w", orgID, remoteErr)
	}

	if !s.epochCurrent(epoch) {
		return nil
	}

	records := make(map[model.ProviderID]model.ProviderCredential, len(creds))
	for provider, value := range creds {
		records[provider] = model.ProviderCredential{Provider: provider, SecretValue: value}
	}
	s.store.LoadAll(records)

	if snap != nil {
		s.registry.ReplaceAll(*snap)
	} else {
		s.registry.Reset(model.NewOrganizationDefaultConfig())
	}

	s.logger.Info("settings hydrated from local cache", "org_id", orgID, "credentials", len(records))
	return nil
}

// applyRemote replaces local state with the remote response,
// tolerating partial payloads: absent agent configs fall back to
// constructed defaults.
func (s *SettingsService) applyRemote(remote *driven.RemoteSettings) {
	records := make(map[model.ProviderID]model.ProviderCredential, len(remote.Credentials))
	for provider, value := range remote.Credentials {
		if !provider.Valid() {
			s.logger.Warn("dropping unknown provider from remote settings", "provider", provider)
			continue
		}
		records[provider] = model.ProviderCredential{Provider: provider, SecretValue: value}
	}
	s.store.LoadAll(records)

	if remote.AgentConfigs != nil {
		s.registry.ReplaceAll(*remote.AgentConfigs)
	} else {
		s.registry.Reset(model.NewOrganizationDefaultConfig())
	}

	if len(remote.Statuses) > 0 {
		local := ResolveAllStatuses(s.store.Snapshot())
		if diverged := DivergentStatuses(remote.Statuses, local); len(diverged) > 0 {
			s.logger.Warn("server integration status disagrees with local resolution", "groups", diverged)
		}
	}
}

// Save persists the current in-memory state through the sync client as
// one logical transaction. Only one save may be outstanding; a failed
// save leaves all in-memory edits intact for retry.
func (s *SettingsService) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	s.saving = true
	epoch := s.epoch
	orgID := s.orgID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		// Only clear the flag if no org switch reset it already.
		if s.epoch == epoch {
			s.saving = false
		}
		s.mu.Unlock()
	}()

	credentials := s.store.Values()
	snapshot := s.registry.Snapshot()

	if err := s.sync.Save(ctx, orgID, credentials, snapshot); err != nil {
		return fmt.Errorf("save settings for org %s: %w", orgID, err)
	}

	if !s.epochCurrent(epoch) {
		s.logger.Info("save completed after organization switch, cache skipped", "org_id", orgID)
		return nil
	}

	s.writeCache(ctx, orgID)
	return nil
}

// writeCache refreshes the local snapshot. Cache failures are logged,
// never surfaced: the cache is advisory.
func (s *SettingsService) writeCache(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutCredentials(ctx, orgID, s.store.Values()); err != nil {
		s.logger.Warn("failed to cache credentials", "org_id", orgID, "error", err)
	}
	if err := s.cache.PutAgentConfigs(ctx, orgID, s.registry.Snapshot()); err != nil {
		s.logger.Warn("failed to cache agent configs", "org_id", orgID, "error", err)
	}
}

// ValidateCredential runs validation for the provider's current value
// and writes the result back into the store, unless the value was
// edited or the organization switched while the check was in flight.
// The result is returned either way so the caller can display it;
// applied reports whether it became the provider's LastValidation.
func (s *SettingsService) ValidateCredential(ctx context.Context, provider model.ProviderID) (result model.ValidationResult, applied bool) {
	epoch, _ := s.currentEpoch()
	value, token := s.store.BeginValidation(provider)

	result = s.validator.Validate(ctx, provider, value)

	if !s.epochCurrent(epoch) {
		return result, false
	}
	return result, s.store.ApplyValidation(provider, token, result)
}

// IntegrationStatuses derives every group's current status from the
// in-memory records.
func (s *SettingsService) IntegrationStatuses() []model.IntegrationStatus {
	return ResolveAllStatuses(s.store.Snapshot())
}

// ConnectGroup is the local precondition check behind the connect
// action on grouped providers: every required slot must be populated.
// It returns the missing slots; an empty return means the connect flow
// may proceed.
func (s *SettingsService) ConnectGroup(group model.IntegrationGroup) ([]model.ProviderID, error) {
	if !group.Valid() {
		return nil, fmt.Errorf("unknown integration group %q", group)
	}
	return MissingCredentials(group, s.store.Snapshot()), nil
}
