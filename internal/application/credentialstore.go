// Package application holds the core services of the configuration
// subsystem. They depend only on domain types and driven port
// interfaces, so they are testable without an HTTP host.
package application

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nharlow/leadpanel/internal/domain/model"
)

// CredentialStore holds the current, possibly unsaved, value of every
// provider credential for the active organization.
//
// Each provider carries a validation token that is rotated on every
// edit. An in-flight validation captures the token at dispatch; by the
// time its result arrives, a rotated token means the value changed
// underneath it and the result is discarded rather than applied.
type CredentialStore struct {
	mu      sync.RWMutex
	records map[model.ProviderID]model.ProviderCredential
	tokens  map[model.ProviderID]string
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		records: make(map[model.ProviderID]model.ProviderCredential),
		tokens:  make(map[model.ProviderID]string),
	}
}

// Set replaces the secret value for the provider. The previous
// validation result is cleared and the validation token rotated, so a
// stale in-flight probe result cannot land on the new value.
func (s *CredentialStore) Set(provider model.ProviderID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[provider] = model.ProviderCredential{
		Provider:    provider,
		SecretValue: value,
	}
	s.tokens[provider] = uuid.NewString()
}

// Get returns the current record for the provider. Unknown providers
// yield a zero-value record; Get never fails.
func (s *CredentialStore) Get(provider model.ProviderID) model.ProviderCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[provider]
	if !ok {
		return model.ProviderCredential{Provider: provider}
	}
	return rec
}

// LoadAll bulk-replaces the store after a fetch from the sync client.
// Unsaved local edits are overwritten; callers are expected to confirm
// with the user before hydrating over dirty state.
func (s *CredentialStore) LoadAll(records map[model.ProviderID]model.ProviderCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[model.ProviderID]model.ProviderCredential, len(records))
	s.tokens = make(map[model.ProviderID]string, len(records))
	for provider, rec := range records {
		rec.Provider = provider
		s.records[provider] = rec
		s.tokens[provider] = uuid.NewString()
	}
}

// Clear removes all records, used when switching organizations.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[model.ProviderID]model.ProviderCredential)
	s.tokens = make(map[model.ProviderID]string)
}

// Snapshot returns a copy of every record keyed by provider.
func (s *CredentialStore) Snapshot() map[model.ProviderID]model.ProviderCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.ProviderID]model.ProviderCredential, len(s.records))
	for provider, rec := range s.records {
		out[provider] = rec
	}
	return out
}

// Values returns the plain provider -> secret map used for persistence.
func (s *CredentialStore) Values() map[model.ProviderID]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.ProviderID]string, len(s.records))
	for provider, rec := range s.records {
		out[provider] = rec.SecretValue
	}
	return out
}

// BeginValidation returns the provider's current value and a token
// identifying this validation attempt. The token stays valid until the
// provider is edited again or the store is reloaded.
func (s *CredentialStore) BeginValidation(provider model.ProviderID) (value, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[provider]
	if !ok {
		token = uuid.NewString()
		s.tokens[provider] = token
	}
	return s.records[provider].SecretValue, token
}

// ApplyValidation writes the validation result for the provider if the
// token is still current. A false return means the value was edited
// while the validation was in flight and the result was discarded.
func (s *CredentialStore) ApplyValidation(provider model.ProviderID, token string, result model.ValidationResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens[provider] != token {
		return false
	}

	rec := s.records[provider]
	rec.Provider = provider
	rec.LastValidation = &result
	s.records[provider] = rec
	return true
}

// LastValidatedAt returns the time of the provider's current validation
// result, or the zero time if the value has not been validated.
func (s *CredentialStore) LastValidatedAt(provider model.ProviderID) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[provider]
	if !ok || rec.LastValidation == nil {
		return time.Time{}
	}
	return rec.LastValidation.CheckedAt
}
