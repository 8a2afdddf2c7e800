// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/nharlow/leadpanel/internal/domain/model"
)

// ErrNotFound indicates the remote API has no stored state for the
// requested organization. Callers fall back to constructed defaults.
var ErrNotFound = errors.New("remote settings not found")

// RemoteSettings is everything one Load returns for an organization.
// AgentConfigs may be nil on a first run; the caller substitutes a
// default-constructed registry. Statuses are the server's own view of
// integration connectivity, mirrored locally by the status resolver.
type RemoteSettings struct {
	Credentials  map[model.ProviderID]string
	AgentConfigs *model.RegistrySnapshot
	Statuses     map[model.IntegrationGroup]model.IntegrationStatus
}

// ConfigSyncClient is the driven port for the external persistence API.
// Save is one logical transaction from the caller's point of view: the
// adapter sequences and retries sub-writes as needed but reports a
// single aggregate success or failure, and never retries silently
// beyond its own bounded policy.
type ConfigSyncClient interface {
	// Load fetches credentials, agent configs, and integration statuses
	// for the organization. Partial responses (no agent configs yet) are
	// tolerated, not errors.
	Load(ctx context.Context, orgID string) (*RemoteSettings, error)

	// Save persists the full credential map and agent configuration
	// snapshot for the organization.
	Save(ctx context.Context, orgID string, credentials map[model.ProviderID]string, configs model.RegistrySnapshot) error
}

// ValidationProbe is the driven port for remote credential liveness
// checks. A (result, nil) return is the provider endpoint's verdict,
// including rejections; a non-nil error means the probe itself could
// not be completed (transport failure, undecodable response).
type ValidationProbe interface {
	ProbeKey(ctx context.Context, provider model.ProviderID, value string) (model.ValidationResult, error)
}
