package driven

import (
	"context"
	"errors"

	"github.com/nharlow/leadpanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by SettingsCache operations when
// LEADPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set LEADPANEL_SECRET_KEY")

// SettingsCache is the driven port for the local last-known-good
// snapshot of an organization's settings. The adapter encrypts secret
// values at rest; this interface operates on plaintext at the domain
// boundary. The cache is advisory: it hydrates the console when the
// remote API is unreachable and is overwritten after every successful
// load or save.
type SettingsCache interface {
	// PutCredentials replaces the cached credential map for the organization.
	PutCredentials(ctx context.Context, orgID string, credentials map[model.ProviderID]string) error

	// GetCredentials returns the cached credential map. An organization
	// with no cached credentials yields an empty map, not an error.
	GetCredentials(ctx context.Context, orgID string) (map[model.ProviderID]string, error)

	// PutAgentConfigs replaces the cached agent configuration snapshot.
	PutAgentConfigs(ctx context.Context, orgID string, snapshot model.RegistrySnapshot) error

	// GetAgentConfigs returns the cached snapshot, or nil if the
	// organization has never been cached.
	GetAgentConfigs(ctx context.Context, orgID string) (*model.RegistrySnapshot, error)
}
