package model

import (
	"strings"
	"time"
)

// ValidationResult records the outcome of one credential validation run.
// Results are immutable; a re-validation produces a new value that
// supersedes the previous one.
type ValidationResult struct {
	Valid     bool
	Message   string
	CheckedAt time.Time
}

// ProviderCredential holds the current, possibly unsaved, value of one
// credential slot. SecretValue is opaque text; this subsystem never
// interprets it beyond format checks. LastValidation is nil until the
// validator has run against the current value, and is cleared whenever
// the value changes.
type ProviderCredential struct {
	Provider       ProviderID
	SecretValue    string
	LastValidation *ValidationResult
}

// IsSet reports whether the credential has a non-blank value.
func (c ProviderCredential) IsSet() bool {
	return strings.TrimSpace(c.SecretValue) != ""
}

// MaskedValue returns the secret with all but the last four characters
// replaced, for display. Short values are fully masked.
func (c ProviderCredential) MaskedValue() string {
	v := c.SecretValue
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// Integration status labels. The status is two-valued: validation
// failures surface beside the field, never on the badge.
const (
	StatusLabelConnected     = "Connected"
	StatusLabelNotConfigured = "Not configured"
)

// IntegrationStatus is the derived connection state of one integration
// group. It is recomputed on every read and never stored.
type IntegrationStatus struct {
	Group     IntegrationGroup
	Connected bool
	Label     string
}
