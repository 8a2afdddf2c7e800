package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

// msgKeyRequired is the fixed message for an empty credential value.
const msgKeyRequired = "API key is required"

// formatRule is the per-provider well-formedness predicate: a required
// prefix plus a minimum length. Rules are deliberately loose; the
// liveness probe is the real authority.
type formatRule struct {
	prefix string
	minLen int
}

var formatRules = map[model.ProviderID]formatRule{
	model.ProviderCRMOAuthClientID:     {minLen: 10},
	model.ProviderCRMOAuthClientSecret: {minLen: 10},
	model.ProviderCRMWebhookSecret:     {minLen: 8},
	model.ProviderLLMPrimary:           {prefix: "sk-", minLen: 20},
	model.ProviderLLMRouter:            {prefix: "sk-or-", minLen: 20},
	model.ProviderMemoryStore:          {prefix: "m0-", minLen: 10},
	model.ProviderVoiceSynth:           {minLen: 32},
	model.ProviderSMSGateway:           {prefix: "AC", minLen: 34},
	model.ProviderSMSGatewaySecret:     {minLen: 32},
}

// probedProviders lists the credential slots with a remote validation
// endpoint. The CRM OAuth pieces are only checked during the CRM
// connect flow, so they get format checks alone here.
var probedProviders = map[model.ProviderID]bool{
	model.ProviderLLMPrimary:       true,
	model.ProviderLLMRouter:        true,
	model.ProviderMemoryStore:      true,
	model.ProviderVoiceSynth:       true,
	model.ProviderSMSGateway:       true,
	model.ProviderSMSGatewaySecret: true,
}

// CredentialValidator decides whether a credential value is well-formed
// and, where a remote endpoint exists, live. It is stateless: the
// caller is responsible for writing the result into the store.
type CredentialValidator struct {
	probe driven.ValidationProbe
	now   func() time.Time
}

// NewCredentialValidator creates a validator that delegates liveness
// checks to the given probe.
func NewCredentialValidator(probe driven.ValidationProbe) *CredentialValidator {
	return &CredentialValidator{
		probe: probe,
		now:   time.Now,
	}
}

// Validate checks the value for the provider. Empty input and format
// failures short-circuit without a network call. Probe rejections come
// back with the server's message; a probe transport failure is reported
// as an invalid result rather than an error, since the caller treats
// every outcome as advisory display state.
func (v *CredentialValidator) Validate(ctx context.Context, provider model.ProviderID, value string) model.ValidationResult {
	if strings.TrimSpace(value) == "" {
		return v.result(false, msgKeyRequired)
	}

	rule, ok := formatRules[provider]
	if !ok {
		return v.result(false, fmt.Sprintf("unknown provider %q", provider))
	}

	if rule.prefix != "" && !strings.HasPrefix(value, rule.prefix) {
		return v.result(false, fmt.Sprintf("%s keys must start with %q", provider, rule.prefix))
	}
	if len(value) < rule.minLen {
		return v.result(false, fmt.Sprintf("%s keys must be at least %d characters", provider, rule.minLen))
	}

	if !probedProviders[provider] {
		return v.result(true, "Key format looks valid")
	}

	res, err := v.probe.ProbeKey(ctx, provider, value)
	if err != nil {
		return v.result(false, fmt.Sprintf("validation request failed: %v", err))
	}
	res.CheckedAt = v.now().UTC()
	return res
}

func (v *CredentialValidator) result(valid bool, message string) model.ValidationResult {
	return model.ValidationResult{
		Valid:     valid,
		Message:   message,
		CheckedAt: v.now().UTC(),
	}
}
