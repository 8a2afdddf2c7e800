package model

// ProviderID identifies a single credential slot for a third-party
// integration. A provider group (IntegrationGroup) may require several
// credential slots before it counts as connected.
type ProviderID string

const (
	ProviderCRMOAuthClientID     ProviderID = "crm-oauth-client-id"
	ProviderCRMOAuthClientSecret ProviderID = "crm-oauth-client-secret"
	ProviderCRMWebhookSecret     ProviderID = "crm-webhook-secret"
	ProviderLLMPrimary           ProviderID = "llm-primary"
	ProviderLLMRouter            ProviderID = "llm-router"
	ProviderMemoryStore          ProviderID = "memory-store"
	ProviderVoiceSynth           ProviderID = "voice-synth"
	ProviderSMSGateway           ProviderID = "sms-gateway"
	ProviderSMSGatewaySecret     ProviderID = "sms-gateway-secret"
)

// AllProviders lists every known credential slot in display order.
var AllProviders = []ProviderID{
	ProviderCRMOAuthClientID,
	ProviderCRMOAuthClientSecret,
	ProviderCRMWebhookSecret,
	ProviderLLMPrimary,
	ProviderLLMRouter,
	ProviderMemoryStore,
	ProviderVoiceSynth,
	ProviderSMSGateway,
	ProviderSMSGatewaySecret,
}

// Valid reports whether p is a known credential slot.
func (p ProviderID) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// IntegrationGroup names one third-party integration as surfaced on the
// settings screen. Each group gates its "Connected" badge on a fixed set
// of credential slots.
type IntegrationGroup string

const (
	GroupCRM    IntegrationGroup = "crm"
	GroupLLM    IntegrationGroup = "llm"
	GroupRouter IntegrationGroup = "router"
	GroupMemory IntegrationGroup = "memory"
	GroupVoice  IntegrationGroup = "voice"
	GroupSMS    IntegrationGroup = "sms"
)

// AllGroups lists every integration group in display order.
var AllGroups = []IntegrationGroup{
	GroupCRM,
	GroupLLM,
	GroupRouter,
	GroupMemory,
	GroupVoice,
	GroupSMS,
}

// groupRequirements maps each integration group to the credential slots
// that must all be non-empty before the group shows as connected.
var groupRequirements = map[IntegrationGroup][]ProviderID{
	GroupCRM:    {ProviderCRMOAuthClientID, ProviderCRMOAuthClientSecret, ProviderCRMWebhookSecret},
	GroupLLM:    {ProviderLLMPrimary},
	GroupRouter: {ProviderLLMRouter},
	GroupMemory: {ProviderMemoryStore},
	GroupVoice:  {ProviderVoiceSynth},
	GroupSMS:    {ProviderSMSGateway, ProviderSMSGatewaySecret},
}

// RequiredCredentials returns the credential slots gating the given group,
// or nil for an unknown group.
func RequiredCredentials(group IntegrationGroup) []ProviderID {
	return groupRequirements[group]
}

// Valid reports whether g is a known integration group.
func (g IntegrationGroup) Valid() bool {
	_, ok := groupRequirements[g]
	return ok
}
