package application

import (
	"github.com/nharlow/leadpanel/internal/domain/model"
)

// ResolveStatus derives the connection status of one integration group
// from the current credential records. A group is connected iff every
// required slot holds a non-blank value. Validation outcome does not
// factor in: a populated but never-validated (or even rejected) key
// still shows as connected, matching the settings screen's behavior.
// Validation failures surface beside the field instead.
func ResolveStatus(group model.IntegrationGroup, records map[model.ProviderID]model.ProviderCredential) model.IntegrationStatus {
	required := model.RequiredCredentials(group)

	connected := len(required) > 0
	for _, provider := range required {
		if !records[provider].IsSet() {
			connected = false
			break
		}
	}

	label := model.StatusLabelNotConfigured
	if connected {
		label = model.StatusLabelConnected
	}

	return model.IntegrationStatus{
		Group:     group,
		Connected: connected,
		Label:     label,
	}
}

// ResolveAllStatuses derives the status of every integration group.
func ResolveAllStatuses(records map[model.ProviderID]model.ProviderCredential) []model.IntegrationStatus {
	statuses := make([]model.IntegrationStatus, 0, len(model.AllGroups))
	for _, group := range model.AllGroups {
		statuses = append(statuses, ResolveStatus(group, records))
	}
	return statuses
}

// DivergentStatuses returns the groups where the server-reported
// status disagrees with the local resolution. The local view stays
// authoritative for display; callers log disagreements so server-side
// revocations are not lost silently.
func DivergentStatuses(server map[model.IntegrationGroup]model.IntegrationStatus, local []model.IntegrationStatus) []model.IntegrationGroup {
	var diverged []model.IntegrationGroup
	for _, st := range local {
		remote, ok := server[st.Group]
		if ok && remote.Connected != st.Connected {
			diverged = append(diverged, st.Group)
		}
	}
	return diverged
}

// MissingCredentials returns the required slots of the group that are
// still blank. Used as the local precondition for the connect action on
// grouped providers, which requires every slot populated before
// proceeding.
func MissingCredentials(group model.IntegrationGroup, records map[model.ProviderID]model.ProviderCredential) []model.ProviderID {
	var missing []model.ProviderID
	for _, provider := range model.RequiredCredentials(group) {
		if !records[provider].IsSet() {
			missing = append(missing, provider)
		}
	}
	return missing
}
