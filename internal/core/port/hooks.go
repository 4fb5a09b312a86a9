package port

import (
	"context"

	"mailrun/internal/core/domain"
)

// The extension points below replace dynamic by-name hook registration with
// explicit typed callback slots. All of them are optional; nil means no hook.

// RecipientListFilter may alter the resolved recipient lists before the first
// batch of a campaign is dispatched.
type RecipientListFilter interface {
	FilterRecipients(ctx context.Context, campaign *domain.Campaign, lists map[domain.SourceTag][]domain.RecipientRef) (map[domain.SourceTag][]domain.RecipientRef, error)
}

// HeaderMutator may adjust the headers of each composed message before it is
// handed to the transport.
type HeaderMutator interface {
	MutateHeaders(campaign *domain.Campaign, recipient *domain.Recipient, headers map[string]string)
}

// LinkLabelResolver supplies display labels for tracked links in reports.
type LinkLabelResolver interface {
	ResolveLabel(campaign *domain.Campaign, link domain.CampaignLink) string
}
