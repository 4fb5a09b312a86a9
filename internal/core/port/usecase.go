package port

import (
	"context"

	"mailrun/internal/core/domain"
)

// TickResult tells the caller what one dispatch tick did.
type TickResult int

const (
	// TickIdle means no campaign was due.
	TickIdle TickResult = iota
	// TickSkipped means another tick holds the dispatch lock.
	TickSkipped
	// TickRan means a batch was sent but the campaign is not finished.
	TickRan
	// TickCompleted means the campaign was fully sent and marked complete.
	TickCompleted
)

func (r TickResult) String() string {
	switch r {
	case TickIdle:
		return "idle"
	case TickSkipped:
		return "skipped"
	case TickRan:
		return "ran"
	case TickCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Resolver turns group definitions into deduplicated per-source recipient
// lists.
type Resolver interface {
	// Resolve resolves one group. Unknown variants yield an empty map, not an
	// error; cyclic composites yield ErrGroupCycle.
	Resolve(ctx context.Context, rctx domain.RequestContext, groupID int64) (map[domain.SourceTag][]domain.RecipientRef, error)
	// ResolveMany resolves several groups and merges the results the same way
	// a composite group would.
	ResolveMany(ctx context.Context, rctx domain.RequestContext, groupIDs []int64) (map[domain.SourceTag][]domain.RecipientRef, error)
}

// Dispatcher runs the rate-limited, resumable batch loop.
type Dispatcher interface {
	RunTick(ctx context.Context, rctx domain.RequestContext) (TickResult, error)
}

// ResponseRecorder ingests asynchronous response, bounce and click events
// keyed by correlation token.
type ResponseRecorder interface {
	RecordResponse(ctx context.Context, token string, kind domain.ResponseKind, bounceReason, linkID int) error
}

// StatRow is one reporting line: a raw count plus its rendered form with the
// percentage of the row's denominator.
type StatRow struct {
	Label   string `json:"label"`
	Count   int64  `json:"count"`
	Display string `json:"display"`
}

// PerformanceData is the send/response summary of one campaign.
type PerformanceData struct {
	CampaignID int64     `json:"campaign_id"`
	TotalSent  int64     `json:"total_sent"`
	Rows       []StatRow `json:"rows"`
}

// ReturnedData is the bounce breakdown of one campaign.
type ReturnedData struct {
	CampaignID   int64     `json:"campaign_id"`
	TotalBounces int64     `json:"total_bounces"`
	Rows         []StatRow `json:"rows"`
}

// LinkStat is one row of the link-popularity table. HTML and plain clicks on
// the same destination URL are folded together.
type LinkStat struct {
	LinkID     int    `json:"link_id"`
	URL        string `json:"url"`
	Label      string `json:"label,omitempty"`
	HTMLCount  int64  `json:"html_count"`
	PlainCount int64  `json:"plain_count"`
	Total      int64  `json:"total"`
}

// ResponsesData is the link-popularity table of one campaign, sorted by total
// descending.
type ResponsesData struct {
	CampaignID int64      `json:"campaign_id"`
	Links      []LinkStat `json:"links"`
}

// Reporter serves the reporting read API.
type Reporter interface {
	GetPerformanceData(ctx context.Context, campaignID int64) (*PerformanceData, error)
	GetReturnedData(ctx context.Context, campaignID int64) (*ReturnedData, error)
	GetResponsesData(ctx context.Context, campaignID int64) (*ResponsesData, error)
}
