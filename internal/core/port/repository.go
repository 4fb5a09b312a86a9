package port

import (
	"context"
	"errors"
	"time"

	"mailrun/internal/core/domain"
)

// ErrGroupCycle is returned when composite groups reference each other in a
// cycle. Cycles are rejected outright rather than silently truncated.
var ErrGroupCycle = errors.New("recipient group cycle detected")

// ErrLogWrite wraps a dispatch-log insert failure. It is fatal for the whole
// tick because the log is the delivery-dedup mechanism.
var ErrLogWrite = errors.New("dispatch log write failed")

// ErrUnknownToken is returned when a response event carries a correlation
// token no dispatch-log row matches.
var ErrUnknownToken = errors.New("unknown correlation token")

// ErrCampaignNotFound is returned by reporting reads on a missing campaign.
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignRepository persists campaign records. Lookups return nil, nil when
// no row matches.
type CampaignRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	// NextDue returns the earliest campaign whose schedule has passed, that
	// is not a draft and whose end timestamp is unset. Returns nil when
	// nothing is due.
	NextDue(ctx context.Context, now time.Time) (*domain.Campaign, error)
	// SaveSnapshot stores the resolved recipient selection on the campaign.
	SaveSnapshot(ctx context.Context, id int64, snap *domain.RecipientSnapshot) error
	StampBegin(ctx context.Context, id int64, at time.Time) error
	// StampEnd marks the campaign complete and sets the sent flag.
	StampEnd(ctx context.Context, id int64, at time.Time) error
}

// GroupRepository reads recipient-group definitions.
type GroupRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.RecipientGroup, error)
}

// PageRepository answers page-tree queries for page-scoped groups.
type PageRepository interface {
	// Closure returns the closed page set: the roots plus, when recursive,
	// every readable descendant. Deleted and hidden pages are excluded.
	Closure(ctx context.Context, rctx domain.RequestContext, roots []int64, recursive bool) ([]int64, error)
}

// RecipientRepository queries the database-backed recipient sources. All
// queries honor the opt-in flag and skip deleted or hidden records, and all
// return ids ordered by id with email as tie-break so downstream batching is
// deterministic.
type RecipientRepository interface {
	// IDsByPages selects every qualifying recipient of the source whose
	// container page is in the closed set.
	IDsByPages(ctx context.Context, source domain.SourceTag, pages []int64) ([]int64, error)
	// IDsByCategories selects qualifying recipients tagged with at least one
	// of the categories (OR semantics), restricted to the closed page set.
	IDsByCategories(ctx context.Context, source domain.SourceTag, pages, categories []int64) ([]int64, error)
	// IDsByMembership selects recipients explicitly linked to the group.
	IDsByMembership(ctx context.Context, source domain.SourceTag, groupID int64) ([]int64, error)
	// MemberGroupIDs returns sub-groups linked to the group through the
	// special group-membership source.
	MemberGroupIDs(ctx context.Context, groupID int64) ([]int64, error)
	// GetByID materializes one recipient record, or nil when it vanished.
	GetByID(ctx context.Context, source domain.SourceTag, id int64) (*domain.Recipient, error)
}

// DispatchLogRepository is the append-then-update-own-row delivery log shared
// by the dispatcher and the aggregator.
type DispatchLogRepository interface {
	// AttemptedIDs returns the recipient ids already holding a row for the
	// campaign and source.
	AttemptedIDs(ctx context.Context, campaignID int64, source domain.SourceTag) (map[int64]struct{}, error)
	// InsertPending writes the attempt row before any send happens and fills
	// in the generated id. A failure here must abort the whole tick.
	InsertPending(ctx context.Context, e *domain.DispatchLogEntry) error
	// UpdateSendResult records size, parse duration and delivered format on
	// the row written by InsertPending.
	UpdateSendResult(ctx context.Context, id int64, size int, parseMS int64, format domain.SendFormat) error
	FindByToken(ctx context.Context, token string) (*domain.DispatchLogEntry, error)
	// UpdateResponse mutates the response classification fields, the only
	// fields allowed to change after creation.
	UpdateResponse(ctx context.Context, id int64, kind domain.ResponseKind, bounceReason, linkID int) error

	SendCounts(ctx context.Context, campaignID int64) (map[domain.SendFormat]int64, error)
	ResponseCounts(ctx context.Context, campaignID int64) (map[domain.ResponseKind]int64, error)
	BounceReasons(ctx context.Context, campaignID int64) (map[int]int64, error)
	// ClickCounts returns per-link click tallies keyed by link id, split by
	// response kind.
	ClickCounts(ctx context.Context, campaignID int64) ([]ClickCount, error)
}

// ClickCount is one (link id, kind) click tally from the dispatch log.
type ClickCount struct {
	LinkID int
	Kind   domain.ResponseKind
	Count  int64
}

// RunState guards and records dispatch ticks. At most one tick may run at a
// time across all processes.
type RunState interface {
	// AcquireLock takes the global dispatch lock without blocking. When the
	// lock is free it returns a release func and true; when held elsewhere it
	// returns false.
	AcquireLock(ctx context.Context) (release func(), acquired bool, err error)
	// LockHeld reports whether some process currently holds the lock.
	LockHeld(ctx context.Context) (bool, error)
	// RecordTick stores the completion time and fatal-error message (empty on
	// success) of the latest tick.
	RecordTick(ctx context.Context, at time.Time, fatalMsg string) error
	// LastTick returns the stored tick time and fatal message. The zero time
	// means no tick ever completed.
	LastTick(ctx context.Context) (time.Time, string, error)
}
