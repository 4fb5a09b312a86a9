package domain

import "time"

// RedirectMode controls how plain-text links are rewritten into tracked
// redirect URLs.
type RedirectMode string

const (
	RedirectNone  RedirectMode = "none"
	RedirectLong  RedirectMode = "long"
	RedirectShort RedirectMode = "short"
)

// CampaignLink is a hyperlink or media reference extracted from the HTML part
// at campaign-fetch time. IDs are positive for HTML links; plain-text links
// discovered during personalization use the negative counterpart so the two
// sides can be correlated later.
type CampaignLink struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// Campaign represents one scheduled bulk-mail send job.
type Campaign struct {
	ID           int64
	Subject      string
	FromName     string
	FromEmail    string
	ReplyToName  string
	ReplyToEmail string
	Priority     int
	Charset      string
	HTMLBody     string
	PlainBody    string
	CategoryIDs  []int64
	HTMLLinks    []CampaignLink
	RedirectMode RedirectMode
	RedirectBase string
	GroupIDs     []int64
	Snapshot     *RecipientSnapshot
	ScheduledAt  *time.Time
	BeginAt      *time.Time
	EndAt        *time.Time
	Sent         bool
	Draft        bool
	SendPerTick  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SnapshotVersion is the current schema version of persisted recipient
// snapshots. Bump when the snapshot layout changes.
const SnapshotVersion = 1

// RecipientSnapshot is the resolved recipient selection persisted on the
// campaign at first dispatch, so the send stays reproducible even when group
// membership changes afterwards.
type RecipientSnapshot struct {
	Version int                          `json:"version"`
	Lists   map[SourceTag][]RecipientRef `json:"lists"`
}

// Total returns the number of recipients across all sources.
func (s *RecipientSnapshot) Total() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, refs := range s.Lists {
		n += len(refs)
	}
	return n
}
