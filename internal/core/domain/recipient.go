package domain

// SourceTag identifies one logical origin of recipient records.
type SourceTag string

const (
	// SourceContacts is the plain address-book table.
	SourceContacts SourceTag = "contacts"
	// SourceMembers is the content-managed member records table. Categories
	// and the active flag are read through the member record, not raw fields.
	SourceMembers SourceTag = "members"
	// SourceInline is the family of literal per-group address lists. Entries
	// carry synthetic ids so distinct groups never collide.
	SourceInline SourceTag = "inline"
)

// SourceOrder fixes the iteration order over sources wherever ordering is
// observable (batching, snapshots). Map iteration order must never leak.
var SourceOrder = []SourceTag{SourceContacts, SourceMembers, SourceInline}

// InlineIDStride spaces synthetic inline-list ids apart per group:
// id = groupID*InlineIDStride + position. Lists longer than the stride are
// rejected at parse time.
const InlineIDStride = 1_000_000

// RecipientRef points at one recipient inside a resolved selection. For
// database-backed sources only ID is set; inline entries are self-contained.
type RecipientRef struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email,omitempty"`
	Name        string  `json:"name,omitempty"`
	HTMLAllowed bool    `json:"html_allowed,omitempty"`
	Categories  []int64 `json:"categories,omitempty"`
}

// BroadcastCategory is the sentinel subscribed-category value that bypasses
// all content filtering. Used for broadcast test sends.
const BroadcastCategory int64 = -1

// Recipient is a fully materialized recipient record, ready for
// personalization.
type Recipient struct {
	ID          int64
	Email       string
	Name        string
	FirstName   string
	Title       string
	Phone       string
	WWW         string
	Address     string
	Company     string
	City        string
	Zip         string
	Country     string
	Fax         string
	HTMLAllowed bool
	Categories  []int64
	// Extra carries installation-specific additional fields made available
	// to placeholder substitution alongside the fixed allow-list.
	Extra map[string]string
}

// Broadcast reports whether the recipient carries the sentinel category that
// disables segment filtering.
func (r *Recipient) Broadcast() bool {
	for _, c := range r.Categories {
		if c == BroadcastCategory {
			return true
		}
	}
	return false
}
