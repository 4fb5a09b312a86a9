package domain

// GroupKind discriminates the recipient-group variants.
type GroupKind string

const (
	// GroupPages selects recipients living under a set of pages.
	GroupPages GroupKind = "pages"
	// GroupStatic selects recipients explicitly linked to the group.
	GroupStatic GroupKind = "static"
	// GroupInline carries a literal address list.
	GroupInline GroupKind = "inline"
	// GroupComposite references other groups.
	GroupComposite GroupKind = "composite"
)

// ListFormat describes how an inline list payload is encoded.
type ListFormat string

const (
	ListFormatPlain ListFormat = "plain"
	ListFormatCSV   ListFormat = "csv"
)

// RecipientGroup is a named selection rule. Kind decides which of the variant
// field sets is meaningful; the others are ignored.
type RecipientGroup struct {
	ID   int64
	Name string
	Kind GroupKind

	// GroupPages: page scope, source set (an explicit tagged set, never a
	// bitmask) and optional category filter with OR semantics.
	PageIDs     []int64
	Recursive   bool
	Sources     []SourceTag
	CategoryIDs []int64

	// GroupInline: literal list plus the category set and HTML capability
	// stamped onto every parsed entry.
	RawList     string
	ListLayout  ListFormat
	CSVColumns  []string
	HTMLAllowed bool

	// GroupComposite: child group ids, resolved recursively.
	ChildIDs []int64
}
