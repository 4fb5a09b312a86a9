package domain

import "time"

// SendFormat records which body parts were actually delivered.
type SendFormat int16

const (
	FormatNone  SendFormat = 0
	FormatHTML  SendFormat = 1
	FormatPlain SendFormat = 2
	FormatBoth  SendFormat = 3
)

func (f SendFormat) String() string {
	switch f {
	case FormatHTML:
		return "html"
	case FormatPlain:
		return "plain"
	case FormatBoth:
		return "both"
	default:
		return "none"
	}
}

// ResponseKind classifies the asynchronous response recorded against a
// dispatch-log row. The zero value means no response has arrived yet.
type ResponseKind int16

const (
	ResponsePending    ResponseKind = 0
	ResponseHTMLClick  ResponseKind = 1
	ResponsePlainClick ResponseKind = 2
	// ResponsePing covers opens and bounce events whose reason could not be
	// classified.
	ResponsePing   ResponseKind = -1
	ResponseBounce ResponseKind = -127
)

func (k ResponseKind) String() string {
	switch k {
	case ResponsePending:
		return "pending"
	case ResponseHTMLClick:
		return "html_click"
	case ResponsePlainClick:
		return "plain_click"
	case ResponsePing:
		return "ping"
	case ResponseBounce:
		return "bounce"
	default:
		return "unknown"
	}
}

// DispatchLogEntry is one delivery attempt: one row per campaign, source and
// recipient. Rows are inserted before the send is attempted and only the
// response fields may change after creation.
type DispatchLogEntry struct {
	ID          int64
	CampaignID  int64
	Source      SourceTag
	RecipientID int64
	Email       string
	Token       string
	SentAt      time.Time
	Size        int
	ParseMS     int64
	Format      SendFormat
	Response    ResponseKind
	// BounceReason is the bounce classification code, set only when Response
	// is ResponseBounce.
	BounceReason int
	// LinkID is the clicked link identifier, set only for click responses.
	// Positive ids are HTML links, negative ids their plain-text counterparts.
	LinkID int
}
