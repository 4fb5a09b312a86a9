package port

import (
	"context"

	"mailrun/internal/core/domain"
)

// Header names stamped onto every outgoing message so asynchronous responses
// can be correlated back to a dispatch-log row.
const (
	HeaderToken        = "X-Mailrun-Token"
	HeaderOrganization = "Organization"
)

// Attachment is an opaque named byte source included with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ComposedMessage is one fully personalized message ready for delivery.
type ComposedMessage struct {
	CampaignID   int64
	Source       domain.SourceTag
	RecipientID  int64
	To           string
	ToName       string
	Subject      string
	FromName     string
	FromEmail    string
	ReplyToName  string
	ReplyToEmail string
	Priority     int
	Charset      string
	HTMLBody     string
	PlainBody    string
	Attachments  []Attachment
	// Headers carries the correlation token and organization header; the
	// HeaderMutator hook may add or override entries.
	Headers map[string]string
	Token   string
}

// DeliveryOutcome is the transport's verdict for one message.
type DeliveryOutcome struct {
	Delivered bool
	Detail    string
}

// Transport accepts a composed message and attempts delivery. SMTP mechanics
// live behind this interface; the core never speaks the wire protocol.
type Transport interface {
	Send(ctx context.Context, msg *ComposedMessage) (DeliveryOutcome, error)
}
