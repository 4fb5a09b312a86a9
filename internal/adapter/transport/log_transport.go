package transport

import (
	"context"
	"log/slog"

	"mailrun/internal/core/port"
)

// LogTransport records every composed message through the structured logger
// instead of handing it to a mail relay. It is the transport used in
// development and in tests; a real SMTP implementation plugs in behind the
// same interface.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg *port.ComposedMessage) (port.DeliveryOutcome, error) {
	t.logger.InfoContext(ctx, "message composed",
		slog.Int64("campaign_id", msg.CampaignID),
		slog.String("source", string(msg.Source)),
		slog.Int64("recipient_id", msg.RecipientID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_len", len(msg.HTMLBody)),
		slog.Int("plain_len", len(msg.PlainBody)),
		slog.String("token", msg.Token),
	)
	return port.DeliveryOutcome{Delivered: true, Detail: "logged"}, nil
}

var _ port.Transport = (*LogTransport)(nil)
