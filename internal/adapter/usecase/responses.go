package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
	"mailrun/internal/metrics"
)

// Responses ingests asynchronous response, bounce and click events and
// applies them to the matching dispatch-log row. The classification fields
// are the only thing that ever changes on a logged attempt.
type Responses struct {
	log    port.DispatchLogRepository
	logger *slog.Logger
}

func NewResponses(log port.DispatchLogRepository, logger *slog.Logger) *Responses {
	return &Responses{log: log, logger: logger}
}

// RecordResponse classifies the row matching token. bounceReason is only
// honored for bounces, linkID only for clicks.
func (r *Responses) RecordResponse(ctx context.Context, token string, kind domain.ResponseKind, bounceReason, linkID int) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", port.ErrUnknownToken)
	}
	switch kind {
	case domain.ResponseHTMLClick, domain.ResponsePlainClick, domain.ResponsePing, domain.ResponseBounce:
	default:
		return fmt.Errorf("unsupported response kind %d", kind)
	}
	entry, err := r.log.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if entry == nil {
		return port.ErrUnknownToken
	}

	if kind != domain.ResponseBounce {
		bounceReason = 0
	}
	if kind != domain.ResponseHTMLClick && kind != domain.ResponsePlainClick {
		linkID = 0
	}
	if err := r.log.UpdateResponse(ctx, entry.ID, kind, bounceReason, linkID); err != nil {
		return err
	}
	metrics.ResponsesRecorded.WithLabelValues(kind.String()).Inc()
	r.logger.Info("response recorded",
		slog.Int64("campaign_id", entry.CampaignID),
		slog.String("source", string(entry.Source)),
		slog.Int64("recipient_id", entry.RecipientID),
		slog.String("kind", kind.String()))
	return nil
}

var _ port.ResponseRecorder = (*Responses)(nil)
