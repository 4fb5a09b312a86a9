package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
	"mailrun/internal/metrics"
)

// DefaultSendPerTick bounds one invocation when neither the campaign nor the
// configuration says otherwise.
const DefaultSendPerTick = 50

// DispatcherDeps bundles the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Campaigns    port.CampaignRepository
	Recipients   port.RecipientRepository
	Log          port.DispatchLogRepository
	State        port.RunState
	Resolver     port.Resolver
	Personalizer *Personalizer
	Transport    port.Transport
	// ListFilter and Headers are optional extension points.
	ListFilter port.RecipientListFilter
	Headers    port.HeaderMutator
}

// Dispatcher runs the batch send loop: one earliest-due campaign per tick,
// at most sendPerTick messages across all sources, log-write-before-send.
type Dispatcher struct {
	deps          DispatcherDeps
	sendPerTick   int
	operatorEmail string
	logger        *slog.Logger
	now           func() time.Time
}

func NewDispatcher(deps DispatcherDeps, sendPerTick int, operatorEmail string, logger *slog.Logger) *Dispatcher {
	if sendPerTick <= 0 {
		sendPerTick = DefaultSendPerTick
	}
	return &Dispatcher{
		deps:          deps,
		sendPerTick:   sendPerTick,
		operatorEmail: operatorEmail,
		logger:        logger,
		now:           time.Now,
	}
}

// RunTick executes one dispatch tick under the global lock. A held lock is
// not an error: the tick reports TickSkipped and exits immediately.
func (d *Dispatcher) RunTick(ctx context.Context, rctx domain.RequestContext) (port.TickResult, error) {
	release, acquired, err := d.deps.State.AcquireLock(ctx)
	if err != nil {
		return port.TickSkipped, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !acquired {
		d.logger.Info("dispatch lock held, skipping tick")
		return port.TickSkipped, nil
	}
	defer release()

	start := d.now()
	result, err := d.runLocked(ctx, rctx)
	metrics.TickDuration.Observe(d.now().Sub(start).Seconds())

	fatalMsg := ""
	if err != nil {
		fatalMsg = err.Error()
	}
	// The tick record must survive a canceled run context; it backs the
	// operator health signal.
	if rerr := d.deps.State.RecordTick(context.WithoutCancel(ctx), d.now(), fatalMsg); rerr != nil {
		d.logger.Warn("record tick state", slog.Any("error", rerr))
	}
	return result, err
}

func (d *Dispatcher) runLocked(ctx context.Context, rctx domain.RequestContext) (port.TickResult, error) {
	now := d.now()
	camp, err := d.deps.Campaigns.NextDue(ctx, now)
	if err != nil {
		return port.TickIdle, fmt.Errorf("query due campaigns: %w", err)
	}
	if camp == nil {
		d.logger.Info("nothing to do")
		return port.TickIdle, nil
	}
	logger := d.logger.With(slog.Int64("campaign_id", camp.ID))

	// First touch: resolve the persisted selection once, let the filter hook
	// adjust it, then stamp the begin timestamp. A resolution failure aborts
	// the tick without stamping, so the campaign stays eligible for retry.
	if camp.Snapshot == nil || len(camp.Snapshot.Lists) == 0 {
		lists, err := d.deps.Resolver.ResolveMany(ctx, rctx, camp.GroupIDs)
		if err != nil {
			return port.TickIdle, fmt.Errorf("resolve recipients of campaign %d: %w", camp.ID, err)
		}
		if d.deps.ListFilter != nil {
			lists, err = d.deps.ListFilter.FilterRecipients(ctx, camp, lists)
			if err != nil {
				return port.TickIdle, fmt.Errorf("recipient list filter: %w", err)
			}
		}
		snap := &domain.RecipientSnapshot{Version: domain.SnapshotVersion, Lists: lists}
		if err := d.deps.Campaigns.SaveSnapshot(ctx, camp.ID, snap); err != nil {
			return port.TickIdle, fmt.Errorf("persist recipient snapshot: %w", err)
		}
		camp.Snapshot = snap
		logger.Info("recipient selection resolved", slog.Int("recipients", snap.Total()))
	}
	if camp.BeginAt == nil {
		if err := d.deps.Campaigns.StampBegin(ctx, camp.ID, now); err != nil {
			return port.TickIdle, fmt.Errorf("stamp begin: %w", err)
		}
		camp.BeginAt = &now
	}

	var segsHTML, segsPlain []domain.Segment
	if camp.HTMLBody != "" {
		segsHTML = domain.SplitContent(camp.HTMLBody)
	}
	if camp.PlainBody != "" {
		segsPlain = domain.SplitContent(camp.PlainBody)
	}

	limit := camp.SendPerTick
	if limit <= 0 {
		limit = d.sendPerTick
	}

	// The limit applies across all sources combined; processing stops
	// mid-source once it is reached and the next tick resumes via the
	// already-attempted check.
	sent := 0
	defer func() { metrics.TickBatchSize.Observe(float64(sent)) }()
	for _, source := range domain.SourceOrder {
		refs := camp.Snapshot.Lists[source]
		if len(refs) == 0 {
			continue
		}
		attempted, err := d.deps.Log.AttemptedIDs(ctx, camp.ID, source)
		if err != nil {
			return port.TickRan, fmt.Errorf("query attempted recipients: %w", err)
		}
		for _, ref := range refs {
			if ctx.Err() != nil {
				logger.Info("tick canceled, will resume on next run", slog.Int("sent", sent))
				return port.TickRan, nil
			}
			if _, done := attempted[ref.ID]; done {
				continue
			}
			if sent >= limit {
				logger.Info("send limit reached, not finished",
					slog.Int("sent", sent), slog.Int("limit", limit))
				return port.TickRan, nil
			}
			if err := d.sendOne(ctx, camp, source, ref, segsHTML, segsPlain); err != nil {
				return port.TickRan, err
			}
			sent++
		}
	}

	end := d.now()
	if err := d.deps.Campaigns.StampEnd(ctx, camp.ID, end); err != nil {
		return port.TickRan, fmt.Errorf("stamp end: %w", err)
	}
	d.notifyOperator(ctx, camp)
	logger.Info("campaign completed", slog.Int("sent_this_tick", sent))
	return port.TickCompleted, nil
}

// sendOne processes a single recipient: pending log row first, then
// personalize and send, then the result update. Only the pending insert is
// fatal; it is the delivery-dedup mechanism and must never be skipped
// silently. Everything after it marks the recipient attempted no matter what,
// so delivery stays at-most-once.
func (d *Dispatcher) sendOne(ctx context.Context, camp *domain.Campaign, source domain.SourceTag, ref domain.RecipientRef, segsHTML, segsPlain []domain.Segment) error {
	start := d.now()
	token := NewCorrelationToken(camp.ID, source, ref.ID)
	entry := &domain.DispatchLogEntry{
		CampaignID:  camp.ID,
		Source:      source,
		RecipientID: ref.ID,
		Email:       ref.Email,
		Token:       token,
		SentAt:      start,
		Response:    domain.ResponsePending,
	}
	if err := d.deps.Log.InsertPending(ctx, entry); err != nil {
		return fmt.Errorf("%w: campaign %d %s/%d: %v", port.ErrLogWrite, camp.ID, source, ref.ID, err)
	}
	logger := d.logger.With(
		slog.Int64("campaign_id", camp.ID),
		slog.String("source", string(source)),
		slog.Int64("recipient_id", ref.ID))

	rcpt, err := d.materialize(ctx, source, ref)
	if err != nil {
		return fmt.Errorf("load recipient %s/%d: %w", source, ref.ID, err)
	}
	if rcpt == nil {
		logger.Warn("recipient vanished since snapshot, marked attempted")
		d.finish(ctx, logger, entry.ID, 0, start, domain.FormatNone)
		metrics.MailsSkipped.Inc()
		return nil
	}

	msg, perr := d.deps.Personalizer.Personalize(camp, source, rcpt, segsHTML, segsPlain, token)
	if perr != nil {
		logger.Warn("personalization failed, recipient skipped", slog.Any("error", perr))
		d.finish(ctx, logger, entry.ID, 0, start, domain.FormatNone)
		metrics.MailsSkipped.Inc()
		return nil
	}
	if msg == nil {
		logger.Info("no qualifying content for recipient, nothing to send")
		d.finish(ctx, logger, entry.ID, 0, start, domain.FormatNone)
		metrics.MailsSkipped.Inc()
		return nil
	}
	if d.deps.Headers != nil {
		d.deps.Headers.MutateHeaders(camp, rcpt, msg.Headers)
	}

	format := formatOf(msg)
	outcome, serr := d.deps.Transport.Send(ctx, msg)
	if serr != nil || !outcome.Delivered {
		detail := outcome.Detail
		if serr != nil {
			detail = serr.Error()
		}
		// Not retried within this tick; a later bounce event may still
		// correlate to the row via the token.
		logger.Warn("delivery failed", slog.String("detail", detail))
		metrics.MailsFailed.Inc()
		format = domain.FormatNone
	} else {
		metrics.MailsSent.WithLabelValues(format.String()).Inc()
	}
	d.finish(ctx, logger, entry.ID, len(msg.HTMLBody)+len(msg.PlainBody), start, format)
	return nil
}

// finish records size, parse duration and delivered format on the attempt
// row. The row already exists, so a failed update cannot cause a double send;
// it is logged and swallowed.
func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, entryID int64, size int, start time.Time, format domain.SendFormat) {
	parseMS := d.now().Sub(start).Milliseconds()
	if err := d.deps.Log.UpdateSendResult(ctx, entryID, size, parseMS, format); err != nil {
		logger.Warn("update send result", slog.Any("error", err))
	}
}

func (d *Dispatcher) materialize(ctx context.Context, source domain.SourceTag, ref domain.RecipientRef) (*domain.Recipient, error) {
	if source == domain.SourceInline {
		return &domain.Recipient{
			ID:          ref.ID,
			Email:       ref.Email,
			Name:        ref.Name,
			HTMLAllowed: ref.HTMLAllowed,
			Categories:  ref.Categories,
		}, nil
	}
	return d.deps.Recipients.GetByID(ctx, source, ref.ID)
}

// notifyOperator sends the optional job-finished mail. Failures only warn;
// the campaign is complete either way.
func (d *Dispatcher) notifyOperator(ctx context.Context, camp *domain.Campaign) {
	if d.operatorEmail == "" {
		return
	}
	msg := &port.ComposedMessage{
		CampaignID: camp.ID,
		To:         d.operatorEmail,
		Subject:    fmt.Sprintf("Campaign %q finished", camp.Subject),
		FromName:   camp.FromName,
		FromEmail:  camp.FromEmail,
		Charset:    camp.Charset,
		PlainBody: fmt.Sprintf("Campaign %d (%s) has been fully dispatched to %d recipients.",
			camp.ID, camp.Subject, camp.Snapshot.Total()),
		Headers: map[string]string{},
	}
	if _, err := d.deps.Transport.Send(ctx, msg); err != nil {
		d.logger.Warn("operator notification failed", slog.Any("error", err))
	}
}

func formatOf(msg *port.ComposedMessage) domain.SendFormat {
	switch {
	case msg.HTMLBody != "" && msg.PlainBody != "":
		return domain.FormatBoth
	case msg.HTMLBody != "":
		return domain.FormatHTML
	case msg.PlainBody != "":
		return domain.FormatPlain
	default:
		return domain.FormatNone
	}
}

var _ port.Dispatcher = (*Dispatcher)(nil)
