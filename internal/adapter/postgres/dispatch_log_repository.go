package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// DispatchLogRepository implements the append-then-update-own-row delivery
// log. No delete path exists here; purging is external tooling.
type DispatchLogRepository struct {
	pool *pgxpool.Pool
}

func NewDispatchLogRepository(pool *pgxpool.Pool) *DispatchLogRepository {
	return &DispatchLogRepository{pool: pool}
}

// AttemptedIDs returns every recipient id already holding a row for the
// campaign and source. Any row counts: delivery is at-most-once.
func (r *DispatchLogRepository) AttemptedIDs(ctx context.Context, campaignID int64, source domain.SourceTag) (map[int64]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT recipient_id FROM dispatch_log
		 WHERE campaign_id = $1 AND source = $2`, campaignID, string(source))
	if err != nil {
		return nil, err
	}
	ids := map[int64]struct{}{}
	var id int64
	_, err = pgx.ForEachRow(rows, []any{&id}, func() error {
		ids[id] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertPending writes the attempt row before any send happens. The unique
// constraint on (campaign_id, source, recipient_id) backs the at-most-once
// guarantee; a violation surfaces as an error the dispatcher treats as fatal.
func (r *DispatchLogRepository) InsertPending(ctx context.Context, e *domain.DispatchLogEntry) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO dispatch_log
		   (campaign_id, source, recipient_id, email, token, sent_at, response)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		e.CampaignID, string(e.Source), e.RecipientID, e.Email, e.Token, e.SentAt, int16(e.Response),
	).Scan(&e.ID)
}

func (r *DispatchLogRepository) UpdateSendResult(ctx context.Context, id int64, size int, parseMS int64, format domain.SendFormat) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE dispatch_log SET size = $1, parse_ms = $2, format = $3 WHERE id = $4`,
		size, parseMS, int16(format), id)
	return err
}

func (r *DispatchLogRepository) FindByToken(ctx context.Context, token string) (*domain.DispatchLogEntry, error) {
	var (
		e      domain.DispatchLogEntry
		source string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, campaign_id, source, recipient_id, email, token, sent_at,
		        size, parse_ms, format, response, bounce_reason, link_id
		 FROM dispatch_log WHERE token = $1`, token).Scan(
		&e.ID, &e.CampaignID, &source, &e.RecipientID, &e.Email, &e.Token, &e.SentAt,
		&e.Size, &e.ParseMS, &e.Format, &e.Response, &e.BounceReason, &e.LinkID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Source = domain.SourceTag(source)
	return &e, nil
}

// UpdateResponse mutates the classification fields, the only mutation a row
// ever sees after creation.
func (r *DispatchLogRepository) UpdateResponse(ctx context.Context, id int64, kind domain.ResponseKind, bounceReason, linkID int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE dispatch_log SET response = $1, bounce_reason = $2, link_id = $3 WHERE id = $4`,
		int16(kind), bounceReason, linkID, id)
	return err
}

func (r *DispatchLogRepository) SendCounts(ctx context.Context, campaignID int64) (map[domain.SendFormat]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT format, count(*) FROM dispatch_log
		 WHERE campaign_id = $1 GROUP BY format`, campaignID)
	if err != nil {
		return nil, err
	}
	counts := map[domain.SendFormat]int64{}
	var (
		format int16
		n      int64
	)
	_, err = pgx.ForEachRow(rows, []any{&format, &n}, func() error {
		counts[domain.SendFormat(format)] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *DispatchLogRepository) ResponseCounts(ctx context.Context, campaignID int64) (map[domain.ResponseKind]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT response, count(*) FROM dispatch_log
		 WHERE campaign_id = $1 AND response <> 0 GROUP BY response`, campaignID)
	if err != nil {
		return nil, err
	}
	counts := map[domain.ResponseKind]int64{}
	var (
		kind int16
		n    int64
	)
	_, err = pgx.ForEachRow(rows, []any{&kind, &n}, func() error {
		counts[domain.ResponseKind(kind)] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *DispatchLogRepository) BounceReasons(ctx context.Context, campaignID int64) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT bounce_reason, count(*) FROM dispatch_log
		 WHERE campaign_id = $1 AND response = $2 GROUP BY bounce_reason`,
		campaignID, int16(domain.ResponseBounce))
	if err != nil {
		return nil, err
	}
	reasons := map[int]int64{}
	var (
		code int
		n    int64
	)
	_, err = pgx.ForEachRow(rows, []any{&code, &n}, func() error {
		reasons[code] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reasons, nil
}

func (r *DispatchLogRepository) ClickCounts(ctx context.Context, campaignID int64) ([]port.ClickCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT link_id, response, count(*) FROM dispatch_log
		 WHERE campaign_id = $1 AND response IN ($2, $3)
		 GROUP BY link_id, response
		 ORDER BY link_id, response`,
		campaignID, int16(domain.ResponseHTMLClick), int16(domain.ResponsePlainClick))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (port.ClickCount, error) {
		var (
			cc   port.ClickCount
			kind int16
		)
		err := row.Scan(&cc.LinkID, &kind, &cc.Count)
		cc.Kind = domain.ResponseKind(kind)
		return cc, err
	})
}

var _ port.DispatchLogRepository = (*DispatchLogRepository)(nil)
