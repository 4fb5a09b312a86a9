package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// CampaignRepository implements port.CampaignRepository using pgxpool.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

const campaignColumns = `id, subject, from_name, from_email, reply_to_name, reply_to_email,
	priority, charset, html_body, plain_body, category_ids, html_links,
	redirect_mode, redirect_base, group_ids, snapshot,
	scheduled_at, begin_at, end_at, sent, draft, send_per_tick, created_at, updated_at`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c         domain.Campaign
		mode      string
		linksRaw  []byte
		snapRaw   []byte
	)
	err := row.Scan(
		&c.ID, &c.Subject, &c.FromName, &c.FromEmail, &c.ReplyToName, &c.ReplyToEmail,
		&c.Priority, &c.Charset, &c.HTMLBody, &c.PlainBody, &c.CategoryIDs, &linksRaw,
		&mode, &c.RedirectBase, &c.GroupIDs, &snapRaw,
		&c.ScheduledAt, &c.BeginAt, &c.EndAt, &c.Sent, &c.Draft, &c.SendPerTick,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.RedirectMode = domain.RedirectMode(mode)
	if len(linksRaw) > 0 {
		if err := json.Unmarshal(linksRaw, &c.HTMLLinks); err != nil {
			return nil, fmt.Errorf("decode html links of campaign %d: %w", c.ID, err)
		}
	}
	if len(snapRaw) > 0 {
		var snap domain.RecipientSnapshot
		if err := json.Unmarshal(snapRaw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of campaign %d: %w", c.ID, err)
		}
		c.Snapshot = &snap
	}
	return &c, nil
}

// GetByID returns a campaign by id, or nil when it does not exist.
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// NextDue returns the earliest due, non-draft, unfinished campaign.
func (r *CampaignRepository) NextDue(ctx context.Context, now time.Time) (*domain.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE NOT draft AND end_at IS NULL
		   AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		 ORDER BY scheduled_at, id
		 LIMIT 1`, now)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// SaveSnapshot persists the resolved recipient selection.
func (r *CampaignRepository) SaveSnapshot(ctx context.Context, id int64, snap *domain.RecipientSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE campaigns SET snapshot = $1, updated_at = now() WHERE id = $2`, raw, id)
	return err
}

func (r *CampaignRepository) StampBegin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET begin_at = $1, updated_at = now()
		 WHERE id = $2 AND begin_at IS NULL`, at, id)
	return err
}

func (r *CampaignRepository) StampEnd(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET end_at = $1, sent = true, updated_at = now() WHERE id = $2`, at, id)
	return err
}

var _ port.CampaignRepository = (*CampaignRepository)(nil)
