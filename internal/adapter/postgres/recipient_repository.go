package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// sourceConfig declares how one database-backed recipient source is queried:
// the underlying table, its category index, how "active" is expressed and
// whether the opt-in flag must be honored. The members source models its
// state through the richer member record (an active flag instead of raw
// hidden fields), contacts use direct field access.
type sourceConfig struct {
	table         string
	categoryTable string
	categoryFK    string
	activeClause  string
	enforceOptIn  bool
}

var sourceConfigs = map[domain.SourceTag]sourceConfig{
	domain.SourceContacts: {
		table:         "contacts",
		categoryTable: "contact_categories",
		categoryFK:    "contact_id",
		activeClause:  "NOT r.hidden",
		enforceOptIn:  true,
	},
	domain.SourceMembers: {
		table:         "members",
		categoryTable: "member_categories",
		categoryFK:    "member_id",
		activeClause:  "r.active",
		enforceOptIn:  true,
	},
}

// RecipientRepository implements port.RecipientRepository and
// port.PageRepository over the contacts and members tables.
type RecipientRepository struct {
	pool *pgxpool.Pool
}

func NewRecipientRepository(pool *pgxpool.Pool) *RecipientRepository {
	return &RecipientRepository{pool: pool}
}

// Closure computes the closed page set: roots plus all readable descendants
// when recursive. Deleted and hidden pages never qualify, and a non-zero site
// scope restricts the set to that site.
func (r *RecipientRepository) Closure(ctx context.Context, rctx domain.RequestContext, roots []int64, recursive bool) ([]int64, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	query := `
		SELECT id FROM pages
		WHERE id = ANY($1) AND NOT deleted AND NOT hidden
		  AND ($2::bigint = 0 OR site_id = $2)
		ORDER BY id`
	if recursive {
		query = `
		WITH RECURSIVE tree AS (
			SELECT id FROM pages
			WHERE id = ANY($1) AND NOT deleted AND NOT hidden
			  AND ($2::bigint = 0 OR site_id = $2)
			UNION
			SELECT p.id FROM pages p
			JOIN tree t ON p.parent_id = t.id
			WHERE NOT p.deleted AND NOT p.hidden
			  AND ($2::bigint = 0 OR p.site_id = $2)
		)
		SELECT id FROM tree ORDER BY id`
	}
	rows, err := r.pool.Query(ctx, query, roots, rctx.SiteID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func config(source domain.SourceTag) (sourceConfig, error) {
	cfg, ok := sourceConfigs[source]
	if !ok {
		return sourceConfig{}, fmt.Errorf("no source configuration for %q", source)
	}
	return cfg, nil
}

func (cfg sourceConfig) baseWhere() string {
	where := "NOT r.deleted AND " + cfg.activeClause
	if cfg.enforceOptIn {
		where += " AND r.opt_in"
	}
	return where
}

// IDsByPages selects every qualifying recipient under the closed page set,
// ordered by id with email as tie-break for deterministic batching.
func (r *RecipientRepository) IDsByPages(ctx context.Context, source domain.SourceTag, pages []int64) ([]int64, error) {
	cfg, err := config(source)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT r.id FROM %s r
		WHERE r.page_id = ANY($1) AND %s
		ORDER BY r.id, r.email`, cfg.table, cfg.baseWhere())
	rows, err := r.pool.Query(ctx, query, pages)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// IDsByCategories takes the union across the selected categories: a
// recipient qualifying under any one of them is included exactly once.
func (r *RecipientRepository) IDsByCategories(ctx context.Context, source domain.SourceTag, pages, categories []int64) ([]int64, error) {
	cfg, err := config(source)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT r.id, r.email FROM %s r
		JOIN %s c ON c.%s = r.id
		WHERE c.category_id = ANY($1) AND r.page_id = ANY($2) AND %s
		ORDER BY r.id, r.email`, cfg.table, cfg.categoryTable, cfg.categoryFK, cfg.baseWhere())
	rows, err := r.pool.Query(ctx, query, categories, pages)
	if err != nil {
		return nil, err
	}
	var (
		ids   []int64
		id    int64
		email string
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &email}, func() error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IDsByMembership selects recipients explicitly linked to the group,
// independent of page scope and categories.
func (r *RecipientRepository) IDsByMembership(ctx context.Context, source domain.SourceTag, groupID int64) ([]int64, error) {
	cfg, err := config(source)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT r.id FROM %s r
		JOIN group_members gm ON gm.member_id = r.id AND gm.source = $1
		WHERE gm.group_id = $2 AND %s
		ORDER BY r.id, r.email`, cfg.table, cfg.baseWhere())
	rows, err := r.pool.Query(ctx, query, string(source), groupID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// MemberGroupIDs returns sub-groups linked through the special group source.
func (r *RecipientRepository) MemberGroupIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT member_id FROM group_members
		 WHERE group_id = $1 AND source = 'group'
		 ORDER BY member_id`, groupID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// GetByID materializes one recipient with its subscribed categories. The
// opt-in and active checks run again here, so recipients withdrawn between
// snapshot and send are skipped.
func (r *RecipientRepository) GetByID(ctx context.Context, source domain.SourceTag, id int64) (*domain.Recipient, error) {
	cfg, err := config(source)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT r.id, r.email, r.name, r.first_name, r.title, r.phone, r.www,
		       r.address, r.company, r.city, r.zip, r.country, r.fax, r.html_allowed
		FROM %s r
		WHERE r.id = $1 AND %s`, cfg.table, cfg.baseWhere())
	var rec domain.Recipient
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Email, &rec.Name, &rec.FirstName, &rec.Title, &rec.Phone, &rec.WWW,
		&rec.Address, &rec.Company, &rec.City, &rec.Zip, &rec.Country, &rec.Fax, &rec.HTMLAllowed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	catQuery := fmt.Sprintf(
		`SELECT category_id FROM %s WHERE %s = $1 ORDER BY category_id`,
		cfg.categoryTable, cfg.categoryFK)
	rows, err := r.pool.Query(ctx, catQuery, id)
	if err != nil {
		return nil, err
	}
	rec.Categories, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var (
	_ port.RecipientRepository = (*RecipientRepository)(nil)
	_ port.PageRepository      = (*RecipientRepository)(nil)
)
