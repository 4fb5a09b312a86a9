package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// GroupRepository reads recipient-group definitions.
type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// GetByID returns a group by id, or nil when it does not exist.
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*domain.RecipientGroup, error) {
	var (
		g       domain.RecipientGroup
		kind    string
		sources []string
		layout  string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, kind, page_ids, recursive, sources, category_ids,
		        raw_list, list_format, csv_columns, html_allowed, child_ids
		 FROM recipient_groups WHERE id = $1`, id).Scan(
		&g.ID, &g.Name, &kind, &g.PageIDs, &g.Recursive, &sources, &g.CategoryIDs,
		&g.RawList, &layout, &g.CSVColumns, &g.HTMLAllowed, &g.ChildIDs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.Kind = domain.GroupKind(kind)
	g.ListLayout = domain.ListFormat(layout)
	g.Sources = make([]domain.SourceTag, len(sources))
	for i, s := range sources {
		g.Sources[i] = domain.SourceTag(s)
	}
	return &g, nil
}

var _ port.GroupRepository = (*GroupRepository)(nil)
