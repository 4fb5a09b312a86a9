package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// Resolver turns recipient-group definitions into deduplicated per-source
// recipient lists. Resolution is deterministic and idempotent for a fixed
// database snapshot: repositories return ids ordered by id with email as
// tie-break, and merging preserves first-seen order.
type Resolver struct {
	groups     port.GroupRepository
	pages      port.PageRepository
	recipients port.RecipientRepository
	logger     *slog.Logger
}

// NewResolver wires a resolver from its repositories.
func NewResolver(groups port.GroupRepository, pages port.PageRepository, recipients port.RecipientRepository, logger *slog.Logger) *Resolver {
	return &Resolver{groups: groups, pages: pages, recipients: recipients, logger: logger}
}

// Resolve resolves one group into per-source recipient lists.
func (r *Resolver) Resolve(ctx context.Context, rctx domain.RequestContext, groupID int64) (map[domain.SourceTag][]domain.RecipientRef, error) {
	return r.resolve(ctx, rctx, groupID, map[int64]bool{})
}

// ResolveMany resolves several groups and merges their lists the same way a
// composite group would: per-source id dedup, except for the inline family
// whose dedup already happened by email at list-build time.
func (r *Resolver) ResolveMany(ctx context.Context, rctx domain.RequestContext, groupIDs []int64) (map[domain.SourceTag][]domain.RecipientRef, error) {
	merged := map[domain.SourceTag][]domain.RecipientRef{}
	for _, id := range groupIDs {
		lists, err := r.Resolve(ctx, rctx, id)
		if err != nil {
			return nil, err
		}
		mergeLists(merged, lists)
	}
	return merged, nil
}

// resolve carries the in-progress path for cycle detection. Composite groups
// referencing themselves, directly or transitively, are an authoring error
// and fail loudly instead of being silently truncated.
func (r *Resolver) resolve(ctx context.Context, rctx domain.RequestContext, groupID int64, path map[int64]bool) (map[domain.SourceTag][]domain.RecipientRef, error) {
	if path[groupID] {
		return nil, fmt.Errorf("group %d: %w", groupID, port.ErrGroupCycle)
	}
	path[groupID] = true
	defer delete(path, groupID)

	g, err := r.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		r.logger.Warn("recipient group not found", slog.Int64("group_id", groupID))
		return map[domain.SourceTag][]domain.RecipientRef{}, nil
	}

	switch g.Kind {
	case domain.GroupPages:
		return r.resolvePages(ctx, rctx, g)
	case domain.GroupStatic:
		return r.resolveStatic(ctx, rctx, g, path)
	case domain.GroupInline:
		return r.resolveInline(g)
	case domain.GroupComposite:
		merged := map[domain.SourceTag][]domain.RecipientRef{}
		for _, child := range g.ChildIDs {
			lists, err := r.resolve(ctx, rctx, child, path)
			if err != nil {
				return nil, err
			}
			mergeLists(merged, lists)
		}
		return merged, nil
	default:
		// Unknown variants degrade to an empty selection, never an error.
		r.logger.Warn("unknown recipient group kind",
			slog.Int64("group_id", g.ID), slog.String("kind", string(g.Kind)))
		return map[domain.SourceTag][]domain.RecipientRef{}, nil
	}
}

func (r *Resolver) resolvePages(ctx context.Context, rctx domain.RequestContext, g *domain.RecipientGroup) (map[domain.SourceTag][]domain.RecipientRef, error) {
	closed, err := r.pages.Closure(ctx, rctx, g.PageIDs, g.Recursive)
	if err != nil {
		return nil, err
	}
	out := map[domain.SourceTag][]domain.RecipientRef{}
	if len(closed) == 0 {
		return out, nil
	}
	for _, source := range orderedSources(g.Sources) {
		if source == domain.SourceInline {
			r.logger.Warn("inline source ignored in page-scoped group", slog.Int64("group_id", g.ID))
			continue
		}
		var ids []int64
		if len(g.CategoryIDs) == 0 {
			ids, err = r.recipients.IDsByPages(ctx, source, closed)
		} else {
			ids, err = r.recipients.IDsByCategories(ctx, source, closed, g.CategoryIDs)
		}
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			out[source] = refsFromIDs(ids)
		}
	}
	return out, nil
}

func (r *Resolver) resolveStatic(ctx context.Context, rctx domain.RequestContext, g *domain.RecipientGroup, path map[int64]bool) (map[domain.SourceTag][]domain.RecipientRef, error) {
	out := map[domain.SourceTag][]domain.RecipientRef{}
	for _, source := range []domain.SourceTag{domain.SourceContacts, domain.SourceMembers} {
		ids, err := r.recipients.IDsByMembership(ctx, source, g.ID)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			out[source] = refsFromIDs(ids)
		}
	}
	// A group may contain groups as members; those expand through their own
	// variant, whatever it is.
	subIDs, err := r.recipients.MemberGroupIDs(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subIDs {
		lists, err := r.resolve(ctx, rctx, sub, path)
		if err != nil {
			return nil, err
		}
		mergeLists(out, lists)
	}
	return out, nil
}

func (r *Resolver) resolveInline(g *domain.RecipientGroup) (map[domain.SourceTag][]domain.RecipientRef, error) {
	refs, err := parseInlineList(g)
	if err != nil {
		return nil, err
	}
	out := map[domain.SourceTag][]domain.RecipientRef{}
	if len(refs) > 0 {
		out[domain.SourceInline] = refs
	}
	return out, nil
}

// mergeLists appends src into dst per source, removing duplicate ids from
// every source except the inline family. Inline entries are keyed by
// synthetic per-group ids and were already deduplicated by email when the
// list was built; a second pass must not run.
func mergeLists(dst, src map[domain.SourceTag][]domain.RecipientRef) {
	for source, refs := range src {
		if source == domain.SourceInline {
			dst[source] = append(dst[source], refs...)
			continue
		}
		existing := dst[source]
		seen := make(map[int64]struct{}, len(existing)+len(refs))
		for _, ref := range existing {
			seen[ref.ID] = struct{}{}
		}
		for _, ref := range refs {
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			seen[ref.ID] = struct{}{}
			existing = append(existing, ref)
		}
		dst[source] = existing
	}
}

// orderedSources filters SourceOrder down to the group's source set, so
// iteration order never depends on map or slice ordering in the definition.
func orderedSources(set []domain.SourceTag) []domain.SourceTag {
	want := make(map[domain.SourceTag]struct{}, len(set))
	for _, s := range set {
		want[s] = struct{}{}
	}
	var out []domain.SourceTag
	for _, s := range domain.SourceOrder {
		if _, ok := want[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func refsFromIDs(ids []int64) []domain.RecipientRef {
	refs := make([]domain.RecipientRef, len(ids))
	for i, id := range ids {
		refs[i] = domain.RecipientRef{ID: id}
	}
	return refs
}

var _ port.Resolver = (*Resolver)(nil)
