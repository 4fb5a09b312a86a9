package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

type fakeGroupRepo struct {
	groups map[int64]*domain.RecipientGroup
}

func (f *fakeGroupRepo) GetByID(_ context.Context, id int64) (*domain.RecipientGroup, error) {
	return f.groups[id], nil
}

type fakeRecipientRepo struct {
	pages      map[int64][]int64 // root page -> closure
	bySource   map[domain.SourceTag][]int64
	membership map[int64]map[domain.SourceTag][]int64
	subGroups  map[int64][]int64
	recipients map[domain.SourceTag]map[int64]*domain.Recipient
}

func (f *fakeRecipientRepo) Closure(_ context.Context, _ domain.RequestContext, roots []int64, _ bool) ([]int64, error) {
	var out []int64
	for _, r := range roots {
		out = append(out, f.pages[r]...)
	}
	return out, nil
}

func (f *fakeRecipientRepo) IDsByPages(_ context.Context, source domain.SourceTag, _ []int64) ([]int64, error) {
	return f.bySource[source], nil
}

func (f *fakeRecipientRepo) IDsByCategories(_ context.Context, source domain.SourceTag, _, _ []int64) ([]int64, error) {
	return f.bySource[source], nil
}

func (f *fakeRecipientRepo) IDsByMembership(_ context.Context, source domain.SourceTag, groupID int64) ([]int64, error) {
	return f.membership[groupID][source], nil
}

func (f *fakeRecipientRepo) MemberGroupIDs(_ context.Context, groupID int64) ([]int64, error) {
	return f.subGroups[groupID], nil
}

func (f *fakeRecipientRepo) GetByID(_ context.Context, source domain.SourceTag, id int64) (*domain.Recipient, error) {
	return f.recipients[source][id], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolvePagesGroup(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[int64]*domain.RecipientGroup{
		1: {
			ID:        1,
			Kind:      domain.GroupPages,
			PageIDs:   []int64{10},
			Recursive: true,
			Sources:   []domain.SourceTag{domain.SourceMembers, domain.SourceContacts},
		},
	}}
	repo := &fakeRecipientRepo{
		pages: map[int64][]int64{10: {10, 11, 12}},
		bySource: map[domain.SourceTag][]int64{
			domain.SourceContacts: {1, 2, 3},
			domain.SourceMembers:  {5},
		},
	}
	r := NewResolver(groups, repo, repo, discardLogger())

	lists, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(lists[domain.SourceContacts]) != 3 || len(lists[domain.SourceMembers]) != 1 {
		t.Fatalf("unexpected lists: %+v", lists)
	}

	// idempotent for a fixed repository state
	again, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	for source, refs := range lists {
		if len(again[source]) != len(refs) {
			t.Errorf("resolution not stable for %s", source)
		}
	}
}

func TestResolveEmptyPageClosure(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[int64]*domain.RecipientGroup{
		1: {
			ID:      1,
			Kind:    domain.GroupPages,
			PageIDs: []int64{99},
			Sources: []domain.SourceTag{domain.SourceContacts},
		},
	}}
	repo := &fakeRecipientRepo{
		bySource: map[domain.SourceTag][]int64{domain.SourceContacts: {1, 2}},
	}
	r := NewResolver(groups, repo, repo, discardLogger())

	lists, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("empty closure must yield empty selection, got %+v", lists)
	}
}

func TestResolveCompositeMergesAndDedups(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[int64]*domain.RecipientGroup{
		1: {ID: 1, Kind: domain.GroupComposite, ChildIDs: []int64{2, 3}},
		2: {ID: 2, Kind: domain.GroupStatic},
		3: {ID: 3, Kind: domain.GroupStatic},
	}}
	repo := &fakeRecipientRepo{
		membership: map[int64]map[domain.SourceTag][]int64{
			2: {domain.SourceContacts: {1, 2, 3}},
			3: {domain.SourceContacts: {3, 4}},
		},
	}
	r := NewResolver(groups, repo, repo, discardLogger())

	lists, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	contacts := lists[domain.SourceContacts]
	if len(contacts) != 4 {
		t.Fatalf("expected 4 deduplicated contacts, got %d: %+v", len(contacts), contacts)
	}
	want := []int64{1, 2, 3, 4}
	for i, ref := range contacts {
		if ref.ID != want[i] {
			t.Errorf("first-seen order broken at %d: got %d want %d", i, ref.ID, want[i])
		}
	}
}

func TestResolveInlineListsConcatenateWithoutIDDedup(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[int64]*domain.RecipientGroup{
		1: {ID: 1, Kind: domain.GroupComposite, ChildIDs: []int64{2, 3}},
		2: {ID: 2, Kind: domain.GroupInline, RawList: "a@example.org"},
		3: {ID: 3, Kind: domain.GroupInline, RawList: "b@example.org"},
	}}
	repo := &fakeRecipientRepo{}
	r := NewResolver(groups, repo, repo, discardLogger())

	lists, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	inline := lists[domain.SourceInline]
	if len(inline) != 2 {
		t.Fatalf("expected 2 inline refs, got %+v", inline)
	}
	if inline[0].ID == inline[1].ID {
		t.Errorf("synthetic ids must differ per group: %+v", inline)
	}
}

func TestResolveCompositeCycle(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[int64]*domain.RecipientGroup{
		1: {ID: 1, Kind: domain.GroupComposite, ChildIDs: []int64{2}},
		2: {ID: 2, Kind: domain.GroupComposite, ChildIDs: []int64{1}},
	}}
	repo := &fakeRecipientRepo{}
	r := NewResolver(groups, repo, repo, discardLogger())

	_, err := r.Resolve(context.Background(), domain.RequestContext{}, 1)
	if !errors.Is(err, port.ErrGroupCycle) {
		t.Fatalf("expected ErrGroupCycle, got %v", err)
	}
}

func TestResolveUnknownGroupYieldsEmpty(t *testing.T) {
	r := NewResolver(&fakeGroupRepo{}, &fakeRecipientRepo{}, &fakeRecipientRepo{}, discardLogger())
	lists, err := r.Resolve(context.Background(), domain.RequestContext{}, 42)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("missing group must yield empty selection, got %+v", lists)
	}
}
