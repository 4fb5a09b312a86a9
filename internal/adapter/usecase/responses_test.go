package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

func responsesFixture(t *testing.T) (*Responses, *memLog) {
	t.Helper()
	log := &memLog{}
	e := &domain.DispatchLogEntry{
		CampaignID: 1, Source: domain.SourceContacts, RecipientID: 4,
		Email: "x@example.org", Token: "known-token", SentAt: time.Now(),
	}
	if err := log.InsertPending(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return NewResponses(log, discardLogger()), log
}

func TestRecordResponseClick(t *testing.T) {
	r, log := responsesFixture(t)

	err := r.RecordResponse(context.Background(), "known-token", domain.ResponseHTMLClick, 550, 3)
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	e := log.entries[0]
	if e.Response != domain.ResponseHTMLClick || e.LinkID != 3 {
		t.Errorf("row not classified: %+v", e)
	}
	// bounce reason does not apply to clicks
	if e.BounceReason != 0 {
		t.Errorf("bounce reason must be zeroed for clicks: %+v", e)
	}
}

func TestRecordResponseBounce(t *testing.T) {
	r, log := responsesFixture(t)

	err := r.RecordResponse(context.Background(), "known-token", domain.ResponseBounce, 552, 9)
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	e := log.entries[0]
	if e.Response != domain.ResponseBounce || e.BounceReason != 552 {
		t.Errorf("row not classified: %+v", e)
	}
	if e.LinkID != 0 {
		t.Errorf("link id must be zeroed for bounces: %+v", e)
	}
}

func TestRecordResponseUnknownToken(t *testing.T) {
	r, _ := responsesFixture(t)

	err := r.RecordResponse(context.Background(), "no-such-token", domain.ResponsePing, 0, 0)
	if !errors.Is(err, port.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	err = r.RecordResponse(context.Background(), "", domain.ResponsePing, 0, 0)
	if !errors.Is(err, port.ErrUnknownToken) {
		t.Fatalf("empty token: expected ErrUnknownToken, got %v", err)
	}
}

func TestRecordResponseBadKind(t *testing.T) {
	r, log := responsesFixture(t)

	if err := r.RecordResponse(context.Background(), "known-token", domain.ResponseKind(42), 0, 0); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
	if log.entries[0].Response != domain.ResponsePending {
		t.Errorf("row must stay untouched: %+v", log.entries[0])
	}
}
