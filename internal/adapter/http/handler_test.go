package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

type stubDispatcher struct {
	result port.TickResult
	actor  string
}

func (s *stubDispatcher) RunTick(_ context.Context, rctx domain.RequestContext) (port.TickResult, error) {
	s.actor = rctx.Actor
	return s.result, nil
}

type stubRecorder struct {
	err   error
	token string
	kind  domain.ResponseKind
}

func (s *stubRecorder) RecordResponse(_ context.Context, token string, kind domain.ResponseKind, _, _ int) error {
	s.token = token
	s.kind = kind
	return s.err
}

type stubReporter struct{}

func (stubReporter) GetPerformanceData(_ context.Context, id int64) (*port.PerformanceData, error) {
	if id != 1 {
		return nil, port.ErrCampaignNotFound
	}
	return &port.PerformanceData{CampaignID: 1, TotalSent: 6}, nil
}

func (stubReporter) GetReturnedData(_ context.Context, id int64) (*port.ReturnedData, error) {
	if id != 1 {
		return nil, port.ErrCampaignNotFound
	}
	return &port.ReturnedData{CampaignID: 1}, nil
}

func (stubReporter) GetResponsesData(_ context.Context, id int64) (*port.ResponsesData, error) {
	if id != 1 {
		return nil, port.ErrCampaignNotFound
	}
	return &port.ResponsesData{CampaignID: 1}, nil
}

type stubState struct {
	held bool
	err  string
}

func (s *stubState) AcquireLock(context.Context) (func(), bool, error) { return func() {}, true, nil }
func (s *stubState) LockHeld(context.Context) (bool, error)            { return s.held, nil }
func (s *stubState) RecordTick(context.Context, time.Time, string) error {
	return nil
}
func (s *stubState) LastTick(context.Context) (time.Time, string, error) {
	return time.Now(), s.err, nil
}

func testHandler(d *stubDispatcher, rec *stubRecorder, state *stubState) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(d, stubReporter{}, rec, state, logger)
}

func TestHandleTick(t *testing.T) {
	d := &stubDispatcher{result: port.TickCompleted}
	h := testHandler(d, &stubRecorder{}, &stubState{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/tick", nil)
	req.Header.Set("X-Actor", "ops")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["result"] != "completed" {
		t.Errorf("unexpected result: %v", resp)
	}
	if d.actor != "ops" {
		t.Errorf("actor header not threaded through: %q", d.actor)
	}
}

func TestHandleRecordResponse(t *testing.T) {
	rec := &stubRecorder{}
	h := testHandler(&stubDispatcher{}, rec, &stubState{})

	body := `{"token":"abc","kind":-127,"bounce_reason":550}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/responses", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status %d body %s", w.Code, w.Body)
	}
	if rec.token != "abc" || rec.kind != domain.ResponseBounce {
		t.Errorf("event not forwarded: %q %d", rec.token, rec.kind)
	}
}

func TestHandleRecordResponseUnknownToken(t *testing.T) {
	rec := &stubRecorder{err: port.ErrUnknownToken}
	h := testHandler(&stubDispatcher{}, rec, &stubState{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/responses", strings.NewReader(`{"token":"x","kind":-1}`))
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	h := testHandler(&stubDispatcher{}, &stubRecorder{}, &stubState{})

	for _, path := range []string{"performance", "returned", "responses"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/1/"+path, nil)
		w := httptest.NewRecorder()
		h.Router().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d body %s", path, w.Code, w.Body)
		}

		req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/99/"+path, nil)
		w = httptest.NewRecorder()
		h.Router().ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404 for missing campaign, got %d", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/zzz/performance", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := testHandler(&stubDispatcher{}, &stubRecorder{}, &stubState{held: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "caution" || resp["lock_held"] != true {
		t.Errorf("unexpected health payload: %v", resp)
	}
}
