package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/kv"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/search"
	"github.com/earshotfm/earshot/internal/store"
)

func authedContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")
	return c, rec
}

func signalRow(id, owner, content string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "channel", "input_type", "raw_content", "url", "title", "topics", "status", "episode_id", "created_at"}).
		AddRow(id, owner, "web", "text", content, nil, nil, "{}", "QUEUED", nil, time.Now())
}

func TestCaptureSignal(t *testing.T) {
	st, mock := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO signals (owner_id, channel, input_type, raw_content, url, title, topics, status)`)).
		WithArgs("user-1", "web", "text", "an interview about weather satellites", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "QUEUED").
		WillReturnRows(signalRow("sig-1", "user-1", "an interview about weather satellites"))

	c, rec := authedContext(t, http.MethodPost, "/api/signals", `{"raw_content":"an interview about weather satellites"}`)
	if err := h.capture(c); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp SignalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.ID != "sig-1" || resp.Status != "QUEUED" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Topics == nil {
		t.Fatalf("topics should serialize as an empty array, not null")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCaptureRequiresContent(t *testing.T) {
	st, _ := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	c, _ := authedContext(t, http.MethodPost, "/api/signals", `{"raw_content":"   "}`)
	err := h.capture(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestCaptureRateLimited(t *testing.T) {
	st, mock := newMockStore(t)
	mem := kv.NewMemory()
	t.Cleanup(mem.Close)
	h := &SignalsHandler{
		Store:   st,
		Search:  search.New(st),
		Limits:  ratelimit.New(mem),
		Capture: config.RateSetting{Max: 1, Window: time.Minute},
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO signals`)).
		WillReturnRows(signalRow("sig-1", "user-1", "first"))

	c, rec := authedContext(t, http.MethodPost, "/api/signals", `{"raw_content":"first"}`)
	if err := h.capture(c); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("first capture: expected 201, got %d", rec.Code)
	}

	c2, rec2 := authedContext(t, http.MethodPost, "/api/signals", `{"raw_content":"second"}`)
	err := h.capture(c2)
	if code := httpCode(t, err); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header")
	}
}

func TestListSignalsFiltersStatus(t *testing.T) {
	st, mock := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, channel, input_type, raw_content, url, title, topics, status, episode_id, created_at FROM signals WHERE owner_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`)).
		WithArgs("user-1", "QUEUED", 10).
		WillReturnRows(signalRow("sig-1", "user-1", "queued one"))

	c, rec := authedContext(t, http.MethodGet, "/api/signals?status=QUEUED&limit=10", "")
	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []SignalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(out) != 1 || out[0].ID != "sig-1" {
		t.Fatalf("unexpected listing: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListSignalsRejectsUnknownStatus(t *testing.T) {
	st, _ := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	c, _ := authedContext(t, http.MethodGet, "/api/signals?status=DONE", "")
	err := h.list(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSearchSignals(t *testing.T) {
	st, mock := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	// First query since boot rebuilds the owner's index from the store.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, channel, input_type, raw_content, url, title, topics, status, episode_id, created_at FROM signals WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs("user-1", 1000).
		WillReturnRows(signalRow("sig-1", "user-1", "a long read on fusion reactors"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM signals WHERE owner_id=$1 AND id = ANY($2)`)).
		WillReturnRows(signalRow("sig-1", "user-1", "a long read on fusion reactors"))

	c, rec := authedContext(t, http.MethodGet, "/api/signals/search?q=fusion", "")
	if err := h.search(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	var out []SignalSearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(out) != 1 || out[0].Signal.ID != "sig-1" {
		t.Fatalf("unexpected results: %+v", out)
	}
	if out[0].Score <= 0 || out[0].Snippet == "" {
		t.Fatalf("expected score and snippet, got %+v", out[0])
	}

	// A hit whose row has since gone away is dropped, not surfaced as a gap.
	mock.ExpectQuery(regexp.QuoteMeta(`FROM signals WHERE owner_id=$1 AND id = ANY($2)`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "channel", "input_type", "raw_content", "url", "title", "topics", "status", "episode_id", "created_at"}))

	c2, rec2 := authedContext(t, http.MethodGet, "/api/signals/search?q=fusion", "")
	if err := h.search(c2); err != nil {
		t.Fatalf("second search: %v", err)
	}
	var out2 []SignalSearchResult
	if err := json.Unmarshal(rec2.Body.Bytes(), &out2); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(out2) != 0 {
		t.Fatalf("expected stale hit to be dropped, got %+v", out2)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	st, _ := newMockStore(t)
	h := &SignalsHandler{Store: st, Search: search.New(st)}

	c, _ := authedContext(t, http.MethodGet, "/api/signals/search", "")
	err := h.search(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}
