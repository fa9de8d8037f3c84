package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

// ---- test helpers ----

type fakeChecker struct {
	out   probe.Result
	calls int
}

func (f *fakeChecker) Check(_ context.Context, _ string) probe.Result {
	f.calls++
	return f.out
}

const (
	pubKey = "pub_test"
	admKey = "adm_test"
)

type harness struct {
	t     *testing.T
	store *memory.Store
	chk   *fakeChecker
	srv   *httptest.Server
}

func setup(t *testing.T, statsTTL time.Duration) *harness {
	t.Helper()
	code, lat := 200, int64(12)
	chk := &fakeChecker{out: probe.Result{
		Outcome: domain.OutcomeSuccess, HTTPCode: &code, LatencyMS: &lat, Message: "200 OK",
	}}
	store := memory.New()
	srv := NewServer(zaptest.NewLogger(t), store, store, chk, statsTTL)

	// very high rate limits to avoid flakiness in tests
	h := srv.Router(RouterConfig{
		Keys:        apimw.Keys{Public: []string{pubKey}, Admin: []string{admKey}},
		PublicRPM:   10_000,
		PublicBurst: 10_000,
		AdminRPM:    10_000,
		AdminBurst:  10_000,
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &harness{t: t, store: store, chk: chk, srv: ts}
}

func (h *harness) do(method, path, key string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

// ---- tests ----

func TestHealthz_NoAuth(t *testing.T) {
	h := setup(t, 0)
	resp, body := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestCreateSite_OK_Invalid_Forbidden(t *testing.T) {
	h := setup(t, 0)

	resp, body := h.do(http.MethodPost, "/api/sites", admKey, map[string]string{"name": "Blog", "url": "blog.example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Blog", got["name"])
	assert.Equal(t, "http://blog.example.com", got["url"])
	assert.Nil(t, got["status"])
	assert.NotContains(t, got, "last_checked")
	assert.NotContains(t, got, "down_since")

	resp, body = h.do(http.MethodPost, "/api/sites", admKey, map[string]string{"name": "Bad", "url": "ftp://x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"field":"url"`)

	resp, _ = h.do(http.MethodPost, "/api/sites", admKey, map[string]string{"url": "example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/api/sites", pubKey, map[string]string{"name": "x", "url": "example.com"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/api/sites", "", map[string]string{"name": "x", "url": "example.com"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListAndGetSite_RendersTimestamps(t *testing.T) {
	h := setup(t, 0)
	ctx := context.Background()
	site, err := h.store.CreateSite(ctx, "API", "https://api.example.com")
	require.NoError(t, err)

	since := time.Date(2025, 8, 18, 11, 59, 0, 123456789, time.UTC)
	checked := since.Add(time.Minute)
	require.NoError(t, h.store.UpdateSiteState(ctx, site.ID, domain.StatusDown, &since, checked))

	resp, body := h.do(http.MethodGet, "/api/sites", pubKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "down", list[0]["status"])
	assert.Equal(t, "2025-08-18T11:59:00Z", list[0]["down_since"])
	assert.Equal(t, "2025-08-18T12:00:00Z", list[0]["last_checked"])

	resp, _ = h.do(http.MethodGet, "/api/sites/"+jsonNum(int64(site.ID)), pubKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/api/sites/999", pubKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/api/sites/abc", pubKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/api/sites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeleteSite(t *testing.T) {
	h := setup(t, 0)
	site, err := h.store.CreateSite(context.Background(), "Gone", "https://gone.example")
	require.NoError(t, err)

	path := "/api/sites/" + jsonNum(int64(site.ID))
	resp, _ := h.do(http.MethodDelete, path, admKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = h.do(http.MethodDelete, path, admKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListChecks(t *testing.T) {
	h := setup(t, 0)
	ctx := context.Background()
	site, err := h.store.CreateSite(ctx, "Shop", "https://shop.example")
	require.NoError(t, err)

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	code, lat := 200, int64(30)
	for i := 0; i < 3; i++ {
		rec := &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeSuccess, HTTPCode: &code, LatencyMS: &lat, CheckedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, h.store.Append(ctx, rec))
	}
	require.NoError(t, h.store.Append(ctx, &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeFailure, CheckedAt: base.Add(5 * time.Minute)}))

	path := "/api/sites/" + jsonNum(int64(site.ID)) + "/checks"
	resp, body := h.do(http.MethodGet, path+"?limit=2", pubKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "failure", recs[0]["outcome"])
	assert.Nil(t, recs[0]["http_code"])
	assert.Nil(t, recs[0]["latency_ms"])
	assert.Equal(t, "2025-08-18T12:05:00Z", recs[0]["checked_at"])
	assert.Equal(t, float64(200), recs[1]["http_code"])

	resp, _ = h.do(http.MethodGet, path+"?limit=zero", pubKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/api/sites/999/checks", pubKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatus_CachedAndInvalidated(t *testing.T) {
	h := setup(t, time.Minute)
	ctx := context.Background()
	a, err := h.store.CreateSite(ctx, "A", "https://a.example")
	require.NoError(t, err)
	_, err = h.store.CreateSite(ctx, "B", "https://b.example")
	require.NoError(t, err)
	require.NoError(t, h.store.UpdateSiteState(ctx, a.ID, domain.StatusUp, nil, time.Now()))

	read := func() domain.Stats {
		resp, body := h.do(http.MethodGet, "/api/status", pubKey, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var st domain.Stats
		require.NoError(t, json.Unmarshal(body, &st))
		return st
	}
	assert.Equal(t, domain.Stats{Total: 2, Up: 1, Down: 0, Pending: 1}, read())

	// the engine writes behind the cache's back; the cached value stands
	require.NoError(t, h.store.UpdateSiteState(ctx, a.ID, domain.StatusDown, ptr(time.Now()), time.Now()))
	assert.Equal(t, domain.Stats{Total: 2, Up: 1, Down: 0, Pending: 1}, read())

	// a registry write through the API invalidates it
	resp, _ := h.do(http.MethodPost, "/api/sites", admKey, map[string]string{"name": "C", "url": "c.example"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, domain.Stats{Total: 3, Up: 0, Down: 1, Pending: 2}, read())
}

func TestCheck_OneOff(t *testing.T) {
	h := setup(t, 0)

	resp, body := h.do(http.MethodPost, "/api/check", admKey, map[string]string{"url": "example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, true, got["up"])
	assert.Equal(t, "http://example.com", got["url"])
	assert.Equal(t, float64(200), got["http_code"])
	assert.Equal(t, 1, h.chk.calls)

	sites, err := h.store.ListSites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sites, "one-off checks are not persisted")

	resp, _ = h.do(http.MethodPost, "/api/check", admKey, map[string]string{"url": "gopher://x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(http.MethodPost, "/api/check", pubKey, map[string]string{"url": "example.com"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type brokenRegistry struct{ *memory.Store }

func (brokenRegistry) ListSites(context.Context) ([]domain.Site, error) {
	return nil, domain.WrapStorage("list sites", errors.New("connection refused"))
}

func TestListSites_StorageErrorIs500(t *testing.T) {
	store := memory.New()
	srv := NewServer(nil, brokenRegistry{store}, store, &fakeChecker{}, 0)
	rec := httptest.NewRecorder()
	srv.Router(RouterConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sites", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestCORS_AllowedOrigins(t *testing.T) {
	store := memory.New()
	h := NewServer(nil, store, store, &fakeChecker{}, 0).Router(RouterConfig{
		AllowedOrigins: []string{"https://dash.example"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func jsonNum(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func ptr[T any](v T) *T { return &v }
