package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// API timestamps are UTC with second precision.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

type siteView struct {
	ID          domain.SiteID `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Status      *string       `json:"status"` // null until the first check
	LastChecked string        `json:"last_checked,omitempty"`
	DownSince   string        `json:"down_since,omitempty"`
	CreatedAt   string        `json:"created_at,omitempty"`
}

func newSiteView(s domain.Site) siteView {
	v := siteView{
		ID:          s.ID,
		Name:        s.Name,
		URL:         s.URL,
		LastChecked: formatTime(s.LastCheckedAt),
		DownSince:   formatTime(s.DownSince),
		CreatedAt:   formatTime(&s.CreatedAt),
	}
	if s.Status != domain.StatusUnknown {
		st := string(s.Status)
		v.Status = &st
	}
	return v
}

type checkView struct {
	ID        int64          `json:"id"`
	SiteID    domain.SiteID  `json:"site_id"`
	Outcome   domain.Outcome `json:"outcome"`
	HTTPCode  *int           `json:"http_code"`
	LatencyMS *int64         `json:"latency_ms"`
	CheckedAt string         `json:"checked_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.stats != nil {
		if v, ok := s.stats.Get(statsKey); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	st, err := s.Sites.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	if s.stats != nil {
		s.stats.SetDefault(statsKey, st)
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) invalidateStats() {
	if s.stats != nil {
		s.stats.Delete(statsKey)
	}
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites.ListSites(r.Context())
	if err != nil {
		s.fail(w, r, "list sites", err)
		return
	}
	out := make([]siteView, 0, len(sites))
	for _, site := range sites {
		out = append(out, newSiteView(site))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := siteID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	site, err := s.Sites.GetSite(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get site", err)
		return
	}
	writeJSON(w, http.StatusOK, newSiteView(*site))
}

type createPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	site, err := s.Sites.CreateSite(r.Context(), p.Name, p.URL)
	if err != nil {
		s.fail(w, r, "create site", err)
		return
	}
	s.invalidateStats()
	s.Logger.Info("site_added",
		zap.Int64("site_id", int64(site.ID)),
		zap.String("name", site.Name),
		zap.String("url", site.URL),
	)
	writeJSON(w, http.StatusCreated, newSiteView(*site))
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := siteID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.Sites.DeleteSite(r.Context(), id); err != nil {
		s.fail(w, r, "delete site", err)
		return
	}
	s.invalidateStats()
	s.Logger.Info("site_deleted", zap.Int64("site_id", int64(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	id, ok := siteID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	// 404 for unknown sites rather than an empty list
	if _, err := s.Sites.GetSite(r.Context(), id); err != nil {
		s.fail(w, r, "get site", err)
		return
	}
	recs, err := s.Checks.ListChecks(r.Context(), id, repo.ClampLimit(limit))
	if err != nil {
		s.fail(w, r, "list checks", err)
		return
	}
	out := make([]checkView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, checkView{
			ID:        rec.ID,
			SiteID:    rec.SiteID,
			Outcome:   rec.Outcome,
			HTTPCode:  rec.HTTPCode,
			LatencyMS: rec.LatencyMS,
			CheckedAt: formatTime(&rec.CheckedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type checkPayload struct {
	URL string `json:"url"`
}

type checkResponse struct {
	URL       string         `json:"url"`
	Up        bool           `json:"up"`
	Outcome   domain.Outcome `json:"outcome"`
	HTTPCode  *int           `json:"http_code"`
	LatencyMS *int64         `json:"latency_ms"`
	Message   string         `json:"message,omitempty"`
	Class     string         `json:"class,omitempty"`
	DNS       string         `json:"dns,omitempty"`
}

// handleCheck probes a URL once for immediate feedback. Nothing is stored.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var p checkPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	target, err := domain.NormalizeTarget(p.URL)
	if err != nil {
		s.fail(w, r, "check", err)
		return
	}

	res := s.Checker.Check(r.Context(), target)
	out := checkResponse{
		URL:       target,
		Up:        res.Up(),
		Outcome:   res.Outcome,
		HTTPCode:  res.HTTPCode,
		LatencyMS: res.LatencyMS,
		Message:   res.Message,
		Class:     res.Class,
	}

	// If HTTP check fails on name resolution, explain it
	if !res.Up() && res.Class == probe.ClassDNS {
		dns := probe.Diagnose(r.Context(), target)
		out.DNS = dns.Class
		s.Logger.Info("dns_check",
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
	}

	s.Logger.Info("adhoc_check",
		zap.String("url", target),
		zap.Bool("up", out.Up),
		zap.String("message", res.Message),
	)
	writeJSON(w, http.StatusOK, out)
}
