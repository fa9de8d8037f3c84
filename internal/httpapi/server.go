// Package httpapi serves the site registry, status overview and check
// history over JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const statsKey = "stats"

type Server struct {
	Logger  *zap.Logger
	Sites   repo.Registry
	Checks  repo.History
	Checker probe.Checker

	stats *cache.Cache // nil disables caching
}

// NewServer wires the API. statsTTL <= 0 turns off the status cache.
func NewServer(l *zap.Logger, sites repo.Registry, checks repo.History, c probe.Checker, statsTTL time.Duration) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{Logger: l, Sites: sites, Checks: checks, Checker: c}
	if statsTTL > 0 {
		s.stats = cache.New(statsTTL, 2*statsTTL)
	}
	return s
}

type RouterConfig struct {
	Keys           apimw.Keys
	AllowedOrigins []string // empty allows any origin
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
}

func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(cfg.Keys))
			r.Use(apimw.RateLimit(cfg.PublicRPM, cfg.PublicBurst))
			r.Get("/status", s.handleStatus)
			r.Get("/sites", s.handleListSites)
			r.Get("/sites/{id}", s.handleGetSite)
			r.Get("/sites/{id}/checks", s.handleListChecks)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(cfg.Keys))
			r.Use(apimw.RateLimit(cfg.AdminRPM, cfg.AdminBurst))
			r.Post("/sites", s.handleCreateSite)
			r.Delete("/sites/{id}", s.handleDeleteSite)
			r.Post("/check", s.handleCheck)
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps a store error onto a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.Logger.Error("api_storage_error",
			zap.String("op", op),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func siteID(r *http.Request) (domain.SiteID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return domain.SiteID(id), true
}
