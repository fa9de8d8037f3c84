package repo

import (
	"context"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Ports: the memory, postgres, mysql and sqlite adapters implement both.

// Registry is the source of truth for which sites exist. The engine reads it
// at the start of every cycle and writes derived state back.
type Registry interface {
	ListSites(ctx context.Context) ([]domain.Site, error)
	GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error)
	// UpdateSiteState returns domain.ErrNotFound when the site is gone.
	UpdateSiteState(ctx context.Context, id domain.SiteID, status domain.Status, downSince *time.Time, checkedAt time.Time) error
	// CreateSite normalizes the target and returns *domain.ValidationError on bad input.
	CreateSite(ctx context.Context, name, target string) (*domain.Site, error)
	// DeleteSite removes the site and its check history.
	DeleteSite(ctx context.Context, id domain.SiteID) error
	Stats(ctx context.Context) (domain.Stats, error)
}

// History is the append-only log of check outcomes.
type History interface {
	Append(ctx context.Context, r *domain.CheckRecord) error
	// ListChecks returns up to limit records for a site, newest first.
	ListChecks(ctx context.Context, id domain.SiteID, limit int) ([]domain.CheckRecord, error)
}

// Store is what a storage backend provides to the process.
type Store interface {
	Registry
	History
	EnsureSchema(ctx context.Context) error
	Close()
}

const MaxListChecks = 500

// ClampLimit bounds a history page size to (0, MaxListChecks].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxListChecks {
		return MaxListChecks
	}
	return limit
}
