package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	nextID  domain.SiteID
	nextRec int64
	sites   map[domain.SiteID]*domain.Site
	checks  map[domain.SiteID][]domain.CheckRecord
	now     func() time.Time
}

func New() *Store {
	return &Store{
		sites:  make(map[domain.SiteID]*domain.Site),
		checks: make(map[domain.SiteID][]domain.CheckRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Store) EnsureSchema(context.Context) error { return nil }

func (m *Store) Close() {}

// ---- Registry ----

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, copySite(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := copySite(s)
	return &cp, nil
}

func (m *Store) UpdateSiteState(ctx context.Context, id domain.SiteID, status domain.Status, downSince *time.Time, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	s.DownSince = copyTime(downSince)
	s.LastCheckedAt = copyTime(&checkedAt)
	return nil
}

func (m *Store) CreateSite(ctx context.Context, name, target string) (*domain.Site, error) {
	site, err := domain.NewSite(name, target)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	site.ID = m.nextID
	site.CreatedAt = m.now()
	m.sites[site.ID] = &site
	cp := copySite(&site)
	return &cp, nil
}

func (m *Store) DeleteSite(ctx context.Context, id domain.SiteID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sites, id)
	delete(m.checks, id)
	return nil
}

func (m *Store) Stats(ctx context.Context) (domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st domain.Stats
	for _, s := range m.sites {
		st.Total++
		switch s.Status {
		case domain.StatusUp:
			st.Up++
		case domain.StatusDown:
			st.Down++
		default:
			st.Pending++
		}
	}
	return st, nil
}

// ---- History ----

func (m *Store) Append(ctx context.Context, r *domain.CheckRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[r.SiteID]; !ok {
		// mirrors the foreign key of the SQL stores
		return domain.ErrNotFound
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = m.now()
	}
	m.nextRec++
	r.ID = m.nextRec
	m.checks[r.SiteID] = append(m.checks[r.SiteID], copyRecord(*r))
	return nil
}

func (m *Store) ListChecks(ctx context.Context, id domain.SiteID, limit int) ([]domain.CheckRecord, error) {
	limit = repo.ClampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.checks[id]
	out := make([]domain.CheckRecord, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyRecord(recs[i]))
	}
	return out, nil
}

func copySite(s *domain.Site) domain.Site {
	cp := *s
	cp.LastCheckedAt = copyTime(s.LastCheckedAt)
	cp.DownSince = copyTime(s.DownSince)
	return cp
}

func copyRecord(r domain.CheckRecord) domain.CheckRecord {
	if r.HTTPCode != nil {
		v := *r.HTTPCode
		r.HTTPCode = &v
	}
	if r.LatencyMS != nil {
		v := *r.LatencyMS
		r.LatencyMS = &v
	}
	return r
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
