package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
  id              BIGSERIAL PRIMARY KEY,
  name            VARCHAR(255)  NOT NULL,
  url             VARCHAR(2048) NOT NULL,
  status          VARCHAR(8)    NULL,
  last_checked_at TIMESTAMPTZ   NULL,
  down_since      TIMESTAMPTZ   NULL,
  created_at      TIMESTAMPTZ   NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checks (
  id         BIGSERIAL PRIMARY KEY,
  site_id    BIGINT      NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
  outcome    VARCHAR(8)  NOT NULL,
  http_code  INTEGER     NULL,
  latency_ms INTEGER     NULL,
  checked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_site_time ON checks (site_id, checked_at DESC);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return domain.WrapStorage("ensure schema", err)
	}
	s.log.Info("schema_ready", zap.String("driver", "postgres"))
	return nil
}

// ---- Registry ----

const siteColumns = `id, name, url, status, last_checked_at, down_since, created_at`

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id DESC`)
	if err != nil {
		return nil, domain.WrapStorage("list sites", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan site", err)
		}
		out = append(out, site)
	}
	return out, domain.WrapStorage("list sites", rows.Err())
}

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, int64(id))
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get site", err)
	}
	return &site, nil
}

func (s *Store) UpdateSiteState(ctx context.Context, id domain.SiteID, status domain.Status, downSince *time.Time, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites
		    SET status = $1, down_since = $2, last_checked_at = $3
		  WHERE id = $4`,
		statusArg(status), utcPtr(downSince), checkedAt.UTC(), int64(id))
	if err != nil {
		return domain.WrapStorage("update site state", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSite(ctx context.Context, name, target string) (*domain.Site, error) {
	site, err := domain.NewSite(name, target)
	if err != nil {
		return nil, err
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sites (name, url) VALUES ($1, $2) RETURNING id, created_at`,
		site.Name, site.URL,
	).Scan(&id, &site.CreatedAt)
	if err != nil {
		return nil, domain.WrapStorage("insert site", err)
	}
	site.ID = domain.SiteID(id)
	site.CreatedAt = site.CreatedAt.UTC()
	return &site, nil
}

func (s *Store) DeleteSite(ctx context.Context, id domain.SiteID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, int64(id))
	if err != nil {
		return domain.WrapStorage("delete site", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'up'),
       COUNT(*) FILTER (WHERE status = 'down')
  FROM sites`).Scan(&st.Total, &st.Up, &st.Down)
	if err != nil {
		return domain.Stats{}, domain.WrapStorage("stats", err)
	}
	st.Pending = st.Total - st.Up - st.Down
	return st, nil
}

// ---- History ----

func (s *Store) Append(ctx context.Context, r *domain.CheckRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checks (site_id, outcome, http_code, latency_ms, checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		int64(r.SiteID), string(r.Outcome), r.HTTPCode, r.LatencyMS, r.CheckedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return domain.WrapStorage("insert check", err)
	}
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.SiteID, limit int) ([]domain.CheckRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, site_id, outcome, http_code, latency_ms, checked_at
		   FROM checks
		  WHERE site_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, int64(id), repo.ClampLimit(limit))
	if err != nil {
		return nil, domain.WrapStorage("list checks", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		var (
			r       domain.CheckRecord
			siteID  int64
			outcome string
		)
		if err := rows.Scan(&r.ID, &siteID, &outcome, &r.HTTPCode, &r.LatencyMS, &r.CheckedAt); err != nil {
			return nil, domain.WrapStorage("scan check", err)
		}
		r.SiteID = domain.SiteID(siteID)
		r.Outcome = domain.Outcome(outcome)
		r.CheckedAt = r.CheckedAt.UTC()
		out = append(out, r)
	}
	return out, domain.WrapStorage("list checks", rows.Err())
}

func scanSite(row pgx.Row) (domain.Site, error) {
	var (
		site      domain.Site
		id        int64
		status    *string
		checkedAt *time.Time
		downSince *time.Time
	)
	if err := row.Scan(&id, &site.Name, &site.URL, &status, &checkedAt, &downSince, &site.CreatedAt); err != nil {
		return domain.Site{}, err
	}
	site.ID = domain.SiteID(id)
	if status != nil {
		site.Status = domain.StoredStatus(*status)
	}
	site.LastCheckedAt = utcPtr(checkedAt)
	site.DownSince = utcPtr(downSince)
	site.CreatedAt = site.CreatedAt.UTC()
	return site, nil
}

func statusArg(s domain.Status) *string {
	if s == domain.StatusUnknown {
		return nil
	}
	v := string(s)
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
