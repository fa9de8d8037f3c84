// Package mysql stores sites and check history in MySQL/MariaDB through
// database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens a pool for dsn ("user:pass@tcp(host:3306)/db"). Times are
// stored as UTC DATETIME values regardless of what the DSN asks for.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// report matched rows so an idempotent update is not mistaken for a missing site
	cfg.ClientFoundRows = true

	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sites (
	   id              BIGINT AUTO_INCREMENT PRIMARY KEY,
	   name            VARCHAR(255)  NOT NULL,
	   url             VARCHAR(2048) NOT NULL,
	   status          VARCHAR(8)    NULL,
	   last_checked_at DATETIME      NULL,
	   down_since      DATETIME      NULL,
	   created_at      DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP
	 ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS checks (
	   id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	   site_id    BIGINT     NOT NULL,
	   outcome    VARCHAR(8) NOT NULL,
	   http_code  INT        NULL,
	   latency_ms INT        NULL,
	   checked_at DATETIME   NOT NULL,
	   INDEX idx_checks_site_time (site_id, checked_at),
	   FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
	 ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return domain.WrapStorage("ensure schema", err)
		}
	}
	s.log.Info("schema_ready", zap.String("driver", "mysql"))
	return nil
}

// ---- Registry ----

const siteColumns = `id, name, url, status, last_checked_at, down_since, created_at`

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id DESC`)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, int64(id))
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get site", err)
	}
	return &site, nil
}

func (s *Store) UpdateSiteState(ctx context.Context, id domain.SiteID, status domain.Status, downSince *time.Time, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET status = ?, down_since = ?, last_checked_at = ? WHERE id = ?`,
		nullStatus(status), nullTime(downSince), toSecond(checkedAt), int64(id))
	if err != nil {
		return domain.WrapStorage("update site state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapStorage("update site state", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSite(ctx context.Context, name, target string) (*domain.Site, error) {
	site, err := domain.NewSite(name, target)
	if err != nil {
		return nil, err
	}
	site.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, url, created_at) VALUES (?, ?, ?)`,
		site.Name, site.URL, site.CreatedAt)
	if err != nil {
		return nil, domain.WrapStorage("insert site", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain.WrapStorage("insert site", err)
	}
	site.ID = domain.SiteID(id)
	return &site, nil
}

func (s *Store) DeleteSite(ctx context.Context, id domain.SiteID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, int64(id))
	if err != nil {
		return domain.WrapStorage("delete site", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapStorage("delete site", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'down' THEN 1 ELSE 0 END), 0)
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
	var code, latency sql.NullInt64
	if r.HTTPCode != nil {
		code = sql.NullInt64{Int64: int64(*r.HTTPCode), Valid: true}
	}
	if r.LatencyMS != nil {
		latency = sql.NullInt64{Int64: *r.LatencyMS, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (site_id, outcome, http_code, latency_ms, checked_at) VALUES (?, ?, ?, ?, ?)`,
		int64(r.SiteID), string(r.Outcome), code, latency, toSecond(r.CheckedAt))
	if err != nil {
		return domain.WrapStorage("insert check", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapStorage("insert check", err)
	}
	r.ID = id
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.SiteID, limit int) ([]domain.CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, outcome, http_code, latency_ms, checked_at
		   FROM checks
		  WHERE site_id = ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, int64(id), repo.ClampLimit(limit))
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
			code    sql.NullInt64
			latency sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &siteID, &outcome, &code, &latency, &r.CheckedAt); err != nil {
			return nil, domain.WrapStorage("scan check", err)
		}
		r.SiteID = domain.SiteID(siteID)
		r.Outcome = domain.Outcome(outcome)
		if code.Valid {
			v := int(code.Int64)
			r.HTTPCode = &v
		}
		if latency.Valid {
			v := latency.Int64
			r.LatencyMS = &v
		}
		r.CheckedAt = r.CheckedAt.UTC()
		out = append(out, r)
	}
	return out, domain.WrapStorage("list checks", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(row scanner) (domain.Site, error) {
	var (
		site      domain.Site
		id        int64
		status    sql.NullString
		checkedAt sql.NullTime
		downSince sql.NullTime
	)
	if err := row.Scan(&id, &site.Name, &site.URL, &status, &checkedAt, &downSince, &site.CreatedAt); err != nil {
		return domain.Site{}, err
	}
	site.ID = domain.SiteID(id)
	site.Status = domain.StoredStatus(status.String)
	if checkedAt.Valid {
		v := checkedAt.Time.UTC()
		site.LastCheckedAt = &v
	}
	if downSince.Valid {
		v := downSince.Time.UTC()
		site.DownSince = &v
	}
	site.CreatedAt = site.CreatedAt.UTC()
	return site, nil
}

func nullStatus(s domain.Status) sql.NullString {
	return sql.NullString{String: string(s), Valid: s != domain.StatusUnknown}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: toSecond(*t), Valid: true}
}

// toSecond drops the fraction before binding. DATETIME(0) columns would
// otherwise round it, moving 11:59:00.7 to 11:59:01.
func toSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
