// Package sqlite is the embedded single-node store, built on gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type siteRow struct {
	ID            int64 `gorm:"primaryKey"`
	Name          string
	URL           string
	Status        *string
	LastCheckedAt *time.Time
	DownSince     *time.Time
	CreatedAt     time.Time
}

func (siteRow) TableName() string { return "sites" }

type checkRow struct {
	ID        int64 `gorm:"primaryKey"`
	SiteID    int64
	Outcome   string
	HTTPCode  *int
	LatencyMS *int64
	CheckedAt time.Time
}

func (checkRow) TableName() string { return "checks" }

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// New opens (or creates) the database file at path with foreign keys on.
func New(path string, log *zap.Logger) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	// one writer at a time keeps sqlite out of SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// AUTOINCREMENT keeps SQLite from handing out the id of a deleted row again.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sites (
	   id              INTEGER PRIMARY KEY AUTOINCREMENT,
	   name            VARCHAR(255)  NOT NULL,
	   url             VARCHAR(2048) NOT NULL,
	   status          VARCHAR(8),
	   last_checked_at DATETIME,
	   down_since      DATETIME,
	   created_at      DATETIME NOT NULL
	 )`,
	`CREATE TABLE IF NOT EXISTS checks (
	   id         INTEGER PRIMARY KEY AUTOINCREMENT,
	   site_id    INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	   outcome    VARCHAR(8) NOT NULL,
	   http_code  INTEGER,
	   latency_ms INTEGER,
	   checked_at DATETIME NOT NULL
	 )`,
	`CREATE INDEX IF NOT EXISTS idx_checks_site_time ON checks (site_id, checked_at)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range schema {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.WrapStorage("ensure schema", err)
	}
	s.log.Info("schema_ready", zap.String("driver", "sqlite"))
	return nil
}

// ---- Registry ----

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	var rows []siteRow
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, domain.WrapStorage("list sites", err)
	}
	out := make([]domain.Site, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	var row siteRow
	err := s.db.WithContext(ctx).First(&row, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get site", err)
	}
	site := row.toDomain()
	return &site, nil
}

func (s *Store) UpdateSiteState(ctx context.Context, id domain.SiteID, status domain.Status, downSince *time.Time, checkedAt time.Time) error {
	checked := checkedAt.UTC()
	res := s.db.WithContext(ctx).Model(&siteRow{}).Where("id = ?", int64(id)).Updates(map[string]any{
		"status":          statusPtr(status),
		"down_since":      utcPtr(downSince),
		"last_checked_at": &checked,
	})
	if res.Error != nil {
		return domain.WrapStorage("update site state", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSite(ctx context.Context, name, target string) (*domain.Site, error) {
	site, err := domain.NewSite(name, target)
	if err != nil {
		return nil, err
	}
	row := siteRow{Name: site.Name, URL: site.URL}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, domain.WrapStorage("insert site", err)
	}
	out := row.toDomain()
	return &out, nil
}

// DeleteSite removes the history explicitly as well, so a connection opened
// without foreign key enforcement still cascades.
func (s *Store) DeleteSite(ctx context.Context, id domain.SiteID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&siteRow{}, int64(id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Where("site_id = ?", int64(id)).Delete(&checkRow{}).Error
	})
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.WrapStorage("delete site", err)
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var groups []struct {
		Status *string
		N      int
	}
	err := s.db.WithContext(ctx).Model(&siteRow{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&groups).Error
	if err != nil {
		return domain.Stats{}, domain.WrapStorage("stats", err)
	}
	var st domain.Stats
	for _, g := range groups {
		st.Total += g.N
		switch {
		case g.Status == nil:
			st.Pending += g.N
		case domain.Status(*g.Status) == domain.StatusUp:
			st.Up += g.N
		case domain.Status(*g.Status) == domain.StatusDown:
			st.Down += g.N
		default:
			st.Pending += g.N
		}
	}
	return st, nil
}

// ---- History ----

func (s *Store) Append(ctx context.Context, r *domain.CheckRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	row := checkRow{
		SiteID:    int64(r.SiteID),
		Outcome:   string(r.Outcome),
		HTTPCode:  r.HTTPCode,
		LatencyMS: r.LatencyMS,
		CheckedAt: r.CheckedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.WrapStorage("insert check", err)
	}
	r.ID = row.ID
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.SiteID, limit int) ([]domain.CheckRecord, error) {
	var rows []checkRow
	err := s.db.WithContext(ctx).
		Where("site_id = ?", int64(id)).
		Order("checked_at DESC").Order("id DESC").
		Limit(repo.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, domain.WrapStorage("list checks", err)
	}
	out := make([]domain.CheckRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CheckRecord{
			ID:        r.ID,
			SiteID:    domain.SiteID(r.SiteID),
			Outcome:   domain.Outcome(r.Outcome),
			HTTPCode:  r.HTTPCode,
			LatencyMS: r.LatencyMS,
			CheckedAt: r.CheckedAt.UTC(),
		})
	}
	return out, nil
}

func (r siteRow) toDomain() domain.Site {
	site := domain.Site{
		ID:            domain.SiteID(r.ID),
		Name:          r.Name,
		URL:           r.URL,
		LastCheckedAt: utcPtr(r.LastCheckedAt),
		DownSince:     utcPtr(r.DownSince),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.Status != nil {
		site.Status = domain.StoredStatus(*r.Status)
	}
	return site
}

func statusPtr(s domain.Status) *string {
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
