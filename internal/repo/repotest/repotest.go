// Package repotest is a contract suite every repo.Store adapter runs in its
// own tests.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Run exercises store through the Registry and History ports. newStore must
// return an empty, schema-ready store.
func Run(t *testing.T, newStore func(t *testing.T) repo.Store) {
	t.Run("CreateNormalizesAndLists", func(t *testing.T) { testCreateAndList(t, newStore(t)) })
	t.Run("CreateRejectsInvalid", func(t *testing.T) { testCreateInvalid(t, newStore(t)) })
	t.Run("UpdateSiteState", func(t *testing.T) { testUpdateState(t, newStore(t)) })
	t.Run("UpdateMissingSite", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("CheckRecordRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
	t.Run("IDsNotReused", func(t *testing.T) { testIDsNotReused(t, newStore(t)) })
	t.Run("SubSecondTimesTruncate", func(t *testing.T) { testSubSecondTimes(t, newStore(t)) })
}

func ip(v int) *int       { return &v }
func i64p(v int64) *int64 { return &v }

// second precision survives every backend
func ts(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func testCreateAndList(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, err := s.CreateSite(ctx, "Example", "example.com")
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	assert.Equal(t, "http://example.com", a.URL)
	assert.Equal(t, domain.StatusUnknown, a.Status)
	assert.Nil(t, a.LastCheckedAt)
	assert.Nil(t, a.DownSince)

	b, err := s.CreateSite(ctx, "Secure", "https://secure.example.com/health")
	require.NoError(t, err)

	list, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")
	assert.Equal(t, a.ID, list[1].ID)

	got, err := s.GetSite(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Example", got.Name)

	_, err = s.GetSite(ctx, a.ID+1000)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testCreateInvalid(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.CreateSite(ctx, "", "example.com")
	assert.True(t, domain.IsValidation(err), "got %v", err)
	_, err = s.CreateSite(ctx, "x", "ftp://example.com")
	assert.True(t, domain.IsValidation(err), "got %v", err)

	list, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testUpdateState(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site, err := s.CreateSite(ctx, "A", "a.example.com")
	require.NoError(t, err)

	down := ts(1_700_000_100)
	require.NoError(t, s.UpdateSiteState(ctx, site.ID, domain.StatusDown, &down, down))
	got, err := s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDown, got.Status)
	require.NotNil(t, got.DownSince)
	assert.True(t, got.DownSince.Equal(down))
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, got.LastCheckedAt.Equal(down))

	up := ts(1_700_000_220)
	require.NoError(t, s.UpdateSiteState(ctx, site.ID, domain.StatusUp, nil, up))
	got, err = s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUp, got.Status)
	assert.Nil(t, got.DownSince)
	assert.True(t, got.LastCheckedAt.Equal(up))
}

func testUpdateMissing(t *testing.T, s repo.Store) {
	err := s.UpdateSiteState(context.Background(), 424242, domain.StatusUp, nil, ts(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testRoundTrip(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site, err := s.CreateSite(ctx, "A", "a.example.com")
	require.NoError(t, err)

	ok := &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeSuccess, HTTPCode: ip(200), LatencyMS: i64p(42), CheckedAt: ts(1_700_000_000)}
	bad := &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeFailure, HTTPCode: ip(503), LatencyMS: i64p(7), CheckedAt: ts(1_700_000_060)}
	dead := &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeFailure, CheckedAt: ts(1_700_000_120)}
	for _, r := range []*domain.CheckRecord{ok, bad, dead} {
		require.NoError(t, s.Append(ctx, r))
		require.NotZero(t, r.ID)
	}

	got, err := s.ListChecks(ctx, site.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []*domain.CheckRecord{dead, bad, ok} {
		assert.Equal(t, want.ID, got[i].ID)
		assert.Equal(t, want.SiteID, got[i].SiteID)
		assert.Equal(t, want.Outcome, got[i].Outcome)
		assert.Equal(t, want.HTTPCode, got[i].HTTPCode)
		assert.Equal(t, want.LatencyMS, got[i].LatencyMS)
		assert.True(t, want.CheckedAt.Equal(got[i].CheckedAt), "checked_at %v vs %v", want.CheckedAt, got[i].CheckedAt)
	}

	limited, err := s.ListChecks(ctx, site.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, dead.ID, limited[0].ID)
}

func testDeleteCascades(t *testing.T, s repo.Store) {
	ctx := context.Background()
	keep, err := s.CreateSite(ctx, "Keep", "keep.example.com")
	require.NoError(t, err)
	gone, err := s.CreateSite(ctx, "Gone", "gone.example.com")
	require.NoError(t, err)
	for _, id := range []domain.SiteID{keep.ID, gone.ID} {
		require.NoError(t, s.Append(ctx, &domain.CheckRecord{SiteID: id, Outcome: domain.OutcomeSuccess, HTTPCode: ip(200), LatencyMS: i64p(1), CheckedAt: ts(100)}))
	}

	require.NoError(t, s.DeleteSite(ctx, gone.ID))
	assert.ErrorIs(t, s.DeleteSite(ctx, gone.ID), domain.ErrNotFound)

	_, err = s.GetSite(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	recs, err := s.ListChecks(ctx, gone.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.ListChecks(ctx, keep.ID, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	err = s.Append(ctx, &domain.CheckRecord{SiteID: gone.ID, Outcome: domain.OutcomeFailure, CheckedAt: ts(200)})
	assert.Error(t, err, "history for a deleted site must not be accepted")
}

func testStats(t *testing.T, s repo.Store) {
	ctx := context.Background()
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{}, st)

	ids := make([]domain.SiteID, 0, 4)
	for i := 0; i < 4; i++ {
		site, err := s.CreateSite(ctx, fmt.Sprintf("s%d", i), fmt.Sprintf("s%d.example.com", i))
		require.NoError(t, err)
		ids = append(ids, site.ID)
	}
	down := ts(500)
	require.NoError(t, s.UpdateSiteState(ctx, ids[0], domain.StatusUp, nil, down))
	require.NoError(t, s.UpdateSiteState(ctx, ids[1], domain.StatusDown, &down, down))
	require.NoError(t, s.UpdateSiteState(ctx, ids[2], domain.StatusDown, &down, down))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Total: 4, Up: 1, Down: 2, Pending: 1}, st)
}

func testIDsNotReused(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, err := s.CreateSite(ctx, "A", "a.example.com")
	require.NoError(t, err)
	require.NoError(t, s.DeleteSite(ctx, a.ID))
	b, err := s.CreateSite(ctx, "B", "b.example.com")
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
	assert.False(t, errors.Is(s.DeleteSite(ctx, b.ID), domain.ErrNotFound))
}

// Backends may keep or drop the fraction, but must never round a timestamp
// up into the next second.
func testSubSecondTimes(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site, err := s.CreateSite(ctx, "Late", "late.example.com")
	require.NoError(t, err)

	since := ts(100).Add(700 * time.Millisecond)
	checked := ts(160).Add(900 * time.Millisecond)
	require.NoError(t, s.UpdateSiteState(ctx, site.ID, domain.StatusDown, &since, checked))

	got, err := s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DownSince)
	require.NotNil(t, got.LastCheckedAt)
	assert.Equal(t, int64(100), got.DownSince.Unix())
	assert.Equal(t, int64(160), got.LastCheckedAt.Unix())

	rec := &domain.CheckRecord{SiteID: site.ID, Outcome: domain.OutcomeFailure, CheckedAt: ts(200).Add(999 * time.Millisecond)}
	require.NoError(t, s.Append(ctx, rec))
	recs, err := s.ListChecks(ctx, site.ID, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(200), recs[0].CheckedAt.Unix())
}
