package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func tp(t time.Time) *time.Time { return &t }

func TestTransition_SuccessAlwaysClears(t *testing.T) {
	prevs := []State{
		{},
		{Status: domain.StatusUp},
		{Status: domain.StatusDown, DownSince: tp(at(10))},
		{Status: domain.StatusDown},
	}
	for _, p := range prevs {
		next := Transition(p, domain.OutcomeSuccess, at(50))
		assert.Equal(t, domain.StatusUp, next.Status)
		assert.Nil(t, next.DownSince)
	}
}

func TestTransition_FirstFailureStartsOutage(t *testing.T) {
	for _, p := range []State{{}, {Status: domain.StatusUp}} {
		next := Transition(p, domain.OutcomeFailure, at(100))
		require.Equal(t, domain.StatusDown, next.Status)
		require.NotNil(t, next.DownSince)
		assert.True(t, next.DownSince.Equal(at(100)))
	}
}

func TestTransition_LatchHoldsWhileDown(t *testing.T) {
	for _, start := range []int64{0, 1, 99, 1_700_000_000} {
		prev := State{Status: domain.StatusDown, DownSince: tp(at(start))}
		for _, now := range []int64{start, start + 1, start + 3600} {
			next := Transition(prev, domain.OutcomeFailure, at(now))
			require.Equal(t, domain.StatusDown, next.Status)
			require.NotNil(t, next.DownSince)
			assert.True(t, next.DownSince.Equal(at(start)), "latch moved to %v", next.DownSince)
		}
	}
}

func TestTransition_DoesNotAliasPrevious(t *testing.T) {
	since := at(100)
	prev := State{Status: domain.StatusDown, DownSince: &since}
	next := Transition(prev, domain.OutcomeFailure, at(160))
	since = at(999)
	assert.True(t, next.DownSince.Equal(at(100)))
}

func TestTransition_DownWithoutStartRepairsLatch(t *testing.T) {
	next := Transition(State{Status: domain.StatusDown}, domain.OutcomeFailure, at(42))
	require.NotNil(t, next.DownSince)
	assert.True(t, next.DownSince.Equal(at(42)))
}

func TestTransition_OutageScenario(t *testing.T) {
	s := State{Status: domain.StatusUp}

	s = Transition(s, domain.OutcomeFailure, at(100))
	require.Equal(t, domain.StatusDown, s.Status)
	require.True(t, s.DownSince.Equal(at(100)))

	s = Transition(s, domain.OutcomeFailure, at(160))
	require.Equal(t, domain.StatusDown, s.Status)
	require.True(t, s.DownSince.Equal(at(100)))

	s = Transition(s, domain.OutcomeSuccess, at(220))
	require.Equal(t, domain.StatusUp, s.Status)
	require.Nil(t, s.DownSince)
}

func TestChanged(t *testing.T) {
	up := State{Status: domain.StatusUp}
	down := State{Status: domain.StatusDown, DownSince: tp(at(1))}
	assert.True(t, Changed(State{}, up))
	assert.True(t, Changed(up, down))
	assert.False(t, Changed(down, State{Status: domain.StatusDown, DownSince: tp(at(1))}))
	assert.False(t, Changed(up, up))
}

func TestOf(t *testing.T) {
	since := at(5)
	s := Of(domain.Site{ID: 1, Status: domain.StatusDown, DownSince: &since})
	assert.Equal(t, domain.StatusDown, s.Status)
	assert.Same(t, &since, s.DownSince)
}
