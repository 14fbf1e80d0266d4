package eligibility

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
)

var (
	arrival   = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	departure = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
)

type fakeUsers struct {
	user *domain.User
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) FindByWallet(context.Context, string) (*domain.User, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) Create(context.Context, *domain.User) error { return nil }

type fakeRewards struct {
	rewards []domain.DailyReward
}

func (f *fakeRewards) ListByUserDesc(context.Context, int64) ([]domain.DailyReward, error) {
	return f.rewards, nil
}

func (f *fakeRewards) CountCompleted(_ context.Context, _ int64, from, to time.Time) (int, error) {
	count := 0
	for _, r := range f.rewards {
		day := domain.Day(r.RewardDate)
		if r.AllCoinsGiven && !day.Before(from) && !day.After(to) {
			count++
		}
	}
	return count, nil
}

// completeDays builds one AllCoinsGiven row per offset from arrival, most
// recent first as the repository returns them.
func completeDays(offsets ...int) []domain.DailyReward {
	rewards := make([]domain.DailyReward, 0, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		rewards = append(rewards, domain.DailyReward{
			UserID:        1,
			RewardDate:    arrival.AddDate(0, 0, offsets[i]),
			CoinsGiven:    domain.DailyCap,
			AllCoinsGiven: true,
		})
	}
	return rewards
}

func newTestEngine(rewards []domain.DailyReward) *Engine {
	users := &fakeUsers{user: &domain.User{
		ID:            1,
		OriginCountry: "JP",
		ArrivalDate:   arrival,
		DepartureDate: departure,
	}}

	return NewEngine(users, &fakeRewards{rewards: rewards}, nil, time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTripDays(t *testing.T) {
	// Arriving March 1 and departing March 4 spans four calendar days.
	assert.Equal(t, 4, TripDays(arrival, departure))
	assert.Equal(t, 1, TripDays(arrival, arrival))
	assert.Equal(t, 0, TripDays(departure, arrival))
}

func TestSummary_AllDaysCompleteAfterDeparture(t *testing.T) {
	engine := newTestEngine(completeDays(0, 1, 2, 3))

	summary, err := engine.Summary(context.Background(), 1, departure)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalTripDays)
	assert.Equal(t, 4, summary.CompletedDays)
	assert.Equal(t, 4, summary.CurrentStreak)
	assert.InDelta(t, 100.0, summary.CompletionPercentage, 0.001)
	assert.True(t, summary.IsEligibleForVoucher)
	assert.Equal(t, 0, summary.DaysUntilDeparture)
}

func TestSummary_MissedDayBlocksEligibility(t *testing.T) {
	// Day 2 of the trip was skipped.
	engine := newTestEngine(completeDays(0, 1, 3))

	summary, err := engine.Summary(context.Background(), 1, departure)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.CompletedDays)
	assert.InDelta(t, 75.0, summary.CompletionPercentage, 0.001)
	assert.False(t, summary.IsEligibleForVoucher)
	// The streak only covers the departure day itself; the gap on day 2
	// breaks the backward walk.
	assert.Equal(t, 1, summary.CurrentStreak)
}

func TestSummary_PostDepartureDaysDoNotUnlockVoucher(t *testing.T) {
	// Day 2 of the trip was skipped; the user kept giving coins on the day
	// after departure. That extra day must not substitute for the missed one.
	engine := newTestEngine(completeDays(0, 1, 3, 4))

	summary, err := engine.Summary(context.Background(), 1, departure.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.CompletedDays)
	assert.InDelta(t, 75.0, summary.CompletionPercentage, 0.001)
	assert.False(t, summary.IsEligibleForVoucher)
}

func TestSummary_NotEligibleBeforeDeparture(t *testing.T) {
	engine := newTestEngine(completeDays(0, 1, 2))

	summary, err := engine.Summary(context.Background(), 1, arrival.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.CompletedDays)
	assert.False(t, summary.IsEligibleForVoucher)
	assert.Equal(t, 1, summary.DaysUntilDeparture)
	assert.Equal(t, 3, summary.CurrentStreak)
}

func TestSummary_StreakResetsAfterIdleDay(t *testing.T) {
	// Every trip day complete, but asOf is a day past departure with no
	// activity on the departure+1 day: the streak is anchored on today.
	engine := newTestEngine(completeDays(0, 1, 2, 3))

	summary, err := engine.Summary(context.Background(), 1, departure.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, summary.CurrentStreak)
	// Eligibility still holds: it depends on completed days, not the streak.
	assert.True(t, summary.IsEligibleForVoucher)
}

func TestSummary_IncompleteDayBreaksStreak(t *testing.T) {
	rewards := completeDays(0, 1)
	rewards = append([]domain.DailyReward{{
		UserID:     1,
		RewardDate: arrival.AddDate(0, 0, 2),
		CoinsGiven: 7,
	}}, rewards...)

	engine := newTestEngine(rewards)

	summary, err := engine.Summary(context.Background(), 1, arrival.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, 0, summary.CurrentStreak)
	assert.Equal(t, 2, summary.CompletedDays)
}

func TestSummary_NoRewards(t *testing.T) {
	engine := newTestEngine(nil)

	summary, err := engine.Summary(context.Background(), 1, arrival)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.CompletedDays)
	assert.Equal(t, 0, summary.CurrentStreak)
	assert.InDelta(t, 0.0, summary.CompletionPercentage, 0.001)
	assert.False(t, summary.IsEligibleForVoucher)
	assert.Equal(t, 3, summary.DaysUntilDeparture)
}

func TestSummary_UnknownUser(t *testing.T) {
	engine := newTestEngine(nil)

	_, err := engine.Summary(context.Background(), 42, arrival)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSummary_DeterministicForSameAsOf(t *testing.T) {
	engine := newTestEngine(completeDays(0, 1))
	asOf := arrival.AddDate(0, 0, 1).Add(13 * time.Hour)

	first, err := engine.Summary(context.Background(), 1, asOf)
	require.NoError(t, err)
	second, err := engine.Summary(context.Background(), 1, asOf.Add(2*time.Hour))
	require.NoError(t, err)

	// Different wall-clock instants on the same calendar day agree.
	assert.Equal(t, first, second)
}
