package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesForRestaurant_TruncatesOnUTCWallClock(t *testing.T) {
	db, mock := newMockDB(t)
	transfers := NewTransferRepository(db, testLogger())

	since := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)

	// Bucketing must truncate the UTC wall clock, not the session timezone,
	// or zero-fill lookups on the Go side miss every period.
	mock.ExpectQuery(`date_trunc\(\$2, transfer_date AT TIME ZONE 'UTC'\)`).
		WithArgs(int64(21), "day", since).
		WillReturnRows(sqlmock.NewRows([]string{"period", "coalesce"}).
			AddRow(since, int64(4)).
			AddRow(since.AddDate(0, 0, 1), int64(6)))

	series, err := transfers.SeriesForRestaurant(context.Background(), 21, "day", since)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.True(t, series[0].PeriodStart.Equal(since))
	assert.Equal(t, int64(4), series[0].Coins)
	assert.True(t, series[1].PeriodStart.Equal(since.AddDate(0, 0, 1)))
	assert.Equal(t, int64(6), series[1].Coins)
	assert.NoError(t, mock.ExpectationsWereMet())
}
