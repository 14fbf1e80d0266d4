package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/quota"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockRecorder pins the clock and the settlement hash so every SQL
// argument in the expectations below is deterministic.
func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock, time.Time) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	recorder := NewRecorder(db, quota.NewGuard(nil, nil, nil, quota.DefaultCaps(), testLogger()), nil, testLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recorder.WithClock(func() time.Time { return now })
	recorder.newHash = func() string { return "hash-fixed" }

	return recorder, mock, now
}

// expectLockAndRecheck registers the front half of the transaction: begin,
// per-user advisory lock, wallet lookups and the in-tx quota sums.
func expectLockAndRecheck(mock sqlmock.Sqlmock, userID, restaurantID int64, day time.Time, dailyGiven, restaurantGiven int) {
	end := day.AddDate(0, 0, 1)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(ledgerLockClass, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT origin_country, wallet_address FROM users").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"origin_country", "wallet_address"}).
			AddRow("JP", "0xTOURIST"))
	mock.ExpectQuery("SELECT wallet_address FROM restaurants").
		WithArgs(restaurantID).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address"}).AddRow("0xVENUE"))
	mock.ExpectQuery(`WHERE user_id = \$1 AND transfer_date >= \$2`).
		WithArgs(userID, day, end).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(dailyGiven))
	mock.ExpectQuery(`AND restaurant_id = \$2 AND transfer_date`).
		WithArgs(userID, restaurantID, day, end).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(restaurantGiven))
}

func TestRecord_PersistsTransferAtomically(t *testing.T) {
	recorder, mock, now := newMockRecorder(t)
	day := domain.Day(now)

	expectLockAndRecheck(mock, 7, 21, day, 4, 0)
	mock.ExpectQuery("INSERT INTO transfers").
		WithArgs("hash-fixed", "0xTOURIST", "0xVENUE", int64(7), int64(21), 3, now, "JP").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectExec("UPDATE restaurants").
		WithArgs(3, int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO daily_rewards").
		WithArgs(int64(7), day, domain.DailyCap, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	transfer, err := recorder.Record(context.Background(), 7, 21, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(101), transfer.ID)
	assert.Equal(t, "0xTOURIST", transfer.FromAddress)
	assert.Equal(t, "0xVENUE", transfer.ToAddress)
	assert.Equal(t, "JP", transfer.OriginCountry)
	assert.Equal(t, 3, transfer.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_InTxRecheckStopsDailyCap(t *testing.T) {
	recorder, mock, now := newMockRecorder(t)
	day := domain.Day(now)

	// A concurrent writer already committed 8 coins today; 3 more would
	// breach the daily cap, so the transaction must roll back untouched.
	expectLockAndRecheck(mock, 7, 21, day, 8, 0)
	mock.ExpectRollback()

	_, err := recorder.Record(context.Background(), 7, 21, 3)
	assert.True(t, apperrors.IsQuotaExceeded(err))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.NotNil(t, appErr.Quota)
	assert.Equal(t, 8, appErr.Quota.DailyGiven)
	assert.Equal(t, 2, appErr.Quota.DailyRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_InTxRecheckStopsRestaurantCap(t *testing.T) {
	recorder, mock, now := newMockRecorder(t)
	day := domain.Day(now)

	expectLockAndRecheck(mock, 7, 21, day, 4, 3)
	mock.ExpectRollback()

	_, err := recorder.Record(context.Background(), 7, 21, 1)
	assert.True(t, apperrors.IsQuotaExceeded(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_RetriesOnceAfterSerializationFailure(t *testing.T) {
	recorder, mock, now := newMockRecorder(t)
	day := domain.Day(now)

	// First attempt loses the serialization race on the insert.
	expectLockAndRecheck(mock, 7, 21, day, 0, 0)
	mock.ExpectQuery("INSERT INTO transfers").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	// The retry sees the winner's commit in its fresh quota sums.
	expectLockAndRecheck(mock, 7, 21, day, 2, 0)
	mock.ExpectQuery("INSERT INTO transfers").
		WithArgs("hash-fixed", "0xTOURIST", "0xVENUE", int64(7), int64(21), 2, now, "JP").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(102)))
	mock.ExpectExec("UPDATE restaurants").
		WithArgs(2, int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO daily_rewards").
		WithArgs(int64(7), day, domain.DailyCap, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	transfer, err := recorder.Record(context.Background(), 7, 21, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(102), transfer.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_SurfacesConflictWhenRetryLosesAgain(t *testing.T) {
	recorder, mock, now := newMockRecorder(t)
	day := domain.Day(now)

	for i := 0; i < 2; i++ {
		expectLockAndRecheck(mock, 7, 21, day, 0, 0)
		mock.ExpectQuery("INSERT INTO transfers").
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	_, err := recorder.Record(context.Background(), 7, 21, 1)
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_UnknownUserRollsBack(t *testing.T) {
	recorder, mock, _ := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(ledgerLockClass, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT origin_country, wallet_address FROM users").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"origin_country", "wallet_address"}))
	mock.ExpectRollback()

	_, err := recorder.Record(context.Background(), 42, 21, 1)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_AmountValidation(t *testing.T) {
	recorder := NewRecorder(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, amount := range []int{0, -2, 4, 11} {
		_, err := recorder.Record(context.Background(), 1, 10, amount)
		assert.True(t, apperrors.IsValidation(err), "amount %d", amount)
	}
}

func TestMapWriteError(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "23505"} {
		mapped := mapWriteError(&pq.Error{Code: pq.ErrorCode(code)})
		assert.True(t, apperrors.IsConflict(mapped), "code %s", code)
		assert.True(t, mapped.Retryable, "code %s", code)
	}

	// Unrelated constraint violations stay database errors.
	mapped := mapWriteError(&pq.Error{Code: "23503"})
	assert.True(t, apperrors.HasCode(mapped, apperrors.CodeDatabase))

	mapped = mapWriteError(errors.New("connection reset"))
	assert.True(t, apperrors.HasCode(mapped, apperrors.CodeDatabase))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "quota_exceeded", statusOf(apperrors.NewQuotaExceededError("daily", apperrors.QuotaFigures{})))
	assert.Equal(t, "not_found", statusOf(apperrors.NewNotFoundError("user", 1)))
	assert.Equal(t, "conflict", statusOf(apperrors.NewConflictError("race", nil)))
	assert.Equal(t, "validation_rejected", statusOf(apperrors.NewValidationError("bad amount")))
	assert.Equal(t, "error", statusOf(errors.New("boom")))
}
