package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db, mock
}

func TestCountCompleted_BoundsToTripWindow(t *testing.T) {
	db, mock := newMockDB(t)
	rewards := NewRewardRepository(db, testLogger())

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	// Rows outside [from, to] must be excluded in SQL: complete days after
	// departure can never count toward the voucher.
	mock.ExpectQuery(`all_coins_given = TRUE AND reward_date BETWEEN \$2 AND \$3`).
		WithArgs(int64(7), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := rewards.CountCompleted(context.Background(), 7, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
