// Package ledger owns the authoritative write path for coin transfers.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/quota"
	"github.com/smiletrip/smilecoin/pkg/metrics"
)

// ledgerLockClass partitions the advisory-lock namespace: per-user ledger
// locks live under class 1, the migrator's boot lock under class 2, so a
// user id can never contend with a migration pass.
const ledgerLockClass = 1

// Invalidator is the slice of the cache store the recorder needs after a
// committed write.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
	InvalidateScope(ctx context.Context, scopes ...string) error
}

// Recorder performs the atomic transfer write: ledger insert, restaurant
// counter increment and daily reward upsert in one transaction, followed by
// cache invalidation.
//
// Concurrent Record calls for the same user are serialized by a
// pg_advisory_xact_lock on the user id, so the in-transaction quota check
// sees every committed transfer of the day. Both caps key on the user, so
// the user lock covers the per-restaurant cap as well.
type Recorder struct {
	db    *sql.DB
	guard *quota.Guard
	cache Invalidator
	log   *slog.Logger

	now     func() time.Time
	newHash func() string
}

// NewRecorder constructs a Recorder. The cache invalidator may be nil; the
// TTL then remains the only staleness bound.
func NewRecorder(db *sql.DB, guard *quota.Guard, invalidator Invalidator, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}

	return &Recorder{
		db:      db,
		guard:   guard,
		cache:   invalidator,
		log:     log,
		now:     time.Now,
		newHash: uuid.NewString,
	}
}

// WithClock overrides the recorder's time source. Tests use it to pin the
// transfer day.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record validates and persists one transfer. It fails with QuotaExceeded,
// NotFound or Conflict per the error taxonomy; a Conflict from a concurrent
// commit is retried once with fresh quota figures.
func (r *Recorder) Record(ctx context.Context, userID, restaurantID int64, amount int) (*domain.Transfer, error) {
	start := time.Now()

	if amount < domain.AmountMin || amount > domain.AmountMax {
		metrics.RecordTransfer("validation_rejected", 0, time.Since(start))
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("amount must be between %d and %d", domain.AmountMin, domain.AmountMax))
	}

	var transfer *domain.Transfer
	err := apperrors.WithRetry(ctx, func() error {
		var recordErr error
		transfer, recordErr = r.recordOnce(ctx, userID, restaurantID, amount)
		return recordErr
	})
	if err != nil {
		metrics.RecordTransfer(statusOf(err), 0, time.Since(start))
		return nil, err
	}

	metrics.RecordTransfer("ok", transfer.Amount, time.Since(start))
	return transfer, nil
}

func (r *Recorder) recordOnce(ctx context.Context, userID, restaurantID int64, amount int) (*domain.Transfer, error) {
	now := r.now().UTC()
	day := domain.Day(now)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.log.Error("transfer rollback failed", slog.Any("error", rbErr))
			}
		}
	}()

	// Serialize all writes for this user before reading the day's totals.
	// The modulo folds bigint ids into the int4 key space; a fold collision
	// only over-serializes, it never lets two same-user writes interleave.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1::int, ($2 % 2147483648)::int)`,
		ledgerLockClass, userID); err != nil {
		return nil, mapWriteError(err)
	}

	var (
		originCountry string
		userWallet    string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT origin_country, wallet_address FROM users WHERE id = $1`, userID,
	).Scan(&originCountry, &userWallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	var restaurantWallet string
	err = tx.QueryRowContext(ctx,
		`SELECT wallet_address FROM restaurants WHERE id = $1`, restaurantID,
	).Scan(&restaurantWallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("restaurant", restaurantID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	dailyGiven, restaurantGiven, err := r.sumsForDay(ctx, tx, userID, restaurantID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	decision := r.guard.Decide(dailyGiven, restaurantGiven, amount)
	if !decision.Allowed {
		return nil, apperrors.NewQuotaExceededError(decision.Reason, apperrors.QuotaFigures{
			DailyGiven:           decision.DailyGiven,
			DailyRemaining:       decision.DailyRemaining,
			RestaurantGivenToday: decision.RestaurantGivenToday,
		})
	}

	transfer := &domain.Transfer{
		SettlementHash: r.newHash(),
		FromAddress:    userWallet,
		ToAddress:      restaurantWallet,
		UserID:         userID,
		RestaurantID:   restaurantID,
		Amount:         amount,
		TransferDate:   now,
		OriginCountry:  originCountry,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO transfers (settlement_hash, from_address, to_address, user_id, restaurant_id, amount, transfer_date, origin_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		transfer.SettlementHash,
		transfer.FromAddress,
		transfer.ToAddress,
		transfer.UserID,
		transfer.RestaurantID,
		transfer.Amount,
		transfer.TransferDate,
		transfer.OriginCountry,
	).Scan(&transfer.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE restaurants
		SET total_coins_received = total_coins_received + $1
		WHERE id = $2
	`, amount, restaurantID); err != nil {
		return nil, mapWriteError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_rewards (user_id, reward_date, coins_received, coins_given, all_coins_given)
		VALUES ($1, $2, $3, $4, $4 >= $3)
		ON CONFLICT (user_id, reward_date) DO UPDATE
		SET coins_given     = daily_rewards.coins_given + EXCLUDED.coins_given,
		    all_coins_given = daily_rewards.coins_given + EXCLUDED.coins_given >= daily_rewards.coins_received
	`, userID, day, r.guard.Caps().Daily, amount); err != nil {
		return nil, mapWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	committed = true

	r.invalidateAfterCommit(ctx, userID, restaurantID, day)

	r.log.Info("transfer recorded",
		slog.Int64("transfer_id", transfer.ID),
		slog.Int64("user_id", userID),
		slog.Int64("restaurant_id", restaurantID),
		slog.Int("amount", amount),
	)

	return transfer, nil
}

func (r *Recorder) sumsForDay(ctx context.Context, tx *sql.Tx, userID, restaurantID int64, day time.Time) (int, int, error) {
	end := day.AddDate(0, 0, 1)

	var dailyGiven int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE user_id = $1 AND transfer_date >= $2 AND transfer_date < $3
	`, userID, day, end).Scan(&dailyGiven); err != nil {
		return 0, 0, fmt.Errorf("sum daily transfers: %w", err)
	}

	var restaurantGiven int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE user_id = $1 AND restaurant_id = $2 AND transfer_date >= $3 AND transfer_date < $4
	`, userID, restaurantID, day, end).Scan(&restaurantGiven); err != nil {
		return 0, 0, fmt.Errorf("sum per-restaurant transfers: %w", err)
	}

	return dailyGiven, restaurantGiven, nil
}

// invalidateAfterCommit drops the cached views the committed write may have
// changed. Cached aggregates span filters the write knows nothing about, so
// whole scopes are invalidated rather than patched. Failures are logged and
// swallowed: stale entries expire via TTL. The parent context may already be
// canceled by a client timeout; the write committed, so invalidation still
// runs on a detached context.
func (r *Recorder) invalidateAfterCommit(ctx context.Context, userID, restaurantID int64, day time.Time) {
	if r.cache == nil {
		return
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := r.cache.InvalidateScope(detached, cache.ScopeRanking, cache.ScopeRestaurant(restaurantID)); err != nil {
		r.log.Warn("post-commit ranking invalidation failed",
			slog.Int64("restaurant_id", restaurantID), slog.Any("error", err))
	}

	if err := r.cache.Delete(detached, cache.EligibilityKey(userID, day)); err != nil {
		r.log.Warn("post-commit eligibility invalidation failed",
			slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// mapWriteError folds driver-level failures into the error taxonomy.
// Serialization failures, deadlocks and duplicate-key races all mean a
// concurrent writer won, which callers may retry once.
func mapWriteError(err error) *apperrors.AppError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return apperrors.NewConflictError("concurrent transfer committed first", err)
		}
	}

	return apperrors.NewDatabaseError(err)
}

func statusOf(err error) string {
	switch {
	case apperrors.IsQuotaExceeded(err):
		return "quota_exceeded"
	case apperrors.IsNotFound(err):
		return "not_found"
	case apperrors.IsConflict(err):
		return "conflict"
	case apperrors.IsValidation(err):
		return "validation_rejected"
	default:
		return "error"
	}
}
