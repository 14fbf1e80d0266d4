// Package voucher issues and serves the one-time physical-coin voucher.
package voucher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/pkg/metrics"
)

const issueLockTTL = 10 * time.Second

// SummaryProvider is the slice of the eligibility engine the issuer needs.
type SummaryProvider interface {
	Summary(ctx context.Context, userID int64, asOf time.Time) (*domain.TripSummary, error)
}

// Issuer creates at most one valid voucher per user. Issue is idempotent:
// while a valid voucher exists, every call returns it unchanged.
type Issuer struct {
	eligibility SummaryProvider
	store       *Store
	window      time.Duration
	log         *slog.Logger

	now func() time.Time
}

// NewIssuer constructs an Issuer with the given validity window.
func NewIssuer(eligibility SummaryProvider, store *Store, window time.Duration, log *slog.Logger) *Issuer {
	if log == nil {
		log = slog.Default()
	}

	return &Issuer{
		eligibility: eligibility,
		store:       store,
		window:      window,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the issuer's time source for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue returns the user's valid voucher, creating one if eligibility holds
// and none exists yet. Concurrent calls are serialized by a short Redis
// lock; a caller that loses the race gets a retryable Conflict.
func (i *Issuer) Issue(ctx context.Context, userID int64) (*domain.Voucher, error) {
	now := i.now().UTC()

	if existing, err := i.findValid(ctx, userID, now); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	summary, err := i.eligibility.Summary(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !summary.IsEligibleForVoucher {
		return nil, apperrors.NewNotEligibleError("trip is not complete")
	}

	locked, err := i.store.Lock(ctx, userID, issueLockTTL)
	if err != nil {
		return nil, apperrors.NewCacheError(err)
	}
	if !locked {
		return nil, apperrors.NewConflictError("voucher issuance already in progress", nil)
	}
	defer func() {
		if err := i.store.Unlock(ctx, userID); err != nil {
			i.log.Warn("voucher unlock failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}()

	// A concurrent request may have finished between the first read and the
	// lock: re-check before creating.
	if existing, err := i.findValid(ctx, userID, now); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	v := &domain.Voucher{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.window),
		Valid:     true,
	}
	v.Redemption = redemptionPayload(v)

	if err := i.store.Save(ctx, v, i.window); err != nil {
		return nil, apperrors.NewCacheError(err)
	}

	metrics.RecordVoucherIssued()
	i.log.Info("voucher issued",
		slog.Int64("user_id", userID),
		slog.String("voucher_id", v.ID),
		slog.Time("expires_at", v.ExpiresAt),
	)

	return v, nil
}

// Get returns the user's voucher if one exists and has not expired. An
// expired record is cleared lazily and reported as absent.
func (i *Issuer) Get(ctx context.Context, userID int64) (*domain.Voucher, error) {
	v, err := i.findValid(ctx, userID, i.now().UTC())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperrors.NewNotFoundError("voucher", userID)
	}

	return v, nil
}

func (i *Issuer) findValid(ctx context.Context, userID int64, now time.Time) (*domain.Voucher, error) {
	v, err := i.store.Find(ctx, userID)
	if err != nil {
		return nil, apperrors.NewCacheError(err)
	}
	if v == nil {
		return nil, nil
	}

	if !now.Before(v.ExpiresAt) || !v.Valid {
		if err := i.store.Delete(ctx, userID); err != nil {
			i.log.Warn("expired voucher cleanup failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return nil, nil
	}

	return v, nil
}

// redemptionPayload binds the voucher to its owner in an opaque token the
// redemption desk can decode offline.
func redemptionPayload(v *domain.Voucher) string {
	binding, _ := json.Marshal(map[string]any{
		"voucher_id": v.ID,
		"user_id":    v.UserID,
		"expires_at": v.ExpiresAt.Unix(),
	})

	return base64.RawURLEncoding.EncodeToString(binding)
}
