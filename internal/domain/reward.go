package domain

import "time"

// DailyReward tracks one user's coin budget for one calendar day. A row is
// created lazily on the first transfer of the day and updated as further
// transfers land; it is never deleted.
type DailyReward struct {
	UserID        int64
	RewardDate    time.Time
	CoinsReceived int
	CoinsGiven    int
	AllCoinsGiven bool
}

// QuotaDecision is the outcome of a pre-flight quota check. DailyGiven and
// RestaurantGivenToday are recomputed from the transfer log, never from the
// cached DailyReward row.
type QuotaDecision struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason,omitempty"`
	DailyGiven           int    `json:"daily_given"`
	DailyRemaining       int    `json:"daily_remaining"`
	RestaurantGivenToday int    `json:"restaurant_given_today"`
}

// TripSummary aggregates a user's trip progress for eligibility decisions.
type TripSummary struct {
	TotalTripDays        int     `json:"total_trip_days"`
	CompletedDays        int     `json:"completed_days"`
	CurrentStreak        int     `json:"current_streak"`
	CompletionPercentage float64 `json:"completion_percentage"`
	IsEligibleForVoucher bool    `json:"is_eligible_for_voucher"`
	DaysUntilDeparture   int     `json:"days_until_departure"`
}

// Voucher is the one-time redemption token for the physical coin. At most
// one valid voucher exists per user; expiry is checked lazily on read.
type Voucher struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Redemption string    `json:"redemption"`
	Valid      bool      `json:"valid"`
}
