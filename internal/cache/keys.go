package cache

import (
	"fmt"
	"strings"
	"time"
)

// Key prefixes. Operators clear a whole concern by scope without touching
// unrelated data; every key built here starts with one of these.
const (
	PrefixRanking     = "ranking"
	PrefixDashboard   = "dashboard"
	PrefixEligibility = "eligibility"
	PrefixVoucher     = "voucher"
)

// Invalidation scopes. Writers register each cache key under one or more
// scopes at Set time and invalidate by scope membership, never by wildcard
// scans over the keyspace.
const ScopeRanking = "ranking"

func ScopeRestaurant(restaurantID int64) string {
	return fmt.Sprintf("restaurant:%d", restaurantID)
}

func ScopeUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// RankingKey identifies one (kind, filter, page, limit) ranking view.
func RankingKey(kind, filter string, page, limit int) string {
	if filter == "" {
		filter = "all"
	}

	return fmt.Sprintf("%s:%s:%s:p%d:l%d", PrefixRanking, kind, filter, page, limit)
}

// DashboardKey identifies a restaurant's drill-down statistics.
func DashboardKey(restaurantID int64) string {
	return fmt.Sprintf("%s:restaurant:%d", PrefixDashboard, restaurantID)
}

// EligibilityKey identifies a user's trip summary for one as-of day. The day
// is part of the key so a summary computed for one day is never served for
// another.
func EligibilityKey(userID int64, day time.Time) string {
	return fmt.Sprintf("%s:%d:%s", PrefixEligibility, userID, day.UTC().Format("2006-01-02"))
}

// VoucherKey identifies the stored voucher for a user.
func VoucherKey(userID int64) string {
	return fmt.Sprintf("%s:%d", PrefixVoucher, userID)
}

// KeyPrefix returns the leading segment of a cache key, for metrics labels.
func KeyPrefix(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}

	return key
}

func indexKey(scope string) string {
	return "cacheidx:" + scope
}
