package domain

import "time"

// Coin transfer limits. AmountMin/AmountMax bound a single transfer;
// DailyCap and PerRestaurantCap bound a user's totals per calendar day.
const (
	AmountMin        = 1
	AmountMax        = 3
	DailyCap         = 10
	PerRestaurantCap = 3
)

// Transfer is one append-only ledger entry. OriginCountry is copied from
// the user row at write time so origin rankings never need a join against
// a user whose origin could otherwise have changed.
type Transfer struct {
	ID             int64
	SettlementHash string
	FromAddress    string
	ToAddress      string
	UserID         int64
	RestaurantID   int64
	Amount         int
	TransferDate   time.Time
	OriginCountry  string
}

// Day returns t's calendar day truncated to midnight UTC, the granularity
// at which quotas are enforced.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
