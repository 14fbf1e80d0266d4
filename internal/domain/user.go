package domain

import "time"

// User represents a registered tourist. Arrival and departure bound the
// trip window used for voucher eligibility; both are required at creation
// and immutable afterwards.
type User struct {
	ID            int64     `json:"id"`
	OriginCountry string    `json:"origin_country"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}
