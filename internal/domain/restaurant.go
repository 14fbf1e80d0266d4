package domain

import "time"

// Restaurant is an onboarded venue that can receive coins.
//
// TotalCoinsReceived is denormalized: it must always equal the sum of
// accepted transfer amounts for this restaurant. Only the ledger recorder
// mutates it, in the same transaction as the transfer insert.
type Restaurant struct {
	ID                 int64     `json:"id"`
	PlaceRef           string    `json:"place_ref"`
	Name               string    `json:"name"`
	Address            string    `json:"address"`
	Lat                float64   `json:"lat"`
	Lng                float64   `json:"lng"`
	WalletAddress      string    `json:"wallet_address"`
	TotalCoinsReceived int64     `json:"total_coins_received"`
	CreatedAt          time.Time `json:"created_at"`
}
