package domain

import "time"

// RankingEntry is one row of an ordered restaurant ranking. DistanceKm is
// populated only for geo-filtered queries.
type RankingEntry struct {
	RestaurantID  int64    `json:"restaurant_id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	TotalCoins    int64    `json:"total_coins"`
	Rank          int      `json:"rank"`
	DistanceKm    *float64 `json:"distance_km,omitempty"`
	OriginCountry string   `json:"origin_country,omitempty"`
}

// RankingPage is a paginated ranking view.
type RankingPage struct {
	Entries    []RankingEntry `json:"entries"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalItems int            `json:"total_items"`
	TotalPages int            `json:"total_pages"`
}

// TrendPoint is one bucket of a restaurant trend series. GrowthRate is the
// period-over-period change in percent; a zero previous period reports 0.
type TrendPoint struct {
	PeriodStart time.Time `json:"period_start"`
	Coins       int64     `json:"coins"`
	GrowthRate  float64   `json:"growth_rate"`
}

// OriginShare is one country's slice of a restaurant's received coins.
type OriginShare struct {
	Country    string  `json:"country"`
	Coins      int64   `json:"coins"`
	Percentage float64 `json:"percentage"`
}

// RestaurantStats is the single-restaurant drill-down view.
type RestaurantStats struct {
	RestaurantID  int64         `json:"restaurant_id"`
	Name          string        `json:"name"`
	TotalCoins    int64         `json:"total_coins"`
	TransferCount int64         `json:"transfer_count"`
	UniqueUsers   int64         `json:"unique_users"`
	Rank          int           `json:"rank"`
	Percentile    float64       `json:"percentile"`
	Origins       []OriginShare `json:"origins"`
	Daily         []TrendPoint  `json:"daily"`
	Weekly        []TrendPoint  `json:"weekly"`
	Monthly       []TrendPoint  `json:"monthly"`
}
