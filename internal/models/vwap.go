package models

import "time"

// VWAPState is the session volume-weighted average price view consumed by the
// alignment filter. Reliable turns true once enough bars have accumulated.
type VWAPState struct {
	Value     float64   `json:"value"`
	StdDev    float64   `json:"stdDev"`
	Price     float64   `json:"price"`
	BarCount  int       `json:"barCount"`
	Reliable  bool      `json:"reliable"`
	UpdatedAt time.Time `json:"updatedAt"`
}
