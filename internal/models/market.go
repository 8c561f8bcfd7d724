package models

// GEXProfile is the upstream gamma-exposure summary. NetGEX sign drives the
// directional-support heuristics; the rest is pass-through context.
type GEXProfile struct {
	NetGEX    float64  `json:"netGex"`
	FlipPoint *float64 `json:"flipPoint,omitempty"`
	CallWall  *float64 `json:"callWall,omitempty"`
	PutWall   *float64 `json:"putWall,omitempty"`
}

// BasisState reports which index product is leading the tape.
type BasisState struct {
	Leading string  `json:"leading"` // "SPX", "SPY" or "neutral"
	Points  float64 `json:"points"`
}

// MarketMetrics carries externally computed indicator values consumed by
// feature extraction. Zero-valued fields mean "not supplied"; the extractor
// falls back to inference where it can.
type MarketMetrics struct {
	ATR14          *float64 `json:"atr14,omitempty"`
	ATR7           *float64 `json:"atr7,omitempty"`
	DistanceToVWAP *float64 `json:"distanceToVwap,omitempty"`
	IVRank         *float64 `json:"ivRank,omitempty"`
	IVSkew         *float64 `json:"ivSkew,omitempty"`
	PutCallRatio   *float64 `json:"putCallRatio,omitempty"`
	DTE            *float64 `json:"dte,omitempty"`
}
