package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one normalized observation for a tracked asset. Price is always
// present; supply, holder count, and TVL stay nil when the corresponding
// provider call failed for that cycle.
type Sample struct {
	Asset      string
	Price      decimal.Decimal
	MarketCap  decimal.Decimal
	Change24h  decimal.Decimal
	Supply     *decimal.Decimal
	Holders    *int64
	TVL        *decimal.Decimal
	ObservedAt time.Time
}

// Clone returns a deep copy so stored samples cannot be mutated through
// pointers handed out by Tail.
func (s Sample) Clone() Sample {
	out := s
	if s.Supply != nil {
		supply := *s.Supply
		out.Supply = &supply
	}
	if s.Holders != nil {
		holders := *s.Holders
		out.Holders = &holders
	}
	if s.TVL != nil {
		tvl := *s.TVL
		out.TVL = &tvl
	}
	return out
}
