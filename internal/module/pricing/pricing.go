package pricing

import "errors"

// ErrInvalidAmount is returned for purchase amounts outside the tier table.
var ErrInvalidAmount = errors.New("amount outside purchasable range")

// Purchase bounds in USD cents.
const (
	MinPurchaseUsdCents int64 = 5_00
	MaxPurchaseUsdCents int64 = 2000_00
)

// Quote is the result of pricing a purchase amount.
type Quote struct {
	Credits         int64 `json:"credits"`
	DiscountPercent int   `json:"discount_percent"`
}

// Tier is one purchase-amount bracket. RateUsdCents is the price of 1000
// credits within the bracket.
type Tier struct {
	MinUsdCents     int64 `json:"min_usd_cents"`
	MaxUsdCents     int64 `json:"max_usd_cents"`
	RateUsdCents    int64 `json:"rate_usd_cents_per_1000"`
	DiscountPercent int   `json:"discount_percent"`
}

// tiers is ordered by descending minimum so boundary amounts resolve to the
// highest bracket that contains them.
var tiers = []Tier{
	{MinUsdCents: 500_00, MaxUsdCents: 2000_00, RateUsdCents: 30, DiscountPercent: 220},
	{MinUsdCents: 100_00, MaxUsdCents: 499_99, RateUsdCents: 45, DiscountPercent: 78},
	{MinUsdCents: 30_00, MaxUsdCents: 99_99, RateUsdCents: 65, DiscountPercent: 33},
	{MinUsdCents: 5_00, MaxUsdCents: 29_99, RateUsdCents: 80, DiscountPercent: 0},
}

// Tiers returns the tier table used both to quote plans and to settle
// payments. The returned slice is a copy.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// Calculate maps a purchase amount in USD cents to a credit quantity and
// discount tier. It is a pure function and the single source of truth for
// purchase pricing.
func Calculate(amountUsdCents int64) (Quote, error) {
	if amountUsdCents < MinPurchaseUsdCents || amountUsdCents > MaxPurchaseUsdCents {
		return Quote{}, ErrInvalidAmount
	}

	for _, t := range tiers {
		if amountUsdCents >= t.MinUsdCents {
			return Quote{
				Credits:         amountUsdCents * 1000 / t.RateUsdCents,
				DiscountPercent: t.DiscountPercent,
			}, nil
		}
	}

	// Unreachable: the bounds check guarantees the lowest tier matches.
	return Quote{}, ErrInvalidAmount
}
