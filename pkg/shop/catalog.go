package shop

import (
	"math"

	"premiumshop/pkg/config"
)

// Period identifies a subscription tier.
type Period string

const (
	PeriodThreeMonths  Period = "3months"
	PeriodSixMonths    Period = "6months"
	PeriodTwelveMonths Period = "12months"
)

// Prices are the reseller's prices in rubles as sent by the bot backend.
type Prices struct {
	ThreeMonths  int `json:"three_months"`
	SixMonths    int `json:"six_months"`
	TwelveMonths int `json:"twelve_months"`
}

// DefaultPrices are used whenever the backend cannot supply prices.
var DefaultPrices = Prices{ThreeMonths: 390, SixMonths: 690, TwelveMonths: 990}

// officialPrices are Telegram's own prices for the same periods.
var officialPrices = map[Period]int{
	PeriodThreeMonths:  1290,
	PeriodSixMonths:    1790,
	PeriodTwelveMonths: 2990,
}

// Tier is one purchasable subscription card.
type Tier struct {
	Period         Period
	Name           string
	Price          int
	OfficialPrice  int
	Popular        bool
	SavingsPercent int
}

// SavingsText is empty when the tier is not cheaper than the official price.
func (t Tier) SavingsText() string {
	if t.SavingsPercent <= 0 {
		return ""
	}
	return "Save " + FormatNumber(int64(t.SavingsPercent)) + "%"
}

// For returns the price of period.
func (p Prices) For(period Period) (int, bool) {
	switch period {
	case PeriodThreeMonths:
		return p.ThreeMonths, true
	case PeriodSixMonths:
		return p.SixMonths, true
	case PeriodTwelveMonths:
		return p.TwelveMonths, true
	default:
		return 0, false
	}
}

// withDefaults fills every non-positive price from fallback.
func (p Prices) withDefaults(fallback Prices) Prices {
	if p.ThreeMonths <= 0 {
		p.ThreeMonths = fallback.ThreeMonths
	}
	if p.SixMonths <= 0 {
		p.SixMonths = fallback.SixMonths
	}
	if p.TwelveMonths <= 0 {
		p.TwelveMonths = fallback.TwelveMonths
	}
	return p
}

func pricesFromConfig(cfg config.PricesConfig) Prices {
	return Prices{
		ThreeMonths:  cfg.ThreeMonths,
		SixMonths:    cfg.SixMonths,
		TwelveMonths: cfg.TwelveMonths,
	}.withDefaults(DefaultPrices)
}

// BuildTiers lays out the three subscription cards for prices.
func BuildTiers(prices Prices) []Tier {
	tiers := []Tier{
		{Period: PeriodThreeMonths, Name: "3 months", Price: prices.ThreeMonths},
		{Period: PeriodSixMonths, Name: "6 months", Price: prices.SixMonths},
		{Period: PeriodTwelveMonths, Name: "12 months", Price: prices.TwelveMonths, Popular: true},
	}

	for i := range tiers {
		tiers[i].OfficialPrice = officialPrices[tiers[i].Period]
		tiers[i].SavingsPercent = savingsPercent(tiers[i].Price, tiers[i].OfficialPrice)
	}
	return tiers
}

// savingsPercent rounds half up, so 87.5 -> 88 and -12.5 -> -12.
func savingsPercent(price, official int) int {
	if official <= 0 {
		return 0
	}
	ratio := float64(official-price) / float64(official) * 100
	return int(math.Floor(ratio + 0.5))
}
