package shop

import (
	"testing"

	"premiumshop/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestBuildTiersDefaultPrices(t *testing.T) {
	t.Parallel()

	tiers := BuildTiers(DefaultPrices)
	require.Len(t, tiers, 3)

	require.Equal(t, PeriodThreeMonths, tiers[0].Period)
	require.Equal(t, 390, tiers[0].Price)
	require.Equal(t, 1290, tiers[0].OfficialPrice)
	require.Equal(t, 70, tiers[0].SavingsPercent)
	require.False(t, tiers[0].Popular)

	require.Equal(t, 61, tiers[1].SavingsPercent)

	require.Equal(t, PeriodTwelveMonths, tiers[2].Period)
	require.True(t, tiers[2].Popular)
	require.Equal(t, 67, tiers[2].SavingsPercent)
	require.Equal(t, "Save 67%", tiers[2].SavingsText())
}

func TestSavingsPercentRoundsHalfUp(t *testing.T) {
	t.Parallel()

	require.Equal(t, 50, savingsPercent(500, 1000))
	require.Equal(t, 88, savingsPercent(1, 8))
	require.Equal(t, -12, savingsPercent(9, 8))
	require.Equal(t, -10, savingsPercent(1100, 1000))
	require.Equal(t, 0, savingsPercent(100, 0))
}

func TestSavingsTextEmptyWithoutDiscount(t *testing.T) {
	t.Parallel()

	tiers := BuildTiers(Prices{ThreeMonths: 1500, SixMonths: 1790, TwelveMonths: 990})
	require.Empty(t, tiers[0].SavingsText())
	require.Empty(t, tiers[1].SavingsText())
	require.NotEmpty(t, tiers[2].SavingsText())
}

func TestPricesFor(t *testing.T) {
	t.Parallel()

	price, ok := DefaultPrices.For(PeriodSixMonths)
	require.True(t, ok)
	require.Equal(t, 690, price)

	_, ok = DefaultPrices.For(Period("1month"))
	require.False(t, ok)
}

func TestPricesFromConfigFillsGaps(t *testing.T) {
	t.Parallel()

	prices := pricesFromConfig(config.PricesConfig{SixMonths: 700, TwelveMonths: -1})
	require.Equal(t, Prices{ThreeMonths: 390, SixMonths: 700, TwelveMonths: 990}, prices)
}
