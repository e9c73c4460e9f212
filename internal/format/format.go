// Package format renders portfolio amounts for display.
package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptovault/internal/domain"
)

// Trend markers shown next to profit/loss
const (
	TrendUp   = "▲"
	TrendDown = "▼"
	TrendFlat = "•"
)

// USD formats an amount as US dollars, e.g. "$1,234.56" or "-$12.00".
func USD(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	m := toMoney(math.Abs(amount))
	if amount < 0 && !m.IsZero() {
		return "-" + m.Display()
	}
	return m.Display()
}

// SignedUSD is USD with an explicit "+" on positive amounts
func SignedUSD(amount float64) string {
	s := USD(amount)
	if amount > 0 && s != USD(0) {
		return "+" + s
	}
	return s
}

// Price formats a unit price. Prices under one dollar keep up to six
// decimals so small-cap coins don't all render as "$0.00".
func Price(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		price = 0
	}
	if price == 0 || price >= 1 {
		return USD(price)
	}
	s := decimal.NewFromFloat(price).StringFixed(6)
	// Keep at least cents
	for strings.HasSuffix(s, "0") && len(s) > len("0.00") {
		s = strings.TrimSuffix(s, "0")
	}
	return "$" + s
}

// Percent formats a percentage with two decimals, e.g. "50.00%"
func Percent(p float64) string {
	return decimalOf(p).StringFixed(2) + "%"
}

// SignedPercent formats a percentage with an explicit sign, e.g. "+50.00%"
func SignedPercent(p float64) string {
	s := Percent(p)
	if !strings.HasPrefix(s, "-") && decimalOf(p).Round(2).IsPositive() {
		return "+" + s
	}
	return s
}

// Quantity renders a coin quantity without trailing zeros
func Quantity(q float64) string {
	return decimalOf(q).String()
}

// Trend returns the marker for a profit/loss amount
func Trend(profitLoss float64) string {
	switch {
	case profitLoss > 0:
		return TrendUp
	case profitLoss < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// PositionDisplay is the rendered form of an enriched position
type PositionDisplay struct {
	Quantity     string `json:"quantity"`
	BuyPrice     string `json:"buyPrice"`
	CurrentPrice string `json:"currentPrice"`
	CurrentValue string `json:"currentValue"`
	ProfitLoss   string `json:"profitLoss"`
	Percent      string `json:"profitLossPercent"`
	Trend        string `json:"trend"`
}

// Position renders every valuation field of p
func Position(p domain.EnrichedPosition) PositionDisplay {
	return PositionDisplay{
		Quantity:     Quantity(p.Quantity),
		BuyPrice:     Price(p.BuyPrice),
		CurrentPrice: Price(p.CurrentPrice),
		CurrentValue: USD(p.CurrentValue),
		ProfitLoss:   SignedUSD(p.ProfitLoss),
		Percent:      fmt.Sprintf("%s %s", Trend(p.ProfitLoss), Percent(p.ProfitLossPercent)),
		Trend:        Trend(p.ProfitLoss),
	}
}

// toMoney converts a non-negative float to minor units, rounding half away from zero.
func toMoney(amount float64) *money.Money {
	cur := money.GetCurrency(money.USD)
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(factor).Round(0)
	return money.New(minor.IntPart(), money.USD)
}

func decimalOf(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
