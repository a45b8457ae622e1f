package report

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money formats amount in the given ISO currency ("$1,234.56"). Unknown
// codes fall back to USD formatting.
func Money(amount float64, currency string) string {
	if currency == "" || money.GetCurrency(currency) == nil {
		currency = money.USD
	}
	cur := money.GetCurrency(currency)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// SignedMoney is Money with an explicit "+" on gains and "-" for zero.
func SignedMoney(amount float64, currency string) string {
	s := Money(amount, currency)
	switch {
	case s == Money(0, currency):
		return "-"
	case amount > 0:
		return "+" + s
	}
	return s
}

// Percent formats p (already in percent) with a sign.
func Percent(p float64) string {
	return fmt.Sprintf("%+.2f%%", p)
}
