package brokerage

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code from the closed set of settlement
// currencies the supported custodians report in.
type Currency string

const (
	USD Currency = "USD"
	GBP Currency = "GBP"
	EUR Currency = "EUR"
	JPY Currency = "JPY"
	CHF Currency = "CHF"
	AUD Currency = "AUD"
	NZD Currency = "NZD"
	CAD Currency = "CAD"
	HKD Currency = "HKD"
	SGD Currency = "SGD"
	SEK Currency = "SEK"
	NOK Currency = "NOK"
	DKK Currency = "DKK"
)

// Currencies lists every supported currency.
var Currencies = []Currency{USD, GBP, EUR, JPY, CHF, AUD, NZD, CAD, HKD, SGD, SEK, NOK, DKK}

var currencySet = func() map[Currency]bool {
	m := make(map[Currency]bool, len(Currencies))
	for _, c := range Currencies {
		m[c] = true
	}
	return m
}()

// ParseCurrency converts a broker-reported currency code into a Currency.
// The code must belong to the supported set and to the ISO 4217 registry.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(code)
	if !currencySet[c] {
		return "", Invalidf("unsupported currency code %q", code)
	}
	if money.GetCurrency(code) == nil {
		return "", Invalidf("currency code %q not in ISO 4217 registry", code)
	}
	return c, nil
}

func (c Currency) String() string { return string(c) }

// Cash is an exact-decimal amount tagged with its currency. Arithmetic never
// goes through binary floats.
type Cash struct {
	cur      Currency
	quantity decimal.Decimal
}

// NewCash returns a Cash amount in the given currency.
func NewCash(cur Currency, quantity decimal.Decimal) Cash {
	return Cash{cur: cur, quantity: quantity}
}

// Currency returns the cash's currency.
func (c Cash) Currency() Currency { return c.cur }

// Quantity returns the exact-decimal amount.
func (c Cash) Quantity() decimal.Decimal { return c.quantity }

func (c Cash) Equal(o Cash) bool    { return c.cur == o.cur && c.quantity.Equal(o.quantity) }
func (c Cash) IsZero() bool         { return c.quantity.IsZero() }
func (c Cash) IsPositive() bool     { return c.quantity.IsPositive() }
func (c Cash) IsNegative() bool     { return c.quantity.IsNegative() }
func (c Cash) Neg() Cash            { return Cash{cur: c.cur, quantity: c.quantity.Neg()} }
func (c Cash) Abs() Cash            { return Cash{cur: c.cur, quantity: c.quantity.Abs()} }
func (c Cash) LessThan(o Cash) bool { return c.quantity.LessThan(o.quantity) }

// binary operators.
func (c Cash) Add(o Cash) Cash {
	return Cash{cur: cur(c, o), quantity: c.quantity.Add(o.quantity)}
}
func (c Cash) Sub(o Cash) Cash {
	return Cash{cur: cur(c, o), quantity: c.quantity.Sub(o.quantity)}
}

// Mul scales the amount by an exact decimal.
func (c Cash) Mul(d decimal.Decimal) Cash {
	return Cash{cur: c.cur, quantity: c.quantity.Mul(d)}
}

// Div divides the amount by an exact decimal.
func (c Cash) Div(d decimal.Decimal) Cash {
	return Cash{cur: c.cur, quantity: c.quantity.Div(d)}
}

// makes the "" currency totally weak.
func cur(a, b Cash) Currency {
	if a.cur == "" {
		return b.cur
	}
	if b.cur == "" {
		return a.cur
	}
	if a.cur != b.cur {
		panic("currency mismatch " + string(a.cur) + "!=" + string(b.cur))
	}
	return a.cur
}

func (c Cash) String() string {
	return c.quantity.String() + " " + string(c.cur)
}

func (c Cash) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Currency Currency        `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
	}{c.cur, c.quantity})
}

var _ fmt.Stringer = Cash{}
