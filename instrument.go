package brokerage

import (
	"fmt"
	"regexp"

	"github.com/etnz/brokerage/date"
	"github.com/shopspring/decimal"
)

// OptionType is the right carried by an option contract.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Instrument is one of the closed set of tradeable instrument shapes:
// Stock, Bond, Option, Forex, Future, or FutureOption.
//
// Identity is value based: two instruments with identical fields are Equal.
// Every invariant is enforced at construction; consumers never re-check.
type Instrument interface {
	// Symbol returns the instrument's canonical symbol.
	Symbol() string
	// Currency returns the currency the instrument is denominated in.
	Currency() Currency
	// Equal reports whether o is the same instrument.
	Equal(o Instrument) bool

	sealed()
}

// cusipRegex checks for the basic structure: 9 alphanumeric characters
// (special placeholder characters '*', '@' and '#' included).
var cusipRegex = regexp.MustCompile(`^[0-9A-Z*@#]{8}[0-9]$`)

// ValidateCUSIP checks that a string is a validly formatted CUSIP with a
// correct check digit. It returns nil if valid, or a descriptive error if
// invalid.
func ValidateCUSIP(id string) error {
	// 1. Length validation
	if len(id) != 9 {
		return Invalidf("invalid CUSIP %q: must be 9 characters, got %d", id, len(id))
	}

	// 2. Format validation
	if !cusipRegex.MatchString(id) {
		return Invalidf("invalid CUSIP %q: must be 8 alphanumeric characters and a check digit", id)
	}

	// 3. Apply the modulus 10 double-add-double check digit algorithm over
	// the weighted alphanumeric values of the first 8 characters.
	sum := 0
	for i := 0; i < 8; i++ {
		var v int
		switch c := id[i]; {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == '*':
			v = 36
		case c == '@':
			v = 37
		case c == '#':
			v = 38
		}
		if i%2 == 1 {
			v *= 2
		}
		sum += v/10 + v%10
	}

	// 4. Validate the check digit
	expected := (10 - sum%10) % 10
	if actual := int(id[8] - '0'); actual != expected {
		return Invalidf("invalid CUSIP %q: check digit %d, want %d", id, actual, expected)
	}
	return nil
}

// Stock is an exchange-listed equity.
type Stock struct {
	symbol string
	cur    Currency
}

// NewStock returns a Stock for the given ticker symbol.
func NewStock(symbol string, cur Currency) (Stock, error) {
	if symbol == "" {
		return Stock{}, Invalidf("stock symbol cannot be empty")
	}
	return Stock{symbol: symbol, cur: cur}, nil
}

func (s Stock) Symbol() string     { return s.symbol }
func (s Stock) Currency() Currency { return s.cur }
func (s Stock) sealed()            {}

func (s Stock) Equal(o Instrument) bool {
	t, ok := o.(Stock)
	return ok && s == t
}

func (s Stock) String() string { return fmt.Sprintf("Stock %s (%s)", s.symbol, s.cur) }

// Bond is a fixed-income security identified by a CUSIP.
//
// Some feeds withhold the real CUSIP and report a descriptive label instead;
// NewUnvalidatedBond accepts any non-empty identifier for those. That is a
// caller-declared trust decision, not a parser default.
type Bond struct {
	identifier string
	cur        Currency
	validated  bool
}

// NewBond returns a Bond whose identifier passes CUSIP check-digit validation.
func NewBond(identifier string, cur Currency) (Bond, error) {
	if err := ValidateCUSIP(identifier); err != nil {
		return Bond{}, err
	}
	return Bond{identifier: identifier, cur: cur, validated: true}, nil
}

// NewUnvalidatedBond returns a Bond accepting any non-empty identifier.
func NewUnvalidatedBond(identifier string, cur Currency) (Bond, error) {
	if identifier == "" {
		return Bond{}, Invalidf("bond identifier cannot be empty")
	}
	return Bond{identifier: identifier, cur: cur}, nil
}

func (b Bond) Symbol() string     { return b.identifier }
func (b Bond) Currency() Currency { return b.cur }

// Validated reports whether the identifier passed CUSIP validation.
func (b Bond) Validated() bool { return b.validated }
func (b Bond) sealed()         {}

func (b Bond) Equal(o Instrument) bool {
	t, ok := o.(Bond)
	return ok && b == t
}

func (b Bond) String() string { return fmt.Sprintf("Bond %s (%s)", b.identifier, b.cur) }

// Option is an exchange-listed option on an equity underlying.
type Option struct {
	underlying string
	cur        Currency
	optionType OptionType
	expiration date.Date
	strike     decimal.Decimal
}

// NewOption returns an Option after validating underlying, right, and strike.
func NewOption(underlying string, cur Currency, optionType OptionType, expiration date.Date, strike decimal.Decimal) (Option, error) {
	if underlying == "" {
		return Option{}, Invalidf("option underlying cannot be empty")
	}
	if optionType != Call && optionType != Put {
		return Option{}, Invalidf("option type must be CALL or PUT, got %q", optionType)
	}
	if !strike.IsPositive() {
		return Option{}, Invalidf("option strike must be positive, got %s", strike)
	}
	return Option{
		underlying: underlying,
		cur:        cur,
		optionType: optionType,
		expiration: expiration,
		strike:     strike,
	}, nil
}

// Symbol returns the OCC-format option symbol: the underlying padded to six
// characters, the expiration as YYMMDD, C or P, and the strike in thousandths
// padded to eight digits.
func (o Option) Symbol() string {
	right := "C"
	if o.optionType == Put {
		right = "P"
	}
	strike := o.strike.Mul(decimal.NewFromInt(1000)).IntPart()
	exp := o.expiration
	return fmt.Sprintf("%-6s%02d%02d%02d%s%08d",
		o.underlying, exp.Year()%100, int(exp.Month()), exp.Day(), right, strike)
}

func (o Option) Currency() Currency      { return o.cur }
func (o Option) Underlying() string      { return o.underlying }
func (o Option) Type() OptionType        { return o.optionType }
func (o Option) Expiration() date.Date   { return o.expiration }
func (o Option) Strike() decimal.Decimal { return o.strike }
func (o Option) sealed()                 {}

func (o Option) Equal(i Instrument) bool {
	t, ok := i.(Option)
	return ok &&
		o.underlying == t.underlying &&
		o.cur == t.cur &&
		o.optionType == t.optionType &&
		o.expiration == t.expiration &&
		o.strike.Equal(t.strike)
}

func (o Option) String() string {
	return fmt.Sprintf("%s %s %s %s (%s)", o.optionType, o.underlying, o.expiration, o.strike, o.cur)
}

// Forex is a currency pair, priced as one unit of the base currency in terms
// of the quote currency.
type Forex struct {
	base  Currency
	quote Currency
}

// NewForex returns a Forex pair. The two legs must differ.
func NewForex(base, quote Currency) (Forex, error) {
	if base == quote {
		return Forex{}, Invalidf("forex legs must differ, got %s twice", base)
	}
	return Forex{base: base, quote: quote}, nil
}

// Symbol returns the conventional six-letter pair, base first.
func (f Forex) Symbol() string { return string(f.base) + string(f.quote) }

// Currency returns the quote currency, the one amounts are stated in.
func (f Forex) Currency() Currency      { return f.quote }
func (f Forex) BaseCurrency() Currency  { return f.base }
func (f Forex) QuoteCurrency() Currency { return f.quote }
func (f Forex) sealed()                 {}

func (f Forex) Equal(o Instrument) bool {
	t, ok := o.(Forex)
	return ok && f == t
}

func (f Forex) String() string { return "Forex " + f.Symbol() }

// Future is an exchange-listed futures contract.
type Future struct {
	symbol     string
	cur        Currency
	multiplier decimal.Decimal
	expiration date.Date
}

// NewFuture returns a Future after validating symbol and multiplier.
func NewFuture(symbol string, cur Currency, multiplier decimal.Decimal, expiration date.Date) (Future, error) {
	if symbol == "" {
		return Future{}, Invalidf("future symbol cannot be empty")
	}
	if !multiplier.IsPositive() {
		return Future{}, Invalidf("future multiplier must be positive, got %s", multiplier)
	}
	return Future{symbol: symbol, cur: cur, multiplier: multiplier, expiration: expiration}, nil
}

func (f Future) Symbol() string              { return f.symbol }
func (f Future) Currency() Currency          { return f.cur }
func (f Future) Multiplier() decimal.Decimal { return f.multiplier }
func (f Future) Expiration() date.Date       { return f.expiration }
func (f Future) sealed()                     {}

func (f Future) Equal(o Instrument) bool {
	t, ok := o.(Future)
	return ok &&
		f.symbol == t.symbol &&
		f.cur == t.cur &&
		f.multiplier.Equal(t.multiplier) &&
		f.expiration == t.expiration
}

func (f Future) String() string { return fmt.Sprintf("Future %s (%s)", f.symbol, f.cur) }

// FutureOption is an option on a futures contract.
type FutureOption struct {
	symbol     string
	cur        Currency
	underlying string
	optionType OptionType
	expiration date.Date
	strike     decimal.Decimal
	multiplier decimal.Decimal
}

// NewFutureOption returns a FutureOption after validating the option fields
// and the multiplier.
func NewFutureOption(symbol string, cur Currency, underlying string, optionType OptionType, expiration date.Date, strike, multiplier decimal.Decimal) (FutureOption, error) {
	if symbol == "" {
		return FutureOption{}, Invalidf("future option symbol cannot be empty")
	}
	if underlying == "" {
		return FutureOption{}, Invalidf("future option underlying cannot be empty")
	}
	if optionType != Call && optionType != Put {
		return FutureOption{}, Invalidf("option type must be CALL or PUT, got %q", optionType)
	}
	if !strike.IsPositive() {
		return FutureOption{}, Invalidf("future option strike must be positive, got %s", strike)
	}
	if !multiplier.IsPositive() {
		return FutureOption{}, Invalidf("future option multiplier must be positive, got %s", multiplier)
	}
	return FutureOption{
		symbol:     symbol,
		cur:        cur,
		underlying: underlying,
		optionType: optionType,
		expiration: expiration,
		strike:     strike,
		multiplier: multiplier,
	}, nil
}

func (f FutureOption) Symbol() string              { return f.symbol }
func (f FutureOption) Currency() Currency          { return f.cur }
func (f FutureOption) Underlying() string          { return f.underlying }
func (f FutureOption) Type() OptionType            { return f.optionType }
func (f FutureOption) Expiration() date.Date       { return f.expiration }
func (f FutureOption) Strike() decimal.Decimal     { return f.strike }
func (f FutureOption) Multiplier() decimal.Decimal { return f.multiplier }
func (f FutureOption) sealed()                     {}

func (f FutureOption) Equal(o Instrument) bool {
	t, ok := o.(FutureOption)
	return ok &&
		f.symbol == t.symbol &&
		f.cur == t.cur &&
		f.underlying == t.underlying &&
		f.optionType == t.optionType &&
		f.expiration == t.expiration &&
		f.strike.Equal(t.strike) &&
		f.multiplier.Equal(t.multiplier)
}

func (f FutureOption) String() string {
	return fmt.Sprintf("FutureOption %s on %s (%s)", f.symbol, f.underlying, f.cur)
}

// instrumentJSON is the wire shape shared by every variant in JSONL output.
type instrumentJSON struct {
	Type       string `json:"type"`
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	Underlying string `json:"underlying,omitempty"`
	OptionType string `json:"optionType,omitempty"`
	Expiration string `json:"expiration,omitempty"`
	Strike     string `json:"strike,omitempty"`
	Multiplier string `json:"multiplier,omitempty"`
}

func encodeInstrument(i Instrument) instrumentJSON {
	j := instrumentJSON{Symbol: i.Symbol(), Currency: string(i.Currency())}
	switch v := i.(type) {
	case Stock:
		j.Type = "stock"
	case Bond:
		j.Type = "bond"
	case Option:
		j.Type = "option"
		j.Underlying = v.underlying
		j.OptionType = string(v.optionType)
		j.Expiration = v.expiration.String()
		j.Strike = v.strike.String()
	case Forex:
		j.Type = "forex"
	case Future:
		j.Type = "future"
		j.Expiration = v.expiration.String()
		j.Multiplier = v.multiplier.String()
	case FutureOption:
		j.Type = "futureOption"
		j.Underlying = v.underlying
		j.OptionType = string(v.optionType)
		j.Expiration = v.expiration.String()
		j.Strike = v.strike.String()
		j.Multiplier = v.multiplier.String()
	}
	return j
}
