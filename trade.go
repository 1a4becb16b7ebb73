package brokerage

import (
	"encoding/json"
	"strings"

	"github.com/etnz/brokerage/date"
	"github.com/shopspring/decimal"
)

// TradeFlags is a bit-set of trade semantics. Several bits can co-occur: a
// dividend-reinvestment buy is simultaneously FlagOpen and FlagDrip.
type TradeFlags uint16

const (
	// FlagOpen marks a trade that opens or increases a position.
	FlagOpen TradeFlags = 1 << iota
	// FlagClose marks a trade that closes or reduces a position.
	FlagClose
	// FlagDrip marks a purchase funded by a dividend or distribution.
	FlagDrip
	// FlagExpired marks an option removed by expiration.
	FlagExpired
	// FlagAssigned marks an option removed by assignment.
	FlagAssigned
	// FlagExercised marks an option removed by exercise.
	FlagExercised

	// Remaining bits are reserved for future broker codes.
)

// Has reports whether every bit of f is set.
func (t TradeFlags) Has(f TradeFlags) bool { return t&f == f }

// Validate checks the flag combination rules: exactly one of FlagOpen or
// FlagClose, and at most one of FlagExpired, FlagAssigned, FlagExercised.
func (t TradeFlags) Validate() error {
	if t.Has(FlagOpen) == t.Has(FlagClose) {
		return Invalidf("trade flags %s: exactly one of Open or Close must be set", t)
	}
	events := 0
	for _, f := range []TradeFlags{FlagExpired, FlagAssigned, FlagExercised} {
		if t.Has(f) {
			events++
		}
	}
	if events > 1 {
		return Invalidf("trade flags %s: Expired, Assigned and Exercised are mutually exclusive", t)
	}
	return nil
}

var flagNames = []struct {
	flag TradeFlags
	name string
}{
	{FlagOpen, "Open"},
	{FlagClose, "Close"},
	{FlagDrip, "Drip"},
	{FlagExpired, "Expired"},
	{FlagAssigned, "Assigned"},
	{FlagExercised, "Exercised"},
}

func (t TradeFlags) String() string {
	var names []string
	for _, f := range flagNames {
		if t.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Position is an immutable holding: an instrument, a quantized quantity, and
// the cost basis paid for it.
type Position struct {
	instrument Instrument
	quantity   decimal.Decimal
	costBasis  Cash
}

// NewPosition returns a Position with the quantity put through
// QuantizeQuantity, so textually different but numerically equal inputs
// compare equal regardless of source broker.
func NewPosition(instrument Instrument, quantity decimal.Decimal, costBasis Cash) (Position, error) {
	if instrument == nil {
		return Position{}, Invalidf("position instrument cannot be nil")
	}
	return Position{
		instrument: instrument,
		quantity:   QuantizeQuantity(quantity),
		costBasis:  costBasis,
	}, nil
}

func (p Position) Instrument() Instrument    { return p.instrument }
func (p Position) Quantity() decimal.Decimal { return p.quantity }
func (p Position) CostBasis() Cash           { return p.costBasis }

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Instrument instrumentJSON  `json:"instrument"`
		Quantity   decimal.Decimal `json:"quantity"`
		CostBasis  Cash            `json:"costBasis"`
	}{encodeInstrument(p.instrument), p.quantity, p.costBasis})
}

// Trade is an immutable executed action: signed quantity (negative is a sell
// or short), signed cash flow from the account's perspective, unsigned
// per-unit price and fees, and semantic flags.
type Trade struct {
	date       date.Date
	instrument Instrument
	quantity   decimal.Decimal
	amount     Cash
	price      Cash
	fees       Cash
	flags      TradeFlags
}

// NewTrade returns a Trade after validating the flag combination.
func NewTrade(day date.Date, instrument Instrument, quantity decimal.Decimal, amount, price, fees Cash, flags TradeFlags) (Trade, error) {
	if instrument == nil {
		return Trade{}, Invalidf("trade instrument cannot be nil")
	}
	if err := flags.Validate(); err != nil {
		return Trade{}, err
	}
	return Trade{
		date:       day,
		instrument: instrument,
		quantity:   QuantizeQuantity(quantity),
		amount:     amount,
		price:      price,
		fees:       fees,
		flags:      flags,
	}, nil
}

func (t Trade) Date() date.Date           { return t.date }
func (t Trade) Instrument() Instrument    { return t.instrument }
func (t Trade) Quantity() decimal.Decimal { return t.quantity }
func (t Trade) Amount() Cash              { return t.amount }
func (t Trade) Price() Cash               { return t.price }
func (t Trade) Fees() Cash                { return t.fees }
func (t Trade) Flags() TradeFlags         { return t.flags }

func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date       date.Date       `json:"date"`
		Instrument instrumentJSON  `json:"instrument"`
		Quantity   decimal.Decimal `json:"quantity"`
		Amount     Cash            `json:"amount"`
		Price      Cash            `json:"price"`
		Fees       Cash            `json:"fees"`
		Flags      string          `json:"flags"`
	}{t.date, encodeInstrument(t.instrument), t.quantity, t.amount, t.price, t.fees, t.flags.String()})
}
