// Package ibkr parses flex-query exports (trade confirmations and open
// position snapshots) into the brokerage domain model.
//
// Every field of a flex record arrives as unparsed text. Conversion
// dispatches on the asset-category tag to pick the instrument variant,
// parses every numeric field as an exact decimal, and derives trade flags
// from the semicolon-joined code list. ContractFor is the inverse: it
// reconstructs the broker-native contract fields from a domain instrument,
// which is used both to validate round-trip fidelity and to look up live
// market data for a previously parsed instrument.
package ibkr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/date"
	"github.com/shopspring/decimal"
)

// TradeConfirm mirrors a single trade-confirmation line item, all fields
// still as unparsed text.
type TradeConfirm struct {
	Symbol             string `xml:"symbol,attr"`
	UnderlyingSymbol   string `xml:"underlyingSymbol,attr"`
	Currency           string `xml:"currency,attr"`
	CommissionCurrency string `xml:"commissionCurrency,attr"`
	AssetCategory      string `xml:"assetCategory,attr"`
	TradeDate          string `xml:"tradeDate,attr"`
	Expiry             string `xml:"expiry,attr"`
	Quantity           string `xml:"quantity,attr"`
	Multiplier         string `xml:"multiplier,attr"`
	Proceeds           string `xml:"proceeds,attr"`
	Tax                string `xml:"tax,attr"`
	Commission         string `xml:"commission,attr"`
	Strike             string `xml:"strike,attr"`
	PutCall            string `xml:"putCall,attr"`
	Code               string `xml:"code,attr"`
}

// Contract holds broker-native contract attributes, as produced by
// ContractFor and as embedded in position snapshots.
type Contract struct {
	Symbol                       string
	SecType                      string
	LastTradeDateOrContractMonth string
	Strike                       string
	Right                        string
	Multiplier                   string
	Currency                     string
	LocalSymbol                  string
}

// OpenPosition mirrors a native position record: a held quantity and average
// cost against a contract.
type OpenPosition struct {
	Account  string
	AvgCost  string
	Position string
	Contract Contract
}

// openPositionElem is the flex XML shape of a position snapshot; contract
// attributes are flattened onto the element.
type openPositionElem struct {
	Account          string `xml:"accountId,attr"`
	AvgCost          string `xml:"avgCost,attr"`
	Position         string `xml:"position,attr"`
	Symbol           string `xml:"symbol,attr"`
	UnderlyingSymbol string `xml:"underlyingSymbol,attr"`
	AssetCategory    string `xml:"assetCategory,attr"`
	Currency         string `xml:"currency,attr"`
	Expiry           string `xml:"expiry,attr"`
	Strike           string `xml:"strike,attr"`
	PutCall          string `xml:"putCall,attr"`
	Multiplier       string `xml:"multiplier,attr"`
}

func (e openPositionElem) record() OpenPosition {
	symbol, local := e.Symbol, e.Symbol
	if e.UnderlyingSymbol != "" {
		symbol = e.UnderlyingSymbol
	}
	return OpenPosition{
		Account:  e.Account,
		AvgCost:  e.AvgCost,
		Position: e.Position,
		Contract: Contract{
			Symbol:                       symbol,
			SecType:                      e.AssetCategory,
			LastTradeDateOrContractMonth: e.Expiry,
			Strike:                       e.Strike,
			Right:                        e.PutCall,
			Multiplier:                   e.Multiplier,
			Currency:                     e.Currency,
			LocalSymbol:                  local,
		},
	}
}

// ParseTrades reads a flex document and returns one Trade per TradeConfirm
// element, in document order. The wrapper depth of the elements does not
// matter.
func ParseTrades(path string) ([]brokerage.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}
	defer f.Close()

	var trades []brokerage.Trade
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &brokerage.FormatError{Source: path, Err: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "TradeConfirm" {
			continue
		}
		var tc TradeConfirm
		if err := dec.DecodeElement(&tc, &se); err != nil {
			return nil, &brokerage.FormatError{Source: path, Err: err}
		}
		trade, err := ParseTradeConfirm(tc)
		if err != nil {
			return nil, fmt.Errorf("trade confirm %q: %w", tc.Symbol, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// ParsePositions reads a flex document and returns one Position per
// OpenPosition element, in document order.
func ParsePositions(path string) ([]brokerage.Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}
	defer f.Close()

	var positions []brokerage.Position
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &brokerage.FormatError{Source: path, Err: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "OpenPosition" {
			continue
		}
		var elem openPositionElem
		if err := dec.DecodeElement(&elem, &se); err != nil {
			return nil, &brokerage.FormatError{Source: path, Err: err}
		}
		position, err := ExtractPosition(elem.record())
		if err != nil {
			return nil, fmt.Errorf("open position %q: %w", elem.Symbol, err)
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// supportedCategories maps the asset-category tag to the instrument builder
// for that shape.
var supportedCategories = map[string]func(TradeConfirm, brokerage.Currency) (brokerage.Instrument, error){
	"STK":  confirmStock,
	"BOND": confirmBond,
	"OPT":  confirmOption,
	"FUT":  confirmFuture,
	"CASH": confirmForex,
	"FOP":  confirmFutureOption,
}

// unsupportedCategories are tags the broker emits but this model does not
// cover. They are rejected explicitly rather than mis-parsed.
var unsupportedCategories = map[string]bool{
	"IND": true, "CFD": true, "FUND": true, "CMDTY": true,
	"IOPT": true, "BAG": true, "NEWS": true, "WAR": true,
}

// ParseTradeConfirm converts a single trade confirmation into a Trade.
// Any field that fails to parse, or that is missing for the selected
// instrument variant, fails with a ValidationError rather than defaulting.
func ParseTradeConfirm(tc TradeConfirm) (brokerage.Trade, error) {
	cur, err := brokerage.ParseCurrency(tc.Currency)
	if err != nil {
		return brokerage.Trade{}, err
	}
	commissionCur, err := brokerage.ParseCurrency(tc.CommissionCurrency)
	if err != nil {
		return brokerage.Trade{}, err
	}

	build, ok := supportedCategories[tc.AssetCategory]
	if !ok {
		if unsupportedCategories[tc.AssetCategory] {
			return brokerage.Trade{}, brokerage.Invalidf("unsupported asset category %q", tc.AssetCategory)
		}
		return brokerage.Trade{}, brokerage.Invalidf("unknown asset category %q", tc.AssetCategory)
	}
	instrument, err := build(tc, cur)
	if err != nil {
		return brokerage.Trade{}, err
	}

	quantity, err := brokerage.ParseDecimal("quantity", tc.Quantity)
	if err != nil {
		return brokerage.Trade{}, err
	}
	if quantity.IsZero() {
		return brokerage.Trade{}, brokerage.Invalidf("trade quantity must be non-zero")
	}
	proceeds, err := brokerage.ParseDecimal("proceeds", tc.Proceeds)
	if err != nil {
		return brokerage.Trade{}, err
	}
	tax, err := brokerage.ParseDecimal("tax", tc.Tax)
	if err != nil {
		return brokerage.Trade{}, err
	}
	commission, err := brokerage.ParseDecimal("commission", tc.Commission)
	if err != nil {
		return brokerage.Trade{}, err
	}
	tradeDate, err := date.ParseCompact(tc.TradeDate)
	if err != nil {
		return brokerage.Trade{}, brokerage.Invalidf("field tradeDate: %v", err)
	}

	amount := brokerage.NewCash(cur, proceeds.Sub(tax))
	fees := brokerage.NewCash(commissionCur, commission.Add(tax).Abs())

	price, err := perUnitPrice(tc, instrument, cur, proceeds, quantity)
	if err != nil {
		return brokerage.Trade{}, err
	}

	flags := flagsFromCodes(tc.Code, quantity)

	return brokerage.NewTrade(tradeDate, instrument, quantity, amount, price, fees, flags)
}

// perUnitPrice derives the unsigned per-unit price for the variants that
// carry one. Forex conversions and bonds do not.
func perUnitPrice(tc TradeConfirm, instrument brokerage.Instrument, cur brokerage.Currency, proceeds, quantity decimal.Decimal) (brokerage.Cash, error) {
	multiplier := decimal.NewFromInt(1)
	switch instrument.(type) {
	case brokerage.Stock:
	case brokerage.Option, brokerage.Future, brokerage.FutureOption:
		m, err := brokerage.ParseDecimal("multiplier", tc.Multiplier)
		if err != nil {
			return brokerage.Cash{}, err
		}
		if !m.IsPositive() {
			return brokerage.Cash{}, brokerage.Invalidf("field multiplier: must be positive, got %s", m)
		}
		multiplier = m
	default:
		return brokerage.NewCash(cur, decimal.Zero), nil
	}
	price := proceeds.Abs().Div(quantity.Abs()).Div(multiplier)
	return brokerage.NewCash(cur, price), nil
}

func confirmStock(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	return brokerage.NewStock(tc.Symbol, cur)
}

// confirmBond builds an unvalidated Bond: the feed withholds the real CUSIP
// and reports a descriptive label instead.
func confirmBond(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	return brokerage.NewUnvalidatedBond(tc.Symbol, cur)
}

func confirmOption(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	optionType, err := parseRight(tc.PutCall)
	if err != nil {
		return nil, err
	}
	expiration, err := date.ParseCompact(tc.Expiry)
	if err != nil {
		return nil, brokerage.Invalidf("field expiry: %v", err)
	}
	strike, err := brokerage.ParseDecimal("strike", tc.Strike)
	if err != nil {
		return nil, err
	}
	return brokerage.NewOption(tc.UnderlyingSymbol, cur, optionType, expiration, strike)
}

func confirmFuture(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	multiplier, err := brokerage.ParseDecimal("multiplier", tc.Multiplier)
	if err != nil {
		return nil, err
	}
	expiration, err := date.ParseCompact(tc.Expiry)
	if err != nil {
		return nil, brokerage.Invalidf("field expiry: %v", err)
	}
	return brokerage.NewFuture(tc.Symbol, cur, multiplier, expiration)
}

func confirmForex(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	base, quote, err := parseForexPair(tc.Symbol, cur)
	if err != nil {
		return nil, err
	}
	return brokerage.NewForex(base, quote)
}

func confirmFutureOption(tc TradeConfirm, cur brokerage.Currency) (brokerage.Instrument, error) {
	optionType, err := parseRight(tc.PutCall)
	if err != nil {
		return nil, err
	}
	expiration, err := date.ParseCompact(tc.Expiry)
	if err != nil {
		return nil, brokerage.Invalidf("field expiry: %v", err)
	}
	strike, err := brokerage.ParseDecimal("strike", tc.Strike)
	if err != nil {
		return nil, err
	}
	multiplier, err := brokerage.ParseDecimal("multiplier", tc.Multiplier)
	if err != nil {
		return nil, err
	}
	return brokerage.NewFutureOption(tc.Symbol, cur, tc.UnderlyingSymbol, optionType, expiration, strike, multiplier)
}

func parseRight(putCall string) (brokerage.OptionType, error) {
	switch putCall {
	case "C":
		return brokerage.Call, nil
	case "P":
		return brokerage.Put, nil
	default:
		return "", brokerage.Invalidf("field putCall: want P or C, got %q", putCall)
	}
}

// parseForexPair decodes the currency pair encoded in a cash contract
// symbol: "GBP.USD", "GBPUSD", or just the base currency "GBP" with the
// quote taken from the record currency.
func parseForexPair(symbol string, recordCur brokerage.Currency) (base, quote brokerage.Currency, err error) {
	var baseText, quoteText string
	switch {
	case strings.Count(symbol, ".") == 1:
		parts := strings.SplitN(symbol, ".", 2)
		baseText, quoteText = parts[0], parts[1]
	case len(symbol) == 6:
		baseText, quoteText = symbol[:3], symbol[3:]
	case len(symbol) == 3:
		baseText, quoteText = symbol, string(recordCur)
	default:
		return "", "", brokerage.Invalidf("cannot decode currency pair from symbol %q", symbol)
	}
	if base, err = brokerage.ParseCurrency(baseText); err != nil {
		return "", "", err
	}
	if quote, err = brokerage.ParseCurrency(quoteText); err != nil {
		return "", "", err
	}
	return base, quote, nil
}

// flagsByCode maps the documented code letters to flag bits. Brokers append
// informational codes outside this set; those are ignored rather than
// failing the whole trade.
var flagsByCode = map[string]brokerage.TradeFlags{
	"O":  brokerage.FlagOpen,
	"C":  brokerage.FlagClose,
	"A":  brokerage.FlagAssigned,
	"Ep": brokerage.FlagExpired,
	"Ex": brokerage.FlagExercised,
	"R":  brokerage.FlagDrip,
}

// flagsFromCodes derives trade flags from the semicolon-joined code list.
// When the list yields no directional flag, a lifecycle event takes its
// direction from the quantity sign; otherwise the trade defaults to Open.
func flagsFromCodes(code string, quantity decimal.Decimal) brokerage.TradeFlags {
	var flags brokerage.TradeFlags
	for _, token := range strings.Split(code, ";") {
		flags |= flagsByCode[token]
	}
	if !flags.Has(brokerage.FlagOpen) && !flags.Has(brokerage.FlagClose) {
		direction := brokerage.FlagOpen
		if flags != 0 && quantity.IsNegative() {
			direction = brokerage.FlagClose
		}
		flags |= direction
	}
	return flags
}

// ExtractPosition converts a native position record into a Position,
// quantizing the held quantity and carrying the average cost into the cost
// basis.
func ExtractPosition(p OpenPosition) (brokerage.Position, error) {
	instrument, err := instrumentFromContract(p.Contract)
	if err != nil {
		return brokerage.Position{}, err
	}
	quantity, err := brokerage.ParseDecimal("position", p.Position)
	if err != nil {
		return brokerage.Position{}, err
	}
	avgCost, err := brokerage.ParseDecimal("avgCost", p.AvgCost)
	if err != nil {
		return brokerage.Position{}, err
	}
	quantity = brokerage.QuantizeQuantity(quantity)
	costBasis := brokerage.NewCash(instrument.Currency(), avgCost.Mul(quantity))
	return brokerage.NewPosition(instrument, quantity, costBasis)
}

func instrumentFromContract(c Contract) (brokerage.Instrument, error) {
	cur, err := brokerage.ParseCurrency(c.Currency)
	if err != nil {
		return nil, err
	}
	localSymbol := c.LocalSymbol
	if localSymbol == "" {
		localSymbol = c.Symbol
	}

	switch c.SecType {
	case "STK":
		return brokerage.NewStock(c.Symbol, cur)
	case "BOND":
		return brokerage.NewUnvalidatedBond(c.Symbol, cur)
	case "OPT":
		right, err := parseRight(c.Right)
		if err != nil {
			return nil, err
		}
		expiration, err := date.ParseCompact(c.LastTradeDateOrContractMonth)
		if err != nil {
			return nil, brokerage.Invalidf("contract expiry: %v", err)
		}
		strike, err := brokerage.ParseDecimal("strike", c.Strike)
		if err != nil {
			return nil, err
		}
		return brokerage.NewOption(c.Symbol, cur, right, expiration, strike)
	case "FUT":
		multiplier, err := brokerage.ParseDecimal("multiplier", c.Multiplier)
		if err != nil {
			return nil, err
		}
		expiration, err := date.ParseCompact(c.LastTradeDateOrContractMonth)
		if err != nil {
			return nil, brokerage.Invalidf("contract expiry: %v", err)
		}
		// The per-contract symbol (e.g. ESH9) lives in localSymbol; the plain
		// symbol is the product root.
		return brokerage.NewFuture(localSymbol, cur, multiplier, expiration)
	case "CASH":
		base, quote, err := parseForexPair(c.Symbol, cur)
		if err != nil {
			return nil, err
		}
		return brokerage.NewForex(base, quote)
	case "FOP":
		right, err := parseRight(c.Right)
		if err != nil {
			return nil, err
		}
		expiration, err := date.ParseCompact(c.LastTradeDateOrContractMonth)
		if err != nil {
			return nil, brokerage.Invalidf("contract expiry: %v", err)
		}
		strike, err := brokerage.ParseDecimal("strike", c.Strike)
		if err != nil {
			return nil, err
		}
		multiplier, err := brokerage.ParseDecimal("multiplier", c.Multiplier)
		if err != nil {
			return nil, err
		}
		return brokerage.NewFutureOption(localSymbol, cur, c.Symbol, right, expiration, strike, multiplier)
	default:
		if unsupportedCategories[c.SecType] {
			return nil, brokerage.Invalidf("unsupported asset category %q", c.SecType)
		}
		return nil, brokerage.Invalidf("unknown asset category %q", c.SecType)
	}
}

// equityOptionMultiplier is the conventional contract size of an exchange
// listed equity option.
const equityOptionMultiplier = "100"

// ContractFor reconstructs the broker-native contract attributes for a
// domain instrument. For every instrument producible by this package,
// re-deriving its contract reproduces the category, currency, strike, right,
// multiplier and expiry a correctly-formed broker record would carry.
func ContractFor(instrument brokerage.Instrument) (Contract, error) {
	switch i := instrument.(type) {
	case brokerage.Stock:
		return Contract{
			Symbol:      i.Symbol(),
			SecType:     "STK",
			Currency:    string(i.Currency()),
			LocalSymbol: i.Symbol(),
		}, nil
	case brokerage.Bond:
		return Contract{
			Symbol:      i.Symbol(),
			SecType:     "BOND",
			Currency:    string(i.Currency()),
			LocalSymbol: i.Symbol(),
		}, nil
	case brokerage.Option:
		right := "C"
		if i.Type() == brokerage.Put {
			right = "P"
		}
		return Contract{
			Symbol:                       i.Underlying(),
			SecType:                      "OPT",
			LastTradeDateOrContractMonth: i.Expiration().Compact(),
			Strike:                       i.Strike().String(),
			Right:                        right,
			Multiplier:                   equityOptionMultiplier,
			Currency:                     string(i.Currency()),
			LocalSymbol:                  i.Symbol(),
		}, nil
	case brokerage.Forex:
		return Contract{
			Symbol:      string(i.BaseCurrency()),
			SecType:     "CASH",
			Currency:    string(i.QuoteCurrency()),
			LocalSymbol: string(i.BaseCurrency()) + "." + string(i.QuoteCurrency()),
		}, nil
	case brokerage.Future:
		return Contract{
			Symbol:                       i.Symbol(),
			SecType:                      "FUT",
			LastTradeDateOrContractMonth: i.Expiration().Compact(),
			Multiplier:                   i.Multiplier().String(),
			Currency:                     string(i.Currency()),
			LocalSymbol:                  i.Symbol(),
		}, nil
	case brokerage.FutureOption:
		right := "C"
		if i.Type() == brokerage.Put {
			right = "P"
		}
		return Contract{
			Symbol:                       i.Underlying(),
			SecType:                      "FOP",
			LastTradeDateOrContractMonth: i.Expiration().Compact(),
			Strike:                       i.Strike().String(),
			Right:                        right,
			Multiplier:                   i.Multiplier().String(),
			Currency:                     string(i.Currency()),
			LocalSymbol:                  i.Symbol(),
		}, nil
	default:
		return Contract{}, brokerage.Invalidf("no native contract for instrument %v", instrument)
	}
}
