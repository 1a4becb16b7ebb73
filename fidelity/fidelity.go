// Package fidelity parses the delimited ledger exports (positions and
// transaction history) of a spreadsheet-style custodian into the brokerage
// domain model.
//
// The ledger has no explicit type column: the instrument shape is recovered
// by pattern-matching the symbol/description text, and trade semantics by
// matching the action phrase against a fixed table of known phrases. An
// unrecognized action phrase is a hard failure, because silently losing a
// transaction from a financial ledger is worse than stopping.
package fidelity

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/date"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func init() {
	// A header row missing a required column is a structural defect of the
	// export, not a per-row value problem: fail the decode instead of letting
	// empty cells flow into field parsing.
	gocsv.FailIfUnmatchedStructTags = true
}

// Option configures a parse call.
type Option func(*config)

type config struct {
	currency brokerage.Currency
}

// WithCurrency sets the account base currency the ledger is booked in.
// The ledger itself carries no currency column; the default is USD.
func WithCurrency(cur brokerage.Currency) Option {
	return func(c *config) { c.currency = cur }
}

func newConfig(opts []Option) config {
	c := config{currency: brokerage.USD}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// positionRow mirrors one holding line of the positions export.
type positionRow struct {
	Symbol       string `csv:"Symbol"`
	Description  string `csv:"Description"`
	Quantity     string `csv:"Quantity"`
	LastPrice    string `csv:"Last Price"`
	CurrentValue string `csv:"Current Value"`
	CostBasis    string `csv:"Cost Basis"`
}

// transactionRow mirrors one executed action line of the history export.
type transactionRow struct {
	RunDate        string `csv:"Run Date"`
	Action         string `csv:"Action"`
	Symbol         string `csv:"Symbol"`
	Description    string `csv:"Security Description"`
	Quantity       string `csv:"Quantity"`
	Price          string `csv:"Price"`
	Commission     string `csv:"Commission"`
	Fees           string `csv:"Fees"`
	Amount         string `csv:"Amount"`
	SettlementDate string `csv:"Settlement Date"`
}

// ParsePositions reads a positions export and returns one Position per
// holding, in file order.
func ParsePositions(path string, opts ...Option) ([]brokerage.Position, error) {
	cfg := newConfig(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}
	defer f.Close()

	var rows []*positionRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}

	positions := make([]brokerage.Position, 0, len(rows))
	for _, row := range rows {
		p, err := parsePosition(row, cfg.currency)
		if err != nil {
			return nil, fmt.Errorf("position row %q: %w", row.Symbol, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func parsePosition(row *positionRow, cur brokerage.Currency) (brokerage.Position, error) {
	instrument, err := classifyInstrument(row.Symbol, row.Description, cur)
	if err != nil {
		return brokerage.Position{}, err
	}
	quantity, err := brokerage.ParseDecimal("Quantity", row.Quantity)
	if err != nil {
		return brokerage.Position{}, err
	}
	costBasis, err := brokerage.ParseDecimal("Cost Basis", row.CostBasis)
	if err != nil {
		return brokerage.Position{}, err
	}
	return brokerage.NewPosition(instrument, quantity, brokerage.NewCash(cur, costBasis))
}

// ParseTransactions reads a transaction-history export and returns one Trade
// per executed action, in file order. Non-trade ledger activity (dividends,
// interest, transfers) is skipped by its known phrase; an unknown phrase
// fails with UnrecognizedActionError.
func ParseTransactions(path string, opts ...Option) ([]brokerage.Trade, error) {
	cfg := newConfig(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}
	defer f.Close()

	var rows []*transactionRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, &brokerage.FormatError{Source: path, Err: err}
	}

	var trades []brokerage.Trade
	for _, row := range rows {
		rule, ok := classifyAction(row.Action)
		if !ok {
			return nil, &brokerage.UnrecognizedActionError{Action: row.Action}
		}
		if rule.skip {
			log.WithField("action", row.Action).Debug("skipping non-trade ledger row")
			continue
		}
		t, err := parseTransaction(row, rule, cfg.currency)
		if err != nil {
			return nil, fmt.Errorf("transaction row %q %q: %w", row.Action, row.Symbol, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseTransaction(row *transactionRow, rule actionRule, cur brokerage.Currency) (brokerage.Trade, error) {
	instrument, err := classifyInstrument(row.Symbol, row.Description, cur)
	if err != nil {
		return brokerage.Trade{}, err
	}
	quantity, err := brokerage.ParseDecimal("Quantity", row.Quantity)
	if err != nil {
		return brokerage.Trade{}, err
	}
	// Amount is blank for cashless actions such as expirations.
	amount, err := optionalDecimal("Amount", row.Amount)
	if err != nil {
		return brokerage.Trade{}, err
	}
	commission, err := optionalDecimal("Commission", row.Commission)
	if err != nil {
		return brokerage.Trade{}, err
	}
	fee, err := optionalDecimal("Fees", row.Fees)
	if err != nil {
		return brokerage.Trade{}, err
	}
	price, err := optionalDecimal("Price", row.Price)
	if err != nil {
		return brokerage.Trade{}, err
	}
	settled, err := date.ParseUS(row.SettlementDate)
	if err != nil {
		return brokerage.Trade{}, brokerage.Invalidf("field Settlement Date: %v", err)
	}

	flags := rule.flags
	if rule.event != 0 {
		// Expiration, assignment and exercise rows carry no explicit
		// direction: a negative quantity removes a long position.
		direction := brokerage.FlagOpen
		if quantity.IsNegative() {
			direction = brokerage.FlagClose
		}
		flags = rule.event | direction
	}

	return brokerage.NewTrade(
		settled,
		instrument,
		quantity,
		brokerage.NewCash(cur, amount),
		brokerage.NewCash(cur, price.Abs()),
		brokerage.NewCash(cur, commission.Add(fee).Abs()),
		flags,
	)
}

// optionalDecimal parses a numeric column that the ledger leaves empty for
// some actions (e.g. fees on a reinvestment).
func optionalDecimal(field, text string) (decimal.Decimal, error) {
	if strings.TrimSpace(text) == "" {
		return decimal.Zero, nil
	}
	return brokerage.ParseDecimal(field, text)
}

// optionDescRegex matches the ledger's option descriptions, e.g.
// "CALL (SPY) SPDR S&P500 ETF JAN 25 19 $265 (100 SHS)", capturing the
// right, underlying, expiration and strike.
var optionDescRegex = regexp.MustCompile(`^(CALL|PUT) \(([A-Z.]+)\) .+ ([A-Z]{3}) (\d{1,2}) (\d{2}) \$(\d+(?:\.\d+)?)`)

// cusipSymbolRegex matches money-market and treasury holdings, which the
// ledger identifies by a CUSIP-shaped code instead of a ticker.
var cusipSymbolRegex = regexp.MustCompile(`^[0-9]{3}[0-9A-Z]{5}[0-9]$`)

var monthsByName = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// classifyInstrument picks the instrument variant from the symbol/description
// pair. Checks run in priority order: option description, CUSIP-shaped
// symbol, then plain equity ticker.
func classifyInstrument(symbol, description string, cur brokerage.Currency) (brokerage.Instrument, error) {
	symbol = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(symbol), "-"))

	if m := optionDescRegex.FindStringSubmatch(description); m != nil {
		return parseOptionDescription(m, cur)
	}
	if cusipSymbolRegex.MatchString(symbol) {
		return brokerage.NewBond(symbol, cur)
	}
	return brokerage.NewStock(symbol, cur)
}

func parseOptionDescription(m []string, cur brokerage.Currency) (brokerage.Instrument, error) {
	optionType := brokerage.Call
	if m[1] == "PUT" {
		optionType = brokerage.Put
	}
	month, ok := monthsByName[m[3]]
	if !ok {
		return nil, brokerage.Invalidf("unknown expiration month %q in option description", m[3])
	}
	day, err := brokerage.ParseDecimal("expiration day", m[4])
	if err != nil {
		return nil, err
	}
	year, err := brokerage.ParseDecimal("expiration year", m[5])
	if err != nil {
		return nil, err
	}
	strike, err := brokerage.ParseDecimal("strike", m[6])
	if err != nil {
		return nil, err
	}
	expiration := date.New(2000+int(year.IntPart()), month, int(day.IntPart()))
	return brokerage.NewOption(m[2], cur, optionType, expiration, strike)
}

// actionRule maps a known ledger phrase to trade semantics. Rules are
// checked in order; the first phrase prefix-matching the action wins.
type actionRule struct {
	phrase string
	flags  brokerage.TradeFlags // complete flag set for ordinary trades
	event  brokerage.TradeFlags // lifecycle event; direction comes from the quantity sign
	skip   bool                 // known non-trade ledger activity
}

var actionRules = []actionRule{
	{phrase: "reinvestment", flags: brokerage.FlagOpen | brokerage.FlagDrip},
	{phrase: "bought to open", flags: brokerage.FlagOpen},
	{phrase: "bought to close", flags: brokerage.FlagClose},
	{phrase: "sold to open", flags: brokerage.FlagOpen},
	{phrase: "sold to close", flags: brokerage.FlagClose},
	{phrase: "bought", flags: brokerage.FlagOpen},
	{phrase: "sold", flags: brokerage.FlagClose},
	{phrase: "assigned", event: brokerage.FlagAssigned},
	{phrase: "exercised", event: brokerage.FlagExercised},
	{phrase: "expired", event: brokerage.FlagExpired},
	{phrase: "dividend received", skip: true},
	{phrase: "interest earned", skip: true},
	{phrase: "transfer", skip: true},
	{phrase: "journaled", skip: true},
	{phrase: "fee charged", skip: true},
}

func classifyAction(action string) (actionRule, bool) {
	normalized := strings.ToLower(strings.TrimSpace(action))
	for _, rule := range actionRules {
		if strings.HasPrefix(normalized, rule.phrase) {
			return rule, true
		}
	}
	return actionRule{}, false
}
