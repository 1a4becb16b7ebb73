package ibkr

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cash(cur brokerage.Currency, s string) brokerage.Cash {
	return brokerage.NewCash(cur, d(s))
}

func loadTrades(t *testing.T) map[string]brokerage.Trade {
	t.Helper()
	trades, err := ParseTrades(filepath.Join("testdata", "trades.xml"))
	require.NoError(t, err)
	require.NotEmpty(t, trades)

	bySymbol := make(map[string]brokerage.Trade, len(trades))
	for _, trade := range trades {
		bySymbol[trade.Instrument().Symbol()] = trade
	}
	return bySymbol
}

func TestParseTradesGBPStock(t *testing.T) {
	trade := loadTrades(t)["GAW"]
	gaw, _ := brokerage.NewStock("GAW", brokerage.GBP)
	assert.Equal(t, date.New(2019, time.February, 12), trade.Date())
	assert.True(t, trade.Instrument().Equal(gaw))
	assert.True(t, trade.Quantity().Equal(d("100")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.GBP, "-3050")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.GBP, "21.25")))
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradesUSDStock(t *testing.T) {
	trade := loadTrades(t)["AAPL"]
	aapl, _ := brokerage.NewStock("AAPL", brokerage.USD)
	assert.True(t, trade.Instrument().Equal(aapl))
	assert.True(t, trade.Quantity().Equal(d("17")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-2890")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "1")))
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradesBond(t *testing.T) {
	// The feed withholds the CUSIP unless the data is paid for.
	trade := loadTrades(t)["ALLY 3 3/4 11/18/19"]
	bond, err := brokerage.NewUnvalidatedBond("ALLY 3 3/4 11/18/19", brokerage.USD)
	require.NoError(t, err)
	assert.Equal(t, date.New(2019, time.March, 19), trade.Date())
	assert.True(t, trade.Instrument().Equal(bond))
	assert.True(t, trade.Quantity().Equal(d("2000")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-2009.50")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "2")))
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradesBuyOption(t *testing.T) {
	trade := loadTrades(t)["HYG   191115P00087000"]
	hygPut, err := brokerage.NewOption("HYG", brokerage.USD, brokerage.Put,
		date.New(2019, time.November, 15), d("87"))
	require.NoError(t, err)
	assert.Equal(t, date.New(2019, time.February, 12), trade.Date())
	assert.True(t, trade.Instrument().Equal(hygPut))
	assert.True(t, trade.Quantity().Equal(d("1")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-565")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "0.7182")))
	assert.True(t, trade.Price().Equal(cash(brokerage.USD, "5.65")))
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradesSellOption(t *testing.T) {
	trade := loadTrades(t)["MTCH  190215P00045000"]
	mtchPut, err := brokerage.NewOption("MTCH", brokerage.USD, brokerage.Put,
		date.New(2019, time.February, 15), d("45"))
	require.NoError(t, err)
	assert.Equal(t, date.New(2019, time.February, 4), trade.Date())
	assert.True(t, trade.Instrument().Equal(mtchPut))
	assert.True(t, trade.Quantity().Equal(d("-1")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "55")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "1.320915")))
	assert.True(t, trade.Price().Equal(cash(brokerage.USD, "0.55")))
	assert.Equal(t, brokerage.FlagClose, trade.Flags())
}

func TestParseTradesForex(t *testing.T) {
	trade := loadTrades(t)["GBPUSD"]
	pair, err := brokerage.NewForex(brokerage.GBP, brokerage.USD)
	require.NoError(t, err)
	assert.True(t, trade.Instrument().Equal(pair))
	assert.True(t, trade.Quantity().Equal(d("3060")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-3936.231")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "2")))
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradesForexCross(t *testing.T) {
	// Amount is stated in the quote currency, fees in the commission currency.
	trade := loadTrades(t)["GBPAUD"]
	pair, err := brokerage.NewForex(brokerage.GBP, brokerage.AUD)
	require.NoError(t, err)
	assert.True(t, trade.Instrument().Equal(pair))
	assert.True(t, trade.Quantity().Equal(d("5000")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.AUD, "-9329.25")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "2")))
}

func TestParseTradesFuture(t *testing.T) {
	trade := loadTrades(t)["ESH9"]
	future, err := brokerage.NewFuture("ESH9", brokerage.USD, d("50"),
		date.New(2019, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, date.New(2019, time.February, 26), trade.Date())
	assert.True(t, trade.Instrument().Equal(future))
	assert.True(t, trade.Quantity().Equal(d("1")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-139687.5")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "2.05")))
	assert.True(t, trade.Price().Equal(cash(brokerage.USD, "2793.75")))
}

func TestParseTradesFutureOption(t *testing.T) {
	trade := loadTrades(t)["GBUJ9 C1335"]
	fop, err := brokerage.NewFutureOption("GBUJ9 C1335", brokerage.USD, "GBUJ9",
		brokerage.Call, date.New(2019, time.April, 5), d("1.335"), d("62500"))
	require.NoError(t, err)
	assert.Equal(t, date.New(2019, time.March, 4), trade.Date())
	assert.True(t, trade.Instrument().Equal(fop))
	assert.True(t, trade.Quantity().Equal(d("1")))
	assert.True(t, trade.Amount().Equal(cash(brokerage.USD, "-918.75")))
	assert.True(t, trade.Fees().Equal(cash(brokerage.USD, "2.47")))
	assert.True(t, trade.Price().Equal(cash(brokerage.USD, "0.0147")))
}

func TestParsePositions(t *testing.T) {
	positions, err := ParsePositions(filepath.Join("testdata", "positions.xml"))
	require.NoError(t, err)
	require.Len(t, positions, 3)

	aapl, _ := brokerage.NewStock("AAPL", brokerage.USD)
	assert.True(t, positions[0].Instrument().Equal(aapl))
	// "17.000" quantizes to 17.
	assert.True(t, positions[0].Quantity().Equal(d("17")))
	assert.True(t, positions[0].Quantity().Equal(brokerage.QuantizeQuantity(d("17.000"))))
	assert.True(t, positions[0].CostBasis().Equal(cash(brokerage.USD, "2890")))

	hygPut, _ := brokerage.NewOption("HYG", brokerage.USD, brokerage.Put,
		date.New(2019, time.November, 15), d("87"))
	assert.True(t, positions[1].Instrument().Equal(hygPut))
	assert.True(t, positions[1].CostBasis().Equal(cash(brokerage.USD, "565.7182")))

	future, _ := brokerage.NewFuture("ESH9", brokerage.USD, d("50"),
		date.New(2019, time.March, 15))
	assert.True(t, positions[2].Instrument().Equal(future))
}

// validConfirms covers every supported asset category with a well-formed
// record.
var validConfirms = []TradeConfirm{
	{Symbol: "AAPL", Currency: "USD", CommissionCurrency: "USD", AssetCategory: "STK",
		TradeDate: "20190212", Quantity: "17", Multiplier: "1",
		Proceeds: "-2890", Tax: "0", Commission: "-1", Code: "O"},
	{Symbol: "ALLY 3 3/4 11/18/19", Currency: "USD", CommissionCurrency: "USD", AssetCategory: "BOND",
		TradeDate: "20190319", Quantity: "2000", Multiplier: "1",
		Proceeds: "-2009.50", Tax: "0", Commission: "-2", Code: "O"},
	{Symbol: "HYG   191115P00087000", UnderlyingSymbol: "HYG", Currency: "USD", CommissionCurrency: "USD",
		AssetCategory: "OPT", TradeDate: "20190212", Expiry: "20191115", Quantity: "1",
		Multiplier: "100", Proceeds: "-565", Tax: "0", Commission: "-0.7182",
		Strike: "87", PutCall: "P", Code: "O"},
	{Symbol: "ESH9", UnderlyingSymbol: "ES", Currency: "USD", CommissionCurrency: "USD", AssetCategory: "FUT",
		TradeDate: "20190226", Expiry: "20190315", Quantity: "1", Multiplier: "50",
		Proceeds: "-139687.5", Tax: "0", Commission: "-2.05", Code: "O"},
	{Symbol: "GBP.USD", Currency: "USD", CommissionCurrency: "USD", AssetCategory: "CASH",
		TradeDate: "20190212", Quantity: "3060", Multiplier: "1",
		Proceeds: "-3936.231", Tax: "0", Commission: "-2", Code: "O"},
	{Symbol: "GBUJ9 C1335", UnderlyingSymbol: "GBUJ9", Currency: "USD", CommissionCurrency: "USD",
		AssetCategory: "FOP", TradeDate: "20190304", Expiry: "20190405", Quantity: "1",
		Multiplier: "62500", Proceeds: "-918.75", Tax: "0", Commission: "-2.47",
		Strike: "1.335", PutCall: "C", Code: "O"},
}

// TestContractRoundTrip checks that re-deriving the native contract from a
// parsed instrument reproduces the fields the broker record carried.
func TestContractRoundTrip(t *testing.T) {
	for _, tc := range validConfirms {
		t.Run(tc.AssetCategory, func(t *testing.T) {
			trade, err := ParseTradeConfirm(tc)
			require.NoError(t, err)

			contract, err := ContractFor(trade.Instrument())
			require.NoError(t, err)

			assert.Equal(t, tc.AssetCategory, contract.SecType)
			assert.Equal(t, tc.Currency, contract.Currency)

			switch trade.Instrument().(type) {
			case brokerage.Option, brokerage.FutureOption:
				assert.True(t, d(contract.Strike).Equal(d(tc.Strike)))
				assert.Equal(t, tc.PutCall, contract.Right)
				assert.True(t, d(contract.Multiplier).Equal(d(tc.Multiplier)))
				assert.Equal(t, tc.Expiry, contract.LastTradeDateOrContractMonth)
			case brokerage.Future:
				assert.True(t, d(contract.Multiplier).Equal(d(tc.Multiplier)))
				assert.Equal(t, tc.Expiry, contract.LastTradeDateOrContractMonth)
			}
		})
	}
}

// TestParseTradeConfirmCorruptions replaces each field of a valid record
// with junk: the parse must either succeed with a valid record or fail with
// a ValidationError, never produce an out-of-domain value.
func TestParseTradeConfirmCorruptions(t *testing.T) {
	corruptions := []string{"", "garbage!", "-5", "NaN", "0x10", "99999999999999999999X"}

	for _, base := range validConfirms {
		fields := []*string{
			&base.Symbol, &base.UnderlyingSymbol, &base.Currency, &base.CommissionCurrency,
			&base.AssetCategory, &base.TradeDate, &base.Expiry, &base.Quantity,
			&base.Multiplier, &base.Proceeds, &base.Tax, &base.Commission,
			&base.Strike, &base.PutCall, &base.Code,
		}
		for _, field := range fields {
			original := *field
			for _, junk := range corruptions {
				*field = junk
				trade, err := ParseTradeConfirm(base)
				if err != nil {
					var verr *brokerage.ValidationError
					require.True(t, errors.As(err, &verr), "got %T: %v", err, err)
					continue
				}
				// Parse accepted the record: it must still be valid.
				require.NoError(t, trade.Flags().Validate())
				switch i := trade.Instrument().(type) {
				case brokerage.Option:
					assert.True(t, i.Strike().IsPositive())
				case brokerage.Future:
					assert.True(t, i.Multiplier().IsPositive())
				case brokerage.FutureOption:
					assert.True(t, i.Strike().IsPositive())
					assert.True(t, i.Multiplier().IsPositive())
				}
			}
			*field = original
		}
	}
}

func TestParseTradeConfirmRejectsUnsupportedCategories(t *testing.T) {
	for _, category := range []string{"IND", "CFD", "FUND", "CMDTY", "IOPT", "BAG", "NEWS", "WAR", "XYZ"} {
		tc := validConfirms[0]
		tc.AssetCategory = category
		_, err := ParseTradeConfirm(tc)
		require.Error(t, err, "category %s", category)

		var verr *brokerage.ValidationError
		assert.True(t, errors.As(err, &verr), "category %s: got %T", category, err)
	}
}

func TestParseTradeConfirmNoDirectionalCodeDefaultsToOpen(t *testing.T) {
	tc := validConfirms[0]
	tc.Code = ""
	trade, err := ParseTradeConfirm(tc)
	require.NoError(t, err)
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())

	// Informational codes outside the documented set are ignored.
	tc.Code = "P;D"
	trade, err = ParseTradeConfirm(tc)
	require.NoError(t, err)
	assert.Equal(t, brokerage.FlagOpen, trade.Flags())
}

func TestParseTradeConfirmLifecycleCodes(t *testing.T) {
	tc := validConfirms[2] // OPT
	tc.Code = "A"
	tc.Quantity = "-1"
	trade, err := ParseTradeConfirm(tc)
	require.NoError(t, err)
	assert.Equal(t, brokerage.FlagClose|brokerage.FlagAssigned, trade.Flags())

	tc.Code = "C;Ep"
	trade, err = ParseTradeConfirm(tc)
	require.NoError(t, err)
	assert.Equal(t, brokerage.FlagClose|brokerage.FlagExpired, trade.Flags())
}

func TestExtractPositionQuantizes(t *testing.T) {
	p := OpenPosition{
		Account:  "U1234567",
		AvgCost:  "170",
		Position: "17.000",
		Contract: Contract{Symbol: "AAPL", SecType: "STK", Currency: "USD", LocalSymbol: "AAPL"},
	}
	position, err := ExtractPosition(p)
	require.NoError(t, err)
	assert.True(t, position.Quantity().Equal(brokerage.QuantizeQuantity(d("17.000"))))
	assert.True(t, position.CostBasis().Equal(cash(brokerage.USD, "2890")))
}

func TestExtractPositionRoundTrip(t *testing.T) {
	records := []OpenPosition{
		{AvgCost: "170", Position: "17", Contract: Contract{
			Symbol: "AAPL", SecType: "STK", Currency: "USD", LocalSymbol: "AAPL"}},
		{AvgCost: "565", Position: "1", Contract: Contract{
			Symbol: "HYG", SecType: "OPT", Currency: "USD", Strike: "87", Right: "P",
			Multiplier: "100", LastTradeDateOrContractMonth: "20191115",
			LocalSymbol: "HYG   191115P00087000"}},
		{AvgCost: "139689", Position: "1", Contract: Contract{
			Symbol: "ES", SecType: "FUT", Currency: "USD", Multiplier: "50",
			LastTradeDateOrContractMonth: "20190315", LocalSymbol: "ESH9"}},
		{AvgCost: "1.28", Position: "3060", Contract: Contract{
			Symbol: "GBP", SecType: "CASH", Currency: "USD", LocalSymbol: "GBP.USD"}},
	}

	for _, record := range records {
		t.Run(record.Contract.SecType, func(t *testing.T) {
			position, err := ExtractPosition(record)
			require.NoError(t, err)

			contract, err := ContractFor(position.Instrument())
			require.NoError(t, err)

			assert.Equal(t, record.Contract.SecType, contract.SecType)
			assert.Equal(t, record.Contract.Currency, contract.Currency)

			switch position.Instrument().(type) {
			case brokerage.Option:
				assert.True(t, d(contract.Strike).Equal(d(record.Contract.Strike)))
				assert.Equal(t, record.Contract.Right, contract.Right)
				assert.Equal(t, record.Contract.Multiplier, contract.Multiplier)
				assert.Equal(t, record.Contract.LastTradeDateOrContractMonth, contract.LastTradeDateOrContractMonth)
			case brokerage.Future:
				assert.Equal(t, record.Contract.Multiplier, contract.Multiplier)
				assert.Equal(t, record.Contract.LastTradeDateOrContractMonth, contract.LastTradeDateOrContractMonth)
			}
		})
	}
}

func TestParseTradesMissingFile(t *testing.T) {
	_, err := ParseTrades(filepath.Join("testdata", "nope.xml"))
	require.Error(t, err)

	var ferr *brokerage.FormatError
	assert.True(t, errors.As(err, &ferr))
}
