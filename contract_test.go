package ezib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContractKey(t *testing.T) {
	t.Run("Stock", func(t *testing.T) {
		assert.Equal(t, "AAPL", ContractKey(NewStock("AAPL", "", "")))
		assert.Equal(t, "AAPL", ContractKey(NewStock("aapl", "SMART", "USD")))
	})

	t.Run("StockWithSpace", func(t *testing.T) {
		assert.Equal(t, "BRK_B", ContractKey(NewStock("BRK B", "", "")))
	})

	t.Run("Forex", func(t *testing.T) {
		assert.Equal(t, "EURUSD_CASH", ContractKey(NewForex("EURUSD", "", "")))
		assert.Equal(t, "GBPJPY_CASH", ContractKey(NewForex("GBP", "", "JPY")))
	})

	t.Run("Future", func(t *testing.T) {
		assert.Equal(t, "ESH2025_FUT", ContractKey(NewFuture("ES", "202503", "", "")))
		// A full last trade date reduces to its contract month.
		assert.Equal(t, "ESZ2025_FUT", ContractKey(NewFuture("ES", "20251219", "", "")))
	})

	t.Run("Option", func(t *testing.T) {
		assert.Equal(t, "AAPL20250117C00200000_OPT", ContractKey(NewOption("AAPL", "20250117", 200, "C", "", "")))
		assert.Equal(t, "AAPL20250117P00072500_OPT", ContractKey(NewOption("AAPL", "20250117", 72.5, "PUT", "", "")))
	})

	t.Run("OtherSecTypes", func(t *testing.T) {
		assert.Equal(t, "SPX_IND", ContractKey(NewIndex("SPX", "", "")))
		assert.Equal(t, "BTC_CRYPTO", ContractKey(NewCrypto("BTC", "", "")))
	})

	t.Run("CustomSeparator", func(t *testing.T) {
		assert.Equal(t, "EURUSD-CASH", ContractKey(NewForex("EURUSD", "", ""), "-"))
	})
}

func TestCreateContract(t *testing.T) {
	t.Run("Stock", func(t *testing.T) {
		contract := CreateContract("STK", "AAPL", "", "", "", 0, "")
		assert.Equal(t, "STK", contract.SecType)
		assert.Equal(t, "AAPL", contract.Symbol)
		assert.Equal(t, "SMART", contract.Exchange)
		assert.Equal(t, "USD", contract.Currency)
	})

	t.Run("Option", func(t *testing.T) {
		contract := CreateContract("OPT", "AAPL", "", "", "20250117", 200, "CALL")
		assert.Equal(t, "OPT", contract.SecType)
		assert.Equal(t, "20250117", contract.LastTradeDateOrContractMonth)
		assert.Equal(t, 200.0, contract.Strike)
		assert.Equal(t, "C", contract.Right)
	})

	t.Run("Idempotent", func(t *testing.T) {
		first := CreateContract("FUT", "ES", "CME", "USD", "202503", 0, "")
		second := CreateContract("FUT", "ES", "CME", "USD", "202503", 0, "")
		assert.Equal(t, *first, *second)
		assert.Equal(t, ContractKey(first), ContractKey(second))
	})

	t.Run("UnknownSecType", func(t *testing.T) {
		contract := CreateContract("WAR", "FOO", "SBF", "EUR", "", 0, "")
		assert.Equal(t, "WAR", contract.SecType)
		assert.Equal(t, "EUR", contract.Currency)
	})
}

func TestNewForexPairSplit(t *testing.T) {
	contract := NewForex("EURUSD", "", "")
	assert.Equal(t, "EUR", contract.Symbol)
	assert.Equal(t, "USD", contract.Currency)
	assert.Equal(t, "IDEALPRO", contract.Exchange)
}

func TestNewComboLeg(t *testing.T) {
	leg := NewComboLeg(43645865, 1, "BUY", "")
	assert.Equal(t, int64(43645865), leg.ConID)
	assert.Equal(t, int64(1), leg.Ratio)
	assert.Equal(t, "BUY", leg.Action)
	assert.Equal(t, "SMART", leg.Exchange)

	combo := NewCombo("IBKR,MCD", "", "", leg, NewComboLeg(9408, 1, "SELL", ""))
	assert.Equal(t, "BAG", combo.SecType)
	assert.Len(t, combo.ComboLegs, 2)
}

func TestNormalizeRight(t *testing.T) {
	assert.Equal(t, "C", normalizeRight("call"))
	assert.Equal(t, "C", normalizeRight("C"))
	assert.Equal(t, "P", normalizeRight("Put"))
	assert.Equal(t, "P", normalizeRight("p"))
	assert.Equal(t, "", normalizeRight(""))
}
