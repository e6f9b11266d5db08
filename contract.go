package ezib

import (
	"fmt"
	"strconv"
	"strings"
)

// Futures month codes, January through December.
var futMonthCodes = map[int]string{
	1: "F", 2: "G", 3: "H", 4: "J", 5: "K", 6: "M",
	7: "N", 8: "Q", 9: "U", 10: "V", 11: "X", 12: "Z",
}

// ContractKey returns the symbol key a contract is cached under.
//
// Stocks use the bare symbol. Futures append the month code and year,
// forex the currency, options the expiry, right and strike. Every other
// security type appends its type. Keys are upper case with spaces
// replaced by underscores, e.g. "AAPL", "ESH2025_FUT", "EURUSD_CASH",
// "AAPL20250117C00200000_OPT".
func ContractKey(contract *Contract, separator ...string) string {
	sep := "_"
	if len(separator) > 0 {
		sep = separator[0]
	}

	var key string
	switch contract.SecType {
	case "OPT", "FOP":
		strike := fmt.Sprintf("%05d", int64(contract.Strike)) +
			strings.Split(fmt.Sprintf("%.3f", contract.Strike), ".")[1]
		right := contract.Right
		if right != "" {
			right = right[:1]
		}
		key = contract.Symbol + contract.LastTradeDateOrContractMonth + right + strike + sep + contract.SecType
	case "FUT":
		exp := contract.LastTradeDateOrContractMonth
		if len(exp) >= 6 {
			exp = exp[:6]
			if month, err := strconv.Atoi(exp[4:6]); err == nil {
				if code, ok := futMonthCodes[month]; ok {
					exp = code + exp[:4]
				}
			}
		}
		key = contract.Symbol + exp + sep + "FUT"
	case "CASH":
		key = contract.Symbol + contract.Currency + sep + "CASH"
	case "STK", "":
		key = contract.Symbol
	default:
		key = contract.Symbol + sep + contract.SecType
	}

	return strings.ToUpper(strings.ReplaceAll(key, " ", "_"))
}

// CreateContract returns a contract built from its parts. secType selects
// the shape, unused parts are ignored. Empty exchange and currency fall
// back to the defaults of the security type.
func CreateContract(secType, symbol, exchange, currency, lastTradeDateOrContractMonth string, strike float64, right string) *Contract {
	switch secType {
	case "STK":
		return NewStock(symbol, exchange, currency)
	case "CASH":
		return NewForex(symbol, exchange, currency)
	case "IND":
		return NewIndex(symbol, exchange, currency)
	case "FUT":
		return NewFuture(symbol, lastTradeDateOrContractMonth, exchange, currency)
	case "CONTFUT":
		return NewContFuture(symbol, exchange, currency)
	case "OPT":
		return NewOption(symbol, lastTradeDateOrContractMonth, strike, right, exchange, currency)
	case "FOP":
		return NewFuturesOption(symbol, lastTradeDateOrContractMonth, strike, right, exchange, currency)
	case "CFD":
		return NewCFD(symbol, exchange, currency)
	case "CMDTY":
		return NewCommodity(symbol, exchange, currency)
	case "BOND":
		return NewBond(symbol, exchange, currency)
	case "CRYPTO":
		return NewCrypto(symbol, exchange, currency)
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{
		SecType:                      secType,
		Symbol:                       symbol,
		Exchange:                     exchange,
		Currency:                     currency,
		LastTradeDateOrContractMonth: lastTradeDateOrContractMonth,
		Strike:                       strike,
		Right:                        right,
	}
}

// NewStock returns a stock contract. Empty exchange and currency default
// to SMART and USD.
func NewStock(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "STK", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewForex returns a forex contract. A six letter pair like "EURUSD" is
// split into symbol and currency. Empty exchange and currency default to
// IDEALPRO and USD.
func NewForex(symbol, exchange, currency string) *Contract {
	if len(symbol) == 6 && currency == "" {
		currency = symbol[3:]
		symbol = symbol[:3]
	}
	if exchange == "" {
		exchange = "IDEALPRO"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "CASH", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewIndex returns an index contract. Empty exchange and currency default
// to CBOE and USD.
func NewIndex(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "CBOE"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "IND", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewFuture returns a futures contract for the given contract month or
// last trade date. Empty exchange and currency default to GLOBEX and USD.
func NewFuture(symbol, lastTradeDateOrContractMonth, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "GLOBEX"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{
		SecType:                      "FUT",
		Symbol:                       symbol,
		Exchange:                     exchange,
		Currency:                     currency,
		LastTradeDateOrContractMonth: lastTradeDateOrContractMonth,
	}
}

// NewContFuture returns a continuous futures contract. Continuous futures
// are resolvable and usable for historical data but cannot be traded.
func NewContFuture(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "GLOBEX"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "CONTFUT", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewOption returns an option contract. right is "C", "P", "CALL" or
// "PUT". Empty exchange and currency default to SMART and USD.
func NewOption(symbol, lastTradeDateOrContractMonth string, strike float64, right, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{
		SecType:                      "OPT",
		Symbol:                       symbol,
		Exchange:                     exchange,
		Currency:                     currency,
		LastTradeDateOrContractMonth: lastTradeDateOrContractMonth,
		Strike:                       strike,
		Right:                        normalizeRight(right),
	}
}

// NewFuturesOption returns an option on a future. Empty exchange and
// currency default to GLOBEX and USD.
func NewFuturesOption(symbol, lastTradeDateOrContractMonth string, strike float64, right, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "GLOBEX"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{
		SecType:                      "FOP",
		Symbol:                       symbol,
		Exchange:                     exchange,
		Currency:                     currency,
		LastTradeDateOrContractMonth: lastTradeDateOrContractMonth,
		Strike:                       strike,
		Right:                        normalizeRight(right),
	}
}

// NewCFD returns a contract for difference. Empty exchange and currency
// default to SMART and USD.
func NewCFD(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "CFD", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewCommodity returns a commodity contract. Empty exchange and currency
// default to SMART and USD.
func NewCommodity(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "CMDTY", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewBond returns a bond contract. Empty exchange and currency default to
// SMART and USD.
func NewBond(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "BOND", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewCrypto returns a crypto contract. Empty exchange and currency
// default to PAXOS and USD.
func NewCrypto(symbol, exchange, currency string) *Contract {
	if exchange == "" {
		exchange = "PAXOS"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "CRYPTO", Symbol: symbol, Exchange: exchange, Currency: currency}
}

// NewCombo returns a combo contract made of the given legs.
func NewCombo(symbol, exchange, currency string, legs ...ComboLeg) *Contract {
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Contract{SecType: "BAG", Symbol: symbol, Exchange: exchange, Currency: currency, ComboLegs: legs}
}

// NewComboLeg returns a combo leg. action is "BUY" or "SELL".
func NewComboLeg(conID int64, ratio int64, action, exchange string) ComboLeg {
	if exchange == "" {
		exchange = "SMART"
	}
	return ComboLeg{ConID: conID, Ratio: ratio, Action: action, Exchange: exchange}
}

func normalizeRight(right string) string {
	switch strings.ToUpper(right) {
	case "C", "CALL":
		return "C"
	case "P", "PUT":
		return "P"
	}
	return strings.ToUpper(right)
}
