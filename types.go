package ezib

import (
	"time"

	"github.com/scmhub/ibapi"
)

// Aliases for the underlying API types so callers normally need only this
// package.
type (
	TickerID        = ibapi.TickerID
	OrderID         = ibapi.OrderID
	Decimal         = ibapi.Decimal
	Contract        = ibapi.Contract
	ContractDetails = ibapi.ContractDetails
	ComboLeg        = ibapi.ComboLeg
	Order           = ibapi.Order
	OrderCancel     = ibapi.OrderCancel
	OrderState      = ibapi.OrderState
	Execution       = ibapi.Execution
	ExecutionFilter = ibapi.ExecutionFilter

	// DepthMktDataDescription describes a venue eligible for market depth.
	DepthMktDataDescription = ibapi.DepthMktDataDescription

	// CommissionAndFeesReport reports the commission and fees of an
	// execution, keyed by ExecID.
	CommissionAndFeesReport = ibapi.CommissionAndFeesReport

	// Bar is a historical data bar.
	Bar = ibapi.Bar

	TagValue = ibapi.TagValue
)

// NewOrderCancel returns an OrderCancel with the API default values.
func NewOrderCancel() OrderCancel {
	return ibapi.NewOrderCancel()
}

// CancelFunc cancels a streaming request.
type CancelFunc func()

// AccountValue is a single account tag/value pair as delivered by the
// account update and account summary streams.
type AccountValue struct {
	Account  string
	Tag      string
	Value    string
	Currency string
}

// AccountValues is the list of account values from the account update
// subscription.
type AccountValues []AccountValue

// AccountSummary is the list of account values from an account summary
// request.
type AccountSummary []AccountValue

// Position is an account position for a single contract.
type Position struct {
	Account  string
	Contract *Contract
	Position float64
	AvgCost  float64
}

// PortfolioItem is a position as delivered by the account update
// subscription, market value included.
type PortfolioItem struct {
	Account       string
	Contract      *Contract
	Position      float64
	MarketPrice   float64
	MarketValue   float64
	AverageCost   float64
	UnrealizedPNL float64
	RealizedPNL   float64
}

// Pnl is the real-time profit and loss of a whole account or of a model.
type Pnl struct {
	Account       string
	ModelCode     string
	DailyPnL      float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// PnlSingle is the real-time profit and loss of a single position.
type PnlSingle struct {
	Account       string
	ModelCode     string
	ConID         int64
	DailyPnL      float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Position      float64
	Value         float64
}

// Fill pairs an execution with its contract and, once reported, its
// commission and fees.
type Fill struct {
	Contract                *Contract
	Execution               *Execution
	CommissionAndFeesReport CommissionAndFeesReport
	Time                    time.Time
}

// Matches reports whether the fill satisfies the given execution filter.
// Zero valued filter fields match anything.
func (f Fill) Matches(ef *ExecutionFilter) bool {
	if ef == nil {
		return true
	}
	if ef.ClientID != 0 && f.Execution != nil && ef.ClientID != f.Execution.ClientID {
		return false
	}
	if ef.AcctCode != "" && f.Execution != nil && ef.AcctCode != f.Execution.AcctNumber {
		return false
	}
	if ef.Time != "" {
		if t, err := ParseIBTime(ef.Time); err == nil && f.Time.Before(t) {
			return false
		}
	}
	if ef.Symbol != "" && f.Contract != nil && ef.Symbol != f.Contract.Symbol {
		return false
	}
	if ef.SecType != "" && f.Contract != nil && ef.SecType != f.Contract.SecType {
		return false
	}
	if ef.Exchange != "" && f.Execution != nil && ef.Exchange != f.Execution.Exchange {
		return false
	}
	if ef.Side != "" && f.Execution != nil && ef.Side != f.Execution.Side {
		return false
	}
	return true
}

// RealTimeBar is a 5 second bar from the real-time bars stream.
type RealTimeBar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Wap    float64
	Count  int64
}

// OptionChain describes the option parameters of one exchange for an
// underlying.
type OptionChain struct {
	Exchange        string
	UnderlyingConID int64
	TradingClass    string
	Multiplier      string
	Expirations     []string
	Strikes         []float64
}

// TickOptionComputation holds the greeks of an option, either streamed
// with the market data ticks or computed on request.
type TickOptionComputation struct {
	TickAttrib int64
	ImpliedVol float64
	Delta      float64
	OptPrice   float64
	PvDividend float64
	Gamma      float64
	Vega       float64
	Theta      float64
	UndPrice   float64
}

// TickByTickAllLast is a single trade from the tick-by-tick stream.
type TickByTickAllLast struct {
	Time              int64
	TickType          int64
	Price             float64
	Size              float64
	PastLimit         bool
	Unreported        bool
	Exchange          string
	SpecialConditions string
}

// TickByTickBidAsk is a bid/ask change from the tick-by-tick stream.
type TickByTickBidAsk struct {
	Time        int64
	BidPrice    float64
	AskPrice    float64
	BidSize     float64
	AskSize     float64
	BidPastLow  bool
	AskPastHigh bool
}

// TickByTickMidPoint is a midpoint change from the tick-by-tick stream.
type TickByTickMidPoint struct {
	Time     int64
	MidPoint float64
}
