package ezib

import (
	"sync"
)

// ezState is the streaming state cache. The wrapper writes into it as
// messages arrive and the client accessors read from it. Every field is
// guarded by mu. Values are overwritten in place, the latest message
// wins.
type ezState struct {
	mu sync.Mutex

	nextValidID int64

	accounts            []string
	updateAccountTime   string
	updateAccountValues map[string]AccountValue
	accountSummary      map[string]AccountValue
	portfolio           map[string]map[string]PortfolioItem
	positions           map[string]map[string]Position

	tickers      map[string]*Ticker
	reqID2Ticker map[int64]*Ticker
	subs         map[string]int64

	trades map[string]*Trade
	fills  map[string]*Fill

	pnlKey2ReqID       map[string]int64
	reqID2Pnl          map[int64]*Pnl
	pnlSingleKey2ReqID map[string]int64
	reqID2PnlSingle    map[int64]*PnlSingle

	contracts       map[string]*Contract
	contractDetails map[string][]ContractDetails
}

func newState() *ezState {
	state := &ezState{}
	state.reset()
	return state
}

// reset empties the cache. Caller must hold mu, except before the state
// is shared.
func (s *ezState) reset() {
	s.nextValidID = -1
	s.accounts = nil
	s.updateAccountTime = ""
	s.updateAccountValues = make(map[string]AccountValue)
	s.accountSummary = make(map[string]AccountValue)
	s.portfolio = make(map[string]map[string]PortfolioItem)
	s.positions = make(map[string]map[string]Position)
	s.tickers = make(map[string]*Ticker)
	s.reqID2Ticker = make(map[int64]*Ticker)
	s.subs = make(map[string]int64)
	s.trades = make(map[string]*Trade)
	s.fills = make(map[string]*Fill)
	s.pnlKey2ReqID = make(map[string]int64)
	s.reqID2Pnl = make(map[int64]*Pnl)
	s.pnlSingleKey2ReqID = make(map[string]int64)
	s.reqID2PnlSingle = make(map[int64]*PnlSingle)
	s.contracts = make(map[string]*Contract)
	s.contractDetails = make(map[string][]ContractDetails)
}

// startTicker returns the ticker of the contract, creating and caching it
// on first use, and registers the request id under the given subscription
// type. Caller must hold mu.
func (s *ezState) startTicker(reqID int64, contract *Contract, subType string) *Ticker {
	key := ContractKey(contract)
	ticker, ok := s.tickers[key]
	if !ok {
		ticker = newTicker(contract, key)
		s.tickers[key] = ticker
	}
	s.registerContract(contract)
	s.reqID2Ticker[reqID] = ticker
	s.subs[Key(key, subType)] = reqID
	return ticker
}

// endTicker drops the subscription of the given type and returns its
// request id. The ticker itself stays cached with its last values.
// Caller must hold mu.
func (s *ezState) endTicker(ticker *Ticker, subType string) (int64, bool) {
	if ticker == nil {
		return 0, false
	}
	subKey := Key(ticker.Key(), subType)
	reqID, ok := s.subs[subKey]
	if !ok {
		return 0, false
	}
	delete(s.subs, subKey)
	delete(s.reqID2Ticker, reqID)
	return reqID, ok
}

// registerContract caches the contract under its symbol key. Caller must
// hold mu.
func (s *ezState) registerContract(contract *Contract) {
	if contract == nil {
		return
	}
	key := ContractKey(contract)
	if _, ok := s.contracts[key]; !ok {
		s.contracts[key] = contract
	}
}

// updateAccountValue stores an account value from the account update
// stream. Caller must hold mu.
func (s *ezState) updateAccountValue(av AccountValue) {
	s.updateAccountValues[Key(av.Account, av.Tag, av.Currency)] = av
}

// updateAccountSummary stores an account value from an account summary
// request. Caller must hold mu.
func (s *ezState) updateAccountSummary(av AccountValue) {
	s.accountSummary[Key(av.Account, av.Tag, av.Currency)] = av
}

// updatePortfolio stores a portfolio item. Caller must hold mu.
func (s *ezState) updatePortfolio(pi PortfolioItem) {
	s.registerContract(pi.Contract)
	m, ok := s.portfolio[pi.Account]
	if !ok {
		m = make(map[string]PortfolioItem)
		s.portfolio[pi.Account] = m
	}
	m[ContractKey(pi.Contract)] = pi
}

// updatePosition stores a position. Caller must hold mu.
func (s *ezState) updatePosition(p Position) {
	s.registerContract(p.Contract)
	m, ok := s.positions[p.Account]
	if !ok {
		m = make(map[string]Position)
		s.positions[p.Account] = m
	}
	m[ContractKey(p.Contract)] = p
}

// addFill stores a fill by execution id and attaches it to its trade if
// the trade is known. Requesting executions again redelivers known fills,
// those are returned as is. Returns the stored fill. Caller must hold mu.
func (s *ezState) addFill(fill *Fill) *Fill {
	if existing, ok := s.fills[fill.Execution.ExecID]; ok {
		return existing
	}
	s.fills[fill.Execution.ExecID] = fill
	if trade, ok := s.trades[orderKey(fill.Execution.ClientID, fill.Execution.OrderID, fill.Execution.PermID)]; ok {
		trade.addFillSafe(fill)
	}
	return fill
}

// cacheContractDetails stores the detail list last fetched for a
// contract key. Caller must hold mu.
func (s *ezState) cacheContractDetails(key string, cds []ContractDetails) {
	s.contractDetails[key] = cds
}

// commissionAndFeesReport attaches a commission and fees report to the
// fill with the same execution id. Caller must hold mu.
func (s *ezState) commissionAndFeesReport(report CommissionAndFeesReport) {
	if fill, ok := s.fills[report.ExecID]; ok {
		fill.CommissionAndFeesReport = report
	}
}
