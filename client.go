// Package ezib is a high level wrapper around the Interactive Brokers API.
// It keeps a streaming state cache of tickers, order books, account values,
// positions, portfolio items, trades and fills in sync with the TWS/IBG
// application, and exposes blocking request methods plus channel feeds on
// top of the raw callback interface.
package ezib

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/ibapi"
)

// MaxSyncedSubAccounts caps the number of sub accounts the client keeps in
// sync automatically at connection.
const MaxSyncedSubAccounts = 50

// Client offers direct access to the current state, such as orders, fills,
// positions, tickers etc. This state is automatically kept in sync with the
// TWS/IBG application.
// Client has most request methods of the underlying API, with the same names
// and parameters, except for the reqId parameter which is not needed anymore.
type Client struct {
	state   *ezState
	pubSub  *PubSub
	eClient *ibapi.EClient
	wrapper *ezWrapper
	config  *Config

	// ErrorCallback receives errors that cannot be matched to a pending
	// request, such as errors on a stream after the requesting call
	// returned.
	ErrorCallback func(error)
}

// NewClient creates a Client around a fresh state cache. The optional config
// can also be passed later to Connect.
func NewClient(config ...*Config) *Client {
	state := newState()
	pubSub := NewPubSub()
	wrapper := newEZWrapper(state, pubSub)
	eClient := ibapi.NewEClient(wrapper)

	c := &Client{
		state:   state,
		pubSub:  pubSub,
		eClient: eClient,
		wrapper: wrapper,
		config:  NewConfig(),
	}

	if len(config) > 0 {
		c.config = config[0]
	}

	wrapper.onError = func(e IBError) {
		if c.ErrorCallback != nil {
			c.ErrorCallback(e)
		}
	}

	return c
}

func (c *Client) SetLogger(logger zerolog.Logger) {
	SetLogger(logger)
}

// SetClientLogLevel sets the log level of the client.
// logLevel can be:
// -1 = trace   // zerolog.TraceLevel
//
//	0 = debug   // zerolog.DebugLevel
//	1 = info    // zerolog.InfoLevel
//	2 = warn    // zerolog.WarnLevel
//	3 = error   // zerolog.ErrorLevel
//	4 = fatal   // zerolog.FatalLevel
//	5 = panic   // zerolog.PanicLevel
func (c *Client) SetClientLogLevel(logLevel int64) {
	SetLogLevel(int(logLevel))
}

// SetConsoleWriter will set pretty log to the console.
func (c *Client) SetConsoleWriter() {
	SetConsoleWriter()
}

// Connect must be called before any other request.
// There is no feedback for a successful connection, but a subsequent attempt
// to connect will return the message "Already connected."
func (c *Client) Connect(config ...*Config) error {
	if len(config) > 0 {
		c.config = config[0] // override config
	}

	err := c.eClient.Connect(c.config.Host, c.config.Port, c.config.ClientID)
	if err != nil {
		return err
	}

	// let the handshake messages land
	time.Sleep(500 * time.Millisecond)

	// bind manual orders from TWS if clientID is 0
	if c.config.ClientID == 0 {
		c.ReqAutoOpenOrders(true)
	}

	accounts := c.ManagedAccounts()
	if c.config.Account == "" && len(accounts) == 1 {
		c.config.Account = accounts[0]
	}

	if !c.config.InSync {
		log.Warn().Msg("this client will not be kept in sync with the TWS/IBG application")
		return nil
	}

	if len(accounts) > MaxSyncedSubAccounts {
		log.Warn().Int("accounts", len(accounts)).Msg("too many sub accounts, positions are not synced")
	} else {
		c.ReqPositions()
	}

	if !c.config.ReadOnly {
		// Get and sync open orders
		if err := c.ReqOpenOrders(); err != nil {
			return err
		}

		// Get and sync completed orders
		if err := c.ReqCompletedOrders(false); err != nil {
			return err
		}

		// Seed the fills with the executions of the day
		if _, err := c.ReqExecutions(); err != nil {
			return err
		}
	}
	if c.config.Account != "" {
		// Get and sync account values and portfolio
		if err := c.ReqAccountUpdates(true, c.config.Account); err != nil {
			return err
		}
	}

	log.Info().Msg("client in sync with the TWS/IBG application")
	return nil
}

// ConnectWithGracefulShutdown connects and sets up signal handling for
// graceful shutdown. This is a convenience for simple apps. Advanced users
// should handle signals themselves.
func (c *Client) ConnectWithGracefulShutdown(config ...*Config) error {
	err := c.Connect(config...)
	if err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("detected termination signal, shutting down gracefully")
		c.Disconnect()
		os.Exit(0)
	}()
	return nil
}

// Disconnect terminates the connection with TWS.
// Calling this function does not cancel orders that have already been sent.
func (c *Client) Disconnect() error {
	return c.eClient.Disconnect()
}

// IsConnected checks if there is a connection to TWS or GateWay.
func (c *Client) IsConnected() bool {
	return c.eClient.IsConnected()
}

// Context returns the connection context. It is cancelled on disconnection.
func (c *Client) Context() context.Context {
	return c.eClient.Ctx()
}

// SetTimeout sets the timeout for receiving messages from TWS/IBG.
// The default timeout duration is DefaultTimeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.config.Timeout = timeout
}

// Reset empties the state cache. Identifiers that belong to the connection
// rather than the cache, the order id counter and the managed accounts list,
// survive.
func (c *Client) Reset() {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	nextValidID := c.state.nextValidID
	accounts := c.state.accounts
	c.state.reset()
	c.state.nextValidID = nextValidID
	c.state.accounts = accounts
}

// ManagedAccounts returns a list of account names.
func (c *Client) ManagedAccounts() []string {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return slices.Clone(c.state.accounts)
}

// IsPaperAccount checks if the accounts are paper accounts.
func (c *Client) IsPaperAccount() bool {
	accounts := c.ManagedAccounts()
	return len(accounts) > 0 && strings.HasPrefix(accounts[0], "D")
}

// IsFinancialAdvisorAccount checks if the account is a financial advisor
// account.
func (c *Client) IsFinancialAdvisorAccount() bool {
	accounts := c.ManagedAccounts()
	return len(accounts) > 0 && strings.HasPrefix(accounts[0], "F")
}

// NextID returns a local next ID. It is initialised at connection.
// NextID = -1 if not initialised.
func (c *Client) NextID() int64 {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	currentID := c.state.nextValidID
	c.state.nextValidID++
	return currentID
}

// AccountValues returns a slice of account values for the given accounts.
//
// If no account is provided it will return values of all accounts.
// Account values need to be subscribed by ReqAccountUpdates. This is done at
// start up unless the WithoutSync option is used.
func (c *Client) AccountValues(account ...string) AccountValues {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var avs AccountValues
	for _, v := range c.state.updateAccountValues {
		if len(account) == 0 || slices.Contains(account, v.Account) {
			avs = append(avs, v)
		}
	}
	return avs
}

// Account returns the latest account values of a single account keyed by
// tag. The account defaults to the configured account.
// Account values need to be subscribed by ReqAccountUpdates. This is done at
// start up unless the WithoutSync option is used.
func (c *Client) Account(account ...string) map[string]AccountValue {
	acc := c.config.Account
	if len(account) > 0 {
		acc = account[0]
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	values := make(map[string]AccountValue)
	for _, v := range c.state.updateAccountValues {
		if acc == "" || v.Account == acc {
			values[v.Tag] = v
		}
	}
	return values
}

// AccountUpdateTime returns the time stamp of the last account update.
func (c *Client) AccountUpdateTime() string {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.updateAccountTime
}

// AccountSummary returns a slice of account values for the given accounts.
//
// If no account is provided it will return values of all accounts.
// On the first run it is calling ReqAccountSummary and is blocking, after it
// returns the last summary requested. To request a new summary call
// ReqAccountSummary.
func (c *Client) AccountSummary(account ...string) AccountSummary {
	c.state.mu.Lock()
	var as AccountSummary
	for _, v := range c.state.accountSummary {
		if len(account) == 0 || slices.Contains(account, v.Account) {
			as = append(as, v)
		}
	}
	c.state.mu.Unlock()
	if len(as) != 0 {
		return as
	}
	tags := []string{"AccountType", "NetLiquidation", "TotalCashValue", "SettledCash", "AccruedCash", "BuyingPower", "EquityWithLoanValue",
		"PreviousDayEquityWithLoanValue", "GrossPositionValue", "RegTEquity", "RegTMargin", "SMA", "InitMarginReq", "MaintMarginReq", "AvailableFunds",
		"ExcessLiquidity", "Cushion", "FullInitMarginReq", "FullMaintMarginReq", "FullAvailableFunds", "FullExcessLiquidity", "LookAheadNextChange",
		"LookAheadInitMarginReq", "LookAheadMaintMarginReq", "LookAheadAvailableFunds", "LookAheadExcessLiquidity", "HighestSeverity", "DayTradesRemaining",
		"DayTradesRemainingT+1", "DayTradesRemainingT+2", "DayTradesRemainingT+3", "DayTradesRemainingT+4", "Leverage,$LEDGER:ALL"}
	tagsString := strings.Join(tags, ",")
	ras, err := c.ReqAccountSummary("All", tagsString)
	if err != nil {
		return nil
	}
	for _, v := range ras {
		if len(account) == 0 || slices.Contains(account, v.Account) {
			as = append(as, v)
		}
	}
	return as
}

// AccountValueChan returns a channel that receives a continuous feed of
// account value updates.
//
// If no account is provided it will receive values of all accounts.
// Do NOT close the channel.
func (c *Client) AccountValueChan(account ...string) chan AccountValue {
	ctx := c.eClient.Ctx()
	accountValueChan := make(chan AccountValue)
	ch, unsubscribe := c.pubSub.Subscribe("AccountValue")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(accountValueChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var av AccountValue
				if err := Decode(&av, msg); err != nil {
					return
				}
				if len(account) == 0 || slices.Contains(account, av.Account) {
					accountValueChan <- av
				}
			}
		}
	}()

	return accountValueChan
}

// Portfolio returns a slice of portfolio items for the given accounts.
//
// If no account is provided it will return items of all accounts.
// Portfolios need to be subscribed by ReqAccountUpdates. This is done at
// start up unless the WithoutSync option is used.
func (c *Client) Portfolio(account ...string) []PortfolioItem {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var pis []PortfolioItem
	for acc, piMap := range c.state.portfolio {
		if len(account) == 0 || slices.Contains(account, acc) {
			for _, pi := range piMap {
				pis = append(pis, pi)
			}
		}
	}
	return pis
}

// PortfolioItemFor returns the portfolio item held for the given contract.
// The account defaults to the configured account.
func (c *Client) PortfolioItemFor(contract *Contract, account ...string) (PortfolioItem, bool) {
	acc := c.config.Account
	if len(account) > 0 {
		acc = account[0]
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	piMap, ok := c.state.portfolio[acc]
	if !ok {
		return PortfolioItem{}, false
	}
	pi, ok := piMap[ContractKey(contract)]
	return pi, ok
}

// PortfolioChan returns a channel that receives a continuous feed of
// portfolio item updates.
//
// If no account is provided it will receive items of all accounts.
// Do NOT close the channel.
func (c *Client) PortfolioChan(account ...string) chan PortfolioItem {
	ctx := c.eClient.Ctx()
	portfolioChan := make(chan PortfolioItem)
	ch, unsubscribe := c.pubSub.Subscribe("PortfolioItem")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(portfolioChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var pi PortfolioItem
				if err := Decode(&pi, msg); err != nil {
					return
				}
				if len(account) == 0 || slices.Contains(account, pi.Account) {
					portfolioChan <- pi
				}
			}
		}
	}()

	return portfolioChan
}

// ReqPositions subscribes to the real-time position stream for all accounts.
func (c *Client) ReqPositions() {
	c.eClient.ReqPositions()
}

// CancelPositions cancels the real-time position subscription.
func (c *Client) CancelPositions() {
	c.eClient.CancelPositions()
}

// Positions returns a slice of the last positions received for the given
// accounts.
//
// If no account is provided it will return positions of all accounts.
// Positions need to be subscribed with ReqPositions first.
func (c *Client) Positions(account ...string) []Position {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var ps []Position
	for acc, pMap := range c.state.positions {
		if len(account) == 0 || slices.Contains(account, acc) {
			for _, p := range pMap {
				ps = append(ps, p)
			}
		}
	}
	return ps
}

// PositionFor returns the position held for the given contract. The account
// defaults to the configured account.
func (c *Client) PositionFor(contract *Contract, account ...string) (Position, bool) {
	acc := c.config.Account
	if len(account) > 0 {
		acc = account[0]
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	pMap, ok := c.state.positions[acc]
	if !ok {
		return Position{}, false
	}
	p, ok := pMap[ContractKey(contract)]
	return p, ok
}

// PositionChan returns a channel that receives a continuous feed of Position
// updates.
//
// You need to subscribe to positions by calling ReqPositions.
// Do NOT close the channel.
func (c *Client) PositionChan(account ...string) chan Position {
	ctx := c.eClient.Ctx()
	positionChan := make(chan Position)
	ch, unsubscribe := c.pubSub.Subscribe("Position")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(positionChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var pos Position
				if err := Decode(&pos, msg); err != nil {
					return
				}
				if len(account) == 0 || slices.Contains(account, pos.Account) {
					positionChan <- pos
				}
			}
		}
	}()

	return positionChan
}

// ReqPnL requests and subscribes the PnL of the assigned account.
func (c *Client) ReqPnL(account string, modelCode string) {
	reqID := c.NextID()
	key := Key(account, modelCode)

	c.state.mu.Lock()
	_, ok := c.state.pnlKey2ReqID[key]
	if ok {
		c.state.mu.Unlock()
		log.Warn().Str("account", account).Str("modelCode", modelCode).Msg("Pnl request already made")
		return
	}
	c.state.pnlKey2ReqID[key] = reqID
	c.state.reqID2Pnl[reqID] = &Pnl{Account: account, ModelCode: modelCode}
	c.state.mu.Unlock()

	c.eClient.ReqPnL(reqID, account, modelCode)
}

// CancelPnL cancels the PnL update of the assigned account.
func (c *Client) CancelPnL(account string, modelCode string) {
	key := Key(account, modelCode)
	c.state.mu.Lock()
	reqID, ok := c.state.pnlKey2ReqID[key]
	if !ok {
		c.state.mu.Unlock()
		log.Warn().Str("account", account).Str("modelCode", modelCode).Msg("No pnl request to cancel")
		return
	}
	delete(c.state.pnlKey2ReqID, key)
	delete(c.state.reqID2Pnl, reqID)
	c.state.mu.Unlock()
	c.eClient.CancelPnL(reqID)
}

// Pnl returns a slice of Pnl values based on the specified account and model
// code.
//
// If account is an empty string, it returns Pnls for all accounts.
// If modelCode is an empty string, it returns Pnls for all model codes.
func (c *Client) Pnl(account string, modelCode string) []Pnl {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var pnls []Pnl
	for _, pnl := range c.state.reqID2Pnl {
		if (account == "" || account == pnl.Account) && (modelCode == "" || modelCode == pnl.ModelCode) {
			pnls = append(pnls, *pnl)
		}
	}
	return pnls
}

// PnlChan returns a channel that receives a continuous feed of Pnl updates.
//
// Do NOT close the channel.
func (c *Client) PnlChan(account string, modelCode string) chan Pnl {
	ctx := c.eClient.Ctx()
	pnlChan := make(chan Pnl)
	ch, unsubscribe := c.pubSub.Subscribe("Pnl")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(pnlChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var pnl Pnl
				if err := Decode(&pnl, msg); err != nil {
					return
				}
				if (account == "" || account == pnl.Account) && (modelCode == "" || modelCode == pnl.ModelCode) {
					pnlChan <- pnl
				}
			}
		}
	}()

	return pnlChan
}

// ReqPnLSingle requests and subscribes the single contract PnL of the
// assigned account.
func (c *Client) ReqPnLSingle(account string, modelCode string, contractID int64) {
	reqID := c.NextID()
	key := Key(account, modelCode, contractID)
	c.state.mu.Lock()
	_, ok := c.state.pnlSingleKey2ReqID[key]
	if ok {
		c.state.mu.Unlock()
		log.Warn().Str("account", account).Str("modelCode", modelCode).Int64("contractID", contractID).Msg("Pnl single request already made")
		return
	}
	c.state.pnlSingleKey2ReqID[key] = reqID
	c.state.reqID2PnlSingle[reqID] = &PnlSingle{Account: account, ModelCode: modelCode, ConID: contractID}
	c.state.mu.Unlock()
	c.eClient.ReqPnLSingle(reqID, account, modelCode, contractID)
}

// CancelPnLSingle cancels the single contract PnL update of the assigned
// account.
func (c *Client) CancelPnLSingle(account string, modelCode string, contractID int64) {
	key := Key(account, modelCode, contractID)
	c.state.mu.Lock()
	reqID, ok := c.state.pnlSingleKey2ReqID[key]
	if !ok {
		c.state.mu.Unlock()
		log.Warn().Str("account", account).Str("modelCode", modelCode).Int64("contractID", contractID).Msg("No pnl single request to cancel")
		return
	}
	delete(c.state.pnlSingleKey2ReqID, key)
	delete(c.state.reqID2PnlSingle, reqID)
	c.state.mu.Unlock()
	c.eClient.CancelPnLSingle(reqID)
}

// PnlSingle returns a slice of PnlSingle values based on the specified
// account, model code and contract ID.
//
// If account is an empty string, it returns PnlSingles for all accounts.
// If modelCode is an empty string, it returns PnlSingles for all model codes.
// If contractID is zero, it returns PnlSingles for all contracts.
func (c *Client) PnlSingle(account string, modelCode string, contractID int64) []PnlSingle {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var pnlSingles []PnlSingle
	for _, pnlSingle := range c.state.reqID2PnlSingle {
		if (account == "" || account == pnlSingle.Account) && (modelCode == "" || modelCode == pnlSingle.ModelCode) && (contractID == 0 || contractID == pnlSingle.ConID) {
			pnlSingles = append(pnlSingles, *pnlSingle)
		}
	}
	return pnlSingles
}

// PnlSingleChan returns a channel that receives a continuous feed of
// PnlSingle updates.
//
// Do NOT close the channel.
func (c *Client) PnlSingleChan(account string, modelCode string, contractID int64) chan PnlSingle {
	ctx := c.eClient.Ctx()
	pnlSingleChan := make(chan PnlSingle)
	ch, unsubscribe := c.pubSub.Subscribe("PnlSingle")
	var once sync.Once

	go func() {
		defer unsubscribe()
		defer func() { once.Do(func() { close(pnlSingleChan) }) }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var pnlSingle PnlSingle
				if err := Decode(&pnlSingle, msg); err != nil {
					return
				}
				if (account == "" || account == pnlSingle.Account) && (modelCode == "" || modelCode == pnlSingle.ModelCode) && (contractID == 0 || contractID == pnlSingle.ConID) {
					pnlSingleChan <- pnlSingle
				}
			}
		}
	}()

	return pnlSingleChan
}

// Trades returns a slice of all trades from this session.
func (c *Client) Trades() []*Trade {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var ts []*Trade
	for _, t := range c.state.trades {
		ts = append(ts, t)
	}
	return ts
}

// OpenTrades returns a slice of all open trades from this session.
func (c *Client) OpenTrades() []*Trade {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var ts []*Trade
	for _, t := range c.state.trades {
		if !t.IsDone() {
			ts = append(ts, t)
		}
	}
	return ts
}

// TradeForOrder returns the trade tracking the given order id.
func (c *Client) TradeForOrder(orderID int64) (*Trade, bool) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	for _, t := range c.state.trades {
		if t.Order != nil && t.Order.OrderID == orderID {
			return t, true
		}
	}
	return nil, false
}

// Orders returns a slice of all orders from this session.
func (c *Client) Orders() []Order {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var os []Order
	for _, t := range c.state.trades {
		os = append(os, *t.Order)
	}
	return os
}

// OpenOrders returns a slice of all open orders from this session.
func (c *Client) OpenOrders() []Order {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var os []Order
	for _, t := range c.state.trades {
		if !t.IsDone() {
			os = append(os, *t.Order)
		}
	}
	return os
}

// OrderStatuses returns the current order statuses keyed by order id.
func (c *Client) OrderStatuses() map[int64]OrderStatus {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	statuses := make(map[int64]OrderStatus)
	for _, t := range c.state.trades {
		status := t.Status()
		statuses[status.OrderID] = status
	}
	return statuses
}

// SymbolOrders returns the trades of this session grouped by contract key.
//
// If symbols are provided only trades on those symbols are returned.
func (c *Client) SymbolOrders(symbol ...string) map[string][]*Trade {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	grouped := make(map[string][]*Trade)
	for _, t := range c.state.trades {
		if t.Contract == nil {
			continue
		}
		if len(symbol) > 0 && !slices.Contains(symbol, t.Contract.Symbol) {
			continue
		}
		key := ContractKey(t.Contract)
		grouped[key] = append(grouped[key], t)
	}
	return grouped
}

// OrderStatusChan returns a channel that receives a continuous feed of order
// status updates.
//
// Do NOT close the channel.
func (c *Client) OrderStatusChan() chan OrderStatus {
	ctx := c.eClient.Ctx()
	orderStatusChan := make(chan OrderStatus)
	ch, unsubscribe := c.pubSub.Subscribe("OrderStatus")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(orderStatusChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var status OrderStatus
				if err := Decode(&status, msg); err != nil {
					return
				}
				orderStatusChan <- status
			}
		}
	}()

	return orderStatusChan
}

// Ticker returns the *Ticker of the provided contract and a bool telling if
// the ticker exists.
func (c *Client) Ticker(contract *Contract) (*Ticker, bool) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	ticker, ok := c.state.tickers[ContractKey(contract)]
	return ticker, ok
}

// Tickers returns a slice of all tickers.
func (c *Client) Tickers() []*Ticker {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var ts []*Ticker
	for _, t := range c.state.tickers {
		ts = append(ts, t)
	}
	return ts
}

// MarketData returns a snapshot of every cached ticker keyed by contract
// key.
func (c *Client) MarketData() map[string]TickerSnapshot {
	c.state.mu.Lock()
	tickers := make([]*Ticker, 0, len(c.state.tickers))
	for _, t := range c.state.tickers {
		tickers = append(tickers, t)
	}
	c.state.mu.Unlock()

	md := make(map[string]TickerSnapshot, len(tickers))
	for _, t := range tickers {
		md[t.Key()] = t.Snapshot()
	}
	return md
}

// MarketDepth returns the order books of the tickers that have depth data,
// keyed by contract key.
func (c *Client) MarketDepth() map[string]DepthSnapshot {
	c.state.mu.Lock()
	tickers := make([]*Ticker, 0, len(c.state.tickers))
	for _, t := range c.state.tickers {
		tickers = append(tickers, t)
	}
	c.state.mu.Unlock()

	depth := make(map[string]DepthSnapshot)
	for _, t := range tickers {
		ds := t.DepthSnapshot()
		if len(ds.Bids) == 0 && len(ds.Asks) == 0 {
			continue
		}
		depth[t.Key()] = ds
	}
	return depth
}

// ReqCurrentTime asks the current system time on the server side.
// A second call within a second will not be answered.
func (c *Client) ReqCurrentTime(ctx context.Context) (currentTime time.Time, err error) {
	ch, unsubscribe := c.pubSub.Subscribe("CurrentTime")
	defer unsubscribe()

	c.eClient.ReqCurrentTime()
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case msg := <-ch:
		if err = Decode(&currentTime, msg); err != nil {
			return time.Time{}, err
		}
		return currentTime, nil
	}
}

// ReqCurrentTimeInMillis asks the current system time in milliseconds on the
// server side.
func (c *Client) ReqCurrentTimeInMillis() (int64, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("CurrentTimeInMillis")
	defer unsubscribe()

	c.eClient.ReqCurrentTimeInMillis()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case msg := <-ch:
		var currentTimeInMillis int64
		if err := Decode(&currentTimeInMillis, msg); err != nil {
			return 0, err
		}
		return currentTimeInMillis, nil
	}
}

// ServerVersion returns the version of the TWS instance to which the API
// application is connected.
func (c *Client) ServerVersion() int {
	return c.eClient.ServerVersion()
}

// SetServerLogLevel sets the log level of the server.
// logLevel can be:
// 1 = SYSTEM
// 2 = ERROR	(default)
// 3 = WARNING
// 4 = INFORMATION
// 5 = DETAIL
func (c *Client) SetServerLogLevel(logLevel int64) {
	c.eClient.SetServerLogLevel(logLevel)
}

// TWSConnectionTime returns the time the API application made a connection
// to TWS.
func (c *Client) TWSConnectionTime() string {
	return c.eClient.TWSConnectionTime()
}

// ReqMktData requests a market data stream. It returns a *Ticker that will
// be updated.
//
// contract contains a description of the Contract for which market data is
// being requested.
// genericTickList is a comma delimited list of generic tick types.
// For snapshot requests use Snapshot().
func (c *Client) ReqMktData(contract *Contract, genericTickList string, mktDataOptions ...TagValue) *Ticker {
	reqID := c.NextID()

	c.state.mu.Lock()
	ticker := c.state.startTicker(reqID, contract, "mktData")
	c.state.mu.Unlock()

	c.eClient.ReqMktData(reqID, contract, genericTickList, false, false, mktDataOptions)

	return ticker
}

// CancelMktData stops the market data stream for the given contract.
//
// Do not use CancelMktData for Snapshot() calls.
func (c *Client) CancelMktData(contract *Contract) {
	c.state.mu.Lock()
	ticker := c.state.tickers[ContractKey(contract)]
	reqID, ok := c.state.endTicker(ticker, "mktData")
	c.state.mu.Unlock()

	if !ok {
		log.Error().Err(errUnknownReqID).Int64("conID", contract.ConID).Msg("<CancelMktData>")
		return
	}

	c.eClient.CancelMktData(reqID)
	log.Debug().Int64("reqID", reqID).Msg("<CancelMktData>")
}

// Snapshot returns a market data snapshot.
//
// contract contains a description of the Contract for which market data is
// being requested.
// regulatorySnapshot: with the US Value Snapshot Bundle for stocks,
// regulatory snapshots are available for 0.01 USD each.
func (c *Client) Snapshot(contract *Contract, regulatorySnapshot ...bool) (*Ticker, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.state.mu.Lock()
	ticker := c.state.startTicker(reqID, contract, "snapshot")
	c.state.mu.Unlock()

	defer func() {
		c.state.mu.Lock()
		c.state.endTicker(ticker, "snapshot")
		c.state.mu.Unlock()
	}()

	regulatory := false
	if len(regulatorySnapshot) > 0 {
		regulatory = regulatorySnapshot[0]
	}

	c.eClient.ReqMktData(reqID, contract, "", true, regulatory, nil)

	var warn error
	for {
		select {
		case <-ctx.Done():
			return ticker, ctx.Err()
		case msg := <-ch:
			if isErrorMsg(msg) {
				e := msg2Error(msg)
				if !errors.Is(e, WarnDelayedMarketData) && !errors.Is(e, WarnPartlyNotSubscribed) {
					return ticker, e
				}
				warn = e
				break
			}
			switch msg {
			case "TickSnapshotEnd":
				return ticker, warn
			default:
				return ticker, errors.New(msg)
			}
		}
	}
}

// ReqMarketDataType changes the market data type.
//
// The API can receive frozen market data from Trader Workstation. Frozen
// market data is the last data recorded in our system. If you use this
// function, you are telling TWS to automatically switch to frozen market
// data after the close, and back to real-time market data before the next
// opening.
// marketDataType:
//
//	1 -> realtime streaming market data
//	2 -> frozen market data
//	3 -> delayed market data
//	4 -> delayed frozen market data
func (c *Client) ReqMarketDataType(marketDataType int64) {
	log.Debug().Int64("marketDataType", marketDataType).Msg("<ReqMarketDataType>")
	c.eClient.ReqMarketDataType(marketDataType)
}

// ReqTickByTickData subscribes to a tick-by-tick data stream and returns the
// *Ticker.
//
// contract is the *Contract you want the subscription for.
// tickType is one of "Last", "AllLast", "BidAsk" or "MidPoint".
// numberOfTicks is the number of ticks or 0 for unlimited.
// ignoreSize ignores bid/ask ticks that only update the size.
// No more than one request can be made for the same instrument within 15
// seconds.
func (c *Client) ReqTickByTickData(contract *Contract, tickType string, numberOfTicks int64, ignoreSize bool) *Ticker {
	reqID := c.NextID()

	c.state.mu.Lock()
	ticker := c.state.startTicker(reqID, contract, tickType)
	c.state.mu.Unlock()

	c.eClient.ReqTickByTickData(reqID, contract, tickType, numberOfTicks, ignoreSize)

	return ticker
}

// CancelTickByTickData unsubscribes from tick-by-tick data for the given
// contract and tick type.
func (c *Client) CancelTickByTickData(contract *Contract, tickType string) error {
	c.state.mu.Lock()
	ticker := c.state.tickers[ContractKey(contract)]
	reqID, ok := c.state.endTicker(ticker, tickType)
	c.state.mu.Unlock()

	if !ok {
		log.Error().Err(errUnknownReqID).Int64("conID", contract.ConID).Msg("<CancelTickByTickData>")
		return errUnknownReqID
	}

	c.eClient.CancelTickByTickData(reqID)
	log.Debug().Int64("reqID", reqID).Msg("<CancelTickByTickData>")
	return nil
}

// MidPoint requests and returns the last mid point.
//
// No more than one request can be made for the same instrument within 15
// seconds.
func (c *Client) MidPoint(contract *Contract) (TickByTickMidPoint, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.eClient.ReqTickByTickData(reqID, contract, "MidPoint", 0, true)
	defer c.eClient.CancelTickByTickData(reqID)

	select {
	case <-ctx.Done():
		return TickByTickMidPoint{}, ctx.Err()
	case msg := <-ch:
		var tbtmp TickByTickMidPoint
		if isErrorMsg(msg) {
			return tbtmp, msg2Error(msg)
		}
		if err := Decode(&tbtmp, msg); err != nil {
			return TickByTickMidPoint{}, err
		}
		return tbtmp, nil
	}
}

// CalculateImpliedVolatility calculates the implied volatility given the
// option price.
func (c *Client) CalculateImpliedVolatility(contract *Contract, optionPrice float64, underPrice float64, impVolOptions ...TagValue) (*TickOptionComputation, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.eClient.CalculateImpliedVolatility(reqID, contract, optionPrice, underPrice, impVolOptions)

	select {
	case <-ctx.Done():
		c.eClient.CancelCalculateImpliedVolatility(reqID)
		return nil, ctx.Err()
	case msg := <-ch:
		if isErrorMsg(msg) {
			return nil, msg2Error(msg)
		}
		items := Split(msg)
		switch items[0] {
		case "OptionComputation":
			var toc *TickOptionComputation
			if err := Decode(&toc, items[1]); err != nil {
				return toc, err
			}
			return toc, nil
		default:
			log.Error().Err(errUnknownItemType).Int64("reqID", reqID).Str("Type", items[0]).Msg("<CalculateImpliedVolatility>")
			return nil, errUnknownItemType
		}
	}
}

// CalculateOptionPrice calculates the price of the option given the
// volatility.
func (c *Client) CalculateOptionPrice(contract *Contract, volatility float64, underPrice float64, optPrcOptions ...TagValue) (*TickOptionComputation, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.eClient.CalculateOptionPrice(reqID, contract, volatility, underPrice, optPrcOptions)

	select {
	case <-ctx.Done():
		c.eClient.CancelCalculateOptionPrice(reqID)
		return nil, ctx.Err()
	case msg := <-ch:
		if isErrorMsg(msg) {
			return nil, msg2Error(msg)
		}
		items := Split(msg)
		switch items[0] {
		case "OptionComputation":
			var toc *TickOptionComputation
			if err := Decode(&toc, items[1]); err != nil {
				return toc, err
			}
			return toc, nil
		default:
			log.Error().Err(errUnknownItemType).Int64("reqID", reqID).Str("Type", items[0]).Msg("<CalculateOptionPrice>")
			return nil, errUnknownItemType
		}
	}
}

// PlaceOrder places a new order or modifies an existing order.
// It returns a *Trade that is kept live updated with status changes, fills,
// etc.
//
// contract is the *Contract to use for the order.
// order contains the details of the order to be placed.
func (c *Client) PlaceOrder(contract *Contract, order *Order) *Trade {
	if order.OrderID == 0 {
		order.OrderID = c.NextID()
	}

	c.eClient.PlaceOrder(order.OrderID, contract, order)

	key := orderKey(order.ClientID, order.OrderID, order.PermID)

	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	trade, ok := c.state.trades[key]
	if ok {
		// modification of an existing order
		if trade.IsDone() {
			log.Error().Int64("orderID", order.OrderID).Msg("try to modify a done trade")
			return trade
		}
		trade.mu.Lock()
		logEntry := TradeLogEntry{
			Time:    time.Now().UTC(),
			Status:  trade.OrderStatus.Status,
			Message: "Modifying order",
		}
		trade.resetAck()
		trade.addLog(logEntry)
		trade.mu.Unlock()
		log.Debug().Int64("orderID", order.OrderID).Bool("new order", false).Msg("<PlaceOrder>")
	} else {
		// new order
		order.ClientID = c.config.ClientID
		trade = NewTrade(contract, order)
		trade.logs[0].Message = "Placing order"
		key = orderKey(order.ClientID, order.OrderID, order.PermID) // clientID is updated
		c.state.trades[key] = trade
		c.state.registerContract(contract)
		log.Debug().Int64("orderID", order.OrderID).Bool("new order", true).Msg("<PlaceOrder>")
	}

	// Listen to errors and update the trade
	go func(orderID int64, trade *Trade) {
		ch, unsubscribe := c.pubSub.Subscribe(orderID)
		defer unsubscribe()
		for {
			select {
			case <-trade.Done():
				return
			case msg := <-ch:
				if !isErrorMsg(msg) {
					continue
				}
				err := msg2Error(msg)
				if err.Code == 200 || err.Code == 201 {
					logEntry := TradeLogEntry{
						Time:      time.Now().UTC(),
						Status:    Inactive,
						Message:   err.Msg,
						ErrorCode: err.Code,
					}
					trade.addLogSafe(logEntry)
					trade.markDoneSafe() // the trade is done only for errors 200 and 201
					return
				}
				logEntry := TradeLogEntry{
					Time:      time.Now().UTC(),
					Status:    trade.Status().Status,
					Message:   err.Msg,
					ErrorCode: err.Code,
				}
				trade.addLogSafe(logEntry)
			}
		}
	}(order.OrderID, trade)

	return trade
}

// CancelOrder cancels the given order.
// An OrderCancel can be passed for manual order time or other cancel
// parameters, the default is NewOrderCancel().
func (c *Client) CancelOrder(order *Order, orderCancel ...OrderCancel) *Trade {
	log.Debug().Int64("orderID", order.OrderID).Msg("<CancelOrder>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	oc := NewOrderCancel()
	if len(orderCancel) > 0 {
		oc = orderCancel[0]
	}

	key := orderKey(order.ClientID, order.OrderID, order.PermID)

	c.state.mu.Lock()
	trade, ok := c.state.trades[key]
	c.state.mu.Unlock()

	if !ok {
		log.Error().Int64("orderID", order.OrderID).Msg("CancelOrder: unknown order")
		return trade
	}

	if trade.IsDone() {
		log.Error().Int64("orderID", order.OrderID).Msg("CancelOrder: try to cancel a done trade")
		return trade
	}

	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("<CancelOrder>")
	case <-trade.Ack():
	}

	c.eClient.CancelOrder(order.OrderID, oc)

	logEntry := TradeLogEntry{
		Time:    time.Now().UTC(),
		Status:  PendingCancel,
		Message: "CancelOrder",
	}

	trade.mu.Lock()
	trade.addLog(logEntry)
	trade.OrderStatus.Status = PendingCancel
	trade.mu.Unlock()

	return trade
}

// ReqGlobalCancel cancels all open orders globally. It cancels both API and
// TWS open orders.
func (c *Client) ReqGlobalCancel() {
	log.Debug().Msg("<ReqGlobalCancel>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	for _, trade := range c.OpenTrades() {
		select {
		case <-ctx.Done():
			log.Error().Err(ctx.Err()).Msg("<ReqGlobalCancel>")
		case <-trade.Ack():
		}
	}

	c.eClient.ReqGlobalCancel(NewOrderCancel())

	for _, trade := range c.OpenTrades() {
		logEntry := TradeLogEntry{
			Time:    time.Now().UTC(),
			Status:  PendingCancel,
			Message: "GlobalCancel",
		}

		trade.mu.Lock()
		trade.addLog(logEntry)
		trade.OrderStatus.Status = PendingCancel
		trade.mu.Unlock()
	}
}

// ReqOpenOrders requests the open orders that were placed from this client.
// The client with a clientId of 0 will also receive the TWS-owned open
// orders. These orders will be associated with the client and a new orderId
// will be generated. This association will persist over multiple API and TWS
// sessions.
func (c *Client) ReqOpenOrders() error {
	log.Debug().Msg("<ReqOpenOrders>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("OpenOrdersEnd")
	defer unsubscribe()

	c.eClient.ReqOpenOrders()

	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("<ReqOpenOrders>")
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// ReqAutoOpenOrders requests that newly created TWS orders be implicitly
// associated with the client. This request can only be made from a client
// with clientId of 0.
func (c *Client) ReqAutoOpenOrders(autoBind bool) {
	log.Debug().Msg("<ReqAutoOpenOrders>")
	c.eClient.ReqAutoOpenOrders(autoBind)
}

// ReqAllOpenOrders requests the open orders placed from all clients and also
// from TWS. No association is made between the returned orders and the
// requesting client.
func (c *Client) ReqAllOpenOrders() error {
	log.Debug().Msg("<ReqAllOpenOrders>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("OpenOrdersEnd")
	defer unsubscribe()

	c.eClient.ReqAllOpenOrders()

	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("<ReqAllOpenOrders>")
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// ReqCompletedOrders requests the completed orders.
// If the apiOnly parameter is true, then only completed orders placed from
// the API are requested.
func (c *Client) ReqCompletedOrders(apiOnly bool) error {
	log.Debug().Bool("apiOnly", apiOnly).Msg("<ReqCompletedOrders>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("CompletedOrdersEnd")
	defer unsubscribe()

	c.eClient.ReqCompletedOrders(apiOnly)

	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("<ReqCompletedOrders>")
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// ReqAccountUpdates starts receiving account values, portfolio items and
// the last update time of the given account.
func (c *Client) ReqAccountUpdates(subscribe bool, accountName string) error {
	log.Debug().Msg("<ReqAccountUpdates>")

	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("AccountDownloadEnd")
	defer unsubscribe()

	c.eClient.ReqAccountUpdates(subscribe, accountName)

	if !subscribe {
		return nil
	}

	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("<ReqAccountUpdates>")
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// ReqAccountSummary requests the data that appears on the TWS Account
// Window Summary tab.
//
// groupName is set to "All" to return account summary data for all accounts,
// or to a specific Advisor Account Group name that has already been created
// in TWS Global Configuration.
// tags is a comma separated list of account tags, such as "NetLiquidation"
// or "$LEDGER:ALL".
func (c *Client) ReqAccountSummary(groupName string, tags string) (AccountSummary, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.eClient.ReqAccountSummary(reqID, groupName, tags)
	var as AccountSummary
	for {
		select {
		case <-ctx.Done():
			c.eClient.CancelAccountSummary(reqID)
			return as, ctx.Err()
		case msg := <-ch:
			switch msg {
			case "end":
				return as, nil
			default:
				var av AccountValue
				if err := Decode(&av, msg); err != nil {
					return as, err
				}
				as = append(as, av)
			}
		}
	}
}

// Executions returns a slice of all the executions from this session.
// To get executions from previous sessions of the day call ReqExecutions.
func (c *Client) Executions(execFilter ...*ExecutionFilter) []Execution {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var es []Execution
	for _, f := range c.state.fills {
		if len(execFilter) == 0 {
			es = append(es, *f.Execution)
			continue
		}
		if f.Matches(execFilter[0]) {
			es = append(es, *f.Execution)
		}
	}
	return es
}

// ReqExecutions downloads the execution reports that meet the filter
// criteria and returns them.
// To view executions beyond the past 24 hours, open the Trade Log in TWS
// and, while the Trade Log is displayed, request the executions again from
// the API.
// NOTE: the time format in the filter must be "yyyymmdd-hh:mm:ss".
func (c *Client) ReqExecutions(execFilter ...*ExecutionFilter) ([]Execution, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 100)
	defer unsubscribe()

	ef := ibapi.NewExecutionFilter()
	ef.ClientID = c.config.ClientID
	if len(execFilter) > 0 {
		ef = execFilter[0]
	}

	c.eClient.ReqExecutions(reqID, ef)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-ch:
			if isErrorMsg(msg) {
				return nil, msg2Error(msg)
			}
			switch msg {
			case "end":
				return c.Executions(execFilter...), nil
			default:
				/// Do nothing
			}
		}
	}
}

// Fills returns a slice of all the fills from this session.
// To get fills from previous sessions of the day call ReqFills.
func (c *Client) Fills(execFilter ...*ExecutionFilter) []Fill {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	var fs []Fill
	for _, f := range c.state.fills {
		if len(execFilter) == 0 {
			fs = append(fs, *f)
			continue
		}
		if f.Matches(execFilter[0]) {
			fs = append(fs, *f)
		}
	}
	return fs
}

// ReqFills downloads the execution reports that meet the filter criteria and
// returns them together with their contracts and commission reports.
func (c *Client) ReqFills(execFilter ...*ExecutionFilter) ([]Fill, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 100)
	defer unsubscribe()

	ef := ibapi.NewExecutionFilter()
	ef.ClientID = c.config.ClientID
	if len(execFilter) > 0 {
		ef = execFilter[0]
	}

	c.eClient.ReqExecutions(reqID, ef)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-ch:
			if isErrorMsg(msg) {
				return nil, msg2Error(msg)
			}
			switch msg {
			case "end":
				return c.Fills(execFilter...), nil
			default:
				/// Do nothing
			}
		}
	}
}

// FillChan returns a channel that receives a continuous feed of fills.
//
// Do NOT close the channel.
func (c *Client) FillChan() chan Fill {
	ctx := c.eClient.Ctx()
	fillChan := make(chan Fill)
	ch, unsubscribe := c.pubSub.Subscribe("Fill")
	var once sync.Once

	go func() {
		defer func() {
			unsubscribe()
			once.Do(func() { close(fillChan) })
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var fill Fill
				if err := Decode(&fill, msg); err != nil {
					return
				}
				fillChan <- fill
			}
		}
	}()

	return fillChan
}

// ReqContractDetails downloads all details for a particular underlying.
// If the returned list is empty then the contract is not known.
// If the list has multiple values then the contract is ambiguous.
func (c *Client) ReqContractDetails(contract *Contract) ([]ContractDetails, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 50)
	defer unsubscribe()

	c.eClient.ReqContractDetails(reqID, contract)

	var cds []ContractDetails
	for {
		select {
		case <-ctx.Done():
			return cds, ctx.Err()
		case msg := <-ch:
			if isErrorMsg(msg) {
				return cds, msg2Error(msg)
			}
			switch msg {
			case "end":
				c.state.mu.Lock()
				c.state.cacheContractDetails(ContractKey(contract), cds)
				c.state.mu.Unlock()
				return cds, nil
			default:
				var cd ContractDetails
				if err := Decode(&cd, msg); err != nil {
					return cds, err
				}
				cds = append(cds, cd)
			}
		}
	}
}

// CachedContractDetails returns the details last downloaded for the given
// contract, without issuing a new request.
func (c *Client) CachedContractDetails(contract *Contract) []ContractDetails {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return slices.Clone(c.state.contractDetails[ContractKey(contract)])
}

// Contracts returns the contracts seen by this session, requested or
// received, keyed by contract key.
func (c *Client) Contracts() map[string]*Contract {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	contracts := make(map[string]*Contract, len(c.state.contracts))
	for key, contract := range c.state.contracts {
		contracts[key] = contract
	}
	return contracts
}

// RegisterContract adds the contract to the contract registry without
// requesting anything.
func (c *Client) RegisterContract(contract *Contract) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.registerContract(contract)
}

// CreateContract builds a contract from its attributes, registers it under
// its contract key and qualifies it against the contract database.
func (c *Client) CreateContract(secType, symbol, exchange, currency, lastTradeDateOrContractMonth string, strike float64, right string) (*Contract, error) {
	contract := CreateContract(secType, symbol, exchange, currency, lastTradeDateOrContractMonth, strike, right)
	c.RegisterContract(contract)
	if err := c.QualifyContract(contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// QualifyContract qualifies the given contracts by retrieving their details
// and completing them in place. It returns an error if any of the contracts
// is unknown or ambiguous (ErrAmbiguousContract).
//
// Contract details are fetched in parallel.
func (c *Client) QualifyContract(contracts ...*Contract) error {
	var wg sync.WaitGroup
	errChan := make(chan error, len(contracts))
	doneChan := make(chan struct{})

	for _, contract := range contracts {
		wg.Add(1)
		go func(contract *Contract) {
			defer wg.Done()

			cds, err := c.ReqContractDetails(contract)
			if err != nil {
				errChan <- err
				return
			}
			if len(cds) == 0 {
				err := IBError{Code: 200, Msg: "No security definition has been found for the request"}
				log.Error().Err(err).Str("symbol", contract.Symbol).Msg("QualifyContract")
				errChan <- err
				return
			}
			if len(cds) > 1 {
				log.Error().Err(ErrAmbiguousContract).Str("symbol", contract.Symbol).Msg("QualifyContract")
				errChan <- ErrAmbiguousContract
				return
			}

			*contract = cds[0].Contract
		}(contract)
	}

	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		close(errChan)
		if len(errChan) > 0 {
			return <-errChan
		}
	case err := <-errChan:
		return err
	}

	return nil
}

// ReqMktDepthExchanges requests the exchanges eligible for market depth.
func (c *Client) ReqMktDepthExchanges() ([]DepthMktDataDescription, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	ch, unsubscribe := c.pubSub.Subscribe("MktDepthExchanges")
	defer unsubscribe()

	c.eClient.ReqMktDepthExchanges()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-ch:
		var dmdds []DepthMktDataDescription
		if err := Decode(&dmdds, msg); err != nil {
			return nil, err
		}
		return dmdds, nil
	}
}

// ReqMktDepth requests the market depth (order book) for a specific
// contract. It returns once the first depth update arrived, so the returned
// ticker carries a book.
//
// Note this request must be direct-routed to an exchange and not
// smart-routed.
// numRows specifies the number of market depth rows to return.
// isSmartDepth if true consolidates the order book across exchanges.
func (c *Client) ReqMktDepth(contract *Contract, numRows int, isSmartDepth bool, mktDepthOptions ...TagValue) (*Ticker, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.state.mu.Lock()
	ticker := c.state.startTicker(reqID, contract, "mktDepth")
	c.state.mu.Unlock()

	c.eClient.ReqMktDepth(reqID, contract, numRows, isSmartDepth, mktDepthOptions)

	cancelMktDepth := func() {
		c.state.mu.Lock()
		c.state.endTicker(ticker, "mktDepth")
		c.state.mu.Unlock()
		c.eClient.CancelMktDepth(reqID, isSmartDepth)
	}

	select {
	case <-ctx.Done():
		cancelMktDepth()
		return nil, ctx.Err()
	case msg := <-ch:
		if isErrorMsg(msg) {
			cancelMktDepth()
			return nil, msg2Error(msg)
		}
		return ticker, nil
	}
}

// CancelMktDepth cancels market depth updates.
func (c *Client) CancelMktDepth(contract *Contract, isSmartDepth bool) error {
	c.state.mu.Lock()
	ticker := c.state.tickers[ContractKey(contract)]
	reqID, ok := c.state.endTicker(ticker, "mktDepth")
	c.state.mu.Unlock()

	if !ok {
		log.Error().Err(errUnknownReqID).Int64("conID", contract.ConID).Msg("<CancelMktDepth>")
		return errUnknownReqID
	}

	c.eClient.CancelMktDepth(reqID, isSmartDepth)
	log.Debug().Int64("reqID", reqID).Msg("<CancelMktDepth>")
	return nil
}

// ReqHistoricalData requests historical bars and streams them on the
// returned channel until the history is delivered.
//
// endDateTime is the query end date and time in the format
// "yyyymmdd HH:mm:ss ttt", where "ttt" is an optional time zone, or the
// empty string for now.
// duration is an integer followed by a space and a unit, "60 S", "30 D",
// "13 W", "6 M", "10 Y".
// barSize is one of the fixed bar sizes, "1 min", "1 hour", "1 day"...
// whatToShow determines the type of data, "TRADES", "MIDPOINT", "BID",
// "ASK", "BID_ASK"...
// useRTH limits the data to regular trading hours.
// formatDate is 1 for "yyyymmdd HH:mm:ss" dates, 2 for unix timestamps.
//
// Do NOT close the channel.
func (c *Client) ReqHistoricalData(contract *Contract, endDateTime string, duration string, barSize string, whatToShow string, useRTH bool, formatDate int, chartOptions ...TagValue) (chan Bar, CancelFunc) {
	return c.reqHistoricalData(contract, endDateTime, duration, barSize, whatToShow, useRTH, formatDate, false, chartOptions...)
}

// ReqHistoricalDataUpToDate requests historical bars and keeps streaming
// updates on the returned channel until cancelled.
//
// Do NOT close the channel.
func (c *Client) ReqHistoricalDataUpToDate(contract *Contract, duration string, barSize string, whatToShow string, useRTH bool, formatDate int, chartOptions ...TagValue) (chan Bar, CancelFunc) {
	return c.reqHistoricalData(contract, "", duration, barSize, whatToShow, useRTH, formatDate, true, chartOptions...)
}

func (c *Client) reqHistoricalData(contract *Contract, endDateTime string, duration string, barSize string, whatToShow string, useRTH bool, formatDate int, keepUpToDate bool, chartOptions ...TagValue) (chan Bar, CancelFunc) {
	ctx := c.eClient.Ctx()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 100)

	c.eClient.ReqHistoricalData(reqID, contract, endDateTime, duration, barSize, whatToShow, useRTH, formatDate, keepUpToDate, chartOptions)

	barChan := make(chan Bar, 100)

	cancel := func() { c.eClient.CancelHistoricalData(reqID) }

	closeChans := func() {
		unsubscribe()
		// drain then close
		for {
			select {
			case _, ok := <-barChan:
				if !ok {
					return
				}
			default:
				close(barChan)
				return
			}
		}
	}

	go func() {
		defer closeChans()
		for {
			select {
			case <-ctx.Done():
				log.Error().Err(ctx.Err()).Int64("reqID", reqID).Msg("<ReqHistoricalData>")
				if c.ErrorCallback != nil {
					c.ErrorCallback(ctx.Err())
				}
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if isErrorMsg(msg) {
					err := msg2Error(msg)
					if err.Code == 161 || err.Code == 162 {
						log.Warn().Err(err).Int64("reqID", reqID).Msg("<ReqHistoricalData>")
					} else {
						log.Error().Err(err).Int64("reqID", reqID).Msg("<ReqHistoricalData>")
						if c.ErrorCallback != nil {
							c.ErrorCallback(err)
						}
					}
					return
				}
				items := Split(msg)
				switch items[0] {
				case "HistoricalDataEnd":
					if !keepUpToDate {
						log.Info().Str("symbol", contract.Symbol).Str("start date", items[1]).Str("end date", items[2]).Msg("<ReqHistoricalData> completed")
						return
					}
				case "HistoricalData", "HistoricalDataUpdate":
					var bar Bar
					if err := Decode(&bar, items[1]); err != nil {
						log.Error().Err(err).Int64("reqID", reqID).Msg("<ReqHistoricalData>")
						return
					}
					barChan <- bar
				default:
					log.Error().Err(errUnknownItemType).Int64("reqID", reqID).Str("Type", items[0]).Msg("<ReqHistoricalData>")
					return
				}
			}
		}
	}()

	return barChan, cancel
}

// ReqHeadTimeStamp retrieves the earliest available historical data
// timestamp for a contract.
//
// whatToShow is the type of data, "TRADES", "MIDPOINT", "BID" or "ASK".
// useRTH queries only regular trading hours data when true.
// formatDate determines the format of returned dates (1: utc, 2: local).
func (c *Client) ReqHeadTimeStamp(contract *Contract, whatToShow string, useRTH bool, formatDate int) (time.Time, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID)
	defer unsubscribe()

	c.eClient.ReqHeadTimeStamp(reqID, contract, whatToShow, useRTH, formatDate)

	select {
	case <-ctx.Done():
		c.eClient.CancelHeadTimeStamp(reqID)
		return time.Time{}, ctx.Err()
	case msg := <-ch:
		if isErrorMsg(msg) {
			return time.Time{}, msg2Error(msg)
		}
		t, err := ParseIBTime(msg)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
}

// ReqRealTimeBars requests five second bars and streams them on the
// returned channel until cancelled.
//
// barSize is being ignored by the server, bars have a fixed five second
// duration.
// whatToShow is "TRADES", "MIDPOINT", "BID" or "ASK".
//
// Do NOT close the channel.
func (c *Client) ReqRealTimeBars(contract *Contract, barSize int, whatToShow string, useRTH bool, realTimeBarsOptions ...TagValue) (chan RealTimeBar, CancelFunc) {
	ctx := c.eClient.Ctx()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 100)

	c.eClient.ReqRealTimeBars(reqID, contract, barSize, whatToShow, useRTH, realTimeBarsOptions)

	rtBarChan := make(chan RealTimeBar, 100)

	cancel := func() {
		c.eClient.CancelRealTimeBars(reqID)
		unsubscribe()
		// drain then close
		for {
			select {
			case _, ok := <-rtBarChan:
				if !ok {
					return
				}
			default:
				close(rtBarChan)
				return
			}
		}
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				log.Error().Err(ctx.Err()).Int64("reqID", reqID).Msg("<ReqRealTimeBars>")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if isErrorMsg(msg) {
					log.Error().Err(msg2Error(msg)).Int64("reqID", reqID).Msg("<ReqRealTimeBars>")
					return
				}
				var bar RealTimeBar
				if err := Decode(&bar, msg); err != nil {
					log.Error().Err(err).Int64("reqID", reqID).Msg("<ReqRealTimeBars>")
					return
				}
				rtBarChan <- bar
			}
		}
	}()

	return rtBarChan, cancel
}

// ReqSecDefOptParams requests security definition option parameters, the
// option chains of an underlying.
//
// futFopExchange is the exchange on which the returned options are trading.
// It can be set to the empty string for all exchanges.
// underlyingSecurityType is the type of the underlying security, i.e. "STK".
// underlyingContractID is the contract ID of the underlying security.
func (c *Client) ReqSecDefOptParams(underlyingSymbol string, futFopExchange string, underlyingSecurityType string, underlyingContractID int64) ([]OptionChain, error) {
	ctx, cancel := context.WithTimeout(c.eClient.Ctx(), c.config.Timeout)
	defer cancel()

	reqID := c.NextID()

	ch, unsubscribe := c.pubSub.Subscribe(reqID, 50)
	defer unsubscribe()

	c.eClient.ReqSecDefOptParams(reqID, underlyingSymbol, futFopExchange, underlyingSecurityType, underlyingContractID)

	var ocs []OptionChain
	for {
		select {
		case <-ctx.Done():
			return ocs, ctx.Err()
		case msg := <-ch:
			if isErrorMsg(msg) {
				return ocs, msg2Error(msg)
			}
			switch msg {
			case "end":
				return ocs, nil
			default:
				var oc OptionChain
				if err := Decode(&oc, msg); err != nil {
					return ocs, err
				}
				ocs = append(ocs, oc)
			}
		}
	}
}
