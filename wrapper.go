package ezib

import (
	"slices"
	"time"

	"github.com/scmhub/ibapi"
)

// ezWrapper receives the TWS/IBG callbacks and turns them into state cache
// updates and pubsub messages. It embeds the ibapi default wrapper so that
// callbacks it does not care about keep their default logging behaviour.
//
// Message flow is always the same: update the state first, then publish, so
// that a subscriber waking up on a message finds the cache up to date.
type ezWrapper struct {
	ibapi.Wrapper

	state  *ezState
	pubSub *PubSub

	// onError receives errors that cannot be matched to a pending request.
	onError func(IBError)
}

func newEZWrapper(state *ezState, pubSub *PubSub) *ezWrapper {
	return &ezWrapper{state: state, pubSub: pubSub}
}

// tickerByReqID returns the ticker subscribed under reqID, nil if the
// subscription is gone.
func (w *ezWrapper) tickerByReqID(reqID int64) *Ticker {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()
	return w.state.reqID2Ticker[reqID]
}

func (w *ezWrapper) NextValidID(reqID int64) {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()
	if reqID > w.state.nextValidID {
		w.state.nextValidID = reqID
	}
	log.Debug().Int64("reqID", reqID).Msg("<NextValidID>")
}

func (w *ezWrapper) ManagedAccounts(accountsList []string) {
	w.state.mu.Lock()
	w.state.accounts = slices.Clone(accountsList)
	w.state.mu.Unlock()
	log.Debug().Strs("accounts", accountsList).Msg("<ManagedAccounts>")
}

func (w *ezWrapper) ConnectionClosed() {
	log.Warn().Msg("<ConnectionClosed>")
}

// Error routes an incoming error to the request that caused it, or to the
// unsolicited error hook when reqID is not set. Purely informational codes
// are logged at info level and go no further.
func (w *ezWrapper) Error(reqID TickerID, errorTime int64, errCode int64, errString string, advancedOrderRejectJson string) {
	if isBenignErrorCode(errCode) {
		log.Info().Int64("code", errCode).Str("msg", errString).Msg("IB notification")
		return
	}
	e := IBError{Code: errCode, Msg: errString}
	logEvent := log.Warn().Int64("reqID", reqID).Int64("code", errCode).Str("msg", errString)
	if advancedOrderRejectJson != "" {
		logEvent = logEvent.Str("advancedOrderRejectJson", advancedOrderRejectJson)
	}
	logEvent.Msg("<Error>")
	if reqID >= 0 {
		w.pubSub.Publish(reqID, errorMsg(e))
		return
	}
	if w.onError != nil {
		w.onError(e)
	}
}

// Market data.

func (w *ezWrapper) TickPrice(reqID TickerID, tickType ibapi.TickType, price float64, attrib ibapi.TickAttrib) {
	ticker := w.tickerByReqID(reqID)
	if ticker == nil {
		return
	}
	ticker.applyTickPrice(tickType, price)
}

func (w *ezWrapper) TickSize(reqID TickerID, tickType ibapi.TickType, size Decimal) {
	ticker := w.tickerByReqID(reqID)
	if ticker == nil {
		return
	}
	ticker.applyTickSize(tickType, size.Float())
}

func (w *ezWrapper) TickGeneric(reqID TickerID, tickType ibapi.TickType, value float64) {
	ticker := w.tickerByReqID(reqID)
	if ticker == nil {
		return
	}
	ticker.applyTickGeneric(tickType, value)
}

func (w *ezWrapper) TickOptionComputation(reqID TickerID, tickType ibapi.TickType, tickAttrib int64, impliedVol float64, delta float64, optPrice float64, pvDividend float64, gamma float64, vega float64, theta float64, undPrice float64) {
	toc := TickOptionComputation{
		TickAttrib: tickAttrib,
		ImpliedVol: impliedVol,
		Delta:      delta,
		OptPrice:   optPrice,
		PvDividend: pvDividend,
		Gamma:      gamma,
		Vega:       vega,
		Theta:      theta,
		UndPrice:   undPrice,
	}
	if ticker := w.tickerByReqID(reqID); ticker != nil {
		ticker.applyGreeks(tickType, toc)
	}
	w.pubSub.Publish(reqID, Join("OptionComputation", Encode(toc)))
}

func (w *ezWrapper) TickSnapshotEnd(reqID int64) {
	w.pubSub.Publish(reqID, "TickSnapshotEnd")
}

func (w *ezWrapper) UpdateMktDepth(reqID TickerID, position int64, operation int64, side int64, price float64, size Decimal) {
	if ticker := w.tickerByReqID(reqID); ticker != nil {
		ticker.applyDepth(position, "", operation, side, price, size.Float())
	}
	w.pubSub.Publish(reqID, "MktDepth")
}

func (w *ezWrapper) UpdateMktDepthL2(reqID TickerID, position int64, marketMaker string, operation int64, side int64, price float64, size Decimal, isSmartDepth bool) {
	if ticker := w.tickerByReqID(reqID); ticker != nil {
		ticker.applyDepth(position, marketMaker, operation, side, price, size.Float())
	}
	w.pubSub.Publish(reqID, "MktDepth")
}

func (w *ezWrapper) TickByTickAllLast(reqID int64, tickType int64, t int64, price float64, size Decimal, tickAttribLast ibapi.TickAttribLast, exchange string, specialConditions string) {
	if ticker := w.tickerByReqID(reqID); ticker != nil {
		ticker.applyTickByTick(price, size.Float(), time.Unix(t, 0).UTC())
	}
	tbt := TickByTickAllLast{
		Time:              t,
		TickType:          tickType,
		Price:             price,
		Size:              size.Float(),
		PastLimit:         tickAttribLast.PastLimit,
		Unreported:        tickAttribLast.Unreported,
		Exchange:          exchange,
		SpecialConditions: specialConditions,
	}
	w.pubSub.Publish(reqID, Encode(tbt))
}

func (w *ezWrapper) TickByTickBidAsk(reqID int64, t int64, bidPrice float64, askPrice float64, bidSize Decimal, askSize Decimal, tickAttribBidAsk ibapi.TickAttribBidAsk) {
	if ticker := w.tickerByReqID(reqID); ticker != nil {
		ticker.applyTickByTickBidAsk(bidPrice, askPrice, bidSize.Float(), askSize.Float(), time.Unix(t, 0).UTC())
	}
	tbt := TickByTickBidAsk{
		Time:        t,
		BidPrice:    bidPrice,
		AskPrice:    askPrice,
		BidSize:     bidSize.Float(),
		AskSize:     askSize.Float(),
		BidPastLow:  tickAttribBidAsk.BidPastLow,
		AskPastHigh: tickAttribBidAsk.AskPastHigh,
	}
	w.pubSub.Publish(reqID, Encode(tbt))
}

func (w *ezWrapper) TickByTickMidPoint(reqID int64, t int64, midPoint float64) {
	w.pubSub.Publish(reqID, Encode(TickByTickMidPoint{Time: t, MidPoint: midPoint}))
}

func (w *ezWrapper) MktDepthExchanges(depthMktDataDescriptions []DepthMktDataDescription) {
	w.pubSub.Publish("MktDepthExchanges", Encode(depthMktDataDescriptions))
}

// Orders.

func (w *ezWrapper) OrderStatus(orderID OrderID, status string, filled Decimal, remaining Decimal, avgFillPrice float64, permID int64, parentID int64, lastFillPrice float64, clientID int64, whyHeld string, mktCapPrice float64) {
	orderStatus := OrderStatus{
		OrderID:       orderID,
		Status:        status,
		Filled:        filled.Float(),
		Remaining:     remaining.Float(),
		AvgFillPrice:  avgFillPrice,
		PermID:        permID,
		ParentID:      parentID,
		LastFillPrice: lastFillPrice,
		ClientID:      clientID,
		WhyHeld:       whyHeld,
		MktCapPrice:   mktCapPrice,
	}

	w.state.mu.Lock()
	key := orderKey(clientID, orderID, permID)
	trade, ok := w.state.trades[key]
	if !ok {
		// Status for an order placed outside this session.
		order := ibapi.NewOrder()
		order.OrderID = orderID
		order.ClientID = clientID
		order.PermID = permID
		trade = NewTrade(&Contract{}, order, orderStatus)
		w.state.trades[key] = trade
	}
	w.state.mu.Unlock()

	trade.mu.Lock()
	prevStatus := trade.OrderStatus.Status
	trade.OrderStatus = orderStatus
	trade.Order.PermID = permID
	trade.ack()
	if status != prevStatus {
		trade.addLog(TradeLogEntry{Time: time.Now().UTC(), Status: status})
	}
	if isDoneStatus(status) {
		trade.markDone()
	}
	trade.mu.Unlock()

	msg := Encode(orderStatus)
	w.pubSub.Publish(orderID, msg)
	w.pubSub.Publish("OrderStatus", msg)
}

func (w *ezWrapper) OpenOrder(orderID OrderID, contract *Contract, order *Order, orderState *OrderState) {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	key := orderKey(order.ClientID, order.OrderID, order.PermID)
	if trade, ok := w.state.trades[key]; ok {
		// The server copy carries the permID assigned at submission.
		trade.mu.Lock()
		trade.Order.PermID = order.PermID
		trade.OrderStatus.PermID = order.PermID
		trade.mu.Unlock()
	} else {
		orderStatus := OrderStatus{
			OrderID:  order.OrderID,
			Status:   orderState.Status,
			PermID:   order.PermID,
			ClientID: order.ClientID,
		}
		w.state.trades[key] = NewTrade(contract, order, orderStatus)
	}
	w.state.registerContract(contract)
}

func (w *ezWrapper) OpenOrderEnd() {
	w.pubSub.Publish("OpenOrdersEnd", "end")
}

func (w *ezWrapper) CompletedOrder(contract *Contract, order *Order, orderState *OrderState) {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	// Completed orders come without an order id, orderKey falls back to permID.
	key := orderKey(order.ClientID, order.OrderID, order.PermID)
	if _, ok := w.state.trades[key]; ok {
		return
	}
	orderStatus := OrderStatus{
		OrderID:  order.OrderID,
		Status:   orderState.Status,
		PermID:   order.PermID,
		ClientID: order.ClientID,
	}
	trade := NewTrade(contract, order, orderStatus)
	trade.markDoneSafe()
	w.state.trades[key] = trade
	w.state.registerContract(contract)
}

func (w *ezWrapper) CompletedOrdersEnd() {
	w.pubSub.Publish("CompletedOrdersEnd", "end")
}

// Executions.

func (w *ezWrapper) ExecDetails(reqID int64, contract *Contract, execution *Execution) {
	fill := &Fill{Contract: contract, Execution: execution, Time: time.Now().UTC()}
	if t, err := ParseIBTime(execution.Time); err == nil {
		fill.Time = t
	}

	w.state.mu.Lock()
	fill = w.state.addFill(fill)
	w.state.registerContract(contract)
	w.state.mu.Unlock()

	msg := Encode(*fill)
	w.pubSub.Publish("Fill", msg)
	if reqID >= 0 {
		w.pubSub.Publish(reqID, msg)
	}
}

func (w *ezWrapper) ExecDetailsEnd(reqID int64) {
	w.pubSub.Publish(reqID, "end")
}

func (w *ezWrapper) CommissionAndFeesReport(commissionAndFeesReport CommissionAndFeesReport) {
	w.state.mu.Lock()
	w.state.commissionAndFeesReport(commissionAndFeesReport)
	w.state.mu.Unlock()
}

// Account and portfolio.

func (w *ezWrapper) UpdateAccountValue(tag string, val string, currency string, accountName string) {
	av := AccountValue{Account: accountName, Tag: tag, Value: val, Currency: currency}
	w.state.mu.Lock()
	w.state.updateAccountValue(av)
	w.state.mu.Unlock()
	w.pubSub.Publish("AccountValue", Encode(av))
}

func (w *ezWrapper) UpdatePortfolio(contract *Contract, position Decimal, marketPrice float64, marketValue float64, averageCost float64, unrealizedPNL float64, realizedPNL float64, accountName string) {
	item := PortfolioItem{
		Account:       accountName,
		Contract:      contract,
		Position:      position.Float(),
		MarketPrice:   marketPrice,
		MarketValue:   marketValue,
		AverageCost:   averageCost,
		UnrealizedPNL: unrealizedPNL,
		RealizedPNL:   realizedPNL,
	}
	w.state.mu.Lock()
	w.state.updatePortfolio(item)
	w.state.mu.Unlock()
	w.pubSub.Publish("PortfolioItem", Encode(item))
}

func (w *ezWrapper) UpdateAccountTime(timeStamp string) {
	w.state.mu.Lock()
	w.state.updateAccountTime = timeStamp
	w.state.mu.Unlock()
}

func (w *ezWrapper) AccountDownloadEnd(accountName string) {
	w.pubSub.Publish("AccountDownloadEnd", accountName)
}

func (w *ezWrapper) AccountSummary(reqID int64, account string, tag string, value string, currency string) {
	av := AccountValue{Account: account, Tag: tag, Value: value, Currency: currency}
	w.state.mu.Lock()
	w.state.updateAccountSummary(av)
	w.state.mu.Unlock()
	w.pubSub.Publish(reqID, Encode(av))
}

func (w *ezWrapper) AccountSummaryEnd(reqID int64) {
	w.pubSub.Publish(reqID, "end")
}

func (w *ezWrapper) Position(account string, contract *Contract, position Decimal, avgCost float64) {
	pos := Position{Account: account, Contract: contract, Position: position.Float(), AvgCost: avgCost}
	w.state.mu.Lock()
	w.state.updatePosition(pos)
	w.state.registerContract(contract)
	w.state.mu.Unlock()
	w.pubSub.Publish("Position", Encode(pos))
}

func (w *ezWrapper) PositionEnd() {
	w.pubSub.Publish("PositionEnd", "end")
}

func (w *ezWrapper) Pnl(reqID int64, dailyPnL float64, unrealizedPnL float64, realizedPnL float64) {
	w.state.mu.Lock()
	pnl, ok := w.state.reqID2Pnl[reqID]
	if !ok {
		w.state.mu.Unlock()
		log.Debug().Int64("reqID", reqID).Msg("pnl for unknown request")
		return
	}
	pnl.DailyPnL = dailyPnL
	pnl.UnrealizedPnL = unrealizedPnL
	pnl.RealizedPnL = realizedPnL
	msg := Encode(*pnl)
	w.state.mu.Unlock()
	w.pubSub.Publish("Pnl", msg)
}

func (w *ezWrapper) PnlSingle(reqID int64, pos Decimal, dailyPnL float64, unrealizedPnL float64, realizedPnL float64, value float64) {
	w.state.mu.Lock()
	pnlSingle, ok := w.state.reqID2PnlSingle[reqID]
	if !ok {
		w.state.mu.Unlock()
		log.Debug().Int64("reqID", reqID).Msg("pnl single for unknown request")
		return
	}
	pnlSingle.Position = pos.Float()
	pnlSingle.DailyPnL = dailyPnL
	pnlSingle.UnrealizedPnL = unrealizedPnL
	pnlSingle.RealizedPnL = realizedPnL
	pnlSingle.Value = value
	msg := Encode(*pnlSingle)
	w.state.mu.Unlock()
	w.pubSub.Publish("PnlSingle", msg)
}

// Contracts.

func (w *ezWrapper) ContractDetails(reqID int64, contractDetails *ContractDetails) {
	w.pubSub.Publish(reqID, Encode(contractDetails))
}

func (w *ezWrapper) BondContractDetails(reqID int64, contractDetails *ContractDetails) {
	w.pubSub.Publish(reqID, Encode(contractDetails))
}

func (w *ezWrapper) ContractDetailsEnd(reqID int64) {
	w.pubSub.Publish(reqID, "end")
}

func (w *ezWrapper) SecurityDefinitionOptionParameter(reqID int64, exchange string, underlyingConID int64, tradingClass string, multiplier string, expirations []string, strikes []float64) {
	chain := OptionChain{
		Exchange:        exchange,
		UnderlyingConID: underlyingConID,
		TradingClass:    tradingClass,
		Multiplier:      multiplier,
		Expirations:     expirations,
		Strikes:         strikes,
	}
	w.pubSub.Publish(reqID, Encode(chain))
}

func (w *ezWrapper) SecurityDefinitionOptionParameterEnd(reqID int64) {
	w.pubSub.Publish(reqID, "end")
}

// Historical data and bars.

func (w *ezWrapper) HistoricalData(reqID int64, bar *Bar) {
	w.pubSub.Publish(reqID, Join("HistoricalData", Encode(bar)))
}

func (w *ezWrapper) HistoricalDataUpdate(reqID int64, bar *Bar) {
	w.pubSub.Publish(reqID, Join("HistoricalDataUpdate", Encode(bar)))
}

func (w *ezWrapper) HistoricalDataEnd(reqID int64, startDateStr string, endDateStr string) {
	w.pubSub.Publish(reqID, Join("HistoricalDataEnd", startDateStr, endDateStr))
}

func (w *ezWrapper) HeadTimestamp(reqID int64, headTimestamp string) {
	w.pubSub.Publish(reqID, headTimestamp)
}

func (w *ezWrapper) RealtimeBar(reqID TickerID, t int64, open float64, high float64, low float64, closePrice float64, volume Decimal, wap Decimal, count int64) {
	bar := RealTimeBar{
		Time:   t,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume.Float(),
		Wap:    wap.Float(),
		Count:  count,
	}
	w.pubSub.Publish(reqID, Encode(bar))
}

// Time.

func (w *ezWrapper) CurrentTime(t int64) {
	w.pubSub.Publish("CurrentTime", Encode(time.Unix(t, 0).UTC()))
}

func (w *ezWrapper) CurrentTimeInMillis(timeInMillis int64) {
	w.pubSub.Publish("CurrentTimeInMillis", Encode(timeInMillis))
}
