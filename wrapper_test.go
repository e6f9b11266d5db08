package ezib

import (
	"testing"
	"time"

	"github.com/scmhub/ibapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestTicker subscribes a ticker the way a market data request would.
func startTestTicker(c *Client, reqID int64, contract *Contract, subType string) *Ticker {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.startTicker(reqID, contract, subType)
}

func TestWrapperNextValidID(t *testing.T) {
	c := NewClient()
	assert.Equal(t, int64(-1), c.NextID(), "not initialised yet")

	c.wrapper.NextValidID(50)
	assert.Equal(t, int64(50), c.NextID())
	assert.Equal(t, int64(51), c.NextID())

	// A lower id from the server must not roll the counter back.
	c.wrapper.NextValidID(10)
	assert.Equal(t, int64(52), c.NextID())
}

func TestWrapperManagedAccounts(t *testing.T) {
	c := NewClient()
	c.wrapper.ManagedAccounts([]string{"DU123", "DU456"})

	accounts := c.ManagedAccounts()
	require.Equal(t, []string{"DU123", "DU456"}, accounts)

	// The returned slice is a copy.
	accounts[0] = "mutated"
	assert.Equal(t, "DU123", c.ManagedAccounts()[0])

	assert.True(t, c.IsPaperAccount())
	assert.False(t, c.IsFinancialAdvisorAccount())
}

func TestWrapperErrorRouting(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	t.Run("BenignCodesGoNowhere", func(t *testing.T) {
		ch, unsubscribe := c.pubSub.Subscribe(int64(3))
		defer unsubscribe()
		w.Error(3, 0, 2104, "Market data farm connection is OK", "")
		assert.Empty(t, ch)
	})

	t.Run("RequestErrorsReachTheSubscriber", func(t *testing.T) {
		ch, unsubscribe := c.pubSub.Subscribe(int64(3))
		defer unsubscribe()
		w.Error(3, 0, 200, "No security definition has been found for the request", "")

		msg := <-ch
		require.True(t, isErrorMsg(msg))
		assert.Equal(t, int64(200), msg2Error(msg).Code)
	})

	t.Run("UnsolicitedErrorsHitTheCallback", func(t *testing.T) {
		var got error
		c.ErrorCallback = func(err error) { got = err }
		w.Error(-1, 0, 1100, "Connectivity between IB and TWS has been lost", "")

		require.Error(t, got)
		assert.ErrorIs(t, got, IBError{Code: 1100})
	})
}

func TestWrapperTickPriceAndSize(t *testing.T) {
	c := NewClient()
	contract := NewStock("AAPL", "", "")
	ticker := startTestTicker(c, 1, contract, "mktData")

	c.wrapper.TickPrice(1, tickLast, 150.25, ibapi.TickAttrib{})
	c.wrapper.TickSize(1, tickLastSize, FloatToDecimal(100))
	c.wrapper.TickPrice(1, tickBid, 150.0, ibapi.TickAttrib{})
	c.wrapper.TickPrice(1, tickAsk, 150.5, ibapi.TickAttrib{})

	assert.Equal(t, 150.25, ticker.Last())
	assert.Equal(t, 100.0, ticker.LastSize())
	assert.Equal(t, 150.0, ticker.Bid())

	md := c.MarketData()
	require.Contains(t, md, "AAPL")
	assert.Equal(t, 150.25, md["AAPL"].Last)

	// Ticks for unknown subscriptions are dropped.
	c.wrapper.TickPrice(999, tickLast, 1.0, ibapi.TickAttrib{})
}

func TestWrapperTickOptionComputation(t *testing.T) {
	c := NewClient()
	opt := NewOption("AAPL", "20250117", 200, "C", "", "")
	ticker := startTestTicker(c, 2, opt, "mktData")

	ch, unsubscribe := c.pubSub.Subscribe(int64(2))
	defer unsubscribe()

	c.wrapper.TickOptionComputation(2, tickModelOptionComputation, 0, 0.25, 0.6, 5.25, 0, 0.01, 0.2, -0.05, 200)

	greeks := ticker.ModelGreeks()
	require.NotNil(t, greeks)
	assert.Equal(t, 0.6, greeks.Delta)

	items := Split(<-ch)
	require.Equal(t, "OptionComputation", items[0])
	var toc TickOptionComputation
	require.NoError(t, Decode(&toc, items[1]))
	assert.Equal(t, 0.25, toc.ImpliedVol)
}

func TestWrapperTickSnapshotEnd(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(4))
	defer unsubscribe()

	c.wrapper.TickSnapshotEnd(4)
	assert.Equal(t, "TickSnapshotEnd", <-ch)
}

func TestWrapperMktDepth(t *testing.T) {
	c := NewClient()
	contract := NewStock("AAPL", "", "")
	ticker := startTestTicker(c, 5, contract, "mktDepth")

	ch, unsubscribe := c.pubSub.Subscribe(int64(5))
	defer unsubscribe()

	c.wrapper.UpdateMktDepth(5, 0, 0, 1, 99.5, FloatToDecimal(100))
	c.wrapper.UpdateMktDepthL2(5, 0, "ISLAND", 0, 0, 99.6, FloatToDecimal(150), false)

	assert.Equal(t, "MktDepth", <-ch)
	assert.Equal(t, "MktDepth", <-ch)

	bids := ticker.DomBids()
	require.Len(t, bids, 1)
	assert.Equal(t, 99.5, bids[0].Price)
	asks := ticker.DomAsks()
	require.Len(t, asks, 1)
	assert.Equal(t, "ISLAND", asks[0].MarketMaker)

	depth := c.MarketDepth()
	require.Contains(t, depth, "AAPL")
	assert.Len(t, depth["AAPL"].Bids, 1)

	// Tickers without book rows stay out of the depth map.
	startTestTicker(c, 6, NewStock("MSFT", "", ""), "mktData")
	assert.NotContains(t, c.MarketDepth(), "MSFT")
}

func TestWrapperTickByTick(t *testing.T) {
	c := NewClient()
	contract := NewStock("AAPL", "", "")
	ticker := startTestTicker(c, 7, contract, "AllLast")

	ch, unsubscribe := c.pubSub.Subscribe(int64(7))
	defer unsubscribe()

	at := time.Date(2025, 8, 21, 14, 55, 0, 0, time.UTC)
	c.wrapper.TickByTickAllLast(7, 1, at.Unix(), 100.5, FloatToDecimal(10), ibapi.TickAttribLast{}, "NSDQ", "")

	assert.Equal(t, 100.5, ticker.Last())
	assert.Equal(t, at, ticker.Time())

	var last TickByTickAllLast
	require.NoError(t, Decode(&last, <-ch))
	assert.Equal(t, 100.5, last.Price)
	assert.Equal(t, "NSDQ", last.Exchange)

	c.wrapper.TickByTickBidAsk(7, at.Unix(), 100.0, 101.0, FloatToDecimal(20), FloatToDecimal(30), ibapi.TickAttribBidAsk{})
	assert.Equal(t, 100.0, ticker.Bid())
	assert.Equal(t, 101.0, ticker.Ask())

	var bidAsk TickByTickBidAsk
	require.NoError(t, Decode(&bidAsk, <-ch))
	assert.Equal(t, 101.0, bidAsk.AskPrice)

	c.wrapper.TickByTickMidPoint(7, at.Unix(), 100.5)
	var midPoint TickByTickMidPoint
	require.NoError(t, Decode(&midPoint, <-ch))
	assert.Equal(t, 100.5, midPoint.MidPoint)
}

func TestWrapperOrderStatusFlow(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	contract := NewStock("AAPL", "", "")
	order := LimitOrder(100, 150)
	order.OrderID = 7
	order.ClientID = 1

	statusChan, unsubscribe := c.pubSub.Subscribe("OrderStatus")
	defer unsubscribe()

	w.OpenOrder(7, contract, order, &OrderState{Status: Submitted})
	w.OrderStatus(7, Submitted, FloatToDecimal(0), FloatToDecimal(100), 0, 999, 0, 0, 1, "", 0)
	w.OrderStatus(7, Filled, FloatToDecimal(100), FloatToDecimal(0), 150.25, 999, 0, 150.25, 1, "", 0)

	statuses := c.OrderStatuses()
	require.Contains(t, statuses, int64(7))
	assert.Equal(t, Filled, statuses[7].Status)
	assert.Equal(t, 100.0, statuses[7].Filled)
	assert.Equal(t, 150.25, statuses[7].AvgFillPrice)

	trade, ok := c.TradeForOrder(7)
	require.True(t, ok)
	assert.True(t, trade.IsDone())
	assert.Equal(t, int64(999), trade.Status().PermID)

	grouped := c.SymbolOrders()
	require.Contains(t, grouped, "AAPL")
	assert.Len(t, grouped["AAPL"], 1)
	assert.Len(t, c.SymbolOrders("AAPL")["AAPL"], 1)
	assert.Empty(t, c.SymbolOrders("MSFT"))

	assert.Len(t, c.Trades(), 1)
	assert.Len(t, c.Orders(), 1)
	assert.Empty(t, c.OpenTrades(), "filled trades are not open")

	// Both updates went out on the order status feed.
	var status OrderStatus
	require.NoError(t, Decode(&status, <-statusChan))
	assert.Equal(t, Submitted, status.Status)
	require.NoError(t, Decode(&status, <-statusChan))
	assert.Equal(t, Filled, status.Status)
}

func TestWrapperOrderStatusUnknownOrder(t *testing.T) {
	c := NewClient()

	// A status for an order placed in another session still lands in the
	// cache.
	c.wrapper.OrderStatus(99, Submitted, FloatToDecimal(0), FloatToDecimal(10), 0, 777, 0, 0, 2, "", 0)

	statuses := c.OrderStatuses()
	require.Contains(t, statuses, int64(99))
	assert.Equal(t, Submitted, statuses[99].Status)
	assert.Len(t, c.OpenTrades(), 1)
}

func TestWrapperCompletedOrder(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	contract := NewStock("AAPL", "", "")
	order := MarketOrder(100)
	order.PermID = 555 // completed orders carry no order id

	endChan, unsubscribe := c.pubSub.Subscribe("CompletedOrdersEnd")
	defer unsubscribe()

	w.CompletedOrder(contract, order, &OrderState{Status: Filled})
	w.CompletedOrder(contract, order, &OrderState{Status: Filled}) // redelivery
	w.CompletedOrdersEnd()

	require.Len(t, c.Trades(), 1)
	trade := c.Trades()[0]
	assert.True(t, trade.IsDone())
	assert.Equal(t, Filled, trade.Status().Status)
	assert.Equal(t, "end", <-endChan)
}

func TestWrapperOpenOrderEnd(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe("OpenOrdersEnd")
	defer unsubscribe()

	c.wrapper.OpenOrderEnd()
	assert.Equal(t, "end", <-ch)
}

func TestWrapperExecDetailsFillFlow(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	contract := NewStock("AAPL", "", "")
	order := LimitOrder(100, 150)
	order.OrderID = 7
	order.ClientID = 1
	w.OpenOrder(7, contract, order, &OrderState{Status: Submitted})

	fillChan, unsubscribe := c.pubSub.Subscribe("Fill")
	defer unsubscribe()

	execution := &Execution{
		ExecID:     "0001.01",
		OrderID:    7,
		ClientID:   1,
		AcctNumber: "DU123",
		Side:       "BOT",
		Time:       "20250821-14:55:00",
	}
	w.ExecDetails(-1, contract, execution)

	fills := c.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, time.Date(2025, 8, 21, 14, 55, 0, 0, time.UTC), fills[0].Time.UTC())

	trade, ok := c.TradeForOrder(7)
	require.True(t, ok)
	require.Len(t, trade.Fills(), 1)

	var fill Fill
	require.NoError(t, Decode(&fill, <-fillChan))
	assert.Equal(t, "0001.01", fill.Execution.ExecID)

	// Requesting executions redelivers, the cache keeps one record.
	reqChan, reqUnsub := c.pubSub.Subscribe(int64(12))
	defer reqUnsub()
	w.ExecDetails(12, contract, &Execution{ExecID: "0001.01", OrderID: 7, ClientID: 1})
	w.ExecDetailsEnd(12)

	assert.Len(t, c.Fills(), 1)
	assert.Len(t, trade.Fills(), 1)
	<-reqChan // the redelivered fill
	assert.Equal(t, "end", <-reqChan)

	// The commission report lands on the stored fill and is visible
	// through the trade.
	w.CommissionAndFeesReport(CommissionAndFeesReport{ExecID: "0001.01"})
	assert.Equal(t, "0001.01", c.Fills()[0].CommissionAndFeesReport.ExecID)
	assert.Equal(t, "0001.01", trade.Fills()[0].CommissionAndFeesReport.ExecID)

	assert.Len(t, c.Executions(), 1)
	assert.Empty(t, c.Executions(&ExecutionFilter{Symbol: "MSFT"}))
	assert.Len(t, c.Fills(&ExecutionFilter{AcctCode: "DU123"}), 1)
}

func TestWrapperAccountFlow(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	avChan, unsubscribe := c.pubSub.Subscribe("AccountValue")
	defer unsubscribe()

	w.UpdateAccountValue("NetLiquidation", "100000.00", "USD", "DU123")
	w.UpdateAccountValue("NetLiquidation", "100500.00", "USD", "DU123")
	w.UpdateAccountValue("NetLiquidation", "50000.00", "USD", "DU456")
	w.UpdateAccountTime("14:55")

	values := c.AccountValues("DU123")
	require.Len(t, values, 1)
	assert.Equal(t, "100500.00", values[0].Value)
	assert.Len(t, c.AccountValues(), 2)
	assert.Empty(t, c.AccountValues("DU789"))

	account := c.Account("DU123")
	require.Contains(t, account, "NetLiquidation")
	assert.Equal(t, "100500.00", account["NetLiquidation"].Value)

	assert.Equal(t, "14:55", c.AccountUpdateTime())

	var av AccountValue
	require.NoError(t, Decode(&av, <-avChan))
	assert.Equal(t, "100000.00", av.Value)

	endChan, endUnsub := c.pubSub.Subscribe("AccountDownloadEnd")
	defer endUnsub()
	w.AccountDownloadEnd("DU123")
	assert.Equal(t, "DU123", <-endChan)
}

func TestWrapperAccountSummary(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	ch, unsubscribe := c.pubSub.Subscribe(int64(11))
	defer unsubscribe()

	w.AccountSummary(11, "DU123", "NetLiquidation", "100000.00", "USD")
	w.AccountSummaryEnd(11)

	var av AccountValue
	require.NoError(t, Decode(&av, <-ch))
	assert.Equal(t, "NetLiquidation", av.Tag)
	assert.Equal(t, "end", <-ch)

	// The cached summary serves later reads without a new request.
	summary := c.AccountSummary()
	require.Len(t, summary, 1)
	assert.Equal(t, "100000.00", summary[0].Value)
	assert.Len(t, c.AccountSummary("DU123"), 1)
}

func TestWrapperPositionFlow(t *testing.T) {
	c := NewClient()
	c.config.Account = "DU123"
	w := c.wrapper

	posChan, unsubscribe := c.pubSub.Subscribe("Position")
	defer unsubscribe()

	aapl := NewStock("AAPL", "", "")
	w.Position("DU123", aapl, FloatToDecimal(100), 95.0)
	w.Position("DU123", aapl, FloatToDecimal(50), 96.0)
	w.PositionEnd()

	positions := c.Positions("DU123")
	require.Len(t, positions, 1)
	assert.Equal(t, 50.0, positions[0].Position)

	position, ok := c.PositionFor(aapl)
	require.True(t, ok)
	assert.Equal(t, 50.0, position.Position)
	_, ok = c.PositionFor(NewStock("MSFT", "", ""))
	assert.False(t, ok)

	var pos Position
	require.NoError(t, Decode(&pos, <-posChan))
	assert.Equal(t, "DU123", pos.Account)

	// The contract seen in the position stream lands in the registry.
	assert.Contains(t, c.Contracts(), "AAPL")
}

func TestWrapperPortfolioFlow(t *testing.T) {
	c := NewClient()
	c.config.Account = "DU123"
	w := c.wrapper

	aapl := NewStock("AAPL", "", "")
	w.UpdatePortfolio(aapl, FloatToDecimal(100), 150.5, 15050, 140, 1050, 0, "DU123")

	items := c.Portfolio("DU123")
	require.Len(t, items, 1)
	assert.Equal(t, 15050.0, items[0].MarketValue)

	item, ok := c.PortfolioItemFor(aapl)
	require.True(t, ok)
	assert.Equal(t, 1050.0, item.UnrealizedPNL)
	_, ok = c.PortfolioItemFor(aapl, "DU999")
	assert.False(t, ok)
}

func TestWrapperPnlFlow(t *testing.T) {
	c := NewClient()
	w := c.wrapper

	// Seed the request the way ReqPnL and ReqPnLSingle do.
	c.state.mu.Lock()
	c.state.pnlKey2ReqID[Key("DU123", "")] = 20
	c.state.reqID2Pnl[20] = &Pnl{Account: "DU123"}
	c.state.pnlSingleKey2ReqID[Key("DU123", "", int64(265598))] = 21
	c.state.reqID2PnlSingle[21] = &PnlSingle{Account: "DU123", ConID: 265598}
	c.state.mu.Unlock()

	t.Run("Pnl", func(t *testing.T) {
		ch, unsubscribe := c.pubSub.Subscribe("Pnl")
		defer unsubscribe()

		w.Pnl(20, 100, 50, 25)
		w.Pnl(999, 1, 1, 1) // unknown request, dropped

		pnls := c.Pnl("DU123", "")
		require.Len(t, pnls, 1)
		assert.Equal(t, 100.0, pnls[0].DailyPnL)
		assert.Len(t, c.Pnl("", ""), 1, "empty account matches all")
		assert.Empty(t, c.Pnl("DU999", ""))

		var pnl Pnl
		require.NoError(t, Decode(&pnl, <-ch))
		assert.Equal(t, 25.0, pnl.RealizedPnL)
	})

	t.Run("PnlSingle", func(t *testing.T) {
		ch, unsubscribe := c.pubSub.Subscribe("PnlSingle")
		defer unsubscribe()

		w.PnlSingle(21, FloatToDecimal(100), 10, 5, 0, 15300)

		singles := c.PnlSingle("DU123", "", 265598)
		require.Len(t, singles, 1)
		assert.Equal(t, 100.0, singles[0].Position)
		assert.Len(t, c.PnlSingle("", "", 0), 1, "zero contract id matches all")
		assert.Empty(t, c.PnlSingle("DU123", "", 1))

		var single PnlSingle
		require.NoError(t, Decode(&single, <-ch))
		assert.Equal(t, 15300.0, single.Value)
	})
}

func TestWrapperContractDetails(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(30))
	defer unsubscribe()

	cd := &ContractDetails{Contract: *NewStock("AAPL", "", "")}
	c.wrapper.ContractDetails(30, cd)
	c.wrapper.ContractDetailsEnd(30)

	var decoded ContractDetails
	require.NoError(t, Decode(&decoded, <-ch))
	assert.Equal(t, "AAPL", decoded.Contract.Symbol)
	assert.Equal(t, "end", <-ch)
}

func TestWrapperSecDefOptParams(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(31))
	defer unsubscribe()

	c.wrapper.SecurityDefinitionOptionParameter(31, "SMART", 265598, "AAPL", "100", []string{"20250117", "20250221"}, []float64{195, 200, 205})
	c.wrapper.SecurityDefinitionOptionParameterEnd(31)

	var chain OptionChain
	require.NoError(t, Decode(&chain, <-ch))
	assert.Equal(t, "SMART", chain.Exchange)
	assert.Len(t, chain.Expirations, 2)
	assert.Len(t, chain.Strikes, 3)
	assert.Equal(t, "end", <-ch)
}

func TestWrapperHistoricalData(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(32))
	defer unsubscribe()

	c.wrapper.HistoricalData(32, &Bar{Date: "20250821", Open: 100, Close: 101})
	c.wrapper.HistoricalDataUpdate(32, &Bar{Date: "20250822", Open: 101, Close: 102})
	c.wrapper.HistoricalDataEnd(32, "20250801", "20250821")

	items := Split(<-ch)
	require.Equal(t, "HistoricalData", items[0])
	var bar Bar
	require.NoError(t, Decode(&bar, items[1]))
	assert.Equal(t, 101.0, bar.Close)

	items = Split(<-ch)
	assert.Equal(t, "HistoricalDataUpdate", items[0])

	items = Split(<-ch)
	require.Len(t, items, 3)
	assert.Equal(t, "HistoricalDataEnd", items[0])
	assert.Equal(t, "20250801", items[1])
	assert.Equal(t, "20250821", items[2])
}

func TestWrapperHeadTimestamp(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(33))
	defer unsubscribe()

	c.wrapper.HeadTimestamp(33, "20200102-09:30:00")
	assert.Equal(t, "20200102-09:30:00", <-ch)
}

func TestWrapperRealtimeBar(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe(int64(34))
	defer unsubscribe()

	c.wrapper.RealtimeBar(34, 1724252100, 100, 101, 99.5, 100.5, FloatToDecimal(1000), FloatToDecimal(100.2), 42)

	var bar RealTimeBar
	require.NoError(t, Decode(&bar, <-ch))
	assert.Equal(t, int64(1724252100), bar.Time)
	assert.Equal(t, 100.5, bar.Close)
	assert.Equal(t, 1000.0, bar.Volume)
	assert.Equal(t, int64(42), bar.Count)
}

func TestWrapperCurrentTime(t *testing.T) {
	c := NewClient()

	ch, unsubscribe := c.pubSub.Subscribe("CurrentTime")
	defer unsubscribe()
	c.wrapper.CurrentTime(1724252100)

	var currentTime time.Time
	require.NoError(t, Decode(&currentTime, <-ch))
	assert.Equal(t, time.Unix(1724252100, 0).UTC(), currentTime)

	msChan, msUnsub := c.pubSub.Subscribe("CurrentTimeInMillis")
	defer msUnsub()
	c.wrapper.CurrentTimeInMillis(1724252100123)

	var millis int64
	require.NoError(t, Decode(&millis, <-msChan))
	assert.Equal(t, int64(1724252100123), millis)
}

func TestWrapperMktDepthExchanges(t *testing.T) {
	c := NewClient()
	ch, unsubscribe := c.pubSub.Subscribe("MktDepthExchanges")
	defer unsubscribe()

	c.wrapper.MktDepthExchanges([]DepthMktDataDescription{{Exchange: "ISLAND", SecType: "STK"}})

	var descriptions []DepthMktDataDescription
	require.NoError(t, Decode(&descriptions, <-ch))
	require.Len(t, descriptions, 1)
	assert.Equal(t, "ISLAND", descriptions[0].Exchange)
}
