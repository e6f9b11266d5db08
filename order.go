package ezib

import (
	"fmt"
	"math"
	"time"

	"github.com/scmhub/ibapi"
)

// orderAction maps a signed quantity to an order action.
func orderAction(quantity float64) string {
	if quantity >= 0 {
		return "BUY"
	}
	return "SELL"
}

// CreateOrder returns an order built the simple way. A positive quantity
// buys, a negative one sells. A zero price means market, any other price
// makes it a limit order.
func CreateOrder(quantity, price float64) *Order {
	if price == 0 {
		return MarketOrder(quantity)
	}
	return LimitOrder(quantity, price)
}

// MarketOrder returns a market order.
func MarketOrder(quantity float64) *Order {
	order := ibapi.NewOrder()
	order.Action = orderAction(quantity)
	order.TotalQuantity = FloatToDecimal(math.Abs(quantity))
	order.OrderType = "MKT"
	return order
}

// LimitOrder returns a limit order.
func LimitOrder(quantity, limitPrice float64) *Order {
	order := ibapi.NewOrder()
	order.Action = orderAction(quantity)
	order.TotalQuantity = FloatToDecimal(math.Abs(quantity))
	order.OrderType = "LMT"
	order.LmtPrice = limitPrice
	return order
}

// StopOrder returns a stop order.
func StopOrder(quantity, stopPrice float64) *Order {
	order := ibapi.NewOrder()
	order.Action = orderAction(quantity)
	order.TotalQuantity = FloatToDecimal(math.Abs(quantity))
	order.OrderType = "STP"
	order.AuxPrice = stopPrice
	return order
}

// StopLimitOrder returns a stop limit order.
func StopLimitOrder(quantity, limitPrice, stopPrice float64) *Order {
	order := ibapi.NewOrder()
	order.Action = orderAction(quantity)
	order.TotalQuantity = FloatToDecimal(math.Abs(quantity))
	order.OrderType = "STP LMT"
	order.LmtPrice = limitPrice
	order.AuxPrice = stopPrice
	return order
}

// TrailingStopOrder returns a trailing stop order trailing by the given
// percentage.
func TrailingStopOrder(quantity, trailingPercent float64) *Order {
	order := ibapi.NewOrder()
	order.Action = orderAction(quantity)
	order.TotalQuantity = FloatToDecimal(math.Abs(quantity))
	order.OrderType = "TRAIL"
	order.TrailingPercent = trailingPercent
	return order
}

// TargetOrder returns the take profit leg of a bracket, a limit order
// attached to the parent and bound to its OCA group.
func TargetOrder(quantity, price float64, parentID int64, group string) *Order {
	order := LimitOrder(quantity, price)
	order.ParentID = parentID
	order.OCAGroup = group
	order.OCAType = 2
	order.Transmit = false
	return order
}

// StopLossOrder returns the stop loss leg of a bracket, a stop order
// attached to the parent and bound to its OCA group.
func StopLossOrder(quantity, stopPrice float64, parentID int64, group string) *Order {
	order := StopOrder(quantity, stopPrice)
	order.ParentID = parentID
	order.OCAGroup = group
	order.OCAType = 2
	order.Transmit = false
	return order
}

// BracketOrder groups the three orders of a bracket.
type BracketOrder struct {
	Parent     *Order
	TakeProfit *Order
	StopLoss   *Order
}

// BracketOrder returns a parent order with an attached take profit and
// stop loss, sharing one OCA group. A zero entry makes the parent a
// market order. A zero target or stop leaves that leg out. Only the last
// order carries Transmit, so place them in Parent, TakeProfit, StopLoss
// order and the bracket goes live as a whole.
func (c *Client) BracketOrder(quantity, entry, target, stop float64) BracketOrder {
	var parent *Order
	if entry == 0 {
		parent = MarketOrder(quantity)
	} else {
		parent = LimitOrder(quantity, entry)
	}
	parent.OrderID = c.NextID()
	parent.Transmit = false

	group := fmt.Sprintf("bracket_%d_%d", parent.OrderID, time.Now().Unix())
	bracket := BracketOrder{Parent: parent}

	if target != 0 {
		takeProfit := TargetOrder(-quantity, target, parent.OrderID, group)
		takeProfit.OrderID = c.NextID()
		bracket.TakeProfit = takeProfit
	}
	if stop != 0 {
		stopLoss := StopLossOrder(-quantity, stop, parent.OrderID, group)
		stopLoss.OrderID = c.NextID()
		bracket.StopLoss = stopLoss
	}

	switch {
	case bracket.StopLoss != nil:
		bracket.StopLoss.Transmit = true
	case bracket.TakeProfit != nil:
		bracket.TakeProfit.Transmit = true
	default:
		parent.Transmit = true
	}
	return bracket
}
