package ezib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderAction(t *testing.T) {
	assert.Equal(t, "BUY", orderAction(100))
	assert.Equal(t, "BUY", orderAction(0))
	assert.Equal(t, "SELL", orderAction(-100))
}

func TestCreateOrder(t *testing.T) {
	market := CreateOrder(100, 0)
	assert.Equal(t, "MKT", market.OrderType)

	limit := CreateOrder(-100, 95.5)
	assert.Equal(t, "LMT", limit.OrderType)
	assert.Equal(t, "SELL", limit.Action)
	assert.Equal(t, 95.5, limit.LmtPrice)
}

func TestOrderConstructors(t *testing.T) {
	t.Run("Market", func(t *testing.T) {
		order := MarketOrder(100)
		assert.Equal(t, "MKT", order.OrderType)
		assert.Equal(t, "BUY", order.Action)
		assert.Equal(t, 100.0, order.TotalQuantity.Float())
	})

	t.Run("Limit", func(t *testing.T) {
		order := LimitOrder(-50, 101.25)
		assert.Equal(t, "LMT", order.OrderType)
		assert.Equal(t, "SELL", order.Action)
		assert.Equal(t, 50.0, order.TotalQuantity.Float())
		assert.Equal(t, 101.25, order.LmtPrice)
	})

	t.Run("Stop", func(t *testing.T) {
		order := StopOrder(-100, 180)
		assert.Equal(t, "STP", order.OrderType)
		assert.Equal(t, 180.0, order.AuxPrice)
	})

	t.Run("StopLimit", func(t *testing.T) {
		order := StopLimitOrder(100, 181, 180)
		assert.Equal(t, "STP LMT", order.OrderType)
		assert.Equal(t, 181.0, order.LmtPrice)
		assert.Equal(t, 180.0, order.AuxPrice)
	})

	t.Run("TrailingStop", func(t *testing.T) {
		order := TrailingStopOrder(-100, 5)
		assert.Equal(t, "TRAIL", order.OrderType)
		assert.Equal(t, 5.0, order.TrailingPercent)
	})
}

func TestBracketLegs(t *testing.T) {
	target := TargetOrder(-100, 200, 7, "bracket_7_1")
	assert.Equal(t, "LMT", target.OrderType)
	assert.Equal(t, "SELL", target.Action)
	assert.Equal(t, 200.0, target.LmtPrice)
	assert.Equal(t, int64(7), target.ParentID)
	assert.Equal(t, "bracket_7_1", target.OCAGroup)
	assert.Equal(t, int64(2), target.OCAType)
	assert.False(t, target.Transmit)

	stop := StopLossOrder(-100, 180, 7, "bracket_7_1")
	assert.Equal(t, "STP", stop.OrderType)
	assert.Equal(t, 180.0, stop.AuxPrice)
	assert.Equal(t, int64(7), stop.ParentID)
	assert.Equal(t, "bracket_7_1", stop.OCAGroup)
	assert.False(t, stop.Transmit)
}

func TestBracketOrder(t *testing.T) {
	c := NewClient()
	c.wrapper.NextValidID(100)

	bracket := c.BracketOrder(100, 0, 200.0, 180.0)

	parent := bracket.Parent
	require.NotNil(t, parent)
	assert.Equal(t, "MKT", parent.OrderType, "zero entry price means a market parent")
	assert.Equal(t, "BUY", parent.Action)
	assert.Equal(t, 100.0, parent.TotalQuantity.Float())
	assert.Equal(t, int64(100), parent.OrderID)
	assert.False(t, parent.Transmit)

	takeProfit := bracket.TakeProfit
	require.NotNil(t, takeProfit)
	assert.Equal(t, "LMT", takeProfit.OrderType)
	assert.Equal(t, "SELL", takeProfit.Action)
	assert.Equal(t, 200.0, takeProfit.LmtPrice)
	assert.Equal(t, parent.OrderID, takeProfit.ParentID)
	assert.False(t, takeProfit.Transmit)

	stopLoss := bracket.StopLoss
	require.NotNil(t, stopLoss)
	assert.Equal(t, "STP", stopLoss.OrderType)
	assert.Equal(t, "SELL", stopLoss.Action)
	assert.Equal(t, 180.0, stopLoss.AuxPrice)
	assert.Equal(t, parent.OrderID, stopLoss.ParentID)
	assert.True(t, stopLoss.Transmit, "only the last order of the bracket transmits")

	// All three carry distinct ids and the legs share one OCA group.
	assert.NotEqual(t, parent.OrderID, takeProfit.OrderID)
	assert.NotEqual(t, takeProfit.OrderID, stopLoss.OrderID)
	require.NotEmpty(t, takeProfit.OCAGroup)
	assert.Equal(t, takeProfit.OCAGroup, stopLoss.OCAGroup)
	assert.Equal(t, int64(2), takeProfit.OCAType)
	assert.Equal(t, int64(2), stopLoss.OCAType)
}

func TestBracketOrderLimitEntry(t *testing.T) {
	c := NewClient()
	c.wrapper.NextValidID(1)

	bracket := c.BracketOrder(-200, 50.5, 45.0, 55.0)

	assert.Equal(t, "LMT", bracket.Parent.OrderType)
	assert.Equal(t, "SELL", bracket.Parent.Action)
	assert.Equal(t, 50.5, bracket.Parent.LmtPrice)
	assert.Equal(t, "BUY", bracket.TakeProfit.Action)
	assert.Equal(t, "BUY", bracket.StopLoss.Action)
}

func TestBracketOrderPartialLegs(t *testing.T) {
	c := NewClient()
	c.wrapper.NextValidID(1)

	t.Run("NoStop", func(t *testing.T) {
		bracket := c.BracketOrder(100, 150, 200, 0)
		assert.Nil(t, bracket.StopLoss)
		require.NotNil(t, bracket.TakeProfit)
		assert.True(t, bracket.TakeProfit.Transmit)
	})

	t.Run("NoLegs", func(t *testing.T) {
		bracket := c.BracketOrder(100, 150, 0, 0)
		assert.Nil(t, bracket.TakeProfit)
		assert.Nil(t, bracket.StopLoss)
		assert.True(t, bracket.Parent.Transmit)
	})
}
